package models

import "time"

// DocumentType identifies what a submitted artifact is. Owner-level types come from the
// required-document catalog; event batch documents may carry any type.
type DocumentType string

// Decision is the state of one review stage on a document.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// ReviewRole is the stage a reviewer acts in. Officers submit documents for their owner
// but never decide.
type ReviewRole string

const (
	RoleAdviser    ReviewRole = "adviser"
	RoleCompliance ReviewRole = "compliance"
	RoleOfficer    ReviewRole = "officer"
)

// Valid reports whether r is one of the two deciding stages.
func (r ReviewRole) Valid() bool {
	return r == RoleAdviser || r == RoleCompliance
}

// Outcome is what a reviewer decides.
type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeReject  Outcome = "reject"
)

func (o Outcome) Valid() bool {
	return o == OutcomeApprove || o == OutcomeReject
}

// Decision maps the outcome to the stored stage decision.
func (o Outcome) Decision() Decision {
	if o == OutcomeApprove {
		return DecisionApproved
	}
	return DecisionRejected
}

// Document is one submitted artifact and its review state.
// Rows are never edited by resubmission: a resubmission is a new row pointing at the
// row it replaces through SupersedesID.
type Document struct {
	ID           string       `json:"id" db:"id"`
	OwnerID      string       `json:"owner_id" db:"owner_id"`
	BatchID      string       `json:"batch_id,omitempty" db:"batch_id"`
	DocumentType DocumentType `json:"document_type" db:"document_type"`
	FilePath     string       `json:"file_path" db:"file_path"`
	SubmittedBy  string       `json:"submitted_by,omitempty" db:"submitted_by"`
	SubmittedAt  time.Time    `json:"submitted_at" db:"submitted_at"`
	SupersedesID string       `json:"supersedes_document_id,omitempty" db:"supersedes_document_id"`
	SupersededBy string       `json:"superseded_by,omitempty" db:"-"`

	AdviserDecision  Decision   `json:"adviser_decision" db:"adviser_decision"`
	AdviserDecidedAt *time.Time `json:"adviser_decided_at,omitempty" db:"adviser_decided_at"`
	AdviserDeciderID string     `json:"adviser_decider_id,omitempty" db:"adviser_decider_id"`

	OSASDecision  Decision   `json:"osas_decision" db:"osas_decision"`
	OSASDecidedAt *time.Time `json:"osas_decided_at,omitempty" db:"osas_decided_at"`
	OSASDeciderID string     `json:"osas_decider_id,omitempty" db:"osas_decider_id"`

	Rejection
}

// Rejection is the audit trail left by a reject decision.
type Rejection struct {
	RejectionReason      string     `json:"rejection_reason,omitempty" db:"rejection_reason"`
	RejectedStage        ReviewRole `json:"rejected_stage,omitempty" db:"rejected_stage"`
	ResubmissionDeadline *time.Time `json:"resubmission_deadline,omitempty" db:"resubmission_deadline"`
	DeadlineSetBy        string     `json:"deadline_set_by,omitempty" db:"deadline_set_by"`
	DeadlineSetAt        *time.Time `json:"deadline_set_at,omitempty" db:"deadline_set_at"`
}

// EventScoped reports whether the document belongs to an event approval batch.
func (d *Document) EventScoped() bool {
	return d.BatchID != ""
}

func (d *Document) Superseded() bool {
	return d.SupersededBy != ""
}

// Rejected reports whether either stage rejected the document.
func (d *Document) Rejected() bool {
	return d.AdviserDecision == DecisionRejected || d.OSASDecision == DecisionRejected
}

// Clone returns a deep copy so staged writes never alias stored rows.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.AdviserDecidedAt = cloneTime(d.AdviserDecidedAt)
	c.OSASDecidedAt = cloneTime(d.OSASDecidedAt)
	c.ResubmissionDeadline = cloneTime(d.ResubmissionDeadline)
	c.DeadlineSetAt = cloneTime(d.DeadlineSetAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
