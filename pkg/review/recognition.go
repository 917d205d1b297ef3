package review

import (
	"sort"
	"time"

	"recognition-review-backend/pkg/models"
)

// Period scopes which documents count. A nil Period counts everything.
type Period interface {
	IsActive(t time.Time) bool
}

func inPeriod(p Period, t time.Time) bool {
	return p == nil || p.IsActive(t)
}

// supersededSet returns the ids of documents that a later submission replaced.
func supersededSet(docs []models.Document) map[string]string {
	out := make(map[string]string)
	for _, d := range docs {
		if d.SupersedesID != "" {
			out[d.SupersedesID] = d.ID
		}
		if d.SupersededBy != "" {
			out[d.ID] = d.SupersededBy
		}
	}
	return out
}

// SelectCurrent picks the current document per type: superseded rows are dropped entirely,
// rows outside the period are ignored, and if several unlinked rows of a type remain the most
// recently submitted wins (ties broken by id so the choice is stable).
func SelectCurrent(docs []models.Document, period Period) map[models.DocumentType]*models.Document {
	superseded := supersededSet(docs)
	current := make(map[models.DocumentType]*models.Document)
	for i := range docs {
		d := &docs[i]
		if _, gone := superseded[d.ID]; gone {
			continue
		}
		if !inPeriod(period, d.SubmittedAt) {
			continue
		}
		prev, ok := current[d.DocumentType]
		if !ok || newer(d, prev) {
			current[d.DocumentType] = d
		}
	}
	return current
}

func newer(a, b *models.Document) bool {
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.After(b.SubmittedAt)
	}
	return a.ID > b.ID
}

// Evaluation is the outcome of the conjunctive recognition gate.
type Evaluation struct {
	Status      models.RecognitionStatus `json:"status"`
	Required    []models.DocumentType    `json:"required"`
	Approved    int                      `json:"approved_count"`
	Missing     []models.DocumentType    `json:"missing"`
	NotApproved []models.DocumentType    `json:"not_approved"`
}

// EvaluateRecognition is recognized iff every required type has a current document whose
// compliance decision is approved. Missing documents count as not approved. An empty
// requirement set never recognizes.
func EvaluateRecognition(required []models.DocumentType, current map[models.DocumentType]*models.Document) Evaluation {
	ev := Evaluation{Required: required, Status: models.Unrecognized}
	for _, t := range required {
		d, ok := current[t]
		switch {
		case !ok:
			ev.Missing = append(ev.Missing, t)
		case d.OSASDecision == models.DecisionApproved:
			ev.Approved++
		default:
			ev.NotApproved = append(ev.NotApproved, t)
		}
	}
	if len(required) > 0 && ev.Approved == len(required) {
		ev.Status = models.Recognized
	}
	return ev
}

// ChecklistItem is the per-type row of the "what's missing" view.
type ChecklistItem struct {
	DocumentType         models.DocumentType `json:"document_type"`
	Label                string              `json:"label"`
	Present              bool                `json:"present"`
	Approved             bool                `json:"approved"`
	DocumentID           string              `json:"document_id,omitempty"`
	SubmittedAt          *time.Time          `json:"submitted_at,omitempty"`
	AdviserDecision      models.Decision     `json:"adviser_decision,omitempty"`
	OSASDecision         models.Decision     `json:"osas_decision,omitempty"`
	RejectionReason      string              `json:"rejection_reason,omitempty"`
	RejectedStage        models.ReviewRole   `json:"rejected_stage,omitempty"`
	ResubmissionDeadline *time.Time          `json:"resubmission_deadline,omitempty"`
	DeadlineSetBy        string              `json:"deadline_set_by,omitempty"`
	DeadlineSetAt        *time.Time          `json:"deadline_set_at,omitempty"`
}

// Checklist is an owner's recognition status and per-type current document state.
type Checklist struct {
	Owner             models.Owner             `json:"owner"`
	RecognitionStatus models.RecognitionStatus `json:"recognition_status"`
	Evaluated         models.RecognitionStatus `json:"evaluated_status"`
	RequiredCount     int                      `json:"required_count"`
	ApprovedCount     int                      `json:"approved_count"`
	Items             []ChecklistItem          `json:"items"`
	Missing           []models.DocumentType    `json:"missing"`
}

// BuildChecklist materializes the checklist in catalog order.
func BuildChecklist(owner models.Owner, cat *Catalog, current map[models.DocumentType]*models.Document) Checklist {
	required := cat.Required(owner.Kind, owner.LifecycleStage)
	ev := EvaluateRecognition(required, current)
	cl := Checklist{
		Owner:             owner,
		RecognitionStatus: owner.RecognitionStatus,
		Evaluated:         ev.Status,
		RequiredCount:     len(required),
		ApprovedCount:     ev.Approved,
		Missing:           ev.Missing,
		Items:             make([]ChecklistItem, 0, len(required)),
	}
	for _, t := range required {
		item := ChecklistItem{DocumentType: t, Label: cat.Label(t)}
		if d, ok := current[t]; ok {
			submitted := d.SubmittedAt
			item.Present = true
			item.Approved = d.OSASDecision == models.DecisionApproved
			item.DocumentID = d.ID
			item.SubmittedAt = &submitted
			item.AdviserDecision = d.AdviserDecision
			item.OSASDecision = d.OSASDecision
			item.RejectionReason = d.RejectionReason
			item.RejectedStage = d.RejectedStage
			item.ResubmissionDeadline = d.ResubmissionDeadline
			item.DeadlineSetBy = d.DeadlineSetBy
			item.DeadlineSetAt = d.DeadlineSetAt
		}
		cl.Items = append(cl.Items, item)
	}
	return cl
}

// ownerLevel keeps only documents that are not part of an event batch.
func ownerLevel(docs []models.Document) []models.Document {
	out := make([]models.Document, 0, len(docs))
	for _, d := range docs {
		if !d.EventScoped() {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}
