package review

import (
	"time"

	"recognition-review-backend/pkg/models"
)

// DecisionRequest is one reviewer's approve/reject on one document.
type DecisionRequest struct {
	DocumentID string
	Role       models.ReviewRole
	Outcome    models.Outcome
	Reason     string
	Deadline   *time.Time
}

// DecisionResult is the state after a committed decision.
type DecisionResult struct {
	Document           models.Document          `json:"document"`
	OwnerID            string                   `json:"owner_id"`
	RecognitionStatus  models.RecognitionStatus `json:"recognition_status,omitempty"`
	RecognitionChanged bool                     `json:"recognition_changed"`
	Batch              *models.BatchSummary     `json:"batch,omitempty"`
}

func validateRequest(req DecisionRequest) error {
	if req.DocumentID == "" {
		return InvalidRequest("document id is required")
	}
	if !req.Role.Valid() {
		return InvalidRequest("unknown review role %q", req.Role)
	}
	if !req.Outcome.Valid() {
		return InvalidRequest("unknown outcome %q", req.Outcome)
	}
	return nil
}

// authorize checks that the actor may act in the requested stage on a document of ownerID.
func authorize(actor *models.Actor, role models.ReviewRole, ownerID string) error {
	if actor == nil || actor.ID == "" {
		return &Error{Code: CodeForbidden, Message: "no actor on request"}
	}
	if !actor.CanReviewAs(role) {
		return newError(CodeForbidden, actor.ID, "actor cannot review as %s", role)
	}
	if role == models.RoleAdviser && !actor.BoundTo(ownerID) {
		return newError(CodeForbidden, ownerID, "adviser is not bound to this owner")
	}
	return nil
}

// checkTransition enforces stage ordering. The adviser decides once; compliance decides once
// and only after the adviser approved. Superseded rows are frozen.
func checkTransition(doc *models.Document, role models.ReviewRole) error {
	if doc.Superseded() {
		return newError(CodeInvalidTransition, doc.ID, "document was superseded by %s", doc.SupersededBy)
	}
	switch role {
	case models.RoleAdviser:
		if doc.AdviserDecision != models.DecisionPending {
			return newError(CodeInvalidTransition, doc.ID, "adviser already %s this document", doc.AdviserDecision)
		}
	case models.RoleCompliance:
		if doc.AdviserDecision != models.DecisionApproved {
			return newError(CodeInvalidTransition, doc.ID, "compliance review requires adviser approval (adviser decision is %s)", doc.AdviserDecision)
		}
		if doc.OSASDecision != models.DecisionPending {
			return newError(CodeInvalidTransition, doc.ID, "compliance already %s this document", doc.OSASDecision)
		}
	}
	return nil
}

// applyDecision mutates doc in place; callers pass a staged copy.
func applyDecision(doc *models.Document, actor *models.Actor, req DecisionRequest, now time.Time) {
	at := now
	decision := req.Outcome.Decision()
	switch req.Role {
	case models.RoleAdviser:
		doc.AdviserDecision = decision
		doc.AdviserDecidedAt = &at
		doc.AdviserDeciderID = actor.ID
	case models.RoleCompliance:
		doc.OSASDecision = decision
		doc.OSASDecidedAt = &at
		doc.OSASDeciderID = actor.ID
	}
	if decision == models.DecisionRejected {
		stampRejection(doc, req.Role, actor.ID, req.Reason, req.Deadline, now)
	}
}
