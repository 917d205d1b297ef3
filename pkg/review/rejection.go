package review

import (
	"strings"
	"time"

	"recognition-review-backend/pkg/models"
)

const dateLayout = "2006-01-02"

// ParseDeadline accepts an RFC3339 timestamp or a bare date, which means the end of that day
// in loc. An empty string means no deadline.
func ParseDeadline(s string, loc *time.Location) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	d, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return nil, &Error{Code: CodeInvalidDeadline, Message: "deadline must be RFC3339 or YYYY-MM-DD", Err: err}
	}
	end := d.AddDate(0, 0, 1).Add(-time.Second)
	return &end, nil
}

// validateRejection checks the reason/deadline pair carried by a decision. A deadline is only
// meaningful on a rejection and must not lie in the past.
func validateRejection(documentID string, outcome models.Outcome, reason string, deadline *time.Time, now time.Time) error {
	if outcome == models.OutcomeApprove {
		if deadline != nil {
			return newError(CodeInvalidState, documentID, "a resubmission deadline requires a rejection")
		}
		return nil
	}
	if strings.TrimSpace(reason) == "" {
		return &Error{Code: CodeMissingReason, Subject: documentID, Message: "rejection reason is required"}
	}
	if deadline != nil && deadline.Before(now) {
		return newError(CodeInvalidDeadline, documentID, "resubmission deadline %s is in the past", deadline.Format(time.RFC3339))
	}
	return nil
}

// stampRejection records the audit trail of a rejection on doc.
func stampRejection(doc *models.Document, stage models.ReviewRole, actorID, reason string, deadline *time.Time, now time.Time) {
	doc.RejectionReason = strings.TrimSpace(reason)
	doc.RejectedStage = stage
	if deadline != nil {
		d := *deadline
		at := now
		doc.ResubmissionDeadline = &d
		doc.DeadlineSetBy = actorID
		doc.DeadlineSetAt = &at
	}
}
