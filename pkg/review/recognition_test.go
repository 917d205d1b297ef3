package review

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recognition-review-backend/pkg/models"
)

var t0 = time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)

func doc(id string, typ models.DocumentType, at time.Time, adviser, osas models.Decision) models.Document {
	return models.Document{
		ID:              id,
		OwnerID:         "org-1",
		DocumentType:    typ,
		SubmittedAt:     at,
		AdviserDecision: adviser,
		OSASDecision:    osas,
	}
}

type window struct{ from, to time.Time }

func (w window) IsActive(t time.Time) bool { return !t.Before(w.from) && t.Before(w.to) }

func TestSelectCurrent_DropsSuperseded(t *testing.T) {
	rejected := doc("d1", DocActionPlan, t0, models.DecisionApproved, models.DecisionRejected)
	replacement := doc("d2", DocActionPlan, t0.Add(time.Hour), models.DecisionPending, models.DecisionPending)
	replacement.SupersedesID = "d1"

	current := SelectCurrent([]models.Document{rejected, replacement}, nil)
	require.Contains(t, current, DocActionPlan)
	assert.Equal(t, "d2", current[DocActionPlan].ID)
}

func TestSelectCurrent_SupersededEvenWhenOlderLooksNewer(t *testing.T) {
	// the link decides, not the timestamp
	original := doc("d1", DocActionPlan, t0.Add(2*time.Hour), models.DecisionRejected, models.DecisionPending)
	replacement := doc("d2", DocActionPlan, t0, models.DecisionPending, models.DecisionPending)
	replacement.SupersedesID = "d1"

	current := SelectCurrent([]models.Document{original, replacement}, nil)
	assert.Equal(t, "d2", current[DocActionPlan].ID)
}

func TestSelectCurrent_LatestUnlinkedWins(t *testing.T) {
	a := doc("a", DocBudgetProposal, t0, models.DecisionApproved, models.DecisionApproved)
	b := doc("b", DocBudgetProposal, t0.Add(time.Minute), models.DecisionPending, models.DecisionPending)
	c := doc("c", DocBudgetProposal, t0.Add(time.Minute), models.DecisionPending, models.DecisionPending)

	current := SelectCurrent([]models.Document{a, c, b}, nil)
	assert.Equal(t, "c", current[DocBudgetProposal].ID, "ties break on id")
}

func TestSelectCurrent_PeriodScope(t *testing.T) {
	term := window{from: t0, to: t0.AddDate(0, 6, 0)}
	old := doc("old", DocLetterOfIntent, t0.AddDate(-1, 0, 0), models.DecisionApproved, models.DecisionApproved)
	current := SelectCurrent([]models.Document{old}, term)
	assert.Empty(t, current)
}

func TestEvaluateRecognition_AllApproved(t *testing.T) {
	required := []models.DocumentType{DocLetterOfIntent, DocActionPlan}
	docs := []models.Document{
		doc("1", DocLetterOfIntent, t0, models.DecisionApproved, models.DecisionApproved),
		doc("2", DocActionPlan, t0, models.DecisionApproved, models.DecisionApproved),
	}
	ev := EvaluateRecognition(required, SelectCurrent(docs, nil))
	assert.Equal(t, models.Recognized, ev.Status)
	assert.Equal(t, 2, ev.Approved)
	assert.Empty(t, ev.Missing)
}

func TestEvaluateRecognition_NoPartialCredit(t *testing.T) {
	required := []models.DocumentType{DocLetterOfIntent, DocActionPlan, DocBudgetProposal}
	docs := []models.Document{
		doc("1", DocLetterOfIntent, t0, models.DecisionApproved, models.DecisionApproved),
		doc("2", DocActionPlan, t0, models.DecisionApproved, models.DecisionPending),
	}
	ev := EvaluateRecognition(required, SelectCurrent(docs, nil))
	assert.Equal(t, models.Unrecognized, ev.Status)
	assert.Equal(t, 1, ev.Approved)
	assert.Equal(t, []models.DocumentType{DocBudgetProposal}, ev.Missing)
	assert.Equal(t, []models.DocumentType{DocActionPlan}, ev.NotApproved)
}

func TestEvaluateRecognition_AdviserApprovalIsNotEnough(t *testing.T) {
	required := []models.DocumentType{DocLetterOfIntent}
	docs := []models.Document{doc("1", DocLetterOfIntent, t0, models.DecisionApproved, models.DecisionPending)}
	assert.Equal(t, models.Unrecognized, EvaluateRecognition(required, SelectCurrent(docs, nil)).Status)
}

func TestEvaluateRecognition_EmptyRequirementNeverRecognizes(t *testing.T) {
	assert.Equal(t, models.Unrecognized, EvaluateRecognition(nil, nil).Status)
}

func TestEvaluateRecognition_ReplacementRevokes(t *testing.T) {
	required := []models.DocumentType{DocLetterOfIntent}
	approved := doc("1", DocLetterOfIntent, t0, models.DecisionApproved, models.DecisionApproved)
	pending := doc("2", DocLetterOfIntent, t0.Add(time.Hour), models.DecisionPending, models.DecisionPending)
	pending.SupersedesID = "1"

	ev := EvaluateRecognition(required, SelectCurrent([]models.Document{approved, pending}, nil))
	assert.Equal(t, models.Unrecognized, ev.Status)
}

func TestBuildChecklist_CarriesRejection(t *testing.T) {
	cat := DefaultCatalog()
	owner := models.Owner{ID: "org-1", Kind: models.OwnerOrganization, LifecycleStage: models.StageNew, RecognitionStatus: models.Recognized}

	deadline := t0.AddDate(0, 0, 14)
	rejected := doc("1", DocActionPlan, t0, models.DecisionApproved, models.DecisionRejected)
	rejected.RejectionReason = "missing signatures"
	rejected.RejectedStage = models.RoleCompliance
	rejected.ResubmissionDeadline = &deadline
	rejected.DeadlineSetBy = "osas-1"

	cl := BuildChecklist(owner, cat, SelectCurrent([]models.Document{rejected}, nil))
	require.Len(t, cl.Items, 11)
	assert.Equal(t, models.Recognized, cl.RecognitionStatus, "stored status is reported as stored")
	assert.Equal(t, models.Unrecognized, cl.Evaluated)
	assert.Len(t, cl.Missing, 10)

	var item ChecklistItem
	for _, it := range cl.Items {
		if it.DocumentType == DocActionPlan {
			item = it
		}
	}
	assert.True(t, item.Present)
	assert.False(t, item.Approved)
	assert.Equal(t, "missing signatures", item.RejectionReason)
	assert.Equal(t, models.RoleCompliance, item.RejectedStage)
	assert.Equal(t, &deadline, item.ResubmissionDeadline)
	assert.Equal(t, "Action Plan / Calendar of Activities", item.Label)
}
