package review

import (
	"sort"
	"time"

	"recognition-review-backend/pkg/models"
)

// BatchFilter narrows the compliance queue. Filters apply only after the visibility gate.
type BatchFilter struct {
	OwnerID         string
	DocumentType    models.DocumentType
	From            *time.Time
	To              *time.Time
	IncludeArchived bool
}

// CurrentBatchDocuments drops documents a resubmission replaced.
func CurrentBatchDocuments(docs []models.Document) []models.Document {
	superseded := supersededSet(docs)
	out := make([]models.Document, 0, len(docs))
	for _, d := range docs {
		if _, gone := superseded[d.ID]; !gone {
			out = append(out, d)
		}
	}
	return out
}

// BatchVisible is the all-or-nothing gate: at least one document, every document adviser
// approved, and no document rejected by compliance.
func BatchVisible(docs []models.Document) bool {
	if len(docs) == 0 {
		return false
	}
	for _, d := range docs {
		if d.AdviserDecision != models.DecisionApproved {
			return false
		}
		if d.OSASDecision == models.DecisionRejected {
			return false
		}
	}
	return true
}

// DeriveBatchStatus labels a batch from its compliance counts.
func DeriveBatchStatus(total, approved, rejected int) models.BatchStatus {
	switch {
	case total > 0 && approved == total:
		return models.BatchAllApproved
	case rejected > 0:
		return models.BatchHasRejected
	default:
		return models.BatchPendingReview
	}
}

// SummarizeBatch counts the current documents of a batch and derives its status.
func SummarizeBatch(b models.BatchWithDocuments) models.BatchSummary {
	docs := CurrentBatchDocuments(b.Documents)
	s := models.BatchSummary{
		BatchID:   b.ID,
		OwnerID:   b.OwnerID,
		Title:     b.Title,
		CreatedAt: b.CreatedAt,
	}
	seen := map[models.DocumentType]bool{}
	for _, d := range docs {
		s.TotalCount++
		switch d.OSASDecision {
		case models.DecisionApproved:
			s.ApprovedCount++
		case models.DecisionRejected:
			s.RejectedCount++
		default:
			s.PendingCount++
		}
		if !seen[d.DocumentType] {
			seen[d.DocumentType] = true
			s.DocumentTypes = append(s.DocumentTypes, d.DocumentType)
		}
	}
	s.Status = DeriveBatchStatus(s.TotalCount, s.ApprovedCount, s.RejectedCount)
	return s
}

// VisibleBatches applies the period scope and the visibility gate, then the caller's filters,
// and returns summaries newest first.
func VisibleBatches(batches []models.BatchWithDocuments, filter BatchFilter, period Period) []models.BatchSummary {
	out := make([]models.BatchSummary, 0, len(batches))
	for _, b := range batches {
		if !filter.IncludeArchived && !inPeriod(period, b.CreatedAt) {
			continue
		}
		docs := CurrentBatchDocuments(b.Documents)
		if !BatchVisible(docs) {
			continue
		}
		if filter.OwnerID != "" && b.OwnerID != filter.OwnerID {
			continue
		}
		if filter.DocumentType != "" && !hasType(docs, filter.DocumentType) {
			continue
		}
		if filter.From != nil && b.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && b.CreatedAt.After(*filter.To) {
			continue
		}
		out = append(out, SummarizeBatch(b))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].BatchID < out[j].BatchID
	})
	return out
}

func hasType(docs []models.Document, t models.DocumentType) bool {
	for _, d := range docs {
		if d.DocumentType == t {
			return true
		}
	}
	return false
}
