package models

import "time"

// EventApprovalBatch is the document bundle submitted for one event proposal.
type EventApprovalBatch struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Title     string    `json:"title" db:"title"`
	CreatedBy string    `json:"created_by,omitempty" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// BatchWithDocuments is a batch joined with every document row that carries its id.
type BatchWithDocuments struct {
	EventApprovalBatch
	Documents []Document `json:"documents"`
}

// BatchStatus is derived per listing and never stored.
type BatchStatus string

const (
	BatchAllApproved   BatchStatus = "allApproved"
	BatchHasRejected   BatchStatus = "hasRejected"
	BatchPendingReview BatchStatus = "pendingReview"
)

// BatchSummary is what the compliance queue shows for a visible batch.
type BatchSummary struct {
	BatchID       string         `json:"batch_id"`
	OwnerID       string         `json:"owner_id"`
	Title         string         `json:"title"`
	CreatedAt     time.Time      `json:"created_at"`
	Status        BatchStatus    `json:"status"`
	TotalCount    int            `json:"total_count"`
	ApprovedCount int            `json:"approved_count"`
	RejectedCount int            `json:"rejected_count"`
	PendingCount  int            `json:"pending_count"`
	DocumentTypes []DocumentType `json:"document_types"`
}
