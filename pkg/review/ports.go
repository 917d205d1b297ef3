package review

import (
	"context"
	"time"

	"recognition-review-backend/pkg/models"
)

// Store is the document record store. Reads outside WithOwnerLock are snapshots and must not
// feed a status write.
type Store interface {
	GetOwner(ctx context.Context, ownerID string) (*models.Owner, error)
	GetDocument(ctx context.Context, documentID string) (*models.Document, error)
	GetBatch(ctx context.Context, batchID string) (*models.EventApprovalBatch, error)
	// ListOwnerDocuments returns the owner-level (non event-scoped) documents of an owner.
	ListOwnerDocuments(ctx context.Context, ownerID string) ([]models.Document, error)
	// ListBatches returns batches with their documents; an empty ownerID lists all owners.
	ListBatches(ctx context.Context, ownerID string) ([]models.BatchWithDocuments, error)

	CreateOwner(ctx context.Context, owner *models.Owner) error
	CreateBatch(ctx context.Context, batch *models.EventApprovalBatch) error

	// WithOwnerLock runs fn in one transaction holding the owner's row lock. fn's writes are
	// committed together when it returns nil and discarded otherwise. Lock contention surfaces
	// as a CodeConcurrencyConflict error.
	WithOwnerLock(ctx context.Context, ownerID string, fn func(ctx context.Context, tx Tx, owner *models.Owner) error) error

	HealthCheck(ctx context.Context) error
	Close() error
}

// Tx is the view of the store inside an owner lock.
type Tx interface {
	GetDocument(ctx context.Context, documentID string) (*models.Document, error)
	GetBatch(ctx context.Context, batchID string) (*models.EventApprovalBatch, error)
	ListOwnerDocuments(ctx context.Context, ownerID string) ([]models.Document, error)
	ListBatchDocuments(ctx context.Context, batchID string) ([]models.Document, error)

	InsertDocument(ctx context.Context, doc *models.Document) error
	SaveDecision(ctx context.Context, doc *models.Document) error
	SetRecognitionStatus(ctx context.Context, ownerID string, status models.RecognitionStatus, at time.Time) error
	SetLifecycleStage(ctx context.Context, ownerID string, stage models.LifecycleStage) error
}

// Notifier receives one-way notifications after commit. Errors are logged, never propagated.
type Notifier interface {
	Notify(ctx context.Context, n models.DocumentNotification) error
	NotifyEventAction(ctx context.Context, n models.EventNotification) error
}
