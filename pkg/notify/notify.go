// Package notify delivers one-way review notifications. Delivery never feeds back into the
// decision that triggered it.
package notify

import (
	"context"
	"log/slog"
	"time"

	"recognition-review-backend/pkg/models"
)

// LogDispatcher writes every notification as a structured log line.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger.With("component", "notify")}
}

func (d *LogDispatcher) Notify(ctx context.Context, n models.DocumentNotification) error {
	attrs := []any{
		"owner_id", n.OwnerID,
		"document_id", n.DocumentID,
		"document_type", n.DocumentType,
		"outcome", n.Outcome,
		"stage", n.Stage,
	}
	if n.Reason != "" {
		attrs = append(attrs, "reason", n.Reason)
	}
	if n.Deadline != nil {
		attrs = append(attrs, "deadline", n.Deadline.Format(time.RFC3339))
	}
	d.logger.InfoContext(ctx, "document decision notification", attrs...)
	return nil
}

func (d *LogDispatcher) NotifyEventAction(ctx context.Context, n models.EventNotification) error {
	d.logger.InfoContext(ctx, "event action notification",
		"owner_id", n.OwnerID,
		"batch_id", n.BatchID,
		"event_title", n.EventTitle,
		"outcome", n.Outcome,
		"status", n.Status,
	)
	return nil
}
