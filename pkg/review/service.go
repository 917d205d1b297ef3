package review

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"recognition-review-backend/pkg/models"
)

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = 20 * time.Millisecond
)

// Service runs the review workflow over a Store.
type Service struct {
	store        Store
	catalog      *Catalog
	period       Period
	archive      Period
	notifier     Notifier
	logger       *slog.Logger
	now          func() time.Time
	maxRetries   int
	retryBackoff time.Duration
}

// Option configures a Service.
type Option func(*Service)

func WithCatalog(c *Catalog) Option { return func(s *Service) { s.catalog = c } }

// WithPeriod sets the active-period filter. archive is the relaxed predicate used when a
// listing asks for archived batches; nil means everything.
func WithPeriod(active, archive Period) Option {
	return func(s *Service) {
		s.period = active
		s.archive = archive
	}
}

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithRetry bounds how often a conflicted owner transaction is re-run.
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(s *Service) {
		if maxRetries >= 0 {
			s.maxRetries = maxRetries
		}
		if backoff >= 0 {
			s.retryBackoff = backoff
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:        store,
		catalog:      DefaultCatalog(),
		logger:       slog.Default(),
		now:          time.Now,
		maxRetries:   defaultMaxRetries,
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Catalog() *Catalog { return s.catalog }

// Decide records one approve/reject and recomputes whatever the document feeds, all under the
// owner lock. Nothing is written when any check fails.
func (s *Service) Decide(ctx context.Context, actor *models.Actor, req DecisionRequest) (result *DecisionResult, err error) {
	ctx, span := startSpan(ctx, "review.Decide",
		attribute.String("document.id", req.DocumentID),
		attribute.String("review.role", string(req.Role)),
		attribute.String("review.outcome", string(req.Outcome)),
	)
	start := time.Now()
	roleLabel, outcomeLabel := invalidLabel, invalidLabel
	defer func() {
		decisionsTotal.WithLabelValues(roleLabel, outcomeLabel, resultLabel(err)).Inc()
		decisionDuration.Observe(time.Since(start).Seconds())
		endSpan(span, err)
	}()

	req.Reason = strings.TrimSpace(req.Reason)
	if err = validateRequest(req); err != nil {
		return nil, err
	}
	roleLabel, outcomeLabel = string(req.Role), string(req.Outcome)
	if err = validateRejection(req.DocumentID, req.Outcome, req.Reason, req.Deadline, s.now()); err != nil {
		return nil, err
	}

	snapshot, err := s.store.GetDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	if err = authorize(actor, req.Role, snapshot.OwnerID); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("owner.id", snapshot.OwnerID))

	var event *models.EventNotification
	err = s.withOwnerLock(ctx, snapshot.OwnerID, func(ctx context.Context, tx Tx, owner *models.Owner) error {
		result, event = nil, nil

		doc, err := tx.GetDocument(ctx, req.DocumentID)
		if err != nil {
			return err
		}
		if doc.OwnerID != owner.ID {
			return newError(CodeInvalidState, doc.ID, "document moved to another owner")
		}
		if err := checkTransition(doc, req.Role); err != nil {
			return err
		}
		if req.Role == models.RoleCompliance && doc.EventScoped() {
			if err := checkBatchReady(ctx, tx, doc.BatchID); err != nil {
				return err
			}
		}

		staged := doc.Clone()
		applyDecision(staged, actor, req, s.now())
		if err := tx.SaveDecision(ctx, staged); err != nil {
			return err
		}

		res := &DecisionResult{Document: *staged, OwnerID: owner.ID}
		if staged.EventScoped() {
			summary, batch, err := s.summarizeInTx(ctx, tx, staged.BatchID)
			if err != nil {
				return err
			}
			res.Batch = summary
			if req.Role == models.RoleCompliance && summary.Status != models.BatchPendingReview {
				event = &models.EventNotification{
					OwnerID:    owner.ID,
					Outcome:    req.Outcome,
					EventTitle: batch.Title,
					BatchID:    batch.ID,
					Status:     summary.Status,
				}
			}
		} else {
			ev, err := s.recomputeInTx(ctx, tx, owner)
			if err != nil {
				return err
			}
			res.RecognitionStatus = ev.Status
			res.RecognitionChanged = ev.Status != owner.RecognitionStatus
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("document decided",
		"document_id", result.Document.ID,
		"owner_id", result.OwnerID,
		"role", req.Role,
		"outcome", req.Outcome,
		"actor_id", actor.ID,
		"recognition_changed", result.RecognitionChanged,
	)
	if result.RecognitionChanged {
		s.logger.Info("recognition status changed", "owner_id", result.OwnerID, "status", result.RecognitionStatus)
	}

	s.dispatch(ctx, models.DocumentNotification{
		OwnerID:      result.OwnerID,
		DocumentType: result.Document.DocumentType,
		Outcome:      req.Outcome,
		DocumentID:   result.Document.ID,
		Stage:        req.Role,
		ActorID:      actor.ID,
		Reason:       result.Document.RejectionReason,
		Deadline:     req.Deadline,
	}, event)
	return result, nil
}

// RecomputeRecognition re-derives and persists an owner's recognition status.
func (s *Service) RecomputeRecognition(ctx context.Context, ownerID string) (status models.RecognitionStatus, err error) {
	ctx, span := startSpan(ctx, "review.RecomputeRecognition", attribute.String("owner.id", ownerID))
	defer func() { endSpan(span, err) }()

	if ownerID == "" {
		return "", InvalidRequest("owner id is required")
	}
	var before models.RecognitionStatus
	err = s.withOwnerLock(ctx, ownerID, func(ctx context.Context, tx Tx, owner *models.Owner) error {
		before = owner.RecognitionStatus
		ev, err := s.recomputeInTx(ctx, tx, owner)
		if err != nil {
			return err
		}
		status = ev.Status
		return nil
	})
	if err != nil {
		return "", err
	}
	if status != before {
		s.logger.Info("recognition status changed", "owner_id", ownerID, "from", before, "status", status)
	}
	return status, nil
}

// SetLifecycleStage moves an owner between stages. The required set changes with the stage, so
// recognition is recomputed in the same transaction.
func (s *Service) SetLifecycleStage(ctx context.Context, ownerID string, stage models.LifecycleStage) (status models.RecognitionStatus, err error) {
	ctx, span := startSpan(ctx, "review.SetLifecycleStage",
		attribute.String("owner.id", ownerID),
		attribute.String("owner.stage", string(stage)),
	)
	defer func() { endSpan(span, err) }()

	if !stage.Valid() {
		return "", InvalidRequest("unknown lifecycle stage %q", stage)
	}
	err = s.withOwnerLock(ctx, ownerID, func(ctx context.Context, tx Tx, owner *models.Owner) error {
		if err := tx.SetLifecycleStage(ctx, owner.ID, stage); err != nil {
			return err
		}
		moved := *owner
		moved.LifecycleStage = stage
		ev, err := s.recomputeInTx(ctx, tx, &moved)
		if err != nil {
			return err
		}
		status = ev.Status
		return nil
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("lifecycle stage set", "owner_id", ownerID, "stage", stage, "status", status)
	return status, nil
}

// ListVisibleBatches returns the compliance queue. It reads fresh on every call.
func (s *Service) ListVisibleBatches(ctx context.Context, filter BatchFilter) (out []models.BatchSummary, err error) {
	ctx, span := startSpan(ctx, "review.ListVisibleBatches",
		attribute.String("filter.owner_id", filter.OwnerID),
		attribute.Bool("filter.archived", filter.IncludeArchived),
	)
	defer func() { endSpan(span, err) }()

	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, InvalidRequest("date range ends before it starts")
	}
	batches, err := s.store.ListBatches(ctx, filter.OwnerID)
	if err != nil {
		return nil, err
	}
	period := s.period
	if filter.IncludeArchived {
		period = s.archive
		filter.IncludeArchived = false
	}
	out = VisibleBatches(batches, filter, period)
	visibleBatches.Observe(float64(len(out)))
	span.SetAttributes(attribute.Int("batches.visible", len(out)))
	return out, nil
}

// GetChecklist reports the owner's stored status next to the per-type state of its current
// documents. Both are read under the owner lock so they describe the same commit.
func (s *Service) GetChecklist(ctx context.Context, ownerID string) (*Checklist, error) {
	var cl Checklist
	err := s.withOwnerLock(ctx, ownerID, func(ctx context.Context, tx Tx, owner *models.Owner) error {
		docs, err := tx.ListOwnerDocuments(ctx, owner.ID)
		if err != nil {
			return err
		}
		cl = BuildChecklist(*owner, s.catalog, SelectCurrent(ownerLevel(docs), s.period))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cl, nil
}

// GetOwner resolves a boundary OwnerRef and checks that its kind matches the stored owner.
func (s *Service) GetOwner(ctx context.Context, ref models.OwnerRef) (*models.Owner, error) {
	if ref.IsZero() {
		return nil, InvalidRequest("owner id is required")
	}
	owner, err := s.store.GetOwner(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	if ref.Kind != "" && owner.Kind != ref.Kind {
		return nil, OwnerNotFound(ref.String())
	}
	return owner, nil
}

// RegisterOwner creates an unrecognized owner in the given stage.
func (s *Service) RegisterOwner(ctx context.Context, kind models.OwnerKind, name string, stage models.LifecycleStage) (*models.Owner, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, InvalidRequest("owner name is required")
	}
	if stage == "" {
		stage = models.StageNew
	}
	owner := &models.Owner{
		ID:                uuid.NewString(),
		Kind:              kind,
		Name:              name,
		LifecycleStage:    stage,
		RecognitionStatus: models.Unrecognized,
		CreatedAt:         s.now(),
	}
	if err := s.store.CreateOwner(ctx, owner); err != nil {
		return nil, err
	}
	s.logger.Info("owner registered", "owner_id", owner.ID, "kind", kind, "stage", stage)
	return owner, nil
}

// SubmitRequest files a new document, optionally replacing a rejected one.
type SubmitRequest struct {
	OwnerID              string
	BatchID              string
	DocumentType         models.DocumentType
	FilePath             string
	SupersedesDocumentID string
}

// Submit stores a new pending document. Owner-level submissions recompute recognition so a
// replacement takes effect at once.
func (s *Service) Submit(ctx context.Context, actor *models.Actor, req SubmitRequest) (doc *models.Document, err error) {
	ctx, span := startSpan(ctx, "review.Submit",
		attribute.String("owner.id", req.OwnerID),
		attribute.String("document.type", string(req.DocumentType)),
	)
	defer func() { endSpan(span, err) }()

	if err = s.authorizeOwnerWrite(actor, req.OwnerID); err != nil {
		return nil, err
	}
	if req.DocumentType == "" || strings.TrimSpace(req.FilePath) == "" {
		return nil, InvalidRequest("document type and file path are required")
	}

	err = s.withOwnerLock(ctx, req.OwnerID, func(ctx context.Context, tx Tx, owner *models.Owner) error {
		doc = nil
		if req.BatchID != "" {
			batch, err := tx.GetBatch(ctx, req.BatchID)
			if err != nil {
				return err
			}
			if batch.OwnerID != owner.ID {
				return newError(CodeInvalidRequest, batch.ID, "batch belongs to another owner")
			}
		} else if !s.catalog.Requires(owner.Kind, owner.LifecycleStage, req.DocumentType) {
			return newError(CodeInvalidRequest, string(req.DocumentType), "document type is not required for a %s %s", owner.LifecycleStage, owner.Kind)
		}

		if err := s.checkSupersession(ctx, tx, owner, req); err != nil {
			return err
		}

		staged := &models.Document{
			ID:              uuid.NewString(),
			OwnerID:         owner.ID,
			BatchID:         req.BatchID,
			DocumentType:    req.DocumentType,
			FilePath:        strings.TrimSpace(req.FilePath),
			SubmittedBy:     actor.ID,
			SubmittedAt:     s.now(),
			SupersedesID:    req.SupersedesDocumentID,
			AdviserDecision: models.DecisionPending,
			OSASDecision:    models.DecisionPending,
		}
		if err := tx.InsertDocument(ctx, staged); err != nil {
			return err
		}
		if !staged.EventScoped() {
			if _, err := s.recomputeInTx(ctx, tx, owner); err != nil {
				return err
			}
		}
		doc = staged
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("document submitted",
		"document_id", doc.ID,
		"owner_id", doc.OwnerID,
		"batch_id", doc.BatchID,
		"document_type", doc.DocumentType,
		"supersedes", doc.SupersedesID,
	)
	return doc, nil
}

// checkSupersession allows a replacement for the current document of the same owner, batch and
// type once it is rejected, or for an owner-level one once compliance approved it. Owner-level
// submissions without a link must not shadow a live one.
func (s *Service) checkSupersession(ctx context.Context, tx Tx, owner *models.Owner, req SubmitRequest) error {
	if req.SupersedesDocumentID == "" {
		if req.BatchID != "" {
			return nil
		}
		docs, err := tx.ListOwnerDocuments(ctx, owner.ID)
		if err != nil {
			return err
		}
		if cur, ok := SelectCurrent(ownerLevel(docs), s.period)[req.DocumentType]; ok {
			return newError(CodeInvalidTransition, cur.ID, "a current %s exists; resubmit it with supersedes_document_id", req.DocumentType)
		}
		return nil
	}

	prev, err := tx.GetDocument(ctx, req.SupersedesDocumentID)
	if err != nil {
		return err
	}
	if prev.OwnerID != owner.ID || prev.BatchID != req.BatchID || prev.DocumentType != req.DocumentType {
		return newError(CodeInvalidRequest, prev.ID, "superseded document must share owner, batch and type")
	}
	if prev.Superseded() {
		return newError(CodeInvalidTransition, prev.ID, "document was already superseded by %s", prev.SupersededBy)
	}
	if prev.Rejected() {
		return nil
	}
	// owner-level approvals may be renewed; batch documents are only ever resubmitted
	if !prev.EventScoped() && prev.OSASDecision == models.DecisionApproved {
		return nil
	}
	return newError(CodeInvalidTransition, prev.ID, "document is still under review")
}

// checkBatchReady keeps compliance out of a batch until the whole batch is in its queue.
func checkBatchReady(ctx context.Context, tx Tx, batchID string) error {
	docs, err := tx.ListBatchDocuments(ctx, batchID)
	if err != nil {
		return err
	}
	if !BatchVisible(CurrentBatchDocuments(docs)) {
		return newError(CodeInvalidTransition, batchID, "batch is not ready for compliance review")
	}
	return nil
}

// CreateBatch opens an empty event approval batch for an owner.
func (s *Service) CreateBatch(ctx context.Context, actor *models.Actor, ownerID, title string) (*models.EventApprovalBatch, error) {
	if err := s.authorizeOwnerWrite(actor, ownerID); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, InvalidRequest("batch title is required")
	}
	if _, err := s.store.GetOwner(ctx, ownerID); err != nil {
		return nil, err
	}
	batch := &models.EventApprovalBatch{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedBy: actor.ID,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}
	s.logger.Info("event batch created", "batch_id", batch.ID, "owner_id", ownerID, "title", title)
	return batch, nil
}

// authorizeOwnerWrite lets officers and advisers act for their own owner only.
func (s *Service) authorizeOwnerWrite(actor *models.Actor, ownerID string) error {
	if ownerID == "" {
		return InvalidRequest("owner id is required")
	}
	if actor == nil || actor.ID == "" {
		return &Error{Code: CodeForbidden, Message: "no actor on request"}
	}
	switch actor.Role {
	case models.RoleOfficer, models.RoleAdviser:
		if actor.BoundTo(ownerID) {
			return nil
		}
	}
	return newError(CodeForbidden, ownerID, "actor cannot submit for this owner")
}

func (s *Service) recomputeInTx(ctx context.Context, tx Tx, owner *models.Owner) (Evaluation, error) {
	docs, err := tx.ListOwnerDocuments(ctx, owner.ID)
	if err != nil {
		return Evaluation{}, err
	}
	required := s.catalog.Required(owner.Kind, owner.LifecycleStage)
	ev := EvaluateRecognition(required, SelectCurrent(ownerLevel(docs), s.period))
	if err := tx.SetRecognitionStatus(ctx, owner.ID, ev.Status, s.now()); err != nil {
		return Evaluation{}, err
	}
	recomputesTotal.WithLabelValues(string(ev.Status)).Inc()
	s.logger.Debug("recognition recomputed",
		"owner_id", owner.ID,
		"status", ev.Status,
		"approved", ev.Approved,
		"required", len(required),
	)
	return ev, nil
}

func (s *Service) summarizeInTx(ctx context.Context, tx Tx, batchID string) (*models.BatchSummary, *models.EventApprovalBatch, error) {
	batch, err := tx.GetBatch(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	docs, err := tx.ListBatchDocuments(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	summary := SummarizeBatch(models.BatchWithDocuments{EventApprovalBatch: *batch, Documents: docs})
	return &summary, batch, nil
}

// withOwnerLock re-runs fn on ConcurrencyConflict, up to maxRetries extra attempts.
func (s *Service) withOwnerLock(ctx context.Context, ownerID string, fn func(ctx context.Context, tx Tx, owner *models.Owner) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = s.store.WithOwnerLock(ctx, ownerID, fn)
		if err == nil || !IsConflict(err) || attempt >= s.maxRetries {
			return err
		}
		lockRetries.Inc()
		s.logger.Warn("owner transaction conflicted, retrying", "owner_id", ownerID, "attempt", attempt+1, "error", err)

		wait := s.retryBackoff * time.Duration(attempt+1)
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Service) dispatch(ctx context.Context, doc models.DocumentNotification, event *models.EventNotification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, doc); err != nil {
		notificationFailures.WithLabelValues("document").Inc()
		s.logger.Warn("document notification failed", "document_id", doc.DocumentID, "owner_id", doc.OwnerID, "error", err)
	}
	if event == nil {
		return
	}
	if err := s.notifier.NotifyEventAction(ctx, *event); err != nil {
		notificationFailures.WithLabelValues("event").Inc()
		s.logger.Warn("event notification failed", "batch_id", event.BatchID, "owner_id", event.OwnerID, "error", err)
	}
}
