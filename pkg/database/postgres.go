package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"recognition-review-backend/pkg/models"
	"recognition-review-backend/pkg/review"
)

// Postgres error codes that mean "another transaction got there first".
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
)

// PostgresStore PostgreSQL 存储实现
type PostgresStore struct {
	db          *sql.DB
	lockTimeout time.Duration
}

var _ review.Store = (*PostgresStore)(nil)

// NewPostgresStore 打开连接并校验可用性
func NewPostgresStore(ctx context.Context, dsn string, lockTimeout time.Duration) (*PostgresStore, error) {
	// Sanitize DSN to avoid stray CR/LF from env values
	dsn = strings.TrimSpace(dsn)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	// 连接池参数
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return NewPostgresStoreFromDB(db, lockTimeout), nil
}

// NewPostgresStoreFromDB wraps an already opened handle.
func NewPostgresStoreFromDB(db *sql.DB, lockTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, lockTimeout: lockTimeout}
}

// DB exposes the handle for migrations.
func (s *PostgresStore) DB() *sql.DB { return s.db }

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const ownerColumns = `id, kind, name, lifecycle_stage, recognition_status, recognition_updated_at, created_at, updated_at`

// documentColumns joins the row that supersedes d, if any.
const documentColumns = `
	d.id, d.owner_id, COALESCE(d.batch_id, ''), d.document_type, d.file_path,
	COALESCE(d.submitted_by, ''), d.submitted_at, COALESCE(d.supersedes_document_id, ''),
	COALESCE(nx.id, ''),
	d.adviser_decision, d.adviser_decided_at, COALESCE(d.adviser_decider_id, ''),
	d.osas_decision, d.osas_decided_at, COALESCE(d.osas_decider_id, ''),
	COALESCE(d.rejection_reason, ''), COALESCE(d.rejected_stage, ''),
	d.resubmission_deadline, COALESCE(d.deadline_set_by, ''), d.deadline_set_at`

const documentFrom = `
	FROM documents d
	LEFT JOIN documents nx ON nx.supersedes_document_id = d.id`

func scanOwner(row rowScanner) (*models.Owner, error) {
	var o models.Owner
	var recognizedAt sql.NullTime
	if err := row.Scan(&o.ID, &o.Kind, &o.Name, &o.LifecycleStage, &o.RecognitionStatus,
		&recognizedAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.RecognitionUpdatedAt = timePtr(recognizedAt)
	return &o, nil
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var d models.Document
	var adviserAt, osasAt, deadline, deadlineSetAt sql.NullTime
	err := row.Scan(
		&d.ID, &d.OwnerID, &d.BatchID, &d.DocumentType, &d.FilePath,
		&d.SubmittedBy, &d.SubmittedAt, &d.SupersedesID,
		&d.SupersededBy,
		&d.AdviserDecision, &adviserAt, &d.AdviserDeciderID,
		&d.OSASDecision, &osasAt, &d.OSASDeciderID,
		&d.RejectionReason, &d.RejectedStage,
		&deadline, &d.DeadlineSetBy, &deadlineSetAt,
	)
	if err != nil {
		return nil, err
	}
	d.AdviserDecidedAt = timePtr(adviserAt)
	d.OSASDecidedAt = timePtr(osasAt)
	d.ResubmissionDeadline = timePtr(deadline)
	d.DeadlineSetAt = timePtr(deadlineSetAt)
	return &d, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// mapPgError turns lock and serialization failures into ConcurrencyConflict.
func mapPgError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable:
			return review.Conflict(op, err)
		}
	}
	var rerr *review.Error
	if errors.As(err, &rerr) {
		return err
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func getOwner(ctx context.Context, q queryer, ownerID string, forUpdate bool) (*models.Owner, error) {
	query := `SELECT ` + ownerColumns + ` FROM owners WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	o, err := scanOwner(q.QueryRowContext(ctx, query, ownerID))
	if err == sql.ErrNoRows {
		return nil, review.OwnerNotFound(ownerID)
	}
	if err != nil {
		return nil, mapPgError("get owner", err)
	}
	return o, nil
}

func getDocument(ctx context.Context, q queryer, documentID string, forUpdate bool) (*models.Document, error) {
	query := `SELECT ` + documentColumns + documentFrom + ` WHERE d.id = $1`
	if forUpdate {
		query += ` FOR UPDATE OF d`
	}
	d, err := scanDocument(q.QueryRowContext(ctx, query, documentID))
	if err == sql.ErrNoRows {
		return nil, review.DocumentNotFound(documentID)
	}
	if err != nil {
		return nil, mapPgError("get document", err)
	}
	return d, nil
}

func getBatch(ctx context.Context, q queryer, batchID string) (*models.EventApprovalBatch, error) {
	var b models.EventApprovalBatch
	err := q.QueryRowContext(ctx,
		`SELECT id, owner_id, title, COALESCE(created_by, ''), created_at FROM event_batches WHERE id = $1`,
		batchID,
	).Scan(&b.ID, &b.OwnerID, &b.Title, &b.CreatedBy, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, review.BatchNotFound(batchID)
	}
	if err != nil {
		return nil, mapPgError("get batch", err)
	}
	return &b, nil
}

func listDocuments(ctx context.Context, q queryer, op, where string, args ...interface{}) ([]models.Document, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+documentColumns+documentFrom+` WHERE `+where+` ORDER BY d.submitted_at, d.id`, args...)
	if err != nil {
		return nil, mapPgError(op, err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, nil
}

// GetOwner 根据ID获取组织
func (s *PostgresStore) GetOwner(ctx context.Context, ownerID string) (*models.Owner, error) {
	return getOwner(ctx, s.db, ownerID, false)
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	return getDocument(ctx, s.db, documentID, false)
}

func (s *PostgresStore) GetBatch(ctx context.Context, batchID string) (*models.EventApprovalBatch, error) {
	return getBatch(ctx, s.db, batchID)
}

func (s *PostgresStore) ListOwnerDocuments(ctx context.Context, ownerID string) ([]models.Document, error) {
	return listDocuments(ctx, s.db, "list owner documents", `d.owner_id = $1 AND d.batch_id IS NULL`, ownerID)
}

// ListBatches 列出事件批次及其全部文件（两次查询，不做缓存）
func (s *PostgresStore) ListBatches(ctx context.Context, ownerID string) ([]models.BatchWithDocuments, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, COALESCE(created_by, ''), created_at
		FROM event_batches
		WHERE ($1 = '' OR owner_id = $1)
		ORDER BY created_at DESC, id`, ownerID)
	if err != nil {
		return nil, mapPgError("list batches", err)
	}
	defer rows.Close()

	var batches []models.BatchWithDocuments
	index := make(map[string]int)
	for rows.Next() {
		var b models.BatchWithDocuments
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.Title, &b.CreatedBy, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		index[b.ID] = len(batches)
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batches: %w", err)
	}
	if len(batches) == 0 {
		return batches, nil
	}

	ids := make([]string, 0, len(batches))
	for _, b := range batches {
		ids = append(ids, b.ID)
	}
	docs, err := listDocuments(ctx, s.db, "list batch documents", `d.batch_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if i, ok := index[d.BatchID]; ok {
			batches[i].Documents = append(batches[i].Documents, d)
		}
	}
	return batches, nil
}

// CreateOwner 创建组织或理事会
func (s *PostgresStore) CreateOwner(ctx context.Context, owner *models.Owner) error {
	if err := prepareOwner(owner, time.Now()); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO owners (id, kind, name, lifecycle_stage, recognition_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		owner.ID, owner.Kind, owner.Name, owner.LifecycleStage, owner.RecognitionStatus, owner.CreatedAt, owner.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create owner: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateBatch(ctx context.Context, batch *models.EventApprovalBatch) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_batches (id, owner_id, title, created_by, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)`,
		batch.ID, batch.OwnerID, batch.Title, batch.CreatedBy, batch.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

// WithOwnerLock 锁定 owners 行后在同一事务内执行 fn
func (s *PostgresStore) WithOwnerLock(ctx context.Context, ownerID string, fn func(ctx context.Context, tx review.Tx, owner *models.Owner) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapPgError("begin transaction", err)
	}
	defer tx.Rollback()

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return mapPgError("set lock timeout", err)
		}
	}

	owner, err := getOwner(ctx, tx, ownerID, true)
	if err != nil {
		return err
	}
	if err := fn(ctx, &pgTx{tx: tx}, owner); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapPgError("commit owner transaction", err)
	}
	return nil
}

// HealthCheck 健康检查
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close 关闭连接
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// pgTx is the Tx view of a transaction holding the owner row lock.
type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	return getDocument(ctx, t.tx, documentID, true)
}

func (t *pgTx) GetBatch(ctx context.Context, batchID string) (*models.EventApprovalBatch, error) {
	return getBatch(ctx, t.tx, batchID)
}

func (t *pgTx) ListOwnerDocuments(ctx context.Context, ownerID string) ([]models.Document, error) {
	return listDocuments(ctx, t.tx, "list owner documents", `d.owner_id = $1 AND d.batch_id IS NULL`, ownerID)
}

func (t *pgTx) ListBatchDocuments(ctx context.Context, batchID string) ([]models.Document, error) {
	return listDocuments(ctx, t.tx, "list batch documents", `d.batch_id = $1`, batchID)
}

func (t *pgTx) InsertDocument(ctx context.Context, doc *models.Document) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO documents (
			id, owner_id, batch_id, document_type, file_path, submitted_by, submitted_at,
			supersedes_document_id, adviser_decision, osas_decision
		) VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), $9, $10)`,
		doc.ID, doc.OwnerID, doc.BatchID, doc.DocumentType, doc.FilePath, doc.SubmittedBy, doc.SubmittedAt,
		doc.SupersedesID, doc.AdviserDecision, doc.OSASDecision,
	)
	if err != nil {
		return mapPgError("insert document", err)
	}
	return nil
}

// SaveDecision writes the decision and rejection columns of doc.
func (t *pgTx) SaveDecision(ctx context.Context, doc *models.Document) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE documents SET
			adviser_decision = $2, adviser_decided_at = $3, adviser_decider_id = NULLIF($4, ''),
			osas_decision = $5, osas_decided_at = $6, osas_decider_id = NULLIF($7, ''),
			rejection_reason = NULLIF($8, ''), rejected_stage = NULLIF($9, ''),
			resubmission_deadline = $10, deadline_set_by = NULLIF($11, ''), deadline_set_at = $12
		WHERE id = $1`,
		doc.ID,
		doc.AdviserDecision, nullTime(doc.AdviserDecidedAt), doc.AdviserDeciderID,
		doc.OSASDecision, nullTime(doc.OSASDecidedAt), doc.OSASDeciderID,
		doc.RejectionReason, doc.RejectedStage,
		nullTime(doc.ResubmissionDeadline), doc.DeadlineSetBy, nullTime(doc.DeadlineSetAt),
	)
	if err != nil {
		return mapPgError("save decision", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return review.DocumentNotFound(doc.ID)
	}
	return nil
}

func (t *pgTx) SetRecognitionStatus(ctx context.Context, ownerID string, status models.RecognitionStatus, at time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE owners SET recognition_status = $2, recognition_updated_at = $3, updated_at = $3 WHERE id = $1`,
		ownerID, status, at,
	)
	if err != nil {
		return mapPgError("set recognition status", err)
	}
	return nil
}

func (t *pgTx) SetLifecycleStage(ctx context.Context, ownerID string, stage models.LifecycleStage) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE owners SET lifecycle_stage = $2, updated_at = NOW() WHERE id = $1`,
		ownerID, stage,
	)
	if err != nil {
		return mapPgError("set lifecycle stage", err)
	}
	return nil
}
