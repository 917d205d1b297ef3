package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"recognition-review-backend/pkg/models"
	"recognition-review-backend/pkg/review"
)

// LocalStore 本地内存存储，可选 JSON 文件落盘（开发与测试使用）
type LocalStore struct {
	mu      sync.RWMutex
	owners  map[string]models.Owner
	docs    map[string]models.Document
	batches map[string]models.EventApprovalBatch

	locksMu sync.Mutex
	locks   map[string]chan struct{}

	persistMu sync.Mutex
	dataFile  string
}

var _ review.Store = (*LocalStore)(nil)

// localState is the on-disk snapshot layout.
type localState struct {
	Owners    []models.Owner              `json:"owners"`
	Documents []models.Document           `json:"documents"`
	Batches   []models.EventApprovalBatch `json:"batches"`
}

// NewLocalStore 创建纯内存存储
func NewLocalStore() *LocalStore {
	return &LocalStore{
		owners:  make(map[string]models.Owner),
		docs:    make(map[string]models.Document),
		batches: make(map[string]models.EventApprovalBatch),
		locks:   make(map[string]chan struct{}),
	}
}

// OpenLocalStore loads dataDir/review.json if present and rewrites it after every commit.
func OpenLocalStore(dataDir string) (*LocalStore, error) {
	s := NewLocalStore()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	s.dataFile = filepath.Join(dataDir, "review.json")

	raw, err := os.ReadFile(s.dataFile)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read local data: %w", err)
	}
	var state localState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode local data: %w", err)
	}
	for _, o := range state.Owners {
		s.owners[o.ID] = o
	}
	for _, d := range state.Documents {
		s.docs[d.ID] = d
	}
	for _, b := range state.Batches {
		s.batches[b.ID] = b
	}
	return s, nil
}

// CreateOwner 创建组织或理事会
func (s *LocalStore) CreateOwner(ctx context.Context, owner *models.Owner) error {
	if err := prepareOwner(owner, time.Now()); err != nil {
		return err
	}
	return s.commit(func(next *localMaps) error {
		if _, exists := next.owners[owner.ID]; exists {
			return review.InvalidRequest("owner %s already exists", owner.ID)
		}
		next.owners[owner.ID] = *owner
		return nil
	})
}

// GetOwner 根据ID获取组织
func (s *LocalStore) GetOwner(ctx context.Context, ownerID string) (*models.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.owners[ownerID]
	if !ok {
		return nil, review.OwnerNotFound(ownerID)
	}
	return &o, nil
}

func (s *LocalStore) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupDocument(documentID, nil)
}

func (s *LocalStore) GetBatch(ctx context.Context, batchID string) (*models.EventApprovalBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[batchID]
	if !ok {
		return nil, review.BatchNotFound(batchID)
	}
	return &b, nil
}

func (s *LocalStore) ListOwnerDocuments(ctx context.Context, ownerID string) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectDocuments(nil, func(d *models.Document) bool {
		return d.OwnerID == ownerID && !d.EventScoped()
	}), nil
}

// ListBatches 列出事件批次及其全部文件
func (s *LocalStore) ListBatches(ctx context.Context, ownerID string) ([]models.BatchWithDocuments, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.BatchWithDocuments, 0, len(s.batches))
	for _, b := range s.batches {
		if ownerID != "" && b.OwnerID != ownerID {
			continue
		}
		batchID := b.ID
		out = append(out, models.BatchWithDocuments{
			EventApprovalBatch: b,
			Documents: s.selectDocuments(nil, func(d *models.Document) bool {
				return d.BatchID == batchID
			}),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *LocalStore) CreateBatch(ctx context.Context, batch *models.EventApprovalBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now()
	}
	return s.commit(func(next *localMaps) error {
		if _, ok := next.owners[batch.OwnerID]; !ok {
			return review.OwnerNotFound(batch.OwnerID)
		}
		next.batches[batch.ID] = *batch
		return nil
	})
}

// WithOwnerLock 按组织串行化事务；写入先暂存，fn 成功后一次性提交
func (s *LocalStore) WithOwnerLock(ctx context.Context, ownerID string, fn func(ctx context.Context, tx review.Tx, owner *models.Owner) error) error {
	lock := s.ownerLock(ownerID)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock }()

	owner, err := s.GetOwner(ctx, ownerID)
	if err != nil {
		return err
	}

	tx := &localTx{store: s, docs: make(map[string]models.Document), owners: make(map[string]models.Owner)}
	if err := fn(ctx, tx, owner); err != nil {
		return err
	}

	if len(tx.docs) == 0 && len(tx.owners) == 0 {
		return nil
	}
	return s.commit(func(next *localMaps) error {
		for id, d := range tx.docs {
			d.SupersededBy = ""
			next.docs[id] = d
		}
		for id, o := range tx.owners {
			next.owners[id] = o
		}
		return nil
	})
}

func (s *LocalStore) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

func (s *LocalStore) Close() error {
	return s.commit(nil)
}

func (s *LocalStore) ownerLock(ownerID string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[ownerID]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[ownerID] = l
	}
	return l
}

// lookupDocument reads a document, preferring staged rows. Callers hold s.mu.
func (s *LocalStore) lookupDocument(documentID string, staged map[string]models.Document) (*models.Document, error) {
	d, ok := staged[documentID]
	if !ok {
		d, ok = s.docs[documentID]
	}
	if !ok {
		return nil, review.DocumentNotFound(documentID)
	}
	out := d.Clone()
	out.SupersededBy = s.supersederOf(documentID, staged)
	return out, nil
}

func (s *LocalStore) supersederOf(documentID string, staged map[string]models.Document) string {
	for _, d := range staged {
		if d.SupersedesID == documentID {
			return d.ID
		}
	}
	for _, d := range s.docs {
		if d.SupersedesID == documentID {
			return d.ID
		}
	}
	return ""
}

// selectDocuments merges committed and staged rows, applies keep and orders by submission.
// Callers hold s.mu.
func (s *LocalStore) selectDocuments(staged map[string]models.Document, keep func(*models.Document) bool) []models.Document {
	merged := make(map[string]models.Document, len(s.docs)+len(staged))
	for id, d := range s.docs {
		merged[id] = d
	}
	for id, d := range staged {
		merged[id] = d
	}
	out := make([]models.Document, 0)
	for id := range merged {
		d := merged[id]
		if !keep(&d) {
			continue
		}
		c := d.Clone()
		c.SupersededBy = s.supersederOf(id, staged)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// localMaps is a private copy of the committed rows that a commit stages into.
type localMaps struct {
	owners  map[string]models.Owner
	docs    map[string]models.Document
	batches map[string]models.EventApprovalBatch
}

// commit 在副本上应用写入，先落盘再替换内存状态；落盘失败时内存保持不变
func (s *LocalStore) commit(stage func(next *localMaps) error) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	next := &localMaps{
		owners:  make(map[string]models.Owner, len(s.owners)),
		docs:    make(map[string]models.Document, len(s.docs)),
		batches: make(map[string]models.EventApprovalBatch, len(s.batches)),
	}
	for id, o := range s.owners {
		next.owners[id] = o
	}
	for id, d := range s.docs {
		next.docs[id] = d
	}
	for id, b := range s.batches {
		next.batches[id] = b
	}
	s.mu.RUnlock()

	if stage != nil {
		if err := stage(next); err != nil {
			return err
		}
	}
	if err := s.writeFile(next); err != nil {
		return err
	}

	s.mu.Lock()
	s.owners, s.docs, s.batches = next.owners, next.docs, next.batches
	s.mu.Unlock()
	return nil
}

// writeFile 将快照写入本地文件（未配置文件时跳过）
func (s *LocalStore) writeFile(m *localMaps) error {
	if s.dataFile == "" {
		return nil
	}
	state := localState{
		Owners:    make([]models.Owner, 0, len(m.owners)),
		Documents: make([]models.Document, 0, len(m.docs)),
		Batches:   make([]models.EventApprovalBatch, 0, len(m.batches)),
	}
	for _, o := range m.owners {
		state.Owners = append(state.Owners, o)
	}
	for _, d := range m.docs {
		state.Documents = append(state.Documents, d)
	}
	for _, b := range m.batches {
		state.Batches = append(state.Batches, b)
	}

	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode local data: %w", err)
	}
	tmp := s.dataFile + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write local data: %w", err)
	}
	if err := os.Rename(tmp, s.dataFile); err != nil {
		return fmt.Errorf("failed to replace local data: %w", err)
	}
	return nil
}

// localTx stages writes until WithOwnerLock commits them.
type localTx struct {
	store  *LocalStore
	docs   map[string]models.Document
	owners map[string]models.Owner
}

func (t *localTx) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.lookupDocument(documentID, t.docs)
}

func (t *localTx) GetBatch(ctx context.Context, batchID string) (*models.EventApprovalBatch, error) {
	return t.store.GetBatch(ctx, batchID)
}

func (t *localTx) ListOwnerDocuments(ctx context.Context, ownerID string) ([]models.Document, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.selectDocuments(t.docs, func(d *models.Document) bool {
		return d.OwnerID == ownerID && !d.EventScoped()
	}), nil
}

func (t *localTx) ListBatchDocuments(ctx context.Context, batchID string) ([]models.Document, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.selectDocuments(t.docs, func(d *models.Document) bool {
		return d.BatchID == batchID
	}), nil
}

func (t *localTx) InsertDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	t.store.mu.RLock()
	_, exists := t.store.docs[doc.ID]
	t.store.mu.RUnlock()
	if _, staged := t.docs[doc.ID]; exists || staged {
		return review.InvalidRequest("document %s already exists", doc.ID)
	}
	t.docs[doc.ID] = *doc.Clone()
	return nil
}

func (t *localTx) SaveDecision(ctx context.Context, doc *models.Document) error {
	if _, err := t.GetDocument(ctx, doc.ID); err != nil {
		return err
	}
	t.docs[doc.ID] = *doc.Clone()
	return nil
}

func (t *localTx) SetRecognitionStatus(ctx context.Context, ownerID string, status models.RecognitionStatus, at time.Time) error {
	o, err := t.owner(ownerID)
	if err != nil {
		return err
	}
	stamp := at
	o.RecognitionStatus = status
	o.RecognitionUpdatedAt = &stamp
	o.UpdatedAt = at
	t.owners[ownerID] = o
	return nil
}

func (t *localTx) SetLifecycleStage(ctx context.Context, ownerID string, stage models.LifecycleStage) error {
	o, err := t.owner(ownerID)
	if err != nil {
		return err
	}
	o.LifecycleStage = stage
	o.UpdatedAt = time.Now()
	t.owners[ownerID] = o
	return nil
}

func (t *localTx) owner(ownerID string) (models.Owner, error) {
	if o, ok := t.owners[ownerID]; ok {
		return o, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	o, ok := t.store.owners[ownerID]
	if !ok {
		return models.Owner{}, review.OwnerNotFound(ownerID)
	}
	return o, nil
}

// prepareOwner fills defaults for a new owner row.
func prepareOwner(owner *models.Owner, now time.Time) error {
	if owner.ID == "" {
		owner.ID = uuid.NewString()
	}
	if owner.Kind != models.OwnerOrganization && owner.Kind != models.OwnerCouncil {
		return review.InvalidRequest("unknown owner kind %q", owner.Kind)
	}
	if owner.LifecycleStage == "" {
		owner.LifecycleStage = models.StageNew
	}
	if !owner.LifecycleStage.Valid() {
		return review.InvalidRequest("unknown lifecycle stage %q", owner.LifecycleStage)
	}
	if owner.RecognitionStatus == "" {
		owner.RecognitionStatus = models.Unrecognized
	}
	if owner.CreatedAt.IsZero() {
		owner.CreatedAt = now
	}
	owner.UpdatedAt = now
	return nil
}
