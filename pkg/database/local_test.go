package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recognition-review-backend/pkg/models"
	"recognition-review-backend/pkg/review"
)

func seedOwner(t *testing.T, s *LocalStore) *models.Owner {
	t.Helper()
	o := &models.Owner{ID: "org-1", Kind: models.OwnerOrganization, Name: "Debate Society"}
	require.NoError(t, s.CreateOwner(context.Background(), o))
	return o
}

func pendingDoc(id, supersedes string, at time.Time) *models.Document {
	return &models.Document{
		ID:              id,
		OwnerID:         "org-1",
		DocumentType:    "action_plan",
		FilePath:        id + ".pdf",
		SubmittedAt:     at,
		SupersedesID:    supersedes,
		AdviserDecision: models.DecisionPending,
		OSASDecision:    models.DecisionPending,
	}
}

func TestLocalStore_StagedWritesCommitTogether(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore()
	seedOwner(t, s)

	err := s.WithOwnerLock(ctx, "org-1", func(ctx context.Context, tx review.Tx, owner *models.Owner) error {
		require.NoError(t, tx.InsertDocument(ctx, pendingDoc("d1", "", created)))

		// visible inside the transaction, invisible outside until commit
		_, err := tx.GetDocument(ctx, "d1")
		require.NoError(t, err)
		_, err = s.GetDocument(ctx, "d1")
		assert.True(t, errors.Is(err, review.ErrDocumentNotFound))

		return tx.SetRecognitionStatus(ctx, owner.ID, models.Recognized, created)
	})
	require.NoError(t, err)

	_, err = s.GetDocument(ctx, "d1")
	assert.NoError(t, err)
	o, err := s.GetOwner(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, models.Recognized, o.RecognitionStatus)
	require.NotNil(t, o.RecognitionUpdatedAt)
}

func TestLocalStore_FailedTransactionDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore()
	seedOwner(t, s)

	boom := errors.New("boom")
	err := s.WithOwnerLock(ctx, "org-1", func(ctx context.Context, tx review.Tx, owner *models.Owner) error {
		require.NoError(t, tx.InsertDocument(ctx, pendingDoc("d1", "", created)))
		require.NoError(t, tx.SetLifecycleStage(ctx, owner.ID, models.StageEstablished))
		return boom
	})
	assert.Same(t, boom, err)

	docs, err := s.ListOwnerDocuments(ctx, "org-1")
	require.NoError(t, err)
	assert.Empty(t, docs)
	o, _ := s.GetOwner(ctx, "org-1")
	assert.Equal(t, models.StageNew, o.LifecycleStage)
}

func TestLocalStore_SupersededByIsDerived(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore()
	seedOwner(t, s)

	require.NoError(t, s.WithOwnerLock(ctx, "org-1", func(ctx context.Context, tx review.Tx, owner *models.Owner) error {
		if err := tx.InsertDocument(ctx, pendingDoc("d1", "", created)); err != nil {
			return err
		}
		if err := tx.InsertDocument(ctx, pendingDoc("d2", "d1", created.Add(time.Minute))); err != nil {
			return err
		}
		d1, err := tx.GetDocument(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, "d2", d1.SupersededBy, "staged rows count inside the transaction")
		return nil
	}))

	d1, err := s.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "d2", d1.SupersededBy)

	docs, err := s.ListOwnerDocuments(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "d1", docs[0].ID, "ordered by submission time")
	assert.Empty(t, docs[1].SupersededBy)
}

func TestLocalStore_InsertDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore()
	seedOwner(t, s)

	err := s.WithOwnerLock(ctx, "org-1", func(ctx context.Context, tx review.Tx, owner *models.Owner) error {
		require.NoError(t, tx.InsertDocument(ctx, pendingDoc("d1", "", created)))
		return tx.InsertDocument(ctx, pendingDoc("d1", "", created))
	})
	assert.Equal(t, review.CodeInvalidRequest, review.CodeOf(err))
}

func TestLocalStore_LockWaitHonoursContext(t *testing.T) {
	s := NewLocalStore()
	seedOwner(t, s)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithOwnerLock(context.Background(), "org-1", func(ctx context.Context, tx review.Tx, owner *models.Owner) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.WithOwnerLock(ctx, "org-1", func(ctx context.Context, tx review.Tx, owner *models.Owner) error {
		t.Fatal("lock must not be acquired while held")
		return nil
	})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	close(release)
	require.NoError(t, <-done)
}

func TestLocalStore_BatchesAndOwners(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore()
	seedOwner(t, s)

	err := s.CreateOwner(ctx, &models.Owner{ID: "org-1", Kind: models.OwnerOrganization, Name: "dup"})
	assert.Equal(t, review.CodeInvalidRequest, review.CodeOf(err))

	err = s.CreateBatch(ctx, &models.EventApprovalBatch{OwnerID: "ghost", Title: "x"})
	assert.True(t, errors.Is(err, review.ErrOwnerNotFound))

	batch := &models.EventApprovalBatch{OwnerID: "org-1", Title: "Fair"}
	require.NoError(t, s.CreateBatch(ctx, batch))
	require.NotEmpty(t, batch.ID)

	require.NoError(t, s.WithOwnerLock(ctx, "org-1", func(ctx context.Context, tx review.Tx, owner *models.Owner) error {
		d := pendingDoc("e1", "", created)
		d.BatchID = batch.ID
		return tx.InsertDocument(ctx, d)
	}))

	batches, err := s.ListBatches(ctx, "")
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Documents, 1)

	owned, err := s.ListOwnerDocuments(ctx, "org-1")
	require.NoError(t, err)
	assert.Empty(t, owned, "batch documents are not owner-level")

	other, err := s.ListBatches(ctx, "org-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestOpenLocalStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenLocalStore(dir)
	require.NoError(t, err)
	seedOwner(t, s)
	require.NoError(t, s.WithOwnerLock(ctx, "org-1", func(ctx context.Context, tx review.Tx, owner *models.Owner) error {
		if err := tx.InsertDocument(ctx, pendingDoc("d1", "", created)); err != nil {
			return err
		}
		return tx.InsertDocument(ctx, pendingDoc("d2", "d1", created.Add(time.Minute)))
	}))
	require.NoError(t, s.Close())

	reopened, err := OpenLocalStore(dir)
	require.NoError(t, err)
	o, err := reopened.GetOwner(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, "Debate Society", o.Name)

	d1, err := reopened.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "d2", d1.SupersededBy)
	assert.True(t, d1.SubmittedAt.Equal(created))
}

func TestOpenLocalStore_FailedWriteLeavesMemoryUntouched(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenLocalStore(dir)
	require.NoError(t, err)
	seedOwner(t, s)
	require.NoError(t, s.WithOwnerLock(ctx, "org-1", func(ctx context.Context, tx review.Tx, owner *models.Owner) error {
		return tx.InsertDocument(ctx, pendingDoc("d1", "", created))
	}))

	// a directory in place of the temp file makes every write fail
	blocker := filepath.Join(dir, "review.json.tmp")
	require.NoError(t, os.Mkdir(blocker, 0o755))

	approve := func(ctx context.Context, tx review.Tx, owner *models.Owner) error {
		d, err := tx.GetDocument(ctx, "d1")
		if err != nil {
			return err
		}
		d.AdviserDecision = models.DecisionApproved
		if err := tx.SaveDecision(ctx, d); err != nil {
			return err
		}
		return tx.SetRecognitionStatus(ctx, owner.ID, models.Recognized, created)
	}
	err = s.WithOwnerLock(ctx, "org-1", approve)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write local data")

	d1, err := s.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.DecisionPending, d1.AdviserDecision)
	o, err := s.GetOwner(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, models.Unrecognized, o.RecognitionStatus)

	err = s.CreateBatch(ctx, &models.EventApprovalBatch{ID: "b1", OwnerID: "org-1", Title: "Fair"})
	require.Error(t, err)
	_, err = s.GetBatch(ctx, "b1")
	assert.True(t, errors.Is(err, review.ErrBatchNotFound))

	// a read-only transaction has nothing to write
	assert.NoError(t, s.WithOwnerLock(ctx, "org-1", func(ctx context.Context, tx review.Tx, owner *models.Owner) error {
		_, err := tx.ListOwnerDocuments(ctx, owner.ID)
		return err
	}))

	require.NoError(t, os.Remove(blocker))
	require.NoError(t, s.WithOwnerLock(ctx, "org-1", approve))
	d1, err = s.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.DecisionApproved, d1.AdviserDecision)
}

func TestNewDatabase_Selection(t *testing.T) {
	ctx := context.Background()

	_, err := NewDatabase(ctx, DatabaseConfig{}, nil)
	assert.Error(t, err, "neither postgres nor local configured")

	store, err := NewDatabase(ctx, DatabaseConfig{UseLocalDB: true}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)
}
