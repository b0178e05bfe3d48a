package syncer

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oficinahq/garagesync/internal/client/localstore"
	"github.com/oficinahq/garagesync/internal/common"
	"github.com/oficinahq/garagesync/internal/logging"
	"github.com/oficinahq/garagesync/internal/models"

	_ "modernc.org/sqlite"
)

type fakeConn struct{ online bool }

func (f fakeConn) Online() bool { return f.online }

type fakeBackend struct {
	mu      sync.Mutex
	upserts []models.Record
	deletes []string
	failIDs map[string]bool
	block   chan struct{}
}

func (f *fakeBackend) List(ctx context.Context, kind models.Kind) ([]models.Record, error) {
	return nil, nil
}

func (f *fakeBackend) GetByID(ctx context.Context, kind models.Kind, id string) (*models.Record, error) {
	return nil, nil
}

func (f *fakeBackend) Upsert(ctx context.Context, rec models.Record) (models.Record, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[rec.ID] {
		return models.Record{}, errors.New("rejected")
	}
	f.upserts = append(f.upserts, rec)
	return rec, nil
}

func (f *fakeBackend) Delete(ctx context.Context, kind models.Kind, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[id] {
		return errors.New("rejected")
	}
	f.deletes = append(f.deletes, id)
	return nil
}

func (f *fakeBackend) Head(ctx context.Context, kind models.Kind) (int64, error) { return 0, nil }

func (f *fakeBackend) Ping(ctx context.Context) error { return nil }

func setupStore(t *testing.T) localstore.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, localstore.RunMigrations(context.Background(), db))
	return localstore.NewSQLiteStore(db)
}

func enqueueMechanic(t *testing.T, store localstore.Store, name string) models.Record {
	t.Helper()
	rec, err := models.NewRecord(models.KindMechanics, models.Mechanic{Name: name})
	require.NoError(t, err)
	saved, err := store.Save(context.Background(), rec)
	require.NoError(t, err)
	return saved
}

func TestRun_OfflineIsNoOp(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	enqueueMechanic(t, store, "Carlos")

	s := New(store, &fakeBackend{}, fakeConn{online: false}, logging.NewDiscard())
	res, err := s.Run(ctx, nil)

	require.ErrorIs(t, err, common.ErrOffline)
	assert.Equal(t, models.SyncResult{}, res)

	n, err := store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRun_EmptyQueueSucceeds(t *testing.T) {
	store := setupStore(t)

	s := New(store, &fakeBackend{}, fakeConn{online: true}, logging.NewDiscard())
	res, err := s.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{Success: true, Processed: 0, Failed: 0}, res)
}

func TestRun_DrainsQueueInOrder(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	a := enqueueMechanic(t, store, "a")
	b := enqueueMechanic(t, store, "b")
	require.NoError(t, store.Remove(ctx, models.KindMechanics, a.ID))

	backend := &fakeBackend{}
	s := New(store, backend, fakeConn{online: true}, logging.NewDiscard())

	var progress []int
	res, err := s.Run(ctx, func(done, total int) {
		assert.Equal(t, 3, total)
		progress = append(progress, done)
	})

	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{Success: true, Processed: 3, Failed: 0}, res)
	assert.Equal(t, []int{1, 2, 3}, progress)

	require.Len(t, backend.upserts, 2)
	assert.Equal(t, a.ID, backend.upserts[0].ID)
	assert.Equal(t, b.ID, backend.upserts[1].ID)
	assert.Equal(t, []string{a.ID}, backend.deletes)

	n, err := store.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRun_PartialFailureKeepsFailedOpQueued(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	enqueueMechanic(t, store, "one")
	bad := enqueueMechanic(t, store, "two")
	enqueueMechanic(t, store, "three")

	backend := &fakeBackend{failIDs: map[string]bool{bad.ID: true}}
	s := New(store, backend, fakeConn{online: true}, logging.NewDiscard())

	res, err := s.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{Success: false, Processed: 2, Failed: 1}, res)

	ops, err := store.PendingOperations(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, bad.ID, ops[0].EntityID())
}

func TestRun_SecondPassIsIdempotent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	enqueueMechanic(t, store, "only")

	backend := &fakeBackend{}
	s := New(store, backend, fakeConn{online: true}, logging.NewDiscard())

	first, err := s.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{Success: true, Processed: 1, Failed: 0}, first)

	second, err := s.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{Success: true, Processed: 0, Failed: 0}, second)
	assert.Len(t, backend.upserts, 1)
}

func TestRun_SingleFlight(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	enqueueMechanic(t, store, "slow")

	backend := &fakeBackend{block: make(chan struct{})}
	s := New(store, backend, fakeConn{online: true}, logging.NewDiscard())

	done := make(chan models.SyncResult, 1)
	go func() {
		res, runErr := s.Run(ctx, nil)
		assert.NoError(t, runErr)
		done <- res
	}()

	// Wait until the first pass holds the single-flight slot.
	require.Eventually(t, func() bool { return s.running.Load() }, time.Second, time.Millisecond)

	_, err := s.Run(ctx, nil)
	assert.ErrorIs(t, err, common.ErrSyncInProgress)

	close(backend.block)
	first := <-done
	assert.Equal(t, models.SyncResult{Success: true, Processed: 1, Failed: 0}, first)
}
