package localstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oficinahq/garagesync/internal/common"
	"github.com/oficinahq/garagesync/internal/models"

	_ "modernc.org/sqlite"
)

func setupStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, RunMigrations(context.Background(), db))
	return NewSQLiteStore(db)
}

func mechanicRecord(t *testing.T, m models.Mechanic) models.Record {
	t.Helper()
	rec, err := models.NewRecord(models.KindMechanics, m)
	require.NoError(t, err)
	return rec
}

func TestSave_GeneratesIDAndEnqueuesCreate(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, mechanicRecord(t, models.Mechanic{Name: "Carlos"}))
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.False(t, saved.CreatedAt.IsZero())

	m, err := models.Decode[models.Mechanic](saved)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, m.ID)
	assert.Equal(t, "Carlos", m.Name)

	ops, err := s.PendingOperations(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, models.OpCreate, ops[0].Op)
	assert.Equal(t, models.KindMechanics, ops[0].Kind)
	assert.Equal(t, saved.ID, ops[0].EntityID())

	n, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSave_ResaveKeepsIDAndEnqueuesUpdate(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	first, err := s.Save(ctx, mechanicRecord(t, models.Mechanic{Name: "Ana"}))
	require.NoError(t, err)

	m, err := models.Decode[models.Mechanic](first)
	require.NoError(t, err)
	m.Specialty = "engines"

	second, err := s.Save(ctx, mechanicRecord(t, m))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.CreatedAt.Equal(first.CreatedAt))

	ops, err := s.PendingOperations(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, models.OpCreate, ops[0].Op)
	assert.Equal(t, models.OpUpdate, ops[1].Op)

	got, err := s.GetByID(ctx, models.KindMechanics, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	updated, err := models.Decode[models.Mechanic](*got)
	require.NoError(t, err)
	assert.Equal(t, "engines", updated.Specialty)
}

func TestSaveSynced_DoesNotTouchQueue(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.SaveSynced(ctx, mechanicRecord(t, models.Mechanic{ID: "m1", Name: "Bia"}))
	require.NoError(t, err)

	n, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := s.GetByID(ctx, models.KindMechanics, "m1")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestSave_RejectsInvalidKind(t *testing.T) {
	s := setupStore(t)

	_, err := s.Save(context.Background(), models.Record{Kind: models.Kind("bikes"), Data: []byte(`{}`)})
	assert.ErrorIs(t, err, common.ErrInvalidKind)
}

func TestPendingOperations_FIFOOrder(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	a, err := s.Save(ctx, mechanicRecord(t, models.Mechanic{Name: "a"}))
	require.NoError(t, err)
	b, err := s.Save(ctx, mechanicRecord(t, models.Mechanic{Name: "b"}))
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, models.KindMechanics, a.ID))

	ops, err := s.PendingOperations(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, a.ID, ops[0].EntityID())
	assert.Equal(t, b.ID, ops[1].EntityID())
	assert.Equal(t, models.OpDelete, ops[2].Op)
	assert.Equal(t, a.ID, ops[2].EntityID())
	// FIFO order is ascending operation id.
	assert.Less(t, ops[0].ID, ops[1].ID)
	assert.Less(t, ops[1].ID, ops[2].ID)
}

func TestRemove_MissingSnapshotStillEnqueuesDelete(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Remove(ctx, models.KindVouchers, "ghost"))

	ops, err := s.PendingOperations(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, models.OpDelete, ops[0].Op)
	assert.Equal(t, "ghost", ops[0].EntityID())
}

func TestRemoveLocalOnly_LeavesNoQueueTrace(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.RemoveLocalOnly(ctx, models.KindMechanics, "missing"))

	saved, err := s.SaveSynced(ctx, mechanicRecord(t, models.Mechanic{ID: "m1", Name: "Eva"}))
	require.NoError(t, err)
	require.NoError(t, s.RemoveLocalOnly(ctx, models.KindMechanics, saved.ID))

	got, err := s.GetByID(ctx, models.KindMechanics, saved.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDiscardPendingFor_RemovesAllOpsForEntity(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, mechanicRecord(t, models.Mechanic{Name: "Gui"}))
	require.NoError(t, err)
	m, err := models.Decode[models.Mechanic](saved)
	require.NoError(t, err)
	_, err = s.Save(ctx, mechanicRecord(t, m))
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, models.KindMechanics, saved.ID))

	other, err := s.Save(ctx, mechanicRecord(t, models.Mechanic{Name: "other"}))
	require.NoError(t, err)

	require.NoError(t, s.DiscardPendingFor(ctx, models.KindMechanics, saved.ID))

	ops, err := s.PendingOperations(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, other.ID, ops[0].EntityID())
}

func TestRemovePendingOperation_Idempotent(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, mechanicRecord(t, models.Mechanic{Name: "Ivo"}))
	require.NoError(t, err)

	ops, err := s.PendingOperations(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)

	require.NoError(t, s.RemovePendingOperation(ctx, ops[0].ID))
	require.NoError(t, s.RemovePendingOperation(ctx, ops[0].ID))

	n, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetAll_NewestFirst(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	old := mechanicRecord(t, models.Mechanic{ID: "m-old", Name: "old"})
	require.NoError(t, old.Stamp("m-old", s.now().Add(-time.Hour)))
	_, err := s.SaveSynced(ctx, old)
	require.NoError(t, err)

	_, err = s.Save(ctx, mechanicRecord(t, models.Mechanic{Name: "new"}))
	require.NoError(t, err)

	recs, err := s.GetAll(ctx, models.KindMechanics)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	newest, err := models.Decode[models.Mechanic](recs[0])
	require.NoError(t, err)
	assert.Equal(t, "new", newest.Name)
}

func TestGetByID_AbsentIsNilNotError(t *testing.T) {
	s := setupStore(t)

	got, err := s.GetByID(context.Background(), models.KindServiceOrders, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReplaceAll_MirrorsRemoteSet(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.SaveSynced(ctx, mechanicRecord(t, models.Mechanic{ID: "stale", Name: "stale"}))
	require.NoError(t, err)

	fresh := mechanicRecord(t, models.Mechanic{ID: "fresh", Name: "fresh"})
	require.NoError(t, fresh.Stamp("fresh", s.now()))
	require.NoError(t, s.ReplaceAll(ctx, models.KindMechanics, []models.Record{fresh}))

	recs, err := s.GetAll(ctx, models.KindMechanics)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "fresh", recs[0].ID)

	n, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
