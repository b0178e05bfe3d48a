package records

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/oficinahq/garagesync/internal/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	repo := NewPostgresRepository(db)
	repo.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return repo, mock, db
}

func TestList_ReturnsRecords(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"data"}).
		AddRow([]byte(`{"id":"m2","name":"Ana","created_at":"2025-06-02T10:00:00Z"}`)).
		AddRow([]byte(`{"id":"m1","name":"Carlos","created_at":"2025-06-01T10:00:00Z"}`))

	mock.ExpectQuery(`SELECT data FROM records WHERE kind=\$1 ORDER BY created_at DESC`).
		WithArgs(models.KindMechanics).
		WillReturnRows(rows)

	recs, err := repo.List(context.Background(), models.KindMechanics)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("want 2 records, got %d", len(recs))
	}
	if recs[0].ID != "m2" || recs[1].ID != "m1" {
		t.Fatalf("unexpected order: %s, %s", recs[0].ID, recs[1].ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetByID_AbsentReturnsNil(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT data FROM records WHERE kind=\$1 AND id=\$2`).
		WithArgs(models.KindVouchers, "missing").
		WillReturnError(sql.ErrNoRows)

	rec, err := repo.GetByID(context.Background(), models.KindVouchers, "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Fatalf("want nil record, got %+v", rec)
	}
}

func TestUpsert_AssignsIDAndBumpsHead(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO records .* ON CONFLICT \(kind, id\).*DO UPDATE SET data = EXCLUDED\.data`).
		WithArgs(models.KindMechanics, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO sync_heads .* ON CONFLICT \(kind\).*DO UPDATE SET seq = sync_heads\.seq \+ 1`).
		WithArgs(models.KindMechanics).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := models.NewRecord(models.KindMechanics, models.Mechanic{Name: "Carlos"})
	if err != nil {
		t.Fatalf("building record: %v", err)
	}

	stored, err := repo.Upsert(context.Background(), rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.ID == "" {
		t.Fatal("want server-assigned id")
	}
	if stored.CreatedAt.IsZero() {
		t.Fatal("want created_at stamped")
	}
	if !strings.Contains(string(stored.Data), stored.ID) {
		t.Fatalf("id not mirrored into payload: %s", stored.Data)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpsert_ExistingKeepsCreatedAt(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	prior := time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT created_at FROM records WHERE kind=\$1 AND id=\$2`).
		WithArgs(models.KindMechanics, "m1").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(prior))
	mock.ExpectExec(`INSERT INTO records .* ON CONFLICT \(kind, id\)`).
		WithArgs(models.KindMechanics, "m1", prior, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO sync_heads`).
		WithArgs(models.KindMechanics).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := models.RecordFromPayload(models.KindMechanics, []byte(`{"id":"m1","name":"Carlos"}`))
	if err != nil {
		t.Fatalf("building record: %v", err)
	}

	stored, err := repo.Upsert(context.Background(), rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stored.CreatedAt.Equal(prior) {
		t.Fatalf("want created_at %v preserved, got %v", prior, stored.CreatedAt)
	}
}

func TestDelete_AbsentDoesNotBumpHead(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM records WHERE kind=\$1 AND id=\$2`).
		WithArgs(models.KindVouchers, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.Delete(context.Background(), models.KindVouchers, "missing"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDelete_PresentBumpsHead(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM records WHERE kind=\$1 AND id=\$2`).
		WithArgs(models.KindVouchers, "v1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO sync_heads`).
		WithArgs(models.KindVouchers).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.Delete(context.Background(), models.KindVouchers, "v1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestHead_NeverMutatedIsZero(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT seq FROM sync_heads WHERE kind=\$1`).
		WithArgs(models.KindServiceOrders).
		WillReturnError(sql.ErrNoRows)

	seq, err := repo.Head(context.Background(), models.KindServiceOrders)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seq != 0 {
		t.Fatalf("want 0, got %d", seq)
	}
}
