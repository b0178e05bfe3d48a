package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/pressly/goose/v3"

	"github.com/oficinahq/garagesync/internal/client/migrations"
	"github.com/oficinahq/garagesync/internal/common"
	"github.com/oficinahq/garagesync/internal/dbx"
	"github.com/oficinahq/garagesync/internal/models"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store over a SQLite database. Pending
// operation ids are ULIDs from a monotonic entropy source, so
// ascending id order is the FIFO enqueue order even for operations
// recorded within the same millisecond.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex // guards entropy
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewSQLiteStore wraps an already-migrated database handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:      db,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		now:     time.Now,
	}
}

// Open opens (creating if needed) the local database at dsn and runs
// the embedded migrations.
func Open(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", common.ErrStorage, dsn, err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrating %s: %v", common.ErrStorage, dsn, err)
	}
	return NewSQLiteStore(db), nil
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) newOpID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

func (s *SQLiteStore) GetAll(ctx context.Context, kind models.Kind) ([]models.Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidKind, kind)
	}
	query := `SELECT id, created_at, data FROM records WHERE kind = ? ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, query, kind.String())
	if err != nil {
		return nil, fmt.Errorf("%w: selecting %s: %v", common.ErrStorage, kind, err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		rec := models.Record{Kind: kind}
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &rec.Data); err != nil {
			return nil, fmt.Errorf("%w: scanning %s: %v", common.ErrStorage, kind, err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating %s: %v", common.ErrStorage, kind, err)
	}
	return result, nil
}

func (s *SQLiteStore) Save(ctx context.Context, rec models.Record) (models.Record, error) {
	return s.save(ctx, rec, true)
}

func (s *SQLiteStore) SaveSynced(ctx context.Context, rec models.Record) (models.Record, error) {
	return s.save(ctx, rec, false)
}

func (s *SQLiteStore) save(ctx context.Context, rec models.Record, enqueue bool) (models.Record, error) {
	if err := rec.Validate(); err != nil {
		return models.Record{}, err
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		now := s.now().UTC()

		var priorCreatedAt time.Time
		existed := true
		if rec.ID != "" {
			row := tx.QueryRowContext(ctx,
				`SELECT created_at FROM records WHERE kind = ? AND id = ?`, rec.Kind.String(), rec.ID)
			if err := row.Scan(&priorCreatedAt); err != nil {
				if !errors.Is(err, sql.ErrNoRows) {
					return err
				}
				existed = false
			}
		} else {
			existed = false
		}

		// created_at is assigned at first persistence and kept stable on
		// later upserts.
		switch {
		case existed:
			if err := rec.Stamp(rec.ID, priorCreatedAt); err != nil {
				return err
			}
		case rec.ID == "":
			if err := rec.Stamp(uuid.NewString(), now); err != nil {
				return err
			}
		default:
			createdAt := rec.CreatedAt
			if createdAt.IsZero() {
				createdAt = now
			}
			if err := rec.Stamp(rec.ID, createdAt); err != nil {
				return err
			}
		}

		upsert := `INSERT INTO records (id, kind, created_at, data) VALUES (?, ?, ?, ?)
			ON CONFLICT (kind, id) DO UPDATE SET data = excluded.data`
		if _, err := tx.ExecContext(ctx, upsert,
			rec.ID, rec.Kind.String(), rec.CreatedAt, []byte(rec.Data)); err != nil {
			return err
		}

		if !enqueue {
			return nil
		}

		op := models.OpCreate
		if existed {
			op = models.OpUpdate
		}
		insert := `INSERT INTO pending_operations (id, op, kind, data, ts) VALUES (?, ?, ?, ?, ?)`
		_, err := tx.ExecContext(ctx, insert,
			s.newOpID(), string(op), rec.Kind.String(), []byte(rec.Data), now)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidKind) {
			return models.Record{}, err
		}
		return models.Record{}, fmt.Errorf("%w: saving %s: %v", common.ErrStorage, rec.Kind, err)
	}
	return rec, nil
}

func (s *SQLiteStore) Remove(ctx context.Context, kind models.Kind, id string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", common.ErrInvalidKind, kind)
	}
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM records WHERE kind = ? AND id = ?`, kind.String(), id); err != nil {
			return err
		}

		data, err := json.Marshal(map[string]string{"id": id})
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pending_operations (id, op, kind, data, ts) VALUES (?, ?, ?, ?, ?)`,
			s.newOpID(), string(models.OpDelete), kind.String(), data, s.now().UTC())
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: removing %s %s: %v", common.ErrStorage, kind, id, err)
	}
	return nil
}

func (s *SQLiteStore) RemoveLocalOnly(ctx context.Context, kind models.Kind, id string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", common.ErrInvalidKind, kind)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE kind = ? AND id = ?`, kind.String(), id); err != nil {
		return fmt.Errorf("%w: removing %s %s: %v", common.ErrStorage, kind, id, err)
	}
	return nil
}

func (s *SQLiteStore) GetByID(ctx context.Context, kind models.Kind, id string) (*models.Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidKind, kind)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, data FROM records WHERE kind = ? AND id = ?`, kind.String(), id)

	rec := models.Record{Kind: kind}
	if err := row.Scan(&rec.ID, &rec.CreatedAt, &rec.Data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: selecting %s %s: %v", common.ErrStorage, kind, id, err)
	}
	return &rec, nil
}

func (s *SQLiteStore) PendingOperations(ctx context.Context) ([]models.PendingOperation, error) {
	query := `SELECT id, op, kind, data, ts FROM pending_operations ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: selecting pending operations: %v", common.ErrStorage, err)
	}
	defer rows.Close()

	var result []models.PendingOperation
	for rows.Next() {
		var op models.PendingOperation
		var opType, kind string
		if err := rows.Scan(&op.ID, &opType, &kind, &op.Data, &op.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: scanning pending operation: %v", common.ErrStorage, err)
		}
		op.Op = models.OpType(opType)
		op.Kind = models.Kind(kind)
		result = append(result, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating pending operations: %v", common.ErrStorage, err)
	}
	return result, nil
}

func (s *SQLiteStore) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_operations`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: counting pending operations: %v", common.ErrStorage, err)
	}
	return n, nil
}

func (s *SQLiteStore) RemovePendingOperation(ctx context.Context, opID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_operations WHERE id = ?`, opID); err != nil {
		return fmt.Errorf("%w: removing pending operation %s: %v", common.ErrStorage, opID, err)
	}
	return nil
}

func (s *SQLiteStore) DiscardPendingFor(ctx context.Context, kind models.Kind, id string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", common.ErrInvalidKind, kind)
	}
	query := `DELETE FROM pending_operations WHERE kind = ? AND json_extract(data, '$.id') = ?`
	if _, err := s.db.ExecContext(ctx, query, kind.String(), id); err != nil {
		return fmt.Errorf("%w: discarding pending operations for %s %s: %v", common.ErrStorage, kind, id, err)
	}
	return nil
}

func (s *SQLiteStore) ReplaceAll(ctx context.Context, kind models.Kind, recs []models.Record) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", common.ErrInvalidKind, kind)
	}
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE kind = ?`, kind.String()); err != nil {
			return err
		}
		for _, rec := range recs {
			if rec.ID == "" {
				return fmt.Errorf("record without id in %s mirror", kind)
			}
			createdAt := rec.CreatedAt
			if createdAt.IsZero() {
				createdAt = s.now().UTC()
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO records (id, kind, created_at, data) VALUES (?, ?, ?, ?)`,
				rec.ID, kind.String(), createdAt, []byte(rec.Data)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: replacing %s snapshots: %v", common.ErrStorage, kind, err)
	}
	return nil
}
