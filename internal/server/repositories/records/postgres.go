package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oficinahq/garagesync/internal/dbx"
	"github.com/oficinahq/garagesync/internal/models"
)

// PostgresRepository implements Repository over *sql.DB. Mutations run
// in a transaction so the record change and the sync_heads bump are
// atomic.
type PostgresRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresRepository constructs a repository bound to the given DB.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *PostgresRepository) List(ctx context.Context, kind models.Kind) ([]models.Record, error) {
	query := `SELECT data FROM records WHERE kind=$1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, kind)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		rec, err := models.RecordFromPayload(kind, data)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, kind models.Kind, id string) (*models.Record, error) {
	query := `SELECT data FROM records WHERE kind=$1 AND id=$2`

	var data []byte
	err := r.db.QueryRowContext(ctx, query, kind, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	rec, err := models.RecordFromPayload(kind, data)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, rec models.Record) (*models.Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		id := rec.ID
		createdAt := rec.CreatedAt

		if id != "" {
			var prior time.Time
			err := tx.QueryRowContext(ctx,
				`SELECT created_at FROM records WHERE kind=$1 AND id=$2`, rec.Kind, id).Scan(&prior)
			switch {
			case err == nil:
				createdAt = prior
			case errors.Is(err, sql.ErrNoRows):
			default:
				return fmt.Errorf("db error: %w", err)
			}
		} else {
			id = uuid.NewString()
		}
		if createdAt.IsZero() {
			createdAt = r.now()
		}

		if err := rec.Stamp(id, createdAt); err != nil {
			return err
		}

		query := `
			INSERT INTO records (kind, id, created_at, data)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (kind, id)
			DO UPDATE SET data = EXCLUDED.data
		`
		if _, err := tx.ExecContext(ctx, query, rec.Kind, rec.ID, rec.CreatedAt, []byte(rec.Data)); err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		return bumpHead(ctx, tx, rec.Kind)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, kind models.Kind, id string) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE kind=$1 AND id=$2`, kind, id)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected error: %w", err)
		}
		if n == 0 {
			return nil
		}
		return bumpHead(ctx, tx, kind)
	})
}

func (r *PostgresRepository) Head(ctx context.Context, kind models.Kind) (int64, error) {
	var seq int64
	err := r.db.QueryRowContext(ctx, `SELECT seq FROM sync_heads WHERE kind=$1`, kind).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return seq, nil
}

func bumpHead(ctx context.Context, tx dbx.DBTX, kind models.Kind) error {
	query := `
		INSERT INTO sync_heads (kind, seq)
		VALUES ($1, 1)
		ON CONFLICT (kind)
		DO UPDATE SET seq = sync_heads.seq + 1
	`
	if _, err := tx.ExecContext(ctx, query, kind); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
