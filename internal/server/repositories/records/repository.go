// Package records provides the PostgreSQL-backed repository for the
// server-side record storage shared by all entity kinds.
package records

import (
	"context"

	"github.com/oficinahq/garagesync/internal/models"
)

type Repository interface {
	// List returns all records of a kind, newest first.
	List(ctx context.Context, kind models.Kind) ([]models.Record, error)

	// GetByID returns the record or (nil, nil) when absent.
	GetByID(ctx context.Context, kind models.Kind, id string) (*models.Record, error)

	// Upsert inserts or replaces a record by id, assigning the id and
	// creation timestamp when missing, and bumps the kind's change
	// sequence. Returns the stored record.
	Upsert(ctx context.Context, rec models.Record) (*models.Record, error)

	// Delete removes a record. Deleting an absent record is not an
	// error and does not bump the change sequence.
	Delete(ctx context.Context, kind models.Kind, id string) error

	// Head returns the kind's current change sequence, 0 when the kind
	// has never been mutated.
	Head(ctx context.Context, kind models.Kind) (int64, error)
}
