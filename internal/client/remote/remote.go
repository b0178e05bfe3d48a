// Package remote defines the boundary to the backend server and its
// HTTP implementation. Absence (a 404 on point lookups) is a normal
// nil result, never an error.
package remote

import (
	"context"

	"github.com/oficinahq/garagesync/internal/models"
)

// Backend is the remote store the synchronizer and caches talk to.
type Backend interface {
	// List returns all remote records of a kind, newest first.
	List(ctx context.Context, kind models.Kind) ([]models.Record, error)

	// GetByID returns one record, or nil when the remote has no row.
	GetByID(ctx context.Context, kind models.Kind, id string) (*models.Record, error)

	// Upsert inserts (empty id) or updates (id present) and returns the
	// persisted record including any server-assigned id and created_at.
	Upsert(ctx context.Context, rec models.Record) (models.Record, error)

	// Delete removes a record by id. Idempotent.
	Delete(ctx context.Context, kind models.Kind, id string) error

	// Head returns the kind's change sequence. It grows on every remote
	// mutation and drives cache reloads.
	Head(ctx context.Context, kind models.Kind) (int64, error)

	// Ping probes server reachability.
	Ping(ctx context.Context) error
}
