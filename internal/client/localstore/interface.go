// Package localstore implements the durable local store: entity
// snapshots plus the pending-operation log, persisted in SQLite so
// that both survive process restarts.
package localstore

import (
	"context"

	"github.com/oficinahq/garagesync/internal/models"
)

// Store is the contract of the durable local store. Every mutator
// persists before returning, so a crash immediately after a successful
// call never loses the write.
type Store interface {
	// GetAll returns all locally known records of a kind, newest first.
	GetAll(ctx context.Context, kind models.Kind) ([]models.Record, error)

	// Save upserts a record by id, generating an id when absent, and
	// enqueues a create (no prior snapshot) or update (prior snapshot)
	// pending operation. Returns the record with its resolved id.
	Save(ctx context.Context, rec models.Record) (models.Record, error)

	// SaveSynced upserts a record that the remote already confirmed.
	// The pending-operation queue is not touched. Also used to mirror
	// remote reads into the local snapshot table.
	SaveSynced(ctx context.Context, rec models.Record) (models.Record, error)

	// Remove deletes the local snapshot and enqueues a delete operation
	// carrying the id. Idempotent when the snapshot is absent; the
	// delete operation is enqueued regardless so a remote row that was
	// never mirrored locally is still deleted remotely.
	Remove(ctx context.Context, kind models.Kind, id string) error

	// RemoveLocalOnly deletes the local snapshot without leaving any
	// trace in the pending-operation queue. Idempotent.
	RemoveLocalOnly(ctx context.Context, kind models.Kind, id string) error

	// GetByID returns the snapshot for (kind, id), or nil when absent.
	// Absence is not an error.
	GetByID(ctx context.Context, kind models.Kind, id string) (*models.Record, error)

	// PendingOperations returns the full queue in FIFO enqueue order.
	PendingOperations(ctx context.Context) ([]models.PendingOperation, error)

	// CountPending returns the queue size.
	CountPending(ctx context.Context) (int, error)

	// RemovePendingOperation removes one queue entry. Idempotent.
	RemovePendingOperation(ctx context.Context, opID string) error

	// DiscardPendingFor removes every queued operation that references
	// the given entity. Supports the permanent-delete path.
	DiscardPendingFor(ctx context.Context, kind models.Kind, id string) error

	// ReplaceAll replaces the snapshot set of a kind with the given
	// records in one transaction. The queue is not touched.
	ReplaceAll(ctx context.Context, kind models.Kind, recs []models.Record) error
}
