// Package syncer drains the pending-operation queue against the
// remote backend: one operation at a time, FIFO, tolerating partial
// failure. A failed operation stays queued for the next pass.
package syncer

import (
	"context"
	"sync/atomic"

	"github.com/oficinahq/garagesync/internal/client/localstore"
	"github.com/oficinahq/garagesync/internal/client/remote"
	"github.com/oficinahq/garagesync/internal/common"
	"github.com/oficinahq/garagesync/internal/logging"
	"github.com/oficinahq/garagesync/internal/models"
)

// Connectivity is the slice of the connectivity monitor the syncer
// needs.
type Connectivity interface {
	Online() bool
}

// Progress observes per-operation completion within one pass, before
// the next operation starts. done counts both successes and failures.
type Progress func(done, total int)

// Syncer runs synchronization passes. At most one pass is in flight at
// any time; a pass requested while another runs is a no-op.
type Syncer struct {
	store   localstore.Store
	backend remote.Backend
	conn    Connectivity
	log     logging.Logger

	running atomic.Bool
}

// New constructs a Syncer with explicit dependencies.
func New(store localstore.Store, backend remote.Backend, conn Connectivity, log logging.Logger) *Syncer {
	return &Syncer{store: store, backend: backend, conn: conn, log: log}
}

// Run performs one synchronization pass and reports its outcome.
// It returns common.ErrOffline when disconnected and
// common.ErrSyncInProgress when another pass holds the single-flight
// slot; both leave the queue untouched.
//
// Operations enqueued after the pass snapshots the queue wait for the
// next pass.
func (s *Syncer) Run(ctx context.Context, onProgress Progress) (models.SyncResult, error) {
	if !s.conn.Online() {
		return models.SyncResult{}, common.ErrOffline
	}

	if !s.running.CompareAndSwap(false, true) {
		s.log.Debug(ctx, "sync pass already running, skipping")
		return models.SyncResult{}, common.ErrSyncInProgress
	}
	defer s.running.Store(false)

	ops, err := s.store.PendingOperations(ctx)
	if err != nil {
		s.log.Error(ctx, "reading pending operations", "error", err)
		return models.SyncResult{}, err
	}
	if len(ops) == 0 {
		return models.SyncResult{Success: true}, nil
	}

	s.log.Info(ctx, "sync pass started", "pending", len(ops))

	processed, failed := 0, 0
	for _, op := range ops {
		if err := s.apply(ctx, op); err != nil {
			failed++
			s.log.Warn(ctx, "operation left queued",
				"op", op.Op, "kind", op.Kind, "entity_id", op.EntityID(), "error", err)
		} else {
			if err := s.store.RemovePendingOperation(ctx, op.ID); err != nil {
				// The remote applied the mutation; a dequeue failure here
				// means the operation will be re-submitted next pass, which
				// the upsert/delete semantics absorb.
				s.log.Error(ctx, "dequeueing confirmed operation", "id", op.ID, "error", err)
				failed++
				continue
			}
			processed++
		}
		if onProgress != nil {
			onProgress(processed+failed, len(ops))
		}
	}

	s.log.Info(ctx, "sync pass finished", "processed", processed, "failed", failed)
	return models.SyncResult{Success: failed == 0, Processed: processed, Failed: failed}, nil
}

func (s *Syncer) apply(ctx context.Context, op models.PendingOperation) error {
	switch op.Op {
	case models.OpDelete:
		return s.backend.Delete(ctx, op.Kind, op.EntityID())
	default:
		rec := models.Record{Kind: op.Kind, ID: op.EntityID(), Data: op.Data}
		_, err := s.backend.Upsert(ctx, rec)
		return err
	}
}
