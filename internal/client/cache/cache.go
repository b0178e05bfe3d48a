// Package cache keeps an in-memory view of one entity kind consistent
// with the local store and the remote backend. It is the surface the
// UI layer talks to: load, save, delete, point lookup, manual sync,
// plus observable loading / pending-count / connectivity state.
//
// Two backing modes exist, selected at construction:
//
//   - ModeRemoteAuthoritative: every mutation writes through to the
//     remote and fails fast when offline. No local queue.
//   - ModeOfflineTolerant: mutations hit the durable local store first
//     and are reconciled by the synchronizer when connectivity allows.
//
// A deployment picks one mode per entity kind.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oficinahq/garagesync/internal/client/connectivity"
	"github.com/oficinahq/garagesync/internal/client/localstore"
	"github.com/oficinahq/garagesync/internal/client/remote"
	"github.com/oficinahq/garagesync/internal/client/syncer"
	"github.com/oficinahq/garagesync/internal/common"
	"github.com/oficinahq/garagesync/internal/logging"
	"github.com/oficinahq/garagesync/internal/models"
)

// Mode selects how the cache backs its mutations.
type Mode string

const (
	ModeRemoteAuthoritative Mode = "remote-authoritative"
	ModeOfflineTolerant     Mode = "offline-tolerant"
)

const (
	defaultRefreshInterval = 30 * time.Second
	defaultPollInterval    = 15 * time.Second
)

// Options tunes the cache's background tasks.
type Options struct {
	// RefreshInterval is how often the pending-operation count is
	// re-read from the local store. Defaults to 30s.
	RefreshInterval time.Duration

	// PollInterval is how often the remote change sequence is polled to
	// detect out-of-band mutations. Defaults to 15s.
	PollInterval time.Duration
}

// Cache is the per-entity-kind data hook. It is never the system of
// record: its state is always reconstructable from the local store and
// the remote backend.
type Cache[T models.Entity] struct {
	kind    models.Kind
	mode    Mode
	store   localstore.Store
	backend remote.Backend
	monitor *connectivity.Monitor
	syncer  *syncer.Syncer
	log     logging.Logger
	opts    Options

	mu           sync.Mutex
	entities     []T
	loading      bool
	pendingCount int
	lastSeq      int64

	// loadGen guards against a stale in-flight load clobbering the
	// result of a newer one.
	loadGen atomic.Int64

	runCtx      context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
}

// New constructs a cache for one entity kind. store may be nil in
// remote-authoritative mode; every other dependency is required.
func New[T models.Entity](
	kind models.Kind,
	mode Mode,
	store localstore.Store,
	backend remote.Backend,
	monitor *connectivity.Monitor,
	s *syncer.Syncer,
	log logging.Logger,
	opts Options,
) *Cache[T] {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = defaultRefreshInterval
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Cache[T]{
		kind:    kind,
		mode:    mode,
		store:   store,
		backend: backend,
		monitor: monitor,
		syncer:  s,
		log:     log.With("kind", kind.String()),
		opts:    opts,
		runCtx:  context.Background(),
	}
}

// Start wires the cache to connectivity transitions, kicks off the
// initial load, and starts the background refresh tasks. Close undoes
// all of it.
func (c *Cache[T]) Start(ctx context.Context) {
	c.runCtx, c.cancel = context.WithCancel(ctx)

	c.unsubscribe = c.monitor.Subscribe(func(online bool) {
		if !online {
			// Transition to offline is status-only; nothing destructive.
			return
		}
		c.spawn(c.onReconnect)
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_, _ = c.Load(c.runCtx)
	}()

	c.wg.Add(1)
	go c.refreshLoop(c.runCtx)

	c.wg.Add(1)
	go c.pollLoop(c.runCtx)
}

// Close stops the background tasks and waits for them to finish.
func (c *Cache[T]) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.wg.Wait()
}

// spawn runs fn on a tracked goroutine. Once the run context is
// cancelled no new goroutines start, so Close's wait cannot race a
// late mutation spawning background work.
func (c *Cache[T]) spawn(fn func(ctx context.Context)) {
	ctx := c.runCtx
	if ctx == nil || ctx.Err() != nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(ctx)
	}()
}

// Entities returns a copy of the current in-memory set.
func (c *Cache[T]) Entities() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.entities))
	copy(out, c.entities)
	return out
}

// Loading reports whether a load is in flight.
func (c *Cache[T]) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// PendingCount returns the last observed pending-operation count.
func (c *Cache[T]) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingCount
}

// Connected reports current connectivity.
func (c *Cache[T]) Connected() bool {
	return c.monitor.Online()
}

// Load fetches the authoritative current set and replaces the
// in-memory one. On failure the prior state is left untouched and an
// empty result is returned alongside the error; callers treat it as
// non-fatal.
func (c *Cache[T]) Load(ctx context.Context) ([]T, error) {
	gen := c.loadGen.Add(1)

	c.mu.Lock()
	c.loading = true
	c.mu.Unlock()
	defer func() {
		if c.loadGen.Load() == gen {
			c.mu.Lock()
			c.loading = false
			c.mu.Unlock()
		}
	}()

	recs, fromRemote, err := c.fetch(ctx)
	if err != nil {
		c.log.Error(ctx, "load failed", "error", err)
		return []T{}, err
	}

	items, err := models.DecodeAll[T](recs)
	if err != nil {
		c.log.Error(ctx, "load decode failed", "error", err)
		return []T{}, err
	}

	if c.loadGen.Load() != gen {
		// A newer load started while this one was in flight; its result
		// wins. Discard ours without touching state.
		c.log.Debug(ctx, "discarding stale load result")
		return items, nil
	}

	c.mu.Lock()
	c.entities = items
	c.mu.Unlock()

	if fromRemote && c.mode == ModeOfflineTolerant && c.store != nil {
		if err := c.store.ReplaceAll(ctx, c.kind, recs); err != nil {
			c.log.Warn(ctx, "mirroring remote set locally failed", "error", err)
		}
		c.refreshPending(ctx)
	}

	return items, nil
}

func (c *Cache[T]) fetch(ctx context.Context) (recs []models.Record, fromRemote bool, err error) {
	if c.mode == ModeRemoteAuthoritative || c.monitor.Online() {
		recs, err = c.backend.List(ctx, c.kind)
		return recs, true, err
	}
	recs, err = c.store.GetAll(ctx, c.kind)
	return recs, false, err
}

// Save persists an entity and merges it into the in-memory set.
// Merging is last-write-wins by id: the new payload fully replaces the
// prior entity.
func (c *Cache[T]) Save(ctx context.Context, item T) (T, error) {
	var zero T

	rec, err := models.NewRecord(c.kind, item)
	if err != nil {
		return zero, err
	}

	if c.mode == ModeRemoteAuthoritative {
		if !c.monitor.Online() {
			return zero, common.ErrOffline
		}
		saved, err := c.backend.Upsert(ctx, rec)
		if err != nil {
			return zero, err
		}
		return c.installSaved(saved)
	}

	saved, err := c.store.Save(ctx, rec)
	if err != nil {
		return zero, err
	}
	merged, err := c.installSaved(saved)
	if err != nil {
		return zero, err
	}

	c.refreshPending(ctx)
	c.kickSync()

	return merged, nil
}

func (c *Cache[T]) installSaved(rec models.Record) (T, error) {
	item, err := models.Decode[T](rec)
	if err != nil {
		return item, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entities {
		if c.entities[i].EntityID() == item.EntityID() {
			c.entities[i] = item
			return item, nil
		}
	}
	c.entities = append(c.entities, item)
	return item, nil
}

// Delete removes an entity. In offline-tolerant mode a normal delete
// is queued for reconciliation, while permanent=true removes the local
// snapshot and discards any queued operations for the entity, leaving
// no trace for the synchronizer. In remote-authoritative mode the
// delete writes through and permanent has no extra meaning.
func (c *Cache[T]) Delete(ctx context.Context, id string, permanent bool) error {
	if c.mode == ModeRemoteAuthoritative {
		if !c.monitor.Online() {
			return common.ErrOffline
		}
		if err := c.backend.Delete(ctx, c.kind, id); err != nil {
			return err
		}
		c.removeFromMemory(id)
		return nil
	}

	if permanent {
		if err := c.store.RemoveLocalOnly(ctx, c.kind, id); err != nil {
			return err
		}
		if err := c.store.DiscardPendingFor(ctx, c.kind, id); err != nil {
			return err
		}
	} else {
		if err := c.store.Remove(ctx, c.kind, id); err != nil {
			return err
		}
	}

	c.removeFromMemory(id)
	c.refreshPending(ctx)
	if !permanent {
		c.kickSync()
	}
	return nil
}

func (c *Cache[T]) removeFromMemory(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.entities[:0]
	for _, e := range c.entities {
		if e.EntityID() != id {
			kept = append(kept, e)
		}
	}
	c.entities = kept
}

// GetItem returns one entity by id, preferring the authoritative
// source. It never fails: lookup trouble is logged and yields nil. In
// offline-tolerant mode a remote hit is mirrored into the local
// snapshot so later offline lookups find it.
func (c *Cache[T]) GetItem(ctx context.Context, id string) *T {
	var rec *models.Record
	var err error

	fromRemote := c.mode == ModeRemoteAuthoritative || c.monitor.Online()
	if fromRemote {
		rec, err = c.backend.GetByID(ctx, c.kind, id)
	} else {
		rec, err = c.store.GetByID(ctx, c.kind, id)
	}
	if err != nil {
		c.log.Warn(ctx, "point lookup failed", "id", id, "error", err)
		return nil
	}
	if rec == nil {
		return nil
	}

	if fromRemote && c.mode == ModeOfflineTolerant && c.store != nil {
		if _, err := c.store.SaveSynced(ctx, *rec); err != nil {
			c.log.Warn(ctx, "mirroring remote entity locally failed", "id", id, "error", err)
		}
	}

	item, err := models.Decode[T](*rec)
	if err != nil {
		c.log.Warn(ctx, "point lookup decode failed", "id", id, "error", err)
		return nil
	}
	return &item
}

// SyncNow runs a synchronizer pass on demand, then refreshes the
// pending count and the cached set. Fails fast when disconnected.
func (c *Cache[T]) SyncNow(ctx context.Context) models.SyncResult {
	if !c.monitor.Online() {
		return models.SyncResult{Success: false}
	}

	res, err := c.syncer.Run(ctx, nil)
	if err != nil {
		c.log.Debug(ctx, "sync pass not run", "reason", err)
		return models.SyncResult{}
	}
	c.refreshPending(ctx)
	if _, err := c.Load(ctx); err != nil {
		c.log.Warn(ctx, "reload after sync failed", "error", err)
	}
	return res
}

// kickSync triggers an asynchronous synchronizer pass when connected.
func (c *Cache[T]) kickSync() {
	if c.syncer == nil || !c.monitor.Online() {
		return
	}
	c.spawn(func(ctx context.Context) {
		if _, err := c.syncer.Run(ctx, nil); err != nil {
			c.log.Debug(ctx, "background sync pass not run", "reason", err)
		}
		c.refreshPending(ctx)
	})
}

func (c *Cache[T]) onReconnect(ctx context.Context) {
	if c.mode == ModeOfflineTolerant && c.syncer != nil {
		if n, err := c.store.CountPending(ctx); err == nil && n > 0 {
			c.log.Info(ctx, "back online, draining queue", "pending", n)
			if _, err := c.syncer.Run(ctx, nil); err != nil {
				c.log.Debug(ctx, "reconnect sync pass not run", "reason", err)
			}
		}
	}
	if _, err := c.Load(ctx); err != nil {
		c.log.Warn(ctx, "reload after reconnect failed", "error", err)
	}
	c.refreshPending(ctx)
}

func (c *Cache[T]) refreshPending(ctx context.Context) {
	if c.store == nil {
		return
	}
	n, err := c.store.CountPending(ctx)
	if err != nil {
		c.log.Warn(ctx, "refreshing pending count failed", "error", err)
		return
	}
	c.mu.Lock()
	c.pendingCount = n
	c.mu.Unlock()
}

func (c *Cache[T]) refreshLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.refreshPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// pollLoop watches the remote change sequence and reloads when another
// writer mutated the kind.
func (c *Cache[T]) pollLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !c.monitor.Online() {
				continue
			}
			seq, err := c.backend.Head(ctx, c.kind)
			if err != nil {
				c.log.Debug(ctx, "change poll failed", "error", err)
				continue
			}
			c.mu.Lock()
			changed := seq != c.lastSeq
			c.lastSeq = seq
			c.mu.Unlock()
			if changed {
				if _, err := c.Load(ctx); err != nil {
					c.log.Warn(ctx, "reload after remote change failed", "error", err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
