// Package cli is the interactive client: a small REPL over the cache
// surface for the three entity kinds.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/oficinahq/garagesync/internal/client/cache"
	"github.com/oficinahq/garagesync/internal/client/config"
	"github.com/oficinahq/garagesync/internal/client/connectivity"
	"github.com/oficinahq/garagesync/internal/client/localstore"
	"github.com/oficinahq/garagesync/internal/client/remote"
	"github.com/oficinahq/garagesync/internal/client/syncer"
	"github.com/oficinahq/garagesync/internal/logging"
	"github.com/oficinahq/garagesync/internal/models"
)

// App wires the offline core together for interactive use.
type App struct {
	config  *config.Config
	log     logging.Logger
	store   *localstore.SQLiteStore
	backend *remote.HTTPBackend
	monitor *connectivity.Monitor
	syncer  *syncer.Syncer

	mechanics *cache.Cache[models.Mechanic]
	orders    *cache.Cache[models.ServiceOrder]
	vouchers  *cache.Cache[models.Voucher]
}

// NewApp builds the client from configuration: local store, remote
// backend, connectivity monitor, synchronizer, and one cache per
// entity kind.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	mode := cache.Mode(cfg.Mode)
	switch mode {
	case cache.ModeOfflineTolerant, cache.ModeRemoteAuthoritative:
	default:
		return nil, fmt.Errorf("unknown cache mode %q", cfg.Mode)
	}

	store, err := localstore.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	backend := remote.NewHTTPBackend(cfg.ServerURL, cfg.RemoteTimeout, log)
	monitor := connectivity.New(backend, cfg.OnlineCheckInterval, log)
	s := syncer.New(store, backend, monitor, log)

	opts := cache.Options{
		RefreshInterval: cfg.PendingRefreshInterval,
		PollInterval:    cfg.ChangePollInterval,
	}

	return &App{
		config:    cfg,
		log:       log,
		store:     store,
		backend:   backend,
		monitor:   monitor,
		syncer:    s,
		mechanics: cache.New[models.Mechanic](models.KindMechanics, mode, store, backend, monitor, s, log, opts),
		orders:    cache.New[models.ServiceOrder](models.KindServiceOrders, mode, store, backend, monitor, s, log, opts),
		vouchers:  cache.New[models.Voucher](models.KindVouchers, mode, store, backend, monitor, s, log, opts),
	}, nil
}

// Run starts the background machinery and hands control to the REPL.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.monitor.Start(ctx)
	a.mechanics.Start(ctx)
	a.orders.Start(ctx)
	a.vouchers.Start(ctx)

	defer func() {
		a.mechanics.Close()
		a.orders.Close()
		a.vouchers.Close()
		if err := a.store.Close(); err != nil {
			a.log.Error(ctx, "closing local store", "error", err)
		}
	}()

	runREPL(ctx, a, os.Stdin)
}

// Status summarizes connectivity, mode and queue depth for the prompt.
func (a *App) Status(ctx context.Context) string {
	state := "offline"
	if a.monitor.Online() {
		state = "online"
	}
	n, err := a.store.CountPending(ctx)
	if err != nil {
		n = 0
	}
	return fmt.Sprintf("%s %s pending:%d", state, a.config.Mode, n)
}

func (a *App) List(ctx context.Context, kind models.Kind) error {
	switch kind {
	case models.KindMechanics:
		items, err := a.mechanics.Load(ctx)
		if err != nil {
			return err
		}
		for _, m := range items {
			printlnFn(fmt.Sprintf("%s  %s  %s", m.ID, m.Name, m.Specialty))
		}
	case models.KindServiceOrders:
		items, err := a.orders.Load(ctx)
		if err != nil {
			return err
		}
		for _, o := range items {
			printlnFn(fmt.Sprintf("%s  %s  %s  %.2f  %s", o.ID, o.Client, o.Vehicle, o.Value, o.Status))
		}
	case models.KindVouchers:
		items, err := a.vouchers.Load(ctx)
		if err != nil {
			return err
		}
		for _, v := range items {
			printlnFn(fmt.Sprintf("%s  %s  %.2f  %s", v.ID, v.MechanicName, v.Value, v.Status))
		}
	}
	return nil
}

func (a *App) Add(ctx context.Context, kind models.Kind, args []string) error {
	switch kind {
	case models.KindMechanics:
		if len(args) < 1 {
			return errors.New("usage: add mechanics <name> [specialty]")
		}
		m := models.Mechanic{Name: args[0]}
		if len(args) > 1 {
			m.Specialty = args[1]
		}
		saved, err := a.mechanics.Save(ctx, m)
		if err != nil {
			return err
		}
		printlnFn("saved " + saved.ID)
	case models.KindServiceOrders:
		if len(args) < 3 {
			return errors.New("usage: add service_orders <client> <vehicle> <value>")
		}
		value, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid value %q", args[2])
		}
		saved, err := a.orders.Save(ctx, models.ServiceOrder{
			Client:  args[0],
			Vehicle: args[1],
			Value:   value,
			Status:  "open",
		})
		if err != nil {
			return err
		}
		printlnFn("saved " + saved.ID)
	case models.KindVouchers:
		if len(args) < 2 {
			return errors.New("usage: add vouchers <mechanic_name> <value>")
		}
		value, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid value %q", args[1])
		}
		saved, err := a.vouchers.Save(ctx, models.Voucher{
			MechanicName: args[0],
			Value:        value,
			Status:       "open",
		})
		if err != nil {
			return err
		}
		printlnFn("saved " + saved.ID)
	}
	return nil
}

func (a *App) Get(ctx context.Context, kind models.Kind, id string) error {
	switch kind {
	case models.KindMechanics:
		if m := a.mechanics.GetItem(ctx, id); m != nil {
			printlnFn(fmt.Sprintf("%s  %s  %s  %s", m.ID, m.Name, m.Specialty, m.Phone))
			return nil
		}
	case models.KindServiceOrders:
		if o := a.orders.GetItem(ctx, id); o != nil {
			printlnFn(fmt.Sprintf("%s  %s  %s  %.2f  %s", o.ID, o.Client, o.Vehicle, o.Value, o.Status))
			return nil
		}
	case models.KindVouchers:
		if v := a.vouchers.GetItem(ctx, id); v != nil {
			printlnFn(fmt.Sprintf("%s  %s  %.2f  %s", v.ID, v.MechanicName, v.Value, v.Status))
			return nil
		}
	}
	printlnFn("not found")
	return nil
}

func (a *App) Del(ctx context.Context, kind models.Kind, id string, permanent bool) error {
	switch kind {
	case models.KindMechanics:
		return a.mechanics.Delete(ctx, id, permanent)
	case models.KindServiceOrders:
		return a.orders.Delete(ctx, id, permanent)
	case models.KindVouchers:
		return a.vouchers.Delete(ctx, id, permanent)
	}
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	res := a.mechanics.SyncNow(ctx)
	if !res.Success && res.Processed == 0 && res.Failed == 0 {
		printlnFn("sync skipped: offline or already running")
		return nil
	}
	printlnFn(fmt.Sprintf("sync finished: %d processed, %d failed", res.Processed, res.Failed))
	return nil
}
