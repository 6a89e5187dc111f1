// Package engine coordinates the trading day: pre-open preparation,
// the per-second evaluation cycle, and post-close settlement.
package engine

import (
	"context"
	"log/slog"
	"time"

	"kestrel/internal/bars"
	"kestrel/internal/broker"
	"kestrel/internal/domain"
	"kestrel/internal/market"
	"kestrel/internal/metrics"
	"kestrel/internal/state"
	"kestrel/internal/trader"
	"kestrel/internal/universe"
)

// Sessions bounds the engine's active windows. A cycle outside both
// windows is dropped before any broker call.
type Sessions struct {
	Morning   market.TimeRange
	Afternoon market.TimeRange
}

// Active reports whether the "HH:MM" clock falls in either session.
func (s Sessions) Active(clock string) bool {
	return s.Morning.Contains(clock) || s.Afternoon.Contains(clock)
}

// Engine wires the evaluation cycle: it snapshots the account once per
// cycle, runs the exit pass, then the entry pass. It is the feed
// subscriber's handler.
type Engine struct {
	delegate broker.Delegate
	store    *state.Store
	runner   *state.Runner
	bars     *bars.Service
	pool     *universe.Pool
	seller   *trader.Seller
	buyer    *trader.Buyer
	sessions Sessions
	log      *slog.Logger
}

// New creates an engine over the wired components.
func New(
	delegate broker.Delegate,
	store *state.Store,
	runner *state.Runner,
	barSvc *bars.Service,
	pool *universe.Pool,
	seller *trader.Seller,
	buyer *trader.Buyer,
	sessions Sessions,
	log *slog.Logger,
) *Engine {
	return &Engine{
		delegate: delegate,
		store:    store,
		runner:   runner,
		bars:     barSvc,
		pool:     pool,
		seller:   seller,
		buyer:    buyer,
		sessions: sessions,
		log:      log,
	}
}

// Prepare runs the pre-open jobs for the session date, each at most
// once per day across restarts: reconcile holding counters against the
// broker book, age them by one day, and load bar history for the pool
// and the held codes.
func (e *Engine) Prepare(ctx context.Context, sessionDate time.Time) {
	day := sessionDate.Format("2006-01-02")

	positions, err := e.delegate.Positions(ctx)
	if err != nil {
		e.log.Error("pre-open position snapshot failed", "error", err)
		return
	}
	codes := make([]string, 0, len(positions))
	for _, p := range positions {
		codes = append(codes, p.Code)
	}

	e.runner.RunOnce("sync-held", day, func() {
		if err := e.store.SyncHeld(codes); err != nil {
			e.log.Error("syncing held counters", "error", err)
		}
	})
	e.runner.RunOnce("age-held", day, func() {
		if err := e.store.IncrementAllHeld(); err != nil {
			e.log.Error("aging held counters", "error", err)
		}
	})

	wanted := e.pool.Codes()
	for _, code := range codes {
		if !e.pool.Contains(code) {
			wanted = append(wanted, code)
		}
	}
	if err := e.bars.Prepare(ctx, wanted, sessionDate); err != nil {
		e.log.Error("preparing bar history", "error", err)
	}
	e.log.Info("session prepared", "day", day, "positions", len(positions), "pool", e.pool.Size())
}

// Cycle handles one throttled quote snapshot. It is the feed handler.
func (e *Engine) Cycle(ctx context.Context, now time.Time, quotes map[string]domain.Quote) {
	clock := now.Format("15:04")
	if !market.IsTradingDay(now) || !e.sessions.Active(clock) {
		metrics.EmptyCycles.Inc()
		return
	}

	positions, err := e.delegate.Positions(ctx)
	if err != nil {
		e.log.Error("position snapshot failed", "error", err)
		return
	}
	asset, err := e.delegate.Asset(ctx)
	if err != nil {
		e.log.Error("asset snapshot failed", "error", err)
		return
	}
	metrics.PositionsHeld.Set(float64(len(positions)))
	metrics.AccountCash.Set(asset.Cash)

	date := now.Format("2006-01-02")
	e.seller.Execute(ctx, positions, quotes, date, clock)
	e.buyer.Execute(ctx, e.pool.Codes(), quotes, positions, asset, date)
}
