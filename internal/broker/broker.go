// Package broker defines the Delegate interface the trading core talks
// to, and provides a paper in-memory implementation and an Alpaca-backed
// one. Fills and rejections arrive asynchronously through a Callback.
package broker

import (
	"context"
	"log/slog"
	"time"

	"kestrel/internal/domain"
)

// Delegate abstracts one brokerage connection. Submit is fire-and-forget:
// the outcome arrives later on the registered Callback, never on the
// submitting goroutine.
type Delegate interface {
	// Name returns the delegate identifier (e.g. "alpaca", "paper").
	Name() string

	// Connect establishes the session. Safe to call again after a drop.
	Connect(ctx context.Context) error

	// Close tears the session down and stops callback delivery.
	Close() error

	// Asset returns a snapshot of the account's cash and total value.
	Asset(ctx context.Context) (domain.Asset, error)

	// Positions returns all current holdings.
	Positions(ctx context.Context) ([]domain.Position, error)

	// Submit sends an order for execution.
	Submit(ctx context.Context, order domain.Order) error
}

// Callback receives asynchronous execution reports. Implementations
// must be safe for calls from the delegate's delivery goroutine, and
// must not call back into the delegate while handling a report.
type Callback interface {
	OnFill(fill domain.Fill)
	OnOrderError(oe domain.OrderError)
}

// Prober keeps a delegate's session alive: it probes the connection at
// a fixed interval and reconnects when the probe fails.
type Prober struct {
	delegate Delegate
	interval time.Duration
	log      *slog.Logger
}

// NewProber creates a prober for the delegate. A zero interval defaults
// to one minute.
func NewProber(d Delegate, interval time.Duration, log *slog.Logger) *Prober {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Prober{delegate: d, interval: interval, log: log}
}

// Run blocks until ctx is cancelled, probing the session with an asset
// query each interval and reconnecting after a failed probe. Reconnect
// failures are logged and retried on the next tick.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := p.delegate.Asset(ctx); err == nil {
			continue
		}
		p.log.Warn("broker session lost, reconnecting", "broker", p.delegate.Name())
		if err := p.delegate.Connect(ctx); err != nil {
			p.log.Error("broker reconnect failed", "broker", p.delegate.Name(), "error", err)
			continue
		}
		p.log.Info("broker session restored", "broker", p.delegate.Name())
	}
}
