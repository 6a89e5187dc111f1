package trader

import (
	"context"
	"fmt"
	"log/slog"

	"kestrel/internal/broker"
	"kestrel/internal/domain"
	"kestrel/internal/metrics"
	"kestrel/internal/state"
)

// Notifier pushes human-facing trade notices. Implementations must not
// block for long; the recorder invokes them inline on the broker's
// callback goroutine.
type Notifier interface {
	Send(ctx context.Context, title, body string)
}

// Recorder is the broker callback: it keeps the position state in step
// with confirmed executions. A buy fill opens the holding counter at
// zero; a sell fill closes the position record and its high-water mark.
type Recorder struct {
	store    *state.Store
	notifier Notifier
	log      *slog.Logger
}

var _ broker.Callback = (*Recorder)(nil)

// NewRecorder creates a recorder. notifier may be nil.
func NewRecorder(store *state.Store, notifier Notifier, log *slog.Logger) *Recorder {
	return &Recorder{store: store, notifier: notifier, log: log}
}

// OnFill applies one confirmed execution to the position state.
func (r *Recorder) OnFill(fill domain.Fill) {
	metrics.Fills.WithLabelValues(string(fill.Side)).Inc()

	switch fill.Side {
	case domain.OrderSideBuy:
		if err := r.store.NewHeld([]string{fill.Code}); err != nil {
			r.log.Error("recording buy fill", "code", fill.Code, "error", err)
		}
	case domain.OrderSideSell:
		if err := r.store.ClosePosition(fill.Code); err != nil {
			r.log.Error("recording sell fill", "code", fill.Code, "error", err)
		}
	}

	r.log.Info("fill",
		"code", fill.Code,
		"side", fill.Side,
		"price", fill.Price,
		"volume", fill.Volume,
		"remark", fill.Remark)
	if r.notifier != nil {
		title := fmt.Sprintf("%s %s", fill.Side, fill.Code)
		body := fmt.Sprintf("%d @ %.2f (%s)", fill.Volume, fill.Price, fill.Remark)
		r.notifier.Send(context.Background(), title, body)
	}
}

// OnOrderError logs and counts a rejection. State is untouched: nothing
// was executed.
func (r *Recorder) OnOrderError(oe domain.OrderError) {
	metrics.OrderErrors.Inc()
	r.log.Warn("order rejected",
		"code", oe.Code,
		"errorId", oe.ErrorID,
		"message", oe.Message)
	if r.notifier != nil {
		r.notifier.Send(context.Background(), "order rejected "+oe.Code, oe.Message)
	}
}
