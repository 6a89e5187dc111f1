package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"kestrel/internal/domain"
	"kestrel/internal/metrics"
)

// Subscriber merges quote pushes into a cache and releases at most one
// evaluation cycle per wall-clock second. The mutex guards only the
// cache and the throttle marks; the handler always runs unlocked, so a
// slow cycle delays later cycles but never blocks the push path's
// merge.
type Subscriber struct {
	mu         sync.Mutex
	cache      map[string]domain.Quote
	lastSecond string
	lastMinute string

	handler Handler
	tape    *Tape
	now     func() time.Time
	log     *slog.Logger
}

// NewSubscriber creates a subscriber delivering cycles to handler.
func NewSubscriber(handler Handler, log *slog.Logger) *Subscriber {
	return &Subscriber{
		cache:   make(map[string]domain.Quote),
		handler: handler,
		now:     time.Now,
		log:     log,
	}
}

// AttachTape records every merged quote on tape for offline inspection.
func (s *Subscriber) AttachTape(tape *Tape) { s.tape = tape }

// Run pumps the source into the subscriber until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context, source Source) error {
	return source.Run(ctx, func(q domain.Quote) {
		s.Push(ctx, q)
	})
}

// Push merges one quote and, when the throttle second rolls over, runs
// a cycle with everything cached since the last one.
func (s *Subscriber) Push(ctx context.Context, quote domain.Quote) {
	metrics.TicksReceived.Inc()

	s.mu.Lock()
	if quote.Code != "" {
		s.cache[quote.Code] = quote
	}

	now := s.now()
	if s.tape != nil {
		s.tape.Record(now, quote)
	}
	second := now.Format("15:04:05")
	if second == s.lastSecond {
		s.mu.Unlock()
		return
	}
	s.lastSecond = second

	minute := second[:5]
	heartbeat := minute != s.lastMinute
	s.lastMinute = minute

	snapshot := s.cache
	s.cache = make(map[string]domain.Quote, len(snapshot))
	s.mu.Unlock()

	if heartbeat {
		s.log.Info("feed heartbeat", "clock", minute, "cached", len(snapshot))
	}
	start := time.Now()
	s.handler(ctx, now, snapshot)
	metrics.ObserveCycle(start)
}
