// Package feed ingests market-data pushes and throttles them into
// at-most-once-per-second evaluation cycles.
package feed

import (
	"context"
	"time"

	"kestrel/internal/domain"
)

// Handler consumes one throttled cycle: the snapshot of every quote
// that arrived since the previous cycle, keyed by code. The snapshot is
// owned by the handler; the subscriber never touches it again.
type Handler func(ctx context.Context, now time.Time, quotes map[string]domain.Quote)

// Source is a stream of quote pushes. Run blocks until ctx is
// cancelled, invoking push for every quote received; it owns reconnect
// behavior internally.
type Source interface {
	Run(ctx context.Context, push func(domain.Quote)) error
}
