package trader

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"kestrel/internal/domain"
	"kestrel/internal/market"
	"kestrel/internal/metrics"
	"kestrel/internal/state"
)

// Signal picks entry candidates out of the universe for one cycle. It
// returns codes in preference order; the buyer admits from the front.
type Signal interface {
	Name() string
	Select(pool []string, quotes map[string]domain.Quote) []string
}

// LowOpenTurnRed is the default entry signal: the instrument opened
// below the previous close by a bounded gap and has since recovered
// above it. Instruments trading at their limit-up price are excluded
// because the order would not fill.
type LowOpenTurnRed struct {
	MinOpenRatio float64 // lower bound on open/prevClose, e.g. 0.92
	MaxOpenRatio float64 // upper bound on open/prevClose, e.g. 0.99
	MaxGainRatio float64 // upper bound on last/prevClose; 0 disables
}

func (s LowOpenTurnRed) Name() string { return "low-open-turn-red" }

func (s LowOpenTurnRed) Select(pool []string, quotes map[string]domain.Quote) []string {
	var picked []string
	for _, code := range pool {
		q, ok := quotes[code]
		if !ok || !q.Valid() || q.Open <= 0 {
			continue
		}
		ratio := q.Open / q.LastClose
		if ratio < s.MinOpenRatio || ratio > s.MaxOpenRatio {
			continue
		}
		if q.LastPrice <= q.LastClose {
			continue
		}
		if s.MaxGainRatio > 0 && q.LastPrice/q.LastClose > s.MaxGainRatio {
			continue
		}
		if q.LastPrice >= market.LimitUpPrice(code, q.LastClose) {
			continue
		}
		picked = append(picked, code)
	}
	// Cheapest first, so a thin budget still fills whole lots.
	sort.Slice(picked, func(i, j int) bool {
		return quotes[picked[i]].LastPrice < quotes[picked[j]].LastPrice
	})
	return picked
}

// BuyerConfig bounds entry admission.
type BuyerConfig struct {
	Slots      int     `yaml:"slots"`       // max concurrent positions
	SlotCash   float64 `yaml:"slot_cash"`   // budget per position
	CycleLimit int     `yaml:"cycle_limit"` // max new entries per cycle
	MinPrice   float64 `yaml:"min_price"`   // reject penny-range entries
}

// Buyer admits new positions: it runs the entry signal over the
// universe, caps admissions by free slots, available cash, and a
// per-cycle ceiling, sizes each order to whole lots, and never
// considers the same code twice in one day.
type Buyer struct {
	cfg    BuyerConfig
	signal Signal
	store  *state.Store
	router *Router
	log    *slog.Logger
}

// NewBuyer creates a buyer over the signal and router.
func NewBuyer(cfg BuyerConfig, signal Signal, store *state.Store, router *Router, log *slog.Logger) *Buyer {
	return &Buyer{cfg: cfg, signal: signal, store: store, router: router, log: log}
}

// Execute runs one admission pass. positions and asset are the broker
// snapshots taken at the top of the cycle; date is YYYY-MM-DD.
func (b *Buyer) Execute(ctx context.Context, pool []string, quotes map[string]domain.Quote, positions []domain.Position, asset domain.Asset, date string) {
	freeSlots := b.cfg.Slots - len(positions)
	if freeSlots <= 0 {
		return
	}

	selected, err := b.store.Selected(date)
	if err != nil {
		b.log.Error("loading selections", "error", err)
		return
	}
	budgetSlots := int(asset.Cash / b.cfg.SlotCash)

	// The cycle ceiling keeps one wide tick from committing the whole
	// book's remaining capacity in a single pass.
	quota := freeSlots
	if budgetSlots < quota {
		quota = budgetSlots
	}
	if b.cfg.CycleLimit > 0 && b.cfg.CycleLimit < quota {
		quota = b.cfg.CycleLimit
	}
	if quota <= 0 {
		return
	}

	held := make(map[string]bool, len(positions))
	for _, p := range positions {
		held[p.Code] = true
	}

	cash := asset.Cash
	for _, code := range b.signal.Select(pool, quotes) {
		if quota <= 0 {
			return
		}
		if selected[code] {
			metrics.AdmissionSkips.WithLabelValues("selected").Inc()
			continue
		}
		// Every considered code is burned for the day, bought or not;
		// re-chasing a name once skipped is worse than a missed fill.
		if err := b.store.MarkSelected(date, code); err != nil {
			b.log.Error("recording selection", "code", code, "error", err)
			continue
		}
		selected[code] = true

		if held[code] {
			metrics.AdmissionSkips.WithLabelValues("held").Inc()
			continue
		}
		quote := quotes[code]
		if quote.LastPrice < b.cfg.MinPrice {
			metrics.AdmissionSkips.WithLabelValues("min-price").Inc()
			continue
		}

		budget := math.Min(b.cfg.SlotCash, cash)
		volume := market.LotVolume(int64(budget / quote.LastPrice))
		if volume <= 0 {
			metrics.AdmissionSkips.WithLabelValues("lot").Inc()
			continue
		}

		b.log.Info("entry admitted",
			"code", code,
			"signal", b.signal.Name(),
			"price", quote.LastPrice,
			"volume", volume)
		if err := b.router.Buy(ctx, quote, volume, b.signal.Name()); err != nil {
			b.log.Error("routing buy", "code", code, "error", err)
			continue
		}
		cash -= quote.LastPrice * float64(volume)
		quota--
	}
}
