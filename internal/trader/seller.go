package trader

import (
	"context"
	"log/slog"

	"kestrel/internal/domain"
	"kestrel/internal/metrics"
	"kestrel/internal/rules"
	"kestrel/internal/state"
)

// BarTail supplies the recent daily history an indicator-driven rule
// evaluates against. Implementations return up to n bars, oldest first,
// excluding today, and nil when no history is cached for the code.
type BarTail interface {
	Tail(code string, n int) []domain.Bar
}

// Seller walks held positions once per cycle, advances high-water
// marks, and routes a sell for the first exit rule that fires.
type Seller struct {
	chain   *rules.Chain
	store   *state.Store
	bars    BarTail
	router  *Router
	tailLen int
	log     *slog.Logger
}

// NewSeller creates a seller. tailLen caps the bar history handed to
// each rule evaluation.
func NewSeller(chain *rules.Chain, store *state.Store, bars BarTail, router *Router, tailLen int, log *slog.Logger) *Seller {
	if tailLen <= 0 {
		tailLen = 60
	}
	return &Seller{chain: chain, store: store, bars: bars, router: router, tailLen: tailLen, log: log}
}

// Execute runs one exit pass over the positions using the cycle's quote
// snapshot. date is YYYY-MM-DD, clock is HH:MM. Positions without a
// fresh valid quote are skipped for the cycle.
func (s *Seller) Execute(ctx context.Context, positions []domain.Position, quotes map[string]domain.Quote, date, clock string) {
	if len(positions) == 0 {
		return
	}

	held, err := s.store.HeldDays()
	if err != nil {
		s.log.Error("loading held days", "error", err)
		return
	}
	maxPrices, err := s.store.MaxPrices()
	if err != nil {
		s.log.Error("loading max prices", "error", err)
		return
	}

	for _, pos := range positions {
		quote, ok := quotes[pos.Code]
		if !ok || !quote.Valid() {
			continue
		}
		days, tracked := held[pos.Code]
		if !tracked {
			continue
		}

		// The high-water mark only advances after the entry day, so the
		// entry fill price never seeds a same-day trailing exit.
		maxPrice, hasMax := maxPrices[pos.Code]
		if days > 0 && quote.High > maxPrice {
			if err := s.store.RaiseMaxPrice(pos.Code, quote.High); err != nil {
				s.log.Error("raising max price", "code", pos.Code, "error", err)
			} else {
				maxPrice, hasMax = quote.High, true
			}
		}

		decision, fired := s.chain.Evaluate(rules.Context{
			Code:     pos.Code,
			Quote:    quote,
			Position: pos,
			HeldDays: days,
			MaxPrice: maxPrice,
			HasMax:   hasMax,
			Bars:     s.bars.Tail(pos.Code, s.tailLen),
			Date:     date,
			Clock:    clock,
		})
		if !fired {
			continue
		}
		metrics.RuleFired.WithLabelValues(decision.Rule).Inc()
		if decision.Volume <= 0 {
			s.log.Warn("exit fired with nothing sellable",
				"code", pos.Code, "rule", decision.Rule)
			continue
		}
		s.log.Info("exit rule fired",
			"code", pos.Code,
			"rule", decision.Rule,
			"reason", decision.Reason,
			"heldDays", days,
			"price", quote.LastPrice,
			"volume", decision.Volume)
		if err := s.router.Sell(ctx, quote, decision.Volume, decision.Rule); err != nil {
			s.log.Error("routing sell", "code", pos.Code, "error", err)
		}
	}
}
