// Package trader contains the decision layer: entry admission, exit
// evaluation, order routing, and fill bookkeeping. It sits between the
// throttled quote cycle and the broker delegate.
package trader

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"kestrel/internal/broker"
	"kestrel/internal/domain"
	"kestrel/internal/market"
	"kestrel/internal/metrics"
)

// Router translates buy/sell intents into exchange-appropriate orders.
// Shenzhen orders go out as best-five-then-cancel with no explicit
// price. Shanghai orders go out peer-price-first with an explicit
// reference price nudged by a premium. Anything else gets a plain limit
// at the reference price. On every path, an order whose reference price
// breaches the day's limit band downgrades to a plain limit pinned at
// the band price, where a marketable type would be rejected outright.
type Router struct {
	delegate broker.Delegate
	premium  float64
	strategy string
	log      *slog.Logger
}

// NewRouter creates a router over the delegate. premium is the absolute
// price nudge applied to Shanghai reference prices.
func NewRouter(d broker.Delegate, premium float64, strategy string, log *slog.Logger) *Router {
	return &Router{delegate: d, premium: premium, strategy: strategy, log: log}
}

// Buy submits a marketable buy for volume shares.
func (r *Router) Buy(ctx context.Context, quote domain.Quote, volume int64, remark string) error {
	return r.submit(ctx, quote, domain.OrderSideBuy, volume, remark)
}

// Sell submits a marketable sell for volume shares.
func (r *Router) Sell(ctx context.Context, quote domain.Quote, volume int64, remark string) error {
	return r.submit(ctx, quote, domain.OrderSideSell, volume, remark)
}

func (r *Router) submit(ctx context.Context, quote domain.Quote, side domain.OrderSide, volume int64, remark string) error {
	if volume <= 0 {
		return fmt.Errorf("%s %s: non-positive volume %d", side, quote.Code, volume)
	}
	if !quote.Valid() {
		return fmt.Errorf("%s %s: invalid quote", side, quote.Code)
	}

	order := domain.Order{
		Code:     quote.Code,
		Side:     side,
		Volume:   volume,
		Remark:   remark,
		Strategy: r.strategy,
	}
	nudged := r.referencePrice(quote, side)
	up := market.LimitUpPrice(quote.Code, quote.LastClose)
	down := market.LimitDownPrice(quote.Code, quote.LastClose)
	switch {
	case side == domain.OrderSideBuy && nudged >= up:
		order.PriceType = domain.PriceTypeLimit
		order.Price = up
	case side == domain.OrderSideSell && nudged <= down:
		order.PriceType = domain.PriceTypeLimit
		order.Price = down
	default:
		switch market.CodeExchange(quote.Code) {
		case market.ExchangeSSE:
			order.PriceType = domain.PriceTypePeerBest
			order.Price = nudged
		case market.ExchangeSZSE:
			order.PriceType = domain.PriceTypeBestFiveCancel
			order.Price = -1
		default:
			order.PriceType = domain.PriceTypeLimit
			order.Price = nudged
		}
	}

	if err := r.delegate.Submit(ctx, order); err != nil {
		return fmt.Errorf("submit %s %s: %w", side, quote.Code, err)
	}
	metrics.OrdersSubmitted.WithLabelValues(string(side)).Inc()
	r.log.Info("order submitted",
		"code", order.Code,
		"side", order.Side,
		"priceType", order.PriceType,
		"price", order.Price,
		"volume", order.Volume,
		"remark", order.Remark)
	return nil
}

// referencePrice nudges the last price by the premium in the aggressive
// direction, rounded to cents.
func (r *Router) referencePrice(quote domain.Quote, side domain.OrderSide) float64 {
	price := quote.LastPrice
	if side == domain.OrderSideBuy {
		price += r.premium
	} else {
		price -= r.premium
	}
	return math.Round(price*100) / 100
}
