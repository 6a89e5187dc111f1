package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"kestrel/internal/domain"
	"kestrel/internal/market"
)

// Compile-time interface check.
var _ Delegate = (*AlpacaDelegate)(nil)

// AlpacaDelegate executes orders through the Alpaca trading API. Codes
// are translated to bare symbols on the way out and back. Exchange
// price conventions that Alpaca has no equivalent for degrade to
// marketable order types: best-five-cancel becomes an IOC market order,
// peer-best becomes a day limit at the carried price.
type AlpacaDelegate struct {
	client    *alpaca.Client
	callback  Callback
	log       *slog.Logger
	apiKey    string
	apiSecret string
	baseURL   string
}

// NewAlpacaDelegate creates a delegate for the given credentials and
// API endpoint (paper or live).
func NewAlpacaDelegate(apiKey, apiSecret, baseURL string, cb Callback, log *slog.Logger) *AlpacaDelegate {
	return &AlpacaDelegate{
		callback:  cb,
		log:       log,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
	}
}

// Name returns "alpaca".
func (d *AlpacaDelegate) Name() string { return "alpaca" }

// Connect builds a fresh API client and verifies it with an account
// query.
func (d *AlpacaDelegate) Connect(ctx context.Context) error {
	d.client = alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    d.apiKey,
		APISecret: d.apiSecret,
		BaseURL:   d.baseURL,
	})
	if _, err := d.client.GetAccount(); err != nil {
		return fmt.Errorf("alpaca connect: %w", err)
	}
	return nil
}

// Close releases the client. The REST API holds no session state.
func (d *AlpacaDelegate) Close() error {
	d.client = nil
	return nil
}

// Asset returns the account's cash and equity.
func (d *AlpacaDelegate) Asset(ctx context.Context) (domain.Asset, error) {
	if d.client == nil {
		return domain.Asset{}, fmt.Errorf("alpaca: not connected")
	}
	acct, err := d.client.GetAccount()
	if err != nil {
		return domain.Asset{}, fmt.Errorf("GetAccount: %w", err)
	}
	return domain.Asset{
		Cash:       acct.Cash.InexactFloat64(),
		TotalValue: acct.Equity.InexactFloat64(),
	}, nil
}

// Positions returns current holdings translated back to suffixed codes.
func (d *AlpacaDelegate) Positions(ctx context.Context) ([]domain.Position, error) {
	if d.client == nil {
		return nil, fmt.Errorf("alpaca: not connected")
	}
	raw, err := d.client.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("GetPositions: %w", err)
	}
	positions := make([]domain.Position, 0, len(raw))
	for _, p := range raw {
		positions = append(positions, domain.Position{
			Code:         market.SymbolToCode(p.Symbol),
			OpenPrice:    p.AvgEntryPrice.InexactFloat64(),
			Volume:       p.Qty.IntPart(),
			UsableVolume: p.QtyAvailable.IntPart(),
		})
	}
	return positions, nil
}

// Submit places the order and spawns a watcher that reports the terminal
// outcome on the callback.
func (d *AlpacaDelegate) Submit(ctx context.Context, order domain.Order) error {
	if d.client == nil {
		return fmt.Errorf("alpaca: not connected")
	}

	qty := decimal.NewFromInt(order.Volume)
	req := alpaca.PlaceOrderRequest{
		Symbol:        market.Symbol(order.Code),
		Qty:           &qty,
		TimeInForce:   alpaca.Day,
		ClientOrderID: uuid.NewString(),
	}
	switch order.Side {
	case domain.OrderSideBuy:
		req.Side = alpaca.Buy
	case domain.OrderSideSell:
		req.Side = alpaca.Sell
	default:
		return fmt.Errorf("unknown order side %q", order.Side)
	}
	switch order.PriceType {
	case domain.PriceTypeBestFiveCancel:
		req.Type = alpaca.Market
		req.TimeInForce = alpaca.IOC
	case domain.PriceTypeLimit, domain.PriceTypePeerBest:
		if order.Price <= 0 {
			return fmt.Errorf("limit order for %s without a price", order.Code)
		}
		req.Type = alpaca.Limit
		limit := decimal.NewFromFloat(order.Price)
		req.LimitPrice = &limit
	default:
		return fmt.Errorf("unknown price type %q", order.PriceType)
	}

	placed, err := d.client.PlaceOrder(req)
	if err != nil {
		return fmt.Errorf("PlaceOrder %s: %w", order.Code, err)
	}

	go d.watch(ctx, placed.ID, order)
	return nil
}

// watch polls an order until it settles, then reports a fill or error.
// Orders still open at the deadline are reported as errors so state is
// never silently wrong.
func (d *AlpacaDelegate) watch(ctx context.Context, orderID string, order domain.Order) {
	deadline := time.Now().Add(2 * time.Minute)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}

		placed, err := d.client.GetOrder(orderID)
		if err != nil {
			d.log.Warn("order poll failed", "code", order.Code, "error", err)
			continue
		}
		switch placed.Status {
		case "filled":
			price := order.Price
			if placed.FilledAvgPrice != nil {
				price = placed.FilledAvgPrice.InexactFloat64()
			}
			d.callback.OnFill(domain.Fill{
				Code:   order.Code,
				Side:   order.Side,
				Volume: placed.FilledQty.IntPart(),
				Price:  price,
				Remark: order.Remark,
			})
			return
		case "canceled", "expired", "rejected":
			d.callback.OnOrderError(domain.OrderError{
				Code:    order.Code,
				Message: fmt.Sprintf("order %s: %s", orderID, placed.Status),
			})
			return
		}
	}
	d.callback.OnOrderError(domain.OrderError{
		Code:    order.Code,
		Message: fmt.Sprintf("order %s: still open after deadline", orderID),
	})
}
