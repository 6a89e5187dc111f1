package broker

import (
	"context"
	"fmt"
	"sync"

	"kestrel/internal/domain"
	"kestrel/internal/market"
)

// Compile-time interface check.
var _ Delegate = (*PaperDelegate)(nil)

// PaperDelegate fills every order immediately against marked prices,
// settling with next-day sellability: shares bought today cannot be
// sold until Settle is called. Execution reports are delivered on a
// single background goroutine so callback order matches fill order.
type PaperDelegate struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]*domain.Position
	marks     map[string]float64
	callback  Callback
	reports   chan func()
	done      chan struct{}
	closed    bool
}

// NewPaperDelegate creates a paper account with the given starting cash.
func NewPaperDelegate(cash float64, cb Callback) *PaperDelegate {
	d := &PaperDelegate{
		cash:      cash,
		positions: make(map[string]*domain.Position),
		marks:     make(map[string]float64),
		callback:  cb,
		reports:   make(chan func(), 64),
		done:      make(chan struct{}),
	}
	go d.deliver()
	return d
}

func (d *PaperDelegate) deliver() {
	defer close(d.done)
	for fn := range d.reports {
		fn()
	}
}

func (d *PaperDelegate) Name() string { return "paper" }

func (d *PaperDelegate) Connect(ctx context.Context) error { return nil }

// Close stops callback delivery after draining pending reports.
func (d *PaperDelegate) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()
	close(d.reports)
	<-d.done
	return nil
}

// Mark sets the reference price used to fill orders that carry no
// explicit price.
func (d *PaperDelegate) Mark(code string, price float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.marks[code] = price
}

func (d *PaperDelegate) Asset(ctx context.Context) (domain.Asset, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := d.cash
	for code, p := range d.positions {
		mark := d.marks[code]
		if mark <= 0 {
			mark = p.OpenPrice
		}
		total += mark * float64(p.Volume)
	}
	return domain.Asset{Cash: d.cash, TotalValue: total}, nil
}

func (d *PaperDelegate) Positions(ctx context.Context) ([]domain.Position, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.Position, 0, len(d.positions))
	for _, p := range d.positions {
		out = append(out, *p)
	}
	return out, nil
}

// Submit fills the order at once. Limit and peer-best orders fill at the
// carried price; best-five orders fill at the current mark.
func (d *PaperDelegate) Submit(ctx context.Context, order domain.Order) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("paper delegate closed")
	}

	price := order.Price
	if order.PriceType == domain.PriceTypeBestFiveCancel || price <= 0 {
		price = d.marks[order.Code]
	}
	if price <= 0 {
		d.report(domain.OrderError{Code: order.Code, ErrorID: 1, Message: "no mark price"})
		return nil
	}

	switch order.Side {
	case domain.OrderSideBuy:
		cost := price * float64(order.Volume)
		if cost > d.cash {
			d.report(domain.OrderError{Code: order.Code, ErrorID: 2, Message: "insufficient cash"})
			return nil
		}
		d.cash -= cost
		p := d.positions[order.Code]
		if p == nil {
			p = &domain.Position{Code: order.Code}
			d.positions[order.Code] = p
		}
		held := float64(p.Volume)
		p.OpenPrice = (p.OpenPrice*held + cost) / (held + float64(order.Volume))
		p.Volume += order.Volume
		d.report(domain.Fill{Code: order.Code, Side: domain.OrderSideBuy, Volume: order.Volume, Price: price, Remark: order.Remark})

	case domain.OrderSideSell:
		p := d.positions[order.Code]
		if p == nil || p.UsableVolume < order.Volume {
			d.report(domain.OrderError{Code: order.Code, ErrorID: 3, Message: "insufficient sellable volume"})
			return nil
		}
		p.Volume -= order.Volume
		p.UsableVolume -= order.Volume
		if p.Volume == 0 {
			delete(d.positions, order.Code)
		}
		d.cash += price * float64(order.Volume)
		d.report(domain.Fill{Code: order.Code, Side: domain.OrderSideSell, Volume: order.Volume, Price: price, Remark: order.Remark})

	default:
		return fmt.Errorf("unknown order side %q", order.Side)
	}
	return nil
}

// Settle rolls the account into the next session: everything held
// becomes sellable.
func (d *PaperDelegate) Settle() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.positions {
		p.UsableVolume = p.Volume
	}
}

// report queues a callback invocation; must be called with mu held.
func (d *PaperDelegate) report(ev any) {
	if d.callback == nil {
		return
	}
	cb := d.callback
	switch v := ev.(type) {
	case domain.Fill:
		d.reports <- func() { cb.OnFill(v) }
	case domain.OrderError:
		d.reports <- func() { cb.OnOrderError(v) }
	}
}

// Seed installs a position directly, already settled, for paper-mode
// startup from a carried-over book. Volume is rounded to whole lots.
func (d *PaperDelegate) Seed(code string, price float64, volume int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	volume = market.LotVolume(volume)
	if volume <= 0 {
		return
	}
	d.positions[code] = &domain.Position{
		Code:         code,
		OpenPrice:    price,
		Volume:       volume,
		UsableVolume: volume,
	}
}
