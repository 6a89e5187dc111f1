package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"kestrel/internal/domain"
)

// recorder collects execution reports for assertions.
type recorder struct {
	mu     sync.Mutex
	fills  []domain.Fill
	errors []domain.OrderError
}

func (r *recorder) OnFill(f domain.Fill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fills = append(r.fills, f)
}

func (r *recorder) OnOrderError(oe domain.OrderError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, oe)
}

func (r *recorder) wait(t *testing.T, fills, errors int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		nf, ne := len(r.fills), len(r.errors)
		r.mu.Unlock()
		if nf >= fills && ne >= errors {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d fills / %d errors", fills, errors)
}

func TestPaperBuyThenSettleThenSell(t *testing.T) {
	rec := &recorder{}
	d := NewPaperDelegate(100_000, rec)
	defer d.Close()
	ctx := context.Background()

	buy := domain.Order{
		Code:      "000001.SZ",
		Side:      domain.OrderSideBuy,
		PriceType: domain.PriceTypeLimit,
		Price:     10.00,
		Volume:    500,
		Remark:    "entry",
	}
	if err := d.Submit(ctx, buy); err != nil {
		t.Fatalf("Submit buy: %v", err)
	}
	rec.wait(t, 1, 0)

	asset, _ := d.Asset(ctx)
	if asset.Cash != 95_000 {
		t.Errorf("cash after buy = %v, want 95000", asset.Cash)
	}

	// Same-day sell must bounce: nothing is sellable yet.
	sell := domain.Order{
		Code:      "000001.SZ",
		Side:      domain.OrderSideSell,
		PriceType: domain.PriceTypeLimit,
		Price:     10.50,
		Volume:    500,
	}
	if err := d.Submit(ctx, sell); err != nil {
		t.Fatalf("Submit same-day sell: %v", err)
	}
	rec.wait(t, 1, 1)

	d.Settle()
	if err := d.Submit(ctx, sell); err != nil {
		t.Fatalf("Submit next-day sell: %v", err)
	}
	rec.wait(t, 2, 1)

	asset, _ = d.Asset(ctx)
	if asset.Cash != 100_250 {
		t.Errorf("cash after round trip = %v, want 100250", asset.Cash)
	}
	positions, _ := d.Positions(ctx)
	if len(positions) != 0 {
		t.Errorf("positions after full exit = %v, want none", positions)
	}
}

func TestPaperInsufficientCash(t *testing.T) {
	rec := &recorder{}
	d := NewPaperDelegate(1_000, rec)
	defer d.Close()

	err := d.Submit(context.Background(), domain.Order{
		Code:      "600000.SH",
		Side:      domain.OrderSideBuy,
		PriceType: domain.PriceTypeLimit,
		Price:     10.00,
		Volume:    500,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	rec.wait(t, 0, 1)
	if rec.errors[0].Message != "insufficient cash" {
		t.Errorf("error = %q, want insufficient cash", rec.errors[0].Message)
	}
}

func TestPaperBestFiveFillsAtMark(t *testing.T) {
	rec := &recorder{}
	d := NewPaperDelegate(100_000, rec)
	defer d.Close()
	ctx := context.Background()

	d.Seed("000001.SZ", 10.00, 500)
	d.Mark("000001.SZ", 10.40)

	err := d.Submit(ctx, domain.Order{
		Code:      "000001.SZ",
		Side:      domain.OrderSideSell,
		PriceType: domain.PriceTypeBestFiveCancel,
		Price:     -1,
		Volume:    500,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	rec.wait(t, 1, 0)
	if rec.fills[0].Price != 10.40 {
		t.Errorf("fill price = %v, want the 10.40 mark", rec.fills[0].Price)
	}
}

func TestPaperAveragesCostAcrossBuys(t *testing.T) {
	rec := &recorder{}
	d := NewPaperDelegate(100_000, rec)
	defer d.Close()
	ctx := context.Background()

	for _, price := range []float64{10.00, 12.00} {
		err := d.Submit(ctx, domain.Order{
			Code:      "000001.SZ",
			Side:      domain.OrderSideBuy,
			PriceType: domain.PriceTypeLimit,
			Price:     price,
			Volume:    100,
		})
		if err != nil {
			t.Fatalf("Submit at %v: %v", price, err)
		}
	}
	rec.wait(t, 2, 0)

	positions, _ := d.Positions(ctx)
	if len(positions) != 1 {
		t.Fatalf("positions = %v, want one", positions)
	}
	if p := positions[0]; p.Volume != 200 || p.OpenPrice != 11.00 {
		t.Errorf("position = %+v, want 200 shares at 11.00 average", p)
	}
}
