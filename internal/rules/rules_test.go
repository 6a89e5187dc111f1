package rules

import (
	"testing"

	"kestrel/internal/domain"
	"kestrel/internal/market"
)

func posCtx(price, cost float64, held int) Context {
	return Context{
		Code: "000001.SZ",
		Quote: domain.Quote{
			Code:      "000001.SZ",
			LastPrice: price,
			Open:      price,
			High:      price,
			Low:       price,
			LastClose: cost,
		},
		Position: domain.Position{
			Code:         "000001.SZ",
			OpenPrice:    cost,
			Volume:       1000,
			UsableVolume: 1000,
		},
		HeldDays: held,
		Date:     "2026-09-01",
		Clock:    "10:00",
	}
}

func TestChainFirstMatchWins(t *testing.T) {
	hard := &HardStop{HardStopConfig{RiskLimit: 0.97, EarnLimit: 1.25}}
	sw := &Switch{SwitchConfig{MinHold: 1, DailyUp: 0.003, Floor: 0.80}}

	ctx := posCtx(9.50, 10.00, 2) // both stop-loss and switch-out qualify

	if d, ok := NewChain(hard, sw).Evaluate(ctx); !ok || d.Rule != LabelHardStop {
		t.Fatalf("chain(hard, switch) = %+v, %v; want hard-stop", d, ok)
	}
	if d, ok := NewChain(sw, hard).Evaluate(ctx); !ok || d.Rule != LabelSwitch {
		t.Fatalf("chain(switch, hard) = %+v, %v; want switch-out", d, ok)
	}
}

func TestChainNoRuleFires(t *testing.T) {
	chain := NewChain(
		&HardStop{HardStopConfig{RiskLimit: 0.97, EarnLimit: 1.25}},
		&Switch{SwitchConfig{MinHold: 3, DailyUp: 0.003}},
	)
	if d, ok := chain.Evaluate(posCtx(10.10, 10.00, 1)); ok {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestHardStopDailyTightening(t *testing.T) {
	r := &HardStop{HardStopConfig{RiskLimit: 0.95, RiskTight: 0.01, EarnLimit: 1.30}}

	// Day 1: stop at 9.60; 9.70 survives.
	if _, ok := r.Check(posCtx(9.70, 10.00, 1)); ok {
		t.Errorf("day 1 at 9.70 fired; stop should be 9.60")
	}
	// Day 10: stop risen to 10.50; the same 9.70 is out.
	d, ok := r.Check(posCtx(9.70, 10.00, 10))
	if !ok || d.Volume != 1000 {
		t.Fatalf("day 10 at 9.70: got %+v, %v; want fired with volume 1000", d, ok)
	}
}

func TestHardStopTakeProfit(t *testing.T) {
	r := &HardStop{HardStopConfig{RiskLimit: 0.90, EarnLimit: 1.25}}
	if _, ok := r.Check(posCtx(12.49, 10.00, 1)); ok {
		t.Errorf("fired below take-profit bound")
	}
	if _, ok := r.Check(posCtx(12.50, 10.00, 1)); !ok {
		t.Errorf("no fire at take-profit bound")
	}
}

func TestHardStopSameDayExcluded(t *testing.T) {
	r := &HardStop{HardStopConfig{RiskLimit: 0.97, EarnLimit: 1.25}}
	if d, ok := r.Check(posCtx(9.00, 10.00, 0)); ok {
		t.Fatalf("fired on entry day: %+v", d)
	}
}

func TestSwitchOut(t *testing.T) {
	r := &Switch{SwitchConfig{MinHold: 2, DailyUp: 0.003, Floor: 0.80}}

	// Held 2 days, bar is cost*1.006 = 10.06. Flat price rotates out.
	d, ok := r.Check(posCtx(10.00, 10.00, 2))
	if !ok || d.Rule != LabelSwitch {
		t.Fatalf("flat position after min hold: got %+v, %v; want switch-out", d, ok)
	}

	// At or above the bar the position is kept.
	if _, ok := r.Check(posCtx(10.06, 10.00, 2)); ok {
		t.Errorf("fired with profit bar met")
	}
	// At or below the floor the stop-loss owns the exit.
	if _, ok := r.Check(posCtx(8.00, 10.00, 2)); ok {
		t.Errorf("fired below floor")
	}
	// Before the minimum hold nothing happens.
	if _, ok := r.Check(posCtx(10.00, 10.00, 1)); ok {
		t.Errorf("fired before min hold")
	}
}

func TestSwitchWindow(t *testing.T) {
	r := &Switch{SwitchConfig{
		Window:  market.TimeRange{Begin: "14:30", End: "14:57"},
		MinHold: 1,
		DailyUp: 0.003,
	}}
	ctx := posCtx(10.00, 10.00, 2)

	ctx.Clock = "10:00"
	if _, ok := r.Check(ctx); ok {
		t.Errorf("fired outside window")
	}
	ctx.Clock = "14:45"
	if _, ok := r.Check(ctx); !ok {
		t.Errorf("no fire inside window")
	}
}

func TestPickTierHalfOpen(t *testing.T) {
	tiers := []Tier{
		{IncMin: 1.02, IncMax: 1.05, Ratio: 0.02},
		{IncMin: 1.05, IncMax: 1.10, Ratio: 0.05},
	}

	if tier, ok := pickTier(tiers, 10.00, 10.50); !ok || tier.Ratio != 0.05 {
		t.Errorf("max 10.50 picked %+v, %v; boundary belongs to the upper tier", tier, ok)
	}
	if tier, ok := pickTier(tiers, 10.00, 10.20); !ok || tier.Ratio != 0.02 {
		t.Errorf("max 10.20 picked %+v, %v; want lower tier", tier, ok)
	}
	if _, ok := pickTier(tiers, 10.00, 11.00); ok {
		t.Errorf("max at upper bound 11.00 matched; bands are half-open")
	}
	if _, ok := pickTier(tiers, 10.00, 10.10); ok {
		t.Errorf("max below first band matched")
	}
}

func TestFallTiered(t *testing.T) {
	r := &Fall{FallConfig{Tiers: []Tier{
		{IncMin: 1.02, IncMax: 1.10, Ratio: 0.03},
	}}}

	ctx := posCtx(10.16, 10.00, 2)
	ctx.MaxPrice, ctx.HasMax = 10.50, true
	// Tolerance is 10.50*0.97 = 10.185; 10.16 is below it.
	d, ok := r.Check(ctx)
	if !ok || d.Rule != LabelFall {
		t.Fatalf("got %+v, %v; want top-fall", d, ok)
	}

	ctx.Quote.LastPrice = 10.19
	if _, ok := r.Check(ctx); ok {
		t.Errorf("fired inside fall tolerance")
	}

	ctx.HasMax = false
	ctx.Quote.LastPrice = 10.16
	if _, ok := r.Check(ctx); ok {
		t.Errorf("fired with no recorded peak")
	}
}

func TestRetraceGiveBack(t *testing.T) {
	r := &Retrace{RetraceConfig{Tiers: []Tier{
		{IncMin: 1.05, IncMax: 1.20, Ratio: 0.50},
	}}}

	// Cost 10.00, peak 11.00, half the 1.00 profit given back at 10.50.
	ctx := posCtx(10.49, 10.00, 2)
	ctx.MaxPrice, ctx.HasMax = 11.00, true
	if d, ok := r.Check(ctx); !ok || d.Rule != LabelRetrace {
		t.Fatalf("got %+v, %v; want profit-retrace", d, ok)
	}

	ctx.Quote.LastPrice = 10.50
	if _, ok := r.Check(ctx); ok {
		t.Errorf("fired at exactly half the profit retained")
	}
}

func bandCtx(price, cost float64, held int, bars []domain.Bar) Context {
	ctx := posCtx(price, cost, held)
	ctx.Bars = bars
	return ctx
}

func flatBars(n int, close float64) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		bars[i] = domain.Bar{High: close + 0.10, Low: close - 0.10, Close: close}
	}
	return bars
}

func TestVolatilityBand(t *testing.T) {
	r := &VolatilityBand{VolatilityBandConfig{
		SMAPeriod:  5,
		ATRPeriod:  5,
		UpperMulti: 2,
		LowerMulti: 2,
	}}

	// 10 flat bars around 10.00, today at 10.00: well inside the band.
	if d, ok := r.Check(bandCtx(10.00, 10.00, 2, flatBars(10, 10.00))); ok {
		t.Fatalf("flat tape fired: %+v", d)
	}

	// A collapse far below SMA-2*ATR fires the stop side.
	d, ok := r.Check(bandCtx(8.00, 10.00, 2, flatBars(10, 10.00)))
	if !ok || d.Rule != LabelVolatilityBand {
		t.Fatalf("collapse: got %+v, %v; want atr-band", d, ok)
	}
}

func TestVolatilityBandFallback(t *testing.T) {
	r := &VolatilityBand{VolatilityBandConfig{
		SMAPeriod:    20,
		ATRPeriod:    14,
		UpperMulti:   2,
		LowerMulti:   2,
		FallbackEarn: 1.20,
		FallbackRisk: 0.95,
	}}

	// Too little history for the indicators: absolute bounds apply.
	short := flatBars(3, 10.00)
	if _, ok := r.Check(bandCtx(9.40, 10.00, 2, short)); !ok {
		t.Errorf("absolute stop did not fire with short history")
	}
	if _, ok := r.Check(bandCtx(12.10, 10.00, 2, short)); !ok {
		t.Errorf("absolute take did not fire with short history")
	}
	if _, ok := r.Check(bandCtx(10.00, 10.00, 2, short)); ok {
		t.Errorf("fired inside absolute bounds")
	}
}

func TestMABreak(t *testing.T) {
	r := &MABreak{MABreakConfig{Period: 5}}

	// Four bars at 10.00 plus a live 10.00: MA5 = 10.00, no break.
	if _, ok := r.Check(bandCtx(10.00, 10.00, 2, flatBars(4, 10.00))); ok {
		t.Errorf("fired at the average")
	}
	// Live 9.50 drags MA5 to 9.90; 9.50 < 9.89 breaks down.
	if _, ok := r.Check(bandCtx(9.50, 10.00, 2, flatBars(4, 10.00))); !ok {
		t.Errorf("breakdown below the average did not fire")
	}
	// No history at all: the rule stands down.
	if _, ok := r.Check(bandCtx(9.00, 10.00, 2, nil)); ok {
		t.Errorf("fired with no bar tail")
	}
}

func TestBuildChain(t *testing.T) {
	cfg := ChainConfig{
		Rules: []string{LabelHardStop, LabelFall, LabelSwitch},
		Hard:  HardStopConfig{RiskLimit: 0.97, EarnLimit: 1.25},
	}
	chain, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []string{LabelHardStop, LabelFall, LabelSwitch}
	got := chain.Labels()
	if len(got) != len(want) {
		t.Fatalf("Labels() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Labels() = %v, want %v", got, want)
		}
	}

	if _, err := Build(ChainConfig{Rules: []string{"no-such-rule"}}); err == nil {
		t.Fatalf("Build accepted an unknown rule label")
	}
}
