package rules

import (
	"fmt"

	"kestrel/internal/indicator"
	"kestrel/internal/market"
)

// Rule labels double as order remarks, so they stay short.
const (
	LabelHardStop       = "hard-stop"
	LabelSwitch         = "switch-out"
	LabelFall           = "top-fall"
	LabelRetrace        = "profit-retrace"
	LabelVolatilityBand = "atr-band"
	LabelMABreak        = "ma-break"
)

// ---------------------------------------------------------------------------
// Hard absolute stop-loss / take-profit
// ---------------------------------------------------------------------------

// HardStopConfig parameterizes HardStop. RiskTight raises the stop by
// that fraction of cost for every day held, tightening the loss bound
// the longer the position sits.
type HardStopConfig struct {
	Window    market.TimeRange `yaml:"window"`
	EarnLimit float64          `yaml:"earn_limit"` // take-profit at cost*EarnLimit
	RiskLimit float64          `yaml:"risk_limit"` // stop-loss at cost*RiskLimit on day 1
	RiskTight float64          `yaml:"risk_tight"` // daily stop tightening
}

// HardStop exits on a fixed take-profit bound or a daily-tightening
// stop-loss bound relative to the open price.
type HardStop struct {
	HardStopConfig
}

func (r *HardStop) Label() string { return LabelHardStop }

func (r *HardStop) Check(ctx Context) (Decision, bool) {
	if !inWindow(ctx, r.Window, 1) {
		return Decision{}, false
	}
	price := ctx.Quote.LastPrice
	cost := ctx.Position.OpenPrice

	stop := cost * (r.RiskLimit + float64(ctx.HeldDays)*r.RiskTight)
	if price <= stop {
		return Decision{
			Rule:   r.Label(),
			Volume: ctx.Position.UsableVolume,
			Reason: fmt.Sprintf("stop-loss %.0f%%", (1-r.RiskLimit)*100),
		}, true
	}
	if price >= cost*r.EarnLimit {
		return Decision{
			Rule:   r.Label(),
			Volume: ctx.Position.UsableVolume,
			Reason: fmt.Sprintf("take-profit %.0f%%", (r.EarnLimit-1)*100),
		}, true
	}
	return Decision{}, false
}

// ---------------------------------------------------------------------------
// Minimum-holding-period switch-out
// ---------------------------------------------------------------------------

// SwitchConfig parameterizes Switch. The profit bar scales daily: a
// position must be up DailyUp per held day or it is rotated out once
// MinHold days have passed and the window opens. Floor keeps deeply
// losing positions away from the switch (the stop-loss owns those).
type SwitchConfig struct {
	Window  market.TimeRange `yaml:"window"`
	MinHold int              `yaml:"min_hold"`
	DailyUp float64          `yaml:"daily_up"`
	Floor   float64          `yaml:"floor"`
}

// Switch exits positions that have not met a daily-scaling profit bar
// after a minimum holding period.
type Switch struct {
	SwitchConfig
}

func (r *Switch) Label() string { return LabelSwitch }

func (r *Switch) Check(ctx Context) (Decision, bool) {
	minHold := r.MinHold
	if minHold < 1 {
		minHold = 1
	}
	if !inWindow(ctx, r.Window, minHold) {
		return Decision{}, false
	}
	price := ctx.Quote.LastPrice
	cost := ctx.Position.OpenPrice

	upper := cost * (1 + float64(ctx.HeldDays)*r.DailyUp)
	if price >= upper {
		return Decision{}, false // met the bar, keep riding
	}
	if r.Floor > 0 && price <= cost*r.Floor {
		return Decision{}, false
	}
	return Decision{
		Rule:   r.Label(),
		Volume: ctx.Position.UsableVolume,
		Reason: "switch-out",
	}, true
}

// ---------------------------------------------------------------------------
// Trailing high-water retracement (tiered)
// ---------------------------------------------------------------------------

// FallConfig parameterizes Fall. Each tier's Ratio is the tolerated
// drop from the high-water mark for peaks in that profit band.
type FallConfig struct {
	Window market.TimeRange `yaml:"window"`
	Tiers  []Tier           `yaml:"tiers"`
}

// Fall exits when the price has fallen a banded fraction from the
// recorded high-water mark.
type Fall struct {
	FallConfig
}

func (r *Fall) Label() string { return LabelFall }

func (r *Fall) Check(ctx Context) (Decision, bool) {
	if !ctx.HasMax || !inWindow(ctx, r.Window, 1) {
		return Decision{}, false
	}
	cost := ctx.Position.OpenPrice
	tier, ok := pickTier(r.Tiers, cost, ctx.MaxPrice)
	if !ok {
		return Decision{}, false
	}
	if ctx.Quote.LastPrice < ctx.MaxPrice*(1-tier.Ratio) {
		return Decision{
			Rule:   r.Label(),
			Volume: ctx.Position.UsableVolume,
			Reason: fmt.Sprintf("fall from +%.0f%% peak", (tier.IncMin-1)*100),
		}, true
	}
	return Decision{}, false
}

// ---------------------------------------------------------------------------
// Profit give-back retracement (tiered)
// ---------------------------------------------------------------------------

// RetraceConfig parameterizes Retrace. Each tier's Ratio is the
// fraction of the peak's unrealized profit the position may give back.
type RetraceConfig struct {
	Window market.TimeRange `yaml:"window"`
	Tiers  []Tier           `yaml:"tiers"`
}

// Retrace exits when the price gives back a banded fraction of the
// profit between cost and the high-water mark.
type Retrace struct {
	RetraceConfig
}

func (r *Retrace) Label() string { return LabelRetrace }

func (r *Retrace) Check(ctx Context) (Decision, bool) {
	if !ctx.HasMax || !inWindow(ctx, r.Window, 1) {
		return Decision{}, false
	}
	cost := ctx.Position.OpenPrice
	tier, ok := pickTier(r.Tiers, cost, ctx.MaxPrice)
	if !ok {
		return Decision{}, false
	}
	if ctx.Quote.LastPrice < ctx.MaxPrice-(ctx.MaxPrice-cost)*tier.Ratio {
		return Decision{
			Rule:   r.Label(),
			Volume: ctx.Position.UsableVolume,
			Reason: fmt.Sprintf("retrace from +%.0f%% peak", (tier.IncMin-1)*100),
		}, true
	}
	return Decision{}, false
}

// ---------------------------------------------------------------------------
// ATR volatility band around a short SMA
// ---------------------------------------------------------------------------

// VolatilityBandConfig parameterizes VolatilityBand. When the bar tail
// is too short for the indicators, the rule falls back to absolute
// bounds so a position is never left without an exit.
type VolatilityBandConfig struct {
	Window       market.TimeRange `yaml:"window"`
	SMAPeriod    int              `yaml:"sma_period"`
	ATRPeriod    int              `yaml:"atr_period"`
	UpperMulti   float64          `yaml:"upper_multi"`
	LowerMulti   float64          `yaml:"lower_multi"`
	FallbackEarn float64          `yaml:"fallback_earn"`
	FallbackRisk float64          `yaml:"fallback_risk"`
}

// VolatilityBand exits outside an SMA ± k*ATR envelope recomputed each
// cycle by appending the live quote to the historical tail.
type VolatilityBand struct {
	VolatilityBandConfig
}

func (r *VolatilityBand) Label() string { return LabelVolatilityBand }

func (r *VolatilityBand) Check(ctx Context) (Decision, bool) {
	if !inWindow(ctx, r.Window, 1) {
		return Decision{}, false
	}
	price := ctx.Quote.LastPrice
	cost := ctx.Position.OpenPrice

	highs, lows, closes := appendLive(ctx)
	sma := indicator.SMA(closes, r.SMAPeriod)
	atr := indicator.ATR(highs, lows, closes, r.ATRPeriod)

	if sma != sma || atr != atr { // NaN: not enough history
		if r.FallbackRisk > 0 && price <= cost*r.FallbackRisk {
			return Decision{Rule: r.Label(), Volume: ctx.Position.UsableVolume, Reason: "band stop (absolute)"}, true
		}
		if r.FallbackEarn > 0 && price >= cost*r.FallbackEarn {
			return Decision{Rule: r.Label(), Volume: ctx.Position.UsableVolume, Reason: "band take (absolute)"}, true
		}
		return Decision{}, false
	}

	if price <= sma-atr*r.LowerMulti {
		return Decision{Rule: r.Label(), Volume: ctx.Position.UsableVolume, Reason: "band stop"}, true
	}
	if price >= sma+atr*r.UpperMulti {
		return Decision{Rule: r.Label(), Volume: ctx.Position.UsableVolume, Reason: "band take"}, true
	}
	return Decision{}, false
}

// ---------------------------------------------------------------------------
// Moving-average breakdown
// ---------------------------------------------------------------------------

// MABreakConfig parameterizes MABreak.
type MABreakConfig struct {
	Window market.TimeRange `yaml:"window"`
	Period int              `yaml:"period"`
}

// MABreak exits when the live price closes below the period moving
// average (recomputed with the live quote appended).
type MABreak struct {
	MABreakConfig
}

func (r *MABreak) Label() string { return LabelMABreak }

func (r *MABreak) Check(ctx Context) (Decision, bool) {
	if len(ctx.Bars) == 0 || !inWindow(ctx, r.Window, 1) {
		return Decision{}, false
	}
	_, _, closes := appendLive(ctx)
	ma := indicator.SMA(closes, r.Period)
	if ma != ma {
		return Decision{}, false
	}
	if ctx.Quote.LastPrice < ma-0.01 {
		return Decision{
			Rule:   r.Label(),
			Volume: ctx.Position.UsableVolume,
			Reason: fmt.Sprintf("below ma%d", r.Period),
		}, true
	}
	return Decision{}, false
}

// appendLive flattens the bar tail into aligned OHLC series with
// today's live quote as the final row.
func appendLive(ctx Context) (highs, lows, closes []float64) {
	n := len(ctx.Bars) + 1
	highs = make([]float64, 0, n)
	lows = make([]float64, 0, n)
	closes = make([]float64, 0, n)
	for _, b := range ctx.Bars {
		highs = append(highs, b.High)
		lows = append(lows, b.Low)
		closes = append(closes, b.Close)
	}
	highs = append(highs, ctx.Quote.High)
	lows = append(lows, ctx.Quote.Low)
	closes = append(closes, ctx.Quote.LastPrice)
	return highs, lows, closes
}
