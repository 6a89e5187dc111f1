// Package rules implements the exit rule chain: an ordered list of
// independent per-position checks evaluated once per cycle, where the
// first rule that fires wins and later rules are never consulted.
//
// Rules are pure: a check reads its Context and returns a decision; it
// never submits orders or touches shared state itself.
package rules

import (
	"fmt"

	"kestrel/internal/domain"
	"kestrel/internal/market"
)

// Context carries everything a rule may consult for one position in one
// evaluation cycle. Bars, when present, hold the historical daily tail
// for the code, oldest first, excluding today.
type Context struct {
	Code     string
	Quote    domain.Quote
	Position domain.Position
	HeldDays int
	MaxPrice float64
	HasMax   bool
	Bars     []domain.Bar
	Date     string // YYYY-MM-DD
	Clock    string // HH:MM
}

// Decision is a fired rule's verdict: sell Volume shares, annotated
// with the rule label as the order remark.
type Decision struct {
	Rule   string
	Volume int64
	Reason string
}

// Rule is one exit check. Check must be side-effect-free; it fires at
// most once per call and only when the position has been held at least
// one calendar day.
type Rule interface {
	Label() string
	Check(ctx Context) (Decision, bool)
}

// Chain evaluates rules in configured priority order and stops at the
// first positive result. The ordering is intentional precedence, not an
// optimization: rules are not commutative.
type Chain struct {
	rules []Rule
}

// NewChain creates a chain over the given rules, evaluated in argument
// order.
func NewChain(rules ...Rule) *Chain {
	return &Chain{rules: rules}
}

// Evaluate runs the chain for one position. It returns the first firing
// rule's decision, or false when no rule fires.
func (c *Chain) Evaluate(ctx Context) (Decision, bool) {
	for _, r := range c.rules {
		if d, ok := r.Check(ctx); ok {
			return d, true
		}
	}
	return Decision{}, false
}

// Labels returns the chain's rule labels in evaluation order.
func (c *Chain) Labels() []string {
	labels := make([]string, len(c.rules))
	for i, r := range c.rules {
		labels[i] = r.Label()
	}
	return labels
}

// Tier is one band of a tiered rule. The band matches when
// lower*cost <= maxPrice < upper*cost; half-open, so adjacent tiers
// never overlap and every value falls in exactly one band.
type Tier struct {
	IncMin float64 `yaml:"inc_min"`
	IncMax float64 `yaml:"inc_max"`
	Ratio  float64 `yaml:"ratio"`
}

func pickTier(tiers []Tier, costPrice, maxPrice float64) (Tier, bool) {
	for _, t := range tiers {
		if costPrice*t.IncMin <= maxPrice && maxPrice < costPrice*t.IncMax {
			return t, true
		}
	}
	return Tier{}, false
}

// ChainConfig selects and parameterizes the rules of a strategy
// profile. Rules lists the labels in priority order; first match wins.
type ChainConfig struct {
	Rules   []string             `yaml:"rules"`
	Hard    HardStopConfig       `yaml:"hard"`
	Switch  SwitchConfig         `yaml:"switch"`
	Fall    FallConfig           `yaml:"fall"`
	Retrace RetraceConfig        `yaml:"retrace"`
	Band    VolatilityBandConfig `yaml:"band"`
	MABreak MABreakConfig        `yaml:"ma_break"`
}

// Build constructs the chain a config describes.
func Build(cfg ChainConfig) (*Chain, error) {
	var built []Rule
	for _, name := range cfg.Rules {
		switch name {
		case LabelHardStop:
			built = append(built, &HardStop{HardStopConfig: cfg.Hard})
		case LabelSwitch:
			built = append(built, &Switch{SwitchConfig: cfg.Switch})
		case LabelFall:
			built = append(built, &Fall{FallConfig: cfg.Fall})
		case LabelRetrace:
			built = append(built, &Retrace{RetraceConfig: cfg.Retrace})
		case LabelVolatilityBand:
			built = append(built, &VolatilityBand{VolatilityBandConfig: cfg.Band})
		case LabelMABreak:
			built = append(built, &MABreak{MABreakConfig: cfg.MABreak})
		default:
			return nil, fmt.Errorf("unknown sell rule %q", name)
		}
	}
	return NewChain(built...), nil
}

// inWindow applies the shared gating every rule honors: same-day
// entries are excluded, and a configured intraday window (when set)
// must contain the cycle clock.
func inWindow(ctx Context, w market.TimeRange, minHeld int) bool {
	if ctx.HeldDays < minHeld {
		return false
	}
	if w.Begin == "" && w.End == "" {
		return true
	}
	return w.Contains(ctx.Clock)
}
