// Package market encodes exchange conventions for CN-listed equities:
// code-to-exchange mapping, daily price-limit bands, board lots, and
// intraday session windows.
package market

import (
	"math"
	"strings"
	"time"
)

// Exchange identifies the listing venue encoded in an instrument code
// suffix, e.g. "600000.SH".
type Exchange string

const (
	ExchangeSSE     Exchange = "SH" // Shanghai
	ExchangeSZSE    Exchange = "SZ" // Shenzhen
	ExchangeBSE     Exchange = "BJ" // Beijing
	ExchangeUnknown Exchange = "--"
)

// LotSize is the board lot for CN equities; order volumes are whole
// multiples of it.
const LotSize = 100

// CodeExchange returns the exchange encoded in the code suffix.
func CodeExchange(code string) Exchange {
	i := strings.LastIndexByte(code, '.')
	if i < 0 || i+1 >= len(code) {
		return ExchangeUnknown
	}
	switch Exchange(code[i+1:]) {
	case ExchangeSSE:
		return ExchangeSSE
	case ExchangeSZSE:
		return ExchangeSZSE
	case ExchangeBSE:
		return ExchangeBSE
	}
	return ExchangeUnknown
}

// Symbol strips the exchange suffix from a code: "600000.SH" → "600000".
func Symbol(code string) string {
	if i := strings.IndexByte(code, '.'); i >= 0 {
		return code[:i]
	}
	return code
}

// SymbolToCode attaches the exchange suffix a bare six-digit symbol
// belongs to, based on its prefix.
func SymbolToCode(symbol string) string {
	switch {
	case hasAnyPrefix(symbol, "00", "30", "15"):
		return symbol + ".SZ"
	case hasAnyPrefix(symbol, "60", "68", "51", "52", "53", "56", "58"):
		return symbol + ".SH"
	case hasAnyPrefix(symbol, "43", "82", "83", "87", "88", "92"):
		return symbol + ".BJ"
	}
	return symbol + ".--"
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// limitRate returns the daily price-band rate for the instrument class:
// 20% for ChiNext (30x) and STAR (68x), 30% for BSE boards, 10% for the
// main boards.
func limitRate(code string) float64 {
	sym := Symbol(code)
	switch {
	case hasAnyPrefix(sym, "30", "68"):
		return 0.2
	case hasAnyPrefix(sym, "4", "8", "9"):
		return 0.3
	default:
		return 0.1
	}
}

// LimitUpPrice returns the maximum permitted price for the session given
// the previous close, rounded to cents the way the exchange publishes it.
func LimitUpPrice(code string, prevClose float64) float64 {
	if prevClose == 0 {
		return 0
	}
	return roundCents(prevClose * (1 + limitRate(code)))
}

// LimitDownPrice returns the minimum permitted price for the session.
func LimitDownPrice(code string, prevClose float64) float64 {
	if prevClose == 0 {
		return 0
	}
	return roundCents(prevClose * (1 - limitRate(code)))
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// LotVolume rounds a share count down to a whole number of board lots.
func LotVolume(shares int64) int64 {
	return shares / LotSize * LotSize
}

// IsTradingDay reports whether t falls on a trading day. Exchange
// holidays need an external calendar; weekends cover the recurring case.
func IsTradingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// TimeRange is a half-open intraday window on "HH:MM" clock strings:
// Begin <= t < End. Zero-value ranges contain nothing.
type TimeRange struct {
	Begin string `yaml:"begin"`
	End   string `yaml:"end"`
}

// Contains reports whether clock (an "HH:MM" string) falls in the range.
// The lexicographic comparison matches chronological order for this
// format.
func (r TimeRange) Contains(clock string) bool {
	return r.Begin != "" && r.Begin <= clock && clock < r.End
}
