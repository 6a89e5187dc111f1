// Package indicator computes the few technical values the exit rules
// need, over short series built from a historical bar tail with the
// live quote appended.
package indicator

import "math"

// SMA returns the simple moving average of the last period values of
// closes, or NaN when the series is too short.
func SMA(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return math.NaN()
	}
	var sum float64
	for _, c := range closes[len(closes)-period:] {
		sum += c
	}
	return sum / float64(period)
}

// ATR returns the Wilder average true range for the given period, or
// NaN when fewer than period+1 rows are available. The series are
// aligned oldest-first.
func ATR(highs, lows, closes []float64, period int) float64 {
	n := len(closes)
	if period <= 0 || n < period+1 || len(highs) != n || len(lows) != n {
		return math.NaN()
	}

	// True range needs the previous close, so it starts at index 1.
	trs := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		tr := highs[i] - lows[i]
		if d := math.Abs(highs[i] - closes[i-1]); d > tr {
			tr = d
		}
		if d := math.Abs(lows[i] - closes[i-1]); d > tr {
			tr = d
		}
		trs = append(trs, tr)
	}

	// Seed with the mean of the first period TRs, then Wilder-smooth.
	var atr float64
	for _, tr := range trs[:period] {
		atr += tr
	}
	atr /= float64(period)
	for _, tr := range trs[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr
}
