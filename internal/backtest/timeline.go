package backtest

import (
	"fmt"
	"sort"
	"time"

	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/lookup"
)

// bar is one symbol's candle at a timeline step.
type bar struct {
	symbol string
	order  int // position of symbol in the config
	candle domain.Candle
}

// step is every bar that opens at the same timestamp.
type step struct {
	ts   int64
	bars []bar
}

// prepare returns, per configured symbol, a sorted copy of its candles in
// [from, to) with malformed and duplicate bars removed. Removals, empty series
// and zero-range bars are reported as diagnostics.
func prepare(symbols []string, candles map[string][]domain.Candle, from, to int64) (map[string][]domain.Candle, []string) {
	series := make(map[string][]domain.Candle, len(symbols))
	var diags []string

	for _, sym := range symbols {
		raw := candles[sym]
		if len(raw) == 0 {
			diags = append(diags, fmt.Sprintf("%s: no candles", sym))
			continue
		}

		sorted := append([]domain.Candle(nil), raw...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp < sorted[j].Timestamp
		})

		clean := sorted[:0]
		var malformed, duplicate int
		for _, c := range sorted {
			switch {
			case c.Malformed():
				malformed++
			case len(clean) > 0 && clean[len(clean)-1].Timestamp == c.Timestamp:
				duplicate++
			default:
				clean = append(clean, c)
			}
		}
		if malformed > 0 {
			diags = append(diags, fmt.Sprintf("%s: skipped %d malformed bar(s)", sym, malformed))
		}
		if duplicate > 0 {
			diags = append(diags, fmt.Sprintf("%s: dropped %d duplicate bar(s)", sym, duplicate))
		}

		inRange := lookup.Range(clean, from, to)
		if len(inRange) == 0 {
			diags = append(diags, fmt.Sprintf("%s: no bars between %s and %s",
				sym, formatMs(from), formatMs(to)))
			continue
		}
		var zeroRange int
		for _, c := range inRange {
			if c.ZeroRange() {
				zeroRange++
			}
		}
		if zeroRange > 0 {
			diags = append(diags, fmt.Sprintf("%s: %d zero-range bar(s) without intrabar ticks", sym, zeroRange))
		}
		series[sym] = inRange
	}
	return series, diags
}

// mergeBars combines per-symbol series into one timeline ordered by
// (timestamp ASC, config order ASC).
func mergeBars(symbols []string, series map[string][]domain.Candle) []step {
	var all []bar
	for i, sym := range symbols {
		for _, c := range series[sym] {
			all = append(all, bar{symbol: sym, order: i, candle: c})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return compareBars(all[i], all[j]) < 0
	})

	var steps []step
	for _, b := range all {
		if n := len(steps); n > 0 && steps[n-1].ts == b.candle.Timestamp {
			steps[n-1].bars = append(steps[n-1].bars, b)
			continue
		}
		steps = append(steps, step{ts: b.candle.Timestamp, bars: []bar{b}})
	}
	return steps
}

// compareBars returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
func compareBars(a, b bar) int {
	if a.candle.Timestamp != b.candle.Timestamp {
		if a.candle.Timestamp < b.candle.Timestamp {
			return -1
		}
		return 1
	}
	return a.order - b.order
}

// intrabarPath returns the order in which a bar's extremes are visited.
// Up bars are assumed to trade down first, down bars to trade up first.
func intrabarPath(c domain.Candle) (first, second float64) {
	if c.Close >= c.Open {
		return c.Low, c.High
	}
	return c.High, c.Low
}

func formatMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.DateTime)
}
