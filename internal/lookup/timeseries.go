// Package lookup answers range queries over ascending candle series.
package lookup

import (
	"sort"

	"perp-strategy-lab/internal/domain"
)

// Range returns the bars with from <= Timestamp < to.
// The result shares the backing array of candles.
func Range(candles []domain.Candle, from, to int64) []domain.Candle {
	lo := sort.Search(len(candles), func(i int) bool {
		return candles[i].Timestamp >= from
	})
	hi := sort.Search(len(candles), func(i int) bool {
		return candles[i].Timestamp >= to
	})
	if hi < lo {
		hi = lo
	}
	return candles[lo:hi]
}

// Coverage returns the first and last bar timestamps across all symbols.
// ok is false when every series is empty.
func Coverage(series map[string][]domain.Candle) (first, last int64, ok bool) {
	for _, candles := range series {
		if len(candles) == 0 {
			continue
		}
		if !ok || candles[0].Timestamp < first {
			first = candles[0].Timestamp
		}
		if end := candles[len(candles)-1].Timestamp; !ok || end > last {
			last = end
		}
		ok = true
	}
	return first, last, ok
}

// MinCount returns the smallest number of bars in [from, to) over symbols.
// A symbol without a series counts as zero.
func MinCount(series map[string][]domain.Candle, symbols []string, from, to int64) int {
	if len(symbols) == 0 {
		return 0
	}
	minimum := -1
	for _, s := range symbols {
		n := len(Range(series[s], from, to))
		if minimum < 0 || n < minimum {
			minimum = n
		}
	}
	return minimum
}
