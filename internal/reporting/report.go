// Package reporting renders backtest, optimization, walk-forward and
// readiness results as Markdown and CSV.
package reporting

import (
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTopEntries is the number of optimization entries listed by default.
const DefaultTopEntries = 10

// Reporter renders reports stamped with its clock.
type Reporter struct {
	now func() time.Time
	top int
}

// New creates a Reporter using the wall clock in UTC.
func New() *Reporter {
	return &Reporter{
		now: func() time.Time { return time.Now().UTC() },
		top: DefaultTopEntries,
	}
}

// WithClock sets a custom clock function for deterministic output.
func (r *Reporter) WithClock(now func() time.Time) *Reporter {
	r.now = now
	return r
}

// WithTop sets how many optimization entries are listed. n <= 0 lists all.
func (r *Reporter) WithTop(n int) *Reporter {
	r.top = n
	return r
}

// money formats a currency amount with two decimals, rounding half away from zero.
func money(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

// price formats a price with up to eight decimals and no trailing zeros.
func price(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return decimal.NewFromFloat(v).Round(8).String()
}

func ratio(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func timestamp(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
