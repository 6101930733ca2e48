// Package verification checks journaled backtest orders against a replay of
// the same backtest.
package verification

import (
	"math"
	"sort"

	"perp-strategy-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// FieldDivergence is a mismatch between a stored and a replayed value.
type FieldDivergence struct {
	Field    string
	Expected any // stored
	Actual   any // replayed
}

// Result is the verification of one order.
type Result struct {
	OrderID     string
	Match       bool
	Divergences []FieldDivergence
	StoredPnl   float64
	ReplayedPnl float64
}

// Report is the verification of a journaled run.
type Report struct {
	PortfolioID string
	TotalOrders int // stored orders
	Matched     int
	Divergent   int
	Missing     []string // stored but not replayed
	Extra       []string // replayed but not stored
	Results     []Result // stored orders in journal order
}

// OK reports whether every stored order was replayed identically and no
// extra order appeared.
func (r *Report) OK() bool {
	return r.Divergent == 0 && len(r.Missing) == 0 && len(r.Extra) == 0
}

// CompareOrders returns the fields of replayed that differ from stored.
// Floats are compared with FloatTolerance.
func CompareOrders(stored, replayed *domain.Order) []FieldDivergence {
	var d []FieldDivergence
	exact := func(field string, a, b any) {
		if a != b {
			d = append(d, FieldDivergence{Field: field, Expected: a, Actual: b})
		}
	}
	float := func(field string, a, b float64) {
		if !floatEquals(a, b) {
			d = append(d, FieldDivergence{Field: field, Expected: a, Actual: b})
		}
	}

	exact("ID", stored.ID, replayed.ID)
	exact("PositionID", stored.PositionID, replayed.PositionID)
	exact("Symbol", stored.Symbol, replayed.Symbol)
	exact("Direction", stored.Direction, replayed.Direction)
	float("EntryPrice", stored.EntryPrice, replayed.EntryPrice)
	float("ExitPrice", stored.ExitPrice, replayed.ExitPrice)
	exact("EntryTime", stored.EntryTime, replayed.EntryTime)
	exact("ExitTime", stored.ExitTime, replayed.ExitTime)
	float("Quantity", stored.Quantity, replayed.Quantity)
	float("QuantityClosed", stored.QuantityClosed, replayed.QuantityClosed)
	float("Leverage", stored.Leverage, replayed.Leverage)
	float("Margin", stored.Margin, replayed.Margin)
	float("GrossPnl", stored.GrossPnl, replayed.GrossPnl)
	float("Fees", stored.Fees, replayed.Fees)
	float("Funding", stored.Funding, replayed.Funding)
	float("NetPnl", stored.NetPnl, replayed.NetPnl)
	float("PnlPercent", stored.PnlPercent, replayed.PnlPercent)
	exact("ExitReason", stored.ExitReason, replayed.ExitReason)
	exact("DurationMs", stored.DurationMs, replayed.DurationMs)
	float("Signal.Score", stored.Signal.Score, replayed.Signal.Score)
	float("Signal.ModelProbability", stored.Signal.ModelProbability, replayed.Signal.ModelProbability)
	return d
}

// Compare matches stored and replayed orders by id.
func Compare(portfolioID string, stored, replayed []domain.Order) *Report {
	byID := make(map[string]*domain.Order, len(replayed))
	for i := range replayed {
		byID[replayed[i].ID] = &replayed[i]
	}

	r := &Report{
		PortfolioID: portfolioID,
		TotalOrders: len(stored),
		Results:     make([]Result, 0, len(stored)),
	}
	seen := make(map[string]struct{}, len(stored))
	for i := range stored {
		s := &stored[i]
		seen[s.ID] = struct{}{}

		rep, ok := byID[s.ID]
		if !ok {
			r.Missing = append(r.Missing, s.ID)
			r.Divergent++
			r.Results = append(r.Results, Result{
				OrderID:     s.ID,
				StoredPnl:   s.NetPnl,
				Divergences: []FieldDivergence{{Field: "ID", Expected: s.ID, Actual: nil}},
			})
			continue
		}

		divergences := CompareOrders(s, rep)
		res := Result{
			OrderID:     s.ID,
			Match:       len(divergences) == 0,
			Divergences: divergences,
			StoredPnl:   s.NetPnl,
			ReplayedPnl: rep.NetPnl,
		}
		if res.Match {
			r.Matched++
		} else {
			r.Divergent++
		}
		r.Results = append(r.Results, res)
	}

	for _, o := range replayed {
		if _, ok := seen[o.ID]; !ok {
			r.Extra = append(r.Extra, o.ID)
		}
	}
	sort.Strings(r.Extra)
	return r
}

func floatEquals(a, b float64) bool {
	if math.IsInf(a, 0) || math.IsInf(b, 0) || math.IsNaN(a) || math.IsNaN(b) {
		return a == b || (math.IsNaN(a) && math.IsNaN(b))
	}
	return math.Abs(a-b) <= FloatTolerance
}
