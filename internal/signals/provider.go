// Package signals supplies pre-computed entry signals to the backtest runner.
// Signals are produced by an upstream indicator stage; this package only
// indexes and loads them.
package signals

import (
	"perp-strategy-lab/internal/domain"
)

// Provider supplies the entry signal, if any, for symbol at a bar timestamp.
// Implementations used by concurrent backtests must be safe for concurrent reads.
type Provider interface {
	SignalAt(symbol string, ts int64) *domain.Signal
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(symbol string, ts int64) *domain.Signal

// SignalAt calls f(symbol, ts).
func (f ProviderFunc) SignalAt(symbol string, ts int64) *domain.Signal {
	return f(symbol, ts)
}

// None is a Provider without signals.
type None struct{}

// SignalAt implements Provider.
func (None) SignalAt(string, int64) *domain.Signal { return nil }

// Series is an in-memory Provider keyed by symbol and timestamp.
// It is read-only after construction and safe for concurrent reads.
type Series struct {
	bySymbol map[string]map[int64]domain.Signal
	count    int
}

// NewSeries indexes sigs. A later signal replaces an earlier one with the
// same symbol and timestamp.
func NewSeries(sigs []domain.Signal) *Series {
	s := &Series{bySymbol: make(map[string]map[int64]domain.Signal)}
	for _, sig := range sigs {
		m := s.bySymbol[sig.Symbol]
		if m == nil {
			m = make(map[int64]domain.Signal)
			s.bySymbol[sig.Symbol] = m
		}
		if _, exists := m[sig.Timestamp]; !exists {
			s.count++
		}
		m[sig.Timestamp] = sig
	}
	return s
}

// SignalAt returns a copy of the signal for symbol at ts, or nil.
func (s *Series) SignalAt(symbol string, ts int64) *domain.Signal {
	sig, ok := s.bySymbol[symbol][ts]
	if !ok {
		return nil
	}
	sig.Tags = append([]string(nil), sig.Tags...)
	return &sig
}

// Len returns the number of indexed signals.
func (s *Series) Len() int {
	return s.count
}

var (
	_ Provider = ProviderFunc(nil)
	_ Provider = None{}
	_ Provider = (*Series)(nil)
)
