// Package ledger owns the open positions and closed-order history of one
// portfolio and implements the open, tick and close lifecycle.
package ledger

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/metrics"
	"perp-strategy-lab/internal/observability"
	"perp-strategy-lab/internal/strategy"
)

// FillMode selects the exit price used when a level triggers during a tick.
type FillMode int

// Fill modes
const (
	// FillObserved exits at the observed price. Used for live ticks and bar opens/closes.
	FillObserved FillMode = iota
	// FillAtTrigger exits at the triggering level. Used for intrabar extremes.
	FillAtTrigger
)

// Take-profit legs keep these fractions of the remaining quantity.
const (
	tp1KeepFraction = 0.6
	tp2KeepFraction = 0.5
)

const defaultMaxEquitySamples = 10_000

// Options configures a Ledger.
type Options struct {
	InitialBalance float64
	Execution      domain.ExecutionConfig
	AutoTrade      domain.AutoTradeConfig // default margin sizing for Open
	Mode           domain.Mode

	// Entry gates OfferSignal. Nil disables automatic entries.
	Entry strategy.Strategy

	IDs      IDSource         // default RandomIDs
	Observer Observer         // optional
	Clock    func() time.Time // default time.Now
	Logger   *zap.Logger      // default no-op
	Metrics  *observability.Metrics

	// MaxEquitySamples caps the equity curve; oldest samples are dropped first.
	MaxEquitySamples int
}

// Ledger is the position ledger of one portfolio.
// All methods are safe for concurrent use. Observers are notified after the
// ledger lock is released, in the order events occurred.
type Ledger struct {
	mu      sync.Mutex
	opts    Options
	state   *domain.PortfolioState // History is kept in orders and materialized on read
	orders  []domain.Order         // oldest first
	seq     int
	pending []Event

	ids      IDSource
	observer Observer
	now      func() time.Time
	log      *zap.Logger
	metrics  *observability.Metrics
}

// New creates a ledger with balance = equity = opts.InitialBalance.
func New(opts Options) *Ledger {
	if opts.IDs == nil {
		opts.IDs = RandomIDs{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxEquitySamples <= 0 {
		opts.MaxEquitySamples = defaultMaxEquitySamples
	}
	if opts.Mode == "" {
		opts.Mode = domain.ModeManual
	}

	l := &Ledger{
		opts:     opts,
		ids:      opts.IDs,
		observer: opts.Observer,
		now:      opts.Clock,
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}
	l.state = domain.NewPortfolioState(opts.InitialBalance, opts.Execution, opts.Mode, l.now().UnixMilli())
	return l
}

// State returns a deep copy of the portfolio with History newest first.
func (l *Ledger) State() *domain.PortfolioState {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.state.Clone()
	s.History = make([]domain.Order, len(l.orders))
	for i, o := range l.orders {
		o.Signal = o.Signal.Clone()
		s.History[len(l.orders)-1-i] = o
	}
	return s
}

// Orders returns a copy of the closed orders, oldest first.
func (l *Ledger) Orders() []domain.Order {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.Order, len(l.orders))
	copy(out, l.orders)
	return out
}

// OpenPositions returns copies of the open positions in opening order.
func (l *Ledger) OpenPositions() []*domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.openCopies()
}

// Position returns a copy of the open position with id, or nil.
func (l *Ledger) Position(id string) *domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	if i := l.find(id); i >= 0 {
		return l.state.Positions[i].Clone()
	}
	return nil
}

// Balance returns free capital.
func (l *Ledger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Balance
}

// Equity returns balance + margin in use + unrealized PnL.
func (l *Ledger) Equity() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Equity
}

// Metrics computes performance metrics over the closed-order history.
func (l *Ledger) Metrics() *domain.PerformanceMetrics {
	l.mu.Lock()
	defer l.mu.Unlock()

	return metrics.Compute(l.orders, metrics.Input{
		InitialBalance: l.state.InitialBalance,
		Balance:        l.state.Balance,
		Equity:         l.state.Equity,
		Now:            l.now(),
	})
}

// Mode returns the autotrading mode.
func (l *Ledger) Mode() domain.Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Mode
}

// SetMode switches between manual and automatic entries.
func (l *Ledger) SetMode(mode domain.Mode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Mode = mode
}

// Restore replaces the ledger state with a copy of s.
func (l *Ledger) Restore(s *domain.PortfolioState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := s.Clone()
	l.orders = make([]domain.Order, len(c.History))
	for i, o := range c.History {
		l.orders[len(c.History)-1-i] = o
	}
	c.History = nil
	l.state = c
	l.seq = len(l.orders) + len(c.Positions)
	l.state.RecomputeEquity()
	l.metrics.UpdatePortfolio(len(l.state.Positions), l.state.Balance, l.state.Equity)
}

// Reset discards all positions and history and returns to the initial balance.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state = domain.NewPortfolioState(l.state.InitialBalance, l.state.Execution, l.state.Mode, l.now().UnixMilli())
	l.orders = nil
	l.seq = 0
	l.metrics.UpdatePortfolio(0, l.state.Balance, l.state.Equity)
}

// SampleEquity appends an equity curve sample at time at.
func (l *Ledger) SampleEquity(at int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sample(l.stamp(at))
}

// unlockAndNotify releases the lock and delivers pending events.
func (l *Ledger) unlockAndNotify() {
	events := l.pending
	l.pending = nil
	l.mu.Unlock()

	if l.observer == nil {
		return
	}
	for _, e := range events {
		l.observer.OnEvent(e)
	}
}

func (l *Ledger) emit(e Event) {
	if l.observer != nil {
		l.pending = append(l.pending, e)
	}
}

// stamp returns the event time for at (0 = clock), clamped so that
// portfolio time never goes backwards.
func (l *Ledger) stamp(at int64) int64 {
	if at == 0 {
		at = l.now().UnixMilli()
	}
	if at < l.state.LastUpdate {
		at = l.state.LastUpdate
	}
	l.state.LastUpdate = at
	return at
}

func (l *Ledger) sample(at int64) {
	l.state.EquityCurve = append(l.state.EquityCurve, domain.EquityPoint{
		Timestamp: at,
		Equity:    l.state.Equity,
		Balance:   l.state.Balance,
	})
	if over := len(l.state.EquityCurve) - l.opts.MaxEquitySamples; over > 0 {
		l.state.EquityCurve = append([]domain.EquityPoint(nil), l.state.EquityCurve[over:]...)
	}
}

func (l *Ledger) find(id string) int {
	for i, p := range l.state.Positions {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (l *Ledger) openCopies() []*domain.Position {
	out := make([]*domain.Position, len(l.state.Positions))
	for i, p := range l.state.Positions {
		out[i] = p.Clone()
	}
	return out
}
