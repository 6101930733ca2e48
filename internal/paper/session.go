// Package paper drives a live position ledger from a stream of JSON messages
// and journals its orders and snapshots.
package paper

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/ledger"
	"perp-strategy-lab/internal/observability"
	"perp-strategy-lab/internal/readiness"
	"perp-strategy-lab/internal/storage"
)

// Message types
const (
	TypePrice    = "price"
	TypeSignal   = "signal"
	TypeOpen     = "open"
	TypeClose    = "close"
	TypeCloseAll = "close_all"
	TypeFunding  = "funding"
	TypeMode     = "mode"
)

// DefaultSnapshotEvery is the number of messages between snapshots.
const DefaultSnapshotEvery = 100

// ErrUnknownMessage is returned for a message type the session does not handle.
var ErrUnknownMessage = errors.New("unknown message type")

// Message is one line of the input stream.
type Message struct {
	Type   string             `json:"type"`
	Time   int64              `json:"time,omitempty"` // Unix ms, 0 = clock
	Prices map[string]float64 `json:"prices,omitempty"`

	Symbol string  `json:"symbol,omitempty"`
	Price  float64 `json:"price,omitempty"`

	Signal *domain.Signal `json:"signal,omitempty"`
	Open   *OpenRequest   `json:"open,omitempty"`

	PositionID string      `json:"position_id,omitempty"`
	RatePct    float64     `json:"rate_pct,omitempty"`
	Mode       domain.Mode `json:"mode,omitempty"`
}

// OpenRequest is a manual entry.
type OpenRequest struct {
	Symbol      string           `json:"symbol"`
	Direction   domain.Direction `json:"direction"`
	Price       float64          `json:"price"`
	Leverage    float64          `json:"leverage"`
	Margin      float64          `json:"margin,omitempty"`
	StopLoss    *float64         `json:"stop_loss,omitempty"`
	TakeProfit1 *float64         `json:"take_profit_1,omitempty"`
	TakeProfit2 *float64         `json:"take_profit_2,omitempty"`
	TakeProfit3 *float64         `json:"take_profit_3,omitempty"`
	TrailingPct float64          `json:"trailing_pct,omitempty"`
}

// Options configures a Session.
type Options struct {
	PortfolioID string
	Ledger      ledger.Options // Observer is wrapped; the session journals closed orders

	Orders    storage.OrderStore
	Snapshots storage.SnapshotStore
	Backend   string // database label of query metrics

	SnapshotEvery int // messages between snapshots, default DefaultSnapshotEvery

	Logger  *zap.Logger
	Metrics *observability.Metrics
	Clock   func() time.Time
}

// Session is one paper-trading portfolio.
type Session struct {
	id        string
	ledger    *ledger.Ledger
	orders    storage.OrderStore
	snapshots storage.SnapshotStore
	backend   string
	every     int

	mu      sync.Mutex
	pending []domain.Order
	applied int

	log     *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// New creates a session with a fresh ledger. Call Restore to resume a
// stored portfolio.
func New(opts Options) *Session {
	if opts.SnapshotEvery <= 0 {
		opts.SnapshotEvery = DefaultSnapshotEvery
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	s := &Session{
		id:        opts.PortfolioID,
		orders:    opts.Orders,
		snapshots: opts.Snapshots,
		backend:   opts.Backend,
		every:     opts.SnapshotEvery,
		log:       opts.Logger.With(zap.String("portfolio_id", opts.PortfolioID)),
		metrics:   opts.Metrics,
		now:       opts.Clock,
	}

	next := opts.Ledger.Observer
	lo := opts.Ledger
	lo.Observer = ledger.ObserverFunc(func(e ledger.Event) {
		if e.Type == ledger.EventClosed && e.Order != nil {
			s.mu.Lock()
			s.pending = append(s.pending, *e.Order)
			s.mu.Unlock()
		}
		if next != nil {
			next.OnEvent(e)
		}
	})
	if lo.Logger == nil {
		lo.Logger = opts.Logger
	}
	if lo.Metrics == nil {
		lo.Metrics = opts.Metrics
	}
	if lo.Clock == nil {
		lo.Clock = opts.Clock
	}
	s.ledger = ledger.New(lo)
	return s
}

// Ledger returns the session's ledger.
func (s *Session) Ledger() *ledger.Ledger {
	return s.ledger
}

// Restore loads the stored snapshot and order journal into the ledger.
// Returns false when nothing was stored for the portfolio.
func (s *Session) Restore(ctx context.Context) (bool, error) {
	start := time.Now()
	st, err := s.snapshots.Load(ctx, s.id)
	s.observe("load_snapshot", start, err)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}

	start = time.Now()
	orders, err := s.orders.GetByPortfolio(ctx, s.id)
	s.observe("get_orders", start, err)
	if err != nil {
		return false, fmt.Errorf("load orders: %w", err)
	}

	// journal is oldest first, state history newest first
	st.History = make([]domain.Order, len(orders))
	for i, o := range orders {
		st.History[len(orders)-1-i] = o
	}
	s.ledger.Restore(st)

	s.log.Info("portfolio restored",
		zap.Int("open_positions", len(st.Positions)),
		zap.Int("orders", len(orders)),
		zap.Float64("balance", st.Balance),
	)
	return true, nil
}

// Apply handles one message and journals the orders it closed.
// Rejected entries are logged, not returned; store failures are returned.
func (s *Session) Apply(ctx context.Context, m Message) error {
	if err := s.dispatch(m); err != nil {
		return err
	}
	if err := s.flush(ctx); err != nil {
		return err
	}

	s.applied++
	if s.applied%s.every == 0 {
		return s.Snapshot(ctx)
	}
	return nil
}

func (s *Session) dispatch(m Message) error {
	l := s.ledger
	switch m.Type {
	case TypePrice:
		prices := m.Prices
		if m.Symbol != "" {
			prices = map[string]float64{m.Symbol: m.Price}
		}
		if m.Time == 0 {
			l.Tick(prices)
			return nil
		}
		l.TickAt(prices, m.Time, ledger.FillObserved)
		l.SampleEquity(m.Time)

	case TypeSignal:
		if m.Signal == nil {
			return fmt.Errorf("%w: signal message without signal", ledger.ErrInvalidInput)
		}
		price := m.Price
		if price <= 0 {
			price = m.Prices[m.Signal.Symbol]
		}
		if _, err := l.OfferSignalAt(*m.Signal, price, m.Time); err != nil {
			s.log.Warn("signal rejected", zap.String("symbol", m.Signal.Symbol), zap.Error(err))
		}

	case TypeOpen:
		if m.Open == nil {
			return fmt.Errorf("%w: open message without open", ledger.ErrInvalidInput)
		}
		o := m.Open
		if _, err := l.Open(ledger.OpenInput{
			Symbol:              o.Symbol,
			Direction:           o.Direction,
			Price:               o.Price,
			Leverage:            o.Leverage,
			Margin:              o.Margin,
			StopLoss:            o.StopLoss,
			TakeProfit1:         o.TakeProfit1,
			TakeProfit2:         o.TakeProfit2,
			TakeProfit3:         o.TakeProfit3,
			TrailingDistancePct: o.TrailingPct,
			Time:                m.Time,
		}); err != nil {
			s.log.Warn("open rejected", zap.String("symbol", o.Symbol), zap.Error(err))
		}

	case TypeClose:
		if l.CloseAt(m.PositionID, domain.ExitReasonManual, m.Price, m.Time) == nil {
			s.log.Warn("close ignored: position not open", zap.String("position_id", m.PositionID))
		}

	case TypeCloseAll:
		l.CloseAll(domain.ExitReasonManual, m.Prices, m.Time)

	case TypeFunding:
		l.ApplyFunding(m.Symbol, m.RatePct, m.Time)

	case TypeMode:
		if m.Mode != domain.ModeManual && m.Mode != domain.ModeAutomatic {
			return fmt.Errorf("%w: mode %q", ledger.ErrInvalidInput, m.Mode)
		}
		l.SetMode(m.Mode)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, m.Type)
	}
	return nil
}

// flush journals the orders closed since the last flush.
func (s *Session) flush(ctx context.Context) error {
	s.mu.Lock()
	orders := s.pending
	s.pending = nil
	s.mu.Unlock()

	var err error
	start := time.Now()
	switch len(orders) {
	case 0:
		return nil
	case 1:
		err = s.orders.Insert(ctx, s.id, &orders[0])
		s.observe("insert_order", start, err)
	default:
		err = s.orders.InsertBulk(ctx, s.id, orders)
		s.observe("insert_orders", start, err)
	}
	if err != nil {
		return fmt.Errorf("journal orders: %w", err)
	}
	return nil
}

// Snapshot saves the portfolio state without its history; closed orders
// live in the journal.
func (s *Session) Snapshot(ctx context.Context) error {
	st := s.ledger.State()
	st.History = nil

	start := time.Now()
	err := s.snapshots.Save(ctx, s.id, st)
	s.observe("save_snapshot", start, err)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Run applies newline-delimited JSON messages from r until EOF or ctx is
// done, then saves a final snapshot. Malformed lines and rejected messages
// are logged and skipped.
func (s *Session) Run(ctx context.Context, r io.Reader) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	n := 0
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			n++
			if len(line) == 0 {
				continue
			}
			var m Message
			if err := json.Unmarshal(line, &m); err != nil {
				s.log.Warn("skipping malformed message", zap.Int("line", n), zap.Error(err))
				continue
			}
			err := s.Apply(ctx, m)
			switch {
			case errors.Is(err, ErrUnknownMessage), errors.Is(err, ledger.ErrInvalidInput):
				s.log.Warn("skipping message", zap.Int("line", n), zap.Error(err))
			case err != nil:
				return err
			}
		}
	}

	// final snapshot must survive cancellation
	if err := s.Snapshot(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	select {
	case err := <-readErr:
		if err != nil {
			return fmt.Errorf("read messages: %w", err)
		}
	default:
	}
	return nil
}

// Readiness evaluates the live checklist. bt is the backtest reference for
// the win-rate similarity criterion and may be nil.
func (s *Session) Readiness(bt *readiness.BacktestComparison) (*readiness.Result, *domain.PerformanceMetrics) {
	m := s.ledger.Metrics()
	st := s.ledger.State()
	res := readiness.NewEvaluator().WithClock(s.now).Evaluate(readiness.Input{
		Metrics:   m,
		StartedAt: time.UnixMilli(st.StartedAt),
		Backtest:  bt,
	})
	return res, m
}

func (s *Session) observe(operation string, start time.Time, err error) {
	s.metrics.RecordDBQuery(s.backend, operation, time.Since(start), err)
}
