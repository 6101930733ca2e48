package ledger

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/execution"
	"perp-strategy-lab/internal/strategy"
)

// OpenInput describes a position to open.
type OpenInput struct {
	Symbol    string
	Direction domain.Direction
	Price     float64 // requested price, before slippage
	Leverage  float64

	// Margin to post. 0 = balance * AutoTrade.MaxCapitalPerTradePct / 100.
	Margin float64

	StopLoss    *float64
	TakeProfit1 *float64
	TakeProfit2 *float64
	TakeProfit3 *float64

	// TrailingDistancePct arms a trailing stop once TP1 is hit. 0 = disabled.
	TrailingDistancePct float64

	Signal domain.SignalContext
	Time   int64 // Unix ms, 0 = clock
}

func (in *OpenInput) validate() error {
	switch {
	case in.Symbol == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalidInput)
	case !in.Direction.Valid():
		return fmt.Errorf("%w: invalid direction %q", ErrInvalidInput, in.Direction)
	case !finitePositive(in.Price):
		return fmt.Errorf("%w: price must be positive, got %g", ErrInvalidInput, in.Price)
	case in.Leverage < 1 || math.IsInf(in.Leverage, 0):
		return fmt.Errorf("%w: leverage must be >= 1, got %g", ErrInvalidInput, in.Leverage)
	case in.Margin < 0 || math.IsNaN(in.Margin):
		return fmt.Errorf("%w: margin must not be negative, got %g", ErrInvalidInput, in.Margin)
	case in.TrailingDistancePct < 0:
		return fmt.Errorf("%w: trailing distance must not be negative", ErrInvalidInput)
	}

	sign := in.Direction.Sign()
	if in.StopLoss != nil && (!finitePositive(*in.StopLoss) || sign*(*in.StopLoss-in.Price) >= 0) {
		return fmt.Errorf("%w: stop loss %g is not on the losing side of %g", ErrInvalidInput, *in.StopLoss, in.Price)
	}

	targets := []*float64{in.TakeProfit1, in.TakeProfit2, in.TakeProfit3}
	prev := in.Price
	for i, tp := range targets {
		if tp == nil {
			for j := i + 1; j < len(targets); j++ {
				if targets[j] != nil {
					return fmt.Errorf("%w: take profit %d requires take profit %d", ErrInvalidInput, j+1, i+1)
				}
			}
			break
		}
		if !finitePositive(*tp) || sign*(*tp-prev) <= 0 {
			return fmt.Errorf("%w: take profit %d (%g) must be beyond %g", ErrInvalidInput, i+1, *tp, prev)
		}
		prev = *tp
	}
	return nil
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Open opens a position and returns a copy of it.
// Input is validated before any state changes. Returns ErrInsufficientBalance
// when the margin exceeds free balance.
func (l *Ledger) Open(in OpenInput) (*domain.Position, error) {
	l.mu.Lock()
	defer l.unlockAndNotify()

	return l.open(in)
}

func (l *Ledger) open(in OpenInput) (*domain.Position, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	margin := in.Margin
	if margin == 0 {
		margin = l.state.Balance * l.opts.AutoTrade.MaxCapitalPerTradePct / 100
	}
	if margin <= 0 {
		return nil, fmt.Errorf("%w: no margin to post", ErrInvalidInput)
	}
	if margin > l.state.Balance {
		return nil, fmt.Errorf("%w: margin %.2f exceeds balance %.2f", ErrInsufficientBalance, margin, l.state.Balance)
	}

	at := l.stamp(in.Time)
	cfg := l.state.Execution
	entry := execution.EntryPrice(in.Price, in.Direction, cfg)
	qty := execution.Quantity(margin, in.Leverage, in.Price)

	l.seq++
	id := l.ids.PositionID(in.Symbol, at, l.seq)

	p := &domain.Position{
		ID:                  id,
		Symbol:              in.Symbol,
		Direction:           in.Direction,
		Status:              domain.PositionOpen,
		EntryPrice:          entry,
		EntryTime:           at,
		Quantity:            qty,
		QuantityRemaining:   qty,
		Leverage:            in.Leverage,
		MarginUsed:          margin,
		StopLoss:            in.StopLoss,
		TakeProfit1:         in.TakeProfit1,
		TakeProfit2:         in.TakeProfit2,
		TakeProfit3:         in.TakeProfit3,
		TrailingDistancePct: in.TrailingDistancePct,
		CurrentPrice:        entry,
		LiquidationPrice:    execution.LiquidationPrice(entry, in.Leverage, in.Direction),
		Signal:              in.Signal.Clone(),
	}
	// detach caller-owned level pointers
	p = p.Clone()

	l.state.Balance -= margin
	l.state.MarginInUse += margin
	l.state.Positions = append(l.state.Positions, p)
	l.state.RecomputeEquity()

	l.log.Debug("position opened",
		zap.String("position_id", id),
		zap.String("symbol", p.Symbol),
		zap.String("direction", string(p.Direction)),
		zap.Float64("entry_price", entry),
		zap.Float64("margin", margin),
	)
	l.metrics.RecordPositionOpened(string(p.Direction))
	l.metrics.UpdatePortfolio(len(l.state.Positions), l.state.Balance, l.state.Equity)
	l.emit(Event{Type: EventOpened, Time: at, Position: p.Clone()})

	return p.Clone(), nil
}

// OfferSignal evaluates sig with the entry strategy at the clock time.
// See OfferSignalAt.
func (l *Ledger) OfferSignal(sig domain.Signal, price float64) (*domain.Position, error) {
	return l.OfferSignalAt(sig, price, 0)
}

// OfferSignalAt evaluates sig against the open book and, when admitted,
// closes an opposite position (signal flip) and opens a new one at price.
// Returns nil without error when the ledger is in manual mode, no entry
// strategy is configured, or the signal is skipped.
func (l *Ledger) OfferSignalAt(sig domain.Signal, price float64, at int64) (*domain.Position, error) {
	l.mu.Lock()
	defer l.unlockAndNotify()

	if l.state.Mode != domain.ModeAutomatic || l.opts.Entry == nil {
		return nil, nil
	}

	decision := l.evaluate(&sig, price)
	if decision.Action == strategy.ActionFlip {
		l.close(decision.CloseID, domain.ExitReasonSignalFlip, price, at)
		// size the new entry from the balance released by the flip
		decision = l.evaluate(&sig, price)
	}
	if decision.Action != strategy.ActionOpen {
		l.log.Debug("signal skipped",
			zap.String("symbol", sig.Symbol),
			zap.String("direction", string(sig.Direction)),
			zap.String("reason", decision.Reason),
		)
		return nil, nil
	}

	plan := decision.Plan
	return l.open(OpenInput{
		Symbol:              plan.Symbol,
		Direction:           plan.Direction,
		Price:               plan.Price,
		Leverage:            plan.Leverage,
		Margin:              plan.Margin,
		StopLoss:            plan.Levels.StopLoss,
		TakeProfit1:         plan.Levels.TakeProfit1,
		TakeProfit2:         plan.Levels.TakeProfit2,
		TakeProfit3:         plan.Levels.TakeProfit3,
		TrailingDistancePct: plan.TrailingDistancePct,
		Signal:              plan.Signal,
		Time:                at,
	})
}

func (l *Ledger) evaluate(sig *domain.Signal, price float64) strategy.Decision {
	return l.opts.Entry.Evaluate(&strategy.Input{
		Signal:  sig,
		Price:   price,
		Balance: l.state.Balance,
		Open:    l.state.Positions,
	})
}
