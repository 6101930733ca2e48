package ledger

import (
	"go.uber.org/zap"

	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/execution"
)

// Close closes the open position id at price at the clock time.
// See CloseAt.
func (l *Ledger) Close(id string, reason domain.ExitReason, price float64) *domain.Order {
	return l.CloseAt(id, reason, price, 0)
}

// CloseAt closes the full remaining quantity of position id at price
// (<= 0 = last marked price). Returns nil when the position is unknown or
// already closed; that is not an error.
func (l *Ledger) CloseAt(id string, reason domain.ExitReason, price float64, at int64) *domain.Order {
	l.mu.Lock()
	defer l.unlockAndNotify()

	return l.close(id, reason, price, at)
}

// CloseAll closes every open position with reason, each at prices[symbol]
// or its last marked price.
func (l *Ledger) CloseAll(reason domain.ExitReason, prices map[string]float64, at int64) []domain.Order {
	l.mu.Lock()
	defer l.unlockAndNotify()

	var closed []domain.Order
	open := append([]*domain.Position(nil), l.state.Positions...)
	for _, p := range open {
		if o := l.close(p.ID, reason, prices[p.Symbol], at); o != nil {
			closed = append(closed, *o)
		}
	}
	return closed
}

func (l *Ledger) close(id string, reason domain.ExitReason, price float64, at int64) *domain.Order {
	i := l.find(id)
	if i < 0 {
		return nil
	}
	if !reason.Valid() {
		l.log.Warn("close rejected: unknown exit reason",
			zap.String("position_id", id),
			zap.String("reason", string(reason)),
		)
		return nil
	}
	p := l.state.Positions[i]
	if !finitePositive(price) {
		price = p.CurrentPrice
	}
	return l.closePosition(p, reason, price, l.stamp(at))
}

// closePosition settles the remaining quantity of p, removes it from the book
// and appends its order. The order aggregates any partial legs realized earlier.
func (l *Ledger) closePosition(p *domain.Position, reason domain.ExitReason, price float64, at int64) *domain.Order {
	qty := p.QuantityRemaining
	s := execution.Settle(p.EntryPrice, price, qty, p.FundingAccumulated, p.Direction, l.state.Execution)
	released := p.MarginRemaining()

	gross := p.RealizedGross + s.Gross
	fees := p.RealizedFees + s.Fees
	net := gross - fees - p.FundingAccumulated

	o := domain.Order{
		ID:             l.ids.OrderID(p.ID),
		PositionID:     p.ID,
		Symbol:         p.Symbol,
		Direction:      p.Direction,
		EntryPrice:     p.EntryPrice,
		ExitPrice:      s.ExitPrice,
		EntryTime:      p.EntryTime,
		ExitTime:       at,
		Quantity:       p.Quantity,
		QuantityClosed: qty,
		Leverage:       p.Leverage,
		Margin:         p.MarginUsed,
		GrossPnl:       gross,
		Fees:           fees,
		Funding:        p.FundingAccumulated,
		NetPnl:         net,
		PnlPercent:     execution.PnlPercent(net, p.MarginUsed),
		ExitReason:     reason,
		DurationMs:     at - p.EntryTime,
		Signal:         p.Signal.Clone(),
	}

	p.Status = domain.PositionClosed
	p.QuantityRemaining = 0
	p.CurrentPrice = price
	p.UnrealizedPnl = 0

	l.state.Balance += released + s.Net
	l.state.MarginInUse -= released
	l.remove(p.ID)
	if len(l.state.Positions) == 0 {
		l.state.MarginInUse = 0
	}
	l.orders = append(l.orders, o)
	l.state.RecomputeEquity()

	l.log.Debug("position closed",
		zap.String("position_id", p.ID),
		zap.String("symbol", p.Symbol),
		zap.String("reason", string(reason)),
		zap.Float64("exit_price", s.ExitPrice),
		zap.Float64("net_pnl", net),
	)
	l.metrics.RecordOrderClosed(string(reason))
	l.metrics.UpdatePortfolio(len(l.state.Positions), l.state.Balance, l.state.Equity)

	event := o
	event.Signal = o.Signal.Clone()
	l.emit(Event{
		Type:     EventClosed,
		Time:     at,
		Position: p.Clone(),
		Order:    &event,
		Reason:   reason,
		Realized: s.Net,
	})

	out := o
	out.Signal = o.Signal.Clone()
	return &out
}

func (l *Ledger) remove(id string) {
	i := l.find(id)
	if i < 0 {
		return
	}
	l.state.Positions = append(l.state.Positions[:i], l.state.Positions[i+1:]...)
}
