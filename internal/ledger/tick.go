package ledger

import (
	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/execution"
)

// Tick marks every open position with a known price, evaluates its exits,
// recomputes equity and appends an equity sample. Returns the orders closed
// during this tick.
func (l *Ledger) Tick(prices map[string]float64) []domain.Order {
	l.mu.Lock()
	defer l.unlockAndNotify()

	at := l.stamp(0)
	closed := l.tick(prices, at, FillObserved)
	l.sample(at)
	return closed
}

// TickAt is Tick at an explicit time with the given fill mode.
// It does not sample equity; callers driving a simulation sample once per step.
func (l *Ledger) TickAt(prices map[string]float64, at int64, mode FillMode) []domain.Order {
	l.mu.Lock()
	defer l.unlockAndNotify()

	return l.tick(prices, l.stamp(at), mode)
}

// ApplyFunding charges one funding interval at ratePct to the open positions
// on symbol ("" = every symbol). Positive rates are paid by longs and
// received by shorts. Returns the total charged.
func (l *Ledger) ApplyFunding(symbol string, ratePct float64, at int64) float64 {
	l.mu.Lock()
	defer l.unlockAndNotify()

	l.stamp(at)
	var total float64
	for _, p := range l.state.Positions {
		if symbol != "" && p.Symbol != symbol {
			continue
		}
		price := p.CurrentPrice
		if price <= 0 {
			price = p.EntryPrice
		}
		f := execution.Funding(price*p.QuantityRemaining, ratePct, p.Direction)
		p.FundingAccumulated += f
		total += f
		mark(p, price)
	}
	l.state.RecomputeEquity()
	return total
}

func (l *Ledger) tick(prices map[string]float64, at int64, mode FillMode) []domain.Order {
	var closed []domain.Order

	// closes remove entries from l.state.Positions
	open := append([]*domain.Position(nil), l.state.Positions...)
	for _, p := range open {
		price, ok := prices[p.Symbol]
		if !ok || !finitePositive(price) {
			continue
		}
		if o := l.evaluateExits(p, price, at, mode); o != nil {
			closed = append(closed, *o)
		}
	}

	l.state.RecomputeEquity()
	l.metrics.UpdatePortfolio(len(l.state.Positions), l.state.Balance, l.state.Equity)
	return closed
}

// evaluateExits applies the exit ladder to one position. Risk exits are checked
// before targets and the first match ends evaluation for this tick, so at most
// one order is produced per position per tick.
func (l *Ledger) evaluateExits(p *domain.Position, price float64, at int64, mode FillMode) *domain.Order {
	d := p.Direction
	if p.TrailingActive {
		p.HighWater = extend(p.HighWater, price, d)
	}
	mark(p, price)

	fill := func(level float64) float64 {
		if mode == FillAtTrigger {
			return level
		}
		return price
	}

	if p.StopLoss != nil && execution.AdverseCross(price, *p.StopLoss, d) {
		return l.closePosition(p, domain.ExitReasonStopLoss, fill(*p.StopLoss), at)
	}
	if p.LiquidationPrice > 0 && execution.AdverseCross(price, p.LiquidationPrice, d) {
		return l.closePosition(p, domain.ExitReasonLiquidation, fill(p.LiquidationPrice), at)
	}
	if stop := p.TrailingStopPrice(); stop > 0 && execution.AdverseCross(price, stop, d) {
		return l.closePosition(p, domain.ExitReasonTrailingStop, fill(stop), at)
	}

	switch {
	case !p.TP1Hit && p.TakeProfit1 != nil && execution.FavorableCross(price, *p.TakeProfit1, d):
		p.TP1Hit = true
		if p.TrailingDistancePct > 0 {
			p.TrailingActive = true
			p.HighWater = price
		}
		if p.TakeProfit2 == nil {
			return l.closePosition(p, domain.ExitReasonTP1, fill(*p.TakeProfit1), at)
		}
		l.realizePartial(p, tp1KeepFraction, fill(*p.TakeProfit1), at, domain.ExitReasonTP1)

	case p.TP1Hit && !p.TP2Hit && p.TakeProfit2 != nil && execution.FavorableCross(price, *p.TakeProfit2, d):
		p.TP2Hit = true
		if p.TakeProfit3 == nil {
			return l.closePosition(p, domain.ExitReasonTP2, fill(*p.TakeProfit2), at)
		}
		l.realizePartial(p, tp2KeepFraction, fill(*p.TakeProfit2), at, domain.ExitReasonTP2)

	case p.TP2Hit && p.TakeProfit3 != nil && execution.FavorableCross(price, *p.TakeProfit3, d):
		return l.closePosition(p, domain.ExitReasonTP3, fill(*p.TakeProfit3), at)
	}
	return nil
}

// realizePartial closes (1 - keep) of the remaining quantity at price and
// credits the released margin plus the leg's PnL. Funding stays with the
// position until its final close.
func (l *Ledger) realizePartial(p *domain.Position, keep, price float64, at int64, reason domain.ExitReason) {
	qty := p.QuantityRemaining * (1 - keep)
	s := execution.Settle(p.EntryPrice, price, qty, 0, p.Direction, l.state.Execution)
	released := p.MarginUsed * qty / p.Quantity

	p.QuantityRemaining -= qty
	p.RealizedGross += s.Gross
	p.RealizedFees += s.Fees
	mark(p, p.CurrentPrice)

	l.state.Balance += released + s.Net
	l.state.MarginInUse -= released

	l.emit(Event{
		Type:     EventPartial,
		Time:     at,
		Position: p.Clone(),
		Reason:   reason,
		Realized: s.Net,
	})
}

// mark sets the position's current price and unrealized PnL net of funding.
func mark(p *domain.Position, price float64) {
	p.CurrentPrice = price
	p.UnrealizedPnl = execution.GrossPnl(p.EntryPrice, price, p.QuantityRemaining, p.Direction) - p.FundingAccumulated
}

// extend moves the high-water mark in the favorable direction.
func extend(mark, price float64, d domain.Direction) float64 {
	if mark <= 0 {
		return price
	}
	if d == domain.DirectionShort {
		if price < mark {
			return price
		}
		return mark
	}
	if price > mark {
		return price
	}
	return mark
}
