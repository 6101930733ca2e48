package domain

// Direction is the side of a leveraged position.
type Direction string

// Direction constants
const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// Sign returns +1 for long and -1 for short.
func (d Direction) Sign() float64 {
	if d == DirectionShort {
		return -1
	}
	return 1
}

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == DirectionShort {
		return DirectionLong
	}
	return DirectionShort
}

// PositionStatus is the lifecycle status of a position.
type PositionStatus string

// Position status constants
const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// SignalContext is the signal snapshot recorded at entry for later attribution.
// Values are opaque to the simulator.
type SignalContext struct {
	Score            float64  `json:"score"`             // 0-100
	Confidence       float64  `json:"confidence"`        // provider-defined
	ModelProbability float64  `json:"model_probability"` // 0-100
	Tags             []string `json:"tags,omitempty"`    // indicator tags
}

// Clone returns a copy that shares no slices with s.
func (s SignalContext) Clone() SignalContext {
	if s.Tags != nil {
		s.Tags = append([]string(nil), s.Tags...)
	}
	return s
}

// Position is a simulated leveraged exposure to one symbol.
// Owned exclusively by a ledger while open.
type Position struct {
	ID        string         `json:"id"`
	Symbol    string         `json:"symbol"`
	Direction Direction      `json:"direction"`
	Status    PositionStatus `json:"status"`

	// Entry
	EntryPrice        float64 `json:"entry_price"` // after slippage
	EntryTime         int64   `json:"entry_time"`  // Unix ms
	Quantity          float64 `json:"quantity"`    // base units at open
	QuantityRemaining float64 `json:"quantity_remaining"`
	Leverage          float64 `json:"leverage"`
	MarginUsed        float64 `json:"margin_used"` // margin posted at open

	// Exit levels, resolved once at open (nil = not configured)
	StopLoss    *float64 `json:"stop_loss,omitempty"`
	TakeProfit1 *float64 `json:"take_profit_1,omitempty"`
	TakeProfit2 *float64 `json:"take_profit_2,omitempty"`
	TakeProfit3 *float64 `json:"take_profit_3,omitempty"`

	// Trailing stop
	TrailingActive      bool    `json:"trailing_active"`
	TrailingDistancePct float64 `json:"trailing_distance_pct"`
	HighWater           float64 `json:"high_water"` // max seen for long, min seen for short

	TP1Hit bool `json:"tp1_hit"`
	TP2Hit bool `json:"tp2_hit"`

	// Mark-to-market
	CurrentPrice       float64 `json:"current_price"`
	UnrealizedPnl      float64 `json:"unrealized_pnl"`
	LiquidationPrice   float64 `json:"liquidation_price"`
	FundingAccumulated float64 `json:"funding_accumulated"`

	// Partial take-profit legs already realized
	RealizedGross float64 `json:"realized_gross"`
	RealizedFees  float64 `json:"realized_fees"`

	Signal SignalContext `json:"signal"`
}

// MarginRemaining returns the share of posted margin still backing the open quantity.
func (p *Position) MarginRemaining() float64 {
	if p.Quantity <= 0 {
		return 0
	}
	return p.MarginUsed * p.QuantityRemaining / p.Quantity
}

// PartiallyClosed reports whether at least one take-profit leg has been realized.
func (p *Position) PartiallyClosed() bool {
	return p.Status == PositionOpen && p.QuantityRemaining < p.Quantity
}

// TrailingStopPrice returns the current trailing stop level, or 0 when inactive.
func (p *Position) TrailingStopPrice() float64 {
	if !p.TrailingActive || p.TrailingDistancePct <= 0 || p.HighWater <= 0 {
		return 0
	}
	return p.HighWater * (1 - p.Direction.Sign()*p.TrailingDistancePct/100)
}

// Clone returns a deep copy.
func (p *Position) Clone() *Position {
	c := *p
	c.StopLoss = cloneFloat(p.StopLoss)
	c.TakeProfit1 = cloneFloat(p.TakeProfit1)
	c.TakeProfit2 = cloneFloat(p.TakeProfit2)
	c.TakeProfit3 = cloneFloat(p.TakeProfit3)
	c.Signal = p.Signal.Clone()
	return &c
}

// Float returns a pointer to v. Handy for optional price levels.
func Float(v float64) *float64 {
	return &v
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
