package domain

// ExitReason is the reason code recorded on a closed order.
type ExitReason string

// Exit reason codes
const (
	ExitReasonTP1           ExitReason = "tp1"
	ExitReasonTP2           ExitReason = "tp2"
	ExitReasonTP3           ExitReason = "tp3"
	ExitReasonStopLoss      ExitReason = "sl"
	ExitReasonTrailingStop  ExitReason = "trailing_sl"
	ExitReasonLiquidation   ExitReason = "liquidation"
	ExitReasonManual        ExitReason = "manual"
	ExitReasonSignalFlip    ExitReason = "signal_flip"
	ExitReasonDrawdownLimit ExitReason = "drawdown_limit"
	ExitReasonEndOfData     ExitReason = "end_of_data"
)

// ExitReasons lists every reason code in a stable order.
func ExitReasons() []ExitReason {
	return []ExitReason{
		ExitReasonTP1, ExitReasonTP2, ExitReasonTP3,
		ExitReasonStopLoss, ExitReasonTrailingStop, ExitReasonLiquidation,
		ExitReasonManual, ExitReasonSignalFlip, ExitReasonDrawdownLimit, ExitReasonEndOfData,
	}
}

// Valid reports whether r is a known reason code.
func (r ExitReason) Valid() bool {
	for _, known := range ExitReasons() {
		if r == known {
			return true
		}
	}
	return false
}

// Order is the immutable record of a closed position.
// Exactly one Order is produced per position, at its final close; PnL fields
// include any partial take-profit legs realized before it.
type Order struct {
	ID         string    `json:"id"`
	PositionID string    `json:"position_id"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`

	EntryPrice float64 `json:"entry_price"` // after slippage
	ExitPrice  float64 `json:"exit_price"`  // after slippage, final leg
	EntryTime  int64   `json:"entry_time"`  // Unix ms
	ExitTime   int64   `json:"exit_time"`   // Unix ms

	Quantity       float64 `json:"quantity"`        // size at open
	QuantityClosed float64 `json:"quantity_closed"` // size closed by the final leg
	Leverage       float64 `json:"leverage"`
	Margin         float64 `json:"margin"`

	// Outcome
	GrossPnl   float64 `json:"gross_pnl"`
	Fees       float64 `json:"fees"`
	Funding    float64 `json:"funding"`
	NetPnl     float64 `json:"net_pnl"`
	PnlPercent float64 `json:"pnl_percent"` // relative to margin

	ExitReason ExitReason    `json:"exit_reason"`
	DurationMs int64         `json:"duration_ms"`
	Signal     SignalContext `json:"signal"`
}

// IsWin reports whether the order closed with positive net PnL.
func (o Order) IsWin() bool {
	return o.NetPnl > 0
}

// IsLoss reports whether the order closed with negative net PnL.
func (o Order) IsLoss() bool {
	return o.NetPnl < 0
}

// Clone returns a copy that shares no slices with o.
func (o Order) Clone() Order {
	o.Signal = o.Signal.Clone()
	return o
}
