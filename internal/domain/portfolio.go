package domain

// Mode selects how new positions are opened in a live portfolio.
type Mode string

// Mode constants
const (
	ModeManual    Mode = "manual"
	ModeAutomatic Mode = "automatic"
)

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Timestamp int64   `json:"timestamp"` // Unix ms
	Equity    float64 `json:"equity"`
	Balance   float64 `json:"balance"`
}

// PortfolioState is the full state of one simulated portfolio.
// It is a plain serializable snapshot; persisting it is the caller's concern.
type PortfolioState struct {
	InitialBalance float64 `json:"initial_balance"`
	Balance        float64 `json:"balance"` // free capital
	Equity         float64 `json:"equity"`  // balance + margin in use + unrealized PnL
	MarginInUse    float64 `json:"margin_in_use"`

	Positions   []*Position     `json:"positions"` // open positions in opening order
	History     []Order         `json:"history"`   // newest first
	EquityCurve []EquityPoint   `json:"equity_curve"`
	Execution   ExecutionConfig `json:"execution"`
	Mode        Mode            `json:"mode"`

	StartedAt  int64 `json:"started_at"`  // Unix ms
	LastUpdate int64 `json:"last_update"` // Unix ms, never decreases
}

// NewPortfolioState returns a fresh portfolio with balance = equity = initialBalance.
func NewPortfolioState(initialBalance float64, exec ExecutionConfig, mode Mode, nowMs int64) *PortfolioState {
	if mode == "" {
		mode = ModeManual
	}
	return &PortfolioState{
		InitialBalance: initialBalance,
		Balance:        initialBalance,
		Equity:         initialBalance,
		Positions:      []*Position{},
		History:        []Order{},
		EquityCurve:    []EquityPoint{},
		Execution:      exec,
		Mode:           mode,
		StartedAt:      nowMs,
		LastUpdate:     nowMs,
	}
}

// UnrealizedPnl returns the sum of unrealized PnL over open positions.
func (s *PortfolioState) UnrealizedPnl() float64 {
	var sum float64
	for _, p := range s.Positions {
		sum += p.UnrealizedPnl
	}
	return sum
}

// RecomputeEquity re-derives Equity from its components.
func (s *PortfolioState) RecomputeEquity() {
	s.Equity = s.Balance + s.MarginInUse + s.UnrealizedPnl()
}

// Clone returns a deep copy.
func (s *PortfolioState) Clone() *PortfolioState {
	c := *s
	c.Positions = make([]*Position, len(s.Positions))
	for i, p := range s.Positions {
		c.Positions[i] = p.Clone()
	}
	c.History = make([]Order, len(s.History))
	for i, o := range s.History {
		o.Signal = o.Signal.Clone()
		c.History[i] = o
	}
	c.EquityCurve = append([]EquityPoint(nil), s.EquityCurve...)
	if c.EquityCurve == nil {
		c.EquityCurve = []EquityPoint{}
	}
	return &c
}
