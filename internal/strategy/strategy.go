package strategy

import (
	"perp-strategy-lab/internal/domain"
)

// Strategy turns a candidate entry signal into an entry decision.
type Strategy interface {
	// Evaluate decides what to do with in.Signal given the current book.
	// Must not retain or mutate in.
	Evaluate(in *Input) Decision

	// ID returns strategy identifier (includes parameters).
	ID() string
}

// Input holds everything a strategy sees for one signal.
type Input struct {
	Signal  *domain.Signal
	Price   float64            // requested fill price
	Balance float64            // free capital
	Open    []*domain.Position // currently open positions
}

// Action is the outcome of evaluating a signal.
type Action string

// Action constants
const (
	ActionSkip Action = "skip" // no change
	ActionOpen Action = "open" // open Plan
	ActionFlip Action = "flip" // close CloseID with signal_flip, then open Plan
)

// Decision is the result of Strategy.Evaluate.
type Decision struct {
	Action  Action
	Reason  string    // populated for ActionSkip
	CloseID string    // position to close for ActionFlip
	Plan    *OpenPlan // entry for ActionOpen and ActionFlip
}

// OpenPlan describes a position to open.
type OpenPlan struct {
	Symbol              string
	Direction           domain.Direction
	Price               float64
	Leverage            float64
	Margin              float64
	Levels              domain.ExitLevels
	TrailingDistancePct float64
	Signal              domain.SignalContext
}

func skip(reason string) Decision {
	return Decision{Action: ActionSkip, Reason: reason}
}
