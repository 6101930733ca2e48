package strategy

import (
	"fmt"

	"perp-strategy-lab/internal/domain"
)

// gate is the set of entry thresholds shared by all signal strategies.
type gate struct {
	minScore       float64
	minProbability float64
	maxOpen        int // 0 = unlimited
	capitalPct     float64
	allowLong      bool
	allowShort     bool
	leverage       float64
	exits          domain.ExitRules
}

func (g gate) allows(d domain.Direction) bool {
	switch d {
	case domain.DirectionLong:
		return g.allowLong
	case domain.DirectionShort:
		return g.allowShort
	}
	return false
}

// evaluate applies g to in. Checks run in a fixed order so the skip reason is stable.
func (g gate) evaluate(in *Input) Decision {
	sig := in.Signal
	if sig == nil {
		return skip("no signal")
	}
	if !sig.Direction.Valid() {
		return skip(fmt.Sprintf("invalid direction %q", sig.Direction))
	}
	if in.Price <= 0 {
		return skip("no price")
	}
	if !g.allows(sig.Direction) {
		return skip(fmt.Sprintf("%s entries disabled", sig.Direction))
	}
	if sig.Score < g.minScore {
		return skip(fmt.Sprintf("score %.1f below %.1f", sig.Score, g.minScore))
	}
	if sig.ModelProbability < g.minProbability {
		return skip(fmt.Sprintf("model probability %.1f below %.1f", sig.ModelProbability, g.minProbability))
	}

	existing := findOpen(in.Open, sig.Symbol)
	openCount := len(in.Open)
	closeID := ""
	if existing != nil {
		if existing.Direction == sig.Direction {
			return skip("already positioned")
		}
		if !g.exits.CloseOnSignalFlip {
			return skip("opposite position open")
		}
		closeID = existing.ID
		openCount--
	}
	if g.maxOpen > 0 && openCount >= g.maxOpen {
		return skip(fmt.Sprintf("max simultaneous positions (%d) reached", g.maxOpen))
	}

	margin := in.Balance * g.capitalPct / 100
	if margin <= 0 {
		return skip("no capital available")
	}

	plan := &OpenPlan{
		Symbol:              sig.Symbol,
		Direction:           sig.Direction,
		Price:               in.Price,
		Leverage:            g.leverage,
		Margin:              margin,
		Levels:              g.exits.Levels(sig.Direction, in.Price),
		TrailingDistancePct: g.exits.TrailingStopPct,
		Signal:              sig.Context(),
	}
	if closeID != "" {
		return Decision{Action: ActionFlip, CloseID: closeID, Plan: plan}
	}
	return Decision{Action: ActionOpen, Plan: plan}
}

// findOpen returns the open position for symbol, if any.
func findOpen(open []*domain.Position, symbol string) *domain.Position {
	for _, p := range open {
		if p.Symbol == symbol {
			return p
		}
	}
	return nil
}
