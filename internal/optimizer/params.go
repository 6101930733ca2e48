package optimizer

import (
	"errors"
	"fmt"

	"perp-strategy-lab/internal/domain"
)

// ErrUnknownParam is returned for a parameter that cannot be applied to a config.
var ErrUnknownParam = errors.New("unknown optimization parameter")

// ErrEmptyAxis is returned for an axis without candidate values.
var ErrEmptyAxis = errors.New("optimization axis has no values")

// Param identifies a tunable StrategyConfig field.
type Param int

// Tunable parameters
const (
	ParamMinScore Param = iota + 1
	ParamMaxSimultaneousPositions
	ParamMaxCapitalPerPositionPct
	ParamLeverage
	ParamStopLossPct
	ParamTakeProfit1Pct
	ParamTakeProfit2Pct
	ParamTakeProfit3Pct
	ParamTrailingStopPct
	ParamMaxDailyDrawdownPct
	ParamMaxTotalDrawdownPct
)

// Params lists every tunable parameter in declaration order.
func Params() []Param {
	return []Param{
		ParamMinScore,
		ParamMaxSimultaneousPositions,
		ParamMaxCapitalPerPositionPct,
		ParamLeverage,
		ParamStopLossPct,
		ParamTakeProfit1Pct,
		ParamTakeProfit2Pct,
		ParamTakeProfit3Pct,
		ParamTrailingStopPct,
		ParamMaxDailyDrawdownPct,
		ParamMaxTotalDrawdownPct,
	}
}

// String returns the config file name of p.
func (p Param) String() string {
	switch p {
	case ParamMinScore:
		return "signal.minScore"
	case ParamMaxSimultaneousPositions:
		return "signal.maxSimultaneousPositions"
	case ParamMaxCapitalPerPositionPct:
		return "signal.maxCapitalPerPositionPct"
	case ParamLeverage:
		return "leverage"
	case ParamStopLossPct:
		return "exits.stopLossPct"
	case ParamTakeProfit1Pct:
		return "exits.takeProfit1Pct"
	case ParamTakeProfit2Pct:
		return "exits.takeProfit2Pct"
	case ParamTakeProfit3Pct:
		return "exits.takeProfit3Pct"
	case ParamTrailingStopPct:
		return "exits.trailingStopPct"
	case ParamMaxDailyDrawdownPct:
		return "risk.maxDailyDrawdownPct"
	case ParamMaxTotalDrawdownPct:
		return "risk.maxTotalDrawdownPct"
	}
	return fmt.Sprintf("Param(%d)", int(p))
}

// Valid reports whether p is a known parameter.
func (p Param) Valid() bool {
	return p >= ParamMinScore && p <= ParamMaxTotalDrawdownPct
}

// ParseParam resolves a config file name to its Param.
func ParseParam(name string) (Param, error) {
	for _, p := range Params() {
		if p.String() == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownParam, name)
}

// Apply sets p to v on cfg.
func (p Param) Apply(cfg *domain.StrategyConfig, v float64) error {
	switch p {
	case ParamMinScore:
		cfg.Signal.MinScore = v
	case ParamMaxSimultaneousPositions:
		cfg.Signal.MaxSimultaneousPositions = int(v)
	case ParamMaxCapitalPerPositionPct:
		cfg.Signal.MaxCapitalPerPositionPct = v
	case ParamLeverage:
		cfg.Leverage = v
	case ParamStopLossPct:
		cfg.Exits.StopLossPct = v
	case ParamTakeProfit1Pct:
		cfg.Exits.TakeProfit1Pct = v
	case ParamTakeProfit2Pct:
		cfg.Exits.TakeProfit2Pct = v
	case ParamTakeProfit3Pct:
		cfg.Exits.TakeProfit3Pct = v
	case ParamTrailingStopPct:
		cfg.Exits.TrailingStopPct = v
	case ParamMaxDailyDrawdownPct:
		cfg.Risk.MaxDailyDrawdownPct = v
	case ParamMaxTotalDrawdownPct:
		cfg.Risk.MaxTotalDrawdownPct = v
	default:
		return fmt.Errorf("%w: %s", ErrUnknownParam, p)
	}
	return nil
}

// ApplyParams applies named overrides to cfg in order.
func ApplyParams(cfg *domain.StrategyConfig, params []domain.ParamValue) error {
	for _, pv := range params {
		p, err := ParseParam(pv.Name)
		if err != nil {
			return err
		}
		if err := p.Apply(cfg, pv.Value); err != nil {
			return err
		}
	}
	return nil
}

// Axis is one parameter and the values to try, in order.
type Axis struct {
	Param  Param
	Values []float64
}

func (a Axis) validate() error {
	if !a.Param.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownParam, a.Param)
	}
	if len(a.Values) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyAxis, a.Param)
	}
	return nil
}

// bounds returns the smallest and largest tested value.
func (a Axis) bounds() (lo, hi float64) {
	lo, hi = a.Values[0], a.Values[0]
	for _, v := range a.Values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
