// Package execution computes fill prices, fees, liquidation levels and PnL
// for simulated leveraged fills. All functions are pure.
package execution

import (
	"perp-strategy-lab/internal/domain"
)

// FundingIntervalMs is the funding settlement period of perpetual contracts.
const FundingIntervalMs int64 = 8 * 60 * 60 * 1000

// costFraction is the adverse price move paid per fill: slippage plus half the spread.
func costFraction(cfg domain.ExecutionConfig) float64 {
	return (cfg.SlippagePct + cfg.SpreadPct/2) / 100
}

// EntryPrice applies execution costs against the requested entry price.
// Longs pay price*(1+s), shorts receive price*(1-s).
func EntryPrice(price float64, d domain.Direction, cfg domain.ExecutionConfig) float64 {
	return price * (1 + d.Sign()*costFraction(cfg))
}

// ExitPrice applies execution costs against the requested exit price,
// symmetric to EntryPrice.
func ExitPrice(price float64, d domain.Direction, cfg domain.ExecutionConfig) float64 {
	return price * (1 - d.Sign()*costFraction(cfg))
}

// Quantity returns the position size bought with margin at the given leverage.
func Quantity(margin, leverage, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return margin * leverage / price
}

// LiquidationPrice returns the adverse price at which margin is exhausted.
// Maintenance margin and fee buffers are ignored.
func LiquidationPrice(entry, leverage float64, d domain.Direction) float64 {
	if leverage <= 0 {
		return 0
	}
	return entry * (1 - d.Sign()/leverage)
}

// GrossPnl returns the directional price delta times quantity.
func GrossPnl(entry, exit, qty float64, d domain.Direction) float64 {
	return d.Sign() * (exit - entry) * qty
}

// Fees returns round-trip fees for qty: (entry + exit) * qty * fee%.
func Fees(entry, exit, qty float64, cfg domain.ExecutionConfig) float64 {
	return (entry + exit) * qty * cfg.FeePct() / 100
}

// Funding returns the funding paid by a position with the given notional.
// Positive rates are paid by longs and received by shorts.
func Funding(notional, ratePct float64, d domain.Direction) float64 {
	return d.Sign() * notional * ratePct / 100
}

// PnlPercent returns net PnL relative to margin, or 0 without margin.
func PnlPercent(net, margin float64) float64 {
	if margin == 0 {
		return 0
	}
	return net / margin * 100
}

// Settlement is the outcome of closing qty at a fill price.
type Settlement struct {
	ExitPrice float64 // after slippage
	Gross     float64
	Fees      float64
	Funding   float64
	Net       float64
}

// Settle closes qty of a position entered at entry, requested at price.
func Settle(entry, price, qty, funding float64, d domain.Direction, cfg domain.ExecutionConfig) Settlement {
	exit := ExitPrice(price, d, cfg)
	gross := GrossPnl(entry, exit, qty, d)
	fees := Fees(entry, exit, qty, cfg)
	return Settlement{
		ExitPrice: exit,
		Gross:     gross,
		Fees:      fees,
		Funding:   funding,
		Net:       gross - fees - funding,
	}
}

// AdverseCross reports whether price has reached level against direction d
// (stop-loss, liquidation, trailing stop).
func AdverseCross(price, level float64, d domain.Direction) bool {
	if d == domain.DirectionShort {
		return price >= level
	}
	return price <= level
}

// FavorableCross reports whether price has reached level in favor of direction d
// (take-profit targets).
func FavorableCross(price, level float64, d domain.Direction) bool {
	if d == domain.DirectionShort {
		return price <= level
	}
	return price >= level
}
