// Package trading provides money and size calculation utilities.
// All multiplicative money math goes through shopspring/decimal so that
// repeated fills cannot accumulate binary float drift.
package trading

import (
	"math"

	"github.com/shopspring/decimal"
)

var decOne = decimal.NewFromInt(1)

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

// Notional returns size*price.
func Notional(size, price float64) float64 {
	return decToFloat(decFromFloat(size).Mul(decFromFloat(price)))
}

// Fee returns size*price*rate.
func Fee(size, price, rate float64) float64 {
	return decToFloat(decFromFloat(size).Mul(decFromFloat(price)).Mul(decFromFloat(rate)))
}

// SlippagePrice moves price against the taker: up for buys, down for sells.
func SlippagePrice(price, rate float64, buy bool) float64 {
	p := decFromFloat(price)
	r := decFromFloat(rate)
	if buy {
		return decToFloat(p.Mul(decOne.Add(r)))
	}
	return decToFloat(p.Mul(decOne.Sub(r)))
}

// VWAP returns the volume-weighted average of an existing (size, avg) pair
// and a new (fillSize, fillPrice) pair.
func VWAP(size, avg, fillSize, fillPrice float64) float64 {
	total := decFromFloat(size).Add(decFromFloat(fillSize))
	if total.IsZero() {
		return 0
	}
	cost := decFromFloat(size).Mul(decFromFloat(avg)).
		Add(decFromFloat(fillSize).Mul(decFromFloat(fillPrice)))
	return decToFloat(cost.Div(total))
}

// StopLevels derives stop-loss and take-profit prices from an entry price.
// For longs the stop sits below and the take above; mirrored for shorts.
func StopLevels(entry, stopPct, takePct float64, long bool) (stop, take float64) {
	e := decFromFloat(entry)
	sp := decFromFloat(stopPct)
	tp := decFromFloat(takePct)
	if long {
		return decToFloat(e.Mul(decOne.Sub(sp))), decToFloat(e.Mul(decOne.Add(tp)))
	}
	return decToFloat(e.Mul(decOne.Add(sp))), decToFloat(e.Mul(decOne.Sub(tp)))
}

// CalcCloseAmount computes the close amount based on ratio and position data.
// The result is capped at the current position amount.
func CalcCloseAmount(currentAmount, ratio float64) float64 {
	if currentAmount <= 0 || ratio <= 0 {
		return 0
	}
	amount := decToFloat(decFromFloat(currentAmount).Mul(decFromFloat(math.Min(ratio, 1))))
	if amount > currentAmount {
		amount = currentAmount
	}
	return amount
}
