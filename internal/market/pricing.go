package market

import (
	"time"

	"StarLedger/internal/clock"
	"StarLedger/internal/fixmath"
)

// DefaultVolatility is the oscillation amplitude assigned to every resource
// at initialization, in percent of base price.
const DefaultVolatility int64 = 10

// phasePeriodSeconds converts elapsed seconds to oscillator phase: one radian
// per hour, so a full cycle takes 2*pi hours.
const phasePeriodSeconds int64 = 3600

// PriceRecord is the pricing state of a resource kind. BasePrice and
// Volatility are fixed at initialization; LastUpdate is the oscillator's
// reference point, not rewritten per query.
type PriceRecord struct {
	BasePrice  int64     `json:"base_price"`
	Volatility int64     `json:"volatility"` // percent
	LastUpdate time.Time `json:"last_update"`
}

// Engine computes current prices from price records and the injected clock.
// It holds no mutable state and performs no storage access.
type Engine struct {
	clock clock.Clock
}

func NewEngine(clk clock.Clock) *Engine {
	return &Engine{clock: clk}
}

// Current returns the price of rec at the engine clock's current time.
func (e *Engine) Current(rec PriceRecord) int64 {
	return PriceAt(rec, e.clock.Now())
}

// PriceAt is the pure pricing function:
//
//	price = base * (1 + volatility/100 * sin(elapsed/3600))
//
// evaluated in integer fixed point. Two calls with the same now yield the
// same price, and the result stays within base*(1 +- volatility/100).
func PriceAt(rec PriceRecord, now time.Time) int64 {
	elapsed := now.Unix() - rec.LastUpdate.Unix()

	phase := elapsed * fixmath.UnitScale / phasePeriodSeconds
	sin := fixmath.SinUnit(phase)

	// delta = base * volatility * sin / (100 * UnitScale)
	num := fixmath.MultiplyInt128(rec.BasePrice, rec.Volatility*sin)
	delta := fixmath.DivideInt128(num, 100*fixmath.UnitScale, fixmath.RoundHalfEven)

	return rec.BasePrice + delta
}

// Trend reports market direction in [-100, 100]: the current displacement
// from base price as a share of the full volatility amplitude. Negative is
// bearish, positive bullish, zero neutral.
func (e *Engine) Trend(rec PriceRecord) int64 {
	if rec.BasePrice == 0 || rec.Volatility == 0 {
		return 0
	}

	current := e.Current(rec)
	amplitude := fixmath.MulDiv(rec.BasePrice, rec.Volatility, 100)
	if amplitude == 0 {
		return 0
	}

	trend := fixmath.MulDiv(current-rec.BasePrice, 100, amplitude)
	if trend > 100 {
		trend = 100
	}
	if trend < -100 {
		trend = -100
	}
	return trend
}
