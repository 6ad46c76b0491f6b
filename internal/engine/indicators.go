package engine

import "math"

// EMAPair maintains short and long exponential moving averages with
// adaptive smoothing: the effective sample interval is estimated from the
// rolling trade count, so alpha tracks the actual trade rate instead of a
// fixed tick.
type EMAPair struct {
	shortMs  int64
	longMs   int64
	windowMs int64

	short       float64
	long        float64
	initialized bool
}

// NewEMAPair creates the pair. Horizons of zero disable updates; the pair
// then never initializes.
func NewEMAPair(shortMs, longMs, windowMs int64) *EMAPair {
	return &EMAPair{shortMs: shortMs, longMs: longMs, windowMs: windowMs}
}

// Update folds one price into both averages. tradeCount is the current
// rolling-window trade count driving the inter-trade gap estimate.
func (e *EMAPair) Update(price float64, tradeCount int) {
	if e.shortMs <= 0 || e.longMs <= 0 {
		return
	}
	if !e.initialized {
		e.short = price
		e.long = price
		e.initialized = true
		return
	}

	if tradeCount < 1 {
		tradeCount = 1
	}
	dtEff := float64(e.windowMs) / float64(tradeCount)

	alphaS := 2 / (float64(e.shortMs)/dtEff + 1)
	alphaL := 2 / (float64(e.longMs)/dtEff + 1)

	e.short = alphaS*price + (1-alphaS)*e.short
	e.long = alphaL*price + (1-alphaL)*e.long
}

// Initialized reports whether at least one price was folded in.
func (e *EMAPair) Initialized() bool { return e.initialized }

// Short returns the short EMA.
func (e *EMAPair) Short() float64 { return e.short }

// Long returns the long EMA.
func (e *EMAPair) Long() float64 { return e.long }

// Gap returns (short - long) / price, the normalized EMA spread.
func (e *EMAPair) Gap(price float64) float64 {
	if !e.initialized || price == 0 {
		return 0
	}
	return (e.short - e.long) / price
}

// ATR smooths the absolute price change per trade.
type ATR struct {
	alpha       float64
	value       float64
	lastPrice   float64
	hasLast     bool
	initialized bool
}

// NewATR creates an ATR with smoothing 2/(windowSec+1).
func NewATR(windowSec int64) *ATR {
	if windowSec <= 0 {
		windowSec = 20
	}
	return &ATR{alpha: 2 / (float64(windowSec) + 1)}
}

// Update folds one price in. The first observation only seeds the
// true-range baseline.
func (a *ATR) Update(price float64) {
	if !a.hasLast {
		a.lastPrice = price
		a.hasLast = true
		return
	}

	tr := math.Abs(price - a.lastPrice)
	a.lastPrice = price

	if !a.initialized {
		a.value = tr
		a.initialized = true
		return
	}
	a.value = a.alpha*tr + (1-a.alpha)*a.value
}

// Initialized reports whether a true range was observed.
func (a *ATR) Initialized() bool { return a.initialized }

// Value returns the smoothed true range, 0 before initialization.
func (a *ATR) Value() float64 {
	if !a.initialized {
		return 0
	}
	return a.value
}
