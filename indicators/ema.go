package indicators

import (
	"fmt"

	"github.com/kppillai/niftybot/market"
)

// EMA is a streaming exponential moving average seeded at the first
// observation (alpha = 2/(span+1)).
type EMA struct {
	span  int
	alpha float64
	value float64
	seen  bool
}

func NewEMA(span int) *EMA {
	return &EMA{
		span:  span,
		alpha: 2.0 / float64(span+1),
	}
}

func (e *EMA) Name() string {
	return fmt.Sprintf("EMA(%d)", e.span)
}

func (e *EMA) Reset() {
	e.value = 0
	e.seen = false
}

func (e *EMA) Update(c market.Candle) {
	e.UpdateValue(c.Close)
}

// UpdateValue feeds a raw sample, for callers smoothing something other than
// closes.
func (e *EMA) UpdateValue(x float64) {
	if !e.seen {
		e.value = x
		e.seen = true
		return
	}
	e.value += e.alpha * (x - e.value)
}

func (e *EMA) Ready() bool {
	return e.seen
}

func (e *EMA) Value() float64 {
	return e.value
}
