package indicators

import (
	"fmt"

	"github.com/kppillai/niftybot/market"
)

// RSI is a streaming relative strength index over smoothed gains and losses.
// Both sides use span-based smoothing so a long series converges to the same
// values as a vectorized span-EMA computation.
type RSI struct {
	span      int
	gain      *EMA
	loss      *EMA
	prevClose float64
	seen      bool
}

func NewRSI(span int) *RSI {
	return &RSI{
		span: span,
		gain: NewEMA(span),
		loss: NewEMA(span),
	}
}

func (r *RSI) Name() string {
	return fmt.Sprintf("RSI(%d)", r.span)
}

func (r *RSI) Reset() {
	r.gain.Reset()
	r.loss.Reset()
	r.prevClose = 0
	r.seen = false
}

func (r *RSI) Update(c market.Candle) {
	if !r.seen {
		r.prevClose = c.Close
		r.seen = true
		return
	}

	delta := c.Close - r.prevClose
	r.prevClose = c.Close

	up, down := 0.0, 0.0
	if delta > 0 {
		up = delta
	} else {
		down = -delta
	}
	r.gain.UpdateValue(up)
	r.loss.UpdateValue(down)
}

// Ready becomes true once the first close-to-close delta has been smoothed.
func (r *RSI) Ready() bool {
	return r.gain.Ready()
}

// Value returns the RSI in [0, 100]. A series with no smoothed losses yet
// reads as pure strength, 100.
func (r *RSI) Value() float64 {
	if !r.Ready() {
		return 0
	}
	if r.loss.Value() == 0 {
		return 100
	}
	rs := r.gain.Value() / r.loss.Value()
	return 100 - (100 / (1 + rs))
}
