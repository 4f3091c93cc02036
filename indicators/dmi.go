package indicators

import (
	"fmt"
	"math"

	"github.com/kppillai/niftybot/market"
)

// DMI is a streaming directional movement system: DI+, DI- and ADX, all
// smoothed with span-based EMAs over a simplified true range. Trend strength
// gating and bull/bear dominance both read from here.
type DMI struct {
	span int

	atr *EMA
	dmp *EMA
	dmn *EMA
	adx *EMA

	prev     market.Candle
	havePrev bool

	diPlus  float64
	diMinus float64
}

func NewDMI(span int) *DMI {
	return &DMI{
		span: span,
		atr:  NewEMA(span),
		dmp:  NewEMA(span),
		dmn:  NewEMA(span),
		adx:  NewEMA(span),
	}
}

func (d *DMI) Name() string {
	return fmt.Sprintf("DMI(%d)", d.span)
}

func (d *DMI) Reset() {
	d.atr.Reset()
	d.dmp.Reset()
	d.dmn.Reset()
	d.adx.Reset()
	d.havePrev = false
	d.diPlus = 0
	d.diMinus = 0
}

func (d *DMI) Update(c market.Candle) {
	if !d.havePrev {
		// First bar: true range is just the bar's own span.
		d.atr.UpdateValue(c.High - c.Low)
		d.prev = c
		d.havePrev = true
		return
	}

	tr := math.Max(c.High-c.Low,
		math.Max(math.Abs(c.High-d.prev.Close), math.Abs(c.Low-d.prev.Close)))
	d.atr.UpdateValue(tr)

	up := math.Max(c.High-d.prev.High, 0)
	down := math.Max(d.prev.Low-c.Low, 0)
	// Ties go to the plus side.
	if up >= down {
		down = 0
	} else {
		up = 0
	}
	d.dmp.UpdateValue(up)
	d.dmn.UpdateValue(down)

	d.prev = c

	if atr := d.atr.Value(); atr > 0 {
		d.diPlus = 100 * d.dmp.Value() / atr
		d.diMinus = 100 * d.dmn.Value() / atr
	}

	// A flat stretch leaves DX undefined; the ADX smoother simply carries.
	if den := d.diPlus + d.diMinus; den > 0 {
		dx := 100 * math.Abs(d.diPlus-d.diMinus) / den
		d.adx.UpdateValue(dx)
	}
}

// Ready becomes true once at least one DX sample has been smoothed.
func (d *DMI) Ready() bool {
	return d.adx.Ready()
}

// Value returns the current ADX.
func (d *DMI) Value() float64 {
	return d.adx.Value()
}

func (d *DMI) DIPlus() float64  { return d.diPlus }
func (d *DMI) DIMinus() float64 { return d.diMinus }
