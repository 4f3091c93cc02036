package indicators

import (
	"github.com/kppillai/niftybot/market"
)

// VWAP is a volume-weighted average price that resets at every session date
// change, so each trading day anchors its own fair value.
type VWAP struct {
	day    market.Day
	sumPV  float64
	sumVol float64
}

func NewVWAP() *VWAP {
	return &VWAP{}
}

func (v *VWAP) Name() string {
	return "VWAP"
}

func (v *VWAP) Reset() {
	v.day = ""
	v.sumPV = 0
	v.sumVol = 0
}

func (v *VWAP) Update(c market.Candle) {
	day := market.DayOf(c.Time)
	if day != v.day {
		v.day = day
		v.sumPV = 0
		v.sumVol = 0
	}
	v.sumPV += c.Close * c.Volume
	v.sumVol += c.Volume
}

// Ready is false until the day has traded some volume; index feeds that
// report zero volume simply produce no VWAP and no VWAP-confirmed signals.
func (v *VWAP) Ready() bool {
	return v.sumVol > 0
}

func (v *VWAP) Value() float64 {
	if v.sumVol == 0 {
		return 0
	}
	return v.sumPV / v.sumVol
}
