package market

import "time"

// Candle is one raw OHLCV sample as returned by a data source,
// before indicator enrichment.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Direction is the side of a signal: calls for bullish, puts for bearish.
type Direction int8

const (
	Bullish Direction = iota + 1
	Bearish
)

// String returns the NSE option-type code for the direction.
func (d Direction) String() string {
	switch d {
	case Bullish:
		return "CE"
	case Bearish:
		return "PE"
	}
	return "?"
}

// ParseDirection converts an option-type code back to a Direction.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "CE":
		return Bullish, true
	case "PE":
		return Bearish, true
	}
	return 0, false
}

// Indicator keys attached to enriched bars.
const (
	IndEMAFast = "ema_fast"
	IndEMASlow = "ema_slow"
	IndRSI     = "rsi"
	IndADX     = "adx"
	IndDIPlus  = "di_plus"
	IndDIMinus = "di_minus"
	IndVWAP    = "vwap"
)

// Bar is one enriched time step: a candle plus named indicator values and
// an optional directional signal. Bars are produced once by the enrichment
// step and treated as read-only by everything downstream.
type Bar struct {
	Candle
	Indicators map[string]float64
	Signal     *Direction
}

// Ind returns the named indicator value, or 0 if the bar does not carry it.
func (b Bar) Ind(name string) float64 {
	return b.Indicators[name]
}

// Day is a calendar date in the exchange timezone, used as a map key for
// per-day accounting. String form so it survives JSON round-trips.
type Day string

// DayOf extracts the Day from a bar timestamp.
func DayOf(t time.Time) Day {
	return Day(t.Format("2006-01-02"))
}

// Month returns the year-month prefix of the day, e.g. "2026-08".
func (d Day) Month() string {
	if len(d) < 7 {
		return string(d)
	}
	return string(d[:7])
}

// Time returns the midnight UTC instant of the day. Days built by DayOf
// always parse; a malformed day yields the zero time.
func (d Day) Time() time.Time {
	t, _ := time.Parse("2006-01-02", string(d))
	return t
}
