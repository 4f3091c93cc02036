// Package strategies turns raw candles into enriched bars carrying indicator
// values and an optional directional signal. One rule set lives here: EMA
// crossover with RSI momentum, trend-strength and VWAP confirmation, tuned
// for a handful of signals per session.
package strategies

import (
	"github.com/kppillai/niftybot/indicators"
	"github.com/kppillai/niftybot/market"
)

// ConfluenceParams are the signal thresholds. The zero value is not usable;
// start from DefaultConfluenceParams.
type ConfluenceParams struct {
	EMAFast     int
	EMASlow     int
	RSIPeriod   int
	ADXPeriod   int
	ADXMin      float64
	RSIBuy      float64
	RSISell     float64
	MinConfirms int
}

// DefaultConfluenceParams returns the tuned production thresholds.
func DefaultConfluenceParams() ConfluenceParams {
	return ConfluenceParams{
		EMAFast:     9,
		EMASlow:     21,
		RSIPeriod:   14,
		ADXPeriod:   14,
		ADXMin:      18,
		RSIBuy:      55,
		RSISell:     45,
		MinConfirms: 2,
	}
}

// Confluence is the enrichment step. Enrich is a pure function of its input:
// every call runs a fresh indicator pipeline over the whole series, so live
// polling (which re-fetches the lookback window each cycle) and backtests
// (which enrich once) produce identical bars for identical candles.
type Confluence struct {
	params ConfluenceParams
}

func NewConfluence(p ConfluenceParams) *Confluence {
	return &Confluence{params: p}
}

// Enrich computes indicators over candles and attaches signals. Leading bars
// are dropped until every indicator has warmed up, so callers only ever see
// fully-populated bars.
func (s *Confluence) Enrich(candles []market.Candle) []market.Bar {
	p := s.params

	emaFast := indicators.NewEMA(p.EMAFast)
	emaSlow := indicators.NewEMA(p.EMASlow)
	rsi := indicators.NewRSI(p.RSIPeriod)
	dmi := indicators.NewDMI(p.ADXPeriod)
	vwap := indicators.NewVWAP()

	bars := make([]market.Bar, 0, len(candles))

	var (
		prevRSI   float64
		havePrev  bool
		prevAbove bool
		haveAbove bool
	)

	for _, c := range candles {
		emaFast.Update(c)
		emaSlow.Update(c)
		rsi.Update(c)
		dmi.Update(c)
		vwap.Update(c)

		above := emaFast.Value() > emaSlow.Value()

		if !rsi.Ready() || !dmi.Ready() {
			// Still track crossover state through the warmup window.
			prevAbove, haveAbove = above, true
			continue
		}

		ind := map[string]float64{
			market.IndEMAFast: emaFast.Value(),
			market.IndEMASlow: emaSlow.Value(),
			market.IndRSI:     rsi.Value(),
			market.IndADX:     dmi.Value(),
			market.IndDIPlus:  dmi.DIPlus(),
			market.IndDIMinus: dmi.DIMinus(),
		}
		if vwap.Ready() {
			ind[market.IndVWAP] = vwap.Value()
		}

		crossUp := above && !(haveAbove && prevAbove)
		crossDn := !above && (!haveAbove || prevAbove)

		bar := market.Bar{Candle: c, Indicators: ind}
		bar.Signal = p.signal(bar, crossUp, crossDn, prevRSI, havePrev)
		bars = append(bars, bar)

		prevRSI, havePrev = rsi.Value(), true
		prevAbove, haveAbove = above, true
	}

	return bars
}

// signal applies the confirmation count. A direction needs MinConfirms of
// its four conditions; calls are checked before puts.
func (p ConfluenceParams) signal(b market.Bar, crossUp, crossDn bool, prevRSI float64, havePrev bool) *market.Direction {
	vwapVal, haveVWAP := b.Indicators[market.IndVWAP]
	if !haveVWAP {
		return nil
	}

	adx := b.Ind(market.IndADX)
	if adx < p.ADXMin {
		return nil
	}

	rsiVal := b.Ind(market.IndRSI)
	rsiRising, rsiFalling := true, true
	if havePrev {
		rsiRising = rsiVal > prevRSI
		rsiFalling = rsiVal < prevRSI
	}

	emaUp := b.Ind(market.IndEMAFast) > b.Ind(market.IndEMASlow)
	emaDn := b.Ind(market.IndEMAFast) < b.Ind(market.IndEMASlow)
	diP := b.Ind(market.IndDIPlus)
	diN := b.Ind(market.IndDIMinus)

	ce := confirms(
		crossUp || (emaUp && rsiRising),
		rsiVal > p.RSIBuy,
		b.Close > vwapVal,
		diP > diN,
	)
	if ce >= p.MinConfirms {
		d := market.Bullish
		return &d
	}

	pe := confirms(
		crossDn || (emaDn && rsiFalling),
		rsiVal < p.RSISell,
		b.Close < vwapVal,
		diN > diP,
	)
	if pe >= p.MinConfirms {
		d := market.Bearish
		return &d
	}

	return nil
}

func confirms(conds ...bool) int {
	n := 0
	for _, c := range conds {
		if c {
			n++
		}
	}
	return n
}
