// Package pricing holds the deterministic option-premium approximations the
// engine falls back on when no traded premium is available, plus the P&L rule
// for closed trades. The coefficients are deliberately fixed: reproducibility
// of a backtest matters more here than per-expiry calibration.
package pricing

import (
	"math"

	"github.com/kppillai/niftybot/market"
)

const (
	// Exit-estimate model.
	delta         = 0.50
	gamma         = 0.00008
	thetaPerBar   = 0.0002
	floorFraction = 0.05

	// Synthetic entry premium (Brenner-Subrahmanyam style ATM approximation).
	DefaultIV   = 0.15
	sqrtCoeff   = 0.3989
	minPremFrac = 0.002
)

// Synthetic approximates an ATM option premium from spot and days to expiry.
// Used for fallback contracts and as the entry premium hint when the data
// source has no traded premium for the strike.
func Synthetic(spot float64, daysToExpiry float64) float64 {
	t := math.Max(daysToExpiry, 0.5) / 365.0
	prem := spot * DefaultIV * math.Sqrt(t) * sqrtCoeff
	prem = math.Round(prem*10) / 10
	return math.Max(prem, spot*minPremFrac)
}

// EstimateExit models the current premium of a held contract from the spot
// move since entry and a per-bar time decay. The estimate never drops below
// a small fraction of the entry premium, so a position can always be priced
// and therefore always exit.
func EstimateExit(entryPremium, entrySpot, spot float64, dir market.Direction, barsHeld int) float64 {
	spotChg := spot - entrySpot
	sign := 1.0
	if dir == market.Bearish {
		sign = -1.0
	}
	premChg := sign * (delta*spotChg + 0.5*gamma*spotChg*spotChg)
	decay := entryPremium * thetaPerBar * float64(barsHeld)
	est := entryPremium + premChg - decay
	return math.Max(est, entryPremium*floorFraction)
}

// PnL computes the realized P&L of a closed bought-option trade. Slippage is
// charged on both legs; the loss is floored at the premium paid, which is the
// contractual worst case for a bought option.
func PnL(entryPremium, exitPremium float64, lotSize, quantity int, slippageFraction float64) float64 {
	units := float64(lotSize) * float64(quantity)
	raw := (exitPremium - entryPremium) * units
	slip := (entryPremium + exitPremium) * slippageFraction * units
	maxLoss := -entryPremium * units

	if pnl := raw - slip; pnl > maxLoss {
		return pnl
	}
	return maxLoss
}
