package engine

import "github.com/kppillai/niftybot/market"

// Config is the full set of engine constants, loaded once at startup.
// Nothing here changes mid-run; presets differ only in these values,
// never in the decision logic itself.
type Config struct {
	Units           int
	UnitSize        float64
	StartingCapital float64

	Session market.Session

	// Exits
	StopLossFraction        float64
	TakeProfitFraction      float64
	TrailActivationFraction float64
	TrailLockFraction       float64
	MinHoldBars             int
	TimeExitBars            int

	// Entries
	SignalCooldownBars int
	MaxTradesPerDay    int // per unit
	MaxCostFraction    float64
	MaxLots            int
	SlippageFraction   float64

	// Unit discipline
	LossStreakLimit int
	CooldownBars    int

	// Portfolio guards
	MaxDrawdownFraction    float64
	MaxDayLossFraction     float64
	MaxUnitDayLossFraction float64
}

// trailConfigured: a zero lock fraction disables the trailing stop.
func (c Config) trailConfigured() bool {
	return c.TrailLockFraction > 0
}
