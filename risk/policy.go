package risk

type Policy struct {
	// Circuit breakers, as fractions of the baseline capital.
	MaxDrawdownFraction float64 // e.g. 0.10
	MaxDayLossFraction  float64 // e.g. 0.05
}

// PortfolioSnapshot is the portfolio view the guards evaluate. The
// baseline is the month-start capital, so the drawdown floor re-anchors
// at every month rollover rather than decaying forever from day one.
type PortfolioSnapshot struct {
	TotalCapital    float64
	BaselineCapital float64
	DayPnL          float64 // realized P&L for the current trading day
}
