package risk

import "fmt"

// Violation codes.
const (
	CodeDrawdown = "PORTFOLIO_DRAWDOWN"
	CodeDayLoss  = "DAILY_LOSS_LIMIT"
)

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Has reports whether the decision carries a violation with the code.
func (d Decision) Has(code string) bool {
	for _, v := range d.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

// Evaluate runs the portfolio circuit breakers. A blocked decision gates
// new entries only; open positions keep managing their exits. Both
// checks are live gates, not sticky latches: capital recovering above
// the floor re-enables entries on the next tick.
func Evaluate(p Policy, snap PortfolioSnapshot) Decision {
	d := Decision{Allowed: true}

	floor := snap.BaselineCapital * (1 - p.MaxDrawdownFraction)
	if snap.TotalCapital < floor {
		d.add(CodeDrawdown,
			fmt.Sprintf("capital %.2f below drawdown floor %.2f", snap.TotalCapital, floor))
	}

	limit := -snap.BaselineCapital * p.MaxDayLossFraction
	if snap.DayPnL < limit {
		d.add(CodeDayLoss,
			fmt.Sprintf("day pnl %.2f below daily loss limit %.2f", snap.DayPnL, limit))
	}

	return d
}
