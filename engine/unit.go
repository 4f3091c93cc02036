package engine

import (
	"log"

	"github.com/kppillai/niftybot/market"
)

// CapitalUnit is one independently-capitalized slot. A unit holds at
// most one position; `Position == nil` is the Free state, anything else
// is Holding. Units are owned by the engine and never mutated from
// outside it.
type CapitalUnit struct {
	ID           int                    `json:"id"`
	Capital      float64                `json:"capital"`
	Position     *Position              `json:"position,omitempty"`
	LossStreak   int                    `json:"loss_streak"`
	CooldownBars int                    `json:"cooldown_bars"`
	TradesToday  int                    `json:"trades_today"`
	DailyPnL     map[market.Day]float64 `json:"daily_pnl"`
	LastEntryBar int                    `json:"last_entry_bar"`
}

// neverEntered keeps the signal cooldown from blocking a unit's very
// first entry.
const neverEntered = -1 << 20

func newUnit(id int, capital float64) *CapitalUnit {
	return &CapitalUnit{
		ID:           id,
		Capital:      capital,
		DailyPnL:     make(map[market.Day]float64),
		LastEntryBar: neverEntered,
	}
}

func (u *CapitalUnit) holding() bool {
	return u.Position != nil
}

// eligible reports whether the allocator may hand this unit a new entry.
func (u *CapitalUnit) eligible(day market.Day, barIndex int, cfg Config) bool {
	if u.Position != nil || u.CooldownBars > 0 {
		return false
	}
	if u.DailyPnL[day] <= -(cfg.UnitSize * cfg.MaxUnitDayLossFraction) {
		return false
	}
	if u.TradesToday >= cfg.MaxTradesPerDay {
		return false
	}
	if barIndex-u.LastEntryBar < cfg.SignalCooldownBars {
		return false
	}
	return true
}

func (u *CapitalUnit) tickCooldown() {
	if u.CooldownBars > 0 {
		u.CooldownBars--
	}
}

// close books the realized pnl and frees the unit. A loss streak
// reaching the limit benches the unit for cooldownBars; any non-loss
// resets the streak.
func (u *CapitalUnit) close(pnl float64, day market.Day, streakLimit, cooldownBars int) {
	u.Capital += pnl
	u.DailyPnL[day] += pnl
	u.Position = nil

	if pnl < 0 {
		u.LossStreak++
		if u.LossStreak >= streakLimit {
			u.CooldownBars = cooldownBars
			u.LossStreak = 0
			log.Printf("unit %d: loss streak, cooling down %d bars", u.ID, cooldownBars)
		}
	} else {
		u.LossStreak = 0
	}
}
