package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kppillai/niftybot/market"
)

const stateVersion = 1

// snapshot is the durable engine state, written atomically after every
// committed tick. A crash between bars loses at most the in-flight bar.
type snapshot struct {
	Version           int            `json:"version"`
	BarIndex          int            `json:"bar_index"`
	LastBarTime       time.Time      `json:"last_bar_time"`
	LastBarDay        market.Day     `json:"last_bar_day"`
	MonthStartCapital float64        `json:"month_start_capital"`
	DayStartCapital   float64        `json:"day_start_capital"`
	DayTrades         int            `json:"day_trades"`
	DayWins           int            `json:"day_wins"`
	RotatingPointer   int            `json:"rotating_pointer"`
	Units             []*CapitalUnit `json:"units"`
}

// saveState writes the snapshot via temp file and rename, so readers
// never observe a half-written state.
func (e *Engine) saveState() error {
	if e.statePath == "" {
		return nil
	}

	snap := snapshot{
		Version:           stateVersion,
		BarIndex:          e.barIndex,
		LastBarTime:       e.lastBarTime,
		LastBarDay:        e.lastBarDay,
		MonthStartCapital: e.monthStartCapital,
		DayStartCapital:   e.dayStartCapital,
		DayTrades:         e.dayTrades,
		DayWins:           e.dayWins,
		RotatingPointer:   e.rr,
		Units:             e.units,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(e.statePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := e.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, e.statePath)
}

// LoadState restores a previously saved snapshot. A missing file is a
// fresh start, not an error. On any error the engine is left untouched,
// so the caller can choose between aborting and starting fresh.
func (e *Engine) LoadState() error {
	if e.statePath == "" {
		return nil
	}

	data, err := os.ReadFile(e.statePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("state %s: %w", e.statePath, err)
	}
	if snap.Version != stateVersion {
		return fmt.Errorf("state %s: version %d, want %d", e.statePath, snap.Version, stateVersion)
	}
	if len(snap.Units) != len(e.units) {
		return fmt.Errorf("state %s: %d units, config wants %d",
			e.statePath, len(snap.Units), len(e.units))
	}
	for _, u := range snap.Units {
		if u.DailyPnL == nil {
			u.DailyPnL = make(map[market.Day]float64)
		}
	}

	e.barIndex = snap.BarIndex
	e.lastBarTime = snap.LastBarTime
	e.lastBarDay = snap.LastBarDay
	e.monthStartCapital = snap.MonthStartCapital
	e.dayStartCapital = snap.DayStartCapital
	e.dayTrades = snap.DayTrades
	e.dayWins = snap.DayWins
	e.rr = snap.RotatingPointer
	e.units = snap.Units
	return nil
}
