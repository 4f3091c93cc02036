package engine

import "github.com/kppillai/niftybot/market"

// selectUnit scans from the rotating pointer and returns the index of
// the first eligible unit. The pointer advances to one past the
// selection so sustained signals spread across units instead of
// hammering unit zero. Returns false when no unit qualifies; the
// signal is dropped, never queued.
func (e *Engine) selectUnit(day market.Day) (int, bool) {
	n := len(e.units)
	for i := 0; i < n; i++ {
		idx := (e.rr + i) % n
		if !e.units[idx].eligible(day, e.barIndex, e.cfg) {
			continue
		}
		e.rr = (idx + 1) % n
		return idx, true
	}
	return 0, false
}
