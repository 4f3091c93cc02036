package engine

import (
	"fmt"
	"time"

	"github.com/kppillai/niftybot/journal"
	"github.com/kppillai/niftybot/market"
)

// journalOp is one deferred journal write. OnBar queues closures instead
// of writing directly so a tick's decisions and its persistence are
// separate phases: Commit flushes the queue and only then snapshots
// state.
type journalOp func(journal.Journal) error

func (e *Engine) queue(op journalOp) {
	if e.journal == nil {
		return
	}
	e.pending = append(e.pending, op)
}

// Commit flushes queued journal writes, then snapshots engine state.
// Ops are dequeued one at a time as they succeed, so a retry after a
// partial failure repeats only the writes that did not land. Every
// journal write is idempotent, which makes the retry safe. The tick is
// not durable until Commit returns nil.
func (e *Engine) Commit() error {
	for len(e.pending) > 0 {
		if err := e.pending[0](e.journal); err != nil {
			return fmt.Errorf("journal flush: %w", err)
		}
		e.pending = e.pending[1:]
	}
	if err := e.saveState(); err != nil {
		return fmt.Errorf("state snapshot: %w", err)
	}
	return nil
}

// Pending reports how many journal writes are still queued. Nonzero
// after a Commit error means the tick is not yet durable.
func (e *Engine) Pending() int { return len(e.pending) }

// queueStatus pushes the per-tick portfolio, unit and equity snapshots.
// Timestamps come from the bar, not the wall clock, so a backtest
// journals the same rows every run.
func (e *Engine) queueStatus(ts time.Time, day market.Day) {
	open := 0
	for _, u := range e.units {
		if u.holding() {
			open++
		}
	}
	ps := journal.PortfolioStatus{
		TotalCapital: e.TotalCapital(),
		DayPnL:       e.DayPnL(day),
		Day:          day,
		OpenCount:    open,
		UpdatedAt:    ts,
	}
	e.queue(func(j journal.Journal) error { return j.UpdatePortfolio(ps) })

	statuses := make([]journal.UnitStatus, len(e.units))
	for i, u := range e.units {
		statuses[i] = journal.UnitStatus{
			UnitID:      u.ID,
			Capital:     u.Capital,
			TradesToday: u.TradesToday,
			DayPnL:      u.DailyPnL[day],
			Busy:        u.holding(),
			Cooldown:    u.CooldownBars,
			UpdatedAt:   ts,
		}
	}
	e.queue(func(j journal.Journal) error { return j.UpdateUnitStatus(statuses) })

	eq := journal.EquitySnapshot{Time: ts, Equity: e.TotalCapital()}
	e.queue(func(j journal.Journal) error { return j.RecordEquity(eq) })
}

func barRecord(bar market.Bar) journal.BarRecord {
	sig := ""
	if bar.Signal != nil {
		sig = bar.Signal.String()
	}
	return journal.BarRecord{
		Time:    bar.Time,
		Open:    bar.Open,
		High:    bar.High,
		Low:     bar.Low,
		Close:   bar.Close,
		Volume:  bar.Volume,
		ADX:     bar.Ind(market.IndADX),
		RSI:     bar.Ind(market.IndRSI),
		EMAFast: bar.Ind(market.IndEMAFast),
		EMASlow: bar.Ind(market.IndEMASlow),
		Signal:  sig,
	}
}

func tradeRecord(runID string, ct ClosedTrade) journal.TradeRecord {
	return journal.TradeRecord{
		RunID:        runID,
		UnitID:       ct.UnitID,
		OptionType:   ct.Direction.String(),
		Symbol:       ct.Symbol,
		Strike:       ct.Strike,
		LotSize:      ct.LotSize,
		Quantity:     ct.Quantity,
		EntryTime:    ct.EntryTime,
		ExitTime:     ct.ExitTime,
		EntrySpot:    ct.EntrySpot,
		ExitSpot:     ct.ExitSpot,
		EntryPremium: ct.EntryPremium,
		ExitPremium:  ct.ExitPremium,
		BarsHeld:     ct.BarsHeld,
		PnL:          ct.PnL,
		ExitReason:   string(ct.ExitReason),
		LiveData:     ct.LiveData,
	}
}

func openRecord(p *Position, ts time.Time) journal.OpenPosition {
	return journal.OpenPosition{
		UnitID:        p.UnitID,
		OptionType:    p.Direction.String(),
		Symbol:        p.Symbol,
		Strike:        p.Strike,
		LotSize:       p.LotSize,
		Quantity:      p.Quantity,
		EntryTime:     p.EntryTime,
		EntrySpot:     p.EntrySpot,
		EntryPremium:  p.EntryPremium,
		EntryBarIndex: p.EntryBarIndex,
		SecurityID:    p.SecurityID,
		UpdatedAt:     ts,
	}
}

func journalSummary(s DailySummary) journal.DailySummary {
	return journal.DailySummary{
		Day:          s.Day,
		StartCapital: s.StartCapital,
		EndCapital:   s.EndCapital,
		PnL:          s.PnL,
		ReturnPct:    s.ReturnPct,
		Trades:       s.Trades,
		Wins:         s.Wins,
		WinRate:      s.WinRate,
	}
}
