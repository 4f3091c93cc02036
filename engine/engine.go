// Package engine holds the bar-driven decision core: one OnBar call per
// enriched candle mutates unit state, opens and closes positions, and
// queues journal writes that the caller flushes with Commit. The engine
// performs no I/O of its own beyond the state snapshot; market data,
// contract resolution, premiums, persistence and alerting are all
// injected collaborators.
//
// Exactly one OnBar call is in flight at a time. The engine assumes a
// single-owner driver loop (live poller or backtest iterator) and takes
// no locks.
package engine

import (
	"log"
	"strings"
	"time"

	"github.com/kppillai/niftybot/contracts"
	"github.com/kppillai/niftybot/journal"
	"github.com/kppillai/niftybot/market"
	"github.com/kppillai/niftybot/pkg/id"
	"github.com/kppillai/niftybot/pricing"
	"github.com/kppillai/niftybot/risk"
)

// ContractResolver picks the tradeable contract for a signal. Resolution
// must always produce a contract; implementations fall back to a
// synthetic one when no listed instrument matches.
type ContractResolver interface {
	Resolve(spot float64, right market.Direction, day market.Day) contracts.Contract
	ClearCache()
}

// PremiumSource supplies traded option premiums in live mode. ok=false
// means no traded price is known for that instant and the engine falls
// back to its deterministic pricing model.
type PremiumSource interface {
	Premium(securityID string, ts time.Time) (float64, bool)
}

// Notifier receives fire-and-forget lifecycle events. Implementations
// must swallow their own failures; a dead alert channel never affects
// engine state.
type Notifier interface {
	TradeEntry(Position)
	TradeExit(ClosedTrade)
	DailySummary(DailySummary)
	RiskBreach(v risk.Violation, totalCapital float64)
}

// Engine is the decision core. Construct with New, feed bars with OnBar,
// persist each tick with Commit.
type Engine struct {
	cfg   Config
	runID string

	units []*CapitalUnit
	rr    int

	barIndex    int
	lastBarTime time.Time
	lastBarDay  market.Day

	monthStartCapital float64
	dayStartCapital   float64
	dayTrades         int
	dayWins           int
	halted            bool

	contracts ContractResolver
	premiums  PremiumSource
	notifier  Notifier

	journal   journal.Journal
	pending   []journalOp
	statePath string
}

// New builds an engine with fresh units. journal may be nil (dry runs,
// unit tests); resolver must not be.
func New(cfg Config, j journal.Journal, resolver ContractResolver) *Engine {
	if cfg.Session.Location == nil {
		cfg.Session.Location = time.UTC
	}
	units := make([]*CapitalUnit, cfg.Units)
	for i := range units {
		units[i] = newUnit(i, cfg.UnitSize)
	}
	return &Engine{
		cfg:               cfg,
		runID:             id.New(),
		units:             units,
		monthStartCapital: cfg.StartingCapital,
		dayStartCapital:   cfg.StartingCapital,
		contracts:         resolver,
		journal:           j,
	}
}

// SetPremiumSource wires live option pricing. Without one the engine
// prices every position with the deterministic model.
func (e *Engine) SetPremiumSource(p PremiumSource) { e.premiums = p }

// SetNotifier wires the alert channel.
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// SetStatePath enables durable state snapshots at the given file path.
func (e *Engine) SetStatePath(path string) { e.statePath = path }

// SetRunID overrides the generated run id. Backtests set it so trades
// journal under the run they belong to.
func (e *Engine) SetRunID(runID string) { e.runID = runID }

func (e *Engine) RunID() string { return e.runID }

func (e *Engine) BarIndex() int { return e.barIndex }

func (e *Engine) LastBarTime() time.Time { return e.lastBarTime }

func (e *Engine) Halted() bool { return e.halted }

// Units exposes the unit slice for reporting. Callers must treat it as
// read-only; all mutation happens inside OnBar.
func (e *Engine) Units() []*CapitalUnit { return e.units }

// TotalCapital is the sum of unit capital. Premium paid for open
// positions is not deducted; P&L settles into capital at close.
func (e *Engine) TotalCapital() float64 {
	var total float64
	for _, u := range e.units {
		total += u.Capital
	}
	return total
}

// DayPnL is the realized portfolio P&L booked on the given day.
func (e *Engine) DayPnL(day market.Day) float64 {
	var pnl float64
	for _, u := range e.units {
		pnl += u.DailyPnL[day]
	}
	return pnl
}

// OnBar advances the engine by one enriched bar and returns the trades
// it closed. The sequence is fixed: day rollover, cooldown ticks, exits
// in unit-id order, risk guards, entry, status snapshot. Callers flush
// the tick with Commit before feeding the next bar.
func (e *Engine) OnBar(bar market.Bar) []ClosedTrade {
	day := market.DayOf(bar.Time.In(e.cfg.Session.Location))
	if e.lastBarDay != "" && day != e.lastBarDay {
		e.rollDay(day)
	}
	e.barIndex++
	e.lastBarTime = bar.Time
	e.lastBarDay = day

	rec := barRecord(bar)
	e.queue(func(j journal.Journal) error { return j.RecordBar(rec) })

	for _, u := range e.units {
		u.tickCooldown()
	}

	eod := e.cfg.Session.AtOrAfterHardClose(bar.Time)

	var closed []ClosedTrade
	for _, u := range e.units {
		if !u.holding() {
			continue
		}
		if ct, ok := e.tickPosition(u, bar, day, eod); ok {
			closed = append(closed, ct)
		}
	}

	dec := risk.Evaluate(e.policy(), e.riskSnapshot(day))
	if !dec.Allowed {
		codes := make([]string, len(dec.Violations))
		for i, v := range dec.Violations {
			codes[i] = v.Code
		}
		log.Printf("risk: entries halted [%s]", strings.Join(codes, " "))
		if !e.halted {
			e.halted = true
			for _, v := range dec.Violations {
				log.Printf("risk: %s", v.Msg)
				if e.notifier != nil {
					e.notifier.RiskBreach(v, e.TotalCapital())
				}
			}
		}
	} else if e.halted {
		e.halted = false
		log.Printf("risk: entries resumed, capital %.2f", e.TotalCapital())
	}

	if bar.Signal != nil && dec.Allowed && e.cfg.Session.InEntryWindow(bar.Time) {
		e.tryEntry(bar, *bar.Signal, day)
	}

	e.queueStatus(bar.Time, day)
	return closed
}

// tickPosition prices the unit's open position and applies the exit
// rules in priority order. When no rule fires the hold counter advances;
// the counter is always read before it is incremented, so a TimeExit
// reports exactly TimeExitBars.
func (e *Engine) tickPosition(u *CapitalUnit, bar market.Bar, day market.Day, eod bool) (ClosedTrade, bool) {
	p := u.Position
	prem, live := e.currentPremium(p, bar)
	if prem > p.PeakPremium {
		p.PeakPremium = prem
	}

	reason, exit := e.exitReason(p, prem, eod)
	if !exit {
		p.BarsHeld++
		return ClosedTrade{}, false
	}

	snap := *p
	pnl := pricing.PnL(snap.EntryPremium, prem, snap.LotSize, snap.Quantity, e.cfg.SlippageFraction)
	u.close(pnl, day, e.cfg.LossStreakLimit, e.cfg.CooldownBars)
	e.dayTrades++
	if pnl > 0 {
		e.dayWins++
	}

	ct := ClosedTrade{
		Position:     snap,
		ExitBarIndex: e.barIndex,
		ExitTime:     bar.Time,
		ExitSpot:     bar.Close,
		ExitPremium:  prem,
		PnL:          pnl,
		ExitReason:   reason,
		LiveData:     live,
	}
	trade := tradeRecord(e.runID, ct)
	e.queue(func(j journal.Journal) error { return j.RecordTrade(trade) })
	unitID := snap.UnitID
	e.queue(func(j journal.Journal) error { return j.RemoveOpenPosition(unitID) })

	log.Printf("EXIT unit=%d %s %s qty=%d prem=%.2f pnl=%.2f bars=%d reason=%s",
		snap.UnitID, snap.Direction, snap.Symbol, snap.Quantity, prem, pnl, snap.BarsHeld, reason)
	if e.notifier != nil {
		e.notifier.TradeExit(ct)
	}
	return ct, true
}

// exitReason resolves the exit rules against the current premium.
// Priority is fixed: stop loss, take profit, trailing stop, time exit,
// end of day. The trailing stop carries no minimum hold.
func (e *Engine) exitReason(p *Position, prem float64, eod bool) (ExitReason, bool) {
	cfg := e.cfg
	held := p.BarsHeld
	switch {
	case held >= cfg.MinHoldBars && prem <= p.EntryPremium*(1-cfg.StopLossFraction):
		return StopLoss, true
	case held >= cfg.MinHoldBars && prem >= p.EntryPremium*(1+cfg.TakeProfitFraction):
		return TakeProfit, true
	case cfg.trailConfigured() &&
		p.PeakPremium >= p.EntryPremium*(1+cfg.TrailActivationFraction) &&
		prem < p.PeakPremium*cfg.TrailLockFraction:
		return Trail, true
	case held >= cfg.MinHoldBars && held >= cfg.TimeExitBars:
		return TimeExit, true
	case eod:
		return EndOfDay, true
	}
	return "", false
}

// currentPremium prices an open position: the live source when it knows
// the instrument, the deterministic model otherwise. A position can
// always be priced, so it can always exit.
func (e *Engine) currentPremium(p *Position, bar market.Bar) (float64, bool) {
	if e.premiums != nil && p.SecurityID != "" {
		if prem, ok := e.premiums.Premium(p.SecurityID, bar.Time); ok && prem > 0 {
			return prem, true
		}
	}
	return pricing.EstimateExit(p.EntryPremium, p.EntrySpot, bar.Close, p.Direction, p.BarsHeld), false
}

// tryEntry resolves the contract and premium once, then walks the
// allocator for a unit that can afford one lot. A failed affordability
// check has no side effects on the unit; the next eligible unit is
// tried, at most once around the ring.
func (e *Engine) tryEntry(bar market.Bar, dir market.Direction, day market.Day) {
	c := e.contracts.Resolve(bar.Close, dir, day)
	prem, live := e.entryPremium(c, bar)
	if prem <= 0 {
		log.Printf("entry skipped: no premium for %s", c.Symbol)
		return
	}

	cost := prem * float64(c.LotSize)
	for range e.units {
		idx, ok := e.selectUnit(day)
		if !ok {
			return
		}
		u := e.units[idx]
		if cost > u.Capital {
			log.Printf("unit %d: cannot afford %s, lot %.2f > capital %.2f",
				u.ID, c.Symbol, cost, u.Capital)
			continue
		}

		qty := e.quantity(u.Capital, prem, c.LotSize)
		p := &Position{
			UnitID:        u.ID,
			Direction:     dir,
			EntryBarIndex: e.barIndex,
			EntryTime:     bar.Time,
			EntrySpot:     bar.Close,
			EntryPremium:  prem,
			PeakPremium:   prem,
			SecurityID:    c.SecurityID,
			Symbol:        c.Symbol,
			Strike:        c.Strike,
			LotSize:       c.LotSize,
			Quantity:      qty,
		}
		u.Position = p
		u.LastEntryBar = e.barIndex
		u.TradesToday++

		open := openRecord(p, bar.Time)
		e.queue(func(j journal.Journal) error { return j.UpsertOpenPosition(open) })

		log.Printf("ENTER unit=%d %s %s qty=%d prem=%.2f spot=%.2f live=%v",
			u.ID, dir, c.Symbol, qty, prem, bar.Close, live)
		if e.notifier != nil {
			e.notifier.TradeEntry(*p)
		}
		return
	}
}

// entryPremium asks the live source first, then falls back to the
// synthetic ATM approximation.
func (e *Engine) entryPremium(c contracts.Contract, bar market.Bar) (float64, bool) {
	if e.premiums != nil && c.SecurityID != "" {
		if prem, ok := e.premiums.Premium(c.SecurityID, bar.Time); ok && prem > 0 {
			return prem, true
		}
	}
	return pricing.Synthetic(bar.Close, float64(c.DaysToExpiry)), false
}

// quantity sizes the entry in lots, capped by MaxLots and by the
// fraction of unit capital a single trade may consume. Never below one
// lot; the one-lot affordability gate ran before this.
func (e *Engine) quantity(capital, premium float64, lotSize int) int {
	lots := int(capital * e.cfg.MaxCostFraction / (premium * float64(lotSize)))
	if lots < 1 {
		lots = 1
	}
	if lots > e.cfg.MaxLots {
		lots = e.cfg.MaxLots
	}
	return lots
}

// rollDay finalizes the previous trading day and resets per-day state.
// The month baseline for the drawdown guard re-anchors when the month
// changes.
func (e *Engine) rollDay(newDay market.Day) {
	prev := e.lastBarDay
	sum := e.daySummary(prev)
	js := journalSummary(sum)
	e.queue(func(j journal.Journal) error { return j.RecordDailySummary(js) })
	log.Printf("day %s closed: pnl=%.2f trades=%d wins=%d capital=%.2f",
		prev, sum.PnL, sum.Trades, sum.Wins, sum.EndCapital)
	if e.notifier != nil {
		e.notifier.DailySummary(sum)
	}

	for _, u := range e.units {
		u.TradesToday = 0
	}
	e.dayTrades = 0
	e.dayWins = 0
	e.dayStartCapital = e.TotalCapital()
	if newDay.Month() != prev.Month() {
		e.monthStartCapital = e.TotalCapital()
		log.Printf("month %s: drawdown baseline re-anchored at %.2f",
			newDay.Month(), e.monthStartCapital)
	}
	e.contracts.ClearCache()
}

// CloseDay finalizes the current day without waiting for the next day's
// first bar. Backtests call it after the last bar; the live loop relies
// on natural rollover.
func (e *Engine) CloseDay() {
	if e.lastBarDay == "" {
		return
	}
	sum := e.daySummary(e.lastBarDay)
	js := journalSummary(sum)
	e.queue(func(j journal.Journal) error { return j.RecordDailySummary(js) })
	log.Printf("day %s closed: pnl=%.2f trades=%d wins=%d capital=%.2f",
		e.lastBarDay, sum.PnL, sum.Trades, sum.Wins, sum.EndCapital)
	if e.notifier != nil {
		e.notifier.DailySummary(sum)
	}
	e.dayTrades = 0
	e.dayWins = 0
	e.dayStartCapital = e.TotalCapital()
}

func (e *Engine) daySummary(day market.Day) DailySummary {
	end := e.TotalCapital()
	pnl := end - e.dayStartCapital
	var winRate, retPct float64
	if e.dayTrades > 0 {
		winRate = float64(e.dayWins) / float64(e.dayTrades)
	}
	if e.dayStartCapital > 0 {
		retPct = pnl / e.dayStartCapital * 100
	}
	return DailySummary{
		Day:          day,
		StartCapital: e.dayStartCapital,
		EndCapital:   end,
		PnL:          pnl,
		ReturnPct:    retPct,
		Trades:       e.dayTrades,
		Wins:         e.dayWins,
		WinRate:      winRate,
	}
}

func (e *Engine) policy() risk.Policy {
	return risk.Policy{
		MaxDrawdownFraction: e.cfg.MaxDrawdownFraction,
		MaxDayLossFraction:  e.cfg.MaxDayLossFraction,
	}
}

func (e *Engine) riskSnapshot(day market.Day) risk.PortfolioSnapshot {
	return risk.PortfolioSnapshot{
		TotalCapital:    e.TotalCapital(),
		BaselineCapital: e.monthStartCapital,
		DayPnL:          e.DayPnL(day),
	}
}
