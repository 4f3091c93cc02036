// Package live polls the exchange on interval boundaries and feeds
// each freshly closed candle to the trading engine. It is the
// production counterpart of the backtest runner: both drive the same
// engine, so a strategy behaves identically in replay and in the
// market.
package live

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kppillai/niftybot/engine"
	"github.com/kppillai/niftybot/market"
)

// SpotSource returns recent index candles, oldest first.
type SpotSource interface {
	SpotCandles(ctx context.Context, interval string, daysBack int) ([]market.Candle, error)
}

// Enricher computes indicators and signals over raw candles.
type Enricher interface {
	Enrich([]market.Candle) []market.Bar
}

// PremiumCache manages per-contract option series for live pricing.
// The driver loads a series when a position opens, refreshes it every
// cycle while the position is held, and drops it on exit.
type PremiumCache interface {
	Load(ctx context.Context, securityID string) error
	Refresh(ctx context.Context, securityID string)
	Loaded(securityID string) bool
	Drop(securityID string)
}

// Notifier is the subset of alerting the driver raises itself. Trade
// and risk alerts come from the engine's own notifier.
type Notifier interface {
	Start(capital float64, units int)
	Error(msg string)
}

// Config paces the polling loop.
type Config struct {
	Session      market.Session
	Interval     string        // candle API interval code, e.g. "15"
	LookbackDays int           // spot history window per fetch
	SettleDelay  time.Duration // wait past the boundary so the bar is final
	ErrorBackoff time.Duration // pause after a failed cycle
	CommitRetry  int           // commit attempts per tick beyond the first
	CommitPause  time.Duration // pause between commit attempts
}

func (c Config) withDefaults() Config {
	if c.Interval == "" {
		c.Interval = "15"
	}
	if c.LookbackDays <= 0 {
		c.LookbackDays = 2
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 7 * time.Second
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = time.Minute
	}
	if c.CommitRetry <= 0 {
		c.CommitRetry = 2
	}
	if c.CommitPause <= 0 {
		c.CommitPause = 2 * time.Second
	}
	if c.Session.Location == nil {
		c.Session.Location = time.UTC
	}
	return c
}

// Driver owns the live loop. Construct with New; the premium cache and
// notifier are optional.
type Driver struct {
	cfg      Config
	engine   *engine.Engine
	source   SpotSource
	strategy Enricher
	prices   PremiumCache
	notifier Notifier
}

func New(cfg Config, eng *engine.Engine, source SpotSource, strategy Enricher) *Driver {
	return &Driver{
		cfg:      cfg.withDefaults(),
		engine:   eng,
		source:   source,
		strategy: strategy,
	}
}

func (d *Driver) SetPremiumCache(p PremiumCache) { d.prices = p }

func (d *Driver) SetNotifier(n Notifier) { d.notifier = n }

// Run blocks until ctx is cancelled, sleeping across nights and
// weekends and waking just after each interval boundary during market
// hours. Pending journal writes are flushed before returning.
func (d *Driver) Run(ctx context.Context) error {
	if d.notifier != nil {
		d.notifier.Start(d.engine.TotalCapital(), len(d.engine.Units()))
	}
	log.Printf("live: started, capital %.0f across %d units",
		d.engine.TotalCapital(), len(d.engine.Units()))

	for {
		if ctx.Err() != nil {
			return d.shutdown(ctx)
		}

		now := time.Now().In(d.cfg.Session.Location)
		if !d.cfg.Session.IsTradingDay(now) || !d.cfg.Session.IsOpen(now) {
			wait := d.cfg.Session.UntilOpen(now)
			if wait > time.Hour {
				log.Printf("live: market closed, next open in %s", wait.Round(time.Minute))
				wait = time.Hour
			}
			if !sleepCtx(ctx, wait) {
				return d.shutdown(ctx)
			}
			continue
		}

		if !sleepCtx(ctx, d.cfg.Session.NextBarDelay(now)) {
			return d.shutdown(ctx)
		}
		if !sleepCtx(ctx, d.cfg.SettleDelay) {
			return d.shutdown(ctx)
		}

		if err := d.Cycle(ctx); err != nil {
			log.Printf("live: cycle: %v", err)
			if d.notifier != nil {
				d.notifier.Error(err.Error())
			}
			if !sleepCtx(ctx, d.cfg.ErrorBackoff) {
				return d.shutdown(ctx)
			}
		}
	}
}

// Cycle processes at most one new bar: fetch spot history, enrich it,
// and hand the latest closed candle to the engine. Calling it again
// inside the same bar is a no-op apart from flushing any journal
// backlog a failed commit left behind.
func (d *Driver) Cycle(ctx context.Context) error {
	candles, err := d.source.SpotCandles(ctx, d.cfg.Interval, d.cfg.LookbackDays)
	if err != nil {
		return fmt.Errorf("spot fetch: %w", err)
	}

	bars := d.strategy.Enrich(candles)
	if len(bars) == 0 {
		log.Printf("live: no enriched bars yet, indicators warming up")
		return nil
	}

	bar := bars[len(bars)-1]
	if !bar.Time.After(d.engine.LastBarTime()) {
		if d.engine.Pending() > 0 {
			return d.commit(ctx)
		}
		return nil
	}

	d.refreshHeld(ctx)

	closed := d.engine.OnBar(bar)
	for _, ct := range closed {
		if d.prices != nil && ct.SecurityID != "" {
			d.prices.Drop(ct.SecurityID)
		}
	}
	d.loadEntered(ctx)

	if err := d.commit(ctx); err != nil {
		return err
	}

	day := market.DayOf(bar.Time)
	log.Printf("live: capital=%.0f day_pnl=%+.0f open=%d/%d",
		d.engine.TotalCapital(), d.engine.DayPnL(day), d.openCount(), len(d.engine.Units()))
	return nil
}

// refreshHeld pulls fresh option candles for every held contract so the
// tick prices exits from current data.
func (d *Driver) refreshHeld(ctx context.Context) {
	if d.prices == nil {
		return
	}
	for _, u := range d.engine.Units() {
		if p := u.Position; p != nil && p.SecurityID != "" && d.prices.Loaded(p.SecurityID) {
			d.prices.Refresh(ctx, p.SecurityID)
		}
	}
}

// loadEntered starts option series for contracts entered this bar. The
// entry itself priced off the live LTP fallback; from the next bar the
// series is authoritative.
func (d *Driver) loadEntered(ctx context.Context) {
	if d.prices == nil {
		return
	}
	for _, u := range d.engine.Units() {
		p := u.Position
		if p == nil || p.SecurityID == "" || d.prices.Loaded(p.SecurityID) {
			continue
		}
		if err := d.prices.Load(ctx, p.SecurityID); err != nil {
			log.Printf("live: load series %s: %v", p.SecurityID, err)
		}
	}
}

// commit flushes the tick's journal writes. A tick is not done until
// its writes land, so failures retry with a pause before the cycle
// reports the error.
func (d *Driver) commit(ctx context.Context) error {
	var err error
	for attempt := 0; attempt <= d.cfg.CommitRetry; attempt++ {
		if attempt > 0 {
			log.Printf("live: commit retry %d/%d: %v", attempt, d.cfg.CommitRetry, err)
			if !sleepCtx(ctx, d.cfg.CommitPause) {
				return ctx.Err()
			}
		}
		if err = d.engine.Commit(); err == nil {
			return nil
		}
	}
	return fmt.Errorf("commit: %w", err)
}

func (d *Driver) openCount() int {
	n := 0
	for _, u := range d.engine.Units() {
		if u.Position != nil {
			n++
		}
	}
	return n
}

// shutdown flushes whatever the last tick queued. State on disk then
// matches the journal and a restart resumes cleanly.
func (d *Driver) shutdown(ctx context.Context) error {
	if err := d.engine.Commit(); err != nil {
		log.Printf("live: shutdown commit: %v", err)
		return err
	}
	log.Printf("live: stopped")
	return ctx.Err()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
