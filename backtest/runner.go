package backtest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kppillai/niftybot/engine"
	"github.com/kppillai/niftybot/journal"
	"github.com/kppillai/niftybot/market"
)

// Enricher turns raw candles into indicator bars. It must be pure so a
// replay enriches to the same bars the live driver saw.
type Enricher interface {
	Enrich([]market.Candle) []market.Bar
}

// Runner drives the engine over a historical candle series. The loop is
// the live driver's loop minus the waiting: enrich once, then feed every
// bar in order through OnBar and Commit.
type Runner struct {
	Engine   *engine.Engine
	Strategy Enricher
	Feed     BarFeed

	// Days with fewer enriched bars are skipped entirely, mirroring the
	// minimum the live session would produce. Zero means 5.
	MinDayBars int
}

// DayResult is one trading day's aggregate.
type DayResult struct {
	Day         market.Day
	Trades      int
	Wins        int
	PnL         float64
	EndCapital  float64
	DrawdownPct float64
}

// Result summarizes a completed run. WinRate is a fraction in [0, 1];
// AvgLoss is negative; ProfitFactor is zero when there are no losses.
type Result struct {
	Start time.Time
	End   time.Time

	Bars   int
	Days   int
	Trades int
	Wins   int
	Losses int

	StartCapital float64
	FinalCapital float64

	TotalPnL       float64
	ReturnPct      float64
	WinRate        float64
	GrossProfit    float64
	GrossLoss      float64
	ProfitFactor   float64
	MaxDrawdownPct float64
	AvgWin         float64
	AvgLoss        float64
	AvgHoldBars    float64

	ExitReasons map[string]int
	Daily       []DayResult
	Closed      []engine.ClosedTrade
}

type dayGroup struct {
	day  market.Day
	bars []market.Bar
}

// Run executes the backtest. A commit failure aborts the run: a tick is
// not done until its writes land.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Engine == nil {
		return Result{}, fmt.Errorf("backtest: Engine is required")
	}
	if r.Strategy == nil {
		return Result{}, fmt.Errorf("backtest: Strategy is required")
	}
	if r.Feed == nil {
		return Result{}, fmt.Errorf("backtest: Feed is required")
	}
	defer r.Feed.Close()

	var candles []market.Candle
	for {
		c, ok, err := r.Feed.Next()
		if err != nil {
			return Result{}, err
		}
		if !ok {
			break
		}
		candles = append(candles, c)
	}

	bars := r.Strategy.Enrich(candles)
	if len(bars) < 20 {
		return Result{}, fmt.Errorf("backtest: %d enriched bars, need at least 20", len(bars))
	}

	minBars := r.MinDayBars
	if minBars == 0 {
		minBars = 5
	}

	var days []dayGroup
	for _, b := range bars {
		d := market.DayOf(b.Time)
		if len(days) == 0 || days[len(days)-1].day != d {
			days = append(days, dayGroup{day: d})
		}
		days[len(days)-1].bars = append(days[len(days)-1].bars, b)
	}

	res := Result{
		StartCapital: r.Engine.TotalCapital(),
		ExitReasons:  make(map[string]int),
	}
	peak := res.StartCapital

	for _, dg := range days {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if len(dg.bars) < minBars {
			log.Printf("backtest: %s skipped, only %d bars", dg.day, len(dg.bars))
			continue
		}

		dayStart := r.Engine.TotalCapital()
		var dayTrades, dayWins int

		for _, bar := range dg.bars {
			closed := r.Engine.OnBar(bar)
			if err := r.Engine.Commit(); err != nil {
				return Result{}, fmt.Errorf("backtest: %s: %w", dg.day, err)
			}

			for _, ct := range closed {
				res.Closed = append(res.Closed, ct)
				res.ExitReasons[string(ct.ExitReason)]++
				res.TotalPnL += ct.PnL
				res.AvgHoldBars += float64(ct.BarsHeld)
				dayTrades++
				if ct.PnL > 0 {
					res.Wins++
					res.GrossProfit += ct.PnL
					dayWins++
				} else {
					res.Losses++
					res.GrossLoss += -ct.PnL
				}
			}

			equity := r.Engine.TotalCapital()
			if equity > peak {
				peak = equity
			}
			if dd := (peak - equity) / peak * 100; dd > res.MaxDrawdownPct {
				res.MaxDrawdownPct = dd
			}

			res.Bars++
			if res.Start.IsZero() {
				res.Start = bar.Time
			}
			res.End = bar.Time
		}

		endCap := r.Engine.TotalCapital()
		dayPnL := endCap - dayStart
		res.Days++
		res.Daily = append(res.Daily, DayResult{
			Day:         dg.day,
			Trades:      dayTrades,
			Wins:        dayWins,
			PnL:         dayPnL,
			EndCapital:  endCap,
			DrawdownPct: (peak - endCap) / peak * 100,
		})

		log.Printf("backtest: %s trades=%d wins=%d pnl=%+.0f capital=%.0f",
			dg.day, dayTrades, dayWins, dayPnL, endCap)
	}

	r.Engine.CloseDay()
	if err := r.Engine.Commit(); err != nil {
		return Result{}, fmt.Errorf("backtest: final commit: %w", err)
	}

	res.Trades = res.Wins + res.Losses
	res.FinalCapital = r.Engine.TotalCapital()
	if res.StartCapital > 0 {
		res.ReturnPct = res.TotalPnL / res.StartCapital * 100
	}
	if res.Trades > 0 {
		res.WinRate = float64(res.Wins) / float64(res.Trades)
		res.AvgHoldBars /= float64(res.Trades)
	}
	if res.Wins > 0 {
		res.AvgWin = res.GrossProfit / float64(res.Wins)
	}
	if res.Losses > 0 {
		res.AvgLoss = -res.GrossLoss / float64(res.Losses)
	}
	if res.GrossLoss > 0 {
		res.ProfitFactor = res.GrossProfit / res.GrossLoss
	}
	return res, nil
}

// RunRecord shapes the result as a journal row.
func (res Result) RunRecord(runID, dataset, interval string, cfg []byte) journal.BacktestRun {
	return journal.BacktestRun{
		RunID:    runID,
		Created:  time.Now(),
		Dataset:  dataset,
		Interval: interval,

		Start: res.Start,
		End:   res.End,

		Bars:   res.Bars,
		Trades: res.Trades,
		Wins:   res.Wins,
		Losses: res.Losses,

		StartCapital: res.StartCapital,
		EndCapital:   res.FinalCapital,

		NetPnL:         res.TotalPnL,
		ReturnPct:      res.ReturnPct,
		WinRate:        res.WinRate,
		ProfitFactor:   res.ProfitFactor,
		MaxDrawdownPct: res.MaxDrawdownPct,
		AvgHoldBars:    res.AvgHoldBars,

		Config: cfg,
	}
}
