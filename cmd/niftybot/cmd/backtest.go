package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kppillai/niftybot/backtest"
	"github.com/kppillai/niftybot/config"
	"github.com/kppillai/niftybot/contracts"
	"github.com/kppillai/niftybot/dhan"
	"github.com/kppillai/niftybot/engine"
	"github.com/kppillai/niftybot/journal"
	"github.com/kppillai/niftybot/market"
	"github.com/kppillai/niftybot/pkg/id"
	"github.com/kppillai/niftybot/strategies"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical NIFTY candles through the engine",
	Long: `Backtest runs the confluence strategy over historical 15-minute
candles using the exact engine the live bot trades with.

Candles come from a CSV file (time,open,high,low,close,volume) or,
when --from is given instead, straight from the Dhan API in monthly
chunks. Trades, equity and daily summaries are journaled under a fresh
run id, and the run summary lands in the backtest_runs table plus an
org-mode note for the research log.

Examples:
  niftybot backtest --csv data/nifty_2025.csv
  niftybot backtest --from 2025-11-01 --to 2026-01-31`,
	RunE: runBacktest,
}

var (
	btConfigPath string
	btCSVPath    string
	btFrom       string
	btTo         string
	btDBPath     string
	btOrgPath    string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btConfigPath, "config", "f", "", "path to config file (YAML or JSON); built-in defaults when omitted")
	backtestCmd.Flags().StringVarP(&btCSVPath, "csv", "t", "", "path to candle CSV (time,open,high,low,close,volume)")
	backtestCmd.Flags().StringVar(&btFrom, "from", "", "fetch start date YYYY-MM-DD (used when no --csv)")
	backtestCmd.Flags().StringVar(&btTo, "to", "", "fetch end date YYYY-MM-DD (default: today)")
	backtestCmd.Flags().StringVarP(&btDBPath, "db", "d", "backtest.db", "path to SQLite journal DB for results")
	backtestCmd.Flags().StringVarP(&btOrgPath, "org", "o", "", "org note output path (default: <report_dir>/<run-id>.org)")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	if btCSVPath == "" && btFrom == "" {
		return fmt.Errorf("either --csv or --from is required")
	}

	cfg, err := loadConfig(btConfigPath)
	if err != nil {
		return err
	}
	engCfg, err := cfg.EngineConfig()
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	j, err := journal.NewSQLite(btDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	selector, err := contracts.NewSelector(cfg.Dhan.ScripMaster, cfg.Sizing.LotSize)
	if err != nil {
		return fmt.Errorf("scrip master: %w", err)
	}

	runID := id.New()
	eng := engine.New(engCfg, j, selector)
	eng.SetRunID(runID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed, dataset, err := openFeed(ctx, cfg, engCfg.Session.Location)
	if err != nil {
		return err
	}
	defer feed.Close()

	fmt.Printf("Running backtest (run %s)\n", runID)
	fmt.Printf("  Dataset: %s\n", dataset)
	fmt.Printf("  Journal: %s\n\n", btDBPath)

	runner := &backtest.Runner{
		Engine:   eng,
		Strategy: strategies.NewConfluence(cfg.SignalParams()),
		Feed:     feed,
	}
	res, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	// The reproducing subset of the config, with credentials left out.
	cfgJSON, err := json.Marshal(struct {
		Capital config.CapitalConfig `json:"capital"`
		Signal  config.SignalConfig  `json:"signal"`
		Exits   config.ExitsConfig   `json:"exits"`
		Sizing  config.SizingConfig  `json:"sizing"`
		Risk    config.RiskConfig    `json:"risk"`
	}{cfg.Capital, cfg.Signal, cfg.Exits, cfg.Sizing, cfg.Risk})
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	rec := res.RunRecord(runID, dataset, cfg.Session.Interval, cfgJSON)
	rec.OrgPath = btOrgPath
	if rec.OrgPath == "" && cfg.ReportDir != "" {
		if err := os.MkdirAll(cfg.ReportDir, 0o755); err != nil {
			return fmt.Errorf("report dir: %w", err)
		}
		rec.OrgPath = filepath.Join(cfg.ReportDir, runID+".org")
	}

	if err := j.RecordBacktestRun(rec); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	if rec.OrgPath != "" {
		if err := rec.WriteOrg(); err != nil {
			return fmt.Errorf("write org note: %w", err)
		}
	}

	fmt.Printf("\nBacktest Complete!\n")
	fmt.Printf("  Bars: %d across %d trading days\n", res.Bars, res.Days)
	fmt.Printf("  Trades: %d (%d wins / %d losses, %.1f%% win rate)\n",
		res.Trades, res.Wins, res.Losses, res.WinRate*100)
	fmt.Printf("  Net P&L: %.2f (%.2f%%)\n", res.TotalPnL, res.ReturnPct)
	fmt.Printf("  Final Capital: %.2f\n", res.FinalCapital)
	fmt.Printf("  Max Drawdown: %.2f%%\n", res.MaxDrawdownPct)
	if res.ProfitFactor > 0 {
		fmt.Printf("  Profit Factor: %.2f\n", res.ProfitFactor)
	}
	fmt.Printf("  Avg Hold: %.1f bars\n", res.AvgHoldBars)

	if len(res.ExitReasons) > 0 {
		fmt.Printf("\nExit Reasons:\n")
		reasons := make([]string, 0, len(res.ExitReasons))
		for r := range res.ExitReasons {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			fmt.Printf("  %-12s %d\n", r, res.ExitReasons[r])
		}
	}

	if rec.OrgPath != "" {
		fmt.Printf("\nOrg note: %s\n", rec.OrgPath)
	}
	return nil
}

// openFeed picks the candle source: a CSV file when given, otherwise a
// chunked API fetch over the requested date range.
func openFeed(ctx context.Context, cfg *config.Config, loc *time.Location) (backtest.BarFeed, string, error) {
	if btCSVPath != "" {
		f, err := backtest.OpenCSVFeed(btCSVPath, loc)
		if err != nil {
			return nil, "", fmt.Errorf("open csv: %w", err)
		}
		return f, filepath.Base(btCSVPath), nil
	}

	if cfg.Dhan.AccessToken == "" || cfg.Dhan.ClientID == "" {
		return nil, "", fmt.Errorf("API fetch needs DHAN_ACCESS_TOKEN and DHAN_CLIENT_ID (or use --csv)")
	}

	from, err := time.ParseInLocation("2006-01-02", btFrom, loc)
	if err != nil {
		return nil, "", fmt.Errorf("bad --from date %q: %w", btFrom, err)
	}
	to := time.Now().In(loc)
	if btTo != "" {
		to, err = time.ParseInLocation("2006-01-02", btTo, loc)
		if err != nil {
			return nil, "", fmt.Errorf("bad --to date %q: %w", btTo, err)
		}
	}

	client := dhan.NewClient(cfg.Dhan.AccessToken, cfg.Dhan.ClientID, loc)
	candles, err := fetchRange(ctx, client, cfg.APIInterval(), from, to)
	if err != nil {
		return nil, "", err
	}
	dataset := fmt.Sprintf("dhan:%s..%s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	return backtest.NewSliceFeed(candles), dataset, nil
}

// fetchRange pulls spot candles in windows the API will serve.
func fetchRange(ctx context.Context, client *dhan.Client, interval string, from, to time.Time) ([]market.Candle, error) {
	const chunkDays = 30

	var candles []market.Candle
	for start := from; !start.After(to); start = start.AddDate(0, 0, chunkDays) {
		end := start.AddDate(0, 0, chunkDays-1)
		if end.After(to) {
			end = to
		}
		part, err := client.SpotCandlesRange(ctx, interval, start, end)
		if err != nil {
			return nil, fmt.Errorf("fetch %s..%s: %w",
				start.Format("2006-01-02"), end.Format("2006-01-02"), err)
		}
		candles = append(candles, part...)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles between %s and %s",
			from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	return candles, nil
}
