package cmd

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kppillai/niftybot/journal"
	"github.com/kppillai/niftybot/market"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Report on journaled trades and backtest runs",
	Long: `Query the trade journal and print performance reports.

Subcommands:
  daily  - Recent end-of-day summaries
  today  - Trades entered today
  day    - Trades entered on a specific day
  runs   - Stored backtest runs
  run    - One backtest run in full

Examples:
  niftybot report daily -n 10
  niftybot report day 2026-02-02
  niftybot report run 01JMYV6GN0QZJ8F0Q2W14D7V5B`,
}

var reportDailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "List recent end-of-day summaries",
	Args:  cobra.NoArgs,
	RunE:  runReportDaily,
}

var reportTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List trades entered today",
	Args:  cobra.NoArgs,
	RunE:  runReportToday,
}

var reportDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades entered on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportDay,
}

var reportRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored backtest runs",
	Args:  cobra.NoArgs,
	RunE:  runReportRuns,
}

var reportRunCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Show one backtest run with its trades",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportRun,
}

var (
	reportDBPath string
	reportDays   int
	reportRunsN  int
)

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportDailyCmd)
	reportCmd.AddCommand(reportTodayCmd)
	reportCmd.AddCommand(reportDayCmd)
	reportCmd.AddCommand(reportRunsCmd)
	reportCmd.AddCommand(reportRunCmd)

	reportCmd.PersistentFlags().StringVarP(&reportDBPath, "db", "d", "data/trades.db", "path to SQLite journal DB")
	reportDailyCmd.Flags().IntVarP(&reportDays, "days", "n", 30, "number of days to show")
	reportRunsCmd.Flags().IntVarP(&reportRunsN, "limit", "n", 10, "number of runs to show")
}

func runReportDaily(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(reportDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	days, err := j.DailySummaries(reportDays)
	if err != nil {
		return fmt.Errorf("query daily: %w", err)
	}
	if len(days) == 0 {
		fmt.Println("No daily summaries recorded yet.")
		return nil
	}

	fmt.Printf("%-12s %7s %5s %7s %12s %9s %12s\n",
		"DAY", "TRADES", "WINS", "WIN%", "PNL", "RET%", "END CAP")
	var (
		totalPnL               float64
		totalTrades, totalWins int
	)
	for _, d := range days {
		fmt.Printf("%-12s %7d %5d %6.1f%% %12.2f %8.2f%% %12.2f\n",
			d.Day, d.Trades, d.Wins, d.WinRate*100, d.PnL, d.ReturnPct, d.EndCapital)
		totalPnL += d.PnL
		totalTrades += d.Trades
		totalWins += d.Wins
	}
	fmt.Printf("\n%d days, %d trades, %d wins, net %+.2f\n",
		len(days), totalTrades, totalWins, totalPnL)
	return nil
}

func runReportToday(cmd *cobra.Command, args []string) error {
	return reportTradesFor(market.DayOf(time.Now()))
}

func runReportDay(cmd *cobra.Command, args []string) error {
	if _, err := time.Parse("2006-01-02", args[0]); err != nil {
		return fmt.Errorf("date: %w", err)
	}
	return reportTradesFor(market.Day(args[0]))
}

func reportTradesFor(day market.Day) error {
	j, err := journal.NewSQLite(reportDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	trades, err := j.TradesBetween(day, day)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}

	fmt.Printf("Trades entered %s:\n\n", day)
	printTrades(trades)
	return nil
}

func runReportRuns(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(reportDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	runs, err := j.BacktestRuns(reportRunsN)
	if err != nil {
		return fmt.Errorf("query runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No backtest runs recorded yet.")
		return nil
	}

	for _, r := range runs {
		fmt.Printf("%s  %-24s %s..%s  trades=%-3d pnl=%+10.2f (%+.2f%%)  dd=%.2f%%\n",
			r.RunID, r.Dataset,
			r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"),
			r.Trades, r.NetPnL, r.ReturnPct, r.MaxDrawdownPct)
	}
	return nil
}

func runReportRun(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(reportDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	r, err := j.BacktestRunByID(args[0])
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("run %s not found", args[0])
	}
	if err != nil {
		return fmt.Errorf("query run: %w", err)
	}

	fmt.Printf("Run %s (%s)\n", r.RunID, r.Created.Format("2006-01-02 15:04"))
	fmt.Printf("  Dataset: %s @ %s\n", r.Dataset, r.Interval)
	fmt.Printf("  Period: %s .. %s\n",
		r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
	fmt.Printf("  Bars: %d\n", r.Bars)
	fmt.Printf("  Trades: %d (%d wins / %d losses, %.1f%% win rate)\n",
		r.Trades, r.Wins, r.Losses, r.WinRate*100)
	fmt.Printf("  Net P&L: %.2f (%.2f%%)\n", r.NetPnL, r.ReturnPct)
	fmt.Printf("  Capital: %.2f -> %.2f\n", r.StartCapital, r.EndCapital)
	fmt.Printf("  Max Drawdown: %.2f%%\n", r.MaxDrawdownPct)
	if r.ProfitFactor > 0 {
		fmt.Printf("  Profit Factor: %.2f\n", r.ProfitFactor)
	}
	fmt.Printf("  Avg Hold: %.1f bars\n", r.AvgHoldBars)
	if len(r.Config) > 0 {
		fmt.Printf("  Config: %s\n", r.Config)
	}

	trades, err := j.TradesByRun(r.RunID)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	fmt.Println()
	printTrades(trades)
	return nil
}

func printTrades(trades []journal.TradeRecord) {
	if len(trades) == 0 {
		fmt.Println("No trades.")
		return
	}

	fmt.Printf("%-17s %4s %-18s %4s %9s %9s %5s %11s %-10s\n",
		"ENTRY", "UNIT", "SYMBOL", "QTY", "IN", "OUT", "BARS", "PNL", "REASON")
	var (
		total float64
		wins  int
	)
	for _, t := range trades {
		fmt.Printf("%-17s %4d %-18s %4d %9.2f %9.2f %5d %+11.2f %-10s\n",
			t.EntryTime.Format("2006-01-02 15:04"), t.UnitID, t.Symbol, t.Quantity,
			t.EntryPremium, t.ExitPremium, t.BarsHeld, t.PnL, t.ExitReason)
		total += t.PnL
		if t.PnL > 0 {
			wins++
		}
	}
	fmt.Printf("\n%d trades, %d wins, net %+.2f\n", len(trades), wins, total)
}
