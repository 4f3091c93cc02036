package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kppillai/niftybot/dashboard"
	"github.com/kppillai/niftybot/journal"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Serve the read-only dashboard API",
	Long: `Serve a JSON API plus a WebSocket status stream over the journal.

The dashboard never writes, so it runs as its own process next to a
live bot sharing the same SQLite file (the journal is in WAL mode for
exactly this reason).

Endpoints:
  GET /api/health     liveness
  GET /api/status     portfolio, units and open positions
  GET /api/positions  open positions
  GET /api/units      per-unit capital and status
  GET /api/trades     closed trades (?from=&to=)
  GET /api/daily      daily summaries (?n=)
  GET /api/equity     intraday equity curve (?day=)
  GET /api/bars       recent enriched candles (?n=)
  GET /ws             status frames pushed on an interval

Example:
  niftybot dashboard --db data/trades.db --addr :8080`,
	RunE: runDashboard,
}

var (
	dashDBPath string
	dashPGURL  string
	dashAddr   string
	dashPush   time.Duration
)

func init() {
	rootCmd.AddCommand(dashboardCmd)

	dashboardCmd.Flags().StringVarP(&dashDBPath, "db", "d", "data/trades.db", "path to SQLite journal DB")
	dashboardCmd.Flags().StringVar(&dashPGURL, "database-url", "", "Postgres URL (overrides --db; DATABASE_URL env works too)")
	dashboardCmd.Flags().StringVarP(&dashAddr, "addr", "a", ":8080", "listen address")
	dashboardCmd.Flags().DurationVar(&dashPush, "push", 5*time.Second, "WebSocket status push interval")
}

// readCloser is what the dashboard needs from a journal backend.
type readCloser interface {
	journal.Reader
	Close() error
}

func runDashboard(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url := dashPGURL
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}

	var (
		j   readCloser
		err error
	)
	if url != "" {
		j, err = journal.NewPostgres(ctx, url)
	} else {
		j, err = journal.NewSQLite(dashDBPath)
	}
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	srv := dashboard.NewServer(j, dashPush)
	fmt.Printf("Dashboard listening on %s\n", dashAddr)

	err = srv.Run(ctx, dashAddr)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
