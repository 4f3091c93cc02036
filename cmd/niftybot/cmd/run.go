package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kppillai/niftybot/alerts"
	"github.com/kppillai/niftybot/config"
	"github.com/kppillai/niftybot/contracts"
	"github.com/kppillai/niftybot/dhan"
	"github.com/kppillai/niftybot/engine"
	"github.com/kppillai/niftybot/journal"
	"github.com/kppillai/niftybot/live"
	"github.com/kppillai/niftybot/pkg/id"
	"github.com/kppillai/niftybot/strategies"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Paper-trade live NIFTY bars from the Dhan API",
	Long: `Run the bot against the live market.

Every interval boundary the bot fetches the latest spot candles,
enriches them with indicators, feeds the freshly closed bar to the
engine and journals the results. State is snapshotted after every
committed bar, so a restart resumes where the last run stopped.

Credentials come from the environment or a .env file:
DHAN_ACCESS_TOKEN, DHAN_CLIENT_ID and optionally TELEGRAM_BOT_TOKEN
and TELEGRAM_CHAT_ID for alerts.

Example:
  niftybot run --config config.yaml`,
	RunE: runRun,
}

var runConfigPath string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON); built-in defaults when omitted")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(runConfigPath)
	if err != nil {
		return err
	}
	if cfg.Dhan.AccessToken == "" || cfg.Dhan.ClientID == "" {
		return fmt.Errorf("missing credentials: set DHAN_ACCESS_TOKEN and DHAN_CLIENT_ID")
	}

	engCfg, err := cfg.EngineConfig()
	if err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	j, err := openJournal(cfg)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	selector, err := contracts.NewSelector(cfg.Dhan.ScripMaster, cfg.Sizing.LotSize)
	if err != nil {
		return fmt.Errorf("scrip master: %w", err)
	}

	eng := engine.New(engCfg, j, selector)
	eng.SetRunID(id.New())
	eng.SetStatePath(cfg.StatePath)
	if err := eng.LoadState(); err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	client := dhan.NewClient(cfg.Dhan.AccessToken, cfg.Dhan.ClientID, engCfg.Session.Location)
	prices := dhan.NewPriceCache(client, cfg.APIInterval())
	eng.SetPremiumSource(prices)

	driver := live.New(live.Config{
		Session:      engCfg.Session,
		Interval:     cfg.APIInterval(),
		LookbackDays: cfg.Dhan.LookbackDays,
	}, eng, client, strategies.NewConfluence(cfg.SignalParams()))
	driver.SetPremiumCache(prices)

	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != "" {
		tg := alerts.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		eng.SetNotifier(tg)
		driver.SetNotifier(tg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Starting niftybot (run %s)\n", eng.RunID())
	fmt.Printf("  Capital: %.0f across %d units\n", eng.TotalCapital(), len(eng.Units()))
	fmt.Printf("  Journal: %s\n", journalTarget(cfg))
	fmt.Printf("  State:   %s\n\n", cfg.StatePath)

	err = driver.Run(ctx)
	if errors.Is(err, context.Canceled) {
		fmt.Println("\nShutdown complete, state saved.")
		return nil
	}
	return err
}

// loadConfig reads the file when a path is given and falls back to the
// built-in defaults otherwise. Environment secrets overlay either way.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}

	cfg := config.Default()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openJournal(cfg *config.Config) (journal.Journal, error) {
	switch cfg.Journal.Driver {
	case "postgres":
		return journal.NewPostgres(context.Background(), cfg.Journal.DatabaseURL)
	case "csv":
		return journal.NewCSV(cfg.Journal.TradesFile, cfg.Journal.EquityFile, cfg.Journal.DailyFile)
	default:
		return journal.NewSQLite(cfg.Journal.DBPath)
	}
}

func journalTarget(cfg *config.Config) string {
	switch cfg.Journal.Driver {
	case "postgres":
		return "postgres"
	case "csv":
		return cfg.Journal.TradesFile
	default:
		return cfg.Journal.DBPath
	}
}
