package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kppillai/niftybot/engine"
	"github.com/kppillai/niftybot/market"
	"github.com/kppillai/niftybot/strategies"
)

// Config is the complete bot configuration. Everything is a load-time
// constant; nothing is reconfigured mid-run.
type Config struct {
	Capital   CapitalConfig   `json:"capital" yaml:"capital"`
	Session   SessionConfig   `json:"session" yaml:"session"`
	Signal    SignalConfig    `json:"signal" yaml:"signal"`
	Exits     ExitsConfig     `json:"exits" yaml:"exits"`
	Sizing    SizingConfig    `json:"sizing" yaml:"sizing"`
	Risk      RiskConfig      `json:"risk" yaml:"risk"`
	Dhan      DhanConfig      `json:"dhan" yaml:"dhan"`
	Journal   JournalConfig   `json:"journal" yaml:"journal"`
	Telegram  TelegramConfig  `json:"telegram" yaml:"telegram"`
	Dashboard DashboardConfig `json:"dashboard" yaml:"dashboard"`
	StatePath string          `json:"state_path" yaml:"state_path"`
	ReportDir string          `json:"report_dir" yaml:"report_dir"`
}

// CapitalConfig partitions the account into independent units.
type CapitalConfig struct {
	Units           int     `json:"units" yaml:"units"`
	UnitSize        float64 `json:"unit_size" yaml:"unit_size"`
	StartingCapital float64 `json:"starting_capital" yaml:"starting_capital"`
}

// SessionConfig describes the trading session in exchange-local clocks.
type SessionConfig struct {
	Timezone   string `json:"timezone" yaml:"timezone"`
	Open       string `json:"open" yaml:"open"`
	Close      string `json:"close" yaml:"close"`
	EntryStart string `json:"entry_start" yaml:"entry_start"`
	EntryEnd   string `json:"entry_end" yaml:"entry_end"`
	HardClose  string `json:"hard_close" yaml:"hard_close"`
	Interval   string `json:"interval" yaml:"interval"` // e.g. "15m"
}

// SignalConfig holds the confluence thresholds.
type SignalConfig struct {
	EMAFast      int     `json:"ema_fast" yaml:"ema_fast"`
	EMASlow      int     `json:"ema_slow" yaml:"ema_slow"`
	RSIPeriod    int     `json:"rsi_period" yaml:"rsi_period"`
	ADXPeriod    int     `json:"adx_period" yaml:"adx_period"`
	ADXMin       float64 `json:"adx_min" yaml:"adx_min"`
	RSIBuy       float64 `json:"rsi_buy" yaml:"rsi_buy"`
	RSISell      float64 `json:"rsi_sell" yaml:"rsi_sell"`
	MinConfirms  int     `json:"min_confirms" yaml:"min_confirms"`
	CooldownBars int     `json:"cooldown_bars" yaml:"cooldown_bars"`
}

// ExitsConfig holds the exit thresholds as fractions of entry premium.
// A zero TrailLock disables the trailing stop. MaxTradesPerDay caps each
// unit, not the portfolio.
type ExitsConfig struct {
	StopLoss        float64 `json:"stop_loss" yaml:"stop_loss"`
	TakeProfit      float64 `json:"take_profit" yaml:"take_profit"`
	TrailActivate   float64 `json:"trail_activate" yaml:"trail_activate"`
	TrailLock       float64 `json:"trail_lock" yaml:"trail_lock"`
	MinHoldBars     int     `json:"min_hold_bars" yaml:"min_hold_bars"`
	TimeExitBars    int     `json:"time_exit_bars" yaml:"time_exit_bars"`
	MaxTradesPerDay int     `json:"max_trades_per_day" yaml:"max_trades_per_day"`
}

// SizingConfig controls position sizing per entry.
type SizingConfig struct {
	MaxCostFraction float64 `json:"max_cost_fraction" yaml:"max_cost_fraction"`
	MaxLots         int     `json:"max_lots" yaml:"max_lots"`
	LotSize         int     `json:"lot_size" yaml:"lot_size"`
	Slippage        float64 `json:"slippage" yaml:"slippage"`
}

// RiskConfig holds the portfolio and unit guard thresholds.
type RiskConfig struct {
	MaxDrawdown     float64 `json:"max_drawdown" yaml:"max_drawdown"`
	MaxDayLoss      float64 `json:"max_day_loss" yaml:"max_day_loss"`
	MaxUnitDayLoss  float64 `json:"max_unit_day_loss" yaml:"max_unit_day_loss"`
	LossStreakLimit int     `json:"loss_streak_limit" yaml:"loss_streak_limit"`
	CooldownBars    int     `json:"cooldown_bars" yaml:"cooldown_bars"`
}

// DhanConfig holds the data-API credentials and fetch settings.
// Credentials normally arrive via environment, not the config file.
type DhanConfig struct {
	AccessToken  string `json:"access_token,omitempty" yaml:"access_token,omitempty"`
	ClientID     string `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	ScripMaster  string `json:"scrip_master" yaml:"scrip_master"`
	LookbackDays int    `json:"lookback_days" yaml:"lookback_days"`
}

// JournalConfig selects the persistence backend.
type JournalConfig struct {
	Driver      string `json:"driver" yaml:"driver"` // "sqlite", "postgres" or "csv"
	DBPath      string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	DatabaseURL string `json:"database_url,omitempty" yaml:"database_url,omitempty"`
	TradesFile  string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile  string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DailyFile   string `json:"daily_file,omitempty" yaml:"daily_file,omitempty"`
}

// TelegramConfig enables alerts when both fields are set.
type TelegramConfig struct {
	Token  string `json:"token,omitempty" yaml:"token,omitempty"`
	ChatID string `json:"chat_id,omitempty" yaml:"chat_id,omitempty"`
}

// DashboardConfig holds the HTTP listen address.
type DashboardConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// LoadFromFile loads configuration from a file (JSON or YAML based on
// content), overlays environment secrets and validates.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays secrets from the environment, loading a .env file
// first when one exists. File values lose to environment values so a
// checked-in config never ships credentials.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("DHAN_ACCESS_TOKEN"); v != "" {
		c.Dhan.AccessToken = v
	}
	if v := os.Getenv("DHAN_CLIENT_ID"); v != "" {
		c.Dhan.ClientID = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Journal.DatabaseURL = v
	}
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// BuildSession parses the session strings into a market.Session.
func (c *Config) BuildSession() (market.Session, error) {
	loc, err := time.LoadLocation(c.Session.Timezone)
	if err != nil {
		return market.Session{}, fmt.Errorf("session.timezone: %w", err)
	}
	interval, err := time.ParseDuration(c.Session.Interval)
	if err != nil {
		return market.Session{}, fmt.Errorf("session.interval: %w", err)
	}
	if interval < time.Minute {
		return market.Session{}, fmt.Errorf("session.interval %s: below one minute", c.Session.Interval)
	}

	var clockErr error
	parse := func(field, v string) market.Clock {
		cl, err := market.ParseClock(v)
		if err != nil && clockErr == nil {
			clockErr = fmt.Errorf("session.%s: %w", field, err)
		}
		return cl
	}
	sess := market.Session{
		Location:   loc,
		Open:       parse("open", c.Session.Open),
		Close:      parse("close", c.Session.Close),
		EntryStart: parse("entry_start", c.Session.EntryStart),
		EntryEnd:   parse("entry_end", c.Session.EntryEnd),
		HardClose:  parse("hard_close", c.Session.HardClose),
		Interval:   interval,
	}
	if clockErr != nil {
		return market.Session{}, clockErr
	}
	return sess, nil
}

// APIInterval is the candle interval in the form the Dhan API expects:
// whole minutes as a bare string.
func (c *Config) APIInterval() string {
	d, err := time.ParseDuration(c.Session.Interval)
	if err != nil {
		return "15"
	}
	return strconv.Itoa(int(d.Minutes()))
}

// EngineConfig assembles the engine constants from the config sections.
func (c *Config) EngineConfig() (engine.Config, error) {
	sess, err := c.BuildSession()
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Units:           c.Capital.Units,
		UnitSize:        c.Capital.UnitSize,
		StartingCapital: c.Capital.StartingCapital,

		Session: sess,

		StopLossFraction:        c.Exits.StopLoss,
		TakeProfitFraction:      c.Exits.TakeProfit,
		TrailActivationFraction: c.Exits.TrailActivate,
		TrailLockFraction:       c.Exits.TrailLock,
		MinHoldBars:             c.Exits.MinHoldBars,
		TimeExitBars:            c.Exits.TimeExitBars,

		SignalCooldownBars: c.Signal.CooldownBars,
		MaxTradesPerDay:    c.Exits.MaxTradesPerDay,
		MaxCostFraction:    c.Sizing.MaxCostFraction,
		MaxLots:            c.Sizing.MaxLots,
		SlippageFraction:   c.Sizing.Slippage,

		LossStreakLimit: c.Risk.LossStreakLimit,
		CooldownBars:    c.Risk.CooldownBars,

		MaxDrawdownFraction:    c.Risk.MaxDrawdown,
		MaxDayLossFraction:     c.Risk.MaxDayLoss,
		MaxUnitDayLossFraction: c.Risk.MaxUnitDayLoss,
	}, nil
}

// SignalParams assembles the confluence parameters.
func (c *Config) SignalParams() strategies.ConfluenceParams {
	return strategies.ConfluenceParams{
		EMAFast:     c.Signal.EMAFast,
		EMASlow:     c.Signal.EMASlow,
		RSIPeriod:   c.Signal.RSIPeriod,
		ADXPeriod:   c.Signal.ADXPeriod,
		ADXMin:      c.Signal.ADXMin,
		RSIBuy:      c.Signal.RSIBuy,
		RSISell:     c.Signal.RSISell,
		MinConfirms: c.Signal.MinConfirms,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Capital.Units <= 0 {
		return fmt.Errorf("capital.units must be positive")
	}
	if c.Capital.UnitSize <= 0 {
		return fmt.Errorf("capital.unit_size must be positive")
	}
	if c.Capital.StartingCapital <= 0 {
		return fmt.Errorf("capital.starting_capital must be positive")
	}
	if _, err := c.BuildSession(); err != nil {
		return err
	}
	if c.Signal.EMAFast <= 0 || c.Signal.EMASlow <= c.Signal.EMAFast {
		return fmt.Errorf("signal.ema_slow must be greater than signal.ema_fast, both positive")
	}
	if c.Signal.RSIPeriod <= 0 || c.Signal.ADXPeriod <= 0 {
		return fmt.Errorf("signal periods must be positive")
	}
	if c.Signal.RSIBuy <= c.Signal.RSISell {
		return fmt.Errorf("signal.rsi_buy must be greater than signal.rsi_sell")
	}
	if c.Exits.StopLoss <= 0 || c.Exits.StopLoss >= 1 {
		return fmt.Errorf("exits.stop_loss must be between 0 and 1")
	}
	if c.Exits.TakeProfit <= 0 {
		return fmt.Errorf("exits.take_profit must be positive")
	}
	if c.Exits.TrailLock < 0 || c.Exits.TrailLock >= 1 {
		return fmt.Errorf("exits.trail_lock must be in [0, 1)")
	}
	if c.Exits.TimeExitBars <= 0 {
		return fmt.Errorf("exits.time_exit_bars must be positive")
	}
	if c.Exits.MinHoldBars < 0 {
		return fmt.Errorf("exits.min_hold_bars cannot be negative")
	}
	if c.Exits.MaxTradesPerDay <= 0 {
		return fmt.Errorf("exits.max_trades_per_day must be positive")
	}
	if c.Sizing.MaxCostFraction <= 0 || c.Sizing.MaxCostFraction > 1 {
		return fmt.Errorf("sizing.max_cost_fraction must be between 0 and 1")
	}
	if c.Sizing.MaxLots <= 0 {
		return fmt.Errorf("sizing.max_lots must be positive")
	}
	if c.Sizing.LotSize <= 0 {
		return fmt.Errorf("sizing.lot_size must be positive")
	}
	if c.Sizing.Slippage < 0 || c.Sizing.Slippage >= 0.1 {
		return fmt.Errorf("sizing.slippage must be in [0, 0.1)")
	}
	if c.Risk.MaxDrawdown <= 0 || c.Risk.MaxDrawdown >= 1 {
		return fmt.Errorf("risk.max_drawdown must be between 0 and 1")
	}
	if c.Risk.MaxDayLoss <= 0 || c.Risk.MaxDayLoss >= 1 {
		return fmt.Errorf("risk.max_day_loss must be between 0 and 1")
	}
	if c.Risk.MaxUnitDayLoss <= 0 || c.Risk.MaxUnitDayLoss >= 1 {
		return fmt.Errorf("risk.max_unit_day_loss must be between 0 and 1")
	}
	if c.Risk.LossStreakLimit <= 0 {
		return fmt.Errorf("risk.loss_streak_limit must be positive")
	}
	if c.Risk.CooldownBars < 0 {
		return fmt.Errorf("risk.cooldown_bars cannot be negative")
	}
	switch c.Journal.Driver {
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal.db_path required for sqlite driver")
		}
	case "postgres":
		if c.Journal.DatabaseURL == "" {
			return fmt.Errorf("journal.database_url required for postgres driver")
		}
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" || c.Journal.DailyFile == "" {
			return fmt.Errorf("journal trades_file, equity_file and daily_file required for csv driver")
		}
	default:
		return fmt.Errorf("journal.driver must be 'sqlite', 'postgres' or 'csv'")
	}
	return nil
}

// Default returns the production configuration: five units of 20k,
// 15-minute NIFTY bars, two-of-four confluence entries and the tuned
// exit ladder.
func Default() *Config {
	return &Config{
		Capital: CapitalConfig{
			Units:           5,
			UnitSize:        20000,
			StartingCapital: 100000,
		},
		Session: SessionConfig{
			Timezone:   "Asia/Kolkata",
			Open:       "09:15",
			Close:      "15:30",
			EntryStart: "09:30",
			EntryEnd:   "14:15",
			HardClose:  "15:10",
			Interval:   "15m",
		},
		Signal: SignalConfig{
			EMAFast:      9,
			EMASlow:      21,
			RSIPeriod:    14,
			ADXPeriod:    14,
			ADXMin:       18,
			RSIBuy:       55,
			RSISell:      45,
			MinConfirms:  2,
			CooldownBars: 4,
		},
		Exits: ExitsConfig{
			StopLoss:        0.25,
			TakeProfit:      0.50,
			TrailActivate:   0.35,
			TrailLock:       0, // disabled
			MinHoldBars:     1,
			TimeExitBars:    6,
			MaxTradesPerDay: 4,
		},
		Sizing: SizingConfig{
			MaxCostFraction: 0.55,
			MaxLots:         1,
			LotSize:         75,
			Slippage:        0.003,
		},
		Risk: RiskConfig{
			MaxDrawdown:     0.10,
			MaxDayLoss:      0.05,
			MaxUnitDayLoss:  0.15,
			LossStreakLimit: 2,
			CooldownBars:    4,
		},
		Dhan: DhanConfig{
			ScripMaster:  "api-scrip-master.csv",
			LookbackDays: 5,
		},
		Journal: JournalConfig{
			Driver: "sqlite",
			DBPath: "data/trades.db",
		},
		Dashboard: DashboardConfig{
			Addr: ":8080",
		},
		StatePath: "state/bot_state.json",
		ReportDir: "reports",
	}
}
