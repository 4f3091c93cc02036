// journal/journal.go
package journal

import (
	"time"

	"github.com/kppillai/niftybot/market"
)

// TradeRecord is one closed trade, append-only. JSON tags follow the
// journal column names so the dashboard serves rows as-is.
type TradeRecord struct {
	RunID        string    `json:"run_id"`
	UnitID       int       `json:"unit_id"`
	OptionType   string    `json:"opt_type"`
	Symbol       string    `json:"symbol"`
	Strike       float64   `json:"strike"`
	LotSize      int       `json:"lot_size"`
	Quantity     int       `json:"qty"`
	EntryTime    time.Time `json:"entry_time"`
	ExitTime     time.Time `json:"exit_time"`
	EntrySpot    float64   `json:"entry_spot"`
	ExitSpot     float64   `json:"exit_spot"`
	EntryPremium float64   `json:"entry_prem"`
	ExitPremium  float64   `json:"exit_prem"`
	BarsHeld     int       `json:"bars_held"`
	PnL          float64   `json:"pnl"`
	ExitReason   string    `json:"exit_reason"`
	LiveData     bool      `json:"live_data"`
}

// EquitySnapshot is one point on the portfolio equity curve.
type EquitySnapshot struct {
	Time   time.Time `json:"ts"`
	Equity float64   `json:"equity"`
}

// BarRecord is the latest enriched spot candle, kept for dashboard charts.
type BarRecord struct {
	Time    time.Time `json:"ts"`
	Open    float64   `json:"open"`
	High    float64   `json:"high"`
	Low     float64   `json:"low"`
	Close   float64   `json:"close"`
	Volume  float64   `json:"volume"`
	ADX     float64   `json:"adx"`
	RSI     float64   `json:"rsi"`
	EMAFast float64   `json:"ema_fast"`
	EMASlow float64   `json:"ema_slow"`
	Signal  string    `json:"signal"`
}

// DailySummary is the end-of-day rollup for one trading day.
type DailySummary struct {
	Day          market.Day `json:"day"`
	StartCapital float64    `json:"start_cap"`
	EndCapital   float64    `json:"end_cap"`
	PnL          float64    `json:"pnl"`
	ReturnPct    float64    `json:"return_pct"`
	Trades       int        `json:"trades"`
	Wins         int        `json:"wins"`
	WinRate      float64    `json:"win_rate"`
}

// OpenPosition mirrors a live position so the dashboard can show it
// without touching engine memory. Upserted on entry, removed on exit.
type OpenPosition struct {
	UnitID        int       `json:"unit_id"`
	OptionType    string    `json:"opt_type"`
	Symbol        string    `json:"symbol"`
	Strike        float64   `json:"strike"`
	LotSize       int       `json:"lot_size"`
	Quantity      int       `json:"qty"`
	EntryTime     time.Time `json:"entry_time"`
	EntrySpot     float64   `json:"entry_spot"`
	EntryPremium  float64   `json:"entry_prem"`
	EntryBarIndex int       `json:"entry_bar_index"`
	SecurityID    string    `json:"security_id,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PortfolioStatus is a single-row snapshot of the whole book.
type PortfolioStatus struct {
	TotalCapital float64    `json:"total_capital"`
	DayPnL       float64    `json:"day_pnl"`
	Day          market.Day `json:"day"`
	OpenCount    int        `json:"open_count"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// UnitStatus is the per-unit snapshot behind the dashboard's unit grid.
type UnitStatus struct {
	UnitID      int       `json:"unit_id"`
	Capital     float64   `json:"capital"`
	TradesToday int       `json:"trades_today"`
	DayPnL      float64   `json:"day_pnl"`
	Busy        bool      `json:"busy"`
	Cooldown    int       `json:"cooldown"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Journal is the write side of persistence. The engine queues rows
// during a tick and flushes them on commit; implementations must treat
// every call as independent so a retried flush only repeats the calls
// that failed.
type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	RecordBar(BarRecord) error
	RecordDailySummary(DailySummary) error
	UpsertOpenPosition(OpenPosition) error
	RemoveOpenPosition(unitID int) error
	ClearOpenPositions() error
	UpdatePortfolio(PortfolioStatus) error
	UpdateUnitStatus([]UnitStatus) error
	Close() error
}

// Reader is the read side, used by the dashboard and reports. The core
// never reads its own journal.
type Reader interface {
	TradesBetween(from, to market.Day) ([]TradeRecord, error)
	OpenPositions() ([]OpenPosition, error)
	Portfolio() (PortfolioStatus, error)
	UnitStatuses() ([]UnitStatus, error)
	RecentBars(n int) ([]BarRecord, error)
	EquityForDay(day market.Day) ([]EquitySnapshot, error)
	DailySummaries(n int) ([]DailySummary, error)
}
