package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kppillai/niftybot/market"
)

// SQLiteJournal is the default journal. One file serves both the bot and
// the dashboard, so the connection runs in WAL mode to keep readers off
// the writer's back.
type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=30000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(`
		INSERT OR IGNORE INTO portfolio_status (id, total_cap, day_pnl, trade_date, n_open, updated_at)
		VALUES (1, 0, 0, '', 0, '')`); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(run_id, unit_id, opt_type, symbol, strike, lot_size, qty,
		 entry_time, exit_time, entry_spot, exit_spot,
		 entry_prem, exit_prem, bars_held, pnl, exit_reason,
		 live_data, trade_date, week_num, month_str)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, t.UnitID, t.OptionType, t.Symbol, t.Strike, t.LotSize, t.Quantity,
		t.EntryTime.Format(time.RFC3339), t.ExitTime.Format(time.RFC3339),
		t.EntrySpot, t.ExitSpot, t.EntryPremium, t.ExitPremium,
		t.BarsHeld, t.PnL, t.ExitReason, boolInt(t.LiveData),
		string(market.DayOf(t.EntryTime)), weekOf(t.EntryTime), market.DayOf(t.EntryTime).Month(),
	)
	return err
}

func (j *SQLiteJournal) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity_curve (ts, equity, trade_date)
		VALUES (?, ?, ?)`,
		e.Time.Format(time.RFC3339), e.Equity, string(market.DayOf(e.Time)),
	)
	return err
}

func (j *SQLiteJournal) RecordBar(b BarRecord) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO spot_candles
		(ts, open, high, low, close, volume, adx, rsi, ema_fast, ema_slow, signal)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Time.Format(time.RFC3339), b.Open, b.High, b.Low, b.Close, b.Volume,
		b.ADX, b.RSI, b.EMAFast, b.EMASlow, b.Signal,
	)
	return err
}

func (j *SQLiteJournal) RecordDailySummary(s DailySummary) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO daily_summary
		(trade_date, start_cap, end_cap, pnl, return_pct, n_trades, n_wins, win_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(s.Day), s.StartCapital, s.EndCapital, s.PnL, s.ReturnPct,
		s.Trades, s.Wins, s.WinRate,
	)
	return err
}

func (j *SQLiteJournal) UpsertOpenPosition(p OpenPosition) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO open_positions
		(unit_id, opt_type, symbol, strike, lot_size, qty,
		 entry_time, entry_spot, entry_prem, bar_idx, sid, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UnitID, p.OptionType, p.Symbol, p.Strike, p.LotSize, p.Quantity,
		p.EntryTime.Format(time.RFC3339), p.EntrySpot, p.EntryPremium,
		p.EntryBarIndex, p.SecurityID, p.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

func (j *SQLiteJournal) RemoveOpenPosition(unitID int) error {
	_, err := j.db.Exec(`DELETE FROM open_positions WHERE unit_id = ?`, unitID)
	return err
}

func (j *SQLiteJournal) ClearOpenPositions() error {
	_, err := j.db.Exec(`DELETE FROM open_positions`)
	return err
}

func (j *SQLiteJournal) UpdatePortfolio(p PortfolioStatus) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO portfolio_status
		(id, total_cap, day_pnl, trade_date, n_open, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)`,
		p.TotalCapital, p.DayPnL, string(p.Day), p.OpenCount,
		p.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

func (j *SQLiteJournal) UpdateUnitStatus(units []UnitStatus) error {
	for _, u := range units {
		_, err := j.db.Exec(`
			INSERT OR REPLACE INTO unit_status
			(unit_id, capital, n_trades, day_pnl, busy, cooldown, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			u.UnitID, u.Capital, u.TradesToday, u.DayPnL,
			boolInt(u.Busy), u.Cooldown, u.UpdatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (j *SQLiteJournal) RecordBacktestRun(r BacktestRun) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO backtest_runs
		(run_id, created, dataset, bar_interval, start_date, end_date,
		 bars, trades, wins, losses, start_cap, end_cap,
		 net_pnl, return_pct, win_rate, profit_factor, max_dd_pct, avg_hold_bars, config)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created.Format(time.RFC3339), r.Dataset, r.Interval,
		r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339),
		r.Bars, r.Trades, r.Wins, r.Losses, r.StartCapital, r.EndCapital,
		r.NetPnL, r.ReturnPct, r.WinRate, r.ProfitFactor, r.MaxDrawdownPct,
		r.AvgHoldBars, string(r.Config),
	)
	return err
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func weekOf(t time.Time) string {
	y, w := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", y, w)
}
