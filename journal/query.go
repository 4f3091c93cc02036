package journal

import (
	"database/sql"
	"time"

	"github.com/kppillai/niftybot/market"
)

// Read side of the SQLite journal, used by the dashboard and reports.

const tradeColumns = `run_id, unit_id, opt_type, symbol, strike, lot_size, qty,
	entry_time, exit_time, entry_spot, exit_spot,
	entry_prem, exit_prem, bars_held, pnl, exit_reason, live_data`

func scanTrade(rows *sql.Rows) (TradeRecord, error) {
	var (
		t                   TradeRecord
		entryTime, exitTime string
		live                int
	)
	err := rows.Scan(
		&t.RunID, &t.UnitID, &t.OptionType, &t.Symbol, &t.Strike, &t.LotSize, &t.Quantity,
		&entryTime, &exitTime, &t.EntrySpot, &t.ExitSpot,
		&t.EntryPremium, &t.ExitPremium, &t.BarsHeld, &t.PnL, &t.ExitReason, &live,
	)
	if err != nil {
		return TradeRecord{}, err
	}
	t.EntryTime = parseTime(entryTime)
	t.ExitTime = parseTime(exitTime)
	t.LiveData = live != 0
	return t, nil
}

// TradesBetween returns trades with trade_date in [from, to], oldest
// first. Zero-valued bounds are open-ended.
func (j *SQLiteJournal) TradesBetween(from, to market.Day) ([]TradeRecord, error) {
	q := `SELECT ` + tradeColumns + ` FROM trades`
	var (
		conds []string
		args  []any
	)
	if from != "" {
		conds = append(conds, "trade_date >= ?")
		args = append(args, string(from))
	}
	if to != "" {
		conds = append(conds, "trade_date <= ?")
		args = append(args, string(to))
	}
	for i, c := range conds {
		if i == 0 {
			q += " WHERE " + c
		} else {
			q += " AND " + c
		}
	}
	q += " ORDER BY entry_time"

	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TradesByRun returns all trades journaled under one run id.
func (j *SQLiteJournal) TradesByRun(runID string) ([]TradeRecord, error) {
	rows, err := j.db.Query(
		`SELECT `+tradeColumns+` FROM trades WHERE run_id = ? ORDER BY entry_time`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) OpenPositions() ([]OpenPosition, error) {
	rows, err := j.db.Query(`
		SELECT unit_id, opt_type, symbol, strike, lot_size, qty,
		       entry_time, entry_spot, entry_prem, bar_idx, sid, updated_at
		FROM open_positions ORDER BY unit_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OpenPosition
	for rows.Next() {
		var (
			p                    OpenPosition
			entryTime, updatedAt string
		)
		if err := rows.Scan(
			&p.UnitID, &p.OptionType, &p.Symbol, &p.Strike, &p.LotSize, &p.Quantity,
			&entryTime, &p.EntrySpot, &p.EntryPremium, &p.EntryBarIndex,
			&p.SecurityID, &updatedAt,
		); err != nil {
			return nil, err
		}
		p.EntryTime = parseTime(entryTime)
		p.UpdatedAt = parseTime(updatedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) Portfolio() (PortfolioStatus, error) {
	var (
		p              PortfolioStatus
		day, updatedAt string
	)
	err := j.db.QueryRow(`
		SELECT total_cap, day_pnl, trade_date, n_open, updated_at
		FROM portfolio_status WHERE id = 1`).
		Scan(&p.TotalCapital, &p.DayPnL, &day, &p.OpenCount, &updatedAt)
	if err != nil {
		return PortfolioStatus{}, err
	}
	p.Day = market.Day(day)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

func (j *SQLiteJournal) UnitStatuses() ([]UnitStatus, error) {
	rows, err := j.db.Query(`
		SELECT unit_id, capital, n_trades, day_pnl, busy, cooldown, updated_at
		FROM unit_status ORDER BY unit_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UnitStatus
	for rows.Next() {
		var (
			u         UnitStatus
			busy      int
			updatedAt string
		)
		if err := rows.Scan(&u.UnitID, &u.Capital, &u.TradesToday, &u.DayPnL,
			&busy, &u.Cooldown, &updatedAt); err != nil {
			return nil, err
		}
		u.Busy = busy != 0
		u.UpdatedAt = parseTime(updatedAt)
		out = append(out, u)
	}
	return out, rows.Err()
}

// RecentBars returns the last n enriched candles, oldest first.
func (j *SQLiteJournal) RecentBars(n int) ([]BarRecord, error) {
	rows, err := j.db.Query(`
		SELECT ts, open, high, low, close, volume, adx, rsi, ema_fast, ema_slow, signal
		FROM spot_candles ORDER BY ts DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BarRecord
	for rows.Next() {
		var (
			b  BarRecord
			ts string
		)
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume,
			&b.ADX, &b.RSI, &b.EMAFast, &b.EMASlow, &b.Signal); err != nil {
			return nil, err
		}
		b.Time = parseTime(ts)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

func (j *SQLiteJournal) EquityForDay(day market.Day) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT ts, equity FROM equity_curve WHERE trade_date = ? ORDER BY ts`, string(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var (
			e  EquitySnapshot
			ts string
		)
		if err := rows.Scan(&ts, &e.Equity); err != nil {
			return nil, err
		}
		e.Time = parseTime(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DailySummaries returns the last n day rollups, oldest first.
func (j *SQLiteJournal) DailySummaries(n int) ([]DailySummary, error) {
	rows, err := j.db.Query(`
		SELECT trade_date, start_cap, end_cap, pnl, return_pct, n_trades, n_wins, win_rate
		FROM daily_summary ORDER BY trade_date DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailySummary
	for rows.Next() {
		var (
			s   DailySummary
			day string
		)
		if err := rows.Scan(&day, &s.StartCapital, &s.EndCapital, &s.PnL,
			&s.ReturnPct, &s.Trades, &s.Wins, &s.WinRate); err != nil {
			return nil, err
		}
		s.Day = market.Day(day)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

const runColumns = `run_id, created, dataset, bar_interval, start_date, end_date,
	bars, trades, wins, losses, start_cap, end_cap,
	net_pnl, return_pct, win_rate, profit_factor, max_dd_pct, avg_hold_bars, config`

func scanRun(rows *sql.Rows) (BacktestRun, error) {
	var (
		r                   BacktestRun
		created, start, end string
		config              string
	)
	err := rows.Scan(
		&r.RunID, &created, &r.Dataset, &r.Interval, &start, &end,
		&r.Bars, &r.Trades, &r.Wins, &r.Losses, &r.StartCapital, &r.EndCapital,
		&r.NetPnL, &r.ReturnPct, &r.WinRate, &r.ProfitFactor, &r.MaxDrawdownPct,
		&r.AvgHoldBars, &config,
	)
	if err != nil {
		return BacktestRun{}, err
	}
	r.Created = parseTime(created)
	r.Start = parseTime(start)
	r.End = parseTime(end)
	r.Config = []byte(config)
	return r, nil
}

// BacktestRuns returns the last n stored runs, newest first.
func (j *SQLiteJournal) BacktestRuns(n int) ([]BacktestRun, error) {
	rows, err := j.db.Query(
		`SELECT `+runColumns+` FROM backtest_runs ORDER BY created DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BacktestRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// BacktestRunByID fetches one stored run. sql.ErrNoRows when absent.
func (j *SQLiteJournal) BacktestRunByID(runID string) (BacktestRun, error) {
	rows, err := j.db.Query(
		`SELECT `+runColumns+` FROM backtest_runs WHERE run_id = ?`, runID)
	if err != nil {
		return BacktestRun{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return BacktestRun{}, err
		}
		return BacktestRun{}, sql.ErrNoRows
	}
	return scanRun(rows)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
