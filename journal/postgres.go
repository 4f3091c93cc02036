package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kppillai/niftybot/market"
)

const pgSchema = `
create table if not exists trades (
	id bigserial primary key,
	run_id text,
	unit_id int,
	opt_type text,
	symbol text,
	strike double precision,
	lot_size int,
	qty int,
	entry_time timestamptz,
	exit_time timestamptz,
	entry_spot double precision,
	exit_spot double precision,
	entry_prem double precision,
	exit_prem double precision,
	bars_held int,
	pnl double precision,
	exit_reason text,
	live_data boolean default false,
	trade_date text,
	week_num text,
	month_str text
);

create table if not exists open_positions (
	unit_id int primary key,
	opt_type text,
	symbol text,
	strike double precision,
	lot_size int,
	qty int,
	entry_time timestamptz,
	entry_spot double precision,
	entry_prem double precision,
	bar_idx int,
	sid text,
	updated_at timestamptz
);

create table if not exists portfolio_status (
	id int primary key check (id = 1),
	total_cap double precision,
	day_pnl double precision,
	trade_date text,
	n_open int,
	updated_at timestamptz
);

create table if not exists unit_status (
	unit_id int primary key,
	capital double precision,
	n_trades int,
	day_pnl double precision,
	busy boolean,
	cooldown int,
	updated_at timestamptz
);

create table if not exists spot_candles (
	ts timestamptz primary key,
	open double precision,
	high double precision,
	low double precision,
	close double precision,
	volume double precision,
	adx double precision,
	rsi double precision,
	ema_fast double precision,
	ema_slow double precision,
	signal text
);

create table if not exists equity_curve (
	id bigserial primary key,
	ts timestamptz,
	equity double precision,
	trade_date text
);

create table if not exists daily_summary (
	trade_date text primary key,
	start_cap double precision,
	end_cap double precision,
	pnl double precision,
	return_pct double precision,
	n_trades int,
	n_wins int,
	win_rate double precision
);

create table if not exists backtest_runs (
	run_id text primary key,
	created timestamptz,
	dataset text,
	bar_interval text,
	start_date timestamptz,
	end_date timestamptz,
	bars int,
	trades int,
	wins int,
	losses int,
	start_cap double precision,
	end_cap double precision,
	net_pnl double precision,
	return_pct double precision,
	win_rate double precision,
	profit_factor double precision,
	max_dd_pct double precision,
	avg_hold_bars double precision,
	config text
);

create index if not exists idx_trades_date on trades(trade_date);
create index if not exists idx_trades_run on trades(run_id);
create index if not exists idx_equity_date on equity_curve(trade_date);
`

// PostgresJournal is the Postgres-backed journal, for deployments where
// the dashboard runs on a different host than the bot.
type PostgresJournal struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*PostgresJournal, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	if _, err := pool.Exec(ctx, `
		insert into portfolio_status (id, total_cap, day_pnl, trade_date, n_open)
		values (1, 0, 0, '', 0)
		on conflict (id) do nothing`); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresJournal{pool: pool}, nil
}

func (j *PostgresJournal) RecordTrade(t TradeRecord) error {
	_, err := j.pool.Exec(context.Background(), `
		insert into trades
		(run_id, unit_id, opt_type, symbol, strike, lot_size, qty,
		 entry_time, exit_time, entry_spot, exit_spot,
		 entry_prem, exit_prem, bars_held, pnl, exit_reason,
		 live_data, trade_date, week_num, month_str)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		t.RunID, t.UnitID, t.OptionType, t.Symbol, t.Strike, t.LotSize, t.Quantity,
		t.EntryTime, t.ExitTime, t.EntrySpot, t.ExitSpot,
		t.EntryPremium, t.ExitPremium, t.BarsHeld, t.PnL, t.ExitReason,
		t.LiveData, string(market.DayOf(t.EntryTime)), weekOf(t.EntryTime),
		market.DayOf(t.EntryTime).Month(),
	)
	return err
}

func (j *PostgresJournal) RecordEquity(e EquitySnapshot) error {
	_, err := j.pool.Exec(context.Background(), `
		insert into equity_curve (ts, equity, trade_date) values ($1, $2, $3)`,
		e.Time, e.Equity, string(market.DayOf(e.Time)),
	)
	return err
}

func (j *PostgresJournal) RecordBar(b BarRecord) error {
	_, err := j.pool.Exec(context.Background(), `
		insert into spot_candles
		(ts, open, high, low, close, volume, adx, rsi, ema_fast, ema_slow, signal)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		on conflict (ts) do update set
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			adx = excluded.adx,
			rsi = excluded.rsi,
			ema_fast = excluded.ema_fast,
			ema_slow = excluded.ema_slow,
			signal = excluded.signal`,
		b.Time, b.Open, b.High, b.Low, b.Close, b.Volume,
		b.ADX, b.RSI, b.EMAFast, b.EMASlow, b.Signal,
	)
	return err
}

func (j *PostgresJournal) RecordDailySummary(s DailySummary) error {
	_, err := j.pool.Exec(context.Background(), `
		insert into daily_summary
		(trade_date, start_cap, end_cap, pnl, return_pct, n_trades, n_wins, win_rate)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
		on conflict (trade_date) do update set
			start_cap = excluded.start_cap,
			end_cap = excluded.end_cap,
			pnl = excluded.pnl,
			return_pct = excluded.return_pct,
			n_trades = excluded.n_trades,
			n_wins = excluded.n_wins,
			win_rate = excluded.win_rate`,
		string(s.Day), s.StartCapital, s.EndCapital, s.PnL, s.ReturnPct,
		s.Trades, s.Wins, s.WinRate,
	)
	return err
}

func (j *PostgresJournal) UpsertOpenPosition(p OpenPosition) error {
	_, err := j.pool.Exec(context.Background(), `
		insert into open_positions
		(unit_id, opt_type, symbol, strike, lot_size, qty,
		 entry_time, entry_spot, entry_prem, bar_idx, sid, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		on conflict (unit_id) do update set
			opt_type = excluded.opt_type,
			symbol = excluded.symbol,
			strike = excluded.strike,
			lot_size = excluded.lot_size,
			qty = excluded.qty,
			entry_time = excluded.entry_time,
			entry_spot = excluded.entry_spot,
			entry_prem = excluded.entry_prem,
			bar_idx = excluded.bar_idx,
			sid = excluded.sid,
			updated_at = excluded.updated_at`,
		p.UnitID, p.OptionType, p.Symbol, p.Strike, p.LotSize, p.Quantity,
		p.EntryTime, p.EntrySpot, p.EntryPremium, p.EntryBarIndex,
		p.SecurityID, p.UpdatedAt,
	)
	return err
}

func (j *PostgresJournal) RemoveOpenPosition(unitID int) error {
	_, err := j.pool.Exec(context.Background(),
		`delete from open_positions where unit_id = $1`, unitID)
	return err
}

func (j *PostgresJournal) ClearOpenPositions() error {
	_, err := j.pool.Exec(context.Background(), `delete from open_positions`)
	return err
}

func (j *PostgresJournal) UpdatePortfolio(p PortfolioStatus) error {
	_, err := j.pool.Exec(context.Background(), `
		insert into portfolio_status (id, total_cap, day_pnl, trade_date, n_open, updated_at)
		values (1, $1, $2, $3, $4, $5)
		on conflict (id) do update set
			total_cap = excluded.total_cap,
			day_pnl = excluded.day_pnl,
			trade_date = excluded.trade_date,
			n_open = excluded.n_open,
			updated_at = excluded.updated_at`,
		p.TotalCapital, p.DayPnL, string(p.Day), p.OpenCount, p.UpdatedAt,
	)
	return err
}

func (j *PostgresJournal) UpdateUnitStatus(units []UnitStatus) error {
	ctx := context.Background()
	for _, u := range units {
		_, err := j.pool.Exec(ctx, `
			insert into unit_status
			(unit_id, capital, n_trades, day_pnl, busy, cooldown, updated_at)
			values ($1,$2,$3,$4,$5,$6,$7)
			on conflict (unit_id) do update set
				capital = excluded.capital,
				n_trades = excluded.n_trades,
				day_pnl = excluded.day_pnl,
				busy = excluded.busy,
				cooldown = excluded.cooldown,
				updated_at = excluded.updated_at`,
			u.UnitID, u.Capital, u.TradesToday, u.DayPnL, u.Busy, u.Cooldown, u.UpdatedAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (j *PostgresJournal) RecordBacktestRun(r BacktestRun) error {
	_, err := j.pool.Exec(context.Background(), `
		insert into backtest_runs
		(run_id, created, dataset, bar_interval, start_date, end_date,
		 bars, trades, wins, losses, start_cap, end_cap,
		 net_pnl, return_pct, win_rate, profit_factor, max_dd_pct, avg_hold_bars, config)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		on conflict (run_id) do nothing`,
		r.RunID, r.Created, r.Dataset, r.Interval, r.Start, r.End,
		r.Bars, r.Trades, r.Wins, r.Losses, r.StartCapital, r.EndCapital,
		r.NetPnL, r.ReturnPct, r.WinRate, r.ProfitFactor, r.MaxDrawdownPct,
		r.AvgHoldBars, string(r.Config),
	)
	return err
}

func (j *PostgresJournal) TradesBetween(from, to market.Day) ([]TradeRecord, error) {
	q := `select run_id, unit_id, opt_type, symbol, strike, lot_size, qty,
		entry_time, exit_time, entry_spot, exit_spot,
		entry_prem, exit_prem, bars_held, pnl, exit_reason, live_data
		from trades`
	var (
		args []any
		n    int
	)
	if from != "" {
		n++
		q += fmt.Sprintf(" where trade_date >= $%d", n)
		args = append(args, string(from))
	}
	if to != "" {
		n++
		if n == 1 {
			q += fmt.Sprintf(" where trade_date <= $%d", n)
		} else {
			q += fmt.Sprintf(" and trade_date <= $%d", n)
		}
		args = append(args, string(to))
	}
	q += " order by entry_time"

	rows, err := j.pool.Query(context.Background(), q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(
			&t.RunID, &t.UnitID, &t.OptionType, &t.Symbol, &t.Strike, &t.LotSize, &t.Quantity,
			&t.EntryTime, &t.ExitTime, &t.EntrySpot, &t.ExitSpot,
			&t.EntryPremium, &t.ExitPremium, &t.BarsHeld, &t.PnL, &t.ExitReason, &t.LiveData,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (j *PostgresJournal) OpenPositions() ([]OpenPosition, error) {
	rows, err := j.pool.Query(context.Background(), `
		select unit_id, opt_type, symbol, strike, lot_size, qty,
		       entry_time, entry_spot, entry_prem, bar_idx, sid, updated_at
		from open_positions order by unit_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OpenPosition
	for rows.Next() {
		var p OpenPosition
		if err := rows.Scan(
			&p.UnitID, &p.OptionType, &p.Symbol, &p.Strike, &p.LotSize, &p.Quantity,
			&p.EntryTime, &p.EntrySpot, &p.EntryPremium, &p.EntryBarIndex,
			&p.SecurityID, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (j *PostgresJournal) Portfolio() (PortfolioStatus, error) {
	var (
		p   PortfolioStatus
		day string
	)
	err := j.pool.QueryRow(context.Background(), `
		select total_cap, day_pnl, trade_date, n_open, updated_at
		from portfolio_status where id = 1`).
		Scan(&p.TotalCapital, &p.DayPnL, &day, &p.OpenCount, &p.UpdatedAt)
	if err != nil {
		return PortfolioStatus{}, err
	}
	p.Day = market.Day(day)
	return p, nil
}

func (j *PostgresJournal) UnitStatuses() ([]UnitStatus, error) {
	rows, err := j.pool.Query(context.Background(), `
		select unit_id, capital, n_trades, day_pnl, busy, cooldown, updated_at
		from unit_status order by unit_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UnitStatus
	for rows.Next() {
		var u UnitStatus
		if err := rows.Scan(&u.UnitID, &u.Capital, &u.TradesToday, &u.DayPnL,
			&u.Busy, &u.Cooldown, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (j *PostgresJournal) RecentBars(n int) ([]BarRecord, error) {
	rows, err := j.pool.Query(context.Background(), `
		select ts, open, high, low, close, volume, adx, rsi, ema_fast, ema_slow, signal
		from spot_candles order by ts desc limit $1`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BarRecord
	for rows.Next() {
		var b BarRecord
		if err := rows.Scan(&b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume,
			&b.ADX, &b.RSI, &b.EMAFast, &b.EMASlow, &b.Signal); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

func (j *PostgresJournal) EquityForDay(day market.Day) ([]EquitySnapshot, error) {
	rows, err := j.pool.Query(context.Background(), `
		select ts, equity from equity_curve where trade_date = $1 order by ts`, string(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.Time, &e.Equity); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *PostgresJournal) DailySummaries(n int) ([]DailySummary, error) {
	rows, err := j.pool.Query(context.Background(), `
		select trade_date, start_cap, end_cap, pnl, return_pct, n_trades, n_wins, win_rate
		from daily_summary order by trade_date desc limit $1`, n)
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

func (j *PostgresJournal) Close() error {
	j.pool.Close()
	return nil
}
