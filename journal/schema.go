// journal/schema.go
package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT,
	unit_id INTEGER,
	opt_type TEXT,
	symbol TEXT,
	strike REAL,
	lot_size INTEGER,
	qty INTEGER,
	entry_time TEXT,
	exit_time TEXT,
	entry_spot REAL,
	exit_spot REAL,
	entry_prem REAL,
	exit_prem REAL,
	bars_held INTEGER,
	pnl REAL,
	exit_reason TEXT,
	live_data INTEGER DEFAULT 0,
	trade_date TEXT,
	week_num TEXT,
	month_str TEXT
);

CREATE TABLE IF NOT EXISTS open_positions (
	unit_id INTEGER PRIMARY KEY,
	opt_type TEXT,
	symbol TEXT,
	strike REAL,
	lot_size INTEGER,
	qty INTEGER,
	entry_time TEXT,
	entry_spot REAL,
	entry_prem REAL,
	bar_idx INTEGER,
	sid TEXT,
	updated_at TEXT
);

CREATE TABLE IF NOT EXISTS portfolio_status (
	id INTEGER PRIMARY KEY CHECK (id=1),
	total_cap REAL,
	day_pnl REAL,
	trade_date TEXT,
	n_open INTEGER,
	updated_at TEXT
);

CREATE TABLE IF NOT EXISTS unit_status (
	unit_id INTEGER PRIMARY KEY,
	capital REAL,
	n_trades INTEGER,
	day_pnl REAL,
	busy INTEGER,
	cooldown INTEGER,
	updated_at TEXT
);

CREATE TABLE IF NOT EXISTS spot_candles (
	ts TEXT PRIMARY KEY,
	open REAL,
	high REAL,
	low REAL,
	close REAL,
	volume REAL,
	adx REAL,
	rsi REAL,
	ema_fast REAL,
	ema_slow REAL,
	signal TEXT
);

CREATE TABLE IF NOT EXISTS equity_curve (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT,
	equity REAL,
	trade_date TEXT
);

CREATE TABLE IF NOT EXISTS daily_summary (
	trade_date TEXT PRIMARY KEY,
	start_cap REAL,
	end_cap REAL,
	pnl REAL,
	return_pct REAL,
	n_trades INTEGER,
	n_wins INTEGER,
	win_rate REAL
);

CREATE TABLE IF NOT EXISTS backtest_runs (
	run_id TEXT PRIMARY KEY,
	created TEXT,
	dataset TEXT,
	bar_interval TEXT,
	start_date TEXT,
	end_date TEXT,
	bars INTEGER,
	trades INTEGER,
	wins INTEGER,
	losses INTEGER,
	start_cap REAL,
	end_cap REAL,
	net_pnl REAL,
	return_pct REAL,
	win_rate REAL,
	profit_factor REAL,
	max_dd_pct REAL,
	avg_hold_bars REAL,
	config TEXT
);

CREATE INDEX IF NOT EXISTS idx_trades_date ON trades(trade_date);
CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id);
CREATE INDEX IF NOT EXISTS idx_equity_date ON equity_curve(trade_date);
`
