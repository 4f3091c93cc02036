package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kppillai/niftybot/market"
)

func newTestSQLite(t *testing.T) (*SQLiteJournal, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	return j, path
}

func testTrade(entry time.Time) TradeRecord {
	return TradeRecord{
		RunID:        "01RUN",
		UnitID:       2,
		OptionType:   "CE",
		Symbol:       "NIFTY-Feb2026-22000-CE",
		Strike:       22000,
		LotSize:      75,
		Quantity:     1,
		EntryTime:    entry,
		ExitTime:     entry.Add(90 * time.Minute),
		EntrySpot:    22010,
		ExitSpot:     22090,
		EntryPremium: 120.5,
		ExitPremium:  161.2,
		BarsHeld:     6,
		PnL:          2988.6,
		ExitReason:   "TakeProfit",
		LiveData:     true,
	}
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	for _, table := range []string{
		"trades", "open_positions", "portfolio_status", "unit_status",
		"spot_candles", "equity_curve", "daily_summary", "backtest_runs",
	} {
		assert.True(t, found[table], "missing table %s", table)
	}
}

func TestSQLiteTradeRoundTrip(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)

	entry := time.Date(2026, 2, 2, 10, 30, 0, 0, time.UTC)
	rec := testTrade(entry)
	require.NoError(t, j.RecordTrade(rec))

	got, err := j.TradesBetween("", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec, got[0])
}

func TestSQLiteTradesBetweenFilters(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)

	for _, day := range []int{2, 3, 4} {
		rec := testTrade(time.Date(2026, 2, day, 10, 30, 0, 0, time.UTC))
		require.NoError(t, j.RecordTrade(rec))
	}

	got, err := j.TradesBetween("2026-02-03", "")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = j.TradesBetween("2026-02-03", "2026-02-03")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = j.TradesBetween("", "2026-02-02")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLiteTradesByRun(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)

	a := testTrade(time.Date(2026, 2, 2, 10, 30, 0, 0, time.UTC))
	b := testTrade(time.Date(2026, 2, 2, 11, 30, 0, 0, time.UTC))
	b.RunID = "01OTHER"
	require.NoError(t, j.RecordTrade(a))
	require.NoError(t, j.RecordTrade(b))

	got, err := j.TradesByRun("01RUN")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "01RUN", got[0].RunID)
}

func TestSQLiteOpenPositionLifecycle(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)

	now := time.Date(2026, 2, 2, 10, 30, 0, 0, time.UTC)
	pos := OpenPosition{
		UnitID: 1, OptionType: "PE", Symbol: "NIFTY-Feb2026-22000-PE",
		Strike: 22000, LotSize: 75, Quantity: 1,
		EntryTime: now, EntrySpot: 22010, EntryPremium: 98.4,
		EntryBarIndex: 14, SecurityID: "41003", UpdatedAt: now,
	}
	require.NoError(t, j.UpsertOpenPosition(pos))

	got, err := j.OpenPositions()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pos, got[0])

	// Upsert replaces, never duplicates.
	pos.EntryPremium = 101.0
	require.NoError(t, j.UpsertOpenPosition(pos))
	got, err = j.OpenPositions()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 101.0, got[0].EntryPremium)

	require.NoError(t, j.RemoveOpenPosition(1))
	got, err = j.OpenPositions()
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, j.UpsertOpenPosition(pos))
	require.NoError(t, j.ClearOpenPositions())
	got, err = j.OpenPositions()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLitePortfolioStatus(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)

	// Seeded row exists before any update.
	p, err := j.Portfolio()
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.TotalCapital)

	now := time.Date(2026, 2, 2, 10, 30, 0, 0, time.UTC)
	want := PortfolioStatus{
		TotalCapital: 101500, DayPnL: 1500, Day: "2026-02-02",
		OpenCount: 2, UpdatedAt: now,
	}
	require.NoError(t, j.UpdatePortfolio(want))

	p, err = j.Portfolio()
	require.NoError(t, err)
	assert.Equal(t, want, p)
}

func TestSQLiteUnitStatus(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)

	now := time.Date(2026, 2, 2, 10, 30, 0, 0, time.UTC)
	units := []UnitStatus{
		{UnitID: 0, Capital: 20500, TradesToday: 2, DayPnL: 500, Busy: true, Cooldown: 0, UpdatedAt: now},
		{UnitID: 1, Capital: 19400, TradesToday: 1, DayPnL: -600, Busy: false, Cooldown: 3, UpdatedAt: now},
	}
	require.NoError(t, j.UpdateUnitStatus(units))

	got, err := j.UnitStatuses()
	require.NoError(t, err)
	assert.Equal(t, units, got)
}

func TestSQLiteRecentBars(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)

	base := time.Date(2026, 2, 2, 9, 15, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		b := BarRecord{
			Time: base.Add(time.Duration(i) * 15 * time.Minute),
			Open: 22000, High: 22020, Low: 21990, Close: 22000 + float64(i),
			Volume: 1000, ADX: 20, RSI: 55, EMAFast: 22001, EMASlow: 21995,
		}
		require.NoError(t, j.RecordBar(b))
	}

	got, err := j.RecentBars(3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Oldest first, ending at the latest bar.
	assert.Equal(t, 22002.0, got[0].Close)
	assert.Equal(t, 22004.0, got[2].Close)

	// Re-recording the same timestamp replaces the row.
	require.NoError(t, j.RecordBar(BarRecord{Time: base, Close: 99999}))
	all, err := j.RecentBars(10)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestSQLiteEquityForDay(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)

	d1 := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordEquity(EquitySnapshot{Time: d1, Equity: 100000}))
	require.NoError(t, j.RecordEquity(EquitySnapshot{Time: d1.Add(15 * time.Minute), Equity: 100400}))
	require.NoError(t, j.RecordEquity(EquitySnapshot{Time: d2, Equity: 101000}))

	got, err := j.EquityForDay("2026-02-02")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 100000.0, got[0].Equity)
	assert.Equal(t, 100400.0, got[1].Equity)
}

func TestSQLiteDailySummaries(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)

	for _, s := range []DailySummary{
		{Day: "2026-02-02", StartCapital: 100000, EndCapital: 100900, PnL: 900, ReturnPct: 0.9, Trades: 3, Wins: 2, WinRate: 66.7},
		{Day: "2026-02-03", StartCapital: 100900, EndCapital: 100400, PnL: -500, ReturnPct: -0.5, Trades: 2, Wins: 0, WinRate: 0},
	} {
		require.NoError(t, j.RecordDailySummary(s))
	}

	got, err := j.DailySummaries(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, market.Day("2026-02-02"), got[0].Day)
	assert.Equal(t, market.Day("2026-02-03"), got[1].Day)

	// Re-recording a day replaces its rollup.
	require.NoError(t, j.RecordDailySummary(DailySummary{Day: "2026-02-03", PnL: -450}))
	got, err = j.DailySummaries(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, -450.0, got[1].PnL)
}

func TestSQLiteBacktestRun(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)

	run := BacktestRun{
		RunID:   "01HTEST",
		Created: time.Date(2026, 2, 2, 16, 0, 0, 0, time.UTC),
		Dataset: "nifty_feb.csv", Interval: "15m",
		Start: time.Date(2026, 2, 2, 9, 15, 0, 0, time.UTC),
		End:   time.Date(2026, 2, 6, 15, 30, 0, 0, time.UTC),
		Bars:  125, Trades: 9, Wins: 5, Losses: 4,
		StartCapital: 100000, EndCapital: 103200,
		NetPnL: 3200, ReturnPct: 3.2, WinRate: 0.556,
		ProfitFactor: 1.8, MaxDrawdownPct: 2.1, AvgHoldBars: 4.2,
		Config: []byte(`{"units":5}`),
	}
	require.NoError(t, j.RecordBacktestRun(run))

	var trades int
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.QueryRow(
		`SELECT trades FROM backtest_runs WHERE run_id = ?`, run.RunID).Scan(&trades))
	assert.Equal(t, 9, trades)
}
