// journal/csv.go
package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

// CSVJournal writes the append-only streams (trades, equity, daily
// summaries) to flat files. The dashboard status tables are database
// concepts, so the upsert methods are no-ops here; use the SQLite or
// Postgres journal when a dashboard needs to follow along.
type CSVJournal struct {
	trades *csv.Writer
	equity *csv.Writer
	daily  *csv.Writer

	tf, ef, df *os.File
}

func NewCSV(tradesPath, equityPath, dailyPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		tf.Close()
		return nil, err
	}
	df, err := os.Create(dailyPath)
	if err != nil {
		tf.Close()
		ef.Close()
		return nil, err
	}

	j := &CSVJournal{
		trades: csv.NewWriter(tf),
		equity: csv.NewWriter(ef),
		daily:  csv.NewWriter(df),
		tf:     tf, ef: ef, df: df,
	}

	if err := j.trades.Write([]string{
		"run_id", "unit_id", "opt_type", "symbol", "strike", "lot_size", "qty",
		"entry_time", "exit_time", "entry_spot", "exit_spot",
		"entry_prem", "exit_prem", "bars_held", "pnl", "exit_reason", "live_data",
	}); err != nil {
		return nil, err
	}
	if err := j.equity.Write([]string{"time", "equity"}); err != nil {
		return nil, err
	}
	if err := j.daily.Write([]string{
		"trade_date", "start_cap", "end_cap", "pnl", "return_pct",
		"n_trades", "n_wins", "win_rate",
	}); err != nil {
		return nil, err
	}

	j.trades.Flush()
	j.equity.Flush()
	j.daily.Flush()
	for _, w := range []*csv.Writer{j.trades, j.equity, j.daily} {
		if err := w.Error(); err != nil {
			return nil, err
		}
	}
	return j, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	if err := j.trades.Write([]string{
		t.RunID,
		strconv.Itoa(t.UnitID),
		t.OptionType,
		t.Symbol,
		f(t.Strike),
		strconv.Itoa(t.LotSize),
		strconv.Itoa(t.Quantity),
		t.EntryTime.Format(time.RFC3339),
		t.ExitTime.Format(time.RFC3339),
		f(t.EntrySpot),
		f(t.ExitSpot),
		f(t.EntryPremium),
		f(t.ExitPremium),
		strconv.Itoa(t.BarsHeld),
		f(t.PnL),
		t.ExitReason,
		strconv.Itoa(boolInt(t.LiveData)),
	}); err != nil {
		return err
	}
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	if err := j.equity.Write([]string{
		e.Time.Format(time.RFC3339),
		f(e.Equity),
	}); err != nil {
		return err
	}
	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) RecordDailySummary(s DailySummary) error {
	if err := j.daily.Write([]string{
		string(s.Day),
		f(s.StartCapital),
		f(s.EndCapital),
		f(s.PnL),
		f(s.ReturnPct),
		strconv.Itoa(s.Trades),
		strconv.Itoa(s.Wins),
		f(s.WinRate),
	}); err != nil {
		return err
	}
	j.daily.Flush()
	return j.daily.Error()
}

func (j *CSVJournal) RecordBar(BarRecord) error             { return nil }
func (j *CSVJournal) UpsertOpenPosition(OpenPosition) error { return nil }
func (j *CSVJournal) RemoveOpenPosition(int) error          { return nil }
func (j *CSVJournal) ClearOpenPositions() error             { return nil }
func (j *CSVJournal) UpdatePortfolio(PortfolioStatus) error { return nil }
func (j *CSVJournal) UpdateUnitStatus([]UnitStatus) error   { return nil }

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return err
	}
	j.daily.Flush()
	if err := j.daily.Error(); err != nil {
		return err
	}

	if err := j.tf.Close(); err != nil {
		return err
	}
	if err := j.ef.Close(); err != nil {
		return err
	}
	return j.df.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
