// Package backtest replays historical candles through the same engine
// the live driver uses, one enriched bar at a time, and aggregates the
// run into a result summary.
package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/kppillai/niftybot/market"
)

// BarFeed yields candles in time order. Next returns ok=false at end of
// data. Implementations must be deterministic.
type BarFeed interface {
	Next() (market.Candle, bool, error)
	Close() error
}

// SliceFeed replays an in-memory candle series.
type SliceFeed struct {
	candles []market.Candle
	pos     int
}

func NewSliceFeed(candles []market.Candle) *SliceFeed {
	return &SliceFeed{candles: candles}
}

func (f *SliceFeed) Next() (market.Candle, bool, error) {
	if f.pos >= len(f.candles) {
		return market.Candle{}, false, nil
	}
	c := f.candles[f.pos]
	f.pos++
	return c, true, nil
}

func (f *SliceFeed) Close() error { return nil }

// CSVFeed streams candles from a file with rows of
// time,open,high,low,close,volume. Timestamps may be RFC 3339,
// "2006-01-02 15:04:05" in the given location, or epoch seconds.
// A header row is skipped.
type CSVFeed struct {
	f      *os.File
	r      *csv.Reader
	loc    *time.Location
	first  bool
	closed bool
}

func OpenCSVFeed(path string, loc *time.Location) (*CSVFeed, error) {
	if loc == nil {
		loc = time.UTC
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candle file: %w", err)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	return &CSVFeed{f: f, r: r, loc: loc, first: true}, nil
}

func (f *CSVFeed) Next() (market.Candle, bool, error) {
	for {
		rec, err := f.r.Read()
		if err == io.EOF {
			return market.Candle{}, false, nil
		}
		if err != nil {
			return market.Candle{}, false, fmt.Errorf("read candle row: %w", err)
		}
		if len(rec) < 5 {
			return market.Candle{}, false, fmt.Errorf("candle row needs at least 5 fields, got %d", len(rec))
		}

		ts, err := f.parseTime(rec[0])
		if err != nil {
			if f.first {
				// Header row.
				f.first = false
				continue
			}
			return market.Candle{}, false, err
		}
		f.first = false

		c := market.Candle{Time: ts}
		fields := []*float64{&c.Open, &c.High, &c.Low, &c.Close}
		for i, dst := range fields {
			v, err := strconv.ParseFloat(rec[i+1], 64)
			if err != nil {
				return market.Candle{}, false, fmt.Errorf("candle row at %s: field %d: %w", rec[0], i+1, err)
			}
			*dst = v
		}
		if len(rec) > 5 {
			c.Volume, _ = strconv.ParseFloat(rec[5], 64)
		}
		return c, true, nil
	}
}

func (f *CSVFeed) parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(f.loc), nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, f.loc); err == nil {
		return t, nil
	}
	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(epoch, 0).In(f.loc), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized candle timestamp %q", s)
}

func (f *CSVFeed) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return f.f.Close()
}
