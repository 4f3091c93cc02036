package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kppillai/niftybot/journal"
	"github.com/kppillai/niftybot/market"
)

type fakeReader struct {
	portfolio journal.PortfolioStatus
	units     []journal.UnitStatus
	open      []journal.OpenPosition
	trades    []journal.TradeRecord
	daily     []journal.DailySummary
	equity    []journal.EquitySnapshot
	bars      []journal.BarRecord

	gotFrom market.Day
	gotTo   market.Day
	gotDay  market.Day
	gotN    int

	err error
}

func (f *fakeReader) TradesBetween(from, to market.Day) ([]journal.TradeRecord, error) {
	f.gotFrom, f.gotTo = from, to
	return f.trades, f.err
}

func (f *fakeReader) OpenPositions() ([]journal.OpenPosition, error) { return f.open, f.err }

func (f *fakeReader) Portfolio() (journal.PortfolioStatus, error) { return f.portfolio, f.err }

func (f *fakeReader) UnitStatuses() ([]journal.UnitStatus, error) { return f.units, f.err }

func (f *fakeReader) RecentBars(n int) ([]journal.BarRecord, error) {
	f.gotN = n
	return f.bars, f.err
}

func (f *fakeReader) EquityForDay(day market.Day) ([]journal.EquitySnapshot, error) {
	f.gotDay = day
	return f.equity, f.err
}

func (f *fakeReader) DailySummaries(n int) ([]journal.DailySummary, error) {
	f.gotN = n
	return f.daily, f.err
}

func seededReader() *fakeReader {
	return &fakeReader{
		portfolio: journal.PortfolioStatus{
			TotalCapital: 100000,
			DayPnL:       -350,
			Day:          "2026-02-02",
			OpenCount:    1,
		},
		units: []journal.UnitStatus{
			{UnitID: 0, Capital: 19650, Busy: true},
			{UnitID: 1, Capital: 20000},
		},
		open: []journal.OpenPosition{
			{UnitID: 0, OptionType: "CE", Symbol: "NIFTY22000CE", Strike: 22000, Quantity: 1},
		},
		trades: []journal.TradeRecord{
			{UnitID: 0, Symbol: "NIFTY22000CE", PnL: -350, ExitReason: "StopLoss"},
		},
		daily: []journal.DailySummary{
			{Day: "2026-02-02", PnL: -350, Trades: 1},
		},
		equity: []journal.EquitySnapshot{{Equity: 100000}, {Equity: 99650}},
		bars:   []journal.BarRecord{{Close: 22000, RSI: 58.2}},
	}
}

func doGet(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := NewServer(seededReader(), time.Hour)
	w := doGet(t, s, "/api/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestStatus(t *testing.T) {
	s := NewServer(seededReader(), time.Hour)
	w := doGet(t, s, "/api/status")
	require.Equal(t, http.StatusOK, w.Code)

	var p journal.PortfolioStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, 100000.0, p.TotalCapital)
	assert.Equal(t, market.Day("2026-02-02"), p.Day)
	assert.Equal(t, 1, p.OpenCount)
}

func TestStatusError(t *testing.T) {
	f := seededReader()
	f.err = fmt.Errorf("database is locked")
	s := NewServer(f, time.Hour)

	w := doGet(t, s, "/api/status")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "database is locked")
}

func TestPositionsAndUnits(t *testing.T) {
	s := NewServer(seededReader(), time.Hour)

	w := doGet(t, s, "/api/positions")
	require.Equal(t, http.StatusOK, w.Code)
	var open []journal.OpenPosition
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &open))
	require.Len(t, open, 1)
	assert.Equal(t, "NIFTY22000CE", open[0].Symbol)

	w = doGet(t, s, "/api/units")
	require.Equal(t, http.StatusOK, w.Code)
	var units []journal.UnitStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &units))
	require.Len(t, units, 2)
	assert.True(t, units[0].Busy)
}

func TestTradesRange(t *testing.T) {
	f := seededReader()
	s := NewServer(f, time.Hour)

	w := doGet(t, s, "/api/trades?from=2026-02-01&to=2026-02-02")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, market.Day("2026-02-01"), f.gotFrom)
	assert.Equal(t, market.Day("2026-02-02"), f.gotTo)

	var trades []journal.TradeRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trades))
	require.Len(t, trades, 1)
	assert.Equal(t, "StopLoss", trades[0].ExitReason)

	w = doGet(t, s, "/api/trades")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, market.Day(""), f.gotFrom, "no bounds means full history")
}

func TestDaily(t *testing.T) {
	f := seededReader()
	s := NewServer(f, time.Hour)

	w := doGet(t, s, "/api/daily")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 30, f.gotN)

	w = doGet(t, s, "/api/daily?n=7")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, f.gotN)

	w = doGet(t, s, "/api/daily?n=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doGet(t, s, "/api/daily?n=-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEquityDayDefaultsToBookDay(t *testing.T) {
	f := seededReader()
	s := NewServer(f, time.Hour)

	w := doGet(t, s, "/api/equity?day=2026-01-30")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, market.Day("2026-01-30"), f.gotDay)

	w = doGet(t, s, "/api/equity")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, market.Day("2026-02-02"), f.gotDay, "defaults to the portfolio's day")

	var points []journal.EquitySnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &points))
	require.Len(t, points, 2)
	assert.Equal(t, 99650.0, points[1].Equity)
}

func TestBars(t *testing.T) {
	f := seededReader()
	s := NewServer(f, time.Hour)

	w := doGet(t, s, "/api/bars")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 100, f.gotN)

	var bars []journal.BarRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bars))
	require.Len(t, bars, 1)
	assert.Equal(t, 58.2, bars[0].RSI)
}

func TestWebSocketStream(t *testing.T) {
	f := seededReader()
	s := NewServer(f, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)
	go s.pump(ctx)

	srv := httptest.NewServer(s.Router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	// Initial frame arrives on connect, before any pump tick.
	var first statusPayload
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, 100000.0, first.Portfolio.TotalCapital)
	require.Len(t, first.Units, 2)

	require.Eventually(t, func() bool { return s.hub.Clients() == 1 },
		time.Second, 10*time.Millisecond)

	// Subsequent frames come from the interval pump.
	var pushed statusPayload
	require.NoError(t, conn.ReadJSON(&pushed))
	assert.Equal(t, market.Day("2026-02-02"), pushed.Portfolio.Day)
	require.Len(t, pushed.Positions, 1)
}
