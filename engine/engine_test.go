package engine

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kppillai/niftybot/contracts"
	"github.com/kppillai/niftybot/market"
	"github.com/kppillai/niftybot/risk"
)

// fixedResolver hands out ATM contracts without a scrip master. The
// clear counter verifies cache invalidation at day rollover.
type fixedResolver struct {
	lotSize int
	cleared int
}

func (r *fixedResolver) Resolve(spot float64, right market.Direction, day market.Day) contracts.Contract {
	atm := contracts.ATMStrike(spot)
	return contracts.Contract{
		SecurityID:   "SIM",
		Symbol:       fmt.Sprintf("NIFTY%d%s", int(atm), right),
		Strike:       atm,
		LotSize:      r.lotSize,
		OptionType:   right,
		DaysToExpiry: 5,
		Synthetic:    true,
	}
}

func (r *fixedResolver) ClearCache() { r.cleared++ }

// stubPremiums scripts the option premium per bar timestamp, with a
// flat fallback for bars the test does not care about.
type stubPremiums struct {
	flat   float64
	byTime map[int64]float64
}

func (s *stubPremiums) Premium(sid string, ts time.Time) (float64, bool) {
	if p, ok := s.byTime[ts.Unix()]; ok {
		return p, true
	}
	if s.flat > 0 {
		return s.flat, true
	}
	return 0, false
}

type recordingNotifier struct {
	entries   []Position
	exits     []ClosedTrade
	summaries []DailySummary
	breaches  []risk.Violation
}

func (n *recordingNotifier) TradeEntry(p Position)       { n.entries = append(n.entries, p) }
func (n *recordingNotifier) TradeExit(ct ClosedTrade)    { n.exits = append(n.exits, ct) }
func (n *recordingNotifier) DailySummary(s DailySummary) { n.summaries = append(n.summaries, s) }
func (n *recordingNotifier) RiskBreach(v risk.Violation, capital float64) {
	n.breaches = append(n.breaches, v)
}

func testSession() market.Session {
	return market.Session{
		Location:   time.UTC,
		Open:       market.Clock{Hour: 9, Minute: 15},
		Close:      market.Clock{Hour: 15, Minute: 30},
		EntryStart: market.Clock{Hour: 9, Minute: 30},
		EntryEnd:   market.Clock{Hour: 14, Minute: 15},
		HardClose:  market.Clock{Hour: 15, Minute: 10},
		Interval:   15 * time.Minute,
	}
}

func testConfig(units int) Config {
	return Config{
		Units:                   units,
		UnitSize:                20000,
		StartingCapital:         float64(units) * 20000,
		Session:                 testSession(),
		StopLossFraction:        0.25,
		TakeProfitFraction:      0.50,
		TrailActivationFraction: 0.35,
		TrailLockFraction:       0,
		MinHoldBars:             1,
		TimeExitBars:            6,
		SignalCooldownBars:      4,
		MaxTradesPerDay:         4,
		MaxCostFraction:         0.55,
		MaxLots:                 1,
		SlippageFraction:        0,
		LossStreakLimit:         2,
		CooldownBars:            4,
		MaxDrawdownFraction:     0.10,
		MaxDayLossFraction:      0.05,
		MaxUnitDayLossFraction:  0.15,
	}
}

var monday = time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

func at(day time.Time, hour, min int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, min, 0, 0, time.UTC)
}

func sig(d market.Direction) *market.Direction { return &d }

func testBar(ts time.Time, close float64, s *market.Direction) market.Bar {
	return market.Bar{
		Candle: market.Candle{Time: ts, Open: close, High: close + 5, Low: close - 5, Close: close, Volume: 1000},
		Signal: s,
	}
}

func runBars(e *Engine, bars []market.Bar, prem *stubPremiums) []ClosedTrade {
	if prem != nil {
		e.SetPremiumSource(prem)
	}
	var closed []ClosedTrade
	for _, b := range bars {
		closed = append(closed, e.OnBar(b)...)
	}
	return closed
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestTimeExitRecordsExactHoldBars(t *testing.T) {
	cfg := testConfig(1)
	cfg.TimeExitBars = 3
	e := New(cfg, nil, &fixedResolver{lotSize: 75})

	base := at(monday, 9, 45)
	bars := make([]market.Bar, 5)
	for i := range bars {
		var s *market.Direction
		if i == 0 {
			s = sig(market.Bullish)
		}
		bars[i] = testBar(base.Add(time.Duration(i)*15*time.Minute), 22000, s)
	}

	closed := runBars(e, bars, &stubPremiums{flat: 100})
	require.Len(t, closed, 1)
	ct := closed[0]
	assert.Equal(t, TimeExit, ct.ExitReason)
	assert.Equal(t, cfg.TimeExitBars, ct.BarsHeld)
	assert.Equal(t, 1, ct.EntryBarIndex)
	assert.Equal(t, 5, ct.ExitBarIndex)
	assert.Equal(t, 0.0, ct.PnL)
	assert.Nil(t, e.units[0].Position)
}

func TestEndOfDayFlattensPosition(t *testing.T) {
	cfg := testConfig(1)
	cfg.TimeExitBars = 100
	e := New(cfg, nil, &fixedResolver{lotSize: 75})

	times := []struct{ h, m int }{
		{14, 0}, {14, 15}, {14, 30}, {14, 45}, {15, 0}, {15, 15},
	}
	bars := make([]market.Bar, len(times))
	for i, tm := range times {
		var s *market.Direction
		if i == 0 {
			s = sig(market.Bullish)
		}
		bars[i] = testBar(at(monday, tm.h, tm.m), 22000, s)
	}

	closed := runBars(e, bars, &stubPremiums{flat: 100})
	require.Len(t, closed, 1)
	assert.Equal(t, EndOfDay, closed[0].ExitReason)
	assert.Equal(t, 4, closed[0].BarsHeld)
	assert.Equal(t, at(monday, 15, 15), closed[0].ExitTime)
}

func TestPnLFlooredAtPremiumPaid(t *testing.T) {
	cfg := testConfig(1)
	cfg.SlippageFraction = 0.003
	e := New(cfg, nil, &fixedResolver{lotSize: 75})

	base := at(monday, 9, 45)
	prem := &stubPremiums{byTime: map[int64]float64{}}
	prem.byTime[base.Unix()] = 100
	prem.byTime[base.Add(15*time.Minute).Unix()] = 100
	prem.byTime[base.Add(30*time.Minute).Unix()] = 0.1
	bars := []market.Bar{
		testBar(base, 22000, sig(market.Bullish)),
		testBar(base.Add(15*time.Minute), 22000, nil),
		testBar(base.Add(30*time.Minute), 21000, nil),
	}

	closed := runBars(e, bars, prem)
	require.Len(t, closed, 1)
	ct := closed[0]
	assert.Equal(t, StopLoss, ct.ExitReason)
	maxLoss := -ct.EntryPremium * float64(ct.LotSize) * float64(ct.Quantity)
	assert.Equal(t, -7500.0, ct.PnL)
	assert.GreaterOrEqual(t, ct.PnL, maxLoss)
}

func TestAllocatorRotatesFairly(t *testing.T) {
	cfg := testConfig(3)
	cfg.SignalCooldownBars = 0
	cfg.MaxTradesPerDay = 10
	cfg.TimeExitBars = 1
	e := New(cfg, nil, &fixedResolver{lotSize: 75})
	note := &recordingNotifier{}
	e.SetNotifier(note)

	base := at(monday, 9, 45)
	bars := make([]market.Bar, 8)
	for i := range bars {
		bars[i] = testBar(base.Add(time.Duration(i)*15*time.Minute), 22000, sig(market.Bullish))
	}
	runBars(e, bars, &stubPremiums{flat: 100})

	require.Len(t, note.entries, 8)
	var order []int
	for _, p := range note.entries {
		order = append(order, p.UnitID)
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0, 1}, order)
}

func TestAllocatorDropsSignalWhenAllBusy(t *testing.T) {
	cfg := testConfig(3)
	cfg.SignalCooldownBars = 0
	cfg.TimeExitBars = 100
	e := New(cfg, nil, &fixedResolver{lotSize: 75})
	note := &recordingNotifier{}
	e.SetNotifier(note)

	base := at(monday, 9, 45)
	bars := make([]market.Bar, 5)
	for i := range bars {
		bars[i] = testBar(base.Add(time.Duration(i)*15*time.Minute), 22000, sig(market.Bullish))
	}
	closed := runBars(e, bars, &stubPremiums{flat: 100})

	assert.Empty(t, closed)
	require.Len(t, note.entries, 3)
	for _, u := range e.units {
		assert.NotNil(t, u.Position)
	}
}

func TestLossStreakBenchesUnit(t *testing.T) {
	cfg := testConfig(5)
	cfg.TimeExitBars = 100
	cfg.MaxDrawdownFraction = 0.9
	cfg.MaxDayLossFraction = 0.9
	cfg.MaxUnitDayLossFraction = 0.9
	e := New(cfg, nil, &fixedResolver{lotSize: 75})
	prem := &stubPremiums{flat: 100, byTime: map[int64]float64{}}
	e.SetPremiumSource(prem)

	// Entry on every third bar, stop-loss two bars later. Six trades walk
	// the rotation round all five units and back to unit 0, whose second
	// loss trips the streak limit.
	base := at(monday, 9, 45)
	day := market.DayOf(base)
	bars := make([]market.Bar, 22)
	for i := range bars {
		ts := base.Add(time.Duration(i) * 15 * time.Minute)
		var s *market.Direction
		if i%3 == 0 && i <= 18 {
			s = sig(market.Bullish)
		}
		if i%3 == 2 && i <= 17 {
			prem.byTime[ts.Unix()] = 70
		}
		bars[i] = testBar(ts, 22000, s)
	}

	var closed []ClosedTrade
	for i, b := range bars {
		closed = append(closed, e.OnBar(b)...)
		switch i {
		case 2:
			require.Len(t, closed, 1)
			assert.Equal(t, 0, closed[0].UnitID)
			assert.Equal(t, StopLoss, closed[0].ExitReason)
			assert.Equal(t, -2250.0, closed[0].PnL)
			assert.Equal(t, 1, e.units[0].LossStreak)
		case 17:
			require.Len(t, closed, 6)
			assert.Equal(t, 0, closed[5].UnitID)
			assert.Equal(t, cfg.CooldownBars, e.units[0].CooldownBars)
			assert.Equal(t, 0, e.units[0].LossStreak)
		case 18:
			// Benched unit skipped; the signal lands on unit 1.
			assert.Nil(t, e.units[0].Position)
			require.NotNil(t, e.units[1].Position)
			assert.Equal(t, 3, e.units[0].CooldownBars)
			assert.False(t, e.units[0].eligible(day, e.barIndex, cfg))
		}
	}

	assert.Equal(t, 0, e.units[0].CooldownBars)
	assert.True(t, e.units[0].eligible(day, e.barIndex, cfg))
}

func TestDrawdownHaltBlocksEntriesButExitsStillRun(t *testing.T) {
	cfg := testConfig(5)
	cfg.TimeExitBars = 100
	cfg.MaxDayLossFraction = 0.9
	cfg.MaxUnitDayLossFraction = 0.9
	e := New(cfg, nil, &fixedResolver{lotSize: 75})
	note := &recordingNotifier{}
	e.SetNotifier(note)

	base := at(monday, 9, 45)
	prems := []float64{150, 150, 150, 75, 225}
	prem := &stubPremiums{byTime: map[int64]float64{}}
	bars := make([]market.Bar, len(prems))
	for i, p := range prems {
		ts := base.Add(time.Duration(i) * 15 * time.Minute)
		prem.byTime[ts.Unix()] = p
		bars[i] = testBar(ts, 22000, sig(market.Bullish))
	}

	var closed []ClosedTrade
	for i, b := range bars {
		closed = append(closed, e.OnBar(b)...)
		switch i {
		case 3:
			// Two stop-losses drop capital to 88,750, below the
			// 90,000 floor. The bar-4 signal must not fill.
			require.Len(t, closed, 2)
			assert.Equal(t, 88750.0, e.TotalCapital())
			assert.True(t, e.Halted())
			require.NotNil(t, e.units[2].Position)
			assert.Nil(t, e.units[3].Position)
			assert.Nil(t, e.units[4].Position)
			require.Len(t, note.breaches, 1)
			assert.Equal(t, risk.CodeDrawdown, note.breaches[0].Code)
		case 4:
			// The open position exits at a profit while halted,
			// capital recovers, and the same bar's signal fills.
			require.Len(t, closed, 3)
			assert.Equal(t, TakeProfit, closed[2].ExitReason)
			assert.Equal(t, 94375.0, e.TotalCapital())
			assert.False(t, e.Halted())
			require.NotNil(t, e.units[3].Position)
			assert.Equal(t, 5, e.units[3].Position.EntryBarIndex)
		}
	}

	// The breach alert fired once, on the transition only.
	assert.Len(t, note.breaches, 1)
}

func TestUnitDayLossFloorBlocksAtExactLimit(t *testing.T) {
	cfg := testConfig(1)
	cfg.MaxDrawdownFraction = 0.5
	cfg.MaxDayLossFraction = 0.5
	e := New(cfg, nil, &fixedResolver{lotSize: 75})

	base := at(monday, 9, 45)
	day := market.DayOf(base)
	prem := &stubPremiums{flat: 100, byTime: map[int64]float64{
		base.Add(30 * time.Minute).Unix(): 60,
	}}
	bars := []market.Bar{
		testBar(base, 22000, sig(market.Bullish)),
		testBar(base.Add(15*time.Minute), 22000, nil),
		testBar(base.Add(30*time.Minute), 21900, nil),
		testBar(base.Add(45*time.Minute), 22000, sig(market.Bullish)),
	}

	closed := runBars(e, bars, prem)
	require.Len(t, closed, 1)
	assert.Equal(t, -3000.0, closed[0].PnL)
	// Day loss sits exactly at -(unitSize * maxUnitDayLossFraction);
	// the floor requires strictly better, so the unit stays out.
	assert.Equal(t, -3000.0, e.units[0].DailyPnL[day])
	assert.Nil(t, e.units[0].Position)
	assert.False(t, e.units[0].eligible(day, e.barIndex, cfg))
}

func TestMaxTradesPerDayResetsAtRollover(t *testing.T) {
	cfg := testConfig(1)
	cfg.MaxTradesPerDay = 2
	cfg.SignalCooldownBars = 0
	cfg.TimeExitBars = 1
	e := New(cfg, nil, &fixedResolver{lotSize: 75})
	note := &recordingNotifier{}
	e.SetNotifier(note)

	base := at(monday, 9, 45)
	bars := make([]market.Bar, 7)
	for i := range bars {
		var s *market.Direction
		if i%3 == 0 {
			s = sig(market.Bullish)
		}
		bars[i] = testBar(base.Add(time.Duration(i)*15*time.Minute), 22000, s)
	}
	runBars(e, bars, &stubPremiums{flat: 100})

	assert.Len(t, note.entries, 2)
	assert.Equal(t, 2, e.units[0].TradesToday)
	assert.Nil(t, e.units[0].Position)

	// Next trading day: the counter resets and the unit fills again.
	nextDay := monday.AddDate(0, 0, 1)
	e.OnBar(testBar(at(nextDay, 9, 45), 22000, sig(market.Bullish)))
	assert.Len(t, note.entries, 3)
	assert.Equal(t, 1, e.units[0].TradesToday)
}

func TestDayRolloverEmitsSummaryAndReanchorsMonth(t *testing.T) {
	cfg := testConfig(2)
	res := &fixedResolver{lotSize: 75}
	e := New(cfg, nil, res)
	note := &recordingNotifier{}
	e.SetNotifier(note)

	friday := time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)
	base := at(friday, 9, 45)
	prem := &stubPremiums{flat: 100, byTime: map[int64]float64{
		base.Add(30 * time.Minute).Unix(): 150,
	}}
	day1 := []market.Bar{
		testBar(base, 22000, sig(market.Bullish)),
		testBar(base.Add(15*time.Minute), 22050, nil),
		testBar(base.Add(30*time.Minute), 22150, nil),
	}
	runBars(e, day1, prem)

	// First bar of March triggers the rollover.
	nextMonday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	e.OnBar(testBar(at(nextMonday, 9, 45), 22100, nil))

	require.Len(t, note.summaries, 1)
	sum := note.summaries[0]
	assert.Equal(t, market.Day("2026-02-27"), sum.Day)
	assert.Equal(t, 40000.0, sum.StartCapital)
	assert.Equal(t, 43750.0, sum.EndCapital)
	assert.Equal(t, 3750.0, sum.PnL)
	assert.Equal(t, 1, sum.Trades)
	assert.Equal(t, 1, sum.Wins)
	assert.Equal(t, 1.0, sum.WinRate)

	assert.Equal(t, 0, e.units[0].TradesToday)
	assert.Equal(t, 43750.0, e.dayStartCapital)
	assert.Equal(t, 43750.0, e.monthStartCapital)
	assert.Equal(t, 1, res.cleared)
}

func TestCloseDayEmitsSummaryWithoutNextBar(t *testing.T) {
	cfg := testConfig(2)
	e := New(cfg, nil, &fixedResolver{lotSize: 75})
	note := &recordingNotifier{}
	e.SetNotifier(note)

	base := at(monday, 9, 45)
	prem := &stubPremiums{flat: 100, byTime: map[int64]float64{
		base.Add(30 * time.Minute).Unix(): 150,
	}}
	bars := []market.Bar{
		testBar(base, 22000, sig(market.Bullish)),
		testBar(base.Add(15*time.Minute), 22050, nil),
		testBar(base.Add(30*time.Minute), 22150, nil),
	}
	runBars(e, bars, prem)
	e.CloseDay()

	require.Len(t, note.summaries, 1)
	assert.Equal(t, market.DayOf(base), note.summaries[0].Day)
	assert.Equal(t, 3750.0, note.summaries[0].PnL)
	assert.Equal(t, 1, note.summaries[0].Trades)
}

// deterministicBars is a two-day sequence with entries, model-priced
// exits and end-of-day flattening, shared by the determinism and
// state-resume tests.
func deterministicBars() []market.Bar {
	day2 := monday.AddDate(0, 0, 1)
	seq := []struct {
		day  time.Time
		h, m int
		spot float64
		sig  *market.Direction
	}{
		{monday, 9, 45, 22000, sig(market.Bullish)},
		{monday, 10, 0, 22080, nil},
		{monday, 10, 15, 22160, sig(market.Bearish)},
		{monday, 10, 30, 22060, nil},
		{monday, 10, 45, 21950, sig(market.Bullish)},
		{monday, 11, 0, 22020, nil},
		{monday, 11, 15, 22110, nil},
		{monday, 15, 15, 22200, nil},
		{day2, 9, 45, 22100, sig(market.Bearish)},
		{day2, 10, 0, 22000, nil},
		{day2, 10, 15, 21900, sig(market.Bullish)},
		{day2, 10, 30, 21850, nil},
		{day2, 10, 45, 21800, nil},
		{day2, 11, 0, 21900, nil},
		{day2, 11, 15, 22000, nil},
		{day2, 15, 15, 22050, nil},
	}
	bars := make([]market.Bar, len(seq))
	for i, s := range seq {
		bars[i] = testBar(at(s.day, s.h, s.m), s.spot, s.sig)
	}
	return bars
}

func TestDeterministicReplay(t *testing.T) {
	bars := deterministicBars()
	run := func() ([]ClosedTrade, *Engine) {
		e := New(testConfig(3), nil, &fixedResolver{lotSize: 75})
		e.SetRunID("REPLAY")
		return runBars(e, bars, nil), e
	}

	closed1, e1 := run()
	closed2, e2 := run()

	require.NotEmpty(t, closed1)
	assert.Equal(t, mustJSON(t, closed1), mustJSON(t, closed2))
	assert.Equal(t, mustJSON(t, e1.Units()), mustJSON(t, e2.Units()))
	assert.Equal(t, e1.TotalCapital(), e2.TotalCapital())
}

func TestQuantitySizing(t *testing.T) {
	tests := []struct {
		name    string
		maxLots int
		capital float64
		premium float64
		want    int
	}{
		{name: "capped_at_max_lots", maxLots: 3, capital: 20000, premium: 40, want: 3},
		{name: "floor_of_budget", maxLots: 10, capital: 20000, premium: 20, want: 7},
		{name: "never_below_one", maxLots: 10, capital: 20000, premium: 200, want: 1},
		{name: "single_lot_config", maxLots: 1, capital: 20000, premium: 40, want: 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(1)
			cfg.MaxLots = tt.maxLots
			e := New(cfg, nil, &fixedResolver{lotSize: 75})
			assert.Equal(t, tt.want, e.quantity(tt.capital, tt.premium, 75))
		})
	}
}
