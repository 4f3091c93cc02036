package engine

import (
	"time"

	"github.com/kppillai/niftybot/market"
)

// ExitReason is why a position was closed. The engine resolves exits in
// a fixed priority order; the reason names the rule that fired first.
type ExitReason string

const (
	StopLoss   ExitReason = "StopLoss"
	TakeProfit ExitReason = "TakeProfit"
	Trail      ExitReason = "Trail"
	TimeExit   ExitReason = "TimeExit"
	EndOfDay   ExitReason = "EndOfDay"
)

// Position is one open option trade. BarsHeld counts completed ticks
// since entry: exit checks read it first and it is only incremented when
// no exit fires, so a TimeExit always records exactly timeExitBars.
type Position struct {
	UnitID        int              `json:"unit_id"`
	Direction     market.Direction `json:"direction"`
	EntryBarIndex int              `json:"entry_bar_index"`
	EntryTime     time.Time        `json:"entry_time"`
	EntrySpot     float64          `json:"entry_spot"`
	EntryPremium  float64          `json:"entry_premium"`
	PeakPremium   float64          `json:"peak_premium"`
	SecurityID    string           `json:"security_id,omitempty"`
	Symbol        string           `json:"symbol"`
	Strike        float64          `json:"strike"`
	LotSize       int              `json:"lot_size"`
	Quantity      int              `json:"quantity"`
	BarsHeld      int              `json:"bars_held"`
}

// ClosedTrade is the append-only exit record for one position.
type ClosedTrade struct {
	Position

	ExitBarIndex int
	ExitTime     time.Time
	ExitSpot     float64
	ExitPremium  float64
	PnL          float64
	ExitReason   ExitReason
	LiveData     bool
}

// DailySummary is the end-of-day rollup the engine emits at rollover.
type DailySummary struct {
	Day          market.Day
	StartCapital float64
	EndCapital   float64
	PnL          float64
	ReturnPct    float64
	Trades       int
	Wins         int
	WinRate      float64
}
