// Package alerts delivers fire-and-forget Telegram notifications for
// trade lifecycle events. A notifier built without credentials is
// disabled and every call is a no-op, so callers never branch on
// configuration.
package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/kppillai/niftybot/engine"
	"github.com/kppillai/niftybot/market"
	"github.com/kppillai/niftybot/risk"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	sendTimeout    = 10 * time.Second
	maxErrorLen    = 200
)

// Telegram implements engine.Notifier over the Telegram bot API.
// Delivery failures are logged and dropped; alerting never feeds back
// into engine state.
type Telegram struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
	enabled bool
}

func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		token:   token,
		chatID:  chatID,
		apiBase: defaultAPIBase,
		client:  &http.Client{Timeout: sendTimeout},
		enabled: token != "" && chatID != "",
	}
}

func (n *Telegram) send(msg string) {
	if !n.enabled {
		return
	}
	payload, err := json.Marshal(map[string]string{
		"chat_id":    n.chatID,
		"text":       msg,
		"parse_mode": "HTML",
	})
	if err != nil {
		return
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.token)
	resp, err := n.client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Printf("telegram: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		log.Printf("telegram: status %d", resp.StatusCode)
	}
}

// Start announces process startup.
func (n *Telegram) Start(capital float64, units int) {
	n.send(fmt.Sprintf("🤖 <b>NiftyBot started</b>\nCapital: ₹%.0f\nUnits: %d", capital, units))
}

func (n *Telegram) TradeEntry(p engine.Position) {
	icon := "🔴"
	if p.Direction == market.Bullish {
		icon = "🟢"
	}
	n.send(fmt.Sprintf("%s <b>ENTRY</b> Unit %d\n%s %s\nStrike: %.0f  Prem: ₹%.1f\nSpot: %.0f",
		icon, p.UnitID, p.Direction, p.Symbol, p.Strike, p.EntryPremium, p.EntrySpot))
}

func (n *Telegram) TradeExit(ct engine.ClosedTrade) {
	icon := "❌"
	if ct.PnL >= 0 {
		icon = "✅"
	}
	n.send(fmt.Sprintf("%s <b>EXIT [%s]</b> Unit %d\n%s %s\n₹%.1f → ₹%.1f  P&L: ₹%+.0f",
		icon, ct.ExitReason, ct.UnitID, ct.Direction, ct.Symbol,
		ct.EntryPremium, ct.ExitPremium, ct.PnL))
}

func (n *Telegram) DailySummary(s engine.DailySummary) {
	n.send(fmt.Sprintf("📊 <b>EOD %s</b>\nTrades: %d  Wins: %d\nP&L: ₹%+.0f\nCapital: ₹%.0f",
		s.Day, s.Trades, s.Wins, s.PnL, s.EndCapital))
}

func (n *Telegram) RiskBreach(v risk.Violation, capital float64) {
	n.send(fmt.Sprintf("🚨 <b>RISK BREACH</b>\n%s\nCapital: ₹%.0f", v.Msg, capital))
}

// Error reports a driver-level failure, truncated to keep the message
// readable on a phone.
func (n *Telegram) Error(msg string) {
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	n.send(fmt.Sprintf("⚠️ <b>Bot error</b>\n%s", msg))
}
