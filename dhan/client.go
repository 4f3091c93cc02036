// Package dhan is a minimal client for the Dhan HQ v2 REST API: intraday
// candle history for the NIFTY spot index and its options, plus live
// last-traded-price snapshots. Only the endpoints the bot consumes are
// covered.
package dhan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/kppillai/niftybot/market"
)

const (
	DefaultBaseURL = "https://api.dhan.co"

	// NIFTY 50 index identity on Dhan.
	SpotSecurityID = "13"

	segmentIndex  = "IDX_I"
	segmentFNO    = "NSE_FNO"
	instrumentIdx = "INDEX"
	instrumentOpt = "OPTIDX"
)

// Client calls the Dhan data API. Requests are paced through a rate
// limiter so a burst of option loads cannot trip the server-side cap.
type Client struct {
	baseURL     string
	accessToken string
	clientID    string
	loc         *time.Location
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// NewClient builds a client. loc is the exchange timezone used to
// localize candle timestamps; nil falls back to UTC.
func NewClient(accessToken, clientID string, loc *time.Location) *Client {
	if loc == nil {
		loc = time.UTC
	}
	return &Client{
		baseURL:     DefaultBaseURL,
		accessToken: accessToken,
		clientID:    clientID,
		loc:         loc,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(5), 5),
	}
}

type candlesRequest struct {
	SecurityID      string `json:"securityId"`
	ExchangeSegment string `json:"exchangeSegment"`
	Instrument      string `json:"instrument"`
	Interval        string `json:"interval"`
	FromDate        string `json:"fromDate"`
	ToDate          string `json:"toDate"`
}

// candlesResponse is Dhan's parallel-array candle payload.
type candlesResponse struct {
	Open      []float64 `json:"open"`
	High      []float64 `json:"high"`
	Low       []float64 `json:"low"`
	Close     []float64 `json:"close"`
	Volume    []float64 `json:"volume"`
	Timestamp []int64   `json:"timestamp"`
}

// SpotCandles fetches NIFTY index candles for the past daysBack days,
// keeps only bars inside market hours (09:15 to 15:30) and requires a
// minimum history for the indicator warmup. Failures are transient:
// the caller skips the tick and retries next interval.
func (c *Client) SpotCandles(ctx context.Context, interval string, daysBack int) ([]market.Candle, error) {
	now := time.Now().In(c.loc)
	candles, err := c.SpotCandlesRange(ctx, interval, now.AddDate(0, 0, -daysBack), now)
	if err != nil {
		return nil, err
	}
	if len(candles) < 10 {
		return nil, fmt.Errorf("spot candles: only %d bars in market hours", len(candles))
	}
	return candles, nil
}

// SpotCandlesRange fetches NIFTY index candles between two dates
// inclusive, filtered to market hours. The API serves roughly thirty
// days per request; backtests over longer ranges chunk this call.
func (c *Client) SpotCandlesRange(ctx context.Context, interval string, from, to time.Time) ([]market.Candle, error) {
	candles, err := c.intraday(ctx, candlesRequest{
		SecurityID:      SpotSecurityID,
		ExchangeSegment: segmentIndex,
		Instrument:      instrumentIdx,
		Interval:        interval,
	}, from, to)
	if err != nil {
		return nil, err
	}

	kept := candles[:0]
	for _, cd := range candles {
		if inMarketHours(cd.Time) {
			kept = append(kept, cd)
		}
	}
	return kept, nil
}

// OptionCandles fetches candles for one option contract.
func (c *Client) OptionCandles(ctx context.Context, securityID, interval string, daysBack int) ([]market.Candle, error) {
	if securityID == "" {
		return nil, fmt.Errorf("option candles: empty security id")
	}
	now := time.Now().In(c.loc)
	candles, err := c.intraday(ctx, candlesRequest{
		SecurityID:      securityID,
		ExchangeSegment: segmentFNO,
		Instrument:      instrumentOpt,
		Interval:        interval,
	}, now.AddDate(0, 0, -daysBack), now)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("option candles: no data for %s", securityID)
	}
	return candles, nil
}

func (c *Client) intraday(ctx context.Context, req candlesRequest, from, to time.Time) ([]market.Candle, error) {
	req.FromDate = from.In(c.loc).Format("2006-01-02")
	req.ToDate = to.In(c.loc).Format("2006-01-02")

	var resp candlesResponse
	if err := c.postJSON(ctx, "/v2/charts/intraday", req, &resp); err != nil {
		return nil, err
	}

	n := len(resp.Timestamp)
	if len(resp.Open) != n || len(resp.High) != n || len(resp.Low) != n ||
		len(resp.Close) != n || len(resp.Volume) != n {
		return nil, fmt.Errorf("intraday %s: mismatched array lengths", req.SecurityID)
	}

	candles := make([]market.Candle, n)
	for i := 0; i < n; i++ {
		candles[i] = market.Candle{
			Time:   time.Unix(resp.Timestamp[i], 0).In(c.loc),
			Open:   resp.Open[i],
			High:   resp.High[i],
			Low:    resp.Low[i],
			Close:  resp.Close[i],
			Volume: resp.Volume[i],
		}
	}
	return candles, nil
}

type ltpResponse struct {
	Data map[string][]struct {
		SecurityID      json.Number `json:"securityId"`
		LastTradedPrice float64     `json:"lastTradedPrice"`
	} `json:"data"`
}

// LTP returns the live last traded price for an FNO instrument.
func (c *Client) LTP(ctx context.Context, securityID string) (float64, error) {
	if securityID == "" {
		return 0, fmt.Errorf("ltp: empty security id")
	}
	var resp ltpResponse
	err := c.postJSON(ctx, "/v2/marketfeed/ltp", map[string][]string{segmentFNO: {securityID}}, &resp)
	if err != nil {
		return 0, err
	}
	for _, seg := range resp.Data {
		for _, item := range seg {
			if item.SecurityID.String() == securityID && item.LastTradedPrice > 0 {
				return item.LastTradedPrice, nil
			}
		}
	}
	return 0, fmt.Errorf("ltp: no price for %s", securityID)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("access-token", c.accessToken)
	req.Header.Set("client-id", c.clientID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("dhan %s: status %d: %s", path, resp.StatusCode, b)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// inMarketHours reports whether a localized candle timestamp falls
// inside NSE trading hours. These bounds are exchange facts, not
// strategy configuration.
func inMarketHours(t time.Time) bool {
	h, m := t.Hour(), t.Minute()
	switch {
	case h == 9:
		return m >= 15
	case h > 9 && h < 15:
		return true
	case h == 15:
		return m <= 30
	}
	return false
}
