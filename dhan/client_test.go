package dhan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ist = time.FixedZone("IST", 5*3600+30*60)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient("test-token", "client-1", ist)
	client.baseURL = server.URL
	return client
}

// candleArrays builds a parallel-array payload with close prices
// starting at base and rising by one per bar.
func candleArrays(times []time.Time, base float64) candlesResponse {
	var resp candlesResponse
	for i, ts := range times {
		px := base + float64(i)
		resp.Open = append(resp.Open, px-1)
		resp.High = append(resp.High, px+2)
		resp.Low = append(resp.Low, px-2)
		resp.Close = append(resp.Close, px)
		resp.Volume = append(resp.Volume, 1000)
		resp.Timestamp = append(resp.Timestamp, ts.Unix())
	}
	return resp
}

func TestNewClient(t *testing.T) {
	client := NewClient("tok", "cid", ist)
	assert.Equal(t, DefaultBaseURL, client.baseURL)
	assert.Equal(t, "tok", client.accessToken)
	assert.Equal(t, "cid", client.clientID)
	assert.NotNil(t, client.httpClient)
	assert.NotNil(t, client.limiter)

	assert.Equal(t, time.UTC, NewClient("tok", "cid", nil).loc)
}

func TestSpotCandles_FiltersMarketHours(t *testing.T) {
	day := time.Date(2026, 2, 2, 0, 0, 0, 0, ist)
	var times []time.Time
	times = append(times, day.Add(9*time.Hour)) // premarket, dropped
	for i := 0; i < 12; i++ {
		times = append(times, day.Add(9*time.Hour+15*time.Minute+time.Duration(i)*15*time.Minute))
	}
	times = append(times, day.Add(15*time.Hour+45*time.Minute)) // postmarket, dropped

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/charts/intraday", r.URL.Path)
		assert.Equal(t, "test-token", r.Header.Get("access-token"))
		assert.Equal(t, "client-1", r.Header.Get("client-id"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req candlesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, SpotSecurityID, req.SecurityID)
		assert.Equal(t, segmentIndex, req.ExchangeSegment)
		assert.Equal(t, instrumentIdx, req.Instrument)
		assert.Equal(t, "15", req.Interval)
		assert.NotEmpty(t, req.FromDate)
		assert.NotEmpty(t, req.ToDate)

		json.NewEncoder(w).Encode(candleArrays(times, 22000))
	})

	candles, err := client.SpotCandles(context.Background(), "15", 2)
	require.NoError(t, err)
	require.Len(t, candles, 12, "out-of-hours bars should be dropped")

	first := candles[0]
	assert.Equal(t, 9, first.Time.Hour())
	assert.Equal(t, 15, first.Time.Minute())
	assert.Equal(t, 22001.0, first.Close)
	assert.Equal(t, 22000.0, first.Open)

	last := candles[len(candles)-1]
	assert.Equal(t, 12, last.Time.Hour())
	assert.Equal(t, 0, last.Time.Minute())
}

func TestSpotCandles_TooFewBars(t *testing.T) {
	day := time.Date(2026, 2, 2, 0, 0, 0, 0, ist)
	times := []time.Time{
		day.Add(9*time.Hour + 15*time.Minute),
		day.Add(9*time.Hour + 30*time.Minute),
		day.Add(9*time.Hour + 45*time.Minute),
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(candleArrays(times, 22000))
	})

	_, err := client.SpotCandles(context.Background(), "15", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "market hours")
}

func TestOptionCandles(t *testing.T) {
	day := time.Date(2026, 2, 2, 0, 0, 0, 0, ist)
	times := []time.Time{
		day.Add(10 * time.Hour),
		day.Add(10*time.Hour + 15*time.Minute),
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req candlesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "49081", req.SecurityID)
		assert.Equal(t, segmentFNO, req.ExchangeSegment)
		assert.Equal(t, instrumentOpt, req.Instrument)

		json.NewEncoder(w).Encode(candleArrays(times, 140))
	})

	candles, err := client.OptionCandles(context.Background(), "49081", "15", 1)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 140.0, candles[0].Close)
	assert.Equal(t, 141.0, candles[1].Close)

	t.Run("empty security id", func(t *testing.T) {
		_, err := client.OptionCandles(context.Background(), "", "15", 1)
		require.Error(t, err)
	})
}

func TestOptionCandles_NoData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(candlesResponse{})
	})

	_, err := client.OptionCandles(context.Background(), "49081", "15", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data")
}

func TestIntraday_MismatchedArrays(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		resp := candlesResponse{
			Open:      []float64{1, 2},
			High:      []float64{1, 2},
			Low:       []float64{1, 2},
			Close:     []float64{1, 2},
			Volume:    []float64{1, 2},
			Timestamp: []int64{100, 200, 300},
		}
		json.NewEncoder(w).Encode(resp)
	})

	_, err := client.OptionCandles(context.Background(), "49081", "15", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatched")
}

func TestLTP(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/marketfeed/ltp", r.URL.Path)

		var req map[string][]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"49081"}, req[segmentFNO])

		// Dhan returns securityId as a bare number here.
		w.Write([]byte(`{"data":{"NSE_FNO":[{"securityId":49081,"lastTradedPrice":142.5}],"IDX_I":[]}}`))
	})

	price, err := client.LTP(context.Background(), "49081")
	require.NoError(t, err)
	assert.Equal(t, 142.5, price)
}

func TestLTP_Errors(t *testing.T) {
	t.Run("security not in response", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":{"NSE_FNO":[{"securityId":"11111","lastTradedPrice":50}]}}`))
		})
		_, err := client.LTP(context.Background(), "49081")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no price")
	})

	t.Run("zero price", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":{"NSE_FNO":[{"securityId":"49081","lastTradedPrice":0}]}}`))
		})
		_, err := client.LTP(context.Background(), "49081")
		require.Error(t, err)
	})

	t.Run("API error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"errorMessage":"invalid token"}`))
		})
		_, err := client.LTP(context.Background(), "49081")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 401")
	})

	t.Run("empty security id", func(t *testing.T) {
		client := NewClient("tok", "cid", ist)
		_, err := client.LTP(context.Background(), "")
		require.Error(t, err)
	})
}
