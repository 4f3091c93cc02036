package dhan

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/kppillai/niftybot/market"
)

// PriceCache keeps recent option candle series per security and answers
// premium lookups at bar timestamps. The engine asks for the premium of
// an open position at every bar; hitting the REST API each time would
// burn the rate budget, so the live driver loads a series once on entry
// and refreshes it per cycle. A lookup for a security that was never
// loaded falls back to a live LTP call.
type PriceCache struct {
	client   *Client
	interval string

	mu     sync.Mutex
	series map[string][]market.Candle
}

func NewPriceCache(client *Client, interval string) *PriceCache {
	return &PriceCache{
		client:   client,
		interval: interval,
		series:   make(map[string][]market.Candle),
	}
}

// Load fetches two days of candles for a security and stores them.
func (p *PriceCache) Load(ctx context.Context, securityID string) error {
	candles, err := p.client.OptionCandles(ctx, securityID, p.interval, 2)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.series[securityID] = candles
	p.mu.Unlock()
	return nil
}

// Refresh replaces a loaded series with the latest day of candles.
// Errors are logged and the stale series kept; the next premium lookup
// still answers from it.
func (p *PriceCache) Refresh(ctx context.Context, securityID string) {
	candles, err := p.client.OptionCandles(ctx, securityID, p.interval, 1)
	if err != nil {
		log.Printf("price cache: refresh %s: %v", securityID, err)
		return
	}
	p.mu.Lock()
	p.series[securityID] = candles
	p.mu.Unlock()
}

// Loaded reports whether a series is cached for the security.
func (p *PriceCache) Loaded(securityID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.series[securityID]
	return ok
}

// Drop forgets a series once its position is closed.
func (p *PriceCache) Drop(securityID string) {
	p.mu.Lock()
	delete(p.series, securityID)
	p.mu.Unlock()
}

// Premium returns the option premium at or before ts. Prices at or
// below 0.5 are treated as bad prints and reported as missing, which
// sends the engine to its model-based exit estimate instead.
func (p *PriceCache) Premium(securityID string, ts time.Time) (float64, bool) {
	p.mu.Lock()
	s, ok := p.series[securityID]
	p.mu.Unlock()

	if !ok {
		ltp, err := p.client.LTP(context.Background(), securityID)
		if err != nil {
			log.Printf("price cache: ltp %s: %v", securityID, err)
			return 0, false
		}
		return ltp, true
	}
	if len(s) == 0 {
		return 0, false
	}

	idx := sort.Search(len(s), func(i int) bool { return s[i].Time.After(ts) }) - 1
	if idx < 0 {
		idx = 0
	}
	if price := s[idx].Close; price > 0.5 {
		return price, true
	}
	return 0, false
}
