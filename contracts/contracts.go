// Package contracts resolves a spot level and a direction into a concrete
// NIFTY weekly option contract, using the Dhan scrip master dump when one
// is available and a synthetic placeholder when it is not.
package contracts

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kppillai/niftybot/market"
)

// Contract identifies one tradable index option.
type Contract struct {
	SecurityID   string
	Symbol       string
	Strike       float64
	Expiry       time.Time // zero for synthetic contracts
	LotSize      int
	OptionType   market.Direction
	DaysToExpiry int
	Synthetic    bool
}

// scrip master columns the selector needs.
const (
	colSecurityID = "SEM_SMST_SECURITY_ID"
	colInstrument = "SEM_INSTRUMENT_NAME"
	colSymbol     = "SEM_TRADING_SYMBOL"
	colExpiry     = "SEM_EXPIRY_DATE"
	colStrike     = "SEM_STRIKE_PRICE"
	colOptionType = "SEM_OPTION_TYPE"
	colLotUnits   = "SEM_LOT_UNITS"
)

type scripRow struct {
	securityID string
	symbol     string
	strike     float64
	expiry     time.Time
	lotSize    int
	optionType market.Direction
}

type selKey struct {
	strike float64
	right  market.Direction
	day    market.Day
}

// Selector picks the at-the-money contract on the nearest expiry
// strictly after the trade date. Resolutions are memoised per
// (strike, type, day) until ClearCache, so one trading day never
// flip-flops between contracts as the spot wobbles around a strike.
type Selector struct {
	rows    []scripRow
	lotSize int // fallback when the scrip master is absent or silent

	mu    sync.Mutex
	cache map[selKey]Contract
}

// NewSelector loads the scrip master at path. A missing file is not an
// error: the selector degrades to synthetic contracts, which is how
// backtests run without a dump on disk.
func NewSelector(path string, fallbackLotSize int) (*Selector, error) {
	s := &Selector{
		lotSize: fallbackLotSize,
		cache:   make(map[selKey]Contract),
	}
	if path == "" {
		log.Printf("contracts: no scrip master configured, synthetic mode")
		return s, nil
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		log.Printf("contracts: no scrip master at %s, synthetic mode", path)
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := loadScripMaster(f)
	if err != nil {
		return nil, fmt.Errorf("scrip master %s: %w", path, err)
	}
	s.rows = rows
	log.Printf("contracts: %d option rows loaded from %s", len(rows), path)
	return s, nil
}

// loadScripMaster keeps only NIFTY index options, dropping the BANK, FIN,
// MID and NEXT families that share the prefix.
func loadScripMaster(r io.Reader) ([]scripRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	for _, need := range []string{colSecurityID, colInstrument, colSymbol, colExpiry, colStrike, colOptionType} {
		if _, ok := idx[need]; !ok {
			return nil, fmt.Errorf("missing column %s", need)
		}
	}

	field := func(row []string, name string) string {
		i := idx[name]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var rows []scripRow
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if field(row, colInstrument) != "OPTIDX" {
			continue
		}
		symbol := field(row, colSymbol)
		if !strings.HasPrefix(symbol, "NIFTY") {
			continue
		}
		if strings.Contains(symbol, "BANK") || strings.Contains(symbol, "FIN") ||
			strings.Contains(symbol, "MID") || strings.Contains(symbol, "NEXT") {
			continue
		}

		right, ok := market.ParseDirection(field(row, colOptionType))
		if !ok {
			continue
		}
		expiry, ok := parseExpiry(field(row, colExpiry))
		if !ok {
			continue
		}
		strike, err := strconv.ParseFloat(field(row, colStrike), 64)
		if err != nil {
			continue
		}

		lot := 0
		if v := field(row, colLotUnits); v != "" {
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				lot = int(n)
			}
		}

		rows = append(rows, scripRow{
			securityID: field(row, colSecurityID),
			symbol:     symbol,
			strike:     strike,
			expiry:     expiry,
			lotSize:    lot,
			optionType: right,
		})
	}
	return rows, nil
}

func parseExpiry(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ATMStrike rounds the spot to the nearest 50-point NIFTY strike.
func ATMStrike(spot float64) float64 {
	return math.Round(spot/50) * 50
}

// Resolve returns the contract to trade for the given spot and direction
// on the given day. It always succeeds; when the scrip master has no
// match it falls back to a synthetic contract.
func (s *Selector) Resolve(spot float64, right market.Direction, day market.Day) Contract {
	atm := ATMStrike(spot)
	key := selKey{strike: atm, right: right, day: day}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cache[key]; ok {
		return c
	}
	c := s.find(atm, right, day)
	s.cache[key] = c
	return c
}

// ClearCache drops all memoised resolutions. Called at day rollover so a
// new session re-resolves against fresh expiries.
func (s *Selector) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[selKey]Contract)
}

func (s *Selector) find(atm float64, right market.Direction, day market.Day) Contract {
	if len(s.rows) == 0 {
		return s.synthetic(atm, right)
	}
	dt := day.Time()

	var nearest time.Time
	for _, row := range s.rows {
		if !row.expiry.After(dt) {
			continue
		}
		if nearest.IsZero() || row.expiry.Before(nearest) {
			nearest = row.expiry
		}
	}
	if nearest.IsZero() {
		return s.synthetic(atm, right)
	}

	var pool []scripRow
	for _, row := range s.rows {
		if row.expiry.Equal(nearest) && row.optionType == right {
			pool = append(pool, row)
		}
	}
	if len(pool) == 0 {
		return s.synthetic(atm, right)
	}
	sort.SliceStable(pool, func(i, j int) bool {
		return math.Abs(pool[i].strike-atm) < math.Abs(pool[j].strike-atm)
	})
	best := pool[0]

	lot := best.lotSize
	if lot <= 0 {
		lot = s.lotSize
	}
	return Contract{
		SecurityID:   best.securityID,
		Symbol:       best.symbol,
		Strike:       best.strike,
		Expiry:       best.expiry,
		LotSize:      lot,
		OptionType:   right,
		DaysToExpiry: int(nearest.Sub(dt).Hours() / 24),
	}
}

func (s *Selector) synthetic(atm float64, right market.Direction) Contract {
	return Contract{
		Symbol:       fmt.Sprintf("NIFTY%d%s", int(atm), right),
		Strike:       atm,
		LotSize:      s.lotSize,
		OptionType:   right,
		DaysToExpiry: 5,
		Synthetic:    true,
	}
}
