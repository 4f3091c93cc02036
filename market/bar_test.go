package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirection(t *testing.T) {
	assert.Equal(t, "CE", Bullish.String())
	assert.Equal(t, "PE", Bearish.String())
	assert.Equal(t, "?", Direction(0).String())

	d, ok := ParseDirection("CE")
	require.True(t, ok)
	assert.Equal(t, Bullish, d)
	d, ok = ParseDirection("PE")
	require.True(t, ok)
	assert.Equal(t, Bearish, d)
	_, ok = ParseDirection("XX")
	assert.False(t, ok)
}

func TestDay(t *testing.T) {
	ts := time.Date(2026, 8, 25, 10, 45, 0, 0, time.UTC)
	d := DayOf(ts)
	assert.Equal(t, Day("2026-08-25"), d)
	assert.Equal(t, "2026-08", d.Month())
	assert.Equal(t, time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC), d.Time())
	assert.True(t, Day("garbage").Time().IsZero())
}

func TestBarInd(t *testing.T) {
	b := Bar{Indicators: map[string]float64{IndRSI: 61.5}}
	assert.Equal(t, 61.5, b.Ind(IndRSI))
	assert.Zero(t, b.Ind(IndADX), "missing indicator reads as zero")

	var bare Bar
	assert.Zero(t, bare.Ind(IndVWAP), "nil indicator map is safe")
}
