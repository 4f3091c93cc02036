package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateResumeMatchesContinuousRun(t *testing.T) {
	bars := deterministicBars()
	cfg := testConfig(3)

	full := New(cfg, nil, &fixedResolver{lotSize: 75})
	for _, b := range bars[:8] {
		full.OnBar(b)
	}
	var wantTail []ClosedTrade
	for _, b := range bars[8:] {
		wantTail = append(wantTail, full.OnBar(b)...)
	}

	path := filepath.Join(t.TempDir(), "run", "state.json")
	first := New(cfg, nil, &fixedResolver{lotSize: 75})
	first.SetStatePath(path)
	for _, b := range bars[:8] {
		first.OnBar(b)
	}
	require.NoError(t, first.Commit())
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("state file not written: %v", err)
	}

	resumed := New(cfg, nil, &fixedResolver{lotSize: 75})
	resumed.SetStatePath(path)
	require.NoError(t, resumed.LoadState())
	assert.Equal(t, first.barIndex, resumed.barIndex)
	assert.Equal(t, first.lastBarDay, resumed.lastBarDay)
	assert.Equal(t, first.rr, resumed.rr)
	assert.Equal(t, mustJSON(t, first.Units()), mustJSON(t, resumed.Units()))

	var gotTail []ClosedTrade
	for _, b := range bars[8:] {
		gotTail = append(gotTail, resumed.OnBar(b)...)
	}

	require.NotEmpty(t, wantTail)
	assert.Equal(t, mustJSON(t, wantTail), mustJSON(t, gotTail))
	assert.Equal(t, mustJSON(t, full.Units()), mustJSON(t, resumed.Units()))
	assert.Equal(t, full.TotalCapital(), resumed.TotalCapital())
}

func TestLoadStateMissingFileIsFreshStart(t *testing.T) {
	e := New(testConfig(2), nil, &fixedResolver{lotSize: 75})
	e.SetStatePath(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, e.LoadState())
	assert.Equal(t, 0, e.barIndex)
}

func TestLoadStateRejectsVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99}`), 0o644))

	e := New(testConfig(2), nil, &fixedResolver{lotSize: 75})
	e.SetStatePath(path)
	err := e.LoadState()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestLoadStateRejectsUnitCountMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	saved := New(testConfig(3), nil, &fixedResolver{lotSize: 75})
	saved.SetStatePath(path)
	saved.OnBar(testBar(at(monday, 9, 45), 22000, nil))
	require.NoError(t, saved.Commit())

	e := New(testConfig(5), nil, &fixedResolver{lotSize: 75})
	e.SetStatePath(path)
	err := e.LoadState()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "units")
	// The failed load leaves the engine untouched.
	assert.Equal(t, 0, e.barIndex)
	assert.Len(t, e.units, 5)
}
