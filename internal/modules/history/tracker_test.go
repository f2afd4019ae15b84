package history

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_AddRollsTheWindow(t *testing.T) {
	tracker := NewTracker(3, zerolog.Nop())
	now := time.Now()

	tracker.Add("AAA", now, 0.01)
	tracker.Add("AAA", now, 0.02)
	assert.False(t, tracker.Ready("AAA"), "window not full yet")

	tracker.Add("AAA", now, 0.03)
	assert.True(t, tracker.Ready("AAA"))
	assert.Equal(t, []float64{0.01, 0.02, 0.03}, tracker.Series("AAA"))

	// A fourth observation evicts the oldest
	tracker.Add("AAA", now, 0.04)
	assert.Equal(t, []float64{0.02, 0.03, 0.04}, tracker.Series("AAA"))
	assert.True(t, tracker.Ready("AAA"))
}

func TestTracker_WarmupKeepsMostRecentLookback(t *testing.T) {
	tracker := NewTracker(3, zerolog.Nop())

	tracker.Warmup("AAA", []float64{0.01, 0.02, 0.03, 0.04, 0.05})
	assert.True(t, tracker.Ready("AAA"))
	assert.Equal(t, []float64{0.03, 0.04, 0.05}, tracker.Series("AAA"))
}

func TestTracker_WarmupReplacesPriorState(t *testing.T) {
	tracker := NewTracker(3, zerolog.Nop())

	tracker.Add("AAA", time.Now(), 0.09)
	tracker.Warmup("AAA", []float64{0.01, 0.02})

	assert.Equal(t, []float64{0.01, 0.02}, tracker.Series("AAA"))
	assert.False(t, tracker.Ready("AAA"), "short warmup leaves the window partial")
}

func TestTracker_RemoveDiscardsAllState(t *testing.T) {
	tracker := NewTracker(2, zerolog.Nop())
	now := time.Now()

	tracker.Add("AAA", now, 0.01)
	require.True(t, tracker.Has("AAA"))

	tracker.Remove("AAA")
	assert.False(t, tracker.Has("AAA"))
	assert.Nil(t, tracker.Series("AAA"))
	_, ok := tracker.LastObservedAt("AAA")
	assert.False(t, ok)
}

func TestTracker_SeriesReturnsACopy(t *testing.T) {
	tracker := NewTracker(2, zerolog.Nop())
	now := time.Now()

	tracker.Add("AAA", now, 0.01)
	tracker.Add("AAA", now, 0.02)

	series := tracker.Series("AAA")
	series[0] = 99.0

	assert.Equal(t, []float64{0.01, 0.02}, tracker.Series("AAA"))
}

func TestTracker_SymbolsAreSorted(t *testing.T) {
	tracker := NewTracker(1, zerolog.Nop())
	now := time.Now()

	tracker.Add("CCC", now, 0.01)
	tracker.Add("AAA", now, 0.01)
	tracker.Warmup("BBB", nil)

	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, tracker.Symbols())
	// BBB has an empty window: not ready
	assert.Equal(t, []string{"AAA", "CCC"}, tracker.ReadySymbols())
}

func TestTracker_LastObservedAt(t *testing.T) {
	tracker := NewTracker(2, zerolog.Nop())

	first := time.Date(2026, 8, 20, 21, 0, 0, 0, time.UTC)
	second := first.Add(24 * time.Hour)

	tracker.Add("AAA", first, 0.01)
	tracker.Add("AAA", second, 0.02)

	at, ok := tracker.LastObservedAt("AAA")
	require.True(t, ok)
	assert.Equal(t, second, at)
}
