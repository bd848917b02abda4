package threat

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRingSemantics(t *testing.T) {
	h := NewHistory(3)

	base := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		h.Append(Sample{At: base.Add(time.Duration(i) * time.Second), Score: i * 10})
	}

	assert.Equal(t, 3, h.Len())

	samples := h.Samples()
	require.Len(t, samples, 3)
	// Oldest two evicted; remaining are 20, 30, 40 oldest-first.
	assert.Equal(t, []int{20, 30, 40}, []int{samples[0].Score, samples[1].Score, samples[2].Score})

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, 40, latest.Score)
}

// TestHistoryMonotonicUntilSaturation checks the core invariant: length is
// monotonically non-decreasing until it saturates at capacity, then constant.
func TestHistoryMonotonicUntilSaturation(t *testing.T) {
	h := NewHistory(120)

	prev := 0
	for i := 0; i < 300; i++ {
		h.Append(Sample{Score: i % 101})
		l := h.Len()
		assert.GreaterOrEqual(t, l, prev)
		assert.LessOrEqual(t, l, 120)
		prev = l
	}
	assert.Equal(t, 120, h.Len())
}

func TestHistoryEmpty(t *testing.T) {
	h := NewHistory(10)

	_, ok := h.Latest()
	assert.False(t, ok)
	assert.Empty(t, h.Samples())
	assert.Equal(t, Summary{}, h.Summarize())
}

func TestHistorySummarize(t *testing.T) {
	h := NewHistory(10)
	for _, s := range []int{10, 20, 90} {
		h.Append(Sample{Score: s})
	}

	sum := h.Summarize()
	assert.Equal(t, 3, sum.Count)
	assert.InDelta(t, 40.0, sum.Mean, 1e-9)
	assert.InDelta(t, 90.0, sum.Max, 1e-9)
}

func TestLoadTuning(t *testing.T) {
	yml := "danger_radius_km: 150\ncritical_bonus: 40\n"
	tn, err := LoadTuning(strings.NewReader(yml))
	require.NoError(t, err)

	assert.InDelta(t, 150.0, tn.DangerRadiusKm, 1e-9)
	assert.InDelta(t, 40.0, tn.CriticalBonus, 1e-9)
	// Unspecified fields keep defaults.
	assert.InDelta(t, 0.5, tn.DangerWeight, 1e-9)
	assert.Equal(t, 120, tn.HistoryCapacity)

	// Empty input yields pure defaults.
	tn, err = LoadTuning(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultTuning(), tn)

	// Unknown keys are rejected.
	_, err = LoadTuning(strings.NewReader("bogus_key: 1\n"))
	assert.Error(t, err)

	// Invalid values are rejected.
	_, err = LoadTuning(strings.NewReader("danger_radius_km: -5\n"))
	assert.Error(t, err)
}
