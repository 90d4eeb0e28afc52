package freshness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/model"
)

func TestPolicy_Threshold(t *testing.T) {
	policy := NewPolicy(0, 0, 0)

	tests := []struct {
		period   model.Period
		expected time.Duration
	}{
		{model.Period1H, time.Duration(float64(time.Hour) * 0.003)},
		{model.Period24H, time.Duration(float64(24*time.Hour) * 0.003)},
		{model.Period7D, time.Duration(float64(7*24*time.Hour) * 0.003)},
		{model.Period30D, time.Duration(float64(30*24*time.Hour) * 0.003)},
		{model.Period365D, time.Duration(float64(365*24*time.Hour) * 0.003)},
	}
	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			assert.Equal(t, tt.expected, policy.Threshold(tt.period))
		})
	}
}

func TestPolicy_ThresholdMonotone(t *testing.T) {
	policy := NewPolicy(0, 0, 0)

	periods := model.Periods()
	for i := 1; i < len(periods); i++ {
		shorter := policy.Threshold(periods[i-1])
		longer := policy.Threshold(periods[i])
		assert.Less(t, shorter, longer,
			"threshold for %s must be below %s", periods[i-1], periods[i])
	}
}

func TestPolicy_IsFresh(t *testing.T) {
	policy := NewPolicy(0, 0, 0)
	now := time.Now().UTC()

	// 24h threshold is ~4.3 minutes: 4 minutes old is fresh, 5 is not.
	assert.True(t, policy.IsFresh(now.Add(-4*time.Minute), model.Period24H, now))
	assert.False(t, policy.IsFresh(now.Add(-5*time.Minute), model.Period24H, now))

	// The same 5 minute age is fine for a 7d period (~30 minute threshold).
	assert.True(t, policy.IsFresh(now.Add(-5*time.Minute), model.Period7D, now))

	// Zero time is never fresh.
	assert.False(t, policy.IsFresh(time.Time{}, model.Period24H, now))
}

func TestPolicy_PreferCacheUnderLoad(t *testing.T) {
	policy := NewPolicy(0, 0, 8)
	now := time.Now().UTC()
	computedAt := now.Add(-10 * time.Minute) // past the 24h soft threshold

	// Below the load threshold a stale entry does not get served.
	assert.False(t, policy.PreferCacheUnderLoad(computedAt, model.Period24H, now, 3))

	// At or above the threshold it does, as long as it is within the hard bound.
	assert.True(t, policy.PreferCacheUnderLoad(computedAt, model.Period24H, now, 8))
	assert.True(t, policy.PreferCacheUnderLoad(computedAt, model.Period24H, now, 20))

	// Past the hard bound (10x threshold, ~43 minutes for 24h) load no
	// longer justifies serving the entry.
	ancient := now.Add(-2 * time.Hour)
	assert.False(t, policy.PreferCacheUnderLoad(ancient, model.Period24H, now, 20))

	// Never without a snapshot.
	assert.False(t, policy.PreferCacheUnderLoad(time.Time{}, model.Period24H, now, 20))
}

func TestPolicy_HardBound(t *testing.T) {
	policy := NewPolicy(0.003, 10, 8)
	assert.Equal(t, time.Duration(float64(policy.Threshold(model.Period24H))*10),
		policy.HardBound(model.Period24H))
}
