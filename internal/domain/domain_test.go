package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusFromScore(t *testing.T) {
	th := DefaultStatusThresholds

	tests := []struct {
		score  int
		status HealthStatus
	}{
		{100, StatusSafe},
		{80, StatusSafe},
		{79, StatusWatch},
		{60, StatusWatch},
		{59, StatusWarning},
		{35, StatusWarning},
		{34, StatusDanger},
		{0, StatusDanger},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, StatusFromScore(tt.score, th), "score %d", tt.score)
	}
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0, ClampScore(-30))
	assert.Equal(t, 100, ClampScore(250))
	assert.Equal(t, 55, ClampScore(55))
}

func TestProgressOf(t *testing.T) {
	items := []DispatchItem{
		{Status: ItemSent},
		{Status: ItemSent},
		{Status: ItemFailed},
		{Status: ItemPending},
		{Status: ItemSkipped},
	}

	p := ProgressOf(items)
	assert.Equal(t, 2, p.Sent)
	assert.Equal(t, 1, p.Failed)
	assert.Equal(t, 1, p.Pending)
	assert.Equal(t, 1, p.Skipped)
	assert.Equal(t, 5, p.Total)
	assert.False(t, p.Finished())

	p = ProgressOf([]DispatchItem{{Status: ItemSent}, {Status: ItemSkipped}})
	assert.True(t, p.Finished())
}

func TestActivationConfigInWindow(t *testing.T) {
	cfg := ActivationConfig{StartHour: 9, EndHour: 22}

	at := func(hour int) time.Time {
		return time.Date(2025, 6, 1, hour, 30, 0, 0, time.UTC)
	}

	assert.False(t, cfg.InWindow(at(8)))
	assert.True(t, cfg.InWindow(at(9)))
	assert.True(t, cfg.InWindow(at(21)))
	assert.False(t, cfg.InWindow(at(22)))
	assert.False(t, cfg.InWindow(at(23)))
}
