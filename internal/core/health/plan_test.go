package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Plan Tests
// =============================================================================

func TestNewPlan_Valid(t *testing.T) {
	plan, err := NewPlan(5*time.Second, 60*time.Second)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, plan.Interval)
	assert.Equal(t, 60*time.Second, plan.Budget)
}

func TestNewPlan_Invalid(t *testing.T) {
	_, err := NewPlan(0, 60*time.Second)
	assert.ErrorIs(t, err, ErrInvalidPlan)

	_, err = NewPlan(5*time.Second, 0)
	assert.ErrorIs(t, err, ErrInvalidPlan)

	_, err = NewPlan(-time.Second, -time.Minute)
	assert.ErrorIs(t, err, ErrInvalidPlan)
}

func TestPlan_Attempts(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		budget   time.Duration
		want     int
	}{
		{"default schedule", 5 * time.Second, 60 * time.Second, 12},
		{"non-divisible budget rounds down", 7 * time.Second, 60 * time.Second, 8},
		{"budget below interval still probes once", 10 * time.Second, 3 * time.Second, 1},
		{"equal interval and budget", 5 * time.Second, 5 * time.Second, 1},
		{"one second cadence", time.Second, 30 * time.Second, 30},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := NewPlan(tc.interval, tc.budget)
			require.NoError(t, err)
			assert.Equal(t, tc.want, plan.Attempts())
		})
	}
}

// =============================================================================
// Status Acceptance Tests
// =============================================================================

func TestAccept(t *testing.T) {
	for _, code := range []int{200, 201, 204, 299} {
		assert.True(t, Accept(code), "status %d should be healthy", code)
	}
	for _, code := range []int{0, 100, 301, 302, 400, 404, 500, 502, 503} {
		assert.False(t, Accept(code), "status %d should not be healthy", code)
	}
}
