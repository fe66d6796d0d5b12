package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayCoverage(t *testing.T) {
	testCases := []struct {
		name     string
		raw      float64
		expected float64
	}{
		{name: "exactly 100", raw: 100, expected: 100},
		{name: "above 100 is clamped", raw: 100.4, expected: 100},
		{name: "99.99 never rounds up to 100", raw: 99.99, expected: 99.9},
		{name: "floors rather than rounds", raw: 87.46, expected: 87.4},
		{name: "already one decimal", raw: 42.5, expected: 42.5},
		{name: "zero", raw: 0, expected: 0},
		{name: "negative treated as zero", raw: -3, expected: 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, DisplayCoverage(tc.raw), 1e-9)
		})
	}
}

func TestDisplayCoverage_HundredOnlyAtOrAbove(t *testing.T) {
	for raw := 95.0; raw < 105; raw += 0.013 {
		shown := DisplayCoverage(raw)
		if raw >= 100 {
			assert.Equal(t, 100.0, shown, "raw=%v", raw)
		} else {
			assert.Less(t, shown, 100.0, "raw=%v", raw)
		}
	}
}

func TestJobStatus_State(t *testing.T) {
	assert.Equal(t, StateRunning, JobStatus{IsRunning: true, IsStopping: true}.State())
	assert.Equal(t, StateStopping, JobStatus{IsStopping: true}.State())
	assert.Equal(t, StateError, JobStatus{HasError: true, IsStopped: true}.State())
	assert.Equal(t, StateStopped, JobStatus{IsStopped: true}.State())
	assert.Equal(t, StateIdle, JobStatus{IsAvailable: true}.State())
}

func TestApplyProgress_KeepsCoverage(t *testing.T) {
	base := JobStatus{IsAvailable: true, ExistingData: &CoverageInfo{TotalPRs: 10}}

	running := ApplyProgress(base, ProgressSnapshot{Status: StateRunning})
	assert.True(t, running.IsRunning)
	assert.Same(t, base.ExistingData, running.ExistingData)

	stopped := ApplyProgress(running, ProgressSnapshot{Status: StateStopped})
	assert.False(t, stopped.IsRunning)
	assert.True(t, stopped.IsStopped)
}

func TestProgressSnapshot_Percent(t *testing.T) {
	assert.Equal(t, 0.0, ProgressSnapshot{}.Percent())
	assert.Equal(t, 50.0, ProgressSnapshot{Processed: 5, Total: 10}.Percent())
	assert.Equal(t, 100.0, ProgressSnapshot{Processed: 12, Total: 10}.Percent())
}
