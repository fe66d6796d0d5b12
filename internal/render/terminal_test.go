package render

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/naka-gawa/prdash/internal/domain"
)

func TestPanel_ContainsSections(t *testing.T) {
	status := domain.JobStatus{IsRunning: true, ExistingData: &domain.CoverageInfo{
		TotalPRs: 10, EnhancedPRs: 4, CoveragePercentage: 40, NeedsEnhancement: 6,
	}}
	p := &domain.ProgressSnapshot{Status: domain.StateRunning, Processed: 3, Total: 6, CurrentRepo: "org/a", CurrentFile: "a.json"}

	out := Panel(Build(status, p, Estimate{}), Options{Width: 80, SpinnerFrame: "|", Keys: true})

	assert.Contains(t, out, "Enhancement Running...")
	assert.Contains(t, out, "[x] Stop Enhancement")
	assert.NotContains(t, out, "[s]")
	assert.Contains(t, out, "3 / 6")
	assert.Contains(t, out, "org/a")
	assert.Contains(t, out, "40.0%")
}

func TestPanel_PerfectBanner(t *testing.T) {
	status := domain.JobStatus{IsAvailable: true, ExistingData: &domain.CoverageInfo{
		TotalPRs: 5, EnhancedPRs: 5, CoveragePercentage: 100,
	}}
	out := Panel(Build(status, nil, Estimate{}), Options{})

	assert.Contains(t, out, "Perfect coverage")
	assert.NotContains(t, out, "Press m")
}
