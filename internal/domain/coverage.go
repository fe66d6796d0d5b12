// Package domain contains the core data structures and domain logic for the application.
package domain

import "math"

// CoverageInfo describes how many PR records already carry close-actor data.
type CoverageInfo struct {
	TotalPRs           int      `json:"total_prs"`
	EnhancedPRs        int      `json:"enhanced_prs"`
	CoveragePercentage float64  `json:"coverage_percentage"`
	NeedsEnhancement   int      `json:"needs_enhancement"`
	FilesMissing       bool     `json:"files_missing"`
	MissingFiles       []string `json:"missing_files,omitempty"`
}

// JobStatus is the view of the enhancement job rebuilt on every fetch.
// It is the core domain entity of this application.
type JobStatus struct {
	IsRunning    bool          `json:"is_running"`
	IsStopping   bool          `json:"is_stopping"`
	IsStopped    bool          `json:"is_stopped"`
	IsAvailable  bool          `json:"is_available"`
	HasError     bool          `json:"has_error"`
	ExistingData *CoverageInfo `json:"existing_data,omitempty"`
}

// State derives the job state from the status flags.
func (s JobStatus) State() State {
	switch {
	case s.IsRunning:
		return StateRunning
	case s.IsStopping:
		return StateStopping
	case s.HasError:
		return StateError
	case s.IsStopped:
		return StateStopped
	default:
		return StateIdle
	}
}

// DegradedStatus is shown when the status endpoint cannot be reached.
// It renders as "files missing" so the view still offers guidance.
func DegradedStatus() JobStatus {
	return JobStatus{
		ExistingData: &CoverageInfo{
			FilesMissing: true,
			MissingFiles: []string{"status unavailable"},
		},
	}
}

// DisplayCoverage floors the raw percentage to one decimal place. Only a
// value that is truly at or above 100 is shown as 100.
func DisplayCoverage(raw float64) float64 {
	if raw >= 100 {
		return 100
	}
	if raw <= 0 || math.IsNaN(raw) {
		return 0
	}
	return math.Floor(raw*10) / 10
}

// ProgressSnapshot mirrors the progress endpoint. It is only meaningful
// while the job is running or stopping.
type ProgressSnapshot struct {
	Status       State  `json:"status"`
	Processed    int    `json:"processed"`
	Total        int    `json:"total"`
	Enhanced     int    `json:"enhanced"`
	Failed       int    `json:"failed"`
	CurrentRepo  string `json:"current_repo"`
	CurrentFile  string `json:"current_file"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Active reports whether the snapshot describes a job the server is still working on.
func (p ProgressSnapshot) Active() bool {
	return p.Status == StateRunning || p.Status == StateStopping
}

// Percent returns processed/total as a percentage in [0,100].
func (p ProgressSnapshot) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	pct := float64(p.Processed) / float64(p.Total) * 100
	return math.Min(pct, 100)
}

// ApplyProgress folds a progress snapshot into a status, keeping the
// coverage numbers from the last full status fetch.
func ApplyProgress(base JobStatus, p ProgressSnapshot) JobStatus {
	base.IsRunning = p.Status == StateRunning
	base.IsStopping = p.Status == StateStopping
	base.IsStopped = p.Status == StateStopped
	base.HasError = p.Status == StateError
	if p.Status == StateCompleted {
		base.IsAvailable = true
	}
	return base
}
