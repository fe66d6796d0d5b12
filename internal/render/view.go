// Package render maps enhancement status onto view-models and draws them
// for the terminal.
package render

import (
	"fmt"
	"time"

	"github.com/naka-gawa/prdash/internal/domain"
)

// Mode is the single visual mode selected for a status.
type Mode string

const (
	ModeAvailableComplete Mode = "available-complete"
	ModeAvailablePartial  Mode = "available-partial"
	ModeRunning           Mode = "running"
	ModeStopping          Mode = "stopping"
	ModeStopped           Mode = "stopped"
	ModeError             Mode = "error"
	ModeNotRun            Mode = "not-run"
	// ModeStarting is the optimistic mode shown between a start request
	// and the next successful poll.
	ModeStarting Mode = "starting"
)

// Tone is the semantic color of a button.
type Tone string

const (
	TonePrimary   Tone = "primary"
	ToneSuccess   Tone = "success"
	ToneWarning   Tone = "warning"
	ToneInfo      Tone = "info"
	ToneDanger    Tone = "danger"
	ToneSecondary Tone = "secondary"
)

// Button describes the primary enhancement action.
type Button struct {
	Label    string
	Icon     string
	Disabled bool
	Tone     Tone
}

// StopButton describes the companion stop action.
type StopButton struct {
	Visible  bool
	Disabled bool
	Label    string
}

// Estimate is the throughput estimate shown next to the progress bar.
type Estimate struct {
	Known     bool
	PerSecond float64
	Remaining time.Duration
}

// ProgressPanel is visible only while a job is running or stopping.
type ProgressPanel struct {
	Visible      bool
	Processed    int
	Total        int
	Percent      float64
	Enhanced     int
	Failed       int
	CurrentRepo  string
	CurrentFile  string
	ErrorMessage string
	Estimate     Estimate
}

// Panels are the secondary statistic blocks. They are computed from the
// same status as the button but independently of it.
type Panels struct {
	EnhancedStats   bool
	ManualUpdate    bool
	PerfectCoverage bool
	Coverage        float64
	TotalPRs        int
	EnhancedPRs     int
	Remaining       int
	MissingFiles    []string
}

// ViewModel is everything the enhancement section displays.
type ViewModel struct {
	Mode     Mode
	State    domain.State
	Button   Button
	Stop     StopButton
	Guidance string
	Progress ProgressPanel
	Panels   Panels
}

// Build selects the view-model for status. progress may be nil.
func Build(status domain.JobStatus, progress *domain.ProgressSnapshot, est Estimate) ViewModel {
	vm := ViewModel{State: status.State()}
	vm.Mode, vm.Button, vm.Stop, vm.Guidance = primary(status)
	vm.Progress = progressPanel(status, progress, est)
	vm.Panels = panels(status)
	return vm
}

// Starting is the optimistic view-model used while a start request is in flight.
func Starting(prev ViewModel) ViewModel {
	prev.Mode = ModeStarting
	prev.Button = Button{Label: "Starting...", Icon: "spinner", Disabled: true, Tone: ToneWarning}
	prev.Stop = StopButton{}
	return prev
}

// Stopping is the optimistic view-model shown right after a stop request.
func Stopping(prev ViewModel) ViewModel {
	prev.Mode = ModeStopping
	prev.State = domain.StateStopping
	prev.Button, prev.Stop = stoppingButtons()
	return prev
}

func stoppingButtons() (Button, StopButton) {
	return Button{Label: "Stopping Enhancement...", Icon: "spinner", Disabled: true, Tone: ToneSecondary},
		StopButton{Visible: true, Disabled: true, Label: "Stopping..."}
}

func primary(status domain.JobStatus) (Mode, Button, StopButton, string) {
	cov := status.ExistingData
	switch status.State() {
	case domain.StateRunning:
		return ModeRunning,
			Button{Label: "Enhancement Running...", Icon: "spinner", Disabled: true, Tone: ToneWarning},
			StopButton{Visible: true, Label: "Stop Enhancement"},
			""
	case domain.StateStopping:
		b, s := stoppingButtons()
		return ModeStopping, b, s, ""
	case domain.StateError:
		return ModeError,
			Button{Label: "Retry Enhancement", Icon: "exclamation-triangle", Tone: ToneDanger},
			StopButton{},
			"The last enhancement run failed. Retry to continue from where it stopped."
	case domain.StateStopped:
		return ModeStopped,
			Button{Label: "Resume Enhancement", Icon: "play", Tone: ToneInfo},
			StopButton{},
			"Enhancement was stopped. Resume to process the remaining PRs."
	}

	if status.IsAvailable && cov != nil {
		if cov.NeedsEnhancement == 0 {
			return ModeAvailableComplete,
				Button{Label: "Enhancement Complete... Re-run Available", Icon: "check-circle", Tone: ToneSuccess},
				StopButton{},
				""
		}
		label := fmt.Sprintf("Enhance %d Remaining PRs (%s covered)", cov.NeedsEnhancement, FormatPercent(cov.CoveragePercentage))
		return ModeAvailablePartial,
			Button{Label: label, Icon: "magic", Tone: TonePrimary},
			StopButton{},
			""
	}

	if cov != nil && cov.FilesMissing {
		return ModeNotRun,
			Button{Label: "Data Files Missing", Icon: "folder-open", Disabled: true, Tone: ToneSecondary},
			StopButton{},
			"Run \"refresh-all\" to download PR data before enhancing close actors."
	}
	return ModeNotRun,
		Button{Label: "Start Close Actor Enhancement", Icon: "magic", Tone: TonePrimary},
		StopButton{},
		"Close actor data has not been collected yet."
}

func progressPanel(status domain.JobStatus, p *domain.ProgressSnapshot, est Estimate) ProgressPanel {
	if p == nil || !(status.IsRunning || status.IsStopping) {
		return ProgressPanel{}
	}
	return ProgressPanel{
		Visible:      true,
		Processed:    p.Processed,
		Total:        p.Total,
		Percent:      p.Percent(),
		Enhanced:     p.Enhanced,
		Failed:       p.Failed,
		CurrentRepo:  p.CurrentRepo,
		CurrentFile:  p.CurrentFile,
		ErrorMessage: p.ErrorMessage,
		Estimate:     est,
	}
}

func panels(status domain.JobStatus) Panels {
	cov := status.ExistingData
	if cov == nil {
		return Panels{}
	}
	shown := domain.DisplayCoverage(cov.CoveragePercentage)
	truly100 := cov.CoveragePercentage >= 100
	return Panels{
		EnhancedStats:   cov.EnhancedPRs > 0 || truly100,
		ManualUpdate:    cov.CoveragePercentage >= 99 && !truly100 && cov.NeedsEnhancement > 0,
		PerfectCoverage: truly100 && cov.NeedsEnhancement == 0,
		Coverage:        shown,
		TotalPRs:        cov.TotalPRs,
		EnhancedPRs:     cov.EnhancedPRs,
		Remaining:       cov.NeedsEnhancement,
		MissingFiles:    cov.MissingFiles,
	}
}

// FormatPercent renders a coverage value using the display rule.
func FormatPercent(raw float64) string {
	return formatShown(domain.DisplayCoverage(raw))
}

func formatShown(shown float64) string {
	if shown == 100 {
		return "100%"
	}
	return fmt.Sprintf("%.1f%%", shown)
}
