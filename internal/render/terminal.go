package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	headStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
	labelStyle  = lipgloss.NewStyle().Faint(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("2")).
			Padding(0, 2)

	toneColors = map[Tone]lipgloss.Color{
		TonePrimary:   lipgloss.Color("33"),
		ToneSuccess:   lipgloss.Color("2"),
		ToneWarning:   lipgloss.Color("214"),
		ToneInfo:      lipgloss.Color("45"),
		ToneDanger:    lipgloss.Color("196"),
		ToneSecondary: lipgloss.Color("245"),
	}

	icons = map[string]string{
		"magic":                "✨",
		"check-circle":         "✅",
		"play":                 "▶",
		"exclamation-triangle": "⚠",
		"folder-open":          "📂",
	}
)

// Options tune terminal rendering.
type Options struct {
	Width        int
	SpinnerFrame string
	// Keys labels the primary and stop buttons with their shortcut keys.
	Keys bool
}

// Panel draws the full enhancement section for the terminal.
func Panel(vm ViewModel, opts Options) string {
	var b strings.Builder
	b.WriteString(headStyle.Render("Close Actor Enhancement") + "\n\n")
	b.WriteString(ButtonLine(vm, opts) + "\n")
	if vm.Guidance != "" {
		b.WriteString(dimStyle.Render(vm.Guidance) + "\n")
	}
	if vm.Progress.Visible {
		b.WriteString("\n" + progressBlock(vm.Progress, opts.Width))
	}
	if stats := statsBlock(vm.Panels); stats != "" {
		b.WriteString("\n" + stats)
	}
	return b.String()
}

// ButtonLine renders the primary button and, when visible, the stop button.
func ButtonLine(vm ViewModel, opts Options) string {
	style := lipgloss.NewStyle().Bold(true).Foreground(toneColors[vm.Button.Tone])
	if vm.Button.Disabled {
		style = style.Faint(true)
	}
	icon := icons[vm.Button.Icon]
	if vm.Button.Icon == "spinner" {
		icon = opts.SpinnerFrame
	}
	label := vm.Button.Label
	if icon != "" {
		label = icon + " " + label
	}
	if opts.Keys && !vm.Button.Disabled {
		label = "[s] " + label
	}
	line := style.Render(label)

	if vm.Stop.Visible {
		stop := vm.Stop.Label
		if opts.Keys && !vm.Stop.Disabled {
			stop = "[x] " + stop
		}
		stopStyle := lipgloss.NewStyle().Foreground(toneColors[ToneDanger])
		if vm.Stop.Disabled {
			stopStyle = stopStyle.Faint(true)
		}
		line += "   " + stopStyle.Render(stop)
	}
	return line
}

func progressBlock(p ProgressPanel, width int) string {
	var b strings.Builder
	row := func(lbl, val string) {
		b.WriteString(labelStyle.Render(lbl) + val + "\n")
	}

	barWidth := 30
	if width > 0 && width-20 < barWidth {
		barWidth = max(width-20, 10)
	}
	filled := int(p.Percent / 100 * float64(barWidth))
	bar := okStyle.Render(strings.Repeat("█", filled)) + dimStyle.Render(strings.Repeat("░", barWidth-filled))

	b.WriteString(fmt.Sprintf("%s %5.1f%%\n", bar, p.Percent))
	row("Processed ", fmt.Sprintf("%d / %d", p.Processed, p.Total))
	row("Enhanced  ", fmt.Sprintf("%d", p.Enhanced))
	if p.Failed > 0 {
		row("Failed    ", errStyle.Render(fmt.Sprintf("%d", p.Failed)))
	} else {
		row("Failed    ", "0")
	}
	if p.CurrentRepo != "" {
		row("Repo      ", p.CurrentRepo)
	}
	if p.CurrentFile != "" {
		row("File      ", p.CurrentFile)
	}
	if p.Estimate.Known {
		row("Rate      ", fmt.Sprintf("%.1f PRs/s, ~%s left", p.Estimate.PerSecond, p.Estimate.Remaining.Round(time.Second)))
	}
	if p.ErrorMessage != "" {
		b.WriteString(errStyle.Render(p.ErrorMessage) + "\n")
	}
	return b.String()
}

func statsBlock(p Panels) string {
	var b strings.Builder
	if p.EnhancedStats {
		b.WriteString(labelStyle.Render("Coverage  ") + formatShown(p.Coverage) + "\n")
		b.WriteString(labelStyle.Render("Enhanced  ") + fmt.Sprintf("%d / %d PRs", p.EnhancedPRs, p.TotalPRs) + "\n")
		if p.Remaining > 0 {
			b.WriteString(labelStyle.Render("Remaining ") + fmt.Sprintf("%d", p.Remaining) + "\n")
		}
	}
	if len(p.MissingFiles) > 0 {
		b.WriteString(errStyle.Render("Missing: "+strings.Join(p.MissingFiles, ", ")) + "\n")
	}
	if p.ManualUpdate {
		b.WriteString("\n" + dimStyle.Render(fmt.Sprintf("%d PRs could not be enhanced automatically. Press m to set their close actors by hand.", p.Remaining)) + "\n")
	}
	if p.PerfectCoverage {
		b.WriteString("\n" + bannerStyle.Render(okStyle.Render("Perfect coverage: every PR has a close actor.")) + "\n")
	}
	return b.String()
}
