package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/naka-gawa/prdash/internal/render"
)

// lineView prints one line per distinct view-model. Done is closed once a
// job that was seen running is no longer running, or on a reload.
type lineView struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
	last   string
	active bool
	done   chan struct{}
	once   sync.Once
}

func newLineView(out, errOut io.Writer) *lineView {
	return &lineView{out: out, errOut: errOut, done: make(chan struct{})}
}

func (v *lineView) Render(vm render.ViewModel) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if line := describe(vm); line != v.last {
		v.last = line
		fmt.Fprintln(v.out, line)
	}
	switch vm.Mode {
	case render.ModeRunning, render.ModeStopping:
		v.active = true
	case render.ModeStarting:
	default:
		if v.active {
			v.finish()
		}
	}
}

func (v *lineView) ShowError(message string) {
	fmt.Fprintln(v.errOut, "Error: "+message)
}

func (v *lineView) Reload() {
	v.finish()
}

func (v *lineView) Done() <-chan struct{} {
	return v.done
}

func (v *lineView) finish() {
	v.once.Do(func() { close(v.done) })
}

func describe(vm render.ViewModel) string {
	p := vm.Progress
	if !p.Visible {
		return fmt.Sprintf("[%s] %s", vm.Mode, vm.Button.Label)
	}
	line := fmt.Sprintf("[%s] %d/%d (%.1f%%) enhanced=%d failed=%d", vm.Mode, p.Processed, p.Total, p.Percent, p.Enhanced, p.Failed)
	if p.CurrentRepo != "" {
		line += " " + p.CurrentRepo
	}
	if p.Estimate.Known {
		line += fmt.Sprintf(" eta=%s", p.Estimate.Remaining.Round(time.Second))
	}
	return line
}
