package usecase

import (
	"context"
	"fmt"
	"log"

	"github.com/naka-gawa/prdash/internal/config"
	"github.com/naka-gawa/prdash/internal/gateway"
)

// StepStatus is the lifecycle of a single refresh step.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
)

// StepEvent reports a refresh step changing status.
type StepEvent struct {
	Index   int
	Total   int
	Step    config.RefreshStep
	Status  StepStatus
	Message string
	Err     error
}

// Sequencer runs the "update all data" steps one after another.
type Sequencer struct {
	api    gateway.DashboardAPI
	steps  []config.RefreshStep
	logger *log.Logger
}

// NewSequencer creates a new Sequencer instance.
func NewSequencer(api gateway.DashboardAPI, steps []config.RefreshStep, logger *log.Logger) *Sequencer {
	return &Sequencer{api: api, steps: steps, logger: logger}
}

// Run executes every step in order. The first failing step ends the run;
// later steps are not attempted. report may be nil.
func (s *Sequencer) Run(ctx context.Context, report func(StepEvent)) error {
	if report == nil {
		report = func(StepEvent) {}
	}
	total := len(s.steps)
	for i, step := range s.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.logger.Printf("[%d/%d] %s...\n", i+1, total, step.Name)
		report(StepEvent{Index: i, Total: total, Step: step, Status: StepRunning})

		res, err := s.api.RunRefreshStep(ctx, step.Path)
		if err != nil {
			report(StepEvent{Index: i, Total: total, Step: step, Status: StepFailed, Err: err, Message: errorText(err)})
			return fmt.Errorf("step %q failed: %w", step.Name, err)
		}
		report(StepEvent{Index: i, Total: total, Step: step, Status: StepDone, Message: res.Message})
	}
	s.logger.Println("All refresh steps completed.")
	return nil
}
