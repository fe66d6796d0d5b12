// Package usecase contains the business logic of the application.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/naka-gawa/prdash/internal/domain"
	"github.com/naka-gawa/prdash/internal/gateway"
	"github.com/naka-gawa/prdash/internal/render"
)

// ErrAlreadyInitialized is returned by Init on a controller that is already running.
var ErrAlreadyInitialized = errors.New("controller already initialized")

// View receives everything the controller displays. Methods are called
// with the controller's lock held and must not call back into it.
type View interface {
	Render(vm render.ViewModel)
	ShowError(message string)
	// Reload asks the view to re-fetch everything, like a page reload.
	Reload()
}

// Timing holds the controller's fixed delays.
type Timing struct {
	Poll         time.Duration
	StartSettle  time.Duration
	StopBackstop time.Duration
	Reload       time.Duration
}

type poller struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Controller tracks the server-side enhancement job and keeps a View in
// sync with it. The server is ground truth; the controller only shows
// optimistic states between a user action and the next poll.
type Controller struct {
	api    gateway.DashboardAPI
	view   View
	logger *log.Logger
	timing Timing
	now    func() time.Time

	// pollMu serializes starting and stopping the poller.
	pollMu sync.Mutex

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	initialized bool
	closed      bool
	busy        bool
	state       domain.State
	status      domain.JobStatus
	progress    *domain.ProgressSnapshot
	vm          render.ViewModel
	poller      *poller
	timers      map[*time.Timer]struct{}
	throughput  *Throughput

	activePollers atomic.Int32
}

// NewController creates a new Controller instance.
func NewController(api gateway.DashboardAPI, view View, timing Timing, logger *log.Logger) *Controller {
	return &Controller{
		api:        api,
		view:       view,
		logger:     logger,
		timing:     timing,
		now:        time.Now,
		state:      domain.StateIdle,
		timers:     make(map[*time.Timer]struct{}),
		throughput: NewThroughput(10),
	}
}

// Init binds the controller to ctx and performs the first status check.
// A controller can be initialized once.
func (c *Controller) Init(ctx context.Context) (domain.JobStatus, error) {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return domain.JobStatus{}, ErrAlreadyInitialized
	}
	c.initialized = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	return c.CheckStatus(ctx), nil
}

// Close stops polling and all pending timers.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	for t := range c.timers {
		t.Stop()
	}
	clear(c.timers)
	cancel := c.cancel
	c.mu.Unlock()

	c.stopProgressPolling()
	if cancel != nil {
		cancel()
	}
}

// State returns the last known job state.
func (c *Controller) State() domain.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ViewModel returns the last rendered view-model.
func (c *Controller) ViewModel() render.ViewModel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vm
}

// CheckStatus fetches the status and progress once and renders them. A
// failed status fetch renders the degraded "files missing" view instead
// of failing.
func (c *Controller) CheckStatus(ctx context.Context) domain.JobStatus {
	var status *domain.JobStatus
	var progress *domain.ProgressSnapshot

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		status, err = c.api.FetchStatus(egCtx)
		return err
	})
	eg.Go(func() error {
		p, err := c.api.FetchProgress(egCtx)
		if err != nil {
			c.logger.Printf("Progress unavailable during status check: %v\n", err)
			return nil
		}
		progress = p
		return nil
	})

	var st domain.JobStatus
	if err := eg.Wait(); err != nil {
		c.logger.Printf("Status check failed, showing fallback view: %v\n", err)
		st = domain.DegradedStatus()
	} else {
		st = mergeProgress(*status, progress)
	}

	c.mu.Lock()
	c.status = st
	c.state = st.State()
	if progress != nil && progress.Active() {
		c.progress = progress
	} else {
		c.progress = nil
	}
	c.renderLocked()
	resume := (st.IsRunning || st.IsStopping) && c.poller == nil && !c.closed
	c.mu.Unlock()

	if resume {
		c.logger.Println("Job is active on the server; resuming progress polling.")
		c.startProgressPolling()
	}
	return st
}

// StartEnhancement starts a job unless the start action is disabled. A job
// that is already active on the server is adopted rather than restarted.
func (c *Controller) StartEnhancement(ctx context.Context) error {
	if !c.acquire(func(vm render.ViewModel) bool { return !vm.Button.Disabled }) {
		c.logger.Println("Start ignored: action is disabled.")
		return nil
	}
	defer c.release()

	c.mu.Lock()
	c.vm = render.Starting(c.vm)
	c.view.Render(c.vm)
	c.mu.Unlock()

	live, err := c.api.FetchProgress(ctx)
	switch {
	case err != nil:
		c.logger.Printf("Could not check live progress before start: %v\n", err)
	case live.Active():
		c.logger.Printf("Job already %s on the server; adopting it.\n", live.Status)
		c.adopt(*live)
		c.startProgressPolling()
		return nil
	}

	started, err := c.api.StartEnhancement(ctx)
	if err != nil {
		if domain.IsBenignRace(err) {
			c.logger.Printf("Ignoring start race: %v\n", err)
			c.startProgressPolling()
			return nil
		}
		c.ShowError(fmt.Sprintf("Failed to start enhancement: %s", errorText(err)))
		c.CheckStatus(ctx)
		return err
	}

	c.throughput.Reset()
	if started != nil {
		c.adopt(*started)
	}
	c.after(c.timing.StartSettle, c.startProgressPolling)
	return nil
}

// StopEnhancement asks the server to stop the job. When nothing is active
// on the server it only re-syncs the view.
func (c *Controller) StopEnhancement(ctx context.Context) error {
	if !c.acquire(func(vm render.ViewModel) bool { return !vm.Stop.Disabled }) {
		c.logger.Println("Stop ignored: action is disabled.")
		return nil
	}
	defer c.release()

	live, err := c.api.FetchProgress(ctx)
	switch {
	case err != nil:
		c.logger.Printf("Could not check live progress before stop: %v\n", err)
	case !live.Active():
		c.logger.Println("No active job to stop; syncing state.")
		c.CheckStatus(ctx)
		return nil
	}

	if _, err := c.api.StopEnhancement(ctx); err != nil {
		if domain.IsBenignRace(err) {
			c.logger.Printf("Ignoring stop race: %v\n", err)
			c.CheckStatus(ctx)
			return nil
		}
		c.ShowError(fmt.Sprintf("Failed to stop enhancement: %s", errorText(err)))
		c.CheckStatus(ctx)
		return err
	}

	c.mu.Lock()
	c.state = domain.StateStopping
	c.status.IsRunning = false
	c.status.IsStopping = true
	c.vm = render.Stopping(c.vm)
	c.view.Render(c.vm)
	polling := c.poller != nil
	c.mu.Unlock()

	if !polling {
		c.startProgressPolling()
	}
	c.after(c.timing.StopBackstop, func() {
		c.CheckStatus(c.baseContext())
	})
	return nil
}

// ShowError forwards message to the view unless it describes a benign
// start/stop race.
func (c *Controller) ShowError(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.showErrorLocked(message)
}

func (c *Controller) showErrorLocked(message string) {
	if domain.IsBenignMessage(message) {
		c.logger.Printf("Suppressed benign error: %s\n", message)
		return
	}
	c.view.ShowError(message)
}

// startProgressPolling replaces any running poller with a new one. At
// most one poller is active per controller.
func (c *Controller) startProgressPolling() {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	c.stopPollerLocked()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(c.baseContextLocked())
	p := &poller{cancel: cancel, done: make(chan struct{})}
	c.poller = p
	c.mu.Unlock()

	c.activePollers.Add(1)
	go c.poll(ctx, p)
}

func (c *Controller) stopProgressPolling() {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	c.stopPollerLocked()
}

// stopPollerLocked cancels the current poller and waits for it to exit.
// pollMu must be held.
func (c *Controller) stopPollerLocked() {
	c.mu.Lock()
	p := c.poller
	c.poller = nil
	c.mu.Unlock()
	if p == nil {
		return
	}
	p.cancel()
	<-p.done
}

func (c *Controller) poll(ctx context.Context, p *poller) {
	defer close(p.done)
	defer c.activePollers.Add(-1)
	defer p.cancel()

	ticker := time.NewTicker(c.timing.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.tick(ctx, p) {
				return
			}
		}
	}
}

// tick fetches progress once and reports whether polling should end.
func (c *Controller) tick(ctx context.Context, p *poller) bool {
	progress, err := c.api.FetchProgress(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		c.logger.Printf("Progress poll failed: %v\n", err)
		return false
	}

	c.mu.Lock()
	if c.poller != p {
		c.mu.Unlock()
		return true
	}
	next, effect := domain.Transition(c.state, progress.Status)
	c.state = next
	c.status = domain.ApplyProgress(c.status, *progress)
	if progress.Active() {
		c.progress = progress
		c.throughput.Observe(c.now(), progress.Processed)
	} else {
		c.progress = nil
	}
	c.renderLocked()
	if effect != domain.EffectNone {
		c.poller = nil
	}
	c.mu.Unlock()

	switch effect {
	case domain.EffectNone:
		return false
	case domain.EffectStopPollingAndReload:
		c.logger.Println("Enhancement completed; scheduling reload.")
		c.after(c.timing.Reload, c.reload)
	case domain.EffectStopPollingAndRefresh:
		c.logger.Printf("Enhancement %s; refreshing status.\n", next)
		if next == domain.StateError && progress.ErrorMessage != "" {
			c.ShowError(progress.ErrorMessage)
		}
		c.CheckStatus(c.baseContext())
	}
	return true
}

func (c *Controller) reload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.view.Reload()
	}
}

// adopt applies a snapshot reported by the server outside of polling.
func (c *Controller) adopt(p domain.ProgressSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = p.Status
	c.status = domain.ApplyProgress(c.status, p)
	if p.Active() {
		c.progress = &p
	}
	c.renderLocked()
}

// renderLocked rebuilds the view-model and renders it. c.mu must be held.
func (c *Controller) renderLocked() {
	var est render.Estimate
	if c.progress != nil {
		est = c.throughput.Estimate(c.progress.Processed, c.progress.Total)
	}
	c.vm = render.Build(c.status, c.progress, est)
	c.view.Render(c.vm)
}

// acquire marks a request in flight if allowed(vm) holds and nothing else is in flight.
func (c *Controller) acquire(allowed func(render.ViewModel) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy || !allowed(c.vm) {
		return false
	}
	c.busy = true
	return true
}

func (c *Controller) release() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

// after runs f once d has elapsed unless the controller is closed first.
func (c *Controller) after(d time.Duration, f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		c.mu.Lock()
		_, pending := c.timers[t]
		delete(c.timers, t)
		c.mu.Unlock()
		if pending {
			f()
		}
	})
	c.timers[t] = struct{}{}
}

func (c *Controller) baseContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseContextLocked()
}

func (c *Controller) baseContextLocked() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// mergeProgress folds the progress endpoint's terminal states into a
// status payload that does not carry them.
func mergeProgress(st domain.JobStatus, p *domain.ProgressSnapshot) domain.JobStatus {
	if p == nil {
		return st
	}
	switch p.Status {
	case domain.StateRunning:
		st.IsRunning = true
	case domain.StateStopping:
		st.IsStopping = true
	case domain.StateStopped:
		st.IsStopped = true
	case domain.StateError:
		st.HasError = true
	}
	return st
}

// errorText returns the server's own message for API errors.
func errorText(err error) string {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
