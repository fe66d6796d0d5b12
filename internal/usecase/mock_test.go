package usecase

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/naka-gawa/prdash/internal/domain"
	"github.com/naka-gawa/prdash/internal/gateway"
	"github.com/naka-gawa/prdash/internal/render"
)

// mockAPI is a mock implementation of the gateway.DashboardAPI interface.
// FetchProgress also accepts a func returning the snapshot, so tests can
// script a sequence of server states.
type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) FetchStatus(ctx context.Context) (*domain.JobStatus, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.JobStatus), args.Error(1)
}

func (m *mockAPI) FetchProgress(ctx context.Context) (*domain.ProgressSnapshot, error) {
	args := m.Called(ctx)
	switch v := args.Get(0).(type) {
	case nil:
		return nil, args.Error(1)
	case func() (*domain.ProgressSnapshot, error):
		return v()
	default:
		return v.(*domain.ProgressSnapshot), args.Error(1)
	}
}

func (m *mockAPI) StartEnhancement(ctx context.Context) (*domain.ProgressSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProgressSnapshot), args.Error(1)
}

func (m *mockAPI) StopEnhancement(ctx context.Context) (*domain.ProgressSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProgressSnapshot), args.Error(1)
}

func (m *mockAPI) FetchMissingPRs(ctx context.Context) ([]domain.MissingPrRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.MissingPrRecord), args.Error(1)
}

func (m *mockAPI) SubmitManualUpdates(ctx context.Context, updates []domain.CloseActorUpdate) (*domain.UpdateResults, error) {
	args := m.Called(ctx, updates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UpdateResults), args.Error(1)
}

func (m *mockAPI) RunRefreshStep(ctx context.Context, path string) (*gateway.StepResult, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.StepResult), args.Error(1)
}

// mockLookup is a mock implementation of the gateway.ActorLookup interface.
type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) SuggestCloseActor(ctx context.Context, repository string, number int) (string, error) {
	args := m.Called(ctx, repository, number)
	return args.String(0), args.Error(1)
}

func (m *mockLookup) UserExists(ctx context.Context, login string) (bool, error) {
	args := m.Called(ctx, login)
	return args.Bool(0), args.Error(1)
}

// progressScript returns the given states in order, repeating the last one.
func progressScript(states ...domain.State) func() (*domain.ProgressSnapshot, error) {
	var mu sync.Mutex
	i := 0
	return func() (*domain.ProgressSnapshot, error) {
		mu.Lock()
		defer mu.Unlock()
		s := states[min(i, len(states)-1)]
		i++
		return &domain.ProgressSnapshot{Status: s, Processed: i, Total: 100}, nil
	}
}

// recordingView records everything the controller displays.
type recordingView struct {
	mu      sync.Mutex
	renders []render.ViewModel
	errors  []string
	reloads int
}

func (v *recordingView) Render(vm render.ViewModel) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.renders = append(v.renders, vm)
}

func (v *recordingView) ShowError(message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errors = append(v.errors, message)
}

func (v *recordingView) Reload() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reloads++
}

func (v *recordingView) last() render.ViewModel {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.renders) == 0 {
		return render.ViewModel{}
	}
	return v.renders[len(v.renders)-1]
}

func (v *recordingView) modes() []render.Mode {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]render.Mode, len(v.renders))
	for i, vm := range v.renders {
		out[i] = vm.Mode
	}
	return out
}

func (v *recordingView) errorList() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.errors...)
}

func (v *recordingView) reloadCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reloads
}
