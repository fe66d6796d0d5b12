package tui

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/prdash/internal/domain"
	"github.com/naka-gawa/prdash/internal/gateway"
	"github.com/naka-gawa/prdash/internal/render"
	"github.com/naka-gawa/prdash/internal/usecase"
)

type fakeAPI struct {
	mu        sync.Mutex
	missing   []domain.MissingPrRecord
	submitted []domain.CloseActorUpdate
}

func (f *fakeAPI) FetchStatus(context.Context) (*domain.JobStatus, error) {
	return &domain.JobStatus{IsAvailable: true}, nil
}

func (f *fakeAPI) FetchProgress(context.Context) (*domain.ProgressSnapshot, error) {
	return &domain.ProgressSnapshot{Status: domain.StateIdle}, nil
}

func (f *fakeAPI) StartEnhancement(context.Context) (*domain.ProgressSnapshot, error) {
	return &domain.ProgressSnapshot{Status: domain.StateRunning}, nil
}

func (f *fakeAPI) StopEnhancement(context.Context) (*domain.ProgressSnapshot, error) {
	return &domain.ProgressSnapshot{Status: domain.StateStopping}, nil
}

func (f *fakeAPI) FetchMissingPRs(context.Context) ([]domain.MissingPrRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.missing, nil
}

func (f *fakeAPI) SubmitManualUpdates(_ context.Context, updates []domain.CloseActorUpdate) (*domain.UpdateResults, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, updates...)
	return &domain.UpdateResults{Updated: len(updates)}, nil
}

func (f *fakeAPI) RunRefreshStep(context.Context, string) (*gateway.StepResult, error) {
	return &gateway.StepResult{Status: "success"}, nil
}

func newTestModel(t *testing.T) Model {
	t.Helper()
	m, _ := newTestModelWithAPI(t)
	return m
}

func newTestModelWithAPI(t *testing.T) (Model, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{missing: []domain.MissingPrRecord{
		{Repository: "acme/api", PRNumber: 42, Title: "Fix login", State: "merged"},
		{Repository: "acme/web", PRNumber: 7, Title: "Drop IE", State: "closed"},
	}}
	bridge := &Bridge{}
	ctrl := usecase.NewController(api, bridge, usecase.Timing{
		Poll: 10 * time.Millisecond, StartSettle: 5 * time.Millisecond,
		StopBackstop: 5 * time.Millisecond, Reload: 10 * time.Millisecond,
	}, discardLogger())
	updater := usecase.NewManualUpdater(api, nil, time.Hour, discardLogger())
	t.Cleanup(func() {
		ctrl.Close()
		updater.Close()
	})
	return New(context.Background(), ctrl, updater, bridge), api
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func TestModel_RendersControllerView(t *testing.T) {
	m := newTestModel(t)
	assert.Contains(t, m.View(), "Loading enhancement status")

	vm := render.Build(domain.JobStatus{}, nil, render.Estimate{})
	m, _ = update(t, m, viewMsg{vm: vm})

	assert.False(t, m.loading)
	assert.Contains(t, m.View(), "Start Close Actor Enhancement")

	m, _ = update(t, m, errorMsg{text: "Failed to start enhancement: Disk full"})
	assert.Contains(t, m.View(), "Disk full")

	m, _ = update(t, m, key("esc"))
	assert.NotContains(t, m.View(), "Disk full")
}

func TestModel_ActionKeys(t *testing.T) {
	testCases := []struct {
		name    string
		vm      render.ViewModel
		key     string
		wantCmd bool
	}{
		{name: "start enabled", vm: render.ViewModel{Button: render.Button{Label: "Start"}}, key: "s", wantCmd: true},
		{name: "start disabled", vm: render.ViewModel{Button: render.Button{Disabled: true}}, key: "s", wantCmd: false},
		{name: "stop hidden", vm: render.ViewModel{}, key: "x", wantCmd: false},
		{name: "stop disabled", vm: render.ViewModel{Stop: render.StopButton{Visible: true, Disabled: true}}, key: "x", wantCmd: false},
		{name: "stop visible", vm: render.ViewModel{Stop: render.StopButton{Visible: true}}, key: "x", wantCmd: true},
		{name: "refresh", vm: render.ViewModel{}, key: "r", wantCmd: true},
		{name: "unbound key", vm: render.ViewModel{}, key: "z", wantCmd: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestModel(t)
			m, _ = update(t, m, viewMsg{vm: tc.vm})
			_, cmd := update(t, m, key(tc.key))
			assert.Equal(t, tc.wantCmd, cmd != nil)
		})
	}
}

func TestModel_ReloadRefetches(t *testing.T) {
	m := newTestModel(t)
	m, cmd := update(t, m, reloadMsg{})
	require.NotNil(t, cmd)
	assert.Contains(t, m.notice, "Reloaded")
}

func TestModel_ManualDialog(t *testing.T) {
	m := newTestModel(t)
	m, _ = update(t, m, viewMsg{vm: render.ViewModel{}})

	m, cmd := update(t, m, key("m"))
	require.NotNil(t, cmd)
	assert.Equal(t, stateManual, m.state)
	assert.Contains(t, m.View(), "Loading PRs without a close actor")

	msg := cmd()
	loaded, ok := msg.(missingLoadedMsg)
	require.True(t, ok)
	require.NoError(t, loaded.err)

	m, _ = update(t, m, loaded)
	require.Len(t, m.inputs, 2)
	assert.Equal(t, 0, m.focus)
	assert.True(t, m.inputs[0].Focused())
	assert.Contains(t, m.View(), "acme/api")

	m, _ = update(t, m, key("tab"))
	assert.Equal(t, 1, m.focus)
	m, _ = update(t, m, key("tab"))
	assert.Equal(t, 0, m.focus)
	m, _ = update(t, m, key("shift+tab"))
	assert.Equal(t, 1, m.focus)

	t.Run("invalid usernames block the batch", func(t *testing.T) {
		bad := m
		bad.inputs = append(bad.inputs[:0:0], m.inputs...)
		bad.inputs[0].SetValue("-bad")
		bad.inputs[1].SetValue("octocat")
		bad, cmd := update(t, bad, key("enter"))
		assert.Nil(t, cmd)
		assert.False(t, bad.busy)
		assert.Contains(t, bad.dialogErr, "-bad")
	})

	t.Run("valid batch submits", func(t *testing.T) {
		good := m
		good.inputs = append(good.inputs[:0:0], m.inputs...)
		good.inputs[0].SetValue("octocat")
		good.inputs[1].SetValue("unknown")
		good, cmd := update(t, good, key("enter"))
		require.NotNil(t, cmd)
		assert.True(t, good.busy)

		res, ok := cmd().(submitResultMsg)
		require.True(t, ok)
		require.NoError(t, res.err)

		good, _ = update(t, good, res)
		assert.False(t, good.busy)
		assert.Contains(t, good.notice, "Updated 2 PRs (0 failed)")
	})

	t.Run("suggest without a GitHub token", func(t *testing.T) {
		s, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlG})
		require.NotNil(t, cmd)
		s, _ = update(t, s, cmd())
		assert.Equal(t, usecase.ErrNoLookup.Error(), s.dialogErr)
	})

	t.Run("esc closes the dialog", func(t *testing.T) {
		closed, cmd := update(t, m, key("esc"))
		assert.NotNil(t, cmd)
		assert.Equal(t, stateNormal, closed.state)
		assert.Nil(t, closed.inputs)
	})
}

func TestModel_IgnoresMissingListOutsideDialog(t *testing.T) {
	m := newTestModel(t)
	m, _ = update(t, m, missingLoadedMsg{records: []domain.MissingPrRecord{{Repository: "acme/api", PRNumber: 1}}})
	assert.Nil(t, m.inputs)
}

func TestBridge_DropsUntilAttached(t *testing.T) {
	b := &Bridge{}
	assert.NotPanics(t, func() {
		b.Render(render.ViewModel{})
		b.ShowError("boom")
		b.Reload()
	})
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func openDialog(t *testing.T, m Model) Model {
	t.Helper()
	m, _ = update(t, m, viewMsg{vm: render.ViewModel{}})
	m, cmd := update(t, m, key("m"))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	require.Len(t, m.inputs, 2)
	return m
}

func TestModel_SubmitUsesRowsShownWhenTyped(t *testing.T) {
	m, api := newTestModelWithAPI(t)
	m = openDialog(t, m)
	m.inputs[0].SetValue("octocat")
	m.inputs[1].SetValue("hubot")

	m, cmd := update(t, m, key("enter"))
	require.NotNil(t, cmd)

	// A delayed reload lands before the submit runs and reorders the list.
	api.mu.Lock()
	api.missing = []domain.MissingPrRecord{
		{Repository: "acme/web", PRNumber: 7},
		{Repository: "acme/ops", PRNumber: 99},
	}
	api.mu.Unlock()
	_, err := m.updater.Open(context.Background())
	require.NoError(t, err)

	res, ok := cmd().(submitResultMsg)
	require.True(t, ok)
	require.NoError(t, res.err)

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, []domain.CloseActorUpdate{
		{Repository: "acme/api", PRNumber: 42, CloseActor: "octocat"},
		{Repository: "acme/web", PRNumber: 7, CloseActor: "hubot"},
	}, api.submitted)
}

func TestModel_DropsSuggestionForReplacedRow(t *testing.T) {
	m := openDialog(t, newTestModel(t))

	m, _ = update(t, m, suggestMsg{row: 0, rec: domain.MissingPrRecord{Repository: "acme/old", PRNumber: 1}, actor: "ghost"})
	assert.Empty(t, m.inputs[0].Value())

	m, _ = update(t, m, suggestMsg{row: 1, rec: m.records[1], actor: "hubot"})
	assert.Equal(t, "hubot", m.inputs[1].Value())
}
