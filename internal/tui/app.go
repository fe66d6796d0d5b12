// Package tui is the interactive terminal view of the enhancement controller.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/naka-gawa/prdash/internal/domain"
	"github.com/naka-gawa/prdash/internal/render"
	"github.com/naka-gawa/prdash/internal/usecase"
)

// — state ———————————————————————————————————————————————————————————————————

type appState int

const (
	stateNormal appState = iota
	stateManual
)

// — styles ——————————————————————————————————————————————————————————————————

var (
	dimStyle  = lipgloss.NewStyle().Faint(true)
	boldStyle = lipgloss.NewStyle().Bold(true)
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))

	helpStyle = lipgloss.NewStyle().
			Faint(true).
			PaddingLeft(2)

	alertStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("196")).
			Padding(0, 2)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("205")).
			Padding(1, 3).
			Width(90)
)

// — messages ————————————————————————————————————————————————————————————————

type viewMsg struct{ vm render.ViewModel }

type errorMsg struct{ text string }

type reloadMsg struct{}

type actionDoneMsg struct{}

type missingLoadedMsg struct {
	records []domain.MissingPrRecord
	err     error
}

type submitResultMsg struct {
	results *domain.UpdateResults
	err     error
}

type suggestMsg struct {
	row   int
	rec   domain.MissingPrRecord
	actor string
	err   error
}

// — bridge ——————————————————————————————————————————————————————————————————

// Bridge turns controller callbacks into tea messages. It drops messages
// until a program is attached.
type Bridge struct {
	mu   sync.Mutex
	send func(tea.Msg)
}

// Attach routes messages to p.
func (b *Bridge) Attach(p *tea.Program) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.send = p.Send
}

func (b *Bridge) post(msg tea.Msg) {
	b.mu.Lock()
	send := b.send
	b.mu.Unlock()
	if send != nil {
		send(msg)
	}
}

func (b *Bridge) Render(vm render.ViewModel) { b.post(viewMsg{vm: vm}) }
func (b *Bridge) ShowError(message string)   { b.post(errorMsg{text: message}) }
func (b *Bridge) Reload()                    { b.post(reloadMsg{}) }

// — model ———————————————————————————————————————————————————————————————————

type Model struct {
	ctx     context.Context
	ctrl    *usecase.Controller
	updater *usecase.ManualUpdater

	width   int
	height  int
	loading bool
	vm      render.ViewModel
	alert   string
	notice  string
	spinner spinner.Model

	state     appState
	records   []domain.MissingPrRecord
	inputs    []textinput.Model
	focus     int
	dialogErr string
	busy      bool
}

// New builds the model. The controller's view must be the Bridge attached
// to the program running this model. Update never calls the controller
// synchronously, since the controller renders through the Bridge while
// holding its lock.
func New(ctx context.Context, ctrl *usecase.Controller, updater *usecase.ManualUpdater, bridge *Bridge) Model {
	updater.OnReload(func(records []domain.MissingPrRecord, err error) {
		bridge.post(missingLoadedMsg{records: records, err: err})
	})

	sp := spinner.New()
	sp.Spinner = spinner.Line

	return Model{
		ctx:     ctx,
		ctrl:    ctrl,
		updater: updater,
		loading: true,
		spinner: sp,
	}
}

// — commands ————————————————————————————————————————————————————————————————

func (m Model) initCmd() tea.Msg {
	if _, err := m.ctrl.Init(m.ctx); err != nil {
		return errorMsg{text: err.Error()}
	}
	return actionDoneMsg{}
}

func (m Model) checkStatusCmd() tea.Msg {
	m.ctrl.CheckStatus(m.ctx)
	return actionDoneMsg{}
}

// Errors from start and stop already reached the view through the bridge.
func (m Model) startCmd() tea.Msg {
	_ = m.ctrl.StartEnhancement(m.ctx)
	return actionDoneMsg{}
}

func (m Model) stopCmd() tea.Msg {
	_ = m.ctrl.StopEnhancement(m.ctx)
	return actionDoneMsg{}
}

func (m Model) openManualCmd() tea.Msg {
	records, err := m.updater.Open(m.ctx)
	return missingLoadedMsg{records: records, err: err}
}

// submitCmd sends actors paired with the rows they were typed into, even
// if a reload replaces the list before the command runs.
func (m Model) submitCmd(actors []string) tea.Cmd {
	records := m.records
	return func() tea.Msg {
		results, err := m.updater.Submit(m.ctx, records, actors)
		return submitResultMsg{results: results, err: err}
	}
}

func (m Model) suggestCmd(row int) tea.Cmd {
	rec := m.records[row]
	return func() tea.Msg {
		actor, err := m.updater.Suggest(m.ctx, rec)
		return suggestMsg{row: row, rec: rec, actor: actor, err: err}
	}
}

// — tea.Model ———————————————————————————————————————————————————————————————

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.initCmd, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case viewMsg:
		m.loading = false
		m.vm = msg.vm
		return m, nil

	case errorMsg:
		m.alert = msg.text
		return m, nil

	case reloadMsg:
		m.notice = "Enhancement finished. Reloaded statistics."
		return m, m.checkStatusCmd

	case actionDoneMsg:
		return m, nil

	case missingLoadedMsg:
		return m.applyMissing(msg)

	case submitResultMsg:
		m.busy = false
		if msg.err != nil {
			m.dialogErr = submitErrorText(msg.err)
			return m, nil
		}
		m.dialogErr = ""
		m.notice = fmt.Sprintf("Updated %d PRs (%d failed). Reloading list…", msg.results.Updated, msg.results.Failed)
		return m, nil

	case suggestMsg:
		if msg.err != nil {
			m.dialogErr = msg.err.Error()
			return m, nil
		}
		if msg.row < len(m.records) && samePR(m.records[msg.row], msg.rec) {
			m.inputs[msg.row].SetValue(msg.actor)
		}
		return m, nil
	}

	switch m.state {
	case stateManual:
		return m.updateManual(msg)
	default:
		return m.updateNormal(msg)
	}
}

func (m Model) updateNormal(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c", "q":
		// The caller closes the controller once the program has exited;
		// closing here could block on a render waiting for this loop.
		return m, tea.Quit
	case "s":
		if m.vm.Button.Disabled {
			return m, nil
		}
		m.alert = ""
		return m, m.startCmd
	case "x":
		if !m.vm.Stop.Visible || m.vm.Stop.Disabled {
			return m, nil
		}
		m.alert = ""
		return m, m.stopCmd
	case "r":
		m.notice = ""
		return m, m.checkStatusCmd
	case "m":
		m.state = stateManual
		m.dialogErr = ""
		m.notice = ""
		m.records = nil
		m.inputs = nil
		return m, m.openManualCmd
	case "esc":
		m.alert = ""
		m.notice = ""
	}
	return m, nil
}

func (m Model) updateManual(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "esc":
		m.state = stateNormal
		m.updater.Close()
		m.records = nil
		m.inputs = nil
		return m, m.checkStatusCmd
	case "tab", "down":
		m.setFocus(m.focus + 1)
		return m, nil
	case "shift+tab", "up":
		m.setFocus(m.focus - 1)
		return m, nil
	case "ctrl+g":
		if len(m.inputs) == 0 {
			return m, nil
		}
		return m, m.suggestCmd(m.focus)
	case "enter", "ctrl+s":
		if m.busy || len(m.inputs) == 0 {
			return m, nil
		}
		actors := make([]string, len(m.inputs))
		for i, in := range m.inputs {
			actors[i] = in.Value()
		}
		if err := domain.ValidateCloseActors(actors); err != nil {
			m.dialogErr = submitErrorText(err)
			return m, nil
		}
		m.busy = true
		m.dialogErr = ""
		return m, m.submitCmd(actors)
	}
	if len(m.inputs) == 0 {
		return m, nil
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) applyMissing(msg missingLoadedMsg) (tea.Model, tea.Cmd) {
	if m.state != stateManual {
		return m, nil
	}
	if msg.err != nil {
		m.dialogErr = msg.err.Error()
		return m, nil
	}
	m.records = msg.records
	m.inputs = make([]textinput.Model, len(msg.records))
	for i := range m.inputs {
		ti := textinput.New()
		ti.Placeholder = "GitHub username or unknown"
		ti.CharLimit = 39
		m.inputs[i] = ti
	}
	m.focus = 0
	m.setFocus(0)
	return m, textinput.Blink
}

func (m *Model) setFocus(i int) {
	if len(m.inputs) == 0 {
		return
	}
	i = (i + len(m.inputs)) % len(m.inputs)
	for j := range m.inputs {
		if j == i {
			m.inputs[j].Focus()
		} else {
			m.inputs[j].Blur()
		}
	}
	m.focus = i
}

func submitErrorText(err error) string {
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		return fmt.Sprintf("Fix these usernames before submitting: %s", strings.Join(vErr.Invalid, ", "))
	}
	return err.Error()
}

// — view ————————————————————————————————————————————————————————————————————

func (m Model) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(1, 2).Render(m.spinner.View() + " Loading enhancement status…")
	}

	var b strings.Builder
	if m.alert != "" {
		b.WriteString(alertStyle.Render(errStyle.Render(m.alert)) + "\n\n")
	}
	if m.notice != "" {
		b.WriteString(okStyle.Render(m.notice) + "\n\n")
	}
	b.WriteString(render.Panel(m.vm, render.Options{
		Width:        m.width,
		SpinnerFrame: m.spinner.View(),
		Keys:         true,
	}))
	base := lipgloss.NewStyle().Padding(1, 2).Render(b.String())
	base = lipgloss.JoinVertical(lipgloss.Left, base, m.renderHelp())

	if m.state == stateManual {
		return m.renderManualOver(base)
	}
	return base
}

func (m Model) renderHelp() string {
	var text string
	switch m.state {
	case stateManual:
		text = "Tab/↑/↓ move   Ctrl+G suggest from GitHub   Enter submit   Esc close"
	default:
		text = "s start   x stop   r refresh   m manual update   Esc dismiss   q quit"
	}
	sep := dimStyle.Render(strings.Repeat("─", max(m.width, 20)))
	return sep + "\n" + helpStyle.Render(text)
}

func (m Model) renderManualOver(base string) string {
	var b strings.Builder
	b.WriteString(boldStyle.Render("Manual Close Actor Update") + "\n\n")

	switch {
	case m.records == nil && m.dialogErr == "":
		b.WriteString(m.spinner.View() + " Loading PRs without a close actor…\n")
	case len(m.records) == 0 && m.dialogErr == "":
		b.WriteString(okStyle.Render("Every PR has a close actor.") + "\n")
	default:
		for i, rec := range m.records {
			title := rec.Title
			if r := []rune(title); len(r) > 36 {
				title = string(r[:35]) + "…"
			}
			line := fmt.Sprintf("%-24s #%-6d %-7s %-37s ", truncate(rec.Repository, 24), rec.PRNumber, rec.State, title)
			if i == m.focus {
				line = boldStyle.Render(line)
			} else {
				line = dimStyle.Render(line)
			}
			b.WriteString(line + m.inputs[i].View() + "\n")
		}
	}

	if m.busy {
		b.WriteString("\n" + m.spinner.View() + " Submitting…\n")
	}
	if m.dialogErr != "" {
		b.WriteString("\n" + errStyle.Render(m.dialogErr) + "\n")
	}
	if m.notice != "" {
		b.WriteString("\n" + okStyle.Render(m.notice) + "\n")
	}

	modal := modalStyle.Render(b.String())
	if m.width == 0 || m.height == 0 {
		return base + "\n" + modal
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal,
		lipgloss.WithWhitespaceBackground(lipgloss.Color("0")),
	)
}

func samePR(a, b domain.MissingPrRecord) bool {
	return a.Repository == b.Repository && a.PRNumber == b.PRNumber
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
