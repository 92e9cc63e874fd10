// Package tui provides the interactive terminal interface: a tree of
// lists and tasks with optimistic completion and bounded undo.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rtmilk/internal/model"
	"rtmilk/internal/undo"
	"rtmilk/rtm"
)

// API is the slice of the service client the interface needs.
type API interface {
	Lists(ctx context.Context) ([]rtm.List, error)
	Tasks(ctx context.Context, listID, filter string) ([]rtm.Task, error)
	AddTask(ctx context.Context, listID, text string) (*rtm.Task, *rtm.Transaction, error)
	CompleteTask(ctx context.Context, ref rtm.TaskRef) (*rtm.Transaction, error)
	UncompleteTask(ctx context.Context, ref rtm.TaskRef) (*rtm.Transaction, error)
	UndoTransaction(ctx context.Context, transactionID string) error
}

// Mode indicates the current input mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeAdd
	ModeFilter
	ModeHelp
)

// Model represents the TUI state
type Model struct {
	api API
	ctx context.Context

	tree *model.Tree
	undo *undo.Stack

	filter string

	// Mode and input
	mode      Mode
	textInput textinput.Model

	// Transient status bar message; cleared on the next key press.
	notice      string
	noticeIsErr bool

	// UI dimensions
	width  int
	height int

	// Styles
	selectedStyle  lipgloss.Style
	completedStyle lipgloss.Style
	listStyle      lipgloss.Style
	pendingStyle   lipgloss.Style
	helpStyle      lipgloss.Style
	dialogStyle    lipgloss.Style
	statusBarStyle lipgloss.Style
	errorStyle     lipgloss.Style
}

// Message types
type listsLoadedMsg struct {
	lists []rtm.List
}

type tasksLoadedMsg struct {
	listID string
	tasks  []rtm.Task
}

type taskAddedMsg struct {
	task *rtm.Task
}

type completeDoneMsg struct {
	ref   rtm.TaskRef
	seq   uint64
	prior bool
	txn   *rtm.Transaction
	err   error
}

type errMsg struct {
	err error
}

// FilterChangedMsg swaps the active search filter from outside the
// program, e.g. when the config file changes on disk. Loaded lists are
// refetched under the new filter.
type FilterChangedMsg struct {
	Filter string
}

// New creates a new TUI model. undoCapacity bounds the undo history;
// filter scopes every task fetch.
func New(api API, filter string, undoCapacity int) *Model {
	ti := textinput.New()
	ti.Placeholder = "Enter text..."
	ti.CharLimit = 256

	return &Model{
		api:       api,
		ctx:       context.Background(),
		tree:      model.New(),
		undo:      undo.NewStack(undoCapacity),
		filter:    filter,
		textInput: ti,
		mode:      ModeNormal,
		selectedStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		completedStyle: lipgloss.NewStyle().
			Strikethrough(true).
			Foreground(lipgloss.Color("240")),
		listStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")),
		pendingStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("178")),
		helpStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		dialogStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
		statusBarStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
		errorStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("52")).
			Foreground(lipgloss.Color("231")).
			Padding(0, 1),
	}
}

// Init initializes the TUI
func (m *Model) Init() tea.Cmd {
	return m.loadLists()
}

func (m *Model) loadLists() tea.Cmd {
	return func() tea.Msg {
		lists, err := m.api.Lists(m.ctx)
		if err != nil {
			return errMsg{err}
		}
		return listsLoadedMsg{lists}
	}
}

func (m *Model) loadTasks(listID string) tea.Cmd {
	filter := m.filter
	return func() tea.Msg {
		tasks, err := m.api.Tasks(m.ctx, listID, filter)
		if err != nil {
			return errMsg{err}
		}
		return tasksLoadedMsg{listID: listID, tasks: tasks}
	}
}

func (m *Model) addTask(listID, text string) tea.Cmd {
	return func() tea.Msg {
		task, _, err := m.api.AddTask(m.ctx, listID, text)
		if err != nil {
			return errMsg{err}
		}
		return taskAddedMsg{task}
	}
}

// toggleComplete flips the selected task optimistically and issues the
// matching service call. The flip is visible before the call returns.
func (m *Model) toggleComplete(ref rtm.TaskRef) tea.Cmd {
	prior, seq, ok := m.tree.ApplyLocalComplete(ref)
	if !ok {
		return nil
	}
	return func() tea.Msg {
		var txn *rtm.Transaction
		var err error
		if prior {
			txn, err = m.api.UncompleteTask(m.ctx, ref)
		} else {
			txn, err = m.api.CompleteTask(m.ctx, ref)
		}
		return completeDoneMsg{ref: ref, seq: seq, prior: prior, txn: txn, err: err}
	}
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case listsLoadedMsg:
		m.tree.SetLists(msg.lists)
		return m, nil

	case tasksLoadedMsg:
		invalidated := m.tree.Reconcile(msg.listID, msg.tasks)
		dropped := 0
		for _, ref := range invalidated {
			dropped += m.undo.Invalidate(ref)
		}
		if dropped > 0 {
			m.setNotice(fmt.Sprintf("%d undo entries dropped: changed on the server", dropped), true)
		}
		return m, nil

	case FilterChangedMsg:
		if msg.Filter == m.filter {
			return m, nil
		}
		m.filter = msg.Filter
		m.setNotice("filter updated from config", false)
		return m, tea.Batch(m.refreshCmds()...)

	case taskAddedMsg:
		m.tree.AdoptTask(*msg.task)
		m.setNotice(fmt.Sprintf("added %q", msg.task.Name), false)
		return m, nil

	case completeDoneMsg:
		if msg.err != nil {
			// Roll the optimistic flip back; the server never saw it.
			m.tree.ResolveComplete(msg.ref, msg.seq, false)
			m.reportError(msg.err)
			return m, nil
		}
		if !m.tree.ResolveComplete(msg.ref, msg.seq, true) {
			// Superseded by a newer local edit on the same task.
			return m, nil
		}
		if msg.txn != nil && msg.txn.Undoable {
			m.undo.Push(undo.Entry{
				Ref:            msg.ref,
				PriorCompleted: msg.prior,
				TransactionID:  msg.txn.ID,
			})
		}
		return m, nil

	case errMsg:
		m.reportError(msg.err)
		return m, nil

	case tea.KeyMsg:
		m.notice = ""
		switch m.mode {
		case ModeAdd:
			return m.handleAddMode(msg)
		case ModeFilter:
			return m.handleFilterMode(msg)
		case ModeHelp:
			return m.handleHelpMode(msg)
		}

		// Normal mode key handling
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "up", "k":
			m.tree.MoveUp()
			return m, nil

		case "down", "j":
			m.tree.MoveDown()
			return m, nil

		case "enter", " ":
			ln := m.tree.ToggleSelected()
			if ln != nil && ln.Expanded && !ln.Loaded && !ln.Loading {
				ln.Loading = true
				return m, m.loadTasks(ln.List.ID)
			}
			return m, nil

		case "c":
			if row, ok := m.tree.Selected(); ok && row.Kind == model.RowTask {
				return m, m.toggleComplete(row.Task.Task.Ref())
			}
			return m, nil

		case "u":
			return m.handleUndo()

		case "a":
			if row, ok := m.tree.Selected(); ok {
				m.mode = ModeAdd
				m.textInput.Reset()
				m.textInput.Placeholder = "New task in " + row.List.List.Name + "..."
				m.textInput.Focus()
				return m, textinput.Blink
			}
			return m, nil

		case "r":
			return m, tea.Batch(m.refreshCmds()...)

		case "/", "g":
			m.mode = ModeFilter
			m.textInput.Reset()
			m.textInput.SetValue(m.filter)
			m.textInput.Focus()
			return m, textinput.Blink

		case "?":
			m.mode = ModeHelp
			return m, nil
		}
	}

	if m.mode == ModeAdd || m.mode == ModeFilter {
		m.textInput, cmd = m.textInput.Update(msg)
	}

	return m, cmd
}

// handleUndo reverses the most recent completion synchronously, the
// same way deletes confirm synchronously: the user asked for a
// rollback and should see its outcome before anything else moves.
func (m *Model) handleUndo() (tea.Model, tea.Cmd) {
	entry, err := m.undo.PopAndUndo(m.ctx, m.api, m.tree)
	switch {
	case errors.Is(err, undo.ErrEmpty):
		m.setNotice("nothing to undo", false)
	case errors.Is(err, undo.ErrModelInconsistency):
		m.setNotice("undo skipped: task changed on the server", true)
	case err != nil:
		m.reportError(err)
	default:
		m.setNotice(fmt.Sprintf("undid completion of task %s", entry.Ref.TaskID), false)
	}
	return m, nil
}

// refreshCmds reloads the list metadata and every loaded list's tasks.
func (m *Model) refreshCmds() []tea.Cmd {
	cmds := []tea.Cmd{m.loadLists()}
	for _, ln := range m.tree.Lists() {
		if ln.Loaded {
			cmds = append(cmds, m.loadTasks(ln.List.ID))
		}
	}
	return cmds
}

func (m *Model) handleAddMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		value := m.textInput.Value()
		m.mode = ModeNormal
		if value == "" {
			return m, nil
		}
		if row, ok := m.tree.Selected(); ok {
			return m, m.addTask(row.List.List.ID, value)
		}
		return m, nil

	case tea.KeyEsc:
		m.mode = ModeNormal
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) handleFilterMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		m.filter = m.textInput.Value()
		m.mode = ModeNormal
		// Loaded lists are refetched under the new filter.
		return m, tea.Batch(m.refreshCmds()...)

	case tea.KeyEsc:
		m.mode = ModeNormal
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) handleHelpMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyEnter:
		m.mode = ModeNormal
		return m, nil
	}
	if msg.String() == "q" {
		m.mode = ModeNormal
	}
	return m, nil
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice = text
	m.noticeIsErr = isErr
}

// reportError turns an error into a status bar notice. Errors never
// kill the session; the worst outcome of a failed call is a rolled-back
// edit and this message.
func (m *Model) reportError(err error) {
	switch {
	case rtm.IsAuthExpired(err):
		m.setNotice("session expired: run 'rtmilk auth' and restart", true)
	default:
		var te *rtm.TransportError
		if errors.As(err, &te) {
			m.setNotice(fmt.Sprintf("offline? %s failed after %d attempts", te.Op, te.Attempts), true)
			return
		}
		m.setNotice(err.Error(), true)
	}
}

// View renders the TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		m.width = 80
		m.height = 24
	}

	switch m.mode {
	case ModeAdd:
		return m.renderInputDialog("Add Task", "Enter: add  Esc: cancel")
	case ModeFilter:
		return m.renderInputDialog("Search Filter", "Enter: apply  Esc: keep current")
	case ModeHelp:
		return m.renderHelpDialog()
	}

	var b strings.Builder
	b.WriteString(m.renderTree())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m *Model) renderTree() string {
	rows := m.tree.VisibleRows()
	if len(rows) == 0 {
		return "No lists"
	}

	var b strings.Builder
	for i, row := range rows {
		cursor := " "
		if i == m.tree.Cursor() {
			cursor = ">"
		}

		switch row.Kind {
		case model.RowList:
			marker := "▸"
			if row.List.Expanded {
				marker = "▾"
			}
			name := m.listStyle.Render(row.List.List.Name)
			if i == m.tree.Cursor() {
				name = m.selectedStyle.Render(row.List.List.Name)
			}
			count := ""
			if row.List.Loaded {
				count = fmt.Sprintf(" (%d)", len(row.List.Tasks))
			} else if row.List.Loading {
				count = " …"
			}
			b.WriteString(cursor + " " + marker + " " + name + count + "\n")

		case model.RowTask:
			b.WriteString(cursor + "   " + m.renderTaskRow(row.Task, i == m.tree.Cursor()) + "\n")
		}
	}
	return b.String()
}

func (m *Model) renderTaskRow(tn *model.TaskNode, selected bool) string {
	task := tn.Task

	status := "[ ]"
	if task.IsComplete() {
		status = "[✓]"
	}

	name := task.Name
	switch {
	case task.IsComplete():
		name = m.completedStyle.Render(name)
	case selected:
		name = m.selectedStyle.Render(name)
	}

	var extras []string
	if tn.Pending() {
		extras = append(extras, m.pendingStyle.Render("~"))
	}
	if task.Due != nil {
		if task.HasDueTime {
			extras = append(extras, task.Due.Format("Jan 2 15:04"))
		} else {
			extras = append(extras, task.Due.Format("Jan 2"))
		}
	}
	if task.Priority != "" && task.Priority != "N" {
		extras = append(extras, "!"+task.Priority)
	}
	for _, tag := range task.Tags {
		extras = append(extras, "#"+tag)
	}

	line := status + " " + name
	if len(extras) > 0 {
		line += "  " + m.helpStyle.Render(strings.Join(extras, " "))
	}
	return line
}

func (m *Model) renderStatusBar() string {
	if m.notice != "" {
		style := m.statusBarStyle
		if m.noticeIsErr {
			style = m.errorStyle
		}
		return style.Width(m.width).Render(m.notice)
	}

	left := ""
	if row, ok := m.tree.Selected(); ok {
		left = row.List.List.Name
	}
	if n := m.undo.Len(); n > 0 {
		left += fmt.Sprintf("  undo:%d", n)
	}

	right := "c:done  u:undo  a:add  r:refresh  ?:help  q:quit"
	if m.filter != "" {
		right = "filter: " + m.filter + "  " + right
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return m.statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", padding) + right)
}

func (m *Model) renderInputDialog(title, hint string) string {
	dialog := m.dialogStyle.Render(
		title + "\n\n" +
			m.textInput.View() + "\n\n" +
			m.helpStyle.Render(hint),
	)
	return m.centerDialog(dialog)
}

func (m *Model) renderHelpDialog() string {
	help := `Help - Key Bindings

Navigation:
  j/↓        Move down
  k/↑        Move up
  Enter/Space  Expand or collapse a list

Actions:
  c      Toggle task completion
  u      Undo last completion
  a      Add task to the selected list
  r      Refresh from the server
  / g    Change the search filter

General:
  ?      Show this help
  q      Quit

Press any key to close`

	dialog := m.dialogStyle.Render(help)
	return m.centerDialog(dialog)
}

func (m *Model) centerDialog(dialog string) string {
	// Styled lines carry escape sequences and multi-byte runes, so the
	// visible width has to come from lipgloss, not len.
	lines := strings.Split(dialog, "\n")
	dialogHeight := lipgloss.Height(dialog)
	dialogWidth := lipgloss.Width(dialog)

	topPad := (m.height - dialogHeight) / 2
	leftPad := (m.width - dialogWidth) / 2
	if topPad < 0 {
		topPad = 0
	}
	if leftPad < 0 {
		leftPad = 0
	}

	var b strings.Builder
	for i := 0; i < topPad; i++ {
		b.WriteString("\n")
	}
	for _, line := range lines {
		b.WriteString(strings.Repeat(" ", leftPad))
		b.WriteString(line)
		b.WriteString("\n")
	}

	return b.String()
}

// NewProgram wraps the model in a bubbletea program using the alternate
// screen. The returned program accepts FilterChangedMsg via Send.
func NewProgram(api API, filter string, undoCapacity int) *tea.Program {
	return tea.NewProgram(New(api, filter, undoCapacity), tea.WithAltScreen())
}

// Run starts the interactive session and blocks until it ends.
func Run(api API, filter string, undoCapacity int) error {
	_, err := NewProgram(api, filter, undoCapacity).Run()
	return err
}
