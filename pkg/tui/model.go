// Package tui is a terminal front end for a conversation tree: an outline of
// the tree next to the selected answer, with a prompt for branching new
// questions off completed answers.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"go.uber.org/zap"

	"github.com/papercomputeco/branches/pkg/convo"
	"github.com/papercomputeco/branches/pkg/prompt"
	"github.com/papercomputeco/branches/pkg/session"
)

// graphEventMsg carries a graph change into the program.
type graphEventMsg convo.Event

// askResultMsg is the outcome of a prompt opened with "a".
type askResultMsg struct {
	node convo.Node
	err  error
}

// row is one line of the tree outline.
type row struct {
	id    string
	depth int
}

// Model is the bubbletea model.
type Model struct {
	ctx     context.Context
	session *session.Session
	events  <-chan convo.Event
	logger  *zap.Logger

	style    string
	renderer *glamour.TermRenderer

	rows   []row
	cursor int

	viewport viewport.Model
	input    textinput.Model
	request  *prompt.Request

	width  int
	height int
	status string
}

// Option configures a Model.
type Option func(*Model)

// WithStyle forces a glamour style instead of picking one from the terminal
// background.
func WithStyle(style string) Option {
	return func(m *Model) { m.style = style }
}

// New creates a model for sess. It subscribes to graph events until ctx is
// done.
func New(ctx context.Context, sess *session.Session, logger *zap.Logger, opts ...Option) Model {
	events, cancel := sess.Graph().Subscribe(256)
	go func() {
		<-ctx.Done()
		cancel()
	}()

	input := textinput.New()
	input.Placeholder = "Ask a follow-up question"
	input.Prompt = "? "
	input.CharLimit = 2000

	m := Model{
		ctx:     ctx,
		session: sess,
		events:  events,
		logger:  logger,
		input:   input,
		status:  "a: ask  ↑/↓: select  pgup/pgdown: scroll  q: quit",
	}
	for _, opt := range opts {
		opt(&m)
	}
	if m.style == "" {
		m.style = "dark"
		if !termenv.HasDarkBackground() {
			m.style = "light"
		}
	}

	m.refreshRows()
	return m
}

// Run starts the program on the alternate screen and blocks until the user
// quits or ctx is done.
func Run(ctx context.Context, sess *session.Session, logger *zap.Logger, opts ...Option) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(New(ctx, sess, logger, opts...),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func waitForEvent(events <-chan convo.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return graphEventMsg(ev)
	}
}

func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.refreshViewport()
		return m, nil

	case graphEventMsg:
		if msg.Type == convo.EventNodeAdded || msg.Type == convo.EventReconciled {
			m.refreshRows()
		}
		if msg.NodeID == "" || msg.NodeID == m.selectedID() {
			m.refreshViewport()
		}
		return m, waitForEvent(m.events)

	case askResultMsg:
		m.request = nil
		switch {
		case msg.err == nil:
			m.refreshRows()
			m.selectID(msg.node.ID)
			m.refreshViewport()
			m.status = "asked " + msg.node.ID
		case errors.Is(msg.err, prompt.ErrCanceled):
			m.status = "canceled"
		default:
			m.logger.Warn("ask failed", zap.Error(msg.err))
			m.status = errorStyle.Render(msg.err.Error())
		}
		return m, nil

	case tea.KeyMsg:
		if m.request != nil {
			return m.handleInputKey(msg)
		}
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			m.refreshViewport()
		}
		return m, nil

	case "down", "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
			m.refreshViewport()
		}
		return m, nil

	case "a":
		node, err := m.session.Graph().Get(m.selectedID())
		if err != nil {
			return m, nil
		}
		if !node.Completed() {
			m.status = "wait for the answer to finish before branching"
			return m, nil
		}

		req := prompt.New(node.ID)
		m.request = req
		m.input.Reset()
		m.input.Focus()
		m.status = "enter: ask  esc: cancel"
		m.resize()

		ctx, sess := m.ctx, m.session
		return m, func() tea.Msg {
			node, _, err := sess.AskFrom(ctx, req)
			return askResultMsg{node: node, err: err}
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.request.Cancel()
		return m, tea.Quit

	case tea.KeyEsc:
		m.request.Cancel()
		m.input.Blur()
		m.resize()
		return m, nil

	case tea.KeyEnter:
		question := m.input.Value()
		if question == "" {
			return m, nil
		}
		m.request.Submit(question)
		m.input.Blur()
		m.input.Reset()
		m.resize()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// refreshRows rebuilds the outline from the root, depth first, children in
// creation order.
func (m *Model) refreshRows() {
	selected := m.selectedID()
	graph := m.session.Graph()

	m.rows = nil
	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		m.rows = append(m.rows, row{id: id, depth: depth})
		for _, child := range graph.Children(id) {
			walk(child, depth+1)
		}
	}
	walk(convo.RootID, 0)

	m.selectID(selected)
}

func (m *Model) selectID(id string) {
	for i, r := range m.rows {
		if r.id == id {
			m.cursor = i
			return
		}
	}
	m.cursor = min(m.cursor, max(0, len(m.rows)-1))
}

func (m Model) selectedID() string {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return convo.RootID
	}
	return m.rows[m.cursor].id
}

// Selected returns the id of the highlighted node.
func (m Model) Selected() string {
	return m.selectedID()
}

func (m Model) treeWidth() int {
	return max(24, m.width/3)
}

func (m *Model) resize() {
	if m.width == 0 || m.height == 0 {
		return
	}

	height := m.height - 4
	if m.request != nil {
		height -= 3
	}
	width := max(20, m.width-m.treeWidth()-4)

	if m.viewport.Width == 0 {
		m.viewport = viewport.New(width, max(3, height))
	} else {
		m.viewport.Width = width
		m.viewport.Height = max(3, height)
	}
	m.input.Width = max(10, m.width-8)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.style),
		glamour.WithWordWrap(width-2),
	)
	if err != nil {
		m.logger.Warn("failed to create markdown renderer", zap.Error(err))
		return
	}
	m.renderer = renderer
}

// refreshViewport shows the selected node's question and answer.
func (m *Model) refreshViewport() {
	if m.viewport.Width == 0 {
		return
	}

	node, err := m.session.Graph().Get(m.selectedID())
	if err != nil {
		m.viewport.SetContent("")
		return
	}

	m.viewport.SetContent(m.renderNode(node))
	if node.Status == convo.StatusStreaming {
		m.viewport.GotoBottom()
	}
}

func (m Model) renderNode(node convo.Node) string {
	var md strings.Builder
	if node.Data.Title != "" {
		fmt.Fprintf(&md, "# %s\n\n", node.Data.Title)
	}
	if node.Data.Question != "" {
		fmt.Fprintf(&md, "> %s\n\n", node.Data.Question)
	}
	md.WriteString(node.Data.Content)
	switch node.Status {
	case convo.StatusPending:
		md.WriteString("\n\n*waiting…*")
	case convo.StatusStreaming:
		md.WriteString(" ▍")
	case convo.StatusFailed:
		fmt.Fprintf(&md, "\n\n**failed:** %s", node.Error)
	}

	if m.renderer == nil {
		return md.String()
	}
	out, err := m.renderer.Render(md.String())
	if err != nil {
		return md.String()
	}
	return out
}

func (m Model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return "Loading conversation tree..."
	}

	header := titleStyle.Render("branches") + helpStyle.Render("  "+m.session.ProviderName())

	tree := paneStyle.Width(m.treeWidth()).Height(m.viewport.Height).Render(m.renderTree())
	answer := paneStyle.Render(m.viewport.View())
	body := lipgloss.JoinHorizontal(lipgloss.Top, tree, answer)

	parts := []string{header, body}
	if m.request != nil {
		parts = append(parts, inputStyle.Render(m.input.View()))
	}
	parts = append(parts, helpStyle.Render(m.status))

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderTree() string {
	graph := m.session.Graph()
	width := m.treeWidth() - 2

	lines := make([]string, 0, len(m.rows))
	for i, r := range m.rows {
		node, err := graph.Get(r.id)
		if err != nil {
			continue
		}

		label := node.Data.Question
		if label == "" {
			label = node.Data.Title
		}
		if label == "" {
			label = node.ID
		}

		line := strings.Repeat("  ", r.depth) + statusMarks[node.Status] + " " + label
		line = ansi.Truncate(line, width, "…")

		if i == m.cursor {
			line = selectedStyle.Render(line)
		}
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}
