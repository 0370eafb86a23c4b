// Package tui is a terminal renderer for a wikigraph session: an address bar
// for opening articles, a viewport with the current article's text and a
// list view of the session graph.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Tasour/wikipedia-graph/internal/apperr"
	"github.com/Tasour/wikipedia-graph/internal/session"
)

type focus int

const (
	focusAddressBar focus = iota
	focusViewport
)

type viewMode int

const (
	viewDocument viewMode = iota
	viewGraph
)

// pageMsg is the result of a navigation command.
type pageMsg struct {
	page *session.Page
	text string
	err  error
}

// eventMsg carries a session event into the program.
type eventMsg session.Event

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	faintStyle  = lipgloss.NewStyle().Faint(true)
	statusStyle = lipgloss.NewStyle().Padding(0, 1)
)

// Model is the bubbletea model.
type Model struct {
	ctx  context.Context
	sess *session.Session

	addressBar textinput.Model
	viewport   viewport.Model
	focus      focus
	mode       viewMode

	page     *session.Page
	text     string
	err      error
	loading  bool
	stats    session.Stats
	graph    []graphItem
	graphIdx int

	width  int
	height int
	ready  bool
}

// New creates a model over sess. A non-empty initial title is opened when
// the program starts.
func New(ctx context.Context, sess *session.Session, initial string) Model {
	ti := textinput.New()
	ti.Placeholder = "Article title"
	ti.Prompt = " "
	ti.SetValue(initial)
	ti.Focus()

	m := Model{
		ctx:        ctx,
		sess:       sess,
		addressBar: ti,
		focus:      focusAddressBar,
		stats:      sess.Stats(),
	}
	if cur, ok := sess.Current(); ok {
		if e, ok := sess.Page(cur.Title); ok {
			m.page = &session.Page{Title: e.Title, Section: cur.Section, Content: e.Content, PageID: e.PageID, URL: e.URL}
			m.text = e.Text
		}
	}
	return m
}

// Run starts the program and forwards session events to it until the user
// quits or ctx is cancelled.
func Run(ctx context.Context, sess *session.Session, initial string) error {
	p := tea.NewProgram(
		New(ctx, sess, initial),
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	sess.Subscribe(session.ObserverFunc(func(e session.Event) {
		p.Send(eventMsg(e))
	}))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink}
	if t := strings.TrimSpace(m.addressBar.Value()); t != "" {
		cmds = append(cmds, m.navigateCmd(t))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.mode == viewGraph && m.focus == focusViewport {
			return m.handleGraphKey(msg)
		}
		return m.handleKey(msg)

	case tea.MouseMsg:
		if m.ready {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerHeight := 2 // address bar + divider
		footerHeight := 1 // status bar
		viewportHeight := max(m.height-headerHeight-footerHeight, 1)
		if !m.ready {
			m.viewport = viewport.New(m.width, viewportHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = viewportHeight
		}
		m.addressBar.Width = m.width - 2
		m.refresh()
		return m, nil

	case pageMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.page = msg.page
			m.text = msg.text
			if m.page != nil {
				m.addressBar.SetValue(m.page.Title)
			}
			m.mode = viewDocument
			m.focus = focusViewport
			m.addressBar.Blur()
		}
		m.stats = m.sess.Stats()
		m.refresh()
		if m.ready {
			m.viewport.GotoTop()
		}
		return m, nil

	case eventMsg:
		m.stats = m.sess.Stats()
		if msg.Kind == session.EventGraphChanged && m.mode == viewGraph {
			m.refresh()
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyTab:
		return m.toggleFocus(), nil
	}

	if m.focus == focusAddressBar {
		switch msg.Type {
		case tea.KeyEnter:
			if t := strings.TrimSpace(m.addressBar.Value()); t != "" {
				m.loading = true
				m.err = nil
				return m, m.navigateCmd(t)
			}
			return m, nil
		case tea.KeyEscape:
			m.focus = focusViewport
			m.addressBar.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.addressBar, cmd = m.addressBar.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "/":
		m.focus = focusAddressBar
		m.addressBar.Focus()
		return m, textinput.Blink
	case "b", "left":
		m.loading = true
		return m, m.historyCmd(m.sess.Back)
	case "f", "right":
		m.loading = true
		return m, m.historyCmd(m.sess.Forward)
	case "x":
		m.loading = true
		return m, m.historyCmd(m.sess.Delete)
	case "g":
		m.mode = viewGraph
		m.graphIdx = 0
		m.refresh()
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) toggleFocus() Model {
	if m.focus == focusAddressBar {
		m.focus = focusViewport
		m.addressBar.Blur()
	} else {
		m.focus = focusAddressBar
		m.addressBar.Focus()
	}
	return m
}

func (m Model) navigateCmd(t string) tea.Cmd {
	return m.historyCmd(func(ctx context.Context) (*session.Page, error) {
		return m.sess.Navigate(ctx, t, "")
	})
}

// historyCmd runs a session operation off the update loop.
func (m Model) historyCmd(op func(context.Context) (*session.Page, error)) tea.Cmd {
	ctx, sess := m.ctx, m.sess
	return func() tea.Msg {
		p, err := op(ctx)
		if err != nil || p == nil {
			return pageMsg{page: p, err: err}
		}
		msg := pageMsg{page: p}
		if e, ok := sess.Page(p.Title); ok {
			msg.text = e.Text
		}
		return msg
	}
}

// refresh re-renders the viewport content for the current mode.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	if m.mode == viewGraph {
		snap, err := m.sess.Graph()
		if err != nil {
			m.viewport.SetContent(errorView(err))
			return
		}
		cur := ""
		if m.page != nil {
			cur = m.page.Title
		}
		m.graph = graphItems(snap, cur)
		m.graphIdx = min(m.graphIdx, max(len(m.graph)-1, 0))
		m.viewport.SetContent(renderGraphView(m.graph, m.graphIdx, m.width))
		return
	}
	m.viewport.SetContent(m.documentView())
}

func (m Model) documentView() string {
	if m.err != nil && !errors.Is(m.err, apperr.ErrNoHistory) {
		return errorView(m.err)
	}
	if m.page == nil {
		return faintStyle.Render("\n  Type an article title and press Enter.\n")
	}
	return renderPage(m.page, m.text, m.width)
}

// renderPage renders an article title and its wrapped plain text.
func renderPage(p *session.Page, text string, width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(p.Title))
	if p.Section != "" {
		b.WriteString(faintStyle.Render(" § " + p.Section))
	}
	b.WriteString("\n\n")
	body := lipgloss.NewStyle()
	if width > 4 {
		body = body.Width(width - 2)
	}
	b.WriteString(body.Render(text))
	b.WriteString("\n\n")
	b.WriteString(faintStyle.Render(p.URL))
	return b.String()
}

func errorView(err error) string {
	msg := err.Error()
	if errors.Is(err, apperr.ErrFetch) {
		msg = session.FailedPlaceholder
	}
	return errorStyle.Render(fmt.Sprintf("\n  %s\n", msg))
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder

	barStyle := lipgloss.NewStyle().
		Padding(0, 1).
		Width(m.width)
	if m.focus == focusAddressBar {
		barStyle = barStyle.Bold(true)
	}
	b.WriteString(barStyle.Render(m.addressBar.View()))
	b.WriteByte('\n')

	b.WriteString(strings.Repeat("─", m.width))
	b.WriteByte('\n')

	b.WriteString(m.viewport.View())
	b.WriteByte('\n')

	b.WriteString(m.statusBarView())

	return b.String()
}

func (m Model) statusBarView() string {
	style := statusStyle.Width(m.width)

	if m.loading {
		return style.Render("Loading...")
	}
	if m.err != nil {
		if errors.Is(m.err, apperr.ErrNoHistory) {
			return style.Foreground(lipgloss.Color("11")).Render("No history in that direction")
		}
		return style.Foreground(lipgloss.Color("9")).Render("Error: " + m.err.Error())
	}
	return style.Render(statusLine(m.page, m.stats))
}

// statusLine summarizes the current page and the graph size.
func statusLine(p *session.Page, st session.Stats) string {
	parts := make([]string, 0, 4)
	if p != nil {
		parts = append(parts, "["+string(p.State)+"]")
	}
	parts = append(parts,
		fmt.Sprintf("%d nodes", st.Nodes),
		fmt.Sprintf("%d links", st.Edges),
		"[b]ack [f]orward [x] delete [g]raph [/] open [q]uit",
	)
	return strings.Join(parts, "  ")
}
