package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Tasour/wikipedia-graph/internal/graph"
)

// graphItem is a node flattened for the list view.
type graphItem struct {
	title   string
	out     int
	in      int
	current bool
}

// graphItems lists the snapshot's nodes in insertion order with their link
// counts. cur marks the page being displayed.
func graphItems(snap graph.Snapshot, cur string) []graphItem {
	out := make(map[string]int, len(snap.Nodes))
	in := make(map[string]int, len(snap.Nodes))
	for _, e := range snap.Edges {
		out[e.Source.ID]++
		in[e.Target.ID]++
	}
	items := make([]graphItem, len(snap.Nodes))
	for i, n := range snap.Nodes {
		items[i] = graphItem{title: n.ID, out: out[n.ID], in: in[n.ID], current: n.ID == cur}
	}
	return items
}

func renderGraphView(items []graphItem, selectedIdx, width int) string {
	if len(items) == 0 {
		return "\n  No articles visited yet.\n"
	}

	var b strings.Builder
	b.WriteString("\n  Session Graph\n\n")

	for i, item := range items {
		cursor := "  "
		if i == selectedIdx {
			cursor = "> "
		}
		icon := "○"
		if item.current {
			icon = "●"
		}
		line := fmt.Sprintf("%s%s %s  (→%d ←%d)", cursor, icon, item.title, item.out, item.in)

		if r := []rune(line); width > 5 && len(r) > width-2 {
			line = string(r[:width-5]) + "..."
		}

		b.WriteString(line)
		b.WriteByte('\n')
	}

	b.WriteString("\n  [Enter] open  [g] back to article  [q] quit\n")
	return b.String()
}

// handleGraphKey processes key events when the graph view is active.
func (m Model) handleGraphKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "g", "esc":
		m.mode = viewDocument
		m.refresh()
		return m, nil
	case "j", "down":
		if m.graphIdx < len(m.graph)-1 {
			m.graphIdx++
			m.refresh()
		}
		return m, nil
	case "k", "up":
		if m.graphIdx > 0 {
			m.graphIdx--
			m.refresh()
		}
		return m, nil
	case "enter":
		if m.graphIdx >= 0 && m.graphIdx < len(m.graph) {
			m.loading = true
			return m, m.navigateCmd(m.graph[m.graphIdx].title)
		}
		return m, nil
	}
	return m, nil
}
