// Command kerneltui is a minimal lifecycle visualizer: it connects to a
// running kernelsrv's /executions/:id/events websocket and renders each
// node's state as events arrive. It is a pure observer — consuming
// state:changed and node:* events, as spec.md §9 describes for an
// "external collaborator" that is "not load-bearing for execution."
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
)

var (
	styleRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	stylePending = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleTitle   = lipgloss.NewStyle().Bold(true)
)

type nodeState struct {
	id     string
	status string
}

type eventMsg struct {
	Type  string         `json:"type"`
	Event rawEvent       `json:"event"`
}

type rawEvent struct {
	Type        string         `json:"type"`
	NodeID      string         `json:"nodeId"`
	ExecutionID string         `json:"executionId"`
	Payload     map[string]any `json:"payload"`
}

type connClosedMsg struct{ err error }

type model struct {
	conn    *websocket.Conn
	nodes   map[string]*nodeState
	order   []string
	spinner spinner.Model
	err     error
	done    bool
}

func initialModel(conn *websocket.Conn) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return model{conn: conn, nodes: make(map[string]*nodeState), spinner: s}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, readNext(m.conn))
}

func readNext(conn *websocket.Conn) tea.Cmd {
	return func() tea.Msg {
		var msg eventMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return connClosedMsg{err: err}
		}
		return msg
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case eventMsg:
		m.applyEvent(msg.Event)
		return m, readNext(m.conn)
	case connClosedMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *model) applyEvent(e rawEvent) {
	if e.NodeID == "" {
		return
	}
	n, ok := m.nodes[e.NodeID]
	if !ok {
		n = &nodeState{id: e.NodeID}
		m.nodes[e.NodeID] = n
		m.order = append(m.order, e.NodeID)
		sort.Strings(m.order)
	}
	switch e.Type {
	case "node:start":
		n.status = "running"
	case "node:complete":
		n.status = "complete"
	case "node:error":
		n.status = "failed"
	case "node:update":
		if status, ok := e.Payload["status"].(string); ok {
			n.status = status
		}
	}
}

func (m model) View() string {
	var out string
	out += styleTitle.Render("kernel execution") + "\n\n"
	for _, id := range m.order {
		n := m.nodes[id]
		out += fmt.Sprintf("%s %s\n", m.spinner.View(), statusStyle(n.status).Render(id+" ["+n.status+"]"))
	}
	if m.done {
		out += "\n(connection closed)\n"
	}
	return out
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "running":
		return styleRunning
	case "complete":
		return styleDone
	case "failed":
		return styleFailed
	default:
		return stylePending
	}
}

func main() {
	addr := flag.String("addr", "ws://localhost:8080", "kernelsrv base address")
	executionID := flag.String("execution", "", "execution id to watch")
	flag.Parse()

	if *executionID == "" {
		fmt.Fprintln(os.Stderr, "usage: kerneltui -execution <id> [-addr ws://host:port]")
		os.Exit(1)
	}

	url := *addr + "/executions/" + *executionID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		os.Exit(1)
	}
	defer func() { _ = conn.Close() }()

	if _, err := tea.NewProgram(initialModel(conn)).Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
