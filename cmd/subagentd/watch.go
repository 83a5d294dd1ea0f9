package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/relayforge/subagentd/internal/codexwire"
	"github.com/relayforge/subagentd/internal/subagent"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Interactive dashboard for manually exercising the job manager",
	Long: `Launches a standalone subagent.Manager and a live terminal dashboard for
spawning jobs by hand, watching their status, and tailing their event
stream. This is a developer/operator tool, not part of the stdio tool
surface served by "subagentd serve".`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return fmt.Errorf("watch requires an interactive terminal")
	}
	p := tea.NewProgram(newWatchModel(), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

var (
	watchColorBase    = lipgloss.Color("#1e1e2e")
	watchColorText    = lipgloss.Color("#cdd6f4")
	watchColorSubtext = lipgloss.Color("#a6adc8")
	watchColorMauve   = lipgloss.Color("#cba6f7")
	watchColorGreen   = lipgloss.Color("#a6e3a1")
	watchColorYellow  = lipgloss.Color("#f9e2af")
	watchColorRed     = lipgloss.Color("#f38ba8")
	watchColorBlue    = lipgloss.Color("#89b4fa")

	watchHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(watchColorBase).Background(watchColorBlue).Padding(0, 2)
	watchHelpStyle   = lipgloss.NewStyle().Foreground(watchColorSubtext)
	watchSelStyle    = lipgloss.NewStyle().Foreground(watchColorBase).Background(watchColorMauve).Bold(true)
)

// jobRow is the dashboard's flattened view of one job, refreshed on every
// tick from the manager.
type jobRow struct {
	id        string
	status    subagent.JobStatus
	startedAt time.Time
	label     string
}

type tickMsg time.Time

type watchModel struct {
	manager *subagent.Manager

	jobs     []jobRow
	selected int

	input    textinput.Model
	spawning bool

	tail      []codexwire.NormalizedEvent
	tailErr   error
	width     int
	height    int
	statusMsg string
}

func newWatchModel() watchModel {
	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = "prompt for a new codex subagent job"
	input.PromptStyle = lipgloss.NewStyle().Foreground(watchColorMauve)
	input.TextStyle = lipgloss.NewStyle().Foreground(watchColorText)
	return watchModel{
		manager: subagent.NewManager(),
		input:   input,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tickMsg:
		m.refreshJobs()
		m.refreshTail()
		return m, tickCmd()

	case tea.KeyMsg:
		if m.spawning {
			return m.updateSpawning(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "n":
			m.spawning = true
			m.input.SetValue("")
			m.input.Focus()
			return m, nil
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
			m.refreshTail()
		case "down", "j":
			if m.selected < len(m.jobs)-1 {
				m.selected++
			}
			m.refreshTail()
		case "c":
			if row, ok := m.selectedJob(); ok {
				m.manager.Cancel(row.id, false)
				m.statusMsg = "canceled " + row.id
			}
		case "x":
			if row, ok := m.selectedJob(); ok {
				m.manager.Cancel(row.id, true)
				m.statusMsg = "force-canceled " + row.id
			}
		}
	}
	return m, nil
}

func (m *watchModel) updateSpawning(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.spawning = false
		return *m, nil
	case "enter":
		prompt := strings.TrimSpace(m.input.Value())
		m.spawning = false
		if prompt == "" {
			return *m, nil
		}
		out, err := m.manager.Spawn(context.Background(), subagent.SpawnRequest{Prompt: prompt})
		if err != nil {
			m.statusMsg = "spawn failed: " + err.Error()
			return *m, nil
		}
		m.statusMsg = "spawned " + out.JobID
		m.refreshJobs()
		return *m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return *m, cmd
}

func (m *watchModel) selectedJob() (jobRow, bool) {
	if m.selected < 0 || m.selected >= len(m.jobs) {
		return jobRow{}, false
	}
	return m.jobs[m.selected], true
}

func (m *watchModel) refreshJobs() {
	ids := m.manager.JobIDs()
	rows := make([]jobRow, 0, len(ids))
	for _, id := range ids {
		snap, err := m.manager.Status(id)
		if err != nil {
			continue
		}
		label := ""
		if meta, err := m.manager.GetSpawnMetadata(id); err == nil {
			label = meta.Label
		}
		rows = append(rows, jobRow{id: id, status: snap.Status, startedAt: snap.StartedAt, label: label})
	}
	m.jobs = rows
	if m.selected >= len(rows) {
		m.selected = len(rows) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func (m *watchModel) refreshTail() {
	row, ok := m.selectedJob()
	if !ok {
		m.tail = nil
		return
	}
	tail, err := m.manager.GetEventTail(row.id, 20, nil)
	m.tail = tail
	m.tailErr = err
}

func (m watchModel) View() string {
	width := m.width
	if width < 40 {
		width = 80
	}

	header := watchHeaderStyle.Width(width).Render(fmt.Sprintf("subagentd watch — %d job(s)", len(m.jobs)))

	var jobLines []string
	for i, row := range m.jobs {
		statusText := lipgloss.NewStyle().Foreground(statusColor(row.status)).Render(fmt.Sprintf("%-10s", row.status))
		line := fmt.Sprintf("%-8s %s %s", shortID(row.id), statusText, row.startedAt.Format("15:04:05"))
		if row.label != "" {
			line += "  " + row.label
		}
		if i == m.selected {
			line = watchSelStyle.Render(line)
		}
		jobLines = append(jobLines, line)
	}
	if len(jobLines) == 0 {
		jobLines = append(jobLines, watchHelpStyle.Render("no jobs yet — press 'n' to spawn one"))
	}

	var tailLines []string
	if m.tailErr != nil {
		tailLines = append(tailLines, watchHelpStyle.Render(m.tailErr.Error()))
	}
	for _, ev := range m.tail {
		tailLines = append(tailLines, fmt.Sprintf("[%s] %s", ev.Type, summarizeEventLine(ev)))
	}

	var body string
	if m.spawning {
		input := m.input
		input.Width = width - 4
		body = "New job prompt:\n" + input.View()
	} else {
		body = lipgloss.JoinVertical(lipgloss.Left,
			strings.Join(jobLines, "\n"),
			"",
			watchHelpStyle.Render("events:"),
			strings.Join(tailLines, "\n"),
		)
	}

	help := watchHelpStyle.Render("n: spawn  c: cancel  x: force-cancel  ↑/↓: select  q: quit")
	if m.statusMsg != "" {
		help = watchHelpStyle.Render(m.statusMsg) + "  " + help
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, "", body, "", help)
}

func summarizeEventLine(ev codexwire.NormalizedEvent) string {
	if s, ok := ev.Content.(string); ok {
		return s
	}
	if m, ok := ev.Content.(map[string]any); ok {
		if text, ok := m["text"].(string); ok && text != "" {
			return text
		}
		if kind, ok := m["kind"].(string); ok && kind != "" {
			return kind
		}
	}
	return fmt.Sprintf("%v", ev.Content)
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func statusColor(status subagent.JobStatus) lipgloss.Color {
	switch status {
	case subagent.StatusRunning:
		return watchColorYellow
	case subagent.StatusDone:
		return watchColorGreen
	case subagent.StatusFailed, subagent.StatusCanceled:
		return watchColorRed
	default:
		return watchColorText
	}
}
