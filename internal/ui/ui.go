package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/stemx/internal/progress"
)

const (
	defaultInterval = 500 * time.Millisecond
	barWidth        = 24
)

// ProgressSource supplies session snapshots for the monitor. The
// progress store satisfies it.
type ProgressSource interface {
	Snapshot() map[string]progress.Record
}

// tickMsg triggers a snapshot refresh.
type tickMsg time.Time

// sessionRow pairs a session ID with its latest record for rendering.
type sessionRow struct {
	id     string
	record progress.Record
}

// Model represents the monitor state.
type Model struct {
	source   ProgressSource
	interval time.Duration

	// quitWhenDone exits automatically once every observed session is
	// done; the batch command uses it so the TUI ends with the run.
	quitWhenDone bool

	rows   []sessionRow
	seen   bool // at least one session has appeared
	width  int
	height int
	help   help.Model
	keys   keyMap
}

// NewModel creates a monitor polling source on the given interval.
// A non-positive interval falls back to the default.
func NewModel(source ProgressSource, interval time.Duration, quitWhenDone bool) *Model {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Model{
		source:       source,
		interval:     interval,
		quitWhenDone: quitWhenDone,
		help:         help.New(),
		keys:         newKeyMap(),
	}
}

// Init schedules the first refresh.
func (m *Model) Init() tea.Cmd {
	m.refresh()
	return m.tick()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.refresh()
			return m, nil
		}

	case tickMsg:
		m.refresh()
		if m.quitWhenDone && m.seen && m.allDone() {
			return m, tea.Quit
		}
		return m, m.tick()
	}

	return m, nil
}

// View renders one row per session plus the help footer.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Stem Processing"))
	b.WriteString("\n\n")

	if len(m.rows) == 0 {
		b.WriteString(styles.help.Render("waiting for sessions..."))
		b.WriteString("\n")
	}

	for _, row := range m.rows {
		b.WriteString(renderRow(row))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) refresh() {
	snapshot := m.source.Snapshot()
	rows := make([]sessionRow, 0, len(snapshot))
	for id, rec := range snapshot {
		rows = append(rows, sessionRow{id: id, record: rec})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })
	m.rows = rows
	if len(rows) > 0 {
		m.seen = true
	}
}

// allDone reports whether every observed session reached a terminal
// state, successful or failed. Failed sessions must count, or a batch
// with one failure would hold the monitor open forever.
func (m *Model) allDone() bool {
	for _, row := range m.rows {
		if !row.record.Done && !row.record.Failed {
			return false
		}
	}
	return true
}

func renderRow(row sessionRow) string {
	rec := row.record

	status := styles.warn.Render(fmt.Sprintf("%3d%%", rec.Percent))
	switch {
	case rec.Done:
		status = styles.ok.Render("done")
	case rec.Failed:
		status = styles.err.Render("fail")
	}

	line := fmt.Sprintf("%s %s %s  %s", row.id, renderBar(rec.Percent), status, rec.Message)
	if model, ok := rec.Meta["model"].(string); ok && model != "" {
		line = fmt.Sprintf("%s %s", line, styles.help.Render("["+model+"]"))
	}
	return line
}

func renderBar(percent int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * barWidth / 100
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled) + "]"
}
