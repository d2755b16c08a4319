package tui

// Live tag view: a table of the poller's latest scan with inline editing.

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tonylturner/enipctl/internal/plc"
	"github.com/tonylturner/enipctl/internal/tags"
)

const (
	nameWidth  = 36
	typeWidth  = 8
	valueWidth = 24
)

// Source feeds the watch view. *plc.Poller implements it.
type Source interface {
	Updates() <-chan []plc.Snapshot
	SetValue(id string, v any) bool
	Scans() int
	ScanRate() time.Duration
}

type snapshotsMsg []plc.Snapshot

type tickMsg time.Time

// WatchModel is the bubbletea model of the tag view.
type WatchModel struct {
	src    Source
	target string
	styles Styles

	snaps  []plc.Snapshot
	cursor int
	now    time.Time
	width  int

	editing bool
	input   string

	message string
	isError bool

	copy func(string) error
}

// NewWatchModel creates the view for src. target is shown in the title.
func NewWatchModel(src Source, target string) *WatchModel {
	return &WatchModel{
		src:    src,
		target: target,
		styles: DefaultStyles,
		now:    time.Now(),
		copy:   clipboard.WriteAll,
	}
}

// Init implements tea.Model.
func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(waitForSnapshots(m.src), tickCmd())
}

func waitForSnapshots(src Source) tea.Cmd {
	return func() tea.Msg {
		return snapshotsMsg(<-src.Updates())
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case snapshotsMsg:
		m.snaps = msg
		m.now = time.Now()
		if m.cursor >= len(m.snaps) {
			m.cursor = max(len(m.snaps)-1, 0)
		}
		return m, waitForSnapshots(m.src)

	case tickMsg:
		m.now = time.Time(msg)
		return m, tickCmd()

	case tea.KeyMsg:
		if m.editing {
			return m.handleEditKey(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *WatchModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.snaps)-1 {
			m.cursor++
		}
	case "enter", "e":
		if len(m.snaps) > 0 {
			m.editing = true
			m.input = ""
			m.message = ""
		}
	case "y":
		if len(m.snaps) == 0 {
			return m, nil
		}
		s := m.snaps[m.cursor]
		text := s.FullName() + "=" + formatValue(s.Value)
		if err := m.copy(text); err != nil {
			m.setMessage(fmt.Sprintf("Copy failed: %v", err), true)
		} else {
			m.setMessage("Copied "+text, false)
		}
	}
	return m, nil
}

func (m *WatchModel) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.editing = false
		m.input = ""
	case tea.KeyEnter:
		m.commitEdit()
	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
	case tea.KeyRunes, tea.KeySpace:
		m.input += string(msg.Runes)
	}
	return m, nil
}

func (m *WatchModel) commitEdit() {
	m.editing = false
	if len(m.snaps) == 0 {
		return
	}
	s := m.snaps[m.cursor]
	v, err := tags.ParseValues(s.Type, m.input)
	if err != nil {
		m.setMessage(err.Error(), true)
		return
	}
	if !m.src.SetValue(s.ID, v) {
		m.setMessage(s.FullName()+" is no longer polled", true)
		return
	}
	m.setMessage(fmt.Sprintf("Queued %s = %s", s.FullName(), strings.TrimSpace(m.input)), false)
	m.input = ""
}

func (m *WatchModel) setMessage(text string, isError bool) {
	m.message = text
	m.isError = isError
}

// View implements tea.Model.
func (m *WatchModel) View() string {
	s := m.styles
	var b strings.Builder

	b.WriteString(s.Title.Render("enipctl watch"))
	b.WriteString(s.Dim.Render(fmt.Sprintf("%s  scans %d every %s", m.target, m.src.Scans(), m.src.ScanRate())))
	b.WriteString("\n\n")

	b.WriteString(s.Header.Render(fmt.Sprintf("  %-*s %-*s %-*s %s",
		nameWidth, "TAG", typeWidth, "TYPE", valueWidth, "VALUE", "UPDATED")))
	b.WriteString("\n")

	if len(m.snaps) == 0 {
		b.WriteString(s.Dim.Render("  waiting for the first scan..."))
		b.WriteString("\n")
	}
	for i, snap := range m.snaps {
		b.WriteString(m.renderRow(i, snap))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case m.editing:
		name := m.snaps[m.cursor].FullName()
		b.WriteString(s.Base.Render("New value for " + name + ": "))
		b.WriteString(s.InputActive.Render(m.input))
		b.WriteString(s.Cursor.Render(" "))
	case m.message != "" && m.isError:
		b.WriteString(s.Error.Render(m.message))
	case m.message != "":
		b.WriteString(s.Success.Render(m.message))
	}
	b.WriteString("\n")
	b.WriteString(m.renderFooter())

	box := s.Box
	if m.width > 4 {
		box = box.Width(m.width - 2)
	}
	return box.Render(b.String())
}

func (m *WatchModel) renderRow(i int, snap plc.Snapshot) string {
	s := m.styles
	status, value, updated := "ok", formatValue(snap.Value), "never"
	if !snap.Updated.IsZero() {
		updated = m.now.Sub(snap.Updated).Round(time.Millisecond).String() + " ago"
	}
	if snap.Err != nil {
		status, value = "error", snap.Err.Error()
	} else if snap.Updated.IsZero() {
		status = ""
	}

	line := fmt.Sprintf("%-*s %-*s %-*s %s",
		nameWidth, truncate(snap.FullName(), nameWidth),
		typeWidth, snap.Type,
		valueWidth, truncate(value, valueWidth),
		updated)
	if i == m.cursor {
		line = s.Selected.Render(line)
	} else if snap.Err != nil {
		line = s.Error.Render(line)
	}
	return StatusIcon(status, s) + " " + line
}

func (m *WatchModel) renderFooter() string {
	s := m.styles
	keys := []struct{ key, hint string }{
		{"↑/↓", "select"},
		{"enter", "write"},
		{"y", "copy"},
		{"q", "quit"},
	}
	if m.editing {
		keys = []struct{ key, hint string }{{"enter", "queue write"}, {"esc", "cancel"}}
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = s.KeyBinding.Render(k.key) + " " + s.KeyHint.Render(k.hint)
	}
	return s.Footer.Render(strings.Join(parts, "  "))
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "-"
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = formatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if len(r) > width-1 {
		r = r[:width-1]
	}
	return string(r) + "…"
}
