package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tonylturner/enipctl/internal/cip/spec"
	"github.com/tonylturner/enipctl/internal/plc"
)

type fakeSource struct {
	updates chan []plc.Snapshot
	writes  map[string]any
}

func newFakeSource() *fakeSource {
	return &fakeSource{updates: make(chan []plc.Snapshot, 1), writes: make(map[string]any)}
}

func (f *fakeSource) Updates() <-chan []plc.Snapshot { return f.updates }
func (f *fakeSource) Scans() int { return 3 }
func (f *fakeSource) ScanRate() time.Duration { return 200 * time.Millisecond }

func (f *fakeSource) SetValue(id string, v any) bool {
	if id == "gone" {
		return false
	}
	f.writes[id] = v
	return true
}

func testSnapshots() snapshotsMsg {
	now := time.Now()
	return snapshotsMsg{
		{ID: "counter", Name: "counter", Type: spec.TypeDINT, Value: int32(-9999), Updated: now},
		{ID: "setpoint", Name: "setpoint", Program: "MainProgram", Type: spec.TypeREAL, Value: float32(1.5), Updated: now},
		{ID: "missing", Name: "missing", Type: spec.TypeDINT, Err: errors.New("path destination unknown")},
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestModel(t *testing.T) (*WatchModel, *fakeSource) {
	t.Helper()
	src := newFakeSource()
	m := NewWatchModel(src, "10.0.0.5:44818")
	m.copy = func(string) error { return nil }
	if _, cmd := m.Update(testSnapshots()); cmd == nil {
		t.Fatal("snapshots update should wait for the next scan")
	}
	return m, src
}

func TestWatchViewRendersSnapshots(t *testing.T) {
	m, _ := newTestModel(t)
	view := m.View()
	for _, want := range []string{"enipctl watch", "10.0.0.5:44818", "counter", "-9999", "Program:MainProgram.setpoint", "1.5", "REAL", "path destination unknown"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestWatchViewBeforeFirstScan(t *testing.T) {
	m := NewWatchModel(newFakeSource(), "plc")
	if !strings.Contains(m.View(), "waiting for the first scan") {
		t.Error("empty view should say it is waiting")
	}
	m.Update(key("enter"))
	if m.editing {
		t.Error("editing started with no tags")
	}
}

func TestWatchCursorMovement(t *testing.T) {
	m, _ := newTestModel(t)
	m.Update(key("up"))
	if m.cursor != 0 {
		t.Errorf("cursor = %d after up at top", m.cursor)
	}
	for i := 0; i < 5; i++ {
		m.Update(key("j"))
	}
	if m.cursor != 2 {
		t.Errorf("cursor = %d, want clamp at 2", m.cursor)
	}
	m.Update(snapshotsMsg(testSnapshots()[:1]))
	if m.cursor != 0 {
		t.Errorf("cursor = %d after the list shrank, want 0", m.cursor)
	}
}

func TestWatchEditQueuesWrite(t *testing.T) {
	m, src := newTestModel(t)
	m.Update(key("down"))
	m.Update(key("enter"))
	if !m.editing {
		t.Fatal("enter did not start editing")
	}
	for _, k := range []string{"2", ".", "59", "backspace", "enter"} {
		m.Update(key(k))
	}
	if m.editing {
		t.Error("still editing after enter")
	}
	if got := src.writes["setpoint"]; got != float32(2.5) {
		t.Errorf("queued value = %v (%T), want 2.5", got, got)
	}
	if m.isError || !strings.Contains(m.message, "Queued Program:MainProgram.setpoint = 2.5") {
		t.Errorf("message = %q", m.message)
	}
}

func TestWatchEditRejectsBadValue(t *testing.T) {
	m, src := newTestModel(t)
	m.Update(key("e"))
	m.Update(key("abc"))
	m.Update(key("enter"))
	if len(src.writes) != 0 {
		t.Errorf("bad value was queued: %v", src.writes)
	}
	if !m.isError {
		t.Error("bad value should report an error")
	}

	m.Update(key("e"))
	m.Update(key("1"))
	m.Update(key("esc"))
	if m.editing || len(src.writes) != 0 {
		t.Error("esc should cancel without writing")
	}
}

func TestWatchCopy(t *testing.T) {
	m, _ := newTestModel(t)
	var copied string
	m.copy = func(s string) error { copied = s; return nil }
	m.Update(key("y"))
	if copied != "counter=-9999" {
		t.Errorf("copied %q", copied)
	}

	m.copy = func(string) error { return errors.New("no clipboard") }
	m.Update(key("y"))
	if !m.isError || !strings.Contains(m.message, "no clipboard") {
		t.Errorf("message = %q", m.message)
	}
}

func TestWatchQuit(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "-"},
		{int32(5), "5"},
		{float32(0.1), "0.1"},
		{[]any{int16(1), true}, "[1, true]"},
		{"text", "text"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("a_very_long_tag_name", 8); got != "a_very_…" {
		t.Errorf("truncate() = %q", got)
	}
}
