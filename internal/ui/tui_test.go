package ui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel() (*indexingModel, *ProgressTracker) {
	tracker := NewProgressTracker()
	m := newIndexingModel(tracker, "alpha")
	m.styles = NoColorStyles()
	return m, tracker
}

func TestIndexingModel_View(t *testing.T) {
	// Given: a model indexing the third of ten files
	m, tracker := newTestModel()
	tracker.SetStage(StageIndexing, 10)
	tracker.Update(3, "docs/guides/deploy.md")

	// When: rendering
	view := m.View()

	// Then: header, stages, counts and the current file are shown
	assert.Contains(t, view, "amanmem docs • alpha")
	assert.Contains(t, view, "● Find")
	assert.Contains(t, view, "Index")
	assert.Contains(t, view, "3 / 10 files")
	assert.Contains(t, view, " 30%")
	assert.Contains(t, view, "deploy.md")
	assert.Contains(t, view, "q to quit")
}

func TestIndexingModel_ViewWithoutTotal(t *testing.T) {
	m, _ := newTestModel()

	view := m.View()

	assert.Contains(t, view, "Discovering...")
	assert.Contains(t, view, "○ Index")
}

func TestIndexingModel_StatusBarCounts(t *testing.T) {
	m, tracker := newTestModel()
	tracker.AddError(ErrorEvent{IsWarn: true})
	tracker.AddError(ErrorEvent{})

	view := m.View()

	assert.Contains(t, view, "1 warnings")
	assert.Contains(t, view, "1 errors")
}

func TestIndexingModel_Complete(t *testing.T) {
	// Given: a running model
	m, _ := newTestModel()

	// When: the completion message arrives
	next, cmd := m.Update(completeMsg(CompletionStats{
		Files:    2,
		Sections: 5,
		Created:  5,
		Failed:   1,
		Duration: 3 * time.Second,
		ModelKey: "static-384",
	}))

	// Then: the program quits and shows the summary
	require.NotNil(t, cmd)
	view := next.View()
	assert.Contains(t, view, "Documentation indexed")
	assert.Contains(t, view, "Sections:")
	assert.Contains(t, view, "static-384")
	assert.Contains(t, view, "1 sections failed")
}

func TestIndexingModel_Quit(t *testing.T) {
	m, _ := newTestModel()

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	require.NotNil(t, cmd)
	assert.Equal(t, "Cancelled.\n", next.View())
}

func TestIndexingModel_WindowResize(t *testing.T) {
	m, _ := newTestModel()

	m.Update(tea.WindowSizeMsg{Width: 30, Height: 10})
	assert.Equal(t, 20, m.progressBar.Width)

	m.Update(tea.WindowSizeMsg{Width: 120, Height: 10})
	assert.Equal(t, 100, m.progressBar.Width)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{42 * time.Second, "42s"},
		{2 * time.Minute, "2m"},
		{2*time.Minute + 15*time.Second, "2m 15s"},
		{90 * time.Minute, "1h 30m"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatDuration(tt.in))
		})
	}
}

func TestTruncateFilePath(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		maxLen int
		want   string
	}{
		{"fits", "docs/a.md", 20, "docs/a.md"},
		{"keeps file name", "docs/guides/deploy.md", 16, "...des/deploy.md"},
		{"long file name", "docs/averyveryverylongname.md", 10, "...name.md"},
		{"no directory", "averyverylongname.md", 8, "...me.md"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateFilePath(tt.path, tt.maxLen)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), tt.maxLen)
		})
	}
}
