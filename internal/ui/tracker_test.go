package ui

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock is advanced by hand.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestProgressTracker_Stats(t *testing.T) {
	// Given: a tracker indexing 10 files
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	p := newProgressTracker(clock.now)
	p.SetStage(StageIndexing, 10)

	// When: 4 files finish in 8 seconds
	clock.advance(8 * time.Second)
	p.Update(4, "docs/d.md")

	// Then: the remaining 6 files are projected at 2s each
	s := p.Stats()
	assert.Equal(t, StageIndexing, s.Stage)
	assert.InDelta(t, 0.4, s.Progress, 1e-9)
	assert.Equal(t, 8*time.Second, s.Elapsed)
	assert.Equal(t, 12*time.Second, s.ETA)
	assert.Equal(t, "docs/d.md", s.CurrentFile)
}

func TestProgressTracker_EdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		current  int
		progress float64
	}{
		{"no total", 0, 3, 0},
		{"nothing done", 5, 0, 0},
		{"overshoot clamps", 2, 3, 1},
		{"done", 4, 4, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{t: time.Unix(0, 0)}
			p := newProgressTracker(clock.now)
			p.SetStage(StageIndexing, tt.total)
			clock.advance(time.Second)
			p.Update(tt.current, "")

			s := p.Stats()
			assert.InDelta(t, tt.progress, s.Progress, 1e-9)
			assert.Zero(t, s.ETA)
		})
	}
}

func TestProgressTracker_SetStageResets(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageDiscovering, 3)
	p.Update(3, "README.md")

	p.SetStage(StageIndexing, 7)

	s := p.Stats()
	assert.Equal(t, 0, s.Current)
	assert.Equal(t, 7, s.Total)
	assert.Empty(t, s.CurrentFile)
}

func TestProgressTracker_UpdateKeepsLastFile(t *testing.T) {
	p := NewProgressTracker()
	p.Update(1, "a.md")
	p.Update(2, "")

	assert.Equal(t, "a.md", p.Stats().CurrentFile)
}

func TestProgressTracker_AddError(t *testing.T) {
	p := NewProgressTracker()

	p.AddError(ErrorEvent{Err: errors.New("a")})
	p.AddError(ErrorEvent{Err: errors.New("b"), IsWarn: true})
	p.AddError(ErrorEvent{Err: errors.New("c"), IsWarn: true})

	s := p.Stats()
	assert.Equal(t, 1, s.ErrorCount)
	assert.Equal(t, 2, s.WarnCount)
}
