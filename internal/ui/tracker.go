package ui

import (
	"sync"
	"time"
)

// ProgressTracker holds the state shown by the TUI. It is safe for
// concurrent use.
type ProgressTracker struct {
	mu          sync.RWMutex
	now         func() time.Time
	stage       Stage
	current     int
	total       int
	currentFile string
	stageStart  time.Time
	errors      int
	warnings    int
}

// ProgressStats is a snapshot of a ProgressTracker.
type ProgressStats struct {
	Stage       Stage
	Current     int
	Total       int
	Progress    float64
	Elapsed     time.Duration
	ETA         time.Duration
	CurrentFile string
	ErrorCount  int
	WarnCount   int
}

// NewProgressTracker creates a tracker in the discovering stage.
func NewProgressTracker() *ProgressTracker {
	return newProgressTracker(time.Now)
}

func newProgressTracker(now func() time.Time) *ProgressTracker {
	return &ProgressTracker{
		now:        now,
		stage:      StageDiscovering,
		stageStart: now(),
	}
}

// SetStage moves to stage and resets the counters.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.total = total
	p.current = 0
	p.currentFile = ""
	p.stageStart = p.now()
}

// Update records progress within the current stage.
func (p *ProgressTracker) Update(current int, file string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	if file != "" {
		p.currentFile = file
	}
}

// AddError counts an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings++
	} else {
		p.errors++
	}
}

// Stats returns a snapshot. ETA is a linear projection of the stage's
// elapsed time and is zero until the first item completes.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		Elapsed:     p.now().Sub(p.stageStart),
		CurrentFile: p.currentFile,
		ErrorCount:  p.errors,
		WarnCount:   p.warnings,
	}
	if p.total > 0 {
		s.Progress = min(float64(p.current)/float64(p.total), 1)
	}
	if p.current > 0 && p.current < p.total {
		perItem := s.Elapsed / time.Duration(p.current)
		s.ETA = perItem * time.Duration(p.total-p.current)
	}
	return s
}
