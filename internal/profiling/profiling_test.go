package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Enabled(t *testing.T) {
	assert.False(t, Options{}.Enabled())
	assert.True(t, Options{Heap: "mem.prof"}.Enabled())
}

func TestSession_WritesRequestedProfiles(t *testing.T) {
	// Given: all three outputs requested
	dir := t.TempDir()
	opts := Options{
		CPU:   filepath.Join(dir, "cpu.prof"),
		Heap:  filepath.Join(dir, "mem.prof"),
		Trace: filepath.Join(dir, "trace.out"),
	}

	// When: a session runs and stops
	s, err := Start(opts)
	require.NoError(t, err)
	_ = make([]byte, 1<<16)
	require.NoError(t, s.Stop())

	// Then: every file exists and is non-empty
	for _, path := range []string{opts.CPU, opts.Heap, opts.Trace} {
		info, err := os.Stat(path)
		require.NoError(t, err, path)
		assert.Positive(t, info.Size(), path)
	}
}

func TestSession_StopTwice(t *testing.T) {
	s, err := Start(Options{Heap: filepath.Join(t.TempDir(), "mem.prof")})
	require.NoError(t, err)

	assert.NoError(t, s.Stop())
	assert.NoError(t, s.Stop())
}

func TestSession_NilStop(t *testing.T) {
	var s *Session
	assert.NoError(t, s.Stop())
}

func TestStart_BadPath(t *testing.T) {
	_, err := Start(Options{CPU: filepath.Join(t.TempDir(), "missing", "cpu.prof")})

	assert.Error(t, err)
}
