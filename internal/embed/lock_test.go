package embed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLock_LockCreatesFileInDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", ".amanmem")
	lock := NewFileLock(dir)

	require.NoError(t, lock.Lock())
	assert.True(t, lock.IsLocked())
	_, err := os.Stat(filepath.Join(dir, pullLockName))
	assert.NoError(t, err)

	require.NoError(t, lock.Unlock())
	assert.False(t, lock.IsLocked())
	require.NoError(t, lock.Unlock(), "second unlock is a no-op")
}

func TestFileLock_TryLockWhileHeld(t *testing.T) {
	dir := t.TempDir()
	holder := NewFileLock(dir)
	require.NoError(t, holder.Lock())
	defer func() { _ = holder.Unlock() }()

	// Given: a second handle on the same file
	other := NewFileLock(dir)

	// When: it tries to take the lock
	ok, err := other.TryLock()

	// Then: it fails without blocking
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, other.IsLocked())
}

func TestFileLock_TryLockAfterRelease(t *testing.T) {
	dir := t.TempDir()
	first := NewFileLock(dir)
	require.NoError(t, first.Lock())
	require.NoError(t, first.Unlock())

	second := NewFileLock(dir)
	ok, err := second.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, second.Unlock())
	assert.Equal(t, filepath.Join(dir, pullLockName), second.Path())
}
