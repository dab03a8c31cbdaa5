package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.amanmem/logs, or a temp dir when home is unknown.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".amanmem", "logs")
	}
	return filepath.Join(home, ".amanmem", "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}
