package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir is ~/.file-compass/logs, or a temp-dir equivalent when the
// home directory cannot be resolved.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".file-compass", "logs")
	}
	return filepath.Join(home, ".file-compass", "logs")
}

// DefaultLogPath is the server log file inside DefaultLogDir.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	return os.MkdirAll(DefaultLogDir(), 0o755)
}
