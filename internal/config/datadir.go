package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir is where verdicts and exports live when nothing else is
// configured.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return filepath.Join(os.TempDir(), "cnv-acmg")
	}
	return filepath.Join(homeDir, ".cnv-acmg")
}

// ExportDir returns the directory for JSON exports.
func ExportDir(dataDir string) string {
	return filepath.Join(dataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(ExportDir(dataDir), 0755)
}
