// Package setup provides the administrative subcommands of the server:
// writing a starter configuration, checking the installation and moving
// verdict records in and out of the feedback store.
package setup

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cnv-acmg-classifier/internal/config"
	"github.com/cnv-acmg-classifier/internal/domain"
	"github.com/cnv-acmg-classifier/internal/feedback"
)

// Status represents the current installation status.
type Status struct {
	ConfigFile     string
	BackendURL     string
	Driver         string
	DataDir        string
	DataDirExists  bool
	DatabasePath   string
	DatabaseExists bool
	Verdicts       int64
	Issues         []string
}

// GetStatus inspects the configured data directory and feedback store.
func GetStatus(ctx context.Context, cfg *domain.Config, configFile string) *Status {
	status := &Status{
		ConfigFile: configFile,
		BackendURL: cfg.Backend.BaseURL,
		Driver:     strings.ToLower(cfg.Feedback.Driver),
		DataDir:    cfg.Feedback.DataDir,
		Issues:     []string{},
	}
	if status.Driver == "" {
		status.Driver = "sqlite"
	}

	if _, err := os.Stat(status.DataDir); err == nil {
		status.DataDirExists = true
	} else if status.Driver == "sqlite" {
		status.Issues = append(status.Issues, fmt.Sprintf("Data directory will be created on first run: %s", status.DataDir))
	}

	if status.Driver == "sqlite" {
		status.DatabasePath = filepath.Join(status.DataDir, feedback.DatabaseFile)
		if _, err := os.Stat(status.DatabasePath); err != nil {
			return status
		}
		status.DatabaseExists = true
	}

	store, err := feedback.Open(cfg.Feedback)
	if err != nil {
		status.Issues = append(status.Issues, fmt.Sprintf("Cannot open feedback store: %v", err))
		return status
	}
	defer store.Close()

	count, err := store.Count(ctx)
	if err != nil {
		status.Issues = append(status.Issues, fmt.Sprintf("Cannot count verdicts: %v", err))
		return status
	}
	status.DatabaseExists = true
	status.Verdicts = count
	return status
}

// Validate checks the configuration and, when probe is set, that the
// backend answers at all. Issues that only warn do not make it invalid.
func Validate(ctx context.Context, cfg *domain.Config, probe bool) (bool, []string) {
	var issues []string

	if err := config.Validate(cfg); err != nil {
		issues = append(issues, err.Error())
		return false, issues
	}

	if strings.ToLower(cfg.Feedback.Driver) != "postgres" {
		if _, err := os.Stat(cfg.Feedback.DataDir); os.IsNotExist(err) {
			issues = append(issues, fmt.Sprintf("Data directory will be created on first run: %s", cfg.Feedback.DataDir))
		}
	}

	if probe {
		if err := probeBackend(ctx, cfg.Backend.BaseURL); err != nil {
			issues = append(issues, fmt.Sprintf("Backend is not reachable: %v", err))
		}
	}

	return len(issues) == 0 || allWarnings(issues), issues
}

// probeBackend only checks that something answers HTTP at the base URL
func probeBackend(ctx context.Context, baseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// allWarnings returns true if all issues are just warnings (not errors).
func allWarnings(issues []string) bool {
	for _, issue := range issues {
		if !strings.Contains(issue, "will be created") {
			return false
		}
	}
	return true
}

// ExportVerdicts writes every stored verdict to a timestamped file in dir
// and returns its path.
func ExportVerdicts(ctx context.Context, store feedback.Store, dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("verdicts-%s.json", now.UTC().Format("20060102-150405")))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	if err := store.ExportJSON(ctx, file); err != nil {
		return "", fmt.Errorf("failed to export verdicts: %w", err)
	}
	return path, nil
}

// ImportVerdicts loads an export file into the store.
func ImportVerdicts(ctx context.Context, store feedback.Store, path string) (imported int, skipped int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open import file: %w", err)
	}
	defer file.Close()

	return store.ImportJSON(ctx, file)
}
