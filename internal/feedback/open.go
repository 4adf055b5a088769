package feedback

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cnv-acmg-classifier/internal/domain"
)

// DatabaseFile is the SQLite file name inside the data directory
const DatabaseFile = "verdicts.db"

// Open creates the store selected by the configuration: SQLite in the data
// directory by default, PostgreSQL when the driver is "postgres".
func Open(cfg domain.FeedbackConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("feedback data directory is required for sqlite")
		}
		return NewSQLiteStore(filepath.Join(cfg.DataDir, DatabaseFile))
	case "postgres", "postgresql":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("feedback database URL is required for postgres")
		}
		return NewPostgresStoreFromURL(cfg.DatabaseURL)
	}
	return nil, fmt.Errorf("unsupported feedback driver %q", cfg.Driver)
}
