package feedback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cnv-acmg-classifier/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite verdict store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// Path returns the database file location
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS verdicts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		region TEXT NOT NULL,
		variant_kind TEXT NOT NULL,
		acmg_score REAL NOT NULL,
		acmg_label TEXT NOT NULL,
		risk_probability REAL NOT NULL,
		strategy REAL NOT NULL,
		combined_score REAL NOT NULL,
		combined_label TEXT NOT NULL,
		overridden TEXT NOT NULL DEFAULT '[]',
		user_label TEXT NOT NULL,
		user_agreed INTEGER NOT NULL DEFAULT 0,
		notes TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(region, variant_kind)
	);

	CREATE INDEX IF NOT EXISTS idx_verdicts_region ON verdicts(region);
	CREATE INDEX IF NOT EXISTS idx_verdicts_created_at ON verdicts(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Save stores or updates a verdict.
func (s *SQLiteStore) Save(ctx context.Context, verdict *Verdict) error {
	if err := verdict.Validate(); err != nil {
		return err
	}
	overridden, err := encodeOverridden(verdict.Overridden)
	if err != nil {
		return err
	}
	now := time.Now()

	var existingID int64
	var createdAt time.Time
	err = s.db.QueryRowContext(ctx,
		"SELECT id, created_at FROM verdicts WHERE region = ? AND variant_kind = ?",
		verdict.Region, string(verdict.VariantKind),
	).Scan(&existingID, &createdAt)

	if err == nil {
		verdict.ID = existingID
		verdict.CreatedAt = createdAt
		verdict.UpdatedAt = now

		_, err = s.db.ExecContext(ctx, `
			UPDATE verdicts SET
				acmg_score = ?,
				acmg_label = ?,
				risk_probability = ?,
				strategy = ?,
				combined_score = ?,
				combined_label = ?,
				overridden = ?,
				user_label = ?,
				user_agreed = ?,
				notes = ?,
				updated_at = ?
			WHERE id = ?
		`,
			verdict.ACMGScore,
			string(verdict.ACMGLabel),
			verdict.RiskProbability,
			verdict.Strategy,
			verdict.CombinedScore,
			string(verdict.CombinedLabel),
			overridden,
			string(verdict.UserLabel),
			verdict.UserAgreed,
			verdict.Notes,
			now,
			existingID,
		)
		if err != nil {
			return fmt.Errorf("failed to update: %w", err)
		}
		return nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check existing: %w", err)
	}

	verdict.CreatedAt = now
	verdict.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO verdicts (
			region, variant_kind, acmg_score, acmg_label, risk_probability,
			strategy, combined_score, combined_label, overridden,
			user_label, user_agreed, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		verdict.Region,
		string(verdict.VariantKind),
		verdict.ACMGScore,
		string(verdict.ACMGLabel),
		verdict.RiskProbability,
		verdict.Strategy,
		verdict.CombinedScore,
		string(verdict.CombinedLabel),
		overridden,
		string(verdict.UserLabel),
		verdict.UserAgreed,
		verdict.Notes,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	verdict.ID = id

	return nil
}

// Get returns the verdict for a region and variant kind.
func (s *SQLiteStore) Get(ctx context.Context, region string, kind domain.VariantKind) (*Verdict, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+verdictColumns+`
		FROM verdicts
		WHERE region = ? AND variant_kind = ?
		LIMIT 1
	`, region, string(kind))

	v, err := scanVerdict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return v, nil
}

// List returns verdicts with pagination, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*Verdict, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+verdictColumns+`
		FROM verdicts
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*Verdict
	for rows.Next() {
		v, err := scanVerdict(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

// Count returns the total number of verdicts.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM verdicts").Scan(&count)
	return count, err
}

// Delete removes a verdict by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM verdicts WHERE id = ?", id)
	return err
}

// ExportJSON exports all verdicts to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s, writer)
}

// ImportJSON imports verdicts from a JSON reader.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importJSON(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
