package feedback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"

	"github.com/cnv-acmg-classifier/internal/domain"
)

// postgresSchema creates the verdicts table when it is missing
const postgresSchema = `
	CREATE TABLE IF NOT EXISTS verdicts (
		id BIGSERIAL PRIMARY KEY,
		region TEXT NOT NULL,
		variant_kind TEXT NOT NULL,
		acmg_score DOUBLE PRECISION NOT NULL,
		acmg_label TEXT NOT NULL,
		risk_probability DOUBLE PRECISION NOT NULL,
		strategy DOUBLE PRECISION NOT NULL,
		combined_score DOUBLE PRECISION NOT NULL,
		combined_label TEXT NOT NULL,
		overridden TEXT NOT NULL DEFAULT '[]',
		user_label TEXT NOT NULL,
		user_agreed BOOLEAN NOT NULL DEFAULT FALSE,
		notes TEXT DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		CONSTRAINT verdicts_region_variant_kind_unique UNIQUE (region, variant_kind)
	)`

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL verdict store on an open connection.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL connects to PostgreSQL and makes sure the schema exists.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// EnsureSchema creates the verdicts table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Save stores or updates a verdict.
func (s *PostgresStore) Save(ctx context.Context, verdict *Verdict) error {
	if err := verdict.Validate(); err != nil {
		return err
	}
	overridden, err := encodeOverridden(verdict.Overridden)
	if err != nil {
		return err
	}
	now := time.Now()

	// Use upsert (INSERT ... ON CONFLICT)
	query := `
		INSERT INTO verdicts (
			region, variant_kind, acmg_score, acmg_label, risk_probability,
			strategy, combined_score, combined_label, overridden,
			user_label, user_agreed, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (region, variant_kind) DO UPDATE SET
			acmg_score = EXCLUDED.acmg_score,
			acmg_label = EXCLUDED.acmg_label,
			risk_probability = EXCLUDED.risk_probability,
			strategy = EXCLUDED.strategy,
			combined_score = EXCLUDED.combined_score,
			combined_label = EXCLUDED.combined_label,
			overridden = EXCLUDED.overridden,
			user_label = EXCLUDED.user_label,
			user_agreed = EXCLUDED.user_agreed,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	err = s.db.QueryRowContext(ctx, query,
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
	).Scan(&verdict.ID, &verdict.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save verdict: %w", err)
	}

	verdict.UpdatedAt = now
	return nil
}

// Get returns the verdict for a region and variant kind.
func (s *PostgresStore) Get(ctx context.Context, region string, kind domain.VariantKind) (*Verdict, error) {
	query := `
		SELECT ` + verdictColumns + `
		FROM verdicts
		WHERE region = $1 AND variant_kind = $2
		LIMIT 1
	`

	v, err := scanVerdict(s.db.QueryRowContext(ctx, query, region, string(kind)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get verdict: %w", err)
	}
	return v, nil
}

// List returns verdicts with pagination, newest first.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*Verdict, error) {
	query := `
		SELECT ` + verdictColumns + `
		FROM verdicts
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list verdicts: %w", err)
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
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM verdicts").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count verdicts: %w", err)
	}
	return count, nil
}

// Delete removes a verdict by ID.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM verdicts WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete verdict: %w", err)
	}
	return nil
}

// ExportJSON exports all verdicts to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s, writer)
}

// ImportJSON imports verdicts from a JSON reader.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importJSON(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
