// Package feedback records the verdicts users reach on evaluated CNVs: the
// scores the system showed, the sections they overrode and whether they agreed
// with the suggested classification.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cnv-acmg-classifier/internal/domain"
)

// ExportVersion is written into every export
const ExportVersion = "1.0"

// Verdict is the user's conclusion about one CNV.
type Verdict struct {
	ID              int64                `json:"id,omitempty"`
	Region          string               `json:"region"` // chrom:start-end
	VariantKind     domain.VariantKind   `json:"variant_kind"`
	ACMGScore       float64              `json:"acmg_score"`
	ACMGLabel       domain.SeverityLabel `json:"acmg_label"`
	RiskProbability float64              `json:"risk_probability"`
	Strategy        float64              `json:"strategy"`
	CombinedScore   float64              `json:"combined_score"`
	CombinedLabel   domain.SeverityLabel `json:"combined_label"`
	Overridden      []string             `json:"overridden"` // server default options the user replaced
	UserLabel       domain.SeverityLabel `json:"user_label"`
	UserAgreed      bool                 `json:"user_agreed"`
	Notes           string               `json:"notes,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

var severityLabels = map[domain.SeverityLabel]bool{
	domain.SeverityPathogenic:       true,
	domain.SeverityLikelyPathogenic: true,
	domain.SeverityUnknown:          true,
	domain.SeverityLikelyBenign:     true,
	domain.SeverityBenign:           true,
}

// Validate checks the fields a verdict is keyed and judged by
func (v *Verdict) Validate() error {
	if v.Region == "" {
		return domain.NewValidationError("region", "is required", v.Region)
	}
	if !v.VariantKind.IsValid() {
		return domain.NewValidationError("variant_kind", "must be gain or loss", v.VariantKind)
	}
	if !severityLabels[v.UserLabel] {
		return domain.NewValidationError("user_label", "must be a severity label", v.UserLabel)
	}
	return nil
}

// Store defines the interface for verdict storage operations.
type Store interface {
	// Save stores or updates a verdict.
	// A verdict for the same region+variant_kind is updated in place.
	Save(ctx context.Context, verdict *Verdict) error

	// Get returns the verdict for a region, or nil when there is none.
	Get(ctx context.Context, region string, kind domain.VariantKind) (*Verdict, error)

	// List returns verdicts, newest first, with pagination.
	List(ctx context.Context, limit, offset int) ([]*Verdict, error)

	// Count returns the total number of verdicts.
	Count(ctx context.Context) (int64, error)

	// Delete removes a verdict by ID.
	Delete(ctx context.Context, id int64) error

	// ExportJSON exports all verdicts to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON imports verdicts from a JSON reader.
	// Returns the number of imported and skipped entries.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// VerdictExport represents the JSON export format.
type VerdictExport struct {
	Version    string     `json:"version"`
	ExportedAt time.Time  `json:"exported_at"`
	Count      int        `json:"count"`
	Verdicts   []*Verdict `json:"verdicts"`
}

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

func exportJSON(ctx context.Context, store Store, writer io.Writer) error {
	all, err := store.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list verdicts: %w", err)
	}
	if all == nil {
		all = []*Verdict{}
	}

	export := &VerdictExport{
		Version:    ExportVersion,
		ExportedAt: time.Now(),
		Count:      len(all),
		Verdicts:   all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// importJSON saves every verdict of an export that the store does not hold yet.
func importJSON(ctx context.Context, store Store, reader io.Reader) (imported int, skipped int, err error) {
	var export VerdictExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, v := range export.Verdicts {
		if v == nil || v.Validate() != nil {
			skipped++
			continue
		}

		existing, err := store.Get(ctx, v.Region, v.VariantKind)
		if err != nil {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}
		if existing != nil {
			skipped++
			continue
		}

		v.ID = 0
		if err := store.Save(ctx, v); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}

func encodeOverridden(labels []string) (string, error) {
	if labels == nil {
		labels = []string{}
	}
	data, err := json.Marshal(labels)
	if err != nil {
		return "", fmt.Errorf("failed to encode overridden sections: %w", err)
	}
	return string(data), nil
}

func decodeOverridden(raw string) ([]string, error) {
	labels := []string{}
	if raw == "" {
		return labels, nil
	}
	if err := json.Unmarshal([]byte(raw), &labels); err != nil {
		return nil, fmt.Errorf("failed to decode overridden sections: %w", err)
	}
	return labels, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// verdictColumns is the select list scanVerdict expects
const verdictColumns = `id, region, variant_kind, acmg_score, acmg_label, risk_probability,
			strategy, combined_score, combined_label, overridden,
			user_label, user_agreed, notes, created_at, updated_at`

// scanVerdict scans a row into a Verdict struct.
func scanVerdict(s scanner) (*Verdict, error) {
	v := &Verdict{}
	var kind, acmgLabel, combinedLabel, userLabel, overridden string

	err := s.Scan(
		&v.ID, &v.Region, &kind, &v.ACMGScore, &acmgLabel, &v.RiskProbability,
		&v.Strategy, &v.CombinedScore, &combinedLabel, &overridden,
		&userLabel, &v.UserAgreed, &v.Notes, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.VariantKind = domain.VariantKind(kind)
	v.ACMGLabel = domain.SeverityLabel(acmgLabel)
	v.CombinedLabel = domain.SeverityLabel(combinedLabel)
	v.UserLabel = domain.SeverityLabel(userLabel)
	if v.Overridden, err = decodeOverridden(overridden); err != nil {
		return nil, err
	}
	return v, nil
}
