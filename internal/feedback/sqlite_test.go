package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnv-acmg-classifier/internal/domain"
)

func sampleVerdict(region string) *Verdict {
	return &Verdict{
		Region:          region,
		VariantKind:     domain.VariantKindLoss,
		ACMGScore:       0.99,
		ACMGLabel:       domain.SeverityLikelyPathogenic,
		RiskProbability: 0.8,
		Strategy:        1.1,
		CombinedScore:   1.32,
		CombinedLabel:   domain.SeverityPathogenic,
		Overridden:      []string{"1A"},
		UserLabel:       domain.SeverityPathogenic,
		UserAgreed:      true,
		Notes:           "Typical 22q11.2 deletion",
	}
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)

	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
	assert.Equal(t, dbPath, store.Path())
}

func TestSQLiteStore_Save(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	verdict := sampleVerdict("chr22:18660000-21520000")

	err := store.Save(context.Background(), verdict)

	require.NoError(t, err)
	assert.NotZero(t, verdict.ID, "ID should be assigned")
	assert.False(t, verdict.CreatedAt.IsZero(), "CreatedAt should be set")
	assert.False(t, verdict.UpdatedAt.IsZero(), "UpdatedAt should be set")
}

func TestSQLiteStore_Save_Invalid(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	tests := []struct {
		name   string
		mutate func(v *Verdict)
	}{
		{"missing region", func(v *Verdict) { v.Region = "" }},
		{"bad variant kind", func(v *Verdict) { v.VariantKind = "dup" }},
		{"bad user label", func(v *Verdict) { v.UserLabel = "VUS" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := sampleVerdict("chr1:1-2")
			tt.mutate(v)

			err := store.Save(context.Background(), v)

			var vErr *domain.ValidationError
			assert.True(t, errors.As(err, &vErr))
		})
	}
}

func TestSQLiteStore_Save_Update(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	verdict := sampleVerdict("chr22:18660000-21520000")
	require.NoError(t, store.Save(ctx, verdict))
	originalID := verdict.ID

	verdict.UserLabel = domain.SeverityLikelyPathogenic
	verdict.UserAgreed = false
	verdict.Overridden = []string{"1A", "3C"}
	verdict.Notes = "Updated after review"
	require.NoError(t, store.Save(ctx, verdict))

	assert.Equal(t, originalID, verdict.ID, "Should update existing record")

	retrieved, err := store.Get(ctx, "chr22:18660000-21520000", domain.VariantKindLoss)
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.Equal(t, domain.SeverityLikelyPathogenic, retrieved.UserLabel)
	assert.False(t, retrieved.UserAgreed)
	assert.Equal(t, []string{"1A", "3C"}, retrieved.Overridden)
	assert.Equal(t, "Updated after review", retrieved.Notes)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLiteStore_Get(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	verdict := sampleVerdict("chr5:0-15680000")
	verdict.Overridden = nil
	require.NoError(t, store.Save(ctx, verdict))

	retrieved, err := store.Get(ctx, "chr5:0-15680000", domain.VariantKindLoss)

	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.Equal(t, verdict.ID, retrieved.ID)
	assert.Equal(t, domain.VariantKindLoss, retrieved.VariantKind)
	assert.Equal(t, 0.99, retrieved.ACMGScore)
	assert.Equal(t, domain.SeverityLikelyPathogenic, retrieved.ACMGLabel)
	assert.Equal(t, 0.8, retrieved.RiskProbability)
	assert.Equal(t, 1.1, retrieved.Strategy)
	assert.Equal(t, 1.32, retrieved.CombinedScore)
	assert.Equal(t, domain.SeverityPathogenic, retrieved.CombinedLabel)
	assert.Equal(t, []string{}, retrieved.Overridden)
	assert.True(t, retrieved.UserAgreed)
}

func TestSQLiteStore_Get_ByVariantKind(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	loss := sampleVerdict("chr7:72700000-74100000")
	gain := sampleVerdict("chr7:72700000-74100000")
	gain.VariantKind = domain.VariantKindGain
	gain.UserLabel = domain.SeverityLikelyBenign
	require.NoError(t, store.Save(ctx, loss))
	require.NoError(t, store.Save(ctx, gain))

	assert.NotEqual(t, loss.ID, gain.ID)

	retrieved, err := store.Get(ctx, "chr7:72700000-74100000", domain.VariantKindGain)
	require.NoError(t, err)
	require.NotNil(t, retrieved)
	assert.Equal(t, domain.SeverityLikelyBenign, retrieved.UserLabel)
}

func TestSQLiteStore_Get_NotFound(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	retrieved, err := store.Get(context.Background(), "chr1:1-2", domain.VariantKindGain)

	require.NoError(t, err)
	assert.Nil(t, retrieved)
}

func TestSQLiteStore_List_Pagination(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Save(ctx, sampleVerdict(fmt.Sprintf("chr1:%d-%d", i*1000, i*1000+500))))
	}

	page1, err := store.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, page1, 2)

	page3, err := store.List(ctx, 2, 4)
	require.NoError(t, err)
	assert.Len(t, page3, 1)

	all, err := store.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "chr1:4000-4500", all[0].Region, "newest first")
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	verdict := sampleVerdict("chr15:22800000-28500000")
	require.NoError(t, store.Save(ctx, verdict))

	require.NoError(t, store.Delete(ctx, verdict.ID))

	retrieved, err := store.Get(ctx, verdict.Region, verdict.VariantKind)
	require.NoError(t, err)
	assert.Nil(t, retrieved)
}

func TestSQLiteStore_ExportJSON(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleVerdict("chr1:100-200")))
	require.NoError(t, store.Save(ctx, sampleVerdict("chr2:100-200")))

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(ctx, &buf))

	var export VerdictExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export))
	assert.Equal(t, ExportVersion, export.Version)
	assert.Equal(t, 2, export.Count)
	assert.Len(t, export.Verdicts, 2)
}

func TestSQLiteStore_ExportJSON_Empty(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(context.Background(), &buf))
	assert.Contains(t, buf.String(), `"verdicts": []`)
}

func TestSQLiteStore_ImportJSON(t *testing.T) {
	source := createTestStore(t)
	defer source.Close()
	ctx := context.Background()

	require.NoError(t, source.Save(ctx, sampleVerdict("chr1:100-200")))
	require.NoError(t, source.Save(ctx, sampleVerdict("chr2:100-200")))

	var buf bytes.Buffer
	require.NoError(t, source.ExportJSON(ctx, &buf))

	target := createTestStore(t)
	defer target.Close()
	require.NoError(t, target.Save(ctx, sampleVerdict("chr2:100-200")))

	imported, skipped, err := target.ImportJSON(ctx, &buf)

	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 1, skipped)

	count, err := target.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSQLiteStore_ImportJSON_Invalid(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	_, _, err := store.ImportJSON(context.Background(), bytes.NewBufferString("not json"))
	assert.Error(t, err)

	imported, skipped, err := store.ImportJSON(context.Background(),
		bytes.NewBufferString(`{"version":"1.0","verdicts":[{"region":"","variant_kind":"loss","user_label":"Benign"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 0, imported)
	assert.Equal(t, 1, skipped)
}

func TestOpen(t *testing.T) {
	t.Run("sqlite by default", func(t *testing.T) {
		dir := t.TempDir()
		store, err := Open(domain.FeedbackConfig{DataDir: dir})
		require.NoError(t, err)
		defer store.Close()

		_, err = os.Stat(filepath.Join(dir, DatabaseFile))
		assert.NoError(t, err)
	})

	t.Run("sqlite needs a directory", func(t *testing.T) {
		_, err := Open(domain.FeedbackConfig{Driver: "sqlite"})
		assert.Error(t, err)
	})

	t.Run("postgres needs a URL", func(t *testing.T) {
		_, err := Open(domain.FeedbackConfig{Driver: "postgres"})
		assert.Error(t, err)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Open(domain.FeedbackConfig{Driver: "mongo"})
		assert.Error(t, err)
	})
}

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return store
}
