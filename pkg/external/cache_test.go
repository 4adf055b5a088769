package external

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnv-acmg-classifier/internal/domain"
)

func TestCatalogKey(t *testing.T) {
	assert.Equal(t, "cnv-acmg:catalog:gain", catalogKey(domain.VariantKindGain))
	assert.Equal(t, "cnv-acmg:catalog:loss", catalogKey(domain.VariantKindLoss))
}

func TestNewCatalogCache_BadURL(t *testing.T) {
	_, err := NewCatalogCache(domain.CacheConfig{RedisURL: "not a url"})
	assert.Error(t, err)
}

// Requires TEST_REDIS_URL to be set (e.g., redis://localhost:6379/15)
func TestCatalogCache_RoundTrip(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set, skipping Redis tests")
	}

	cache, err := NewCatalogCache(domain.CacheConfig{RedisURL: url, CatalogTTL: time.Minute})
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	require.NoError(t, cache.Invalidate(ctx, domain.VariantKindLoss))

	_, found, err := cache.Get(ctx, domain.VariantKindLoss)
	require.NoError(t, err)
	assert.False(t, found)

	points := 0.45
	catalog := domain.EvidenceCatalog{
		3: {
			{Label: "3B", SuggestedPoints: &points, EvidenceText: "25-34 protein-coding genes"},
			{Label: "3A", MinScore: 0, MaxScore: 0},
		},
	}
	require.NoError(t, cache.Set(ctx, domain.VariantKindLoss, catalog, 0))

	got, found, err := cache.Get(ctx, domain.VariantKindLoss)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, catalog, got)

	require.NoError(t, cache.Invalidate(ctx, domain.VariantKindLoss))
	_, found, err = cache.Get(ctx, domain.VariantKindLoss)
	require.NoError(t, err)
	assert.False(t, found)
}
