package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/cnv-acmg-classifier/internal/domain"
)

// CatalogStore is the shared cache tier behind the in-process LRU
type CatalogStore interface {
	Get(ctx context.Context, kind domain.VariantKind) (domain.EvidenceCatalog, bool, error)
	Set(ctx context.Context, kind domain.VariantKind, catalog domain.EvidenceCatalog, ttl time.Duration) error
}

// CatalogStats represents catalog cache performance statistics
type CatalogStats struct {
	MemoryHits    int64     `json:"memory_hits"`
	RedisHits     int64     `json:"redis_hits"`
	BackendLoads  int64     `json:"backend_loads"`
	TotalRequests int64     `json:"total_requests"`
	ErrorCount    int64     `json:"error_count"`
	LastReset     time.Time `json:"last_reset"`
}

// CatalogService loads evidence catalogs lazily per variant kind and keeps
// them cached: in memory first, then in the shared store when one is set.
type CatalogService struct {
	source domain.CatalogSource
	memory *expirable.LRU[domain.VariantKind, domain.EvidenceCatalog]
	shared CatalogStore
	ttl    time.Duration
	loads  singleflight.Group
	logger *logrus.Logger

	memoryHits    atomic.Int64
	redisHits     atomic.Int64
	backendLoads  atomic.Int64
	totalRequests atomic.Int64
	errorCount    atomic.Int64
	lastReset     time.Time
}

// CatalogSourceFunc adapts a function to domain.CatalogSource
type CatalogSourceFunc func(ctx context.Context, kind domain.VariantKind) (domain.EvidenceCatalog, error)

// FetchCatalog implements domain.CatalogSource
func (f CatalogSourceFunc) FetchCatalog(ctx context.Context, kind domain.VariantKind) (domain.EvidenceCatalog, error) {
	return f(ctx, kind)
}

// NewCatalogService creates a new catalog service. shared may be nil.
func NewCatalogService(source domain.CatalogSource, shared CatalogStore, config domain.CacheConfig, logger *logrus.Logger) *CatalogService {
	if config.CatalogSize <= 0 {
		// one entry per variant kind
		config.CatalogSize = 2
	}
	if config.CatalogTTL == 0 {
		config.CatalogTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &CatalogService{
		source:    source,
		memory:    expirable.NewLRU[domain.VariantKind, domain.EvidenceCatalog](config.CatalogSize, nil, config.CatalogTTL),
		shared:    shared,
		ttl:       config.CatalogTTL,
		logger:    logger,
		lastReset: time.Now(),
	}
}

// Options returns the evidence catalog for a variant kind. Concurrent misses
// for the same kind share one backend load; a failed load is not cached.
func (s *CatalogService) Options(ctx context.Context, kind domain.VariantKind) (domain.EvidenceCatalog, error) {
	s.totalRequests.Add(1)

	if !kind.IsValid() {
		s.errorCount.Add(1)
		return nil, domain.NewValidationError("variant_kind", "must be gain or loss", kind)
	}

	if catalog, ok := s.memory.Get(kind); ok {
		s.memoryHits.Add(1)
		return catalog, nil
	}

	ch := s.loads.DoChan(string(kind), func() (interface{}, error) {
		// The load outlives any single caller so waiters are not failed by
		// the first caller going away.
		return s.load(context.WithoutCancel(ctx), kind)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			s.errorCount.Add(1)
			return nil, res.Err
		}
		return res.Val.(domain.EvidenceCatalog), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *CatalogService) load(ctx context.Context, kind domain.VariantKind) (domain.EvidenceCatalog, error) {
	logger := s.logger.WithField("variant_kind", kind)

	if s.shared != nil {
		catalog, found, err := s.shared.Get(ctx, kind)
		if err != nil {
			logger.WithError(err).Warn("Failed to read catalog from shared cache")
		} else if found {
			s.redisHits.Add(1)
			logger.WithField("cache_tier", "redis").Debug("Catalog cache hit")
			s.memory.Add(kind, catalog)
			return catalog, nil
		}
	}

	s.backendLoads.Add(1)
	catalog, err := s.source.FetchCatalog(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to load evidence catalog for %s: %w", kind, err)
	}

	s.memory.Add(kind, catalog)
	if s.shared != nil {
		if err := s.shared.Set(ctx, kind, catalog, s.ttl); err != nil {
			logger.WithError(err).Warn("Failed to store catalog in shared cache")
		}
	}

	logger.WithField("sections", len(catalog)).Info("Loaded evidence catalog")
	return catalog, nil
}

// Invalidate drops the in-memory catalog of a kind
func (s *CatalogService) Invalidate(kind domain.VariantKind) {
	s.memory.Remove(kind)
}

// Stats returns cache performance statistics
func (s *CatalogService) Stats() CatalogStats {
	return CatalogStats{
		MemoryHits:    s.memoryHits.Load(),
		RedisHits:     s.redisHits.Load(),
		BackendLoads:  s.backendLoads.Load(),
		TotalRequests: s.totalRequests.Load(),
		ErrorCount:    s.errorCount.Load(),
		LastReset:     s.lastReset,
	}
}
