package domain

import (
	"context"
)

// EvaluationBackend performs the remote calls a submission is made of.
// Implementations return a *CallError for every failure.
type EvaluationBackend interface {
	EvaluateSection(ctx context.Context, section int, locus Locus) (*SectionResult, error)
	EvaluateRisk(ctx context.Context, locus Locus) (*RiskEstimate, error)
}

// CatalogSource loads the evidence options of every section for a variant kind
type CatalogSource interface {
	FetchCatalog(ctx context.Context, kind VariantKind) (EvidenceCatalog, error)
}

// CatalogProvider returns cached evidence catalogs
type CatalogProvider interface {
	Options(ctx context.Context, kind VariantKind) (EvidenceCatalog, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetBackendConfig() *BackendConfig
	GetCacheConfig() *CacheConfig
	GetFeedbackConfig() *FeedbackConfig
	Validate() error
}
