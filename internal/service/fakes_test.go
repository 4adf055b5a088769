package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/cnv-acmg-classifier/internal/domain"
)

var testLocus = domain.Locus{Chromosome: "chr22", Start: 18660000, End: 21520000, VariantKind: domain.VariantKindLoss}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func floatPtr(v float64) *float64 {
	return &v
}

// fakeBackend answers section and risk calls from fixed tables. Sections
// listed in hang block until their context ends.
type fakeBackend struct {
	mu         sync.Mutex
	sections   map[int]domain.SectionResult
	sectionErr map[int]error
	risk       domain.RiskEstimate
	riskErr    error
	hang       map[int]bool
	hangRisk   bool
	calls      atomic.Int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		sections: map[int]domain.SectionResult{
			1: {Option: "1A", Score: 1, Reason: "Contains protein-coding genes"},
			2: {Option: "2A", Score: 0.5, Reason: "Overlaps an established HI region"},
			3: {Option: "3A", Score: -1, Reason: "0-24 genes"},
			4: {Option: "4O", Score: 0, Reason: "No case evidence"},
			5: {Option: "5A", Score: 0.49, Reason: "De novo"},
		},
		sectionErr: map[int]error{},
		risk:       domain.RiskEstimate{OverallRisk: 0.8, Severity: domain.RiskLikelyPathogenic},
		hang:       map[int]bool{},
	}
}

func (b *fakeBackend) EvaluateSection(ctx context.Context, section int, locus domain.Locus) (*domain.SectionResult, error) {
	b.calls.Add(1)

	b.mu.Lock()
	hang := b.hang[section]
	err := b.sectionErr[section]
	result := b.sections[section]
	b.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, domain.NewCallError(domain.CallTimeout, "GET", fmt.Sprintf("section%d", section), 0,
			fmt.Sprintf("Request GET section%d took too long. Aborting Request", section), ctx.Err())
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (b *fakeBackend) EvaluateRisk(ctx context.Context, locus domain.Locus) (*domain.RiskEstimate, error) {
	b.calls.Add(1)

	b.mu.Lock()
	hang := b.hangRisk
	err := b.riskErr
	risk := b.risk
	b.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, domain.NewCallError(domain.CallTimeout, "GET", "risk", 0, "Request GET risk took too long. Aborting Request", ctx.Err())
	}
	if err != nil {
		return nil, err
	}
	return &risk, nil
}

func (b *fakeBackend) setHang(section int, hang bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hang[section] = hang
}

// testCatalog is a small evidence catalog covering the options used in tests.
func testCatalog() domain.EvidenceCatalog {
	return domain.EvidenceCatalog{
		1: {
			{Label: "1A", SuggestedPoints: floatPtr(1), EvidenceText: "Contains protein-coding genes"},
			{Label: "1B", SuggestedPoints: floatPtr(-0.6), EvidenceText: "Does not contain protein-coding genes"},
		},
		2: {
			{Label: "2A", SuggestedPoints: floatPtr(0.5), EvidenceText: "Complete overlap of an established HI region"},
			{Label: "2E", MinScore: 0, MaxScore: 0.9, EvidenceText: "Both breakpoints within the same gene"},
		},
		3: {{Label: "3A", SuggestedPoints: floatPtr(-1)}},
		4: {{Label: "4O", SuggestedPoints: floatPtr(0)}},
		5: {{Label: "5A", SuggestedPoints: floatPtr(0.49)}},
	}
}

// staticCatalogs serves one catalog for every kind and counts lookups.
type staticCatalogs struct {
	catalog domain.EvidenceCatalog
	err     error
	calls   atomic.Int32
}

func (c *staticCatalogs) Options(ctx context.Context, kind domain.VariantKind) (domain.EvidenceCatalog, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.catalog, nil
}

// submitterFunc adapts a function to Submitter
type submitterFunc func(ctx context.Context, locus domain.Locus) (*domain.Snapshot, error)

func (f submitterFunc) Submit(ctx context.Context, locus domain.Locus) (*domain.Snapshot, error) {
	return f(ctx, locus)
}
