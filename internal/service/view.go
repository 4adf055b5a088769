package service

import (
	"time"

	"github.com/cnv-acmg-classifier/internal/domain"
	"github.com/cnv-acmg-classifier/internal/scoring"
)

// StrategyView describes the selected combination strategy
type StrategyView struct {
	Name        string  `json:"name"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
}

// DisplayValues are the rounded numbers shown to users. Classification is
// always done on the unrounded values.
type DisplayValues struct {
	ACMGScore       float64 `json:"acmg_score"`
	RiskProbability float64 `json:"risk_probability"`
	CombinedScore   float64 `json:"combined_score"`
}

// View is everything a client needs to render a session
type View struct {
	SessionID    string                 `json:"session_id"`
	Locus        *domain.Locus          `json:"locus,omitempty"`
	Nomenclature string                 `json:"nomenclature,omitempty"`
	Generation   uint64                 `json:"generation"`
	AcceptedAt   *time.Time             `json:"accepted_at,omitempty"`
	ACMG         *scoring.ACMGSummary   `json:"acmg,omitempty"`
	Risk         *domain.RiskEstimate   `json:"risk,omitempty"`
	Combined     *scoring.Combined      `json:"combined,omitempty"`
	Display      *DisplayValues         `json:"display,omitempty"`
	Strategy     StrategyView           `json:"strategy"`
	Picks        map[int]string         `json:"picks"`
	Options      domain.EvidenceCatalog `json:"options,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// BuildView derives the rendered state from a snapshot, the catalog of its
// variant kind, the user's picks and the strategy. A nil snapshot yields a
// view with only the strategy filled in.
func BuildView(snapshot *domain.Snapshot, catalog domain.EvidenceCatalog, picks map[int]string, strategy domain.CombinationStrategy) (*View, error) {
	if picks == nil {
		picks = map[int]string{}
	}
	view := &View{
		Strategy: StrategyView{
			Name:        strategy.Name(),
			Weight:      float64(strategy),
			Description: strategy.Description(),
		},
		Picks: picks,
	}
	if snapshot == nil {
		return view, nil
	}

	summary := scoring.Evaluate(&snapshot.Sections, catalog, picks)
	combined, err := scoring.Combine(summary.TotalScore, snapshot.Risk.OverallRisk, strategy)
	if err != nil {
		return nil, err
	}

	locus := snapshot.Locus
	acceptedAt := snapshot.AcceptedAt
	risk := snapshot.Risk

	view.Locus = &locus
	view.Nomenclature = locus.Nomenclature()
	view.Generation = snapshot.Generation
	view.AcceptedAt = &acceptedAt
	view.ACMG = &summary
	view.Risk = &risk
	view.Combined = &combined
	view.Options = catalog
	view.Display = &DisplayValues{
		ACMGScore:       scoring.Round(summary.TotalScore, scoring.DefaultPrecision),
		RiskProbability: scoring.Round(risk.OverallRisk, scoring.DefaultPrecision),
		CombinedScore:   scoring.Round(combined.CombinedScore, scoring.DefaultPrecision),
	}
	return view, nil
}
