package scoring

import (
	"github.com/cnv-acmg-classifier/internal/domain"
)

// ACMGSummary is the guideline verdict over all five sections.
type ACMGSummary struct {
	TotalScore float64                         `json:"total_score"`
	Severity   domain.ScoreSeverity            `json:"severity"`
	Overridden []string                        `json:"overridden"`
	Sections   [domain.SectionCount]Resolution `json:"sections"`
}

// Aggregate sums the resolved sections and classifies the total.
//
// The five section slots always take part; a slot missing from resolved adds
// 0 and keys outside 1..5 are ignored. Overridden lists the backend's default
// option of each section the user changed, in section order.
func Aggregate(resolved map[int]Resolution) ACMGSummary {
	summary := ACMGSummary{Overridden: []string{}}

	for id := 1; id <= domain.SectionCount; id++ {
		res, ok := resolved[id]
		if !ok {
			res = Resolution{Section: id, Reason: domain.NoReason}
		}
		res.Section = id
		summary.Sections[id-1] = res
		summary.TotalScore += res.Score

		if res.Overridden {
			summary.Overridden = append(summary.Overridden, res.DefaultOption)
		}
	}

	summary.Severity = Classify(summary.TotalScore)
	return summary
}

// Evaluate resolves every section of a snapshot against the user's picks and
// aggregates the result. picks maps section id to the chosen option label; a
// label that is not in the catalog is scored as unresolvable.
func Evaluate(results *domain.SectionResults, catalog domain.EvidenceCatalog, picks map[int]string) ACMGSummary {
	resolved := make(map[int]Resolution, domain.SectionCount)

	for id := 1; id <= domain.SectionCount; id++ {
		serverDefault, _ := results.Get(id)

		var pick *domain.EvidenceOption
		if label, ok := picks[id]; ok {
			if opt, found := catalog.Find(id, label); found {
				pick = opt
			} else {
				pick = &domain.EvidenceOption{Label: label}
			}
		}

		resolved[id] = Resolve(id, catalog[id], serverDefault, pick)
	}

	return Aggregate(resolved)
}
