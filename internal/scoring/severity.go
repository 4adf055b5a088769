// Package scoring turns ACMG CNV section evaluations and the risk model's
// probability into severity verdicts. Everything here is a pure function of its
// inputs; callers own all state.
package scoring

import (
	"github.com/cnv-acmg-classifier/internal/domain"
)

// Severity thresholds on the point scale of the ACMG CNV guidelines.
const (
	likelyPathogenicCeiling = 0.99
	unknownCeiling          = 0.89
	likelyBenignCeiling     = -0.89
	benignCeiling           = -0.99
)

var tiers = map[domain.SeverityLabel]domain.DisplayTier{
	domain.SeverityPathogenic:       domain.TierPathogenic,
	domain.SeverityLikelyPathogenic: domain.TierLikelyPathogenic,
	domain.SeverityUnknown:          domain.TierUnknown,
	domain.SeverityLikelyBenign:     domain.TierLikelyBenign,
	domain.SeverityBenign:           domain.TierBenign,
}

// Classify maps a score to its severity.
//
// The checks run in descending order and each one that holds overwrites the
// previous verdict, so the lowest matching ceiling wins: -1.5 satisfies all
// four ceilings and ends up Benign. Do not turn this into an else-if ladder.
func Classify(score float64) domain.ScoreSeverity {
	label := domain.SeverityPathogenic
	if score <= likelyPathogenicCeiling {
		label = domain.SeverityLikelyPathogenic
	}
	if score <= unknownCeiling {
		label = domain.SeverityUnknown
	}
	if score <= likelyBenignCeiling {
		label = domain.SeverityLikelyBenign
	}
	if score <= benignCeiling {
		label = domain.SeverityBenign
	}

	return domain.ScoreSeverity{
		Score:       score,
		Label:       label,
		DisplayTier: tiers[label],
	}
}
