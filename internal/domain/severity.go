package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// SeverityLabel is the discrete verdict derived from a numeric score.
type SeverityLabel string

const (
	SeverityPathogenic       SeverityLabel = "Pathogenic"
	SeverityLikelyPathogenic SeverityLabel = "Likely Pathogenic"
	SeverityUnknown          SeverityLabel = "Unknown"
	SeverityLikelyBenign     SeverityLabel = "Likely Benign"
	SeverityBenign           SeverityLabel = "Benign"
)

// DisplayTier is an opaque styling token attached to a severity label.
type DisplayTier string

const (
	TierPathogenic       DisplayTier = "red"
	TierLikelyPathogenic DisplayTier = "tomato"
	TierUnknown          DisplayTier = "grey"
	TierLikelyBenign     DisplayTier = "palegreen"
	TierBenign           DisplayTier = "green"
)

// ScoreSeverity pairs a score with its classification. It is always derived
// from the score and never stored on its own.
type ScoreSeverity struct {
	Score       float64       `json:"score"`
	Label       SeverityLabel `json:"label"`
	DisplayTier DisplayTier   `json:"display_tier"`
}

// CombinationStrategy weights the risk estimate against the ACMG score.
type CombinationStrategy float64

const (
	StrategyConservative CombinationStrategy = 0
	StrategyBalanced     CombinationStrategy = 1.1
	StrategyProgressive  CombinationStrategy = 2.2
)

// Strategies lists the selectable strategies in slider order.
var Strategies = []CombinationStrategy{StrategyConservative, StrategyBalanced, StrategyProgressive}

// IsValid reports whether the weight is one of the named strategies
func (s CombinationStrategy) IsValid() bool {
	for _, v := range Strategies {
		if v == s {
			return true
		}
	}
	return false
}

// Name returns the user-facing strategy name
func (s CombinationStrategy) Name() string {
	switch s {
	case StrategyConservative:
		return "Conservative"
	case StrategyBalanced:
		return "Balanced"
	case StrategyProgressive:
		return "Progressive"
	}
	return fmt.Sprintf("Custom(%g)", float64(s))
}

// Description explains what the strategy relies on.
func (s CombinationStrategy) Description() string {
	switch s {
	case StrategyConservative:
		return "Take only ACMG criteria into account"
	case StrategyBalanced:
		return "ACMG criteria and machine learning with similar impact"
	case StrategyProgressive:
		return "Rely heavily on the machine learning approach"
	}
	return ""
}

// ParseStrategy accepts a strategy name or its numeric weight.
func ParseStrategy(s string) (CombinationStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "conservative":
		return StrategyConservative, nil
	case "balanced":
		return StrategyBalanced, nil
	case "progressive":
		return StrategyProgressive, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, NewValidationError("strategy", "must be conservative, balanced, progressive or their weight", s)
	}
	st := CombinationStrategy(f)
	if !st.IsValid() {
		return 0, NewValidationError("strategy", "weight must be 0, 1.1 or 2.2", s)
	}
	return st, nil
}
