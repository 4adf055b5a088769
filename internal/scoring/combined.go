package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/cnv-acmg-classifier/internal/domain"
)

// DefaultPrecision is the number of decimals combined scores are shown with.
const DefaultPrecision = 2

// riskMidpoint is the probability at which the risk model is neutral.
const riskMidpoint = 0.5

// Combined is the blended ACMG and risk-model verdict.
type Combined struct {
	ACMGScore       float64                    `json:"acmg_score"`
	RiskProbability float64                    `json:"risk_probability"`
	Strategy        domain.CombinationStrategy `json:"strategy"`
	CombinedScore   float64                    `json:"combined_score"`
	Severity        domain.ScoreSeverity       `json:"severity"`
}

// Combine shifts the ACMG score by the risk model's deviation from the
// midpoint, weighted by the strategy: acmg + r*(risk-0.5).
func Combine(acmgScore, riskProbability float64, strategy domain.CombinationStrategy) (Combined, error) {
	if !strategy.IsValid() {
		return Combined{}, domain.NewValidationError("strategy", "weight must be 0, 1.1 or 2.2", float64(strategy))
	}

	score := acmgScore + float64(strategy)*(riskProbability-riskMidpoint)
	return Combined{
		ACMGScore:       acmgScore,
		RiskProbability: riskProbability,
		Strategy:        strategy,
		CombinedScore:   score,
		Severity:        Classify(score),
	}, nil
}

// Round rounds half away from zero to the given number of decimals. It is for
// display only; classification always uses the unrounded score. Ties are
// judged on the shortest decimal form of x, so 1.005 rounds to 1.01.
func Round(x float64, precision int) float64 {
	if precision < 0 {
		precision = 0
	}
	rounded, _ := decimal.NewFromFloat(x).Round(int32(precision)).Float64()
	return rounded
}
