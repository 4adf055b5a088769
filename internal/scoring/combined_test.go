package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnv-acmg-classifier/internal/domain"
)

func TestCombine(t *testing.T) {
	tests := []struct {
		name     string
		acmg     float64
		risk     float64
		strategy domain.CombinationStrategy
		want     float64
		label    domain.SeverityLabel
	}{
		{"balanced tips into pathogenic", 0.99, 0.8, domain.StrategyBalanced, 1.32, domain.SeverityPathogenic},
		{"conservative ignores risk", 0.99, 0.8, domain.StrategyConservative, 0.99, domain.SeverityLikelyPathogenic},
		{"progressive", 0, 0.1, domain.StrategyProgressive, -0.88, domain.SeverityUnknown},
		{"neutral risk", -1, 0.5, domain.StrategyProgressive, -1, domain.SeverityBenign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Combine(tt.acmg, tt.risk, tt.strategy)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got.CombinedScore, 1e-9)
			assert.Equal(t, tt.label, got.Severity.Label)
			assert.Equal(t, tt.strategy, got.Strategy)
		})
	}
}

func TestCombine_InvalidStrategy(t *testing.T) {
	_, err := Combine(0.5, 0.5, domain.CombinationStrategy(1.5))
	assert.Error(t, err)
}

func TestCombine_Deterministic(t *testing.T) {
	a, err := Combine(0.42, 0.73, domain.StrategyBalanced)
	require.NoError(t, err)
	b, err := Combine(0.42, 0.73, domain.StrategyBalanced)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRound(t *testing.T) {
	tests := []struct {
		in        float64
		precision int
		want      float64
	}{
		{1.3249, 2, 1.32},
		{0.125, 2, 0.13},
		{-0.125, 2, -0.13},
		{2.5, 0, 3},
		{-2.5, 0, -3},
		{1.23456, 3, 1.235},
		{7.7, -1, 8},
		{1.005, 2, 1.01},
		{2.675, 2, 2.68},
		{-1.005, 2, -1.01},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Round(tt.in, tt.precision), "Round(%v, %d)", tt.in, tt.precision)
	}
}
