package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateCost(t *testing.T) {
	cases := []struct {
		name     string
		provider Provider
		input    int64
		output   int64
		searches int64
		want     float64
	}{
		{"gemini one million each way", ProviderGemini, 1_000_000, 1_000_000, 0, 0.375},
		{"openai small call", ProviderOpenAI, 1000, 500, 0, 0.0075},
		{"claude small call", ProviderClaude, 1000, 1000, 0, 0.018},
		{"serpapi single search default", ProviderSerpapi, 0, 0, 0, 0.01},
		{"serpapi multiple searches", ProviderSerpapi, 0, 0, 3, 0.03},
		{"free provider", ProviderCrossref, 5000, 5000, 0, 0},
		{"cache hit", ProviderCache, 0, 0, 0, 0},
		{"zero tokens", ProviderOpenAI, 0, 0, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CalculateCost(tc.provider, tc.input, tc.output, tc.searches))
		})
	}
}

func TestCalculateCostRounding(t *testing.T) {
	// 2 input tokens at $0.075/1M lands exactly on the 8th decimal.
	assert.Equal(t, 0.00000015, CalculateCost(ProviderGemini, 2, 0, 0))
}
