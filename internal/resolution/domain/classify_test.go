package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name        string
		similarity  float64
		alternative bool
		want        Tier
	}{
		{"exact match", 1.0, false, TierAcceptedOriginal},
		{"at original threshold", 0.95, false, TierAcceptedOriginal},
		{"just below original threshold", 0.9499, false, TierMinorEdit},
		{"at minor threshold", 0.80, false, TierMinorEdit},
		{"just below minor threshold", 0.7999, false, TierUserProvided},
		{"no similarity", 0.0, false, TierUserProvided},
		{"alternative wins over low similarity", 0.1, true, TierAcceptedAlternative},
		{"alternative wins over high similarity", 0.99, true, TierAcceptedAlternative},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.similarity, tc.alternative, 0.95, 0.80))
		})
	}
}

func TestTierSuccess(t *testing.T) {
	for _, tier := range []Tier{TierAcceptedOriginal, TierMinorEdit, TierAcceptedAlternative} {
		assert.True(t, tier.Success(), "expected %s to count as success", tier)
	}
	assert.False(t, TierUserProvided.Success())
}
