package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mwaldstein/qipu-sub002/pkg/ontology"
)

type uniformCosts float64

func (u uniformCosts) LinkCost(string) float64 { return float64(u) }

func TestValuePenalty(t *testing.T) {
	assert.InDelta(t, 1.0, ValuePenalty(100), 1e-12)
	assert.InDelta(t, 1.5, ValuePenalty(50), 1e-12)
	assert.InDelta(t, 2.0, ValuePenalty(0), 1e-12)
	assert.InDelta(t, 2.0, ValuePenalty(-10), 1e-12, "clamped")
	assert.InDelta(t, 1.0, ValuePenalty(250), 1e-12, "clamped")
}

func TestEdgeCost(t *testing.T) {
	ont := ontology.Default()

	tests := []struct {
		name     string
		linkType string
		value    int
		costs    CostTable
		mode     CostMode
		want     float64
	}{
		{"argumentative at default value", "supports", 50, ont, CostWeighted, 1.5},
		{"structural at default value", "part-of", 50, ont, CostWeighted, 0.75},
		{"identity at full value", "same-as", 100, ont, CostWeighted, 0.5},
		{"unknown type at zero value", "mentions", 0, ont, CostWeighted, 2.0},
		{"ignore value", "part-of", 0, ont, CostIgnoreValue, 0.5},
		{"unweighted", "part-of", 0, ont, CostUnweighted, 1.0},
		{"nil table uses standard costs", "follows", 100, nil, CostWeighted, 0.5},
		{"override table", "part-of", 50, uniformCosts(2.0), CostWeighted, 3.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EdgeCost(tt.linkType, tt.value, tt.costs, tt.mode)
			assert.InDelta(t, tt.want, float64(got), 1e-12)
		})
	}
}

func TestEdgeCostPrefersHigherValue(t *testing.T) {
	ont := ontology.Default()
	high := EdgeCost("related", 90, ont, CostWeighted)
	low := EdgeCost("related", 10, ont, CostWeighted)
	assert.Less(t, float64(high), float64(low))
}
