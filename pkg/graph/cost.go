package graph

import (
	"github.com/mwaldstein/qipu-sub002/pkg/ontology"
)

// HopCost is an accumulated traversal cost. With unit edge costs it equals
// the hop count.
type HopCost float64

// costEpsilon absorbs float drift when comparing accumulated costs.
const costEpsilon = 1e-9

// CostMode selects how EdgeCost weighs an edge.
type CostMode uint8

const (
	// CostWeighted multiplies the link-type cost by the target value penalty.
	CostWeighted CostMode = iota
	// CostIgnoreValue uses the link-type cost alone.
	CostIgnoreValue
	// CostUnweighted makes every edge cost exactly 1.
	CostUnweighted
)

// CostTable resolves the base cost of a link type.
type CostTable interface {
	LinkCost(linkType string) float64
}

// ValuePenalty returns the cost multiplier for reaching a note of the given
// value: 1.0 at value 100, 2.0 at value 0. Values are clamped to 0..100.
func ValuePenalty(targetValue int) float64 {
	switch {
	case targetValue < 0:
		targetValue = 0
	case targetValue > 100:
		targetValue = 100
	}
	return 1.0 + float64(100-targetValue)/100.0
}

// EdgeCost computes the cost of following an edge of linkType into a note
// with targetValue. A nil table falls back to the standard link costs.
func EdgeCost(linkType string, targetValue int, costs CostTable, mode CostMode) HopCost {
	if mode == CostUnweighted {
		return 1
	}

	var base float64
	if costs != nil {
		base = costs.LinkCost(linkType)
	} else {
		base = ontology.StandardCost(linkType)
	}

	if mode == CostIgnoreValue {
		return HopCost(base)
	}
	return HopCost(base * ValuePenalty(targetValue))
}
