package services

import (
	"particle-universe/domain/config"
	"particle-universe/domain/core/valueobjects"
)

const aggressionTrait = 2

// CompatibilityEvaluator scores how well two trait vectors fit together.
//
// The base score is the weighted mean per-trait similarity
//
//	S = sum(w_i * (1 - |a_i - b_i|)) / sum(w_i)
//
// and the pair's peak aggression amplifies whatever divergence remains:
//
//	c = clamp(S - k * max(aggr_a, aggr_b) * (1 - S), 0, 1)
//
// Identical vectors score exactly 1. The score is symmetric and never grows
// as any trait moves further apart.
type CompatibilityEvaluator struct {
	weights [valueobjects.TraitCount]float64
	penalty float64
}

// NewCompatibilityEvaluator creates an evaluator from configured weights
func NewCompatibilityEvaluator(cfg config.CompatibilityConfig) *CompatibilityEvaluator {
	return &CompatibilityEvaluator{
		weights: cfg.Weights(),
		penalty: cfg.AggressionPenalty,
	}
}

// Evaluate returns the compatibility of a and b in [0,1]
func (e *CompatibilityEvaluator) Evaluate(a, b valueobjects.TraitVector) float64 {
	av, bv := a.Values(), b.Values()

	var num, den float64
	for i, w := range e.weights {
		d := av[i] - bv[i]
		if d < 0 {
			d = -d
		}
		num += w * (1 - d)
		den += w
	}
	if den == 0 {
		return 0
	}
	similarity := num / den

	peak := av[aggressionTrait]
	if bv[aggressionTrait] > peak {
		peak = bv[aggressionTrait]
	}

	score := similarity - e.penalty*peak*(1-similarity)
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}
