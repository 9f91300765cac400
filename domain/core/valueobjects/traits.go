package valueobjects

import (
	"fmt"

	pkgerrors "particle-universe/pkg/errors"
)

// TraitCount is the number of personality traits
const TraitCount = 5

// TraitVector holds the five personality traits, each in [0,1].
type TraitVector struct {
	Curiosity       float64 `json:"curiosity" yaml:"curiosity"`
	SocialAffinity  float64 `json:"socialAffinity" yaml:"socialAffinity"`
	Aggression      float64 `json:"aggression" yaml:"aggression"`
	Stability       float64 `json:"stability" yaml:"stability"`
	GrowthPotential float64 `json:"growthPotential" yaml:"growthPotential"`
}

// NewTraitVector creates a validated trait vector
func NewTraitVector(curiosity, socialAffinity, aggression, stability, growthPotential float64) (TraitVector, error) {
	tv := TraitVector{
		Curiosity:       curiosity,
		SocialAffinity:  socialAffinity,
		Aggression:      aggression,
		Stability:       stability,
		GrowthPotential: growthPotential,
	}
	if err := tv.Validate(); err != nil {
		return TraitVector{}, err
	}
	return tv, nil
}

// Validate checks every trait is inside [0,1]
func (t TraitVector) Validate() error {
	names := [TraitCount]string{"curiosity", "socialAffinity", "aggression", "stability", "growthPotential"}
	for i, v := range t.Values() {
		// NaN fails both comparisons
		if !(v >= 0 && v <= 1) {
			return pkgerrors.NewValidationError(fmt.Sprintf("trait %s must be within [0,1], got %v", names[i], v))
		}
	}
	return nil
}

// Values returns the traits in canonical order:
// curiosity, socialAffinity, aggression, stability, growthPotential.
func (t TraitVector) Values() [TraitCount]float64 {
	return [TraitCount]float64{t.Curiosity, t.SocialAffinity, t.Aggression, t.Stability, t.GrowthPotential}
}

// Blend returns the weighted average of t and o.
// Non-positive total weight falls back to an even split.
func (t TraitVector) Blend(o TraitVector, wt, wo float64) TraitVector {
	total := wt + wo
	if !(total > 0) {
		wt, wo, total = 1, 1, 2
	}
	mix := func(a, b float64) float64 {
		return clamp01((a*wt + b*wo) / total)
	}
	return TraitVector{
		Curiosity:       mix(t.Curiosity, o.Curiosity),
		SocialAffinity:  mix(t.SocialAffinity, o.SocialAffinity),
		Aggression:      mix(t.Aggression, o.Aggression),
		Stability:       mix(t.Stability, o.Stability),
		GrowthPotential: mix(t.GrowthPotential, o.GrowthPotential),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
