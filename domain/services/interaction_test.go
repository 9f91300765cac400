package services_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"particle-universe/domain/config"
	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"
	"particle-universe/domain/services"
	pkgerrors "particle-universe/pkg/errors"
	"particle-universe/tests/fixtures"
)

func newResolver(t *testing.T, mutate func(*config.SimulationConfig)) *services.InteractionResolver {
	t.Helper()
	cfg := config.DefaultSimulationConfig()
	cfg.World.Width, cfg.World.Height = 100, 100
	cfg.Interaction.Radius = 10
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())
	return services.NewInteractionResolver(cfg.Interaction, torus(t, 100, 100), services.NewCompatibilityEvaluator(cfg.Compatibility))
}

func traits(curiosity, social, aggression, stability, growth float64) valueobjects.TraitVector {
	return valueobjects.TraitVector{
		Curiosity:       curiosity,
		SocialAffinity:  social,
		Aggression:      aggression,
		Stability:       stability,
		GrowthPotential: growth,
	}
}

func pair(a *entities.Particle, ta valueobjects.TraitVector, b *entities.Particle, tb valueobjects.TraitVector) (services.Candidate, services.Candidate) {
	return services.Candidate{Particle: a, Traits: ta}, services.Candidate{Particle: b, Traits: tb}
}

func TestResolver_MergeScenario(t *testing.T) {
	// Arrange
	resolver := newResolver(t, nil)
	a := fixtures.NewParticleBuilder().WithID(fixtures.ID(1)).WithPosition(20, 20).WithMass(10).WithEnergy(5).MustBuild()
	b := fixtures.NewParticleBuilder().WithID(fixtures.ID(2)).WithPosition(25, 20).WithMass(10).WithEnergy(5).MustBuild()
	ca, cb := pair(a, traits(0.9, 0.5, 0.2, 0.5, 0.5), b, traits(0.85, 0.5, 0.2, 0.5, 0.5))

	// Act
	out, err := resolver.Resolve(ca, cb, fixtures.FixedNow)

	// Assert
	require.NoError(t, err)
	merge, ok := out.(services.MergeOutcome)
	require.True(t, ok, "got %T", out)
	assert.GreaterOrEqual(t, merge.Compatibility(), 0.8)
	assert.Equal(t, a.ID(), merge.Survivor)
	assert.Equal(t, b.ID(), merge.Absorbed)
	assert.Equal(t, 20.0, a.Mass())
	assert.Equal(t, 10.0, a.Energy())
	assert.InDelta(t, 22.5, a.Position().X, 1e-9)
	assert.Equal(t, entities.StateExpired, b.State())
	assert.Equal(t, entities.ReasonMerged, b.ExpiryReason())
}

func TestResolver_MergeHeavierSurvivesAndMomentumIsConserved(t *testing.T) {
	resolver := newResolver(t, nil)
	light := fixtures.NewParticleBuilder().WithID(fixtures.ID(1)).WithPosition(14, 10).WithMass(10).WithVelocity(-1, 0).MustBuild()
	heavy := fixtures.NewParticleBuilder().WithID(fixtures.ID(2)).WithPosition(10, 10).WithMass(30).WithVelocity(1, 0).MustBuild()
	ca, cb := pair(light, fixtures.Traits(0.5), heavy, fixtures.Traits(0.5))

	out, err := resolver.Resolve(ca, cb, fixtures.FixedNow)

	require.NoError(t, err)
	merge := out.(services.MergeOutcome)
	assert.Equal(t, heavy.ID(), merge.Survivor)
	assert.Equal(t, 40.0, heavy.Mass())
	assert.InDelta(t, 11, heavy.Position().X, 1e-9)
	assert.InDelta(t, 0.5, heavy.Velocity().X, 1e-12)
	assert.True(t, light.IsExpired())
}

func TestResolver_MergeAcrossSeam(t *testing.T) {
	resolver := newResolver(t, nil)
	a := fixtures.NewParticleBuilder().WithID(fixtures.ID(1)).WithPosition(1, 50).MustBuild()
	b := fixtures.NewParticleBuilder().WithID(fixtures.ID(2)).WithPosition(99, 50).MustBuild()
	ca, cb := pair(a, fixtures.Traits(0.5), b, fixtures.Traits(0.5))

	_, err := resolver.Resolve(ca, cb, fixtures.FixedNow)

	require.NoError(t, err)
	assert.InDelta(t, 0, a.Position().X, 1e-9)
	assert.Equal(t, 50.0, a.Position().Y)
}

func TestResolver_MergeBlendsTraitsByMassAndEnergy(t *testing.T) {
	resolver := newResolver(t, nil)
	a := fixtures.NewParticleBuilder().WithID(fixtures.ID(1)).WithPosition(10, 10).WithMass(3).WithEnergy(1).MustBuild()
	b := fixtures.NewParticleBuilder().WithID(fixtures.ID(2)).WithPosition(12, 10).WithMass(1).WithEnergy(0).MustBuild()
	ca, cb := pair(a, traits(0.6, 0.5, 0.2, 0.5, 0.5), b, traits(0.4, 0.5, 0.2, 0.5, 0.5))

	out, err := resolver.Evaluate(ca, cb)

	require.NoError(t, err)
	merge := out.(services.MergeOutcome)
	// weights 4 and 1
	assert.InDelta(t, 0.56, merge.BlendedTraits.Curiosity, 1e-12)
}

func TestResolver_EnergyCapBlocksMerge(t *testing.T) {
	resolver := newResolver(t, nil)
	a := fixtures.NewParticleBuilder().WithID(fixtures.ID(1)).WithPosition(10, 10).WithEnergy(60).MustBuild()
	b := fixtures.NewParticleBuilder().WithID(fixtures.ID(2)).WithPosition(15, 10).WithEnergy(60).MustBuild()
	ca, cb := pair(a, fixtures.Traits(0.5), b, fixtures.Traits(0.5))

	out, err := resolver.Evaluate(ca, cb)

	require.NoError(t, err)
	assert.Equal(t, valueobjects.InteractionAttract, out.Type())
}

func TestResolver_Bond(t *testing.T) {
	// Arrange
	resolver := newResolver(t, nil)
	a := fixtures.NewParticleBuilder().WithID(fixtures.ID(1)).WithPosition(10, 10).WithVelocity(1, 0).MustBuild()
	b := fixtures.NewParticleBuilder().WithID(fixtures.ID(2)).WithPosition(15, 10).WithVelocity(-1, 0).MustBuild()
	ca, cb := pair(a, fixtures.Traits(0.5), b, traits(0, 0, 0.5, 0.5, 0.5))

	// Act
	out, err := resolver.Resolve(ca, cb, fixtures.FixedNow)

	// Assert
	require.NoError(t, err)
	require.IsType(t, services.BondOutcome{}, out)
	assert.InDelta(t, 0.5, a.Velocity().X, 1e-12)
	assert.InDelta(t, -0.5, b.Velocity().X, 1e-12)
	assert.InDelta(t, 4.9, a.Energy(), 1e-12)
	assert.InDelta(t, 4.9, b.Energy(), 1e-12)
	assert.Equal(t, 10.0, a.Mass())
}

func TestResolver_RepelOnLowCompatibility(t *testing.T) {
	resolver := newResolver(t, nil)
	a := fixtures.NewParticleBuilder().WithID(fixtures.ID(1)).WithPosition(10, 10).MustBuild()
	b := fixtures.NewParticleBuilder().WithID(fixtures.ID(2)).WithPosition(15, 10).MustBuild()
	ca, cb := pair(a, fixtures.Traits(0), b, fixtures.Traits(1))

	out, err := resolver.Resolve(ca, cb, fixtures.FixedNow)

	require.NoError(t, err)
	repel := out.(services.RepelOutcome)
	assert.False(t, repel.Aggressive)
	// 5 * (1/5 - 1/10)
	assert.InDelta(t, 0.5, repel.Impulse, 1e-12)
	assert.InDelta(t, -0.05, a.Velocity().X, 1e-12)
	assert.InDelta(t, 0.05, b.Velocity().X, 1e-12)
}

func TestResolver_RepelOnAggression(t *testing.T) {
	resolver := newResolver(t, nil)
	a := fixtures.NewParticleBuilder().WithID(fixtures.ID(1)).WithPosition(10, 10).MustBuild()
	b := fixtures.NewParticleBuilder().WithID(fixtures.ID(2)).WithPosition(10, 16).MustBuild()
	ca, cb := pair(a, fixtures.Traits(0.8), b, traits(0, 0, 0.8, 0.8, 0.8))

	out, err := resolver.Evaluate(ca, cb)

	require.NoError(t, err)
	repel := out.(services.RepelOutcome)
	assert.True(t, repel.Aggressive)
	assert.Greater(t, repel.Compatibility(), 0.3)
	assert.Equal(t, valueobjects.Vec(0, 1), repel.Direction)
}

func TestResolver_RepelImpulseBounds(t *testing.T) {
	resolver := newResolver(t, nil)
	hostile, friendly := fixtures.Traits(0), fixtures.Traits(1)

	t.Run("zero distance stays finite", func(t *testing.T) {
		a := fixtures.NewParticleBuilder().WithID(fixtures.ID(1)).WithPosition(10, 10).MustBuild()
		b := fixtures.NewParticleBuilder().WithID(fixtures.ID(2)).WithPosition(10, 10).MustBuild()
		ca, cb := pair(a, hostile, b, friendly)

		out, err := resolver.Evaluate(ca, cb)

		require.NoError(t, err)
		assert.InDelta(t, 4.5, out.Strength(), 1e-12)
	})

	t.Run("vanishes at the radius", func(t *testing.T) {
		a := fixtures.NewParticleBuilder().WithID(fixtures.ID(1)).WithPosition(10, 10).MustBuild()
		b := fixtures.NewParticleBuilder().WithID(fixtures.ID(2)).WithPosition(20, 10).MustBuild()
		ca, cb := pair(a, hostile, b, friendly)

		out, err := resolver.Evaluate(ca, cb)

		require.NoError(t, err)
		assert.InDelta(t, 0, out.Strength(), 1e-12)
	})
}

func TestResolver_Attract(t *testing.T) {
	resolver := newResolver(t, nil)
	a := fixtures.NewParticleBuilder().WithID(fixtures.ID(1)).WithPosition(10, 10).MustBuild()
	b := fixtures.NewParticleBuilder().WithID(fixtures.ID(2)).WithPosition(15, 10).MustBuild()
	ca, cb := pair(a, traits(0.5, 0.5, 0.1, 0.5, 0.5), b, traits(0, 0, 0.1, 0, 0))

	out, err := resolver.Resolve(ca, cb, fixtures.FixedNow)

	require.NoError(t, err)
	attract := out.(services.AttractOutcome)
	c := attract.Compatibility()
	assert.InDelta(t, 0.56, c, 1e-12)
	assert.InDelta(t, 2*c/25, attract.Impulse, 1e-12)
	assert.Greater(t, a.Velocity().X, 0.0)
	assert.Less(t, b.Velocity().X, 0.0)
}

func TestResolver_NoInteraction(t *testing.T) {
	t.Run("outside radius", func(t *testing.T) {
		resolver := newResolver(t, nil)
		a := fixtures.NewParticleBuilder().WithID(fixtures.ID(1)).WithPosition(10, 10).MustBuild()
		b := fixtures.NewParticleBuilder().WithID(fixtures.ID(2)).WithPosition(30, 10).MustBuild()
		ca, cb := pair(a, fixtures.Traits(0.5), b, fixtures.Traits(0.5))

		out, err := resolver.Resolve(ca, cb, fixtures.FixedNow)

		require.NoError(t, err)
		assert.Equal(t, valueobjects.InteractionNone, out.Type())
		assert.Equal(t, 10.0, a.Mass())
		assert.True(t, b.IsActive())
	})

	t.Run("between repel threshold and attraction floor", func(t *testing.T) {
		resolver := newResolver(t, func(c *config.SimulationConfig) {
			c.Interaction.MergeThreshold = 0.99
			c.Interaction.BondThreshold = 0.95
			c.Interaction.AttractionFloor = 0.9
			c.Interaction.RepelThreshold = 0.1
		})
		a := fixtures.NewParticleBuilder().WithID(fixtures.ID(1)).WithPosition(10, 10).WithVelocity(0.3, 0).MustBuild()
		b := fixtures.NewParticleBuilder().WithID(fixtures.ID(2)).WithPosition(15, 10).MustBuild()
		ca, cb := pair(a, traits(0.5, 0.5, 0.1, 0.5, 0.5), b, traits(0, 0, 0.1, 0, 0))

		out, err := resolver.Resolve(ca, cb, fixtures.FixedNow)

		require.NoError(t, err)
		assert.IsType(t, services.NoInteraction{}, out)
		assert.Equal(t, 0.3, a.Velocity().X)
	})
}

func TestResolver_InvalidPair(t *testing.T) {
	resolver := newResolver(t, nil)
	a := fixtures.NewParticleBuilder().WithID(fixtures.ID(1)).MustBuild()
	decaying := fixtures.NewParticleBuilder().WithID(fixtures.ID(2)).WithState(entities.StateDecaying).MustBuild()

	_, err := resolver.Evaluate(services.Candidate{Particle: a}, services.Candidate{Particle: a})
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidPair))

	_, err = resolver.Evaluate(services.Candidate{Particle: a}, services.Candidate{Particle: decaying})
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidPair))
}

func TestResolver_Deterministic(t *testing.T) {
	resolver := newResolver(t, nil)
	build := func() (services.Candidate, services.Candidate) {
		a := fixtures.NewParticleBuilder().WithID(fixtures.ID(1)).WithPosition(10, 10).WithVelocity(0.2, -0.1).MustBuild()
		b := fixtures.NewParticleBuilder().WithID(fixtures.ID(2)).WithPosition(13, 14).WithVelocity(-0.4, 0).MustBuild()
		return pair(a, traits(0.7, 0.2, 0.4, 0.9, 0.1), b, traits(0.1, 0.6, 0.5, 0.3, 0.8))
	}

	a1, b1 := build()
	a2, b2 := build()
	out1, err1 := resolver.Resolve(a1, b1, fixtures.FixedNow)
	out2, err2 := resolver.Resolve(a2, b2, fixtures.FixedNow)

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, out1, out2)
	assert.Equal(t, a1.Particle.Velocity(), a2.Particle.Velocity())
	assert.Equal(t, b1.Particle.Velocity(), b2.Particle.Velocity())
}
