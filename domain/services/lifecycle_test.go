package services_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"particle-universe/domain/config"
	"particle-universe/domain/core/entities"
	"particle-universe/domain/events"
	"particle-universe/domain/services"
	"particle-universe/tests/fixtures"
)

func newLifecycle() *services.LifecycleManager {
	return services.NewLifecycleManager(config.LifecycleConfig{
		DecayInactivityThreshold: 24 * time.Hour,
		MaxDecayLevel:            3,
		DecayEnergyLoss:          1,
	})
}

func TestLifecycle_Apply(t *testing.T) {
	now := fixtures.FixedNow

	tests := []struct {
		name       string
		particle   *fixtures.ParticleBuilder
		transition services.Transition
		state      entities.ParticleState
		decayLevel int
	}{
		{
			name:       "recently active stays active",
			particle:   fixtures.NewParticleBuilder().WithLastInputAt(now.Add(-23 * time.Hour)),
			transition: services.TransitionNone,
			state:      entities.StateActive,
		},
		{
			name:       "exactly at the threshold stays active",
			particle:   fixtures.NewParticleBuilder().WithLastInputAt(now.Add(-24 * time.Hour)),
			transition: services.TransitionNone,
			state:      entities.StateActive,
		},
		{
			name:       "inactive beyond threshold starts decaying",
			particle:   fixtures.NewParticleBuilder().WithLastInputAt(now.Add(-25 * time.Hour)),
			transition: services.TransitionDecaying,
			state:      entities.StateDecaying,
			decayLevel: 1,
		},
		{
			name:       "never touched particle counts from creation",
			particle:   fixtures.NewParticleBuilder().WithoutInput().WithCreatedAt(now.Add(-48 * time.Hour)),
			transition: services.TransitionDecaying,
			state:      entities.StateDecaying,
			decayLevel: 1,
		},
		{
			name: "decaying keeps decaying",
			particle: fixtures.NewParticleBuilder().WithState(entities.StateDecaying).WithDecayLevel(1).
				WithLastInputAt(now.Add(-48 * time.Hour)),
			transition: services.TransitionDecayDeeper,
			state:      entities.StateDecaying,
			decayLevel: 2,
		},
		{
			name: "decaying past the maximum expires",
			particle: fixtures.NewParticleBuilder().WithState(entities.StateDecaying).WithDecayLevel(3).
				WithLastInputAt(now.Add(-96 * time.Hour)),
			transition: services.TransitionExpired,
			state:      entities.StateExpired,
			decayLevel: 4,
		},
		{
			name: "fresh input reactivates",
			particle: fixtures.NewParticleBuilder().WithState(entities.StateDecaying).WithDecayLevel(2).
				WithLastInputAt(now.Add(-time.Minute)),
			transition: services.TransitionReactivated,
			state:      entities.StateActive,
			decayLevel: 0,
		},
		{
			name:       "expired is left alone",
			particle:   fixtures.NewParticleBuilder().WithState(entities.StateExpired).WithLastInputAt(now.Add(-1000 * time.Hour)),
			transition: services.TransitionNone,
			state:      entities.StateExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			p := tt.particle.MustBuild()

			// Act
			transition, err := newLifecycle().Apply(p, now)

			// Assert
			require.NoError(t, err)
			assert.Equal(t, tt.transition, transition)
			assert.Equal(t, tt.state, p.State())
			assert.Equal(t, tt.decayLevel, p.DecayLevel())
		})
	}
}

func TestLifecycle_ExpiryCarriesInactivityReason(t *testing.T) {
	p := fixtures.NewParticleBuilder().WithState(entities.StateDecaying).WithDecayLevel(3).
		WithLastInputAt(fixtures.FixedNow.Add(-96 * time.Hour)).MustBuild()

	_, err := newLifecycle().Apply(p, fixtures.FixedNow)

	require.NoError(t, err)
	assert.Equal(t, entities.ReasonInactivity, p.ExpiryReason())
	evts := p.GetUncommittedEvents()
	require.Len(t, evts, 1)
	expired, ok := evts[0].(events.ParticleExpired)
	require.True(t, ok)
	assert.Equal(t, "inactivity", expired.Reason)
}

func TestLifecycle_DecayLevelOnlyResetsOnInput(t *testing.T) {
	// Arrange
	lifecycle := newLifecycle()
	p := fixtures.NewParticleBuilder().WithEnergy(10).WithLastInputAt(fixtures.FixedNow).MustBuild()
	now := fixtures.FixedNow

	// Act / Assert: tick every 12h without input, decay level must climb
	last := 0
	for p.IsActive() || p.State() == entities.StateDecaying {
		now = now.Add(12 * time.Hour)
		_, err := lifecycle.Apply(p, now)
		require.NoError(t, err)
		require.GreaterOrEqual(t, p.DecayLevel(), last)
		last = p.DecayLevel()

		if p.DecayLevel() == 2 && p.State() == entities.StateDecaying {
			// fresh input is the only way down
			require.NoError(t, p.RecordInput(now))
			assert.Equal(t, 0, p.DecayLevel())
			break
		}
	}
	assert.Equal(t, entities.StateActive, p.State())
	assert.Less(t, p.Energy(), 10.0)
}
