package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"particle-universe/application/ports"
	"particle-universe/application/services"
	"particle-universe/domain/config"
	"particle-universe/domain/core/aggregates"
	"particle-universe/domain/core/entities"
	"particle-universe/domain/core/valueobjects"
	"particle-universe/domain/events"
	"particle-universe/infrastructure/persistence/memory"
	pkgerrors "particle-universe/pkg/errors"
	"particle-universe/tests/fixtures"
	"particle-universe/tests/mocks"
)

type tickHarness struct {
	particles     *mocks.MockParticleRepository
	personalities *mocks.MockPersonalityStore
	states        *mocks.MockUniverseStateRepository
	publisher     *mocks.MockEventPublisher
	holder        *services.SnapshotHolder
	tuning        *config.Provider
	processor     *services.TickProcessor

	published []events.DomainEvent
}

func testConfig(mutate func(*config.SimulationConfig)) *config.SimulationConfig {
	cfg := config.DefaultSimulationConfig()
	cfg.World.Width, cfg.World.Height = 100, 100
	cfg.Interaction.Radius = 10
	if mutate != nil {
		mutate(cfg)
	}
	return cfg
}

func newTickHarness(t *testing.T, lock ports.TickLock, mutate func(*config.SimulationConfig)) *tickHarness {
	t.Helper()
	cfg := testConfig(mutate)
	require.NoError(t, cfg.Validate())

	h := &tickHarness{
		particles:     &mocks.MockParticleRepository{},
		personalities: &mocks.MockPersonalityStore{},
		states:        &mocks.MockUniverseStateRepository{},
		publisher:     &mocks.MockEventPublisher{},
		holder:        services.NewSnapshotHolder(),
		tuning:        config.NewProvider(cfg),
	}
	h.processor = services.NewTickProcessor(
		h.particles, h.personalities, h.states, h.publisher,
		lock, nil, h.tuning, h.holder, zap.NewNop(),
	).WithClock(func() time.Time { return fixtures.FixedNow })
	return h
}

// seed registers the population and its personality metrics
func (h *tickHarness) seed(particles []*entities.Particle, traits map[valueobjects.ParticleID]valueobjects.TraitVector) {
	h.particles.On("GetActiveParticles", mock.Anything).Return(particles, nil)
	for id, tv := range traits {
		h.personalities.On("GetLatestMetrics", mock.Anything, id).Return(fixtures.Metrics(id, tv), nil)
	}
}

// persistBatch behaves like a store that accepted the whole batch
func persistBatch(args mock.Arguments) {
	for _, p := range args.Get(1).([]*entities.Particle) {
		p.MarkPersisted(p.NextStoredVersion())
	}
}

func (h *tickHarness) commitSucceeds(fromTick int64) {
	if fromTick == 0 {
		h.states.On("GetLatest", mock.Anything, "default").Return(nil, nil)
	} else {
		state, _ := aggregates.ReconstructUniverseState("default", fromTick, fixtures.FixedNow.Add(-time.Hour), 0, 0, 0)
		h.states.On("GetLatest", mock.Anything, "default").Return(state, nil)
	}
	h.particles.On("UpdateParticlesBatch", mock.Anything, mock.Anything).Run(persistBatch).Return(nil)
	h.states.On("Save", mock.Anything, mock.Anything).Return(nil)
	h.publisher.On("PublishBatch", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { h.published = args.Get(1).([]events.DomainEvent) }).
		Return(nil)
}

func (h *tickHarness) eventsOfType(eventType string) []events.DomainEvent {
	var out []events.DomainEvent
	for _, e := range h.published {
		if e.GetEventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

func mergeablePair() (*entities.Particle, *entities.Particle, map[valueobjects.ParticleID]valueobjects.TraitVector) {
	a := fixtures.NewParticleBuilder().WithID(fixtures.ID(1)).WithUserID("user-a").WithPosition(20, 20).WithMass(10).WithEnergy(5).MustBuild()
	b := fixtures.NewParticleBuilder().WithID(fixtures.ID(2)).WithUserID("user-b").WithPosition(25, 20).WithMass(10).WithEnergy(5).MustBuild()
	tr := map[valueobjects.ParticleID]valueobjects.TraitVector{
		a.ID(): {Curiosity: 0.9, SocialAffinity: 0.5, Aggression: 0.2, Stability: 0.5, GrowthPotential: 0.5},
		b.ID(): {Curiosity: 0.85, SocialAffinity: 0.5, Aggression: 0.2, Stability: 0.5, GrowthPotential: 0.5},
	}
	return a, b, tr
}

func TestTickProcessor_MergeScenario(t *testing.T) {
	// Arrange
	h := newTickHarness(t, nil, nil)
	a, b, tr := mergeablePair()
	h.seed([]*entities.Particle{a, b}, tr)
	h.commitSucceeds(0)

	// Act
	report, err := h.processor.ProcessTick(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.TickNumber)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Active)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 1, report.Interactions)

	assert.Equal(t, 20.0, a.Mass())
	assert.Equal(t, entities.StateExpired, b.State())
	assert.Equal(t, entities.ReasonMerged, b.ExpiryReason())

	expired := h.eventsOfType(events.TypeParticleExpired)
	require.Len(t, expired, 1)
	assert.Equal(t, b.ID(), expired[0].(events.ParticleExpired).ParticleID)
	assert.Equal(t, "merged", expired[0].(events.ParticleExpired).Reason)

	merged := h.eventsOfType(events.TypeParticleMerged)
	require.Len(t, merged, 1)
	assert.Equal(t, 20.0, merged[0].(events.ParticleMerged).Mass)
	assert.Equal(t, int64(1), merged[0].(events.ParticleMerged).TickNumber)

	done := h.eventsOfType(events.TypeDailyProcessingCompleted)
	require.Len(t, done, 1)
	summary := done[0].(events.DailyProcessingCompleted)
	assert.Equal(t, 2, summary.ProcessedParticles)
	assert.Equal(t, 1, summary.ActiveParticles)
	assert.Equal(t, 1, summary.ExpiredParticles)

	assert.Len(t, h.published, 3)
	assert.Equal(t, 3, report.EventsPublished)

	h.states.AssertCalled(t, "Save", mock.Anything, mock.MatchedBy(func(s *aggregates.UniverseState) bool {
		return s.TickNumber() == 1 && s.ActiveCount() == 1 && s.InteractionCount() == 1
	}))
}

func TestTickProcessor_TickNumberComesFromStore(t *testing.T) {
	// Arrange
	h := newTickHarness(t, nil, nil)
	h.seed(nil, nil)
	h.commitSucceeds(41)

	// Act
	report, err := h.processor.ProcessTick(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(42), report.TickNumber)
	h.states.AssertCalled(t, "Save", mock.Anything, mock.MatchedBy(func(s *aggregates.UniverseState) bool {
		return s.TickNumber() == 42
	}))
}

func TestTickProcessor_ConcurrentTickRejected(t *testing.T) {
	// Arrange
	h := newTickHarness(t, nil, nil)
	a, b, tr := mergeablePair()
	started := make(chan struct{})
	release := make(chan struct{})

	h.particles.On("GetActiveParticles", mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return([]*entities.Particle{a, b}, nil).Once()
	for id, tv := range tr {
		h.personalities.On("GetLatestMetrics", mock.Anything, id).Return(fixtures.Metrics(id, tv), nil)
	}
	h.commitSucceeds(0)

	type result struct {
		report *services.TickReport
		err    error
	}
	first := make(chan result, 1)

	// Act
	go func() {
		report, err := h.processor.ProcessTick(context.Background())
		first <- result{report, err}
	}()
	<-started
	_, secondErr := h.processor.ProcessTick(context.Background())
	close(release)
	res := <-first

	// Assert
	require.Error(t, secondErr)
	assert.True(t, errors.Is(secondErr, pkgerrors.ErrConcurrentTickRejected))
	assert.True(t, pkgerrors.IsConcurrentTick(secondErr))

	require.NoError(t, res.err)
	assert.Equal(t, int64(1), res.report.TickNumber)
	h.particles.AssertNumberOfCalls(t, "GetActiveParticles", 1)
	h.particles.AssertNumberOfCalls(t, "UpdateParticlesBatch", 1)
	assert.Equal(t, 20.0, a.Mass())
}

func TestTickProcessor_DistributedLockContention(t *testing.T) {
	// Arrange
	lock := &mocks.MockTickLock{}
	lock.On("Acquire", mock.Anything, "default").Return(nil, pkgerrors.NewConcurrentTickError("default"))
	h := newTickHarness(t, lock, nil)

	// Act
	report, err := h.processor.ProcessTick(context.Background())

	// Assert
	assert.Nil(t, report)
	assert.True(t, pkgerrors.IsConcurrentTick(err))
	h.particles.AssertNotCalled(t, "GetActiveParticles", mock.Anything)
}

func TestTickProcessor_ReleasesDistributedLock(t *testing.T) {
	// Arrange
	released := false
	lock := &mocks.MockTickLock{}
	lock.On("Acquire", mock.Anything, "default").Return(ports.ReleaseFunc(func(context.Context) error {
		released = true
		return nil
	}), nil)
	h := newTickHarness(t, lock, nil)
	h.seed(nil, nil)
	h.commitSucceeds(0)

	// Act
	_, err := h.processor.ProcessTick(context.Background())

	// Assert
	require.NoError(t, err)
	assert.True(t, released)
}

func TestTickProcessor_PersistenceFailureAbortsTick(t *testing.T) {
	// Arrange
	h := newTickHarness(t, nil, nil)
	a, b, tr := mergeablePair()
	h.seed([]*entities.Particle{a, b}, tr)
	h.states.On("GetLatest", mock.Anything, "default").Return(nil, nil)
	h.particles.On("UpdateParticlesBatch", mock.Anything, mock.Anything).Return(errors.New("table unreachable"))

	// Act
	report, err := h.processor.ProcessTick(context.Background())

	// Assert
	assert.Nil(t, report)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgerrors.ErrPersistenceFailure))
	h.states.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	h.publisher.AssertNotCalled(t, "PublishBatch", mock.Anything, mock.Anything)
	assert.Nil(t, h.holder.InFlight())
}

func TestTickProcessor_StateSaveFailureRestoresParticles(t *testing.T) {
	// Arrange
	h := newTickHarness(t, nil, nil)
	a, b, tr := mergeablePair()
	h.seed([]*entities.Particle{a, b}, tr)
	h.states.On("GetLatest", mock.Anything, "default").Return(nil, nil)
	h.particles.On("UpdateParticlesBatch", mock.Anything, mock.Anything).Run(persistBatch).Return(nil)
	h.states.On("Save", mock.Anything, mock.Anything).Return(errors.New("conditional check failed"))

	// Act
	_, err := h.processor.ProcessTick(context.Background())

	// Assert
	require.Error(t, err)
	assert.True(t, pkgerrors.IsPersistence(err))
	h.publisher.AssertNotCalled(t, "PublishBatch", mock.Anything, mock.Anything)
	h.particles.AssertNumberOfCalls(t, "UpdateParticlesBatch", 2)

	restored := h.particles.Calls[len(h.particles.Calls)-1].Arguments.Get(1).([]*entities.Particle)
	require.Len(t, restored, 2)
	for _, p := range restored {
		assert.Equal(t, entities.StateActive, p.State())
		assert.Equal(t, 10.0, p.Mass())
	}
}

func TestTickProcessor_PartialBatchIsRolledBack(t *testing.T) {
	// Arrange
	h := newTickHarness(t, nil, nil)
	population := make([]*entities.Particle, 0, 150)
	originals := make(map[valueobjects.ParticleID]valueobjects.Vector2, 150)
	for i := 1; i <= 150; i++ {
		p := fixtures.NewParticleBuilder().WithID(fixtures.ID(i)).
			WithPosition(float64(i%10)*10, float64(i/10)*6).WithVelocity(1, 0).MustBuild()
		population = append(population, p)
		originals[p.ID()] = p.Position()
	}
	h.seed(population, nil)
	h.personalities.On("GetLatestMetrics", mock.Anything, mock.Anything).Return(nil, nil)
	h.states.On("GetLatest", mock.Anything, "default").Return(nil, nil)

	// the first 100 land, then the store gives up
	h.particles.On("UpdateParticlesBatch", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			for _, p := range args.Get(1).([]*entities.Particle)[:100] {
				p.MarkPersisted(p.NextStoredVersion())
			}
		}).
		Return(errors.New("transaction 2 failed")).Once()
	h.particles.On("UpdateParticlesBatch", mock.Anything, mock.Anything).Return(nil).Once()

	// Act
	report, err := h.processor.ProcessTick(context.Background())

	// Assert
	assert.Nil(t, report)
	assert.True(t, pkgerrors.IsPersistence(err))
	h.particles.AssertNumberOfCalls(t, "UpdateParticlesBatch", 2)
	h.states.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	h.publisher.AssertNotCalled(t, "PublishBatch", mock.Anything, mock.Anything)

	restored := h.particles.Calls[len(h.particles.Calls)-1].Arguments.Get(1).([]*entities.Particle)
	require.Len(t, restored, 100)
	for _, p := range restored {
		assert.Equal(t, originals[p.ID()], p.Position(), "rollback writes the tick-start copy")
		assert.Equal(t, 2, p.StoredVersion(), "rollback expects the version the tick wrote")
	}
	assert.Equal(t, fixtures.ID(1), restored[0].ID())
	assert.Equal(t, fixtures.ID(100), restored[99].ID())
}

func TestTickProcessor_ConflictingInputAbortsTick(t *testing.T) {
	// Arrange
	h := newTickHarness(t, nil, nil)
	a, b, tr := mergeablePair()
	h.seed([]*entities.Particle{a, b}, tr)
	h.states.On("GetLatest", mock.Anything, "default").Return(nil, nil)
	h.particles.On("UpdateParticlesBatch", mock.Anything, mock.Anything).
		Return(pkgerrors.NewVersionConflictError("particle "+b.ID().String(), 1))

	// Act
	_, err := h.processor.ProcessTick(context.Background())

	// Assert
	assert.True(t, pkgerrors.IsPersistence(err))
	assert.ErrorIs(t, err, pkgerrors.ErrConcurrentModification)
	h.particles.AssertNumberOfCalls(t, "UpdateParticlesBatch", 1)
	h.states.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestTickProcessor_PersonalityFailureAbortsTick(t *testing.T) {
	// Arrange
	h := newTickHarness(t, nil, nil)
	a, b, _ := mergeablePair()
	h.particles.On("GetActiveParticles", mock.Anything).Return([]*entities.Particle{a, b}, nil)
	h.personalities.On("GetLatestMetrics", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))
	h.states.On("GetLatest", mock.Anything, "default").Return(nil, nil)

	// Act
	_, err := h.processor.ProcessTick(context.Background())

	// Assert
	assert.True(t, pkgerrors.IsPersistence(err))
	h.particles.AssertNotCalled(t, "UpdateParticlesBatch", mock.Anything, mock.Anything)
}

func TestTickProcessor_EventSinkFailureDoesNotFailTick(t *testing.T) {
	// Arrange
	h := newTickHarness(t, nil, nil)
	a, b, tr := mergeablePair()
	h.seed([]*entities.Particle{a, b}, tr)
	h.states.On("GetLatest", mock.Anything, "default").Return(nil, nil)
	h.particles.On("UpdateParticlesBatch", mock.Anything, mock.Anything).Return(nil)
	h.states.On("Save", mock.Anything, mock.Anything).Return(nil)
	h.publisher.On("PublishBatch", mock.Anything, mock.Anything).Return(errors.New("bus unavailable"))

	// Act
	report, err := h.processor.ProcessTick(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.TickNumber)
	assert.Equal(t, 0, report.EventsPublished)
	h.states.AssertNumberOfCalls(t, "Save", 1)
}

func TestTickProcessor_ClaimedParticleIsExcluded(t *testing.T) {
	// Arrange
	h := newTickHarness(t, nil, nil)
	a, b, tr := mergeablePair()
	c := fixtures.NewParticleBuilder().WithID(fixtures.ID(3)).WithPosition(22, 23).WithMass(10).WithEnergy(5).MustBuild()
	tr[c.ID()] = tr[a.ID()]
	h.seed([]*entities.Particle{c, b, a}, tr)
	h.commitSucceeds(0)

	// Act
	report, err := h.processor.ProcessTick(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, report.Expired)
	assert.Equal(t, 1, report.Active)
	assert.Equal(t, 30.0, a.Mass())
	assert.Len(t, h.eventsOfType(events.TypeParticleMerged), 2)
	assert.Len(t, h.eventsOfType(events.TypeParticleExpired), 2)
}

func TestTickProcessor_DecayingParticlesAgeButDoNotPair(t *testing.T) {
	// Arrange
	h := newTickHarness(t, nil, nil)
	a := fixtures.NewParticleBuilder().WithID(fixtures.ID(1)).WithPosition(20, 20).MustBuild()
	d := fixtures.NewParticleBuilder().WithID(fixtures.ID(2)).WithPosition(21, 20).
		WithState(entities.StateDecaying).WithDecayLevel(1).
		WithLastInputAt(fixtures.FixedNow.Add(-48 * time.Hour)).MustBuild()
	h.seed([]*entities.Particle{a, d}, map[valueobjects.ParticleID]valueobjects.TraitVector{
		a.ID(): fixtures.Traits(0.5),
	})
	h.commitSucceeds(0)

	// Act
	report, err := h.processor.ProcessTick(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 0, report.Interactions)
	assert.Equal(t, 2, d.DecayLevel())
	assert.Equal(t, 4.5, d.Energy())
	h.personalities.AssertNotCalled(t, "GetLatestMetrics", mock.Anything, d.ID())
}

func TestTickProcessor_InactiveParticleStartsDecaying(t *testing.T) {
	// Arrange
	h := newTickHarness(t, nil, nil)
	p := fixtures.NewParticleBuilder().WithLastInputAt(fixtures.FixedNow.Add(-25 * time.Hour)).MustBuild()
	h.seed([]*entities.Particle{p}, map[valueobjects.ParticleID]valueobjects.TraitVector{p.ID(): fixtures.Traits(0.5)})
	h.commitSucceeds(0)

	// Act
	report, err := h.processor.ProcessTick(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, entities.StateDecaying, p.State())
	assert.Equal(t, 1, p.DecayLevel())
	assert.Equal(t, 0, report.Active)
	assert.Len(t, h.eventsOfType(events.TypeParticleDecaying), 1)
}

func TestTickProcessor_PairsWithoutMetricsAreSkipped(t *testing.T) {
	// Arrange
	h := newTickHarness(t, nil, nil)
	a, b, _ := mergeablePair()
	h.particles.On("GetActiveParticles", mock.Anything).Return([]*entities.Particle{a, b}, nil)
	h.personalities.On("GetLatestMetrics", mock.Anything, mock.Anything).Return(nil, nil)
	h.commitSucceeds(0)

	// Act
	report, err := h.processor.ProcessTick(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 0, report.Interactions)
	assert.Equal(t, 2, report.Active)
}

func TestTickProcessor_WrapsFastParticles(t *testing.T) {
	// Arrange
	h := newTickHarness(t, nil, nil)
	p := fixtures.NewParticleBuilder().WithPosition(90, 5).WithVelocity(215, -230).MustBuild()
	h.seed([]*entities.Particle{p}, map[valueobjects.ParticleID]valueobjects.TraitVector{p.ID(): fixtures.Traits(0.5)})
	h.commitSucceeds(0)

	// Act
	_, err := h.processor.ProcessTick(context.Background())

	// Assert
	require.NoError(t, err)
	pos := p.Position()
	assert.InDelta(t, 5.0, pos.X, 1e-9)
	assert.InDelta(t, 75.0, pos.Y, 1e-9)
	assert.True(t, pos.X >= 0 && pos.X < 100)
	assert.True(t, pos.Y >= 0 && pos.Y < 100)
}

// inputDuringTick lets a user write land after the tick loaded the population
type inputDuringTick struct {
	*memory.ParticleRepository
	input func(ctx context.Context)
}

func (r *inputDuringTick) GetActiveParticles(ctx context.Context) ([]*entities.Particle, error) {
	live, err := r.ParticleRepository.GetActiveParticles(ctx)
	if r.input != nil {
		r.input(ctx)
	}
	return live, err
}

func TestTickProcessor_UserInputDuringTickIsPreserved(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := memory.NewParticleRepository()
	for i := 1; i <= 3; i++ {
		p := fixtures.NewParticleBuilder().WithID(fixtures.ID(i)).WithUserID("user-1").
			WithPosition(float64(i)*30, 50).WithVelocity(1, 0).WithEnergy(5).MustBuild()
		require.NoError(t, repo.Save(ctx, p))
	}
	store := &inputDuringTick{ParticleRepository: repo, input: func(ctx context.Context) {
		p, err := repo.GetByID(ctx, fixtures.ID(2))
		require.NoError(t, err)
		require.NoError(t, p.AddEnergy(7))
		require.NoError(t, repo.Save(ctx, p))
	}}
	states := memory.NewUniverseStateRepository()
	processor := services.NewTickProcessor(
		store, memory.NewPersonalityStore(), states, nil,
		nil, nil, config.NewProvider(testConfig(nil)), services.NewSnapshotHolder(), zap.NewNop(),
	).WithClock(func() time.Time { return fixtures.FixedNow })

	// Act
	report, err := processor.ProcessTick(ctx)

	// Assert
	assert.Nil(t, report)
	assert.True(t, pkgerrors.IsPersistence(err))
	assert.ErrorIs(t, err, pkgerrors.ErrConcurrentModification)

	input, err := repo.GetByID(ctx, fixtures.ID(2))
	require.NoError(t, err)
	assert.Equal(t, 12.0, input.Energy(), "the user's write is not overwritten")
	assert.Equal(t, valueobjects.Vec(60, 50), input.Position())

	untouched, err := repo.GetByID(ctx, fixtures.ID(1))
	require.NoError(t, err)
	assert.Equal(t, valueobjects.Vec(30, 50), untouched.Position(), "the conflicting batch writes nothing")

	state, err := states.GetLatest(ctx, "default")
	require.NoError(t, err)
	assert.Nil(t, state)
}

type recordingTracer struct {
	spans       []string
	annotations map[string]string
	errors      []error
}

func (r *recordingTracer) TraceFunction(ctx context.Context, name string, fn func(context.Context) error) error {
	r.spans = append(r.spans, name)
	return fn(ctx)
}

func (r *recordingTracer) AddAnnotation(_ context.Context, key, value string) {
	if r.annotations == nil {
		r.annotations = make(map[string]string)
	}
	r.annotations[key] = value
}

func (r *recordingTracer) AddMetadata(context.Context, string, interface{}) {}

func (r *recordingTracer) RecordError(_ context.Context, err error) { r.errors = append(r.errors, err) }

func TestTickProcessor_TracesEveryPhase(t *testing.T) {
	// Arrange
	h := newTickHarness(t, nil, nil)
	tracer := &recordingTracer{}
	h.processor.WithTracer(tracer)
	a, b, tr := mergeablePair()
	h.seed([]*entities.Particle{a, b}, tr)
	h.commitSucceeds(0)

	// Act
	_, err := h.processor.ProcessTick(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"load_particles", "collect_pairs", "persist_particles", "persist_state", "publish_events"}, tracer.spans)
	assert.Empty(t, tracer.errors)
}

func TestTickProcessor_TracesRollbackOnAbort(t *testing.T) {
	// Arrange
	h := newTickHarness(t, nil, nil)
	tracer := &recordingTracer{}
	h.processor.WithTracer(tracer)
	a, b, tr := mergeablePair()
	h.seed([]*entities.Particle{a, b}, tr)
	h.states.On("GetLatest", mock.Anything, "default").Return(nil, nil)
	h.particles.On("UpdateParticlesBatch", mock.Anything, mock.Anything).Run(persistBatch).Return(nil)
	h.states.On("Save", mock.Anything, mock.Anything).Return(errors.New("throttled"))

	// Act
	_, err := h.processor.ProcessTick(context.Background())

	// Assert
	require.Error(t, err)
	assert.Equal(t, []string{"load_particles", "collect_pairs", "persist_particles", "persist_state", "rollback_particles"}, tracer.spans)
	assert.Equal(t, "persist_state", tracer.annotations["abortedPhase"])
	require.Len(t, tracer.errors, 1)
	assert.True(t, pkgerrors.IsPersistence(tracer.errors[0]))
}
