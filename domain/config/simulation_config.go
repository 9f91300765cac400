package config

import (
	"fmt"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// SimulationConfig holds every tunable rule of the simulation engine.
// Nothing in the engine hard-codes a threshold; it all comes from here.
type SimulationConfig struct {
	UniverseID string `yaml:"universeID" env:"UNIVERSE_ID"`

	World         WorldConfig         `yaml:"world" envPrefix:"WORLD_"`
	Interaction   InteractionConfig   `yaml:"interaction" envPrefix:"INTERACTION_"`
	Compatibility CompatibilityConfig `yaml:"compatibility" envPrefix:"COMPAT_"`
	Lifecycle     LifecycleConfig     `yaml:"lifecycle" envPrefix:"LIFECYCLE_"`
	Spawn         SpawnConfig         `yaml:"spawn" envPrefix:"SPAWN_"`
	Tick          TickConfig          `yaml:"tick" envPrefix:"TICK_"`
}

// WorldConfig describes the toroidal plane and integration step
type WorldConfig struct {
	Width  float64 `yaml:"width" env:"WIDTH"`
	Height float64 `yaml:"height" env:"HEIGHT"`
	DT     float64 `yaml:"dt" env:"DT"`
}

// InteractionConfig holds the pair resolution thresholds and constants
type InteractionConfig struct {
	Radius                   float64 `yaml:"radius" env:"RADIUS"`
	MergeThreshold           float64 `yaml:"mergeThreshold" env:"MERGE_THRESHOLD"`
	BondThreshold            float64 `yaml:"bondThreshold" env:"BOND_THRESHOLD"`
	RepelThreshold           float64 `yaml:"repelThreshold" env:"REPEL_THRESHOLD"`
	AttractionFloor          float64 `yaml:"attractionFloor" env:"ATTRACTION_FLOOR"`
	AggressionRepelThreshold float64 `yaml:"aggressionRepelThreshold" env:"AGGRESSION_REPEL_THRESHOLD"`
	MergeEnergyCap           float64 `yaml:"mergeEnergyCap" env:"MERGE_ENERGY_CAP"`
	MergeEnergyEfficiency    float64 `yaml:"mergeEnergyEfficiency" env:"MERGE_ENERGY_EFFICIENCY"`
	BondDamping              float64 `yaml:"bondDamping" env:"BOND_DAMPING"`
	BondEnergyCost           float64 `yaml:"bondEnergyCost" env:"BOND_ENERGY_COST"`
	RepelStrength            float64 `yaml:"repelStrength" env:"REPEL_STRENGTH"`
	MinSeparation            float64 `yaml:"minSeparation" env:"MIN_SEPARATION"`
	AttractStrength          float64 `yaml:"attractStrength" env:"ATTRACT_STRENGTH"`
	MaxAttractImpulse        float64 `yaml:"maxAttractImpulse" env:"MAX_ATTRACT_IMPULSE"`
}

// CompatibilityConfig holds the trait weights used by the compatibility score
type CompatibilityConfig struct {
	CuriosityWeight       float64 `yaml:"curiosityWeight" env:"CURIOSITY_WEIGHT"`
	SocialAffinityWeight  float64 `yaml:"socialAffinityWeight" env:"SOCIAL_AFFINITY_WEIGHT"`
	AggressionWeight      float64 `yaml:"aggressionWeight" env:"AGGRESSION_WEIGHT"`
	StabilityWeight       float64 `yaml:"stabilityWeight" env:"STABILITY_WEIGHT"`
	GrowthPotentialWeight float64 `yaml:"growthPotentialWeight" env:"GROWTH_POTENTIAL_WEIGHT"`
	// AggressionPenalty scales how much the larger aggression of the pair
	// amplifies any trait divergence.
	AggressionPenalty float64 `yaml:"aggressionPenalty" env:"AGGRESSION_PENALTY"`
}

// Weights returns the trait weights in canonical trait order
func (c CompatibilityConfig) Weights() [5]float64 {
	return [5]float64{c.CuriosityWeight, c.SocialAffinityWeight, c.AggressionWeight, c.StabilityWeight, c.GrowthPotentialWeight}
}

// LifecycleConfig holds decay and expiry rules
type LifecycleConfig struct {
	DecayInactivityThreshold time.Duration `yaml:"decayInactivityThreshold" env:"DECAY_INACTIVITY_THRESHOLD"`
	MaxDecayLevel            int           `yaml:"maxDecayLevel" env:"MAX_DECAY_LEVEL"`
	DecayEnergyLoss          float64       `yaml:"decayEnergyLoss" env:"DECAY_ENERGY_LOSS"`
}

// SpawnConfig holds the initial values of a newly spawned particle
type SpawnConfig struct {
	Mass     float64 `yaml:"mass" env:"MASS"`
	Energy   float64 `yaml:"energy" env:"ENERGY"`
	MaxSpeed float64 `yaml:"maxSpeed" env:"MAX_SPEED"`
}

// TickConfig holds operational limits of a tick
type TickConfig struct {
	Budget          time.Duration `yaml:"budget" env:"BUDGET"`
	NeighborWorkers int           `yaml:"neighborWorkers" env:"NEIGHBOR_WORKERS"`
	LockTTL         time.Duration `yaml:"lockTTL" env:"LOCK_TTL"`
}

// DefaultSimulationConfig returns the default simulation configuration
func DefaultSimulationConfig() *SimulationConfig {
	return &SimulationConfig{
		UniverseID: "default",

		World: WorldConfig{
			Width:  1000,
			Height: 1000,
			DT:     1.0,
		},

		Interaction: InteractionConfig{
			Radius:                   50,
			MergeThreshold:           0.8,
			BondThreshold:            0.6,
			RepelThreshold:           0.2,
			AttractionFloor:          0.3,
			AggressionRepelThreshold: 1.5,
			MergeEnergyCap:           100,
			MergeEnergyEfficiency:    1.0,
			BondDamping:              0.5,
			BondEnergyCost:           0.1,
			RepelStrength:            5.0,
			MinSeparation:            1.0,
			AttractStrength:          2.0,
			MaxAttractImpulse:        1.0,
		},

		Compatibility: CompatibilityConfig{
			CuriosityWeight:       1,
			SocialAffinityWeight:  1,
			AggressionWeight:      1,
			StabilityWeight:       1,
			GrowthPotentialWeight: 1,
			AggressionPenalty:     1,
		},

		Lifecycle: LifecycleConfig{
			DecayInactivityThreshold: 24 * time.Hour,
			MaxDecayLevel:            7,
			DecayEnergyLoss:          0.5,
		},

		Spawn: SpawnConfig{
			Mass:     1,
			Energy:   10,
			MaxSpeed: 1,
		},

		Tick: TickConfig{
			Budget:          30 * time.Second,
			NeighborWorkers: 8,
			LockTTL:         5 * time.Minute,
		},
	}
}

// ProductionSimulationConfig returns production-specific configuration
func ProductionSimulationConfig() *SimulationConfig {
	cfg := DefaultSimulationConfig()

	// Larger population per tick
	cfg.Tick.NeighborWorkers = 16
	cfg.Tick.Budget = 2 * time.Minute

	return cfg
}

// DevelopmentSimulationConfig returns development-specific configuration
func DevelopmentSimulationConfig() *SimulationConfig {
	cfg := DefaultSimulationConfig()

	// Small world so interactions happen quickly when testing by hand
	cfg.World.Width = 200
	cfg.World.Height = 200
	cfg.Tick.NeighborWorkers = 2

	return cfg
}

// ForEnvironment picks the base configuration for a deployment environment
func ForEnvironment(environment string) *SimulationConfig {
	switch environment {
	case "production", "prod":
		return ProductionSimulationConfig()
	case "development", "dev", "local":
		return DevelopmentSimulationConfig()
	default:
		return DefaultSimulationConfig()
	}
}

// Load builds the simulation config: environment base, then the YAML file
// at path (if any), then SIM_* environment overrides. The result is validated.
func Load(environment, path string) (*SimulationConfig, error) {
	cfg := ForEnvironment(environment)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read simulation config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse simulation config: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "SIM_"}); err != nil {
		return nil, fmt.Errorf("failed to apply simulation overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency
func (c *SimulationConfig) Validate() error {
	if c.UniverseID == "" {
		return fmt.Errorf("universe ID is required")
	}

	w := c.World
	if !positive(w.Width) || !positive(w.Height) {
		return fmt.Errorf("world dimensions must be positive, got %vx%v", w.Width, w.Height)
	}
	if !positive(w.DT) {
		return fmt.Errorf("dt must be positive, got %v", w.DT)
	}

	i := c.Interaction
	if !positive(i.Radius) {
		return fmt.Errorf("interaction radius must be positive, got %v", i.Radius)
	}
	if i.Radius > math.Min(w.Width, w.Height)/2 {
		return fmt.Errorf("interaction radius %v exceeds half the world size", i.Radius)
	}
	if !unit(i.MergeThreshold) || !unit(i.BondThreshold) || !unit(i.RepelThreshold) || !unit(i.AttractionFloor) {
		return fmt.Errorf("compatibility thresholds must be within [0,1]")
	}
	if i.BondThreshold > i.MergeThreshold {
		return fmt.Errorf("bond threshold %v must not exceed merge threshold %v", i.BondThreshold, i.MergeThreshold)
	}
	if i.AggressionRepelThreshold < 0 {
		return fmt.Errorf("aggression repel threshold must not be negative")
	}
	if !positive(i.MergeEnergyCap) || !positive(i.MergeEnergyEfficiency) {
		return fmt.Errorf("merge energy cap and efficiency must be positive")
	}
	if i.BondDamping < 0 || i.BondDamping >= 1 {
		return fmt.Errorf("bond damping must be within [0,1), got %v", i.BondDamping)
	}
	if i.BondEnergyCost < 0 || i.RepelStrength < 0 || i.AttractStrength < 0 || i.MaxAttractImpulse < 0 {
		return fmt.Errorf("interaction constants must not be negative")
	}
	if !positive(i.MinSeparation) {
		return fmt.Errorf("minimum separation must be positive")
	}

	var total float64
	for _, weight := range c.Compatibility.Weights() {
		if weight < 0 {
			return fmt.Errorf("trait weights must not be negative")
		}
		total += weight
	}
	if !positive(total) {
		return fmt.Errorf("at least one trait weight must be positive")
	}
	if c.Compatibility.AggressionPenalty < 0 {
		return fmt.Errorf("aggression penalty must not be negative")
	}

	l := c.Lifecycle
	if l.DecayInactivityThreshold <= 0 {
		return fmt.Errorf("decay inactivity threshold must be positive")
	}
	if l.MaxDecayLevel < 0 || l.DecayEnergyLoss < 0 {
		return fmt.Errorf("decay settings must not be negative")
	}

	if !positive(c.Spawn.Mass) || c.Spawn.Energy < 0 || c.Spawn.MaxSpeed < 0 {
		return fmt.Errorf("spawn mass must be positive and energy/speed not negative")
	}

	if c.Tick.NeighborWorkers < 1 {
		return fmt.Errorf("neighbor workers must be at least 1")
	}
	return nil
}

// Clone returns a deep copy. SimulationConfig only holds values.
func (c *SimulationConfig) Clone() *SimulationConfig {
	cp := *c
	return &cp
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

func unit(v float64) bool {
	return v >= 0 && v <= 1
}

// Provider hands out the current simulation config and lets a watcher swap it.
type Provider struct {
	current atomic.Pointer[SimulationConfig]
}

// NewProvider creates a provider seeded with cfg
func NewProvider(cfg *SimulationConfig) *Provider {
	p := &Provider{}
	p.current.Store(cfg)
	return p
}

// Current returns an immutable copy of the active configuration
func (p *Provider) Current() *SimulationConfig {
	return p.current.Load().Clone()
}

// Update validates and installs a new configuration
func (p *Provider) Update(cfg *SimulationConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("rejected simulation config: %w", err)
	}
	p.current.Store(cfg.Clone())
	return nil
}
