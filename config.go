package msprime

import (
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config represents any top level TOML configuration that can create
// new replicates of a simulation.
type Config interface {
	Validate() error
	NewSimulation(i int) (*Simulator, error)
	NumReplicates() int
	LogPath() string
	LogFreq() int
	MutationRate() float64
}

// SimulationConfig contains the parameters of a coalescent simulation
// loaded from a TOML file.
type SimulationConfig struct {
	SimParams      *simParamsConfig    `toml:"simulation"`
	PopParams      []*populationConfig `toml:"population"`
	MigrationParam *migrationConfig    `toml:"migration"`
	EventParams    []*eventConfig      `toml:"demographic_event"`
	MapParams      *recombMapConfig    `toml:"recombination_map"`
	LogParams      *logConfig          `toml:"logging"`
	MutationParams *mutationConfig     `toml:"mutation"`

	validated bool
}

type simParamsConfig struct {
	NumReplicates     int     `toml:"num_replicates"`
	SampleSize        int     `toml:"sample_size"`
	SequenceLength    float64 `toml:"sequence_length"`
	EffectiveSize     float64 `toml:"effective_size"`
	RecombinationRate float64 `toml:"recombination_rate"`
	RandomSeed        uint64  `toml:"random_seed"`
	MaxSteps          int     `toml:"max_steps"`
}

type populationConfig struct {
	InitialSize float64 `toml:"initial_size"`
	GrowthRate  float64 `toml:"growth_rate"`
	SampleSize  int     `toml:"sample_size"`
}

type migrationConfig struct {
	Matrix [][]float64 `toml:"matrix"`
}

type eventConfig struct {
	Kind        string   `toml:"kind"`
	Time        float64  `toml:"time"`
	Population  *int     `toml:"population"`
	InitialSize *float64 `toml:"initial_size"`
	GrowthRate  *float64 `toml:"growth_rate"`
	Rate        *float64 `toml:"rate"`
	Source      *int     `toml:"source"`
	Destination *int     `toml:"destination"`
	Proportion  *float64 `toml:"proportion"`
}

type recombMapConfig struct {
	Positions []float64 `toml:"positions"`
	Rates     []float64 `toml:"rates"`
}

type logConfig struct {
	Path string `toml:"log_path"`
	Freq int    `toml:"log_freq"`
}

type mutationConfig struct {
	Rate float64 `toml:"rate"`
}

// LoadSimulationConfig parses a TOML config file and creates a
// SimulationConfig.
func LoadSimulationConfig(path string) (*SimulationConfig, error) {
	spec := new(SimulationConfig)
	_, err := toml.DecodeFile(path, spec)
	if err != nil {
		return nil, err
	}
	return spec, nil
}

// event converts one TOML event table into a DemographicEvent.
func (e *eventConfig) event() (DemographicEvent, error) {
	switch strings.ToLower(e.Kind) {
	case "population_parameters_change":
		pop := -1
		if e.Population != nil {
			pop = *e.Population
		}
		return &PopulationParametersChange{
			Time:        e.Time,
			Population:  pop,
			InitialSize: e.InitialSize,
			GrowthRate:  e.GrowthRate,
		}, nil
	case "migration_rate_change":
		if e.Rate == nil {
			return nil, errors.New("migration_rate_change event requires a rate")
		}
		src, dst := -1, -1
		if e.Source != nil {
			src = *e.Source
		}
		if e.Destination != nil {
			dst = *e.Destination
		}
		return &MigrationRateChange{Time: e.Time, Rate: *e.Rate, Source: src, Dest: dst}, nil
	case "mass_migration":
		if e.Source == nil || e.Destination == nil || e.Proportion == nil {
			return nil, errors.New("mass_migration event requires source, destination and proportion")
		}
		return &MassMigration{
			Time:       e.Time,
			Source:     *e.Source,
			Dest:       *e.Destination,
			Proportion: *e.Proportion,
		}, nil
	}
	return nil, errors.Errorf(InvalidStringParameterError, "event kind", e.Kind, "must be population_parameters_change, migration_rate_change or mass_migration")
}

// simulatorConfig assembles the engine configuration of replicate i.
// Replicates get consecutive seeds derived from the base seed.
func (c *SimulationConfig) simulatorConfig(i int) (SimulatorConfig, error) {
	sc := SimulatorConfig{
		SampleSize:        c.SimParams.SampleSize,
		Ne:                c.SimParams.EffectiveSize,
		SequenceLength:    c.SimParams.SequenceLength,
		RecombinationRate: c.SimParams.RecombinationRate,
		RandomSeed:        c.SimParams.RandomSeed + uint64(i),
		MaxSteps:          c.SimParams.MaxSteps,
	}
	for _, p := range c.PopParams {
		sc.Populations = append(sc.Populations, PopulationConfiguration{
			InitialSize: p.InitialSize,
			GrowthRate:  p.GrowthRate,
			SampleSize:  p.SampleSize,
		})
	}
	if c.MigrationParam != nil {
		sc.MigrationMatrix = c.MigrationParam.Matrix
	}
	for _, e := range c.EventParams {
		ev, err := e.event()
		if err != nil {
			return sc, err
		}
		sc.Events = append(sc.Events, ev)
	}
	if c.MapParams != nil {
		m, err := NewRecombinationMap(c.MapParams.Positions, c.MapParams.Rates)
		if err != nil {
			return sc, err
		}
		sc.RecombinationMap = m
	}
	return sc, nil
}

// Validate checks the validity of the configuration.
func (c *SimulationConfig) Validate() error {
	if c.SimParams == nil {
		return errors.New("missing [simulation] section")
	}
	if c.SimParams.NumReplicates < 1 {
		return errors.Errorf(InvalidIntParameterError, "num_replicates", c.SimParams.NumReplicates, "must be at least 1")
	}
	if c.MutationParams != nil && c.MutationParams.Rate < 0 {
		return errors.Errorf(InvalidFloatParameterError, "mutation rate", c.MutationParams.Rate, "must be non-negative")
	}
	sc, err := c.simulatorConfig(0)
	if err != nil {
		return errors.Wrap(err, "cannot create simulation")
	}
	if err := sc.Validate(); err != nil {
		return errors.Wrap(err, "cannot create simulation")
	}
	c.validated = true
	return nil
}

// NewSimulation creates the engine for replicate i from the stored
// configuration.
func (c *SimulationConfig) NewSimulation(i int) (*Simulator, error) {
	if !c.validated {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	sc, err := c.simulatorConfig(i)
	if err != nil {
		return nil, err
	}
	return NewSimulator(sc)
}

// NumReplicates returns the number of replicates to run.
func (c *SimulationConfig) NumReplicates() int {
	return c.SimParams.NumReplicates
}

// LogPath returns the base path data loggers write under.
func (c *SimulationConfig) LogPath() string {
	if c.LogParams == nil {
		return ""
	}
	return c.LogParams.Path
}

// LogFreq returns the configured log_freq, or 1 when it is unset or
// below 1. No logger in this package reads it: results are logged
// once per finished replicate.
func (c *SimulationConfig) LogFreq() int {
	if c.LogParams == nil || c.LogParams.Freq < 1 {
		return 1
	}
	return c.LogParams.Freq
}

// MutationRate returns the infinite-sites mutation rate applied to
// finished tree sequences, zero when mutations are disabled.
func (c *SimulationConfig) MutationRate() float64 {
	if c.MutationParams == nil {
		return 0
	}
	return c.MutationParams.Rate
}

// DemographicEvents returns the configured event schedule; useful for
// the demography debugger.
func (c *SimulationConfig) DemographicEvents() ([]DemographicEvent, error) {
	var events []DemographicEvent
	for _, e := range c.EventParams {
		ev, err := e.event()
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}
