package msprime

import (
	"container/heap"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// DemographicEvent is a scheduled change to the demographic model.
// Events fire between sampling steps of the main loop, at the exact
// time they carry; events with equal times fire in submission order.
type DemographicEvent interface {
	// EventTime returns the time in generations at which the event fires.
	EventTime() float64
	// Describe returns a one-line human-readable summary.
	Describe() string

	apply(sim *Simulator) error
	validate(numPopulations int) error
}

// PopulationParametersChange replaces the size and/or growth rate of
// one population, or of every population when Population is -1.
type PopulationParametersChange struct {
	Time        float64
	Population  int
	InitialSize *float64
	GrowthRate  *float64
}

func (e *PopulationParametersChange) EventTime() float64 { return e.Time }

func (e *PopulationParametersChange) Describe() string {
	target := fmt.Sprintf("population %d", e.Population)
	if e.Population == -1 {
		target = "all populations"
	}
	desc := fmt.Sprintf("t=%g: parameters of %s", e.Time, target)
	if e.InitialSize != nil {
		desc += fmt.Sprintf(" size=%g", *e.InitialSize)
	}
	if e.GrowthRate != nil {
		desc += fmt.Sprintf(" growth=%g", *e.GrowthRate)
	}
	return desc
}

func (e *PopulationParametersChange) validate(numPopulations int) error {
	if e.Population < -1 || e.Population >= numPopulations {
		return errors.Errorf(InvalidIntParameterError, "population id", e.Population, "no such population")
	}
	if e.InitialSize == nil && e.GrowthRate == nil {
		return errors.New("population parameters change must set a size or a growth rate")
	}
	if e.InitialSize != nil && *e.InitialSize <= 0 {
		return errors.Errorf(InvalidFloatParameterError, "initial size", *e.InitialSize, "must be positive")
	}
	return nil
}

func (e *PopulationParametersChange) apply(sim *Simulator) error {
	if e.Population == -1 {
		for _, p := range sim.populations {
			p.resetParameters(sim.time, e.InitialSize, e.GrowthRate)
		}
		return nil
	}
	sim.populations[e.Population].resetParameters(sim.time, e.InitialSize, e.GrowthRate)
	return nil
}

// MigrationRateChange sets a single backward migration rate, or every
// off-diagonal entry when Source and Dest are both -1.
type MigrationRateChange struct {
	Time   float64
	Rate   float64
	Source int
	Dest   int
}

func (e *MigrationRateChange) EventTime() float64 { return e.Time }

func (e *MigrationRateChange) Describe() string {
	if e.Source == -1 && e.Dest == -1 {
		return fmt.Sprintf("t=%g: all migration rates set to %g", e.Time, e.Rate)
	}
	return fmt.Sprintf("t=%g: migration rate %d->%d set to %g", e.Time, e.Source, e.Dest, e.Rate)
}

func (e *MigrationRateChange) validate(numPopulations int) error {
	if e.Rate < 0 {
		return errors.Errorf(InvalidFloatParameterError, "migration rate", e.Rate, "must be non-negative")
	}
	all := e.Source == -1 && e.Dest == -1
	if !all {
		if e.Source < 0 || e.Source >= numPopulations || e.Dest < 0 || e.Dest >= numPopulations {
			return errors.Errorf(InvalidIntParameterError, "migration matrix index", e.Source, "no such population pair")
		}
		if e.Source == e.Dest {
			return errors.Errorf(InvalidIntParameterError, "migration matrix index", e.Source, "diagonal entries cannot be set")
		}
	}
	return nil
}

func (e *MigrationRateChange) apply(sim *Simulator) error {
	if e.Source == -1 && e.Dest == -1 {
		for i := range sim.migration {
			for j := range sim.migration[i] {
				if i != j {
					sim.migration[i][j] = e.Rate
				}
			}
		}
		return nil
	}
	sim.migration[e.Source][e.Dest] = e.Rate
	return nil
}

// MassMigration moves each lineage currently in Source to Dest
// independently with probability Proportion.
type MassMigration struct {
	Time       float64
	Source     int
	Dest       int
	Proportion float64
}

func (e *MassMigration) EventTime() float64 { return e.Time }

func (e *MassMigration) Describe() string {
	return fmt.Sprintf("t=%g: mass migration %d->%d proportion %g", e.Time, e.Source, e.Dest, e.Proportion)
}

func (e *MassMigration) validate(numPopulations int) error {
	if e.Source < 0 || e.Source >= numPopulations || e.Dest < 0 || e.Dest >= numPopulations {
		return errors.Errorf(InvalidIntParameterError, "population id", e.Source, "no such population pair")
	}
	if e.Source == e.Dest {
		return errors.Errorf(InvalidIntParameterError, "population id", e.Source, "source and destination must differ")
	}
	if e.Proportion < 0 || e.Proportion > 1 {
		return errors.Errorf(InvalidFloatParameterError, "proportion", e.Proportion, "must be in [0, 1]")
	}
	return nil
}

func (e *MassMigration) apply(sim *Simulator) error {
	src := sim.populations[e.Source]
	// Snapshot in rank order so that the Bernoulli draws are made in a
	// fixed order regardless of how the moves reshape the index.
	moving := make([]*lineage, 0, src.index.Size())
	src.index.Walk(func(l *lineage) {
		moving = append(moving, l)
	})
	for _, l := range moving {
		if sim.rng.Float64() < e.Proportion {
			if err := sim.moveLineage(l, e.Dest); err != nil {
				return err
			}
		}
	}
	return nil
}

// eventQueue is a min-heap of scheduled events ordered by time, with
// submission order breaking ties.
type eventQueue struct {
	items []queuedEvent
}

type queuedEvent struct {
	event DemographicEvent
	seq   int
}

func newEventQueue(events []DemographicEvent) *eventQueue {
	q := new(eventQueue)
	for i, e := range events {
		q.items = append(q.items, queuedEvent{event: e, seq: i})
	}
	heap.Init(q)
	return q
}

func (q *eventQueue) Len() int { return len(q.items) }

func (q *eventQueue) Less(i, j int) bool {
	ti, tj := q.items[i].event.EventTime(), q.items[j].event.EventTime()
	if ti != tj {
		return ti < tj
	}
	return q.items[i].seq < q.items[j].seq
}

func (q *eventQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *eventQueue) Push(x interface{}) { q.items = append(q.items, x.(queuedEvent)) }

func (q *eventQueue) Pop() interface{} {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}

// peekTime returns the time of the earliest scheduled event, or false
// if the queue is empty.
func (q *eventQueue) peekTime() (float64, bool) {
	if len(q.items) == 0 {
		return 0, false
	}
	return q.items[0].event.EventTime(), true
}

func (q *eventQueue) pop() DemographicEvent {
	return heap.Pop(q).(queuedEvent).event
}

// DemographyDebugger summarises the epoch structure implied by a set
// of scheduled events.
type DemographyDebugger struct {
	events []DemographicEvent
}

// NewDemographyDebugger creates a debugger over the given events,
// which must already be in non-decreasing time order.
func NewDemographyDebugger(events []DemographicEvent) *DemographyDebugger {
	d := new(DemographyDebugger)
	d.events = events
	return d
}

// EpochBoundaries returns the distinct event times, ascending,
// starting with 0.
func (d *DemographyDebugger) EpochBoundaries() []float64 {
	bounds := []float64{0}
	for _, e := range d.events {
		t := e.EventTime()
		if t > bounds[len(bounds)-1] {
			bounds = append(bounds, t)
		}
	}
	return bounds
}

// Print writes one line listing the epoch boundaries, followed by one
// line per scheduled event.
func (d *DemographyDebugger) Print(w io.Writer) {
	fmt.Fprintf(w, "epoch boundaries: %v\n", d.EpochBoundaries())
	for _, e := range d.events {
		fmt.Fprintf(w, "  %s\n", e.Describe())
	}
}
