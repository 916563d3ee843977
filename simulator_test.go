package msprime

import (
	"reflect"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

func runReplicate(t *testing.T, c SimulatorConfig) *TreeSequence {
	t.Helper()
	sim, err := NewSimulator(c)
	if err != nil {
		t.Fatalf(UnexpectedErrorWhileError, "building the simulator", err)
	}
	ts, err := sim.Run()
	if err != nil {
		t.Fatalf(UnexpectedErrorWhileError, "running the simulation", err)
	}
	return ts
}

// checkTrees walks every tree of the sequence and verifies that the
// intervals tile the genome, that every leaf is present, and that
// times strictly increase from leaves to root.
func checkTrees(t *testing.T, ts *TreeSequence) {
	t.Helper()
	it := ts.Trees()
	expectLeft := 0.0
	numTrees := 0
	for it.Next() {
		numTrees++
		tree := it.Tree()
		left, right := tree.Interval()
		if left != expectLeft {
			t.Fatalf(UnequalFloatParameterError, "tree left endpoint", expectLeft, left)
		}
		if right <= left {
			t.Fatalf("empty tree interval [%g, %g)", left, right)
		}
		expectLeft = right
		for leaf := 0; leaf < ts.SampleSize(); leaf++ {
			if ts.NodeTime(leaf) != 0 {
				t.Fatalf(UnequalFloatParameterError, "leaf time", 0.0, ts.NodeTime(leaf))
			}
			steps := 0
			for u := leaf; tree.Parent(u) != NullNode; u = tree.Parent(u) {
				p := tree.Parent(u)
				if ts.NodeTime(p) <= ts.NodeTime(u) {
					t.Fatalf("node times not increasing from %d (%g) to %d (%g)",
						u, ts.NodeTime(u), p, ts.NodeTime(p))
				}
				if steps++; steps > ts.NumNodes() {
					t.Fatalf("parent chain from leaf %d does not terminate", leaf)
				}
			}
		}
		// Every pair of leaves shares a root within this tree.
		root := tree.Root(0)
		for leaf := 1; leaf < ts.SampleSize(); leaf++ {
			if tree.Root(leaf) != root {
				t.Fatalf("leaves 0 and %d have different roots on [%g, %g)", leaf, left, right)
			}
		}
	}
	if expectLeft != ts.SequenceLength() {
		t.Fatalf(UnequalFloatParameterError, "tiled length", ts.SequenceLength(), expectLeft)
	}
	if numTrees < 1 {
		t.Fatalf(UnequalIntParameterError, "number of trees", 1, numTrees)
	}
}

func TestSimulator_SinglePairNoRecombination(t *testing.T) {
	sim, err := NewSimulator(SimulatorConfig{
		SampleSize:     2,
		Ne:             1,
		SequenceLength: 1,
		RandomSeed:     42,
	})
	if err != nil {
		t.Fatalf(UnexpectedErrorWhileError, "building the simulator", err)
	}
	ts, err := sim.Run()
	if err != nil {
		t.Fatalf(UnexpectedErrorWhileError, "running the simulation", err)
	}
	if got := sim.NumRecords(); got != 1 {
		t.Errorf(UnequalIntParameterError, "records counted by the engine", 1, got)
	}
	records := ts.Records()
	if len(records) != 1 {
		t.Fatalf(UnequalIntParameterError, "number of records", 1, len(records))
	}
	rec := records[0]
	if rec.Left != 0 || rec.Right != 1 {
		t.Errorf("record interval [%g, %g), expected [0, 1)", rec.Left, rec.Right)
	}
	if rec.Node != 2 {
		t.Errorf(UnequalIntParameterError, "parent node", 2, rec.Node)
	}
	if !reflect.DeepEqual(rec.Children, []int{0, 1}) {
		t.Errorf("children %v, expected [0 1]", rec.Children)
	}
	if rec.Time <= 0 {
		t.Errorf("coalescence time %g is not positive", rec.Time)
	}
	checkTrees(t, ts)
}

func TestSimulator_Determinism(t *testing.T) {
	config := SimulatorConfig{
		SampleSize:        6,
		Ne:                0.5,
		SequenceLength:    10,
		RecombinationRate: 0.2,
		RandomSeed:        1234,
	}
	a := runReplicate(t, config)
	b := runReplicate(t, config)
	if !reflect.DeepEqual(a.Records(), b.Records()) {
		t.Errorf("identical seed and configuration produced different record streams")
	}
	if len(a.Breakpoints()) != len(b.Breakpoints()) {
		t.Errorf(UnequalIntParameterError, "number of breakpoints", len(a.Breakpoints()), len(b.Breakpoints()))
	}
}

func TestSimulator_HighRecombination(t *testing.T) {
	ts := runReplicate(t, SimulatorConfig{
		SampleSize:        2,
		Ne:                1,
		SequenceLength:    1,
		RecombinationRate: 1e3,
		RandomSeed:        7,
		MaxSteps:          1 << 22,
	})
	for _, rec := range ts.Records() {
		if rec.Left < 0 || rec.Right > 1 || rec.Left >= rec.Right {
			t.Fatalf("record interval [%g, %g) outside the genome", rec.Left, rec.Right)
		}
	}
	if len(ts.Breakpoints()) < 2 {
		t.Errorf("high recombination rate produced %d breakpoints", len(ts.Breakpoints()))
	}
	checkTrees(t, ts)
}

func TestSimulator_VariableRecombinationMap(t *testing.T) {
	m, err := NewRecombinationMap(
		[]float64{0, 100, 200, 400, 500},
		[]float64{0.05, 0, 0.02, 0.1},
	)
	if err != nil {
		t.Fatalf(UnexpectedErrorWhileError, "building the map", err)
	}
	ts := runReplicate(t, SimulatorConfig{
		SampleSize:       4,
		Ne:               1,
		SequenceLength:   500,
		RecombinationMap: m,
		RandomSeed:       99,
	})
	// No breakpoint can land strictly inside the cold bin.
	for _, x := range ts.Breakpoints() {
		if x > 100 && x < 200 {
			t.Errorf("breakpoint %g inside a zero-rate interval", x)
		}
	}
	checkTrees(t, ts)
}

func TestSimulator_IsolatedDemesError(t *testing.T) {
	sim, err := NewSimulator(SimulatorConfig{
		Populations: []PopulationConfiguration{
			{InitialSize: 1, SampleSize: 1},
			{InitialSize: 1, SampleSize: 1},
		},
		SequenceLength: 1,
		RandomSeed:     5,
	})
	if err != nil {
		t.Fatalf(UnexpectedErrorWhileError, "building the simulator", err)
	}
	_, err = sim.Run()
	var numErr *NumericError
	if !errors.As(err, &numErr) {
		t.Fatalf(ExpectedErrorWhileError, "running isolated demes that cannot coalesce")
	}
}

func TestSimulator_MassMigrationRescue(t *testing.T) {
	ts := runReplicate(t, SimulatorConfig{
		Populations: []PopulationConfiguration{
			{InitialSize: 1, SampleSize: 1},
			{InitialSize: 1, SampleSize: 1},
		},
		SequenceLength: 1,
		Events: []DemographicEvent{
			&MassMigration{Time: 10, Source: 1, Dest: 0, Proportion: 1},
		},
		RandomSeed: 5,
	})
	records := ts.Records()
	if len(records) != 1 {
		t.Fatalf(UnequalIntParameterError, "number of records", 1, len(records))
	}
	// The lineages could only meet after the rescue event fired.
	if records[0].Time <= 10 {
		t.Errorf("coalescence at %g, before the mass migration at 10", records[0].Time)
	}
	if records[0].Population != 0 {
		t.Errorf(UnequalIntParameterError, "coalescence population", 0, records[0].Population)
	}
	checkTrees(t, ts)
}

func TestSimulator_MigrationModel(t *testing.T) {
	ts := runReplicate(t, SimulatorConfig{
		Populations: []PopulationConfiguration{
			{InitialSize: 1, SampleSize: 2},
			{InitialSize: 1, SampleSize: 2},
		},
		MigrationMatrix: [][]float64{
			{0, 0.5},
			{0.5, 0},
		},
		SequenceLength: 1,
		RandomSeed:     11,
	})
	checkTrees(t, ts)
}

func TestSimulator_Bottleneck(t *testing.T) {
	bottleneck := 1.0
	const replicates = 100
	heights := make([]float64, 0, replicates)
	for i := 0; i < replicates; i++ {
		ts := runReplicate(t, SimulatorConfig{
			SampleSize:     3,
			Ne:             10000,
			SequenceLength: 1,
			Events: []DemographicEvent{
				&PopulationParametersChange{Time: 100, Population: -1, InitialSize: &bottleneck},
			},
			RandomSeed: uint64(1000 + i),
		})
		records := ts.Records()
		heights = append(heights, records[len(records)-1].Time)
	}
	mean := stat.Mean(heights, nil)
	// Without the bottleneck the expected TMRCA is 4*Ne*(1-1/3), well
	// over 26000 generations. The crash at t=100 pulls it close to 100.
	if mean > 2000 {
		t.Errorf("mean TMRCA %g not reduced by the bottleneck", mean)
	}
}

func TestSimulator_Cancel(t *testing.T) {
	sim, err := NewSimulator(SimulatorConfig{
		SampleSize:     10,
		Ne:             1,
		SequenceLength: 1,
		RandomSeed:     3,
	})
	if err != nil {
		t.Fatalf(UnexpectedErrorWhileError, "building the simulator", err)
	}
	sim.Cancel()
	if _, err := sim.Run(); err != ErrCancelled {
		t.Errorf(ExpectedErrorWhileError, "running a cancelled simulation")
	}
}

func TestSimulator_StepBudget(t *testing.T) {
	sim, err := NewSimulator(SimulatorConfig{
		SampleSize:        8,
		Ne:                1e9,
		SequenceLength:    100,
		RecombinationRate: 10,
		RandomSeed:        21,
		MaxSteps:          5,
	})
	if err != nil {
		t.Fatalf(UnexpectedErrorWhileError, "building the simulator", err)
	}
	_, err = sim.Run()
	var numErr *NumericError
	if !errors.As(err, &numErr) {
		t.Fatalf(ExpectedErrorWhileError, "exhausting the step budget")
	}
}

func TestSimulator_ConfigValidation(t *testing.T) {
	cases := []struct {
		name   string
		config SimulatorConfig
	}{
		{"zero-length genome", SimulatorConfig{SampleSize: 2}},
		{"single sample", SimulatorConfig{SampleSize: 1, SequenceLength: 1}},
		{"negative recombination", SimulatorConfig{SampleSize: 2, SequenceLength: 1, RecombinationRate: -1}},
		{"bad matrix diagonal", SimulatorConfig{
			Populations:     []PopulationConfiguration{{SampleSize: 1}, {SampleSize: 1}},
			SequenceLength:  1,
			MigrationMatrix: [][]float64{{1, 0}, {0, 0}},
		}},
		{"unsorted events", SimulatorConfig{
			SampleSize:     2,
			SequenceLength: 1,
			Events: []DemographicEvent{
				&MigrationRateChange{Time: 10, Rate: 1, Source: -1, Dest: -1},
				&MigrationRateChange{Time: 5, Rate: 1, Source: -1, Dest: -1},
			},
		}},
	}
	for _, c := range cases {
		if _, err := NewSimulator(c.config); err == nil {
			t.Errorf(ExpectedErrorWhileError, "configuring with "+c.name)
		}
	}
}

func TestSimulator_TMRCAMean(t *testing.T) {
	if testing.Short() {
		t.Skip("statistical acceptance test")
	}
	const replicates = 2000
	heights := make([]float64, 0, replicates)
	for i := 0; i < replicates; i++ {
		ts := runReplicate(t, SimulatorConfig{
			SampleSize:     2,
			Ne:             1,
			SequenceLength: 1,
			RandomSeed:     uint64(20000 + i),
		})
		heights = append(heights, ts.Records()[0].Time)
	}
	mean := stat.Mean(heights, nil)
	// E[TMRCA] = 4*Ne*(1 - 1/n) = 2 for a pair with Ne = 1.
	if mean < 1.6 || mean > 2.4 {
		t.Errorf(UnequalFloatParameterError, "mean pairwise TMRCA", 2.0, mean)
	}
}

func TestSimulator_TwoDemePairCoalescenceTime(t *testing.T) {
	if testing.Short() {
		t.Skip("statistical acceptance test")
	}
	const m = 0.05
	const replicates = 1000
	times := make([]float64, 0, replicates)
	for i := 0; i < replicates; i++ {
		ts := runReplicate(t, SimulatorConfig{
			Populations: []PopulationConfiguration{
				{InitialSize: 1, SampleSize: 1},
				{InitialSize: 1, SampleSize: 1},
			},
			MigrationMatrix: [][]float64{
				{0, m},
				{m, 0},
			},
			SequenceLength: 1,
			RandomSeed:     uint64(50000 + i),
		})
		times = append(times, ts.Records()[0].Time)
	}
	mean := stat.Mean(times, nil)
	// For two demes of N diploids with per-lineage migration rate m
	// the expected between-deme pair coalescence time is 4N + 1/(2m).
	want := 4.0 + 1.0/(2.0*m)
	if mean < 0.8*want || mean > 1.2*want {
		t.Errorf(UnequalFloatParameterError, "mean between-deme coalescence time", want, mean)
	}
}
