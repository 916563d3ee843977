package msprime

import (
	"math"
	"math/rand"
	"testing"
)

func TestFenwick_SetTotal(t *testing.T) {
	f := newFenwick(8)
	weights := []float64{0, 1.5, 0.5, 2.0, 0, 3.25, 0.75, 1.0}
	var want float64
	for i, w := range weights {
		f.Set(i+1, w)
		want += w
	}
	if got := f.Total(); math.Abs(got-want) > 1e-12 {
		t.Errorf(UnequalFloatParameterError, "total weight", want, got)
	}
	if got := f.PrefixSum(f.Size()); got != f.Total() {
		t.Errorf(UnequalFloatParameterError, "full prefix sum", f.Total(), got)
	}
}

func TestFenwick_Increment(t *testing.T) {
	f := newFenwick(4)
	f.Set(2, 1.0)
	f.Increment(2, 0.5)
	f.Increment(3, 2.0)
	if got := f.Get(2); got != 1.5 {
		t.Errorf(UnequalFloatParameterError, "weight at index 2", 1.5, got)
	}
	if got := f.PrefixSum(2); got != 1.5 {
		t.Errorf(UnequalFloatParameterError, "prefix sum at 2", 1.5, got)
	}
	if got := f.PrefixSum(3); got != 3.5 {
		t.Errorf(UnequalFloatParameterError, "prefix sum at 3", 3.5, got)
	}
}

func TestFenwick_FindRoundTrip(t *testing.T) {
	f := newFenwick(16)
	rng := rand.New(rand.NewSource(17))
	for i := 1; i <= 16; i++ {
		f.Set(i, 0.25+rng.Float64())
	}
	for i := 1; i <= 16; i++ {
		if got := f.Find(f.PrefixSum(i)); got != i {
			t.Errorf(UnequalIntParameterError, "find of prefix sum", i, got)
		}
	}
}

func TestFenwick_FindTieBreak(t *testing.T) {
	f := newFenwick(4)
	f.Set(1, 1.0)
	f.Set(2, 0.0)
	f.Set(3, 1.0)
	// A draw landing exactly on a boundary resolves to the smallest
	// index whose prefix sum reaches it.
	if got := f.Find(1.0); got != 1 {
		t.Errorf(UnequalIntParameterError, "find at boundary", 1, got)
	}
	if got := f.Find(1.5); got != 3 {
		t.Errorf(UnequalIntParameterError, "find inside third weight", 3, got)
	}
}

func TestFenwick_GrowPreservesWeights(t *testing.T) {
	f := newFenwick(4)
	weights := []float64{0.125, 2.5, 0.0625, 7.75}
	for i, w := range weights {
		f.Set(i+1, w)
	}
	before := f.Total()
	f.Grow(50)
	if f.Size() < 50 {
		t.Errorf(UnequalIntParameterError, "grown size at least", 50, f.Size())
	}
	if got := f.Total(); got != before {
		t.Errorf(UnequalFloatParameterError, "total after growth", before, got)
	}
	for i, w := range weights {
		if got := f.Get(i + 1); got != w {
			t.Errorf(UnequalFloatParameterError, "weight after growth", w, got)
		}
	}
}
