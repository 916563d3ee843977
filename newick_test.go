package msprime

import (
	"strings"
	"testing"
)

func TestNewick_Pair(t *testing.T) {
	ts := runReplicate(t, SimulatorConfig{
		SampleSize:     2,
		Ne:             1,
		SequenceLength: 1,
		RandomSeed:     42,
	})
	it := ts.Trees()
	if !it.Next() {
		t.Fatal("no tree to render")
	}
	s := Newick(ts, it.Tree(), 4)
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ");") {
		t.Errorf("malformed Newick string %q", s)
	}
	for _, label := range []string{"1:", "2:"} {
		if !strings.Contains(s, label) {
			t.Errorf("Newick string %q missing leaf %q", s, label)
		}
	}
	if strings.Count(s, "(") != strings.Count(s, ")") {
		t.Errorf("unbalanced parentheses in %q", s)
	}
}

func TestNewick_MultiTree(t *testing.T) {
	ts := twoTreeSequence(t)
	it := ts.Trees()
	for it.Next() {
		s := Newick(ts, it.Tree(), 2)
		if strings.Count(s, ",") != 2 {
			t.Errorf("tree with 3 leaves rendered as %q", s)
		}
		for _, label := range []string{"1", "2", "3"} {
			if !strings.Contains(s, label) {
				t.Errorf("Newick string %q missing leaf %q", s, label)
			}
		}
	}
}
