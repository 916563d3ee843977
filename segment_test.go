package msprime

import "testing"

func buildLineage(intervals [][2]float64) *lineage {
	l := new(lineage)
	for _, iv := range intervals {
		seg := &segment{left: iv[0], right: iv[1], prev: l.tail}
		if l.tail == nil {
			l.head = seg
		} else {
			l.tail.next = seg
		}
		l.tail = seg
	}
	return l
}

func TestLineage_CheckIntegrity(t *testing.T) {
	good := buildLineage([][2]float64{{0, 1}, {2, 3}, {3.5, 10}})
	if err := good.checkIntegrity(); err != nil {
		t.Errorf(UnexpectedErrorWhileError, "checking a well-formed lineage", err)
	}
	if got := good.numSegments(); got != 3 {
		t.Errorf(UnequalIntParameterError, "segment count", 3, got)
	}

	overlapping := buildLineage([][2]float64{{0, 2}, {1, 3}})
	if err := overlapping.checkIntegrity(); err == nil {
		t.Errorf(ExpectedErrorWhileError, "checking an overlapping lineage")
	}

	empty := buildLineage([][2]float64{{1, 1}})
	if err := empty.checkIntegrity(); err == nil {
		t.Errorf(ExpectedErrorWhileError, "checking a lineage with an empty segment")
	}
}

func TestLineage_SetPopulation(t *testing.T) {
	l := buildLineage([][2]float64{{0, 1}, {2, 3}})
	l.setPopulation(2)
	if l.population != 2 {
		t.Errorf(UnequalIntParameterError, "lineage population", 2, l.population)
	}
	for s := l.head; s != nil; s = s.next {
		if s.population != 2 {
			t.Errorf(UnequalIntParameterError, "segment population", 2, s.population)
		}
	}
}
