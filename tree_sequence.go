package msprime

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"
)

// NullNode marks the absence of a parent in a sparse tree.
const NullNode = -1

// CoalescenceRecord asserts that on the half-open genomic interval
// [Left, Right), Node is the immediate ancestor of every entry in
// Children. Children are sorted ascending.
type CoalescenceRecord struct {
	Left       float64
	Right      float64
	Node       int
	Children   []int
	Time       float64
	Population int
}

// TreeSequence is the finished output of one replicate: the sorted,
// indexed stream of coalescence records together with the node table.
// It is immutable once built.
type TreeSequence struct {
	uid            ksuid.KSUID
	sequenceLength float64
	sampleSize     int
	records        []CoalescenceRecord
	nodeTimes      []float64
	nodePops       []int

	// Index permutations over records: insertion order walks Left
	// ascending, removal order walks Right ascending. Together they
	// give O(1) amortised tree updates while iterating.
	insertionOrder []int
	removalOrder   []int
}

// newTreeSequence sorts the record stream by (time, left), validates
// the structural invariants, and builds the two index permutations.
func newTreeSequence(length float64, sampleSize int, records []CoalescenceRecord, nodeTimes []float64, nodePops []int) (*TreeSequence, error) {
	ts := new(TreeSequence)
	ts.uid = ksuid.New()
	ts.sequenceLength = length
	ts.sampleSize = sampleSize
	ts.records = records
	ts.nodeTimes = nodeTimes
	ts.nodePops = nodePops

	sort.SliceStable(ts.records, func(i, j int) bool {
		if ts.records[i].Time != ts.records[j].Time {
			return ts.records[i].Time < ts.records[j].Time
		}
		return ts.records[i].Left < ts.records[j].Left
	})
	for _, rec := range ts.records {
		if rec.Left < 0 || rec.Right > length || rec.Left >= rec.Right {
			return nil, errors.Errorf("record interval [%g, %g) outside [0, %g)", rec.Left, rec.Right, length)
		}
		if len(rec.Children) < 2 {
			return nil, &InternalError{Detail: "record with fewer than two children"}
		}
		if rec.Node >= len(nodeTimes) {
			return nil, &InternalError{Detail: "record parent beyond node table"}
		}
		for i, c := range rec.Children {
			if i > 0 && rec.Children[i-1] >= c {
				return nil, &InternalError{Detail: "record children not sorted ascending"}
			}
			if nodeTimes[c] >= rec.Time {
				return nil, &InternalError{Detail: "child at or above parent time"}
			}
		}
	}

	m := len(ts.records)
	ts.insertionOrder = make([]int, m)
	ts.removalOrder = make([]int, m)
	for i := 0; i < m; i++ {
		ts.insertionOrder[i] = i
		ts.removalOrder[i] = i
	}
	sort.SliceStable(ts.insertionOrder, func(a, b int) bool {
		ra, rb := &ts.records[ts.insertionOrder[a]], &ts.records[ts.insertionOrder[b]]
		if ra.Left != rb.Left {
			return ra.Left < rb.Left
		}
		return ra.Time < rb.Time
	})
	sort.SliceStable(ts.removalOrder, func(a, b int) bool {
		ra, rb := &ts.records[ts.removalOrder[a]], &ts.records[ts.removalOrder[b]]
		if ra.Right != rb.Right {
			return ra.Right < rb.Right
		}
		return ra.Time > rb.Time
	})
	return ts, nil
}

// UID returns the replicate's unique identifier.
func (ts *TreeSequence) UID() ksuid.KSUID {
	return ts.uid
}

// SequenceLength returns the genome length in physical coordinates.
func (ts *TreeSequence) SequenceLength() float64 {
	return ts.sequenceLength
}

// SampleSize returns the number of sampled chromosomes.
func (ts *TreeSequence) SampleSize() int {
	return ts.sampleSize
}

// NumNodes returns the number of nodes in the node table, leaves
// included.
func (ts *TreeSequence) NumNodes() int {
	return len(ts.nodeTimes)
}

// NodeTime returns the birth time of a node in generations.
func (ts *TreeSequence) NodeTime(node int) float64 {
	return ts.nodeTimes[node]
}

// NodePopulation returns the population a node was assigned to.
func (ts *TreeSequence) NodePopulation(node int) int {
	return ts.nodePops[node]
}

// Records returns the record stream sorted by (time, left). The slice
// is shared; callers must not mutate it.
func (ts *TreeSequence) Records() []CoalescenceRecord {
	return ts.records
}

// Breakpoints returns the sorted distinct left boundaries appearing
// in any record: the recombination positions that survived to affect
// the genealogy, plus zero.
func (ts *TreeSequence) Breakpoints() []float64 {
	seen := make(map[float64]bool)
	var out []float64
	for _, rec := range ts.records {
		if !seen[rec.Left] {
			seen[rec.Left] = true
			out = append(out, rec.Left)
		}
	}
	sort.Float64s(out)
	return out
}

// SparseTree is one genealogy of the sequence, represented as a
// parent array valid on a half-open genomic interval.
type SparseTree struct {
	parent []int
	left   float64
	right  float64
}

// Interval returns the genomic interval on which the tree applies.
func (t *SparseTree) Interval() (float64, float64) {
	return t.left, t.right
}

// Parent returns the parent of a node, or NullNode at a root.
func (t *SparseTree) Parent(node int) int {
	return t.parent[node]
}

// ParentArray returns the underlying parent array. It is overwritten
// by the next iterator step; copy it to keep it.
func (t *SparseTree) ParentArray() []int {
	return t.parent
}

// Root follows parent links upward from the given node.
func (t *SparseTree) Root(node int) int {
	for t.parent[node] != NullNode {
		node = t.parent[node]
	}
	return node
}

// TreeIterator enumerates the trees of a sequence left to right. The
// usual form is
//
//	it := ts.Trees()
//	for it.Next() {
//		tree := it.Tree()
//		...
//	}
type TreeIterator struct {
	ts   *TreeSequence
	tree SparseTree
	j, k int
}

// Trees returns an iterator positioned before the first tree.
func (ts *TreeSequence) Trees() *TreeIterator {
	it := new(TreeIterator)
	it.ts = ts
	it.tree.parent = make([]int, ts.NumNodes())
	for i := range it.tree.parent {
		it.tree.parent[i] = NullNode
	}
	return it
}

// Next advances to the next tree. It returns false once the iterator
// has moved past the end of the sequence.
func (it *TreeIterator) Next() bool {
	ts := it.ts
	m := len(ts.records)
	x := it.tree.right
	if x >= ts.sequenceLength {
		return false
	}
	for it.k < m && ts.records[ts.removalOrder[it.k]].Right == x {
		rec := &ts.records[ts.removalOrder[it.k]]
		for _, c := range rec.Children {
			it.tree.parent[c] = NullNode
		}
		it.k++
	}
	for it.j < m && ts.records[ts.insertionOrder[it.j]].Left == x {
		rec := &ts.records[ts.insertionOrder[it.j]]
		for _, c := range rec.Children {
			it.tree.parent[c] = rec.Node
		}
		it.j++
	}
	right := ts.sequenceLength
	if it.j < m {
		if l := ts.records[ts.insertionOrder[it.j]].Left; l < right {
			right = l
		}
	}
	if it.k < m {
		if r := ts.records[ts.removalOrder[it.k]].Right; r < right {
			right = r
		}
	}
	it.tree.left = x
	it.tree.right = right
	return true
}

// Tree returns the current tree. The returned value is reused by the
// iterator.
func (it *TreeIterator) Tree() *SparseTree {
	return &it.tree
}

// ReverseTreeIterator enumerates the trees right to left, reusing the
// same index permutations in the opposite direction.
type ReverseTreeIterator struct {
	ts   *TreeSequence
	tree SparseTree
	j, k int
}

// TreesReverse returns an iterator positioned after the last tree.
func (ts *TreeSequence) TreesReverse() *ReverseTreeIterator {
	it := new(ReverseTreeIterator)
	it.ts = ts
	it.tree.parent = make([]int, ts.NumNodes())
	for i := range it.tree.parent {
		it.tree.parent[i] = NullNode
	}
	it.tree.left = ts.sequenceLength
	it.tree.right = ts.sequenceLength
	return it
}

// Next steps one tree to the left, returning false past the start of
// the sequence.
func (it *ReverseTreeIterator) Next() bool {
	ts := it.ts
	m := len(ts.records)
	x := it.tree.left
	if x <= 0 {
		return false
	}
	// Walking leftward, insertion order reversed removes records whose
	// interval starts at x; removal order reversed inserts records
	// whose interval ends at x.
	for it.k < m && ts.records[ts.insertionOrder[m-1-it.k]].Left == x {
		rec := &ts.records[ts.insertionOrder[m-1-it.k]]
		for _, c := range rec.Children {
			it.tree.parent[c] = NullNode
		}
		it.k++
	}
	for it.j < m && ts.records[ts.removalOrder[m-1-it.j]].Right == x {
		rec := &ts.records[ts.removalOrder[m-1-it.j]]
		for _, c := range rec.Children {
			it.tree.parent[c] = rec.Node
		}
		it.j++
	}
	left := 0.0
	if it.j < m {
		if r := ts.records[ts.removalOrder[m-1-it.j]].Right; r > left {
			left = r
		}
	}
	if it.k < m {
		if l := ts.records[ts.insertionOrder[m-1-it.k]].Left; l > left {
			left = l
		}
	}
	it.tree.right = x
	it.tree.left = left
	return true
}

// Tree returns the current tree. The returned value is reused by the
// iterator.
func (it *ReverseTreeIterator) Tree() *SparseTree {
	return &it.tree
}
