package msprime

import (
	"math/rand"
	"sort"

	rv "github.com/kentwait/randomvariate"
)

// Mutation is a single infinite-sites mutation: a unique real-valued
// position on the genome and the node above which it occurred. Every
// sample below the node carries the mutation.
type Mutation struct {
	Position float64
	Node     int
}

// GenerateMutations sprinkles mutations over a finished tree
// sequence. For every record branch the number of hits is Poisson
// with mean rate * branch length * interval span; positions are
// uniform within the interval. rate is per generation per unit of
// physical length. Draws come from the process-wide generator seeded
// by the caller.
func GenerateMutations(ts *TreeSequence, rate float64) []Mutation {
	var mutations []Mutation
	if rate <= 0 {
		return mutations
	}
	for _, rec := range ts.Records() {
		span := rec.Right - rec.Left
		for _, child := range rec.Children {
			branch := rec.Time - ts.NodeTime(child)
			hits := rv.Poisson(rate * branch * span)
			for h := 0; h < hits; h++ {
				mutations = append(mutations, Mutation{
					Position: rec.Left + rand.Float64()*span,
					Node:     child,
				})
			}
		}
	}
	sort.Slice(mutations, func(i, j int) bool {
		return mutations[i].Position < mutations[j].Position
	})
	return mutations
}

// CountLeaves returns the number of sampled chromosomes below each
// node of a tree. Used to turn mutations into allele frequencies.
func CountLeaves(ts *TreeSequence, tree *SparseTree) []int {
	counts := make([]int, ts.NumNodes())
	for leaf := 0; leaf < ts.SampleSize(); leaf++ {
		for u := leaf; u != NullNode; u = tree.Parent(u) {
			counts[u]++
		}
	}
	return counts
}
