package msprime

import (
	"fmt"
	"strings"
)

// Newick renders one tree of the sequence in Newick format with
// branch lengths in generations. Leaves are labelled 1..n in the
// convention of most tree viewers.
func Newick(ts *TreeSequence, tree *SparseTree, precision int) string {
	children := make(map[int][]int)
	root := tree.Root(0)
	for u := 0; u < ts.NumNodes(); u++ {
		if p := tree.Parent(u); p != NullNode {
			children[p] = append(children[p], u)
		}
	}
	var b strings.Builder
	var write func(u int)
	write = func(u int) {
		kids := children[u]
		if len(kids) == 0 {
			fmt.Fprintf(&b, "%d", u+1)
			return
		}
		b.WriteByte('(')
		for i, c := range kids {
			if i > 0 {
				b.WriteByte(',')
			}
			write(c)
			branch := ts.NodeTime(tree.Parent(c)) - ts.NodeTime(c)
			fmt.Fprintf(&b, ":%.*f", precision, branch)
		}
		b.WriteByte(')')
	}
	write(root)
	b.WriteByte(';')
	return b.String()
}
