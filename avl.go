package msprime

// populationIndex is a balanced search tree holding the lineages
// currently in one population, keyed by the left endpoint of each
// lineage's head segment with the lineage id as a tie-break. Subtree
// sizes are maintained so that the k-th lineage in key order can be
// selected in O(log n); uniform draws by rank are what makes lineage
// sampling deterministic for a given generator state.
type populationIndex struct {
	root *avlNode
	pool *objectHeap[avlNode]
}

type avlNode struct {
	lin    *lineage
	left   *avlNode
	right  *avlNode
	height int
	size   int
}

func newPopulationIndex(pool *objectHeap[avlNode]) *populationIndex {
	return &populationIndex{pool: pool}
}

func lineageLess(a, b *lineage) bool {
	if a.head.left != b.head.left {
		return a.head.left < b.head.left
	}
	return a.id < b.id
}

// Size returns the number of lineages in the index.
func (ix *populationIndex) Size() int {
	return ix.root.subtreeSize()
}

func (n *avlNode) subtreeSize() int {
	if n == nil {
		return 0
	}
	return n.size
}

func (n *avlNode) subtreeHeight() int {
	if n == nil {
		return 0
	}
	return n.height
}

func (n *avlNode) update() {
	n.height = 1 + max(n.left.subtreeHeight(), n.right.subtreeHeight())
	n.size = 1 + n.left.subtreeSize() + n.right.subtreeSize()
}

func (n *avlNode) balance() int {
	return n.left.subtreeHeight() - n.right.subtreeHeight()
}

func rotateRight(y *avlNode) *avlNode {
	x := y.left
	y.left = x.right
	x.right = y
	y.update()
	x.update()
	return x
}

func rotateLeft(x *avlNode) *avlNode {
	y := x.right
	x.right = y.left
	y.left = x
	x.update()
	y.update()
	return y
}

func rebalance(n *avlNode) *avlNode {
	n.update()
	b := n.balance()
	if b > 1 {
		if n.left.balance() < 0 {
			n.left = rotateLeft(n.left)
		}
		return rotateRight(n)
	}
	if b < -1 {
		if n.right.balance() > 0 {
			n.right = rotateRight(n.right)
		}
		return rotateLeft(n)
	}
	return n
}

// Insert adds a lineage to the index. The lineage's head must not
// change while it is registered.
func (ix *populationIndex) Insert(l *lineage) error {
	var err error
	ix.root, err = ix.insert(ix.root, l)
	return err
}

func (ix *populationIndex) insert(n *avlNode, l *lineage) (*avlNode, error) {
	if n == nil {
		node, err := ix.pool.alloc()
		if err != nil {
			return nil, err
		}
		node.lin = l
		node.height = 1
		node.size = 1
		return node, nil
	}
	var err error
	if lineageLess(l, n.lin) {
		n.left, err = ix.insert(n.left, l)
	} else {
		n.right, err = ix.insert(n.right, l)
	}
	if err != nil {
		return nil, err
	}
	return rebalance(n), nil
}

// Remove deletes a lineage from the index. Returns an InternalError
// if the lineage is not present.
func (ix *populationIndex) Remove(l *lineage) error {
	root, found := ix.remove(ix.root, l)
	if !found {
		return &InternalError{Detail: "lineage missing from population index"}
	}
	ix.root = root
	return nil
}

func (ix *populationIndex) remove(n *avlNode, l *lineage) (*avlNode, bool) {
	if n == nil {
		return nil, false
	}
	var found bool
	switch {
	case n.lin == l:
		found = true
		switch {
		case n.left == nil:
			r := n.right
			ix.pool.release(n)
			return r, true
		case n.right == nil:
			r := n.left
			ix.pool.release(n)
			return r, true
		default:
			// Two children: adopt the in-order successor's lineage,
			// then delete the successor node.
			succ := n.right
			for succ.left != nil {
				succ = succ.left
			}
			n.lin = succ.lin
			n.right, _ = ix.remove(n.right, succ.lin)
		}
	case lineageLess(l, n.lin):
		n.left, found = ix.remove(n.left, l)
	default:
		n.right, found = ix.remove(n.right, l)
	}
	if !found {
		return n, false
	}
	return rebalance(n), true
}

// Kth returns the lineage at rank k (0-based, key order). The caller
// must ensure 0 <= k < Size().
func (ix *populationIndex) Kth(k int) *lineage {
	n := ix.root
	for n != nil {
		ls := n.left.subtreeSize()
		switch {
		case k < ls:
			n = n.left
		case k == ls:
			return n.lin
		default:
			k -= ls + 1
			n = n.right
		}
	}
	return nil
}

// Walk visits every lineage in key order.
func (ix *populationIndex) Walk(visit func(*lineage)) {
	var walk func(n *avlNode)
	walk = func(n *avlNode) {
		if n == nil {
			return
		}
		walk(n.left)
		visit(n.lin)
		walk(n.right)
	}
	walk(ix.root)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
