package msprime

import "math/bits"

// fenwick is a 1-indexed binary indexed tree over float64 weights.
// Point values are kept alongside the tree so that weights survive
// growth bit-exactly and Set can be computed without a range query.
type fenwick struct {
	tree   []float64 // tree[0] unused
	values []float64
	n      int
}

// newFenwick creates a tree over indexes 1..n with all weights zero.
func newFenwick(n int) *fenwick {
	if n < 1 {
		n = 1
	}
	f := new(fenwick)
	f.n = n
	f.tree = make([]float64, n+1)
	f.values = make([]float64, n+1)
	return f
}

// Size returns the largest usable index.
func (f *fenwick) Size() int {
	return f.n
}

// Grow extends the index space to at least n, doubling until it fits.
// Stored weights are preserved exactly.
func (f *fenwick) Grow(n int) {
	if n <= f.n {
		return
	}
	m := f.n
	for m < n {
		m *= 2
	}
	values := make([]float64, m+1)
	copy(values, f.values)
	f.n = m
	f.values = values
	f.tree = make([]float64, m+1)
	for i := 1; i <= m; i++ {
		f.tree[i] += values[i]
		if j := i + (i & -i); j <= m {
			f.tree[j] += f.tree[i]
		}
	}
}

// Increment adds delta to the weight at index i.
func (f *fenwick) Increment(i int, delta float64) {
	f.values[i] += delta
	for ; i <= f.n; i += i & -i {
		f.tree[i] += delta
	}
}

// Set replaces the weight at index i.
func (f *fenwick) Set(i int, w float64) {
	f.Increment(i, w-f.values[i])
}

// Get returns the weight at index i.
func (f *fenwick) Get(i int) float64 {
	return f.values[i]
}

// PrefixSum returns the sum of weights over 1..i.
func (f *fenwick) PrefixSum(i int) float64 {
	var s float64
	for ; i > 0; i -= i & -i {
		s += f.tree[i]
	}
	return s
}

// Total returns the sum of all weights.
func (f *fenwick) Total() float64 {
	return f.PrefixSum(f.n)
}

// Find returns the smallest index i such that PrefixSum(i) >= x.
// Ties resolve to the smallest index, which keeps weighted sampling
// reproducible. If x exceeds the total, returns n.
func (f *fenwick) Find(x float64) int {
	target := x
	i := 0
	for b := 1 << (bits.Len(uint(f.n)) - 1); b > 0; b >>= 1 {
		j := i + b
		if j <= f.n && f.tree[j] < x {
			i = j
			x -= f.tree[j]
		}
	}
	k := i + 1
	if k > f.n {
		k = f.n
	}
	// The descent subtracts partial sums and can round differently from
	// PrefixSum; settle the answer against PrefixSum itself.
	for k > 1 && f.PrefixSum(k-1) >= target {
		k--
	}
	for k < f.n && f.PrefixSum(k) < target {
		k++
	}
	return k
}
