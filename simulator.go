package msprime

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/pkg/errors"
	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// PopulationConfiguration describes one deme at the start of a
// replicate. A zero InitialSize falls back to the model's Ne.
type PopulationConfiguration struct {
	InitialSize float64
	GrowthRate  float64
	SampleSize  int
}

// SimulatorConfig is the programmatic configuration of one replicate
// of the coalescent with recombination.
type SimulatorConfig struct {
	// SampleSize is the number of sampled chromosomes when Populations
	// is empty. It must be zero when Populations is set; the
	// per-population sample sizes apply then.
	SampleSize int
	// Ne is the default effective population size used wherever an
	// initial size is omitted. Defaults to 1.
	Ne             float64
	SequenceLength float64
	// RecombinationRate is the flat per-base per-generation crossover
	// rate; ignored when RecombinationMap is set.
	RecombinationRate float64
	RecombinationMap  *RecombinationMap
	Populations       []PopulationConfiguration
	MigrationMatrix   [][]float64
	Events            []DemographicEvent
	RandomSeed        uint64
	// MaxSteps bounds the number of event-loop iterations per
	// replicate. Zero selects a large default.
	MaxSteps int
	// MaxSegments caps the live objects in the segment heap. Zero
	// means unlimited.
	MaxSegments int
}

const defaultMaxSteps = 1 << 26

// Validate checks the whole configuration before any simulation
// state is built.
func (c *SimulatorConfig) Validate() error {
	if c.SequenceLength <= 0 {
		return errors.Errorf(InvalidFloatParameterError, "sequence length", c.SequenceLength, "must be positive")
	}
	if c.Ne < 0 {
		return errors.Errorf(InvalidFloatParameterError, "Ne", c.Ne, "must be non-negative")
	}
	n := c.SampleSize
	if len(c.Populations) > 0 {
		if c.SampleSize > 0 {
			return errors.Errorf(InvalidIntParameterError, "sample size", c.SampleSize, "cannot be combined with population configurations")
		}
		n = 0
		for _, p := range c.Populations {
			if p.SampleSize < 0 {
				return errors.Errorf(InvalidIntParameterError, "sample size", p.SampleSize, "must be non-negative")
			}
			if p.InitialSize < 0 {
				return errors.Errorf(InvalidFloatParameterError, "initial size", p.InitialSize, "must be non-negative")
			}
			n += p.SampleSize
		}
	}
	if n < 2 {
		return errors.Errorf(InvalidIntParameterError, "total sample size", n, "at least two chromosomes are required")
	}
	d := len(c.Populations)
	if d == 0 {
		d = 1
	}
	if c.MigrationMatrix != nil {
		if err := validateMigrationMatrix(c.MigrationMatrix, d); err != nil {
			return err
		}
	}
	if c.RecombinationMap == nil && c.RecombinationRate < 0 {
		return errors.Errorf(InvalidFloatParameterError, "recombination rate", c.RecombinationRate, "must be non-negative")
	}
	if c.RecombinationMap != nil && c.RecombinationMap.SequenceLength() != c.SequenceLength {
		return errors.Errorf(InvalidFloatParameterError, "recombination map length", c.RecombinationMap.SequenceLength(), "must match the sequence length")
	}
	last := math.Inf(-1)
	for _, e := range c.Events {
		if err := e.validate(d); err != nil {
			return err
		}
		t := e.EventTime()
		if t < 0 {
			return errors.Errorf(InvalidFloatParameterError, "event time", t, "must be non-negative")
		}
		if t < last {
			return errors.Errorf(InvalidFloatParameterError, "event time", t, "event times must be non-decreasing")
		}
		last = t
	}
	return nil
}

// Simulator is a single-replicate coalescent-with-recombination
// engine. It owns all mutable state; one Simulator must not be shared
// between goroutines. Replicates parallelise by building independent
// Simulators with independent seeds.
type Simulator struct {
	rng *exprand.Rand
	src exprand.Source

	recombMap   *RecombinationMap
	migration   [][]float64
	populations []*population
	events      *eventQueue

	segmentPool *objectHeap[segment]
	avlPool     *objectHeap[avlNode]
	weights     *fenwick
	lineages    []*lineage // slot per id; nil when the id is free
	freeIDs     []int
	nextID      int // high-water mark of issued ids

	sampleSize int
	samplePops []int
	time       float64
	nodeTimes  []float64
	nodePops   []int
	records    []CoalescenceRecord
	overlaps   overlapIndex

	steps     int
	maxSteps  int
	cancelled atomic.Bool

	// scratch for per-iteration hazard bookkeeping
	coalRates []float64
	migRates  []float64
}

// NewSimulator validates the configuration and builds the initial
// state: one lineage per sampled chromosome, each carrying a single
// segment spanning the whole genome.
func NewSimulator(c SimulatorConfig) (*Simulator, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	ne := c.Ne
	if ne == 0 {
		ne = 1
	}
	popConfigs := c.Populations
	if len(popConfigs) == 0 {
		popConfigs = []PopulationConfiguration{{SampleSize: c.SampleSize}}
	}
	d := len(popConfigs)

	s := new(Simulator)
	s.src = exprand.NewSource(c.RandomSeed)
	s.rng = exprand.New(s.src)
	s.maxSteps = c.MaxSteps
	if s.maxSteps == 0 {
		s.maxSteps = defaultMaxSteps
	}

	var err error
	s.recombMap = c.RecombinationMap
	if s.recombMap == nil {
		s.recombMap, err = NewUniformRecombinationMap(c.RecombinationRate, c.SequenceLength)
		if err != nil {
			return nil, err
		}
	}
	if c.MigrationMatrix != nil {
		s.migration = copyMatrix(c.MigrationMatrix)
	} else {
		s.migration = make([][]float64, d)
		for i := range s.migration {
			s.migration[i] = make([]float64, d)
		}
	}

	s.segmentPool = newObjectHeap[segment](defaultSlabSize, c.MaxSegments)
	s.avlPool = newObjectHeap[avlNode](defaultSlabSize, 0)
	s.populations = make([]*population, d)
	for i, pc := range popConfigs {
		size := pc.InitialSize
		if size == 0 {
			size = ne
		}
		s.populations[i] = &population{
			initialSize: size,
			growthRate:  pc.GrowthRate,
			index:       newPopulationIndex(s.avlPool),
		}
	}
	s.events = newEventQueue(c.Events)
	s.coalRates = make([]float64, d)
	s.migRates = make([]float64, d)

	// One sample per chromosome, population by population.
	for i, pc := range popConfigs {
		for j := 0; j < pc.SampleSize; j++ {
			s.samplePops = append(s.samplePops, i)
		}
	}
	s.sampleSize = len(s.samplePops)
	s.weights = newFenwick(2 * s.sampleSize)
	s.lineages = make([]*lineage, s.weights.Size()+1)
	s.nodeTimes = make([]float64, s.sampleSize)
	s.nodePops = make([]int, s.sampleSize)
	copy(s.nodePops, s.samplePops)
	s.overlaps.init(s.sampleSize, c.SequenceLength)

	for node, popID := range s.samplePops {
		seg, err := s.segmentPool.alloc()
		if err != nil {
			return nil, err
		}
		seg.left = 0
		seg.right = c.SequenceLength
		seg.node = node
		seg.population = popID
		l := &lineage{head: seg, tail: seg, population: popID}
		if err := s.registerLineage(l); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Time returns the current simulation time in generations.
func (s *Simulator) Time() float64 {
	return s.time
}

// NumRecords returns the number of coalescence records emitted so
// far.
func (s *Simulator) NumRecords() int {
	return len(s.records)
}

// Cancel requests cooperative cancellation; the engine notices it
// between iterations of the event loop and abandons the replicate.
func (s *Simulator) Cancel() {
	s.cancelled.Store(true)
}

// allocLineageID pops the most recently released id, or advances the
// monotone high-water mark. LIFO reuse keeps id allocation
// deterministic.
func (s *Simulator) allocLineageID() int {
	if n := len(s.freeIDs); n > 0 {
		id := s.freeIDs[n-1]
		s.freeIDs = s.freeIDs[:n-1]
		return id
	}
	s.nextID++
	if s.nextID > s.weights.Size() {
		s.weights.Grow(s.nextID)
		grown := make([]*lineage, s.weights.Size()+1)
		copy(grown, s.lineages)
		s.lineages = grown
	}
	return s.nextID
}

// registerLineage gives the lineage an id, records its recombination
// weight and inserts it into its population's index.
func (s *Simulator) registerLineage(l *lineage) error {
	l.id = s.allocLineageID()
	s.lineages[l.id] = l
	s.setLineageWeight(l)
	return s.populations[l.population].index.Insert(l)
}

// releaseLineage frees the lineage's id and weight. Its segments must
// already be detached or freed by the caller.
func (s *Simulator) releaseLineage(l *lineage) {
	s.weights.Set(l.id, 0)
	s.lineages[l.id] = nil
	s.freeIDs = append(s.freeIDs, l.id)
}

// setLineageWeight stores the genetic length of the lineage's
// recombinable span in the Fenwick tree.
func (s *Simulator) setLineageWeight(l *lineage) {
	w := s.recombMap.PhysicalToGenetic(l.tail.right) - s.recombMap.PhysicalToGenetic(l.head.left)
	s.weights.Set(l.id, w)
}

func (s *Simulator) extantLineages() int {
	n := 0
	for _, p := range s.populations {
		n += p.index.Size()
	}
	return n
}

func (s *Simulator) drawExponential(rate float64) float64 {
	e := distuv.Exponential{Rate: rate, Src: s.src}
	return e.Rand()
}

// Run drives the event loop until every site has fully coalesced and
// returns the finished tree sequence. The replicate is abandoned on
// the first numeric or internal error.
func (s *Simulator) Run() (*TreeSequence, error) {
	for s.extantLineages() > 0 {
		if s.cancelled.Load() {
			return nil, ErrCancelled
		}
		s.steps++
		if s.steps > s.maxSteps {
			return nil, &NumericError{
				Op:     "event loop",
				Detail: fmt.Sprintf("step budget of %d exhausted with %d lineages remaining", s.maxSteps, s.extantLineages()),
			}
		}
		if err := s.step(); err != nil {
			return nil, err
		}
	}
	return s.finalize()
}

// step performs one iteration of the competing-hazards loop: compute
// rates at the current configuration, draw a waiting time, fire the
// next demographic event if it preempts the draw, otherwise dispatch
// the sampled event kind.
func (s *Simulator) step() error {
	recombRate := s.weights.Total()
	lambda := recombRate
	for i, p := range s.populations {
		k := float64(p.index.Size())
		var coal, mig float64
		if k > 0 {
			n := p.sizeAt(s.time)
			if n <= 0 || math.IsNaN(n) || math.IsInf(n, 0) {
				return &NumericError{
					Op:     "coalescence rate",
					Detail: fmt.Sprintf("population %d has effective size %g at time %g with %d lineages", i, n, s.time, int(k)),
				}
			}
			// n diploid individuals carry 2n chromosomes, so each
			// pair of lineages coalesces at rate 1/(2n).
			coal = k * (k - 1) / (4 * n)
			for j, rate := range s.migration[i] {
				if j != i {
					mig += k * rate
				}
			}
		}
		s.coalRates[i] = coal
		s.migRates[i] = mig
		lambda += coal + mig
	}
	if math.IsNaN(lambda) || math.IsInf(lambda, 0) {
		return &NumericError{Op: "total rate", Detail: fmt.Sprintf("non-finite total event rate at time %g", s.time)}
	}
	if lambda <= 0 {
		// Only a scheduled event can change anything now.
		if te, ok := s.events.peekTime(); ok {
			s.time = te
			return s.events.pop().apply(s)
		}
		return &NumericError{
			Op:     "total rate",
			Detail: fmt.Sprintf("zero total event rate at time %g with %d lineages remaining; the samples cannot coalesce", s.time, s.extantLineages()),
		}
	}
	// The rate is held fixed across the waiting interval. Under a
	// non-zero growth rate the hazard varies within the interval and
	// this is a first-order approximation of the time-transformed
	// draw.
	candidate := s.time + s.drawExponential(lambda)
	if te, ok := s.events.peekTime(); ok && te <= candidate {
		s.time = te
		return s.events.pop().apply(s)
	}
	s.time = candidate

	u := s.rng.Float64() * lambda
	for i, rate := range s.coalRates {
		if u < rate {
			return s.commonAncestorEvent(i)
		}
		u -= rate
	}
	if u < recombRate {
		return s.recombinationEvent()
	}
	u -= recombRate
	for i, rate := range s.migRates {
		if u < rate {
			return s.migrationEvent(i)
		}
		u -= rate
	}
	// Floating-point residue: fall back to the last positive category.
	for i := len(s.migRates) - 1; i >= 0; i-- {
		if s.migRates[i] > 0 {
			return s.migrationEvent(i)
		}
	}
	if recombRate > 0 {
		return s.recombinationEvent()
	}
	for i := len(s.coalRates) - 1; i >= 0; i-- {
		if s.coalRates[i] > 0 {
			return s.commonAncestorEvent(i)
		}
	}
	return &InternalError{Detail: "event dispatch fell through every category"}
}

// recombinationEvent samples a lineage weighted by recombinable
// genetic length, maps the draw to a physical breakpoint, and splits
// the lineage there. A breakpoint that leaves all material on one
// side is a no-op.
func (s *Simulator) recombinationEvent() error {
	total := s.weights.Total()
	u := s.rng.Float64() * total
	id := s.weights.Find(u)
	l := s.lineages[id]
	if l == nil {
		return &InternalError{Detail: fmt.Sprintf("recombination sampled free lineage id %d", id)}
	}
	// Convert the residual mass into a genetic coordinate inside the
	// lineage, then back to physical space.
	y := u - s.weights.PrefixSum(id-1)
	g := s.recombMap.PhysicalToGenetic(l.head.left) + y
	x := s.recombMap.GeneticToPhysical(g)
	if x <= l.head.left || x >= l.tail.right {
		return nil
	}
	seg := l.head
	for seg.right <= x {
		seg = seg.next
	}
	var newHead, newTail *segment
	if seg.left >= x {
		// Breakpoint falls between segments: no split required.
		newHead = seg
		newTail = l.tail
		l.tail = seg.prev
		l.tail.next = nil
		seg.prev = nil
	} else {
		right, err := s.segmentPool.alloc()
		if err != nil {
			return err
		}
		right.left = x
		right.right = seg.right
		right.node = seg.node
		right.population = seg.population
		right.next = seg.next
		if right.next != nil {
			right.next.prev = right
		}
		newTail = l.tail
		if l.tail == seg {
			newTail = right
		}
		seg.right = x
		seg.next = nil
		l.tail = seg
		newHead = right
	}
	s.setLineageWeight(l)
	split := &lineage{head: newHead, tail: newTail, population: l.population}
	return s.registerLineage(split)
}

// commonAncestorEvent draws two distinct lineages from population p
// by rank and merges their ancestral material.
func (s *Simulator) commonAncestorEvent(p int) error {
	ix := s.populations[p].index
	k := ix.Size()
	if k < 2 {
		return &InternalError{Detail: fmt.Sprintf("coalescence sampled in population %d with %d lineages", p, k)}
	}
	j := s.rng.Intn(k)
	m := s.rng.Intn(k - 1)
	if m >= j {
		m++
	}
	a := ix.Kth(j)
	b := ix.Kth(m)
	if err := ix.Remove(a); err != nil {
		return err
	}
	if err := ix.Remove(b); err != nil {
		return err
	}
	return s.mergeLineages(a, b, p)
}

// mergeLineages sweeps the two segment lists in ascending left order.
// Disjoint material passes through; overlapping material coalesces
// into a freshly allocated node, one node per event. Sub-intervals on
// which every sample has found a common ancestor are dropped from
// further tracking.
func (s *Simulator) mergeLineages(a, b *lineage, popID int) error {
	x, y := a.head, b.head
	var head, tail *segment
	parent := -1

	appendSegment := func(seg *segment) {
		seg.population = popID
		seg.prev = tail
		seg.next = nil
		if tail == nil {
			head = seg
			tail = seg
			return
		}
		// Defragment: extend the tail instead of linking a contiguous
		// segment with the same node.
		if tail.right == seg.left && tail.node == seg.node {
			tail.right = seg.right
			s.segmentPool.release(seg)
			return
		}
		tail.next = seg
		seg.prev = tail
		tail = seg
	}

	for x != nil || y != nil {
		if x == nil || (y != nil && y.left < x.left) {
			x, y = y, x
		}
		if y == nil || x.right <= y.left {
			// x is wholly before y: pass through untouched.
			next := x.next
			x.prev, x.next = nil, nil
			appendSegment(x)
			x = next
			continue
		}
		if x.left < y.left {
			// The leading part of x is unopposed: split it off.
			lead, err := s.segmentPool.alloc()
			if err != nil {
				return err
			}
			lead.left = x.left
			lead.right = y.left
			lead.node = x.node
			lead.population = x.population
			appendSegment(lead)
			x.left = y.left
			continue
		}
		// Both lineages carry material from x.left.
		l := x.left
		r := math.Min(x.right, y.right)
		if parent == -1 {
			parent = len(s.nodeTimes)
			s.nodeTimes = append(s.nodeTimes, s.time)
			s.nodePops = append(s.nodePops, popID)
		}
		c0, c1 := x.node, y.node
		if c0 > c1 {
			c0, c1 = c1, c0
		}
		err := s.overlaps.forEachPiece(l, r, func(pl, pr float64, count int) error {
			if count < 2 {
				return &InternalError{Detail: fmt.Sprintf("overlap count %d on coalescing interval [%g, %g)", count, pl, pr)}
			}
			s.emitRecord(CoalescenceRecord{
				Left:       pl,
				Right:      pr,
				Node:       parent,
				Children:   []int{c0, c1},
				Time:       s.time,
				Population: popID,
			})
			if count == 2 {
				// Every sample has coalesced here; stop tracking.
				s.overlaps.setCount(pl, 0)
				return nil
			}
			s.overlaps.setCount(pl, count-1)
			seg, err := s.segmentPool.alloc()
			if err != nil {
				return err
			}
			seg.left = pl
			seg.right = pr
			seg.node = parent
			appendSegment(seg)
			return nil
		})
		if err != nil {
			return err
		}
		if x, err = s.trimSegment(x, r); err != nil {
			return err
		}
		if y, err = s.trimSegment(y, r); err != nil {
			return err
		}
	}

	if head == nil {
		s.releaseLineage(b)
		s.releaseLineage(a)
		return nil
	}
	a.head = head
	a.tail = tail
	a.setPopulation(popID)
	s.releaseLineage(b)
	s.setLineageWeight(a)
	return s.populations[popID].index.Insert(a)
}

// trimSegment discards the part of seg left of r, freeing the segment
// entirely when it is exhausted, and returns the next segment to
// process in its list.
func (s *Simulator) trimSegment(seg *segment, r float64) (*segment, error) {
	if seg.right == r {
		next := seg.next
		s.segmentPool.release(seg)
		return next, nil
	}
	if seg.right < r {
		return nil, &InternalError{Detail: "merge sweep overran a segment"}
	}
	seg.left = r
	return seg, nil
}

// emitRecord appends a coalescence record, extending the previous one
// when it continues the same parent/children tuple contiguously.
func (s *Simulator) emitRecord(rec CoalescenceRecord) {
	if n := len(s.records); n > 0 {
		last := &s.records[n-1]
		if last.Node == rec.Node && last.Right == rec.Left && last.Time == rec.Time &&
			last.Children[0] == rec.Children[0] && last.Children[1] == rec.Children[1] {
			last.Right = rec.Right
			return
		}
	}
	s.records = append(s.records, rec)
}

// migrationEvent moves one uniformly chosen lineage out of src, with
// the destination drawn by row weight.
func (s *Simulator) migrationEvent(src int) error {
	row := s.migration[src]
	var rowSum float64
	for j, rate := range row {
		if j != src {
			rowSum += rate
		}
	}
	if rowSum <= 0 {
		return &InternalError{Detail: fmt.Sprintf("migration sampled from population %d with zero outward rate", src)}
	}
	u := s.rng.Float64() * rowSum
	dst := -1
	for j, rate := range row {
		if j == src {
			continue
		}
		if u < rate {
			dst = j
			break
		}
		u -= rate
	}
	if dst == -1 {
		for j := len(row) - 1; j >= 0; j-- {
			if j != src && row[j] > 0 {
				dst = j
				break
			}
		}
	}
	ix := s.populations[src].index
	l := ix.Kth(s.rng.Intn(ix.Size()))
	return s.moveLineage(l, dst)
}

// moveLineage reassigns a lineage to another population, relabelling
// its segments.
func (s *Simulator) moveLineage(l *lineage, dst int) error {
	if err := s.populations[l.population].index.Remove(l); err != nil {
		return err
	}
	l.setPopulation(dst)
	return s.populations[dst].index.Insert(l)
}

// finalize sorts and indexes the record stream.
func (s *Simulator) finalize() (*TreeSequence, error) {
	return newTreeSequence(
		s.recombMap.SequenceLength(),
		s.sampleSize,
		s.records,
		s.nodeTimes,
		s.nodePops,
	)
}

// overlapIndex tracks, per genomic interval, how many extant lineages
// carry ancestral material there. It is a sorted breakpoint table:
// entries[i].count applies on [entries[i].pos, entries[i+1].pos). The
// final entry is a sentinel at the sequence end with count zero.
type overlapIndex struct {
	entries []overlapEntry
}

type overlapEntry struct {
	pos   float64
	count int
}

func (o *overlapIndex) init(n int, length float64) {
	o.entries = []overlapEntry{{pos: 0, count: n}, {pos: length, count: 0}}
}

// splitAt ensures a breakpoint exists at x and returns its index.
func (o *overlapIndex) splitAt(x float64) int {
	lo, hi := 0, len(o.entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if o.entries[mid].pos < x {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(o.entries) && o.entries[lo].pos == x {
		return lo
	}
	// x falls inside the interval starting at lo-1.
	o.entries = append(o.entries, overlapEntry{})
	copy(o.entries[lo+1:], o.entries[lo:])
	o.entries[lo] = overlapEntry{pos: x, count: o.entries[lo-1].count}
	return lo
}

// forEachPiece visits the maximal uniform-count pieces of [l, r).
func (o *overlapIndex) forEachPiece(l, r float64, visit func(pl, pr float64, count int) error) error {
	i := o.splitAt(l)
	o.splitAt(r)
	for ; o.entries[i].pos < r; i++ {
		if err := visit(o.entries[i].pos, o.entries[i+1].pos, o.entries[i].count); err != nil {
			return err
		}
	}
	return nil
}

// setCount replaces the count of the piece starting exactly at pos.
func (o *overlapIndex) setCount(pos float64, count int) {
	i := o.splitAt(pos)
	o.entries[i].count = count
}
