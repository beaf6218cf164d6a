package trace

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/go-logr/logr"

	"github.com/l7mp/difftrace/pkg/lattice"
)

// Spine is the long-lived index of every batch ever inserted into one logical
// collection, kept compact by lazy geometric merging.
//
// Batches are slotted by the power of two their length rounds up to; two
// occupants of one slot start a fueled merge whose result cascades upward.
// Each insert fuels all in-progress merges proportionally to the inserted
// batch's size, which bounds the live batch count to O(log n) and the
// amortized merge work per insert to O(log n) batch merges. Exert applies
// extra fuel between inserts so large merges finish without new data.
//
// Two frontiers steer compaction. The advance frontier (AdvanceBy) permits
// merges to collapse times that readers no longer distinguish. The distinguish
// frontier (DistinguishSince) bounds where readers may still cut historical
// snapshots (CursorThrough): batches stay out of the merge levels until their
// interval is wholly behind it.
//
// A spine belongs to one goroutine; see the package comment.
type Spine[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]] struct {
	advanceFrontier lattice.Frontier[T] // times beyond it must accumulate correctly
	throughFrontier lattice.Frontier[T] // times beyond it must support snapshot cuts
	merging         []mergeLevel[K, V, T, R]
	pending         []*Batch[K, V, T, R]
	upper           lattice.Frontier[T]
	effort          int
	log             logr.Logger
	metrics         *Metrics
}

// SpineOption configures a spine at construction.
type SpineOption func(*spineConfig)

type spineConfig struct {
	effort  int
	log     logr.Logger
	metrics *Metrics
}

// WithEffort sets the merge-effort multiplier: each inserted batch applies
// this multiple of its length in fuel to outstanding merges. Values below one
// are raised to one.
func WithEffort(effort int) SpineOption {
	return func(c *spineConfig) { c.effort = effort }
}

// WithLogger sets the logger merge events are reported to.
func WithLogger(log logr.Logger) SpineOption {
	return func(c *spineConfig) { c.log = log }
}

// WithMetrics attaches size and effort instruments to the spine.
func WithMetrics(m *Metrics) SpineOption {
	return func(c *spineConfig) { c.metrics = m }
}

// NewSpine returns an empty spine at the minimum time.
func NewSpine[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]](opts ...SpineOption) *Spine[K, V, T, R] {
	cfg := spineConfig{effort: 1, log: logr.Discard()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.effort < 1 {
		cfg.effort = 1
	}
	return &Spine[K, V, T, R]{
		advanceFrontier: lattice.Minimum[T](),
		throughFrontier: lattice.Minimum[T](),
		upper:           lattice.Minimum[T](),
		effort:          cfg.effort,
		log:             cfg.log,
		metrics:         cfg.metrics,
	}
}

// Insert introduces a batch whose lower frontier must equal the spine's
// current upper; a non-contiguous insert is a fatal contract violation.
// Degenerate batches with lower equal to upper must be empty and are ignored.
func (sp *Spine[K, V, T, R]) Insert(batch *Batch[K, V, T, R]) {
	if batch.Lower().Equal(batch.Upper()) {
		if batch.Len() != 0 {
			panic(fmt.Sprintf("spine: non-empty batch %s with degenerate interval", batch.Description()))
		}
		return
	}
	if !batch.Lower().Precedes(batch.Upper()) {
		panic(fmt.Sprintf("spine: batch %s with inverted interval", batch.Description()))
	}
	if !batch.Lower().Equal(sp.upper) {
		panic(fmt.Sprintf("spine: batch lower %s does not chain to spine upper %s", batch.Lower(), sp.upper))
	}
	sp.log.V(2).Info("inserting batch", "updates", batch.Len(), "description", batch.Description().String())
	sp.upper = batch.Upper()
	sp.pending = append(sp.pending, batch)
	if sp.metrics != nil {
		sp.metrics.BatchesInserted.Inc()
	}
	sp.considerMerges()
}

// Close seals the spine to the empty frontier, advertising that no batch will
// ever arrive again. Idempotent.
func (sp *Spine[K, V, T, R]) Close() {
	if !sp.upper.IsClosed() {
		sp.Insert(NewEmptyBatch[K, V, T, R](sp.upper, lattice.Closed[T](), sp.upper))
	}
}

// Upper returns the upper frontier of the most recently inserted batch.
func (sp *Spine[K, V, T, R]) Upper() lattice.Frontier[T] { return sp.upper }

// AdvanceBy raises the compaction frontier: updates at times that become
// indistinguishable behind frontier may be summed together by subsequent
// merges. Regressing the frontier is a fatal contract violation; advancing to
// the empty frontier discards all content.
func (sp *Spine[K, V, T, R]) AdvanceBy(frontier lattice.Frontier[T]) {
	if !sp.advanceFrontier.Precedes(frontier) {
		panic(fmt.Sprintf("spine: advance frontier regressed from %s to %s", sp.advanceFrontier, frontier))
	}
	sp.advanceFrontier = frontier
	if frontier.IsClosed() {
		sp.merging = nil
		sp.pending = nil
		sp.updateGauges()
	}
}

// AdvanceFrontier returns the current compaction frontier.
func (sp *Spine[K, V, T, R]) AdvanceFrontier() lattice.Frontier[T] { return sp.advanceFrontier }

// DistinguishSince marks that callers no longer cut snapshots below frontier,
// releasing wholly-covered pending batches into the merge levels.
func (sp *Spine[K, V, T, R]) DistinguishSince(frontier lattice.Frontier[T]) {
	if !sp.throughFrontier.Precedes(frontier) {
		panic(fmt.Sprintf("spine: distinguish frontier regressed from %s to %s", sp.throughFrontier, frontier))
	}
	sp.throughFrontier = frontier
	sp.considerMerges()
}

// DistinguishFrontier returns the current snapshot-cut frontier.
func (sp *Spine[K, V, T, R]) DistinguishFrontier() lattice.Frontier[T] { return sp.throughFrontier }

// Exert performs at most fuel units of outstanding merge work without a new
// insert and returns the unspent fuel, so callers can budget a fixed amount of
// tidying per scheduling turn.
func (sp *Spine[K, V, T, R]) Exert(fuel int) int {
	initial := fuel
	for pos := 0; pos < len(sp.merging) && fuel > 0; pos++ {
		sp.workLevel(pos, &fuel)
	}
	sp.trimLevels()
	if fuel < 0 {
		fuel = 0
	}
	if sp.metrics != nil {
		sp.metrics.FuelSpent.Add(float64(initial - fuel))
	}
	sp.updateGauges()
	return fuel
}

// Cursor returns a merged cursor over everything the spine holds.
func (sp *Spine[K, V, T, R]) Cursor() Cursor[K, V, T, R] {
	c, _ := sp.CursorThrough(lattice.Closed[T]())
	return c
}

// CursorThrough returns a merged cursor over the batches wholly below upper,
// a stable historical snapshot while later batches keep arriving. It reports
// false when upper is behind the distinguish frontier, where the requested cut
// may already have been merged away. An upper that straddles a pending batch
// is a fatal contract violation.
func (sp *Spine[K, V, T, R]) CursorThrough(upper lattice.Frontier[T]) (Cursor[K, V, T, R], bool) {
	if sp.advanceFrontier.IsClosed() {
		panic("spine: cursor into a trace advanced to the empty frontier")
	}
	if !sp.throughFrontier.Precedes(upper) {
		return nil, false
	}

	var cursors []Cursor[K, V, T, R]
	for i := len(sp.merging) - 1; i >= 0; i-- {
		l := &sp.merging[i]
		switch {
		case l.merger != nil:
			cursors = append(cursors, l.old.Cursor(), l.new.Cursor())
		case l.single != nil:
			cursors = append(cursors, l.single.Cursor())
		}
	}
	for _, batch := range sp.pending {
		includeLower := batch.Lower().Precedes(upper)
		includeUpper := batch.Upper().Precedes(upper)
		if includeLower != includeUpper && !upper.Equal(batch.Lower()) {
			panic(fmt.Sprintf("spine: cursor frontier %s straddles batch %s", upper, batch.Description()))
		}
		if includeUpper {
			cursors = append(cursors, batch.Cursor())
		}
	}
	return NewCursorList(cursors), true
}

// MapBatches applies fn to every held batch, oldest first.
func (sp *Spine[K, V, T, R]) MapBatches(fn func(*Batch[K, V, T, R])) {
	for i := len(sp.merging) - 1; i >= 0; i-- {
		l := &sp.merging[i]
		switch {
		case l.merger != nil:
			fn(l.old)
			fn(l.new)
		case l.single != nil:
			fn(l.single)
		}
	}
	for _, batch := range sp.pending {
		fn(batch)
	}
}

// Len returns the total number of updates across all held batches.
func (sp *Spine[K, V, T, R]) Len() int {
	total := 0
	sp.MapBatches(func(b *Batch[K, V, T, R]) { total += b.Len() })
	return total
}

// Batches returns the number of physical batches currently held.
func (sp *Spine[K, V, T, R]) Batches() int {
	count := 0
	sp.MapBatches(func(*Batch[K, V, T, R]) { count++ })
	return count
}

// considerMerges migrates pending batches wholly behind the distinguish
// frontier into the merge levels.
func (sp *Spine[K, V, T, R]) considerMerges() {
	for len(sp.pending) > 0 && sp.pending[0].Upper().Precedes(sp.throughFrontier) {
		batch := sp.pending[0]
		sp.pending = sp.pending[1:]
		sp.introduce(batch)
	}
	sp.updateGauges()
}

// introduce places one batch into its merge level, spending fuel on
// outstanding merges first so that no merge is still running when a newer
// batch wants its slot.
func (sp *Spine[K, V, T, R]) introduce(batch *Batch[K, V, T, R]) {
	index := slotFor(batch.Len())
	sp.ensureLevels(index + 2)

	// Fuel all in-progress merges, cascading completed results upward.
	fuel := 2 * sp.effort * (1 << index) * len(sp.merging)
	initial := fuel
	for pos := 0; pos < len(sp.merging); pos++ {
		sp.workLevel(pos, &fuel)
	}
	if sp.metrics != nil {
		if fuel < 0 {
			fuel = 0
		}
		sp.metrics.FuelSpent.Add(float64(initial - fuel))
	}

	// Forcibly clear every level at or below the target slot.
	for pos := 0; pos <= index; pos++ {
		if sp.merging[pos+1].isDouble() {
			panic("spine: adjacent merges in progress")
		}
		wasMerge := sp.merging[pos].isDouble()
		if b := sp.merging[pos].complete(); b != nil {
			if wasMerge {
				sp.noteMergeDone(pos)
			}
			sp.levelMergeWith(pos+1, b, false)
		}
	}

	sp.levelMergeWith(index, batch, false)

	// Migrate shrunken batches toward their proper slots.
	for i := len(sp.merging) - 1; i >= 1; i-- {
		if sp.merging[i-1].isEmpty() {
			if b := sp.merging[i].couldReduce(i); b != nil {
				sp.levelMergeWith(i-1, b, false)
			}
		}
	}

	sp.trimLevels()
}

// workLevel spends fuel on the merge at pos, cascading a completed result
// into the next level up. The compaction frontier applies only to merges
// landing at the final level, where all history has been folded in.
func (sp *Spine[K, V, T, R]) workLevel(pos int, fuel *int) {
	done := sp.merging[pos].work(fuel)
	if done == nil {
		return
	}
	sp.noteMergeDone(pos)
	newPos := pos + 1
	sp.ensureLevels(newPos + 1)
	if sp.merging[newPos].isDouble() {
		panic("spine: merge cascade into a level already merging")
	}
	compact := newPos+1 == len(sp.merging)
	sp.levelMergeWith(newPos, done, compact)
}

// levelMergeWith hands a newer batch to a level: an empty level keeps it, an
// occupied level starts a fueled merge with its older occupant, and a merging
// level is a violated invariant.
func (sp *Spine[K, V, T, R]) levelMergeWith(pos int, batch *Batch[K, V, T, R], compact bool) {
	l := &sp.merging[pos]
	switch {
	case l.merger != nil:
		panic("spine: merge into a level already merging")
	case l.single != nil:
		old := l.single
		since := old.Since().Join(batch.Since())
		if compact {
			since = since.Join(sp.advanceFrontier)
		}
		sp.log.V(4).Info("starting merge", "level", pos, "old", old.Len(), "new", batch.Len(),
			"since", since.String())
		if sp.metrics != nil {
			sp.metrics.MergesStarted.Inc()
		}
		l.old, l.new, l.single = old, batch, nil
		l.merger = NewMerger(old, batch, since)
	default:
		l.single = batch
	}
}

func (sp *Spine[K, V, T, R]) noteMergeDone(pos int) {
	sp.log.V(4).Info("merge complete", "level", pos)
	if sp.metrics != nil {
		sp.metrics.MergesCompleted.Inc()
	}
}

func (sp *Spine[K, V, T, R]) ensureLevels(n int) {
	for len(sp.merging) < n {
		sp.merging = append(sp.merging, mergeLevel[K, V, T, R]{})
	}
}

func (sp *Spine[K, V, T, R]) trimLevels() {
	for len(sp.merging) > 0 && sp.merging[len(sp.merging)-1].isEmpty() {
		sp.merging = sp.merging[:len(sp.merging)-1]
	}
}

func (sp *Spine[K, V, T, R]) updateGauges() {
	if sp.metrics == nil {
		return
	}
	backlog := 0
	for i := range sp.merging {
		if sp.merging[i].isDouble() {
			backlog++
		}
	}
	sp.metrics.Updates.Set(float64(sp.Len()))
	sp.metrics.Batches.Set(float64(sp.Batches()))
	sp.metrics.MergeBacklog.Set(float64(backlog))
}

// mergeLevel is one power-of-two slot: empty, holding a single complete
// batch, or holding an in-progress merge of an older and a newer batch.
type mergeLevel[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]] struct {
	single *Batch[K, V, T, R]
	old    *Batch[K, V, T, R]
	new    *Batch[K, V, T, R]
	merger *Merger[K, V, T, R]
}

func (l *mergeLevel[K, V, T, R]) isEmpty() bool  { return l.single == nil && l.merger == nil }
func (l *mergeLevel[K, V, T, R]) isDouble() bool { return l.merger != nil }

// work spends at most *fuel on the level's merge, returning the merged batch
// when it completes with fuel to spare.
func (l *mergeLevel[K, V, T, R]) work(fuel *int) *Batch[K, V, T, R] {
	if l.merger == nil {
		return nil
	}
	*fuel = l.merger.Work(*fuel)
	if *fuel > 0 && l.merger.Finished() {
		done := l.merger.Done()
		l.old, l.new, l.merger = nil, nil, nil
		return done
	}
	return nil
}

// complete finishes any in-progress merge and vacates the level, returning
// whatever batch it held.
func (l *mergeLevel[K, V, T, R]) complete() *Batch[K, V, T, R] {
	if l.merger != nil {
		for !l.merger.Finished() {
			l.merger.Work(math.MaxInt / 2)
		}
		done := l.merger.Done()
		l.old, l.new, l.merger = nil, nil, nil
		return done
	}
	if l.single != nil {
		b := l.single
		l.single = nil
		return b
	}
	return nil
}

// couldReduce vacates and returns the level's single batch when it has become
// small enough for a lower slot.
func (l *mergeLevel[K, V, T, R]) couldReduce(level int) *Batch[K, V, T, R] {
	if l.single != nil && slotFor(l.single.Len()) < level {
		b := l.single
		l.single = nil
		return b
	}
	return nil
}

// slotFor returns the merge level for a batch of n updates: the exponent of
// n's next power of two.
func slotFor(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}
