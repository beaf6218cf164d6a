package trace

import (
	"fmt"
	"slices"

	"github.com/l7mp/difftrace/pkg/lattice"
)

// Merger is a fuel-bounded two-way merge of adjacent batches. Work consumes a
// bounded number of source updates per call, so large merges can proceed in
// small increments across scheduling turns instead of stalling readers; Done
// yields the merged batch once the sources are exhausted.
//
// The merge re-sorts nothing: both sources are sorted runs, and (key, value)
// cells are streamed in order. Times are advanced to the target since
// frontier before re-consolidation, so a merge doubles as compaction whenever
// since is in advance of the sources' own frontiers.
type Merger[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]] struct {
	a, b    *cellWalker[K, V, T, R]
	since   lattice.Frontier[T]
	builder *Builder[K, V, T, R]
	lower   lattice.Frontier[T]
	upper   lattice.Frontier[T]
	scratch []TimeDiff[T, R]
}

// NewMerger starts a merge of the adjacent batches a and b into a batch
// covering [a.Lower, b.Upper) observed from since. The caller picks since; it
// must be at or beyond the join of the sources' since frontiers. Non-adjacent
// sources are a contract violation and panic.
func NewMerger[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]](a, b *Batch[K, V, T, R], since lattice.Frontier[T]) *Merger[K, V, T, R] {
	if !a.Upper().Equal(b.Lower()) {
		panic(fmt.Sprintf("merger: non-adjacent batches %s and %s", a.Description(), b.Description()))
	}
	return &Merger[K, V, T, R]{
		a:       &cellWalker[K, V, T, R]{batch: a},
		b:       &cellWalker[K, V, T, R]{batch: b},
		since:   since,
		builder: NewBuilderWithCapacity[K, V, T, R](a.Len() + b.Len()),
		lower:   a.Lower(),
		upper:   b.Upper(),
	}
}

// Work merges source updates until fuel runs out or the sources are
// exhausted, returning the unspent fuel. A cell is merged atomically, so the
// fuel bound may be overshot by one cell's worth of updates.
func (m *Merger[K, V, T, R]) Work(fuel int) int {
	for fuel > 0 && !m.Finished() {
		switch {
		case m.a.done():
			fuel -= m.mergeCell(m.b, nil)
		case m.b.done():
			fuel -= m.mergeCell(m.a, nil)
		default:
			c := m.a.key().Compare(m.b.key())
			if c == 0 {
				c = m.a.val().Compare(m.b.val())
			}
			switch {
			case c < 0:
				fuel -= m.mergeCell(m.a, nil)
			case c > 0:
				fuel -= m.mergeCell(m.b, nil)
			default:
				fuel -= m.mergeCell(m.a, m.b)
			}
		}
	}
	if fuel < 0 {
		return 0
	}
	return fuel
}

// Finished reports whether both sources are exhausted.
func (m *Merger[K, V, T, R]) Finished() bool { return m.a.done() && m.b.done() }

// Done returns the merged batch. Calling Done on an unfinished merge is a
// contract violation and panics.
func (m *Merger[K, V, T, R]) Done() *Batch[K, V, T, R] {
	if !m.Finished() {
		panic("merger: done called on an unfinished merge")
	}
	return m.builder.Done(m.lower, m.upper, m.since)
}

// mergeCell consumes the current (key, value) cell of x, and of y when y sits
// at the same cell, advancing and consolidating its times into the builder.
// It returns the number of source updates consumed.
func (m *Merger[K, V, T, R]) mergeCell(x, y *cellWalker[K, V, T, R]) int {
	key, val := x.key(), x.val()
	m.scratch = m.scratch[:0]
	consumed := m.gatherCell(x)
	if y != nil {
		consumed += m.gatherCell(y)
	}

	slices.SortFunc(m.scratch, func(a, b TimeDiff[T, R]) int { return a.Time.Compare(b.Time) })
	for _, td := range m.scratch {
		m.builder.Push(Update[K, V, T, R]{Key: key, Val: val, Time: td.Time, Diff: td.Diff})
	}
	if consumed == 0 {
		return 1
	}
	return consumed
}

// gatherCell appends the since-advanced times of w's current cell to the
// scratch buffer and steps w past the cell.
func (m *Merger[K, V, T, R]) gatherCell(w *cellWalker[K, V, T, R]) int {
	times := w.times()
	for _, td := range times {
		t := td.Time
		if advanced, ok := m.since.Advance(td.Time); ok {
			t = advanced
		}
		m.scratch = append(m.scratch, TimeDiff[T, R]{Time: t, Diff: td.Diff})
	}
	w.stepCell()
	return len(times)
}

// cellWalker streams the (key, value) cells of a batch in order.
type cellWalker[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]] struct {
	batch *Batch[K, V, T, R]
	ki    int
	vi    int
}

func (w *cellWalker[K, V, T, R]) done() bool { return w.ki >= len(w.batch.keys) }

func (w *cellWalker[K, V, T, R]) key() K { return w.batch.keys[w.ki].key }

func (w *cellWalker[K, V, T, R]) val() V { return w.batch.vals[w.vi].val }

func (w *cellWalker[K, V, T, R]) times() []TimeDiff[T, R] {
	return w.batch.times[w.batch.timesStart(w.vi):w.batch.vals[w.vi].timesEnd]
}

func (w *cellWalker[K, V, T, R]) stepCell() {
	w.vi++
	if w.vi >= w.batch.keys[w.ki].valsEnd {
		w.ki++
	}
}
