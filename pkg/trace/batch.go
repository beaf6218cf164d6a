package trace

import (
	"github.com/l7mp/difftrace/pkg/lattice"
)

// TimeDiff is one weighted occurrence of a (key, value) pair.
type TimeDiff[T lattice.Sortable[T], R Diff[R]] struct {
	Time T
	Diff R
}

// keyEntry holds a key and the end offset of its values in the vals layer.
type keyEntry[K Comparable[K]] struct {
	key     K
	valsEnd int
}

// valEntry holds a value and the end offset of its times in the times layer.
type valEntry[V Comparable[V]] struct {
	val      V
	timesEnd int
}

// Batch is an immutable, sorted, consolidated run of updates covering one time
// interval. Content is laid out in three flat layers: keys index ranges of
// values, values index ranges of (time, diff) pairs. Batches are never mutated
// after construction, so any number of concurrent cursors may traverse one.
type Batch[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]] struct {
	keys  []keyEntry[K]
	vals  []valEntry[V]
	times []TimeDiff[T, R]
	desc  Description[T]
}

// NewEmptyBatch returns a batch with no content covering [lower, upper). Empty
// batches advertise progress: they promise that no updates will ever arrive in
// the covered interval.
func NewEmptyBatch[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]](lower, upper, since lattice.Frontier[T]) *Batch[K, V, T, R] {
	return &Batch[K, V, T, R]{desc: NewDescription(lower, upper, since)}
}

// Len returns the number of updates in the batch.
func (b *Batch[K, V, T, R]) Len() int { return len(b.times) }

// Keys returns the number of distinct keys in the batch.
func (b *Batch[K, V, T, R]) Keys() int { return len(b.keys) }

// Empty reports whether the batch holds no updates.
func (b *Batch[K, V, T, R]) Empty() bool { return len(b.times) == 0 }

// Description returns the batch's time interval description.
func (b *Batch[K, V, T, R]) Description() Description[T] { return b.desc }

// Lower is the inclusive lower bound of contained times.
func (b *Batch[K, V, T, R]) Lower() lattice.Frontier[T] { return b.desc.lower }

// Upper is the exclusive upper bound of contained times.
func (b *Batch[K, V, T, R]) Upper() lattice.Frontier[T] { return b.desc.upper }

// Since is the compaction frontier the contents were advanced to.
func (b *Batch[K, V, T, R]) Since() lattice.Frontier[T] { return b.desc.since }

// Cursor returns a fresh traversal position over the batch's content.
func (b *Batch[K, V, T, R]) Cursor() Cursor[K, V, T, R] {
	return newBatchCursor(b)
}

// valsStart returns the start offset of key ki's values.
func (b *Batch[K, V, T, R]) valsStart(ki int) int {
	if ki == 0 {
		return 0
	}
	return b.keys[ki-1].valsEnd
}

// timesStart returns the start offset of value vi's times.
func (b *Batch[K, V, T, R]) timesStart(vi int) int {
	if vi == 0 {
		return 0
	}
	return b.vals[vi-1].timesEnd
}
