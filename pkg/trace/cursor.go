package trace

import (
	"github.com/l7mp/difftrace/pkg/lattice"
)

// Cursor is an ordered, seekable traversal handle over the content of one or
// several batches. A cursor is positioned at a (possibly invalid) key and,
// while the key is valid, at a (possibly invalid) value within that key.
// Accessing the key or value of an invalidly positioned cursor panics.
type Cursor[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]] interface {
	// KeyValid reports whether the cursor is positioned at a key.
	KeyValid() bool
	// ValValid reports whether the cursor is positioned at a value.
	ValValid() bool
	// Key returns the current key.
	Key() K
	// Val returns the current value.
	Val() V
	// MapTimes applies fn to every (time, diff) pair at the current
	// (key, value) position.
	MapTimes(fn func(T, R))
	// StepKey advances the cursor to the next key.
	StepKey()
	// SeekKey advances the cursor to the first key at or after target,
	// invalidating it when none exists.
	SeekKey(target K)
	// StepVal advances the cursor to the next value of the current key.
	StepVal()
	// SeekVal advances the cursor to the first value at or after target
	// within the current key, invalidating the value position when none
	// exists.
	SeekVal(target V)
	// RewindKeys resets the cursor to the first key.
	RewindKeys()
	// RewindVals resets the cursor to the first value of the current key.
	RewindVals()
}

// gallop returns the first index in [lo, hi) at which pred fails, assuming
// pred is monotone (true then false) over the range. It probes exponentially
// and finishes with a binary search, so seeking costs O(log distance) rather
// than a linear scan.
func gallop(lo, hi int, pred func(int) bool) int {
	if lo >= hi || !pred(lo) {
		return lo
	}
	step := 1
	for lo+step < hi && pred(lo+step) {
		lo += step
		step <<= 1
	}
	// pred holds at lo; binary search (lo, min(lo+step, hi)).
	upper := lo + step
	if upper > hi {
		upper = hi
	}
	for lo+1 < upper {
		mid := lo + (upper-lo)/2
		if pred(mid) {
			lo = mid
		} else {
			upper = mid
		}
	}
	return lo + 1
}

// batchCursor traverses the flat layers of one batch.
type batchCursor[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]] struct {
	batch *Batch[K, V, T, R]
	ki    int // current key index
	vi    int // current value index, within the current key's range
}

func newBatchCursor[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]](b *Batch[K, V, T, R]) *batchCursor[K, V, T, R] {
	return &batchCursor[K, V, T, R]{batch: b}
}

func (c *batchCursor[K, V, T, R]) KeyValid() bool { return c.ki < len(c.batch.keys) }

func (c *batchCursor[K, V, T, R]) ValValid() bool {
	return c.KeyValid() && c.vi < c.batch.keys[c.ki].valsEnd
}

func (c *batchCursor[K, V, T, R]) Key() K {
	if !c.KeyValid() {
		panic("cursor: key access at invalid position")
	}
	return c.batch.keys[c.ki].key
}

func (c *batchCursor[K, V, T, R]) Val() V {
	if !c.ValValid() {
		panic("cursor: value access at invalid position")
	}
	return c.batch.vals[c.vi].val
}

func (c *batchCursor[K, V, T, R]) MapTimes(fn func(T, R)) {
	if !c.ValValid() {
		return
	}
	for _, td := range c.batch.times[c.batch.timesStart(c.vi):c.batch.vals[c.vi].timesEnd] {
		fn(td.Time, td.Diff)
	}
}

func (c *batchCursor[K, V, T, R]) StepKey() {
	if c.ki < len(c.batch.keys) {
		c.ki++
	}
	c.resetVal()
}

func (c *batchCursor[K, V, T, R]) SeekKey(target K) {
	c.ki = gallop(c.ki, len(c.batch.keys), func(i int) bool {
		return c.batch.keys[i].key.Compare(target) < 0
	})
	c.resetVal()
}

func (c *batchCursor[K, V, T, R]) StepVal() {
	if c.KeyValid() && c.vi < c.batch.keys[c.ki].valsEnd {
		c.vi++
	}
}

func (c *batchCursor[K, V, T, R]) SeekVal(target V) {
	if !c.KeyValid() {
		return
	}
	c.vi = gallop(c.vi, c.batch.keys[c.ki].valsEnd, func(i int) bool {
		return c.batch.vals[i].val.Compare(target) < 0
	})
}

func (c *batchCursor[K, V, T, R]) RewindKeys() {
	c.ki = 0
	c.resetVal()
}

func (c *batchCursor[K, V, T, R]) RewindVals() {
	c.resetVal()
}

func (c *batchCursor[K, V, T, R]) resetVal() {
	if c.KeyValid() {
		c.vi = c.batch.valsStart(c.ki)
	} else {
		c.vi = len(c.batch.vals)
	}
}
