package trace

import (
	"slices"

	"github.com/l7mp/difftrace/pkg/lattice"
)

// CursorList merges a list of child cursors into one logical view without
// physically merging their storage.
//
// The list keeps its cursors ordered by key and, among the cursors at the
// minimum key, by value. The current position is implicit in the leading
// cursors: cursors[:equivKeys] share the minimum key and cursors[:equivVals]
// share the minimum key and value. Counts of valid keys and values avoid
// reconsidering cursors that have run off their content.
type CursorList[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]] struct {
	cursors   []Cursor[K, V, T, R]
	equivKeys int // cursors[:equivKeys] all have the same key
	equivVals int // cursors[:equivVals] all have the same key and value
	validKeys int // cursors[:validKeys] all have KeyValid() true
	validVals int // cursors[:validVals] all have ValValid() true
}

// NewCursorList returns a merged cursor over the given child cursors.
func NewCursorList[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]](cursors []Cursor[K, V, T, R]) *CursorList[K, V, T, R] {
	l := &CursorList[K, V, T, R]{
		cursors:   cursors,
		validKeys: len(cursors),
	}
	l.tidyKeys(len(cursors))
	return l
}

// tidyKeys re-establishes the ordering invariants assuming only
// cursors[:prefix] may be out of key order.
func (l *CursorList[K, V, T, R]) tidyKeys(prefix int) {
	l.equivKeys = 0

	// Partition the disturbed prefix into valid cursors followed by
	// exhausted ones, then close the gap against the ordered tail.
	dirty := 0
	for index := 0; index < prefix; index++ {
		if l.cursors[index].KeyValid() {
			l.cursors[dirty], l.cursors[index] = l.cursors[index], l.cursors[dirty]
			dirty++
		}
	}
	if gap := prefix - dirty; gap > 0 {
		for index := prefix; index < l.validKeys; index++ {
			l.cursors[index], l.cursors[index-gap] = l.cursors[index-gap], l.cursors[index]
		}
		l.validKeys -= gap
	}

	if dirty > 0 {
		// Sort the disturbed cursors together with however much of the
		// ordered tail they may now overlap.
		maxIndex := 0
		for index := 1; index < dirty; index++ {
			if l.cursors[index].Key().Compare(l.cursors[maxIndex].Key()) > 0 {
				maxIndex = index
			}
		}
		beyond := dirty
		for beyond < l.validKeys && l.cursors[beyond].Key().Compare(l.cursors[maxIndex].Key()) < 0 {
			beyond++
		}
		slices.SortStableFunc(l.cursors[:beyond], func(a, b Cursor[K, V, T, R]) int {
			return a.Key().Compare(b.Key())
		})
	}

	if l.validKeys > 0 {
		l.equivKeys = 1
		for l.equivKeys < l.validKeys && l.cursors[l.equivKeys].Key().Compare(l.cursors[0].Key()) == 0 {
			l.equivKeys++
		}
	}

	l.validVals = l.equivKeys
	l.tidyVals(l.equivKeys)
}

// tidyVals re-establishes the value ordering among the minimum-key cursors
// assuming only cursors[:prefix] may be out of value order.
func (l *CursorList[K, V, T, R]) tidyVals(prefix int) {
	l.equivVals = 0

	dirty := 0
	for index := 0; index < prefix; index++ {
		if l.cursors[index].ValValid() {
			l.cursors[dirty], l.cursors[index] = l.cursors[index], l.cursors[dirty]
			dirty++
		}
	}
	if gap := prefix - dirty; gap > 0 {
		for index := prefix; index < l.validVals; index++ {
			l.cursors[index], l.cursors[index-gap] = l.cursors[index-gap], l.cursors[index]
		}
		l.validVals -= gap
	}

	if dirty > 0 {
		maxIndex := 0
		for index := 1; index < dirty; index++ {
			if l.cursors[index].Val().Compare(l.cursors[maxIndex].Val()) > 0 {
				maxIndex = index
			}
		}
		beyond := dirty
		for beyond < l.validVals && l.cursors[beyond].Val().Compare(l.cursors[maxIndex].Val()) < 0 {
			beyond++
		}
		slices.SortStableFunc(l.cursors[:beyond], func(a, b Cursor[K, V, T, R]) int {
			return a.Val().Compare(b.Val())
		})
	}

	if l.validVals > 0 {
		l.equivVals = 1
		for l.equivVals < l.validVals && l.cursors[l.equivVals].Val().Compare(l.cursors[0].Val()) == 0 {
			l.equivVals++
		}
	}
}

// KeyValid implements Cursor.
func (l *CursorList[K, V, T, R]) KeyValid() bool { return l.validKeys > 0 }

// ValValid implements Cursor.
func (l *CursorList[K, V, T, R]) ValValid() bool { return l.validVals > 0 }

// Key implements Cursor.
func (l *CursorList[K, V, T, R]) Key() K {
	if !l.KeyValid() {
		panic("cursor list: key access at invalid position")
	}
	return l.cursors[0].Key()
}

// Val implements Cursor.
func (l *CursorList[K, V, T, R]) Val() V {
	if !l.ValValid() {
		panic("cursor list: value access at invalid position")
	}
	return l.cursors[0].Val()
}

// MapTimes implements Cursor: each child at the current (key, value)
// contributes its pairs exactly once.
func (l *CursorList[K, V, T, R]) MapTimes(fn func(T, R)) {
	for _, c := range l.cursors[:l.equivVals] {
		c.MapTimes(fn)
	}
}

// StepKey implements Cursor: exactly the minimum-key cursors advance.
func (l *CursorList[K, V, T, R]) StepKey() {
	for _, c := range l.cursors[:l.equivKeys] {
		c.StepKey()
	}
	l.tidyKeys(l.equivKeys)
}

// SeekKey implements Cursor.
func (l *CursorList[K, V, T, R]) SeekKey(target K) {
	index := 0
	for index < l.validKeys && l.cursors[index].Key().Compare(target) < 0 {
		l.cursors[index].SeekKey(target)
		index++
	}
	l.tidyKeys(index)
}

// StepVal implements Cursor.
func (l *CursorList[K, V, T, R]) StepVal() {
	for _, c := range l.cursors[:l.equivVals] {
		c.StepVal()
	}
	l.tidyVals(l.equivVals)
}

// SeekVal implements Cursor.
func (l *CursorList[K, V, T, R]) SeekVal(target V) {
	index := 0
	for index < l.validVals && l.cursors[index].Val().Compare(target) < 0 {
		l.cursors[index].SeekVal(target)
		index++
	}
	l.tidyVals(index)
}

// RewindKeys implements Cursor.
func (l *CursorList[K, V, T, R]) RewindKeys() {
	for _, c := range l.cursors {
		c.RewindKeys()
	}
	l.validKeys = len(l.cursors)
	l.tidyKeys(len(l.cursors))
}

// RewindVals implements Cursor.
func (l *CursorList[K, V, T, R]) RewindVals() {
	for _, c := range l.cursors[:l.equivKeys] {
		c.RewindVals()
	}
	l.validVals = l.equivKeys
	l.tidyVals(l.equivKeys)
}
