package trace

import (
	"fmt"

	"github.com/l7mp/difftrace/pkg/lattice"
)

// Builder assembles a batch incrementally from updates pushed in
// non-descending (key, value, time) order. Equal triples are summed and zero
// sums dropped, so a builder fed a sorted run emits consolidated content
// without re-sorting.
type Builder[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]] struct {
	updates []Update[K, V, T, R]
}

// NewBuilder returns an empty builder.
func NewBuilder[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]]() *Builder[K, V, T, R] {
	return &Builder[K, V, T, R]{}
}

// NewBuilderWithCapacity returns an empty builder pre-sized for n updates.
func NewBuilderWithCapacity[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]](n int) *Builder[K, V, T, R] {
	return &Builder[K, V, T, R]{updates: make([]Update[K, V, T, R], 0, n)}
}

// Push appends one update. Pushing an update that sorts before the previous
// one violates the builder contract and panics.
func (b *Builder[K, V, T, R]) Push(u Update[K, V, T, R]) {
	if u.Diff.IsZero() {
		return
	}
	if n := len(b.updates); n > 0 {
		switch c := compareUpdate(b.updates[n-1], u); {
		case c > 0:
			panic(fmt.Sprintf("builder: update %v pushed out of order", u))
		case c == 0:
			b.updates[n-1].Diff = b.updates[n-1].Diff.Plus(u.Diff)
			if b.updates[n-1].Diff.IsZero() {
				b.updates = b.updates[:n-1]
			}
			return
		}
	}
	b.updates = append(b.updates, u)
}

// Len returns the number of updates accumulated so far.
func (b *Builder[K, V, T, R]) Len() int { return len(b.updates) }

// Done seals the accumulated content into an immutable batch covering
// [lower, upper) as observed from since, and resets the builder.
func (b *Builder[K, V, T, R]) Done(lower, upper, since lattice.Frontier[T]) *Batch[K, V, T, R] {
	batch := &Batch[K, V, T, R]{desc: NewDescription(lower, upper, since)}
	if len(b.updates) == 0 {
		return batch
	}

	first := b.updates[0]
	batch.keys = append(batch.keys, keyEntry[K]{key: first.Key})
	batch.vals = append(batch.vals, valEntry[V]{val: first.Val})
	batch.times = append(batch.times, TimeDiff[T, R]{Time: first.Time, Diff: first.Diff})

	for _, u := range b.updates[1:] {
		batch.times = append(batch.times, TimeDiff[T, R]{Time: u.Time, Diff: u.Diff})
		if u.Key.Compare(batch.keys[len(batch.keys)-1].key) != 0 {
			batch.vals[len(batch.vals)-1].timesEnd = len(batch.times) - 1
			batch.keys[len(batch.keys)-1].valsEnd = len(batch.vals)
			batch.vals = append(batch.vals, valEntry[V]{val: u.Val})
			batch.keys = append(batch.keys, keyEntry[K]{key: u.Key})
		} else if u.Val.Compare(batch.vals[len(batch.vals)-1].val) != 0 {
			batch.vals[len(batch.vals)-1].timesEnd = len(batch.times) - 1
			batch.vals = append(batch.vals, valEntry[V]{val: u.Val})
		}
	}
	batch.vals[len(batch.vals)-1].timesEnd = len(batch.times)
	batch.keys[len(batch.keys)-1].valsEnd = len(batch.vals)

	b.updates = nil
	return batch
}
