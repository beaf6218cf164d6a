package trace

import (
	"fmt"

	"github.com/l7mp/difftrace/pkg/lattice"
)

// defaultChunk is the pending-buffer size that triggers an incremental
// consolidation pass in the batcher.
const defaultChunk = 8192

// Batcher absorbs a stream of raw, unsorted, possibly duplicate-keyed updates
// and seals completed time intervals into batches. Consolidation happens
// incrementally whenever the pending buffer outgrows its chunk bound, keeping
// peak memory proportional to the consolidated size rather than the raw input.
type Batcher[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]] struct {
	pending  []Update[K, V, T, R]
	lower    lattice.Frontier[T] // upper bound of the previous seal
	frontier lattice.Frontier[T] // lower bound of the times still pending
	chunk    int
}

// NewBatcher returns an empty batcher whose first seal covers times from the
// minimum.
func NewBatcher[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]]() *Batcher[K, V, T, R] {
	return &Batcher[K, V, T, R]{
		lower:    lattice.Minimum[T](),
		frontier: lattice.Minimum[T](),
		chunk:    defaultChunk,
	}
}

// Push buffers updates for a later seal. Zero-weight updates are discarded
// immediately.
func (b *Batcher[K, V, T, R]) Push(updates ...Update[K, V, T, R]) {
	for _, u := range updates {
		if !u.Diff.IsZero() {
			b.pending = append(b.pending, u)
		}
	}
	if len(b.pending) > b.chunk {
		b.pending = Consolidate(b.pending)
		if len(b.pending) > b.chunk/2 {
			b.chunk *= 2
		}
	}
}

// Len returns the number of buffered updates, an upper bound on the
// consolidated count.
func (b *Batcher[K, V, T, R]) Len() int { return len(b.pending) }

// Seal extracts the buffered updates with times strictly before upper into a
// consolidated batch covering [previous-upper, upper); updates at or beyond
// upper stay buffered. Sealing behind a previous seal violates the monotone
// seal contract and panics.
func (b *Batcher[K, V, T, R]) Seal(upper lattice.Frontier[T]) *Batch[K, V, T, R] {
	if !b.lower.Precedes(upper) {
		panic(fmt.Sprintf("batcher: seal at %s behind previous seal %s", upper, b.lower))
	}

	var extracted, kept []Update[K, V, T, R]
	for _, u := range b.pending {
		if upper.LessEqual(u.Time) {
			kept = append(kept, u)
		} else {
			extracted = append(extracted, u)
		}
	}
	b.pending = kept

	b.frontier = lattice.Closed[T]()
	for _, u := range kept {
		b.frontier = b.frontier.Insert(u.Time)
	}

	builder := NewBuilderWithCapacity[K, V, T, R](len(extracted))
	for _, u := range Consolidate(extracted) {
		builder.Push(u)
	}
	batch := builder.Done(b.lower, upper, lattice.Minimum[T]())
	b.lower = upper
	return batch
}

// Frontier returns the lower bound of the times still buffered after the most
// recent seal: no future batch will contain a time not at or beyond it.
func (b *Batcher[K, V, T, R]) Frontier() lattice.Frontier[T] { return b.frontier }
