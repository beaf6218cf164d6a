package trace

import (
	"fmt"

	"github.com/l7mp/difftrace/pkg/lattice"
)

// Writer is the sole mutating handle on a shared spine. It feeds sealed
// batches in, keeps the spine's upper frontier contiguous, and distributes
// each insert to the attached listeners.
type Writer[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]] struct {
	shared *shared[K, V, T, R]
	upper  lattice.Frontier[T]
	closed bool
}

// Upper returns the frontier up to which the writer has inserted or sealed.
func (w *Writer[K, V, T, R]) Upper() lattice.Frontier[T] { return w.upper }

// Insert adds a batch to the shared spine. The batch's lower frontier must
// equal the writer's current upper. An optional hint names a time contained
// in the batch, forwarded verbatim to listeners; nil means no hint.
func (w *Writer[K, V, T, R]) Insert(batch *Batch[K, V, T, R], hint *T) {
	if w.closed {
		panic("writer: insert after close")
	}
	if !w.upper.Equal(batch.Lower()) {
		panic("writer: batch lower does not match writer upper")
	}
	w.shared.spine.Insert(batch)
	w.upper = batch.Upper()
	w.distribute(Event[K, V, T, R]{Type: EventBatch, Batch: batch, Hint: hint})
	w.distribute(Event[K, V, T, R]{Type: EventFrontier, Frontier: w.upper})
}

// Seal advances the writer's upper frontier to upper without adding updates,
// inserting an empty batch for the gap if there is one. Sealing behind the
// current upper violates the monotone seal contract and panics.
func (w *Writer[K, V, T, R]) Seal(upper lattice.Frontier[T]) {
	if w.closed {
		panic("writer: seal after close")
	}
	if !w.upper.Precedes(upper) {
		panic(fmt.Sprintf("writer: seal at %s behind current upper %s", upper, w.upper))
	}
	if w.upper.Equal(upper) {
		return
	}
	batch := NewEmptyBatch[K, V, T, R](w.upper, upper, lattice.Minimum[T]())
	w.Insert(batch, nil)
}

// Close seals the writer through the closed frontier, telling every listener
// that no further updates will ever arrive, and rejects further use.
// Idempotent.
func (w *Writer[K, V, T, R]) Close() {
	if w.closed {
		return
	}
	w.Seal(lattice.Closed[T]())
	w.closed = true
}

// distribute pushes ev to every open listener and prunes the closed ones.
func (w *Writer[K, V, T, R]) distribute(ev Event[K, V, T, R]) {
	live := w.shared.listeners[:0]
	for _, l := range w.shared.listeners {
		if !l.open {
			continue
		}
		l.push(ev)
		live = append(live, l)
	}
	w.shared.listeners = live
}
