package trace

import (
	"github.com/l7mp/difftrace/pkg/lattice"
)

// shared is the state jointly owned by one writer and all agents of a spine:
// the spine itself, the reference-counted frontier holds that combine the
// agents' individual compaction requests, and the listener registry the
// writer distributes to.
type shared[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]] struct {
	spine        *Spine[K, V, T, R]
	advanceHolds frontierHolds[T]
	throughHolds frontierHolds[T]
	listeners    []*Listener[K, V, T, R]
}

// applyAdvance pushes the combined advance frontier, the meet of every live
// agent's hold, down into the spine.
func (sh *shared[K, V, T, R]) applyAdvance() {
	sh.spine.AdvanceBy(sh.advanceHolds.frontier())
}

func (sh *shared[K, V, T, R]) applyThrough() {
	sh.spine.DistinguishSince(sh.throughHolds.frontier())
}

// NewShared wraps a spine for sharing: the returned Writer is its sole
// mutator and the returned Agent its first reader. Further readers come from
// Agent.Clone. The spine must not be used directly afterwards.
func NewShared[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]](spine *Spine[K, V, T, R]) (*Agent[K, V, T, R], *Writer[K, V, T, R]) {
	sh := &shared[K, V, T, R]{spine: spine}
	agent := &Agent[K, V, T, R]{
		shared:  sh,
		advance: spine.AdvanceFrontier(),
		through: spine.DistinguishFrontier(),
		open:    true,
	}
	sh.advanceHolds.hold(agent.advance)
	sh.throughHolds.hold(agent.through)
	writer := &Writer[K, V, T, R]{
		shared: sh,
		upper:  spine.Upper(),
	}
	return agent, writer
}

// Agent is a lightweight reading handle on a shared spine. Every agent
// advances its own compaction frontiers independently; the spine compacts
// only as far as the least advanced live agent permits, so an agent pinned on
// old history keeps that history readable for itself without blocking others'
// requests.
type Agent[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]] struct {
	shared  *shared[K, V, T, R]
	advance lattice.Frontier[T]
	through lattice.Frontier[T]
	open    bool
}

// Clone attaches a new agent to the same spine, holding the receiver's
// current frontiers.
func (a *Agent[K, V, T, R]) Clone() *Agent[K, V, T, R] {
	a.ensureOpen()
	clone := &Agent[K, V, T, R]{
		shared:  a.shared,
		advance: a.advance,
		through: a.through,
		open:    true,
	}
	a.shared.advanceHolds.hold(clone.advance)
	a.shared.throughHolds.hold(clone.through)
	return clone
}

// Close releases the agent's frontier holds; with the last agent gone the
// combined frontier closes and the spine discards its content. Idempotent.
func (a *Agent[K, V, T, R]) Close() {
	if !a.open {
		return
	}
	a.open = false
	a.shared.advanceHolds.release(a.advance)
	a.shared.throughHolds.release(a.through)
	a.shared.applyAdvance()
	if !a.shared.advanceHolds.empty() {
		a.shared.applyThrough()
	}
}

// AdvanceBy raises this agent's compaction frontier. The spine's effective
// frontier advances only once every live agent has moved past a boundary.
func (a *Agent[K, V, T, R]) AdvanceBy(frontier lattice.Frontier[T]) {
	a.ensureOpen()
	a.shared.advanceHolds.replace(a.advance, frontier)
	a.advance = frontier
	a.shared.applyAdvance()
}

// AdvanceFrontier returns this agent's own compaction frontier.
func (a *Agent[K, V, T, R]) AdvanceFrontier() lattice.Frontier[T] { return a.advance }

// DistinguishSince marks that this agent no longer cuts snapshots below
// frontier.
func (a *Agent[K, V, T, R]) DistinguishSince(frontier lattice.Frontier[T]) {
	a.ensureOpen()
	a.shared.throughHolds.replace(a.through, frontier)
	a.through = frontier
	a.shared.applyThrough()
}

// DistinguishFrontier returns this agent's own snapshot-cut frontier.
func (a *Agent[K, V, T, R]) DistinguishFrontier() lattice.Frontier[T] { return a.through }

// Cursor returns a merged cursor over the shared spine's content.
func (a *Agent[K, V, T, R]) Cursor() Cursor[K, V, T, R] {
	a.ensureOpen()
	return a.shared.spine.Cursor()
}

// CursorThrough returns a cursor over the batches wholly below upper; see
// Spine.CursorThrough.
func (a *Agent[K, V, T, R]) CursorThrough(upper lattice.Frontier[T]) (Cursor[K, V, T, R], bool) {
	a.ensureOpen()
	return a.shared.spine.CursorThrough(upper)
}

// MapBatches applies fn to every batch the shared spine holds, oldest first.
func (a *Agent[K, V, T, R]) MapBatches(fn func(*Batch[K, V, T, R])) {
	a.ensureOpen()
	a.shared.spine.MapBatches(fn)
}

// NewListener attaches a fresh replay queue to the shared spine. The queue is
// primed with the spine's existing batches, hinted at the minimum time, and a
// frontier event for the current upper; from then on it receives every insert
// and seal the writer performs until the listener is closed.
func (a *Agent[K, V, T, R]) NewListener() *Listener[K, V, T, R] {
	a.ensureOpen()
	l := &Listener[K, V, T, R]{open: true}
	var zero T
	replayed := false
	a.shared.spine.MapBatches(func(b *Batch[K, V, T, R]) {
		hint := zero
		l.push(Event[K, V, T, R]{Type: EventBatch, Batch: b, Hint: &hint})
		replayed = true
	})
	if replayed {
		l.push(Event[K, V, T, R]{Type: EventFrontier, Frontier: a.shared.spine.Upper()})
	}
	a.shared.listeners = append(a.shared.listeners, l)
	return l
}

func (a *Agent[K, V, T, R]) ensureOpen() {
	if !a.open {
		panic("agent: use after close")
	}
}

// frontierHolds is a reference-counted multiset of frontier elements. Its
// combined frontier is the minimal antichain over all held times, which is
// exactly the meet of the held frontiers: the boundary no holder has passed.
type frontierHolds[T lattice.Sortable[T]] struct {
	entries []holdEntry[T]
}

type holdEntry[T lattice.Sortable[T]] struct {
	time  T
	count int
}

func (h *frontierHolds[T]) hold(f lattice.Frontier[T]) {
	for _, t := range f.Elements() {
		h.add(t, 1)
	}
}

func (h *frontierHolds[T]) release(f lattice.Frontier[T]) {
	for _, t := range f.Elements() {
		h.add(t, -1)
	}
}

func (h *frontierHolds[T]) replace(prev, next lattice.Frontier[T]) {
	h.hold(next)
	h.release(prev)
}

func (h *frontierHolds[T]) add(t T, delta int) {
	for i := range h.entries {
		if h.entries[i].time.Compare(t) == 0 {
			h.entries[i].count += delta
			if h.entries[i].count == 0 {
				h.entries = append(h.entries[:i], h.entries[i+1:]...)
			} else if h.entries[i].count < 0 {
				panic("frontier holds: negative reference count")
			}
			return
		}
	}
	if delta < 0 {
		panic("frontier holds: releasing an unheld time")
	}
	h.entries = append(h.entries, holdEntry[T]{time: t, count: delta})
}

func (h *frontierHolds[T]) empty() bool { return len(h.entries) == 0 }

func (h *frontierHolds[T]) frontier() lattice.Frontier[T] {
	f := lattice.Closed[T]()
	for _, e := range h.entries {
		f = f.Insert(e.time)
	}
	return f
}
