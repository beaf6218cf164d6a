package trace

import (
	"github.com/l7mp/difftrace/pkg/lattice"
)

// EventType tags a replay event.
type EventType int

const (
	// EventBatch carries a batch of data and an optional capability hint.
	EventBatch EventType = iota
	// EventFrontier reports a frontier advance.
	EventFrontier
)

// Event is one replay instruction in a listener queue: either a batch with an
// optional time hint, or a frontier advance. A frontier event with a closed
// frontier is the final event a queue ever sees.
type Event[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]] struct {
	Type     EventType
	Batch    *Batch[K, V, T, R]  // set for EventBatch
	Hint     *T                  // optional capability hint for EventBatch
	Frontier lattice.Frontier[T] // set for EventFrontier
}

// Listener is a private FIFO of replay events fed by a Writer. It is used by
// consumers that want raw batch and frontier notifications rather than a
// merged cursor view. A listener receives events until closed; the writer
// drops closed listeners from its distribution list on its next insert.
type Listener[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]] struct {
	events []Event[K, V, T, R]
	open   bool
}

// Pop removes and returns the oldest queued event, reporting false when the
// queue is empty.
func (l *Listener[K, V, T, R]) Pop() (Event[K, V, T, R], bool) {
	if len(l.events) == 0 {
		return Event[K, V, T, R]{}, false
	}
	ev := l.events[0]
	l.events = l.events[1:]
	return ev, true
}

// Drain removes and returns all queued events.
func (l *Listener[K, V, T, R]) Drain() []Event[K, V, T, R] {
	events := l.events
	l.events = nil
	return events
}

// Len returns the number of queued events.
func (l *Listener[K, V, T, R]) Len() int { return len(l.events) }

// Close deregisters the listener: no further events arrive, and the writer
// forgets it on its next distribution. Idempotent.
func (l *Listener[K, V, T, R]) Close() { l.open = false }

func (l *Listener[K, V, T, R]) push(ev Event[K, V, T, R]) {
	l.events = append(l.events, ev)
}
