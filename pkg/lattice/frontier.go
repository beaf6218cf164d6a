package lattice

import (
	"fmt"
	"strings"
)

// Frontier is an antichain of pairwise-incomparable times marking the current
// boundary of interest: a time is "behind" the frontier when some frontier
// element precedes it. The empty frontier is the maximum element of the
// frontier order and signals permanent closure: no time is behind it.
//
// Frontiers are immutable; all operations return new values.
type Frontier[T Time[T]] struct {
	times []T
}

// NewFrontier returns the frontier holding the minimal antichain of the given
// times: elements dominated by another element are discarded.
func NewFrontier[T Time[T]](times ...T) Frontier[T] {
	var f Frontier[T]
	for _, t := range times {
		f = f.Insert(t)
	}
	return f
}

// Minimum returns the frontier holding only the minimum time, behind which
// every time lies.
func Minimum[T Time[T]]() Frontier[T] {
	var zero T
	return Frontier[T]{times: []T{zero}}
}

// Closed returns the empty frontier, behind which no time lies.
func Closed[T Time[T]]() Frontier[T] {
	return Frontier[T]{}
}

// Insert returns the minimal antichain of the frontier's elements and t.
func (f Frontier[T]) Insert(t T) Frontier[T] {
	for _, e := range f.times {
		if e.LessEqual(t) {
			return f
		}
	}
	times := make([]T, 0, len(f.times)+1)
	for _, e := range f.times {
		if !t.LessEqual(e) {
			times = append(times, e)
		}
	}
	return Frontier[T]{times: append(times, t)}
}

// LessEqual reports whether t is at or beyond the frontier, that is, whether
// some frontier element precedes or equals t.
func (f Frontier[T]) LessEqual(t T) bool {
	for _, e := range f.times {
		if e.LessEqual(t) {
			return true
		}
	}
	return false
}

// LessThan reports whether t is strictly beyond the frontier.
func (f Frontier[T]) LessThan(t T) bool {
	for _, e := range f.times {
		if e.LessEqual(t) && !t.LessEqual(e) {
			return true
		}
	}
	return false
}

// Precedes reports whether the receiver is less than or equal to other in the
// frontier partial order: every element of other is at or beyond the
// receiver. The empty frontier is maximal, so f.Precedes(Closed()) holds for
// any f.
func (f Frontier[T]) Precedes(other Frontier[T]) bool {
	for _, t := range other.times {
		if !f.LessEqual(t) {
			return false
		}
	}
	return true
}

// Equal reports whether the two frontiers describe the same boundary.
func (f Frontier[T]) Equal(other Frontier[T]) bool {
	return f.Precedes(other) && other.Precedes(f)
}

// Join returns the least upper bound of the two frontiers, the latest boundary
// preceded by both: the minimal antichain of pairwise joins.
func (f Frontier[T]) Join(other Frontier[T]) Frontier[T] {
	result := Closed[T]()
	for _, a := range f.times {
		for _, b := range other.times {
			result = result.Insert(a.Join(b))
		}
	}
	return result
}

// Meet returns the greatest lower bound of the two frontiers, the earliest
// boundary preceding both: the minimal antichain of the union.
func (f Frontier[T]) Meet(other Frontier[T]) Frontier[T] {
	result := f
	for _, t := range other.times {
		result = result.Insert(t)
	}
	return result
}

// Advance returns the least time at or beyond the frontier indistinguishable
// from t: the meet over frontier elements e of t.Join(e). Two times mapping to
// the same advanced time need never be told apart by a reader at or beyond the
// frontier. Advancing past the empty frontier reports false: no time survives
// closure.
func (f Frontier[T]) Advance(t T) (T, bool) {
	if len(f.times) == 0 {
		var zero T
		return zero, false
	}
	result := t.Join(f.times[0])
	for _, e := range f.times[1:] {
		result = result.Meet(t.Join(e))
	}
	return result, true
}

// IsClosed reports whether the frontier is empty.
func (f Frontier[T]) IsClosed() bool { return len(f.times) == 0 }

// Len returns the number of elements of the antichain.
func (f Frontier[T]) Len() int { return len(f.times) }

// Elements returns a copy of the antichain's elements.
func (f Frontier[T]) Elements() []T {
	out := make([]T, len(f.times))
	copy(out, f.times)
	return out
}

// String returns a debug representation of the frontier.
func (f Frontier[T]) String() string {
	if len(f.times) == 0 {
		return "{}"
	}
	parts := make([]string, len(f.times))
	for i, t := range f.times {
		parts[i] = fmt.Sprintf("%v", t)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
