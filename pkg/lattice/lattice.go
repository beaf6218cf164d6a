// Package lattice provides partially ordered logical times and the frontier
// (antichain) machinery used to track progress through them.
//
// A logical time belongs to a lattice: a partial order with a least upper bound
// (join) and a greatest lower bound (meet) for every pair of elements. Totally
// ordered scheduler epochs are the common case (Step), but nested iterative
// computations use product timestamps (Pair) whose components advance
// independently.
//
// A Frontier is an antichain of times marking the boundary of distinguishable
// history: times behind the frontier may be compacted together, times at or
// beyond it must remain exact.
package lattice

// Time is the constraint satisfied by lattice timestamps. The zero value of an
// implementing type must be the minimum element of the lattice.
type Time[T any] interface {
	// LessEqual reports whether the receiver precedes or equals other in the
	// lattice's partial order.
	LessEqual(other T) bool
	// Join returns the least upper bound of the receiver and other.
	Join(other T) T
	// Meet returns the greatest lower bound of the receiver and other.
	Meet(other T) T
}

// Sortable is a lattice time that additionally carries a total order refining
// the partial one. The total order is used only to lay out updates
// canonically; any refinement will do.
type Sortable[T any] interface {
	Time[T]
	// Compare returns a negative number, zero, or a positive number when the
	// receiver sorts before, equal to, or after other.
	Compare(other T) int
}

// Step is a totally ordered scheduler epoch. Its zero value is the minimum
// time.
type Step uint64

// LessEqual implements Time.
func (s Step) LessEqual(other Step) bool { return s <= other }

// Join implements Time.
func (s Step) Join(other Step) Step {
	if s < other {
		return other
	}
	return s
}

// Meet implements Time.
func (s Step) Meet(other Step) Step {
	if s < other {
		return s
	}
	return other
}

// Compare implements Sortable.
func (s Step) Compare(other Step) int {
	switch {
	case s < other:
		return -1
	case s > other:
		return 1
	default:
		return 0
	}
}

// Pair is a product timestamp for nested scopes: Outer tracks the surrounding
// computation, Inner the loop iteration. Pairs are ordered componentwise, so
// two pairs may be incomparable.
type Pair[O Sortable[O], I Sortable[I]] struct {
	Outer O
	Inner I
}

// NewPair returns the product timestamp (outer, inner).
func NewPair[O Sortable[O], I Sortable[I]](outer O, inner I) Pair[O, I] {
	return Pair[O, I]{Outer: outer, Inner: inner}
}

// LessEqual implements Time. Both components must precede for the pair to
// precede.
func (p Pair[O, I]) LessEqual(other Pair[O, I]) bool {
	return p.Outer.LessEqual(other.Outer) && p.Inner.LessEqual(other.Inner)
}

// Join implements Time.
func (p Pair[O, I]) Join(other Pair[O, I]) Pair[O, I] {
	return Pair[O, I]{Outer: p.Outer.Join(other.Outer), Inner: p.Inner.Join(other.Inner)}
}

// Meet implements Time.
func (p Pair[O, I]) Meet(other Pair[O, I]) Pair[O, I] {
	return Pair[O, I]{Outer: p.Outer.Meet(other.Outer), Inner: p.Inner.Meet(other.Inner)}
}

// Compare implements Sortable lexicographically. This refines the partial
// order: comparable pairs sort consistently with LessEqual.
func (p Pair[O, I]) Compare(other Pair[O, I]) int {
	if c := p.Outer.Compare(other.Outer); c != 0 {
		return c
	}
	return p.Inner.Compare(other.Inner)
}
