package trace

import (
	"slices"

	"github.com/l7mp/difftrace/pkg/lattice"
)

// Comparable is the constraint satisfied by keys and values: cloneable data
// with a total order.
type Comparable[T any] interface {
	// Compare returns a negative number, zero, or a positive number when the
	// receiver sorts before, equal to, or after other.
	Compare(other T) int
}

// Diff is the constraint satisfied by update weights: a commutative monoid
// whose zero value is the identity. A zero weight carries no information and
// never survives consolidation.
type Diff[R any] interface {
	// Plus returns the sum of the receiver and other.
	Plus(other R) R
	// IsZero reports whether the weight is the monoid identity.
	IsZero() bool
}

// Count is the stock difference type: a signed multiplicity where positive
// values insert and negative values retract.
type Count int64

// Plus implements Diff.
func (c Count) Plus(other Count) Count { return c + other }

// IsZero implements Diff.
func (c Count) IsZero() bool { return c == 0 }

// Update is one weighted change to the collection: at Time, the multiplicity
// of (Key, Val) changes by Diff.
type Update[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]] struct {
	Key  K
	Val  V
	Time T
	Diff R
}

// compareUpdate orders updates by (key, value, time), ignoring the weight.
func compareUpdate[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]](a, b Update[K, V, T, R]) int {
	if c := a.Key.Compare(b.Key); c != 0 {
		return c
	}
	if c := a.Val.Compare(b.Val); c != 0 {
		return c
	}
	return a.Time.Compare(b.Time)
}

// Consolidate sorts updates by (key, value, time), sums the weights of equal
// triples, and drops zero sums. The input slice is reused; the returned slice
// aliases it. Consolidating a consolidated slice is the identity.
func Consolidate[K Comparable[K], V Comparable[V], T lattice.Sortable[T], R Diff[R]](updates []Update[K, V, T, R]) []Update[K, V, T, R] {
	slices.SortFunc(updates, compareUpdate[K, V, T, R])

	out := updates[:0]
	for _, u := range updates {
		if n := len(out); n > 0 && compareUpdate(out[n-1], u) == 0 {
			out[n-1].Diff = out[n-1].Diff.Plus(u.Diff)
			if out[n-1].Diff.IsZero() {
				out = out[:n-1]
			}
			continue
		}
		if !u.Diff.IsZero() {
			out = append(out, u)
		}
	}
	return out
}
