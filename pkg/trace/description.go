package trace

import (
	"fmt"

	"github.com/l7mp/difftrace/pkg/lattice"
)

// Description bounds the contents of a batch: times in [Lower, Upper) as
// observed from Since. When Since is strictly in advance of Lower, contained
// times may have been advanced to representatives indistinguishable at or
// beyond Since, and the batch only accumulates correctly for times not behind
// Since.
type Description[T lattice.Sortable[T]] struct {
	lower lattice.Frontier[T]
	upper lattice.Frontier[T]
	since lattice.Frontier[T]
}

// NewDescription returns the description of the interval [lower, upper) as
// observed from since.
func NewDescription[T lattice.Sortable[T]](lower, upper, since lattice.Frontier[T]) Description[T] {
	return Description[T]{lower: lower, upper: upper, since: since}
}

// Lower is the inclusive lower bound of contained times.
func (d Description[T]) Lower() lattice.Frontier[T] { return d.lower }

// Upper is the exclusive upper bound of contained times.
func (d Description[T]) Upper() lattice.Frontier[T] { return d.upper }

// Since is the compaction frontier the contents were advanced to.
func (d Description[T]) Since() lattice.Frontier[T] { return d.since }

// String returns a debug representation of the description.
func (d Description[T]) String() string {
	return fmt.Sprintf("[%s, %s) since %s", d.lower, d.upper, d.since)
}
