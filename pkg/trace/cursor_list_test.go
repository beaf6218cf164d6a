package trace

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/difftrace/pkg/lattice"
)

var _ = Describe("CursorList", func() {
	cursorsOver := func(batches ...*testBatch) []Cursor[testKey, testVal, lattice.Step, Count] {
		cursors := make([]Cursor[testKey, testVal, lattice.Step, Count], len(batches))
		for i, b := range batches {
			cursors[i] = b.Cursor()
		}
		return cursors
	}

	It("presents disjoint children as one sorted view", func() {
		a := buildBatch(at(0), at(1), upd("a", "x", 0, 1), upd("d", "x", 0, 1))
		b := buildBatch(at(1), at(2), upd("b", "y", 1, 1), upd("c", "z", 1, 1))

		list := NewCursorList(cursorsOver(a, b))
		Expect(collect(list)).To(Equal([]testUpdate{
			upd("a", "x", 0, 1),
			upd("b", "y", 1, 1),
			upd("c", "z", 1, 1),
			upd("d", "x", 0, 1),
		}))
	})

	It("coalesces a shared key across children", func() {
		a := buildBatch(at(0), at(1), upd("a", "x", 0, 1), upd("a", "y", 0, 1))
		b := buildBatch(at(1), at(2), upd("a", "x", 1, 2), upd("b", "x", 1, 1))

		list := NewCursorList(cursorsOver(a, b))
		Expect(list.Key()).To(Equal(testKey("a")))
		Expect(list.Val()).To(Equal(testVal("x")))

		var pairs []TimeDiff[lattice.Step, Count]
		list.MapTimes(func(t lattice.Step, d Count) {
			pairs = append(pairs, TimeDiff[lattice.Step, Count]{Time: t, Diff: d})
		})
		Expect(pairs).To(ConsistOf(
			TimeDiff[lattice.Step, Count]{Time: 0, Diff: 1},
			TimeDiff[lattice.Step, Count]{Time: 1, Diff: 2},
		))

		// Stepping the key advances every child positioned at it.
		list.StepKey()
		Expect(list.Key()).To(Equal(testKey("b")))
	})

	It("visits each child's times exactly once per pair", func() {
		a := buildBatch(at(0), at(1), upd("k", "v", 0, 1))
		b := buildBatch(at(1), at(2), upd("k", "v", 1, 1))
		c := buildBatch(at(2), at(3), upd("k", "w", 2, 1))

		list := NewCursorList(cursorsOver(a, b, c))
		calls := 0
		list.MapTimes(func(lattice.Step, Count) { calls++ })
		Expect(calls).To(Equal(2))

		list.StepVal()
		calls = 0
		list.MapTimes(func(lattice.Step, Count) { calls++ })
		Expect(calls).To(Equal(1))
	})

	It("seeks across children", func() {
		a := buildBatch(at(0), at(1), upd("a", "x", 0, 1), upd("e", "x", 0, 1))
		b := buildBatch(at(1), at(2), upd("c", "x", 1, 1), upd("g", "x", 1, 1))

		list := NewCursorList(cursorsOver(a, b))
		list.SeekKey(testKey("d"))
		Expect(list.Key()).To(Equal(testKey("e")))
		list.SeekKey(testKey("h"))
		Expect(list.KeyValid()).To(BeFalse())
	})

	It("matches the step-by-step traversal of the merged content", func() {
		a := buildBatch(at(0), at(1),
			upd("a", "x", 0, 1), upd("b", "x", 0, 1), upd("c", "x", 0, 1))
		b := buildBatch(at(1), at(2),
			upd("b", "x", 1, 1), upd("b", "y", 1, 1), upd("d", "x", 1, 1))

		merged := runMerge(a, b, lattice.Minimum[lattice.Step]())
		list := NewCursorList(cursorsOver(a, b))
		Expect(collect(list)).To(Equal(collect(merged.Cursor())))
	})

	It("rewinds to the beginning", func() {
		a := buildBatch(at(0), at(1), upd("a", "x", 0, 1), upd("b", "x", 0, 1))
		b := buildBatch(at(1), at(2), upd("c", "x", 1, 1))

		list := NewCursorList(cursorsOver(a, b))
		list.SeekKey(testKey("c"))
		list.RewindKeys()
		Expect(list.Key()).To(Equal(testKey("a")))
	})

	It("handles empty children and the empty list", func() {
		empty := NewEmptyBatch[testKey, testVal, lattice.Step, Count](at(0), at(1), lattice.Minimum[lattice.Step]())
		a := buildBatch(at(1), at(2), upd("a", "x", 1, 1))

		list := NewCursorList(cursorsOver(empty, a))
		Expect(collect(list)).To(Equal([]testUpdate{upd("a", "x", 1, 1)}))

		none := NewCursorList(cursorsOver())
		Expect(none.KeyValid()).To(BeFalse())
	})
})
