package trace

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/difftrace/pkg/lattice"
)

var _ = Describe("Builder", func() {
	var builder *Builder[testKey, testVal, lattice.Step, Count]

	BeforeEach(func() {
		builder = NewBuilder[testKey, testVal, lattice.Step, Count]()
	})

	It("builds a batch from a sorted run", func() {
		builder.Push(upd("a", "x", 0, 1))
		builder.Push(upd("a", "y", 1, 2))
		builder.Push(upd("b", "x", 0, 1))
		batch := builder.Done(at(0), at(2), lattice.Minimum[lattice.Step]())

		Expect(batch.Len()).To(Equal(3))
		Expect(batch.Keys()).To(Equal(2))
		Expect(collect(batch.Cursor())).To(Equal([]testUpdate{
			upd("a", "x", 0, 1),
			upd("a", "y", 1, 2),
			upd("b", "x", 0, 1),
		}))
	})

	It("coalesces consecutive equal triples", func() {
		builder.Push(upd("a", "x", 0, 1))
		builder.Push(upd("a", "x", 0, 2))
		Expect(builder.Len()).To(Equal(1))

		builder.Push(upd("a", "x", 0, -3))
		Expect(builder.Len()).To(Equal(0))
	})

	It("ignores zero-weight pushes", func() {
		builder.Push(upd("a", "x", 0, 0))
		Expect(builder.Len()).To(Equal(0))
	})

	It("panics on an out-of-order push", func() {
		builder.Push(upd("b", "x", 0, 1))
		Expect(func() { builder.Push(upd("a", "x", 0, 1)) }).To(Panic())
	})

	It("resets after sealing", func() {
		builder.Push(upd("a", "x", 0, 1))
		_ = builder.Done(at(0), at(1), lattice.Minimum[lattice.Step]())
		Expect(builder.Len()).To(Equal(0))

		builder.Push(upd("a", "x", 1, 1))
		batch := builder.Done(at(1), at(2), lattice.Minimum[lattice.Step]())
		Expect(batch.Len()).To(Equal(1))
	})
})

var _ = Describe("Batch", func() {
	It("records its interval description", func() {
		batch := buildBatch(at(0), at(3), upd("a", "x", 1, 1))
		Expect(batch.Lower().Equal(at(0))).To(BeTrue())
		Expect(batch.Upper().Equal(at(3))).To(BeTrue())
		Expect(batch.Since().Equal(lattice.Minimum[lattice.Step]())).To(BeTrue())
	})

	It("supports empty batches as progress markers", func() {
		batch := NewEmptyBatch[testKey, testVal, lattice.Step, Count](at(2), at(5), lattice.Minimum[lattice.Step]())
		Expect(batch.Empty()).To(BeTrue())
		Expect(batch.Len()).To(Equal(0))
		Expect(collect(batch.Cursor())).To(BeEmpty())
	})
})

var _ = Describe("Batch cursor", func() {
	newCursor := func() Cursor[testKey, testVal, lattice.Step, Count] {
		return buildBatch(at(0), at(4),
			upd("a", "x", 0, 1),
			upd("a", "y", 1, 1),
			upd("c", "x", 2, 2),
			upd("c", "z", 0, 1),
			upd("c", "z", 3, -1),
			upd("e", "w", 1, 1),
		).Cursor()
	}

	It("visits every pair exactly once", func() {
		type pair struct{ k, v string }
		seen := map[pair]int{}
		c := newCursor()
		for c.KeyValid() {
			for c.ValValid() {
				seen[pair{string(c.Key()), string(c.Val())}]++
				c.StepVal()
			}
			c.StepKey()
		}
		Expect(seen).To(Equal(map[pair]int{
			{"a", "x"}: 1, {"a", "y"}: 1,
			{"c", "x"}: 1, {"c", "z"}: 1,
			{"e", "w"}: 1,
		}))
	})

	It("lands on the first key at or after the seek target", func() {
		c := newCursor()
		c.SeekKey(testKey("b"))
		Expect(c.KeyValid()).To(BeTrue())
		Expect(c.Key()).To(Equal(testKey("c")))

		c.SeekKey(testKey("e"))
		Expect(c.Key()).To(Equal(testKey("e")))

		c.SeekKey(testKey("f"))
		Expect(c.KeyValid()).To(BeFalse())
	})

	It("seeks values within the current key", func() {
		c := newCursor()
		c.SeekKey(testKey("c"))
		c.SeekVal(testVal("y"))
		Expect(c.ValValid()).To(BeTrue())
		Expect(c.Val()).To(Equal(testVal("z")))

		c.SeekVal(testVal("zz"))
		Expect(c.ValValid()).To(BeFalse())
		Expect(c.KeyValid()).To(BeTrue())
	})

	It("reaches the same position via seek or repeated step", func() {
		stepped := newCursor()
		for stepped.KeyValid() && stepped.Key().Compare(testKey("c")) < 0 {
			stepped.StepKey()
		}
		sought := newCursor()
		sought.SeekKey(testKey("c"))

		Expect(stepped.Key()).To(Equal(sought.Key()))
		Expect(stepped.Val()).To(Equal(sought.Val()))
	})

	It("maps the consolidated times of one pair", func() {
		c := newCursor()
		c.SeekKey(testKey("c"))
		c.SeekVal(testVal("z"))
		var got []TimeDiff[lattice.Step, Count]
		c.MapTimes(func(t lattice.Step, d Count) {
			got = append(got, TimeDiff[lattice.Step, Count]{Time: t, Diff: d})
		})
		Expect(got).To(Equal([]TimeDiff[lattice.Step, Count]{
			{Time: 0, Diff: 1},
			{Time: 3, Diff: -1},
		}))
	})

	It("rewinds keys and values", func() {
		c := newCursor()
		c.SeekKey(testKey("e"))
		c.RewindKeys()
		Expect(c.Key()).To(Equal(testKey("a")))

		c.StepVal()
		c.RewindVals()
		Expect(c.Val()).To(Equal(testVal("x")))
	})

	It("panics on access at an invalid position", func() {
		c := newCursor()
		c.SeekKey(testKey("zzz"))
		Expect(func() { c.Key() }).To(Panic())
		Expect(func() { c.Val() }).To(Panic())
	})
})
