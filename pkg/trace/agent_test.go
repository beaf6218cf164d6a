package trace

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/difftrace/pkg/lattice"
)

var _ = Describe("Shared trace", func() {
	var (
		agent  *Agent[testKey, testVal, lattice.Step, Count]
		writer *Writer[testKey, testVal, lattice.Step, Count]
	)

	BeforeEach(func() {
		spine := NewSpine[testKey, testVal, lattice.Step, Count](WithLogger(logger))
		agent, writer = NewShared(spine)
	})

	insert := func(lower, upper uint64, updates ...testUpdate) *testBatch {
		low := at(lower)
		if lower == 0 {
			low = lattice.Minimum[lattice.Step]()
		}
		b := buildBatch(low, at(upper), updates...)
		writer.Insert(b, nil)
		return b
	}

	Describe("Writer", func() {
		It("keeps the batch chain contiguous", func() {
			insert(0, 1, upd("a", "x", 0, 1))
			Expect(writer.Upper().Equal(at(1))).To(BeTrue())

			gap := buildBatch(at(2), at(3), upd("b", "x", 2, 1))
			Expect(func() { writer.Insert(gap, nil) }).To(Panic())
		})

		It("seals gaps with empty batches", func() {
			insert(0, 1, upd("a", "x", 0, 1))
			writer.Seal(at(5))
			Expect(writer.Upper().Equal(at(5))).To(BeTrue())

			// A seal at the current upper is a no-op.
			writer.Seal(at(5))
			Expect(writer.Upper().Equal(at(5))).To(BeTrue())
		})

		It("panics when a seal regresses", func() {
			writer.Seal(at(5))
			Expect(func() { writer.Seal(at(3)) }).To(Panic())
			Expect(writer.Upper().Equal(at(5))).To(BeTrue())
		})

		It("rejects use after close", func() {
			writer.Close()
			writer.Close()
			b := buildBatch(lattice.Closed[lattice.Step](), lattice.Closed[lattice.Step]())
			Expect(func() { writer.Insert(b, nil) }).To(Panic())
			Expect(func() { writer.Seal(lattice.Closed[lattice.Step]()) }).To(Panic())
		})
	})

	Describe("Agent", func() {
		It("reads everything the writer inserted", func() {
			insert(0, 1, upd("a", "x", 0, 1))
			insert(1, 2, upd("b", "y", 1, 1))
			Expect(collect(agent.Cursor())).To(Equal([]testUpdate{
				upd("a", "x", 0, 1),
				upd("b", "y", 1, 1),
			}))
		})

		It("retains history for the least advanced agent", func() {
			slow := agent.Clone()
			for i := 0; i < 8; i++ {
				insert(uint64(i), uint64(i+1),
					upd("a", "x", uint64(i), 1))
			}

			// One agent races ahead; the other stays pinned at an early time.
			agent.AdvanceBy(at(6))
			agent.DistinguishSince(at(6))
			Expect(slow.AdvanceFrontier().Equal(lattice.Minimum[lattice.Step]())).To(BeTrue())

			c, ok := slow.CursorThrough(at(2))
			Expect(ok).To(BeTrue())
			Expect(collect(c)).To(Equal([]testUpdate{
				upd("a", "x", 0, 1),
				upd("a", "x", 1, 1),
			}))
		})

		It("compacts only once every agent has advanced", func() {
			slow := agent.Clone()
			agent.AdvanceBy(at(6))
			Expect(agent.AdvanceFrontier().Equal(at(6))).To(BeTrue())

			// The spine's effective frontier is the meet of the holds.
			insert(0, 1, upd("a", "x", 0, 1))
			c, ok := slow.CursorThrough(at(1))
			Expect(ok).To(BeTrue())
			Expect(collect(c)).To(HaveLen(1))

			slow.AdvanceBy(at(4))
			_, ok = slow.CursorThrough(at(1))
			Expect(ok).To(BeTrue())
		})

		It("clones inherit the parent's frontiers", func() {
			agent.AdvanceBy(at(3))
			agent.DistinguishSince(at(2))
			clone := agent.Clone()
			Expect(clone.AdvanceFrontier().Equal(at(3))).To(BeTrue())
			Expect(clone.DistinguishFrontier().Equal(at(2))).To(BeTrue())
		})

		It("rejects use after close", func() {
			other := agent.Clone()
			agent.Close()
			agent.Close()
			Expect(func() { agent.Cursor() }).To(Panic())
			Expect(func() { agent.AdvanceBy(at(1)) }).To(Panic())

			// The surviving agent still reads.
			insert(0, 1, upd("a", "x", 0, 1))
			Expect(collect(other.Cursor())).To(HaveLen(1))
		})
	})

	Describe("Listener", func() {
		It("receives every insert and frontier advance", func() {
			l := agent.NewListener()
			b := insert(0, 1, upd("a", "x", 0, 1))

			events := l.Drain()
			Expect(events).To(HaveLen(2))
			Expect(events[0].Type).To(Equal(EventBatch))
			Expect(events[0].Batch).To(BeIdenticalTo(b))
			Expect(events[1].Type).To(Equal(EventFrontier))
			Expect(events[1].Frontier.Equal(at(1))).To(BeTrue())
		})

		It("replays existing batches with a minimum-time hint on attach", func() {
			b := insert(0, 1, upd("a", "x", 0, 1))
			l := agent.NewListener()

			ev, ok := l.Pop()
			Expect(ok).To(BeTrue())
			Expect(ev.Type).To(Equal(EventBatch))
			Expect(ev.Batch).To(BeIdenticalTo(b))
			Expect(ev.Hint).NotTo(BeNil())
			Expect(*ev.Hint).To(Equal(lattice.Step(0)))

			ev, ok = l.Pop()
			Expect(ok).To(BeTrue())
			Expect(ev.Type).To(Equal(EventFrontier))
			Expect(ev.Frontier.Equal(at(1))).To(BeTrue())

			_, ok = l.Pop()
			Expect(ok).To(BeFalse())
		})

		It("observes a final closed frontier when the writer closes", func() {
			l := agent.NewListener()
			insert(0, 1, upd("a", "x", 0, 1))
			writer.Seal(at(9))
			writer.Close()

			events := l.Drain()
			last := events[len(events)-1]
			Expect(last.Type).To(Equal(EventFrontier))
			Expect(last.Frontier.IsClosed()).To(BeTrue())

			// Nothing follows the final notification.
			again := func() { writer.Insert(buildBatch(at(1), at(2)), nil) }
			Expect(again).To(Panic())
			Expect(l.Len()).To(Equal(0))
		})

		It("stops receiving after close", func() {
			l := agent.NewListener()
			l.Close()
			l.Close()
			insert(0, 1, upd("a", "x", 0, 1))
			Expect(l.Len()).To(Equal(0))
		})
	})
})
