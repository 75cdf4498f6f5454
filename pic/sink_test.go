package pic

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Sinks", func() {
	It("should fan out in order", func() {
		var order []string

		a := SinkFuncs{
			Interrupt:   func(v bool) { order = append(order, "a.int") },
			GroupEnable: func(v bool) { order = append(order, "a.enlg") },
		}
		b := SinkFuncs{
			Interrupt: func(v bool) { order = append(order, "b.int") },
		}

		s := MultiSink(a, b)
		s.SetGroupEnable(true)
		s.SetInterrupt(true)

		Expect(order).To(Equal([]string{"a.enlg", "a.int", "b.int"}))
	})

	It("should drop signals in NopSink", func() {
		Expect(func() {
			NopSink{}.SetInterrupt(true)
			NopSink{}.SetGroupEnable(false)
		}).NotTo(Panic())
	})

	It("should not build a cascade to nothing", func() {
		Expect(func() { CascadeSink(nil) }).To(Panic())
	})

	Context("when two controllers are cascaded", func() {
		var (
			host         *signalRecorder
			upper, lower *Comp
		)

		BeforeEach(func() {
			host = &signalRecorder{}
			lower = MakeBuilder().
				WithSink(host).
				WithMasterEnable(true).
				Build("Board.PIC[1]")
			upper = MakeBuilder().
				WithSink(MultiSink(host, CascadeSink(lower))).
				WithMasterEnable(true).
				Build("Board.PIC[0]")
		})

		It("should close the subordinate gate while the upper is in service",
			func() {
				upper.SetRequestLine(3, true)

				Expect(lower.GateOpen()).To(BeFalse())

				lower.SetRequestLine(6, true)
				Expect(host.pulses()).To(Equal(1))
				Expect(lower.InService()).To(BeFalse())

				upper.SetRequestLine(3, false)
				upper.WriteStatus(3)

				Expect(lower.GateOpen()).To(BeTrue())
				Expect(lower.InService()).To(BeFalse())

				lower.SetRequestLine(6, true)

				Expect(host.pulses()).To(Equal(2))
				Expect(lower.ReadLevel()).To(Equal(uint8(6)))
			})
	})
})
