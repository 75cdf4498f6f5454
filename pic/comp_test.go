package pic

import (
	"bytes"
	"fmt"
	"log"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/picsim/sim/hooking"
)

type signalRecorder struct {
	signals []string
}

func (r *signalRecorder) SetInterrupt(asserted bool) {
	r.signals = append(r.signals, fmt.Sprintf("INT=%t", asserted))
}

func (r *signalRecorder) SetGroupEnable(enabled bool) {
	r.signals = append(r.signals, fmt.Sprintf("ENLG=%t", enabled))
}

func (r *signalRecorder) pulses() int {
	n := 0

	for _, s := range r.signals {
		if s == "INT=true" {
			n++
		}
	}

	return n
}

func (r *signalRecorder) clear() {
	r.signals = nil
}

var grantSignals = []string{"ENLG=false", "INT=true", "INT=false"}

var _ = Describe("Comp", func() {
	var (
		mockCtrl *gomock.Controller
		sink     *MockSink
		c        *Comp
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		sink = NewMockSink(mockCtrl)
		c = MakeBuilder().WithSink(sink).Build("Board.PIC")
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should start idle", func() {
		Expect(c.Pending()).To(Equal(uint8(0)))
		Expect(c.RequestRegister()).To(Equal(uint8(0xff)))
		Expect(c.MasterEnabled()).To(BeFalse())
		Expect(c.GateOpen()).To(BeTrue())
		Expect(c.InService()).To(BeFalse())
		Expect(c.GroupSelect()).To(BeFalse())
		Expect(c.ReadLevel()).To(Equal(uint8(0)))
	})

	It("should drop group enable before pulsing the interrupt", func() {
		c.SetMasterEnable(true)

		gomock.InOrder(
			sink.EXPECT().SetGroupEnable(false),
			sink.EXPECT().SetInterrupt(true),
			sink.EXPECT().SetInterrupt(false),
		)

		c.SetRequestLine(4, true)

		Expect(c.ReadLevel()).To(Equal(uint8(4)))
		Expect(c.InService()).To(BeTrue())
	})

	It("should raise group enable before arbitrating on acknowledge", func() {
		c.SetMasterEnable(true)

		gomock.InOrder(
			sink.EXPECT().SetGroupEnable(false),
			sink.EXPECT().SetInterrupt(true),
			sink.EXPECT().SetInterrupt(false),
			sink.EXPECT().SetGroupEnable(true),
			sink.EXPECT().SetGroupEnable(false),
			sink.EXPECT().SetInterrupt(true),
			sink.EXPECT().SetInterrupt(false),
		)

		c.SetRequestLine(1, true)
		c.WriteStatus(1)
	})

	It("should not emit anything while disabled", func() {
		for line := 0; line < NumLines; line++ {
			c.SetRequestLine(line, true)
		}

		Expect(c.Pending()).To(Equal(uint8(0xff)))
		Expect(c.RequestRegister()).To(Equal(uint8(0x00)))
	})

	It("should panic on out of range lines", func() {
		Expect(func() { c.SetRequestLine(-1, true) }).To(Panic())
		Expect(func() { c.SetRequestLine(NumLines, true) }).To(Panic())
	})

	It("should panic on status values wider than three bits", func() {
		Expect(func() { c.WriteStatus(8) }).To(Panic())
		Expect(func() { c.WriteStatus(0xff) }).To(Panic())
	})

	It("should invoke hooks in operation order", func() {
		hook := NewMockHook(mockCtrl)
		c.AcceptHook(hook)

		sink.EXPECT().SetGroupEnable(gomock.Any()).AnyTimes()
		sink.EXPECT().SetInterrupt(gomock.Any()).AnyTimes()

		gomock.InOrder(
			hook.EXPECT().Func(hooking.HookCtx{
				Domain: c,
				Pos:    HookPosConfig,
				Item:   ConfigEvent{Line: ConfigMasterEnable, Value: true},
			}),
			hook.EXPECT().Func(hooking.HookCtx{
				Domain: c,
				Pos:    HookPosRequestLine,
				Item:   RequestLineEvent{Line: 6, Asserted: true},
			}),
			hook.EXPECT().Func(hooking.HookCtx{
				Domain: c,
				Pos:    HookPosGrant,
				Item:   GrantEvent{Level: 6},
			}),
			hook.EXPECT().Func(hooking.HookCtx{
				Domain: c,
				Pos:    HookPosAcknowledge,
				Item:   AckEvent{Level: 6},
			}),
			hook.EXPECT().Func(hooking.HookCtx{
				Domain: c,
				Pos:    HookPosGrant,
				Item:   GrantEvent{Level: 6},
			}),
		)

		c.SetMasterEnable(true)
		c.SetRequestLine(6, true)
		c.WriteStatus(6)
	})
})

var _ = Describe("Comp arbitration", func() {
	var (
		rec *signalRecorder
		c   *Comp
	)

	BeforeEach(func() {
		rec = &signalRecorder{}
		c = MakeBuilder().WithSink(rec).Build("Board.PIC")
	})

	It("should grant any single asserted line", func() {
		for line := 0; line < NumLines; line++ {
			rec.clear()
			c.Reset()
			c.SetMasterEnable(true)

			c.SetRequestLine(line, true)

			Expect(rec.signals).To(Equal(grantSignals), "line %d", line)
			Expect(c.ReadLevel()).To(Equal(uint8(line)))
		}
	})

	It("should grant only levels above the status level under group select",
		func() {
			for current := 0; current < NumLines; current++ {
				for line := 0; line < NumLines; line++ {
					rec.clear()
					c.Reset()
					c.WriteStatus(uint8(current))
					c.SetMasterEnable(true)
					c.SetGroupSelect(true)
					rec.clear()

					c.SetRequestLine(line, true)

					if line > current {
						Expect(rec.pulses()).To(Equal(1),
							"line %d current %d", line, current)
						Expect(c.ReadLevel()).To(Equal(uint8(line)))
					} else {
						Expect(rec.pulses()).To(Equal(0),
							"line %d current %d", line, current)
					}
				}
			}
		})

	It("should not grant twice while in service", func() {
		c.SetMasterEnable(true)

		c.SetRequestLine(3, true)
		c.SetRequestLine(3, true)
		c.SetRequestLine(7, true)
		c.SetGroupSelect(true)
		c.SetGroupSelect(false)

		Expect(rec.pulses()).To(Equal(1))
		Expect(c.ReadLevel()).To(Equal(uint8(3)))
	})

	It("should grant the highest numbered pending line first", func() {
		c.SetRequestLine(3, true)
		c.SetRequestLine(5, true)
		c.SetMasterEnable(true)

		c.SetGroupSelect(false)

		Expect(rec.pulses()).To(Equal(1))
		Expect(c.ReadLevel()).To(Equal(uint8(5)))
	})

	It("should only let a higher level preempt the status level", func() {
		c.SetRequestLine(3, true)
		c.SetRequestLine(5, true)
		c.WriteStatus(4)
		c.SetMasterEnable(true)
		rec.clear()

		c.SetGroupSelect(true)

		Expect(rec.pulses()).To(Equal(1))
		Expect(c.ReadLevel()).To(Equal(uint8(5)))

		c.SetRequestLine(5, false)
		rec.clear()
		c.WriteStatus(4)

		Expect(rec.signals).To(Equal([]string{"ENLG=true"}))
		Expect(c.InService()).To(BeFalse())
	})

	It("should grant a higher pending level after acknowledge", func() {
		c.SetMasterEnable(true)
		c.SetGroupSelect(true)

		c.SetRequestLine(3, true)
		Expect(c.ReadLevel()).To(Equal(uint8(3)))

		c.SetRequestLine(6, true)
		Expect(rec.pulses()).To(Equal(1))

		rec.clear()
		c.WriteStatus(3)

		Expect(rec.signals).To(Equal(append([]string{"ENLG=true"},
			grantSignals...)))
		Expect(c.ReadLevel()).To(Equal(uint8(6)))

		rec.clear()
		c.WriteStatus(6)

		Expect(rec.signals).To(Equal([]string{"ENLG=true"}))
		Expect(c.InService()).To(BeFalse())
	})

	It("should regrant a line still held after acknowledge without group select",
		func() {
			c.SetMasterEnable(true)
			c.SetRequestLine(2, true)
			rec.clear()

			c.WriteStatus(2)

			Expect(rec.signals).To(Equal(append([]string{"ENLG=true"},
				grantSignals...)))
			Expect(c.InService()).To(BeTrue())
		})

	It("should not arbitrate when master enable rises", func() {
		for line := 0; line < NumLines; line++ {
			c.SetRequestLine(line, true)
		}

		Expect(rec.pulses()).To(Equal(0))

		c.SetMasterEnable(true)

		Expect(rec.pulses()).To(Equal(0))
		Expect(c.InService()).To(BeFalse())

		c.SetRequestLine(0, true)

		Expect(rec.pulses()).To(Equal(1))
		Expect(c.ReadLevel()).To(Equal(uint8(7)))
	})

	It("should not arbitrate when the gate opens", func() {
		c.SetMasterEnable(true)
		c.SetGroupEnableGate(false)

		c.SetRequestLine(4, true)
		Expect(rec.pulses()).To(Equal(0))

		c.SetGroupEnableGate(true)
		Expect(rec.pulses()).To(Equal(0))

		c.SetGroupSelect(false)
		Expect(rec.pulses()).To(Equal(1))
		Expect(c.ReadLevel()).To(Equal(uint8(4)))
	})

	It("should keep the granted level readable while disabled", func() {
		c.SetMasterEnable(true)
		c.SetRequestLine(5, true)
		c.SetMasterEnable(false)
		c.SetGroupEnableGate(false)

		Expect(c.ReadLevel()).To(Equal(uint8(5)))
	})

	It("should release a line", func() {
		c.SetRequestLine(5, true)
		c.SetRequestLine(5, false)
		c.SetMasterEnable(true)
		c.SetGroupSelect(false)

		Expect(rec.pulses()).To(Equal(0))
		Expect(c.Pending()).To(Equal(uint8(0)))
	})

	It("should run the acknowledge scenario", func() {
		c.SetMasterEnable(true)
		c.SetGroupSelect(true)

		c.SetRequestLine(2, true)

		Expect(rec.signals).To(Equal(grantSignals))
		Expect(c.ReadLevel()).To(Equal(uint8(2)))

		rec.clear()
		c.WriteStatus(2)

		Expect(rec.signals).To(Equal([]string{"ENLG=true"}))
		Expect(c.InService()).To(BeFalse())
		Expect(c.CurrentLevel()).To(Equal(uint8(2)))
	})

	It("should reset to power-on state", func() {
		c.SetMasterEnable(true)
		c.SetGroupSelect(true)
		c.SetGroupEnableGate(false)
		c.SetRequestLine(1, true)
		c.WriteStatus(0)
		rec.clear()

		c.Reset()

		Expect(rec.signals).To(BeEmpty())
		Expect(c.Snapshot()).To(Equal(State{
			name:            "Board.PIC",
			RequestRegister: 0xff,
			GroupEnableGate: true,
		}))
	})

	It("should log register accesses when given a logger", func() {
		buf := new(bytes.Buffer)
		c = MakeBuilder().
			WithSink(rec).
			WithLogger(log.New(buf, "", 0)).
			WithMasterEnable(true).
			Build("Board.PIC")

		c.SetRequestLine(2, true)
		c.ReadLevel()
		c.WriteStatus(2)

		Expect(buf.String()).To(ContainSubstring("Board.PIC: R2: true"))
		Expect(buf.String()).To(ContainSubstring("Board.PIC: interrupt level 2"))
		Expect(buf.String()).To(ContainSubstring("Board.PIC: A: 2"))
		Expect(buf.String()).To(ContainSubstring("Board.PIC: B: 2"))
	})
})
