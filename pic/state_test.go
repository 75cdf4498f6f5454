package pic

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/picsim/sim/stateful"
)

type fakeState struct{}

func (fakeState) Name() string { return "Fake" }
func (fakeState) Serialize() (map[string]any, error) { return nil, nil }
func (fakeState) Deserialize(map[string]any) error { return nil }

var _ = Describe("State", func() {
	var (
		rec *signalRecorder
		c   *Comp
	)

	BeforeEach(func() {
		rec = &signalRecorder{}
		c = MakeBuilder().WithSink(rec).Build("Board.PIC")
	})

	It("should capture every field", func() {
		c.SetRequestLine(1, true)
		c.SetRequestLine(6, true)
		c.WriteStatus(3)
		c.SetMasterEnable(true)
		c.SetGroupSelect(true)

		Expect(c.Snapshot()).To(Equal(State{
			name:              "Board.PIC",
			RequestRegister:   0xbd,
			CurrentLevel:      3,
			LatchedLevel:      6,
			ServiceInDisable:  true,
			MasterEnable:      true,
			GroupEnableGate:   true,
			StatusGroupSelect: true,
		}))
	})

	It("should round trip through a codec", func() {
		for _, codec := range []stateful.Codec{
			stateful.JSONCodec{}, stateful.GobCodec{},
		} {
			c.Reset()
			c.SetMasterEnable(true)
			c.SetRequestLine(4, true)
			c.SetGroupEnableGate(false)

			buf := new(bytes.Buffer)
			Expect(stateful.Save(buf, codec, c)).To(Succeed())

			restored := MakeBuilder().Build("Board.PIC")
			Expect(stateful.Load(buf, codec, restored)).To(Succeed())

			Expect(restored.Snapshot()).To(Equal(c.Snapshot()))
		}
	})

	It("should reject malformed data", func() {
		good, err := c.State().Serialize()
		Expect(err).NotTo(HaveOccurred())

		cases := map[string]any{
			"current_level":      8,
			"latched_level":      -1,
			"request_register":   256,
			"master_enable":      "yes",
			"service_in_disable": nil,
		}

		for key, value := range cases {
			data := map[string]any{}
			for k, v := range good {
				data[k] = v
			}

			data[key] = value

			s := &State{}
			Expect(s.Deserialize(data)).NotTo(Succeed(), key)
		}

		delete(good, "group_enable_gate")
		Expect((&State{}).Deserialize(good)).NotTo(Succeed())
	})

	It("should leave the state untouched on error", func() {
		s := c.State().(*State)
		before := *s

		Expect(s.Deserialize(map[string]any{})).NotTo(Succeed())
		Expect(*s).To(Equal(before))
	})

	It("should panic when restoring a foreign state", func() {
		Expect(func() { c.SetState(fakeState{}) }).To(Panic())
	})

	It("should not emit signals when restoring", func() {
		s := c.Snapshot()
		s.ServiceInDisable = true
		s.RequestRegister = 0x00

		c.SetState(&s)

		Expect(rec.signals).To(BeEmpty())
		Expect(c.Pending()).To(Equal(uint8(0xff)))
		Expect(c.InService()).To(BeTrue())
	})

	It("should resume identically after a checkpoint between grant and acknowledge",
		func() {
			ops := func(ctrl *Comp) []func() {
				return []func(){
					func() { ctrl.SetMasterEnable(true) },
					func() { ctrl.SetGroupSelect(true) },
					func() { ctrl.SetRequestLine(2, true) },
					func() { ctrl.SetRequestLine(5, true) },
					func() { ctrl.WriteStatus(ctrl.ReadLevel()) },
					func() { ctrl.SetRequestLine(7, true) },
					func() { ctrl.WriteStatus(ctrl.ReadLevel()) },
					func() { ctrl.SetRequestLine(7, false) },
					func() { ctrl.WriteStatus(0) },
				}
			}

			const split = 3

			full := &signalRecorder{}
			ref := MakeBuilder().WithSink(full).Build("Board.PIC")
			refOps := ops(ref)

			for i, op := range refOps {
				if i == split {
					full.clear()
				}

				op()
			}

			first := MakeBuilder().Build("Board.PIC")
			for _, op := range ops(first)[:split] {
				op()
			}

			Expect(first.InService()).To(BeTrue())

			buf := new(bytes.Buffer)
			Expect(stateful.Save(buf, stateful.JSONCodec{}, first)).To(Succeed())

			resumedRec := &signalRecorder{}
			resumed := MakeBuilder().WithSink(resumedRec).Build("Board.PIC")
			Expect(stateful.Load(buf, stateful.JSONCodec{}, resumed)).To(Succeed())

			for _, op := range ops(resumed)[split:] {
				op()
			}

			Expect(resumedRec.signals).To(Equal(full.signals))
			Expect(resumed.Snapshot()).To(Equal(ref.Snapshot()))
		})
})
