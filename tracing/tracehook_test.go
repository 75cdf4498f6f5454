package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/picsim/pic"
	"github.com/sarchlab/picsim/sim/timing"
)

var _ = Describe("CollectTrace", func() {
	var (
		mockCtrl   *gomock.Controller
		timeTeller *MockTimeTeller
		tracer     *MockTracer
		now        timing.VTimeInCycle
		c          *pic.Comp
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		timeTeller = NewMockTimeTeller(mockCtrl)
		tracer = NewMockTracer(mockCtrl)
		now = 0

		timeTeller.EXPECT().CurrentTime().
			DoAndReturn(func() timing.VTimeInCycle { return now }).
			AnyTimes()

		c = pic.MakeBuilder().WithMasterEnable(true).Build("Board.PIC")
		CollectTrace(c, timeTeller, tracer)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should panic when the same tracer is attached twice", func() {
		Expect(func() { CollectTrace(c, timeTeller, tracer) }).To(Panic())
	})

	It("should record configuration changes", func() {
		tracer.EXPECT().RecordEvent(Event{
			Time: 0, Where: "Board.PIC", What: "SGS", Value: 1,
		})

		c.SetGroupSelect(true)
	})

	It("should record a release", func() {
		now = 3
		tracer.EXPECT().RecordEvent(Event{
			Time: 3, Where: "Board.PIC", What: EventRelease, Value: 6,
		})

		c.SetRequestLine(6, false)
	})

	It("should turn a grant and its acknowledge into a service", func() {
		var started Service

		now = 10
		gomock.InOrder(
			tracer.EXPECT().RecordEvent(Event{
				Time: 10, Where: "Board.PIC", What: EventRequest, Value: 2,
			}),
			tracer.EXPECT().RecordEvent(Event{
				Time: 10, Where: "Board.PIC", What: EventGrant, Value: 2,
			}),
			tracer.EXPECT().StartService(gomock.Any()).
				Do(func(s Service) { started = s }),
		)

		c.SetRequestLine(2, true)

		Expect(started.ID).NotTo(BeEmpty())
		Expect(started.Where).To(Equal("Board.PIC"))
		Expect(started.Level).To(Equal(uint8(2)))
		Expect(started.StartTime).To(Equal(timing.VTimeInCycle(10)))

		tracer.EXPECT().RecordEvent(Event{
			Time: 10, Where: "Board.PIC", What: "SGS", Value: 1,
		})
		c.SetGroupSelect(true)

		now = 15
		gomock.InOrder(
			tracer.EXPECT().RecordEvent(Event{
				Time: 15, Where: "Board.PIC", What: EventAck, Value: 2,
			}),
			tracer.EXPECT().EndService(gomock.Any()).
				Do(func(s Service) {
					Expect(s.ID).To(Equal(started.ID))
					Expect(s.AckLevel).To(Equal(uint8(2)))
					Expect(s.EndTime).To(Equal(timing.VTimeInCycle(15)))
					Expect(s.Duration()).To(Equal(timing.VTimeInCycle(5)))
				}),
		)

		c.WriteStatus(2)
	})

	It("should end a service before starting the re-grant", func() {
		tracer.EXPECT().RecordEvent(gomock.Any()).AnyTimes()
		tracer.EXPECT().StartService(gomock.Any())

		c.SetRequestLine(5, true)

		gomock.InOrder(
			tracer.EXPECT().EndService(gomock.Any()),
			tracer.EXPECT().StartService(gomock.Any()),
		)

		c.WriteStatus(5)
	})

	It("should ignore an acknowledge without a grant", func() {
		tracer.EXPECT().RecordEvent(Event{
			Time: 0, Where: "Board.PIC", What: EventAck, Value: 4,
		})

		c.WriteStatus(4)
	})
})
