package monitoring

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/picsim/pic"
	"github.com/sarchlab/picsim/sim/timing"
	"github.com/sarchlab/picsim/tracing"
)

var _ = Describe("Monitor", func() {
	var (
		m       *Monitor
		engine  *timing.SerialEngine
		c       *pic.Comp
		server  *httptest.Server
		counter *tracing.CountTracer
	)

	get := func(path string) (int, []byte) {
		rsp, err := http.Get(server.URL + path)
		Expect(err).NotTo(HaveOccurred())
		defer rsp.Body.Close()

		body, err := io.ReadAll(rsp.Body)
		Expect(err).NotTo(HaveOccurred())

		return rsp.StatusCode, body
	}

	post := func(path string) int {
		rsp, err := http.Post(server.URL+path, "application/json", nil)
		Expect(err).NotTo(HaveOccurred())
		rsp.Body.Close()

		return rsp.StatusCode
	}

	BeforeEach(func() {
		engine = timing.NewSerialEngine()
		c = pic.MakeBuilder().WithMasterEnable(true).Build("Board.PIC")
		counter = tracing.NewCountTracer(nil)
		tracing.CollectTrace(c, engine, counter)

		m = NewMonitor()
		m.profileTime = 10 * time.Millisecond
		m.RegisterEngine(engine)
		m.RegisterComponent(c)
		m.RegisterCountTracer(counter)

		server = httptest.NewServer(m.Handler())
	})

	AfterEach(func() {
		server.Close()
	})

	It("should list components", func() {
		code, body := get("/api/list_components")

		Expect(code).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`["Board.PIC"]`))
	})

	It("should report the controller state", func() {
		c.SetRequestLine(4, true)

		code, body := get("/api/state/" + url.PathEscape("Board.PIC"))

		Expect(code).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`{
			"request_register": 239,
			"current_level": 0,
			"latched_level": 4,
			"service_in_disable": true,
			"master_enable": true,
			"group_enable_gate": true,
			"status_group_select": false
		}`))
	})

	It("should read the state between events", func() {
		started := make(chan struct{})
		release := make(chan struct{})

		engine.Schedule(timing.ScheduledEvent{
			Time: 1,
			Handler: timing.HandlerFunc(func(any) error {
				close(started)
				<-release
				c.SetRequestLine(4, true)

				return nil
			}),
		})

		done := make(chan error, 1)
		go func() { done <- engine.Run() }()

		<-started

		bodies := make(chan []byte, 1)
		go func() {
			defer GinkgoRecover()

			code, body := get("/api/state/Board.PIC")
			Expect(code).To(Equal(http.StatusOK))
			bodies <- body
		}()

		Consistently(bodies, 50*time.Millisecond).ShouldNot(Receive())

		close(release)

		var body []byte
		Eventually(bodies).Should(Receive(&body))
		Expect(body).To(ContainSubstring(`"request_register":239`))
		Eventually(done).Should(Receive(BeNil()))
	})

	It("should keep a pause while reading", func() {
		Expect(post("/api/pause")).To(Equal(http.StatusOK))

		code, _ := get("/api/state/Board.PIC")
		Expect(code).To(Equal(http.StatusOK))

		code, _ = get("/api/component/Board.PIC")
		Expect(code).To(Equal(http.StatusOK))
		Expect(engine.IsPaused()).To(BeTrue())

		Expect(post("/api/continue")).To(Equal(http.StatusOK))
	})

	It("should answer 404 for unknown components", func() {
		code, _ := get("/api/state/Nobody")
		Expect(code).To(Equal(http.StatusNotFound))

		code, _ = get("/api/component/Nobody")
		Expect(code).To(Equal(http.StatusNotFound))
	})

	It("should dump a component", func() {
		code, body := get("/api/component/Board.PIC")

		Expect(code).To(Equal(http.StatusOK))
		Expect(body).NotTo(BeEmpty())
	})

	It("should report the engine time", func() {
		engine.Schedule(timing.ScheduledEvent{Time: 42})
		Expect(engine.Run()).To(Succeed())

		code, body := get("/api/now")

		Expect(code).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`{"now":42}`))
	})

	It("should pause and continue the engine", func() {
		Expect(post("/api/pause")).To(Equal(http.StatusOK))
		Expect(engine.IsPaused()).To(BeTrue())

		Expect(post("/api/continue")).To(Equal(http.StatusOK))
		Expect(engine.IsPaused()).To(BeFalse())
	})

	It("should reject pause over GET", func() {
		code, _ := get("/api/pause")
		Expect(code).NotTo(Equal(http.StatusOK))
		Expect(engine.IsPaused()).To(BeFalse())
	})

	It("should report service statistics", func() {
		c.SetRequestLine(5, true)
		c.SetGroupSelect(true)
		c.WriteStatus(5)

		code, body := get("/api/service_stats")
		Expect(code).To(Equal(http.StatusOK))

		var stats []levelStats
		Expect(json.Unmarshal(body, &stats)).To(Succeed())
		Expect(stats).To(HaveLen(8))
		Expect(stats[5].Grants).To(Equal(uint64(1)))
		Expect(stats[5].Services).To(Equal(uint64(1)))
		Expect(stats[0].Grants).To(BeZero())
	})

	It("should list progress bars until completed", func() {
		bar := m.CreateProgressBar("Events", 10)
		bar.IncrementInProgress(3)
		bar.MoveInProgressToFinished(2)

		_, body := get("/api/progress")

		var bars []progressRsp
		Expect(json.Unmarshal(body, &bars)).To(Succeed())
		Expect(bars).To(HaveLen(1))
		Expect(bars[0].Name).To(Equal("Events"))
		Expect(bars[0].Finished).To(Equal(uint64(2)))
		Expect(bars[0].InProgress).To(Equal(uint64(1)))

		m.CompleteProgressBar(bar)

		_, body = get("/api/progress")
		Expect(body).To(MatchJSON(`[]`))
	})

	It("should reject a malformed field request", func() {
		code, _ := get("/api/field/" + url.PathEscape("not json"))

		Expect(code).To(Equal(http.StatusBadRequest))
	})

	It("should report resources", func() {
		code, body := get("/api/resource")
		Expect(code).To(Equal(http.StatusOK))

		var rsp resourceRsp
		Expect(json.Unmarshal(body, &rsp)).To(Succeed())
		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
	})

	It("should collect a profile", func() {
		code, body := get("/api/profile")

		Expect(code).To(Equal(http.StatusOK))
		Expect(json.Valid(body)).To(BeTrue())
	})

	It("should serve the page", func() {
		code, body := get("/")

		Expect(code).To(Equal(http.StatusOK))
		Expect(string(body)).To(HavePrefix("<!DOCTYPE html>"))
	})
})

var _ = Describe("Monitor without engine", func() {
	It("should answer 503", func() {
		server := httptest.NewServer(NewMonitor().Handler())
		defer server.Close()

		rsp, err := http.Get(server.URL + "/api/now")
		Expect(err).NotTo(HaveOccurred())
		rsp.Body.Close()

		Expect(rsp.StatusCode).To(Equal(http.StatusServiceUnavailable))
	})

	It("should still read components", func() {
		m := NewMonitor()
		m.RegisterComponent(pic.MakeBuilder().Build("Board.PIC"))

		server := httptest.NewServer(m.Handler())
		defer server.Close()

		rsp, err := http.Get(server.URL + "/api/state/Board.PIC")
		Expect(err).NotTo(HaveOccurred())
		rsp.Body.Close()

		Expect(rsp.StatusCode).To(Equal(http.StatusOK))
	})
})

var _ = Describe("WithPortNumber", func() {
	It("should refuse privileged ports", func() {
		m := NewMonitor().WithPortNumber(80)
		Expect(m.portNumber).To(Equal(0))

		m = NewMonitor().WithPortNumber(8080)
		Expect(m.portNumber).To(Equal(8080))
	})
})
