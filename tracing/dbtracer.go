package tracing

import (
	"sync"

	"github.com/sarchlab/picsim/datarecording"
	"github.com/sarchlab/picsim/sim/timing"
	"github.com/tebeka/atexit"
)

// Table names used by the DBTracer.
const (
	ServiceTable = "pic_service"
	EventTable   = "pic_event"
)

// ServiceEntry is a row of the service table.
type ServiceEntry struct {
	ID        string
	Location  string
	Level     uint8
	AckLevel  uint8
	StartTime uint64
	EndTime   uint64
}

// EventEntry is a row of the event table.
type EventEntry struct {
	Time     uint64
	Location string
	What     string
	Value    int
}

// DBTracer is a tracer that stores services and events into a data recorder.
type DBTracer struct {
	mu      sync.Mutex
	backend datarecording.DataRecorder

	startTime, endTime timing.VTimeInCycle
	terminated         bool
}

// NewDBTracer creates a new DBTracer and the tables it writes to.
func NewDBTracer(recorder datarecording.DataRecorder) *DBTracer {
	recorder.CreateTable(ServiceTable, ServiceEntry{})
	recorder.CreateTable(EventTable, EventEntry{})

	t := &DBTracer{backend: recorder}

	atexit.Register(func() { t.Terminate() })

	return t
}

// SetTimeRange limits tracing to [startTime, endTime]. A zero bound is open.
func (t *DBTracer) SetTimeRange(startTime, endTime timing.VTimeInCycle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.startTime = startTime
	t.endTime = endTime
}

func (t *DBTracer) inRange(time timing.VTimeInCycle) bool {
	if t.startTime > 0 && time < t.startTime {
		return false
	}

	if t.endTime > 0 && time > t.endTime {
		return false
	}

	return true
}

// StartService does nothing. Services are written once they end.
func (t *DBTracer) StartService(_ Service) {
	// Do nothing
}

// EndService writes the service if it overlaps the time range.
func (t *DBTracer) EndService(s Service) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.terminated {
		return
	}

	if t.endTime > 0 && s.StartTime > t.endTime {
		return
	}

	if t.startTime > 0 && s.EndTime < t.startTime {
		return
	}

	t.backend.InsertData(ServiceTable, ServiceEntry{
		ID:        s.ID,
		Location:  s.Where,
		Level:     s.Level,
		AckLevel:  s.AckLevel,
		StartTime: uint64(s.StartTime),
		EndTime:   uint64(s.EndTime),
	})
}

// RecordEvent writes the event if it falls into the time range.
func (t *DBTracer) RecordEvent(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.terminated || !t.inRange(e.Time) {
		return
	}

	t.backend.InsertData(EventTable, EventEntry{
		Time:     uint64(e.Time),
		Location: e.Where,
		What:     e.What,
		Value:    e.Value,
	})
}

// Terminate flushes the recorder. Later records are ignored.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.terminated {
		return
	}

	t.terminated = true
	t.backend.Flush()
}
