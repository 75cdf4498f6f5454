package tracing

import (
	"sync"

	"github.com/sarchlab/picsim/sim/timing"
)

const numLevels = 8

// CountTracer counts grants, acknowledges, and service time per level. If two
// services overlap, their durations are simply added together.
type CountTracer struct {
	filter ServiceFilter
	lock   sync.Mutex

	grants      [numLevels]uint64
	services    [numLevels]uint64
	serviceTime [numLevels]timing.VTimeInCycle
	events      map[string]uint64
}

// NewCountTracer creates a CountTracer. A nil filter accepts every service.
func NewCountTracer(filter ServiceFilter) *CountTracer {
	if filter == nil {
		filter = func(Service) bool { return true }
	}

	return &CountTracer{
		filter: filter,
		events: make(map[string]uint64),
	}
}

// StartService counts the grant.
func (t *CountTracer) StartService(s Service) {
	if !t.filter(s) {
		return
	}

	t.lock.Lock()
	t.grants[s.Level&(numLevels-1)]++
	t.lock.Unlock()
}

// EndService adds the service time to the granted level.
func (t *CountTracer) EndService(s Service) {
	if !t.filter(s) {
		return
	}

	t.lock.Lock()
	level := s.Level & (numLevels - 1)
	t.services[level]++
	t.serviceTime[level] += s.Duration()
	t.lock.Unlock()
}

// RecordEvent counts the event by kind.
func (t *CountTracer) RecordEvent(e Event) {
	t.lock.Lock()
	t.events[e.What]++
	t.lock.Unlock()
}

// Grants returns the number of grants at a level.
func (t *CountTracer) Grants(level uint8) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.grants[level&(numLevels-1)]
}

// Services returns the number of acknowledged services at a level.
func (t *CountTracer) Services(level uint8) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.services[level&(numLevels-1)]
}

// TotalServiceTime returns the sum of service durations at a level.
func (t *CountTracer) TotalServiceTime(level uint8) timing.VTimeInCycle {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.serviceTime[level&(numLevels-1)]
}

// AverageServiceTime returns the mean service duration at a level, or 0 if
// no service has finished.
func (t *CountTracer) AverageServiceTime(level uint8) float64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	level &= numLevels - 1
	if t.services[level] == 0 {
		return 0
	}

	return float64(t.serviceTime[level]) / float64(t.services[level])
}

// Events returns how many events of a kind have been seen.
func (t *CountTracer) Events(what string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.events[what]
}
