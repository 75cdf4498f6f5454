// Package tracing turns controller hook activity into service intervals and
// events, and stores them in different backends.
package tracing

import "github.com/sarchlab/picsim/sim/timing"

// A Service is the interval between a grant and the status write that
// acknowledges it.
type Service struct {
	ID        string              `json:"id"`
	Where     string              `json:"where"`
	Level     uint8               `json:"level"`
	AckLevel  uint8               `json:"ack_level"`
	StartTime timing.VTimeInCycle `json:"start_time"`
	EndTime   timing.VTimeInCycle `json:"end_time"`
}

// Duration returns the number of cycles the service took.
func (s Service) Duration() timing.VTimeInCycle {
	return s.EndTime - s.StartTime
}

// An Event is a single observable change on a controller's pins.
type Event struct {
	Time  timing.VTimeInCycle `json:"time"`
	Where string              `json:"where"`
	What  string              `json:"what"`
	Value int                 `json:"value"`
}

// Event kinds. Configuration events use the pin name (SGS, ETLG, INTE) as
// their kind.
const (
	EventRequest = "request"
	EventRelease = "release"
	EventGrant   = "grant"
	EventAck     = "ack"
)

// ServiceFilter selects interesting services. If it returns true, the service
// is considered useful.
type ServiceFilter func(s Service) bool
