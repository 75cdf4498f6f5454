// Package timing provides the discrete-event engine that advances simulated
// time.
package timing

import "github.com/sarchlab/picsim/sim/hooking"

// VTimeInCycle is a point on the simulated timeline, counted in cycles of the
// engine clock.
type VTimeInCycle uint64

// Handler processes events of various types.
// Events are plain data structs (no interface required).
// Handlers use type switching to handle different event types:
//
//	func (h *MyHandler) Handle(event any) error {
//	    switch e := event.(type) {
//	    case *MyEvent:
//	        // handle MyEvent
//	    default:
//	        return fmt.Errorf("unknown event type: %T", event)
//	    }
//	    return nil
//	}
type Handler interface {
	Handle(event any) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(event any) error

// Handle calls f.
func (f HandlerFunc) Handle(event any) error {
	return f(event)
}

// TimeTeller exposes the current simulation cycle.
type TimeTeller interface {
	CurrentTime() VTimeInCycle
}

// EventScheduler schedules events in the simulation timeline.
type EventScheduler interface {
	TimeTeller
	Schedule(event ScheduledEvent)
}

// Engine is an EventScheduler that can also drive the timeline.
type Engine interface {
	hooking.Hookable
	EventScheduler

	Run() error
	Pause()
	Continue()
}

// ScheduledEvent is the engine-facing wrapper for user-defined events.
type ScheduledEvent struct {
	// Event is the data payload to be delivered to the handler.
	Event any

	// Time is the cycle when the event should be processed.
	Time VTimeInCycle

	// Handler is the component that will process this event.
	Handler Handler

	// IsSecondary indicates if this event should be processed after
	// all primary events at the same time.
	IsSecondary bool
}

// HookPosBeforeEvent is a hook position that triggers before handling an event.
var HookPosBeforeEvent = &hooking.HookPos{Name: "BeforeEvent"}

// HookPosAfterEvent is a hook position that triggers after handling an event.
var HookPosAfterEvent = &hooking.HookPos{Name: "AfterEvent"}
