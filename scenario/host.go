package scenario

import (
	"fmt"
	"math"

	"github.com/sarchlab/picsim/pic"
	"github.com/sarchlab/picsim/sim/naming"
	"github.com/sarchlab/picsim/sim/stateful"
	"github.com/sarchlab/picsim/sim/timing"
)

// Pulse is an interrupt pulse seen by the host.
type Pulse struct {
	Time       timing.VTimeInCycle `json:"time"`
	Controller string              `json:"controller"`
	Level      uint8               `json:"level"`
}

// Read is a read of a controller's level output.
type Read struct {
	Time       timing.VTimeInCycle `json:"time"`
	Controller string              `json:"controller"`
	Level      uint8               `json:"level"`

	// ByHost is set for the reads the host does while acknowledging.
	ByHost bool `json:"by_host"`
}

type pendingAck struct {
	controller string
	time       timing.VTimeInCycle
}

type ackEvent struct {
	controller string
}

// Host is the processor side of the controllers. It records the pulses of the
// controllers wired to it and, with auto-acknowledge on, reads the level and
// writes it back as the status after a fixed latency.
type Host struct {
	naming.NamedBase

	engine     timing.EventScheduler
	comps      map[string]*pic.Comp
	ackLatency timing.VTimeInCycle
	ackUntil   timing.VTimeInCycle
	autoAck    bool
	maxAcks    uint64

	pending []pendingAck
	acks    uint64

	pulses []Pulse
	reads  []Read
}

func newHost(
	engine timing.EventScheduler,
	spec HostSpec,
) *Host {
	return &Host{
		NamedBase:  naming.MakeNamedBase(HostName),
		engine:     engine,
		comps:      make(map[string]*pic.Comp),
		ackLatency: timing.VTimeInCycle(spec.AckLatency),
		ackUntil:   timing.VTimeInCycle(spec.AckUntil),
		autoAck:    spec.AutoAck,
		maxAcks:    spec.maxAcks(),
	}
}

// Sink returns the sink that connects the interrupt output of the named
// controller to the host. The controller must be connected before it pulses.
func (h *Host) Sink(name string) pic.Sink {
	return pic.SinkFuncs{
		Interrupt: func(asserted bool) {
			if asserted {
				h.interrupt(name)
			}
		},
	}
}

// Connect lets the host read and acknowledge a controller.
func (h *Host) Connect(c *pic.Comp) {
	h.comps[c.Name()] = c
}

func (h *Host) interrupt(name string) {
	c, ok := h.comps[name]
	if !ok {
		panic(fmt.Sprintf("host: %s pulsed before being connected", name))
	}

	now := h.engine.CurrentTime()

	h.pulses = append(h.pulses, Pulse{
		Time:       now,
		Controller: c.Name(),
		Level:      c.Snapshot().LatchedLevel,
	})

	if !h.autoAck {
		return
	}

	ack := pendingAck{controller: c.Name(), time: now + h.ackLatency}
	if h.ackUntil > 0 && ack.time > h.ackUntil {
		return
	}

	h.pending = append(h.pending, ack)
	h.schedule(ack)
}

func (h *Host) schedule(ack pendingAck) {
	h.engine.Schedule(timing.ScheduledEvent{
		Event:   &ackEvent{controller: ack.controller},
		Time:    ack.time,
		Handler: h,
	})
}

// scheduleRestored schedules the acknowledges that were pending when the
// host state was captured.
func (h *Host) scheduleRestored() {
	for _, ack := range h.pending {
		h.schedule(ack)
	}
}

// Handle acknowledges the oldest pending pulse. It fails once the acknowledge
// budget is used up.
func (h *Host) Handle(event any) error {
	evt, ok := event.(*ackEvent)
	if !ok {
		return fmt.Errorf("host: unknown event type %T", event)
	}

	if len(h.pending) == 0 || h.pending[0].controller != evt.controller {
		return fmt.Errorf("host: unexpected acknowledge for %s", evt.controller)
	}

	if h.acks >= h.maxAcks {
		return fmt.Errorf("host: acknowledge budget of %d exhausted, "+
			"%s keeps interrupting", h.maxAcks, evt.controller)
	}

	h.pending = h.pending[1:]
	h.acks++

	c := h.comps[evt.controller]
	level := c.ReadLevel()

	h.recordRead(Read{
		Time:       h.engine.CurrentTime(),
		Controller: c.Name(),
		Level:      level,
		ByHost:     true,
	})

	c.WriteStatus(level)

	return nil
}

func (h *Host) recordRead(r Read) {
	h.reads = append(h.reads, r)
}

// Pulses returns the pulses seen so far.
func (h *Host) Pulses() []Pulse {
	return h.pulses
}

// Reads returns the level reads done so far, by the host or by the script.
func (h *Host) Reads() []Read {
	return h.reads
}

func (h *Host) connected(name string) bool {
	_, ok := h.comps[name]
	return ok
}

// HostState is the part of the host that must survive a checkpoint: the
// acknowledges it still owes and the number it has done.
type HostState struct {
	name string

	PendingControllers []string
	PendingTimes       []uint64
	Acks               uint64
}

// Name returns the host name.
func (s *HostState) Name() string {
	return s.name
}

// Serialize converts the state into a map.
func (s *HostState) Serialize() (map[string]any, error) {
	return map[string]any{
		"pending_controllers": append([]string{}, s.PendingControllers...),
		"pending_times":       append([]uint64{}, s.PendingTimes...),
		"acks":                s.Acks,
	}, nil
}

// Deserialize fills the state from a map produced by Serialize.
func (s *HostState) Deserialize(data map[string]any) error {
	controllers, err := stateful.Strings(data, "pending_controllers")
	if err != nil {
		return err
	}

	times, err := stateful.Uints(data, "pending_times", math.MaxUint64)
	if err != nil {
		return err
	}

	acks, err := stateful.Uint(data, "acks", math.MaxUint64)
	if err != nil {
		return err
	}

	if len(controllers) != len(times) {
		return fmt.Errorf("host: %d pending controllers but %d times",
			len(controllers), len(times))
	}

	s.PendingControllers = controllers
	s.PendingTimes = times
	s.Acks = acks

	return nil
}

// State returns a copy of the host state.
func (h *Host) State() stateful.State {
	s := &HostState{name: h.Name(), Acks: h.acks}

	for _, ack := range h.pending {
		s.PendingControllers = append(s.PendingControllers, ack.controller)
		s.PendingTimes = append(s.PendingTimes, uint64(ack.time))
	}

	return s
}

// SetState replaces the pending acknowledges. Controllers unknown to the host
// panic.
func (h *Host) SetState(s stateful.State) {
	st, ok := s.(*HostState)
	if !ok {
		panic(fmt.Sprintf("host: cannot restore from %T", s))
	}

	h.pending = nil
	h.acks = st.Acks

	for i, name := range st.PendingControllers {
		if !h.connected(name) {
			panic(fmt.Sprintf("host: %s is not wired to the host", name))
		}

		h.pending = append(h.pending, pendingAck{
			controller: name,
			time:       timing.VTimeInCycle(st.PendingTimes[i]),
		})
	}
}

var _ stateful.StateHolder = (*Host)(nil)
