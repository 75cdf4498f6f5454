package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sort"

	"github.com/sarchlab/picsim/pic"
	"github.com/sarchlab/picsim/sim/naming"
	"github.com/sarchlab/picsim/sim/stateful"
	"github.com/sarchlab/picsim/sim/timing"
	"github.com/sarchlab/picsim/tracing"
)

// Options customizes a simulation.
type Options struct {
	// Logger receives the register log of every controller. Nil is silent.
	Logger *log.Logger

	// Tracers collect traces from every controller.
	Tracers []tracing.Tracer

	// Codec encodes the checkpoints taken by checkpoint events. JSON if nil.
	Codec stateful.Codec
}

// Checkpoint is the state captured by a checkpoint event.
type Checkpoint struct {
	Time timing.VTimeInCycle `json:"time"`

	// Pulses and Reads count the observations made before the checkpoint.
	Pulses int `json:"pulses"`
	Reads  int `json:"reads"`

	Data []byte `json:"-"`
}

// Result is what a run observed.
type Result struct {
	EndTime     timing.VTimeInCycle  `json:"end_time"`
	Pulses      []Pulse              `json:"pulses"`
	Reads       []Read               `json:"reads"`
	Checkpoints []Checkpoint         `json:"checkpoints"`
	Final       map[string]pic.State `json:"final"`
}

type scriptEvent struct {
	index int
}

// Simulation is a scenario wired onto an engine.
type Simulation struct {
	naming.NamedBase

	spec   *Spec
	engine *timing.SerialEngine
	codec  stateful.Codec

	comps  []*pic.Comp
	byName map[string]*pic.Comp
	host   *Host

	// events holds the script indices sorted by time. Events with equal
	// times keep their file order.
	events []int
	next   int

	checkpoints []Checkpoint
	ran         bool
}

// Build creates the engine, the controllers and the host of a validated
// scenario.
func Build(spec *Spec, opts Options) (*Simulation, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	codec := opts.Codec
	if codec == nil {
		codec = stateful.JSONCodec{}
	}

	engine := timing.NewSerialEngine()

	s := &Simulation{
		NamedBase: naming.MakeNamedBase(ProgressName),
		spec:      spec,
		engine:    engine,
		codec:     codec,
		byName:    make(map[string]*pic.Comp),
		host:      newHost(engine, spec.Host),
	}

	s.buildControllers(opts)

	for _, c := range s.comps {
		for _, t := range opts.Tracers {
			tracing.CollectTrace(c, engine, t)
		}
	}

	s.events = make([]int, len(spec.Events))
	for i := range spec.Events {
		s.events[i] = i
	}

	sort.SliceStable(s.events, func(i, j int) bool {
		return spec.Events[s.events[i]].At < spec.Events[s.events[j]].At
	})

	return s, nil
}

// buildControllers builds cascade targets before the controllers that drive
// them, and keeps the file order in Controllers.
func (s *Simulation) buildControllers(opts Options) {
	specs := make(map[string]ControllerSpec, len(s.spec.Controllers))
	for _, c := range s.spec.Controllers {
		specs[c.Name] = c
	}

	toHost := make(map[string]bool)
	for _, name := range s.spec.Host.Controllers {
		toHost[name] = true
	}

	var build func(name string) *pic.Comp
	build = func(name string) *pic.Comp {
		if c, ok := s.byName[name]; ok {
			return c
		}

		cs := specs[name]

		var sinks []pic.Sink
		if cs.CascadeTo != "" {
			sinks = append(sinks, pic.CascadeSink(build(cs.CascadeTo)))
		}

		if toHost[name] {
			sinks = append(sinks, s.host.Sink(name))
		}

		c := pic.MakeBuilder().
			WithSink(pic.MultiSink(sinks...)).
			WithLogger(opts.Logger).
			WithMasterEnable(cs.MasterEnable).
			WithGroupSelect(cs.GroupSelect).
			Build(name)

		if toHost[name] {
			s.host.Connect(c)
		}

		s.byName[name] = c

		return c
	}

	for _, cs := range s.spec.Controllers {
		s.comps = append(s.comps, build(cs.Name))
	}
}

// Engine returns the engine the simulation runs on.
func (s *Simulation) Engine() *timing.SerialEngine {
	return s.engine
}

// Controllers returns the controllers in file order.
func (s *Simulation) Controllers() []*pic.Comp {
	return s.comps
}

// Controller returns a controller by name, or nil.
func (s *Simulation) Controller(name string) *pic.Comp {
	return s.byName[name]
}

// Host returns the processor model.
func (s *Simulation) Host() *Host {
	return s.host
}

// NumEvents returns the number of scripted events that have not run yet.
func (s *Simulation) NumEvents() int {
	return len(s.events) - s.next
}

// Run executes the remaining script. A simulation can only run once.
func (s *Simulation) Run() (*Result, error) {
	if s.ran {
		return nil, errors.New("scenario: simulation already ran")
	}

	s.ran = true

	for _, idx := range s.events[s.next:] {
		s.engine.Schedule(timing.ScheduledEvent{
			Event:   &scriptEvent{index: idx},
			Time:    timing.VTimeInCycle(s.spec.Events[idx].At),
			Handler: s,
		})
	}

	s.host.scheduleRestored()

	if err := s.engine.Run(); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}

	result := &Result{
		EndTime:     s.engine.CurrentTime(),
		Pulses:      s.host.pulses,
		Reads:       s.host.reads,
		Checkpoints: s.checkpoints,
		Final:       make(map[string]pic.State, len(s.comps)),
	}

	for _, c := range s.comps {
		result.Final[c.Name()] = c.Snapshot()
	}

	return result, nil
}

// Handle executes one scripted event.
func (s *Simulation) Handle(event any) error {
	evt, ok := event.(*scriptEvent)
	if !ok {
		return fmt.Errorf("unknown event type: %T", event)
	}

	e := s.spec.Events[evt.index]
	s.next++

	if e.Op == OpCheckpoint {
		return s.takeCheckpoint()
	}

	c := s.byName[e.Controller]

	switch e.Op {
	case OpRequest:
		c.SetRequestLine(*e.Line, true)
	case OpRelease:
		c.SetRequestLine(*e.Line, false)
	case OpStatus:
		c.WriteStatus(uint8(*e.Value))
	case OpGroupSelect:
		c.SetGroupSelect(*e.Value == 1)
	case OpGate:
		c.SetGroupEnableGate(*e.Value == 1)
	case OpMasterEnable:
		c.SetMasterEnable(*e.Value == 1)
	case OpReset:
		c.Reset()
	case OpRead:
		s.host.recordRead(Read{
			Time:       s.engine.CurrentTime(),
			Controller: c.Name(),
			Level:      c.ReadLevel(),
		})
	default:
		return fmt.Errorf("unknown op %q", e.Op)
	}

	return nil
}

func (s *Simulation) takeCheckpoint() error {
	buf := new(bytes.Buffer)

	if err := s.Save(buf); err != nil {
		return err
	}

	s.checkpoints = append(s.checkpoints, Checkpoint{
		Time:   s.engine.CurrentTime(),
		Pulses: len(s.host.pulses),
		Reads:  len(s.host.reads),
		Data:   buf.Bytes(),
	})

	return nil
}

func (s *Simulation) holders() []stateful.StateHolder {
	holders := make([]stateful.StateHolder, 0, len(s.comps)+2)
	for _, c := range s.comps {
		holders = append(holders, c)
	}

	return append(holders, s.host, s)
}

// Save writes a checkpoint of the controllers, the host and the script
// progress.
func (s *Simulation) Save(w io.Writer) error {
	return stateful.Save(w, s.codec, s.holders()...)
}

// Restore loads a checkpoint before Run. Checkpoints that only hold
// controller states restore the controllers and leave the script untouched.
func (s *Simulation) Restore(r io.Reader) error {
	if s.ran {
		return errors.New("scenario: cannot restore after running")
	}

	snapshot, err := stateful.Read(r, s.codec)
	if err != nil {
		return fmt.Errorf("scenario: %w", err)
	}

	holders := make([]stateful.StateHolder, 0, len(s.comps)+2)
	for _, c := range s.comps {
		holders = append(holders, c)
	}

	var resumeAt uint64

	if data, ok := snapshot[ProgressName]; ok {
		p, err := s.checkProgressState(data)
		if err != nil {
			return fmt.Errorf("scenario: %w", err)
		}

		resumeAt = p.Time
		holders = append(holders, s)
	}

	if data, ok := snapshot[HostName]; ok {
		if err := s.checkHostState(data, resumeAt); err != nil {
			return fmt.Errorf("scenario: %w", err)
		}

		holders = append(holders, s.host)
	}

	if err := stateful.Apply(snapshot, holders...); err != nil {
		return fmt.Errorf("scenario: %w", err)
	}

	return nil
}

func (s *Simulation) checkHostState(data map[string]any, now uint64) error {
	st := &HostState{}
	if err := st.Deserialize(data); err != nil {
		return err
	}

	for i, name := range st.PendingControllers {
		if !s.host.connected(name) {
			return fmt.Errorf("checkpoint acknowledges %s, "+
				"which is not wired to the host", name)
		}

		if st.PendingTimes[i] < now {
			return fmt.Errorf("checkpoint acknowledges %s at %d, before %d",
				name, st.PendingTimes[i], now)
		}
	}

	return nil
}

func (s *Simulation) checkProgressState(data map[string]any) (*ProgressState, error) {
	p := &ProgressState{}
	if err := p.Deserialize(data); err != nil {
		return nil, err
	}

	if p.Next > uint64(len(s.events)) {
		return nil, fmt.Errorf("checkpoint resumes at event %d of %d",
			p.Next, len(s.events))
	}

	if p.Next < uint64(len(s.events)) {
		at := s.spec.Events[s.events[p.Next]].At
		if uint64(at) < p.Time {
			return nil, fmt.Errorf("checkpoint at %d is past event %d at %d",
				p.Time, p.Next, at)
		}
	}

	return p, nil
}

// ProgressState records how far the script has run.
type ProgressState struct {
	name string

	Time uint64
	Next uint64
}

// Name returns the name of the progress holder.
func (p *ProgressState) Name() string {
	return p.name
}

// Serialize converts the state into a map.
func (p *ProgressState) Serialize() (map[string]any, error) {
	return map[string]any{
		"time": p.Time,
		"next": p.Next,
	}, nil
}

// Deserialize fills the state from a map produced by Serialize.
func (p *ProgressState) Deserialize(data map[string]any) error {
	t, err := stateful.Uint(data, "time", math.MaxUint64)
	if err != nil {
		return err
	}

	next, err := stateful.Uint(data, "next", math.MaxUint64)
	if err != nil {
		return err
	}

	p.Time = t
	p.Next = next

	return nil
}

// State returns the script progress.
func (s *Simulation) State() stateful.State {
	return &ProgressState{
		name: s.Name(),
		Time: uint64(s.engine.CurrentTime()),
		Next: uint64(s.next),
	}
}

// SetState moves the script cursor and the engine clock. A cursor past the
// end of the script panics.
func (s *Simulation) SetState(state stateful.State) {
	p, ok := state.(*ProgressState)
	if !ok {
		panic(fmt.Sprintf("scenario: cannot restore from %T", state))
	}

	if p.Next > uint64(len(s.events)) {
		panic(fmt.Sprintf("scenario: cursor %d past %d events",
			p.Next, len(s.events)))
	}

	s.next = int(p.Next)
	s.engine.SetCurrentTime(timing.VTimeInCycle(p.Time))
}

var _ stateful.StateHolder = (*Simulation)(nil)
