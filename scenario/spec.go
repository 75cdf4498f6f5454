// Package scenario drives controllers from a YAML script on the event engine
// and collects what the host observes.
package scenario

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/picsim/pic"
	"github.com/sarchlab/picsim/sim/naming"
	"github.com/sarchlab/picsim/sim/timing"
)

// Op names a scripted operation.
type Op string

// Scripted operations.
const (
	OpRequest      Op = "request"
	OpRelease      Op = "release"
	OpStatus       Op = "status"
	OpGroupSelect  Op = "group_select"
	OpGate         Op = "gate"
	OpMasterEnable Op = "master_enable"
	OpRead         Op = "read"
	OpReset        Op = "reset"
	OpCheckpoint   Op = "checkpoint"
)

// Names of the non-controller state holders in a checkpoint.
const (
	HostName     = "Host"
	ProgressName = "Scenario"
)

// Spec is the content of a scenario file.
type Spec struct {
	Freq        string           `yaml:"freq"`
	Controllers []ControllerSpec `yaml:"controllers"`
	Host        HostSpec         `yaml:"host"`
	Events      []EventSpec      `yaml:"events"`
}

// ControllerSpec describes one controller.
type ControllerSpec struct {
	Name         string `yaml:"name"`
	MasterEnable bool   `yaml:"master_enable"`
	GroupSelect  bool   `yaml:"group_select"`

	// CascadeTo names the controller whose group-enable gate is driven by
	// this controller's group-enable output.
	CascadeTo string `yaml:"cascade_to"`
}

// HostSpec describes the processor side.
type HostSpec struct {
	// Controllers lists the controllers whose interrupt output reaches the
	// host.
	Controllers []string `yaml:"controllers"`

	// AckLatency is the number of cycles between a pulse and the
	// acknowledge.
	AckLatency int64 `yaml:"ack_latency"`

	// AutoAck makes the host read the level and write it back as the status
	// after every pulse.
	AutoAck bool `yaml:"auto_ack"`

	// AckUntil is the last cycle in which the host acknowledges. Pulses whose
	// acknowledge would fall later stay unacknowledged. 0 means no limit.
	AckUntil int64 `yaml:"ack_until"`

	// MaxAcks bounds the number of acknowledges in one run. The run fails
	// once it is exceeded. 0 selects DefaultMaxAcks.
	MaxAcks int64 `yaml:"max_acks"`
}

// DefaultMaxAcks is the acknowledge budget of hosts that do not set one. A
// held line under the unconditional policy is regranted after every
// acknowledge, so auto-acknowledging runs need a bound to finish.
const DefaultMaxAcks = 100000

func (h HostSpec) maxAcks() uint64 {
	if h.MaxAcks == 0 {
		return DefaultMaxAcks
	}

	return uint64(h.MaxAcks)
}

// EventSpec is one scripted operation.
type EventSpec struct {
	At         int64  `yaml:"at"`
	Controller string `yaml:"controller"`
	Op         Op     `yaml:"op"`
	Line       *int   `yaml:"line"`
	Value      *int   `yaml:"value"`
}

// Parse decodes and validates a scenario. Unknown keys are rejected.
func Parse(r io.Reader) (*Spec, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	spec := &Spec{}

	err := decoder.Decode(spec)
	if err != nil {
		return nil, fmt.Errorf("scenario: decode: %w", err)
	}

	err = spec.Validate()
	if err != nil {
		return nil, err
	}

	return spec, nil
}

// Load reads a scenario file.
func Load(path string) (*Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(f)
}

// Frequency returns the engine frequency, 1GHz if unset.
func (s *Spec) Frequency() timing.Freq {
	if s.Freq == "" {
		return 1 * timing.GHz
	}

	f, err := timing.ParseFreq(s.Freq)
	if err != nil {
		panic(err)
	}

	return f
}

// Validate reports every problem in the scenario.
func (s *Spec) Validate() error {
	var errs []error

	if s.Freq != "" {
		if _, err := timing.ParseFreq(s.Freq); err != nil {
			errs = append(errs, fmt.Errorf("freq: %w", err))
		}
	}

	known := s.validateControllers(&errs)
	s.validateCascade(known, &errs)
	s.validateHost(known, &errs)

	for i, e := range s.Events {
		if err := e.validate(known); err != nil {
			errs = append(errs, fmt.Errorf("event %d: %w", i, err))
		}
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("scenario: %w", errors.Join(errs...))
}

func (s *Spec) validateControllers(errs *[]error) map[string]ControllerSpec {
	known := make(map[string]ControllerSpec, len(s.Controllers))

	if len(s.Controllers) == 0 {
		*errs = append(*errs, errors.New("no controllers"))
	}

	for i, c := range s.Controllers {
		if err := checkName(c.Name); err != nil {
			*errs = append(*errs, fmt.Errorf("controller %d: %w", i, err))
			continue
		}

		if c.Name == HostName || c.Name == ProgressName {
			*errs = append(*errs,
				fmt.Errorf("controller %d: name %s is reserved", i, c.Name))
			continue
		}

		if _, dup := known[c.Name]; dup {
			*errs = append(*errs,
				fmt.Errorf("controller %d: duplicated name %s", i, c.Name))
			continue
		}

		known[c.Name] = c
	}

	return known
}

func (s *Spec) validateCascade(
	known map[string]ControllerSpec,
	errs *[]error,
) {
	driver := make(map[string]string)

	for _, c := range s.Controllers {
		if c.CascadeTo == "" {
			continue
		}

		if c.CascadeTo == c.Name {
			*errs = append(*errs,
				fmt.Errorf("controller %s: cascades to itself", c.Name))
			continue
		}

		if _, ok := known[c.CascadeTo]; !ok {
			*errs = append(*errs, fmt.Errorf(
				"controller %s: unknown cascade target %s", c.Name, c.CascadeTo))
			continue
		}

		if other, taken := driver[c.CascadeTo]; taken {
			*errs = append(*errs, fmt.Errorf(
				"controller %s: %s is already driven by %s",
				c.Name, c.CascadeTo, other))
			continue
		}

		driver[c.CascadeTo] = c.Name
	}

	for _, c := range s.Controllers {
		if c.CascadeTo == c.Name {
			continue
		}

		seen := map[string]bool{c.Name: true}

		for next := known[c.Name].CascadeTo; next != ""; next = known[next].CascadeTo {
			if seen[next] {
				*errs = append(*errs,
					fmt.Errorf("controller %s: cascade loop", c.Name))
				break
			}

			seen[next] = true
		}
	}
}

func (s *Spec) validateHost(known map[string]ControllerSpec, errs *[]error) {
	if s.Host.AckLatency < 0 {
		*errs = append(*errs, fmt.Errorf("host: negative ack latency %d",
			s.Host.AckLatency))
	}

	if s.Host.AckUntil < 0 {
		*errs = append(*errs, fmt.Errorf("host: negative ack_until %d",
			s.Host.AckUntil))
	}

	if s.Host.MaxAcks < 0 {
		*errs = append(*errs, fmt.Errorf("host: negative max_acks %d",
			s.Host.MaxAcks))
	}

	for _, name := range s.Host.Controllers {
		if _, ok := known[name]; !ok {
			*errs = append(*errs, fmt.Errorf("host: unknown controller %s", name))
		}
	}
}

func (e EventSpec) validate(known map[string]ControllerSpec) error {
	if e.At < 0 {
		return fmt.Errorf("negative time %d", e.At)
	}

	if e.Op == OpCheckpoint {
		return nil
	}

	if e.Controller == "" {
		return fmt.Errorf("op %s needs a controller", e.Op)
	}

	if _, ok := known[e.Controller]; !ok {
		return fmt.Errorf("unknown controller %s", e.Controller)
	}

	switch e.Op {
	case OpRequest, OpRelease:
		if e.Line == nil {
			return fmt.Errorf("op %s needs a line", e.Op)
		}

		if *e.Line < 0 || *e.Line >= pic.NumLines {
			return fmt.Errorf("line %d out of range", *e.Line)
		}
	case OpStatus:
		if e.Value == nil {
			return errors.New("op status needs a value")
		}

		if *e.Value < 0 || *e.Value > 7 {
			return fmt.Errorf("status %d out of range", *e.Value)
		}
	case OpGroupSelect, OpGate, OpMasterEnable:
		if e.Value == nil {
			return fmt.Errorf("op %s needs a value", e.Op)
		}

		if *e.Value != 0 && *e.Value != 1 {
			return fmt.Errorf("op %s: value %d is not 0 or 1", e.Op, *e.Value)
		}
	case OpRead, OpReset:
	default:
		return fmt.Errorf("unknown op %q", e.Op)
	}

	return nil
}

func checkName(name string) (err error) {
	if name == "" {
		return errors.New("missing name")
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid name %q: %v", name, r)
		}
	}()

	naming.NameMustBeValid(name)

	return nil
}
