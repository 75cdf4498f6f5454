package tracing

import (
	"fmt"
	"reflect"

	"github.com/sarchlab/picsim/pic"
	"github.com/sarchlab/picsim/sim/hooking"
	"github.com/sarchlab/picsim/sim/idgen"
	"github.com/sarchlab/picsim/sim/naming"
	"github.com/sarchlab/picsim/sim/timing"
)

// NamedHookable represent something both have a name and can be hooked
type NamedHookable interface {
	naming.Named
	hooking.Hookable
}

// CollectTrace lets the tracer collect traces from a controller. Times are
// taken from the time teller.
func CollectTrace(
	domain NamedHookable,
	timeTeller timing.TimeTeller,
	tracer Tracer,
) {
	for _, hook := range domain.Hooks() {
		hook, ok := hook.(*traceHook)
		if ok && hook.t == tracer {
			panic(fmt.Sprintf(
				"domain %s already has tracer %s",
				domain.Name(), reflect.TypeOf(tracer)))
		}
	}

	h := &traceHook{
		t:          tracer,
		where:      domain.Name(),
		timeTeller: timeTeller,
	}
	domain.AcceptHook(h)
}

// A traceHook converts controller hooks into tracer calls. It keeps the
// service that is waiting for an acknowledge.
type traceHook struct {
	t          Tracer
	where      string
	timeTeller timing.TimeTeller

	open *Service
}

// Func calls the tracer interfaces when the hook is triggered
func (h *traceHook) Func(ctx hooking.HookCtx) {
	now := h.timeTeller.CurrentTime()

	switch item := ctx.Item.(type) {
	case pic.RequestLineEvent:
		what := EventRelease
		if item.Asserted {
			what = EventRequest
		}

		h.event(now, what, item.Line)
	case pic.GrantEvent:
		h.event(now, EventGrant, int(item.Level))
		h.startService(now, item.Level)
	case pic.AckEvent:
		h.event(now, EventAck, int(item.Level))
		h.endService(now, item.Level)
	case pic.ConfigEvent:
		value := 0
		if item.Value {
			value = 1
		}

		h.event(now, string(item.Line), value)
	}
}

func (h *traceHook) event(now timing.VTimeInCycle, what string, value int) {
	h.t.RecordEvent(Event{
		Time:  now,
		Where: h.where,
		What:  what,
		Value: value,
	})
}

// A grant while a service is open can only follow a reset or a restore; the
// open service is dropped.
func (h *traceHook) startService(now timing.VTimeInCycle, level uint8) {
	s := Service{
		ID:        idgen.Generate(),
		Where:     h.where,
		Level:     level,
		StartTime: now,
	}
	h.open = &s

	h.t.StartService(s)
}

func (h *traceHook) endService(now timing.VTimeInCycle, ackLevel uint8) {
	if h.open == nil {
		return
	}

	s := *h.open
	s.AckLevel = ackLevel
	s.EndTime = now
	h.open = nil

	h.t.EndService(s)
}
