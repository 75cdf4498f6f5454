package pic

import (
	"fmt"
	"log"

	"github.com/sarchlab/picsim/sim/hooking"
	"github.com/sarchlab/picsim/sim/naming"
)

const (
	// NumLines is the number of request lines of one controller.
	NumLines = 8

	levelMask = 0x07
)

// Comp is a priority interrupt controller.
type Comp struct {
	*hooking.HookableBase
	naming.NamedBase

	sink   Sink
	logger *log.Logger

	// pending is active-high: bit i set means line i is asserted.
	pending uint8

	currentLevel      uint8
	latchedLevel      uint8
	serviceInDisable  bool
	masterEnable      bool
	groupEnableGate   bool
	statusGroupSelect bool
}

// SetRequestLine asserts or releases request line 0-7, then arbitrates. Any
// other line number panics.
func (c *Comp) SetRequestLine(line int, asserted bool) {
	if line < 0 || line >= NumLines {
		panic(fmt.Sprintf("pic: %s: request line %d out of range", c.Name(), line))
	}

	c.logf("R%d: %t", line, asserted)

	if asserted {
		c.pending |= 1 << line
	} else {
		c.pending &^= 1 << line
	}

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    HookPosRequestLine,
		Item:   RequestLineEvent{Line: line, Asserted: asserted},
	})

	c.checkInterrupt()
}

// ReadLevel returns the level of the most recent grant.
func (c *Comp) ReadLevel() uint8 {
	a := c.latchedLevel & levelMask

	c.logf("A: %d", a)

	return a
}

// WriteStatus records the level the host is now servicing, reopens the
// in-service latch, raises group-enable and arbitrates. Values that do not fit
// in three bits panic.
func (c *Comp) WriteStatus(value uint8) {
	if value&^levelMask != 0 {
		panic(fmt.Sprintf("pic: %s: status value %#x wider than 3 bits",
			c.Name(), value))
	}

	c.currentLevel = value & levelMask

	c.logf("B: %d", c.currentLevel)

	c.serviceInDisable = false
	c.sink.SetGroupEnable(true)

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    HookPosAcknowledge,
		Item:   AckEvent{Level: c.currentLevel},
	})

	c.checkInterrupt()
}

// SetGroupSelect selects the arbitration policy and arbitrates. When set,
// only levels above the current status level are granted.
func (c *Comp) SetGroupSelect(state bool) {
	c.logf("SGS: %t", state)

	c.statusGroupSelect = state
	c.configChanged(ConfigGroupSelect, state)

	c.checkInterrupt()
}

// SetGroupEnableGate drives the group-enable gate input. The gate is sampled
// by the next arbitration; changing it does not arbitrate by itself.
func (c *Comp) SetGroupEnableGate(state bool) {
	c.logf("ETLG: %t", state)

	c.groupEnableGate = state
	c.configChanged(ConfigGroupEnableGate, state)
}

// SetMasterEnable drives the master interrupt enable. Like the gate, it is
// sampled by the next arbitration only.
func (c *Comp) SetMasterEnable(state bool) {
	c.logf("INTE: %t", state)

	c.masterEnable = state
	c.configChanged(ConfigMasterEnable, state)
}

// Reset returns the controller to its power-on state: all lines idle, master
// enable off, latch open, gate open, policy off. No signal is emitted.
func (c *Comp) Reset() {
	c.pending = 0
	c.currentLevel = 0
	c.latchedLevel = 0
	c.serviceInDisable = false
	c.masterEnable = false
	c.groupEnableGate = true
	c.statusGroupSelect = false
}

func (c *Comp) configChanged(line ConfigLine, value bool) {
	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    HookPosConfig,
		Item:   ConfigEvent{Line: line, Value: value},
	})
}

func (c *Comp) checkInterrupt() {
	if c.serviceInDisable || !c.groupEnableGate || !c.masterEnable {
		return
	}

	for level := NumLines - 1; level >= 0; level-- {
		if c.pending&(1<<level) == 0 {
			continue
		}

		if c.statusGroupSelect && uint8(level) <= c.currentLevel {
			continue
		}

		c.triggerInterrupt(uint8(level))

		return
	}
}

func (c *Comp) triggerInterrupt(level uint8) {
	c.logf("interrupt level %d", level)

	c.latchedLevel = level
	c.serviceInDisable = true

	c.sink.SetGroupEnable(false)

	c.sink.SetInterrupt(true)
	c.sink.SetInterrupt(false)

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    HookPosGrant,
		Item:   GrantEvent{Level: level},
	})
}

func (c *Comp) logf(format string, args ...any) {
	if c.logger == nil {
		return
	}

	c.logger.Printf("%s: "+format, append([]any{c.Name()}, args...)...)
}

// Pending returns the asserted request lines, bit i set for line i.
func (c *Comp) Pending() uint8 {
	return c.pending
}

// RequestRegister returns the request lines in the hardware's active-low
// form: bit i clear for an asserted line i.
func (c *Comp) RequestRegister() uint8 {
	return ^c.pending
}

// CurrentLevel returns the level last written to the status register.
func (c *Comp) CurrentLevel() uint8 {
	return c.currentLevel
}

// InService tells whether a grant is waiting for its status write.
func (c *Comp) InService() bool {
	return c.serviceInDisable
}

// MasterEnabled tells whether the master enable is on.
func (c *Comp) MasterEnabled() bool {
	return c.masterEnable
}

// GateOpen tells whether the group-enable gate is open.
func (c *Comp) GateOpen() bool {
	return c.groupEnableGate
}

// GroupSelect tells whether the status-relative policy is selected.
func (c *Comp) GroupSelect() bool {
	return c.statusGroupSelect
}
