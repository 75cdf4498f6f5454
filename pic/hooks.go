package pic

import "github.com/sarchlab/picsim/sim/hooking"

var (
	// HookPosRequestLine fires after a request line update, before
	// arbitration. Item is a RequestLineEvent.
	HookPosRequestLine = &hooking.HookPos{Name: "PIC Request Line"}

	// HookPosGrant fires after a grant has driven both outputs. Item is a
	// GrantEvent.
	HookPosGrant = &hooking.HookPos{Name: "PIC Grant"}

	// HookPosAcknowledge fires after a status write has reopened the latch,
	// before arbitration. Item is an AckEvent.
	HookPosAcknowledge = &hooking.HookPos{Name: "PIC Acknowledge"}

	// HookPosConfig fires after a configuration line changes. Item is a
	// ConfigEvent.
	HookPosConfig = &hooking.HookPos{Name: "PIC Config"}
)

// ConfigLine names one of the level-sensitive configuration inputs.
type ConfigLine string

// The configuration inputs, named after the hardware pins.
const (
	ConfigGroupSelect     ConfigLine = "SGS"
	ConfigGroupEnableGate ConfigLine = "ETLG"
	ConfigMasterEnable    ConfigLine = "INTE"
)

// RequestLineEvent describes a request line update.
type RequestLineEvent struct {
	Line     int
	Asserted bool
}

// GrantEvent describes a grant.
type GrantEvent struct {
	Level uint8
}

// AckEvent describes a status write.
type AckEvent struct {
	Level uint8
}

// ConfigEvent describes a configuration input update.
type ConfigEvent struct {
	Line  ConfigLine
	Value bool
}
