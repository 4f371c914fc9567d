package log

import (
	"time"
)

// Event is a single device event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred.
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies one boot of the device (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction of telegram flow. Only meaningful for telegram events.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Variant is the hardware variant name (BCU1, BCU2, ...).
	Variant string `cbor:"6,keyasint,omitempty"`

	// Tick is the system tick in milliseconds when the event occurred.
	Tick uint32 `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Telegram  *TelegramEvent  `cbor:"10,keyasint,omitempty"`
	Lifecycle *LifecycleEvent `cbor:"11,keyasint,omitempty"`
	Commit    *CommitEvent    `cbor:"12,keyasint,omitempty"`
	Memory    *MemoryEvent    `cbor:"13,keyasint,omitempty"`
	Error     *ErrorEventData `cbor:"14,keyasint,omitempty"`
}

// Direction indicates the direction of telegram flow.
type Direction uint8

const (
	// DirectionIn is a telegram received from the bus.
	DirectionIn Direction = 0
	// DirectionOut is a telegram sent to the bus.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which part of the stack captured the event.
type Layer uint8

const (
	// LayerMemory is the memory region and flash layer.
	LayerMemory Layer = 0
	// LayerTables is the address, association and com object table layer.
	LayerTables Layer = 1
	// LayerDevice is the device lifecycle and application service layer.
	LayerDevice Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerMemory:
		return "MEMORY"
	case LayerTables:
		return "TABLES"
	case LayerDevice:
		return "DEVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryTelegram is a telegram received, sent or dropped.
	CategoryTelegram Category = 0
	// CategoryLifecycle is a state transition or observer notification.
	CategoryLifecycle Category = 1
	// CategoryCommit is a flash commit.
	CategoryCommit Category = 2
	// CategoryError is an error event.
	CategoryError Category = 3
	// CategoryMemory is a memory or property service access.
	CategoryMemory Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTelegram:
		return "TELEGRAM"
	case CategoryLifecycle:
		return "LIFECYCLE"
	case CategoryCommit:
		return "COMMIT"
	case CategoryError:
		return "ERROR"
	case CategoryMemory:
		return "MEMORY"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory parses a category name as printed by String.
func ParseCategory(s string) (Category, bool) {
	for c := CategoryTelegram; c <= CategoryMemory; c++ {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}

// TelegramEvent captures a decoded telegram.
type TelegramEvent struct {
	// Source is the physical address of the sender.
	Source uint16 `cbor:"1,keyasint"`

	// Dest is the destination address.
	Dest uint16 `cbor:"2,keyasint"`

	// Group is set when Dest is a group address.
	Group bool `cbor:"3,keyasint,omitempty"`

	// APCI is the application service code.
	APCI uint16 `cbor:"4,keyasint"`

	// Payload is the application data.
	Payload []byte `cbor:"5,keyasint,omitempty"`

	// Dropped is set when the telegram was discarded without processing.
	Dropped bool `cbor:"6,keyasint,omitempty"`

	// DropReason explains a drop.
	DropReason string `cbor:"7,keyasint,omitempty"`
}

// LifecycleEvent captures a device state transition.
type LifecycleEvent struct {
	// OldState is the previous state.
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"2,keyasint"`

	// Notification is the observer notification delivered with the transition.
	Notification string `cbor:"3,keyasint,omitempty"`
}

// CommitEvent captures one flush of a region's shadow to flash.
type CommitEvent struct {
	// Region is the name of the committed region.
	Region string `cbor:"1,keyasint"`

	// PagesWritten is the number of pages erased and programmed.
	PagesWritten int `cbor:"2,keyasint"`

	// PagesSkipped is the number of dirty pages already equal to flash.
	PagesSkipped int `cbor:"3,keyasint,omitempty"`

	// Attempts is the highest attempt count used for any page.
	Attempts int `cbor:"4,keyasint,omitempty"`

	// Trigger is what caused the commit (flush, pressure, voltage-fail, ...).
	Trigger string `cbor:"5,keyasint,omitempty"`

	// Failed is set when the commit gave up.
	Failed bool `cbor:"6,keyasint,omitempty"`
}

// MemoryEvent captures a memory or property service access.
type MemoryEvent struct {
	// Space is RAM or EEPROM for memory accesses, PROPERTY for properties.
	Space string `cbor:"1,keyasint"`

	// Address is the unified address, or object index << 8 | property ID.
	Address uint32 `cbor:"2,keyasint"`

	// Length is the number of bytes accessed.
	Length int `cbor:"3,keyasint"`

	// Write is set for writes.
	Write bool `cbor:"4,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Fatal is set when the error halted the device.
	Fatal bool `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
