package telegram

import (
	"encoding/hex"
	"fmt"
)

// Telegram is a decoded application-layer telegram.
type Telegram struct {
	// Source is the physical address of the sender.
	Source Address `cbor:"1,keyasint" yaml:"source"`

	// Dest is a group address when Group is set, else a physical address.
	Dest Address `cbor:"2,keyasint" yaml:"dest"`

	// Group marks Dest as a group address.
	Group bool `cbor:"3,keyasint,omitempty" yaml:"group"`

	// Priority of the telegram.
	Priority Priority `cbor:"4,keyasint,omitempty" yaml:"priority"`

	// APCI is the application service.
	APCI APCI `cbor:"5,keyasint" yaml:"apci"`

	// Payload is the application data following the APCI.
	Payload []byte `cbor:"6,keyasint,omitempty" yaml:"payload"`
}

// NewGroupWrite builds a GroupValueWrite telegram.
func NewGroupWrite(src, group Address, value []byte) Telegram {
	return Telegram{Source: src, Dest: group, Group: true, Priority: PriorityLow,
		APCI: GroupValueWrite, Payload: append([]byte(nil), value...)}
}

// NewGroupRead builds a GroupValueRead telegram.
func NewGroupRead(src, group Address) Telegram {
	return Telegram{Source: src, Dest: group, Group: true, Priority: PriorityLow, APCI: GroupValueRead}
}

// IsBroadcast reports whether the telegram is addressed to group 0.
func (t Telegram) IsBroadcast() bool {
	return t.Group && t.Dest == 0
}

// String returns a one-line description.
func (t Telegram) String() string {
	dest := t.Dest.Physical()
	if t.Group {
		dest = t.Dest.Group()
	}
	return fmt.Sprintf("%s -> %s %s [%s]", t.Source.Physical(), dest, t.APCI, hex.EncodeToString(t.Payload))
}
