package comobj

import (
	"fmt"
	"strings"
)

// Type is the value type of an object.
type Type uint8

// Object value types.
const (
	Bit1 Type = iota
	Bit2
	Bit3
	Bit4
	Bit5
	Bit6
	Bit7
	Byte1
	Byte2
	Byte3
	Byte4
	Byte6
	Byte8
	Byte10
	Byte14
)

// Config flags of an object descriptor.
const (
	ConfPrioMask      byte = 0x03
	ConfComm          byte = 0x04
	ConfRead          byte = 0x08
	ConfWrite         byte = 0x10
	ConfValueInEeprom byte = 0x20 // BCU1 only
	ConfTrans         byte = 0x40
	ConfUpdate        byte = 0x80

	ConfWriteComm = ConfWrite | ConfComm
	ConfReadComm  = ConfRead | ConfComm
)

// RAM flags of an object. Each object has a nibble; odd objects use the
// high nibble of the shared byte.
const (
	FlagTransMask    byte = 0x03
	FlagOK           byte = 0x00
	FlagError        byte = 0x01
	FlagTransmitting byte = 0x02
	FlagTransReq     byte = 0x03
	FlagDataReq      byte = 0x04
	FlagUpdate       byte = 0x08
)

var typeNames = []string{
	"1bit", "2bit", "3bit", "4bit", "5bit", "6bit", "7bit",
	"1byte", "2byte", "3byte", "4byte", "6byte", "8byte", "10byte", "14byte",
}

// String returns the type name, e.g. "1bit" or "2byte".
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// ParseType parses a type name as returned by String.
func ParseType(s string) (Type, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range typeNames {
		if n == name {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("unknown com object type %q", s)
}

// Size returns the value size of t in bytes. SYSTEMB packs the types
// above 14 bytes differently.
func (t Type) Size(systemB bool) int { return sizeOf(t, systemB) }

var standardSizes = []byte{1, 1, 2, 3, 4, 6, 8, 10, 14, 15}

var systemBSizes = []byte{1, 1, 2, 3, 4, 6, 8, 10, 14, 5, 7, 9, 11, 12, 13}

// sizeOf returns the value size in bytes for a type.
func sizeOf(t Type, systemB bool) int {
	if t < Bit7 {
		return 1
	}
	idx := int(t - Bit7)
	if !systemB {
		if idx < len(standardSizes) {
			return int(standardSizes[idx])
		}
		return 0
	}
	switch {
	case idx < len(systemBSizes):
		return int(systemBSizes[idx])
	case t < 255:
		return int(t) - 6
	default:
		return 252
	}
}

// Descriptor is one entry of the com object table.
type Descriptor struct {
	DataPtr uint16
	Config  byte
	Type    Type
}

// Priority returns the transmission priority bits.
func (d Descriptor) Priority() byte { return d.Config & ConfPrioMask }

// Has reports whether all bits of mask are set in the config.
func (d Descriptor) Has(mask byte) bool { return d.Config&mask == mask }
