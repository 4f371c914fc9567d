package memory

import "fmt"

// Space tags which memory an Address refers to.
type Space uint8

const (
	// SpaceRAM is the user RAM.
	SpaceRAM Space = iota + 1
	// SpaceEEPROM is the user EEPROM.
	SpaceEEPROM
	// SpaceHighRAM is the RAM block above the user RAM on BCU2 and later.
	SpaceHighRAM
)

// String returns the space name.
func (s Space) String() string {
	switch s {
	case SpaceRAM:
		return "RAM"
	case SpaceEEPROM:
		return "EEPROM"
	case SpaceHighRAM:
		return "HIGHRAM"
	default:
		return "UNKNOWN"
	}
}

// Address is an offset into one of the user memories.
type Address struct {
	Space  Space
	Offset uint32
}

// RamOffset returns an address in user RAM.
func RamOffset(off uint32) Address {
	return Address{Space: SpaceRAM, Offset: off}
}

// EepromOffset returns an address in user EEPROM.
func EepromOffset(off uint32) Address {
	return Address{Space: SpaceEEPROM, Offset: off}
}

// Add returns the address n bytes further.
func (a Address) Add(n int) Address {
	return Address{Space: a.Space, Offset: uint32(int(a.Offset) + n)}
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a.Space == 0
}

// String formats the address as SPACE+0xOFFSET.
func (a Address) String() string {
	return fmt.Sprintf("%s+0x%04x", a.Space, a.Offset)
}
