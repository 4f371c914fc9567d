package layout

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownVariant is returned for a variant name or tag that is not part
// of the family.
var ErrUnknownVariant = errors.New("unknown BCU variant")

// Variant tags one hardware generation of the BCU family.
type Variant uint8

const (
	// BCU1 is the legacy bus coupling unit (mask 0x0012).
	BCU1 Variant = iota + 1
	// BCU2 is the second generation bus coupling unit (mask 0x0020).
	BCU2
	// MASK0701 is the BIM112 mask version 0x0701.
	MASK0701
	// MASK0705 is mask version 0x0705. It shares the MASK0701 EEPROM window.
	MASK0705
	// SYSTEMB is mask version 0x07B0.
	SYSTEMB
)

// Variants lists the family in capability order.
func Variants() []Variant {
	return []Variant{BCU1, BCU2, MASK0701, MASK0705, SYSTEMB}
}

// String returns the variant name.
func (v Variant) String() string {
	switch v {
	case BCU1:
		return "BCU1"
	case BCU2:
		return "BCU2"
	case MASK0701:
		return "MASK0701"
	case MASK0705:
		return "MASK0705"
	case SYSTEMB:
		return "SYSTEMB"
	default:
		return fmt.Sprintf("Variant(%d)", uint8(v))
	}
}

// Valid reports whether v is a member of the family.
func (v Variant) Valid() bool {
	return v >= BCU1 && v <= SYSTEMB
}

// ParseVariant parses a variant name, ignoring case. The mask version in
// hex ("0x0701", "0701", "07B0") is accepted too.
func ParseVariant(s string) (Variant, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for _, v := range Variants() {
		if name == v.String() {
			return v, nil
		}
	}
	mask := strings.TrimPrefix(strings.TrimPrefix(name, "0X"), "MASK")
	for _, v := range Variants() {
		if mask == fmt.Sprintf("%04X", table[v].MaskVersion) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVariant, s)
}

// MarshalText implements encoding.TextMarshaler.
func (v Variant) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVariant, uint8(v))
	}
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Variant) UnmarshalText(b []byte) error {
	parsed, err := ParseVariant(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
