package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidAddress is returned when an address string cannot be parsed.
var ErrInvalidAddress = errors.New("invalid address")

// Address is a raw 16-bit bus address, physical or group.
type Address uint16

// Group formats the address as a three-level group address (main/middle/sub).
func (a Address) Group() string {
	return fmt.Sprintf("%d/%d/%d", a>>11, (a>>8)&0x07, a&0xff)
}

// Physical formats the address as a physical address (area.line.device).
func (a Address) Physical() string {
	return fmt.Sprintf("%d.%d.%d", a>>12, (a>>8)&0x0f, a&0xff)
}

// ParseGroup parses "main/middle/sub", "main/sub" or a plain number.
func ParseGroup(s string) (Address, error) {
	parts := strings.Split(s, "/")
	switch len(parts) {
	case 1:
		return parseRaw(s)
	case 2:
		main, err1 := parseField(parts[0], 31)
		sub, err2 := parseField(parts[1], 2047)
		if err1 != nil || err2 != nil {
			return 0, fmt.Errorf("%w: group %q", ErrInvalidAddress, s)
		}
		return Address(main<<11 | sub), nil
	case 3:
		main, err1 := parseField(parts[0], 31)
		mid, err2 := parseField(parts[1], 7)
		sub, err3 := parseField(parts[2], 255)
		if err1 != nil || err2 != nil || err3 != nil {
			return 0, fmt.Errorf("%w: group %q", ErrInvalidAddress, s)
		}
		return Address(main<<11 | mid<<8 | sub), nil
	default:
		return 0, fmt.Errorf("%w: group %q", ErrInvalidAddress, s)
	}
}

// ParsePhysical parses "area.line.device" or a plain number.
func ParsePhysical(s string) (Address, error) {
	parts := strings.Split(s, ".")
	if len(parts) == 1 {
		return parseRaw(s)
	}
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: physical %q", ErrInvalidAddress, s)
	}
	area, err1 := parseField(parts[0], 15)
	line, err2 := parseField(parts[1], 15)
	dev, err3 := parseField(parts[2], 255)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, fmt.Errorf("%w: physical %q", ErrInvalidAddress, s)
	}
	return Address(area<<12 | line<<8 | dev), nil
}

func parseRaw(s string) (Address, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return Address(v), nil
}

func parseField(s string, max uint64) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil || v > max {
		return 0, ErrInvalidAddress
	}
	return uint16(v), nil
}
