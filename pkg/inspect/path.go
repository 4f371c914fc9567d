// Package inspect provides device inspection and memory manipulation utilities.
//
// The inspect package offers a unified interface for:
//   - Parsing path expressions (e.g., "eeprom/0x17+2", "obj/3", "prop/device/manufacturer_id")
//   - Resolving names to numeric IDs
//   - Reading and writing memory, com objects and properties
//   - Formatting output for display
package inspect

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/selfbus/bcu-go/pkg/memory"
	"github.com/selfbus/bcu-go/pkg/properties"
)

// Path errors.
var (
	ErrEmptyPath     = errors.New("empty path")
	ErrInvalidPath   = errors.New("invalid path format")
	ErrInvalidNumber = errors.New("invalid numeric value in path")
)

// Kind is what a path refers to.
type Kind uint8

// Path kinds.
const (
	KindMemory Kind = iota + 1
	KindObject
	KindProperty
)

// Path represents a parsed inspection path.
type Path struct {
	Kind Kind

	// Space is the memory of a memory path. It is 0 for a unified address.
	Space memory.Space

	// Offset is the memory offset, or the unified address when Space is 0.
	Offset uint32

	// Count is the number of bytes of a memory path.
	Count int

	// Object is the com object or interface object number.
	Object int

	// PID is the property ID of a property path.
	PID properties.ID

	// IsPartial indicates the path stops above a single item
	// (used for listing all objects or all properties).
	IsPartial bool

	// Raw stores the original input string.
	Raw string
}

// ParsePath parses a path string into a Path struct.
//
// Supported formats:
//   - "0x0117+2" - unified address, optional byte count
//   - "ram/0x60", "eeprom/0x17+2", "highram/0" - offset into one memory
//   - "obj" - all com objects
//   - "obj/3" - one com object
//   - "prop" - all interface objects
//   - "prop/device" - the properties of one interface object
//   - "prop/device/manufacturer_id" - one property
//
// Numeric values can be decimal or hex (0x prefix).
// Object and property names are resolved via the name tables.
func ParsePath(input string) (*Path, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyPath
	}

	if strings.HasPrefix(input, "/") || strings.HasSuffix(input, "/") || strings.Contains(input, "//") {
		return nil, ErrInvalidPath
	}

	parts := strings.Split(input, "/")
	p := &Path{Raw: input}

	switch head := strings.ToLower(parts[0]); head {
	case "ram", "eeprom", "highram":
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: %s needs an offset", ErrInvalidPath, head)
		}
		p.Kind = KindMemory
		p.Space = map[string]memory.Space{
			"ram": memory.SpaceRAM, "eeprom": memory.SpaceEEPROM, "highram": memory.SpaceHighRAM,
		}[head]
		return p, p.parseRange(parts[1])

	case "obj", "object":
		p.Kind = KindObject
		switch len(parts) {
		case 1:
			p.IsPartial = true
			return p, nil
		case 2:
			n, err := parseNumber(parts[1], 0xff)
			if err != nil {
				return nil, err
			}
			p.Object = int(n)
			return p, nil
		}
		return nil, ErrInvalidPath

	case "prop", "property":
		p.Kind = KindProperty
		if len(parts) == 1 {
			p.IsPartial = true
			p.Object = -1
			return p, nil
		}
		if len(parts) > 3 {
			return nil, ErrInvalidPath
		}
		obj, err := parseObject(parts[1])
		if err != nil {
			return nil, err
		}
		p.Object = int(obj)
		if len(parts) == 2 {
			p.IsPartial = true
			return p, nil
		}
		pid, err := parseProperty(parts[2])
		if err != nil {
			return nil, err
		}
		p.PID = pid
		return p, nil
	}

	if len(parts) != 1 {
		return nil, ErrInvalidPath
	}
	p.Kind = KindMemory
	return p, p.parseRange(parts[0])
}

// parseRange parses "offset" or "offset+count".
func (p *Path) parseRange(s string) error {
	off, count, found := strings.Cut(s, "+")
	v, err := parseNumber(off, 0xffff)
	if err != nil {
		return err
	}
	p.Offset = uint32(v)
	p.Count = 1
	if found {
		n, err := parseNumber(count, 0xff)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: zero byte count", ErrInvalidNumber)
		}
		p.Count = int(n)
	}
	return nil
}

// String returns the canonical form of the path.
func (p *Path) String() string {
	switch p.Kind {
	case KindMemory:
		loc := fmt.Sprintf("0x%04x", p.Offset)
		if p.Space != 0 {
			loc = strings.ToLower(p.Space.String()) + "/" + loc
		}
		if p.Count > 1 {
			loc += fmt.Sprintf("+%d", p.Count)
		}
		return loc
	case KindObject:
		if p.IsPartial {
			return "obj"
		}
		return fmt.Sprintf("obj/%d", p.Object)
	case KindProperty:
		switch {
		case p.Object < 0:
			return "prop"
		case p.IsPartial:
			return "prop/" + GetObjectName(properties.ObjectType(p.Object))
		}
		return "prop/" + GetObjectName(properties.ObjectType(p.Object)) + "/" + GetPropertyName(p.PID)
	}
	return p.Raw
}

func parseObject(s string) (properties.ObjectType, error) {
	if obj, ok := ResolveObjectName(s); ok {
		return obj, nil
	}
	n, err := parseNumber(s, 0xff)
	if err != nil {
		return 0, fmt.Errorf("%w: unknown interface object %q", ErrInvalidPath, s)
	}
	return properties.ObjectType(n), nil
}

func parseProperty(s string) (properties.ID, error) {
	if id, ok := ResolvePropertyName(s); ok {
		return id, nil
	}
	n, err := parseNumber(s, 0xff)
	if err != nil {
		return 0, fmt.Errorf("%w: unknown property %q", ErrInvalidPath, s)
	}
	return properties.ID(n), nil
}

// parseNumber parses a decimal or 0x-prefixed hex number up to max.
func parseNumber(s string, max uint64) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidNumber
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil || v > max {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	return v, nil
}
