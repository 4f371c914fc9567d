package board

import (
	"fmt"
	"strconv"
	"strings"
)

// SchemaCurrent is the descriptor schema written by this library.
const SchemaCurrent = "1.0"

// Schema is a parsed "major.minor" descriptor schema version.
type Schema struct {
	Major uint16
	Minor uint16
}

// ParseSchema parses a "major.minor" schema string.
func ParseSchema(s string) (Schema, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return Schema{}, fmt.Errorf("invalid schema %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil || parts[0] == "" {
		return Schema{}, fmt.Errorf("invalid schema %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || parts[1] == "" {
		return Schema{}, fmt.Errorf("invalid schema %q: bad minor component", s)
	}

	return Schema{Major: uint16(major), Minor: uint16(minor)}, nil
}

// CurrentSchema returns SchemaCurrent parsed.
func CurrentSchema() Schema {
	s, _ := ParseSchema(SchemaCurrent)
	return s
}

// String returns the schema as "major.minor".
func (s Schema) String() string {
	return fmt.Sprintf("%d.%d", s.Major, s.Minor)
}

// Compatible reports whether other has the same major version.
func (s Schema) Compatible(other Schema) bool {
	return s.Major == other.Major
}
