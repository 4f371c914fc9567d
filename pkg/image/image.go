// Package image builds application downloads for a BCU. An image is a
// YAML description of an application: its identity, group addresses,
// communication objects and raw parameter bytes. Build turns it into the
// memory segments a configuration tool would write, in the table formats
// of the target variant.
package image

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/selfbus/bcu-go/pkg/comobj"
	"github.com/selfbus/bcu-go/pkg/layout"
	"github.com/selfbus/bcu-go/pkg/telegram"
)

// ErrInvalid is returned for an image that cannot be built.
var ErrInvalid = errors.New("invalid image")

// Image is an application download description.
type Image struct {
	Name           string             `yaml:"name"`
	Variant        layout.Variant     `yaml:"variant"`
	Application    Application        `yaml:"application"`
	GroupAddresses []telegram.Address `yaml:"group_addresses"`
	Objects        []Object           `yaml:"objects"`
	Parameters     []Parameter        `yaml:"parameters"`
}

// Application identifies the application program.
type Application struct {
	Manufacturer uint16 `yaml:"manufacturer"`
	DeviceType   uint16 `yaml:"device_type"`
	Version      uint8  `yaml:"version"`
	PeiType      uint8  `yaml:"pei_type"`
}

// Object is one communication object.
type Object struct {
	Name     string             `yaml:"name"`
	Type     ObjectType         `yaml:"type"`
	Flags    []string           `yaml:"flags"`
	Priority string             `yaml:"priority"`
	Groups   []telegram.Address `yaml:"groups"`
}

// ObjectType wraps comobj.Type for YAML.
type ObjectType comobj.Type

// UnmarshalYAML accepts a type name such as "1bit" or "2byte".
func (t *ObjectType) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := comobj.ParseType(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*t = ObjectType(v)
	return nil
}

// Parameter is a block of raw bytes at a unified address.
type Parameter struct {
	Address uint16 `yaml:"address"`
	Data    Bytes  `yaml:"data"`
}

// Bytes is raw data written as a hex string ("01 02 ff") or a list of
// numbers.
type Bytes []byte

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *Bytes) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		var nums []uint8
		if err := value.Decode(&nums); err != nil {
			return err
		}
		*b = nums
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	s = strings.NewReplacer(" ", "", ":", "", "\n", "").Replace(s)
	v, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("line %d: bad hex data: %w", value.Line, err)
	}
	*b = v
	return nil
}

// Parse parses a YAML image. Unknown fields are rejected.
func Parse(data []byte) (*Image, error) {
	var img Image
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&img); err != nil {
		return nil, fmt.Errorf("parsing image: %w", err)
	}
	if !img.Variant.Valid() {
		return nil, fmt.Errorf("%w: %q has no variant", ErrInvalid, img.Name)
	}
	return &img, nil
}

// LoadFile loads an image from a file.
func LoadFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

// Groups returns the group address table: the listed addresses in order,
// followed by any address an object uses that is not listed.
func (img *Image) Groups() []telegram.Address {
	out := append([]telegram.Address(nil), img.GroupAddresses...)
	seen := make(map[telegram.Address]bool, len(out))
	for _, a := range out {
		seen[a] = true
	}
	for _, o := range img.Objects {
		for _, g := range o.Groups {
			if !seen[g] {
				seen[g] = true
				out = append(out, g)
			}
		}
	}
	return out
}

// config returns the descriptor config byte of o.
func (o Object) config() (byte, error) {
	var c byte
	for _, f := range o.Flags {
		switch strings.ToLower(f) {
		case "comm":
			c |= comobj.ConfComm
		case "read":
			c |= comobj.ConfRead
		case "write":
			c |= comobj.ConfWrite
		case "trans", "transmit":
			c |= comobj.ConfTrans
		case "update":
			c |= comobj.ConfUpdate
		default:
			return 0, fmt.Errorf("%w: object %q: unknown flag %q", ErrInvalid, o.Name, f)
		}
	}
	switch strings.ToLower(o.Priority) {
	case "", "low":
		c |= byte(telegram.PriorityLow)
	case "normal":
		c |= byte(telegram.PriorityNormal)
	case "urgent":
		c |= byte(telegram.PriorityUrgent)
	case "system":
		c |= byte(telegram.PrioritySystem)
	default:
		return 0, fmt.Errorf("%w: object %q: unknown priority %q", ErrInvalid, o.Name, o.Priority)
	}
	return c, nil
}
