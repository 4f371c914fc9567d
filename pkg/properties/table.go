package properties

import (
	"errors"
	"fmt"

	"github.com/selfbus/bcu-go/pkg/layout"
	"github.com/selfbus/bcu-go/pkg/memory"
)

// Property errors.
var (
	// ErrNotSupported is returned for variants without interface objects.
	ErrNotSupported = errors.New("variant has no properties")

	// ErrNotFound is returned for an unknown object or property.
	ErrNotFound = errors.New("property not found")

	// ErrReadOnly is returned when writing a read only property.
	ErrReadOnly = errors.New("property is read only")

	// ErrLength is returned when a request does not fit the property.
	ErrLength = errors.New("invalid property length")
)

// Memory is the unified address space the pointer properties refer to.
type Memory interface {
	Resolve(unified uint32) (memory.Address, error)
	Read(a memory.Address, n int) ([]byte, error)
	Write(a memory.Address, data []byte) error
}

// Table holds the interface objects of one device.
type Table struct {
	layout  layout.Layout
	mem     Memory
	objects [][]Def
	maxData int
}

// New creates the property table of a layout.
func New(l layout.Layout, mem Memory) (*Table, error) {
	if !l.Properties {
		return nil, fmt.Errorf("%w: %s", ErrNotSupported, l.Variant)
	}
	maxData := 10
	if l.Variant == layout.SYSTEMB {
		maxData = 12
	}
	return &Table{layout: l, mem: mem, objects: standardObjects(l), maxData: maxData}, nil
}

// Objects returns the number of interface objects.
func (t *Table) Objects() int { return len(t.objects) }

// Defs returns the definitions of an interface object.
func (t *Table) Defs(obj int) ([]Def, error) {
	if obj < 0 || obj >= len(t.objects) {
		return nil, fmt.Errorf("%w: object %d", ErrNotFound, obj)
	}
	return t.objects[obj], nil
}

// Find returns the definition of property id of obj.
func (t *Table) Find(obj int, id ID) (Def, error) {
	defs, err := t.Defs(obj)
	if err != nil {
		return Def{}, err
	}
	for _, d := range defs {
		if d.ID == id {
			return d, nil
		}
	}
	return Def{}, fmt.Errorf("%w: %s of %s", ErrNotFound, id, ObjectType(obj))
}

// At returns the definition at a position of obj.
func (t *Table) At(obj, index int) (Def, error) {
	defs, err := t.Defs(obj)
	if err != nil {
		return Def{}, err
	}
	if index < 0 || index >= len(defs) {
		return Def{}, fmt.Errorf("%w: index %d of %s", ErrNotFound, index, ObjectType(obj))
	}
	return defs[index], nil
}

// Elements returns the current number of elements of a property. A table
// reference reports 0 while the table is unloaded.
func (t *Table) Elements(d Def) (int, error) {
	if !d.IsArrayPointer() {
		return 1, nil
	}
	a, err := d.Address()
	if err != nil {
		return 0, err
	}
	b, err := t.mem.Read(a, d.Size())
	if err != nil {
		return 0, err
	}
	for _, x := range b {
		if x != 0 {
			return 1, nil
		}
	}
	return 0, nil
}

// Read returns count elements of a property starting at element start
// (1-based). Start 0 returns the element count as a 2-byte number.
func (t *Table) Read(obj int, id ID, count, start int) ([]byte, error) {
	d, err := t.Find(obj, id)
	if err != nil {
		return nil, err
	}
	if start == 0 {
		n, err := t.Elements(d)
		if err != nil {
			return nil, err
		}
		return []byte{byte(n >> 8), byte(n)}, nil
	}
	size := d.Size()
	n := count * size
	if count < 1 || start < 1 || n > t.maxData {
		return nil, fmt.Errorf("%w: %d x %d bytes from %d", ErrLength, count, size, start)
	}
	if !d.IsPointer() {
		if start != 1 || count != 1 {
			return nil, fmt.Errorf("%w: %s has one element", ErrLength, id)
		}
		return inline(d.Value, size), nil
	}
	a, err := d.Address()
	if err != nil {
		return nil, err
	}
	b, err := t.mem.Read(a.Add((start-1)*size), n)
	if err != nil {
		return nil, err
	}
	// System B reports table references as 4-byte addresses.
	if t.layout.Variant == layout.SYSTEMB && id == PIDTableReference {
		b = append([]byte{0, 0}, b...)
	}
	return b, nil
}

// Write stores count elements of a property starting at element start and
// returns the value read back. Writing the load state control property
// runs the load state machine and returns the new state.
func (t *Table) Write(obj int, id ID, count, start int, data []byte) ([]byte, error) {
	d, err := t.Find(obj, id)
	if err != nil {
		return nil, err
	}
	if !d.Writable() {
		return nil, fmt.Errorf("%w: %s of %s", ErrReadOnly, id, ObjectType(obj))
	}
	if d.Type() == PDTControl {
		state, err := t.LoadControl(ObjectType(obj), data)
		if err != nil {
			return nil, err
		}
		return []byte{byte(state)}, nil
	}
	if !d.IsPointer() {
		return nil, fmt.Errorf("%w: %s holds a constant", ErrReadOnly, id)
	}
	size := d.Size()
	n := count * size
	if count < 1 || start < 1 || n > t.maxData || len(data) < n {
		return nil, fmt.Errorf("%w: %d x %d bytes from %d, have %d", ErrLength, count, size, start, len(data))
	}
	a, err := d.Address()
	if err != nil {
		return nil, err
	}
	a = a.Add((start - 1) * size)
	if err := t.mem.Write(a, data[:n]); err != nil {
		return nil, err
	}
	return t.mem.Read(a, n)
}

// Description describes one property.
type Description struct {
	Object   int
	Index    int
	ID       ID
	Type     DataType
	Writable bool
	Elements int
	Access   byte
}

// Describe returns the description of property id of obj, or of the
// property at index when id is 0.
func (t *Table) Describe(obj int, id ID, index int) (Description, error) {
	var (
		d   Def
		err error
	)
	if id != 0 {
		d, err = t.Find(obj, id)
		if err == nil {
			index = t.indexOf(obj, id)
		}
	} else {
		d, err = t.At(obj, index)
	}
	if err != nil {
		return Description{Object: obj, Index: index, ID: id}, err
	}
	n, err := t.Elements(d)
	if err != nil {
		return Description{}, err
	}
	access := byte(0x50)
	if d.Writable() {
		access = 0xf1
	}
	return Description{
		Object:   obj,
		Index:    index,
		ID:       d.ID,
		Type:     d.Type(),
		Writable: d.Writable(),
		Elements: n,
		Access:   access,
	}, nil
}

func (t *Table) indexOf(obj int, id ID) int {
	for i, d := range t.objects[obj] {
		if d.ID == id {
			return i
		}
	}
	return -1
}

// LoadState returns the stored load state of an interface object.
func (t *Table) LoadState(obj ObjectType) (LoadState, error) {
	if int(obj) < 0 || int(obj) >= len(t.objects) {
		return LoadError, fmt.Errorf("%w: object %d", ErrNotFound, obj)
	}
	b, err := t.mem.Read(t.eeprom(t.layout.Eeprom.LoadState+int(obj)), 1)
	if err != nil {
		return LoadError, err
	}
	return LoadState(b[0]), nil
}

func (t *Table) eeprom(off int) memory.Address {
	return memory.EepromOffset(uint32(off))
}

// inline returns a constant property value right aligned in size bytes.
func inline(v uint16, size int) []byte {
	b := make([]byte, size)
	for i := size - 1; i >= 0 && v != 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}
