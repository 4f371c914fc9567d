package tables

import (
	"errors"
	"fmt"

	"github.com/selfbus/bcu-go/pkg/layout"
	"github.com/selfbus/bcu-go/pkg/memory"
)

// ErrNotFound is returned when an address or object is not configured.
var ErrNotFound = errors.New("not found")

// Memory is the unified address space the tables are read through.
type Memory interface {
	// Resolve maps a unified address to a tagged address.
	Resolve(unified uint32) (memory.Address, error)

	// Read reads n bytes at a.
	Read(a memory.Address, n int) ([]byte, error)
}

// Pointers gives access to the table pointer fields in the user EEPROM.
type Pointers interface {
	AddrTabAddr() (uint16, error)
	AssocTabAddr() (uint16, error)
	AssocTabPtr() (byte, error)
}

// Tables bundles the address and association table of one device.
type Tables struct {
	Address     *AddressTable
	Association *AssociationTable
}

// New creates the tables of a layout.
func New(l layout.Layout, mem Memory, ptrs Pointers) (*Tables, error) {
	switch l.Tables {
	case layout.TablesLegacy, layout.TablesWord:
	default:
		return nil, fmt.Errorf("tables: unknown format %d for %s", l.Tables, l.Variant)
	}
	return &Tables{
		Address:     &AddressTable{mem: mem, ptrs: ptrs, format: l.Tables, fixed: l.Eeprom.AddrTabSize},
		Association: &AssociationTable{mem: mem, ptrs: ptrs, format: l.Tables},
	}, nil
}

// GroupAddressOf returns the first group address object obj is associated
// with. This is the address the object sends on.
func (t *Tables) GroupAddressOf(obj int) (uint16, error) {
	slot, err := t.Association.FirstSlot(obj)
	if err != nil {
		return 0, err
	}
	return t.Address.Address(slot)
}

// ObjectsFor returns the objects associated with a group address, in table
// order.
func (t *Tables) ObjectsFor(group uint16) ([]int, error) {
	slot, err := t.Address.IndexOf(group)
	if err != nil {
		return nil, err
	}
	return t.Association.ObjectsFor(slot)
}

// locate resolves a table pointer. A zero pointer means no table.
func locate(mem Memory, ptr uint16) (memory.Address, bool, error) {
	if ptr == 0 {
		return memory.Address{}, false, nil
	}
	a, err := mem.Resolve(uint32(ptr))
	if err != nil {
		return memory.Address{}, false, err
	}
	return a, true, nil
}

func word(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}
