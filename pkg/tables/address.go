package tables

import (
	"fmt"

	"github.com/selfbus/bcu-go/pkg/layout"
	"github.com/selfbus/bcu-go/pkg/memory"
)

// AddressTable is the group address table.
//
// Word format: [count:u16][addr:u16]... at the unified address in
// addrTabAddr. Legacy format: [count:u8][physical:u16][addr:u16]... at a
// fixed EEPROM offset.
type AddressTable struct {
	mem    Memory
	ptrs   Pointers
	format layout.TableFormat
	fixed  int
}

// Location returns where the table lives. ok is false when no table is
// loaded.
func (t *AddressTable) Location() (a memory.Address, ok bool, err error) {
	if t.format == layout.TablesLegacy {
		return memory.EepromOffset(uint32(t.fixed)), true, nil
	}
	ptr, err := t.ptrs.AddrTabAddr()
	if err != nil {
		return memory.Address{}, false, fmt.Errorf("address table pointer: %w", err)
	}
	return locate(t.mem, ptr)
}

// header returns the entry count and the address of the first entry.
func (t *AddressTable) header() (int, memory.Address, error) {
	loc, ok, err := t.Location()
	if err != nil || !ok {
		return 0, memory.Address{}, err
	}
	if t.format == layout.TablesLegacy {
		b, err := t.mem.Read(loc, 1)
		if err != nil {
			return 0, memory.Address{}, err
		}
		return int(b[0]), loc.Add(3), nil
	}
	b, err := t.mem.Read(loc, 2)
	if err != nil {
		return 0, memory.Address{}, err
	}
	return int(word(b)), loc.Add(2), nil
}

// Count returns the number of group addresses. It is 0 when no table is
// loaded.
func (t *AddressTable) Count() (int, error) {
	n, _, err := t.header()
	return n, err
}

// Address returns the group address in a 1-based slot.
func (t *AddressTable) Address(slot int) (uint16, error) {
	n, first, err := t.header()
	if err != nil {
		return 0, err
	}
	if slot < 1 || slot > n {
		return 0, fmt.Errorf("%w: address slot %d of %d", ErrNotFound, slot, n)
	}
	b, err := t.mem.Read(first.Add(2*(slot-1)), 2)
	if err != nil {
		return 0, err
	}
	return word(b), nil
}

// PhysicalAddress returns the physical address stored in a legacy table.
func (t *AddressTable) PhysicalAddress() (uint16, error) {
	if t.format != layout.TablesLegacy {
		return 0, fmt.Errorf("%w: no physical address in address table", ErrNotFound)
	}
	b, err := t.mem.Read(memory.EepromOffset(uint32(t.fixed+1)), 2)
	if err != nil {
		return 0, err
	}
	return word(b), nil
}

// Scan calls fn for each entry in table order until fn returns false. It
// returns the number of entries visited.
func (t *AddressTable) Scan(fn func(slot int, addr uint16) bool) (int, error) {
	n, first, err := t.header()
	if err != nil || n == 0 {
		return 0, err
	}
	b, err := t.mem.Read(first, 2*n)
	if err != nil {
		return 0, fmt.Errorf("address table with %d entries: %w", n, err)
	}
	for i := 0; i < n; i++ {
		if !fn(i+1, word(b[2*i:])) {
			return i + 1, nil
		}
	}
	return n, nil
}

// IndexOf returns the 1-based slot of the first occurrence of addr.
func (t *AddressTable) IndexOf(addr uint16) (int, error) {
	slot := 0
	_, err := t.Scan(func(s int, a uint16) bool {
		if a == addr {
			slot = s
			return false
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	if slot == 0 {
		return 0, ErrNotFound
	}
	return slot, nil
}

// Addresses returns all group addresses in table order.
func (t *AddressTable) Addresses() ([]uint16, error) {
	var out []uint16
	_, err := t.Scan(func(_ int, a uint16) bool {
		out = append(out, a)
		return true
	})
	return out, err
}
