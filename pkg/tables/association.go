package tables

import (
	"fmt"

	"github.com/selfbus/bcu-go/pkg/layout"
	"github.com/selfbus/bcu-go/pkg/memory"
)

// Association links an address table slot to a communication object.
type Association struct {
	Slot   int
	Object int
}

// AssociationTable is the association table.
//
// Word format: [count:u16][slot:u16][obj:u16]... at the unified address in
// assocTabAddr. Legacy format: [count:u8][slot:u8][obj:u8]... at the EEPROM
// offset in assocTabPtr.
type AssociationTable struct {
	mem    Memory
	ptrs   Pointers
	format layout.TableFormat
}

// Location returns where the table lives. ok is false when no table is
// loaded.
func (t *AssociationTable) Location() (a memory.Address, ok bool, err error) {
	if t.format == layout.TablesLegacy {
		ptr, err := t.ptrs.AssocTabPtr()
		if err != nil {
			return memory.Address{}, false, fmt.Errorf("association table pointer: %w", err)
		}
		if ptr == 0 {
			return memory.Address{}, false, nil
		}
		return memory.EepromOffset(uint32(ptr)), true, nil
	}
	ptr, err := t.ptrs.AssocTabAddr()
	if err != nil {
		return memory.Address{}, false, fmt.Errorf("association table pointer: %w", err)
	}
	return locate(t.mem, ptr)
}

func (t *AssociationTable) entrySize() int {
	if t.format == layout.TablesLegacy {
		return 2
	}
	return 4
}

func (t *AssociationTable) header() (int, memory.Address, error) {
	loc, ok, err := t.Location()
	if err != nil || !ok {
		return 0, memory.Address{}, err
	}
	if t.format == layout.TablesLegacy {
		b, err := t.mem.Read(loc, 1)
		if err != nil {
			return 0, memory.Address{}, err
		}
		return int(b[0]), loc.Add(1), nil
	}
	b, err := t.mem.Read(loc, 2)
	if err != nil {
		return 0, memory.Address{}, err
	}
	return int(word(b)), loc.Add(2), nil
}

// Count returns the number of associations.
func (t *AssociationTable) Count() (int, error) {
	n, _, err := t.header()
	return n, err
}

func (t *AssociationTable) decode(b []byte) Association {
	if t.format == layout.TablesLegacy {
		return Association{Slot: int(b[0]), Object: int(b[1])}
	}
	return Association{Slot: int(word(b)), Object: int(word(b[2:]))}
}

// Entry returns the association at a 0-based index.
func (t *AssociationTable) Entry(i int) (Association, error) {
	n, first, err := t.header()
	if err != nil {
		return Association{}, err
	}
	if i < 0 || i >= n {
		return Association{}, fmt.Errorf("%w: association %d of %d", ErrNotFound, i, n)
	}
	sz := t.entrySize()
	b, err := t.mem.Read(first.Add(i*sz), sz)
	if err != nil {
		return Association{}, err
	}
	return t.decode(b), nil
}

// Each calls fn for each association in table order until fn returns false.
func (t *AssociationTable) Each(fn func(Association) bool) error {
	n, first, err := t.header()
	if err != nil || n == 0 {
		return err
	}
	sz := t.entrySize()
	b, err := t.mem.Read(first, n*sz)
	if err != nil {
		return fmt.Errorf("association table with %d entries: %w", n, err)
	}
	for i := 0; i < n; i++ {
		if !fn(t.decode(b[i*sz:])) {
			return nil
		}
	}
	return nil
}

// Entries returns all associations in table order.
func (t *AssociationTable) Entries() ([]Association, error) {
	var out []Association
	err := t.Each(func(a Association) bool {
		out = append(out, a)
		return true
	})
	return out, err
}

// ObjectsFor returns the objects associated with a slot, in table order.
func (t *AssociationTable) ObjectsFor(slot int) ([]int, error) {
	var out []int
	err := t.Each(func(a Association) bool {
		if a.Slot == slot {
			out = append(out, a.Object)
		}
		return true
	})
	return out, err
}

// FirstSlot returns the slot of the first association of obj.
func (t *AssociationTable) FirstSlot(obj int) (int, error) {
	slot := 0
	err := t.Each(func(a Association) bool {
		if a.Object == obj {
			slot = a.Slot
			return false
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	if slot == 0 {
		return 0, fmt.Errorf("%w: object %d has no association", ErrNotFound, obj)
	}
	return slot, nil
}
