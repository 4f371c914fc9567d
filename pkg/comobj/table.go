package comobj

import (
	"errors"
	"fmt"
	"sync"

	"github.com/selfbus/bcu-go/pkg/layout"
	"github.com/selfbus/bcu-go/pkg/memory"
	"github.com/selfbus/bcu-go/pkg/telegram"
)

// Com object errors.
var (
	// ErrNoTable is returned when no com object table is loaded.
	ErrNoTable = errors.New("no com object table")

	// ErrNoObject is returned for an object number outside the table.
	ErrNoObject = errors.New("no such com object")

	// ErrValueSize is returned when a value does not match the object size.
	ErrValueSize = errors.New("value size mismatch")
)

// Memory is the unified address space holding the table and the values.
type Memory interface {
	Resolve(unified uint32) (memory.Address, error)
	Read(a memory.Address, n int) ([]byte, error)
	Write(a memory.Address, data []byte) error
}

// Pointers gives access to the com object table pointer in the user
// EEPROM.
type Pointers interface {
	CommsTabAddr() (uint16, error)
	CommsTabPtr() (byte, error)
}

// Associations maps group addresses to objects and back.
type Associations interface {
	ObjectsFor(group uint16) ([]int, error)
	GroupAddressOf(obj int) (uint16, error)
}

// Sender puts a telegram on the bus.
type Sender interface {
	Send(t telegram.Telegram) error
}

// Table is the communication object table of one device.
type Table struct {
	format layout.ComObjectFormat
	mem    Memory
	ptrs   Pointers
	assoc  Associations

	mu       sync.Mutex
	nextSend int
}

// New creates the com object table of a layout.
func New(l layout.Layout, mem Memory, ptrs Pointers, assoc Associations) (*Table, error) {
	switch l.ComObjects {
	case layout.ComObjectsBCU1, layout.ComObjectsBCU2, layout.ComObjectsSystemB:
	default:
		return nil, fmt.Errorf("comobj: unknown format %d for %s", l.ComObjects, l.Variant)
	}
	return &Table{format: l.ComObjects, mem: mem, ptrs: ptrs, assoc: assoc}, nil
}

// Location returns the address of the table.
func (t *Table) Location() (memory.Address, error) {
	if t.format == layout.ComObjectsBCU1 {
		ptr, err := t.ptrs.CommsTabPtr()
		if err != nil {
			return memory.Address{}, err
		}
		if ptr == 0 {
			return memory.Address{}, ErrNoTable
		}
		return memory.EepromOffset(uint32(ptr)), nil
	}
	ptr, err := t.ptrs.CommsTabAddr()
	if err != nil {
		return memory.Address{}, err
	}
	if ptr == 0 {
		return memory.Address{}, ErrNoTable
	}
	return t.mem.Resolve(uint32(ptr))
}

// Count returns the number of objects. It is 0 when no table is loaded.
func (t *Table) Count() (int, error) {
	loc, err := t.Location()
	if errors.Is(err, ErrNoTable) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	b, err := t.mem.Read(loc, 1)
	if err != nil {
		return 0, err
	}
	return int(b[0]), nil
}

func (t *Table) header() int {
	if t.format == layout.ComObjectsBCU1 {
		return 2
	}
	return 3
}

func (t *Table) entrySize() int {
	switch t.format {
	case layout.ComObjectsBCU1:
		return 3
	case layout.ComObjectsSystemB:
		return 2
	default:
		return 4
	}
}

func (t *Table) checkObject(obj int) (memory.Address, error) {
	loc, err := t.Location()
	if err != nil {
		return memory.Address{}, err
	}
	b, err := t.mem.Read(loc, 1)
	if err != nil {
		return memory.Address{}, err
	}
	if obj < 0 || obj >= int(b[0]) {
		return memory.Address{}, fmt.Errorf("%w: %d of %d", ErrNoObject, obj, b[0])
	}
	return loc, nil
}

// Descriptor returns the descriptor of obj.
func (t *Table) Descriptor(obj int) (Descriptor, error) {
	loc, err := t.checkObject(obj)
	if err != nil {
		return Descriptor{}, err
	}
	sz := t.entrySize()
	b, err := t.mem.Read(loc.Add(t.header()+obj*sz), sz)
	if err != nil {
		return Descriptor{}, err
	}
	switch t.format {
	case layout.ComObjectsBCU1:
		return Descriptor{DataPtr: uint16(b[0]), Config: b[1], Type: Type(b[2])}, nil
	case layout.ComObjectsSystemB:
		return Descriptor{Config: b[0], Type: Type(b[1])}, nil
	default:
		return Descriptor{DataPtr: uint16(b[0])<<8 | uint16(b[1]), Config: b[2], Type: Type(b[3])}, nil
	}
}

// Size returns the value size of obj in bytes.
func (t *Table) Size(obj int) (int, error) {
	d, err := t.Descriptor(obj)
	if err != nil {
		return 0, err
	}
	return t.sizeOf(d.Type), nil
}

func (t *Table) sizeOf(typ Type) int {
	return sizeOf(typ, t.format == layout.ComObjectsSystemB)
}

// TelegramSize returns the number of payload bytes obj uses on the bus.
// Types up to 6 bits travel inside the APCI byte and report 0.
func (t *Table) TelegramSize(obj int) (int, error) {
	d, err := t.Descriptor(obj)
	if err != nil {
		return 0, err
	}
	if d.Type < Bit7 {
		return 0, nil
	}
	return t.sizeOf(d.Type), nil
}

// ValueAddress returns where the value of obj is stored.
func (t *Table) ValueAddress(obj int) (memory.Address, error) {
	d, err := t.Descriptor(obj)
	if err != nil {
		return memory.Address{}, err
	}
	switch t.format {
	case layout.ComObjectsBCU1:
		if d.Config&ConfValueInEeprom != 0 {
			return memory.EepromOffset(uint32(d.DataPtr)), nil
		}
		return memory.RamOffset(uint32(d.DataPtr)), nil
	case layout.ComObjectsSystemB:
		off := uint32(2)
		for i := 0; i < obj; i++ {
			prev, err := t.Descriptor(i)
			if err != nil {
				return memory.Address{}, err
			}
			off += uint32(t.sizeOf(prev.Type))
		}
		return memory.RamOffset(off), nil
	default:
		return t.mem.Resolve(uint32(d.DataPtr))
	}
}

// Value returns the value of obj in bus byte order.
func (t *Table) Value(obj int) ([]byte, error) {
	a, err := t.ValueAddress(obj)
	if err != nil {
		return nil, err
	}
	n, err := t.Size(obj)
	if err != nil {
		return nil, err
	}
	b, err := t.mem.Read(a, n)
	if err != nil {
		return nil, err
	}
	reverse(b)
	return b, nil
}

// Read returns the value of obj as an unsigned number.
func (t *Table) Read(obj int) (uint32, error) {
	b, err := t.Value(obj)
	if err != nil {
		return 0, err
	}
	var v uint32
	for _, x := range b {
		v = v<<8 | uint32(x)
	}
	return v, nil
}

// SetValue stores a value given in bus byte order without touching the
// flags.
func (t *Table) SetValue(obj int, value []byte) error {
	n, err := t.Size(obj)
	if err != nil {
		return err
	}
	if len(value) != n {
		return fmt.Errorf("%w: object %d takes %d bytes, got %d", ErrValueSize, obj, n, len(value))
	}
	a, err := t.ValueAddress(obj)
	if err != nil {
		return err
	}
	b := append([]byte(nil), value...)
	reverse(b)
	return t.mem.Write(a, b)
}

// setNumber stores the low bytes of v.
func (t *Table) setNumber(obj int, v uint32) error {
	n, err := t.Size(obj)
	if err != nil {
		return err
	}
	b := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return t.SetValue(obj, b)
}

// Write sets the value of obj and requests its transmission.
func (t *Table) Write(obj int, v uint32) error {
	if err := t.setNumber(obj, v); err != nil {
		return err
	}
	return t.SetFlags(obj, FlagTransReq)
}

// WriteBytes sets the value of obj in bus byte order and requests its
// transmission.
func (t *Table) WriteBytes(obj int, value []byte) error {
	if err := t.SetValue(obj, value); err != nil {
		return err
	}
	return t.AddFlags(obj, FlagTransReq)
}

// Update sets the value of obj and marks it updated without sending it.
func (t *Table) Update(obj int, v uint32) error {
	if err := t.setNumber(obj, v); err != nil {
		return err
	}
	return t.SetFlags(obj, FlagUpdate)
}

// RequestRead asks the bus for the value of obj.
func (t *Table) RequestRead(obj int) error {
	return t.SetFlags(obj, FlagTransReq|FlagDataReq)
}

func (t *Table) flagsLocation() (memory.Address, error) {
	loc, err := t.Location()
	if err != nil {
		return memory.Address{}, err
	}
	if t.format == layout.ComObjectsBCU1 {
		b, err := t.mem.Read(loc.Add(1), 1)
		if err != nil {
			return memory.Address{}, err
		}
		return memory.RamOffset(uint32(b[0])), nil
	}
	b, err := t.mem.Read(loc.Add(1), 2)
	if err != nil {
		return memory.Address{}, err
	}
	return t.mem.Resolve(uint32(b[0])<<8 | uint32(b[1]))
}

func (t *Table) flagByte(obj int) (memory.Address, byte, error) {
	if _, err := t.checkObject(obj); err != nil {
		return memory.Address{}, 0, err
	}
	fl, err := t.flagsLocation()
	if err != nil {
		return memory.Address{}, 0, err
	}
	a := fl.Add(obj >> 1)
	b, err := t.mem.Read(a, 1)
	if err != nil {
		return memory.Address{}, 0, err
	}
	return a, b[0], nil
}

// Flags returns the RAM flags of obj.
func (t *Table) Flags(obj int) (byte, error) {
	_, b, err := t.flagByte(obj)
	if err != nil {
		return 0, err
	}
	if obj&1 != 0 {
		b >>= 4
	}
	return b & 0x0f, nil
}

// SetFlags replaces the RAM flags of obj.
func (t *Table) SetFlags(obj int, flags byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, b, err := t.flagByte(obj)
	if err != nil {
		return err
	}
	if obj&1 != 0 {
		b = b&0x0f | flags<<4
	} else {
		b = b&0xf0 | flags&0x0f
	}
	return t.mem.Write(a, []byte{b})
}

// AddFlags sets RAM flags of obj, keeping the others.
func (t *Table) AddFlags(obj int, flags byte) error {
	return t.changeFlags(obj, flags, 0)
}

// ClearFlags clears RAM flags of obj.
func (t *Table) ClearFlags(obj int, flags byte) error {
	return t.changeFlags(obj, 0, flags)
}

func (t *Table) changeFlags(obj int, set, clear byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, b, err := t.flagByte(obj)
	if err != nil {
		return err
	}
	shift := uint(0)
	if obj&1 != 0 {
		shift = 4
	}
	b = b&^(clear<<shift) | set<<shift
	return t.mem.Write(a, []byte{b})
}

// NextUpdated returns the first object with the update flag set and clears
// the flag. ok is false when no object was updated.
func (t *Table) NextUpdated() (obj int, ok bool, err error) {
	n, err := t.Count()
	if err != nil || n == 0 {
		return 0, false, err
	}
	for i := 0; i < n; i++ {
		f, err := t.Flags(i)
		if err != nil {
			return 0, false, err
		}
		if f&FlagUpdate != 0 {
			if err := t.ClearFlags(i, FlagUpdate); err != nil {
				return 0, false, err
			}
			return i, true, nil
		}
	}
	return 0, false, nil
}

// SendNext sends the next object with a pending transmit request,
// round robin. It reports whether a telegram was sent.
func (t *Table) SendNext(bus Sender) (bool, error) {
	n, err := t.Count()
	if err != nil || n == 0 {
		return false, err
	}
	t.mu.Lock()
	start := t.nextSend % n
	t.mu.Unlock()

	for obj := start; obj < n; obj++ {
		d, err := t.Descriptor(obj)
		if err != nil {
			return false, err
		}
		if !d.Has(ConfComm | ConfTrans) {
			continue
		}
		group, err := t.assoc.GroupAddressOf(obj)
		if err != nil || group == 0 {
			continue
		}
		f, err := t.Flags(obj)
		if err != nil {
			return false, err
		}
		if f&FlagTransMask != FlagTransReq {
			continue
		}

		if f&FlagDataReq != 0 {
			err = bus.Send(telegram.NewGroupRead(0, telegram.Address(group)))
		} else {
			err = t.sendWrite(bus, obj, group, telegram.GroupValueWrite)
		}
		status := FlagOK
		if err != nil {
			status = FlagError
		}
		if ferr := t.SetFlags(obj, status|f&FlagUpdate); ferr != nil {
			return false, ferr
		}
		t.mu.Lock()
		t.nextSend = obj + 1
		t.mu.Unlock()
		return true, err
	}
	t.mu.Lock()
	t.nextSend = 0
	t.mu.Unlock()
	return false, nil
}

// sendWrite sends the value of obj as a write or response and updates the
// other local objects of the group.
func (t *Table) sendWrite(bus Sender, obj int, group uint16, service telegram.APCI) error {
	tel, err := t.groupTelegram(obj, group, service)
	if err != nil {
		return err
	}
	if err := t.process(tel, obj, bus); err != nil {
		return err
	}
	return bus.Send(tel)
}

func (t *Table) groupTelegram(obj int, group uint16, service telegram.APCI) (telegram.Telegram, error) {
	value, err := t.Value(obj)
	if err != nil {
		return telegram.Telegram{}, err
	}
	d, err := t.Descriptor(obj)
	if err != nil {
		return telegram.Telegram{}, err
	}
	if d.Type < Bit7 {
		value = []byte{value[len(value)-1] & 0x3f}
	}
	tel := telegram.NewGroupWrite(0, telegram.Address(group), value)
	tel.APCI = service
	return tel, nil
}

// ProcessGroupTelegram applies a received group telegram to every object
// associated with its destination. Writes and responses update objects
// with write and communication enabled; reads are answered by objects
// with read and communication enabled.
func (t *Table) ProcessGroupTelegram(tel telegram.Telegram, bus Sender) error {
	return t.process(tel, -1, bus)
}

// process skips the object that triggered the telegram.
func (t *Table) process(tel telegram.Telegram, trigger int, bus Sender) error {
	objs, err := t.assoc.ObjectsFor(uint16(tel.Dest))
	if err != nil {
		return err
	}
	service := tel.APCI & telegram.GroupMask
	for _, obj := range objs {
		if obj == trigger {
			continue
		}
		d, err := t.Descriptor(obj)
		if err != nil {
			return err
		}
		switch service {
		case telegram.GroupValueWrite, telegram.GroupValueResponse:
			if d.Has(ConfWriteComm) {
				if err := t.receive(obj, d, tel.Payload); err != nil {
					return err
				}
			}
		case telegram.GroupValueRead:
			if d.Has(ConfReadComm) {
				if err := t.sendWrite(bus, obj, uint16(tel.Dest), telegram.GroupValueResponse); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (t *Table) receive(obj int, d Descriptor, payload []byte) error {
	n := t.sizeOf(d.Type)
	var value []byte
	if d.Type < Bit7 {
		if len(payload) < 1 {
			return fmt.Errorf("%w: object %d got an empty payload", ErrValueSize, obj)
		}
		value = []byte{payload[0] & 0x3f}
	} else {
		if len(payload) < n {
			return fmt.Errorf("%w: object %d takes %d bytes, got %d", ErrValueSize, obj, n, len(payload))
		}
		value = payload[:n]
	}
	if err := t.SetValue(obj, value); err != nil {
		return err
	}
	return t.AddFlags(obj, FlagUpdate)
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
