package properties

import (
	"fmt"

	"github.com/selfbus/bcu-go/pkg/layout"
)

// Lengths of a load state machine write. The property service variant
// carries the record at offset 2, the deprecated memory service variant
// at offset 3.
const (
	loadIOLength  = 10
	loadMemLength = 11
	loadIOOffset  = 2
	loadMemOffset = 3
)

// LoadControl runs the load state machine of obj with the data of a load
// state control write and stores the resulting state. Protocol errors
// yield LoadError; the returned error is reserved for memory faults.
func (t *Table) LoadControl(obj ObjectType, data []byte) (LoadState, error) {
	if int(obj) < 0 || int(obj) >= len(t.objects) {
		return LoadError, fmt.Errorf("%w: object %d", ErrNotFound, obj)
	}
	state, err := t.load(obj, data)
	if err != nil {
		return LoadError, err
	}
	if err := t.mem.Write(t.eeprom(t.layout.Eeprom.LoadState+int(obj)), []byte{byte(state)}); err != nil {
		return LoadError, err
	}
	return state, nil
}

func (t *Table) load(obj ObjectType, data []byte) (LoadState, error) {
	if len(data) < loadIOLength || len(data) > loadMemLength {
		return LoadError, nil
	}
	systemB := t.layout.Variant == layout.SYSTEMB

	switch LoadControl(data[0] & 0x07) {
	case LoadStart:
		return Loading, nil
	case LoadCompleted:
		if systemB {
			if err := t.sealTable(obj); err != nil {
				return LoadError, err
			}
		}
		return Loaded, nil
	case LoadUnload:
		if systemB {
			if err := t.clearTableReference(obj); err != nil {
				return LoadError, err
			}
		}
		return Unloaded, nil
	case LoadAdditional:
	default:
		return LoadError, nil
	}

	off := loadIOOffset
	if len(data) == loadMemLength {
		off = loadMemOffset
	}
	p := data[off:]

	switch SegmentType(data[1]) {
	case SegmentAbsData:
		return t.allocAbsData(p)
	case SegmentAbsTask:
		return t.allocAbsTask(obj, p)
	case SegmentAbsStack, SegmentTaskPtr, SegmentRelative:
		return Loading, nil
	case SegmentTaskCtrl1:
		if systemB {
			return LoadError, nil
		}
		return t.taskCtrl1(p)
	case SegmentTaskCtrl2:
		if systemB {
			return LoadError, nil
		}
		return t.taskCtrl2(p)
	case SegmentDataRelative:
		if systemB {
			return t.dataRelative(obj, p)
		}
		return Loading, nil
	}
	return LoadError, nil
}

// allocAbsData checks that an absolute data segment lies in user memory.
func (t *Table) allocAbsData(p []byte) (LoadState, error) {
	start := uint32(word(p[0:]))
	length := uint32(word(p[2:]))
	end := start
	if length > 0 {
		end = start + length - 1
	}
	if t.layout.Variant == layout.SYSTEMB {
		// 1 zero page RAM, 2 RAM, 3 EEPROM
		if mt := p[5] & 0x07; mt < 1 || mt > 3 {
			return LoadError, nil
		}
	}
	if _, err := t.mem.Resolve(start); err != nil {
		return LoadError, nil
	}
	if _, err := t.mem.Resolve(end); err != nil {
		return LoadError, nil
	}
	return Loading, nil
}

// allocAbsTask records the task segment start address as the table
// pointer of obj. For the application it also records the application
// identity: PEI type, manufacturer, device type and version.
func (t *Table) allocAbsTask(obj ObjectType, p []byte) (LoadState, error) {
	if len(p) < 8 {
		return LoadError, nil
	}
	e := t.layout.Eeprom
	addr := p[0:2]
	var err error
	switch obj {
	case ObjectAddrTable:
		err = t.mem.Write(t.eeprom(e.AddrTabAddr), addr)
	case ObjectAssocTable:
		err = t.mem.Write(t.eeprom(e.AssocTabAddr), addr)
	case ObjectApplication:
		if t.layout.Variant == layout.MASK0701 || t.layout.Variant == layout.MASK0705 {
			if err = t.mem.Write(t.eeprom(e.CommsTabAddr), addr); err != nil {
				break
			}
		}
		if err = t.mem.Write(t.eeprom(e.AppPeiType), p[2:3]); err != nil {
			break
		}
		// manufacturer, device type and version are contiguous
		err = t.mem.Write(t.eeprom(e.Manufacturer), p[3:8])
	default:
		return LoadError, nil
	}
	if err != nil {
		return LoadError, err
	}
	return Loading, nil
}

func (t *Table) taskCtrl1(p []byte) (LoadState, error) {
	e := t.layout.Eeprom
	if err := t.mem.Write(t.eeprom(e.EibObjAddr), p[0:2]); err != nil {
		return LoadError, err
	}
	if err := t.mem.Write(t.eeprom(e.EibObjCount), p[2:3]); err != nil {
		return LoadError, err
	}
	return Loading, nil
}

func (t *Table) taskCtrl2(p []byte) (LoadState, error) {
	e := t.layout.Eeprom
	if err := t.mem.Write(t.eeprom(e.CommsTabAddr), p[2:4]); err != nil {
		return LoadError, err
	}
	if err := t.mem.Write(t.eeprom(e.CommsSeg0Addr), p[4:6]); err != nil {
		return LoadError, err
	}
	return Loading, nil
}

// dataRelative stores the requested table size in the memory control
// block of obj.
func (t *Table) dataRelative(obj ObjectType, p []byte) (LoadState, error) {
	mcb, err := t.Find(int(obj), PIDMcbTable)
	if err != nil {
		return LoadError, nil
	}
	a, err := mcb.Address()
	if err != nil {
		return LoadError, err
	}
	if err := t.mem.Write(a, p[0:4]); err != nil {
		return LoadError, err
	}
	return Loading, nil
}

// sealTable stores the CRC of a completely loaded table in bytes 6 and 7
// of its memory control block. The table length is in bytes 2 and 3.
func (t *Table) sealTable(obj ObjectType) error {
	ref, err := t.Find(int(obj), PIDTableReference)
	if err != nil {
		return nil
	}
	mcbDef, err := t.Find(int(obj), PIDMcbTable)
	if err != nil {
		return nil
	}
	refAddr, err := ref.Address()
	if err != nil {
		return err
	}
	b, err := t.mem.Read(refAddr, 2)
	if err != nil {
		return err
	}
	if word(b) == 0 {
		return nil
	}
	start, err := t.mem.Resolve(uint32(word(b)))
	if err != nil {
		return err
	}
	mcbAddr, err := mcbDef.Address()
	if err != nil {
		return err
	}
	mcb, err := t.mem.Read(mcbAddr, 8)
	if err != nil {
		return err
	}
	data, err := t.mem.Read(start, int(word(mcb[2:])))
	if err != nil {
		return err
	}
	crc := CRC16(data)
	return t.mem.Write(mcbAddr.Add(6), []byte{byte(crc >> 8), byte(crc)})
}

func (t *Table) clearTableReference(obj ObjectType) error {
	ref, err := t.Find(int(obj), PIDTableReference)
	if err != nil {
		return nil
	}
	a, err := ref.Address()
	if err != nil {
		return err
	}
	return t.mem.Write(a, []byte{0, 0})
}

func word(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}
