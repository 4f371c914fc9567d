package layout

import "fmt"

// None marks a field a variant does not have.
const None = -1

// Window is a physical address window.
type Window struct {
	Start uint32
	Size  uint32

	// ShadowSize is the number of shadow pages. For the EEPROM it is
	// filled in from the flash page size when the region is built.
	ShadowSize uint32
}

// End returns the first address past the window.
func (w Window) End() uint32 { return w.Start + w.Size }

// Contains reports whether addr lies inside the window.
func (w Window) Contains(addr uint32) bool {
	return addr >= w.Start && addr < w.End()
}

// Overlaps reports whether the windows share an address.
func (w Window) Overlaps(o Window) bool {
	return w.Size > 0 && o.Size > 0 && w.Start < o.End() && o.Start < w.End()
}

func (w Window) String() string {
	return fmt.Sprintf("0x%04x+0x%x", w.Start, w.Size)
}

// TableFormat selects the binary format of the address and association
// tables.
type TableFormat uint8

const (
	// TablesLegacy is the BCU1 format: a one byte count at a fixed EEPROM
	// location followed by the physical address and the group addresses,
	// and an association table of byte pairs behind a one byte pointer.
	TablesLegacy TableFormat = iota + 1
	// TablesWord is the BCU2 and later format: u16 counts and u16 pairs
	// behind u16 pointers.
	TablesWord
)

// ComObjectFormat selects the binary format of the communication object
// table.
type ComObjectFormat uint8

const (
	// ComObjectsBCU1 uses three byte descriptors with a one byte data pointer.
	ComObjectsBCU1 ComObjectFormat = iota + 1
	// ComObjectsBCU2 uses four byte descriptors with a u16 data pointer.
	ComObjectsBCU2
	// ComObjectsSystemB uses two byte descriptors. Values are packed in RAM.
	ComObjectsSystemB
)

// EepromMap holds offsets of the named fields, relative to the EEPROM
// start. A field a variant lacks is None.
type EepromMap struct {
	OptionReg     int
	ManuData      int // u16
	Manufacturer  int // u16
	DeviceType    int // u16
	Version       int
	CheckLimit    int
	AppPeiType    int
	SyncRate      int
	PortCDDR      int
	PortADDR      int
	RunError      int
	RouteCnt      int
	MaxRetransmit int
	ConfDesc      int
	AssocTabPtr   int // u8, BCU1
	CommsTabPtr   int // u8, BCU1
	UsrInitPtr    int
	UsrProgPtr    int
	UsrSavePtr    int
	AddrTabSize   int
	AddrTab       int
	Checksum      int

	AppType        int
	LoadState      int // one byte per interface object type
	AddrTabAddr    int // u16
	AssocTabAddr   int // u16
	CommsTabAddr   int // u16
	CommsSeg0Addr  int // u16
	EibObjAddr     int // u16
	EibObjCount    int
	ServiceControl int // u16
	Serial         int
	SerialSize     int
	Order          int
	OrderSize      int
	AddrTabMcb     int
	AssocTabMcb    int
	CommsTabMcb    int
	EibObjMcb      int
	CommsSeg0Mcb   int
	EibObjVer      int
	CommsSeg0Ver   int
}

// RamMap holds offsets of the named fields, relative to the RAM start.
type RamMap struct {
	Status        int
	RunState      int
	DeviceControl int
	PeiType       int
	User2         int
}

// Layout is the complete memory footprint of one variant.
type Layout struct {
	Variant     Variant
	MaskVersion uint16

	RAM     Window
	HighRAM Window
	EEPROM  Window

	// EepromFlashSize is the flash reserved for the EEPROM image.
	EepromFlashSize uint32

	Eeprom EepromMap
	Ram    RamMap

	Tables     TableFormat
	ComObjects ComObjectFormat

	// Properties is set for variants with interface object properties.
	Properties bool
}

// For returns the layout of v.
func For(v Variant) (Layout, error) {
	l, ok := table[v]
	if !ok {
		return Layout{}, fmt.Errorf("%w: %d", ErrUnknownVariant, uint8(v))
	}
	return l, nil
}

// MustFor is like For but panics on an unknown variant.
func MustFor(v Variant) Layout {
	l, err := For(v)
	if err != nil {
		panic(err)
	}
	return l
}

var table = map[Variant]Layout{
	BCU1: {
		Variant:         BCU1,
		MaskVersion:     0x0012,
		RAM:             Window{Start: 0x000, Size: 0x100, ShadowSize: 3},
		EEPROM:          Window{Start: 0x100, Size: 256},
		EepromFlashSize: 256,
		Eeprom:          bcu1Eeprom,
		Ram:             ramMap,
		Tables:          TablesLegacy,
		ComObjects:      ComObjectsBCU1,
	},
	BCU2: {
		Variant:         BCU2,
		MaskVersion:     0x0020,
		RAM:             Window{Start: 0x000, Size: 0x100, ShadowSize: 3},
		HighRAM:         highRAM,
		EEPROM:          Window{Start: 0x100, Size: 1024},
		EepromFlashSize: 1024,
		Eeprom:          bcu2Eeprom,
		Ram:             ramMap,
		Tables:          TablesWord,
		ComObjects:      ComObjectsBCU2,
		Properties:      true,
	},
	MASK0701: {
		Variant:         MASK0701,
		MaskVersion:     0x0701,
		RAM:             Window{Start: 0x000, Size: 0x304, ShadowSize: 3},
		HighRAM:         highRAM,
		EEPROM:          Window{Start: 0x3f00, Size: 3072},
		EepromFlashSize: 4096,
		Eeprom:          bcu2Eeprom,
		Ram:             ramMap,
		Tables:          TablesWord,
		ComObjects:      ComObjectsBCU2,
		Properties:      true,
	},
	MASK0705: {
		Variant:         MASK0705,
		MaskVersion:     0x0705,
		RAM:             Window{Start: 0x000, Size: 0x304, ShadowSize: 3},
		HighRAM:         highRAM,
		EEPROM:          Window{Start: 0x3f00, Size: 3072},
		EepromFlashSize: 4096,
		Eeprom:          bcu2Eeprom,
		Ram:             ramMap,
		Tables:          TablesWord,
		ComObjects:      ComObjectsBCU2,
		Properties:      true,
	},
	SYSTEMB: {
		Variant:         SYSTEMB,
		MaskVersion:     0x07B0,
		RAM:             Window{Start: 0x5FC, Size: 0x304, ShadowSize: 3},
		HighRAM:         highRAM,
		EEPROM:          Window{Start: 0x3300, Size: 3072},
		EepromFlashSize: 4096,
		Eeprom:          systemBEeprom,
		Ram:             ramMap,
		Tables:          TablesWord,
		ComObjects:      ComObjectsSystemB,
		Properties:      true,
	},
}

var highRAM = Window{Start: 0x0900, Size: 0xBC}

var ramMap = RamMap{
	Status:        0x60,
	RunState:      0x61,
	DeviceControl: 0x62,
	PeiType:       0x63,
	User2:         0xC8,
}

var bcu1Eeprom = EepromMap{
	OptionReg:     0x00,
	ManuData:      0x01,
	Manufacturer:  0x03,
	DeviceType:    0x05,
	Version:       0x07,
	CheckLimit:    0x08,
	AppPeiType:    0x09,
	SyncRate:      0x0a,
	PortCDDR:      0x0b,
	PortADDR:      0x0c,
	RunError:      0x0d,
	RouteCnt:      0x0e,
	MaxRetransmit: 0x0f,
	ConfDesc:      0x10,
	AssocTabPtr:   0x11,
	CommsTabPtr:   0x12,
	UsrInitPtr:    0x13,
	UsrProgPtr:    0x14,
	UsrSavePtr:    0x15,
	AddrTabSize:   0x16,
	AddrTab:       0x17,
	Checksum:      0xff,

	AppType:        None,
	LoadState:      None,
	AddrTabAddr:    None,
	AssocTabAddr:   None,
	CommsTabAddr:   None,
	CommsSeg0Addr:  None,
	EibObjAddr:     None,
	EibObjCount:    None,
	ServiceControl: None,
	Serial:         None,
	Order:          None,
	AddrTabMcb:     None,
	AssocTabMcb:    None,
	CommsTabMcb:    None,
	EibObjMcb:      None,
	CommsSeg0Mcb:   None,
	EibObjVer:      None,
	CommsSeg0Ver:   None,
}

var bcu2Eeprom = func() EepromMap {
	m := bcu1Eeprom
	m.UsrSavePtr = None
	m.Checksum = None
	m.AppType = 21
	m.LoadState = 880
	m.AddrTabAddr = 888
	m.AssocTabAddr = 890
	m.CommsTabAddr = 892
	m.CommsSeg0Addr = 894
	m.EibObjAddr = 898
	m.EibObjCount = 900
	m.ServiceControl = 902
	m.Serial = 906
	m.SerialSize = 6
	m.Order = 912
	m.OrderSize = 10
	m.AddrTabMcb = 932
	m.AssocTabMcb = 940
	m.CommsTabMcb = 948
	m.EibObjMcb = 956
	m.EibObjVer = 970
	m.CommsSeg0Ver = 975
	return m
}()

var systemBEeprom = func() EepromMap {
	m := bcu2Eeprom
	m.AddrTabAddr = 33
	m.AssocTabAddr = 35
	m.AddrTabMcb = 77
	m.AssocTabMcb = 85
	m.CommsTabMcb = 93
	m.EibObjMcb = 101
	m.CommsSeg0Mcb = 109
	return m
}()

// Validate checks that the windows are disjoint and every EEPROM field
// lies inside the EEPROM window.
func (l Layout) Validate() error {
	if l.RAM.Overlaps(l.EEPROM) || l.HighRAM.Overlaps(l.EEPROM) || l.HighRAM.Overlaps(l.RAM) {
		return fmt.Errorf("%s: memory windows overlap (ram %s, high ram %s, eeprom %s)", l.Variant, l.RAM, l.HighRAM, l.EEPROM)
	}
	if l.EEPROM.Size > l.EepromFlashSize {
		return fmt.Errorf("%s: eeprom window %s exceeds its flash reservation 0x%x", l.Variant, l.EEPROM, l.EepromFlashSize)
	}
	fields := []int{
		l.Eeprom.Manufacturer + 1, l.Eeprom.DeviceType + 1, l.Eeprom.Checksum,
		l.Eeprom.AddrTabAddr + 1, l.Eeprom.AssocTabAddr + 1, l.Eeprom.CommsTabAddr + 1,
		l.Eeprom.Serial + l.Eeprom.SerialSize - 1, l.Eeprom.Order + l.Eeprom.OrderSize - 1,
		l.Eeprom.CommsSeg0Ver,
	}
	for _, f := range fields {
		if f >= int(l.EEPROM.Size) {
			return fmt.Errorf("%s: eeprom field at 0x%x outside window %s", l.Variant, f, l.EEPROM)
		}
	}
	if l.Ram.User2 >= int(l.RAM.Size) {
		return fmt.Errorf("%s: ram field at 0x%x outside window %s", l.Variant, l.Ram.User2, l.RAM)
	}
	return nil
}
