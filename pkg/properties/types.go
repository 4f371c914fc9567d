package properties

import (
	"fmt"

	"github.com/selfbus/bcu-go/pkg/memory"
)

// ID is a property identifier.
type ID uint8

// Property identifiers used by the BCU.
const (
	PIDObjectType        ID = 1
	PIDLoadStateControl  ID = 5
	PIDRunStateControl   ID = 6
	PIDTableReference    ID = 7
	PIDServiceControl    ID = 8
	PIDFirmwareRevision  ID = 9
	PIDSerialNumber      ID = 11
	PIDManufacturerID    ID = 12
	PIDProgVersion       ID = 13
	PIDDeviceControl     ID = 14
	PIDOrderInfo         ID = 15
	PIDPeiType           ID = 16
	PIDPortConfiguration ID = 17
	PIDTable             ID = 23
	PIDMcbTable          ID = 27
	PIDErrorCode         ID = 28
	PIDHardwareType      ID = 78
	PIDAbbCustom         ID = 0xcc
)

var idNames = map[ID]string{
	PIDObjectType:        "OBJECT_TYPE",
	PIDLoadStateControl:  "LOAD_STATE_CONTROL",
	PIDRunStateControl:   "RUN_STATE_CONTROL",
	PIDTableReference:    "TABLE_REFERENCE",
	PIDServiceControl:    "SERVICE_CONTROL",
	PIDFirmwareRevision:  "FIRMWARE_REVISION",
	PIDSerialNumber:      "SERIAL_NUMBER",
	PIDManufacturerID:    "MANUFACTURER_ID",
	PIDProgVersion:       "PROG_VERSION",
	PIDDeviceControl:     "DEVICE_CONTROL",
	PIDOrderInfo:         "ORDER_INFO",
	PIDPeiType:           "PEI_TYPE",
	PIDPortConfiguration: "PORT_CONFIGURATION",
	PIDTable:             "TABLE",
	PIDMcbTable:          "MCB_TABLE",
	PIDErrorCode:         "ERROR_CODE",
	PIDHardwareType:      "HARDWARE_TYPE",
	PIDAbbCustom:         "ABB_CUSTOM",
}

func (id ID) String() string {
	if s, ok := idNames[id]; ok {
		return s
	}
	return fmt.Sprintf("PID(%d)", uint8(id))
}

// DataType is the property data type (PDT).
type DataType uint8

// Property data types.
const (
	PDTControl          DataType = 0x00
	PDTChar             DataType = 0x01
	PDTUnsignedChar     DataType = 0x02
	PDTInt              DataType = 0x03
	PDTUnsignedInt      DataType = 0x04
	PDTEibFloat         DataType = 0x05
	PDTDate             DataType = 0x06
	PDTTime             DataType = 0x07
	PDTLong             DataType = 0x08
	PDTUnsignedLong     DataType = 0x09
	PDTFloat            DataType = 0x0a
	PDTDouble           DataType = 0x0b
	PDTCharBlock        DataType = 0x0c
	PDTPollGroupSetting DataType = 0x0d
	PDTShortCharBlock   DataType = 0x0e
	PDTDateTime         DataType = 0x0f
	PDTVariableLength   DataType = 0x10
	PDTGeneric01        DataType = 0x11
	PDTGeneric02        DataType = 0x12
	PDTGeneric04        DataType = 0x14
	PDTGeneric05        DataType = 0x15
	PDTGeneric06        DataType = 0x16
	PDTGeneric08        DataType = 0x18
	PDTGeneric10        DataType = 0x1a
)

// Sizes in bytes indexed by the type bits of the control byte.
var typeSizes = [32]byte{
	1, 1, 1, 2, 2, 2, 3, 3, 4, 4,
	4, 8, 10, 3, 5, 8, 0,
	1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15,
}

// Size returns the size of one element in bytes. Variable length types
// report 0.
func (t DataType) Size() int {
	return int(typeSizes[t&ControlTypeMask])
}

// Control byte bits of a definition.
const (
	ControlWritable     byte = 0x80
	ControlArray        byte = 0x40
	ControlPointer      byte = 0x20
	ControlArrayPointer byte = ControlArray | ControlPointer
)

// ControlTypeMask selects the data type bits of the control byte.
const ControlTypeMask = 0x1f

// Pointer encoding of Def.Value when ControlPointer is set.
const (
	PointerRAM        uint16 = 0x0000
	PointerEEPROM     uint16 = 0x4000
	PointerTypeMask   uint16 = 0x7000
	PointerOffsetMask uint16 = 0x0fff
)

// RAM returns a pointer value into user RAM.
func RAM(offset int) uint16 { return PointerRAM | uint16(offset)&PointerOffsetMask }

// EEPROM returns a pointer value into user EEPROM.
func EEPROM(offset int) uint16 { return PointerEEPROM | uint16(offset)&PointerOffsetMask }

// Def is one property definition.
type Def struct {
	ID      ID
	Control byte
	Value   uint16
}

// Type returns the data type.
func (d Def) Type() DataType { return DataType(d.Control & ControlTypeMask) }

// Size returns the element size in bytes.
func (d Def) Size() int { return d.Type().Size() }

// Writable reports whether the property may be written.
func (d Def) Writable() bool { return d.Control&ControlWritable != 0 }

// IsPointer reports whether Value points into user memory.
func (d Def) IsPointer() bool { return d.Control&ControlPointer != 0 }

// IsArrayPointer reports whether the property is an array behind a
// pointer; the first byte it points to is the element count.
func (d Def) IsArrayPointer() bool { return d.Control&ControlArrayPointer == ControlArrayPointer }

// Address returns the memory location of a pointer property.
func (d Def) Address() (memory.Address, error) {
	if !d.IsPointer() {
		return memory.Address{}, fmt.Errorf("%w: %s is not a pointer", ErrReadOnly, d.ID)
	}
	off := uint32(d.Value & PointerOffsetMask)
	switch d.Value & PointerTypeMask {
	case PointerRAM:
		return memory.RamOffset(off), nil
	case PointerEEPROM:
		return memory.EepromOffset(off), nil
	}
	return memory.Address{}, fmt.Errorf("properties: %s has invalid pointer 0x%04x", d.ID, d.Value)
}

// ObjectType is an interface object index.
type ObjectType int

// Interface objects.
const (
	ObjectDevice ObjectType = iota
	ObjectAddrTable
	ObjectAssocTable
	ObjectApplication
	ObjectInterfaceProgram
	ObjectKnxAssocTable
)

func (o ObjectType) String() string {
	switch o {
	case ObjectDevice:
		return "DEVICE"
	case ObjectAddrTable:
		return "ADDR_TABLE"
	case ObjectAssocTable:
		return "ASSOC_TABLE"
	case ObjectApplication:
		return "APPLICATION"
	case ObjectInterfaceProgram:
		return "INTERFACE_PROGRAM"
	case ObjectKnxAssocTable:
		return "KNX_OBJECT_ASSOCIATION_TABLE"
	default:
		return fmt.Sprintf("OBJECT(%d)", int(o))
	}
}

// LoadState is the load state of an interface object.
type LoadState byte

// Load states.
const (
	Unloaded  LoadState = 0
	Loaded    LoadState = 1
	Loading   LoadState = 2
	LoadError LoadState = 3
	Unloading LoadState = 4
)

func (s LoadState) String() string {
	switch s {
	case Unloaded:
		return "UNLOADED"
	case Loaded:
		return "LOADED"
	case Loading:
		return "LOADING"
	case LoadError:
		return "ERROR"
	case Unloading:
		return "UNLOADING"
	default:
		return fmt.Sprintf("LoadState(%d)", byte(s))
	}
}

// LoadControl is the event written to the load state control property.
type LoadControl byte

// Load control events.
const (
	LoadNoOperation LoadControl = 0
	LoadStart       LoadControl = 1
	LoadCompleted   LoadControl = 2
	LoadAdditional  LoadControl = 3
	LoadUnload      LoadControl = 4
)

// SegmentType selects the additional load control record.
type SegmentType byte

// Additional load control records.
const (
	SegmentAbsData      SegmentType = 0x00
	SegmentAbsStack     SegmentType = 0x01
	SegmentAbsTask      SegmentType = 0x02
	SegmentTaskPtr      SegmentType = 0x03
	SegmentTaskCtrl1    SegmentType = 0x04
	SegmentTaskCtrl2    SegmentType = 0x05
	SegmentRelative     SegmentType = 0x0a
	SegmentDataRelative SegmentType = 0x0b
)
