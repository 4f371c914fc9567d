package properties

import "github.com/selfbus/bcu-go/pkg/layout"

// FirmwareRevision is reported by the device object.
const FirmwareRevision = 0x13

// standardObjects builds the interface objects shared by BCU2, the BIM112
// masks and System B. Pointer targets come from the variant's memory map.
func standardObjects(l layout.Layout) [][]Def {
	e, r := l.Eeprom, l.Ram
	ls := func(o ObjectType) uint16 { return EEPROM(e.LoadState + int(o)) }

	device := []Def{
		{PIDObjectType, byte(PDTUnsignedInt), uint16(ObjectDevice)},
		{PIDDeviceControl, byte(PDTGeneric01) | ControlWritable | ControlPointer, RAM(r.DeviceControl)},
		{PIDLoadStateControl, byte(PDTControl) | ControlWritable | ControlPointer, ls(ObjectDevice)},
		{PIDServiceControl, byte(PDTUnsignedInt) | ControlWritable | ControlPointer, EEPROM(e.ServiceControl)},
		{PIDFirmwareRevision, byte(PDTUnsignedChar), FirmwareRevision},
		{PIDSerialNumber, byte(PDTGeneric06) | ControlPointer, EEPROM(e.Serial)},
		{PIDManufacturerID, byte(PDTGeneric02) | ControlPointer, EEPROM(e.Manufacturer)},
		{PIDOrderInfo, byte(PDTGeneric10) | ControlPointer, EEPROM(e.Order)},
		{PIDPeiType, byte(PDTUnsignedChar) | ControlPointer, RAM(r.PeiType)},
		{PIDPortConfiguration, byte(PDTUnsignedChar) | ControlPointer, EEPROM(e.PortADDR)},
		{PIDHardwareType, byte(PDTGeneric06) | ControlWritable | ControlPointer, EEPROM(e.Order)},
	}

	addrTab := []Def{
		{PIDObjectType, byte(PDTUnsignedInt), uint16(ObjectAddrTable)},
		{PIDLoadStateControl, byte(PDTControl) | ControlWritable | ControlPointer, ls(ObjectAddrTable)},
		{PIDTableReference, byte(PDTUnsignedInt) | ControlArrayPointer, EEPROM(e.AddrTabAddr)},
		{PIDMcbTable, byte(PDTGeneric08) | ControlWritable | ControlPointer, EEPROM(e.AddrTabMcb)},
	}

	assocTab := []Def{
		{PIDObjectType, byte(PDTUnsignedInt), uint16(ObjectAssocTable)},
		{PIDLoadStateControl, byte(PDTControl) | ControlWritable | ControlPointer, ls(ObjectAssocTable)},
		{PIDTableReference, byte(PDTUnsignedInt) | ControlArrayPointer, EEPROM(e.AssocTabAddr)},
		{PIDTable, byte(PDTGeneric04) | ControlWritable, 0x00ff},
		{PIDMcbTable, byte(PDTGeneric08) | ControlWritable | ControlPointer, EEPROM(e.AssocTabMcb)},
	}

	app := []Def{
		{PIDObjectType, byte(PDTUnsignedInt), uint16(ObjectApplication)},
		{PIDLoadStateControl, byte(PDTControl) | ControlWritable | ControlPointer, ls(ObjectApplication)},
		{PIDRunStateControl, byte(PDTUnsignedChar) | ControlPointer, RAM(r.RunState)},
		{PIDProgVersion, byte(PDTGeneric05) | ControlPointer, EEPROM(e.Manufacturer)},
		{PIDTableReference, byte(PDTUnsignedInt) | ControlArrayPointer, EEPROM(e.CommsTabAddr)},
		{PIDMcbTable, byte(PDTGeneric08) | ControlWritable | ControlPointer, EEPROM(e.CommsTabMcb)},
		{PIDAbbCustom, byte(PDTGeneric10) | ControlWritable | ControlPointer, RAM(r.User2)},
	}

	program := []Def{
		{PIDObjectType, byte(PDTUnsignedInt), uint16(ObjectInterfaceProgram)},
		{PIDLoadStateControl, byte(PDTControl) | ControlWritable | ControlPointer, ls(ObjectInterfaceProgram)},
		{PIDTableReference, byte(PDTUnsignedInt) | ControlArrayPointer, EEPROM(e.EibObjAddr)},
		{PIDProgVersion, byte(PDTGeneric05) | ControlWritable | ControlArrayPointer, EEPROM(e.EibObjVer)},
		{PIDMcbTable, byte(PDTGeneric08) | ControlWritable | ControlPointer, EEPROM(e.EibObjMcb)},
	}

	knxAssoc := []Def{
		{PIDObjectType, byte(PDTUnsignedInt), uint16(ObjectKnxAssocTable)},
		{PIDLoadStateControl, byte(PDTControl) | ControlWritable | ControlPointer, ls(ObjectKnxAssocTable)},
		{PIDTableReference, byte(PDTUnsignedInt) | ControlArrayPointer, EEPROM(e.CommsSeg0Addr)},
		{PIDProgVersion, byte(PDTGeneric05) | ControlWritable | ControlArrayPointer, EEPROM(e.CommsSeg0Ver)},
		{PIDErrorCode, byte(PDTGeneric01), 0},
	}
	if e.CommsSeg0Mcb != layout.None {
		knxAssoc = append(knxAssoc,
			Def{PIDMcbTable, byte(PDTGeneric08) | ControlWritable | ControlPointer, EEPROM(e.CommsSeg0Mcb)})
	}

	return [][]Def{device, addrTab, assocTab, app, program, knxAssoc}
}
