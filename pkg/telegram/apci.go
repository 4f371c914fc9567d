package telegram

import "fmt"

// APCI is the application-layer service code of a telegram.
type APCI uint16

// GroupMask selects the service bits of a group telegram; the remaining
// six bits may carry a short value.
const GroupMask APCI = 0x3c0

// Application services understood by the BCU.
const (
	GroupValueRead              APCI = 0x000
	GroupValueResponse          APCI = 0x040
	GroupValueWrite             APCI = 0x080
	IndividualAddressWrite      APCI = 0x0c0
	IndividualAddressRead       APCI = 0x100
	IndividualAddressResponse   APCI = 0x140
	MemoryRead                  APCI = 0x200
	MemoryResponse              APCI = 0x240
	MemoryWrite                 APCI = 0x280
	DeviceDescriptorRead        APCI = 0x300
	DeviceDescriptorResponse    APCI = 0x340
	Restart                     APCI = 0x380
	PropertyValueRead           APCI = 0x3d5
	PropertyValueResponse       APCI = 0x3d6
	PropertyValueWrite          APCI = 0x3d7
	PropertyDescriptionRead     APCI = 0x3d8
	PropertyDescriptionResponse APCI = 0x3d9
)

// IsGroup reports whether the service is one of the group value services.
func (a APCI) IsGroup() bool {
	return a < IndividualAddressWrite
}

// String returns the service name.
func (a APCI) String() string {
	switch a {
	case GroupValueRead:
		return "GroupValueRead"
	case GroupValueResponse:
		return "GroupValueResponse"
	case GroupValueWrite:
		return "GroupValueWrite"
	case IndividualAddressWrite:
		return "IndividualAddressWrite"
	case IndividualAddressRead:
		return "IndividualAddressRead"
	case IndividualAddressResponse:
		return "IndividualAddressResponse"
	case MemoryRead:
		return "MemoryRead"
	case MemoryResponse:
		return "MemoryResponse"
	case MemoryWrite:
		return "MemoryWrite"
	case DeviceDescriptorRead:
		return "DeviceDescriptorRead"
	case DeviceDescriptorResponse:
		return "DeviceDescriptorResponse"
	case Restart:
		return "Restart"
	case PropertyValueRead:
		return "PropertyValueRead"
	case PropertyValueResponse:
		return "PropertyValueResponse"
	case PropertyValueWrite:
		return "PropertyValueWrite"
	case PropertyDescriptionRead:
		return "PropertyDescriptionRead"
	case PropertyDescriptionResponse:
		return "PropertyDescriptionResponse"
	default:
		return fmt.Sprintf("APCI(0x%03x)", uint16(a))
	}
}

// ParseAPCI parses a service name as printed by String.
func ParseAPCI(s string) (APCI, bool) {
	for _, a := range []APCI{
		GroupValueRead, GroupValueResponse, GroupValueWrite,
		IndividualAddressWrite, IndividualAddressRead, IndividualAddressResponse,
		MemoryRead, MemoryResponse, MemoryWrite,
		DeviceDescriptorRead, DeviceDescriptorResponse, Restart,
		PropertyValueRead, PropertyValueResponse, PropertyValueWrite,
		PropertyDescriptionRead, PropertyDescriptionResponse,
	} {
		if a.String() == s {
			return a, true
		}
	}
	return 0, false
}

// Priority is the telegram priority.
type Priority uint8

const (
	PrioritySystem Priority = 0
	PriorityNormal Priority = 1
	PriorityUrgent Priority = 2
	PriorityLow    Priority = 3
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PrioritySystem:
		return "SYSTEM"
	case PriorityUrgent:
		return "URGENT"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}
