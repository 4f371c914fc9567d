package inspect

import (
	"strconv"
	"strings"

	"github.com/selfbus/bcu-go/pkg/properties"
)

// Name tables for resolving human-readable names to IDs.
var (
	objectNames = map[string]properties.ObjectType{
		"device":            properties.ObjectDevice,
		"addr_table":        properties.ObjectAddrTable,
		"assoc_table":       properties.ObjectAssocTable,
		"application":       properties.ObjectApplication,
		"interface_program": properties.ObjectInterfaceProgram,
		"knx_assoc_table":   properties.ObjectKnxAssocTable,
	}

	propertyIDs = []properties.ID{
		properties.PIDObjectType,
		properties.PIDLoadStateControl,
		properties.PIDRunStateControl,
		properties.PIDTableReference,
		properties.PIDServiceControl,
		properties.PIDFirmwareRevision,
		properties.PIDSerialNumber,
		properties.PIDManufacturerID,
		properties.PIDProgVersion,
		properties.PIDDeviceControl,
		properties.PIDOrderInfo,
		properties.PIDPeiType,
		properties.PIDPortConfiguration,
		properties.PIDTable,
		properties.PIDMcbTable,
		properties.PIDErrorCode,
		properties.PIDHardwareType,
		properties.PIDAbbCustom,
	}
)

// canonicalObjectNames is indexed by object type.
var canonicalObjectNames = []string{
	"device", "addr_table", "assoc_table", "application", "interface_program", "knx_assoc_table",
}

func init() {
	// Aliases used by configuration tools.
	objectNames["addresses"] = properties.ObjectAddrTable
	objectNames["associations"] = properties.ObjectAssocTable
	objectNames["app"] = properties.ObjectApplication
}

// ResolveObjectName resolves an interface object name to its type
// (case-insensitive). Both "addr_table" and "ADDR_TABLE" work.
func ResolveObjectName(name string) (properties.ObjectType, bool) {
	obj, ok := objectNames[strings.ToLower(name)]
	return obj, ok
}

// ResolvePropertyName resolves a property name to its ID
// (case-insensitive). A "pid_" prefix is ignored.
func ResolvePropertyName(name string) (properties.ID, bool) {
	lname := strings.TrimPrefix(strings.ToLower(name), "pid_")
	for _, id := range propertyIDs {
		if strings.ToLower(id.String()) == lname {
			return id, true
		}
	}
	return 0, false
}

// GetObjectName returns the name of an interface object, or its number if
// it has no name.
func GetObjectName(obj properties.ObjectType) string {
	if int(obj) >= 0 && int(obj) < len(canonicalObjectNames) {
		return canonicalObjectNames[obj]
	}
	return strconv.Itoa(int(obj))
}

// GetPropertyName returns the lowercase name of a property.
func GetPropertyName(id properties.ID) string {
	return strings.ToLower(id.String())
}
