// Package properties implements the interface object property table of
// BCU2 and later devices.
//
// Each interface object (device, address table, association table,
// application, interface program, object association table) is a list of
// property definitions. A definition either carries its value inline or
// points into user RAM or user EEPROM. Writing the load state control
// property drives the load state machine that ETS uses while downloading
// an application.
//
// Multi-byte values are stored big-endian, the same order they travel on
// the bus, so property reads and writes copy bytes without reordering.
package properties
