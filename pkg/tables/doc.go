// Package tables resolves group addresses to communication objects through
// the address table and the association table.
//
// Both tables live in user memory at a location stored in the user
// EEPROM. The tables never cache that location: every call reads the
// pointer and resolves it through the Memory handle, so a download that
// moves a table is seen by the next telegram.
//
// Address table slots are 1-based. Slot 0 never matches a group address;
// on BCU1 it is the device's own physical address.
package tables
