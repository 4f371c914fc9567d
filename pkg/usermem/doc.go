// Package usermem provides the user RAM and user EEPROM of a BCU.
//
// Both are memory.Region windows fixed by the variant's layout. The RAM
// is volatile and cleared at every boot. The EEPROM is backed by flash
// through a page shadow and must be committed to survive a reset.
// Named fields are accessed through the variant's field map; a field the
// variant lacks reports ErrNoField.
package usermem
