// Package layout describes the memory footprint of each member of the BCU
// family.
//
// A Variant is a plain tag. Everything that differs between hardware
// generations (window positions, field offsets, table and com object
// formats, whether interface object properties exist) is data in the
// Layout returned by For. Code that needs variant specific behavior
// switches on the format fields, never on the variant itself.
package layout
