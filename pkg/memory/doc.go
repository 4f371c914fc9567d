// Package memory implements byte-addressable memory regions with
// shadow/commit semantics over page-organized flash.
//
// A Region keeps a RAM copy of its whole window. Writes land in that copy
// and mark the touched flash pages dirty, so reads always see the latest
// write (read-your-writes). Commit flushes dirty pages one at a time:
// the physical page is read, the region's bytes are overlaid, and the page
// is erased and programmed with interrupts masked. Bytes of the page that
// lie outside the region, or that were not written, keep their value.
//
// A Region without flash is volatile: it has the same addressing and
// bounds checks and Commit does nothing.
//
// Address is the tagged unified address used by on-device tables:
// a value is either a RAM offset or an EEPROM offset.
package memory
