// Package sim implements the hal collaborators on the host.
//
// Flash models NOR flash: erase sets a page to 0xFF and programming can
// only clear bits. Faults can be injected per operation. Interrupts
// serializes goroutines that mask interrupts and reports whether they are
// masked, so a device can drop telegrams that arrive during a commit.
package sim
