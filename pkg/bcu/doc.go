// Package bcu composes the storage and addressing components of one bus
// coupling unit and runs its lifecycle.
//
// A Device is built once per boot for a layout.Variant. It owns the user
// RAM, the user EEPROM on flash, the address and association tables, the
// communication object table and, for BCU2 and later, the property table.
// All of them share one unified address space (usermem.Space).
//
// # Lifecycle
//
//	Uninitialized -> Initialized -> Running <-> Flashing
//	                                Running -> BusVoltageFail -> Reset
//	                                any     -> Halted (commit failure)
//
// Every transition that carries a Reason is announced to the Observer
// synchronously, before the transition completes. The observer may take
// its time; it cannot veto the transition.
//
// # Foreground loop
//
// Receive handles one decoded telegram. It may run on another goroutine
// (the "interrupt"), and drops the telegram while interrupts are masked
// for a flash commit. Loop runs the foreground work: sending pending group
// telegrams and flushing the EEPROM once it was modified and the bus has
// been idle for the flush delay.
package bcu
