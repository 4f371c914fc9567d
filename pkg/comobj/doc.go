// Package comobj implements the communication object table: the
// descriptors written by the programming tool, the object values in user
// memory and the RAM flags that link the application to the bus.
//
// Object numbers are 0-based. Values are stored least significant byte
// first and travel on the bus most significant byte first.
package comobj
