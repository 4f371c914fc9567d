// Package persistence keeps the simulated flash of a BCU across process
// restarts.
//
// A flash image holds the complete physical flash, the variant and board
// it was written by, and the sessions that booted from it. Images are
// CBOR files.
package persistence
