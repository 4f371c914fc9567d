// Package telegram defines the decoded application-layer telegram that the
// bus layer hands to a BCU, the APCI service codes the BCU understands, and
// the KNX address notations.
//
// Framing, checksums and bit timing live below this package: a Telegram is
// what remains after the data-link layer accepted a frame. Short group
// values (six bits or less) that travel inside the APCI octet are unpacked
// into Payload[0] by the decoder.
//
// Telegram traces (for replay in the simulator) are stored as a stream of
// CBOR records, see WriteTrace and TraceReader.
package telegram
