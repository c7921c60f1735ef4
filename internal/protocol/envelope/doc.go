// Package envelope owns the single message shape exchanged between peers.
//
// Ownership boundary:
// - SYNC envelope fields and validation
// - tlv wire encoding of envelopes
// - outbound ordering (sequencer)
//
// Every envelope carries a sender-local sequence number. Senders release
// envelopes strictly in sequence order; receivers drop any envelope whose
// sequence is not newer than the last one they applied.
package envelope
