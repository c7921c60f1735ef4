// Package session owns the two-peer synchronization engine.
//
// Ownership boundary:
// - role assignment (host/client) and the connection state machine
// - outbound SYNC envelopes: sequencing, async encode, ordered release
// - inbound SYNC envelopes: stale rejection and wholesale replace
// - the observable SessionState
//
// All transport events and encode completions are handled by one loop
// goroutine; Submit and the accessors share the state mutex with it.
package session
