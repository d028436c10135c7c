// Copyright 2025 OneCore Project
//
// Package relay implements the communication-server client (component C9,
// spec.md §4.9): a connection-state machine against a relay that brokers
// NAT traversal between peers, a pool of spare outbound connections kept
// warm for fast pairing, and the invitation-based pairing and chum/sync
// protocols layered on top of pkg/connection.

package relay

// State is where a Client sits in its relay-connection lifecycle.
type State int

const (
	// NotListening means the client has no relay connection and isn't
	// trying to establish one.
	NotListening State = iota
	// Connecting means a connection attempt to the relay is in flight.
	Connecting
	// Listening means the client holds an open relay connection and can
	// accept incoming pairing/communication requests.
	Listening
)

func (s State) String() string {
	switch s {
	case NotListening:
		return "not-listening"
	case Connecting:
		return "connecting"
	case Listening:
		return "listening"
	default:
		return "unknown"
	}
}
