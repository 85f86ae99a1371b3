package server

import (
	"errors"
	"fmt"
)

// Sentinel errors for peer and server error conditions.
var (
	// ErrPeerFull is returned when a connection arrives while every player
	// slot is taken.
	ErrPeerFull = errors.New("server: peer limit reached")

	// ErrNotOpen is returned when the transport has not been opened.
	ErrNotOpen = errors.New("server: transport not open")

	// ErrAlreadyOpen is returned by OpenTransport on an open server.
	ErrAlreadyOpen = errors.New("server: transport already open")

	// ErrNotIdentified is returned when a peer sends chat before Identify.
	ErrNotIdentified = errors.New("server: peer has not identified")

	// ErrAlreadyIdentified is returned when a peer sends a second Identify.
	ErrAlreadyIdentified = errors.New("server: peer already identified")

	// ErrUnknownPeer is returned when addressing a peer that is not connected.
	ErrUnknownPeer = errors.New("server: unknown peer")

	// ErrAuthFailed is returned when the Authenticator rejects a login.
	ErrAuthFailed = errors.New("server: authentication failed")
)

// PeerError wraps an error with the peer it concerns.
type PeerError struct {
	Addr string
	Op   string // Operation that failed
	Err  error  // Underlying error
}

// Error returns the error message with peer context.
func (e *PeerError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("server: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("server: peer %s: %s: %v", e.Addr, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *PeerError) Unwrap() error {
	return e.Err
}
