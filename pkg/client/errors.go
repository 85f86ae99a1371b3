package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when sending without a connected server.
	ErrNotConnected = errors.New("client: not connected")

	// ErrNoTransport is returned when connecting before OpenTransport.
	ErrNoTransport = errors.New("client: transport not open")
)

// OpError wraps an error with the operation that failed.
type OpError struct {
	Op   string // "open", "connect", "send ChatMessage", ...
	Addr string // Server address, if known
	Err  error
}

// Error returns the error message.
func (e *OpError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("client: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("client: %s %s: %v", e.Op, e.Addr, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *OpError) Unwrap() error {
	return e.Err
}
