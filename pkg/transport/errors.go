package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrOpen is returned when a local endpoint cannot be created.
	ErrOpen = errors.New("transport: cannot open endpoint")

	// ErrConnect is returned when a connection attempt cannot be started or
	// fails.
	ErrConnect = errors.New("transport: connect failed")

	// ErrSend is returned when a packet cannot be handed to the network.
	ErrSend = errors.New("transport: send failed")

	// ErrClosed is returned by operations on a closed host or peer.
	ErrClosed = errors.New("transport: closed")

	// ErrPeerFull is the cause reported when a host refuses a connection
	// because it is at capacity.
	ErrPeerFull = errors.New("transport: peer limit reached")

	// ErrTimeout is the cause reported when a peer stops responding.
	ErrTimeout = errors.New("transport: timed out")

	// ErrTooLarge is returned when a packet exceeds the transport's limit.
	ErrTooLarge = errors.New("transport: packet too large")
)

// OpError describes a failed transport operation.
type OpError struct {
	Op   string // "listen", "dial", "connect", "send", ...
	Addr string // Address involved, if any
	Kind error  // One of the sentinel errors above
	Err  error  // Underlying cause, may be nil
}

// Error returns the error message.
func (e *OpError) Error() string {
	msg := "transport: " + e.Op
	if e.Addr != "" {
		msg += " " + e.Addr
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", msg, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", msg, e.Kind)
}

// Unwrap returns the sentinel and the underlying cause for errors.Is/As.
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opError(op, addr string, kind, err error) *OpError {
	return &OpError{Op: op, Addr: addr, Kind: kind, Err: err}
}
