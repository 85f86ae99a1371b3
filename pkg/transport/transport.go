package transport

import (
	"context"
	"time"
)

// EventType identifies a transport event.
type EventType uint8

const (
	EventNone       EventType = iota // Nothing happened within the timeout
	EventConnect                     // A peer finished connecting
	EventReceive                     // A packet arrived from a peer
	EventDisconnect                  // A peer disconnected or was refused
	EventTimeout                     // A peer stopped responding
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventNone:
		return "None"
	case EventConnect:
		return "Connect"
	case EventReceive:
		return "Receive"
	case EventDisconnect:
		return "Disconnect"
	case EventTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// Event is one occurrence reported by Host.Service.
type Event struct {
	Type EventType
	Peer Peer
	Data []byte // Packet payload for EventReceive; owned by the receiver
	Err  error  // Cause for EventDisconnect and EventTimeout, if known
}

// SendMode selects the delivery guarantee for a packet. Implementations that
// cannot honour SendReliable deliver best effort.
type SendMode uint8

const (
	SendUnreliable SendMode = iota
	SendReliable
)

// String returns the string representation of the send mode.
func (m SendMode) String() string {
	if m == SendReliable {
		return "Reliable"
	}
	return "Unreliable"
}

// Peer is the remote end of one connection.
type Peer interface {
	// Addr returns the peer's address. It is stable for the life of the
	// connection and unique among a host's peers.
	Addr() string

	// Send queues data for delivery. data may be reused once Send returns.
	Send(data []byte, mode SendMode) error

	// Disconnect closes the connection. The local host reports an
	// EventDisconnect for the peer afterwards.
	Disconnect() error
}

// Host is a local endpoint that owns a set of peers.
type Host interface {
	// Connect starts connecting to addr. The returned peer is usable once the
	// host reports EventConnect for it; failure is reported as
	// EventDisconnect or EventTimeout.
	Connect(ctx context.Context, addr string) (Peer, error)

	// Service returns the next event, waiting up to timeout. It returns an
	// Event of type EventNone if nothing happened and ErrClosed once the
	// host is closed.
	Service(timeout time.Duration) (Event, error)

	// LocalAddr returns the address the host is bound to.
	LocalAddr() string

	// Close disconnects every peer and releases the endpoint.
	Close() error
}

// Network creates hosts.
type Network interface {
	// Listen binds a host that accepts up to maxPeers inbound connections.
	Listen(addr string, maxPeers int) (Host, error)

	// Dial creates a host for outbound connections only.
	Dial() (Host, error)

	// Name identifies the network in logs and configuration.
	Name() string
}

// waitEvent receives the next event from events, waiting up to timeout. A
// non-positive timeout polls without blocking.
func waitEvent(events <-chan Event, done <-chan struct{}, timeout time.Duration) (Event, error) {
	if timeout <= 0 {
		select {
		case ev := <-events:
			return ev, nil
		case <-done:
			return Event{}, ErrClosed
		default:
			return Event{}, nil
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-events:
		return ev, nil
	case <-done:
		return Event{}, ErrClosed
	case <-timer.C:
		return Event{}, nil
	}
}
