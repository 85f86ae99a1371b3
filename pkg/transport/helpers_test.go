package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testConfig() *Config {
	return DefaultConfig().
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithConnectTimeout(2 * time.Second).
		WithPingInterval(50 * time.Millisecond)
}

// nextEvent services h until a non-empty event arrives or within elapses.
func nextEvent(t *testing.T, h Host, within time.Duration) Event {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		ev, err := h.Service(20 * time.Millisecond)
		if err != nil {
			t.Fatalf("Service() error: %v", err)
		}
		if ev.Type != EventNone {
			return ev
		}
	}
	t.Fatalf("no event within %v", within)
	return Event{}
}

// expectEvent is nextEvent plus a type check.
func expectEvent(t *testing.T, h Host, want EventType) Event {
	t.Helper()
	ev := nextEvent(t, h, 3*time.Second)
	if ev.Type != want {
		t.Fatalf("event = %v (err %v), want %v", ev.Type, ev.Err, want)
	}
	return ev
}

// expectQuiet services h for d and fails on any event.
func expectQuiet(t *testing.T, h Host, d time.Duration) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		ev, err := h.Service(10 * time.Millisecond)
		if err != nil {
			t.Fatalf("Service() error: %v", err)
		}
		if ev.Type != EventNone {
			t.Fatalf("unexpected event %v (err %v)", ev.Type, ev.Err)
		}
	}
}

// pump services h on a goroutine and forwards every event. Use it for the
// listening side so handshakes progress while the test waits on a client.
func pump(t *testing.T, h Host) <-chan Event {
	t.Helper()
	out := make(chan Event, 64)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			ev, err := h.Service(10 * time.Millisecond)
			if err != nil {
				return
			}
			if ev.Type != EventNone {
				out <- ev
			}
		}
	}()
	t.Cleanup(func() {
		close(stop)
		<-done
	})
	return out
}

func expectPumped(t *testing.T, events <-chan Event, want EventType) Event {
	t.Helper()
	select {
	case ev := <-events:
		if ev.Type != want {
			t.Fatalf("event = %v (err %v), want %v", ev.Type, ev.Err, want)
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatalf("no %v event", want)
		return Event{}
	}
}

func expectNoPumped(t *testing.T, events <-chan Event, d time.Duration) {
	t.Helper()
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %v", ev.Type)
	case <-time.After(d):
	}
}

// runConformance exercises the behaviour every Network must share.
func runConformance(t *testing.T, n Network, listenAddr string) {
	ctx := context.Background()

	t.Run("connect send disconnect", func(t *testing.T) {
		server, err := n.Listen(listenAddr, 4)
		if err != nil {
			t.Fatalf("Listen() error: %v", err)
		}
		defer server.Close()
		serverEvents := pump(t, server)

		client, err := n.Dial()
		if err != nil {
			t.Fatalf("Dial() error: %v", err)
		}
		defer client.Close()

		cp, err := client.Connect(ctx, server.LocalAddr())
		if err != nil {
			t.Fatalf("Connect() error: %v", err)
		}
		expectEvent(t, client, EventConnect)
		sp := expectPumped(t, serverEvents, EventConnect).Peer

		payload := []byte{0x03, 0x02, 0x01}
		if err := cp.Send(payload, SendReliable); err != nil {
			t.Fatalf("client Send() error: %v", err)
		}
		payload[0] = 0xFF // The transport must have copied it.
		rev := expectPumped(t, serverEvents, EventReceive)
		if !bytes.Equal(rev.Data, []byte{0x03, 0x02, 0x01}) {
			t.Errorf("server received % X", rev.Data)
		}
		if rev.Peer != sp {
			t.Errorf("receive peer differs from connect peer")
		}

		if err := sp.Send([]byte("pong"), SendUnreliable); err != nil {
			t.Fatalf("server Send() error: %v", err)
		}
		if ev := expectEvent(t, client, EventReceive); string(ev.Data) != "pong" {
			t.Errorf("client received %q", ev.Data)
		}

		if err := cp.Disconnect(); err != nil {
			t.Fatalf("Disconnect() error: %v", err)
		}
		expectEvent(t, client, EventDisconnect)
		expectPumped(t, serverEvents, EventDisconnect)

		if err := cp.Send([]byte("x"), SendReliable); !errors.Is(err, ErrSend) {
			t.Errorf("Send() after Disconnect = %v, want ErrSend", err)
		}
		if err := cp.Disconnect(); err != nil {
			t.Errorf("second Disconnect() error: %v", err)
		}
	})

	t.Run("peer limit", func(t *testing.T) {
		server, err := n.Listen(listenAddr, 1)
		if err != nil {
			t.Fatalf("Listen() error: %v", err)
		}
		defer server.Close()
		serverEvents := pump(t, server)

		first, _ := n.Dial()
		defer first.Close()
		if _, err := first.Connect(ctx, server.LocalAddr()); err != nil {
			t.Fatalf("Connect() error: %v", err)
		}
		expectEvent(t, first, EventConnect)
		expectPumped(t, serverEvents, EventConnect)

		second, _ := n.Dial()
		defer second.Close()
		if _, err := second.Connect(ctx, server.LocalAddr()); err != nil {
			t.Fatalf("Connect() error: %v", err)
		}
		ev := expectEvent(t, second, EventDisconnect)
		if !errors.Is(ev.Err, ErrPeerFull) {
			t.Errorf("refusal cause = %v, want ErrPeerFull", ev.Err)
		}
		expectNoPumped(t, serverEvents, 100*time.Millisecond)
	})

	t.Run("oversized send", func(t *testing.T) {
		server, err := n.Listen(listenAddr, 1)
		if err != nil {
			t.Fatalf("Listen() error: %v", err)
		}
		defer server.Close()
		pump(t, server)

		client, _ := n.Dial()
		defer client.Close()
		cp, err := client.Connect(ctx, server.LocalAddr())
		if err != nil {
			t.Fatalf("Connect() error: %v", err)
		}
		expectEvent(t, client, EventConnect)

		err = cp.Send(make([]byte, DefaultConfig().MaxPacketSize+1), SendReliable)
		if !errors.Is(err, ErrSend) || !errors.Is(err, ErrTooLarge) {
			t.Errorf("Send() = %v, want ErrSend and ErrTooLarge", err)
		}
		var opErr *OpError
		if !errors.As(err, &opErr) || opErr.Op != "send" {
			t.Errorf("Send() error is not a send OpError: %v", err)
		}
	})

	t.Run("service after close", func(t *testing.T) {
		h, err := n.Listen(listenAddr, 1)
		if err != nil {
			t.Fatalf("Listen() error: %v", err)
		}
		if err := h.Close(); err != nil {
			t.Fatalf("Close() error: %v", err)
		}
		if _, err := h.Service(0); !errors.Is(err, ErrClosed) {
			t.Errorf("Service() after Close = %v, want ErrClosed", err)
		}
		if err := h.Close(); err != nil {
			t.Errorf("second Close() error: %v", err)
		}
	})
}
