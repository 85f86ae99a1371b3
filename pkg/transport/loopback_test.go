package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoopback_Conformance(t *testing.T) {
	runConformance(t, NewLoopback(testConfig()), "")
}

func TestLoopback_ListenAddressInUse(t *testing.T) {
	n := NewLoopback(testConfig())
	h, err := n.Listen("game:7777", 2)
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	defer h.Close()

	if _, err := n.Listen("game:7777", 2); !errors.Is(err, ErrOpen) {
		t.Errorf("second Listen() = %v, want ErrOpen", err)
	}
	if h.LocalAddr() != "game:7777" {
		t.Errorf("LocalAddr() = %q", h.LocalAddr())
	}
}

func TestLoopback_ConnectWithoutListener(t *testing.T) {
	n := NewLoopback(testConfig())
	client, _ := n.Dial()
	defer client.Close()

	_, err := client.Connect(context.Background(), "nowhere:1")
	if !errors.Is(err, ErrConnect) {
		t.Errorf("Connect() = %v, want ErrConnect", err)
	}
}

func TestLoopback_ConnectCanceledContext(t *testing.T) {
	n := NewLoopback(testConfig())
	server, _ := n.Listen("", 1)
	defer server.Close()
	client, _ := n.Dial()
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Connect(ctx, server.LocalAddr()); !errors.Is(err, context.Canceled) {
		t.Errorf("Connect() = %v, want context.Canceled", err)
	}
}

func TestLoopback_Partition(t *testing.T) {
	n := NewLoopback(testConfig())
	server, _ := n.Listen("", 2)
	defer server.Close()
	client, _ := n.Dial()
	defer client.Close()

	cp, _ := client.Connect(context.Background(), server.LocalAddr())
	expectEvent(t, client, EventConnect)
	expectEvent(t, server, EventConnect)

	n.Partition(server.LocalAddr())

	if ev := expectEvent(t, server, EventTimeout); !errors.Is(ev.Err, ErrTimeout) {
		t.Errorf("server timeout cause = %v", ev.Err)
	}
	expectEvent(t, client, EventTimeout)
	if err := cp.Send([]byte{1}, SendReliable); !errors.Is(err, ErrSend) {
		t.Errorf("Send() after partition = %v, want ErrSend", err)
	}
}

func TestLoopback_OrderedDelivery(t *testing.T) {
	n := NewLoopback(testConfig())
	server, _ := n.Listen("", 1)
	defer server.Close()
	client, _ := n.Dial()
	defer client.Close()

	cp, _ := client.Connect(context.Background(), server.LocalAddr())
	expectEvent(t, server, EventConnect)

	for i := range 10 {
		if err := cp.Send([]byte{byte(i)}, SendUnreliable); err != nil {
			t.Fatalf("Send(%d) error: %v", i, err)
		}
	}
	for i := range 10 {
		ev := expectEvent(t, server, EventReceive)
		if len(ev.Data) != 1 || ev.Data[0] != byte(i) {
			t.Fatalf("packet %d = % X", i, ev.Data)
		}
	}
}

func TestLoopback_ServicePollDoesNotBlock(t *testing.T) {
	n := NewLoopback(testConfig())
	h, _ := n.Listen("", 1)
	defer h.Close()

	start := time.Now()
	ev, err := h.Service(0)
	if err != nil {
		t.Fatalf("Service(0) error: %v", err)
	}
	if ev.Type != EventNone {
		t.Errorf("Service(0) = %v, want None", ev.Type)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Errorf("Service(0) blocked for %v", time.Since(start))
	}
}

func TestEventType_String(t *testing.T) {
	tests := map[EventType]string{
		EventNone:       "None",
		EventConnect:    "Connect",
		EventReceive:    "Receive",
		EventDisconnect: "Disconnect",
		EventTimeout:    "Timeout",
		EventType(99):   "Unknown",
	}
	for typ, want := range tests {
		if got := typ.String(); got != want {
			t.Errorf("EventType(%d).String() = %q, want %q", typ, got, want)
		}
	}
	if SendReliable.String() != "Reliable" || SendUnreliable.String() != "Unreliable" {
		t.Error("SendMode.String() mismatch")
	}
}

func TestOpError(t *testing.T) {
	cause := errors.New("boom")
	err := opError("connect", "1.2.3.4:5", ErrConnect, cause)

	if got, want := err.Error(), "transport: connect 1.2.3.4:5: transport: connect failed: boom"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrConnect) || !errors.Is(err, cause) {
		t.Error("OpError does not unwrap to its kind and cause")
	}

	bare := opError("listen", "", ErrOpen, nil)
	if got, want := bare.Error(), "transport: listen: transport: cannot open endpoint"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestConfig_Normalize(t *testing.T) {
	var nilCfg *Config
	if got := nilCfg.normalize(); got.MaxPacketSize != 4096 || got.WebSocketPath != "/ws" {
		t.Errorf("nil normalize = %+v", got)
	}

	cfg := &Config{PeerTimeout: time.Minute}
	got := cfg.normalize()
	if got.PeerTimeout != time.Minute {
		t.Errorf("PeerTimeout = %v, want 1m", got.PeerTimeout)
	}
	if got.ConnectTimeout != 5*time.Second || got.Logger == nil {
		t.Errorf("defaults not filled: %+v", got)
	}
	if cfg.Logger != nil {
		t.Error("normalize modified its receiver")
	}
}
