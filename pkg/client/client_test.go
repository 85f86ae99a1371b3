package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dbechrd/slimerrt/pkg/protocol"
	"github.com/dbechrd/slimerrt/pkg/transport"
	"github.com/dbechrd/slimerrt/pkg/world"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newLoopback() *transport.Loopback {
	return transport.NewLoopback(transport.DefaultConfig().WithLogger(discard))
}

func newTestClient(t *testing.T, n transport.Network) *Client {
	t.Helper()
	c := New(DefaultConfig().WithNetwork(n).WithLogger(discard))
	if err := c.OpenTransport(); err != nil {
		t.Fatalf("OpenTransport() error: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func listen(t *testing.T, n transport.Network, maxPeers int) transport.Host {
	t.Helper()
	h, err := n.Listen("", maxPeers)
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort(%q) error: %v", addr, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		t.Fatalf("bad port %q", port)
	}
	return host, p
}

func nextEvent(t *testing.T, h transport.Host) transport.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ev, err := h.Service(100 * time.Millisecond)
		if err != nil {
			t.Fatalf("Service() error: %v", err)
		}
		if ev.Type != transport.EventNone {
			return ev
		}
	}
	t.Fatal("no event before deadline")
	return transport.Event{}
}

func expectMessage[T protocol.Message](t *testing.T, h transport.Host) T {
	t.Helper()
	ev := nextEvent(t, h)
	if ev.Type != transport.EventReceive {
		t.Fatalf("event = %s, want Receive", ev.Type)
	}
	m, err := protocol.Deserialize(ev.Data)
	if err != nil {
		t.Fatalf("Deserialize() error: %v", err)
	}
	typed, ok := m.(T)
	if !ok {
		t.Fatalf("message = %T, want %T", m, typed)
	}
	return typed
}

func mustSend(t *testing.T, p transport.Peer, m protocol.Message) {
	t.Helper()
	data, err := protocol.Serialize(m)
	if err != nil {
		t.Fatalf("Serialize(%s) error: %v", m.Kind(), err)
	}
	if err := p.Send(data, transport.SendReliable); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
}

// connectClient connects c to server and returns the server's end of the
// connection after consuming the client's Identify.
func connectClient(t *testing.T, c *Client, server transport.Host, username string, password []byte) transport.Peer {
	t.Helper()
	host, port := splitAddr(t, server.LocalAddr())
	if err := c.Connect(context.Background(), host, port, username, password); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if c.State() != StateConnecting {
		t.Fatalf("State() = %s, want Connecting", c.State())
	}
	if err := c.Receive(); err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if c.State() != StateConnected {
		t.Fatalf("State() = %s, want Connected", c.State())
	}

	ev := nextEvent(t, server)
	if ev.Type != transport.EventConnect {
		t.Fatalf("server event = %s, want Connect", ev.Type)
	}
	id := expectMessage[*protocol.Identify](t, server)
	if id.Username != username {
		t.Errorf("Identify.Username = %q, want %q", id.Username, username)
	}
	return ev.Peer
}

func TestClient_SendChatWhileDisconnected(t *testing.T) {
	n := newLoopback()
	server := listen(t, n, 4)
	c := newTestClient(t, n)

	err := c.SendChatMessage("hello?")
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendChatMessage() = %v, want ErrNotConnected", err)
	}
	if c.Chat().Count() != 1 {
		t.Fatalf("chat has %d lines, want 1", c.Chat().Count())
	}
	if src := c.Chat().At(0).Value.Source; src != protocol.ChatSourceSystem {
		t.Errorf("line source = %s, want System", src)
	}
	if ev, _ := server.Service(0); ev.Type != transport.EventNone {
		t.Errorf("server saw %s, want nothing", ev.Type)
	}
}

func TestClient_ConnectAuthenticates(t *testing.T) {
	n := newLoopback()
	server := listen(t, n, 4)
	c := newTestClient(t, n)

	password := []byte("hunter2")
	host, port := splitAddr(t, server.LocalAddr())
	if err := c.Connect(context.Background(), host, port, "Sam", password); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if err := c.Receive(); err != nil {
		t.Fatalf("Receive() error: %v", err)
	}

	if ev := nextEvent(t, server); ev.Type != transport.EventConnect {
		t.Fatalf("server event = %s, want Connect", ev.Type)
	}
	id := expectMessage[*protocol.Identify](t, server)
	if id.Username != "Sam" || string(id.Password) != "hunter2" {
		t.Errorf("Identify = %q/%q", id.Username, id.Password)
	}
	if c.password != nil {
		t.Errorf("password kept after Authenticate: %q", c.password)
	}
	if string(password) != "hunter2" {
		t.Errorf("caller's password modified: %q", password)
	}
	for _, b := range c.sendBuf[:16] {
		if b != 0 {
			t.Fatal("send buffer not cleared after Identify")
		}
	}
}

func TestClient_ConnectValidatesCredentials(t *testing.T) {
	c := newTestClient(t, newLoopback())

	err := c.Connect(context.Background(), "loopback", 1, strings.Repeat("u", protocol.MaxUsernameLength+1), nil)
	if !errors.Is(err, protocol.ErrLengthExceeded) {
		t.Errorf("long username: Connect() = %v, want ErrLengthExceeded", err)
	}
	err = c.Connect(context.Background(), "loopback", 1, "Sam", make([]byte, protocol.MaxPasswordLength+1))
	if !errors.Is(err, protocol.ErrLengthExceeded) {
		t.Errorf("long password: Connect() = %v, want ErrLengthExceeded", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("State() = %s, want Disconnected", c.State())
	}
}

func TestClient_ConnectWithoutTransport(t *testing.T) {
	c := New(DefaultConfig().WithNetwork(newLoopback()).WithLogger(discard))
	err := c.Connect(context.Background(), "loopback", 1, "Sam", nil)
	if !errors.Is(err, ErrNoTransport) {
		t.Errorf("Connect() = %v, want ErrNoTransport", err)
	}
	if err := c.Receive(); !errors.Is(err, ErrNoTransport) {
		t.Errorf("Receive() = %v, want ErrNoTransport", err)
	}
}

func TestClient_ConnectUnreachable(t *testing.T) {
	c := newTestClient(t, newLoopback())
	err := c.Connect(context.Background(), "nowhere", 9, "Sam", nil)
	if !errors.Is(err, transport.ErrConnect) {
		t.Errorf("Connect() = %v, want ErrConnect", err)
	}
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Addr != "nowhere:9" {
		t.Errorf("Connect() = %v, want *OpError for nowhere:9", err)
	}
}

func TestClient_ReceiveDispatch(t *testing.T) {
	n := newLoopback()
	server := listen(t, n, 4)
	c := newTestClient(t, n)
	peer := connectClient(t, c, server, "Sam", nil)

	mustSend(t, peer, &protocol.Welcome{
		PlayerID:    3,
		WorldWidth:  64,
		WorldHeight: 64,
		Motd:        "be nice",
		Roster:      []protocol.RosterEntry{{PlayerID: 1, Username: "Ada"}},
	})
	// Garbage and an unknown discriminant must not stop the drain.
	peer.Send([]byte{0xFF, 0xFF, 0xFF}, transport.SendReliable)
	peer.Send([]byte{0x0F}, transport.SendReliable)
	mustSend(t, peer, &protocol.ChatMessage{
		Source:   protocol.ChatSourceClient,
		SenderID: 1,
		Username: "Ada",
		Text:     "hi Sam",
	})
	mustSend(t, peer, &protocol.GlobalEvent{Type: protocol.GlobalEventJoin, PlayerID: 4, Username: "Bob"})
	// Server-bound kinds are dropped.
	mustSend(t, peer, &protocol.Input{Samples: []protocol.InputSample{{Tick: 1}}})

	if err := c.Receive(); err != nil {
		t.Fatalf("Receive() error: %v", err)
	}

	if got := c.Packets().Count(); got != 6 {
		t.Errorf("Packets().Count() = %d, want 6", got)
	}
	if got := c.Packets().At(1).Value; len(got) != 3 || got[0] != 0xFF {
		t.Errorf("packet 1 = %x, want the raw bytes", got)
	}
	if c.Packets().Newest().Timestamp.IsZero() {
		t.Error("packet has no timestamp")
	}
	if c.PlayerID() != 3 {
		t.Errorf("PlayerID() = %d, want 3", c.PlayerID())
	}

	w := c.World().(*world.State)
	if !w.Welcomed() {
		t.Error("world not welcomed")
	}
	if name, ok := w.Username(4); !ok || name != "Bob" {
		t.Errorf("Username(4) = %q, %v", name, ok)
	}

	lines := c.Chat().Lines()
	var texts []string
	for _, l := range lines {
		texts = append(texts, l.Value.Text)
	}
	want := []string{"Connected to " + server.LocalAddr() + ".", "be nice", "hi Sam"}
	if strings.Join(texts, "|") != strings.Join(want, "|") {
		t.Errorf("chat = %q, want %q", texts, want)
	}
	if c.State() != StateConnected {
		t.Errorf("State() = %s, want Connected", c.State())
	}
}

func TestClient_SendChatClamps(t *testing.T) {
	n := newLoopback()
	server := listen(t, n, 4)
	c := newTestClient(t, n)
	connectClient(t, c, server, "Sam", nil)

	if err := c.SendChatMessage(strings.Repeat("a", 600)); err != nil {
		t.Fatalf("SendChatMessage() error: %v", err)
	}
	msg := expectMessage[*protocol.ChatMessage](t, server)
	if len(msg.Text) != protocol.MaxChatLength {
		t.Errorf("sent %d bytes of text, want %d", len(msg.Text), protocol.MaxChatLength)
	}
	if msg.Username != "Sam" || msg.Source != protocol.ChatSourceClient {
		t.Errorf("message = %+v", msg)
	}
}

func TestClient_SendInputRecords(t *testing.T) {
	n := newLoopback()
	server := listen(t, n, 4)
	c := newTestClient(t, n)
	connectClient(t, c, server, "Sam", nil)

	in := &protocol.Input{Samples: []protocol.InputSample{
		{Tick: 10, Buttons: protocol.ButtonUp},
		{Tick: 11, Buttons: protocol.ButtonUp | protocol.ButtonRun, Facing: protocol.East},
	}}
	if err := c.SendInput(in); err != nil {
		t.Fatalf("SendInput() error: %v", err)
	}
	got := expectMessage[*protocol.Input](t, server)
	if len(got.Samples) != 2 || got.Samples[1].Facing != protocol.East {
		t.Errorf("Input = %+v", got)
	}
	if pending := c.World().(*world.State).PendingInputs(); len(pending) != 2 {
		t.Errorf("PendingInputs() = %v, want 2 samples", pending)
	}

	c.Disconnect()
	if err := c.SendInput(in); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendInput() after Disconnect = %v, want ErrNotConnected", err)
	}
}

func TestClient_ServerDisconnects(t *testing.T) {
	n := newLoopback()
	server := listen(t, n, 4)
	c := newTestClient(t, n)
	peer := connectClient(t, c, server, "Sam", nil)
	mustSend(t, peer, &protocol.Welcome{PlayerID: 2})
	c.Receive()

	peer.Disconnect()
	if err := c.Receive(); err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("State() = %s, want Disconnected", c.State())
	}
	if got := c.Chat().Newest(1)[0].Value.Text; got != "Disconnected from server." {
		t.Errorf("last chat line = %q", got)
	}
	if c.World().(*world.State).Welcomed() {
		t.Error("world not reset")
	}
	if c.PlayerID() != 0 {
		t.Errorf("PlayerID() = %d after disconnect", c.PlayerID())
	}
}

func TestClient_ServerTimesOut(t *testing.T) {
	n := newLoopback()
	server := listen(t, n, 4)
	c := newTestClient(t, n)
	connectClient(t, c, server, "Sam", nil)

	n.Partition(server.LocalAddr())
	c.Receive()
	if c.State() != StateDisconnected {
		t.Errorf("State() = %s, want Disconnected", c.State())
	}
	if got := c.Chat().Newest(1)[0].Value.Text; got != "Connection to server timed out." {
		t.Errorf("last chat line = %q", got)
	}
}

func TestClient_ServerFull(t *testing.T) {
	n := newLoopback()
	server := listen(t, n, 0)
	c := newTestClient(t, n)

	host, port := splitAddr(t, server.LocalAddr())
	if err := c.Connect(context.Background(), host, port, "Sam", nil); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	c.Receive()
	if c.State() != StateDisconnected {
		t.Errorf("State() = %s, want Disconnected", c.State())
	}
	if got := c.Chat().Newest(1)[0].Value.Text; got != "Server is full." {
		t.Errorf("last chat line = %q", got)
	}
}

func TestClient_Reconnect(t *testing.T) {
	n := newLoopback()
	first := listen(t, n, 4)
	second := listen(t, n, 4)
	c := newTestClient(t, n)
	connectClient(t, c, first, "Sam", nil)

	connectClient(t, c, second, "Sam", []byte("pw"))
	if ev := nextEvent(t, first); ev.Type != transport.EventDisconnect {
		t.Errorf("first server event = %s, want Disconnect", ev.Type)
	}
	if c.ServerAddr() != second.LocalAddr() {
		t.Errorf("ServerAddr() = %q, want %q", c.ServerAddr(), second.LocalAddr())
	}
	// The disconnect event of the first connection is stale.
	c.Receive()
	if c.State() != StateConnected {
		t.Errorf("State() = %s, want Connected", c.State())
	}
}

// stallNetwork produces hosts whose connections never complete.
type stallNetwork struct{}

func (stallNetwork) Name() string { return "stall" }

func (stallNetwork) Listen(string, int) (transport.Host, error) {
	return nil, transport.ErrOpen
}

func (stallNetwork) Dial() (transport.Host, error) { return &stallHost{}, nil }

type stallHost struct {
	mu    sync.Mutex
	peers []*stallPeer
}

func (h *stallHost) Connect(_ context.Context, addr string) (transport.Peer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := &stallPeer{addr: addr}
	h.peers = append(h.peers, p)
	return p, nil
}

func (h *stallHost) Service(time.Duration) (transport.Event, error) {
	return transport.Event{}, nil
}

func (h *stallHost) LocalAddr() string { return "stall:0" }
func (h *stallHost) Close() error      { return nil }

type stallPeer struct {
	addr         string
	disconnected bool
}

func (p *stallPeer) Addr() string { return p.addr }

func (p *stallPeer) Send([]byte, transport.SendMode) error {
	return transport.ErrSend
}

func (p *stallPeer) Disconnect() error {
	p.disconnected = true
	return nil
}

func TestClient_ConnectTimeout(t *testing.T) {
	now := time.Unix(1000, 0)
	var transitions []string
	cfg := DefaultConfig().
		WithNetwork(stallNetwork{}).
		WithLogger(discard).
		WithConnectTimeout(5 * time.Second).
		WithClock(func() time.Time { return now })
	cfg.OnStateChange = func(from, to State) {
		transitions = append(transitions, to.String())
	}
	c := New(cfg)
	if err := c.OpenTransport(); err != nil {
		t.Fatalf("OpenTransport() error: %v", err)
	}

	if err := c.Connect(context.Background(), "example.com", 4040, "Sam", []byte("pw")); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	now = now.Add(4 * time.Second)
	c.Receive()
	if c.State() != StateConnecting {
		t.Fatalf("State() = %s before the deadline, want Connecting", c.State())
	}

	now = now.Add(time.Second)
	c.Receive()
	if c.State() != StateDisconnected {
		t.Errorf("State() = %s, want Disconnected", c.State())
	}
	want := "Connecting,TimedOut,Disconnected"
	if got := strings.Join(transitions, ","); got != want {
		t.Errorf("transitions = %s, want %s", got, want)
	}
	if got := c.Chat().Newest(1)[0].Value.Text; got != "Connection timed out." {
		t.Errorf("last chat line = %q", got)
	}
	if c.password != nil {
		t.Error("password kept after timeout")
	}
	host := c.host.(*stallHost)
	if !host.peers[0].disconnected {
		t.Error("stalled peer not disconnected")
	}
}

func TestClient_DisconnectIdle(t *testing.T) {
	c := newTestClient(t, newLoopback())
	if err := c.Disconnect(); err != nil {
		t.Errorf("Disconnect() = %v", err)
	}
	if c.Chat().Count() != 0 {
		t.Errorf("idle Disconnect added %d chat lines", c.Chat().Count())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateDisconnected, "Disconnected"},
		{StateConnecting, "Connecting"},
		{StateConnected, "Connected"},
		{StateDisconnecting, "Disconnecting"},
		{StateTimedOut, "TimedOut"},
		{State(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestOpError(t *testing.T) {
	err := &OpError{Op: "connect", Addr: "h:1", Err: ErrNoTransport}
	if got := err.Error(); got != "client: connect h:1: client: transport not open" {
		t.Errorf("Error() = %q", got)
	}
	err = &OpError{Op: "receive", Err: ErrNotConnected}
	if got := err.Error(); got != "client: receive: client: not connected" {
		t.Errorf("Error() = %q", got)
	}
}
