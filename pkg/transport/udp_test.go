package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestUDP_Conformance(t *testing.T) {
	runConformance(t, NewUDPNetwork(testConfig()), "127.0.0.1:0")
}

func TestUDP_ListenInvalidAddress(t *testing.T) {
	n := NewUDPNetwork(testConfig())
	if _, err := n.Listen("not-an-address", 1); !errors.Is(err, ErrOpen) {
		t.Errorf("Listen() = %v, want ErrOpen", err)
	}
}

func TestUDP_ConnectTimeout(t *testing.T) {
	// Find a port nobody is listening on.
	spare, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP() error: %v", err)
	}
	addr := spare.LocalAddr().String()
	spare.Close()

	n := NewUDPNetwork(testConfig().WithConnectTimeout(200 * time.Millisecond))
	client, err := n.Dial()
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer client.Close()

	if _, err := client.Connect(context.Background(), addr); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	ev := expectEvent(t, client, EventTimeout)
	if !errors.Is(ev.Err, ErrTimeout) {
		t.Errorf("timeout cause = %v", ev.Err)
	}
}

// rawPeer is a bare UDP socket that speaks the handshake by hand.
type rawPeer struct {
	t    *testing.T
	conn *net.UDPConn
}

func newRawPeer(t *testing.T) *rawPeer {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP() error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &rawPeer{t: t, conn: conn}
}

func (r *rawPeer) send(to string, data []byte) {
	r.t.Helper()
	ua, err := net.ResolveUDPAddr("udp", to)
	if err != nil {
		r.t.Fatalf("ResolveUDPAddr() error: %v", err)
	}
	if _, err := r.conn.WriteToUDP(data, ua); err != nil {
		r.t.Fatalf("WriteToUDP() error: %v", err)
	}
}

func (r *rawPeer) recv() ([]byte, *net.UDPAddr) {
	r.t.Helper()
	buf := make([]byte, 64)
	r.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	n, from, err := r.conn.ReadFromUDP(buf)
	if err != nil {
		r.t.Fatalf("ReadFromUDP() error: %v", err)
	}
	return buf[:n], from
}

// recvType reads until a datagram of the given type arrives, skipping pings.
func (r *rawPeer) recvType(want udpPacket) []byte {
	r.t.Helper()
	for {
		data, _ := r.recv()
		if len(data) >= udpHeaderSize && udpPacket(data[2]) == want {
			return data
		}
		if len(data) < udpHeaderSize || udpPacket(data[2]) != udpPing {
			r.t.Fatalf("datagram = % X, want type %d", data, want)
		}
	}
}

func TestUDP_ClientPeerTimeout(t *testing.T) {
	raw := newRawPeer(t)
	n := NewUDPNetwork(testConfig().WithPeerTimeout(200 * time.Millisecond))
	client, _ := n.Dial()
	defer client.Close()

	if _, err := client.Connect(context.Background(), raw.conn.LocalAddr().String()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	req, from := raw.recv()
	if len(req) != udpHeaderSize || udpPacket(req[2]) != udpConnect {
		t.Fatalf("connect request = % X", req)
	}
	raw.send(from.String(), []byte{udpMagic0, udpMagic1, byte(udpAccept)})

	expectEvent(t, client, EventConnect)
	// The raw peer never answers pings.
	ev := expectEvent(t, client, EventTimeout)
	if !errors.Is(ev.Err, ErrTimeout) {
		t.Errorf("timeout cause = %v", ev.Err)
	}
}

func TestUDP_ServerPeerTimeout(t *testing.T) {
	n := NewUDPNetwork(testConfig().WithPeerTimeout(200 * time.Millisecond))
	server, err := n.Listen("127.0.0.1:0", 2)
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	defer server.Close()

	raw := newRawPeer(t)
	raw.send(server.LocalAddr(), []byte{udpMagic0, udpMagic1, byte(udpConnect)})

	ev := expectEvent(t, server, EventConnect)
	if ev.Peer.Addr() != raw.conn.LocalAddr().String() {
		t.Errorf("peer addr = %q, want %q", ev.Peer.Addr(), raw.conn.LocalAddr())
	}
	raw.recvType(udpAccept)
	expectEvent(t, server, EventTimeout)
}

func TestUDP_DropsForeignDatagrams(t *testing.T) {
	n := NewUDPNetwork(testConfig())
	server, err := n.Listen("127.0.0.1:0", 2)
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	defer server.Close()

	raw := newRawPeer(t)
	raw.send(server.LocalAddr(), []byte("hello"))
	raw.send(server.LocalAddr(), []byte{udpMagic0})
	// Data before the handshake is ignored.
	raw.send(server.LocalAddr(), []byte{udpMagic0, udpMagic1, byte(udpData), 0x03})
	raw.send(server.LocalAddr(), []byte{udpMagic0, udpMagic1, 0xEE})

	expectQuiet(t, server, 150*time.Millisecond)
}

func TestUDP_DuplicateConnectIsIdempotent(t *testing.T) {
	n := NewUDPNetwork(testConfig())
	server, err := n.Listen("127.0.0.1:0", 2)
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	defer server.Close()

	raw := newRawPeer(t)
	connect := []byte{udpMagic0, udpMagic1, byte(udpConnect)}
	raw.send(server.LocalAddr(), connect)
	expectEvent(t, server, EventConnect)
	raw.recvType(udpAccept)

	// A retried request is answered again without a second connect event.
	raw.send(server.LocalAddr(), connect)
	expectQuiet(t, server, 100*time.Millisecond)
	raw.recvType(udpAccept)
}
