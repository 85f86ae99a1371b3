package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	errAddrInUse  = errors.New("address in use")
	errNoListener = errors.New("no listener at address")
	errQueueFull  = errors.New("event queue full")
)

// Loopback is an in-process Network. Hosts created from the same Loopback can
// reach each other by address; packets are copied and delivered in order with
// no loss.
type Loopback struct {
	cfg *Config

	mu    sync.Mutex
	hosts map[string]*loopHost
	seq   int
}

// NewLoopback creates an empty in-process network. A nil cfg uses defaults.
func NewLoopback(cfg *Config) *Loopback {
	return &Loopback{
		cfg:   cfg.normalize(),
		hosts: make(map[string]*loopHost),
	}
}

// Name returns "loopback".
func (l *Loopback) Name() string { return "loopback" }

// Listen binds a host at addr. An empty address or port 0 picks a free one.
func (l *Loopback) Listen(addr string, maxPeers int) (Host, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if addr == "" || strings.HasSuffix(addr, ":0") {
		l.seq++
		addr = fmt.Sprintf("loopback:%d", l.seq)
	}
	if _, ok := l.hosts[addr]; ok {
		return nil, opError("listen", addr, ErrOpen, errAddrInUse)
	}
	h := l.newHost(addr, maxPeers, true)
	l.hosts[addr] = h
	return h, nil
}

// Dial creates an outbound-only host.
func (l *Loopback) Dial() (Host, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	addr := fmt.Sprintf("loopback-client:%d", l.seq)
	h := l.newHost(addr, 0, false)
	l.hosts[addr] = h
	return h, nil
}

// Partition silently cuts every connection of the host at addr, as if its
// network cable were pulled. Both ends see EventTimeout.
func (l *Loopback) Partition(addr string) {
	l.mu.Lock()
	h := l.hosts[addr]
	l.mu.Unlock()
	if h == nil {
		return
	}
	for _, p := range h.snapshotPeers() {
		p.sever(EventTimeout, ErrTimeout)
	}
}

func (l *Loopback) newHost(addr string, maxPeers int, listening bool) *loopHost {
	return &loopHost{
		net:       l,
		addr:      addr,
		maxPeers:  maxPeers,
		listening: listening,
		events:    make(chan Event, l.cfg.EventQueue),
		peers:     make(map[string]*loopPeer),
		done:      make(chan struct{}),
	}
}

func (l *Loopback) lookup(addr string) *loopHost {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hosts[addr]
}

func (l *Loopback) remove(addr string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hosts, addr)
}

type loopHost struct {
	net       *Loopback
	addr      string
	maxPeers  int
	listening bool
	events    chan Event
	done      chan struct{}

	mu     sync.Mutex
	peers  map[string]*loopPeer // Keyed by remote address
	closed bool
}

func (h *loopHost) LocalAddr() string { return h.addr }

func (h *loopHost) Connect(ctx context.Context, addr string) (Peer, error) {
	if err := ctx.Err(); err != nil {
		return nil, opError("connect", addr, ErrConnect, err)
	}
	if h.isClosed() {
		return nil, opError("connect", addr, ErrConnect, ErrClosed)
	}
	target := h.net.lookup(addr)
	if target == nil || !target.listening || target == h {
		return nil, opError("connect", addr, ErrConnect, errNoListener)
	}

	local := &loopPeer{host: h, remote: target}
	remote := &loopPeer{host: target, remote: h}
	local.twin, remote.twin = remote, local

	h.mu.Lock()
	h.peers[target.addr] = local
	h.mu.Unlock()

	target.mu.Lock()
	if target.closed || len(target.peers) >= target.maxPeers {
		target.mu.Unlock()
		cause := ErrPeerFull
		if target.closed {
			cause = ErrClosed
		}
		h.forget(local)
		h.push(Event{Type: EventDisconnect, Peer: local, Err: cause})
		return local, nil
	}
	target.peers[h.addr] = remote
	target.mu.Unlock()

	local.connected.Store(true)
	remote.connected.Store(true)
	target.push(Event{Type: EventConnect, Peer: remote})
	h.push(Event{Type: EventConnect, Peer: local})
	return local, nil
}

func (h *loopHost) Service(timeout time.Duration) (Event, error) {
	if h.isClosed() {
		return Event{}, ErrClosed
	}
	return waitEvent(h.events, h.done, timeout)
}

func (h *loopHost) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.done)
	h.mu.Unlock()

	for _, p := range h.snapshotPeers() {
		p.Disconnect()
	}
	h.net.remove(h.addr)
	return nil
}

func (h *loopHost) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *loopHost) push(ev Event) bool {
	select {
	case h.events <- ev:
		return true
	default:
		return false
	}
}

func (h *loopHost) forget(p *loopPeer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.peers[p.remote.addr] == p {
		delete(h.peers, p.remote.addr)
	}
}

func (h *loopHost) snapshotPeers() []*loopPeer {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*loopPeer, 0, len(h.peers))
	for _, p := range h.peers {
		out = append(out, p)
	}
	return out
}

type loopPeer struct {
	host      *loopHost
	remote    *loopHost
	twin      *loopPeer
	connected atomic.Bool
}

func (p *loopPeer) Addr() string { return p.remote.addr }

func (p *loopPeer) Send(data []byte, mode SendMode) error {
	if !p.connected.Load() {
		return opError("send", p.Addr(), ErrSend, ErrClosed)
	}
	if len(data) > p.host.net.cfg.MaxPacketSize {
		return opError("send", p.Addr(), ErrSend, ErrTooLarge)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	if !p.remote.push(Event{Type: EventReceive, Peer: p.twin, Data: cp}) {
		return opError("send", p.Addr(), ErrSend, errQueueFull)
	}
	return nil
}

func (p *loopPeer) Disconnect() error {
	p.sever(EventDisconnect, nil)
	return nil
}

// sever tears down both halves of the connection and reports typ to each side.
func (p *loopPeer) sever(typ EventType, cause error) {
	if !p.connected.CompareAndSwap(true, false) {
		return
	}
	p.twin.connected.Store(false)
	p.host.forget(p)
	p.remote.forget(p.twin)
	p.remote.push(Event{Type: typ, Peer: p.twin, Err: cause})
	p.host.push(Event{Type: typ, Peer: p, Err: cause})
}
