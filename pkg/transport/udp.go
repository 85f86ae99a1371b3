package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"
)

// UDP datagram header: two magic bytes and a packet type.
const (
	udpMagic0     byte = 'S'
	udpMagic1     byte = 'R'
	udpHeaderSize      = 3
)

type udpPacket uint8

const (
	udpConnect udpPacket = iota + 1
	udpAccept
	udpRefuse
	udpDisconnect
	udpPing
	udpData
)

type udpState uint8

const (
	udpConnecting udpState = iota
	udpConnected
	udpClosed
)

// UDPNetwork is a connection-oriented layer over plain UDP datagrams. It adds
// a connect handshake, keep-alive pings and idle timeouts. Data packets are
// delivered best effort in both send modes; there is no retransmission.
type UDPNetwork struct {
	cfg *Config
}

// NewUDPNetwork creates a UDP network. A nil cfg uses defaults.
func NewUDPNetwork(cfg *Config) *UDPNetwork {
	return &UDPNetwork{cfg: cfg.normalize()}
}

// Name returns "udp".
func (n *UDPNetwork) Name() string { return "udp" }

// Listen binds a UDP socket at addr that accepts up to maxPeers connections.
func (n *UDPNetwork) Listen(addr string, maxPeers int) (Host, error) {
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, opError("listen", addr, ErrOpen, err)
	}
	conn, err := net.ListenUDP("udp", ua)
	if err != nil {
		return nil, opError("listen", addr, ErrOpen, err)
	}
	return newUDPHost(n.cfg, conn, maxPeers, true), nil
}

// Dial binds an ephemeral UDP socket for outbound connections.
func (n *UDPNetwork) Dial() (Host, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, opError("dial", "", ErrOpen, err)
	}
	return newUDPHost(n.cfg, conn, 0, false), nil
}

type datagram struct {
	addr *net.UDPAddr
	data []byte
}

type udpHost struct {
	cfg       *Config
	logger    *slog.Logger
	conn      *net.UDPConn
	maxPeers  int
	listening bool
	incoming  chan datagram
	done      chan struct{}

	mu      sync.Mutex
	peers   map[string]*udpPeer // Keyed by remote address
	pending []Event
	closed  bool
}

func newUDPHost(cfg *Config, conn *net.UDPConn, maxPeers int, listening bool) *udpHost {
	h := &udpHost{
		cfg:       cfg,
		conn:      conn,
		maxPeers:  maxPeers,
		listening: listening,
		incoming:  make(chan datagram, cfg.EventQueue),
		done:      make(chan struct{}),
		peers:     make(map[string]*udpPeer),
	}
	h.logger = cfg.Logger.With("component", "transport", "network", "udp", "local", h.LocalAddr())
	go h.readLoop()
	return h
}

func (h *udpHost) LocalAddr() string { return h.conn.LocalAddr().String() }

func (h *udpHost) readLoop() {
	buf := make([]byte, udpHeaderSize+h.cfg.MaxPacketSize+1)
	for {
		n, addr, err := h.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-h.done:
				return
			default:
			}
			h.logger.Debug("read failed", "error", err)
			continue
		}
		if n == len(buf) {
			h.logger.Debug("dropping oversized datagram", "from", addr.String())
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case h.incoming <- datagram{addr: addr, data: data}:
		case <-h.done:
			return
		}
	}
}

func (h *udpHost) Connect(ctx context.Context, addr string) (Peer, error) {
	if err := ctx.Err(); err != nil {
		return nil, opError("connect", addr, ErrConnect, err)
	}
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, opError("connect", addr, ErrConnect, err)
	}
	key := ua.String()
	now := time.Now()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, opError("connect", addr, ErrConnect, ErrClosed)
	}
	if p, ok := h.peers[key]; ok {
		h.mu.Unlock()
		return p, nil
	}
	p := &udpPeer{
		host:        h,
		addr:        ua,
		key:         key,
		state:       udpConnecting,
		started:     now,
		lastAttempt: now,
	}
	h.peers[key] = p
	h.mu.Unlock()

	if err := h.writeControl(ua, udpConnect); err != nil {
		h.mu.Lock()
		delete(h.peers, key)
		p.state = udpClosed
		h.mu.Unlock()
		return nil, opError("connect", addr, ErrConnect, err)
	}
	return p, nil
}

func (h *udpHost) Service(timeout time.Duration) (Event, error) {
	deadline := time.Now().Add(timeout)
	for {
		select {
		case <-h.done:
			return Event{}, ErrClosed
		default:
		}

		h.tick(time.Now())
		if ev, ok := h.popPending(); ok {
			return ev, nil
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			select {
			case d := <-h.incoming:
				h.handle(d, time.Now())
				continue
			default:
				return Event{}, nil
			}
		}
		// Wake up often enough to send pings and notice timeouts.
		if tick := h.cfg.PingInterval / 2; wait > tick {
			wait = tick
		}

		timer := time.NewTimer(wait)
		select {
		case d := <-h.incoming:
			timer.Stop()
			h.handle(d, time.Now())
		case <-timer.C:
		case <-h.done:
			timer.Stop()
			return Event{}, ErrClosed
		}
	}
}

func (h *udpHost) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	peers := make([]*udpPeer, 0, len(h.peers))
	for _, p := range h.peers {
		if p.state == udpConnected {
			peers = append(peers, p)
		}
		p.state = udpClosed
	}
	clear(h.peers)
	h.mu.Unlock()

	for _, p := range peers {
		h.writeControl(p.addr, udpDisconnect)
	}
	close(h.done)
	return h.conn.Close()
}

func (h *udpHost) popPending() (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.pending) == 0 {
		return Event{}, false
	}
	ev := h.pending[0]
	h.pending[0] = Event{}
	h.pending = h.pending[1:]
	return ev, true
}

// tick resends pending connect requests, pings idle peers and expires peers
// that have gone quiet.
func (h *udpHost) tick(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for key, p := range h.peers {
		switch p.state {
		case udpConnecting:
			if now.Sub(p.started) >= h.cfg.ConnectTimeout {
				h.drop(key, p, EventTimeout, ErrTimeout)
			} else if now.Sub(p.lastAttempt) >= h.cfg.ConnectRetry {
				p.lastAttempt = now
				h.writeControl(p.addr, udpConnect)
			}
		case udpConnected:
			if now.Sub(p.lastRecv) >= h.cfg.PeerTimeout {
				h.logger.Debug("peer timed out", "peer", key)
				h.drop(key, p, EventTimeout, ErrTimeout)
			} else if now.Sub(p.lastSend) >= h.cfg.PingInterval {
				p.lastSend = now
				h.writeControl(p.addr, udpPing)
			}
		}
	}
}

// handle processes one datagram. Malformed datagrams are dropped.
func (h *udpHost) handle(d datagram, now time.Time) {
	if len(d.data) < udpHeaderSize || d.data[0] != udpMagic0 || d.data[1] != udpMagic1 {
		h.logger.Debug("dropping foreign datagram", "from", d.addr.String(), "size", len(d.data))
		return
	}
	typ := udpPacket(d.data[2])
	key := d.addr.String()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	p := h.peers[key]

	switch typ {
	case udpConnect:
		if p != nil {
			// Our accept was lost; the peer is still asking.
			if p.state == udpConnected {
				p.lastRecv = now
				h.writeControl(d.addr, udpAccept)
			}
			return
		}
		if !h.listening {
			return
		}
		if len(h.peers) >= h.maxPeers {
			h.logger.Warn("refusing connection, peer limit reached", "from", key, "max", h.maxPeers)
			h.writeControl(d.addr, udpRefuse)
			return
		}
		p = &udpPeer{
			host:     h,
			addr:     d.addr,
			key:      key,
			state:    udpConnected,
			started:  now,
			lastRecv: now,
			lastSend: now,
		}
		h.peers[key] = p
		h.writeControl(d.addr, udpAccept)
		h.pending = append(h.pending, Event{Type: EventConnect, Peer: p})

	case udpAccept:
		if p == nil {
			return
		}
		p.lastRecv = now
		if p.state == udpConnecting {
			p.state = udpConnected
			p.lastSend = now
			h.pending = append(h.pending, Event{Type: EventConnect, Peer: p})
		}

	case udpRefuse:
		if p != nil && p.state == udpConnecting {
			h.drop(key, p, EventDisconnect, ErrPeerFull)
		}

	case udpDisconnect:
		if p != nil {
			h.drop(key, p, EventDisconnect, nil)
		}

	case udpPing:
		if p != nil && p.state == udpConnected {
			p.lastRecv = now
		}

	case udpData:
		if p == nil || p.state != udpConnected {
			return
		}
		p.lastRecv = now
		h.pending = append(h.pending, Event{Type: EventReceive, Peer: p, Data: d.data[udpHeaderSize:]})

	default:
		h.logger.Debug("dropping unknown datagram type", "from", key, "type", typ)
	}
}

// drop removes a peer and queues typ for it. h.mu must be held.
func (h *udpHost) drop(key string, p *udpPeer, typ EventType, cause error) {
	delete(h.peers, key)
	p.state = udpClosed
	h.pending = append(h.pending, Event{Type: typ, Peer: p, Err: cause})
}

func (h *udpHost) writeControl(addr *net.UDPAddr, typ udpPacket) error {
	_, err := h.conn.WriteToUDP([]byte{udpMagic0, udpMagic1, byte(typ)}, addr)
	return err
}

type udpPeer struct {
	host *udpHost
	addr *net.UDPAddr
	key  string

	// Guarded by host.mu.
	state       udpState
	started     time.Time
	lastAttempt time.Time
	lastRecv    time.Time
	lastSend    time.Time
}

func (p *udpPeer) Addr() string { return p.key }

func (p *udpPeer) Send(data []byte, mode SendMode) error {
	h := p.host
	if len(data) > h.cfg.MaxPacketSize {
		return opError("send", p.key, ErrSend, ErrTooLarge)
	}
	h.mu.Lock()
	state := p.state
	h.mu.Unlock()
	if state != udpConnected {
		return opError("send", p.key, ErrSend, ErrClosed)
	}

	buf := make([]byte, udpHeaderSize+len(data))
	buf[0], buf[1], buf[2] = udpMagic0, udpMagic1, byte(udpData)
	copy(buf[udpHeaderSize:], data)
	if _, err := h.conn.WriteToUDP(buf, p.addr); err != nil {
		return opError("send", p.key, ErrSend, err)
	}

	h.mu.Lock()
	p.lastSend = time.Now()
	h.mu.Unlock()
	return nil
}

func (p *udpPeer) Disconnect() error {
	h := p.host
	h.mu.Lock()
	if p.state == udpClosed {
		h.mu.Unlock()
		return nil
	}
	wasConnected := p.state == udpConnected
	if h.peers[p.key] == p {
		delete(h.peers, p.key)
	}
	p.state = udpClosed
	h.pending = append(h.pending, Event{Type: EventDisconnect, Peer: p})
	h.mu.Unlock()

	if wasConnected {
		if err := h.writeControl(p.addr, udpDisconnect); err != nil {
			return opError("disconnect", p.key, ErrSend, err)
		}
	}
	return nil
}
