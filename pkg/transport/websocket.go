package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	wsConnecting int32 = iota
	wsConnected
	wsClosed
)

// WebSocketNetwork carries packets as binary WebSocket messages. Delivery is
// reliable and ordered in both send modes.
type WebSocketNetwork struct {
	cfg      *Config
	upgrader websocket.Upgrader
	dialer   *websocket.Dialer
}

// NewWebSocketNetwork creates a WebSocket network. A nil cfg uses defaults.
func NewWebSocketNetwork(cfg *Config) *WebSocketNetwork {
	cfg = cfg.normalize()
	return &WebSocketNetwork{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.MaxPacketSize,
			WriteBufferSize: cfg.MaxPacketSize,
			// Game clients are not browsers; any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.ConnectTimeout,
			ReadBufferSize:   cfg.MaxPacketSize,
			WriteBufferSize:  cfg.MaxPacketSize,
		},
	}
}

// Name returns "ws".
func (n *WebSocketNetwork) Name() string { return "ws" }

// Listen serves WebSocket upgrades on addr at the configured path.
func (n *WebSocketNetwork) Listen(addr string, maxPeers int) (Host, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, opError("listen", addr, ErrOpen, err)
	}
	h := n.newHost(ln.Addr().String(), maxPeers)

	r := chi.NewRouter()
	r.Get(n.cfg.WebSocketPath, h.handleUpgrade)
	h.srv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: n.cfg.ConnectTimeout,
	}
	go func() {
		if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("http server stopped", "error", err)
		}
	}()
	return h, nil
}

// Dial creates a host for outbound WebSocket connections.
func (n *WebSocketNetwork) Dial() (Host, error) {
	return n.newHost("", 0), nil
}

func (n *WebSocketNetwork) newHost(addr string, maxPeers int) *wsHost {
	return &wsHost{
		net:      n,
		cfg:      n.cfg,
		logger:   n.cfg.Logger.With("component", "transport", "network", "ws", "local", addr),
		addr:     addr,
		maxPeers: maxPeers,
		events:   make(chan Event, n.cfg.EventQueue),
		done:     make(chan struct{}),
		peers:    make(map[*wsPeer]struct{}),
	}
}

type wsHost struct {
	net      *WebSocketNetwork
	cfg      *Config
	logger   *slog.Logger
	addr     string
	maxPeers int
	srv      *http.Server
	events   chan Event
	done     chan struct{}

	mu     sync.Mutex
	peers  map[*wsPeer]struct{}
	closed bool
}

func (h *wsHost) LocalAddr() string { return h.addr }

func (h *wsHost) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !h.reserve() {
		h.logger.Warn("refusing connection, peer limit reached", "from", r.RemoteAddr, "max", h.maxPeers)
		http.Error(w, "server full", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.net.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.release(nil)
		h.logger.Debug("upgrade failed", "from", r.RemoteAddr, "error", err)
		return
	}

	p := newWSPeer(h, conn.RemoteAddr().String())
	p.conn = conn
	p.state.Store(wsConnected)
	if !h.release(p) {
		// Close ran between reserve and release and never saw this peer.
		conn.Close()
		return
	}

	h.push(Event{Type: EventConnect, Peer: p})
	go p.readLoop()
	go p.pingLoop()
}

// reserve claims a peer slot for an incoming upgrade. The slot is held by a
// nil key until release swaps in the peer.
func (h *wsHost) reserve() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || len(h.peers) >= h.maxPeers {
		return false
	}
	h.peers[nil] = struct{}{}
	return true
}

// release frees the reserved slot and, if p is not nil, registers p in it.
// It reports false when the host closed in the meantime; p is then not
// registered and the caller must close its connection.
func (h *wsHost) release(p *wsPeer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, nil)
	if h.closed {
		return false
	}
	if p != nil {
		h.peers[p] = struct{}{}
	}
	return true
}

func (h *wsHost) Connect(ctx context.Context, addr string) (Peer, error) {
	if err := ctx.Err(); err != nil {
		return nil, opError("connect", addr, ErrConnect, err)
	}
	u := url.URL{Scheme: "ws", Host: addr, Path: h.cfg.WebSocketPath}

	p := newWSPeer(h, addr)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, opError("connect", addr, ErrConnect, ErrClosed)
	}
	h.peers[p] = struct{}{}
	h.mu.Unlock()

	// The dial outlives the caller's context; ConnectTimeout bounds it.
	dialCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.ConnectTimeout)
	go func() {
		defer cancel()
		conn, resp, err := h.net.dialer.DialContext(dialCtx, u.String(), nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			if _, ok := p.shutdown(); !ok {
				return
			}
			typ, cause := EventDisconnect, error(opError("connect", addr, ErrConnect, err))
			switch {
			case resp != nil && resp.StatusCode == http.StatusServiceUnavailable:
				cause = ErrPeerFull
			case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
				typ, cause = EventTimeout, ErrTimeout
			}
			h.push(Event{Type: typ, Peer: p, Err: cause})
			return
		}

		p.conn = conn
		if !p.state.CompareAndSwap(wsConnecting, wsConnected) {
			// Disconnected while the dial was in flight.
			conn.Close()
			return
		}
		h.push(Event{Type: EventConnect, Peer: p})
		go p.readLoop()
		go p.pingLoop()
	}()
	return p, nil
}

func (h *wsHost) Service(timeout time.Duration) (Event, error) {
	return waitEvent(h.events, h.done, timeout)
}

func (h *wsHost) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	peers := make([]*wsPeer, 0, len(h.peers))
	for p := range h.peers {
		if p != nil {
			peers = append(peers, p)
		}
	}
	h.mu.Unlock()

	for _, p := range peers {
		p.Disconnect()
	}
	close(h.done)
	if h.srv != nil {
		return h.srv.Close()
	}
	return nil
}

// push queues an event from a network goroutine, waiting for room.
func (h *wsHost) push(ev Event) {
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

// tryPush queues an event without blocking. It is used on paths the
// servicing goroutine itself may call.
func (h *wsHost) tryPush(ev Event) {
	select {
	case h.events <- ev:
	default:
		h.logger.Warn("event queue full, dropping event", "type", ev.Type.String())
	}
}

func (h *wsHost) forget(p *wsPeer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, p)
}

type wsPeer struct {
	host  *wsHost
	addr  string
	conn  *websocket.Conn // Set before state becomes wsConnected
	state atomic.Int32
	done  chan struct{}

	writeMu sync.Mutex
}

func newWSPeer(h *wsHost, addr string) *wsPeer {
	return &wsPeer{host: h, addr: addr, done: make(chan struct{})}
}

func (p *wsPeer) Addr() string { return p.addr }

func (p *wsPeer) Send(data []byte, mode SendMode) error {
	if p.state.Load() != wsConnected {
		return opError("send", p.addr, ErrSend, ErrClosed)
	}
	cfg := p.host.cfg
	if len(data) > cfg.MaxPacketSize {
		return opError("send", p.addr, ErrSend, ErrTooLarge)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
	if err := p.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return opError("send", p.addr, ErrSend, err)
	}
	return nil
}

func (p *wsPeer) Disconnect() error {
	prev, ok := p.shutdown()
	if !ok {
		return nil
	}
	if prev == wsConnected {
		p.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		p.conn.Close()
	}
	p.host.tryPush(Event{Type: EventDisconnect, Peer: p})
	return nil
}

// shutdown marks the peer closed exactly once. It returns the previous state
// and whether this call did the closing.
func (p *wsPeer) shutdown() (int32, bool) {
	prev := p.state.Swap(wsClosed)
	if prev == wsClosed {
		return prev, false
	}
	close(p.done)
	p.host.forget(p)
	return prev, true
}

func (p *wsPeer) readLoop() {
	cfg := p.host.cfg
	conn := p.conn
	conn.SetReadLimit(int64(cfg.MaxPacketSize))
	conn.SetReadDeadline(time.Now().Add(cfg.PeerTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PeerTimeout))
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			p.fail(err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(cfg.PeerTimeout))
		if mt != websocket.BinaryMessage {
			continue
		}
		p.host.push(Event{Type: EventReceive, Peer: p, Data: data})
	}
}

// fail reports the end of a connection seen by the read loop.
func (p *wsPeer) fail(err error) {
	if _, ok := p.shutdown(); !ok {
		return
	}
	p.conn.Close()

	if isTimeout(err) {
		p.host.push(Event{Type: EventTimeout, Peer: p, Err: ErrTimeout})
		return
	}
	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNormalClosure) {
		p.host.logger.Debug("read error", "peer", p.addr, "error", err)
	}
	p.host.push(Event{Type: EventDisconnect, Peer: p})
}

func (p *wsPeer) pingLoop() {
	cfg := p.host.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.WriteTimeout)); err != nil {
				return
			}
		case <-p.done:
			return
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
