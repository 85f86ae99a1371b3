package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/dbechrd/slimerrt/pkg/chat"
	"github.com/dbechrd/slimerrt/pkg/history"
	"github.com/dbechrd/slimerrt/pkg/protocol"
	"github.com/dbechrd/slimerrt/pkg/telemetry"
	"github.com/dbechrd/slimerrt/pkg/transport"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ticker is implemented by simulations that report the current world tick.
type ticker interface {
	Tick() uint32
}

// Server accepts player connections and relays chat between them.
type Server struct {
	config   *Config
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	now      func() time.Time
	id       uuid.UUID
	started  time.Time
	counters counters

	mu          sync.RWMutex
	host        transport.Host
	peers       map[string]*peer // Keyed by transport address
	peakPeers   int
	chat        *chat.History
	packets     *history.Ring[ReceivedPacket]
	lastArchive string
}

// New creates a server. A nil config uses DefaultConfig. The transport is
// not opened until OpenTransport.
func New(config *Config) *Server {
	config = config.normalize()
	id := uuid.New()
	return &Server{
		config:  config,
		logger:  config.Logger.With("component", "server", "instance", id.String()),
		metrics: config.Metrics,
		tracer:  config.Tracer,
		now:     config.Now,
		id:      id,
		started: config.Now(),
		peers:   make(map[string]*peer),
		chat:    chat.NewHistory(config.ChatHistory, config.Now),
		packets: history.NewRing[ReceivedPacket](config.PacketHistory),
	}
}

// ID returns the identifier of this server instance.
func (s *Server) ID() uuid.UUID { return s.id }

// Config returns the server configuration.
func (s *Server) Config() *Config { return s.config }

// OpenTransport binds the configured network on port. Port 0 picks a free
// port; Addr reports it.
func (s *Server) OpenTransport(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(port))
	if s.host != nil {
		return &PeerError{Addr: addr, Op: "open", Err: ErrAlreadyOpen}
	}

	host, err := s.config.Network.Listen(addr, s.config.MaxPeers)
	if err != nil {
		s.logger.Error("open transport failed", "addr", addr, "error", err)
		return &PeerError{Addr: addr, Op: "open", Err: err}
	}
	s.host = host
	s.logger.Info("transport open",
		"network", s.config.Network.Name(),
		"addr", host.LocalAddr(),
		"max_peers", s.config.MaxPeers)
	return nil
}

// Addr returns the address the transport is bound to, or "" if it is not
// open.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.host == nil {
		return ""
	}
	return s.host.LocalAddr()
}

// Listen services the transport until ctx is done or CloseSocket is called.
// Both end the loop cleanly and return nil.
func (s *Server) Listen(ctx context.Context) error {
	s.mu.RLock()
	host := s.host
	s.mu.RUnlock()
	if host == nil {
		return &PeerError{Op: "listen", Err: ErrNotOpen}
	}

	s.logger.Info("listening", "addr", host.LocalAddr())
	for {
		if ctx.Err() != nil {
			s.logger.Info("listen stopped", "reason", context.Cause(ctx))
			return nil
		}
		ev, err := host.Service(s.config.ServiceTimeout)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				s.logger.Info("listen stopped", "reason", "socket closed")
				return nil
			}
			return &PeerError{Op: "listen", Err: err}
		}
		s.handleEvent(ctx, ev)
	}
}

func (s *Server) handleEvent(ctx context.Context, ev transport.Event) {
	switch ev.Type {
	case transport.EventConnect:
		s.handleConnect(ev.Peer)
	case transport.EventReceive:
		s.handlePacket(ctx, ev.Peer, ev.Data)
	case transport.EventDisconnect:
		s.handleDrop(ev.Peer, "disconnect", ev.Err)
	case transport.EventTimeout:
		s.handleDrop(ev.Peer, "timeout", ev.Err)
	}
}

func (s *Server) handleConnect(conn transport.Peer) {
	addr := conn.Addr()
	now := s.now()

	s.mu.Lock()
	if old := s.peers[addr]; old != nil {
		s.mu.Unlock()
		if old.conn == conn {
			return
		}
		// Same address, new connection: the old one is gone.
		s.logger.Info("peer reconnected", "peer", addr, "player", old.id)
		s.handleDrop(old.conn, "disconnect", nil)
		if err := old.conn.Disconnect(); err != nil {
			s.logger.Warn("disconnect stale peer failed", "peer", addr, "error", err)
		}
		s.mu.Lock()
	}
	if len(s.peers) >= s.config.MaxPeers {
		s.mu.Unlock()
		s.refuse(conn)
		return
	}
	p := &peer{
		conn:       conn,
		addr:       addr,
		id:         s.allocID(),
		firstSeen:  now,
		lastActive: now,
	}
	s.peers[addr] = p
	n := len(s.peers)
	s.peakPeers = max(s.peakPeers, n)
	s.mu.Unlock()

	s.counters.totalPeers.Add(1)
	s.metrics.ConnectionEvent("connect")
	s.metrics.SetPeers(n)
	s.logger.Info("peer connected", "peer", addr, "player", p.id, "peers", n)
}

// refuse turns away a connection the transport accepted while every player
// slot is taken.
func (s *Server) refuse(conn transport.Peer) {
	s.counters.refused.Add(1)
	s.metrics.ConnectionEvent("refused")
	s.logger.Warn("refusing peer", "peer", conn.Addr(), "max", s.config.MaxPeers, "error", ErrPeerFull)

	data, err := protocol.Serialize(&protocol.ChatMessage{
		Source: protocol.ChatSourceServer,
		Text:   "Server is full.",
	})
	if err == nil {
		err = conn.Send(data, transport.SendReliable)
	}
	if err != nil {
		s.logger.Warn("refusal notice failed", "peer", conn.Addr(), "error", err)
	}
	if err := conn.Disconnect(); err != nil {
		s.logger.Warn("disconnect refused peer failed", "peer", conn.Addr(), "error", err)
	}
}

// allocID returns the lowest player id not in use. s.mu must be held.
func (s *Server) allocID() uint16 {
	used := make(map[uint16]bool, len(s.peers))
	for _, p := range s.peers {
		used[p.id] = true
	}
	id := uint16(1)
	for used[id] {
		id++
	}
	return id
}

// lookup returns the record for conn if it is still current.
func (s *Server) lookup(conn transport.Peer) *peer {
	p := s.peers[conn.Addr()]
	if p == nil || p.conn != conn {
		return nil
	}
	return p
}

func (s *Server) handlePacket(ctx context.Context, conn transport.Peer, data []byte) {
	now := s.now()
	s.counters.received(len(data))
	s.metrics.PacketReceived(len(data))

	s.mu.Lock()
	p := s.lookup(conn)
	if p == nil {
		s.mu.Unlock()
		s.logger.Debug("dropping packet from unknown peer", "peer", conn.Addr(), "bytes", len(data))
		return
	}
	p.lastActive = now
	s.packets.Push(ReceivedPacket{Addr: p.addr, Data: slices.Clone(data)}, now)
	first := !p.welcomed
	p.welcomed = true
	s.mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "server.packet",
		attribute.String("peer", p.addr),
		attribute.Int("bytes", len(data)))

	if first {
		s.welcome(ctx, p)
	}

	msg, err := protocol.Deserialize(data)
	if err != nil {
		telemetry.End(span, err)
		s.counters.decodeErrors.Add(1)
		s.metrics.DecodeFailed(protocol.DecodeReason(err))
		s.logger.Warn("dropping malformed packet", "peer", p.addr, "bytes", len(data), "error", err)
		return
	}
	kind := msg.Kind()
	span.SetAttributes(attribute.String("kind", kind.String()))
	s.metrics.MessageReceived(kind)
	s.logger.Debug("received", "peer", p.addr, "kind", kind.String(), "bytes", len(data))

	err = protocol.Dispatch(msg, &peerHandler{s: s, p: p, ctx: ctx})
	telemetry.End(span, err)
	if err != nil {
		s.counters.handlerErrors.Add(1)
		s.logger.Warn("dropping message", "peer", p.addr, "kind", kind.String(), "error", err)
	}
}

// welcome sends the welcome basket: Welcome to the new peer, then a server
// chat line announcing the join to everyone.
func (s *Server) welcome(ctx context.Context, p *peer) {
	var tick uint32
	if t, ok := s.config.Simulation.(ticker); ok {
		tick = t.Tick()
	}
	w := &protocol.Welcome{
		PlayerID:    p.id,
		WorldWidth:  s.config.WorldWidth,
		WorldHeight: s.config.WorldHeight,
		Seed:        s.config.Seed,
		Tick:        tick,
		Motd:        s.config.Motd,
		Roster:      s.roster(),
	}
	if err := s.Send(p.addr, w); err != nil {
		s.logger.Warn("welcome failed", "peer", p.addr, "error", err)
	}
	s.announce(ctx, fmt.Sprintf("%s has joined.", p.displayName()))
}

// roster lists identified players by id.
func (s *Server) roster() []protocol.RosterEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []protocol.RosterEntry
	for _, p := range s.peers {
		if p.username != "" {
			out = append(out, protocol.RosterEntry{PlayerID: p.id, Username: p.username})
		}
	}
	slices.SortFunc(out, func(a, b protocol.RosterEntry) int { return int(a.PlayerID) - int(b.PlayerID) })
	if len(out) > protocol.MaxRosterSize {
		out = out[:protocol.MaxRosterSize]
	}
	return out
}

// announce records a server chat line and sends it to every peer.
func (s *Server) announce(ctx context.Context, text string) {
	line := protocol.ChatMessage{Source: protocol.ChatSourceServer, Text: protocol.ClampChatText(text)}
	s.mu.Lock()
	s.chat.Push(line)
	s.mu.Unlock()
	s.broadcastMsg(ctx, &line)
}

func (s *Server) handleDrop(conn transport.Peer, reason string, cause error) {
	s.mu.Lock()
	p := s.lookup(conn)
	if p == nil {
		s.mu.Unlock()
		return
	}
	delete(s.peers, p.addr)
	n := len(s.peers)
	s.mu.Unlock()

	s.metrics.ConnectionEvent(reason)
	s.metrics.SetPeers(n)
	s.logger.Info("peer "+reason, "peer", p.addr, "player", p.id, "peers", n, "error", cause)

	ctx := context.Background()
	if p.username != "" {
		s.broadcastMsg(ctx, &protocol.GlobalEvent{
			Type:     protocol.GlobalEventLeave,
			PlayerID: p.id,
			Username: p.username,
		})
	}
	if p.welcomed {
		verb := "left"
		if reason == "timeout" {
			verb = "timed out"
		}
		s.announce(ctx, fmt.Sprintf("%s has %s.", p.displayName(), verb))
	}
}

// Send encodes m and sends it reliably to the peer at addr.
func (s *Server) Send(addr string, m protocol.Message) error {
	s.mu.RLock()
	p := s.peers[addr]
	s.mu.RUnlock()
	if p == nil {
		return &PeerError{Addr: addr, Op: "send", Err: ErrUnknownPeer}
	}
	data, err := protocol.Serialize(m)
	if err != nil {
		return &PeerError{Addr: addr, Op: "send", Err: err}
	}
	if err := p.conn.Send(data, transport.SendReliable); err != nil {
		s.counters.sendErrors.Add(1)
		s.metrics.SendFailed()
		return &PeerError{Addr: addr, Op: "send " + m.Kind().String(), Err: err}
	}
	s.counters.sent(len(data))
	s.metrics.PacketSent(len(data))
	s.metrics.MessageSent(m.Kind())
	return nil
}

// BroadcastMsg encodes m once and sends it to every connected peer. See
// BroadcastRaw.
func (s *Server) BroadcastMsg(m protocol.Message) error {
	return s.broadcastMsg(context.Background(), m)
}

func (s *Server) broadcastMsg(ctx context.Context, m protocol.Message) error {
	data, err := protocol.Serialize(m)
	if err != nil {
		return &PeerError{Op: "broadcast", Err: err}
	}
	return s.broadcast(ctx, data, m.Kind())
}

// BroadcastRaw sends an already encoded packet to every connected peer. A
// failed send does not stop the others; the returned error joins every
// failure as a *PeerError.
func (s *Server) BroadcastRaw(data []byte) error {
	return s.broadcast(context.Background(), data, protocol.PeekKind(data))
}

func (s *Server) broadcast(ctx context.Context, data []byte, kind protocol.Kind) error {
	start := time.Now()
	s.mu.RLock()
	if s.host == nil {
		s.mu.RUnlock()
		return &PeerError{Op: "broadcast", Err: ErrNotOpen}
	}
	targets := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		targets = append(targets, p)
	}
	s.mu.RUnlock()

	_, span := s.tracer.Start(ctx, "server.broadcast",
		attribute.String("kind", kind.String()),
		attribute.Int("peers", len(targets)),
		attribute.Int("bytes", len(data)))

	var errs []error
	for _, p := range targets {
		if err := p.conn.Send(data, transport.SendReliable); err != nil {
			s.counters.sendErrors.Add(1)
			s.metrics.SendFailed()
			s.logger.Warn("broadcast send failed", "peer", p.addr, "kind", kind.String(), "error", err)
			errs = append(errs, &PeerError{Addr: p.addr, Op: "broadcast", Err: err})
			continue
		}
		s.counters.sent(len(data))
		s.metrics.PacketSent(len(data))
		s.metrics.MessageSent(kind)
	}
	s.metrics.ObserveBroadcast(time.Since(start))

	err := errors.Join(errs...)
	telemetry.End(span, err)
	return err
}

// CloseSocket disconnects every peer, archives the chat history when an
// archiver is configured, and releases the transport. Listen returns once
// the transport is closed.
func (s *Server) CloseSocket() error {
	s.mu.Lock()
	host := s.host
	if host == nil {
		s.mu.Unlock()
		return &PeerError{Op: "close", Err: ErrNotOpen}
	}
	s.host = nil
	peers := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	clear(s.peers)
	lines := s.chat.Lines()
	s.chat.Reset()
	s.packets.Reset()
	s.mu.Unlock()

	var errs []error
	for _, p := range peers {
		if err := p.conn.Disconnect(); err != nil {
			errs = append(errs, &PeerError{Addr: p.addr, Op: "disconnect", Err: err})
		}
	}
	if err := host.Close(); err != nil {
		errs = append(errs, &PeerError{Op: "close", Err: err})
	}
	s.metrics.SetPeers(0)

	if a := s.config.Archiver; a != nil && len(lines) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.ArchiveTimeout)
		key, err := a.SaveChat(ctx, lines)
		cancel()
		if err != nil {
			s.logger.Error("archive chat failed", "lines", len(lines), "error", err)
			errs = append(errs, &PeerError{Op: "archive", Err: err})
		} else {
			s.mu.Lock()
			s.lastArchive = key
			s.mu.Unlock()
			s.logger.Info("chat archived", "key", key, "lines", len(lines))
		}
	}

	s.logger.Info("socket closed", "peers", len(peers))
	return errors.Join(errs...)
}

// LastArchive returns the key of the most recent chat archive, or "".
func (s *Server) LastArchive() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastArchive
}

// Peers returns the connected peers ordered by player id.
func (s *Server) Peers() []PeerInfo {
	s.mu.RLock()
	out := make([]PeerInfo, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p.info())
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b PeerInfo) int { return int(a.PlayerID) - int(b.PlayerID) })
	return out
}

// ChatTranscript returns the chat history, oldest first.
func (s *Server) ChatTranscript() []chat.Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chat.Lines()
}

// Packets returns the most recently received packets, oldest first.
func (s *Server) Packets() []history.Entry[ReceivedPacket] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]history.Entry[ReceivedPacket], 0, s.packets.Count())
	s.packets.Each(func(_ int, e *history.Entry[ReceivedPacket]) bool {
		out = append(out, *e)
		return true
	})
	return out
}

// peerHandler applies one peer's messages.
type peerHandler struct {
	s   *Server
	p   *peer
	ctx context.Context
}

func (h *peerHandler) HandleIdentify(m *protocol.Identify) error {
	defer clear(m.Password)
	s, p := h.s, h.p
	if p.username != "" {
		return ErrAlreadyIdentified
	}
	if s.config.Authenticator != nil {
		if err := s.config.Authenticator(m.Username, m.Password); err != nil {
			if err := s.Send(p.addr, &protocol.ChatMessage{Source: protocol.ChatSourceServer, Text: "Login refused."}); err != nil {
				s.logger.Warn("login refusal notice failed", "peer", p.addr, "error", err)
			}
			if err := p.conn.Disconnect(); err != nil {
				s.logger.Warn("disconnect refused login failed", "peer", p.addr, "error", err)
			}
			return fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}
	}

	name := m.Username
	if name == "" {
		name = fmt.Sprintf("Player%d", p.id)
	}
	s.mu.Lock()
	p.username = name
	s.mu.Unlock()
	s.logger.Info("player identified", "peer", p.addr, "player", p.id, "username", name)

	s.broadcastMsg(h.ctx, &protocol.GlobalEvent{
		Type:     protocol.GlobalEventJoin,
		PlayerID: p.id,
		Username: name,
	})
	return nil
}

func (h *peerHandler) HandleChatMessage(m *protocol.ChatMessage) error {
	s, p := h.s, h.p
	if p.username == "" {
		return ErrNotIdentified
	}
	// The sender's identity comes from the peer record, never the packet.
	line := protocol.ChatMessage{
		Source:   protocol.ChatSourceClient,
		SenderID: p.id,
		Username: p.username,
		Text:     m.Text,
	}
	s.mu.Lock()
	s.chat.Push(line)
	s.mu.Unlock()
	s.counters.chatRelayed.Add(1)
	s.metrics.ChatRelayed()
	s.logger.Debug("chat", "player", p.id, "username", p.username, "bytes", len(line.Text))

	s.broadcastMsg(h.ctx, &line)
	return nil
}

func (h *peerHandler) HandleInput(m *protocol.Input) error {
	s, p := h.s, h.p
	in := protocol.Input{Samples: slices.Clone(m.Samples)}
	s.mu.Lock()
	p.lastInput = in
	s.mu.Unlock()
	if s.config.Simulation != nil {
		s.config.Simulation.PlayerInput(p.id, &protocol.Input{Samples: slices.Clone(in.Samples)})
	}
	return nil
}

func (h *peerHandler) HandleWelcome(m *protocol.Welcome) error {
	return protocol.Unexpected(m)
}

func (h *peerHandler) HandleWorldChunk(m *protocol.WorldChunk) error {
	return protocol.Unexpected(m)
}

func (h *peerHandler) HandleWorldSnapshot(m *protocol.WorldSnapshot) error {
	return protocol.Unexpected(m)
}

func (h *peerHandler) HandleGlobalEvent(m *protocol.GlobalEvent) error {
	return protocol.Unexpected(m)
}

func (h *peerHandler) HandleNearbyEvent(m *protocol.NearbyEvent) error {
	return protocol.Unexpected(m)
}
