package client

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/dbechrd/slimerrt/pkg/chat"
	"github.com/dbechrd/slimerrt/pkg/history"
	"github.com/dbechrd/slimerrt/pkg/protocol"
	"github.com/dbechrd/slimerrt/pkg/telemetry"
	"github.com/dbechrd/slimerrt/pkg/transport"
	"github.com/dbechrd/slimerrt/pkg/world"
	"go.opentelemetry.io/otel/attribute"
)

// World receives the world messages a server sends. *world.State is the
// default implementation.
type World interface {
	ApplyWelcome(*protocol.Welcome) error
	ApplyChunk(*protocol.WorldChunk) error
	ApplySnapshot(*protocol.WorldSnapshot) error
	ApplyGlobalEvent(*protocol.GlobalEvent) error
	ApplyNearbyEvent(*protocol.NearbyEvent) error
	Reset()
}

// inputRecorder is implemented by worlds that keep sent input for
// reconciliation.
type inputRecorder interface {
	RecordInput(protocol.InputSample)
}

// Packet is one raw packet as received from the server.
type Packet = history.Entry[[]byte]

// Client is a connection from a player to a game server.
type Client struct {
	config  *Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	now     func() time.Time

	host     transport.Host
	peer     transport.Peer
	state    State
	addr     string
	username string
	password []byte
	playerID uint16
	deadline time.Time

	chat    *chat.History
	packets *history.Ring[[]byte]
	world   World
	handler dispatcher

	sendBuf [protocol.MaxPacketSize]byte
}

// New creates a disconnected client. A nil config uses DefaultConfig.
func New(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	} else {
		config = config.Clone()
	}
	d := DefaultConfig()
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = d.ConnectTimeout
	}
	if config.PacketHistory <= 0 {
		config.PacketHistory = d.PacketHistory
	}
	if config.ChatHistory <= 0 {
		config.ChatHistory = d.ChatHistory
	}
	if config.Logger == nil {
		config.Logger = d.Logger
	}
	if config.Now == nil {
		config.Now = d.Now
	}
	if config.Network == nil {
		config.Network = transport.NewUDPNetwork(nil)
	}
	if config.World == nil {
		wc := world.DefaultConfig()
		wc.Now = config.Now
		config.World = world.New(wc)
	}

	c := &Client{
		config:  config,
		logger:  config.Logger.With("component", "client", "network", config.Network.Name()),
		metrics: config.Metrics,
		tracer:  config.Tracer,
		now:     config.Now,
		chat:    chat.NewHistory(config.ChatHistory, config.Now),
		packets: history.NewRing[[]byte](config.PacketHistory),
		world:   config.World,
	}
	c.handler = dispatcher{c: c}
	return c
}

// OpenTransport creates the local endpoint used for outbound connections.
// Calling it again on an open client is a no-op.
func (c *Client) OpenTransport() error {
	if c.host != nil {
		return nil
	}
	host, err := c.config.Network.Dial()
	if err != nil {
		if !errors.Is(err, transport.ErrOpen) {
			err = errors.Join(transport.ErrOpen, err)
		}
		return &OpError{Op: "open", Err: err}
	}
	c.host = host
	c.logger.Debug("transport open", "local", host.LocalAddr())
	return nil
}

// Connect starts connecting to host:port. An existing connection is closed
// first. The client stays Connecting until the transport reports the
// connection from Receive, at which point Identify is sent with username and
// password. The password is copied; the caller may clear its own copy.
func (c *Client) Connect(ctx context.Context, host string, port int, username string, password []byte) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	if c.host == nil {
		return &OpError{Op: "connect", Addr: addr, Err: ErrNoTransport}
	}
	if len(username) > protocol.MaxUsernameLength {
		return &OpError{Op: "connect", Addr: addr, Err: protocol.ErrLengthExceeded}
	}
	if len(password) > protocol.MaxPasswordLength {
		return &OpError{Op: "connect", Addr: addr, Err: protocol.ErrLengthExceeded}
	}
	if c.state != StateDisconnected {
		c.Disconnect()
	}

	ctx, span := c.tracer.Start(ctx, "client.connect", attribute.String("addr", addr))
	peer, err := c.host.Connect(ctx, addr)
	if err != nil {
		telemetry.End(span, err)
		c.logger.Warn("connect failed", "addr", addr, "error", err)
		return &OpError{Op: "connect", Addr: addr, Err: err}
	}
	telemetry.End(span, nil)

	c.peer = peer
	c.addr = addr
	c.username = username
	c.password = append([]byte(nil), password...)
	c.deadline = c.now().Add(c.config.ConnectTimeout)
	c.setState(StateConnecting)
	c.logger.Info("connecting", "addr", addr, "username", username)
	return nil
}

// Authenticate sends Identify with the stored username and password. The
// password is wiped afterwards whether or not the send succeeds. Receive
// calls it as soon as the connection is established.
func (c *Client) Authenticate() error {
	defer c.wipePassword()
	if c.state != StateConnected {
		return &OpError{Op: "authenticate", Addr: c.addr, Err: ErrNotConnected}
	}
	msg := &protocol.Identify{Username: c.username, Password: c.password}
	err := c.send(msg, transport.SendReliable)
	msg.Password = nil
	return err
}

// SendChatMessage sends text to the server, shortened to the longest prefix
// that fits a chat message. When not connected nothing is sent; a system line
// is added to the chat history instead and ErrNotConnected is returned.
func (c *Client) SendChatMessage(text string) error {
	if c.state != StateConnected {
		c.chat.PushSystem("Not connected to a server. Message not sent.")
		return &OpError{Op: "send " + protocol.KindChatMessage.String(), Err: ErrNotConnected}
	}
	return c.send(&protocol.ChatMessage{
		Source:   protocol.ChatSourceClient,
		SenderID: c.playerID,
		Username: c.username,
		Text:     protocol.ClampChatText(text),
	}, transport.SendReliable)
}

// SendInput sends a batch of input samples. Samples are also recorded by the
// world when it supports reconciliation.
func (c *Client) SendInput(in *protocol.Input) error {
	if c.state != StateConnected {
		return &OpError{Op: "send " + protocol.KindInput.String(), Err: ErrNotConnected}
	}
	if err := c.send(in, transport.SendUnreliable); err != nil {
		return err
	}
	if rec, ok := c.world.(inputRecorder); ok {
		for _, s := range in.Samples {
			rec.RecordInput(s)
		}
	}
	return nil
}

func (c *Client) send(m protocol.Message, mode transport.SendMode) error {
	op := "send " + m.Kind().String()
	n, err := protocol.SerializeTo(c.sendBuf[:], m)
	if err != nil {
		return &OpError{Op: op, Addr: c.addr, Err: err}
	}
	data := c.sendBuf[:n]
	// The buffer may hold a password.
	defer clear(data)

	if err := c.peer.Send(data, mode); err != nil {
		c.metrics.SendFailed()
		return &OpError{Op: op, Addr: c.addr, Err: err}
	}
	c.metrics.PacketSent(n)
	c.metrics.MessageSent(m.Kind())
	c.logger.Debug("sent", "kind", m.Kind().String(), "bytes", n)
	return nil
}

// Receive handles every transport event that is ready and returns without
// blocking. Malformed packets are logged and dropped; they never stop the
// drain. It also enforces the connect timeout.
func (c *Client) Receive() error {
	if c.host == nil {
		return &OpError{Op: "receive", Err: ErrNoTransport}
	}
	for {
		ev, err := c.host.Service(0)
		if err != nil {
			return &OpError{Op: "receive", Addr: c.addr, Err: err}
		}
		if ev.Type == transport.EventNone {
			break
		}
		c.handleEvent(ev)
	}
	c.checkTimeout()
	return nil
}

func (c *Client) handleEvent(ev transport.Event) {
	if c.peer == nil || ev.Peer != c.peer {
		// Left over from an earlier connection.
		c.logger.Debug("ignoring stale event", "type", ev.Type.String())
		return
	}

	switch ev.Type {
	case transport.EventConnect:
		c.metrics.ConnectionEvent("connect")
		if c.state != StateConnecting {
			return
		}
		c.setState(StateConnected)
		c.chat.PushSystemf("Connected to %s.", c.addr)
		c.logger.Info("connected", "addr", c.addr)
		if err := c.Authenticate(); err != nil {
			c.logger.Error("authenticate failed", "error", err)
		}

	case transport.EventReceive:
		c.handlePacket(ev.Data)

	case transport.EventDisconnect:
		c.metrics.ConnectionEvent("disconnect")
		switch {
		case errors.Is(ev.Err, transport.ErrPeerFull):
			c.chat.PushSystem("Server is full.")
		case c.state == StateConnecting:
			c.chat.PushSystemf("Could not connect to %s.", c.addr)
		default:
			c.chat.PushSystem("Disconnected from server.")
		}
		c.logger.Info("disconnected", "addr", c.addr, "error", ev.Err)
		c.reset()

	case transport.EventTimeout:
		c.metrics.ConnectionEvent("timeout")
		c.timedOut()
	}
}

func (c *Client) handlePacket(data []byte) {
	now := c.now()
	slot := c.packets.Slot(now)
	slot.Value = append(slot.Value, data...)
	c.metrics.PacketReceived(len(data))

	_, span := c.tracer.Start(context.Background(), "client.packet", attribute.Int("bytes", len(data)))
	msg, err := protocol.Deserialize(slot.Value)
	if err != nil {
		telemetry.End(span, err)
		c.metrics.DecodeFailed(protocol.DecodeReason(err))
		c.logger.Warn("dropping malformed packet", "bytes", len(data), "error", err)
		return
	}
	c.metrics.MessageReceived(msg.Kind())
	span.SetAttributes(attribute.String("kind", msg.Kind().String()))

	err = protocol.Dispatch(msg, &c.handler)
	telemetry.End(span, err)
	if err != nil {
		c.logger.Warn("dropping message", "kind", msg.Kind().String(), "error", err)
	}
}

// checkTimeout abandons a connect attempt whose deadline has passed.
func (c *Client) checkTimeout() {
	if c.state != StateConnecting || c.now().Before(c.deadline) {
		return
	}
	if c.peer != nil {
		c.peer.Disconnect()
	}
	c.timedOut()
}

func (c *Client) timedOut() {
	if c.state == StateConnecting {
		c.chat.PushSystem("Connection timed out.")
	} else {
		c.chat.PushSystem("Connection to server timed out.")
	}
	c.logger.Warn("timed out", "addr", c.addr, "state", c.state.String())
	c.setState(StateTimedOut)
	c.reset()
}

// Disconnect closes the connection to the server. It is a no-op when there
// is no connection.
func (c *Client) Disconnect() error {
	if c.state == StateDisconnected || c.peer == nil {
		return nil
	}
	c.setState(StateDisconnecting)
	err := c.peer.Disconnect()
	c.chat.PushSystem("Disconnected.")
	c.logger.Info("disconnected", "addr", c.addr)
	c.reset()
	if err != nil {
		return &OpError{Op: "disconnect", Addr: c.addr, Err: err}
	}
	return nil
}

// Close disconnects and releases the transport.
func (c *Client) Close() error {
	c.Disconnect()
	if c.host == nil {
		return nil
	}
	err := c.host.Close()
	c.host = nil
	return err
}

func (c *Client) reset() {
	c.wipePassword()
	c.peer = nil
	c.username = ""
	c.playerID = 0
	c.deadline = time.Time{}
	c.world.Reset()
	c.setState(StateDisconnected)
}

func (c *Client) wipePassword() {
	clear(c.password)
	c.password = nil
}

func (c *Client) setState(s State) {
	if c.state == s {
		return
	}
	from := c.state
	c.state = s
	c.logger.Debug("state change", "from", from.String(), "to", s.String())
	if c.config.OnStateChange != nil {
		c.config.OnStateChange(from, s)
	}
}

// State returns the connection state.
func (c *Client) State() State { return c.state }

// Chat returns the chat history.
func (c *Client) Chat() *chat.History { return c.chat }

// Packets returns the raw packets received, oldest first.
func (c *Client) Packets() *history.Ring[[]byte] { return c.packets }

// World returns the world collaborator.
func (c *Client) World() World { return c.world }

// PlayerID returns the id assigned by the server, or 0 before Welcome.
func (c *Client) PlayerID() uint16 { return c.playerID }

// ServerAddr returns the address of the current or last server.
func (c *Client) ServerAddr() string { return c.addr }

// dispatcher routes decoded messages. Messages only a server accepts are
// rejected.
type dispatcher struct {
	c *Client
}

func (d *dispatcher) HandleIdentify(m *protocol.Identify) error {
	return protocol.Unexpected(m)
}

func (d *dispatcher) HandleInput(m *protocol.Input) error {
	return protocol.Unexpected(m)
}

func (d *dispatcher) HandleWelcome(m *protocol.Welcome) error {
	if err := d.c.world.ApplyWelcome(m); err != nil {
		return err
	}
	d.c.playerID = m.PlayerID
	if m.Motd != "" {
		d.c.chat.Push(protocol.ChatMessage{Source: protocol.ChatSourceServer, Text: m.Motd})
	}
	d.c.logger.Info("welcomed", "player", m.PlayerID, "roster", len(m.Roster))
	return nil
}

func (d *dispatcher) HandleChatMessage(m *protocol.ChatMessage) error {
	if m.Source == protocol.ChatSourceSystem {
		// System lines never cross the network.
		return protocol.Unexpected(m)
	}
	d.c.chat.Push(*m)
	return nil
}

func (d *dispatcher) HandleWorldChunk(m *protocol.WorldChunk) error {
	return d.c.world.ApplyChunk(m)
}

func (d *dispatcher) HandleWorldSnapshot(m *protocol.WorldSnapshot) error {
	return d.c.world.ApplySnapshot(m)
}

func (d *dispatcher) HandleGlobalEvent(m *protocol.GlobalEvent) error {
	return d.c.world.ApplyGlobalEvent(m)
}

func (d *dispatcher) HandleNearbyEvent(m *protocol.NearbyEvent) error {
	return d.c.world.ApplyNearbyEvent(m)
}
