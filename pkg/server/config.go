package server

import (
	"log/slog"
	"time"

	"github.com/dbechrd/slimerrt/pkg/archive"
	"github.com/dbechrd/slimerrt/pkg/protocol"
	"github.com/dbechrd/slimerrt/pkg/telemetry"
	"github.com/dbechrd/slimerrt/pkg/transport"
)

// Simulation receives the inputs players send. The server calls it from the
// goroutine running Listen.
type Simulation interface {
	PlayerInput(playerID uint16, in *protocol.Input)
}

// SimulationFunc adapts a function to a Simulation.
type SimulationFunc func(playerID uint16, in *protocol.Input)

// PlayerInput calls f.
func (f SimulationFunc) PlayerInput(playerID uint16, in *protocol.Input) {
	f(playerID, in)
}

// Authenticator checks a login. A non-nil error refuses it.
type Authenticator func(username string, password []byte) error

// Config holds configuration for the game server.
type Config struct {
	// Network creates the listening host.
	// Default: UDP with transport defaults.
	Network transport.Network

	// Host is the interface to bind. Empty binds every interface.
	// Default: "".
	Host string

	// Limits

	// MaxPeers is the number of players that may be connected at once. It
	// cannot exceed protocol.MaxRosterSize.
	// Default: 8.
	MaxPeers int

	// ServiceTimeout bounds each wait for a transport event, and so how
	// quickly Listen notices that its context is done.
	// Default: 100 milliseconds.
	ServiceTimeout time.Duration

	// ChatHistory is the number of chat lines kept.
	// Default: 256.
	ChatHistory int

	// PacketHistory is the number of received packets kept for inspection.
	// Default: 256.
	PacketHistory int

	// World parameters sent in Welcome

	Motd        string
	WorldWidth  uint16 // Default: 1024
	WorldHeight uint16 // Default: 1024
	Seed        uint32

	// Hooks

	// Simulation receives player input. Nil discards it after recording.
	Simulation Simulation

	// Authenticator checks Identify credentials. Nil accepts every login.
	Authenticator Authenticator

	// Archiver stores the chat history when the socket is closed. Nil
	// disables archiving.
	Archiver *archive.Archiver

	// ArchiveTimeout bounds the archive upload on close.
	// Default: 10 seconds.
	ArchiveTimeout time.Duration

	// Observability

	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer

	// Logger receives server diagnostics.
	// Default: slog.Default().
	Logger *slog.Logger

	// Now returns the current time.
	// Default: time.Now.
	Now func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxPeers:       8,
		ServiceTimeout: 100 * time.Millisecond,
		ChatHistory:    256,
		PacketHistory:  256,
		Motd:           "Welcome to slimerrt!",
		WorldWidth:     1024,
		WorldHeight:    1024,
		ArchiveTimeout: 10 * time.Second,
		Logger:         slog.Default(),
		Now:            time.Now,
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// WithNetwork sets the transport network and returns the config for chaining.
func (c *Config) WithNetwork(n transport.Network) *Config {
	c.Network = n
	return c
}

// WithHost sets the bind interface and returns the config for chaining.
func (c *Config) WithHost(host string) *Config {
	c.Host = host
	return c
}

// WithMaxPeers sets the peer limit and returns the config for chaining.
func (c *Config) WithMaxPeers(n int) *Config {
	c.MaxPeers = n
	return c
}

// WithMotd sets the message of the day and returns the config for chaining.
func (c *Config) WithMotd(motd string) *Config {
	c.Motd = motd
	return c
}

// WithSimulation sets the simulation hook and returns the config for chaining.
func (c *Config) WithSimulation(sim Simulation) *Config {
	c.Simulation = sim
	return c
}

// WithAuthenticator sets the login check and returns the config for chaining.
func (c *Config) WithAuthenticator(auth Authenticator) *Config {
	c.Authenticator = auth
	return c
}

// WithArchiver sets the chat archiver and returns the config for chaining.
func (c *Config) WithArchiver(a *archive.Archiver) *Config {
	c.Archiver = a
	return c
}

// WithMetrics sets the metrics recorder and returns the config for chaining.
func (c *Config) WithMetrics(m *telemetry.Metrics) *Config {
	c.Metrics = m
	return c
}

// WithTracer sets the tracer and returns the config for chaining.
func (c *Config) WithTracer(t *telemetry.Tracer) *Config {
	c.Tracer = t
	return c
}

// WithLogger sets the logger and returns the config for chaining.
func (c *Config) WithLogger(l *slog.Logger) *Config {
	c.Logger = l
	return c
}

// WithClock sets the time source and returns the config for chaining.
func (c *Config) WithClock(now func() time.Time) *Config {
	c.Now = now
	return c
}

// normalize fills zero fields with defaults. It works on a copy.
func (c *Config) normalize() *Config {
	d := DefaultConfig()
	if c == nil {
		c = d
	} else {
		c = c.Clone()
	}
	if c.MaxPeers <= 0 {
		c.MaxPeers = d.MaxPeers
	}
	if c.MaxPeers > protocol.MaxRosterSize {
		c.MaxPeers = protocol.MaxRosterSize
	}
	if c.ServiceTimeout <= 0 {
		c.ServiceTimeout = d.ServiceTimeout
	}
	if c.ChatHistory <= 0 {
		c.ChatHistory = d.ChatHistory
	}
	if c.PacketHistory <= 0 {
		c.PacketHistory = d.PacketHistory
	}
	if c.WorldWidth == 0 {
		c.WorldWidth = d.WorldWidth
	}
	if c.WorldHeight == 0 {
		c.WorldHeight = d.WorldHeight
	}
	if c.ArchiveTimeout <= 0 {
		c.ArchiveTimeout = d.ArchiveTimeout
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	if c.Now == nil {
		c.Now = d.Now
	}
	if c.Network == nil {
		c.Network = transport.NewUDPNetwork(nil)
	}
	c.Motd = protocol.ClampMotd(c.Motd)
	return c
}
