package client

import (
	"log/slog"
	"time"

	"github.com/dbechrd/slimerrt/pkg/telemetry"
	"github.com/dbechrd/slimerrt/pkg/transport"
)

// Config holds client settings.
type Config struct {
	// Network creates the client's transport host.
	// Default: UDP with transport defaults.
	Network transport.Network

	// ConnectTimeout is how long Connecting may last before the attempt is
	// abandoned.
	// Default: 5 seconds.
	ConnectTimeout time.Duration

	// PacketHistory is the number of raw received packets kept for
	// inspection.
	// Default: 256.
	PacketHistory int

	// ChatHistory is the number of chat lines kept.
	// Default: 64.
	ChatHistory int

	// World receives world messages.
	// Default: a new world.State.
	World World

	// OnStateChange, if set, is called on every state transition.
	OnStateChange func(from, to State)

	// Metrics and Tracer are optional.
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer

	// Logger receives client diagnostics.
	// Default: slog.Default().
	Logger *slog.Logger

	// Now returns the current time.
	// Default: time.Now.
	Now func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ConnectTimeout: 5 * time.Second,
		PacketHistory:  256,
		ChatHistory:    64,
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

// WithNetwork sets the transport network.
func (c *Config) WithNetwork(n transport.Network) *Config {
	c.Network = n
	return c
}

// WithConnectTimeout sets the connect timeout.
func (c *Config) WithConnectTimeout(d time.Duration) *Config {
	c.ConnectTimeout = d
	return c
}

// WithWorld sets the world collaborator.
func (c *Config) WithWorld(w World) *Config {
	c.World = w
	return c
}

// WithLogger sets the logger.
func (c *Config) WithLogger(l *slog.Logger) *Config {
	c.Logger = l
	return c
}

// WithMetrics sets the metrics recorder.
func (c *Config) WithMetrics(m *telemetry.Metrics) *Config {
	c.Metrics = m
	return c
}

// WithTracer sets the tracer.
func (c *Config) WithTracer(t *telemetry.Tracer) *Config {
	c.Tracer = t
	return c
}

// WithClock sets the time source.
func (c *Config) WithClock(now func() time.Time) *Config {
	c.Now = now
	return c
}
