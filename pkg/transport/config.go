package transport

import (
	"log/slog"
	"time"
)

// Config holds settings shared by the transport implementations.
type Config struct {
	// ConnectTimeout bounds a connection attempt.
	// Default: 5 seconds.
	ConnectTimeout time.Duration

	// ConnectRetry is the interval between connect requests while a UDP
	// connection attempt is pending.
	// Default: 250 milliseconds.
	ConnectRetry time.Duration

	// PeerTimeout is how long a peer may stay silent before it is dropped.
	// Default: 10 seconds.
	PeerTimeout time.Duration

	// PingInterval is the keep-alive interval for otherwise idle peers.
	// Default: 1 second.
	PingInterval time.Duration

	// WriteTimeout bounds a single WebSocket write.
	// Default: 5 seconds.
	WriteTimeout time.Duration

	// MaxPacketSize is the largest payload accepted in either direction.
	// Default: 4096 bytes.
	MaxPacketSize int

	// EventQueue is the number of events buffered per host.
	// Default: 1024.
	EventQueue int

	// WebSocketPath is the HTTP path WebSocket hosts serve on.
	// Default: "/ws".
	WebSocketPath string

	// Logger receives transport diagnostics.
	// Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ConnectTimeout: 5 * time.Second,
		ConnectRetry:   250 * time.Millisecond,
		PeerTimeout:    10 * time.Second,
		PingInterval:   time.Second,
		WriteTimeout:   5 * time.Second,
		MaxPacketSize:  4096,
		EventQueue:     1024,
		WebSocketPath:  "/ws",
		Logger:         slog.Default(),
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

// WithPeerTimeout sets the idle peer timeout.
func (c *Config) WithPeerTimeout(d time.Duration) *Config {
	c.PeerTimeout = d
	return c
}

// WithConnectTimeout sets the connection attempt timeout.
func (c *Config) WithConnectTimeout(d time.Duration) *Config {
	c.ConnectTimeout = d
	return c
}

// WithPingInterval sets the keep-alive interval.
func (c *Config) WithPingInterval(d time.Duration) *Config {
	c.PingInterval = d
	return c
}

// WithLogger sets the logger.
func (c *Config) WithLogger(l *slog.Logger) *Config {
	c.Logger = l
	return c
}

// normalize fills zero fields from the defaults.
func (c *Config) normalize() *Config {
	out := c.Clone()
	if out == nil {
		return DefaultConfig()
	}
	d := DefaultConfig()
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = d.ConnectTimeout
	}
	if out.ConnectRetry <= 0 {
		out.ConnectRetry = d.ConnectRetry
	}
	if out.PeerTimeout <= 0 {
		out.PeerTimeout = d.PeerTimeout
	}
	if out.PingInterval <= 0 {
		out.PingInterval = d.PingInterval
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = d.WriteTimeout
	}
	if out.MaxPacketSize <= 0 {
		out.MaxPacketSize = d.MaxPacketSize
	}
	if out.EventQueue <= 0 {
		out.EventQueue = d.EventQueue
	}
	if out.WebSocketPath == "" {
		out.WebSocketPath = d.WebSocketPath
	}
	if out.Logger == nil {
		out.Logger = d.Logger
	}
	return out
}
