package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "slimerrt.json"

	// EnvFileName is the optional dotenv file read next to the config.
	EnvFileName = ".env"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "SLIMERRT_"

	// DefaultPort is the default game server port.
	DefaultPort = 4242

	// DefaultHost is the default server address clients dial.
	DefaultHost = "localhost"

	// DefaultNetwork is the default transport.
	DefaultNetwork = "udp"

	// DefaultMaxPeers is the default number of concurrent players.
	DefaultMaxPeers = 8

	// DefaultMotd is the message of the day sent in Welcome.
	DefaultMotd = "Welcome to slimerrt!"

	// DefaultAdminAddr is the default admin HTTP listen address.
	DefaultAdminAddr = "127.0.0.1:9090"

	// DefaultWorldSize is the default world width and height.
	DefaultWorldSize = 1024
)

// Networks lists the transports the server and client can use.
var Networks = []string{"udp", "ws"}

var (
	// ErrNotFound is returned when no config file exists.
	ErrNotFound = errors.New("config: " + ConfigFileName + " not found")

	// ErrInvalid is returned by Validate.
	ErrInvalid = errors.New("config: invalid configuration")
)

// Config represents the complete slimerrt.json configuration.
type Config struct {
	// Server contains game server configuration.
	Server ServerConfig `json:"server"`

	// Admin contains the admin HTTP surface configuration.
	Admin AdminConfig `json:"admin"`

	// Transport contains timeouts shared by client and server.
	Transport TransportConfig `json:"transport"`

	// Client contains defaults for the connect command.
	Client ClientConfig `json:"client"`

	// Archive contains chat transcript archive configuration.
	Archive ArchiveConfig `json:"archive,omitempty"`

	// Log contains logging configuration.
	Log LogConfig `json:"log"`

	// configPath is the path to the loaded config file.
	configPath string
}

// ServerConfig configures the game server.
type ServerConfig struct {
	// Host is the interface to bind. Empty binds every interface.
	Host string `json:"host,omitempty"`

	// Port is the port to listen on.
	Port int `json:"port"`

	// Network is "udp" or "ws".
	Network string `json:"network"`

	// MaxPeers is the number of players that may be connected at once.
	MaxPeers int `json:"maxPeers"`

	// Motd is sent to every player on join.
	Motd string `json:"motd,omitempty"`

	// ChatHistory is the number of chat lines kept in memory.
	ChatHistory int `json:"chatHistory,omitempty"`

	// World contains the world parameters sent in Welcome.
	World WorldConfig `json:"world"`
}

// WorldConfig contains world parameters.
type WorldConfig struct {
	Width  uint16 `json:"width"`
	Height uint16 `json:"height"`
	Seed   uint32 `json:"seed,omitempty"`
}

// AdminConfig configures the admin HTTP surface.
type AdminConfig struct {
	// Addr is the listen address. Empty disables the admin server.
	Addr string `json:"addr"`
}

// TransportConfig contains transport timeouts.
type TransportConfig struct {
	ConnectTimeout Duration `json:"connectTimeout"`
	PeerTimeout    Duration `json:"peerTimeout"`
	PingInterval   Duration `json:"pingInterval"`
	MaxPacketSize  int      `json:"maxPacketSize,omitempty"`
}

// ClientConfig contains defaults for the connect command.
type ClientConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`

	// Password is never written to disk. It comes from SLIMERRT_PASSWORD.
	Password string `json:"-"`
}

// ArchiveConfig configures S3 transcript archiving. An empty Bucket
// disables archiving.
type ArchiveConfig struct {
	Bucket   string   `json:"bucket,omitempty"`
	Prefix   string   `json:"prefix,omitempty"`
	Region   string   `json:"region,omitempty"`
	Endpoint string   `json:"endpoint,omitempty"`
	Timeout  Duration `json:"timeout,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level"`

	// Format is "text" or "json".
	Format string `json:"format"`
}

// Duration is a time.Duration that reads and writes as a string such as
// "250ms" or "10s".
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler. Bare numbers are read as
// seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case float64:
		*d = Duration(v * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", data)
	}
	return nil
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        DefaultPort,
			Network:     DefaultNetwork,
			MaxPeers:    DefaultMaxPeers,
			Motd:        DefaultMotd,
			ChatHistory: 256,
			World: WorldConfig{
				Width:  DefaultWorldSize,
				Height: DefaultWorldSize,
			},
		},
		Admin: AdminConfig{
			Addr: DefaultAdminAddr,
		},
		Transport: TransportConfig{
			ConnectTimeout: Duration(5 * time.Second),
			PeerTimeout:    Duration(10 * time.Second),
			PingInterval:   Duration(time.Second),
			MaxPacketSize:  4096,
		},
		Client: ClientConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Archive: ArchiveConfig{
			Prefix:  "slimerrt/",
			Timeout: Duration(10 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for slimerrt.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w in %s", ErrNotFound, filepath.Dir(path))
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := New()
	// Unset so applyDefaults can follow the server port.
	cfg.Client.Port = 0
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.New("config: no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	d := New()

	// Server
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.Network == "" {
		c.Server.Network = d.Server.Network
	}
	c.Server.Network = strings.ToLower(c.Server.Network)
	if c.Server.MaxPeers == 0 {
		c.Server.MaxPeers = d.Server.MaxPeers
	}
	if c.Server.ChatHistory == 0 {
		c.Server.ChatHistory = d.Server.ChatHistory
	}
	if c.Server.World.Width == 0 {
		c.Server.World.Width = d.Server.World.Width
	}
	if c.Server.World.Height == 0 {
		c.Server.World.Height = d.Server.World.Height
	}

	// Transport
	if c.Transport.ConnectTimeout <= 0 {
		c.Transport.ConnectTimeout = d.Transport.ConnectTimeout
	}
	if c.Transport.PeerTimeout <= 0 {
		c.Transport.PeerTimeout = d.Transport.PeerTimeout
	}
	if c.Transport.PingInterval <= 0 {
		c.Transport.PingInterval = d.Transport.PingInterval
	}
	if c.Transport.MaxPacketSize == 0 {
		c.Transport.MaxPacketSize = d.Transport.MaxPacketSize
	}

	// Client follows the server unless set
	if c.Client.Host == "" {
		c.Client.Host = d.Client.Host
	}
	if c.Client.Port == 0 {
		c.Client.Port = c.Server.Port
	}

	// Archive
	if c.Archive.Timeout <= 0 {
		c.Archive.Timeout = d.Archive.Timeout
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, errors.New("server.port must be between 0 and 65535"))
	}
	if c.Client.Port < 1 || c.Client.Port > 65535 {
		errs = append(errs, errors.New("client.port must be between 1 and 65535"))
	}
	if !isNetwork(c.Server.Network) {
		errs = append(errs, fmt.Errorf("server.network %q must be one of %s",
			c.Server.Network, strings.Join(Networks, ", ")))
	}
	if c.Server.MaxPeers < 1 {
		errs = append(errs, errors.New("server.maxPeers must be positive"))
	}
	if c.Admin.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Admin.Addr); err != nil {
			errs = append(errs, fmt.Errorf("admin.addr: %w", err))
		}
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func isNetwork(name string) bool {
	for _, n := range Networks {
		if n == name {
			return true
		}
	}
	return false
}

// ServerAddress returns the address the game server binds.
func (c *Config) ServerAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// LoadEnv reads the dotenv file next to the config, if there is one, and
// applies SLIMERRT_* overrides from the environment. Variables already set
// in the environment win over the file.
func (c *Config) LoadEnv() error {
	path := filepath.Join(c.Dir(), EnvFileName)
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return c.ApplyEnv(os.LookupEnv)
}

// ApplyEnv applies SLIMERRT_* overrides read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("HOST", &c.Server.Host)
	str("NETWORK", &c.Server.Network)
	str("MOTD", &c.Server.Motd)
	str("ADMIN_ADDR", &c.Admin.Addr)
	str("SERVER", &c.Client.Host)
	str("USERNAME", &c.Client.Username)
	str("PASSWORD", &c.Client.Password)
	str("ARCHIVE_BUCKET", &c.Archive.Bucket)
	str("ARCHIVE_PREFIX", &c.Archive.Prefix)
	str("ARCHIVE_REGION", &c.Archive.Region)
	str("ARCHIVE_ENDPOINT", &c.Archive.Endpoint)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(
		num("PORT", &c.Server.Port),
		num("MAX_PEERS", &c.Server.MaxPeers),
		num("CLIENT_PORT", &c.Client.Port),
	)
}

// ParseLevel parses a log level name.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", name, err)
	}
	return level, nil
}

// NewLogger builds the process logger described by the log section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindProjectRoot walks up directories to find the directory containing
// slimerrt.json.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w in %s or any parent directory", ErrNotFound, startDir)
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the nearest slimerrt.json at
// or above the working directory. When there is none it returns the
// defaults rooted at the working directory.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if errors.Is(err, ErrNotFound) {
		cfg := New()
		cfg.configPath = filepath.Join(wd, ConfigFileName)
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	return Load(root)
}
