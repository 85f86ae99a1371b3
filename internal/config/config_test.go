package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Server.Network != DefaultNetwork {
		t.Errorf("Server.Network = %q, want %q", cfg.Server.Network, DefaultNetwork)
	}
	if cfg.Client.Host != DefaultHost {
		t.Errorf("Client.Host = %q, want %q", cfg.Client.Host, DefaultHost)
	}
	if cfg.Admin.Addr != DefaultAdminAddr {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, DefaultAdminAddr)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()

	// Test loading non-existent config
	_, err := Load(tmpDir)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}

	configJSON := `{
  "server": {
    "port": 7777,
    "network": "WS",
    "maxPeers": 4,
    "motd": "be nice",
    "world": {"width": 256, "seed": 99}
  },
  "transport": {
    "peerTimeout": "3s",
    "connectTimeout": 2
  },
  "admin": {"addr": ""},
  "log": {"level": "debug", "format": "json"}
}
`
	configPath := filepath.Join(tmpDir, ConfigFileName)
	if err := os.WriteFile(configPath, []byte(configJSON), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want 7777", cfg.Server.Port)
	}
	if cfg.Server.Network != "ws" {
		t.Errorf("Server.Network = %q, want ws", cfg.Server.Network)
	}
	if cfg.Server.MaxPeers != 4 || cfg.Server.Motd != "be nice" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if w := cfg.Server.World; w.Width != 256 || w.Height != DefaultWorldSize || w.Seed != 99 {
		t.Errorf("World = %+v", w)
	}
	if got := cfg.Transport.PeerTimeout.Std(); got != 3*time.Second {
		t.Errorf("PeerTimeout = %v, want 3s", got)
	}
	if got := cfg.Transport.ConnectTimeout.Std(); got != 2*time.Second {
		t.Errorf("ConnectTimeout = %v, want 2s", got)
	}
	if got := cfg.Transport.PingInterval.Std(); got != time.Second {
		t.Errorf("PingInterval = %v, want default 1s", got)
	}
	if cfg.Admin.Addr != "" {
		t.Errorf("Admin.Addr = %q, want disabled", cfg.Admin.Addr)
	}
	if cfg.Client.Port != 7777 {
		t.Errorf("Client.Port = %d, want to follow server port", cfg.Client.Port)
	}
	if cfg.Path() != configPath || cfg.Dir() != tmpDir {
		t.Errorf("Path() = %q, Dir() = %q", cfg.Path(), cfg.Dir())
	}
}

func TestLoadFile_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ConfigFileName)

	if err := os.WriteFile(configPath, []byte("not valid json"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFile(configPath)
	if err == nil {
		t.Fatal("Expected error for invalid JSON")
	}
	if !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("error = %v", err)
	}
}

func TestLoadFile_BadDuration(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(configPath, []byte(`{"transport":{"peerTimeout":"soon"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(configPath); err == nil {
		t.Error("Expected error for bad duration")
	}
}

func TestSave(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ConfigFileName)

	cfg := New()
	cfg.Server.Port = 9000
	cfg.Client.Password = "hunter2"

	// Save should fail without configPath set
	if err := cfg.Save(); err == nil {
		t.Error("Expected error when saving without path")
	}

	if err := cfg.SaveTo(configPath); err != nil {
		t.Fatalf("SaveTo error: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "hunter2") {
		t.Error("password written to disk")
	}
	if !strings.Contains(string(data), `"peerTimeout": "10s"`) {
		t.Errorf("durations should be written as strings:\n%s", data)
	}

	loaded, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if loaded.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", loaded.Server.Port, 9000)
	}

	loaded.Server.Port = 9001
	if err := loaded.Save(); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	reloaded, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if reloaded.Server.Port != 9001 {
		t.Errorf("Server.Port = %d, want %d", reloaded.Server.Port, 9001)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative port", func(c *Config) { c.Server.Port = -1 }, "server.port"},
		{"large port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"client port", func(c *Config) { c.Client.Port = 0 }, "client.port"},
		{"network", func(c *Config) { c.Server.Network = "tcp" }, "server.network"},
		{"max peers", func(c *Config) { c.Server.MaxPeers = 0 }, "server.maxPeers"},
		{"admin addr", func(c *Config) { c.Admin.Addr = "nope" }, "admin.addr"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Validate() = %v, want ErrInvalid", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestServerAddress(t *testing.T) {
	cfg := New()
	if got := cfg.ServerAddress(); got != ":4242" {
		t.Errorf("ServerAddress() = %q", got)
	}
	cfg.Server.Host = "::1"
	if got := cfg.ServerAddress(); got != "[::1]:4242" {
		t.Errorf("ServerAddress() = %q", got)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SLIMERRT_PORT":           "5000",
		"SLIMERRT_NETWORK":        "ws",
		"SLIMERRT_USERNAME":       "Sam",
		"SLIMERRT_PASSWORD":       "hunter2",
		"SLIMERRT_ARCHIVE_BUCKET": "game-logs",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := New()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv error: %v", err)
	}
	if cfg.Server.Port != 5000 || cfg.Server.Network != "ws" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Client.Username != "Sam" || cfg.Client.Password != "hunter2" {
		t.Errorf("Client = %+v", cfg.Client)
	}
	if cfg.Archive.Bucket != "game-logs" {
		t.Errorf("Archive.Bucket = %q", cfg.Archive.Bucket)
	}

	env["SLIMERRT_MAX_PEERS"] = "many"
	if err := cfg.ApplyEnv(lookup); err == nil || !strings.Contains(err.Error(), "SLIMERRT_MAX_PEERS") {
		t.Errorf("ApplyEnv() = %v, want MAX_PEERS error", err)
	}
}

// unsetEnv clears keys for the duration of the test. godotenv writes
// straight to the process environment.
func unsetEnv(t *testing.T, keys ...string) {
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadEnv(t *testing.T) {
	unsetEnv(t, "SLIMERRT_PASSWORD", "SLIMERRT_PORT")
	t.Setenv("SLIMERRT_USERNAME", "Ada")

	tmpDir := t.TempDir()
	dotenv := "SLIMERRT_PASSWORD=hunter2\nSLIMERRT_PORT=5001\nSLIMERRT_USERNAME=Sam\n"
	if err := os.WriteFile(filepath.Join(tmpDir, EnvFileName), []byte(dotenv), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if err := cfg.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv error: %v", err)
	}
	if cfg.Client.Password != "hunter2" || cfg.Server.Port != 5001 {
		t.Errorf("dotenv not applied: %+v %+v", cfg.Client, cfg.Server)
	}
	if cfg.Client.Username != "Ada" {
		t.Errorf("Username = %q, want environment to win over .env", cfg.Client.Username)
	}
}

func TestLoadEnv_NoFile(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.LoadEnv(); err != nil {
		t.Errorf("LoadEnv without .env: %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	cfg := New()
	cfg.Log.Level = "warn"
	l := cfg.NewLogger(os.Stderr)
	if l.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info enabled at warn level")
	}
	if !l.Enabled(context.Background(), slog.LevelError) {
		t.Error("error disabled at warn level")
	}

	if _, err := ParseLevel("DEBUG"); err != nil {
		t.Errorf("ParseLevel(DEBUG) error: %v", err)
	}
}

func TestExists(t *testing.T) {
	tmpDir := t.TempDir()

	if Exists(tmpDir) {
		t.Error("Exists should be false for empty directory")
	}

	configPath := filepath.Join(tmpDir, ConfigFileName)
	if err := os.WriteFile(configPath, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	if !Exists(tmpDir) {
		t.Error("Exists should be true after creating config")
	}
}

func TestFindProjectRoot(t *testing.T) {
	tmpDir := t.TempDir()
	nestedDir := filepath.Join(tmpDir, "a", "b", "c")
	if err := os.MkdirAll(nestedDir, 0755); err != nil {
		t.Fatal(err)
	}

	_, err := FindProjectRoot(nestedDir)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("FindProjectRoot() error = %v, want ErrNotFound", err)
	}

	configPath := filepath.Join(tmpDir, ConfigFileName)
	if err := os.WriteFile(configPath, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	root, err := FindProjectRoot(nestedDir)
	if err != nil {
		t.Fatalf("FindProjectRoot error: %v", err)
	}
	if root != tmpDir {
		t.Errorf("FindProjectRoot = %q, want %q", root, tmpDir)
	}

	root, err = FindProjectRoot(filepath.Join(tmpDir, "a"))
	if err != nil {
		t.Fatalf("FindProjectRoot error: %v", err)
	}
	if root != tmpDir {
		t.Errorf("FindProjectRoot = %q, want %q", root, tmpDir)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	d := New()
	if cfg.Server.Port != d.Server.Port || cfg.Server.Network != d.Server.Network {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Transport != d.Transport {
		t.Errorf("Transport = %+v, want %+v", cfg.Transport, d.Transport)
	}
	if cfg.Log != d.Log {
		t.Errorf("Log = %+v, want %+v", cfg.Log, d.Log)
	}
	if cfg.Admin.Addr != "" {
		t.Errorf("Admin.Addr = %q, empty should stay disabled", cfg.Admin.Addr)
	}
}
