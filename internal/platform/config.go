package platform

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the config file.
const (
	EnvAddr      = "SHELF_ADDR"
	EnvDataDir   = "SHELF_DATA_DIR"
	EnvServerURL = "SHELF_SERVER_URL"
)

const (
	DefaultDataDir   = "data"
	DefaultServerURL = "ws://" + DefaultAddr + "/ws"
)

// Duration is a time.Duration written as a Go duration string ("1s",
// "250ms") in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the content of shelf.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
}

// ServerConfig configures `shelf serve`.
type ServerConfig struct {
	Addr              string   `yaml:"addr"`
	DataDir           string   `yaml:"data_dir"`
	SaveInterval      Duration `yaml:"save_interval,omitempty"`
	FlushGrace        Duration `yaml:"flush_grace,omitempty"`
	MinUpdateInterval Duration `yaml:"min_update_interval,omitempty"`
	IdleTimeout       Duration `yaml:"idle_timeout,omitempty"`
	SendBuffer        int      `yaml:"send_buffer,omitempty"`
	AllowedOrigins    []string `yaml:"allowed_origins,omitempty"`
	Watch             bool     `yaml:"watch"`
}

// ClientConfig configures the client commands.
type ClientConfig struct {
	ServerURL      string   `yaml:"server_url"`
	DataDir        string   `yaml:"data_dir,omitempty"`
	Heartbeat      Duration `yaml:"heartbeat,omitempty"`
	ReconnectDelay Duration `yaml:"reconnect_delay,omitempty"`
	Cooldown       Duration `yaml:"cooldown,omitempty"`
}

// DefaultConfig returns the configuration used when no file is found.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{Addr: DefaultAddr, DataDir: DefaultDataDir},
		Client: ClientConfig{ServerURL: DefaultServerURL},
	}
}

// LoadConfig reads the config file at path on top of the defaults, then
// applies environment overrides. An empty path searches for shelf.yaml from
// the working directory upwards; not finding one is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return cfg, err
		}
		found, err := FindConfig(wd)
		if err == nil {
			path = found
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := decodeConfig(data, &cfg); err != nil {
			return cfg, fmt.Errorf("invalid config %s: %w", path, err)
		}
		cfg.resolve(filepath.Dir(path))
	}

	cfg.applyEnv(os.LookupEnv)
	return cfg, nil
}

func decodeConfig(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// resolve makes relative data dirs relative to the config file.
func (c *Config) resolve(base string) {
	if c.Server.DataDir != "" && !filepath.IsAbs(c.Server.DataDir) {
		c.Server.DataDir = filepath.Join(base, c.Server.DataDir)
	}
	if c.Client.DataDir != "" && !filepath.IsAbs(c.Client.DataDir) {
		c.Client.DataDir = filepath.Join(base, c.Client.DataDir)
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAddr); ok && v != "" {
		c.Server.Addr = v
	}
	if v, ok := lookup(EnvDataDir); ok && v != "" {
		c.Server.DataDir = v
	}
	if v, ok := lookup(EnvServerURL); ok && v != "" {
		c.Client.ServerURL = v
	}
}

// ServerOptions converts the server section into options.
func (c Config) ServerOptions() []Option {
	s := c.Server
	return []Option{
		WithAddr(s.Addr),
		WithSaveInterval(time.Duration(s.SaveInterval)),
		WithFlushGrace(time.Duration(s.FlushGrace)),
		WithMinUpdateInterval(time.Duration(s.MinUpdateInterval)),
		WithIdleTimeout(time.Duration(s.IdleTimeout)),
		WithSendBuffer(s.SendBuffer),
		WithAllowedOrigins(s.AllowedOrigins...),
		WithWatch(s.Watch),
	}
}

// ClientOptions converts the client section into options.
func (c Config) ClientOptions() []Option {
	s := c.Client
	return []Option{
		WithHeartbeat(time.Duration(s.Heartbeat)),
		WithReconnectDelay(time.Duration(s.ReconnectDelay)),
		WithCooldown(time.Duration(s.Cooldown)),
	}
}

// ClientDataDir returns where the client keeps its cache: the configured
// directory, or shelf under the user cache dir.
func (c Config) ClientDataDir() (string, error) {
	if c.Client.DataDir != "" {
		return c.Client.DataDir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("no client data dir configured: %w", err)
	}
	return filepath.Join(base, "shelf"), nil
}
