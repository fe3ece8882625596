// Package config loads the monitor configuration from defaults, a YAML file
// and ROBOMON_ environment variables, in that order of precedence.
package config

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"

	"github.com/SmitUplenchwar2687/Robomon/internal/journal"
	"github.com/SmitUplenchwar2687/Robomon/internal/logging"
)

// EnvPrefix is the prefix of configuration environment variables.
// ROBOMON_SERVER_ADDR maps to server.addr.
const EnvPrefix = "ROBOMON_"

// Journal backends.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the top-level configuration for a monitor session.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Transport TransportConfig `koanf:"transport"`
	Log       logging.Config  `koanf:"log"`
	Journal   JournalConfig   `koanf:"journal"`
}

// ServerConfig holds dashboard HTTP server settings.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// TransportConfig holds the relay connection settings.
type TransportConfig struct {
	URL       string          `koanf:"url"`
	Reconnect ReconnectConfig `koanf:"reconnect"`
	Dial      DialConfig      `koanf:"dial"`
}

// ReconnectConfig bounds automatic reconnection.
type ReconnectConfig struct {
	Attempts int           `koanf:"attempts"`
	Delay    time.Duration `koanf:"delay"`
}

type DialConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// JournalConfig selects where confirmed log entries are kept.
type JournalConfig struct {
	File    string              `koanf:"file"`
	Backend string              `koanf:"backend"`
	Redis   journal.RedisConfig `koanf:"redis"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Transport: TransportConfig{
			URL: "ws://127.0.0.1:8000/ws",
			Reconnect: ReconnectConfig{
				Attempts: 1,
				Delay:    time.Second,
			},
			Dial: DialConfig{
				Timeout: 5 * time.Second,
			},
		},
		Log: logging.Config{
			Level: "info",
		},
		Journal: JournalConfig{
			Backend: BackendMemory,
			Redis: journal.RedisConfig{
				Addr:   "localhost:6379",
				Prefix: journal.DefaultRedisPrefix,
			},
		},
	}
}

// Validate checks that the config is valid.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}

	u, err := url.Parse(c.Transport.URL)
	if err != nil {
		return errors.Wrap(err, "parsing transport.url")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.Errorf("transport.url must use ws or wss, got %q", c.Transport.URL)
	}
	if u.Host == "" {
		return errors.Errorf("transport.url has no host: %q", c.Transport.URL)
	}
	if c.Transport.Reconnect.Attempts < 0 {
		return errors.Errorf("transport.reconnect.attempts must not be negative, got %d", c.Transport.Reconnect.Attempts)
	}
	if c.Transport.Reconnect.Delay < 0 {
		return errors.Errorf("transport.reconnect.delay must not be negative, got %s", c.Transport.Reconnect.Delay)
	}
	if c.Transport.Dial.Timeout <= 0 {
		return errors.Errorf("transport.dial.timeout must be positive, got %s", c.Transport.Dial.Timeout)
	}

	if !logging.ValidLevel(c.Log.Level) {
		return errors.Errorf("unknown log.level %q", c.Log.Level)
	}

	switch c.Journal.Backend {
	case BackendNone, BackendMemory:
	case BackendRedis:
		if c.Journal.Redis.Addr == "" {
			return errors.New("journal.redis.addr is required for the redis backend")
		}
	default:
		return errors.Errorf("unknown journal.backend %q, must be one of: none, memory, redis", c.Journal.Backend)
	}
	return nil
}

// Load merges defaults, the YAML file at path (skipped when empty) and
// ROBOMON_ environment variables. Keys absent from every source keep their
// default values.
func Load(path string) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, errors.Wrapf(err, "loading config file %s", path)
		}
	}

	transform := func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "_", ".")
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", transform), nil); err != nil {
		return cfg, errors.Wrap(err, "loading environment")
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, errors.Wrap(err, "parsing config")
	}
	return cfg, nil
}

// LoadFile reads a YAML config file and merges it with defaults.
// Environment variables are not consulted.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return cfg, errors.Wrapf(err, "loading config file %s", path)
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, errors.Wrap(err, "parsing config")
	}
	return cfg, nil
}

// WriteExample writes an example config file to the given path.
func WriteExample(path string) error {
	example := `server:
  addr: ":8080"

transport:
  url: "ws://127.0.0.1:8000/ws"
  reconnect:
    attempts: 1
    delay: 1s
  dial:
    timeout: 5s

log:
  level: info
  pretty: false

journal:
  # none, memory or redis
  backend: memory
  # exported as JSON on shutdown when set
  file: ""
  redis:
    addr: "localhost:6379"
    password: ""
    db: 0
    prefix: "robomon:"
`
	return os.WriteFile(path, []byte(example), 0o644)
}
