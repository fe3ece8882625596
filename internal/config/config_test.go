package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.Addr != ":8080" {
		t.Errorf("default addr = %q, want %q", cfg.Server.Addr, ":8080")
	}
	if cfg.Transport.Reconnect.Attempts != 1 {
		t.Errorf("default reconnect attempts = %d, want 1", cfg.Transport.Reconnect.Attempts)
	}
	if cfg.Journal.Backend != BackendMemory {
		t.Errorf("default journal backend = %q, want memory", cfg.Journal.Backend)
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config should be valid, got %v", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"http url", func(c *Config) { c.Transport.URL = "http://127.0.0.1:8000" }},
		{"no host", func(c *Config) { c.Transport.URL = "ws:///ws" }},
		{"negative attempts", func(c *Config) { c.Transport.Reconnect.Attempts = -1 }},
		{"negative delay", func(c *Config) { c.Transport.Reconnect.Delay = -time.Second }},
		{"zero dial timeout", func(c *Config) { c.Transport.Dial.Timeout = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad backend", func(c *Config) { c.Journal.Backend = "postgres" }},
		{"redis without addr", func(c *Config) {
			c.Journal.Backend = BackendRedis
			c.Journal.Redis.Addr = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidate_AllBackends(t *testing.T) {
	for _, b := range []string{BackendNone, BackendMemory, BackendRedis} {
		cfg := Default()
		cfg.Journal.Backend = b
		if err := cfg.Validate(); err != nil {
			t.Errorf("backend %q should be valid, got %v", b, err)
		}
	}
}

func TestLoadFile_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "robomon.yaml")
	content := `transport:
  url: "wss://relay.example.com/ws"
  reconnect:
    delay: 250ms
journal:
  backend: redis
  redis:
    db: 2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transport.URL != "wss://relay.example.com/ws" {
		t.Errorf("url = %q", cfg.Transport.URL)
	}
	if cfg.Transport.Reconnect.Delay != 250*time.Millisecond {
		t.Errorf("delay = %s, want 250ms", cfg.Transport.Reconnect.Delay)
	}
	if cfg.Transport.Reconnect.Attempts != 1 {
		t.Errorf("attempts = %d, should keep default 1", cfg.Transport.Reconnect.Attempts)
	}
	if cfg.Journal.Backend != BackendRedis || cfg.Journal.Redis.DB != 2 {
		t.Errorf("journal = %+v", cfg.Journal)
	}
	if cfg.Journal.Redis.Addr != "localhost:6379" {
		t.Errorf("redis addr = %q, should keep default", cfg.Journal.Redis.Addr)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q, should keep default", cfg.Server.Addr)
	}
}

func TestLoadFile_NotFound(t *testing.T) {
	if _, err := LoadFile("/nonexistent/robomon.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFile_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("server: [unclosed"), 0o644)

	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "robomon.yaml")
	os.WriteFile(path, []byte("server:\n  addr: \":7000\"\nlog:\n  level: debug\n"), 0o644)

	t.Setenv("ROBOMON_SERVER_ADDR", ":9999")
	t.Setenv("ROBOMON_TRANSPORT_RECONNECT_ATTEMPTS", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("addr = %q, env should win over file", cfg.Server.Addr)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug from file", cfg.Log.Level)
	}
	if cfg.Transport.Reconnect.Attempts != 3 {
		t.Errorf("attempts = %d, want 3 from env", cfg.Transport.Reconnect.Attempts)
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transport.URL != Default().Transport.URL {
		t.Errorf("url = %q, want default", cfg.Transport.URL)
	}
}

func TestWriteExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.yaml")
	if err := WriteExample(path); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("example config should be loadable: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("example config should be valid: %v", err)
	}
}
