package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("basic loading", func(t *testing.T) {
		yaml := `
instance:
  id: test-relay
relay:
  symbols_per_connection: 100
  stride: 10
  cycle_interval: 5s
server:
  addr: :8080
  env: development
`
		path := writeTempFile(t, yaml)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if cfg.Instance.ID != "test-relay" {
			t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-relay")
		}
		if cfg.Relay.SymbolsPerConnection != 100 {
			t.Errorf("SymbolsPerConnection = %d, want 100", cfg.Relay.SymbolsPerConnection)
		}
		if cfg.Relay.CycleInterval != 5*time.Second {
			t.Errorf("CycleInterval = %v, want 5s", cfg.Relay.CycleInterval)
		}
		if cfg.Server.Addr != ":8080" {
			t.Errorf("Server.Addr = %q, want :8080", cfg.Server.Addr)
		}
	})

	t.Run("file not found", func(t *testing.T) {
		_, err := Load("/nonexistent/path/relay.yaml")
		if err == nil {
			t.Fatal("expected error for nonexistent file")
		}
		if !strings.Contains(err.Error(), "read config file") {
			t.Errorf("error should mention 'read config file', got %v", err)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeTempFile(t, "instance:\n  invalid yaml here: [\n")

		_, err := Load(path)
		if err == nil {
			t.Fatal("expected error for invalid YAML")
		}
		if !strings.Contains(err.Error(), "parse config yaml") {
			t.Errorf("error should mention 'parse config yaml', got %v", err)
		}
	})

	t.Run("env substitution", func(t *testing.T) {
		t.Setenv("TEST_RELAY_ID", "relay-from-env")

		path := writeTempFile(t, "instance:\n  id: ${TEST_RELAY_ID}\n")

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Instance.ID != "relay-from-env" {
			t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "relay-from-env")
		}
	})
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "instance:\n  id: test-relay\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Relay.SymbolsPerConnection != DefaultSymbolsPerConnection {
		t.Errorf("SymbolsPerConnection = %d, want %d",
			cfg.Relay.SymbolsPerConnection, DefaultSymbolsPerConnection)
	}
	if cfg.Relay.Stride != DefaultStride {
		t.Errorf("Stride = %d, want %d", cfg.Relay.Stride, DefaultStride)
	}
	if cfg.Relay.CycleInterval != DefaultCycleInterval {
		t.Errorf("CycleInterval = %v, want %v", cfg.Relay.CycleInterval, DefaultCycleInterval)
	}
	if cfg.Catalog.CacheTTL != DefaultCacheTTL {
		t.Errorf("CacheTTL = %v, want %v", cfg.Catalog.CacheTTL, DefaultCacheTTL)
	}
	if cfg.Server.Env != DefaultServerEnv {
		t.Errorf("Server.Env = %q, want %q", cfg.Server.Env, DefaultServerEnv)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *RelayConfig {
		cfg := &RelayConfig{}
		cfg.Instance.ID = "test"
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*RelayConfig)
		wantErr string
	}{
		{"valid", func(c *RelayConfig) {}, ""},
		{"missing instance id", func(c *RelayConfig) { c.Instance.ID = "" }, "instance.id"},
		{"bad stride", func(c *RelayConfig) { c.Relay.Stride = -1 }, "relay.stride"},
		{"bad symbols", func(c *RelayConfig) { c.Relay.SymbolsPerConnection = -5 }, "symbols_per_connection"},
		{"bad env", func(c *RelayConfig) { c.Server.Env = "staging" }, "server.env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate failed: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
