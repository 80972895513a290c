package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config must validate, got: %v", err)
	}
}

func TestValidateRejectsEmptyServerAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Address = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty server.address")
	}
}

func TestValidateRejectsBackoffMaxBelowBase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Client.BackoffBase = time.Second
	cfg.Client.BackoffMax = 100 * time.Millisecond
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when backoff_max < backoff_base")
	}
}

func TestValidatePortRangeRequiresBothBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WebRTC.PortRange.Min = 10000
	cfg.WebRTC.PortRange.Max = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when only one port range bound is set")
	}

	cfg.WebRTC.PortRange.Max = 9000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when min >= max")
	}

	cfg.WebRTC.PortRange.Min = 10000
	cfg.WebRTC.PortRange.Max = 20000
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid port range rejected: %v", err)
	}
}

func TestValidateRedisRequiresAddressWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Address = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for enabled redis without address")
	}
}

func TestValidateAuthRequiresSecretWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.JWTSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for enabled auth without secret")
	}
}

func TestValidateRateLimitingDisabledAllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.MessagesPerSecond = 0
	cfg.RateLimiting.Burst = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled rate limiting must ignore zero values, got: %v", err)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file must fall back to defaults, got: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("expected default server address, got %q", cfg.Server.Address)
	}
}

func TestLoadParsesYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  address: ":9999"
relay:
  address: ":9998"
client:
  backoff_base: 250ms
  backoff_max: 30s
logging:
  level: debug
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Address != ":9999" {
		t.Errorf("server.address = %q, want :9999", cfg.Server.Address)
	}
	if cfg.Relay.Address != ":9998" {
		t.Errorf("relay.address = %q, want :9998", cfg.Relay.Address)
	}
	if cfg.Client.BackoffBase != 250*time.Millisecond {
		t.Errorf("client.backoff_base = %v, want 250ms", cfg.Client.BackoffBase)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q, want debug", cfg.Logging.Level)
	}
	// Untouched sections keep their defaults.
	if cfg.Relay.PingInterval != 30*time.Second {
		t.Errorf("relay.ping_interval = %v, want default 30s", cfg.Relay.PingInterval)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("STUDYLINK_SERVER_ADDRESS", ":7777")
	t.Setenv("STUDYLINK_LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Address != ":7777" {
		t.Errorf("env override ignored, server.address = %q", cfg.Server.Address)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("env override ignored, logging.level = %q", cfg.Logging.Level)
	}
}

func TestTokenTTLEnvOverride(t *testing.T) {
	t.Setenv("STUDYLINK_TOKEN_TTL", "2h")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Auth.TokenTTL != 2*time.Hour {
		t.Errorf("auth.token_ttl = %v, want 2h", cfg.Auth.TokenTTL)
	}
}

func TestTokenTTLEnvOverrideBadValueKeepsDefault(t *testing.T) {
	t.Setenv("STUDYLINK_TOKEN_TTL", "not-a-duration")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("auth.token_ttl = %v, want default 24h", cfg.Auth.TokenTTL)
	}
}
