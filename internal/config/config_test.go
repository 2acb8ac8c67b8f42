package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/luciancaetano/minesync/internal/protocol"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestNew tests the defaults of an empty configuration
func TestNew(t *testing.T) {
	t.Parallel()

	cfg := New()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.URL != DefaultURL {
		t.Errorf("URL = %q, want %q", cfg.URL, DefaultURL)
	}
	if cfg.Codec != string(protocol.FormatSchema) {
		t.Errorf("Codec = %q, want schema", cfg.Codec)
	}
	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, DefaultAddr)
	}
	if rc := cfg.ReconnectConfig(); rc.BaseDelay != time.Second || rc.MaxAttempts != 5 {
		t.Errorf("ReconnectConfig() = %+v", rc)
	}
	if kc := cfg.KeepaliveConfig(); kc.Interval != 30*time.Second || kc.Timeout != 10*time.Second {
		t.Errorf("KeepaliveConfig() = %+v", kc)
	}
	if tc := cfg.ThrottleConfig(); tc.Interval != 100*time.Millisecond || tc.MinDelta != 5 {
		t.Errorf("ThrottleConfig() = %+v", tc)
	}
	if ic := cfg.InterpolatorConfig(); ic.Factor != 0.2 || ic.Epsilon != 0.05 || ic.FrameInterval != 16*time.Millisecond {
		t.Errorf("InterpolatorConfig() = %+v", ic)
	}
	if rl := cfg.RateLimitConfig(); rl.Enabled || rl.Burst != 200 {
		t.Errorf("RateLimitConfig() = %+v", rl)
	}
}

// TestLoadFile tests that file values override the defaults
func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{
		"url": "wss://mines.example/ws",
		"codec": "legacy",
		"nickname": "ann",
		"logLevel": "debug",
		"reconnect": {"baseDelay": "250ms", "maxAttempts": 0},
		"keepalive": {"interval": "5s"},
		"cursor": {"interval": "50ms", "minDelta": 2},
		"rateLimit": {"enabled": true, "messagesPerSecond": 20, "burst": 40},
		"server": {"addr": "127.0.0.1:9090", "disablePong": true}
	}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Path() != path {
		t.Errorf("Path() = %q, want %q", cfg.Path(), path)
	}
	if cfg.URL != "wss://mines.example/ws" || cfg.Nickname != "ann" {
		t.Errorf("URL = %q Nickname = %q", cfg.URL, cfg.Nickname)
	}
	if rc := cfg.ReconnectConfig(); rc.BaseDelay != 250*time.Millisecond || rc.MaxAttempts != 0 {
		t.Errorf("ReconnectConfig() = %+v, want 250ms and 0 attempts", rc)
	}
	if kc := cfg.KeepaliveConfig(); kc.Interval != 5*time.Second || kc.Timeout != 10*time.Second {
		t.Errorf("KeepaliveConfig() = %+v", kc)
	}
	if tc := cfg.ThrottleConfig(); tc.Interval != 50*time.Millisecond || tc.MinDelta != 2 {
		t.Errorf("ThrottleConfig() = %+v", tc)
	}
	if rl := cfg.RateLimitConfig(); !rl.Enabled || rl.MessagesPerSecond != 20 || rl.Burst != 40 {
		t.Errorf("RateLimitConfig() = %+v", rl)
	}
	if !cfg.Server.DisablePong || cfg.Server.Addr != "127.0.0.1:9090" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if level, err := cfg.Level(); err != nil || level != slog.LevelDebug {
		t.Errorf("Level() = %v, %v", level, err)
	}

	codec, err := cfg.NewCodec()
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	if codec.Format() != protocol.FormatLegacy {
		t.Errorf("codec format = %s, want legacy", codec.Format())
	}
}

// TestLoad tests lookup of the file in a directory
func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if _, err := Load(dir); err == nil {
		t.Error("Load() of an empty directory returned nil error")
	}

	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(`{"nickname":"bob"}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Nickname != "bob" || cfg.URL != DefaultURL {
		t.Errorf("Nickname = %q URL = %q", cfg.Nickname, cfg.URL)
	}
}

// TestValidate tests rejection of invalid values
func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{"url":`, "parse"},
		{"http url", `{"url":"http://localhost/ws"}`, "ws://"},
		{"unknown codec", `{"codec":"json"}`, "codec"},
		{"bad duration", `{"keepalive":{"interval":"soon"}}`, "keepalive.interval"},
		{"zero duration", `{"reconnect":{"baseDelay":"0s"}}`, "reconnect.baseDelay"},
		{"negative attempts", `{"reconnect":{"maxAttempts":-1}}`, "maxAttempts"},
		{"factor above one", `{"cursor":{"factor":1.5}}`, "cursor.factor"},
		{"bad log level", `{"logLevel":"loud"}`, "logLevel"},
		{"rate limit without burst", `{"rateLimit":{"enabled":true,"burst":-1}}`, "rateLimit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadFile(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("LoadFile() error = nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadFile() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

// TestSchemaPath tests that a missing schema file surfaces on Prepare
func TestSchemaPath(t *testing.T) {
	t.Parallel()

	cfg := New()
	cfg.SchemaPath = filepath.Join(t.TempDir(), "missing.json")

	codec, err := cfg.NewCodec()
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	if err := codec.Prepare(t.Context()); err == nil {
		t.Error("Prepare() with a missing schema file returned nil")
	}
}
