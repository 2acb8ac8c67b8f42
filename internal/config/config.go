// Package config loads the minesync.json file read by the command line
// tool. Durations are written as strings such as "30s" or "100ms".
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/luciancaetano/minesync"
	"github.com/luciancaetano/minesync/internal/client"
	"github.com/luciancaetano/minesync/internal/cursor"
	"github.com/luciancaetano/minesync/internal/keepalive"
	"github.com/luciancaetano/minesync/internal/protocol"
	"github.com/luciancaetano/minesync/internal/schema"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "minesync.json"

	// DefaultURL is the game endpoint of a local loopback server.
	DefaultURL = "ws://localhost:8080/ws"

	// DefaultAddr is the listen address of the loopback server.
	DefaultAddr = ":8080"
)

// Config represents the complete minesync.json configuration.
type Config struct {
	// URL is the websocket endpoint of the game server.
	URL string `json:"url,omitempty"`

	// Codec selects the wire format: "schema" or "legacy".
	Codec string `json:"codec,omitempty"`

	// SchemaPath points at a protocol description file. Empty means the
	// builtin description.
	SchemaPath string `json:"schemaPath,omitempty"`

	// Nickname is sent right after connecting when set.
	Nickname string `json:"nickname,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"logLevel,omitempty"`

	Reconnect ReconnectConfig `json:"reconnect,omitempty"`
	Keepalive KeepaliveConfig `json:"keepalive,omitempty"`
	Cursor    CursorConfig    `json:"cursor,omitempty"`
	RateLimit RateLimitConfig `json:"rateLimit,omitempty"`
	Server    ServerConfig    `json:"server,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ReconnectConfig contains the reconnect backoff.
type ReconnectConfig struct {
	BaseDelay   string `json:"baseDelay,omitempty"`
	MaxAttempts *int   `json:"maxAttempts,omitempty"`
}

// KeepaliveConfig contains the ping schedule.
type KeepaliveConfig struct {
	Interval string `json:"interval,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// CursorConfig contains throttling and interpolation settings.
type CursorConfig struct {
	Interval      string  `json:"interval,omitempty"`
	MinDelta      float64 `json:"minDelta,omitempty"`
	Factor        float64 `json:"factor,omitempty"`
	Epsilon       float64 `json:"epsilon,omitempty"`
	FrameInterval string  `json:"frameInterval,omitempty"`
}

// RateLimitConfig caps outbound messages of the client and inbound
// messages per peer of the loopback server.
type RateLimitConfig struct {
	Enabled           bool    `json:"enabled,omitempty"`
	MessagesPerSecond float64 `json:"messagesPerSecond,omitempty"`
	Burst             int     `json:"burst,omitempty"`
}

// ServerConfig contains loopback server settings.
type ServerConfig struct {
	Addr        string `json:"addr,omitempty"`
	DisablePong bool   `json:"disablePong,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads minesync.json from dir.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path. Missing
// fields take their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.configPath = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.Codec == "" {
		c.Codec = string(protocol.FormatSchema)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	// Reconnect
	if c.Reconnect.BaseDelay == "" {
		c.Reconnect.BaseDelay = "1s"
	}
	if c.Reconnect.MaxAttempts == nil {
		n := client.DefaultReconnectConfig().MaxAttempts
		c.Reconnect.MaxAttempts = &n
	}

	// Keepalive
	if c.Keepalive.Interval == "" {
		c.Keepalive.Interval = "30s"
	}
	if c.Keepalive.Timeout == "" {
		c.Keepalive.Timeout = "10s"
	}

	// Cursor
	throttle := cursor.DefaultThrottleConfig()
	interp := cursor.DefaultInterpolatorConfig()
	if c.Cursor.Interval == "" {
		c.Cursor.Interval = throttle.Interval.String()
	}
	if c.Cursor.MinDelta == 0 {
		c.Cursor.MinDelta = throttle.MinDelta
	}
	if c.Cursor.Factor == 0 {
		c.Cursor.Factor = interp.Factor
	}
	if c.Cursor.Epsilon == 0 {
		c.Cursor.Epsilon = interp.Epsilon
	}
	if c.Cursor.FrameInterval == "" {
		c.Cursor.FrameInterval = interp.FrameInterval.String()
	}

	// Rate limit
	if c.RateLimit.MessagesPerSecond == 0 {
		c.RateLimit.MessagesPerSecond = float64(minesync.DefaultRateLimitConfig().MessagesPerSecond)
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = minesync.DefaultRateLimitConfig().Burst
	}

	// Server
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.URL, "ws://") && !strings.HasPrefix(c.URL, "wss://") {
		return fmt.Errorf("config: url %q must use ws:// or wss://", c.URL)
	}
	switch protocol.Format(c.Codec) {
	case protocol.FormatSchema, protocol.FormatLegacy:
	default:
		return fmt.Errorf("config: unknown codec %q", c.Codec)
	}
	if _, err := c.Level(); err != nil {
		return err
	}

	durations := []struct {
		field string
		value string
	}{
		{"reconnect.baseDelay", c.Reconnect.BaseDelay},
		{"keepalive.interval", c.Keepalive.Interval},
		{"keepalive.timeout", c.Keepalive.Timeout},
		{"cursor.interval", c.Cursor.Interval},
		{"cursor.frameInterval", c.Cursor.FrameInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("config: %s: %w", d.field, err)
		}
		if v <= 0 {
			return fmt.Errorf("config: %s must be positive, got %s", d.field, d.value)
		}
	}

	if *c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("config: reconnect.maxAttempts must not be negative")
	}
	if c.Cursor.MinDelta < 0 {
		return fmt.Errorf("config: cursor.minDelta must not be negative")
	}
	if c.Cursor.Factor <= 0 || c.Cursor.Factor > 1 {
		return fmt.Errorf("config: cursor.factor must be in (0, 1], got %v", c.Cursor.Factor)
	}
	if c.Cursor.Epsilon <= 0 {
		return fmt.Errorf("config: cursor.epsilon must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.MessagesPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("config: rateLimit needs positive messagesPerSecond and burst")
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: logLevel: %w", err)
	}
	return level, nil
}

// NewCodec builds the configured codec. The schema file, if any, is read
// lazily on first use.
func (c *Config) NewCodec() (protocol.Codec, error) {
	source := schema.Builtin()
	if c.SchemaPath != "" {
		source = schema.File(c.SchemaPath)
	}
	return protocol.NewCodec(protocol.Format(c.Codec), schema.NewResolver(source))
}

// The accessors below assume Validate succeeded.

func (c *Config) ReconnectConfig() *client.ReconnectConfig {
	return &client.ReconnectConfig{
		BaseDelay:   duration(c.Reconnect.BaseDelay),
		MaxAttempts: *c.Reconnect.MaxAttempts,
	}
}

func (c *Config) KeepaliveConfig() *keepalive.Config {
	return &keepalive.Config{
		Interval: duration(c.Keepalive.Interval),
		Timeout:  duration(c.Keepalive.Timeout),
	}
}

func (c *Config) ThrottleConfig() *cursor.ThrottleConfig {
	return &cursor.ThrottleConfig{
		Interval: duration(c.Cursor.Interval),
		MinDelta: c.Cursor.MinDelta,
	}
}

func (c *Config) InterpolatorConfig() *cursor.InterpolatorConfig {
	return &cursor.InterpolatorConfig{
		Factor:        c.Cursor.Factor,
		Epsilon:       c.Cursor.Epsilon,
		FrameInterval: duration(c.Cursor.FrameInterval),
	}
}

func (c *Config) RateLimitConfig() *minesync.RateLimitConfig {
	return &minesync.RateLimitConfig{
		MessagesPerSecond: rate.Limit(c.RateLimit.MessagesPerSecond),
		Burst:             c.RateLimit.Burst,
		Enabled:           c.RateLimit.Enabled,
	}
}

func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
