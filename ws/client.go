// Package ws is the public entry point of minesync: a realtime client for
// multiplayer minesweeper rooms over websockets, and a loopback server to
// develop against.
package ws

import (
	"github.com/luciancaetano/minesync"
	"github.com/luciancaetano/minesync/internal/client"
	"github.com/luciancaetano/minesync/internal/cursor"
	"github.com/luciancaetano/minesync/internal/keepalive"
	"github.com/luciancaetano/minesync/internal/metrics"
	"github.com/luciancaetano/minesync/internal/protocol"
	"github.com/luciancaetano/minesync/internal/schema"
	"github.com/luciancaetano/minesync/internal/websocket"
)

type Config = client.Config
type ReconnectConfig = client.ReconnectConfig
type KeepaliveConfig = keepalive.Config
type ThrottleConfig = cursor.ThrottleConfig
type InterpolatorConfig = cursor.InterpolatorConfig
type Interpolator = cursor.Interpolator
type Position = cursor.Position
type DialerConfig = websocket.DialerConfig
type Metrics = metrics.Metrics
type TransportError = client.TransportError

type Codec = protocol.Codec
type Format = protocol.Format
type ValidationError = protocol.ValidationError
type DecodeError = protocol.DecodeError

type Message = protocol.Message
type Kind = protocol.Kind
type Nickname = protocol.Nickname
type Cursor = protocol.Cursor
type CellClick = protocol.CellClick
type Hint = protocol.Hint
type Chat = protocol.Chat
type Coord = protocol.Coord
type GameState = protocol.GameState
type Cell = protocol.Cell
type CellHint = protocol.CellHint
type Players = protocol.Players
type Player = protocol.Player
type Error = protocol.Error
type CellUpdate = protocol.CellUpdate
type CellChange = protocol.CellChange
type CellType = protocol.CellType

const (
	KindNickname   = protocol.KindNickname
	KindCursor     = protocol.KindCursor
	KindCellClick  = protocol.KindCellClick
	KindHint       = protocol.KindHint
	KindNewGame    = protocol.KindNewGame
	KindChat       = protocol.KindChat
	KindPing       = protocol.KindPing
	KindPong       = protocol.KindPong
	KindGameState  = protocol.KindGameState
	KindPlayers    = protocol.KindPlayers
	KindError      = protocol.KindError
	KindCellUpdate = protocol.KindCellUpdate

	FormatSchema = protocol.FormatSchema
	FormatLegacy = protocol.FormatLegacy
)

var (
	ErrNotConnected       = client.ErrNotConnected
	ErrAlreadyConnected   = client.ErrAlreadyConnected
	ErrRateLimited        = client.ErrRateLimited
	ErrLivenessTimeout    = client.ErrLivenessTimeout
	ErrReconnectExhausted = client.ErrReconnectExhausted
)

// NewConfig returns a client configuration for url with the default
// reconnect, keepalive and cursor settings and the websocket dialer.
func NewConfig(url string) *Config {
	cfg := client.DefaultConfig(url)
	cfg.Dialer = websocket.NewDialer(nil)
	return cfg
}

// New creates an idle client. Call Connect to open the connection.
//
// Example:
//
//	cfg := ws.NewConfig("ws://localhost:8080/ws")
//	cfg.OnMessage = func(msg ws.Message) { ... }
//	client, err := ws.New(cfg)
func New(cfg *Config) (minesync.Client, error) {
	if cfg != nil && cfg.Dialer == nil {
		cfg.Dialer = websocket.NewDialer(nil)
	}
	return client.New(cfg)
}

// NewDialer returns a websocket dialer. A nil cfg uses DefaultDialerConfig.
func NewDialer(cfg *DialerConfig) *websocket.Dialer {
	return websocket.NewDialer(cfg)
}

// DefaultReconnectConfig returns a 1 second base delay and 5 attempts.
func DefaultReconnectConfig() *ReconnectConfig {
	return client.DefaultReconnectConfig()
}

// DefaultKeepaliveConfig returns a 30 second ping interval and a 10 second
// pong deadline.
func DefaultKeepaliveConfig() *KeepaliveConfig {
	return keepalive.DefaultConfig()
}

// DefaultThrottleConfig returns a 100ms interval and a 5 pixel threshold.
func DefaultThrottleConfig() *ThrottleConfig {
	return cursor.DefaultThrottleConfig()
}

// NewInterpolator returns an interpolator for remote cursors. Attach it
// through Config.Interpolator and read positions from its frame callback.
func NewInterpolator(cfg *InterpolatorConfig) *Interpolator {
	return cursor.NewInterpolator(cfg, nil)
}

type MetricsOption = metrics.Option

var (
	WithNamespace   = metrics.WithNamespace
	WithSubsystem   = metrics.WithSubsystem
	WithConstLabels = metrics.WithConstLabels
	WithRegistry    = metrics.WithRegistry
)

// NewMetrics returns Prometheus collectors for Config.Metrics and
// ServerConfig.Metrics.
func NewMetrics(opts ...MetricsOption) *Metrics {
	return metrics.New(opts...)
}

// SchemaCodec returns the canonical codec. An empty path uses the builtin
// protocol description; otherwise the file is loaded on first use.
func SchemaCodec(path string) Codec {
	source := schema.Builtin()
	if path != "" {
		source = schema.File(path)
	}
	return protocol.NewSchemaCodec(schema.NewResolver(source))
}

// LegacyCodec returns the fixed byte-offset codec.
func LegacyCodec() Codec {
	return protocol.NewLegacyCodec()
}
