package ws

import (
	"net/http"

	"github.com/luciancaetano/minesync"
	"github.com/luciancaetano/minesync/internal/websocket"
)

type Server = websocket.Server
type ServerConfig = websocket.ServerConfig
type Room = websocket.Room
type Peer = minesync.Peer
type CheckOriginFn = websocket.CheckOriginFn
type OnConnectFn = websocket.OnConnectFn
type OnDisconnectFn = websocket.OnDisconnectFn
type HandlerFn = websocket.HandlerFn

// NewServer creates a loopback game server.
//
// Example:
//
//	cfg := &ws.ServerConfig{Addr: ":8080", CheckOrigin: ws.AllOrigins()}
//	ws.NewRoom(9, 9).Attach(cfg)
//	srv, err := ws.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv.Start(ctx)
func NewServer(cfg *ServerConfig) (*Server, error) {
	return websocket.NewServer(cfg)
}

// NewRoom returns the rule-free demo board served by `minesync serve`.
func NewRoom(rows, cols int) *Room {
	return websocket.NewRoom(rows, cols)
}

// AllOrigins returns a checkOrigin function that allows all origins
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() *minesync.RateLimitConfig {
	return minesync.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *minesync.RateLimitConfig {
	return minesync.NoRateLimit()
}
