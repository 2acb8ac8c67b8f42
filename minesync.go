package minesync

import (
	"context"
	"time"

	"github.com/luciancaetano/minesync/internal/protocol"
)

// State is the lifecycle state of a Client's connection.
type State uint8

const (
	// StateIdle is the state of a Client that never connected.
	StateIdle State = iota
	// StateConnecting means a dial is in flight.
	StateConnecting
	// StateOpen means frames flow in both directions.
	StateOpen
	// StateClosing is entered briefly while Disconnect tears the
	// transport down.
	StateClosing
	// StateClosed means no transport is held. A reconnect may be pending.
	StateClosed
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateConnecting: "connecting",
	StateOpen:       "open",
	StateClosing:    "closing",
	StateClosed:     "closed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Client is the realtime synchronization client of a multiplayer
// minesweeper room.
//
// A Client owns a single duplex connection to a game server. Inbound frames
// are decoded and handed to the message callback in transport order; pongs
// are consumed by the keepalive monitor and never forwarded. Unsolicited
// closes are followed by reconnect attempts with a linear backoff, up to a
// fixed number of attempts.
//
// Example usage:
//
//	import "github.com/luciancaetano/minesync/ws"
//
//	cfg := ws.NewConfig("ws://localhost:8080/ws")
//	cfg.OnMessage = func(msg ws.Message) {
//	    if msg.Type == ws.KindCellUpdate {
//	        render(msg.CellUpdate)
//	    }
//	}
//	cfg.OnGiveUp = func(attempts int) {
//	    showDisconnected()
//	}
//
//	client, err := ws.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client.Connect(ctx)
//	client.SendNickname("alice")
type Client interface {
	// Connect opens the connection. It is valid from the idle and closed
	// states and clears a previous Disconnect.
	//
	// The codec is prepared first, so a missing protocol schema fails
	// here, before any dial. A failed dial is returned to the caller and
	// also follows the reconnect path, like any unsolicited close.
	Connect(ctx context.Context) error

	// Disconnect closes the connection on purpose.
	//
	// Timers are stopped, the transport is released and no reconnect is
	// attempted afterwards. The close callback is not invoked. Calling
	// Disconnect more than once is harmless.
	Disconnect()

	// Send encodes and writes a message.
	//
	// A structurally invalid message yields a *protocol.ValidationError
	// and leaves the connection untouched. Outside the open state the
	// message is logged and dropped; sends are never queued across
	// reconnects.
	//
	// Example:
	//
	//	if err := client.Send(protocol.NewHint(3, 4)); err != nil {
	//	    log.Printf("hint not sent: %v", err)
	//	}
	Send(msg protocol.Message) error

	// SendNickname sets the local player's display name.
	SendNickname(name string) error

	// SendCursor offers the local pointer position. Positions pass
	// through the cursor throttler and may be coalesced.
	SendCursor(x, y float64) error

	// SendCellClick reveals a cell, or toggles its flag when flag is set.
	SendCellClick(row, col int, flag bool) error

	// SendHint asks the server for a hint on a cell.
	SendHint(row, col int) error

	// SendNewGame asks the server to start a new board.
	SendNewGame() error

	// SendChatMessage posts a chat line.
	SendChatMessage(text string) error

	// State returns the current lifecycle state.
	State() State

	// IsConnected reports whether the connection is open.
	IsConnected() bool

	// ReconnectPending reports whether an automatic reconnect is scheduled.
	ReconnectPending() bool

	// Attempts returns the number of reconnect attempts since the last
	// successful open.
	Attempts() int

	// Exhausted reports whether the reconnect cap was reached. The
	// connection stays closed until Connect is called again.
	Exhausted() bool

	// LastLiveness returns when the server last proved to be alive.
	LastLiveness() time.Time
}

// GameServer is a minimal game server speaking the client protocol. It is
// used for development and end-to-end tests; it does not implement the
// rules of the game.
type GameServer interface {
	// Start begins listening and serving until Stop is called.
	Start(ctx context.Context) error

	// Stop closes every peer and shuts the listener down.
	Stop(ctx context.Context) error

	// Broadcast sends msg to every connected peer.
	Broadcast(ctx context.Context, msg protocol.Message) error
}

// Peer is a client connected to a GameServer.
type Peer interface {
	// ID returns the identifier assigned on upgrade.
	ID() string

	// RemoteAddr returns the peer's network address.
	RemoteAddr() string

	// Context is cancelled when the peer disconnects.
	Context() context.Context

	// Send encodes msg with the server's codec and queues it.
	Send(ctx context.Context, msg protocol.Message) error

	// Close closes the connection with a normal closure.
	Close(ctx context.Context) error

	// CloseWithCode closes the connection with a close code and reason.
	CloseWithCode(ctx context.Context, code int, reason string) error

	// IsAlive reports whether the connection is still open.
	IsAlive() bool
}
