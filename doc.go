// Package minesync defines the shared types of a realtime synchronization
// client for multiplayer minesweeper rooms.
//
// A client keeps one binary websocket connection to a game server. It
// encodes the player's actions (nickname, cursor, clicks, hints, chat),
// decodes the server's game state, roster and cell updates, and keeps the
// connection healthy with pings and a linear reconnect backoff.
//
// # Packages
//
// This package only holds the interfaces and constants that the other
// packages share:
//
//   - Client is the connection state machine seen by an application.
//   - GameServer and Peer describe the loopback server in package ws.
//   - RateLimitConfig caps messages per connection.
//
// Applications import package ws, which builds clients and servers.
//
// # Connection States
//
//	idle -> connecting -> open -> closed
//	                        \-> closing -> closed   (Disconnect)
//
// A closed client with a pending reconnect moves back to connecting when
// the backoff timer fires. The n-th attempt waits n times the base delay.
// After the last attempt the give-up callback is called once.
//
// # Wire Formats
//
// Two codecs are provided. The schema codec encodes an envelope message
// described by a protocol schema that is loaded once before connecting.
// The legacy codec writes fixed byte offsets:
//
//	[1 byte: type][payload]
//
// where multi-byte fields are little-endian and strings carry a one-byte
// length prefix. Both codecs reject structurally invalid messages
// before anything is written.
//
// # Error Handling
//
// Error messages are declared as constants in errors.go. Callers match the
// sentinels exported by package ws:
//
//	errors.Is(err, ws.ErrNotConnected)
//
// Decode failures are logged and the frame is dropped; the connection
// stays open.
package minesync
