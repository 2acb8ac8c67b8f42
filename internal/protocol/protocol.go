// Package protocol defines the game Message union and the codecs that map
// it to binary frames.
package protocol

import (
	"context"
	"fmt"

	"github.com/luciancaetano/minesync/internal/schema"
)

// MaxFrameSize bounds a single encoded frame (10MB).
const MaxFrameSize = 10 * 1024 * 1024

// Format names a wire format.
type Format string

const (
	// FormatSchema is the canonical protobuf-based format.
	FormatSchema Format = "schema"
	// FormatLegacy is the historical fixed byte-offset layout. It cannot
	// decode FormatSchema frames and vice versa.
	FormatLegacy Format = "legacy"
)

// Codec maps Messages to frames and back. Implementations are safe for
// concurrent use.
type Codec interface {
	// Format identifies the wire format.
	Format() Format

	// Prepare completes any one-time setup, such as loading the protocol
	// schema. Encode and Decode call it implicitly; callers use it to fail
	// fast before opening a connection.
	Prepare(ctx context.Context) error

	// Encode validates m and serializes it. A *ValidationError is returned
	// before any byte is produced.
	Encode(m Message) ([]byte, error)

	// Decode parses one frame. Failures are *DecodeError values.
	Decode(frame []byte) (Message, error)
}

// NewCodec returns the codec for format. The resolver is only used by
// FormatSchema; a nil resolver falls back to the builtin schema.
func NewCodec(format Format, resolver *schema.Resolver) (Codec, error) {
	switch format {
	case FormatSchema, "":
		if resolver == nil {
			resolver = schema.NewResolver(schema.Builtin())
		}
		return NewSchemaCodec(resolver), nil
	case FormatLegacy:
		return NewLegacyCodec(), nil
	default:
		return nil, fmt.Errorf("protocol: unknown format %q", format)
	}
}

func checkFrameSize(format Format, frame []byte) error {
	if len(frame) == 0 {
		return &DecodeError{Format: format, Reason: "empty frame", Err: ErrEmptyFrame}
	}
	if len(frame) > MaxFrameSize {
		return &DecodeError{Format: format, Reason: fmt.Sprintf("%d bytes", len(frame)), Err: ErrFrameTooLong}
	}
	return nil
}

// truncateIDs applies the identifier length limit to every id field of m. The
// payloads are copied so the caller's values are left untouched.
func truncateIDs(m Message) Message {
	switch m.Type {
	case KindCursor:
		c := *m.Cursor
		c.PlayerID = TruncateID(c.PlayerID)
		m.Cursor = &c
	case KindChat:
		c := *m.Chat
		c.PlayerID = TruncateID(c.PlayerID)
		m.Chat = &c
	case KindPlayers:
		p := Players{Players: make([]Player, len(m.Players.Players))}
		for i, pl := range m.Players.Players {
			pl.ID = TruncateID(pl.ID)
			p.Players[i] = pl
		}
		if m.Players.Players == nil {
			p.Players = nil
		}
		m.Players = &p
	case KindGameState:
		gs := *m.GameState
		gs.LoserPlayerID = TruncateID(gs.LoserPlayerID)
		m.GameState = &gs
	case KindCellUpdate:
		cu := *m.CellUpdate
		cu.LoserPlayerID = TruncateID(cu.LoserPlayerID)
		m.CellUpdate = &cu
	}
	return m
}
