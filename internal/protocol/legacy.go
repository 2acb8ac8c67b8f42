package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
)

// Leading type byte of each kind in the legacy layout. The server kinds
// keep their historical values; client kinds follow them.
var legacyTypes = map[Kind]byte{
	KindGameState:  0,
	KindChat:       1,
	KindCursor:     2,
	KindPlayers:    3,
	KindPong:       4,
	KindError:      5,
	KindCellUpdate: 6,
	KindNickname:   7,
	KindCellClick:  8,
	KindHint:       9,
	KindNewGame:    10,
	KindPing:       11,
}

// Limits imposed by the u8 and u16 prefixes of the legacy layout.
const (
	maxLegacyString = math.MaxUint8
	maxLegacyU8     = math.MaxUint8
	maxLegacyU16    = math.MaxUint16
	maxFlagCellKey  = math.MaxUint16 + 1
)

const (
	chatSystemBit = 1 << 0
	chatActionBit = 1 << 1
	chatCellBit   = 1 << 2

	overGameOverBit = 1 << 0
	overGameWonBit  = 1 << 1
	updRevealedBit  = 1 << 2
	updHintsUsedBit = 1 << 3
)

// LegacyCodec implements the fixed byte-offset layout: one type byte,
// then little-endian fields. Strings carry a u8 length prefix and
// identifiers occupy a 5-byte slot.
type LegacyCodec struct{}

// NewLegacyCodec returns the legacy codec.
func NewLegacyCodec() *LegacyCodec {
	return &LegacyCodec{}
}

func (c *LegacyCodec) Format() Format {
	return FormatLegacy
}

// Prepare only reports cancellation of ctx; the legacy layout needs no setup.
func (c *LegacyCodec) Prepare(ctx context.Context) error {
	return ctx.Err()
}

func (c *LegacyCodec) Encode(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := checkLegacyLimits(m); err != nil {
		return nil, err
	}

	e := newEncoder(m.Type)
	switch m.Type {
	case KindNickname:
		e.writeString(m.Nickname.Name)
	case KindCursor:
		cur := m.Cursor
		e.writeID(cur.PlayerID)
		e.writeString(cur.Nickname)
		e.writeString(cur.Color)
		e.writeFloat64(cur.X)
		e.writeFloat64(cur.Y)
	case KindCellClick:
		e.writeUint16(uint16(m.CellClick.Row))
		e.writeUint16(uint16(m.CellClick.Col))
		e.writeBool(m.CellClick.Flag)
	case KindHint:
		e.writeUint16(uint16(m.Hint.Row))
		e.writeUint16(uint16(m.Hint.Col))
	case KindChat:
		encodeLegacyChat(e, m.Chat)
	case KindGameState:
		encodeLegacyGameState(e, m.GameState)
	case KindPlayers:
		e.writeByte(byte(len(m.Players.Players)))
		for _, p := range m.Players.Players {
			e.writeID(p.ID)
			e.writeString(p.Nickname)
			e.writeString(p.Color)
		}
	case KindError:
		e.writeString(m.Error.Text)
	case KindCellUpdate:
		encodeLegacyCellUpdate(e, m.CellUpdate)
	}

	if len(e.bytes()) > MaxFrameSize {
		return nil, &EncodeError{Format: FormatLegacy, Kind: m.Type, Err: ErrFrameTooLong}
	}
	return e.bytes(), nil
}

func encodeLegacyChat(e *encoder, ch *Chat) {
	e.writeID(ch.PlayerID)
	e.writeString(ch.Nickname)
	e.writeString(ch.Color)
	e.writeString(ch.Text)

	var flags byte
	if ch.IsSystem {
		flags |= chatSystemBit
	}
	if ch.Action != "" {
		flags |= chatActionBit
	}
	if ch.Cell != nil {
		flags |= chatCellBit
	}
	e.writeByte(flags)
	if ch.Action != "" {
		e.writeString(ch.Action)
	}
	if ch.Cell != nil {
		e.writeUint16(uint16(ch.Cell.Row))
		e.writeUint16(uint16(ch.Cell.Col))
	}
}

func encodeLegacyGameState(e *encoder, gs *GameState) {
	e.writeUint16(uint16(gs.Rows))
	e.writeUint16(uint16(gs.Cols))
	e.writeUint16(uint16(gs.Mines))
	e.writeUint16(uint16(gs.Revealed))
	e.writeByte(byte(gs.HintsUsed))

	var flags byte
	if gs.GameOver {
		flags |= overGameOverBit
	}
	if gs.GameWon {
		flags |= overGameWonBit
	}
	e.writeByte(flags)
	e.writeID(gs.LoserPlayerID)
	e.writeString(gs.LoserNickname)
	e.writeRaw(packBoard(gs.Board, gs.Rows, gs.Cols))

	colors := flagColors(gs)
	e.writeByte(byte(len(colors)))
	for _, fc := range colors {
		e.writeUint16(uint16(fc.key))
		e.writeString(fc.color)
	}

	e.writeUint16(uint16(len(gs.SafeCells)))
	e.writeRaw(packCoords(gs.SafeCells))

	e.writeUint16(uint16(len(gs.CellHints)))
	for _, h := range gs.CellHints {
		e.writeUint16(uint16(h.Row))
		e.writeUint16(uint16(h.Col))
		e.writeByte(hintCodes[h.Type])
	}
}

func encodeLegacyCellUpdate(e *encoder, cu *CellUpdate) {
	var flags byte
	if cu.GameOver {
		flags |= overGameOverBit
	}
	if cu.GameWon {
		flags |= overGameWonBit
	}
	if cu.Revealed != nil {
		flags |= updRevealedBit
	}
	if cu.HintsUsed != nil {
		flags |= updHintsUsedBit
	}
	e.writeByte(flags)

	if cu.GameOver {
		e.writeID(cu.LoserPlayerID)
		e.writeString(cu.LoserNickname)
	}
	if cu.Revealed != nil {
		e.writeUint16(uint16(*cu.Revealed))
	}
	if cu.HintsUsed != nil {
		e.writeByte(byte(*cu.HintsUsed))
	}
	e.writeUint16(uint16(len(cu.Updates)))
	e.writeRaw(packChanges(cu.Updates))
}

type flagColor struct {
	key   int
	color string
}

func flagColors(gs *GameState) []flagColor {
	var out []flagColor
	for r, row := range gs.Board {
		for c, cell := range row {
			if cell.FlagColor != "" {
				out = append(out, flagColor{key: r*gs.Cols + c, color: cell.FlagColor})
			}
		}
	}
	return out
}

var hintCodes = map[HintType]byte{
	HintMine:    0,
	HintSafe:    1,
	HintUnknown: 2,
}

func hintFromCode(b byte) (HintType, bool) {
	for t, code := range hintCodes {
		if code == b {
			return t, true
		}
	}
	return "", false
}

func (c *LegacyCodec) Decode(frame []byte) (Message, error) {
	if err := checkFrameSize(FormatLegacy, frame); err != nil {
		return Message{}, err
	}

	kind := KindUnknown
	for k, b := range legacyTypes {
		if b == frame[0] {
			kind = k
			break
		}
	}
	if kind == KindUnknown {
		return Message{}, &DecodeError{Format: FormatLegacy, Reason: fmt.Sprintf("type byte %d", frame[0]), Err: ErrUnknownKind}
	}

	d := newDecoder(frame[1:])
	m, err := decodeLegacy(d, kind)
	if err == nil && !d.eof() {
		err = fmt.Errorf("%d bytes: %w", d.remaining(), ErrTrailingData)
	}
	if err != nil {
		reason := kind.String()
		if errors.Is(err, io.ErrUnexpectedEOF) {
			reason += ": truncated"
		}
		return Message{}, &DecodeError{Format: FormatLegacy, Reason: reason, Err: err}
	}
	return m, nil
}

func decodeLegacy(d *decoder, kind Kind) (Message, error) {
	m := Message{Type: kind}
	var err error
	switch kind {
	case KindNickname:
		n := &Nickname{}
		n.Name, err = d.readString()
		m.Nickname = n
	case KindCursor:
		m.Cursor, err = decodeLegacyCursor(d)
	case KindCellClick:
		cc := &CellClick{}
		if cc.Row, err = d.readUint16(); err != nil {
			return m, err
		}
		if cc.Col, err = d.readUint16(); err != nil {
			return m, err
		}
		cc.Flag, err = d.readBool()
		m.CellClick = cc
	case KindHint:
		h := &Hint{}
		if h.Row, err = d.readUint16(); err != nil {
			return m, err
		}
		h.Col, err = d.readUint16()
		m.Hint = h
	case KindChat:
		m.Chat, err = decodeLegacyChat(d)
	case KindGameState:
		m.GameState, err = decodeLegacyGameState(d)
	case KindPlayers:
		m.Players, err = decodeLegacyPlayers(d)
	case KindError:
		e := &Error{}
		e.Text, err = d.readString()
		m.Error = e
	case KindCellUpdate:
		m.CellUpdate, err = decodeLegacyCellUpdate(d)
	}
	return m, err
}

func decodeLegacyCursor(d *decoder) (*Cursor, error) {
	cur := &Cursor{}
	var err error
	if cur.PlayerID, err = d.readID(); err != nil {
		return nil, err
	}
	if cur.Nickname, err = d.readString(); err != nil {
		return nil, err
	}
	if cur.Color, err = d.readString(); err != nil {
		return nil, err
	}
	if cur.X, err = d.readFloat64(); err != nil {
		return nil, err
	}
	if cur.Y, err = d.readFloat64(); err != nil {
		return nil, err
	}
	return cur, nil
}

func decodeLegacyChat(d *decoder) (*Chat, error) {
	ch := &Chat{}
	var err error
	if ch.PlayerID, err = d.readID(); err != nil {
		return nil, err
	}
	if ch.Nickname, err = d.readString(); err != nil {
		return nil, err
	}
	if ch.Color, err = d.readString(); err != nil {
		return nil, err
	}
	if ch.Text, err = d.readString(); err != nil {
		return nil, err
	}
	flags, err := d.readByte()
	if err != nil {
		return nil, err
	}
	ch.IsSystem = flags&chatSystemBit != 0
	if flags&chatActionBit != 0 {
		if ch.Action, err = d.readString(); err != nil {
			return nil, err
		}
	}
	if flags&chatCellBit != 0 {
		cell := &Coord{}
		if cell.Row, err = d.readUint16(); err != nil {
			return nil, err
		}
		if cell.Col, err = d.readUint16(); err != nil {
			return nil, err
		}
		ch.Cell = cell
	}
	return ch, nil
}

func decodeLegacyPlayers(d *decoder) (*Players, error) {
	count, err := d.readByte()
	if err != nil {
		return nil, err
	}
	p := &Players{}
	for i := 0; i < int(count); i++ {
		var pl Player
		if pl.ID, err = d.readID(); err != nil {
			return nil, err
		}
		if pl.Nickname, err = d.readString(); err != nil {
			return nil, err
		}
		if pl.Color, err = d.readString(); err != nil {
			return nil, err
		}
		p.Players = append(p.Players, pl)
	}
	return p, nil
}

func decodeLegacyCellUpdate(d *decoder) (*CellUpdate, error) {
	flags, err := d.readByte()
	if err != nil {
		return nil, err
	}
	cu := &CellUpdate{
		GameOver: flags&overGameOverBit != 0,
		GameWon:  flags&overGameWonBit != 0,
	}
	if cu.GameOver {
		if cu.LoserPlayerID, err = d.readID(); err != nil {
			return nil, err
		}
		if cu.LoserNickname, err = d.readString(); err != nil {
			return nil, err
		}
	}
	if flags&updRevealedBit != 0 {
		v, err := d.readUint16()
		if err != nil {
			return nil, err
		}
		cu.Revealed = &v
	}
	if flags&updHintsUsedBit != 0 {
		b, err := d.readByte()
		if err != nil {
			return nil, err
		}
		v := int(b)
		cu.HintsUsed = &v
	}
	count, err := d.readUint16()
	if err != nil {
		return nil, err
	}
	data, err := d.readBytes(count * changeSize)
	if err != nil {
		return nil, err
	}
	if cu.Updates, err = unpackChanges(data); err != nil {
		return nil, err
	}
	return cu, nil
}

func decodeLegacyGameState(d *decoder) (*GameState, error) {
	gs := &GameState{}
	var err error
	if gs.Rows, err = d.readUint16(); err != nil {
		return nil, err
	}
	if gs.Cols, err = d.readUint16(); err != nil {
		return nil, err
	}
	if gs.Mines, err = d.readUint16(); err != nil {
		return nil, err
	}
	if gs.Revealed, err = d.readUint16(); err != nil {
		return nil, err
	}
	hints, err := d.readByte()
	if err != nil {
		return nil, err
	}
	gs.HintsUsed = int(hints)
	flags, err := d.readByte()
	if err != nil {
		return nil, err
	}
	gs.GameOver = flags&overGameOverBit != 0
	gs.GameWon = flags&overGameWonBit != 0
	if gs.LoserPlayerID, err = d.readID(); err != nil {
		return nil, err
	}
	if gs.LoserNickname, err = d.readString(); err != nil {
		return nil, err
	}

	cells, err := d.readBytes(gs.Rows * gs.Cols)
	if err != nil {
		return nil, err
	}
	if gs.Board, err = unpackBoard(cells, gs.Rows, gs.Cols); err != nil {
		return nil, err
	}

	// Flag colors, safe cells and hints were appended to the layout over
	// time; older servers end the frame after the board.
	if !d.eof() {
		if err := decodeLegacyFlagColors(d, gs); err != nil {
			return nil, err
		}
	}
	if !d.eof() {
		count, err := d.readUint16()
		if err != nil {
			return nil, err
		}
		data, err := d.readBytes(count * coordSize)
		if err != nil {
			return nil, err
		}
		if gs.SafeCells, err = unpackCoords(data); err != nil {
			return nil, err
		}
	}
	if !d.eof() {
		if gs.CellHints, err = decodeLegacyHints(d); err != nil {
			return nil, err
		}
	}

	if err := gs.validate(); err != nil {
		return nil, err
	}
	return gs, nil
}

func decodeLegacyFlagColors(d *decoder, gs *GameState) error {
	count, err := d.readByte()
	if err != nil {
		return err
	}
	for i := 0; i < int(count); i++ {
		key, err := d.readUint16()
		if err != nil {
			return err
		}
		color, err := d.readString()
		if err != nil {
			return err
		}
		if gs.Cols == 0 || key >= gs.Rows*gs.Cols {
			return fmt.Errorf("flag color for cell %d outside the board", key)
		}
		gs.Board[key/gs.Cols][key%gs.Cols].FlagColor = color
	}
	return nil
}

func decodeLegacyHints(d *decoder) ([]CellHint, error) {
	count, err := d.readUint16()
	if err != nil {
		return nil, err
	}
	var out []CellHint
	for i := 0; i < count; i++ {
		var h CellHint
		if h.Row, err = d.readUint16(); err != nil {
			return nil, err
		}
		if h.Col, err = d.readUint16(); err != nil {
			return nil, err
		}
		code, err := d.readByte()
		if err != nil {
			return nil, err
		}
		t, ok := hintFromCode(code)
		if !ok {
			return nil, fmt.Errorf("hint %d has unknown type %d", i, code)
		}
		h.Type = t
		out = append(out, h)
	}
	return out, nil
}

// checkLegacyLimits rejects values that fit the Message model but not the
// fixed-width prefixes of the legacy layout.
func checkLegacyLimits(m Message) error {
	type field struct{ name, value string }
	var strs []field
	switch m.Type {
	case KindNickname:
		strs = append(strs, field{"nickname.name", m.Nickname.Name})
	case KindCursor:
		strs = append(strs, field{"cursor.nickname", m.Cursor.Nickname}, field{"cursor.color", m.Cursor.Color})
	case KindChat:
		ch := m.Chat
		strs = append(strs,
			field{"chat.nickname", ch.Nickname},
			field{"chat.color", ch.Color},
			field{"chat.text", ch.Text},
			field{"chat.action", ch.Action},
		)
	case KindError:
		strs = append(strs, field{"error.text", m.Error.Text})
	case KindPlayers:
		if len(m.Players.Players) > maxLegacyU8 {
			return invalid("players.players", "%d entries exceed %d", len(m.Players.Players), maxLegacyU8)
		}
		for i, p := range m.Players.Players {
			strs = append(strs,
				field{fmt.Sprintf("players.players[%d].nickname", i), p.Nickname},
				field{fmt.Sprintf("players.players[%d].color", i), p.Color},
			)
		}
	case KindCellUpdate:
		strs = append(strs, field{"cellUpdate.loserNickname", m.CellUpdate.LoserNickname})
		if len(m.CellUpdate.Updates) > maxLegacyU16 {
			return invalid("cellUpdate.updates", "%d entries exceed %d", len(m.CellUpdate.Updates), maxLegacyU16)
		}
	case KindGameState:
		gs := m.GameState
		strs = append(strs, field{"gameState.loserNickname", gs.LoserNickname})
		colors := flagColors(gs)
		if len(colors) > maxLegacyU8 {
			return invalid("gameState.board", "%d flag colors exceed %d", len(colors), maxLegacyU8)
		}
		if len(colors) > 0 && gs.Rows*gs.Cols > maxFlagCellKey {
			return invalid("gameState.board", "flag colors need a board of at most %d cells", maxFlagCellKey)
		}
		for _, fc := range colors {
			strs = append(strs, field{"gameState.board.flagColor", fc.color})
		}
		if len(gs.SafeCells) > maxLegacyU16 {
			return invalid("gameState.safeCells", "%d entries exceed %d", len(gs.SafeCells), maxLegacyU16)
		}
		if len(gs.CellHints) > maxLegacyU16 {
			return invalid("gameState.cellHints", "%d entries exceed %d", len(gs.CellHints), maxLegacyU16)
		}
	}
	for _, f := range strs {
		if len(f.value) > maxLegacyString {
			return invalid(f.name, "%d bytes exceed %d", len(f.value), maxLegacyString)
		}
	}
	return nil
}
