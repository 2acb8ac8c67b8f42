package protocol

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/luciancaetano/minesync/internal/schema"
)

// variantFields maps kinds to their envelope oneof field.
var variantFields = map[Kind]protoreflect.Name{
	KindNickname:   "nickname",
	KindCursor:     "cursor",
	KindCellClick:  "cell_click",
	KindHint:       "hint",
	KindNewGame:    "new_game",
	KindChat:       "chat",
	KindPing:       "ping",
	KindPong:       "pong",
	KindGameState:  "game_state",
	KindPlayers:    "players",
	KindError:      "error",
	KindCellUpdate: "cell_update",
}

// absent marks an unset optional int32 on the wire.
const absent = -1

// SchemaCodec encodes Messages as protobuf envelopes described by a
// schema.Resolver. The schema is resolved lazily on first use.
type SchemaCodec struct {
	resolver *schema.Resolver
}

// NewSchemaCodec returns a codec that resolves its schema through r.
func NewSchemaCodec(r *schema.Resolver) *SchemaCodec {
	return &SchemaCodec{resolver: r}
}

func (c *SchemaCodec) Format() Format {
	return FormatSchema
}

// Prepare resolves the schema.
func (c *SchemaCodec) Prepare(ctx context.Context) error {
	_, err := c.resolver.Schema(ctx)
	return err
}

func (c *SchemaCodec) Encode(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	s, err := c.resolver.Schema(context.Background())
	if err != nil {
		return nil, &EncodeError{Format: FormatSchema, Kind: m.Type, Err: err}
	}

	m = truncateIDs(m)
	env := dynamicpb.NewMessage(s.Envelope())
	fd := s.Envelope().Fields().ByName(variantFields[m.Type])
	if fd == nil || fd.Message() == nil {
		return nil, &EncodeError{Format: FormatSchema, Kind: m.Type, Err: fmt.Errorf("schema has no %s variant", m.Type)}
	}

	w := &pbWriter{m: env.Mutable(fd).Message()}
	writeBody(w, m)
	if w.err != nil {
		return nil, &EncodeError{Format: FormatSchema, Kind: m.Type, Err: w.err}
	}

	data, err := proto.Marshal(env)
	if err != nil {
		return nil, &EncodeError{Format: FormatSchema, Kind: m.Type, Err: err}
	}
	if len(data) > MaxFrameSize {
		return nil, &EncodeError{Format: FormatSchema, Kind: m.Type, Err: ErrFrameTooLong}
	}
	return data, nil
}

func (c *SchemaCodec) Decode(frame []byte) (Message, error) {
	if err := checkFrameSize(FormatSchema, frame); err != nil {
		return Message{}, err
	}
	s, err := c.resolver.Schema(context.Background())
	if err != nil {
		return Message{}, &DecodeError{Format: FormatSchema, Reason: "schema unavailable", Err: err}
	}

	env := dynamicpb.NewMessage(s.Envelope())
	if err := proto.Unmarshal(frame, env); err != nil {
		return Message{}, &DecodeError{Format: FormatSchema, Reason: "malformed envelope", Err: err}
	}

	fd := env.WhichOneof(s.Envelope().Oneofs().ByName(schema.OneofName))
	if fd == nil {
		return Message{}, &DecodeError{Format: FormatSchema, Reason: "no variant set", Err: ErrUnknownKind}
	}
	kind := kindOfField(fd.Name())
	if kind == KindUnknown {
		return Message{}, &DecodeError{Format: FormatSchema, Reason: string(fd.Name()), Err: ErrUnknownKind}
	}

	r := &pbReader{m: env.Get(fd).Message()}
	m, err := readBody(r, kind)
	if err == nil {
		err = r.err
	}
	if err != nil {
		return Message{}, &DecodeError{Format: FormatSchema, Reason: kind.String(), Err: err}
	}
	return truncateIDs(m), nil
}

func kindOfField(name protoreflect.Name) Kind {
	for k, n := range variantFields {
		if n == name {
			return k
		}
	}
	return KindUnknown
}

func writeBody(w *pbWriter, m Message) {
	switch m.Type {
	case KindNickname:
		w.str("name", m.Nickname.Name)
	case KindCursor:
		w.str("player_id", m.Cursor.PlayerID)
		w.str("nickname", m.Cursor.Nickname)
		w.str("color", m.Cursor.Color)
		w.double("x", m.Cursor.X)
		w.double("y", m.Cursor.Y)
	case KindCellClick:
		w.uint("row", m.CellClick.Row)
		w.uint("col", m.CellClick.Col)
		w.boolean("flag", m.CellClick.Flag)
	case KindHint:
		w.uint("row", m.Hint.Row)
		w.uint("col", m.Hint.Col)
	case KindChat:
		ch := m.Chat
		w.str("player_id", ch.PlayerID)
		w.str("nickname", ch.Nickname)
		w.str("color", ch.Color)
		w.str("text", ch.Text)
		w.boolean("is_system", ch.IsSystem)
		w.str("action", ch.Action)
		row, col := absent, absent
		if ch.Cell != nil {
			row, col = ch.Cell.Row, ch.Cell.Col
		}
		w.int("row", row)
		w.int("col", col)
	case KindGameState:
		writeGameState(w, m.GameState)
	case KindPlayers:
		for _, p := range m.Players.Players {
			pw := w.appendTo("players")
			pw.str("id", p.ID)
			pw.str("nickname", p.Nickname)
			pw.str("color", p.Color)
			w.adopt(pw)
		}
	case KindError:
		w.str("error", m.Error.Text)
	case KindCellUpdate:
		cu := m.CellUpdate
		w.boolean("game_over", cu.GameOver)
		w.boolean("game_won", cu.GameWon)
		w.int("revealed", optional(cu.Revealed))
		w.int("hints_used", optional(cu.HintsUsed))
		w.str("loser_player_id", cu.LoserPlayerID)
		w.str("loser_nickname", cu.LoserNickname)
		w.bytes("updates", packChanges(cu.Updates))
	}
}

func writeGameState(w *pbWriter, gs *GameState) {
	w.uint("rows", gs.Rows)
	w.uint("cols", gs.Cols)
	w.uint("mines", gs.Mines)
	w.boolean("game_over", gs.GameOver)
	w.boolean("game_won", gs.GameWon)
	w.uint("revealed", gs.Revealed)
	w.uint("hints_used", gs.HintsUsed)
	w.bytes("board", packBoard(gs.Board, gs.Rows, gs.Cols))
	for r, row := range gs.Board {
		for c, cell := range row {
			if cell.FlagColor == "" {
				continue
			}
			fw := w.appendTo("flag_colors")
			fw.uint("cell", r*gs.Cols+c)
			fw.str("color", cell.FlagColor)
			w.adopt(fw)
		}
	}
	w.bytes("safe_cells", packCoords(gs.SafeCells))
	for _, h := range gs.CellHints {
		hw := w.appendTo("cell_hints")
		hw.uint("row", h.Row)
		hw.uint("col", h.Col)
		hw.str("type", string(h.Type))
		w.adopt(hw)
	}
	w.str("loser_player_id", gs.LoserPlayerID)
	w.str("loser_nickname", gs.LoserNickname)
}

func readBody(r *pbReader, kind Kind) (Message, error) {
	m := Message{Type: kind}
	switch kind {
	case KindNickname:
		m.Nickname = &Nickname{Name: r.str("name")}
	case KindCursor:
		m.Cursor = &Cursor{
			PlayerID: r.str("player_id"),
			Nickname: r.str("nickname"),
			Color:    r.str("color"),
			X:        r.double("x"),
			Y:        r.double("y"),
		}
	case KindCellClick:
		m.CellClick = &CellClick{Row: r.uint("row"), Col: r.uint("col"), Flag: r.boolean("flag")}
	case KindHint:
		m.Hint = &Hint{Row: r.uint("row"), Col: r.uint("col")}
	case KindChat:
		ch := &Chat{
			PlayerID: r.str("player_id"),
			Nickname: r.str("nickname"),
			Color:    r.str("color"),
			Text:     r.str("text"),
			IsSystem: r.boolean("is_system"),
			Action:   r.str("action"),
		}
		if row, col := r.int("row"), r.int("col"); row >= 0 && col >= 0 {
			ch.Cell = &Coord{Row: row, Col: col}
		}
		m.Chat = ch
	case KindGameState:
		gs, err := readGameState(r)
		if err != nil {
			return Message{}, err
		}
		m.GameState = gs
	case KindPlayers:
		p := &Players{}
		for _, pr := range r.list("players") {
			p.Players = append(p.Players, Player{ID: pr.str("id"), Nickname: pr.str("nickname"), Color: pr.str("color")})
		}
		m.Players = p
	case KindError:
		m.Error = &Error{Text: r.str("error")}
	case KindCellUpdate:
		updates, err := unpackChanges(r.bytes("updates"))
		if err != nil {
			return Message{}, err
		}
		m.CellUpdate = &CellUpdate{
			GameOver:      r.boolean("game_over"),
			GameWon:       r.boolean("game_won"),
			Revealed:      present(r.int("revealed")),
			HintsUsed:     present(r.int("hints_used")),
			LoserPlayerID: r.str("loser_player_id"),
			LoserNickname: r.str("loser_nickname"),
			Updates:       updates,
		}
	}
	return m, nil
}

func readGameState(r *pbReader) (*GameState, error) {
	gs := &GameState{
		Rows:          r.uint("rows"),
		Cols:          r.uint("cols"),
		Mines:         r.uint("mines"),
		GameOver:      r.boolean("game_over"),
		GameWon:       r.boolean("game_won"),
		Revealed:      r.uint("revealed"),
		HintsUsed:     r.uint("hints_used"),
		LoserPlayerID: r.str("loser_player_id"),
		LoserNickname: r.str("loser_nickname"),
	}
	if gs.Rows > MaxCoordinate || gs.Cols > MaxCoordinate {
		return nil, fmt.Errorf("board %dx%d exceeds limits", gs.Rows, gs.Cols)
	}

	board, err := unpackBoard(r.bytes("board"), gs.Rows, gs.Cols)
	if err != nil {
		return nil, err
	}
	gs.Board = board

	for _, fr := range r.list("flag_colors") {
		key := fr.uint("cell")
		if gs.Cols == 0 || key >= gs.Rows*gs.Cols {
			return nil, fmt.Errorf("flag color for cell %d outside the board", key)
		}
		gs.Board[key/gs.Cols][key%gs.Cols].FlagColor = fr.str("color")
	}

	if gs.SafeCells, err = unpackCoords(r.bytes("safe_cells")); err != nil {
		return nil, err
	}
	for _, hr := range r.list("cell_hints") {
		gs.CellHints = append(gs.CellHints, CellHint{Row: hr.uint("row"), Col: hr.uint("col"), Type: HintType(hr.str("type"))})
	}

	if err := gs.validate(); err != nil {
		return nil, err
	}
	return gs, nil
}

func optional(v *int) int {
	if v == nil {
		return absent
	}
	return *v
}

func present(v int) *int {
	if v < 0 {
		return nil
	}
	return &v
}

// pbWriter sets fields on a dynamic message by name and remembers the
// first field the schema does not define.
type pbWriter struct {
	m    protoreflect.Message
	list protoreflect.List
	elem protoreflect.Value
	err  error
}

func (w *pbWriter) field(name string) protoreflect.FieldDescriptor {
	fd := w.m.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil && w.err == nil {
		w.err = fmt.Errorf("schema: %s has no field %s", w.m.Descriptor().FullName(), name)
	}
	return fd
}

func (w *pbWriter) set(name string, v protoreflect.Value) {
	if fd := w.field(name); fd != nil {
		w.m.Set(fd, v)
	}
}

func (w *pbWriter) str(name, v string) { w.set(name, protoreflect.ValueOfString(v)) }

func (w *pbWriter) boolean(name string, v bool) { w.set(name, protoreflect.ValueOfBool(v)) }

func (w *pbWriter) double(name string, v float64) { w.set(name, protoreflect.ValueOfFloat64(v)) }

func (w *pbWriter) uint(name string, v int) { w.set(name, protoreflect.ValueOfUint32(uint32(v))) }

func (w *pbWriter) int(name string, v int) { w.set(name, protoreflect.ValueOfInt32(int32(v))) }

func (w *pbWriter) bytes(name string, v []byte) { w.set(name, protoreflect.ValueOfBytes(v)) }

// appendTo starts a new element of the repeated message field name. The
// element is attached by adopt once populated.
func (w *pbWriter) appendTo(name string) *pbWriter {
	fd := w.field(name)
	if fd == nil || !fd.IsList() || fd.Message() == nil {
		return &pbWriter{m: dynamicpb.NewMessage(w.m.Descriptor()), err: w.err}
	}
	list := w.m.Mutable(fd).List()
	elem := list.NewElement()
	return &pbWriter{m: elem.Message(), list: list, elem: elem}
}

func (w *pbWriter) adopt(child *pbWriter) {
	if child.err != nil && w.err == nil {
		w.err = child.err
	}
	if child.list != nil {
		child.list.Append(child.elem)
	}
}

// pbReader is the read-side counterpart of pbWriter.
type pbReader struct {
	m   protoreflect.Message
	err error
}

func (r *pbReader) get(name string) (protoreflect.Value, bool) {
	fd := r.m.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		if r.err == nil {
			r.err = fmt.Errorf("schema: %s has no field %s", r.m.Descriptor().FullName(), name)
		}
		return protoreflect.Value{}, false
	}
	return r.m.Get(fd), true
}

func (r *pbReader) str(name string) string {
	if v, ok := r.get(name); ok {
		return v.String()
	}
	return ""
}

func (r *pbReader) boolean(name string) bool {
	if v, ok := r.get(name); ok {
		return v.Bool()
	}
	return false
}

func (r *pbReader) double(name string) float64 {
	if v, ok := r.get(name); ok {
		return v.Float()
	}
	return 0
}

func (r *pbReader) uint(name string) int {
	if v, ok := r.get(name); ok {
		return int(v.Uint())
	}
	return 0
}

func (r *pbReader) int(name string) int {
	if v, ok := r.get(name); ok {
		return int(v.Int())
	}
	return 0
}

func (r *pbReader) bytes(name string) []byte {
	if v, ok := r.get(name); ok {
		return v.Bytes()
	}
	return nil
}

func (r *pbReader) list(name string) []*pbReader {
	v, ok := r.get(name)
	if !ok {
		return nil
	}
	l := v.List()
	out := make([]*pbReader, 0, l.Len())
	for i := 0; i < l.Len(); i++ {
		out = append(out, &pbReader{m: l.Get(i).Message()})
	}
	return out
}
