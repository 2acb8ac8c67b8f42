package protocol

import "math"

// Bounds shared by both wire formats.
const (
	MaxCoordinate = math.MaxUint16
	MaxNeighbors  = 8
	MaxHintsUsed  = math.MaxUint8
	MaxCounter    = math.MaxUint16
)

// Validate checks that m is structurally encodable and returns a
// *ValidationError naming the first offending field.
func (m Message) Validate() error {
	if !m.Type.Valid() {
		return invalid("type", "unknown message type %d", uint8(m.Type))
	}
	if err := m.checkPayloads(); err != nil {
		return err
	}

	switch m.Type {
	case KindNickname:
		if m.Nickname.Name == "" {
			return invalid("nickname.name", "required")
		}
	case KindCursor:
		if !finite(m.Cursor.X) {
			return invalid("cursor.x", "not a finite number")
		}
		if !finite(m.Cursor.Y) {
			return invalid("cursor.y", "not a finite number")
		}
	case KindCellClick:
		return checkCoord("cellClick", m.CellClick.Row, m.CellClick.Col)
	case KindHint:
		return checkCoord("hint", m.Hint.Row, m.Hint.Col)
	case KindChat:
		if m.Chat.Text == "" {
			return invalid("chat.text", "required")
		}
		if m.Chat.Cell != nil {
			return checkCoord("chat", m.Chat.Cell.Row, m.Chat.Cell.Col)
		}
	case KindGameState:
		return m.GameState.validate()
	case KindError:
		if m.Error.Text == "" {
			return invalid("error.text", "required")
		}
	case KindCellUpdate:
		return m.CellUpdate.validate()
	}
	return nil
}

func (m Message) checkPayloads() error {
	payloads := []struct {
		kind Kind
		set  bool
	}{
		{KindNickname, m.Nickname != nil},
		{KindCursor, m.Cursor != nil},
		{KindCellClick, m.CellClick != nil},
		{KindHint, m.Hint != nil},
		{KindChat, m.Chat != nil},
		{KindGameState, m.GameState != nil},
		{KindPlayers, m.Players != nil},
		{KindError, m.Error != nil},
		{KindCellUpdate, m.CellUpdate != nil},
	}
	for _, p := range payloads {
		if p.kind == m.Type && !p.set {
			return invalid(p.kind.String(), "required for %s message", m.Type)
		}
		if p.kind != m.Type && p.set {
			return invalid(p.kind.String(), "not allowed on %s message", m.Type)
		}
	}
	return nil
}

func (gs *GameState) validate() error {
	if gs.Rows <= 0 || gs.Rows > MaxCoordinate {
		return invalid("gameState.rows", "%d out of range", gs.Rows)
	}
	if gs.Cols <= 0 || gs.Cols > MaxCoordinate {
		return invalid("gameState.cols", "%d out of range", gs.Cols)
	}
	cells := gs.Rows * gs.Cols
	if gs.Mines < 0 || gs.Mines > cells || gs.Mines > MaxCounter {
		return invalid("gameState.mines", "%d out of range", gs.Mines)
	}
	if gs.Revealed < 0 || gs.Revealed > cells || gs.Revealed > MaxCounter {
		return invalid("gameState.revealed", "%d out of range", gs.Revealed)
	}
	if gs.HintsUsed < 0 || gs.HintsUsed > MaxHintsUsed {
		return invalid("gameState.hintsUsed", "%d out of range", gs.HintsUsed)
	}
	if len(gs.Board) != gs.Rows {
		return invalid("gameState.board", "has %d rows, declared %d", len(gs.Board), gs.Rows)
	}
	for r, row := range gs.Board {
		if len(row) != gs.Cols {
			return invalid("gameState.board", "row %d has %d cells, declared %d", r, len(row), gs.Cols)
		}
		for c, cell := range row {
			if cell.NeighborMines > MaxNeighbors {
				return invalid("gameState.board", "cell (%d,%d) neighbor count %d", r, c, cell.NeighborMines)
			}
			if cell.FlagColor != "" && !cell.Flagged {
				return invalid("gameState.board", "cell (%d,%d) has a flag color but no flag", r, c)
			}
		}
	}
	for _, sc := range gs.SafeCells {
		if !gs.contains(sc.Row, sc.Col) {
			return invalid("gameState.safeCells", "(%d,%d) outside the board", sc.Row, sc.Col)
		}
	}
	for _, h := range gs.CellHints {
		if !gs.contains(h.Row, h.Col) {
			return invalid("gameState.cellHints", "(%d,%d) outside the board", h.Row, h.Col)
		}
		if !h.Type.Valid() {
			return invalid("gameState.cellHints", "unknown hint type %q", h.Type)
		}
	}
	if !gs.GameOver && (gs.LoserPlayerID != "" || gs.LoserNickname != "") {
		return invalid("gameState.loserPlayerId", "set while game is not over")
	}
	return nil
}

func (gs *GameState) contains(row, col int) bool {
	return row >= 0 && row < gs.Rows && col >= 0 && col < gs.Cols
}

func (cu *CellUpdate) validate() error {
	if cu.Revealed != nil && (*cu.Revealed < 0 || *cu.Revealed > MaxCounter) {
		return invalid("cellUpdate.revealed", "%d out of range", *cu.Revealed)
	}
	if cu.HintsUsed != nil && (*cu.HintsUsed < 0 || *cu.HintsUsed > MaxHintsUsed) {
		return invalid("cellUpdate.hintsUsed", "%d out of range", *cu.HintsUsed)
	}
	if !cu.GameOver && (cu.LoserPlayerID != "" || cu.LoserNickname != "") {
		return invalid("cellUpdate.loserPlayerId", "set while game is not over")
	}
	for _, u := range cu.Updates {
		if err := checkCoord("cellUpdate.updates", u.Row, u.Col); err != nil {
			return err
		}
		if !u.Type.Valid() {
			return invalid("cellUpdate.updates", "unknown cell type %d", u.Type)
		}
	}
	return nil
}

func checkCoord(prefix string, row, col int) error {
	if row < 0 || row > MaxCoordinate {
		return invalid(prefix+".row", "%d out of range", row)
	}
	if col < 0 || col > MaxCoordinate {
		return invalid(prefix+".col", "%d out of range", col)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
