package protocol

import "fmt"

// Kind discriminates the Message union.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNickname
	KindCursor
	KindCellClick
	KindHint
	KindNewGame
	KindChat
	KindPing
	KindPong
	KindGameState
	KindPlayers
	KindError
	KindCellUpdate
)

var kindNames = [...]string{
	KindUnknown:    "unknown",
	KindNickname:   "nickname",
	KindCursor:     "cursor",
	KindCellClick:  "cellClick",
	KindHint:       "hint",
	KindNewGame:    "newGame",
	KindChat:       "chat",
	KindPing:       "ping",
	KindPong:       "pong",
	KindGameState:  "gameState",
	KindPlayers:    "players",
	KindError:      "error",
	KindCellUpdate: "cellUpdate",
}

// String returns the wire type name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind maps a wire type name back to its Kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if k != int(KindUnknown) && n == name {
			return Kind(k), true
		}
	}
	return KindUnknown, false
}

// Direction describes which side of the connection may originate a kind.
type Direction uint8

const (
	ClientToServer Direction = 1 << iota
	ServerToClient
	Both = ClientToServer | ServerToClient
)

// Direction reports which peers may send messages of kind k.
func (k Kind) Direction() Direction {
	switch k {
	case KindNickname, KindCellClick, KindHint, KindNewGame, KindPing:
		return ClientToServer
	case KindPong, KindGameState, KindPlayers, KindError, KindCellUpdate:
		return ServerToClient
	case KindCursor, KindChat:
		return Both
	default:
		return 0
	}
}

// Valid reports whether k is one of the defined variants.
func (k Kind) Valid() bool {
	return k > KindUnknown && k <= KindCellUpdate
}

// Message is one frame worth of application data. Exactly the payload
// pointer matching Type is set; newGame, ping and pong carry no payload.
type Message struct {
	Type Kind

	Nickname   *Nickname
	Cursor     *Cursor
	CellClick  *CellClick
	Hint       *Hint
	Chat       *Chat
	GameState  *GameState
	Players    *Players
	Error      *Error
	CellUpdate *CellUpdate
}

// Nickname sets the local player's display name.
type Nickname struct {
	Name string
}

// Cursor is a pointer position. PlayerID, Nickname and Color are filled by
// the server when relaying another player's cursor.
type Cursor struct {
	PlayerID string
	Nickname string
	Color    string
	X        float64
	Y        float64
}

// CellClick reveals (or flags, when Flag is set) a cell.
type CellClick struct {
	Row  int
	Col  int
	Flag bool
}

// Hint requests a hint for a cell.
type Hint struct {
	Row int
	Col int
}

// Coord addresses a single cell.
type Coord struct {
	Row int
	Col int
}

// Chat is a chat line. System lines carry an Action ("flag", "reveal",
// "explode") and optionally the cell it refers to.
type Chat struct {
	PlayerID string
	Nickname string
	Color    string
	Text     string
	IsSystem bool
	Action   string
	Cell     *Coord
}

// Cell is one board square of a GameState snapshot.
type Cell struct {
	Mine          bool
	Revealed      bool
	Flagged       bool
	NeighborMines uint8
	FlagColor     string
}

// HintType classifies a per-cell hint.
type HintType string

const (
	HintMine    HintType = "MINE"
	HintSafe    HintType = "SAFE"
	HintUnknown HintType = "UNKNOWN"
)

// Valid reports whether h is a known hint type.
func (h HintType) Valid() bool {
	switch h {
	case HintMine, HintSafe, HintUnknown:
		return true
	}
	return false
}

// CellHint marks a cell with a training-mode hint.
type CellHint struct {
	Row  int
	Col  int
	Type HintType
}

// GameState is a full board snapshot.
type GameState struct {
	Board         [][]Cell
	Rows          int
	Cols          int
	Mines         int
	GameOver      bool
	GameWon       bool
	Revealed      int
	HintsUsed     int
	SafeCells     []Coord
	CellHints     []CellHint
	LoserPlayerID string
	LoserNickname string
}

// Player is an entry of the room roster.
type Player struct {
	ID       string
	Nickname string
	Color    string
}

// Players is the room roster.
type Players struct {
	Players []Player
}

// Error is a server-side error report.
type Error struct {
	Text string
}

// CellType is the rendered state of a cell in an incremental update.
type CellType uint8

const (
	CellMine    CellType = 9
	CellSafe    CellType = 10
	CellUnknown CellType = 11
	CellDanger  CellType = 12
	CellClosed  CellType = 255
)

// Valid reports whether t is a known cell type: a revealed neighbor
// count (0-8), a mine, one of the hint colours, or closed.
func (t CellType) Valid() bool {
	return t <= 8 || (t >= CellMine && t <= CellDanger) || t == CellClosed
}

// CellChange is one changed cell of a CellUpdate.
type CellChange struct {
	Row  int
	Col  int
	Type CellType
}

// CellUpdate is an incremental board change.
type CellUpdate struct {
	GameOver      bool
	GameWon       bool
	Revealed      *int
	HintsUsed     *int
	LoserPlayerID string
	LoserNickname string
	Updates       []CellChange
}

func NewNickname(name string) Message {
	return Message{Type: KindNickname, Nickname: &Nickname{Name: name}}
}

func NewCursor(x, y float64) Message {
	return Message{Type: KindCursor, Cursor: &Cursor{X: x, Y: y}}
}

func NewCellClick(row, col int, flag bool) Message {
	return Message{Type: KindCellClick, CellClick: &CellClick{Row: row, Col: col, Flag: flag}}
}

func NewHint(row, col int) Message {
	return Message{Type: KindHint, Hint: &Hint{Row: row, Col: col}}
}

func NewNewGame() Message {
	return Message{Type: KindNewGame}
}

func NewChat(text string) Message {
	return Message{Type: KindChat, Chat: &Chat{Text: text}}
}

func NewPing() Message {
	return Message{Type: KindPing}
}

func NewPong() Message {
	return Message{Type: KindPong}
}

func NewGameState(gs *GameState) Message {
	return Message{Type: KindGameState, GameState: gs}
}

func NewPlayers(players ...Player) Message {
	return Message{Type: KindPlayers, Players: &Players{Players: players}}
}

func NewError(text string) Message {
	return Message{Type: KindError, Error: &Error{Text: text}}
}

func NewCellUpdate(cu *CellUpdate) Message {
	return Message{Type: KindCellUpdate, CellUpdate: cu}
}

// IntPtr returns a pointer to v, for the optional CellUpdate counters.
func IntPtr(v int) *int {
	return &v
}
