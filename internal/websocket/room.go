package websocket

import (
	"context"
	"sync"

	"github.com/luciancaetano/minesync"
	"github.com/luciancaetano/minesync/internal/protocol"
)

var palette = []string{"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4", "#42d4f4"}

type member struct {
	peer     minesync.Peer
	nickname string
	color    string
}

// Room is a rule-free board shared by every peer of a Server. Clicks reveal
// the clicked cell, flags are announced in chat, hints mark a cell safe and
// newGame clears the board. It exists so clients can be exercised end to
// end without a real game server.
type Room struct {
	rows, cols int

	mu       sync.Mutex
	members  map[string]*member
	order    []string
	joined   int
	revealed map[protocol.Coord]bool
	hints    int
}

// NewRoom creates an empty rows x cols board.
func NewRoom(rows, cols int) *Room {
	return &Room{
		rows:     rows,
		cols:     cols,
		members:  make(map[string]*member),
		revealed: make(map[protocol.Coord]bool),
	}
}

// Attach installs the room's callbacks on cfg.
func (r *Room) Attach(cfg *ServerConfig) {
	cfg.OnConnect = r.Join
	cfg.OnDisconnect = r.Leave
	cfg.Handler = r.Handle
}

// Join registers peer and sends it the current board.
func (r *Room) Join(peer minesync.Peer) {
	r.mu.Lock()
	r.members[peer.ID()] = &member{
		peer:     peer,
		nickname: "anonymous",
		color:    palette[r.joined%len(palette)],
	}
	r.order = append(r.order, peer.ID())
	r.joined++
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	peer.Send(peer.Context(), protocol.NewGameState(snapshot))
}

// Leave drops peer and publishes the new roster.
func (r *Room) Leave(peer minesync.Peer, _ bool) {
	r.mu.Lock()
	delete(r.members, peer.ID())
	for i, id := range r.order {
		if id == peer.ID() {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.broadcast(r.roster(), "")
}

// Handle applies one client message.
func (r *Room) Handle(peer minesync.Peer, msg protocol.Message) {
	switch msg.Type {
	case protocol.KindNickname:
		r.mu.Lock()
		if m, ok := r.members[peer.ID()]; ok {
			m.nickname = msg.Nickname.Name
		}
		r.mu.Unlock()
		r.broadcast(r.roster(), "")

	case protocol.KindCursor:
		m := r.member(peer.ID())
		if m == nil {
			return
		}
		r.broadcast(protocol.Message{Type: protocol.KindCursor, Cursor: &protocol.Cursor{
			PlayerID: peer.ID(),
			Nickname: m.nickname,
			Color:    m.color,
			X:        msg.Cursor.X,
			Y:        msg.Cursor.Y,
		}}, peer.ID())

	case protocol.KindChat:
		m := r.member(peer.ID())
		if m == nil {
			return
		}
		r.broadcast(protocol.Message{Type: protocol.KindChat, Chat: &protocol.Chat{
			PlayerID: peer.ID(),
			Nickname: m.nickname,
			Color:    m.color,
			Text:     msg.Chat.Text,
		}}, "")

	case protocol.KindCellClick:
		r.click(peer, msg.CellClick)

	case protocol.KindHint:
		if !r.contains(msg.Hint.Row, msg.Hint.Col) {
			peer.Send(peer.Context(), protocol.NewError("hint outside the board"))
			return
		}
		r.mu.Lock()
		if r.hints < protocol.MaxHintsUsed {
			r.hints++
		}
		hints := r.hints
		r.mu.Unlock()
		r.broadcast(protocol.NewCellUpdate(&protocol.CellUpdate{
			HintsUsed: protocol.IntPtr(hints),
			Updates:   []protocol.CellChange{{Row: msg.Hint.Row, Col: msg.Hint.Col, Type: protocol.CellSafe}},
		}), "")

	case protocol.KindNewGame:
		r.mu.Lock()
		r.revealed = make(map[protocol.Coord]bool)
		r.hints = 0
		snapshot := r.snapshotLocked()
		r.mu.Unlock()
		r.broadcast(protocol.NewGameState(snapshot), "")
	}
}

func (r *Room) click(peer minesync.Peer, cc *protocol.CellClick) {
	if !r.contains(cc.Row, cc.Col) {
		peer.Send(peer.Context(), protocol.NewError("click outside the board"))
		return
	}

	if cc.Flag {
		m := r.member(peer.ID())
		if m == nil {
			return
		}
		r.broadcast(protocol.Message{Type: protocol.KindChat, Chat: &protocol.Chat{
			PlayerID: peer.ID(),
			Nickname: m.nickname,
			Color:    m.color,
			Text:     m.nickname + " toggled a flag",
			IsSystem: true,
			Action:   "flag",
			Cell:     &protocol.Coord{Row: cc.Row, Col: cc.Col},
		}}, "")
		return
	}

	r.mu.Lock()
	r.revealed[protocol.Coord{Row: cc.Row, Col: cc.Col}] = true
	revealed := len(r.revealed)
	r.mu.Unlock()

	r.broadcast(protocol.NewCellUpdate(&protocol.CellUpdate{
		Revealed: protocol.IntPtr(revealed),
		Updates:  []protocol.CellChange{{Row: cc.Row, Col: cc.Col, Type: 0}},
	}), "")
}

func (r *Room) contains(row, col int) bool {
	return row >= 0 && row < r.rows && col >= 0 && col < r.cols
}

func (r *Room) member(id string) *member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members[id]
}

func (r *Room) roster() protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	players := make([]protocol.Player, 0, len(r.order))
	for _, id := range r.order {
		m := r.members[id]
		players = append(players, protocol.Player{ID: id, Nickname: m.nickname, Color: m.color})
	}
	return protocol.NewPlayers(players...)
}

func (r *Room) snapshotLocked() *protocol.GameState {
	board := make([][]protocol.Cell, r.rows)
	for row := range board {
		board[row] = make([]protocol.Cell, r.cols)
		for col := range board[row] {
			board[row][col].Revealed = r.revealed[protocol.Coord{Row: row, Col: col}]
		}
	}
	return &protocol.GameState{
		Board:     board,
		Rows:      r.rows,
		Cols:      r.cols,
		Revealed:  len(r.revealed),
		HintsUsed: r.hints,
	}
}

// broadcast sends msg to every member except skip.
func (r *Room) broadcast(msg protocol.Message, skip string) {
	r.mu.Lock()
	peers := make([]minesync.Peer, 0, len(r.members))
	for id, m := range r.members {
		if id != skip {
			peers = append(peers, m.peer)
		}
	}
	r.mu.Unlock()

	for _, p := range peers {
		p.Send(context.Background(), msg)
	}
}
