package websocket

import (
	"context"
	"sync"
	"testing"

	"github.com/luciancaetano/minesync/internal/protocol"
)

// recordingPeer is an in-memory minesync.Peer.
type recordingPeer struct {
	id string

	mu   sync.Mutex
	sent []protocol.Message
}

func (p *recordingPeer) ID() string { return p.id }
func (p *recordingPeer) RemoteAddr() string { return "pipe" }
func (p *recordingPeer) Context() context.Context { return context.Background() }
func (p *recordingPeer) Close(ctx context.Context) error { return nil }
func (p *recordingPeer) CloseWithCode(ctx context.Context, c int, r string) error { return nil }
func (p *recordingPeer) IsAlive() bool { return true }

func (p *recordingPeer) Send(ctx context.Context, msg protocol.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.sent = append(p.sent, msg)
	p.mu.Unlock()
	return nil
}

func (p *recordingPeer) take() []protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.sent
	p.sent = nil
	return out
}

func (p *recordingPeer) last(t *testing.T) protocol.Message {
	t.Helper()
	msgs := p.take()
	if len(msgs) == 0 {
		t.Fatalf("peer %s received nothing", p.id)
	}
	return msgs[len(msgs)-1]
}

// TestRoomJoin tests the snapshot sent on join and the roster on nickname
func TestRoomJoin(t *testing.T) {
	t.Parallel()

	room := NewRoom(9, 9)
	ann := &recordingPeer{id: "ann-1"}
	room.Join(ann)

	snap := ann.last(t)
	if snap.Type != protocol.KindGameState || snap.GameState.Rows != 9 || snap.GameState.Cols != 9 {
		t.Fatalf("join message = %s %+v", snap.Type, snap.GameState)
	}

	bob := &recordingPeer{id: "bob-1"}
	room.Join(bob)
	bob.take()
	room.Handle(bob, protocol.NewNickname("bob"))

	for _, p := range []*recordingPeer{ann, bob} {
		got := p.last(t)
		if got.Type != protocol.KindPlayers || len(got.Players.Players) != 2 {
			t.Fatalf("peer %s roster = %s %+v", p.id, got.Type, got.Players)
		}
		if got.Players.Players[1].Nickname != "bob" {
			t.Errorf("second player = %+v, want bob", got.Players.Players[1])
		}
		if got.Players.Players[0].Color == got.Players.Players[1].Color {
			t.Error("players share a color")
		}
	}

	room.Leave(bob, false)
	if got := ann.last(t); len(got.Players.Players) != 1 {
		t.Errorf("roster after leave = %+v", got.Players)
	}
}

// TestRoomClick tests reveals, flags and out of board clicks
func TestRoomClick(t *testing.T) {
	t.Parallel()

	room := NewRoom(9, 9)
	ann := &recordingPeer{id: "ann-1"}
	room.Join(ann)
	ann.take()

	room.Handle(ann, protocol.NewCellClick(3, 4, false))
	got := ann.last(t)
	if got.Type != protocol.KindCellUpdate {
		t.Fatalf("reveal reply = %s, want cellUpdate", got.Type)
	}
	if u := got.CellUpdate.Updates[0]; u.Row != 3 || u.Col != 4 || u.Type != 0 {
		t.Errorf("update = %+v", u)
	}
	if *got.CellUpdate.Revealed != 1 {
		t.Errorf("revealed = %d, want 1", *got.CellUpdate.Revealed)
	}

	room.Handle(ann, protocol.NewCellClick(3, 4, true))
	got = ann.last(t)
	if got.Type != protocol.KindChat || !got.Chat.IsSystem || got.Chat.Action != "flag" {
		t.Fatalf("flag reply = %s %+v", got.Type, got.Chat)
	}
	if got.Chat.Cell == nil || got.Chat.Cell.Row != 3 || got.Chat.Cell.Col != 4 {
		t.Errorf("flag cell = %+v", got.Chat.Cell)
	}

	room.Handle(ann, protocol.NewCellClick(20, 0, false))
	if got := ann.last(t); got.Type != protocol.KindError {
		t.Errorf("outside click reply = %s, want error", got.Type)
	}

	room.Handle(ann, protocol.NewNewGame())
	got = ann.last(t)
	if got.Type != protocol.KindGameState || got.GameState.Revealed != 0 {
		t.Errorf("new game = %s %+v", got.Type, got.GameState)
	}
}

// TestRoomRelaysCursor tests that cursors go to everyone but the sender
func TestRoomRelaysCursor(t *testing.T) {
	t.Parallel()

	room := NewRoom(9, 9)
	ann := &recordingPeer{id: "ann-1"}
	bob := &recordingPeer{id: "bob-1"}
	room.Join(ann)
	room.Join(bob)
	ann.take()
	bob.take()

	room.Handle(ann, protocol.NewCursor(12.5, 40))

	if n := len(ann.take()); n != 0 {
		t.Errorf("sender received %d messages", n)
	}
	got := bob.last(t)
	if got.Type != protocol.KindCursor || got.Cursor.PlayerID != "ann-1" || got.Cursor.X != 12.5 {
		t.Errorf("relayed cursor = %+v", got.Cursor)
	}
}

// TestRoomHint tests the hint counter
func TestRoomHint(t *testing.T) {
	t.Parallel()

	room := NewRoom(9, 9)
	ann := &recordingPeer{id: "ann-1"}
	room.Join(ann)
	ann.take()

	room.Handle(ann, protocol.NewHint(1, 1))
	room.Handle(ann, protocol.NewHint(2, 2))
	got := ann.last(t)
	if *got.CellUpdate.HintsUsed != 2 || got.CellUpdate.Updates[0].Type != protocol.CellSafe {
		t.Errorf("hint update = %+v", got.CellUpdate)
	}
}
