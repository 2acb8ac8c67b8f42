package ws_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/luciancaetano/minesync"
	"github.com/luciancaetano/minesync/ws"
)

type inbox struct {
	mu   sync.Mutex
	msgs []ws.Message
	cond chan struct{}
}

func newInbox() *inbox {
	return &inbox{cond: make(chan struct{}, 64)}
}

func (b *inbox) push(m ws.Message) {
	b.mu.Lock()
	b.msgs = append(b.msgs, m)
	b.mu.Unlock()
	select {
	case b.cond <- struct{}{}:
	default:
	}
}

// await returns the first message of kind received so far or within 3s.
func (b *inbox) await(t *testing.T, kind ws.Kind) ws.Message {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		b.mu.Lock()
		for i, m := range b.msgs {
			if m.Type == kind {
				b.msgs = append(b.msgs[:i:i], b.msgs[i+1:]...)
				b.mu.Unlock()
				return m
			}
		}
		b.mu.Unlock()
		select {
		case <-b.cond:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("no %s message received", kind)
		}
	}
}

type fixture struct {
	srv   *ws.Server
	ts    *httptest.Server
	url   string
	codec ws.Codec
}

func newFixture(t *testing.T, codec ws.Codec) *fixture {
	t.Helper()
	cfg := &ws.ServerConfig{
		Codec:  codec,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	ws.NewRoom(9, 9).Attach(cfg)
	srv, err := ws.NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{srv: srv, ts: ts, url: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws", codec: codec}
}

func (f *fixture) client(t *testing.T, box *inbox, configure ...func(*ws.Config)) minesync.Client {
	t.Helper()
	cfg := ws.NewConfig(f.url)
	cfg.Codec = f.codec
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.OnMessage = box.push
	for _, fn := range configure {
		fn(cfg)
	}
	c, err := ws.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(c.Disconnect)
	return c
}

func waitState(t *testing.T, c minesync.Client, want minesync.State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for c.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("State() = %s, want %s", c.State(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestCellClickRoundTrip tests a click answered by a cell update over a real
// socket, for both wire formats
func TestCellClickRoundTrip(t *testing.T) {
	t.Parallel()

	codecs := map[string]ws.Codec{
		"schema": ws.SchemaCodec(""),
		"legacy": ws.LegacyCodec(),
	}
	for name, codec := range codecs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, codec)
			box := newInbox()
			c := f.client(t, box)

			if err := c.Connect(context.Background()); err != nil {
				t.Fatalf("Connect() error = %v", err)
			}
			snap := box.await(t, ws.KindGameState)
			if snap.GameState.Rows != 9 || snap.GameState.Cols != 9 {
				t.Errorf("snapshot = %dx%d, want 9x9", snap.GameState.Rows, snap.GameState.Cols)
			}

			if err := c.SendNickname("ann"); err != nil {
				t.Fatalf("SendNickname() error = %v", err)
			}
			roster := box.await(t, ws.KindPlayers)
			if len(roster.Players.Players) != 1 || roster.Players.Players[0].Nickname != "ann" {
				t.Errorf("roster = %+v", roster.Players)
			}
			if id := roster.Players.Players[0].ID; len(id) > 5 {
				t.Errorf("player id %q longer than 5 bytes", id)
			}

			if err := c.SendCellClick(3, 4, false); err != nil {
				t.Fatalf("SendCellClick() error = %v", err)
			}
			update := box.await(t, ws.KindCellUpdate)
			u := update.CellUpdate.Updates[0]
			if u.Row != 3 || u.Col != 4 || u.Type != 0 {
				t.Errorf("update = %+v, want (3,4) revealed", u)
			}
			if update.CellUpdate.Revealed == nil || *update.CellUpdate.Revealed != 1 {
				t.Errorf("revealed = %v, want 1", update.CellUpdate.Revealed)
			}
		})
	}
}

// TestChatBetweenClients tests that a chat line reaches the other player
func TestChatBetweenClients(t *testing.T) {
	t.Parallel()

	f := newFixture(t, ws.SchemaCodec(""))
	annBox, bobBox := newInbox(), newInbox()
	ann := f.client(t, annBox)
	bob := f.client(t, bobBox)

	for _, c := range []minesync.Client{ann, bob} {
		if err := c.Connect(context.Background()); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
	}
	annBox.await(t, ws.KindGameState)
	bobBox.await(t, ws.KindGameState)

	if err := ann.SendNickname("ann"); err != nil {
		t.Fatal(err)
	}
	if err := ann.SendChatMessage("gl hf"); err != nil {
		t.Fatal(err)
	}

	got := bobBox.await(t, ws.KindChat)
	if got.Chat.Text != "gl hf" || got.Chat.Nickname != "ann" {
		t.Errorf("chat = %+v", got.Chat)
	}
}

// TestReconnectAfterServerDrop tests that a dropped connection is restored
// and that Disconnect is final
func TestReconnectAfterServerDrop(t *testing.T) {
	t.Parallel()

	f := newFixture(t, ws.LegacyCodec())
	box := newInbox()
	var mu sync.Mutex
	var closes int
	c := f.client(t, box, func(cfg *ws.Config) {
		cfg.Reconnect = &ws.ReconnectConfig{BaseDelay: 20 * time.Millisecond, MaxAttempts: 5}
		cfg.OnClose = func(error) {
			mu.Lock()
			closes++
			mu.Unlock()
		}
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	box.await(t, ws.KindGameState)

	for _, p := range f.srv.Peers() {
		p.CloseWithCode(context.Background(), minesync.CloseGoingAway, "restart")
	}
	box.await(t, ws.KindGameState)
	waitState(t, c, minesync.StateOpen)

	mu.Lock()
	if closes != 1 {
		t.Errorf("OnClose calls = %d, want 1", closes)
	}
	mu.Unlock()
	if c.Attempts() != 0 {
		t.Errorf("Attempts() = %d after reconnect, want 0", c.Attempts())
	}

	c.Disconnect()
	time.Sleep(100 * time.Millisecond)
	if c.State() != minesync.StateClosed || c.ReconnectPending() {
		t.Errorf("State() = %s pending = %v after Disconnect", c.State(), c.ReconnectPending())
	}
	if err := c.SendNewGame(); err != ws.ErrNotConnected {
		t.Errorf("SendNewGame() after Disconnect = %v, want ErrNotConnected", err)
	}
}

// TestKeepaliveAgainstServer tests that the server answers keepalive pings
func TestKeepaliveAgainstServer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, ws.LegacyCodec())
	c := f.client(t, newInbox(), func(cfg *ws.Config) {
		cfg.Keepalive = &ws.KeepaliveConfig{Interval: 20 * time.Millisecond, Timeout: time.Second}
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	opened := c.LastLiveness()

	deadline := time.Now().Add(3 * time.Second)
	for !c.LastLiveness().After(opened) {
		if time.Now().After(deadline) {
			t.Fatal("no pong refreshed liveness")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !c.IsConnected() {
		t.Errorf("State() = %s, want open", c.State())
	}
}
