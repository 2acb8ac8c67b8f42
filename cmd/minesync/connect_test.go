package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/luciancaetano/minesync"
	"github.com/luciancaetano/minesync/internal/metrics"
	"github.com/luciancaetano/minesync/internal/protocol"
	"github.com/luciancaetano/minesync/ws"
)

// sendRecorder records the messages of the Send helpers it overrides.
type sendRecorder struct {
	minesync.Client
	sent []protocol.Message
}

func (r *sendRecorder) SendNickname(name string) error {
	return r.record(protocol.NewNickname(name))
}

func (r *sendRecorder) SendChatMessage(text string) error {
	return r.record(protocol.NewChat(text))
}

func (r *sendRecorder) SendNewGame() error {
	return r.record(protocol.NewNewGame())
}

func (r *sendRecorder) SendCellClick(row, col int, flag bool) error {
	return r.record(protocol.NewCellClick(row, col, flag))
}

func (r *sendRecorder) SendHint(row, col int) error {
	return r.record(protocol.NewHint(row, col))
}

func (r *sendRecorder) SendCursor(x, y float64) error {
	return r.record(protocol.NewCursor(x, y))
}

func (r *sendRecorder) record(msg protocol.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	r.sent = append(r.sent, msg)
	return nil
}

// TestRunCommand tests parsing of stdin commands
func TestRunCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line    string
		want    protocol.Kind
		wantErr bool
	}{
		{line: "nick ann", want: protocol.KindNickname},
		{line: "say gl hf", want: protocol.KindChat},
		{line: "new", want: protocol.KindNewGame},
		{line: "click 3 4", want: protocol.KindCellClick},
		{line: "flag 3 4", want: protocol.KindCellClick},
		{line: "hint 1 1", want: protocol.KindHint},
		{line: "cursor 12.5 40", want: protocol.KindCursor},
		{line: "click 3", wantErr: true},
		{line: "click a b", wantErr: true},
		{line: "cursor 1", wantErr: true},
		{line: "dance", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			t.Parallel()

			r := &sendRecorder{}
			err := runCommand(r, tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("runCommand(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(r.sent) != 1 || r.sent[0].Type != tt.want {
				t.Fatalf("sent = %+v, want one %s", r.sent, tt.want)
			}
		})
	}
}

// TestRunCommandFlag tests that flag and click differ only by the flag bit
func TestRunCommandFlag(t *testing.T) {
	t.Parallel()

	r := &sendRecorder{}
	if err := runCommand(r, "flag 2 5"); err != nil {
		t.Fatal(err)
	}
	if err := runCommand(r, "click 2 5"); err != nil {
		t.Fatal(err)
	}
	if !r.sent[0].CellClick.Flag || r.sent[1].CellClick.Flag {
		t.Errorf("flags = %v, %v", r.sent[0].CellClick.Flag, r.sent[1].CellClick.Flag)
	}
}

// TestReadCommands tests that bad lines are reported and skipped
func TestReadCommands(t *testing.T) {
	t.Parallel()

	r := &sendRecorder{}
	var out bytes.Buffer
	readCommands(strings.NewReader("nick ann\n\nbogus\nnew\n"), r, nil, &out)

	if len(r.sent) != 2 {
		t.Errorf("sent %d messages, want 2", len(r.sent))
	}
	if !strings.Contains(out.String(), `unknown command "bogus"`) {
		t.Errorf("output = %q", out.String())
	}
}

// TestReadCommandsCursors tests the cursors command with and without
// tracking
func TestReadCommandsCursors(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	readCommands(strings.NewReader("cursors\n"), &sendRecorder{}, nil, &out)
	if !strings.Contains(out.String(), "--cursors") {
		t.Errorf("untracked output = %q", out.String())
	}

	interp := ws.NewInterpolator(nil)
	defer interp.Stop()
	interp.Update("bob-1", 40, 12.5)
	interp.Update("ann-1", 10, 20)

	out.Reset()
	readCommands(strings.NewReader("cursors\n"), &sendRecorder{}, interp, &out)
	want := "cursor ann-1 10.00 20.00\ncursor bob-1 40.00 12.50\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

// TestPrintMessage tests the rendering of server messages
func TestPrintMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  protocol.Message
		want string
	}{
		{
			name: "players",
			msg:  protocol.NewPlayers(protocol.Player{ID: "a", Nickname: "ann"}, protocol.Player{ID: "b", Nickname: "bob"}),
			want: "players: ann, bob\n",
		},
		{
			name: "error",
			msg:  protocol.NewError("click outside the board"),
			want: "server error: click outside the board\n",
		},
		{
			name: "update",
			msg: protocol.NewCellUpdate(&protocol.CellUpdate{
				Revealed: protocol.IntPtr(3),
				Updates:  []protocol.CellChange{{Row: 1, Col: 1}},
			}),
			want: "update: 1 cells revealed=3\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			printMessage(&out, tt.msg)
			if out.String() != tt.want {
				t.Errorf("printMessage() = %q, want %q", out.String(), tt.want)
			}
		})
	}
}

// TestPrintSnapshot tests that series are printed sorted by name
func TestPrintSnapshot(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.ReconnectAttempt()
	m.KeepaliveTimeout()

	var out bytes.Buffer
	if err := printSnapshot(&out, m); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	k := strings.Index(got, "minesync_keepalive_timeouts_total 1")
	r := strings.Index(got, "minesync_reconnect_attempts_total 1")
	if k < 0 || r < 0 || k > r {
		t.Errorf("snapshot =\n%s", got)
	}
}
