package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/luciancaetano/minesync"
	"github.com/luciancaetano/minesync/ws"
)

func connectCmd() *cobra.Command {
	var (
		url      string
		nickname string
		codec    string
		cursors  bool
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Join a game room",
		Long: `Join a game room and print what the server sends.

Commands are read from stdin, one per line:
  nick <name>        change nickname
  click <row> <col>  reveal a cell
  flag <row> <col>   toggle a flag
  hint <row> <col>   ask for a hint
  cursor <x> <y>     move the cursor
  new                start a new game
  say <text>         send a chat message
  cursors            show remote cursors (needs --cursors)

Examples:
  minesync connect
  minesync connect --url=wss://mines.example/ws --nick=ann`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd, url, nickname, codec, cursors)
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "", "Server endpoint (default from minesync.json)")
	cmd.Flags().StringVarP(&nickname, "nick", "n", "", "Nickname to announce after connecting")
	cmd.Flags().StringVar(&codec, "codec", "", "Wire format: schema or legacy")
	cmd.Flags().BoolVar(&cursors, "cursors", false, "Track smoothed remote cursor positions")

	return cmd
}

func runConnect(cmd *cobra.Command, url, nickname, codecName string, cursors bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if url != "" {
		cfg.URL = url
	}
	if nickname != "" {
		cfg.Nickname = nickname
	}
	if codecName != "" {
		cfg.Codec = codecName
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	codec, err := cfg.NewCodec()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	m := ws.NewMetrics()

	clientCfg := ws.NewConfig(cfg.URL)
	clientCfg.Codec = codec
	clientCfg.Reconnect = cfg.ReconnectConfig()
	clientCfg.Keepalive = cfg.KeepaliveConfig()
	clientCfg.Throttle = cfg.ThrottleConfig()
	clientCfg.RateLimit = cfg.RateLimitConfig()
	if cursors {
		clientCfg.Interpolator = ws.NewInterpolator(cfg.InterpolatorConfig())
		defer clientCfg.Interpolator.Stop()
	}
	clientCfg.Logger = logger
	clientCfg.Metrics = m
	clientCfg.OnMessage = func(msg ws.Message) {
		printMessage(out, msg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	announce := func() {}
	clientCfg.OnOpen = func() {
		info("Connected to %s", cfg.URL)
		announce()
	}
	clientCfg.OnClose = func(err error) {
		info("Connection lost: %v", err)
	}
	clientCfg.OnGiveUp = func(attempts int) {
		errorMsg("Gave up after %d reconnect attempts", attempts)
		stop()
	}

	c, err := ws.New(clientCfg)
	if err != nil {
		return err
	}
	if cfg.Nickname != "" {
		announce = func() {
			if err := c.SendNickname(cfg.Nickname); err != nil {
				logger.Warn("failed to send nickname", "error", err)
			}
		}
	}

	if err := c.Connect(ctx); err != nil {
		c.Disconnect()
		return err
	}
	go readCommands(cmd.InOrStdin(), c, clientCfg.Interpolator, out)

	<-ctx.Done()
	c.Disconnect()

	return printSnapshot(out, m)
}

// readCommands sends one message per stdin line until stdin closes. A nil
// interp means remote cursors are not tracked.
func readCommands(r io.Reader, c minesync.Client, interp *ws.Interpolator, out io.Writer) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "cursors" {
			if interp == nil {
				fmt.Fprintln(out, "! remote cursors are tracked with --cursors")
				continue
			}
			printCursors(out, interp.Positions())
			continue
		}
		if err := runCommand(c, line); err != nil {
			fmt.Fprintf(out, "! %v\n", err)
		}
	}
}

func runCommand(c minesync.Client, line string) error {
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "nick":
		return c.SendNickname(rest)
	case "say":
		return c.SendChatMessage(rest)
	case "new":
		return c.SendNewGame()
	case "click", "flag", "hint":
		row, col, err := intPair(rest)
		if err != nil {
			return err
		}
		if verb == "hint" {
			return c.SendHint(row, col)
		}
		return c.SendCellClick(row, col, verb == "flag")
	case "cursor":
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return fmt.Errorf("usage: cursor <x> <y>")
		}
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return err
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return err
		}
		return c.SendCursor(x, y)
	default:
		return fmt.Errorf("unknown command %q", verb)
	}
}

func intPair(s string) (int, int, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("expected <row> <col>")
	}
	row, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, err
	}
	col, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, err
	}
	return row, col, nil
}

func printMessage(w io.Writer, msg ws.Message) {
	switch msg.Type {
	case ws.KindGameState:
		gs := msg.GameState
		fmt.Fprintf(w, "game %dx%d revealed=%d hints=%d over=%v won=%v\n",
			gs.Rows, gs.Cols, gs.Revealed, gs.HintsUsed, gs.GameOver, gs.GameWon)
	case ws.KindPlayers:
		names := make([]string, 0, len(msg.Players.Players))
		for _, p := range msg.Players.Players {
			names = append(names, p.Nickname)
		}
		fmt.Fprintf(w, "players: %s\n", strings.Join(names, ", "))
	case ws.KindChat:
		if msg.Chat.IsSystem {
			fmt.Fprintf(w, "* %s\n", msg.Chat.Text)
			return
		}
		fmt.Fprintf(w, "<%s> %s\n", msg.Chat.Nickname, msg.Chat.Text)
	case ws.KindCellUpdate:
		u := msg.CellUpdate
		fmt.Fprintf(w, "update: %d cells", len(u.Updates))
		if u.Revealed != nil {
			fmt.Fprintf(w, " revealed=%d", *u.Revealed)
		}
		if u.GameOver {
			fmt.Fprintf(w, " game over (%s)", u.LoserNickname)
		}
		if u.GameWon {
			fmt.Fprint(w, " game won")
		}
		fmt.Fprintln(w)
	case ws.KindError:
		fmt.Fprintf(w, "server error: %s\n", msg.Error.Text)
	}
}

// printCursors prints rendered cursor positions sorted by player id.
func printCursors(w io.Writer, positions map[string]ws.Position) {
	ids := make([]string, 0, len(positions))
	for id := range positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := positions[id]
		fmt.Fprintf(w, "cursor %s %.2f %.2f\n", id, p.X, p.Y)
	}
}

func printSnapshot(w io.Writer, m *ws.Metrics) error {
	snap, err := m.Snapshot()
	if err != nil {
		return err
	}
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s %g\n", name, snap[name])
	}
	return nil
}
