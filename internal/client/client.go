// Package client implements the connection state machine: dialing,
// decoding inbound frames, keepalive, cursor throttling and reconnecting
// with a linear backoff.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/minesync"
	"github.com/luciancaetano/minesync/internal/clock"
	"github.com/luciancaetano/minesync/internal/cursor"
	"github.com/luciancaetano/minesync/internal/keepalive"
	"github.com/luciancaetano/minesync/internal/metrics"
	"github.com/luciancaetano/minesync/internal/protocol"
)

// ReconnectConfig controls automatic reconnects. The n-th attempt after a
// close waits BaseDelay*n.
type ReconnectConfig struct {
	BaseDelay   time.Duration
	MaxAttempts int
}

// DefaultReconnectConfig returns a 1 second base delay and 5 attempts.
func DefaultReconnectConfig() *ReconnectConfig {
	return &ReconnectConfig{
		BaseDelay:   time.Second,
		MaxAttempts: 5,
	}
}

// Config holds everything a Client needs. Callbacks run on the client's
// goroutines without internal locks held; OnMessage is called from the
// read loop, in transport order.
type Config struct {
	URL    string
	Dialer Dialer
	// Codec defaults to the schema codec with the builtin schema.
	Codec protocol.Codec

	Reconnect *ReconnectConfig
	Keepalive *keepalive.Config
	Throttle  *cursor.ThrottleConfig
	// RateLimit caps outbound messages. Nil or disabled means no cap.
	RateLimit *minesync.RateLimitConfig
	// Interpolator, when set, receives every remote cursor position.
	Interpolator *cursor.Interpolator

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	OnMessage     func(msg protocol.Message)
	OnOpen        func()
	OnClose       func(err error)
	OnStateChange func(state minesync.State)
	OnGiveUp      func(attempts int)
}

// DefaultConfig returns a Config for url with the default reconnect,
// keepalive and throttle settings and no outbound rate cap.
func DefaultConfig(url string) *Config {
	return &Config{
		URL:       url,
		Reconnect: DefaultReconnectConfig(),
		Keepalive: keepalive.DefaultConfig(),
		Throttle:  cursor.DefaultThrottleConfig(),
		RateLimit: minesync.NoRateLimit(),
	}
}

type connection struct {
	id        string
	transport Transport

	writeMu sync.Mutex
	closed  atomic.Bool
}

// markClosed refuses later writes. It never waits for an in-flight write;
// closing the transport unblocks that one.
func (cn *connection) markClosed() {
	cn.closed.Store(true)
}

// Client is the connection state machine. It implements minesync.Client.
type Client struct {
	url          string
	dialer       Dialer
	codec        protocol.Codec
	reconnect    ReconnectConfig
	keepalive    keepalive.Config
	clock        clock.Clock
	log          *slog.Logger
	metrics      *metrics.Metrics
	limiter      *rate.Limiter
	throttler    *cursor.Throttler
	interpolator *cursor.Interpolator

	onMessage     func(protocol.Message)
	onOpen        func()
	onClose       func(error)
	onStateChange func(minesync.State)
	onGiveUp      func(int)

	mu               sync.Mutex
	state            minesync.State
	intentional      bool
	epoch            uint64
	conn             *connection
	monitor          *keepalive.Monitor
	attempts         int
	reconnectTimer   clock.Timer
	reconnectPending bool
	exhausted        bool
	dialCancel       context.CancelFunc
	lastLiveness     time.Time
	notes            []func()
}

var _ minesync.Client = (*Client)(nil)

// New creates an idle Client.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("client: nil config")
	}
	if cfg.URL == "" {
		return nil, errors.New("client: empty url")
	}
	if cfg.Dialer == nil {
		return nil, errors.New("client: nil dialer")
	}

	codec := cfg.Codec
	if codec == nil {
		var err error
		if codec, err = protocol.NewCodec(protocol.FormatSchema, nil); err != nil {
			return nil, err
		}
	}
	reconnect := cfg.Reconnect
	if reconnect == nil {
		reconnect = DefaultReconnectConfig()
	}
	ka := cfg.Keepalive
	if ka == nil {
		ka = keepalive.DefaultConfig()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		url:           cfg.URL,
		dialer:        cfg.Dialer,
		codec:         codec,
		reconnect:     *reconnect,
		keepalive:     *ka,
		clock:         clk,
		log:           logger.With("url", cfg.URL),
		metrics:       cfg.Metrics,
		limiter:       cfg.RateLimit.NewLimiter(),
		interpolator:  cfg.Interpolator,
		onMessage:     cfg.OnMessage,
		onOpen:        cfg.OnOpen,
		onClose:       cfg.OnClose,
		onStateChange: cfg.OnStateChange,
		onGiveUp:      cfg.OnGiveUp,
		state:         minesync.StateIdle,
	}
	c.throttler = cursor.NewThrottler(cfg.Throttle, clk, c.sendThrottledCursor)
	c.metrics.SetState(int(minesync.StateIdle))
	return c, nil
}

// Connect prepares the codec and dials. It is valid from the idle and
// closed states; a pending reconnect is replaced by this attempt.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.codec.Prepare(ctx); err != nil {
		return fmt.Errorf("%s: %w", minesync.ErrSchemaUnavailable, err)
	}

	c.mu.Lock()
	if c.state != minesync.StateIdle && c.state != minesync.StateClosed {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyConnected, state)
	}
	c.intentional = false
	c.exhausted = false
	c.attempts = 0
	c.cancelReconnectLocked()
	c.epoch++
	epoch := c.epoch
	c.setStateLocked(minesync.StateConnecting)
	dialCtx, cancel := c.dialContextLocked(ctx)
	c.unlockAndNotify()

	return c.dial(dialCtx, cancel, epoch)
}

// Disconnect closes the connection on purpose and suppresses reconnects.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.intentional = true
	c.epoch++
	epoch := c.epoch
	c.cancelReconnectLocked()
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	conn := c.conn
	c.releaseLocked()

	tearDown := c.state == minesync.StateOpen || c.state == minesync.StateConnecting
	if tearDown {
		c.setStateLocked(minesync.StateClosing)
	}
	c.unlockAndNotify()

	if conn != nil {
		if err := conn.transport.Close(); err != nil {
			c.log.Debug("close after disconnect", "conn_id", conn.id, "error", err)
		}
		c.log.Info("disconnected", "conn_id", conn.id)
	}

	if tearDown {
		c.mu.Lock()
		if c.epoch == epoch && c.state == minesync.StateClosing {
			c.setStateLocked(minesync.StateClosed)
		}
		c.unlockAndNotify()
	}
}

// Send encodes msg and writes it if the connection is open.
func (c *Client) Send(msg protocol.Message) error {
	if msg.Type.Valid() && msg.Type.Direction()&protocol.ClientToServer == 0 {
		return &protocol.ValidationError{Field: "type", Reason: minesync.ErrServerOnlyKind}
	}
	frame, err := c.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", minesync.ErrFailedToEncode, err)
	}

	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if conn == nil || state != minesync.StateOpen {
		c.log.Debug("dropping message", "type", msg.Type.String(), "state", state.String())
		c.metrics.DroppedSend("not_connected")
		return ErrNotConnected
	}
	if c.limiter != nil && !c.limiter.Allow() {
		c.log.Debug("dropping message", "type", msg.Type.String(), "reason", "rate limited")
		c.metrics.DroppedSend("rate_limited")
		return ErrRateLimited
	}
	return c.write(conn, msg.Type, frame)
}

func (c *Client) SendNickname(name string) error {
	return c.Send(protocol.NewNickname(name))
}

// SendCursor hands the position to the throttler. The frame may go out
// now, later, or never if a newer position replaces it.
func (c *Client) SendCursor(x, y float64) error {
	if err := protocol.NewCursor(x, y).Validate(); err != nil {
		return err
	}
	if !c.IsConnected() {
		c.metrics.DroppedSend("not_connected")
		return ErrNotConnected
	}
	if c.throttler.Push(x, y).Coalesced() {
		c.metrics.CursorCoalesced()
	}
	return nil
}

func (c *Client) SendCellClick(row, col int, flag bool) error {
	return c.Send(protocol.NewCellClick(row, col, flag))
}

func (c *Client) SendHint(row, col int) error {
	return c.Send(protocol.NewHint(row, col))
}

func (c *Client) SendNewGame() error {
	return c.Send(protocol.NewNewGame())
}

func (c *Client) SendChatMessage(text string) error {
	return c.Send(protocol.NewChat(text))
}

func (c *Client) State() minesync.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == minesync.StateOpen
}

func (c *Client) ReconnectPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectPending
}

func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Client) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exhausted
}

func (c *Client) LastLiveness() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastLiveness
}

// ConnID returns the id of the open connection, or "" when none is open.
func (c *Client) ConnID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ""
	}
	return c.conn.id
}

func (c *Client) dial(ctx context.Context, cancel context.CancelFunc, epoch uint64) error {
	defer cancel()

	t, err := c.dialer.Dial(ctx, c.url)

	c.mu.Lock()
	if epoch != c.epoch || c.intentional {
		c.mu.Unlock()
		if t != nil {
			t.Close()
		}
		if err == nil {
			err = errors.New(minesync.ErrContextCancelled)
		}
		return &TransportError{Op: "dial", Err: err}
	}
	c.dialCancel = nil

	if err != nil {
		terr := &TransportError{Op: "dial", Err: err}
		c.log.Warn("dial failed", "attempt", c.attempts, "error", err)
		c.closedLocked(terr)
		c.unlockAndNotify()
		return terr
	}

	conn := &connection{id: uuid.New().String(), transport: t}
	c.conn = conn
	c.attempts = 0
	c.exhausted = false
	c.lastLiveness = c.clock.Now()
	c.throttler.Reset()
	c.monitor = keepalive.New(&c.keepalive, c.clock,
		func() error { return c.sendOn(conn, protocol.NewPing()) },
		func() { c.livenessTimeout(conn) })
	c.monitor.Start()
	c.setStateLocked(minesync.StateOpen)
	if c.onOpen != nil {
		c.notes = append(c.notes, c.onOpen)
	}
	c.log.Info("connected", "conn_id", conn.id)
	c.unlockAndNotify()

	go c.readLoop(conn)
	return nil
}

func (c *Client) readLoop(conn *connection) {
	log := c.log.With("conn_id", conn.id)
	for {
		frame, err := conn.transport.ReadFrame()
		if err != nil {
			c.handleClose(conn, &TransportError{Op: "read", Err: err})
			return
		}

		msg, err := c.codec.Decode(frame)
		if err != nil {
			log.Warn("dropping undecodable frame", "bytes", len(frame), "error", err)
			c.metrics.DecodeError(string(c.codec.Format()))
			continue
		}
		c.metrics.FrameReceived(msg.Type.String(), len(frame))

		c.mu.Lock()
		current := c.conn == conn
		monitor := c.monitor
		if current && msg.Type == protocol.KindPong {
			c.lastLiveness = c.clock.Now()
		}
		c.mu.Unlock()
		if !current {
			return
		}
		c.dispatch(msg, monitor)
	}
}

func (c *Client) dispatch(msg protocol.Message, monitor *keepalive.Monitor) {
	switch msg.Type {
	case protocol.KindPong:
		if monitor != nil {
			monitor.Pong()
		}
		return
	case protocol.KindCursor:
		if c.interpolator != nil && msg.Cursor.PlayerID != "" {
			c.interpolator.Update(msg.Cursor.PlayerID, msg.Cursor.X, msg.Cursor.Y)
		}
	case protocol.KindPlayers:
		if c.interpolator != nil {
			c.pruneCursors(msg.Players)
		}
	}
	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

// pruneCursors stops tracking cursors of players that left the room.
func (c *Client) pruneCursors(roster *protocol.Players) {
	present := make(map[string]bool, len(roster.Players))
	for _, p := range roster.Players {
		present[p.ID] = true
	}
	for id := range c.interpolator.Positions() {
		if !present[id] {
			c.interpolator.Remove(id)
		}
	}
}

// handleClose runs the unsolicited close path for conn. It reports false
// if conn is no longer the current connection.
func (c *Client) handleClose(conn *connection, err error) bool {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return false
	}
	c.releaseLocked()
	c.log.Warn("connection lost", "conn_id", conn.id, "error", err)
	c.closedLocked(err)
	c.unlockAndNotify()

	conn.transport.Close()
	return true
}

func (c *Client) livenessTimeout(conn *connection) {
	if c.handleClose(conn, &TransportError{Op: "keepalive", Err: ErrLivenessTimeout}) {
		c.metrics.KeepaliveTimeout()
	}
}

// sendOn writes msg on conn if it is still the open connection. It is
// used for control frames, which bypass the outbound rate cap.
func (c *Client) sendOn(conn *connection, msg protocol.Message) error {
	frame, err := c.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", minesync.ErrFailedToEncode, err)
	}
	c.mu.Lock()
	current := c.conn == conn && c.state == minesync.StateOpen
	c.mu.Unlock()
	if !current {
		return ErrNotConnected
	}
	return c.write(conn, msg.Type, frame)
}

func (c *Client) sendThrottledCursor(p cursor.Position) {
	if err := c.Send(protocol.NewCursor(p.X, p.Y)); err != nil {
		c.log.Debug("cursor not sent", "error", err)
	}
}

func (c *Client) write(conn *connection, kind protocol.Kind, frame []byte) error {
	conn.writeMu.Lock()
	if conn.closed.Load() {
		conn.writeMu.Unlock()
		c.metrics.DroppedSend("not_connected")
		return ErrNotConnected
	}
	err := conn.transport.WriteFrame(frame)
	conn.writeMu.Unlock()

	if err != nil {
		c.log.Warn("write failed", "conn_id", conn.id, "type", kind.String(), "error", err)
		// The read loop observes the close and runs the reconnect path.
		conn.transport.Close()
		return &TransportError{Op: "write", Err: err}
	}
	c.metrics.FrameSent(kind.String(), len(frame))
	return nil
}

// releaseLocked drops the current transport and stops its timers. The
// caller closes the dropped transport after unlocking.
func (c *Client) releaseLocked() {
	if c.conn != nil {
		c.conn.markClosed()
		c.conn = nil
	}
	if c.monitor != nil {
		c.monitor.Stop()
		c.monitor = nil
	}
	c.throttler.Stop()
}

func (c *Client) closedLocked(err error) {
	c.setStateLocked(minesync.StateClosed)
	if c.onClose != nil {
		onClose := c.onClose
		c.notes = append(c.notes, func() { onClose(err) })
	}
	c.scheduleReconnectLocked()
}

func (c *Client) scheduleReconnectLocked() {
	if c.intentional {
		return
	}
	if c.attempts >= c.reconnect.MaxAttempts {
		c.exhausted = true
		c.reconnectPending = false
		attempts := c.attempts
		c.log.Error("giving up reconnecting", "attempt", attempts, "error", ErrReconnectExhausted)
		c.metrics.ReconnectGiveUp()
		if c.onGiveUp != nil {
			onGiveUp := c.onGiveUp
			c.notes = append(c.notes, func() { onGiveUp(attempts) })
		}
		return
	}

	c.attempts++
	delay := c.reconnect.BaseDelay * time.Duration(c.attempts)
	c.reconnectPending = true
	epoch := c.epoch
	c.log.Info("reconnect scheduled", "attempt", c.attempts, "delay", delay)
	c.reconnectTimer = c.clock.AfterFunc(delay, func() { c.reconnectNow(epoch) })
}

func (c *Client) reconnectNow(epoch uint64) {
	c.mu.Lock()
	if epoch != c.epoch || c.intentional || !c.reconnectPending {
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	c.reconnectPending = false
	c.metrics.ReconnectAttempt()
	c.log.Info("reconnecting", "attempt", c.attempts)
	c.setStateLocked(minesync.StateConnecting)
	ctx, cancel := c.dialContextLocked(context.Background())
	c.unlockAndNotify()

	_ = c.dial(ctx, cancel, epoch)
}

func (c *Client) cancelReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.reconnectPending = false
}

func (c *Client) dialContextLocked(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	c.dialCancel = cancel
	return ctx, cancel
}

func (c *Client) setStateLocked(s minesync.State) {
	if c.state == s {
		return
	}
	c.state = s
	c.metrics.SetState(int(s))
	if c.onStateChange != nil {
		onStateChange := c.onStateChange
		c.notes = append(c.notes, func() { onStateChange(s) })
	}
}

// unlockAndNotify releases mu and then runs the callbacks queued while it
// was held.
func (c *Client) unlockAndNotify() {
	notes := c.notes
	c.notes = nil
	c.mu.Unlock()
	for _, fn := range notes {
		fn()
	}
}
