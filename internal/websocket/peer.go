package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/minesync"
	"github.com/luciancaetano/minesync/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	closeWait  = time.Second
	readWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Peer is a client connected to the loopback server. It implements
// minesync.Peer.
type Peer struct {
	id          string
	conn        *websocket.Conn
	remoteAddr  string
	codec       protocol.Codec
	log         *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	sendCh      chan []byte
	mu          sync.RWMutex
	closed      bool
	rateLimiter *rate.Limiter // inbound frames
}

var _ minesync.Peer = (*Peer)(nil)

func newPeer(conn *websocket.Conn, remoteAddr string, codec protocol.Codec, rl *minesync.RateLimitConfig, log *slog.Logger) *Peer {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()

	p := &Peer{
		id:          id,
		conn:        conn,
		remoteAddr:  remoteAddr,
		codec:       codec,
		log:         log.With("peer_id", id, "remote_addr", remoteAddr),
		ctx:         ctx,
		cancel:      cancel,
		sendCh:      make(chan []byte, 256),
		rateLimiter: rl.NewLimiter(),
	}

	go p.writePump()

	return p
}

func (p *Peer) ID() string {
	return p.id
}

func (p *Peer) RemoteAddr() string {
	return p.remoteAddr
}

// Context is cancelled once the peer is closed.
func (p *Peer) Context() context.Context {
	return p.ctx
}

// Send encodes msg and queues it for the write pump.
func (p *Peer) Send(ctx context.Context, msg protocol.Message) error {
	frame, err := p.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", minesync.ErrFailedToEncode, err)
	}
	return p.sendFrame(ctx, frame)
}

func (p *Peer) sendFrame(ctx context.Context, frame []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf(minesync.ErrConnectionClosed)
	}

	// The read lock is held while queueing so Close cannot close sendCh
	// underneath us.
	select {
	case p.sendCh <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return fmt.Errorf(minesync.ErrContextCancelled)
	}
}

func (p *Peer) Close(ctx context.Context) error {
	return p.CloseWithCode(ctx, websocket.CloseNormalClosure, "")
}

// CloseWithCode sends a close frame with code and reason, then closes the
// connection.
func (p *Peer) CloseWithCode(ctx context.Context, code int, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	p.cancel()

	message := websocket.FormatCloseMessage(code, reason)
	p.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(closeWait))

	close(p.sendCh)
	return p.conn.Close()
}

func (p *Peer) IsAlive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed
}

// allow reports whether one more inbound frame fits the peer's rate limit.
func (p *Peer) allow() bool {
	if p.rateLimiter == nil {
		return true
	}
	return p.rateLimiter.Allow()
}

func (p *Peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-p.sendCh:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				return
			}
			if err := p.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				p.log.Debug("write failed", "error", err)
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-p.ctx.Done():
			return
		}
	}
}
