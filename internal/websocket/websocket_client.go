package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/luciancaetano/minesync/internal/client"
	"github.com/luciancaetano/minesync/internal/protocol"
)

// DialerConfig configures the client side of the websocket transport.
type DialerConfig struct {
	// HandshakeTimeout bounds the opening handshake.
	HandshakeTimeout time.Duration
	// Header is sent with the upgrade request.
	Header http.Header
	// ReadLimit caps inbound frames.
	ReadLimit int64
}

// DefaultDialerConfig returns a 10 second handshake timeout and the
// protocol's frame size limit.
func DefaultDialerConfig() *DialerConfig {
	return &DialerConfig{
		HandshakeTimeout: 10 * time.Second,
		ReadLimit:        protocol.MaxFrameSize,
	}
}

// Dialer opens gorilla websocket connections. It implements client.Dialer.
type Dialer struct {
	dialer    *websocket.Dialer
	header    http.Header
	readLimit int64
}

var _ client.Dialer = (*Dialer)(nil)

func NewDialer(cfg *DialerConfig) *Dialer {
	if cfg == nil {
		cfg = DefaultDialerConfig()
	}
	return &Dialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		header:    cfg.Header,
		readLimit: cfg.ReadLimit,
	}
}

// Dial performs the opening handshake against url.
func (d *Dialer) Dial(ctx context.Context, url string) (client.Transport, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake with %s: %s: %w", url, resp.Status, err)
		}
		return nil, err
	}
	if d.readLimit > 0 {
		conn.SetReadLimit(d.readLimit)
	}
	return &Transport{conn: conn}, nil
}

// Transport is one client websocket connection carrying binary frames.
type Transport struct {
	conn *websocket.Conn

	closeOnce sync.Once
	closeErr  error
}

var _ client.Transport = (*Transport)(nil)

// ReadFrame returns the next binary message. Text messages are skipped.
func (t *Transport) ReadFrame() ([]byte, error) {
	for {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// WriteFrame sends frame as one binary message.
func (t *Transport) WriteFrame(frame []byte) error {
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Close sends a normal closure frame and closes the connection. Later calls
// return the first result.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		t.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(closeWait))
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
