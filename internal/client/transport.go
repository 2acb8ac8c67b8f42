package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/luciancaetano/minesync"
)

// Transport is one open duplex connection carrying binary frames.
// ReadFrame is only called from the client's read loop; WriteFrame calls
// are serialized by the client. Close must unblock a pending ReadFrame.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string) (Transport, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, url string) (Transport, error) {
	return f(ctx, url)
}

// Sentinel errors of the connection core.
var (
	ErrNotConnected       = errors.New(minesync.ErrNotConnected)
	ErrAlreadyConnected   = errors.New(minesync.ErrAlreadyConnected)
	ErrRateLimited        = errors.New(minesync.ErrRateLimited)
	ErrLivenessTimeout    = errors.New(minesync.ErrLivenessTimeout)
	ErrReconnectExhausted = errors.New(minesync.ErrReconnectExhausted)
)

// TransportError reports a socket-level failure. Op is "dial", "read",
// "write" or "keepalive".
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
