// Package websocket carries the game protocol over gorilla websockets: a
// Dialer for the client and a loopback game server for development and
// end-to-end tests.
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luciancaetano/minesync"
	"github.com/luciancaetano/minesync/internal/metrics"
	"github.com/luciancaetano/minesync/internal/protocol"
)

// CheckOriginFn validates the origin of an upgrade request.
type CheckOriginFn = func(r *http.Request) bool

// OnConnectFn is called after the handshake, before the peer's read loop
// starts. It runs synchronously; do not block in it.
type OnConnectFn = func(peer minesync.Peer)

// OnDisconnectFn is called once the peer's read loop ends. voluntary is true
// when the server closed the peer itself.
type OnDisconnectFn = func(peer minesync.Peer, voluntary bool)

// HandlerFn receives every decoded client message except pings. It runs on
// the peer's read loop, so messages of one peer arrive in order.
type HandlerFn = func(peer minesync.Peer, msg protocol.Message)

type ServerConfig struct {
	Addr string
	// Codec defaults to the schema codec with the builtin schema.
	Codec           protocol.Codec
	RateLimitConfig *minesync.RateLimitConfig
	CheckOrigin     CheckOriginFn
	OnConnect       OnConnectFn
	OnDisconnect    OnDisconnectFn
	Handler         HandlerFn
	// DisablePong stops the server from answering ping with pong.
	DisablePong bool
	Logger      *slog.Logger
	// Metrics, when set, counts peers and is exposed on /metrics.
	Metrics *metrics.Metrics
}

// Server is the loopback game server. It implements minesync.GameServer.
type Server struct {
	addr    string
	server  *http.Server
	router  chi.Router
	peers   sync.Map // map[string]*Peer
	codec   protocol.Codec
	handler HandlerFn
	pong    bool
	log     *slog.Logger
	metrics *metrics.Metrics

	rateLimitConfig *minesync.RateLimitConfig

	mu           sync.RWMutex
	running      bool
	upgrader     websocket.Upgrader
	onConnect    OnConnectFn
	onDisconnect OnDisconnectFn
}

var _ minesync.GameServer = (*Server)(nil)

// NewServer creates a server. A nil RateLimitConfig applies
// minesync.DefaultRateLimitConfig to every peer.
//
// Example:
//
//	srv, err := NewServer(&ServerConfig{
//	    Addr: ":8080",
//	    Handler: func(peer minesync.Peer, msg protocol.Message) {
//	        log.Printf("%s sent %s", peer.ID(), msg.Type)
//	    },
//	})
func NewServer(cfg *ServerConfig) (*Server, error) {
	codec := cfg.Codec
	if codec == nil {
		var err error
		if codec, err = protocol.NewCodec(protocol.FormatSchema, nil); err != nil {
			return nil, err
		}
	}
	rl := cfg.RateLimitConfig
	if rl == nil {
		rl = minesync.DefaultRateLimitConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		addr:            cfg.Addr,
		codec:           codec,
		handler:         cfg.Handler,
		pong:            !cfg.DisablePong,
		log:             logger,
		metrics:         cfg.Metrics,
		rateLimitConfig: rl,
		onConnect:       cfg.OnConnect,
		onDisconnect:    cfg.OnDisconnect,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}

	r := chi.NewRouter()
	r.Get("/ws", s.handleWebSocket)
	if reg := s.metrics.Registry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	s.router = r

	return s, nil
}

// Handler returns the server's routes, for mounting or httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and returns once the listener is
// up.
func (s *Server) Start(ctx context.Context) error {
	if err := s.codec.Prepare(ctx); err != nil {
		return fmt.Errorf("%s: %w", minesync.ErrSchemaUnavailable, err)
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf(minesync.ErrServerAlreadyRunning)
	}
	s.running = true
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}
	srv := s.server
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(stopCtx)
	case <-time.After(100 * time.Millisecond):
		s.log.Info("game server listening", "addr", s.addr)
		return nil
	}
}

// Stop closes every peer with a going-away code and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv := s.server
	s.mu.Unlock()

	s.closePeers(ctx)

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

func (s *Server) closePeers(ctx context.Context) {
	s.peers.Range(func(key, value any) bool {
		if peer, ok := value.(*Peer); ok {
			peer.CloseWithCode(ctx, minesync.CloseGoingAway, "server shutting down")
		}
		return true
	})
}

// Broadcast encodes msg once and queues it on every connected peer.
func (s *Server) Broadcast(ctx context.Context, msg protocol.Message) error {
	frame, err := s.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", minesync.ErrFailedToEncode, err)
	}
	s.peers.Range(func(key, value any) bool {
		if peer, ok := value.(*Peer); ok {
			if err := peer.sendFrame(ctx, frame); err != nil {
				peer.log.Debug("broadcast skipped", "type", msg.Type.String(), "error", err)
			}
		}
		return true
	})
	return nil
}

// Peer returns a connected peer by id.
func (s *Server) Peer(id string) (*Peer, bool) {
	if peer, ok := s.peers.Load(id); ok {
		return peer.(*Peer), true
	}
	return nil, false
}

// Peers returns the connected peers.
func (s *Server) Peers() []minesync.Peer {
	var out []minesync.Peer
	s.peers.Range(func(key, value any) bool {
		out = append(out, value.(*Peer))
		return true
	})
	return out
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.log.Debug("upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(protocol.MaxFrameSize)

	peer := newPeer(conn, r.RemoteAddr, s.codec, s.rateLimitConfig, s.log)
	s.peers.Store(peer.ID(), peer)
	s.metrics.PeerConnected()

	go s.handlePeer(peer)
}

func (s *Server) handlePeer(peer *Peer) {
	defer func() {
		voluntary := peer.Context().Err() == context.Canceled

		s.peers.Delete(peer.ID())
		s.metrics.PeerDisconnected()
		if s.onDisconnect != nil {
			s.onDisconnect(peer, voluntary)
		}
		peer.Close(context.Background())
	}()

	peer.conn.SetReadDeadline(time.Now().Add(readWait))
	peer.conn.SetPongHandler(func(string) error {
		peer.conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	if s.onConnect != nil {
		s.onConnect(peer)
	}

	for {
		select {
		case <-peer.Context().Done():
			return
		default:
		}

		_, data, err := peer.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				peer.log.Warn("unexpected close", "error", err)
			}
			return
		}
		peer.conn.SetReadDeadline(time.Now().Add(readWait))

		if !peer.allow() {
			peer.log.Warn("rate limit exceeded")
			peer.CloseWithCode(context.Background(), minesync.ClosePolicyViolation, "Rate limit exceeded")
			return
		}

		msg, err := s.codec.Decode(data)
		if err != nil {
			peer.log.Warn("invalid frame", "bytes", len(data), "error", err)
			peer.CloseWithCode(context.Background(), websocket.CloseProtocolError, minesync.ErrFailedToDecode)
			return
		}

		s.dispatch(peer, msg)
	}
}

func (s *Server) dispatch(peer *Peer, msg protocol.Message) {
	if msg.Type.Direction()&protocol.ClientToServer == 0 {
		peer.Send(peer.Context(), protocol.NewError(fmt.Sprintf("unexpected %s message", msg.Type)))
		return
	}
	if msg.Type == protocol.KindPing {
		if s.pong {
			peer.Send(peer.Context(), protocol.NewPong())
		}
		return
	}
	if s.handler != nil {
		s.handler(peer, msg)
	}
}
