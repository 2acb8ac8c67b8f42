package minesync

// Standard error messages
const (
	// Connection errors
	ErrNotConnected         = "connection is not open"
	ErrAlreadyConnected     = "connection already active"
	ErrConnectionClosed     = "connection is closed"
	ErrContextCancelled     = "context cancelled"
	ErrRateLimited          = "outbound rate limit exceeded"
	ErrLivenessTimeout      = "no pong before the keepalive deadline"
	ErrReconnectExhausted   = "reconnect attempts exhausted"
	ErrServerAlreadyRunning = "server already running"

	// Codec errors
	ErrFailedToEncode    = "failed to encode message"
	ErrFailedToDecode    = "failed to decode frame"
	ErrSchemaUnavailable = "protocol schema unavailable"
	ErrServerOnlyKind    = "message type is sent by the server only"
)

// WebSocket close codes used by the loopback server.
const (
	ClosePolicyViolation = 1008
	CloseGoingAway       = 1001
)
