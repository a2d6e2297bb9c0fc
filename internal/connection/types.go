package connection

import (
	"errors"
	"time"

	"github.com/rickgao/clusteradmin/internal/actor"
	"github.com/rickgao/clusteradmin/internal/admin"
	"github.com/rickgao/clusteradmin/internal/auth"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrServerClosed    = errors.New("server closed")
)

// OwnerName is the process name of the admin server on its node. Every
// connection's correlation ids carry this pid.
const OwnerName = "admin_server"

// ReplyFrame is a reply received by a Client.
type ReplyFrame struct {
	Reply         admin.Reply
	CorrelationID *actor.CorrelationID
	ReceivedAt    time.Time // Local timestamp when ReadMessage() returned
}

// ServerConfig configures the admin WebSocket server.
type ServerConfig struct {
	Instance     string       // Recorded in audit records
	Node         actor.NodeID // Node whose processes this server fronts
	PingInterval time.Duration
	PongTimeout  time.Duration // Max time without a pong or frame before closing
	WriteTimeout time.Duration // Write deadline for replies and control frames
	ReadLimit    int64         // Max client frame size in bytes
	MailboxSize  int           // Initial per-connection mailbox capacity
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		PingInterval: 15 * time.Second,
		PongTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Second,
		ReadLimit:    1 << 20,
		MailboxSize:  64,
	}
}

// ServerStats provides statistics about the admin server.
type ServerStats struct {
	Active   int   // Open connections
	Accepted int64 // Connections upgraded since start
	Rejected int64 // Upgrade requests refused by authentication
}

// ClientConfig configures an admin client.
type ClientConfig struct {
	URL          string            // WebSocket URL (e.g., ws://127.0.0.1:8443/admin)
	Credentials  *auth.Credentials // Signs the upgrade request (nil = no auth)
	PingTimeout  time.Duration     // Max time without ping before considering connection stale
	WriteTimeout time.Duration     // Write deadline for sends
	BufferSize   int               // Reply channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   256,
	}
}
