package connection

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/rickgao/clusteradmin/internal/actor"
	"github.com/rickgao/clusteradmin/internal/admin"
	"github.com/rickgao/clusteradmin/internal/audit"
	"github.com/rickgao/clusteradmin/internal/auth"
	"github.com/rickgao/clusteradmin/internal/bus"
)

// Server accepts admin WebSocket connections and runs one handler per
// connection.
type Server struct {
	cfg      ServerConfig
	bus      bus.Bus
	verifier *auth.Verifier // nil = no auth
	audit    audit.Sink
	logger   *slog.Logger

	owner    actor.Pid
	router   admin.Router
	upgrader websocket.Upgrader

	nextID   atomic.Uint64
	accepted atomic.Int64
	rejected atomic.Int64

	mu       sync.Mutex
	handlers map[uint64]*handler
	closed   bool
	wg       sync.WaitGroup
}

// NewServer creates an admin server dispatching requests over b. verifier
// may be nil to accept unsigned connections; sink may be nil to disable
// auditing.
func NewServer(cfg ServerConfig, b bus.Bus, verifier *auth.Verifier, sink audit.Sink, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = audit.Discard
	}
	return &Server{
		cfg:      cfg,
		bus:      b,
		verifier: verifier,
		audit:    sink,
		logger:   logger,
		owner:    actor.Pid{Name: OwnerName, Node: cfg.Node},
		router:   admin.NewRouter(cfg.Node),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		handlers: make(map[uint64]*handler),
	}
}

// Owner returns the pid that every connection's correlation ids carry.
func (s *Server) Owner() actor.Pid {
	return s.owner
}

// ServeHTTP authenticates and upgrades the request, then serves the
// connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		http.Error(w, ErrServerClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	var operator string
	if s.verifier != nil {
		keyID, err := s.verifier.Verify(r.Method, r.URL.Path, r.Header)
		if err != nil {
			s.rejected.Add(1)
			s.logger.Warn("rejected admin connection",
				"remote_addr", r.RemoteAddr,
				"error", err,
			)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		operator = keyID
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	id := s.nextID.Add(1)
	h := newHandler(id, conn, operator, s)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		h.close(websocket.CloseGoingAway, "server shutting down")
		return
	}
	s.handlers[id] = h
	s.wg.Add(1)
	s.mu.Unlock()

	s.accepted.Add(1)

	defer func() {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
		s.wg.Done()
	}()

	h.run()
}

// Stats returns current statistics.
func (s *Server) Stats() ServerStats {
	s.mu.Lock()
	active := len(s.handlers)
	s.mu.Unlock()

	return ServerStats{
		Active:   active,
		Accepted: s.accepted.Load(),
		Rejected: s.rejected.Load(),
	}
}

// Shutdown refuses new connections, closes open ones and waits for their
// handlers to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	handlers := make([]*handler, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	s.logger.Info("closing admin connections", "count", len(handlers))
	for _, h := range handlers {
		h.close(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("shutdown timeout, handlers still running")
		return errors.Join(ErrServerClosed, ctx.Err())
	}
}
