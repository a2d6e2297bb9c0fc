package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/clusteradmin/internal/actor"
	"github.com/rickgao/clusteradmin/internal/admin"
	"github.com/rickgao/clusteradmin/internal/audit"
	"github.com/rickgao/clusteradmin/internal/bus"
	"github.com/rickgao/clusteradmin/internal/mailbox"
	"github.com/rickgao/clusteradmin/internal/metrics"
)

// errClientGone ends the event loop when the reader stops.
var errClientGone = errors.New("client disconnected")

type eventKind int

const (
	eventFrame     eventKind = iota // Decoded client frame
	eventMalformed                  // Client frame that failed to decode
	eventDelivery                   // Reply or timeout from the bus
	eventReadError                  // Reader stopped
)

// event is one item in a connection's mailbox.
type event struct {
	kind  eventKind
	frame admin.Frame
	env   actor.Envelope
	err   error
}

// inflight is what the handler remembers about a dispatched request until its
// reply is released.
type inflight struct {
	kind        string
	destination actor.Pid
	submittedAt time.Time
}

// handler serves one admin connection.
type handler struct {
	id       uint64
	conn     *websocket.Conn
	operator string
	cfg      ServerConfig
	bus      bus.Bus
	audit    audit.Sink
	logger   *slog.Logger

	// Owned by the event loop
	session  *admin.Session
	pending  map[uint64]inflight
	buffered int

	mailbox *mailbox.Queue[event]

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	done      chan struct{}
}

func newHandler(id uint64, conn *websocket.Conn, operator string, s *Server) *handler {
	ctx, cancel := context.WithCancel(context.Background())
	return &handler{
		id:       id,
		conn:     conn,
		operator: operator,
		cfg:      s.cfg,
		bus:      s.bus,
		audit:    s.audit,
		logger:   s.logger.With("conn_id", id),
		session:  admin.NewSession(s.owner, id, s.router),
		pending:  make(map[uint64]inflight),
		mailbox:  mailbox.New[event](s.cfg.MailboxSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// run serves the connection until it closes.
func (h *handler) run() {
	metrics.ConnectionOpened()
	defer metrics.ConnectionClosed()

	h.logger.Info("admin connection opened",
		"remote_addr", h.conn.RemoteAddr().String(),
		"operator", h.operator,
	)

	h.conn.SetReadLimit(h.cfg.ReadLimit)
	h.extendReadDeadline()
	h.conn.SetPongHandler(func(string) error {
		h.extendReadDeadline()
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.readLoop()
	}()
	go func() {
		defer wg.Done()
		h.heartbeatLoop()
	}()

	err := h.eventLoop()

	switch {
	case errors.Is(err, errClientGone):
		h.logger.Info("admin connection closed", "reason", err)
		h.close(websocket.CloseNormalClosure, "")
	case errors.Is(err, admin.ErrContractViolation):
		metrics.RecordContractViolation()
		h.logger.Error("closing connection on contract violation", "error", err)
		h.close(websocket.CloseInternalServerErr, "internal error")
	default:
		h.logger.Warn("closing admin connection", "error", err)
		h.close(websocket.CloseInternalServerErr, "internal error")
	}

	h.mailbox.Close()
	h.cancel()
	wg.Wait()

	metrics.AddBufferedReplies(-h.buffered)
	if st := h.session.Stats(); st.InFlight() > 0 {
		h.logger.Debug("abandoned in-flight requests", "count", st.InFlight())
	}
}

// close sends a close frame and tears down the socket. Safe to call from any
// goroutine, more than once.
func (h *handler) close(code int, text string) {
	h.closeOnce.Do(func() {
		close(h.done)
		_ = h.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, text),
			time.Now().Add(time.Second),
		)
		_ = h.conn.Close()
	})
}

func (h *handler) extendReadDeadline() {
	_ = h.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
}

// readLoop decodes client frames into the mailbox.
func (h *handler) readLoop() {
	for {
		_, data, err := h.conn.ReadMessage()
		if err != nil {
			h.mailbox.Send(event{kind: eventReadError, err: err})
			return
		}
		h.extendReadDeadline()

		f, err := admin.DecodeFrame(data)
		if err != nil {
			h.mailbox.Send(event{kind: eventMalformed, err: err})
			continue
		}
		h.mailbox.Send(event{kind: eventFrame, frame: f})
	}
}

// heartbeatLoop pings the client. A missing pong surfaces as a read
// deadline error in readLoop.
func (h *handler) heartbeatLoop() {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			if err := h.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				h.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

// eventLoop processes mailbox events one at a time until one fails.
func (h *handler) eventLoop() error {
	for {
		ev, ok := h.mailbox.Receive()
		if !ok {
			return errClientGone
		}
		if err := h.handle(ev); err != nil {
			return err
		}
		h.updateBuffered()
	}
}

func (h *handler) handle(ev event) error {
	switch ev.kind {
	case eventFrame:
		switch out := h.session.HandleFrame(ev.frame).(type) {
		case admin.ToBackend:
			h.dispatch(out)
			return nil
		case admin.ToClient:
			metrics.RecordMalformed()
			h.logger.Debug("client sent a non-request frame")
			return h.write(out)
		}
		return nil

	case eventMalformed:
		metrics.RecordMalformed()
		h.logger.Debug("malformed client frame", "error", ev.err)
		return h.write(h.session.OnMalformedClientMessage())

	case eventDelivery:
		released, err := h.session.OnEnvelope(ev.env)
		if err != nil {
			return err
		}
		for _, out := range released {
			if err := h.emit(out); err != nil {
				return err
			}
		}
		return nil

	case eventReadError:
		if websocket.IsCloseError(ev.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return errClientGone
		}
		return fmt.Errorf("%w: %v", errClientGone, ev.err)
	}
	return nil
}

// dispatch sends a request envelope to the bus. If the bus refuses it, the
// request is answered with a timeout through the normal ordering path.
func (h *handler) dispatch(out admin.ToBackend) {
	env := out.Envelope
	seq, _ := env.CorrelationID.Sequence()
	req := env.Msg.(admin.Request)

	h.pending[seq] = inflight{
		kind:        req.Kind(),
		destination: env.To,
		submittedAt: time.Now(),
	}
	metrics.RecordRequest(req.Kind())

	h.logger.Debug("dispatching request",
		"seq", seq,
		"kind", req.Kind(),
		"to", env.To.String(),
	)

	if err := h.bus.Send(h.ctx, env, h.deliver); err != nil {
		h.logger.Warn("bus refused request, answering with timeout",
			"seq", seq,
			"error", err,
		)
		h.mailbox.Send(event{
			kind: eventDelivery,
			env: actor.Envelope{
				To:            env.From,
				From:          env.To,
				Msg:           actor.Timeout{},
				CorrelationID: env.CorrelationID,
			},
		})
	}
}

// deliver is the bus callback. It runs on bus goroutines.
func (h *handler) deliver(env actor.Envelope) {
	h.mailbox.Send(event{kind: eventDelivery, env: env})
}

// emit writes a released reply and records it.
func (h *handler) emit(out admin.ToClient) error {
	if err := h.write(out); err != nil {
		return err
	}

	seq, _ := out.CorrelationID.Sequence()
	p, ok := h.pending[seq]
	if !ok {
		return nil
	}
	delete(h.pending, seq)

	now := time.Now()
	metrics.RecordReply(outcome(out.Reply))
	metrics.RecordReplyLatency(p.kind, now.Sub(p.submittedAt))

	r := audit.NewRecord()
	r.Instance = h.cfg.Instance
	r.ConnectionID = h.id
	r.Seq = seq
	r.Operator = h.operator
	r.RequestKind = p.kind
	r.Destination = p.destination.String()
	r.Outcome = out.Reply.Kind()
	r.SubmittedAt = p.submittedAt
	r.EmittedAt = now
	h.audit.Record(r)

	return nil
}

// write sends one reply frame to the client.
func (h *handler) write(out admin.ToClient) error {
	cid := out.CorrelationID
	data, err := admin.EncodeFrame(admin.Frame{Reply: out.Reply, CorrelationID: &cid})
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}

	_ = h.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	if err := h.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}

// updateBuffered keeps the buffered replies gauge in step with the session.
func (h *handler) updateBuffered() {
	n := h.session.Stats().Buffered
	if n != h.buffered {
		metrics.AddBufferedReplies(n - h.buffered)
		h.buffered = n
	}
}

// outcome maps a reply to its metrics label.
func outcome(r admin.Reply) string {
	switch r.(type) {
	case admin.TimeoutReply:
		return metrics.OutcomeTimeout
	case admin.ErrorReply:
		return metrics.OutcomeError
	case admin.ReplicaNotFoundReply:
		return metrics.OutcomeNotFound
	}
	return metrics.OutcomeOK
}
