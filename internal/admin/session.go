package admin

import (
	"errors"
	"fmt"

	"github.com/rickgao/clusteradmin/internal/actor"
)

// ErrContractViolation reports a broken contract with the messaging substrate:
// a reply for a sequence that was already answered or never dispatched, a
// reply addressed to another connection, or an unrecognised payload. It is
// fatal to the connection.
var ErrContractViolation = errors.New("messaging contract violation")

// InvalidRequestMessage is the error text sent for client frames that are not requests.
const InvalidRequestMessage = "Invalid Admin Request"

// Allocator hands out request sequence numbers for one connection.
type Allocator struct {
	next uint64
}

// Allocate returns the next sequence number. Numbers are never reused.
func (a *Allocator) Allocate() uint64 {
	seq := a.next
	a.next++
	return seq
}

// Next returns the sequence number the next Allocate will return.
func (a *Allocator) Next() uint64 {
	return a.next
}

// Output is an item produced by a session for the transport to deliver.
type Output interface {
	isOutput()
}

// ToBackend is a request envelope for the messaging substrate.
type ToBackend struct {
	Envelope actor.Envelope
}

// ToClient is a reply for the client connection.
type ToClient struct {
	Reply         Reply
	CorrelationID actor.CorrelationID
}

func (ToBackend) isOutput() {}
func (ToClient) isOutput()  {}

// Session is the per-connection correlation state: it numbers outgoing
// requests, routes them, and releases replies in request order.
//
// A Session is owned by one connection and driven by one goroutine; it does no
// locking.
type Session struct {
	pid    actor.Pid
	id     uint64
	router Router
	seqs   Allocator
	reseq  *Resequencer[Reply]
}

// NewSession creates the session for connection id owned by pid.
func NewSession(pid actor.Pid, id uint64, router Router) *Session {
	return &Session{
		pid:    pid,
		id:     id,
		router: router,
		reseq:  NewResequencer[Reply](),
	}
}

// Pid returns the owning process.
func (s *Session) Pid() actor.Pid { return s.pid }

// ID returns the connection id.
func (s *Session) ID() uint64 { return s.id }

// HandleFrame processes one inbound client frame. Requests are submitted;
// anything else is answered with an immediate error.
func (s *Session) HandleFrame(f Frame) Output {
	if f.Request == nil || f.Reply != nil {
		return s.OnMalformedClientMessage()
	}
	return s.Submit(f.Request)
}

// Submit numbers req, routes it and returns the envelope to dispatch.
func (s *Session) Submit(req Request) ToBackend {
	seq := s.seqs.Allocate()
	return ToBackend{
		Envelope: actor.Envelope{
			To:            s.router.Route(req),
			From:          s.pid,
			Msg:           req,
			CorrelationID: actor.RequestID(s.pid, s.id, seq),
		},
	}
}

// OnEnvelope processes an envelope delivered by the messaging substrate. The
// payload must be a Reply or actor.Timeout; a timeout becomes a TimeoutReply
// and is ordered like any other reply.
func (s *Session) OnEnvelope(env actor.Envelope) ([]ToClient, error) {
	var rpy Reply
	switch m := env.Msg.(type) {
	case Reply:
		rpy = m
	case actor.Timeout:
		rpy = TimeoutReply{}
	default:
		return nil, fmt.Errorf("%w: unexpected payload %T for %s", ErrContractViolation, env.Msg, env.CorrelationID)
	}
	return s.OnReply(env.CorrelationID, rpy)
}

// OnReply accepts the reply for cid and returns the replies that are now
// releasable to the client, in request order.
func (s *Session) OnReply(cid actor.CorrelationID, rpy Reply) ([]ToClient, error) {
	if cid.Pid != s.pid {
		return nil, fmt.Errorf("%w: reply for %s delivered to %s", ErrContractViolation, cid, s.pid)
	}
	if conn, ok := cid.ConnectionID(); !ok || conn != s.id {
		return nil, fmt.Errorf("%w: reply for %s delivered to connection %d", ErrContractViolation, cid, s.id)
	}
	seq, ok := cid.Sequence()
	if !ok {
		return nil, fmt.Errorf("%w: reply without request sequence: %s", ErrContractViolation, cid)
	}
	if seq >= s.seqs.Next() {
		return nil, fmt.Errorf("%w: reply for undispatched sequence %d (next %d)", ErrContractViolation, seq, s.seqs.Next())
	}

	released, err := s.reseq.Accept(seq, rpy)
	if err != nil {
		return nil, err
	}

	out := make([]ToClient, 0, len(released))
	for _, r := range released {
		out = append(out, ToClient{
			Reply:         r.Value,
			CorrelationID: actor.RequestID(s.pid, s.id, r.Seq),
		})
	}
	return out, nil
}

// OnMalformedClientMessage answers a client frame that is not a request. No
// sequence number is consumed and ordering is bypassed.
func (s *Session) OnMalformedClientMessage() ToClient {
	return ToClient{
		Reply:         ErrorReply{Message: InvalidRequestMessage},
		CorrelationID: actor.PidOnly(s.pid),
	}
}

// Stats returns session statistics.
func (s *Session) Stats() SessionStats {
	rs := s.reseq.Stats()
	return SessionStats{
		Submitted: s.seqs.Next(),
		Cursor:    rs.Cursor,
		Buffered:  rs.Pending,
		MaxBuffer: rs.MaxDepth,
	}
}

// SessionStats contains session statistics.
type SessionStats struct {
	Submitted uint64 // Sequence numbers allocated
	Cursor    uint64 // Next sequence to release
	Buffered  int    // Replies waiting on an earlier sequence
	MaxBuffer int
}

// InFlight returns the number of requests submitted but not yet released.
func (st SessionStats) InFlight() uint64 {
	return st.Submitted - st.Cursor
}
