package bus

import (
	"context"
	"errors"

	"github.com/rickgao/clusteradmin/internal/actor"
)

// Errors
var (
	ErrClosed               = errors.New("bus closed")
	ErrDuplicateCorrelation = errors.New("correlation id already outstanding")
	ErrNoCorrelation        = errors.New("envelope has no request correlation")
)

// DeliverFunc receives the single answer to a request: the backend's reply
// envelope, or an envelope carrying actor.Timeout. It must not block.
type DeliverFunc func(actor.Envelope)

// Bus delivers request envelopes to backend processes and routes their
// replies back to the sender.
type Bus interface {
	// Send dispatches env and arranges for exactly one answer to reach
	// deliver. A nil error does not mean the backend received the request;
	// undelivered requests are answered by timeout. On error the request was
	// not tracked and deliver is never called.
	Send(ctx context.Context, env actor.Envelope, deliver DeliverFunc) error

	// Close stops delivery. Outstanding requests receive no answer.
	Close() error
}

// Codec encodes envelope payloads for transports that leave the process.
type Codec interface {
	MarshalMsg(msg any) ([]byte, error)
	UnmarshalMsg(data []byte) (any, error)
}
