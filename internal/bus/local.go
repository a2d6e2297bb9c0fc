package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/clusteradmin/internal/actor"
)

// Handler answers a request addressed to a registered process. Returning
// ok=false sends no reply; the request is then answered by timeout.
type Handler func(ctx context.Context, env actor.Envelope) (reply any, ok bool)

// Local is an in-process bus. Each request is handled on its own goroutine,
// so replies race each other the way they do across a network.
type Local struct {
	correlator *Correlator
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	handlers map[actor.Pid]Handler
	closed   bool
}

// NewLocal creates an in-process bus with the given request timeout.
func NewLocal(timeout time.Duration, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Local{
		correlator: NewCorrelator(timeout, logger),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		handlers:   make(map[actor.Pid]Handler),
	}
}

// Register installs h as the process at pid, replacing any previous handler.
func (b *Local) Register(pid actor.Pid, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[pid] = h
}

// Unregister removes the process at pid.
func (b *Local) Unregister(pid actor.Pid) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, pid)
}

// Send implements Bus.
func (b *Local) Send(ctx context.Context, env actor.Envelope, deliver DeliverFunc) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}
	if err := b.correlator.Track(env, deliver); err != nil {
		return err
	}

	h, ok := b.handlers[env.To]
	if !ok {
		b.logger.Debug("no process registered, request will time out",
			"to", env.To.String(),
			"correlation_id", env.CorrelationID.String(),
		)
		return nil
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		reply, ok := h(b.ctx, env)
		if !ok {
			return
		}
		b.correlator.Resolve(actor.Envelope{
			To:            env.From,
			From:          env.To,
			Msg:           reply,
			CorrelationID: env.CorrelationID,
		})
	}()

	return nil
}

// Stats returns correlator statistics.
func (b *Local) Stats() CorrelatorStats {
	return b.correlator.Stats()
}

// Close implements Bus. It waits for running handlers to return.
func (b *Local) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.correlator.Close()
	b.wg.Wait()
	return nil
}
