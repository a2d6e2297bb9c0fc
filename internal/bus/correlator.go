package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/clusteradmin/internal/actor"
	"github.com/rickgao/clusteradmin/internal/metrics"
)

// Correlator tracks outstanding requests and guarantees each one exactly one
// answer: the first matching reply, or a timeout once the deadline passes.
// Replies that arrive after the answer was given are dropped.
type Correlator struct {
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[actor.CorrelationKey]*call
	closed  bool
	stats   CorrelatorStats
}

// call is one outstanding request.
type call struct {
	to      actor.Pid
	from    actor.Pid
	cid     actor.CorrelationID
	deliver DeliverFunc
	timer   *time.Timer
}

// CorrelatorStats contains correlator statistics.
type CorrelatorStats struct {
	Outstanding int
	Tracked     int64
	Resolved    int64
	TimedOut    int64
	Late        int64 // Replies with no outstanding request
}

// NewCorrelator creates a correlator that times requests out after timeout.
func NewCorrelator(timeout time.Duration, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{
		timeout: timeout,
		logger:  logger,
		pending: make(map[actor.CorrelationKey]*call),
	}
}

// Track registers env as outstanding. deliver is called exactly once, with
// the reply or with a timeout envelope.
func (c *Correlator) Track(env actor.Envelope, deliver DeliverFunc) error {
	if _, ok := env.CorrelationID.Sequence(); !ok {
		return ErrNoCorrelation
	}
	key := env.CorrelationID.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if _, dup := c.pending[key]; dup {
		return ErrDuplicateCorrelation
	}

	pc := &call{
		to:      env.To,
		from:    env.From,
		cid:     env.CorrelationID,
		deliver: deliver,
	}
	// The timer callback takes c.mu, so it cannot observe the map before
	// this entry is stored.
	pc.timer = time.AfterFunc(c.timeout, func() { c.expire(key) })
	c.pending[key] = pc
	c.stats.Tracked++

	return nil
}

// Resolve hands reply to the request it answers. Returns false if no request
// with that correlation id is outstanding.
func (c *Correlator) Resolve(reply actor.Envelope) bool {
	key := reply.CorrelationID.Key()

	c.mu.Lock()
	pc, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
		pc.timer.Stop()
		c.stats.Resolved++
	} else {
		c.stats.Late++
	}
	c.mu.Unlock()

	if !ok {
		metrics.RecordLateReply()
		c.logger.Debug("dropping reply with no outstanding request",
			"correlation_id", reply.CorrelationID.String(),
			"from", reply.From.String(),
		)
		return false
	}

	pc.deliver(reply)
	return true
}

// expire answers an outstanding request with a timeout.
func (c *Correlator) expire(key actor.CorrelationKey) {
	c.mu.Lock()
	pc, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
		c.stats.TimedOut++
	}
	c.mu.Unlock()

	if !ok {
		return
	}

	c.logger.Debug("request timed out",
		"correlation_id", pc.cid.String(),
		"to", pc.to.String(),
		"timeout", c.timeout,
	)

	pc.deliver(actor.Envelope{
		To:            pc.from,
		From:          pc.to,
		Msg:           actor.Timeout{},
		CorrelationID: pc.cid,
	})
}

// Outstanding returns the number of requests awaiting an answer.
func (c *Correlator) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Stats returns correlator statistics.
func (c *Correlator) Stats() CorrelatorStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stats
	st.Outstanding = len(c.pending)
	return st
}

// Close stops all timers and forgets outstanding requests.
func (c *Correlator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for key, pc := range c.pending {
		pc.timer.Stop()
		delete(c.pending, key)
	}
}
