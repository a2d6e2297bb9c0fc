package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rickgao/clusteradmin/internal/actor"
)

// ErrNotConnected is returned by Send before Connect succeeds.
var ErrNotConnected = errors.New("not connected to NATS")

// NATSConfig holds configuration for the NATS bus.
type NATSConfig struct {
	URL            string
	SubjectPrefix  string
	Instance       string // Names this process's reply subject
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

func (c NATSConfig) applyDefaults() NATSConfig {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "cluster"
	}
	if c.Instance == "" {
		c.Instance = nats.NewInbox()[len(nats.InboxPrefix):]
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// NATS carries envelopes to backend processes over NATS core pub/sub.
//
// Requests are published on SubjectFor(prefix, to) with the reply subject set
// to this instance's reply subject. Backends publish reply envelopes there
// with the request's correlation id unchanged.
type NATS struct {
	config     NATSConfig
	codec      Codec
	correlator *Correlator
	logger     *slog.Logger

	mu   sync.Mutex
	conn *nats.Conn
	sub  *nats.Subscription
}

// wireEnvelope is the JSON body of every message on the bus.
type wireEnvelope struct {
	To            actor.Pid           `json:"to"`
	From          actor.Pid           `json:"from"`
	CorrelationID actor.CorrelationID `json:"correlation_id"`
	Msg           json.RawMessage     `json:"msg"`
}

// UndecodedMsg is delivered in place of a reply body the codec could not
// decode.
type UndecodedMsg struct {
	Data []byte
	Err  error
}

// NewNATS creates a NATS bus. Call Connect before Send.
func NewNATS(config NATSConfig, codec Codec) *NATS {
	config = config.applyDefaults()
	return &NATS{
		config:     config,
		codec:      codec,
		correlator: NewCorrelator(config.RequestTimeout, config.Logger),
		logger:     config.Logger,
	}
}

// Connect dials NATS and subscribes to the reply subject.
func (b *NATS) Connect(ctx context.Context) error {
	conn, err := nats.Connect(
		b.config.URL,
		nats.Name("clusteradmin-"+b.config.Instance),
		nats.Timeout(b.config.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			b.logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	sub, err := conn.Subscribe(b.ReplySubject(), b.handleMsg)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", b.ReplySubject(), err)
	}

	b.mu.Lock()
	b.conn = conn
	b.sub = sub
	b.mu.Unlock()

	b.logger.Info("connected to NATS",
		"url", b.config.URL,
		"reply_subject", b.ReplySubject(),
	)
	return nil
}

// ReplySubject returns the subject this instance receives replies on.
func (b *NATS) ReplySubject() string {
	return b.config.SubjectPrefix + ".reply." + subjectToken(b.config.Instance)
}

// Send implements Bus. Publish failures are logged and the request is left
// to time out.
func (b *NATS) Send(ctx context.Context, env actor.Envelope, deliver DeliverFunc) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	data, err := b.encode(env)
	if err != nil {
		return err
	}

	if err := b.correlator.Track(env, deliver); err != nil {
		return err
	}

	subject := SubjectFor(b.config.SubjectPrefix, env.To)
	if err := conn.PublishMsg(&nats.Msg{
		Subject: subject,
		Reply:   b.ReplySubject(),
		Data:    data,
	}); err != nil {
		b.logger.Warn("failed to publish request",
			"subject", subject,
			"correlation_id", env.CorrelationID.String(),
			"error", err,
		)
	}

	return nil
}

// encode builds the wire body for env.
func (b *NATS) encode(env actor.Envelope) ([]byte, error) {
	msg, err := b.codec.MarshalMsg(env.Msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	data, err := json.Marshal(wireEnvelope{
		To:            env.To,
		From:          env.From,
		CorrelationID: env.CorrelationID,
		Msg:           msg,
	})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// handleMsg resolves a reply arriving on the reply subject.
func (b *NATS) handleMsg(m *nats.Msg) {
	var w wireEnvelope
	if err := json.Unmarshal(m.Data, &w); err != nil {
		b.logger.Warn("dropping undecodable envelope",
			"subject", m.Subject,
			"error", err,
		)
		return
	}

	env := actor.Envelope{
		To:            w.To,
		From:          w.From,
		CorrelationID: w.CorrelationID,
	}

	msg, err := b.codec.UnmarshalMsg(w.Msg)
	if err != nil {
		// Still correlated: the owner decides what an unknown reply means.
		env.Msg = UndecodedMsg{Data: w.Msg, Err: err}
	} else {
		env.Msg = msg
	}

	b.correlator.Resolve(env)
}

// IsConnected reports whether the NATS connection is up.
func (b *NATS) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && b.conn.IsConnected()
}

// Stats returns correlator statistics.
func (b *NATS) Stats() CorrelatorStats {
	return b.correlator.Stats()
}

// Close implements Bus.
func (b *NATS) Close() error {
	b.correlator.Close()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			b.logger.Debug("unsubscribe failed", "error", err)
		}
		b.sub = nil
	}
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	return nil
}

// SubjectFor returns the subject a process listens on:
// <prefix>.<node>.<name>, with .<group> appended for grouped processes.
func SubjectFor(prefix string, pid actor.Pid) string {
	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteByte('.')
	sb.WriteString(subjectToken(pid.Node.Name))
	sb.WriteByte('.')
	sb.WriteString(subjectToken(pid.Name))
	if pid.Group != "" {
		sb.WriteByte('.')
		sb.WriteString(subjectToken(pid.Group))
	}
	return sb.String()
}

// subjectToken makes s safe to use as a single subject token.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
