package admin

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickgao/clusteradmin/internal/actor"
)

// Errors
var (
	ErrMalformedFrame = errors.New("malformed admin frame")
)

// Frame is one message on an admin client connection: either a request from
// the client or a reply to it.
type Frame struct {
	Request       Request
	Reply         Reply
	CorrelationID *actor.CorrelationID
}

// Frame and envelope message types.
const (
	typeRequest = "req"
	typeReply   = "rpy"
	typeTimeout = "timeout"
)

// DecodeFrame parses a client frame. Any shape other than a well-formed
// request or reply yields ErrMalformedFrame.
func DecodeFrame(data []byte) (Frame, error) {
	var wire frameWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch wire.Type {
	case typeRequest:
		if wire.Req == nil {
			return Frame{}, fmt.Errorf("%w: missing req", ErrMalformedFrame)
		}
		req, err := wire.Req.decode()
		if err != nil {
			return Frame{}, err
		}
		return Frame{Request: req, CorrelationID: wire.CorrelationID}, nil

	case typeReply:
		if wire.Rpy == nil {
			return Frame{}, fmt.Errorf("%w: missing rpy", ErrMalformedFrame)
		}
		rpy, err := wire.Rpy.decode()
		if err != nil {
			return Frame{}, err
		}
		return Frame{Reply: rpy, CorrelationID: wire.CorrelationID}, nil
	}

	return Frame{}, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, wire.Type)
}

// EncodeFrame serializes a client frame.
func EncodeFrame(f Frame) ([]byte, error) {
	wire := frameWire{CorrelationID: f.CorrelationID}
	switch {
	case f.Request != nil && f.Reply == nil:
		wire.Type = typeRequest
		wire.Req = encodeRequest(f.Request)
	case f.Reply != nil && f.Request == nil:
		wire.Type = typeReply
		wire.Rpy = encodeReply(f.Reply)
	default:
		return nil, fmt.Errorf("%w: frame must carry exactly one of request or reply", ErrMalformedFrame)
	}
	return json.Marshal(wire)
}

// WireCodec encodes envelope payloads for transports that carry envelopes
// between processes. Payloads are a Request, a Reply or actor.Timeout.
type WireCodec struct{}

// MarshalMsg encodes an envelope payload.
func (WireCodec) MarshalMsg(msg any) ([]byte, error) {
	var wire frameWire
	switch m := msg.(type) {
	case Request:
		wire.Type = typeRequest
		wire.Req = encodeRequest(m)
	case Reply:
		wire.Type = typeReply
		wire.Rpy = encodeReply(m)
	case actor.Timeout:
		wire.Type = typeTimeout
	default:
		return nil, fmt.Errorf("unsupported envelope payload %T", msg)
	}
	return json.Marshal(wire)
}

// UnmarshalMsg decodes an envelope payload.
func (WireCodec) UnmarshalMsg(data []byte) (any, error) {
	var wire frameWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch wire.Type {
	case typeRequest:
		if wire.Req == nil {
			return nil, fmt.Errorf("%w: missing req", ErrMalformedFrame)
		}
		return wire.Req.decode()
	case typeReply:
		if wire.Rpy == nil {
			return nil, fmt.Errorf("%w: missing rpy", ErrMalformedFrame)
		}
		return wire.Rpy.decode()
	case typeTimeout:
		return actor.Timeout{}, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, wire.Type)
}

// Wire types for JSON encoding

// frameWire is the wire format shared by client frames and envelope payloads.
type frameWire struct {
	Type          string               `json:"type"` // "req", "rpy" or "timeout" (envelopes only)
	Req           *requestWire         `json:"req,omitempty"`
	Rpy           *replyWire           `json:"rpy,omitempty"`
	CorrelationID *actor.CorrelationID `json:"correlation_id,omitempty"`
}

// requestWire is the tagged wire format for every request kind.
type requestWire struct {
	Kind      string        `json:"kind"`
	Node      *actor.NodeID `json:"node,omitempty"`      // join
	Replicas  []actor.Pid   `json:"replicas,omitempty"`  // create_namespace
	Replica   *actor.Pid    `json:"replica,omitempty"`   // get_replica_state
	Namespace *NamespaceID  `json:"namespace,omitempty"` // get_primary
	Service   *actor.Pid    `json:"service,omitempty"`   // get_metrics
}

// replyWire is the tagged wire format for every reply kind.
type replyWire struct {
	Kind       string          `json:"kind"`
	Message    string          `json:"message,omitempty"`    // error
	Config     json.RawMessage `json:"config,omitempty"`     // config
	ID         *NamespaceID    `json:"id,omitempty"`         // namespace_id
	Namespaces json.RawMessage `json:"namespaces,omitempty"` // namespaces
	State      json.RawMessage `json:"state,omitempty"`      // replica_state
	Replica    *actor.Pid      `json:"replica,omitempty"`    // replica_not_found
	Primary    *actor.Pid      `json:"primary,omitempty"`    // primary; absent = no primary
	Status     json.RawMessage `json:"status,omitempty"`     // cluster_status
	Metrics    []NamedMetric   `json:"metrics,omitempty"`    // metrics
}

func encodeRequest(req Request) *requestWire {
	w := &requestWire{Kind: req.Kind()}
	switch r := req.(type) {
	case Join:
		w.Node = &r.Node
	case CreateNamespace:
		w.Replicas = r.Replicas
	case GetReplicaState:
		w.Replica = &r.Replica
	case GetPrimary:
		w.Namespace = &r.Namespace
	case GetMetrics:
		w.Service = &r.Service
	}
	return w
}

func (w *requestWire) decode() (Request, error) {
	switch w.Kind {
	case "get_config":
		return GetConfig{}, nil
	case "join":
		if w.Node == nil || w.Node.Name == "" {
			return nil, fmt.Errorf("%w: join requires node", ErrMalformedFrame)
		}
		return Join{Node: *w.Node}, nil
	case "create_namespace":
		return CreateNamespace{Replicas: w.Replicas}, nil
	case "get_namespaces":
		return GetNamespaces{}, nil
	case "get_replica_state":
		if w.Replica == nil {
			return nil, fmt.Errorf("%w: get_replica_state requires replica", ErrMalformedFrame)
		}
		return GetReplicaState{Replica: *w.Replica}, nil
	case "get_primary":
		if w.Namespace == nil {
			return nil, fmt.Errorf("%w: get_primary requires namespace", ErrMalformedFrame)
		}
		return GetPrimary{Namespace: *w.Namespace}, nil
	case "get_cluster_status":
		return GetClusterStatus{}, nil
	case "get_metrics":
		if w.Service == nil {
			return nil, fmt.Errorf("%w: get_metrics requires service", ErrMalformedFrame)
		}
		return GetMetrics{Service: *w.Service}, nil
	}
	return nil, fmt.Errorf("%w: unknown request kind %q", ErrMalformedFrame, w.Kind)
}

func encodeReply(rpy Reply) *replyWire {
	w := &replyWire{Kind: rpy.Kind()}
	switch r := rpy.(type) {
	case ErrorReply:
		w.Message = r.Message
	case ConfigReply:
		w.Config = r.Config
	case NamespaceIDReply:
		w.ID = &r.ID
	case NamespacesReply:
		w.Namespaces = r.Namespaces
	case ReplicaStateReply:
		w.State = r.State
	case ReplicaNotFoundReply:
		w.Replica = &r.Replica
	case PrimaryReply:
		w.Primary = r.Primary
	case ClusterStatusReply:
		w.Status = r.Status
	case MetricsReply:
		w.Metrics = r.Metrics
	}
	return w
}

func (w *replyWire) decode() (Reply, error) {
	switch w.Kind {
	case "ok":
		return OkReply{}, nil
	case "timeout":
		return TimeoutReply{}, nil
	case "error":
		return ErrorReply{Message: w.Message}, nil
	case "config":
		return ConfigReply{Config: w.Config}, nil
	case "namespace_id":
		if w.ID == nil {
			return nil, fmt.Errorf("%w: namespace_id requires id", ErrMalformedFrame)
		}
		return NamespaceIDReply{ID: *w.ID}, nil
	case "namespaces":
		return NamespacesReply{Namespaces: w.Namespaces}, nil
	case "replica_state":
		return ReplicaStateReply{State: w.State}, nil
	case "replica_not_found":
		if w.Replica == nil {
			return nil, fmt.Errorf("%w: replica_not_found requires replica", ErrMalformedFrame)
		}
		return ReplicaNotFoundReply{Replica: *w.Replica}, nil
	case "primary":
		return PrimaryReply{Primary: w.Primary}, nil
	case "cluster_status":
		return ClusterStatusReply{Status: w.Status}, nil
	case "metrics":
		return MetricsReply{Metrics: w.Metrics}, nil
	}
	return nil, fmt.Errorf("%w: unknown reply kind %q", ErrMalformedFrame, w.Kind)
}
