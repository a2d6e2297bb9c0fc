package admin

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/rickgao/clusteradmin/internal/actor"
)

// NamespaceID identifies a namespace (a replica group) in the cluster.
type NamespaceID = uuid.UUID

// -----------------------------------------------------------------------------
// Requests
// -----------------------------------------------------------------------------

// Request is an administrative request. The set of implementations is closed.
type Request interface {
	// Kind returns the wire name of the request.
	Kind() string
	isRequest()
}

// GetConfig asks the namespace manager for the node configuration.
type GetConfig struct{}

// Join asks the namespace manager to join the given node to the cluster.
type Join struct {
	Node actor.NodeID
}

// CreateNamespace asks the namespace manager to create a namespace over the given replicas.
type CreateNamespace struct {
	Replicas []actor.Pid
}

// GetNamespaces asks the namespace manager for all namespaces.
type GetNamespaces struct{}

// GetReplicaState asks a replica for its state summary. Routed to Replica itself.
type GetReplicaState struct {
	Replica actor.Pid
}

// GetPrimary asks the namespace manager for the primary of a namespace.
type GetPrimary struct {
	Namespace NamespaceID
}

// GetClusterStatus asks the status server for cluster membership status.
type GetClusterStatus struct{}

// GetMetrics asks the status server for the metrics of a named service.
type GetMetrics struct {
	Service actor.Pid
}

func (GetConfig) Kind() string        { return "get_config" }
func (Join) Kind() string             { return "join" }
func (CreateNamespace) Kind() string  { return "create_namespace" }
func (GetNamespaces) Kind() string    { return "get_namespaces" }
func (GetReplicaState) Kind() string  { return "get_replica_state" }
func (GetPrimary) Kind() string       { return "get_primary" }
func (GetClusterStatus) Kind() string { return "get_cluster_status" }
func (GetMetrics) Kind() string       { return "get_metrics" }

func (GetConfig) isRequest()        {}
func (Join) isRequest()             {}
func (CreateNamespace) isRequest()  {}
func (GetNamespaces) isRequest()    {}
func (GetReplicaState) isRequest()  {}
func (GetPrimary) isRequest()       {}
func (GetClusterStatus) isRequest() {}
func (GetMetrics) isRequest()       {}

// -----------------------------------------------------------------------------
// Replies
// -----------------------------------------------------------------------------

// Reply is the answer to exactly one request. The set of implementations is closed.
//
// Backend-owned payloads (config, namespaces, replica state, cluster status,
// metric values) are carried as raw JSON; this package never interprets them.
type Reply interface {
	// Kind returns the wire name of the reply.
	Kind() string
	isReply()
}

// OkReply acknowledges a request with no result.
type OkReply struct{}

// TimeoutReply reports that the backend did not answer before the deadline.
type TimeoutReply struct{}

// ErrorReply carries a domain error.
type ErrorReply struct {
	Message string
}

// ConfigReply carries the node configuration.
type ConfigReply struct {
	Config json.RawMessage
}

// NamespaceIDReply carries the id of a newly created namespace.
type NamespaceIDReply struct {
	ID NamespaceID
}

// NamespacesReply carries the namespace table.
type NamespacesReply struct {
	Namespaces json.RawMessage
}

// ReplicaStateReply carries a replica state summary.
type ReplicaStateReply struct {
	State json.RawMessage
}

// ReplicaNotFoundReply reports an unknown replica.
type ReplicaNotFoundReply struct {
	Replica actor.Pid
}

// PrimaryReply carries the current primary of a namespace, nil if none is elected.
type PrimaryReply struct {
	Primary *actor.Pid
}

// ClusterStatusReply carries cluster membership status.
type ClusterStatusReply struct {
	Status json.RawMessage
}

// MetricsReply carries the metrics of a service in the order reported.
type MetricsReply struct {
	Metrics []NamedMetric
}

// NamedMetric is one name/value pair of a MetricsReply.
type NamedMetric struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

func (OkReply) Kind() string              { return "ok" }
func (TimeoutReply) Kind() string         { return "timeout" }
func (ErrorReply) Kind() string           { return "error" }
func (ConfigReply) Kind() string          { return "config" }
func (NamespaceIDReply) Kind() string     { return "namespace_id" }
func (NamespacesReply) Kind() string      { return "namespaces" }
func (ReplicaStateReply) Kind() string    { return "replica_state" }
func (ReplicaNotFoundReply) Kind() string { return "replica_not_found" }
func (PrimaryReply) Kind() string         { return "primary" }
func (ClusterStatusReply) Kind() string   { return "cluster_status" }
func (MetricsReply) Kind() string         { return "metrics" }

func (OkReply) isReply()              {}
func (TimeoutReply) isReply()         {}
func (ErrorReply) isReply()           {}
func (ConfigReply) isReply()          {}
func (NamespaceIDReply) isReply()     {}
func (NamespacesReply) isReply()      {}
func (ReplicaStateReply) isReply()    {}
func (ReplicaNotFoundReply) isReply() {}
func (PrimaryReply) isReply()         {}
func (ClusterStatusReply) isReply()   {}
func (MetricsReply) isReply()         {}
