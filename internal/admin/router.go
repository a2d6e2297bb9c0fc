package admin

import "github.com/rickgao/clusteradmin/internal/actor"

// Well-known backend service names. Both run on every node.
const (
	NamespaceManagerName = "namespace_mgr"
	StatusServerName     = "status_server"
)

// Router maps a request to the backend service that answers it.
type Router struct {
	namespaceMgr actor.Pid
	statusServer actor.Pid
}

// NewRouter creates a router addressing the well-known services on node.
func NewRouter(node actor.NodeID) Router {
	return Router{
		namespaceMgr: actor.Pid{Name: NamespaceManagerName, Node: node},
		statusServer: actor.Pid{Name: StatusServerName, Node: node},
	}
}

// NamespaceManager returns the namespace manager pid.
func (r Router) NamespaceManager() actor.Pid { return r.namespaceMgr }

// StatusServer returns the status server pid.
func (r Router) StatusServer() actor.Pid { return r.statusServer }

// Route returns the destination of req. Every request kind has a destination.
func (r Router) Route(req Request) actor.Pid {
	switch q := req.(type) {
	case GetReplicaState:
		return q.Replica
	case GetClusterStatus, GetMetrics:
		return r.statusServer
	default:
		// GetConfig, Join, CreateNamespace, GetNamespaces, GetPrimary
		return r.namespaceMgr
	}
}
