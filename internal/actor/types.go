package actor

import (
	"errors"
	"fmt"
	"strings"
)

// Errors
var (
	ErrInvalidPid = errors.New("invalid pid")
)

// NodeID identifies a cluster node.
type NodeID struct {
	Name string `json:"name"`
	Addr string `json:"addr"`
}

// String returns the node name.
func (n NodeID) String() string {
	return n.Name
}

// Pid is the address of a process (backend service, replica or connection owner)
// running on a cluster node.
type Pid struct {
	Name  string `json:"name"`
	Group string `json:"group,omitempty"` // Empty for ungrouped processes
	Node  NodeID `json:"node"`
}

// String formats the pid as "name::node" or "group::name::node".
func (p Pid) String() string {
	if p.Group != "" {
		return p.Group + "::" + p.Name + "::" + p.Node.Name
	}
	return p.Name + "::" + p.Node.Name
}

// ParsePid parses the String form of a pid. The node part may carry an
// address suffix: "name::node@127.0.0.1:2000".
func ParsePid(s string) (Pid, error) {
	parts := strings.Split(s, "::")

	var pid Pid
	switch len(parts) {
	case 2:
		pid.Name = parts[0]
	case 3:
		pid.Group = parts[0]
		pid.Name = parts[1]
	default:
		return Pid{}, fmt.Errorf("%w: %q", ErrInvalidPid, s)
	}

	node, err := ParseNodeID(parts[len(parts)-1])
	if err != nil {
		return Pid{}, fmt.Errorf("%w: %q", ErrInvalidPid, s)
	}
	pid.Node = node

	if pid.Name == "" {
		return Pid{}, fmt.Errorf("%w: %q", ErrInvalidPid, s)
	}
	return pid, nil
}

// ParseNodeID parses "name" or "name@addr".
func ParseNodeID(s string) (NodeID, error) {
	name, addr, _ := strings.Cut(s, "@")
	if name == "" {
		return NodeID{}, fmt.Errorf("%w: empty node name in %q", ErrInvalidPid, s)
	}
	return NodeID{Name: name, Addr: addr}, nil
}

// CorrelationID ties a request to its eventual reply. Request-scoped ids carry
// the connection id and the request's sequence number; pid-only ids are used
// for replies that were never dispatched to a backend.
type CorrelationID struct {
	Pid        Pid     `json:"pid"`
	Connection *uint64 `json:"connection,omitempty"`
	Request    *uint64 `json:"request,omitempty"`
}

// RequestID builds the correlation id of request seq on connection conn.
func RequestID(pid Pid, conn, seq uint64) CorrelationID {
	return CorrelationID{Pid: pid, Connection: &conn, Request: &seq}
}

// PidOnly builds a correlation id that names only the owning process.
func PidOnly(pid Pid) CorrelationID {
	return CorrelationID{Pid: pid}
}

// Sequence returns the request sequence number, if any.
func (c CorrelationID) Sequence() (uint64, bool) {
	if c.Request == nil {
		return 0, false
	}
	return *c.Request, true
}

// ConnectionID returns the connection id, if any.
func (c CorrelationID) ConnectionID() (uint64, bool) {
	if c.Connection == nil {
		return 0, false
	}
	return *c.Connection, true
}

// Key returns a comparable form suitable for map keys.
func (c CorrelationID) Key() CorrelationKey {
	k := CorrelationKey{Pid: c.Pid}
	if c.Connection != nil {
		k.Connection = *c.Connection
		k.HasConnection = true
	}
	if c.Request != nil {
		k.Request = *c.Request
		k.HasRequest = true
	}
	return k
}

// String renders the id for logs.
func (c CorrelationID) String() string {
	conn, hasConn := c.ConnectionID()
	seq, hasSeq := c.Sequence()
	switch {
	case hasConn && hasSeq:
		return fmt.Sprintf("%s/%d/%d", c.Pid, conn, seq)
	case hasConn:
		return fmt.Sprintf("%s/%d", c.Pid, conn)
	default:
		return c.Pid.String()
	}
}

// CorrelationKey is the comparable form of a CorrelationID.
type CorrelationKey struct {
	Pid           Pid
	Connection    uint64
	HasConnection bool
	Request       uint64
	HasRequest    bool
}

// Envelope is the unit of delivery on the messaging substrate.
type Envelope struct {
	To            Pid
	From          Pid
	Msg           any // Payload; Timeout{} when synthesized by the substrate
	CorrelationID CorrelationID
}

// Timeout is the message delivered in place of a reply when a request goes
// unanswered past its deadline.
type Timeout struct{}
