// Package actor defines the addressing types shared with the cluster's
// messaging substrate.
//
// Types:
//   - NodeID: a cluster node (name + address)
//   - Pid: a process on a node (backend service, replica, connection owner)
//   - CorrelationID: (pid, connection id, request sequence), echoed on replies
//   - Envelope: destination, source, payload and correlation id
//
// A Timeout payload is synthesized by the substrate when a request is not
// answered before its deadline.
package actor
