// Package mailbox provides the unbounded FIFO queue used as a connection's
// event mailbox and as the audit record queue.
//
// Producers (socket readers, bus deliveries, timers) never block on a slow
// consumer; the consumer drains events one at a time with Receive, or in
// batches with DrainTo.
package mailbox
