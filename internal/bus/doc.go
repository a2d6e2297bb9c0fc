// Package bus is the messaging substrate between admin connections and
// backend cluster processes.
//
// A Bus sends request envelopes and routes each reply back through a
// DeliverFunc. The Correlator underneath guarantees that every tracked
// request receives exactly one answer: its reply, or a timeout envelope if
// none arrives within the request timeout. Replies that lose the race with
// the timeout are dropped and counted.
//
// Two implementations are provided:
//
//   - Local: in-process handlers, used by tests and single-node setups.
//   - NATS: core NATS pub/sub with one reply subject per instance.
package bus
