// Package admin implements the admin protocol engine for a single client
// connection.
//
// A client issues a stream of requests (config, join, namespace creation and
// listing, replica state, primary lookup, cluster status, metrics). Each is
// numbered, routed to a backend service and dispatched asynchronously. Replies
// come back in any order, or as timeouts, and are released to the client in
// exactly the order the requests were issued.
//
// Components:
//   - Allocator: per-connection request sequence numbers
//   - Router: request kind → backend pid
//   - Resequencer: buffers early replies until their turn
//   - Session: ties the three together for one connection
//
// The package also defines the request/reply types and their JSON encodings
// (client frames and envelope payloads).
package admin
