// Package connection implements the admin WebSocket transport.
//
// Server accepts operator connections. Each connection gets:
//   - a connection id from a counter starting at 1
//   - a reader goroutine that decodes client frames into a mailbox
//   - a single event loop that owns the connection's admin.Session, so
//     correlation state is never shared between goroutines
//
// Replies from the bus land in the same mailbox and are written to the
// client in request order. Client is the matching dialer used by adminctl.
package connection
