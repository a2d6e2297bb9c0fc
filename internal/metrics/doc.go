// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Requests submitted and replies released, by kind and outcome
//   - Malformed client frames
//   - Replies buffered behind an earlier outstanding reply
//   - Active connections
//   - Late replies and contract violations
//   - Submit-to-release reply latency
package metrics
