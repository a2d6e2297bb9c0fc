// Package audit records every admin request the gateway answers.
//
// Connection handlers hand a Record to a Sink as each reply is released to
// the client. Writer queues records and inserts them in batches into the
// admin_audit table; Discard is used when auditing is disabled. Audit
// failures are logged and counted but never affect the client stream.
package audit
