// Package database provides PostgreSQL connection pool management for the
// admin audit trail.
package database
