// Package database holds the Postgres plumbing shared by the daemon and CLI:
// pool construction, schema migrations and per-operation timeouts.
package database

import (
	"context"
	"time"
)

// Timeouts applied to individual repository calls.
const (
	DefaultQueryTimeout = 5 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	// Bulk covers retention deletes and full field rebuilds.
	DefaultBulkTimeout = 2 * time.Minute
)

// QueryContext creates a context with DefaultQueryTimeout.
func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultQueryTimeout)
}

// WriteContext creates a context with DefaultWriteTimeout.
func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultWriteTimeout)
}

// BulkContext creates a context with DefaultBulkTimeout.
func BulkContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultBulkTimeout)
}
