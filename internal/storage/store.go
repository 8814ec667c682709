// Package storage implements the Metadata Store: a pluggable interface
// over session records with three conforming backends — in-memory,
// embedded-file-backed (SQLite), and external SQL (PostgreSQL).
package storage

import (
	"context"
	"time"

	"github.com/agentbroker/broker/pkg/types"
)

// Store is the single interface every Metadata Store backend satisfies.
type Store interface {
	// Save upserts a session record by SessionID. Durable on return for
	// persistent variants.
	Save(ctx context.Context, session *types.Session) error

	// Get returns the record for id, or a NotFound apierr.Error.
	Get(ctx context.Context, id string) (*types.Session, error)

	// Delete removes the record for id. A missing id is not an error.
	Delete(ctx context.Context, id string) error

	// Touch atomically updates LastActiveAt to now and, if
	// incrementMessageCount is true, increments MessageCount by one. A
	// missing id is not an error. Called on every chat turn, so
	// implementations must keep this cheap.
	Touch(ctx context.Context, id string, now time.Time, incrementMessageCount bool) error

	// List enumerates session records matching filter. Order is unspecified.
	List(ctx context.Context, filter types.ListFilter) ([]*types.Session, error)

	// SweepExpired removes records whose LastActiveAt+ttl < now and
	// returns their ids. ttl == 0 is a no-op that returns nil.
	SweepExpired(ctx context.Context, now time.Time, ttl time.Duration) ([]string, error)

	// Close releases any held resources (file handles, connection
	// pools). Safe to call once during shutdown.
	Close() error
}
