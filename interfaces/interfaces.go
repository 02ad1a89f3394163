// Package interfaces defines the core abstractions of the health post API
// so that storage backends, schedulers and health checks can be swapped
// and mocked independently.
package interfaces

import (
	"context"
	"time"
)

// Change is delivered to a subscriber when its path, one of its ancestors
// or one of its descendants is written. Value is the fresh value at the
// subscribed path.
type Change struct {
	Path   string
	Value  any
	Exists bool
}

// ChangeFunc receives change notifications. It must not block for long:
// the in-memory store calls it synchronously.
type ChangeFunc func(Change)

// DocumentStore is a hierarchical document store addressed by
// slash-separated paths. Values are JSON-shaped: nil, bool, float64,
// string, []any and map[string]any. Structs are accepted on write and
// normalized through their JSON encoding.
type DocumentStore interface {
	// Read returns the value at path, assembling children into an object.
	Read(ctx context.Context, path string) (value any, exists bool, err error)

	// Write replaces the value at path and everything below it.
	// Writing nil deletes the path.
	Write(ctx context.Context, path string, value any) error

	// Update applies several writes atomically. Paths must not overlap.
	Update(ctx context.Context, values map[string]any) error

	// Delete removes path and everything below it.
	Delete(ctx context.Context, path string) error

	// Subscribe registers fn for changes related to path. The returned
	// function cancels the subscription; cancelling ctx does the same.
	Subscribe(ctx context.Context, path string, fn ChangeFunc) (unsubscribe func(), err error)

	Ping(ctx context.Context) error
	Close() error
}

// CacheStatus reports the freshness of an in-memory snapshot.
type CacheStatus interface {
	LastUpdated() time.Time
	Count() int
}

// Scheduler defines the contract for background job scheduling.
type Scheduler interface {
	// Lifecycle management
	Start() error
	Stop()
}

// HealthChecker defines the contract for health check functionality.
// It provides system health monitoring and reporting.
type HealthChecker interface {
	// HealthCheck returns current system health status and the HTTP
	// status code that reports it
	HealthCheck(ctx context.Context) (status string, details map[string]any, httpStatus int)

	// NextSweep returns the next scheduled stock sweep
	NextSweep() time.Time
}
