package ddd

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// StateStore holds the current state of this service's aggregates.
type StateStore interface {
	// Records loads the base records with the given ids. Missing ids are skipped.
	Records(ctx context.Context, ids []string) ([]Record, error)
	// ActiveIDs pages through the ids of non-deleted records, zero based.
	ActiveIDs(ctx context.Context, page, pageSize int) ([]string, error)
}

// ProjectionStore persists projections of one type.
type ProjectionStore[P Projection] interface {
	// BulkUpsert writes the whole batch. Every write is attempted; failures
	// come back joined, naming the projection ids that failed.
	BulkUpsert(ctx context.Context, projections []P) error
	// Reset deletes every projection and recreates the container.
	Reset(ctx context.Context) error
	// Uninitialized returns up to limit records not yet materialized.
	Uninitialized(ctx context.Context, limit int) ([]P, error)
	// ByID returns ErrNotFound when there is no such record.
	ByID(ctx context.Context, id string) (P, error)
}

// Undelivered describes work that could not be completed.
type Undelivered struct {
	Source        string    `json:"source"`
	Message       string    `json:"message"`
	ProjectionIDs []string  `json:"projectionIds,omitempty"`
	ReportedAt    time.Time `json:"reportedAt"`
}

// UndeliverableSink receives reports of work that could not be completed.
type UndeliverableSink interface {
	Undeliverable(ctx context.Context, report Undelivered) error
}
