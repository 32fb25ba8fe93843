// Package rest provides the HTTP REST API layer for the gwatch remote
// collector. It includes a chi router, HS256 JWT authentication middleware,
// and handler functions for event ingestion and query.
package rest

import (
	"context"

	"github.com/gwatch/gwatch/internal/collector/storage"
)

// Store is the subset of storage.Store methods used by the REST handlers.
// Defining an interface allows handlers to be tested with a mock store
// without a live PostgreSQL connection.
type Store interface {
	BatchInsertEvents(ctx context.Context, evt storage.Event) error
	QueryEvents(ctx context.Context, q storage.EventQuery) ([]storage.Event, error)
}
