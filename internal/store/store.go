// Package store persists the ledger's event journal. Implementations include
// PostgreSQL (source of truth), Redis (read-through cache), and in-memory
// (for testing).
package store

import (
	"context"
	"errors"

	"github.com/atmx/rwa-engine/internal/model"
)

// ErrNotFound is returned when an event id is unknown.
var ErrNotFound = errors.New("store: event not found")

// Store is the journal interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// AppendEvents persists one committed batch. Batches arrive in sequence
	// order; an event already stored is ignored.
	AppendEvents(ctx context.Context, events []model.Event) error

	// GetEvent retrieves an event by its id.
	GetEvent(ctx context.Context, id string) (*model.Event, error)

	// ListEvents returns matching events in sequence order. A positive
	// filter Limit keeps only the most recent matches.
	ListEvents(ctx context.Context, f model.EventFilter) ([]model.Event, error)

	// LastSequence returns the highest stored sequence, or zero.
	LastSequence(ctx context.Context) (uint64, error)
}

// tail keeps the last n events when n is positive.
func tail(events []model.Event, n int) []model.Event {
	if n > 0 && len(events) > n {
		return events[len(events)-n:]
	}
	return events
}
