package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/rwa-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Events are immutable, so single-event reads are cached by id. List
// results are cached under a generation counter that every append bumps.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, then cache) ---

func (s *CachedStore) AppendEvents(ctx context.Context, events []model.Event) error {
	if err := s.primary.AppendEvents(ctx, events); err != nil {
		return err
	}
	pipe := s.rdb.Pipeline()
	for _, e := range events {
		if data, err := json.Marshal(e); err == nil {
			pipe.Set(ctx, eventKey(e.ID), data, s.ttl)
		}
	}
	// Invalidate every cached list; next read will re-populate.
	pipe.Incr(ctx, generationKey)
	_, _ = pipe.Exec(ctx)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	data, err := s.rdb.Get(ctx, eventKey(id)).Bytes()
	if err == nil {
		var e model.Event
		if json.Unmarshal(data, &e) == nil {
			return &e, nil
		}
	}

	e, err := s.primary.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(e); err == nil {
		s.rdb.Set(ctx, eventKey(id), data, s.ttl)
	}
	return e, nil
}

func (s *CachedStore) ListEvents(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	gen, err := s.rdb.Get(ctx, generationKey).Int64()
	if err != nil && err != redis.Nil {
		return s.primary.ListEvents(ctx, f)
	}
	key := listKey(gen, f)

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var events []model.Event
		if json.Unmarshal(data, &events) == nil {
			return events, nil
		}
	}

	events, err := s.primary.ListEvents(ctx, f)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(events); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return events, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) LastSequence(ctx context.Context) (uint64, error) {
	return s.primary.LastSequence(ctx)
}

// --- Cache helpers ---

const generationKey = "events:gen"

func eventKey(id string) string { return fmt.Sprintf("event:%s", id) }

func listKey(gen int64, f model.EventFilter) string {
	return fmt.Sprintf("events:%d:%s:%s:%s:%s:%s:%d:%d", gen, f.Kind, f.Actor, f.Subject,
		f.Before.Format(time.RFC3339Nano), f.After.Format(time.RFC3339Nano), f.AfterSequence, f.Limit)
}
