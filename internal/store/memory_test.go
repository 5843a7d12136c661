package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/atmx/rwa-engine/internal/model"
)

var t0 = time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)

func ev(seq uint64, kind model.EventKind, subject string) model.Event {
	return model.Event{
		ID:         fmt.Sprintf("00000000-0000-0000-0000-%012d", seq),
		Sequence:   seq,
		Kind:       kind,
		Actor:      "0x00000000000000000000000000000000000001ee",
		Subject:    subject,
		Attributes: map[string]string{"n": "1"},
		Timestamp:  t0.Add(time.Duration(seq) * time.Minute),
	}
}

func TestMemoryStoreAppendAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	batch := []model.Event{ev(1, model.EventPlatformRegistered, "splint_invest"), ev(2, model.EventTransfer, "BORDEAUX-2019")}
	if err := s.AppendEvents(ctx, batch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Replaying a batch is a no-op.
	if err := s.AppendEvents(ctx, batch); err != nil {
		t.Fatalf("replay: %v", err)
	}

	got, err := s.GetEvent(ctx, batch[1].ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Sequence != 2 || got.Kind != model.EventTransfer {
		t.Errorf("event = %+v", got)
	}
	got.Attributes["n"] = "mutated"
	again, _ := s.GetEvent(ctx, batch[1].ID)
	if again.Attributes["n"] != "1" {
		t.Error("stored event was mutated through a returned copy")
	}

	if _, err := s.GetEvent(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	last, _ := s.LastSequence(ctx)
	if last != 2 {
		t.Errorf("LastSequence = %d, want 2", last)
	}
}

func TestMemoryStoreRejectsOutOfOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.AppendEvents(ctx, []model.Event{ev(5, model.EventSwap, "pool")}); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendEvents(ctx, []model.Event{ev(3, model.EventSwap, "pool")}); err == nil {
		t.Error("expected error for out-of-order sequence")
	}
}

func TestMemoryStoreListEvents(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.AppendEvents(ctx, []model.Event{
		ev(1, model.EventAssetTokenized, "splint_invest/BORDEAUX-2019"),
		ev(2, model.EventSwap, "pool-a"),
		ev(3, model.EventSwap, "pool-b"),
		ev(4, model.EventSwap, "pool-a"),
		ev(5, model.EventPriceUpdated, "splint_invest/BORDEAUX-2019"),
	})

	tests := []struct {
		name   string
		filter model.EventFilter
		want   []uint64
	}{
		{"all", model.EventFilter{}, []uint64{1, 2, 3, 4, 5}},
		{"by kind", model.EventFilter{Kind: model.EventSwap}, []uint64{2, 3, 4}},
		{"by subject", model.EventFilter{Subject: "pool-a"}, []uint64{2, 4}},
		{"limit keeps latest", model.EventFilter{Kind: model.EventSwap, Limit: 2}, []uint64{3, 4}},
		{"after", model.EventFilter{After: t0.Add(3 * time.Minute)}, []uint64{4, 5}},
		{"before", model.EventFilter{Before: t0.Add(2 * time.Minute)}, []uint64{1}},
		{"after sequence", model.EventFilter{AfterSequence: 3}, []uint64{4, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListEvents(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d events, want %d", len(got), len(tt.want))
			}
			for i, e := range got {
				if e.Sequence != tt.want[i] {
					t.Errorf("event %d: sequence %d, want %d", i, e.Sequence, tt.want[i])
				}
			}
		})
	}
}
