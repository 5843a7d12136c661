// Package ledger owns the four core components and serializes every state
// transition through one lock. Each mutating call validates, mutates and
// then commits the events it emitted; a call that fails commits nothing.
package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/atmx/rwa-engine/internal/amm"
	"github.com/atmx/rwa-engine/internal/automation"
	"github.com/atmx/rwa-engine/internal/delegation"
	"github.com/atmx/rwa-engine/internal/metrics"
	"github.com/atmx/rwa-engine/internal/model"
	"github.com/atmx/rwa-engine/internal/oracle"
	"github.com/atmx/rwa-engine/internal/registry"
	"github.com/atmx/rwa-engine/internal/token"
)

// Sink receives every committed batch of events, in commit order.
type Sink interface {
	Publish(ctx context.Context, events []model.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, events []model.Event) error

func (f SinkFunc) Publish(ctx context.Context, events []model.Event) error { return f(ctx, events) }

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces the wall clock, for tests.
func WithClock(c model.Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithAMMConfig overrides the pool engine's fee and routing parameters.
func WithAMMConfig(cfg amm.Config) Option {
	return func(l *Ledger) { l.ammCfg = cfg }
}

// WithDailyWindow overrides the delegation volume window.
func WithDailyWindow(d time.Duration) Option {
	return func(l *Ledger) { l.window = d }
}

// WithSink adds a consumer of committed events.
func WithSink(s Sink) Option {
	return func(l *Ledger) { l.sinks = append(l.sinks, s) }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(lg *slog.Logger) Option {
	return func(l *Ledger) { l.logger = lg }
}

// WithStartSequence continues event numbering after seq, so a fresh ledger
// appends to an existing journal without colliding.
func WithStartSequence(seq uint64) Option {
	return func(l *Ledger) { l.seq = seq }
}

// Ledger is the top-level engine state.
type Ledger struct {
	mu         sync.RWMutex
	clock      model.Clock
	principals model.Principals
	ammCfg     amm.Config
	window     time.Duration
	sinks      []Sink
	logger     *slog.Logger

	bank       *token.Bank
	registry   *registry.Registry
	pools      *amm.Engine
	oracle     *oracle.Oracle
	automation *automation.Engine

	pending []model.Event
	seq     uint64
}

// New wires the components together.
func New(p model.Principals, opts ...Option) *Ledger {
	l := &Ledger{
		clock:      time.Now,
		principals: p,
		ammCfg:     amm.DefaultConfig(),
		window:     delegation.Window,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	now := l.now
	l.bank = token.NewBank(l)
	l.registry = registry.New(l.bank, l, now, p)
	l.pools = amm.New(l.bank, l.registry, l, now, p, l.ammCfg)
	l.oracle = oracle.New(l, now, p)
	l.automation = automation.New(l.registry, l.pools, l.bank, amm.Address,
		delegation.NewLimiter(l.window), l, now, p)
	return l
}

func (l *Ledger) now() time.Time {
	return l.clock().UTC()
}

// Principals returns the privileged identities.
func (l *Ledger) Principals() model.Principals {
	return l.principals
}

// Emit buffers an event for the running operation. Components call it with
// the ledger lock held.
func (l *Ledger) Emit(kind model.EventKind, actor common.Address, subject string, attrs map[string]string) {
	l.pending = append(l.pending, model.Event{
		Kind:       kind,
		Actor:      actor.Hex(),
		Subject:    subject,
		Attributes: attrs,
		Timestamp:  l.now(),
	})
}

// mutate runs fn under the write lock. On success the buffered events are
// sequenced and handed to every sink; on failure they are dropped. The lock
// is released even if fn or a sink panics.
func mutate[T any](ctx context.Context, l *Ledger, op string, fn func() (T, error)) (T, []model.Event, error) {
	start := time.Now()
	res, events, err := commit(ctx, l, op, fn)
	if err != nil {
		metrics.Rejections.WithLabelValues(op, ErrorKind(err)).Inc()
		l.logger.Debug("operation rejected", "op", op, "err", err)
		var zero T
		return zero, nil, err
	}

	metrics.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	for _, e := range events {
		metrics.EventsTotal.WithLabelValues(string(e.Kind)).Inc()
	}
	return res, events, nil
}

func commit[T any](ctx context.Context, l *Ledger, op string, fn func() (T, error)) (T, []model.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = l.pending[:0]
	defer func() { l.pending = l.pending[:0] }()

	res, err := fn()
	if err != nil {
		return res, nil, err
	}

	events := make([]model.Event, len(l.pending))
	for i, e := range l.pending {
		l.seq++
		e.ID = uuid.New().String()
		e.Sequence = l.seq
		events[i] = e
	}

	// Sinks run under the lock so journal order matches commit order.
	for _, s := range l.sinks {
		if perr := s.Publish(ctx, events); perr != nil {
			l.logger.Error("event sink failed", "op", op, "events", len(events), "err", perr)
		}
	}
	return res, events, nil
}

func read[T any](l *Ledger, fn func() T) T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn()
}
