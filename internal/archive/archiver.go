// Package archive exports committed ledger events from the journal to
// object storage as JSON Lines, one object per pass.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/atmx/rwa-engine/internal/metrics"
	"github.com/atmx/rwa-engine/internal/model"
	"github.com/atmx/rwa-engine/internal/store"
)

// BlobWriter stores one object.
type BlobWriter interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}

// Archiver copies journal events past its watermark to a BlobWriter.
type Archiver struct {
	journal  store.Store
	writer   BlobWriter
	prefix   string
	interval time.Duration
	logger   *slog.Logger

	last uint64
}

// New creates an archiver that starts after sequence `from`. Object keys are
// rooted at prefix.
func New(journal store.Store, w BlobWriter, prefix string, from uint64, interval time.Duration, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		journal:  journal,
		writer:   w,
		prefix:   prefix,
		interval: interval,
		logger:   logger,
		last:     from,
	}
}

// Watermark returns the last archived sequence.
func (a *Archiver) Watermark() uint64 { return a.last }

// Run archives on every tick until ctx is cancelled, then makes a final
// pass with a fresh context so shutdown does not lose the tail.
func (a *Archiver) Run(ctx context.Context) error {
	a.logger.Info("event archiver starting", slog.Duration("interval", a.interval), slog.Uint64("from", a.last))
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flush, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := a.RunOnce(flush); err != nil {
				a.logger.Error("final archive pass failed", "err", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.RunOnce(ctx); err != nil {
				a.logger.Error("archive pass failed", "err", err)
			}
		}
	}
}

// RunOnce uploads every event after the watermark as one object and
// returns its key, or "" when there was nothing to archive. The watermark
// only advances after a successful upload.
func (a *Archiver) RunOnce(ctx context.Context) (string, error) {
	events, err := a.journal.ListEvents(ctx, model.EventFilter{AfterSequence: a.last})
	if err != nil {
		return "", fmt.Errorf("list events after %d: %w", a.last, err)
	}
	if len(events) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return "", fmt.Errorf("encode event %d: %w", e.Sequence, err)
		}
	}

	first, last := events[0], events[len(events)-1]
	key := ObjectKey(a.prefix, first.Timestamp, first.Sequence, last.Sequence)
	if err := a.writer.Put(ctx, key, &buf, "application/x-ndjson"); err != nil {
		metrics.ArchiveUploads.WithLabelValues("error").Inc()
		return "", err
	}
	metrics.ArchiveUploads.WithLabelValues("ok").Inc()

	a.last = last.Sequence
	a.logger.Info("events archived", "key", key, "count", len(events), "through", last.Sequence)
	return key, nil
}

// ObjectKey names an archive object by the date of its first event and its
// sequence range, e.g. events/2026/10/16/00000000000000000001-00000000000000000042.jsonl.
func ObjectKey(prefix string, ts time.Time, from, to uint64) string {
	if prefix != "" && prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	return fmt.Sprintf("%s%s/%020d-%020d.jsonl", prefix, ts.UTC().Format("2006/01/02"), from, to)
}
