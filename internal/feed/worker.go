package feed

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/rwa-engine/internal/metrics"
	"github.com/atmx/rwa-engine/internal/model"
)

// Ledger is the subset of the ledger the worker drives.
type Ledger interface {
	PendingRequests() []model.PriceRequest
	GetPlatformInfo(name string) (model.PlatformRecord, bool)
	FulfillPriceRequest(ctx context.Context, caller common.Address, id common.Hash, platform string, price decimal.Decimal) ([]model.Event, error)
}

// Worker polls pending price requests and fulfills each outstanding
// platform with a fetched price, signing as the oracle principal.
type Worker struct {
	ledger      Ledger
	fetcher     Fetcher
	oracle      common.Address
	interval    time.Duration
	concurrency int
	logger      *slog.Logger
}

// NewWorker creates a worker. concurrency bounds in-flight fetches.
func NewWorker(l Ledger, f Fetcher, oracle common.Address, interval time.Duration, concurrency int, logger *slog.Logger) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		ledger:      l,
		fetcher:     f,
		oracle:      oracle,
		interval:    interval,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("price feed worker starting",
		slog.Duration("interval", w.interval),
		slog.Int("concurrency", w.concurrency),
	)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("price feed pass failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce makes one pass over pending requests and returns the number of
// platforms fulfilled. A failed fetch is logged and retried on the next pass.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	pending := w.ledger.PendingRequests()
	metrics.PendingPriceRequests.Set(float64(len(pending)))
	if len(pending) == 0 {
		return 0, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	var fulfilled atomic.Int64
	for _, req := range pending {
		for _, platform := range req.Platforms {
			if _, ok := req.Fulfilled[platform]; ok {
				continue
			}
			req, platform := req, platform
			g.Go(func() error {
				if w.fulfill(ctx, req, platform) {
					fulfilled.Add(1)
				}
				return ctx.Err()
			})
		}
	}
	err := g.Wait()
	return int(fulfilled.Load()), err
}

func (w *Worker) fulfill(ctx context.Context, req model.PriceRequest, platform string) bool {
	log := w.logger.With("request", req.RequestID.Hex(), "asset", req.AssetID, "platform", platform)

	rec, ok := w.ledger.GetPlatformInfo(platform)
	if !ok || !rec.IsActive || !validEndpoint(rec.APIEndpoint) {
		metrics.FeedFetches.WithLabelValues(platform, "skipped").Inc()
		log.Debug("platform not fetchable")
		return false
	}

	price, err := w.fetcher.FetchPrice(ctx, rec.APIEndpoint, req.AssetID)
	if err != nil {
		metrics.FeedFetches.WithLabelValues(platform, "error").Inc()
		log.Warn("price fetch failed", "err", err)
		return false
	}
	metrics.FeedFetches.WithLabelValues(platform, "ok").Inc()

	if _, err := w.ledger.FulfillPriceRequest(ctx, w.oracle, req.RequestID, platform, price); err != nil {
		log.Error("fulfill price request failed", "err", err)
		return false
	}
	log.Info("price request fulfilled", "price", price.String())
	return true
}
