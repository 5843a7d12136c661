package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/rwa-engine/internal/api"
	"github.com/atmx/rwa-engine/internal/archive"
	"github.com/atmx/rwa-engine/internal/config"
	"github.com/atmx/rwa-engine/internal/feed"
	"github.com/atmx/rwa-engine/internal/ledger"
	"github.com/atmx/rwa-engine/internal/metrics"
	"github.com/atmx/rwa-engine/internal/store"
)

func serve(parent context.Context, cfg *config.Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize journal ---
	journal, cleanup, err := openJournal(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	lastSeq, err := journal.LastSequence(ctx)
	if err != nil {
		return fmt.Errorf("read journal head: %w", err)
	}

	// --- Ledger ---
	wsHub := api.NewWSHub()
	l := ledger.New(cfg.Principals,
		ledger.WithAMMConfig(cfg.AMMOptions()),
		ledger.WithDailyWindow(cfg.Automation.DailyWindow.Duration),
		ledger.WithStartSequence(lastSeq),
		ledger.WithSink(ledger.SinkFunc(journal.AppendEvents)),
		ledger.WithSink(wsHub),
		ledger.WithLogger(logger),
	)
	svc := api.NewService(l, journal, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout.Duration))
	r.Use(metrics.Middleware)
	r.Use(cors(cfg.Server.CORSOrigins))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"rwa-engine"}`))
	})
	r.Handle("/metrics", metrics.Handler())
	r.Route("/api/v1", svc.Routes)

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsHub.Run(gctx)
		return nil
	})

	if cfg.Feed.Enabled {
		worker := feed.NewWorker(l, feed.NewHTTPFetcher(cfg.FetcherOptions()), cfg.Principals.Oracle,
			cfg.Feed.Interval.Duration, cfg.Feed.Concurrency, logger.With("component", "feed"))
		g.Go(func() error { return ignoreCancel(worker.Run(gctx)) })
	}

	if cfg.Archive.Enabled {
		writer, err := archive.NewS3Writer(ctx, cfg.S3Options())
		if err != nil {
			return err
		}
		if err := writer.Health(ctx); err != nil {
			logger.Warn("archive bucket not reachable yet", "err", err)
		}
		// Restarted nodes archive from the current head; earlier events are
		// already in the bucket.
		archiver := archive.New(journal, writer, cfg.Archive.Prefix, lastSeq,
			cfg.Archive.Interval.Duration, logger.With("component", "archive"))
		g.Go(func() error { return ignoreCancel(archiver.Run(gctx)) })
	}

	g.Go(func() error {
		logger.Info("rwa-engine listening", "port", cfg.Server.Port, "journal", journalKind(cfg), "sequence", lastSeq)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down rwa-engine...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("rwa-engine stopped")
	return nil
}

// openJournal selects the event journal: PostgreSQL with an optional Redis
// read cache, or memory when no database is configured.
func openJournal(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	var cleanup []func()
	closeAll := func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}

	if cfg.Database.URL == "" {
		slog.Warn("database url not set, using in-memory journal (events will not persist)")
		return store.NewMemoryStore(), closeAll, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	cleanup = append(cleanup, pool.Close)

	pg := store.NewPostgresStore(pool)
	if cfg.Database.RunMigrations {
		if err := pg.Migrate(ctx); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("migrate journal: %w", err)
		}
	}
	slog.Info("connected to PostgreSQL")

	var st store.Store = pg
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("invalid redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		st = store.NewCachedStore(st, rdb, cfg.Redis.CacheTTL.Duration)
		slog.Info("Redis cache enabled")
	}
	return st, closeAll, nil
}

// cors allows the configured origins and the principal header the API
// authenticates with.
func cors(origins []string) func(http.Handler) http.Handler {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	headers := strings.Join([]string{"Content-Type", "Authorization", api.PrincipalHeader}, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", headers)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
