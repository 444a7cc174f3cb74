package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/searcher/reload"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/redis"
)

func main() {
	configPath := flag.StringP("config", "c", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"backend", cfg.Snapshot.Backend,
		"key", cfg.Snapshot.Key,
	)

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics, err := metrics.StartServer(cfg.Metrics.Port, nil)
		if err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer shutdownMetrics(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snapshots, err := store.Open(cfg)
	if err != nil {
		slog.Error("failed to open snapshot store", "error", err)
		os.Exit(1)
	}
	defer snapshots.Close()

	var corpus []string
	if cfg.Snapshot.CorpusPath != "" {
		corpus, err = indexer.ReadCorpus(cfg.Snapshot.CorpusPath)
		if err != nil {
			slog.Error("failed to read corpus", "path", cfg.Snapshot.CorpusPath, "error", err)
			os.Exit(1)
		}
		slog.Info("corpus loaded", "documents", len(corpus))
	}

	registry := tokenizer.NewRegistry(cfg.Tokenizer)
	holder := &reload.Holder{}
	reloader := reload.NewReloader(holder, func(ctx context.Context) (*indexer.Engine, error) {
		return indexer.OpenFrom(ctx, snapshots, cfg.Snapshot.Key, corpus, cfg,
			indexer.WithRegistry(registry), indexer.WithMetrics(m))
	}, m)
	if err := reloader.Reload(ctx, "startup"); err != nil {
		slog.Warn("starting without an index; waiting for a snapshot", "error", err)
	}

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis, m)
			reloader.OnSwap(func(*indexer.Engine) {
				// Entries for the old index can no longer be hit; drop them
				// instead of waiting for the TTL.
				go func() {
					if err := queryCache.Invalidate(context.Background()); err != nil {
						slog.Warn("post-reload cache invalidation failed", "error", err)
					}
				}()
			})
			slog.Info("search cache enabled",
				"addr", cfg.Redis.Addr,
				"ttl", cfg.Redis.CacheTTL,
			)
		}
	}

	if cfg.Snapshot.Watch {
		if fs, ok := snapshots.(*store.FileStore); ok {
			go func() {
				if err := reload.WatchFile(ctx, fs.Path(cfg.Snapshot.Key), cfg.Snapshot.WatchDebounce, reloader); err != nil {
					slog.Error("snapshot watcher stopped", "error", err)
				}
			}()
		} else {
			slog.Warn("snapshot.watch only applies to the file backend", "backend", snapshots.Name())
		}
	}

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.SnapshotTopic,
			reload.SnapshotHandler(cfg.Snapshot.Key, reloader))
		go func() {
			if err := consumer.Run(ctx); err != nil {
				slog.Error("snapshot event consumer error", "error", err)
			}
		}()
		slog.Info("listening for snapshot events", "topic", cfg.Kafka.SnapshotTopic)
	}

	checker := health.NewChecker(health.WithCheckTimeout(2*time.Second), health.WithCacheTTL(time.Second))
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		e := holder.Current()
		if e == nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: "no index loaded"}
		}
		st := e.Stats()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d docs, %d terms, mode %s", st.TotalDocs, st.VocabularySize, st.Mode),
		}
	})
	if p, ok := snapshots.(store.Pinger); ok {
		checker.Register("snapshot_store", health.PingCheck(p.Ping, health.StatusDegraded))
	}
	if cfg.Redis.Enabled {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if redisClient == nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "not connected"}
			}
			return health.PingCheck(redisClient.Ping, health.StatusDegraded)(ctx)
		})
	}

	h := handler.New(executor.New(holder), queryCache, reloader, m, cfg.Search.DefaultLimit, cfg.Search.MaxResults)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler(nil))

	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Metrics(m, mux),
		middleware.Timeout(cfg.Server.WriteTimeout),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
