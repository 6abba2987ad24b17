package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "github.com/rabbitwit/PT-Gen-Refactor/internal/api/http"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/app"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/archive"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/cache"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/dispatch"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/metrics"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/providers/bangumi"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/providers/douban"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/providers/fetch"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/providers/imdb"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/providers/melon"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/providers/steam"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/providers/tmdb"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/ratelimit"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/search"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName:    "pt-gen",
		ServiceVersion: apihttp.Version,
		Environment:    cfg.Environment,
	})
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "pt-gen"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.Bool("hasAPIKey", cfg.APIKey != ""),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Bool("archiveEnabled", cfg.ArchiveEnabled),
		slog.Bool("hasTMDBKey", cfg.TMDBAPIKey != ""),
		slog.Bool("hasDoubanCookie", cfg.DoubanCookie != ""),
	)

	fetcher := fetch.NewClient(
		&http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		fetch.WithUserAgent(cfg.UserAgent),
	)

	tmdbClient := tmdb.NewClient(tmdb.Config{
		APIKey:  cfg.TMDBAPIKey,
		BaseURL: cfg.TMDBBaseURL,
		Client: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		SearchTimeout: cfg.SecondaryTimeout,
	})
	if !tmdbClient.Enabled() {
		logger.Warn("tmdb api key not configured, tmdb generation and search disabled")
	}
	imdbProvider := imdb.New(imdb.Config{Fetcher: fetcher})

	registry := dispatch.NewRegistry(
		douban.New(douban.Config{Fetcher: fetcher, Cookie: cfg.DoubanCookie}),
		imdbProvider,
		tmdbClient,
		bangumi.New(bangumi.Config{Fetcher: fetcher, UserAgent: cfg.BangumiUserAgent}),
		steam.New(steam.Config{Fetcher: fetcher}),
		melon.New(melon.Config{Fetcher: fetcher}),
	)

	executor := cache.NewExecutor(buildCacheStore(cfg, logger), logger)
	dispatcher := dispatch.NewDispatcher(registry, executor, buildArchive(cfg, logger), logger)
	searchService := search.NewService(logger, imdbProvider, tmdbClient)

	limiter := ratelimit.New(30, time.Minute, 10*time.Second)
	handler := apihttp.NewServer(dispatcher, searchService,
		apihttp.WithLogger(logger),
		apihttp.WithRateLimiter(limiter),
		apihttp.WithAPIKey(cfg.APIKey),
		apihttp.WithTrustedHeader(cfg.TrustedHeader),
		apihttp.WithAuthor(cfg.Author),
		apihttp.WithSources(registry.Names()),
		apihttp.WithRequestTimeout(cfg.RequestTimeout),
	).Handler()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("pt-gen service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Any("sources", registry.Names()),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("pt-gen service stopped")
}

// buildCacheStore wires redis when configured and reachable, falls back to
// the in-process store, and returns nil when caching is disabled outright.
func buildCacheStore(cfg app.Config, logger *slog.Logger) cache.Store {
	if cfg.CacheDisabled {
		logger.Info("record cache disabled")
		return nil
	}

	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return cache.NewMemoryStore()
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory cache", slog.String("error", err.Error()))
		return cache.NewMemoryStore()
	}
	redisClient := redis.NewClient(redisOpts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable, using in-memory cache", slog.String("error", err.Error()))
		return cache.NewMemoryStore()
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return cache.NewRedisStore(redisClient)
}

func buildArchive(cfg app.Config, logger *slog.Logger) dispatch.ArchiveSource {
	if !cfg.ArchiveEnabled {
		return nil
	}
	mongoURL := strings.TrimSpace(cfg.MongoURL)
	if mongoURL == "" {
		logger.Warn("archive enabled but MONGO_URL is empty, archive disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURL))
	if err != nil {
		logger.Warn("mongo connect failed, archive disabled", slog.String("error", err.Error()))
		return nil
	}
	if err := client.Ping(ctx, nil); err != nil {
		logger.Warn("mongo not reachable, archive disabled", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("archive connected", slog.String("database", cfg.ArchiveDatabase))
	return archive.NewStore(client, cfg.ArchiveDatabase, logger)
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	if strings.ToLower(strings.TrimSpace(formatRaw)) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
