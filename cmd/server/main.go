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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	apihttp "fitspot/placesearch/internal/api/http"
	"fitspot/placesearch/internal/app"
	"fitspot/placesearch/internal/metrics"
	"fitspot/placesearch/internal/providers/googleplaces"
	"fitspot/placesearch/internal/search"
	"fitspot/placesearch/internal/store"
	"fitspot/placesearch/internal/telemetry"
)

const shutdownGrace = 10 * time.Second

func main() {
	app.LoadEnvFiles()
	cfg := app.LoadConfig()
	logger := app.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("place search service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("place search service stopped")
}

func run(ctx context.Context, cfg app.Config, logger *slog.Logger) error {
	metrics.Register(prometheus.DefaultRegisterer)
	shutdownTracer, err := telemetry.Init(ctx, telemetry.Options{ServiceName: "place-search"})
	if err != nil {
		logger.Warn("tracing disabled", slog.String("error", err.Error()))
	} else {
		defer func() { _ = shutdownTracer(context.WithoutCancel(ctx)) }()
	}
	logger.Info("configuration loaded", slog.Any("config", cfg))

	opts, redisClient, err := buildServiceOptions(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("search configuration: %w", err)
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close failed", slog.String("error", err.Error()))
			}
		}()
	}
	svc := search.NewService(newProvider(cfg, logger), cfg.RequestTimeout, opts...)
	svc.StartBackground(ctx)

	api := apihttp.NewServer(svc,
		apihttp.WithLogger(logger),
		apihttp.WithPlaces(svc),
		apihttp.WithLibrary(svc),
		apihttp.WithRateLimit(cfg.HTTPRateLimitRPS, cfg.HTTPRateLimitBurst),
	)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// /search/stream holds the response open across both stages.
		IdleTimeout: 60 * time.Second,
	}
	return serve(ctx, server, logger)
}

// newProvider returns nil when the Google client cannot be built; the service
// then answers ErrNoProvider instead of refusing to start.
func newProvider(cfg app.Config, logger *slog.Logger) search.PlacesProvider {
	google, err := googleplaces.NewProvider(googleplaces.Config{
		APIKey:   cfg.GoogleAPIKey,
		BaseURL:  cfg.GoogleBaseURL,
		Language: cfg.Language,
		Region:   cfg.Region,
	})
	if err != nil {
		logger.Warn("places provider disabled", slog.String("error", err.Error()))
		return nil
	}
	return google
}

func serve(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	listenErr := make(chan error, 1)
	go func() { listenErr <- server.ListenAndServe() }()
	logger.Info("listening", slog.String("addr", server.Addr))

	select {
	case err := <-listenErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", server.Addr, err)
	case <-ctx.Done():
	}

	logger.Info("draining connections", slog.Duration("grace", shutdownGrace))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildServiceOptions also returns the Redis client backing the cache and the
// library, nil when they stay in memory. The caller closes it.
func buildServiceOptions(ctx context.Context, cfg app.Config, logger *slog.Logger) ([]search.ServiceOption, *redis.Client, error) {
	vocabulary, err := buildVocabulary(cfg)
	if err != nil {
		return nil, nil, err
	}
	opts := []search.ServiceOption{
		search.WithVocabulary(vocabulary),
		search.WithMaxInFlight(cfg.MaxInFlight),
		search.WithTravelMode(cfg.TravelMode),
		search.WithStraightLineFallback(cfg.StraightLine),
		search.WithDefaultRadius(cfg.DefaultRadiusMeters),
		search.WithProviderRateLimit(cfg.ProviderRPS, cfg.ProviderBurst),
		search.WithCircuitBreaker(cfg.CircuitBreaker),
		search.WithSessionIdleTTL(cfg.SessionIdleTTL),
	}

	local := search.NewMemoryResultCache(cfg.CacheMaxEntries)
	redisClient, err := connectRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("redis unavailable, keeping cache and library in memory", slog.String("error", err.Error()))
	}
	if redisClient == nil {
		return append(opts,
			search.WithResultCache(local),
			search.WithLocalStore(store.NewMemoryStore()),
		), nil, nil
	}
	return append(opts,
		search.WithResultCache(search.NewLayeredResultCache(local, search.NewRedisResultCache(redisClient, cfg.CacheTTL))),
		search.WithLocalStore(store.NewRedisStore(redisClient, "")),
	), redisClient, nil
}

func buildVocabulary(cfg app.Config) (*search.Vocabulary, error) {
	overrides, err := app.ParseCategoryOverrides(cfg.CategoryOverrides)
	if err != nil {
		return nil, err
	}
	vocabulary := search.DefaultVocabulary()
	if len(overrides) == 0 && cfg.DefaultCategory == "" {
		return vocabulary, nil
	}
	return vocabulary.WithOverrides(overrides, cfg.DefaultCategory)
}

// connectRedis returns a nil client when no URL is configured.
func connectRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, nil
	}
	options, err := redis.ParseURL(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", options.Addr, err)
	}
	return client, nil
}
