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
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"newsreel/discoveryservice/internal/acquire"
	apihttp "newsreel/discoveryservice/internal/api/http"
	"newsreel/discoveryservice/internal/app"
	"newsreel/discoveryservice/internal/catalog"
	"newsreel/discoveryservice/internal/domain"
	"newsreel/discoveryservice/internal/engine"
	"newsreel/discoveryservice/internal/metadata"
	"newsreel/discoveryservice/internal/metrics"
	"newsreel/discoveryservice/internal/planner"
	"newsreel/discoveryservice/internal/providers/pexels"
	"newsreel/discoveryservice/internal/providers/stockgate"
	mongorepo "newsreel/discoveryservice/internal/repository/mongo"
	"newsreel/discoveryservice/internal/rotation"
	"newsreel/discoveryservice/internal/scoring"
	"newsreel/discoveryservice/internal/search"
	"newsreel/discoveryservice/internal/telemetry"
	"newsreel/discoveryservice/internal/vision"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "discovery-service")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "discovery-service"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("catalog", cfg.CatalogName),
		slog.Duration("catalogTimeout", cfg.CatalogTimeout),
		slog.String("stockgateEndpoint", cfg.StockgateEndpoint),
		slog.Bool("hasPexelsKey", strings.TrimSpace(cfg.PexelsAPIKey) != ""),
		slog.Bool("hasOpenAIKey", strings.TrimSpace(cfg.OpenAIAPIKey) != ""),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.String("mongoDatabase", cfg.MongoDatabase),
		slog.Duration("cacheTTL", cfg.CacheTTL),
		slog.Int("rotationWindow", cfg.RotationWindow),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancelConnect := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancelConnect()
	mongoClient, err := mongorepo.Connect(connectCtx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		logger.Error("mongo connect failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := mongoClient.Ping(connectCtx, readpref.Primary()); err != nil {
		logger.Error("mongo ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	assetRepo := mongorepo.NewAssetRepository(mongoClient, cfg.MongoDatabase)
	usageRepo := mongorepo.NewUsageRepository(mongoClient, cfg.MongoDatabase)
	if err := assetRepo.EnsureIndexes(connectCtx); err != nil {
		logger.Warn("asset index creation failed", slog.String("error", err.Error()))
	}
	if err := usageRepo.EnsureIndexes(connectCtx); err != nil {
		logger.Warn("usage index creation failed", slog.String("error", err.Error()))
	}

	window := rotation.NewWindow(cfg.RotationWindow)
	seedRotationWindow(connectCtx, window, usageRepo, cfg.RotationWindow, logger)

	catalogHTTP := &http.Client{
		Timeout:   cfg.CatalogTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	clients := []catalog.Client{
		stockgate.NewProvider(stockgate.Config{
			Endpoint:  cfg.StockgateEndpoint,
			APIKey:    cfg.StockgateAPIKey,
			UserAgent: cfg.UserAgent,
			Client:    catalogHTTP,
		}),
		pexels.NewProvider(pexels.Config{
			Endpoint:  cfg.PexelsEndpoint,
			APIKey:    cfg.PexelsAPIKey,
			UserAgent: cfg.UserAgent,
			Client:    catalogHTTP,
		}),
	}
	searchService := search.NewService(clients, cfg.CatalogName, cfg.CatalogTimeout, buildServiceOptions(cfg, logger)...)

	queryPlanner := planner.NewModelPlanner(planner.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.PlannerModel,
		Timeout: cfg.PlannerTimeout,
	})
	classifier := vision.NewModelClassifier(vision.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.VisionModel,
		Timeout: cfg.VisionTimeout,
	})

	imageHTTP := &http.Client{
		Timeout:   15 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	fetcher := metadata.NewFetcher(
		metadata.NewHTTPImageSource(imageHTTP, 0),
		classifier,
		func(ctx context.Context, candidate domain.Candidate) (domain.ClipDetail, error) {
			client, err := searchService.ActiveCatalog()
			if err != nil {
				return domain.ClipDetail{}, err
			}
			return client.Detail(ctx, candidate.Identity)
		},
		metadata.Config{
			PrefilterPool:     cfg.PrefilterPool,
			Shortlist:         cfg.Shortlist,
			FastTrackVisual:   cfg.FastTrackVisual,
			FastTrackCombined: cfg.FastTrackCombined,
			FetchConcurrency:  cfg.MetadataConcurrency,
			VisionConcurrency: cfg.VisionConcurrency,
			FetchTimeout:      cfg.CatalogTimeout,
		},
		logger,
	)

	acquireCfg := acquire.DefaultConfig()
	acquireCfg.MinScore = cfg.MinAcquireScore
	acquireCfg.EmergencyFloor = cfg.EmergencyFloor
	acquireCfg.WaitInterval = cfg.PollInterval
	acquireCfg.WaitTimeout = cfg.WaitTimeout
	orchestrator := acquire.NewOrchestrator(
		func(ctx context.Context, candidate domain.Candidate) (domain.AcquireReceipt, error) {
			client, err := searchService.ActiveCatalog()
			if err != nil {
				return domain.AcquireReceipt{}, err
			}
			return client.Acquire(ctx, candidate.Identity)
		},
		window,
		acquire.NewBlacklist(),
		acquireCfg,
		logger,
	)

	discovery := engine.New(engine.Deps{
		Planner:  queryPlanner,
		Search:   searchService,
		Scorer:   scoring.NewTextScorer(scoring.DefaultConfig()),
		Fetcher:  fetcher,
		Acquirer: orchestrator,
		Assets:   assetRepo,
		Usage:    usageRepo,
		Logger:   logger,
	})

	apiServer := apihttp.NewServer(discovery,
		apihttp.WithLogger(logger),
		apihttp.WithCatalogs(searchService),
		apihttp.WithAssets(assetRepo),
	)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// /discover/stream holds the response open for the whole run, so
		// the server-level write timeout stays off; per-stage timeouts
		// bound the work instead.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	searchService.StartBackground(rootCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("discovery service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.String("catalog", cfg.CatalogName),
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

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	apiServer.Close()
	if err := mongoClient.Disconnect(context.Background()); err != nil {
		logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
	}
	logger.Info("discovery service stopped")
}

func seedRotationWindow(ctx context.Context, window *rotation.Window, usage *mongorepo.UsageRepository, capacity int, logger *slog.Logger) {
	entries, err := usage.ListRecent(ctx, capacity)
	if err != nil {
		logger.Warn("usage history load failed", slog.String("error", err.Error()))
		return
	}
	if len(entries) == 0 {
		return
	}
	seed := make([]rotation.Entry, 0, len(entries))
	for _, entry := range entries {
		seed = append(seed, rotation.Entry{Identity: entry.Identity, SequenceIndex: entry.SequenceIndex})
	}
	window.Seed(seed)
	logger.Info("rotation window restored", slog.Int("entries", len(seed)))
}

func buildServiceOptions(cfg app.Config, logger *slog.Logger) []search.ServiceOption {
	opts := []search.ServiceOption{
		search.WithConcurrency(cfg.SearchConcurrency),
		search.WithTargetUnique(cfg.TargetCandidates),
	}

	if cfg.CacheDisabled {
		return append(opts, search.WithCacheDisabled(true))
	}
	if cfg.CacheTTL > 0 {
		opts = append(opts, search.WithCacheTTL(cfg.CacheTTL))
	}

	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL != "" {
		redisOpts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Warn("invalid redis url, using in-memory cache only", slog.String("error", err.Error()))
			return opts
		}
		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable, using in-memory cache only", slog.String("error", err.Error()))
			return opts
		}
		logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
		opts = append(opts, search.WithRedisCache(search.NewRedisCacheBackend(redisClient)))
	}

	return opts
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
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
