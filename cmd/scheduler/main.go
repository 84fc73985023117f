// Command scheduler is the long-running ingestion daemon: it wires the
// storage/cache/geocode stack, registers every adapter on a fixed-interval
// schedule and the admin jobs on daily cron triggers, and serves
// /healthz, /readyz, /metrics until told to stop.
//
// It takes no flags; every setting comes from the environment (see
// internal/config).
package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/couchcryptid/windstation-fabric/internal/adapter/holfuy"
	"github.com/couchcryptid/windstation-fabric/internal/adapter/pioupiou"
	"github.com/couchcryptid/windstation-fabric/internal/cache"
	"github.com/couchcryptid/windstation-fabric/internal/cluster"
	"github.com/couchcryptid/windstation-fabric/internal/config"
	"github.com/couchcryptid/windstation-fabric/internal/duplicate"
	"github.com/couchcryptid/windstation-fabric/internal/engine"
	"github.com/couchcryptid/windstation-fabric/internal/events"
	"github.com/couchcryptid/windstation-fabric/internal/geocode"
	"github.com/couchcryptid/windstation-fabric/internal/observability"
	"github.com/couchcryptid/windstation-fabric/internal/prune"
	"github.com/couchcryptid/windstation-fabric/internal/scheduler"
	"github.com/couchcryptid/windstation-fabric/internal/statusserver"
	"github.com/couchcryptid/windstation-fabric/internal/store"
	"github.com/redis/go-redis/v9"
)

// runner is the common shape every adapter exposes to the scheduler.
type runner interface {
	Run(context.Context) error
}

// adapterSpec binds a provider code to the constructor for its Engine-backed
// adapter, so the enablement/registration loop below stays data-driven.
type adapterSpec struct {
	code, name, url string
	interval        time.Duration
	build           func(e *engine.Engine, httpClient *http.Client) runner
}

var adapters = []adapterSpec{
	{code: holfuy.ProviderCode, name: holfuy.ProviderName, url: holfuy.ProviderURL, interval: 5 * time.Minute,
		build: func(e *engine.Engine, c *http.Client) runner { return holfuy.New(e, c) }},
	{code: pioupiou.ProviderCode, name: pioupiou.ProviderName, url: pioupiou.ProviderURL, interval: 5 * time.Minute,
		build: func(e *engine.Engine, c *http.Client) runner { return pioupiou.New(e, c) }},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		observability.NewLogger("info", "json", nil).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, nil)
	metrics := observability.NewMetrics()

	reporter, err := observability.NewErrorReporter(cfg.SentryURL, cfg.Environment)
	if err != nil {
		logger.Error("failed to init error reporter", "error", err)
		os.Exit(1)
	}
	defer reporter.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	st, err := store.Connect(connectCtx, cfg.MongoDBURL, mongoDatabaseName(cfg.MongoDBURL), cfg.ConnectTimeout)
	cancel()
	if err != nil {
		logger.Error("failed to connect to mongodb", "error", err)
		os.Exit(1)
	}
	defer st.Close(context.Background())

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	c := cache.NewRedisCache(redisClient, 1024)

	httpClient := &http.Client{Timeout: cfg.ReadTimeout}
	geocoder := geocode.NewClient(cfg.GoogleAPIKey, cfg.ConnectTimeout, c, logger, metrics)

	var publisher events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaEventTopic, logger)
	}

	sched, err := scheduler.New(logger, metrics, nil)
	if err != nil {
		logger.Error("failed to build scheduler", "error", err)
		os.Exit(1)
	}

	for _, spec := range adapters {
		if config.DisabledProvider(spec.code) {
			logger.Info("adapter disabled via environment", "provider", spec.code)
			continue
		}
		e := engine.NewEngine(spec.code, spec.name, spec.url, st, c, geocoder, logger.With("provider", spec.code), metrics, nil, publisher)
		a := spec.build(e, httpClient)
		name := spec.code
		if err := sched.RegisterAdapter(scheduler.AdapterJob{
			Name: name, Interval: spec.interval, Jitter: 5 * time.Minute,
			Run: func(ctx context.Context) error { return a.Run(ctx) },
		}); err != nil {
			logger.Error("failed to register adapter", "provider", name, "error", err)
			os.Exit(1)
		}
	}

	pruneJob := prune.NewJob(st, logger.With("job", "prune"), metrics, nil)
	if err := sched.RegisterAdmin(scheduler.AdminJob{
		Name: "prune", Hour: 3,
		Run: func(ctx context.Context) error { _, err := pruneJob.DeleteStations(ctx, 365, ""); return err },
	}); err != nil {
		logger.Error("failed to register prune job", "error", err)
		os.Exit(1)
	}

	duplicateJob := duplicate.NewJob(st, logger.With("job", "duplicates"), metrics, nil, cfg.PreferredProviders)
	if err := sched.RegisterAdmin(scheduler.AdminJob{
		Name: "duplicates", Hour: 4,
		Run: func(ctx context.Context) error { return duplicateJob.FindDuplicates(ctx, 100) },
	}); err != nil {
		logger.Error("failed to register duplicates job", "error", err)
		os.Exit(1)
	}

	clusterJob := cluster.NewJob(st, logger.With("job", "clusters"), metrics, nil)
	if err := sched.RegisterAdmin(scheduler.AdminJob{
		Name: "clusters", Hour: 5,
		Run: func(ctx context.Context) error { return clusterJob.SaveClusters(ctx, 8, 20) },
	}); err != nil {
		logger.Error("failed to register clusters job", "error", err)
		os.Exit(1)
	}

	ready := statusserver.StoreCacheReadiness{Store: st, Cache: c}
	httpSrv := statusserver.NewServer(cfg.HTTPAddr, ready, logger)

	sched.Start()
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("status server shutdown error", "error", err)
	}
	if err := sched.Shutdown(); err != nil {
		logger.Error("scheduler shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// mongoDatabaseName extracts the database name from the URI path, following
// pymongo's get_database() no-arg convention of using the URI's own path
// segment; "winds_mobi" is the fallback when none is set.
func mongoDatabaseName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "winds_mobi"
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return "winds_mobi"
	}
	return name
}
