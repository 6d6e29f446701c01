package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/corpusrank/internal/config"
	"github.com/kailas-cloud/corpusrank/internal/db/gormdb"
	dbRedis "github.com/kailas-cloud/corpusrank/internal/db/redis"
	"github.com/kailas-cloud/corpusrank/internal/domain"
	"github.com/kailas-cloud/corpusrank/internal/domain/run"
	"github.com/kailas-cloud/corpusrank/internal/event"
	logpkg "github.com/kailas-cloud/corpusrank/internal/logger"
	"github.com/kailas-cloud/corpusrank/internal/metrics"
	billrepo "github.com/kailas-cloud/corpusrank/internal/repository/bill"
	"github.com/kailas-cloud/corpusrank/internal/repository/cursor"
	"github.com/kailas-cloud/corpusrank/internal/repository/searchindex"
	snapshotrepo "github.com/kailas-cloud/corpusrank/internal/repository/snapshot"
	"github.com/kailas-cloud/corpusrank/internal/repository/viewcache"
	"github.com/kailas-cloud/corpusrank/internal/scheduler"
	chiTransport "github.com/kailas-cloud/corpusrank/internal/transport/chi"
	healthuc "github.com/kailas-cloud/corpusrank/internal/usecase/health"
	"github.com/kailas-cloud/corpusrank/internal/usecase/invalidation"
	"github.com/kailas-cloud/corpusrank/internal/usecase/percentile"
	"github.com/kailas-cloud/corpusrank/internal/usecase/pipeline"
	"github.com/kailas-cloud/corpusrank/internal/usecase/projector"
	searchuc "github.com/kailas-cloud/corpusrank/internal/usecase/search"
	"github.com/kailas-cloud/corpusrank/internal/version"
	"github.com/kailas-cloud/corpusrank/internal/workpool"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting corpusrank",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("source_driver", cfg.Source.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis: search index, snapshots, view cache
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Bill and metric source
	sourceDB, err := gormdb.Open(ctx, gormdb.Config{
		Driver:          cfg.Source.Driver,
		DSN:             cfg.Source.DSN,
		LogLevel:        cfg.Source.LogLevel,
		MaxOpenConns:    cfg.Source.MaxOpenConns,
		MaxIdleConns:    cfg.Source.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Source.ConnMaxLifetimeSec) * time.Second,
	})
	if err != nil {
		logger.Fatal("Failed to open bill source", zap.Error(err))
	}
	defer func() { _ = gormdb.Close(sourceDB) }()

	bills := billrepo.New(sourceDB)
	if err := bills.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate bill source", zap.Error(err))
	}
	logger.Info("Connected to bill source")

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	pool, err := workpool.New(cfg.Pipeline.Workers, logger)
	if err != nil {
		logger.Fatal("Failed to create worker pool", zap.Error(err))
	}
	defer func() { _ = pool.Release(30 * time.Second) }()

	bus := event.NewBus()
	defer bus.Close()

	// Repositories
	snapshots := snapshotrepo.New(store)
	index := searchindex.New(store, searchindex.Config{
		IndexName: cfg.Index.Name,
		KeyPrefix: cfg.Index.KeyPrefix,
		Weights:   cfg.Index.Weights,
	})
	views := viewcache.New(store, cfg.Cache.KeyPrefix, time.Duration(cfg.Cache.TTLSec)*time.Second)

	// Use cases
	engine := percentile.New(bills, snapshots, pool, bus, logger.Named("percentile"))
	if err := engine.Load(ctx); err != nil && !errors.Is(err, domain.ErrNotFound) {
		logger.Warn("Failed to restore percentile snapshot", zap.Error(err))
	}

	proj := projector.New(index, engine, pool, bus, logger.Named("projector")).
		WithChunkSize(cfg.Pipeline.BatchSize)
	if err := proj.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure search index", zap.Error(err))
	}

	inv := invalidation.New(views, logger.Named("invalidation"))
	go inv.Run(ctx, bus.Subscribe())

	coord := pipeline.New(bills, engine, proj, inv, logger.Named("pipeline")).
		WithCursor(cursor.New(store, cursor.DefaultKey))
	if err := coord.Restore(ctx); err != nil {
		logger.Fatal("Failed to restore pipeline cursor", zap.Error(err))
	}
	searchSvc := searchuc.New(index, logger.Named("search"))
	healthSvc := healthuc.New(store, bills)

	// Scheduled runs
	var sched *scheduler.Scheduler
	if cfg.Pipeline.Schedule != "" {
		loc, _ := time.LoadLocation(cfg.Pipeline.Timezone) // validated in config
		sched, err = scheduler.New(cfg.Pipeline.Schedule, loc, coord,
			time.Duration(cfg.Pipeline.TimeoutSec)*time.Second, logger.Named("scheduler"))
		if err != nil {
			logger.Fatal("Failed to create scheduler", zap.Error(err))
		}
		sched.Start()
		logger.Info("Scheduler started", zap.String("schedule", cfg.Pipeline.Schedule), zap.Time("next", sched.Next()))
	}
	if cfg.Pipeline.RunOnStart {
		if id, err := coord.Start(ctx, run.Options{}); err != nil {
			logger.Warn("Initial run not started", zap.Error(err))
		} else {
			logger.Info("Initial run started", zap.String("run_id", id))
		}
	}

	// HTTP
	server := chiTransport.NewServer(healthSvc, engine, searchSvc, coord, bills, logger)

	r := chi.NewRouter()
	r.Use(chiTransport.JSONRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(chiTransport.WideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Register(r, cfg.Auth.APIKeys)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	// the active run must stop before the pool and stores close
	if sched != nil {
		sched.Stop()
	}
	if coord.Cancel() {
		logger.Info("Canceled active pipeline run")
	}
	if err := coord.Wait(shutdownCtx); err != nil {
		logger.Error("Pipeline run did not stop in time", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
