package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/social-feed/config"
	"github.com/d60-Lab/social-feed/internal/api"
	"github.com/d60-Lab/social-feed/internal/api/handler"
	"github.com/d60-Lab/social-feed/internal/cache"
	"github.com/d60-Lab/social-feed/internal/feed"
	"github.com/d60-Lab/social-feed/internal/repository"
	"github.com/d60-Lab/social-feed/internal/service"
	"github.com/d60-Lab/social-feed/pkg/database"
	"github.com/d60-Lab/social-feed/pkg/logger"
	"github.com/d60-Lab/social-feed/pkg/telemetry"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func main() {
	cfg := must(config.Load())
	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			logger.Warn("sentry init failed", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer := must(telemetry.InitTracer(ctx, cfg))
	defer func() { _ = shutdownTracer(context.Background()) }()

	db := must(database.InitDB(cfg))

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	var feedCache *cache.FeedCache
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, feed cache disabled", zap.Error(err))
	} else {
		feedCache = cache.NewFeedCache(rdb, cfg.Redis.CacheTTL)
	}

	// repositories
	followRepo := repository.NewFollowRepository(db)
	fanRepo := repository.NewFanRepository(db)
	userRepo := repository.NewUserRepository(db)

	// background workers
	replicator := service.NewFanReplicator(fanRepo, cfg.Replicator.QueueSize)
	stopReplicator := replicator.Start(cfg.Replicator.Workers)
	fanout := service.NewFanoutWorker(db, fanRepo, cfg.Fanout.Workers, cfg.Fanout.BatchSize, cfg.Fanout.ClaimLimit, cfg.Fanout.PollInterval, cfg.Fanout.StaleAfter)
	stopFanout := fanout.Start()
	reconciler := service.NewReconciler(db, cfg.Reconcile.Interval, cfg.Reconcile.BatchSize, cfg.Reconcile.Workers, cfg.Server.OpTimeout)
	stopReconciler := reconciler.Start()

	// services
	stats := service.NewStatsSynchronizer()
	ledger := service.NewLedger(db, stats, replicator, feedCache, cfg.Server.OpTimeout)
	relSvc := service.NewRelationshipService(followRepo, fanRepo)
	engine := feed.NewEngine(db, cfg.Feed.DefaultPageSize, cfg.Feed.MaxPageSize)
	feedSvc := service.NewFeedService(engine, feedCache, cfg.Feed.SearchLimit)
	userSvc := service.NewUserService(userRepo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	h := handler.New(ledger, relSvc, feedSvc, userSvc, cfg.Feed.DefaultPageSize)
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: api.NewRouter(cfg, h)}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = stopReconciler(shutdownCtx)
	_ = stopFanout(shutdownCtx)
	_ = stopReplicator(shutdownCtx)
}
