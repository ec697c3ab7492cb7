package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/feed-engine/config"
	"github.com/d60-Lab/feed-engine/internal/api/handler"
	"github.com/d60-Lab/feed-engine/internal/api/middleware"
	"github.com/d60-Lab/feed-engine/internal/api/router"
	"github.com/d60-Lab/feed-engine/internal/app"
	"github.com/d60-Lab/feed-engine/internal/events"
	"github.com/d60-Lab/feed-engine/internal/jobs"
	"github.com/d60-Lab/feed-engine/pkg/logger"
	"github.com/d60-Lab/feed-engine/pkg/monitor"
	"github.com/d60-Lab/feed-engine/pkg/tracing"
)

// @title Feed Engine API
// @version 1.0
// @description 关系链、时间线、兴趣与热榜服务
// @host localhost:8080
// @BasePath /
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := monitor.InitSentry(cfg); err != nil {
		logger.Warn("sentry init failed", zap.Error(err))
	}
	defer monitor.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.App.Name, cfg.Tracing)
	if err != nil {
		logger.Fatal("init tracing", zap.Error(err))
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("init app", zap.Error(err))
	}
	defer a.Close()

	dispatcher := events.NewDispatcher(a.Fanout, cfg.Kafka.DispatchQueue, 30*time.Second)
	stopDispatcher := dispatcher.Start(cfg.Kafka.DispatchWorker)

	limiter := middleware.NewIPRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	h := handler.New(a.Relations, a.Feed, a.Interests, a.Trending, dispatcher)
	engine, err := router.Setup(cfg, h, router.Options{
		DB:             a.DB,
		Limiter:        limiter,
		InternalEvents: !cfg.Kafka.Enabled,
	})
	if err != nil {
		logger.Fatal("setup router", zap.Error(err))
	}

	sup := jobs.NewSupervisor(cfg.App.Name, cfg.Jobs, logger.Named("supervisor"))
	sup.Add(router.NewServer(&http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, cfg.Server.ShutdownTimeout))
	sup.Add(jobs.New("ratelimit_cleanup", 5*time.Minute, func(context.Context) error {
		limiter.Cleanup()
		return nil
	}))

	if cfg.Kafka.Enabled {
		sup.Add(events.NewConsumer(events.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.PostTopic,
			GroupID: cfg.Kafka.GroupID,
		}, dispatcher))
	}
	if cfg.Jobs.Enabled {
		for _, j := range jobs.Build(cfg.Jobs, jobs.Deps{Trending: a.Trending, Interests: a.Interests, Sweeper: a.Sweeper}) {
			sup.Add(j)
		}
	}

	logger.Info("feed engine started", zap.String("addr", cfg.Server.Addr), zap.Bool("kafka", cfg.Kafka.Enabled))
	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("supervisor stopped", zap.Error(err))
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := stopDispatcher(drainCtx); err != nil {
		logger.Warn("dispatch queue not drained", zap.Int("pending", dispatcher.QueueLen()), zap.Error(err))
	}
	logger.Info("feed engine stopped")
}
