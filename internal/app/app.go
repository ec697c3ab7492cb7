// Package app 组装存储、缓存、内容源与各业务服务，供 server 与 feedctl 共用
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/feed-engine/config"
	"github.com/d60-Lab/feed-engine/internal/cache"
	"github.com/d60-Lab/feed-engine/internal/content"
	"github.com/d60-Lab/feed-engine/internal/events"
	"github.com/d60-Lab/feed-engine/internal/repository"
	"github.com/d60-Lab/feed-engine/internal/service"
	"github.com/d60-Lab/feed-engine/pkg/database"
	"github.com/d60-Lab/feed-engine/pkg/logger"
)

type App struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client
	Cache  *cache.Cache
	Source content.Source
	Sink   events.Sink

	Fanout    *service.FanoutService
	Relations service.RelationService
	Interests *service.InterestService
	Trending  *service.TrendingService
	Feed      service.FeedService
	Sweeper   *service.Sweeper

	closers []func() error
}

// Option 覆盖默认依赖（测试或本地运行时注入）
type Option func(*App)

// WithDB 使用已打开的数据库
func WithDB(db *gorm.DB) Option { return func(a *App) { a.DB = db } }

// WithSource 使用给定的内容源
func WithSource(src content.Source) Option { return func(a *App) { a.Source = src } }

// WithSink 使用给定的关系事件出口
func WithSink(s events.Sink) Option { return func(a *App) { a.Sink = s } }

func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{Config: cfg}
	for _, o := range opts {
		o(a)
	}

	if a.DB == nil {
		db, err := database.InitDB(cfg)
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.closers = append(a.closers, func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
	}

	if cfg.Redis.Enabled {
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rc.Ping(ctx).Err(); err != nil {
			// 缓存只是加速层，连不上时退化为直接读库
			logger.Warn("redis unavailable, caching disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			_ = rc.Close()
		} else {
			a.Redis = rc
			a.closers = append(a.closers, rc.Close)
		}
	}
	a.Cache = cache.New(a.Redis, cfg.Redis.TrendingTTL, cfg.Redis.HiddenTTL)

	if a.Source == nil {
		a.Source = content.NewBreakerSource(
			content.NewHTTPClient(cfg.Content.BaseURL, cfg.Content.Timeout),
			content.BreakerSettings{
				MaxRequests: cfg.Content.BreakerMaxRequests,
				Interval:    cfg.Content.BreakerInterval,
				Timeout:     cfg.Content.BreakerTimeout,
				MinRequests: cfg.Content.BreakerMinRequests,
				FailRatio:   cfg.Content.BreakerFailRatio,
			})
	}

	if a.Sink == nil {
		if cfg.Kafka.Enabled {
			ks := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.RelationTopic)
			a.Sink = ks
			a.closers = append(a.closers, ks.Close)
		} else {
			a.Sink = events.NopSink{}
		}
	}

	follows := repository.NewFollowRepository(a.DB)
	feeds := repository.NewFeedRepository(a.DB)
	mutes := repository.NewMuteRepository(a.DB)

	a.Fanout = service.NewFanoutService(follows, feeds, a.Cache, cfg.Feed)
	a.Relations = service.NewRelationService(follows, repository.NewBlockRepository(a.DB), mutes, a.Fanout, a.Cache, a.Sink)
	a.Interests = service.NewInterestService(repository.NewInterestRepository(a.DB), a.Source, cfg.Interest)
	a.Trending = service.NewTrendingService(repository.NewTrendingRepository(a.DB), a.Source, a.Cache, cfg.Trending)
	a.Feed = service.NewFeedService(feeds, a.Relations, a.Interests, a.Trending, a.Fanout, a.Source, cfg.Feed)
	a.Sweeper = service.NewSweeper(feeds, mutes, a.Interests)
	return a, nil
}

// Close 按创建的逆序释放资源
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	if first != nil {
		return fmt.Errorf("close app: %w", first)
	}
	return nil
}
