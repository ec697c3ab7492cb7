package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/feed-engine/config"
	"github.com/d60-Lab/feed-engine/internal/cache"
	"github.com/d60-Lab/feed-engine/internal/content"
	"github.com/d60-Lab/feed-engine/internal/events"
	"github.com/d60-Lab/feed-engine/internal/model"
	"github.com/d60-Lab/feed-engine/internal/repository"
)

var t0 = time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.RelationEvent
}

func (s *recordingSink) Publish(_ context.Context, ev events.RelationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) types() []events.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

type testEnv struct {
	db        *gorm.DB
	source    *content.MemorySource
	cache     *cache.Cache
	clock     *fakeClock
	sink      *recordingSink
	follows   repository.FollowRepository
	feeds     repository.FeedRepository
	mutes     repository.MuteRepository
	interestR repository.InterestRepository
	fanout    *FanoutService
	relations RelationService
	interests *InterestService
	trending  *TrendingService
	feed      FeedService
	sweeper   *Sweeper
}

type envOption func(*envOptions)

type envOptions struct{ redis bool }

func withRedis() envOption { return func(o *envOptions) { o.redis = true } }

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	var o envOptions
	for _, fn := range opts {
		fn(&o)
	}

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(model.All()...))

	cfg := config.Default()
	var rc *redis.Client
	if o.redis {
		mr := miniredis.RunT(t)
		rc = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rc.Close() })
	}
	c := cache.New(rc, cfg.Redis.TrendingTTL, cfg.Redis.HiddenTTL)

	e := &testEnv{
		db:        db,
		source:    content.NewMemorySource(),
		cache:     c,
		clock:     &fakeClock{now: t0},
		sink:      &recordingSink{},
		follows:   repository.NewFollowRepository(db),
		feeds:     repository.NewFeedRepository(db),
		mutes:     repository.NewMuteRepository(db),
		interestR: repository.NewInterestRepository(db),
	}
	blocks := repository.NewBlockRepository(db)

	e.fanout = NewFanoutService(e.follows, e.feeds, c, cfg.Feed)
	e.fanout.now = e.clock.Now

	e.relations = NewRelationService(e.follows, blocks, e.mutes, e.fanout, c, e.sink)
	e.relations.(*relationService).now = e.clock.Now

	e.interests = NewInterestService(e.interestR, e.source, cfg.Interest)
	e.interests.now = e.clock.Now

	e.trending = NewTrendingService(repository.NewTrendingRepository(db), e.source, c, cfg.Trending)
	e.trending.now = e.clock.Now

	e.feed = NewFeedService(e.feeds, e.relations, e.interests, e.trending, e.fanout, e.source, cfg.Feed)
	e.feed.(*feedService).now = e.clock.Now

	e.sweeper = NewSweeper(e.feeds, e.mutes, e.interests)
	e.sweeper.now = e.clock.Now
	return e
}

// publish 写入内容并触发扇出
func (e *testEnv) publish(t *testing.T, p *content.Post) {
	t.Helper()
	e.source.Put(p)
	_, err := e.fanout.FanOutToFollowers(context.Background(), p.UserID, p.ID, p.PublishedAt)
	require.NoError(t, err)
}

func postIDs(items []FeedItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.PostID
	}
	return out
}
