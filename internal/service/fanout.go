package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/feed-engine/config"
	"github.com/d60-Lab/feed-engine/internal/cache"
	"github.com/d60-Lab/feed-engine/internal/model"
	"github.com/d60-Lab/feed-engine/internal/repository"
	"github.com/d60-Lab/feed-engine/pkg/logger"
	"github.com/d60-Lab/feed-engine/pkg/metrics"
)

// FanoutService 写扩散：新内容写入每个粉丝的 following 时间线，
// 并负责删除/拉黑/静音引起的时间线清理。
type FanoutService struct {
	follows   repository.FollowRepository
	feeds     repository.FeedRepository
	cache     *cache.Cache
	maxAge    time.Duration
	batchSize int
	now       func() time.Time
}

func NewFanoutService(follows repository.FollowRepository, feeds repository.FeedRepository, c *cache.Cache, cfg config.FeedConfig) *FanoutService {
	maxAgeDays := cfg.EntryMaxAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	batch := cfg.FanoutBatchSize
	if batch <= 0 {
		batch = 500
	}
	return &FanoutService{
		follows:   follows,
		feeds:     feeds,
		cache:     c,
		maxAge:    time.Duration(maxAgeDays) * 24 * time.Hour,
		batchSize: batch,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// FanOutToFollowers 为作者的每个 active 粉丝写入一条时间线项，已存在的跳过，返回粉丝数
func (s *FanoutService) FanOutToFollowers(ctx context.Context, authorID, postID string, postCreatedAt time.Time) (int, error) {
	if authorID == "" || postID == "" {
		return 0, invalid("author and post id are required")
	}
	followers, err := s.followerIDs(ctx, authorID)
	if err != nil {
		return 0, err
	}
	if len(followers) == 0 {
		return 0, nil
	}

	now := s.now()
	if postCreatedAt.IsZero() {
		postCreatedAt = now
	}
	expiresAt := now.Add(s.maxAge)
	entries := make([]model.FeedEntry, 0, len(followers))
	for _, uid := range followers {
		entries = append(entries, model.FeedEntry{
			ID:            uuid.New().String(),
			UserID:        uid,
			PostID:        postID,
			FeedType:      model.FeedFollowing,
			AuthorID:      authorID,
			PostCreatedAt: postCreatedAt.UTC(),
			Reasons:       []string{model.ReasonFollowing},
			ExpiresAt:     expiresAt,
			CreatedAt:     now,
		})
	}
	written, err := s.feeds.InsertIgnore(ctx, entries, s.batchSize)
	if err != nil {
		return 0, err
	}

	metrics.FanoutFollowers.Observe(float64(len(followers)))
	metrics.FanoutEntriesTotal.Add(float64(len(entries)))
	logger.Debug("fan-out done",
		zap.String("author", authorID),
		zap.String("post", postID),
		zap.Int("followers", len(followers)),
		zap.Int64("written", written))
	return len(followers), nil
}

func (s *FanoutService) followerIDs(ctx context.Context, authorID string) ([]string, error) {
	ids, ok, err := s.cache.FollowerIDs(ctx, authorID)
	if err != nil {
		logger.Warn("follower index read failed", zap.String("user", authorID), zap.Error(err))
	}
	if ok {
		return ids, nil
	}
	ids, err = s.follows.ListFollowerIDs(ctx, authorID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.StoreFollowerIDs(ctx, authorID, ids); err != nil {
		logger.Warn("follower index write failed", zap.String("user", authorID), zap.Error(err))
	}
	return ids, nil
}

// RemoveFromAllFeeds 内容删除后从所有时间线移除
func (s *FanoutService) RemoveFromAllFeeds(ctx context.Context, postID string) (int64, error) {
	if postID == "" {
		return 0, invalid("post id is required")
	}
	return s.feeds.DeleteByPost(ctx, postID)
}

func (s *FanoutService) RemoveFromUserFeed(ctx context.Context, userID, postID string) (int64, error) {
	if userID == "" || postID == "" {
		return 0, invalid("user and post id are required")
	}
	return s.feeds.DeleteUserPost(ctx, userID, postID)
}

// RemoveBlockedUserFeeds 同一事务内删除双方时间线中对方的内容
func (s *FanoutService) RemoveBlockedUserFeeds(ctx context.Context, userID, blockedUserID string) (int64, error) {
	return s.feeds.DeleteBetween(ctx, userID, blockedUserID)
}

// RemoveAuthorFromUserFeed 静音作者后清理静音者的时间线
func (s *FanoutService) RemoveAuthorFromUserFeed(ctx context.Context, userID, authorID string) (int64, error) {
	return s.feeds.DeleteAuthorFromUser(ctx, userID, authorID)
}

// SweepUserExpired 物理删除某用户已过期的时间线项
func (s *FanoutService) SweepUserExpired(ctx context.Context, userID string) (int64, error) {
	return s.feeds.DeleteExpiredForUser(ctx, userID, s.now())
}
