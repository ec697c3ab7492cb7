package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/feed-engine/internal/repository"
	"github.com/d60-Lab/feed-engine/pkg/logger"
)

// SweepResult 一次清理删除的行数
type SweepResult struct {
	FeedEntries int64 `json:"feedEntries"`
	Mutes       int64 `json:"mutes"`
	Interests   int64 `json:"interests"`
}

// Sweeper 周期性物理删除过期数据：时间线项、过期静音、低于下限的兴趣。
// 读路径本身已经按过期时间过滤，这里只回收空间。
type Sweeper struct {
	feeds     repository.FeedRepository
	mutes     repository.MuteRepository
	interests *InterestService
	now       func() time.Time
}

func NewSweeper(feeds repository.FeedRepository, mutes repository.MuteRepository, interests *InterestService) *Sweeper {
	return &Sweeper{feeds: feeds, mutes: mutes, interests: interests, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now()

	n, err := s.feeds.DeleteExpired(ctx, now)
	if err != nil {
		return res, err
	}
	res.FeedEntries = n

	if n, err = s.mutes.PurgeExpired(ctx, now); err != nil {
		return res, err
	}
	res.Mutes = n

	if s.interests != nil {
		if n, err = s.interests.PruneBelowFloor(ctx); err != nil {
			return res, err
		}
		res.Interests = n
	}

	logger.Info("sweep done",
		zap.Int64("feed_entries", res.FeedEntries),
		zap.Int64("mutes", res.Mutes),
		zap.Int64("interests", res.Interests))
	return res, nil
}
