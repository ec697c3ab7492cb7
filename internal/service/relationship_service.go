package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/feed-engine/internal/cache"
	"github.com/d60-Lab/feed-engine/internal/events"
	"github.com/d60-Lab/feed-engine/internal/model"
	"github.com/d60-Lab/feed-engine/internal/repository"
	"github.com/d60-Lab/feed-engine/pkg/logger"
)

// MuteDuration 静音时长档位
type MuteDuration string

const (
	MuteOneHour    MuteDuration = "1h"
	MuteOneDay     MuteDuration = "24h"
	MuteOneWeek    MuteDuration = "7d"
	MuteThirtyDays MuteDuration = "30d"
	MuteForever    MuteDuration = "forever"
)

// Horizon 返回时长；forever 为 0。ok=false 表示非法档位
func (d MuteDuration) Horizon() (time.Duration, bool) {
	switch d {
	case MuteOneHour:
		return time.Hour, true
	case MuteOneDay:
		return 24 * time.Hour, true
	case MuteOneWeek:
		return 7 * 24 * time.Hour, true
	case MuteThirtyDays:
		return 30 * 24 * time.Hour, true
	case MuteForever:
		return 0, true
	}
	return 0, false
}

type MuteOptions struct {
	MutePosts    bool
	MuteComments bool
	Duration     MuteDuration
}

// RelationService 关系链服务：关注、拉黑、静音及查询
type RelationService interface {
	Follow(ctx context.Context, followerID, followingID string) error
	Unfollow(ctx context.Context, followerID, followingID string) error
	Block(ctx context.Context, blockerID, blockedID string, reason *string) error
	Unblock(ctx context.Context, blockerID, blockedID string) error
	Mute(ctx context.Context, muterID, mutedID string, opts MuteOptions) (*model.Mute, error)
	Unmute(ctx context.Context, muterID, mutedID string) error

	IsFollowing(ctx context.Context, followerID, followingID string) (bool, error)
	IsBlocked(ctx context.Context, a, b string) (bool, error)
	IsMuted(ctx context.Context, muterID, mutedID string) (bool, error)

	GetFollowerIDs(ctx context.Context, userID string) ([]string, error)
	GetBlockedUsers(ctx context.Context, userID string) ([]*model.Block, error)
	GetMutedUsers(ctx context.Context, userID string) ([]*model.Mute, error)
	ListFollowers(ctx context.Context, userID string, offset, limit int) ([]*model.Follow, error)
	ListFollowing(ctx context.Context, userID string, offset, limit int) ([]*model.Follow, error)
	GetStats(ctx context.Context, userID string) (*model.FollowStats, error)

	// HiddenAuthorIDs 对该用户隐藏的作者：任一方向拉黑 ∪ 未过期的静音
	HiddenAuthorIDs(ctx context.Context, userID string) ([]string, error)
}

type relationService struct {
	follows repository.FollowRepository
	blocks  repository.BlockRepository
	mutes   repository.MuteRepository
	fanout  *FanoutService
	cache   *cache.Cache
	sink    events.Sink
	now     func() time.Time
}

func NewRelationService(
	follows repository.FollowRepository,
	blocks repository.BlockRepository,
	mutes repository.MuteRepository,
	fanout *FanoutService,
	c *cache.Cache,
	sink events.Sink,
) RelationService {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &relationService{
		follows: follows,
		blocks:  blocks,
		mutes:   mutes,
		fanout:  fanout,
		cache:   c,
		sink:    sink,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func checkPair(a, b string) error {
	if a == "" || b == "" {
		return invalid("user ids are required")
	}
	if a == b {
		return ErrSelfRelation
	}
	return nil
}

func (s *relationService) Follow(ctx context.Context, followerID, followingID string) error {
	if err := checkPair(followerID, followingID); err != nil {
		return err
	}
	blocked, err := s.blocks.IsBlocked(ctx, followerID, followingID)
	if err != nil {
		return err
	}
	if blocked {
		return ErrBlocked
	}
	changed, err := s.follows.Follow(ctx, followerID, followingID)
	if err != nil {
		return err
	}
	if changed {
		s.invalidateFollowers(ctx, followingID)
		s.publish(ctx, events.UserFollowed, followerID, followingID)
	}
	return nil
}

func (s *relationService) Unfollow(ctx context.Context, followerID, followingID string) error {
	if err := checkPair(followerID, followingID); err != nil {
		return err
	}
	if err := s.follows.Unfollow(ctx, followerID, followingID); err != nil {
		return err
	}
	s.invalidateFollowers(ctx, followingID)
	s.publish(ctx, events.UserUnfollowed, followerID, followingID)
	return nil
}

func (s *relationService) Block(ctx context.Context, blockerID, blockedID string, reason *string) error {
	if err := checkPair(blockerID, blockedID); err != nil {
		return err
	}
	removed, err := s.blocks.Block(ctx, blockerID, blockedID, reason)
	if err != nil {
		return err
	}
	entries, err := s.fanout.RemoveBlockedUserFeeds(ctx, blockerID, blockedID)
	if err != nil {
		// 拉黑已生效，读路径按隐藏集合过滤；残留行由后续拉黑重试或过期清理移除
		logger.Warn("remove blocked feeds failed",
			zap.String("blocker", blockerID), zap.String("blocked", blockedID), zap.Error(err))
	}
	logger.Debug("user blocked",
		zap.String("blocker", blockerID), zap.String("blocked", blockedID),
		zap.Int("follows_removed", removed), zap.Int64("entries_removed", entries))

	s.invalidateHidden(ctx, blockerID, blockedID)
	s.invalidateFollowers(ctx, blockerID, blockedID)
	s.publish(ctx, events.UserBlocked, blockerID, blockedID)
	return nil
}

func (s *relationService) Unblock(ctx context.Context, blockerID, blockedID string) error {
	if err := checkPair(blockerID, blockedID); err != nil {
		return err
	}
	if err := s.blocks.Unblock(ctx, blockerID, blockedID); err != nil {
		return err
	}
	s.invalidateHidden(ctx, blockerID, blockedID)
	s.publish(ctx, events.UserUnblocked, blockerID, blockedID)
	return nil
}

func (s *relationService) Mute(ctx context.Context, muterID, mutedID string, opts MuteOptions) (*model.Mute, error) {
	if err := checkPair(muterID, mutedID); err != nil {
		return nil, err
	}
	if opts.Duration == "" {
		opts.Duration = MuteForever
	}
	horizon, ok := opts.Duration.Horizon()
	if !ok {
		return nil, invalid("unsupported mute duration %q", opts.Duration)
	}

	now := s.now()
	m := &model.Mute{
		ID:           uuid.New().String(),
		MuterID:      muterID,
		MutedID:      mutedID,
		MutePosts:    opts.MutePosts,
		MuteComments: opts.MuteComments,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if horizon > 0 {
		exp := now.Add(horizon)
		m.ExpiresAt = &exp
	}
	if err := s.mutes.Upsert(ctx, m); err != nil {
		return nil, err
	}

	if opts.MutePosts {
		if _, err := s.fanout.RemoveAuthorFromUserFeed(ctx, muterID, mutedID); err != nil {
			logger.Warn("remove muted author entries failed",
				zap.String("muter", muterID), zap.String("muted", mutedID), zap.Error(err))
		}
	}
	s.invalidateHidden(ctx, muterID, mutedID)
	s.publish(ctx, events.UserMuted, muterID, mutedID)
	return m, nil
}

func (s *relationService) Unmute(ctx context.Context, muterID, mutedID string) error {
	if err := checkPair(muterID, mutedID); err != nil {
		return err
	}
	if err := s.mutes.Delete(ctx, muterID, mutedID); err != nil {
		return err
	}
	s.invalidateHidden(ctx, muterID, mutedID)
	s.publish(ctx, events.UserUnmuted, muterID, mutedID)
	return nil
}

func (s *relationService) IsFollowing(ctx context.Context, followerID, followingID string) (bool, error) {
	return s.follows.IsFollowing(ctx, followerID, followingID)
}

func (s *relationService) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	return s.blocks.IsBlocked(ctx, a, b)
}

// IsMuted 读到已过期的静音时顺带删除；删除是条件删除，不会误删并发续期的行
func (s *relationService) IsMuted(ctx context.Context, muterID, mutedID string) (bool, error) {
	m, err := s.mutes.Get(ctx, muterID, mutedID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	now := s.now()
	if !m.Expired(now) {
		return true, nil
	}
	deleted, err := s.mutes.DeleteIfExpired(ctx, muterID, mutedID, now)
	if err != nil {
		logger.Warn("delete expired mute failed", zap.String("muter", muterID), zap.String("muted", mutedID), zap.Error(err))
	}
	if deleted {
		s.invalidateHidden(ctx, muterID)
	}
	return false, nil
}

func (s *relationService) GetFollowerIDs(ctx context.Context, userID string) ([]string, error) {
	return s.follows.ListFollowerIDs(ctx, userID)
}

func (s *relationService) GetBlockedUsers(ctx context.Context, userID string) ([]*model.Block, error) {
	return s.blocks.ListBlocked(ctx, userID)
}

func (s *relationService) GetMutedUsers(ctx context.Context, userID string) ([]*model.Mute, error) {
	return s.mutes.ListActive(ctx, userID, s.now())
}

func (s *relationService) ListFollowers(ctx context.Context, userID string, offset, limit int) ([]*model.Follow, error) {
	limit, err := listPage(userID, offset, limit)
	if err != nil {
		return nil, err
	}
	return s.follows.ListFollowers(ctx, userID, offset, limit)
}

func (s *relationService) ListFollowing(ctx context.Context, userID string, offset, limit int) ([]*model.Follow, error) {
	limit, err := listPage(userID, offset, limit)
	if err != nil {
		return nil, err
	}
	return s.follows.ListFollowings(ctx, userID, offset, limit)
}

// listPage 关系列表分页：limit 缺省 20，上限 100
func listPage(userID string, offset, limit int) (int, error) {
	if userID == "" {
		return 0, invalid("user id is required")
	}
	if offset < 0 || limit < 0 {
		return 0, invalid("limit and offset must not be negative")
	}
	if limit == 0 {
		return defaultPageSize, nil
	}
	if limit > 100 {
		return 0, invalid("limit must not exceed 100")
	}
	return limit, nil
}

func (s *relationService) GetStats(ctx context.Context, userID string) (*model.FollowStats, error) {
	return s.follows.Stats(ctx, userID)
}

func (s *relationService) HiddenAuthorIDs(ctx context.Context, userID string) ([]string, error) {
	ids, version, ok, err := s.cache.HiddenAuthors(ctx, userID)
	if err != nil {
		logger.Warn("hidden authors cache read failed", zap.String("user", userID), zap.Error(err))
	}
	if ok {
		return ids, nil
	}

	blocked, err := s.blocks.RelatedUserIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	mutes, err := s.mutes.ListActive(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(blocked)+len(mutes))
	ids = make([]string, 0, len(blocked)+len(mutes))
	add := func(id string) {
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, id := range blocked {
		add(id)
	}
	// 缓存不能活过最早到期的静音
	var ttl time.Duration
	for _, m := range mutes {
		add(m.MutedID)
		if m.ExpiresAt != nil {
			if left := m.ExpiresAt.Sub(now); ttl == 0 || left < ttl {
				ttl = left
			}
		}
	}
	// 回源期间若有拉黑/静音变更，版本号已变，旧集合不会写回
	if _, err := s.cache.StoreHiddenAuthors(ctx, userID, version, ids, ttl); err != nil {
		logger.Warn("hidden authors cache write failed", zap.String("user", userID), zap.Error(err))
	}
	return ids, nil
}

func (s *relationService) invalidateHidden(ctx context.Context, userIDs ...string) {
	if err := s.cache.InvalidateHidden(ctx, userIDs...); err != nil {
		logger.Warn("hidden authors cache invalidate failed", zap.Strings("users", userIDs), zap.Error(err))
	}
}

func (s *relationService) invalidateFollowers(ctx context.Context, userIDs ...string) {
	if err := s.cache.InvalidateFollowers(ctx, userIDs...); err != nil {
		logger.Warn("follower index invalidate failed", zap.Strings("users", userIDs), zap.Error(err))
	}
}

// publish 提交后尽力投递，失败只记日志
func (s *relationService) publish(ctx context.Context, typ events.EventType, actor, target string) {
	ev := events.RelationEvent{Type: typ, ActorID: actor, TargetID: target, OccurredAt: s.now()}
	if err := s.sink.Publish(ctx, ev); err != nil {
		logger.Warn("publish relation event failed", zap.String("type", string(typ)), zap.Error(err))
	}
}
