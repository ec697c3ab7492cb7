package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/feed-engine/internal/model"
)

type FollowRepository interface {
	// Follow 幂等关注；仅在真实状态迁移（新建或重新激活）时返回 changed=true
	Follow(ctx context.Context, followerID, followingID string) (bool, error)
	// Unfollow 取关；没有 active 边时返回 ErrNotFound
	Unfollow(ctx context.Context, followerID, followingID string) error
	IsFollowing(ctx context.Context, followerID, followingID string) (bool, error)
	Get(ctx context.Context, followerID, followingID string) (*model.Follow, error)
	ListFollowerIDs(ctx context.Context, userID string) ([]string, error)
	ListFollowers(ctx context.Context, userID string, offset, limit int) ([]*model.Follow, error)
	ListFollowings(ctx context.Context, userID string, offset, limit int) ([]*model.Follow, error)
	Stats(ctx context.Context, userID string) (*model.FollowStats, error)
}

type followRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{db: db, now: utcNow}
}

func (r *followRepository) Follow(ctx context.Context, followerID, followingID string) (bool, error) {
	var changed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now()
		var rel model.Follow
		err := lockPair(tx, followerID, followingID).First(&rel).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rel = model.Follow{
				ID:          uuid.New().String(),
				FollowerID:  followerID,
				FollowingID: followingID,
				Status:      model.FollowActive,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rel)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				changed = true
				return adjustStats(tx, followerID, followingID, +1, now)
			}
			// 并发请求抢先创建了这条边，重新加锁读取
			if err := lockPair(tx, followerID, followingID).First(&rel).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		// 重复关注请求，不重复计数
		if rel.Status == model.FollowActive {
			return nil
		}
		res := tx.Model(&model.Follow{}).
			Where("id = ? AND status = ?", rel.ID, model.FollowUnfollowed).
			Updates(map[string]any{"status": model.FollowActive, "unfollowed_at": nil, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true
		return adjustStats(tx, followerID, followingID, +1, now)
	})
	return changed, err
}

func (r *followRepository) Unfollow(ctx context.Context, followerID, followingID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		changed, err := unfollowTx(tx, followerID, followingID, r.now())
		if err != nil {
			return err
		}
		if !changed {
			return ErrNotFound
		}
		return nil
	})
}

func (r *followRepository) IsFollowing(ctx context.Context, followerID, followingID string) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.Follow{}).
		Where("follower_id = ? AND following_id = ? AND status = ?", followerID, followingID, model.FollowActive).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *followRepository) Get(ctx context.Context, followerID, followingID string) (*model.Follow, error) {
	var rel model.Follow
	err := r.db.WithContext(ctx).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		First(&rel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

// ListFollowerIDs 全量拉取粉丝 id，仅供扇出等批处理使用
func (r *followRepository) ListFollowerIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Follow{}).
		Where("following_id = ? AND status = ?", userID, model.FollowActive).
		Order("created_at ASC").
		Pluck("follower_id", &ids).Error
	return ids, err
}

func (r *followRepository) ListFollowers(ctx context.Context, userID string, offset, limit int) ([]*model.Follow, error) {
	var res []*model.Follow
	err := r.db.WithContext(ctx).
		Where("following_id = ? AND status = ?", userID, model.FollowActive).
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *followRepository) ListFollowings(ctx context.Context, userID string, offset, limit int) ([]*model.Follow, error) {
	var res []*model.Follow
	err := r.db.WithContext(ctx).
		Where("follower_id = ? AND status = ?", userID, model.FollowActive).
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *followRepository) Stats(ctx context.Context, userID string) (*model.FollowStats, error) {
	var st model.FollowStats
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.FollowStats{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func lockPair(tx *gorm.DB, followerID, followingID string) *gorm.DB {
	// sqlite 方言会忽略行锁子句
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("follower_id = ? AND following_id = ?", followerID, followingID)
}

// unfollowTx 在调用方事务内把 active 边置为 unfollowed 并扣减计数
func unfollowTx(tx *gorm.DB, followerID, followingID string, now time.Time) (bool, error) {
	res := tx.Model(&model.Follow{}).
		Where("follower_id = ? AND following_id = ? AND status = ?", followerID, followingID, model.FollowActive).
		Updates(map[string]any{"status": model.FollowUnfollowed, "unfollowed_at": now, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, adjustStats(tx, followerID, followingID, -1, now)
}

// adjustStats 原子增减双方计数，与关注边写入处于同一事务
func adjustStats(tx *gorm.DB, followerID, followingID string, delta int64, now time.Time) error {
	if delta > 0 {
		if err := upsertCounter(tx, followingID, "follower_count", delta, now); err != nil {
			return err
		}
		return upsertCounter(tx, followerID, "following_count", delta, now)
	}
	if err := tx.Model(&model.FollowStats{}).
		Where("user_id = ? AND follower_count > 0", followingID).
		UpdateColumns(map[string]any{"follower_count": gorm.Expr("follower_count + ?", delta), "updated_at": now}).Error; err != nil {
		return err
	}
	return tx.Model(&model.FollowStats{}).
		Where("user_id = ? AND following_count > 0", followerID).
		UpdateColumns(map[string]any{"following_count": gorm.Expr("following_count + ?", delta), "updated_at": now}).Error
}

func upsertCounter(tx *gorm.DB, userID, column string, delta int64, now time.Time) error {
	row := model.FollowStats{UserID: userID, UpdatedAt: now}
	switch column {
	case "follower_count":
		row.FollowerCount = delta
	case "following_count":
		row.FollowingCount = delta
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			column:       gorm.Expr("follow_stats."+column+" + ?", delta),
			"updated_at": now,
		}),
	}).Create(&row).Error
}

func utcNow() time.Time { return time.Now().UTC() }
