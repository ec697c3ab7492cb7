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

type BlockRepository interface {
	// Block 写入拉黑关系并在同一事务内解除双向 active 关注，返回被解除的关注边数量
	Block(ctx context.Context, blockerID, blockedID string, reason *string) (int, error)
	Unblock(ctx context.Context, blockerID, blockedID string) error
	// IsBlocked 任一方向存在拉黑即为 true
	IsBlocked(ctx context.Context, a, b string) (bool, error)
	ListBlocked(ctx context.Context, blockerID string) ([]*model.Block, error)
	// RelatedUserIDs 与 userID 存在任一方向拉黑关系的用户
	RelatedUserIDs(ctx context.Context, userID string) ([]string, error)
}

type blockRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewBlockRepository(db *gorm.DB) BlockRepository {
	return &blockRepository{db: db, now: utcNow}
}

func (r *blockRepository) Block(ctx context.Context, blockerID, blockedID string, reason *string) (int, error) {
	removed := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now()
		b := &model.Block{
			ID:        uuid.New().String(),
			BlockerID: blockerID,
			BlockedID: blockedID,
			Reason:    reason,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "blocker_id"}, {Name: "blocked_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"reason": reason, "updated_at": now}),
		}).Create(b).Error; err != nil {
			return err
		}

		for _, pair := range [][2]string{{blockerID, blockedID}, {blockedID, blockerID}} {
			changed, err := unfollowTx(tx, pair[0], pair[1], now)
			if err != nil {
				return err
			}
			if changed {
				removed++
			}
		}
		return nil
	})
	return removed, err
}

func (r *blockRepository) Unblock(ctx context.Context, blockerID, blockedID string) error {
	res := r.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&model.Block{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *blockRepository) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *blockRepository) ListBlocked(ctx context.Context, blockerID string) ([]*model.Block, error) {
	var res []*model.Block
	err := r.db.WithContext(ctx).
		Where("blocker_id = ?", blockerID).
		Order("created_at DESC").
		Find(&res).Error
	return res, err
}

func (r *blockRepository) RelatedUserIDs(ctx context.Context, userID string) ([]string, error) {
	var rows []*model.Block
	if err := r.db.WithContext(ctx).
		Select("blocker_id", "blocked_id").
		Where("blocker_id = ? OR blocked_id = ?", userID, userID).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, b := range rows {
		if b.BlockerID == userID {
			ids = append(ids, b.BlockedID)
		} else {
			ids = append(ids, b.BlockerID)
		}
	}
	return ids, nil
}

// errNotFoundOr 把 gorm 的未找到错误统一为 ErrNotFound
func errNotFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
