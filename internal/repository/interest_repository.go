package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/feed-engine/internal/model"
)

// InterestDelta 一次交互对某个兴趣维度的增量
type InterestDelta struct {
	Type  model.InterestType
	Value string
	Score float64
}

type InterestRepository interface {
	// AppendInteraction 追加原始交互日志
	AppendInteraction(ctx context.Context, it *model.Interaction) error
	// Increment 原子累加一组兴趣分，不存在则以 delta 建行
	Increment(ctx context.Context, userID string, deltas []InterestDelta, now time.Time) error
	Top(ctx context.Context, userID string, limit int) ([]*model.UserInterest, error)
	Get(ctx context.Context, userID string, typ model.InterestType, value string) (*model.UserInterest, error)
	// Decay 对 last_interaction_at 早于 before 的行乘以 factor，随后删除低于 floor 的行
	Decay(ctx context.Context, before time.Time, factor, floor float64) (decayed, pruned int64, err error)
	DeleteBelow(ctx context.Context, floor float64) (int64, error)
	ListInteractions(ctx context.Context, userID string, limit int) ([]*model.Interaction, error)
}

type interestRepository struct{ db *gorm.DB }

func NewInterestRepository(db *gorm.DB) InterestRepository { return &interestRepository{db: db} }

func (r *interestRepository) AppendInteraction(ctx context.Context, it *model.Interaction) error {
	if it.ID == "" {
		it.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(it).Error
}

func (r *interestRepository) Increment(ctx context.Context, userID string, deltas []InterestDelta, now time.Time) error {
	if len(deltas) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, d := range deltas {
			row := model.UserInterest{
				ID:                uuid.New().String(),
				UserID:            userID,
				InterestType:      d.Type,
				InterestValue:     d.Value,
				Score:             d.Score,
				InteractionCount:  1,
				LastInteractionAt: now,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}, {Name: "interest_type"}, {Name: "interest_value"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"score":               gorm.Expr("user_interests.score + ?", d.Score),
					"interaction_count":   gorm.Expr("user_interests.interaction_count + 1"),
					"last_interaction_at": now,
					"updated_at":          now,
				}),
			}).Create(&row).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *interestRepository) Top(ctx context.Context, userID string, limit int) ([]*model.UserInterest, error) {
	var res []*model.UserInterest
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("score DESC, interest_type ASC, interest_value ASC").
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *interestRepository) Get(ctx context.Context, userID string, typ model.InterestType, value string) (*model.UserInterest, error) {
	var ui model.UserInterest
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND interest_type = ? AND interest_value = ?", userID, typ, value).
		First(&ui).Error; err != nil {
		return nil, errNotFoundOr(err)
	}
	return &ui, nil
}

func (r *interestRepository) Decay(ctx context.Context, before time.Time, factor, floor float64) (int64, int64, error) {
	var decayed, pruned int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.UserInterest{}).
			Where("last_interaction_at < ?", before).
			UpdateColumn("score", gorm.Expr("score * ?", factor))
		if res.Error != nil {
			return res.Error
		}
		decayed = res.RowsAffected

		res = tx.Where("score < ?", floor).Delete(&model.UserInterest{})
		if res.Error != nil {
			return res.Error
		}
		pruned = res.RowsAffected
		return nil
	})
	return decayed, pruned, err
}

func (r *interestRepository) DeleteBelow(ctx context.Context, floor float64) (int64, error) {
	res := r.db.WithContext(ctx).Where("score < ?", floor).Delete(&model.UserInterest{})
	return res.RowsAffected, res.Error
}

func (r *interestRepository) ListInteractions(ctx context.Context, userID string, limit int) ([]*model.Interaction, error) {
	var res []*model.Interaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&res).Error
	return res, err
}
