package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/feed-engine/internal/model"
)

type MuteRepository interface {
	Upsert(ctx context.Context, m *model.Mute) error
	Delete(ctx context.Context, muterID, mutedID string) error
	Get(ctx context.Context, muterID, mutedID string) (*model.Mute, error)
	// DeleteIfExpired 条件删除：仅当行在 now 时刻已过期才删除，避免误删并发续期的静音
	DeleteIfExpired(ctx context.Context, muterID, mutedID string, now time.Time) (bool, error)
	ListActive(ctx context.Context, muterID string, now time.Time) ([]*model.Mute, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type muteRepository struct{ db *gorm.DB }

func NewMuteRepository(db *gorm.DB) MuteRepository { return &muteRepository{db: db} }

func (r *muteRepository) Upsert(ctx context.Context, m *model.Mute) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "muter_id"}, {Name: "muted_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"mute_posts":    m.MutePosts,
			"mute_comments": m.MuteComments,
			"expires_at":    m.ExpiresAt,
			"updated_at":    m.UpdatedAt,
		}),
	}).Create(m).Error
}

func (r *muteRepository) Delete(ctx context.Context, muterID, mutedID string) error {
	res := r.db.WithContext(ctx).
		Where("muter_id = ? AND muted_id = ?", muterID, mutedID).
		Delete(&model.Mute{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *muteRepository) Get(ctx context.Context, muterID, mutedID string) (*model.Mute, error) {
	var m model.Mute
	if err := r.db.WithContext(ctx).
		Where("muter_id = ? AND muted_id = ?", muterID, mutedID).
		First(&m).Error; err != nil {
		return nil, errNotFoundOr(err)
	}
	return &m, nil
}

func (r *muteRepository) DeleteIfExpired(ctx context.Context, muterID, mutedID string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("muter_id = ? AND muted_id = ? AND expires_at IS NOT NULL AND expires_at <= ?", muterID, mutedID, now).
		Delete(&model.Mute{})
	return res.RowsAffected > 0, res.Error
}

func (r *muteRepository) ListActive(ctx context.Context, muterID string, now time.Time) ([]*model.Mute, error) {
	var res []*model.Mute
	err := r.db.WithContext(ctx).
		Where("muter_id = ? AND (expires_at IS NULL OR expires_at > ?)", muterID, now).
		Order("created_at DESC").
		Find(&res).Error
	return res, err
}

func (r *muteRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Delete(&model.Mute{})
	return res.RowsAffected, res.Error
}
