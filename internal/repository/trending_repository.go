package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/feed-engine/internal/model"
)

type TrendingRepository interface {
	// ReplaceWindow 同一事务内清空 (windowType, windowStart) 后写入新排名
	ReplaceWindow(ctx context.Context, wt model.WindowType, windowStart time.Time, rows []model.TrendingContent) error
	// ListLatest 返回该窗口类型最近一次计算结果，按 rank 升序
	ListLatest(ctx context.Context, wt model.WindowType, limit int) ([]*model.TrendingContent, error)
	ReplaceHashtags(ctx context.Context, windowDate time.Time, rows []model.TrendingHashtag) error
	ListLatestHashtags(ctx context.Context, limit int) ([]*model.TrendingHashtag, error)
	// Cleanup 删除 window_end / window_date 早于 cutoff 的行
	Cleanup(ctx context.Context, cutoff time.Time) (contents, hashtags int64, err error)
}

type trendingRepository struct{ db *gorm.DB }

func NewTrendingRepository(db *gorm.DB) TrendingRepository { return &trendingRepository{db: db} }

func (r *trendingRepository) ReplaceWindow(ctx context.Context, wt model.WindowType, windowStart time.Time, rows []model.TrendingContent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("window_type = ? AND window_start = ?", wt, windowStart).
			Delete(&model.TrendingContent{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "content_type"}, {Name: "content_id"}, {Name: "window_type"}, {Name: "window_start"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"window_end", "score", "rank", "view_count", "like_count",
				"comment_count", "share_count", "save_count", "updated_at",
			}),
		}).CreateInBatches(&rows, 100).Error
	})
}

func (r *trendingRepository) ListLatest(ctx context.Context, wt model.WindowType, limit int) ([]*model.TrendingContent, error) {
	var latest model.TrendingContent
	err := r.db.WithContext(ctx).
		Where("window_type = ?", wt).
		Order("window_start DESC").
		First(&latest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var res []*model.TrendingContent
	err = r.db.WithContext(ctx).
		Where("window_type = ? AND window_start = ?", wt, latest.WindowStart).
		Order("rank ASC").
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *trendingRepository) ReplaceHashtags(ctx context.Context, windowDate time.Time, rows []model.TrendingHashtag) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("window_type = ? AND window_date = ?", model.WindowDaily, windowDate).
			Delete(&model.TrendingHashtag{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "hashtag"}, {Name: "window_type"}, {Name: "window_date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"score", "post_count", "recent_post_count", "rank", "updated_at",
			}),
		}).CreateInBatches(&rows, 100).Error
	})
}

func (r *trendingRepository) ListLatestHashtags(ctx context.Context, limit int) ([]*model.TrendingHashtag, error) {
	var latest model.TrendingHashtag
	err := r.db.WithContext(ctx).
		Where("window_type = ?", model.WindowDaily).
		Order("window_date DESC").
		First(&latest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var res []*model.TrendingHashtag
	err = r.db.WithContext(ctx).
		Where("window_type = ? AND window_date = ?", model.WindowDaily, latest.WindowDate).
		Order("rank ASC").
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *trendingRepository) Cleanup(ctx context.Context, cutoff time.Time) (int64, int64, error) {
	var contents, hashtags int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("window_end < ?", cutoff).Delete(&model.TrendingContent{})
		if res.Error != nil {
			return res.Error
		}
		contents = res.RowsAffected
		res = tx.Where("window_date < ?", cutoff).Delete(&model.TrendingHashtag{})
		if res.Error != nil {
			return res.Error
		}
		hashtags = res.RowsAffected
		return nil
	})
	return contents, hashtags, err
}
