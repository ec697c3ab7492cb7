package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/feed-engine/internal/model"
)

// FeedQuery 时间线分页读取条件
type FeedQuery struct {
	UserID         string
	FeedType       model.FeedType
	ExcludeAuthors []string
	Now            time.Time
	Offset, Limit  int
}

type FeedRepository interface {
	// InsertIgnore 批量写入，已存在的 (user, post, feed_type) 直接跳过，返回新写入行数
	InsertIgnore(ctx context.Context, entries []model.FeedEntry, batchSize int) (int64, error)
	// ListLive 只返回未过期的条目，按 post_created_at 倒序
	ListLive(ctx context.Context, q FeedQuery) ([]*model.FeedEntry, error)
	DeleteByPost(ctx context.Context, postID string) (int64, error)
	DeleteUserPost(ctx context.Context, userID, postID string) (int64, error)
	DeleteAuthorFromUser(ctx context.Context, userID, authorID string) (int64, error)
	// DeleteBetween 事务内删除双方时间线中对方的内容
	DeleteBetween(ctx context.Context, a, b string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredForUser(ctx context.Context, userID string, now time.Time) (int64, error)
}

type feedRepository struct{ db *gorm.DB }

func NewFeedRepository(db *gorm.DB) FeedRepository { return &feedRepository{db: db} }

func (r *feedRepository) InsertIgnore(ctx context.Context, entries []model.FeedEntry, batchSize int) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "post_id"}, {Name: "feed_type"}},
			DoNothing: true,
		}).
		CreateInBatches(&entries, batchSize)
	return res.RowsAffected, res.Error
}

func (r *feedRepository) ListLive(ctx context.Context, q FeedQuery) ([]*model.FeedEntry, error) {
	tx := r.db.WithContext(ctx).
		Where("user_id = ? AND feed_type = ? AND expires_at > ?", q.UserID, q.FeedType, q.Now)
	if len(q.ExcludeAuthors) > 0 {
		tx = tx.Where("author_id NOT IN ?", q.ExcludeAuthors)
	}
	var res []*model.FeedEntry
	err := tx.Order("post_created_at DESC, post_id DESC").
		Offset(q.Offset).Limit(q.Limit).
		Find(&res).Error
	return res, err
}

func (r *feedRepository) DeleteByPost(ctx context.Context, postID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("post_id = ?", postID).Delete(&model.FeedEntry{})
	return res.RowsAffected, res.Error
}

func (r *feedRepository) DeleteUserPost(ctx context.Context, userID, postID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ? AND post_id = ?", userID, postID).Delete(&model.FeedEntry{})
	return res.RowsAffected, res.Error
}

func (r *feedRepository) DeleteAuthorFromUser(ctx context.Context, userID, authorID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ? AND author_id = ?", userID, authorID).Delete(&model.FeedEntry{})
	return res.RowsAffected, res.Error
}

func (r *feedRepository) DeleteBetween(ctx context.Context, a, b string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, pair := range [][2]string{{a, b}, {b, a}} {
			res := tx.Where("user_id = ? AND author_id = ?", pair[0], pair[1]).Delete(&model.FeedEntry{})
			if res.Error != nil {
				return res.Error
			}
			total += res.RowsAffected
		}
		return nil
	})
	return total, err
}

func (r *feedRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&model.FeedEntry{})
	return res.RowsAffected, res.Error
}

func (r *feedRepository) DeleteExpiredForUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ? AND expires_at <= ?", userID, now).Delete(&model.FeedEntry{})
	return res.RowsAffected, res.Error
}
