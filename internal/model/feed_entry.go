package model

import (
	"time"

	"gorm.io/datatypes"
)

// FeedType 时间线分区类型
type FeedType string

const (
	FeedFollowing FeedType = "following"
	FeedForYou    FeedType = "for_you"
	FeedExplore   FeedType = "explore"
)

// 入选原因标签
const (
	ReasonFollowing = "following"
	ReasonTrending  = "trending"
	ReasonSuggested = "suggested"
)

// FeedEntry 时间线项（按 user_id 分区），(user, post, feed_type) 唯一
type FeedEntry struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)"`
	UserID         string    `gorm:"type:varchar(36);not null;index:ux_feed_user_post_type,unique,priority:1;index:idx_feed_user_time,priority:1"`
	PostID         string    `gorm:"type:varchar(36);not null;index:ux_feed_user_post_type,unique,priority:2;index:idx_feed_post"`
	FeedType       FeedType  `gorm:"type:varchar(16);not null;index:ux_feed_user_post_type,unique,priority:3;index:idx_feed_user_time,priority:2"`
	AuthorID       string    `gorm:"type:varchar(36);not null;index:idx_feed_author"`
	PostCreatedAt  time.Time `gorm:"not null;index:idx_feed_user_time,priority:3"`
	RelevanceScore *float64
	Reasons        datatypes.JSONSlice[string]
	ExpiresAt      time.Time `gorm:"not null;index"`
	CreatedAt      time.Time
}

func (FeedEntry) TableName() string { return "feed_entries" }

// Live 是否仍在有效期内
func (e *FeedEntry) Live(now time.Time) bool { return now.Before(e.ExpiresAt) }
