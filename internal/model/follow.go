package model

import (
	"time"
)

// FollowStatus 关注边状态
type FollowStatus string

const (
	FollowActive     FollowStatus = "active"
	FollowUnfollowed FollowStatus = "unfollowed"
)

// Follow 关注关系（A 关注 B），取关后保留行并标记 unfollowed
type Follow struct {
	ID           string       `gorm:"primaryKey;type:varchar(36)"`
	FollowerID   string       `gorm:"type:varchar(36);not null;index:idx_follow_pair,unique,priority:1"`
	FollowingID  string       `gorm:"type:varchar(36);not null;index:idx_follow_pair,unique,priority:2;index:idx_follow_following_status,priority:1"`
	Status       FollowStatus `gorm:"type:varchar(16);not null;default:active;index:idx_follow_following_status,priority:2"`
	UnfollowedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Follow) TableName() string { return "follows" }

// FollowStats 关注计数，与关注边在同一事务内增减
type FollowStats struct {
	UserID         string `gorm:"primaryKey;type:varchar(36)"`
	FollowerCount  int64  `gorm:"not null;default:0"`
	FollowingCount int64  `gorm:"not null;default:0"`
	UpdatedAt      time.Time
}

func (FollowStats) TableName() string { return "follow_stats" }
