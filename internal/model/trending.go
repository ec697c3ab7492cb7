package model

import "time"

// WindowType 热榜滚动窗口
type WindowType string

const (
	WindowHourly  WindowType = "hourly"
	WindowDaily   WindowType = "daily"
	WindowWeekly  WindowType = "weekly"
	WindowMonthly WindowType = "monthly"
)

// WindowTypes 所有合法窗口
var WindowTypes = []WindowType{WindowHourly, WindowDaily, WindowWeekly, WindowMonthly}

// Horizon 窗口跨度
func (w WindowType) Horizon() time.Duration {
	switch w {
	case WindowHourly:
		return time.Hour
	case WindowDaily:
		return 24 * time.Hour
	case WindowWeekly:
		return 7 * 24 * time.Hour
	case WindowMonthly:
		return 30 * 24 * time.Hour
	}
	return 0
}

// Valid 是否为合法窗口
func (w WindowType) Valid() bool { return w.Horizon() > 0 }

// TrendingContent 某窗口内的内容热度排名
type TrendingContent struct {
	ID           string     `gorm:"primaryKey;type:varchar(36)"`
	ContentType  string     `gorm:"type:varchar(32);not null;index:ux_trending_key,unique,priority:1"`
	ContentID    string     `gorm:"type:varchar(64);not null;index:ux_trending_key,unique,priority:2"`
	WindowType   WindowType `gorm:"type:varchar(16);not null;index:ux_trending_key,unique,priority:3;index:idx_trending_window_rank,priority:1"`
	WindowStart  time.Time  `gorm:"not null;index:ux_trending_key,unique,priority:4;index:idx_trending_window_rank,priority:2"`
	WindowEnd    time.Time  `gorm:"not null;index"`
	Score        float64    `gorm:"not null"`
	Rank         int        `gorm:"not null;index:idx_trending_window_rank,priority:3"`
	ViewCount    int64      `gorm:"not null;default:0"`
	LikeCount    int64      `gorm:"not null;default:0"`
	CommentCount int64      `gorm:"not null;default:0"`
	ShareCount   int64      `gorm:"not null;default:0"`
	SaveCount    int64      `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (TrendingContent) TableName() string { return "trending_content" }

// TrendingHashtag 话题日榜
type TrendingHashtag struct {
	ID              string     `gorm:"primaryKey;type:varchar(36)"`
	Hashtag         string     `gorm:"type:varchar(128);not null;index:ux_trending_tag_key,unique,priority:1"`
	WindowType      WindowType `gorm:"type:varchar(16);not null;index:ux_trending_tag_key,unique,priority:2"`
	WindowDate      time.Time  `gorm:"not null;index:ux_trending_tag_key,unique,priority:3"`
	Score           float64    `gorm:"not null"`
	PostCount       int64      `gorm:"not null;default:0"`
	RecentPostCount int64      `gorm:"not null;default:0"`
	Rank            int        `gorm:"not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (TrendingHashtag) TableName() string { return "trending_hashtags" }
