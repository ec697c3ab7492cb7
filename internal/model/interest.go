package model

import (
	"time"

	"gorm.io/datatypes"
)

// InterestType 兴趣维度
type InterestType string

const (
	InterestCategory InterestType = "category"
	InterestHashtag  InterestType = "hashtag"
	InterestSeller   InterestType = "seller"
)

// UserInterest 用户对 (类目/话题/商家) 的加权亲和度
type UserInterest struct {
	ID                string       `gorm:"primaryKey;type:varchar(36)"`
	UserID            string       `gorm:"type:varchar(36);not null;index:ux_interest_key,unique,priority:1;index:idx_interest_user_score,priority:1"`
	InterestType      InterestType `gorm:"type:varchar(16);not null;index:ux_interest_key,unique,priority:2"`
	InterestValue     string       `gorm:"type:varchar(128);not null;index:ux_interest_key,unique,priority:3"`
	Score             float64      `gorm:"not null;default:0;index:idx_interest_user_score,priority:2"`
	InteractionCount  int64        `gorm:"not null;default:0"`
	LastInteractionAt time.Time    `gorm:"not null;index"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (UserInterest) TableName() string { return "user_interests" }

// Interaction 原始交互日志（只追加）
type Interaction struct {
	ID              string         `gorm:"primaryKey;type:varchar(36)"`
	UserID          string         `gorm:"type:varchar(36);not null;index:idx_interaction_user_time,priority:1"`
	ContentType     string         `gorm:"type:varchar(32);not null"`
	ContentID       string         `gorm:"type:varchar(64);not null;index"`
	InteractionType string         `gorm:"type:varchar(32);not null"`
	Weight          float64        `gorm:"not null"`
	Metadata        datatypes.JSON `gorm:"type:json"`
	CreatedAt       time.Time      `gorm:"index:idx_interaction_user_time,priority:2"`
}

func (Interaction) TableName() string { return "user_interactions" }
