package model

import "time"

// Block 拉黑关系，效果双向：任一方向存在即互相隐藏内容
type Block struct {
	ID        string  `gorm:"primaryKey;type:varchar(36)"`
	BlockerID string  `gorm:"type:varchar(36);not null;index:idx_block_pair,unique,priority:1"`
	BlockedID string  `gorm:"type:varchar(36);not null;index:idx_block_pair,unique,priority:2;index:idx_block_blocked"`
	Reason    *string `gorm:"type:varchar(255)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Block) TableName() string { return "blocks" }

// Mute 静音关系（单向，不影响关注边）；ExpiresAt 为空表示永久
type Mute struct {
	ID           string     `gorm:"primaryKey;type:varchar(36)"`
	MuterID      string     `gorm:"type:varchar(36);not null;index:idx_mute_pair,unique,priority:1"`
	MutedID      string     `gorm:"type:varchar(36);not null;index:idx_mute_pair,unique,priority:2"`
	MutePosts    bool       `gorm:"not null"`
	MuteComments bool       `gorm:"not null"`
	ExpiresAt    *time.Time `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Mute) TableName() string { return "mutes" }

// Expired 判断静音是否已过期
func (m *Mute) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !now.Before(*m.ExpiresAt)
}
