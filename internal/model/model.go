package model

// All 返回需要迁移的全部模型
func All() []interface{} {
	return []interface{}{
		&Follow{},
		&FollowStats{},
		&Block{},
		&Mute{},
		&FeedEntry{},
		&UserInterest{},
		&Interaction{},
		&TrendingContent{},
		&TrendingHashtag{},
	}
}
