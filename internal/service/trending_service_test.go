package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/feed-engine/internal/content"
	"github.com/d60-Lab/feed-engine/internal/model"
)

func TestTrendingScore(t *testing.T) {
	r := content.EngagementRecord{Views: 10, Likes: 2, PublishedAt: t0}
	assert.InDelta(t, 1208.0, TrendingScore(r, t0), 1e-9)

	// 一天后：engagement 20，velocity 20/24，衰减 0.95
	day := TrendingScore(r, t0.Add(24*time.Hour))
	assert.InDelta(t, (20*0.4+20.0/24*100*0.6)*0.95, day, 1e-9)

	// 未来发布时间按 0 小时处理
	future := content.EngagementRecord{Views: 10, Likes: 2, PublishedAt: t0.Add(time.Hour)}
	assert.InDelta(t, 1208.0, TrendingScore(future, t0), 1e-9)
}

func TestHashtagScore(t *testing.T) {
	assert.Equal(t, 10.0*3+50.0*2, HashtagScore(content.HashtagStat{Tag: "x", PostCount: 3, RecentPostCount: 2}))
}

func TestWindowBounds(t *testing.T) {
	start, end := WindowBounds(model.WindowHourly, t0)
	assert.Equal(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), end)
	assert.Equal(t, end.Add(-time.Hour), start)

	start, end = WindowBounds(model.WindowWeekly, t0)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), end)
	assert.Equal(t, end.AddDate(0, 0, -7), start)

	s2, _ := WindowBounds(model.WindowHourly, t0.Add(25*time.Minute))
	s1, _ := WindowBounds(model.WindowHourly, t0)
	assert.Equal(t, s1, s2)
}

func engagement(n int) []content.EngagementRecord {
	out := make([]content.EngagementRecord, n)
	for i := range out {
		out[i] = content.EngagementRecord{
			ContentType: ContentPost,
			ContentID:   fmt.Sprintf("c%02d", i),
			Views:       int64(1000 - i*7),
			Likes:       int64(i % 5),
			PublishedAt: t0.Add(-time.Duration(i) * time.Minute),
		}
	}
	return out
}

func TestComputeTrending_DeterministicAndIdempotent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.source.SetEngagement(engagement(10))

	n, err := e.trending.ComputeTrending(ctx, model.WindowHourly)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	first, err := e.trending.GetTrendingPosts(ctx, model.WindowHourly, 0)
	require.NoError(t, err)

	// 同一小时内重算落在同一窗口上
	e.clock.Advance(20 * time.Minute)
	_, err = e.trending.ComputeTrending(ctx, model.WindowHourly)
	require.NoError(t, err)
	e.clock.Advance(-20 * time.Minute)
	_, err = e.trending.ComputeTrending(ctx, model.WindowHourly)
	require.NoError(t, err)

	second, err := e.trending.GetTrendingPosts(ctx, model.WindowHourly, 0)
	require.NoError(t, err)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ContentID, second[i].ContentID)
		assert.Equal(t, first[i].Rank, second[i].Rank)
		assert.InDelta(t, first[i].Score, second[i].Score, 1e-9)
	}

	var cnt int64
	require.NoError(t, e.db.Model(&model.TrendingContent{}).Count(&cnt).Error)
	assert.EqualValues(t, 10, cnt)
}

func TestComputeTrending_TopKDenseRanksAndDuplicates(t *testing.T) {
	e := newTestEnv(t)
	e.trending.topContent = 5
	ctx := context.Background()

	records := engagement(8)
	records = append(records, records[0]) // 重复记录只计一次
	e.source.SetEngagement(records)

	n, err := e.trending.ComputeTrending(ctx, model.WindowDaily)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	rows, err := e.trending.GetTrendingPosts(ctx, model.WindowDaily, 0)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	for i, r := range rows {
		assert.Equal(t, i+1, r.Rank)
		if i > 0 {
			assert.GreaterOrEqual(t, rows[i-1].Score, r.Score)
		}
	}
}

func TestComputeTrending_NoDataKeepsPrevious(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.source.SetEngagement(engagement(3))
	_, err := e.trending.ComputeTrending(ctx, model.WindowDaily)
	require.NoError(t, err)

	e.source.SetEngagement(nil)
	e.clock.Advance(2 * time.Hour)
	n, err := e.trending.ComputeTrending(ctx, model.WindowDaily)
	require.NoError(t, err)
	assert.Zero(t, n)

	rows, err := e.trending.GetTrendingPosts(ctx, model.WindowDaily, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestComputeTrending_Errors(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.trending.ComputeTrending(context.Background(), model.WindowType("yearly"))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	e.source.SetError(content.ErrUnavailable)
	_, err = e.trending.ComputeTrending(context.Background(), model.WindowHourly)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestTrendingCandidates_CacheAndFallback(t *testing.T) {
	e := newTestEnv(t, withRedis())
	ctx := context.Background()
	records := engagement(6)
	records = append(records, content.EngagementRecord{ContentType: ContentSeller, ContentID: "seller-1", Views: 1 << 20, PublishedAt: t0})
	e.source.SetEngagement(records)
	_, err := e.trending.ComputeTrending(ctx, model.WindowDaily)
	require.NoError(t, err)

	cached, err := e.trending.Candidates(ctx, model.WindowDaily, 1, 3)
	require.NoError(t, err)
	require.Len(t, cached, 3)
	for _, it := range cached {
		assert.NotEqual(t, "seller-1", it.ContentID)
	}

	rows, err := e.trending.GetTrendingPosts(ctx, model.WindowDaily, 0)
	require.NoError(t, err)
	posts := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.ContentType == ContentPost {
			posts = append(posts, r.ContentID)
		}
	}
	assert.Equal(t, posts[1:4], []string{cached[0].ContentID, cached[1].ContentID, cached[2].ContentID})

	// 清空缓存后回源数据库，结果一致
	e.trending.cache = nil
	fromDB, err := e.trending.Candidates(ctx, model.WindowDaily, 1, 3)
	require.NoError(t, err)
	require.Len(t, fromDB, 3)
	for i := range fromDB {
		assert.Equal(t, cached[i].ContentID, fromDB[i].ContentID)
		assert.InDelta(t, cached[i].Score, fromDB[i].Score, 1e-9)
	}
}

func TestTrendingHashtags(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.source.SetHashtags([]content.HashtagStat{
		{Tag: "low", PostCount: 1},
		{Tag: "high", PostCount: 1, RecentPostCount: 5},
		{Tag: "", PostCount: 100},
		{Tag: "mid", PostCount: 10},
	})
	n, err := e.trending.ComputeTrendingHashtags(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// 同日重算覆盖
	_, err = e.trending.ComputeTrendingHashtags(ctx)
	require.NoError(t, err)

	tags, err := e.trending.GetTrendingHashtags(ctx, 0)
	require.NoError(t, err)
	require.Len(t, tags, 3)
	assert.Equal(t, "high", tags[0].Hashtag)
	assert.Equal(t, "mid", tags[1].Hashtag)
	assert.Equal(t, "low", tags[2].Hashtag)
	assert.Equal(t, 3, tags[2].Rank)
}

func TestTrendingHashtags_TopKCountsDistinctTags(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.trending.topHashtags = 3
	e.source.SetHashtags([]content.HashtagStat{
		{Tag: "hot", PostCount: 9, RecentPostCount: 9},
		{Tag: "hot", PostCount: 8, RecentPostCount: 8},
		{Tag: "", PostCount: 100, RecentPostCount: 100},
		{Tag: "hot", PostCount: 7, RecentPostCount: 7},
		{Tag: "warm", PostCount: 5},
		{Tag: "cool", PostCount: 3},
		{Tag: "cold", PostCount: 1},
	})
	n, err := e.trending.ComputeTrendingHashtags(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	tags, err := e.trending.GetTrendingHashtags(ctx, 0)
	require.NoError(t, err)
	require.Len(t, tags, 3)
	assert.Equal(t, []string{"hot", "warm", "cool"}, []string{tags[0].Hashtag, tags[1].Hashtag, tags[2].Hashtag})
	assert.EqualValues(t, 9, tags[0].PostCount, "duplicate keeps the highest scored stat")
	assert.Equal(t, []int{1, 2, 3}, []int{tags[0].Rank, tags[1].Rank, tags[2].Rank})
}

func TestCleanupOldTrending(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.source.SetEngagement(engagement(4))
	e.source.SetHashtags([]content.HashtagStat{{Tag: "a", PostCount: 1}})
	_, err := e.trending.ComputeTrending(ctx, model.WindowDaily)
	require.NoError(t, err)
	_, err = e.trending.ComputeTrendingHashtags(ctx)
	require.NoError(t, err)

	e.clock.Advance(8 * 24 * time.Hour)
	_, err = e.trending.ComputeTrending(ctx, model.WindowDaily)
	require.NoError(t, err)

	contents, hashtags, err := e.trending.CleanupOldTrending(ctx, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 4, contents)
	assert.EqualValues(t, 1, hashtags)

	rows, err := e.trending.GetTrendingPosts(ctx, model.WindowDaily, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}
