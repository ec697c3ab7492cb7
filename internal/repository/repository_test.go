package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/feed-engine/internal/model"
)

func setupTestDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(tb, err)
	sqlDB, err := db.DB()
	require.NoError(tb, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(tb, db.AutoMigrate(model.All()...))
	return db
}

func TestFollowRepository_FollowUnfollowCounters(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFollowRepository(db)
	ctx := context.Background()

	changed, err := repo.Follow(ctx, "b", "a")
	require.NoError(t, err)
	assert.True(t, changed)

	// 重复关注不重复计数
	changed, err = repo.Follow(ctx, "b", "a")
	require.NoError(t, err)
	assert.False(t, changed)

	st, err := repo.Stats(ctx, "a")
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.FollowerCount)
	st, err = repo.Stats(ctx, "b")
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.FollowingCount)

	require.NoError(t, repo.Unfollow(ctx, "b", "a"))
	assert.ErrorIs(t, repo.Unfollow(ctx, "b", "a"), ErrNotFound)

	st, _ = repo.Stats(ctx, "a")
	assert.EqualValues(t, 0, st.FollowerCount)
	st, _ = repo.Stats(ctx, "b")
	assert.EqualValues(t, 0, st.FollowingCount)

	rel, err := repo.Get(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, model.FollowUnfollowed, rel.Status)
	assert.NotNil(t, rel.UnfollowedAt)

	// 重新关注：复用原有边
	changed, err = repo.Follow(ctx, "b", "a")
	require.NoError(t, err)
	assert.True(t, changed)
	st, _ = repo.Stats(ctx, "a")
	assert.EqualValues(t, 1, st.FollowerCount)

	rel, err = repo.Get(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, model.FollowActive, rel.Status)
	assert.Nil(t, rel.UnfollowedAt)

	ok, err := repo.IsFollowing(ctx, "b", "a")
	require.NoError(t, err)
	assert.True(t, ok)

	ids, err := repo.ListFollowerIDs(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

func TestFollowRepository_StatsDefaultsToZero(t *testing.T) {
	repo := NewFollowRepository(setupTestDB(t))
	st, err := repo.Stats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", st.UserID)
	assert.Zero(t, st.FollowerCount)
}

func TestFollowRepository_ListPaginated(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFollowRepository(db)
	ctx := context.Background()
	for _, u := range []string{"u1", "u2", "u3"} {
		_, err := repo.Follow(ctx, u, "star")
		require.NoError(t, err)
	}
	page, err := repo.ListFollowers(ctx, "star", 0, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)
	page, err = repo.ListFollowers(ctx, "star", 2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)

	following, err := repo.ListFollowings(ctx, "u1", 0, 10)
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, "star", following[0].FollowingID)
}

func TestBlockRepository_BlockRemovesBothDirections(t *testing.T) {
	db := setupTestDB(t)
	follows := NewFollowRepository(db)
	blocks := NewBlockRepository(db)
	ctx := context.Background()

	_, err := follows.Follow(ctx, "a", "b")
	require.NoError(t, err)
	_, err = follows.Follow(ctx, "b", "a")
	require.NoError(t, err)

	reason := "spam"
	removed, err := blocks.Block(ctx, "a", "b", &reason)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	for _, pair := range [][2]string{{"a", "b"}, {"b", "a"}} {
		ok, err := follows.IsFollowing(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.False(t, ok)
	}
	for _, u := range []string{"a", "b"} {
		st, err := follows.Stats(ctx, u)
		require.NoError(t, err)
		assert.Zero(t, st.FollowerCount)
		assert.Zero(t, st.FollowingCount)
	}

	ab, err := blocks.IsBlocked(ctx, "a", "b")
	require.NoError(t, err)
	ba, err := blocks.IsBlocked(ctx, "b", "a")
	require.NoError(t, err)
	assert.True(t, ab)
	assert.Equal(t, ab, ba)

	// 重复拉黑只更新原因
	removed, err = blocks.Block(ctx, "a", "b", nil)
	require.NoError(t, err)
	assert.Zero(t, removed)
	list, err := blocks.ListBlocked(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	related, err := blocks.RelatedUserIDs(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, related)

	require.NoError(t, blocks.Unblock(ctx, "a", "b"))
	assert.ErrorIs(t, blocks.Unblock(ctx, "a", "b"), ErrNotFound)
	ab, _ = blocks.IsBlocked(ctx, "b", "a")
	assert.False(t, ab)
}

func TestMuteRepository_ConditionalExpiry(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMuteRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	exp := now.Add(time.Hour)

	m := &model.Mute{
		ID: uuid.New().String(), MuterID: "a", MutedID: "b",
		MutePosts: true, ExpiresAt: &exp, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repo.Upsert(ctx, m))

	deleted, err := repo.DeleteIfExpired(ctx, "a", "b", now)
	require.NoError(t, err)
	assert.False(t, deleted)

	active, err := repo.ListActive(ctx, "a", now)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	// 续期：同一对 upsert 覆盖过期时间
	renewed := now.Add(3 * time.Hour)
	require.NoError(t, repo.Upsert(ctx, &model.Mute{
		ID: uuid.New().String(), MuterID: "a", MutedID: "b",
		MutePosts: false, ExpiresAt: &renewed, CreatedAt: now, UpdatedAt: now,
	}))
	got, err := repo.Get(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, got.MutePosts)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(renewed))

	later := now.Add(2 * time.Hour)
	deleted, err = repo.DeleteIfExpired(ctx, "a", "b", later)
	require.NoError(t, err)
	assert.False(t, deleted, "renewed mute must survive")

	deleted, err = repo.DeleteIfExpired(ctx, "a", "b", now.Add(4*time.Hour))
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = repo.Get(ctx, "a", "b")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "a", "b"), ErrNotFound)
}

func TestMuteRepository_ForeverAndPurge(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMuteRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)

	require.NoError(t, repo.Upsert(ctx, &model.Mute{ID: uuid.New().String(), MuterID: "a", MutedID: "forever", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, repo.Upsert(ctx, &model.Mute{ID: uuid.New().String(), MuterID: "a", MutedID: "old", ExpiresAt: &past, CreatedAt: now, UpdatedAt: now}))

	active, err := repo.ListActive(ctx, "a", now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "forever", active[0].MutedID)

	n, err := repo.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func feedEntry(user, post, author string, created, expires time.Time) model.FeedEntry {
	return model.FeedEntry{
		ID:            uuid.New().String(),
		UserID:        user,
		PostID:        post,
		FeedType:      model.FeedFollowing,
		AuthorID:      author,
		PostCreatedAt: created,
		Reasons:       []string{model.ReasonFollowing},
		ExpiresAt:     expires,
		CreatedAt:     created,
	}
}

func TestFeedRepository_InsertIgnoreAndListLive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFeedRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	exp := now.Add(24 * time.Hour)

	batch := []model.FeedEntry{
		feedEntry("u", "p1", "c1", now.Add(-3*time.Hour), exp),
		feedEntry("u", "p2", "c2", now.Add(-1*time.Hour), exp),
		feedEntry("u", "p3", "c1", now.Add(-2*time.Hour), now.Add(-time.Minute)),
	}
	n, err := repo.InsertIgnore(ctx, batch, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	// 重复投递
	dup := []model.FeedEntry{feedEntry("u", "p1", "c1", now.Add(-3*time.Hour), exp)}
	_, err = repo.InsertIgnore(ctx, dup, 10)
	require.NoError(t, err)
	var cnt int64
	require.NoError(t, db.Model(&model.FeedEntry{}).Where("user_id = ?", "u").Count(&cnt).Error)
	assert.EqualValues(t, 3, cnt)

	live, err := repo.ListLive(ctx, FeedQuery{UserID: "u", FeedType: model.FeedFollowing, Now: now, Limit: 10})
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, "p2", live[0].PostID)
	assert.Equal(t, "p1", live[1].PostID)
	assert.Equal(t, []string{model.ReasonFollowing}, []string(live[0].Reasons))

	live, err = repo.ListLive(ctx, FeedQuery{UserID: "u", FeedType: model.FeedFollowing, Now: now, Limit: 10, ExcludeAuthors: []string{"c2"}})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "p1", live[0].PostID)

	swept, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, swept)
}

func TestFeedRepository_Deletes(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFeedRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	exp := now.Add(time.Hour)

	_, err := repo.InsertIgnore(ctx, []model.FeedEntry{
		feedEntry("a", "pb1", "b", now, exp),
		feedEntry("b", "pa1", "a", now, exp),
		feedEntry("c", "pa1", "a", now, exp),
		feedEntry("c", "pd1", "d", now, exp),
	}, 100)
	require.NoError(t, err)

	n, err := repo.DeleteBetween(ctx, "a", "b")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = repo.DeleteByPost(ctx, "pa1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = repo.DeleteByPost(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.DeleteAuthorFromUser(ctx, "c", "d")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = repo.DeleteUserPost(ctx, "c", "pd1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInterestRepository_IncrementAndDecay(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInterestRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	old := now.Add(-8 * 24 * time.Hour)

	require.NoError(t, repo.Increment(ctx, "u", []InterestDelta{
		{Type: model.InterestCategory, Value: "shoes", Score: 0.5},
		{Type: model.InterestHashtag, Value: "summer", Score: 0.25},
	}, old))
	require.NoError(t, repo.Increment(ctx, "u", []InterestDelta{
		{Type: model.InterestCategory, Value: "shoes", Score: 0.5},
	}, old))
	require.NoError(t, repo.Increment(ctx, "other", []InterestDelta{
		{Type: model.InterestCategory, Value: "shoes", Score: 1},
	}, now))

	ui, err := repo.Get(ctx, "u", model.InterestCategory, "shoes")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, ui.Score, 1e-9)
	assert.EqualValues(t, 2, ui.InteractionCount)

	top, err := repo.Top(ctx, "u", 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "shoes", top[0].InterestValue)

	decayed, pruned, err := repo.Decay(ctx, now.Add(-7*24*time.Hour), 0.9, 0.01)
	require.NoError(t, err)
	assert.EqualValues(t, 2, decayed)
	assert.Zero(t, pruned)

	ui, err = repo.Get(ctx, "u", model.InterestCategory, "shoes")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, ui.Score, 1e-9)

	// 近期交互的行不衰减
	ui, err = repo.Get(ctx, "other", model.InterestCategory, "shoes")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, ui.Score, 1e-9)

	for i := 0; i < 60; i++ {
		_, _, err = repo.Decay(ctx, now.Add(-7*24*time.Hour), 0.9, 0.01)
		require.NoError(t, err)
	}
	_, err = repo.Get(ctx, "u", model.InterestCategory, "shoes")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInterestRepository_AppendInteraction(t *testing.T) {
	repo := NewInterestRepository(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.AppendInteraction(ctx, &model.Interaction{
		UserID: "u", ContentType: "post", ContentID: "p1", InteractionType: "like", Weight: 0.5,
	}))
	list, err := repo.ListInteractions(ctx, "u", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotEmpty(t, list[0].ID)
}

func trendingRow(id string, start time.Time, rank int, score float64) model.TrendingContent {
	return model.TrendingContent{
		ID: uuid.New().String(), ContentType: "post", ContentID: id,
		WindowType: model.WindowHourly, WindowStart: start, WindowEnd: start.Add(time.Hour),
		Score: score, Rank: rank,
	}
}

func TestTrendingRepository_ReplaceAndListLatest(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTrendingRepository(db)
	ctx := context.Background()
	w1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	w2 := w1.Add(time.Hour)

	empty, err := repo.ListLatest(ctx, model.WindowHourly, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, repo.ReplaceWindow(ctx, model.WindowHourly, w1, []model.TrendingContent{
		trendingRow("p1", w1, 1, 10), trendingRow("p2", w1, 2, 5),
	}))
	require.NoError(t, repo.ReplaceWindow(ctx, model.WindowHourly, w2, []model.TrendingContent{
		trendingRow("p3", w2, 1, 7),
	}))
	// 同一窗口重算整体覆盖
	require.NoError(t, repo.ReplaceWindow(ctx, model.WindowHourly, w2, []model.TrendingContent{
		trendingRow("p4", w2, 1, 9), trendingRow("p3", w2, 2, 7),
	}))

	latest, err := repo.ListLatest(ctx, model.WindowHourly, 10)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "p4", latest[0].ContentID)
	assert.Equal(t, "p3", latest[1].ContentID)

	daily, err := repo.ListLatest(ctx, model.WindowDaily, 10)
	require.NoError(t, err)
	assert.Empty(t, daily)

	contents, _, err := repo.Cleanup(ctx, w2.Add(30*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, contents)
}

func TestTrendingRepository_Hashtags(t *testing.T) {
	repo := NewTrendingRepository(setupTestDB(t))
	ctx := context.Background()
	d1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)

	row := func(tag string, date time.Time, rank int) model.TrendingHashtag {
		return model.TrendingHashtag{ID: uuid.New().String(), Hashtag: tag, WindowType: model.WindowDaily, WindowDate: date, Rank: rank}
	}
	require.NoError(t, repo.ReplaceHashtags(ctx, d1, []model.TrendingHashtag{row("old", d1, 1)}))
	require.NoError(t, repo.ReplaceHashtags(ctx, d2, []model.TrendingHashtag{row("b", d2, 2), row("a", d2, 1)}))

	tags, err := repo.ListLatestHashtags(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "a", tags[0].Hashtag)

	_, hashtags, err := repo.Cleanup(ctx, d2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, hashtags)
}
