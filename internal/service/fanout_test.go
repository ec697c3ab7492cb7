package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/feed-engine/internal/model"
)

func TestFanOut_IdempotentUnderDuplicateDelivery(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts []envOption
	}{
		{name: "db only"},
		{name: "with follower index cache", opts: []envOption{withRedis()}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEnv(t, tc.opts...)
			ctx := context.Background()
			for _, u := range []string{"f1", "f2", "f3"} {
				require.NoError(t, e.relations.Follow(ctx, u, "author"))
			}

			at := t0.Add(-time.Minute)
			n, err := e.fanout.FanOutToFollowers(ctx, "author", "post-1", at)
			require.NoError(t, err)
			assert.Equal(t, 3, n)
			n, err = e.fanout.FanOutToFollowers(ctx, "author", "post-1", at)
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			var entries []model.FeedEntry
			require.NoError(t, e.db.Where("post_id = ?", "post-1").Find(&entries).Error)
			require.Len(t, entries, 3)
			for _, en := range entries {
				assert.Equal(t, model.FeedFollowing, en.FeedType)
				assert.Equal(t, []string{model.ReasonFollowing}, []string(en.Reasons))
				assert.True(t, en.ExpiresAt.Equal(t0.Add(30*24*time.Hour)))
			}
		})
	}
}

func TestFanOut_ZeroFollowers(t *testing.T) {
	e := newTestEnv(t)
	n, err := e.fanout.FanOutToFollowers(context.Background(), "lonely", "p", t0)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = e.fanout.FanOutToFollowers(context.Background(), "", "p", t0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFanOut_FollowerIndexInvalidatedOnFollow(t *testing.T) {
	e := newTestEnv(t, withRedis())
	ctx := context.Background()

	require.NoError(t, e.relations.Follow(ctx, "f1", "author"))
	n, err := e.fanout.FanOutToFollowers(ctx, "author", "p1", t0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, e.relations.Follow(ctx, "f2", "author"))
	n, err = e.fanout.FanOutToFollowers(ctx, "author", "p2", t0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, e.relations.Unfollow(ctx, "f1", "author"))
	n, err = e.fanout.FanOutToFollowers(ctx, "author", "p3", t0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFanOut_Removals(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, e.relations.Follow(ctx, "f1", "author"))
	require.NoError(t, e.relations.Follow(ctx, "f2", "author"))
	_, err := e.fanout.FanOutToFollowers(ctx, "author", "p1", t0)
	require.NoError(t, err)
	_, err = e.fanout.FanOutToFollowers(ctx, "author", "p2", t0)
	require.NoError(t, err)

	n, err := e.fanout.RemoveFromUserFeed(ctx, "f1", "p1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = e.fanout.RemoveFromAllFeeds(ctx, "p2")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// 不存在的行也可以安全删除
	n, err = e.fanout.RemoveFromAllFeeds(ctx, "p2")
	require.NoError(t, err)
	assert.Zero(t, n)
}
