package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/feed-engine/internal/model"
)

// Cache 封装热榜、隐藏作者集合与粉丝 id 索引的 redis 缓存。
// client 为空时所有读都是 miss、所有写都是 no-op，调用方直接回源数据库。
type Cache struct {
	client      *redis.Client
	trendingTTL time.Duration
	hiddenTTL   time.Duration
	followerTTL time.Duration
}

// New builds a cache over the given client. A nil client disables caching.
func New(client *redis.Client, trendingTTL, hiddenTTL time.Duration) *Cache {
	return &Cache{
		client:      client,
		trendingTTL: trendingTTL,
		hiddenTTL:   hiddenTTL,
		followerTTL: hiddenTTL,
	}
}

// Enabled reports whether a redis client is attached.
func (c *Cache) Enabled() bool { return c != nil && c.client != nil }

// RankedItem 热榜缓存项
type RankedItem struct {
	ContentID string
	Rank      int
	Score     float64
}

func trendingKey(wt model.WindowType) string      { return fmt.Sprintf("trending:%s:rank", wt) }
func trendingScoreKey(wt model.WindowType) string { return fmt.Sprintf("trending:%s:score", wt) }
func hiddenKey(userID string) string              { return fmt.Sprintf("hidden:%s", userID) }
func hiddenVersionKey(userID string) string       { return fmt.Sprintf("hidden:%s:ver", userID) }
func followerIndexKey(userID string) string       { return fmt.Sprintf("followers:index:%s", userID) }

// StoreTrending 覆盖写入某窗口类型的最新排名（zset 以 rank 为分值保证顺序稳定）
func (c *Cache) StoreTrending(ctx context.Context, wt model.WindowType, items []RankedItem) error {
	if !c.Enabled() {
		return nil
	}
	rk, sk := trendingKey(wt), trendingScoreKey(wt)
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, rk, sk)
	if len(items) > 0 {
		members := make([]redis.Z, len(items))
		scores := make(map[string]interface{}, len(items))
		for i, it := range items {
			members[i] = redis.Z{Score: float64(it.Rank), Member: it.ContentID}
			scores[it.ContentID] = it.Score
		}
		pipe.ZAdd(ctx, rk, members...)
		pipe.HSet(ctx, sk, scores)
		pipe.Expire(ctx, rk, c.trendingTTL)
		pipe.Expire(ctx, sk, c.trendingTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// TopTrending 读取前 limit 名；ok=false 表示缓存未命中
func (c *Cache) TopTrending(ctx context.Context, wt model.WindowType, limit int) ([]RankedItem, bool, error) {
	if !c.Enabled() || limit <= 0 {
		return nil, false, nil
	}
	zs, err := c.client.ZRangeWithScores(ctx, trendingKey(wt), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(zs) == 0 {
		return nil, false, nil
	}

	ids := make([]string, len(zs))
	for i, z := range zs {
		ids[i], _ = z.Member.(string)
	}
	vals, err := c.client.HMGet(ctx, trendingScoreKey(wt), ids...).Result()
	if err != nil {
		return nil, false, err
	}

	out := make([]RankedItem, len(zs))
	for i, z := range zs {
		out[i] = RankedItem{ContentID: ids[i], Rank: int(z.Score)}
		if s, ok := vals[i].(string); ok {
			out[i].Score, _ = strconv.ParseFloat(s, 64)
		}
	}
	return out, true, nil
}

// hiddenVersionTTL 版本号的存活时间，远长于集合本身的 TTL
const hiddenVersionTTL = 24 * time.Hour

// storeIfVersion 仅当版本号未变时写入集合。
// KEYS[1] 集合 KEYS[2] 版本号；ARGV[1] 读取时的版本 ARGV[2] 内容 ARGV[3] 毫秒 TTL
var storeIfVersion = redis.NewScript(`
local cur = redis.call('GET', KEYS[2])
if cur == false then cur = '' end
if cur ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// HiddenAuthors 读取用户的隐藏作者集合（拉黑双向 ∪ 未过期静音）。
// 同时返回当前版本号，未命中时回源后凭它调用 StoreHiddenAuthors
func (c *Cache) HiddenAuthors(ctx context.Context, userID string) (ids []string, version string, ok bool, err error) {
	if !c.Enabled() {
		return nil, "", false, nil
	}
	vals, err := c.client.MGet(ctx, hiddenKey(userID), hiddenVersionKey(userID)).Result()
	if err != nil {
		return nil, "", false, err
	}
	if v, isStr := vals[1].(string); isStr {
		version = v
	}
	data, isStr := vals[0].(string)
	if !isStr {
		return nil, version, false, nil
	}
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, version, false, nil
	}
	return ids, version, true, nil
}

// StoreHiddenAuthors 写入隐藏作者集合；ttl 取配置值与 maxTTL 的较小者（最早的静音到期时间）。
// version 是回源前读到的版本号，期间发生过 InvalidateHidden 则放弃写入，返回 false
func (c *Cache) StoreHiddenAuthors(ctx context.Context, userID, version string, ids []string, maxTTL time.Duration) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	ttl := c.hiddenTTL
	if maxTTL > 0 && maxTTL < ttl {
		ttl = maxTTL
	}
	if ttl <= 0 {
		return false, nil
	}
	if ids == nil {
		ids = []string{}
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		return false, err
	}
	n, err := storeIfVersion.Run(ctx, c.client,
		[]string{hiddenKey(userID), hiddenVersionKey(userID)},
		version, payload, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// InvalidateHidden 关系变化后清除双方的隐藏集合并递增版本号，
// 让正在回源的读放弃写回旧集合
func (c *Cache) InvalidateHidden(ctx context.Context, userIDs ...string) error {
	if !c.Enabled() || len(userIDs) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			pipe.Del(ctx, hiddenKey(id))
			pipe.Incr(ctx, hiddenVersionKey(id))
			pipe.Expire(ctx, hiddenVersionKey(id), hiddenVersionTTL)
		}
		return nil
	})
	return err
}

// FollowerIDs 读取粉丝 id 索引（list）
func (c *Cache) FollowerIDs(ctx context.Context, userID string) ([]string, bool, error) {
	if !c.Enabled() {
		return nil, false, nil
	}
	key := followerIndexKey(userID)
	pipe := c.client.Pipeline()
	exists := pipe.Exists(ctx, key)
	ids := pipe.LRange(ctx, key, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, err
	}
	if exists.Val() == 0 {
		return nil, false, nil
	}
	return ids.Val(), true, nil
}

// StoreFollowerIDs 整体覆盖粉丝 id 索引；空列表不缓存
func (c *Cache) StoreFollowerIDs(ctx context.Context, userID string, ids []string) error {
	if !c.Enabled() || len(ids) == 0 {
		return nil
	}
	key := followerIndexKey(userID)
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.RPush(ctx, key, interfaceSlice(ids)...)
	pipe.Expire(ctx, key, c.followerTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// InvalidateFollowers 关注/取关/拉黑后清除被关注方的粉丝索引
func (c *Cache) InvalidateFollowers(ctx context.Context, userIDs ...string) error {
	if !c.Enabled() || len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = followerIndexKey(id)
	}
	return c.client.Del(ctx, keys...).Err()
}

func interfaceSlice(strs []string) []interface{} {
	result := make([]interface{}, len(strs))
	for i, s := range strs {
		result[i] = s
	}
	return result
}
