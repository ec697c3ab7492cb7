package service

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/feed-engine/config"
	"github.com/d60-Lab/feed-engine/internal/cache"
	"github.com/d60-Lab/feed-engine/internal/content"
	"github.com/d60-Lab/feed-engine/internal/model"
	"github.com/d60-Lab/feed-engine/internal/repository"
	"github.com/d60-Lab/feed-engine/pkg/logger"
)

// TrendingScore 热度：互动量与速度加权，按天 5% 衰减
func TrendingScore(r content.EngagementRecord, now time.Time) float64 {
	engagement := float64(r.Views) +
		float64(r.Likes)*5 +
		float64(r.Comments)*10 +
		float64(r.Shares)*15 +
		float64(r.Saves)*8
	ageHours := now.Sub(r.PublishedAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	timeFactor := math.Pow(0.95, ageHours/24)
	velocity := engagement / math.Max(1, ageHours)
	return (engagement*0.4 + velocity*100*0.6) * timeFactor
}

// HashtagScore 话题热度
func HashtagScore(s content.HashtagStat) float64 {
	return float64(s.PostCount)*10 + float64(s.RecentPostCount)*50
}

// WindowBounds 计算窗口键：hourly/daily 对齐到小时，weekly/monthly 对齐到 UTC 日。
// 同一对齐单元内重复计算落在同一个 (windowType, windowStart) 上。
func WindowBounds(wt model.WindowType, now time.Time) (start, end time.Time) {
	now = now.UTC()
	switch wt {
	case model.WindowWeekly, model.WindowMonthly:
		end = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	default:
		end = now.Truncate(time.Hour)
	}
	return end.Add(-wt.Horizon()), end
}

// TrendingService 热榜计算与查询
type TrendingService struct {
	repo          repository.TrendingRepository
	source        content.Source
	cache         *cache.Cache
	topContent    int
	topHashtags   int
	retentionDays int
	now           func() time.Time
}

func NewTrendingService(repo repository.TrendingRepository, source content.Source, c *cache.Cache, cfg config.TrendingConfig) *TrendingService {
	s := &TrendingService{
		repo:          repo,
		source:        source,
		cache:         c,
		topContent:    cfg.TopContent,
		topHashtags:   cfg.TopHashtags,
		retentionDays: cfg.RetentionDays,
		now:           func() time.Time { return time.Now().UTC() },
	}
	if s.topContent <= 0 {
		s.topContent = 100
	}
	if s.topHashtags <= 0 {
		s.topHashtags = 50
	}
	if s.retentionDays <= 0 {
		s.retentionDays = 7
	}
	return s
}

type scoredRecord struct {
	rec   content.EngagementRecord
	score float64
}

// ComputeTrending 全量重算某窗口类型的热榜；没有互动数据时不改动已有结果。返回写入条数
func (s *TrendingService) ComputeTrending(ctx context.Context, wt model.WindowType) (int, error) {
	if !wt.Valid() {
		return 0, invalid("unknown window type %q", wt)
	}
	now := s.now()
	records, err := s.source.GetEngagementStats(ctx, now.Add(-wt.Horizon()), now)
	if err != nil {
		return 0, upstream("get engagement stats", err)
	}
	if len(records) == 0 {
		logger.Info("no engagement data, trending unchanged", zap.String("window", string(wt)))
		return 0, nil
	}

	seen := make(map[string]struct{}, len(records))
	scored := make([]scoredRecord, 0, len(records))
	for _, r := range records {
		if r.ContentType == "" {
			r.ContentType = ContentPost
		}
		key := r.ContentType + "\x00" + r.ContentID
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		scored = append(scored, scoredRecord{rec: r, score: TrendingScore(r, now)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > s.topContent {
		scored = scored[:s.topContent]
	}

	start, end := WindowBounds(wt, now)
	rows := make([]model.TrendingContent, len(scored))
	items := make([]cache.RankedItem, 0, len(scored))
	for i, sr := range scored {
		rows[i] = model.TrendingContent{
			ID:           uuid.New().String(),
			ContentType:  sr.rec.ContentType,
			ContentID:    sr.rec.ContentID,
			WindowType:   wt,
			WindowStart:  start,
			WindowEnd:    end,
			Score:        sr.score,
			Rank:         i + 1,
			ViewCount:    sr.rec.Views,
			LikeCount:    sr.rec.Likes,
			CommentCount: sr.rec.Comments,
			ShareCount:   sr.rec.Shares,
			SaveCount:    sr.rec.Saves,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if sr.rec.ContentType == ContentPost {
			items = append(items, cache.RankedItem{ContentID: sr.rec.ContentID, Rank: i + 1, Score: sr.score})
		}
	}
	if err := s.repo.ReplaceWindow(ctx, wt, start, rows); err != nil {
		return 0, err
	}
	if err := s.cache.StoreTrending(ctx, wt, items); err != nil {
		logger.Warn("trending cache write failed", zap.String("window", string(wt)), zap.Error(err))
	}
	logger.Info("trending computed", zap.String("window", string(wt)), zap.Time("window_start", start), zap.Int("items", len(rows)))
	return len(rows), nil
}

// ComputeTrendingHashtags 话题日榜，键为当前 UTC 日
func (s *TrendingService) ComputeTrendingHashtags(ctx context.Context) (int, error) {
	stats, err := s.source.GetHashtagStats(ctx)
	if err != nil {
		return 0, upstream("get hashtag stats", err)
	}
	if len(stats) == 0 {
		return 0, nil
	}
	// 先去重（同名保留分数最高的一条）并丢弃空标签，再截取前 K
	sort.SliceStable(stats, func(i, j int) bool { return HashtagScore(stats[i]) > HashtagScore(stats[j]) })
	seen := make(map[string]struct{}, len(stats))
	distinct := stats[:0:0]
	for _, st := range stats {
		if _, dup := seen[st.Tag]; dup || st.Tag == "" {
			continue
		}
		seen[st.Tag] = struct{}{}
		distinct = append(distinct, st)
	}
	if len(distinct) > s.topHashtags {
		distinct = distinct[:s.topHashtags]
	}

	now := s.now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	rows := make([]model.TrendingHashtag, len(distinct))
	for i, st := range distinct {
		rows[i] = model.TrendingHashtag{
			ID:              uuid.New().String(),
			Hashtag:         st.Tag,
			WindowType:      model.WindowDaily,
			WindowDate:      day,
			Score:           HashtagScore(st),
			PostCount:       st.PostCount,
			RecentPostCount: st.RecentPostCount,
			Rank:            i + 1,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
	}
	if err := s.repo.ReplaceHashtags(ctx, day, rows); err != nil {
		return 0, err
	}
	logger.Info("trending hashtags computed", zap.Time("window_date", day), zap.Int("items", len(rows)))
	return len(rows), nil
}

// CleanupOldTrending 删除超过保留期的热榜行；retentionDays<=0 使用配置值
func (s *TrendingService) CleanupOldTrending(ctx context.Context, retentionDays int) (contents, hashtags int64, err error) {
	if retentionDays <= 0 {
		retentionDays = s.retentionDays
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	contents, hashtags, err = s.repo.Cleanup(ctx, cutoff)
	if err != nil {
		return 0, 0, err
	}
	logger.Info("trending cleaned", zap.Time("cutoff", cutoff), zap.Int64("contents", contents), zap.Int64("hashtags", hashtags))
	return contents, hashtags, nil
}

func (s *TrendingService) GetTrendingPosts(ctx context.Context, wt model.WindowType, limit int) ([]*model.TrendingContent, error) {
	if !wt.Valid() {
		return nil, invalid("unknown window type %q", wt)
	}
	if limit <= 0 || limit > s.topContent {
		limit = s.topContent
	}
	return s.repo.ListLatest(ctx, wt, limit)
}

func (s *TrendingService) GetTrendingHashtags(ctx context.Context, limit int) ([]*model.TrendingHashtag, error) {
	if limit <= 0 || limit > s.topHashtags {
		limit = s.topHashtags
	}
	return s.repo.ListLatestHashtags(ctx, limit)
}

// Candidates 供时间线混排使用的热榜片段，优先读 redis，未命中回源数据库
func (s *TrendingService) Candidates(ctx context.Context, wt model.WindowType, offset, limit int) ([]cache.RankedItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	want := offset + limit
	items, ok, err := s.cache.TopTrending(ctx, wt, want)
	if err != nil {
		logger.Warn("trending cache read failed", zap.String("window", string(wt)), zap.Error(err))
	}
	if !ok {
		// 非 post 行也占名次，先取整个窗口再过滤
		rows, err := s.repo.ListLatest(ctx, wt, s.topContent)
		if err != nil {
			return nil, err
		}
		items = make([]cache.RankedItem, 0, len(rows))
		for _, r := range rows {
			if r.ContentType != ContentPost {
				continue
			}
			items = append(items, cache.RankedItem{ContentID: r.ContentID, Rank: r.Rank, Score: r.Score})
		}
	}
	if offset >= len(items) {
		return nil, nil
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
