package service

import (
	"context"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/d60-Lab/feed-engine/config"
	"github.com/d60-Lab/feed-engine/internal/content"
	"github.com/d60-Lab/feed-engine/internal/model"
	"github.com/d60-Lab/feed-engine/internal/repository"
	"github.com/d60-Lab/feed-engine/pkg/logger"
	"github.com/d60-Lab/feed-engine/pkg/metrics"
)

const defaultPageSize = 20

// 混排候选来源
const (
	SourceFollowing = "following"
	SourceSuggested = "suggested"
	SourceTrending  = "trending"
	SourceContent   = "content"
)

var tracer = otel.Tracer("github.com/d60-Lab/feed-engine/internal/service")

// FeedItem 时间线中的一条内容
type FeedItem struct {
	PostID         string        `json:"postId"`
	AuthorID       string        `json:"authorId,omitempty"`
	PostCreatedAt  *time.Time    `json:"postCreatedAt,omitempty"`
	Reasons        []string      `json:"reasons"`
	RelevanceScore *float64      `json:"relevanceScore,omitempty"`
	Post           *content.Post `json:"post,omitempty"`
}

// FeedPage 一页时间线；Degraded 列出本次被空结果替代的来源
type FeedPage struct {
	FeedType model.FeedType `json:"feedType"`
	Items    []FeedItem     `json:"items"`
	Limit    int            `json:"limit"`
	Offset   int            `json:"offset"`
	Degraded []string       `json:"degraded,omitempty"`
}

type FeedService interface {
	GetFollowingFeed(ctx context.Context, userID string, limit, offset int) (*FeedPage, error)
	GetForYouFeed(ctx context.Context, userID string, limit, offset int) (*FeedPage, error)
	GetExploreFeed(ctx context.Context, userID string, limit, offset int) (*FeedPage, error)
	// RefreshFeed 清理该用户已过期的时间线项，返回删除条数
	RefreshFeed(ctx context.Context, userID string) (int64, error)
}

type feedService struct {
	feeds     repository.FeedRepository
	relations RelationService
	interests *InterestService
	trending  *TrendingService
	fanout    *FanoutService
	source    content.Source
	cfg       config.FeedConfig
	now       func() time.Time
}

func NewFeedService(
	feeds repository.FeedRepository,
	relations RelationService,
	interests *InterestService,
	trending *TrendingService,
	fanout *FanoutService,
	source content.Source,
	cfg config.FeedConfig,
) FeedService {
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	if cfg.ForYouFollowingRatio+cfg.ForYouSuggestedRatio+cfg.ForYouTrendingRatio <= 0 {
		cfg.ForYouFollowingRatio, cfg.ForYouSuggestedRatio, cfg.ForYouTrendingRatio = 0.6, 0.3, 0.1
	}
	if cfg.ExploreTrendingRatio+cfg.ExploreSuggestRatio <= 0 {
		cfg.ExploreTrendingRatio, cfg.ExploreSuggestRatio = 0.6, 0.4
	}
	return &feedService{
		feeds:     feeds,
		relations: relations,
		interests: interests,
		trending:  trending,
		fanout:    fanout,
		source:    source,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *feedService) page(userID string, limit, offset int) (int, error) {
	if userID == "" {
		return 0, invalid("user id is required")
	}
	if limit < 0 || offset < 0 {
		return 0, invalid("limit and offset must not be negative")
	}
	if limit == 0 {
		limit = defaultPageSize
	}
	if limit > s.cfg.MaxPageSize {
		return 0, invalid("limit must not exceed %d", s.cfg.MaxPageSize)
	}
	return limit, nil
}

func (s *feedService) GetFollowingFeed(ctx context.Context, userID string, limit, offset int) (*FeedPage, error) {
	limit, err := s.page(userID, limit, offset)
	if err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, model.FeedFollowing, userID, limit, offset)
	defer span.End()
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.FeedAssemblyDuration, string(model.FeedFollowing))
	metrics.FeedRequestsTotal.WithLabelValues(string(model.FeedFollowing)).Inc()

	hidden, err := s.relations.HiddenAuthorIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	cands, err := s.followingCandidates(ctx, userID, hidden, limit, offset)
	if err != nil {
		return nil, err
	}

	out := &FeedPage{FeedType: model.FeedFollowing, Limit: limit, Offset: offset}
	cands, degraded := s.hydrate(ctx, cands)
	if degraded {
		out.Degraded = append(out.Degraded, SourceContent)
	}
	out.Items = toItems(cands)
	return out, nil
}

func (s *feedService) GetForYouFeed(ctx context.Context, userID string, limit, offset int) (*FeedPage, error) {
	limit, err := s.page(userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return s.blend(ctx, model.FeedForYou, userID, limit, offset, []bucket{
		{source: SourceFollowing, ratio: s.cfg.ForYouFollowingRatio},
		{source: SourceSuggested, ratio: s.cfg.ForYouSuggestedRatio},
		{source: SourceTrending, ratio: s.cfg.ForYouTrendingRatio},
	})
}

func (s *feedService) GetExploreFeed(ctx context.Context, userID string, limit, offset int) (*FeedPage, error) {
	limit, err := s.page(userID, limit, offset)
	if err != nil {
		return nil, err
	}
	// 去重优先级 suggested > trending，与 for-you 保持一致
	return s.blend(ctx, model.FeedExplore, userID, limit, offset, []bucket{
		{source: SourceSuggested, ratio: s.cfg.ExploreSuggestRatio},
		{source: SourceTrending, ratio: s.cfg.ExploreTrendingRatio},
	})
}

func (s *feedService) RefreshFeed(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, invalid("user id is required")
	}
	n, err := s.fanout.SweepUserExpired(ctx, userID)
	if err != nil {
		return 0, err
	}
	logger.Debug("feed refreshed", zap.String("user", userID), zap.Int64("expired_removed", n))
	return n, nil
}

// bucket 混排中的一个候选来源及其配额比例；切片顺序即去重优先级。
// merged 是并入本桶的其他桶的比例，各自按 floor 计算后累加
type bucket struct {
	source string
	ratio  float64
	merged []float64
}

func hasSource(buckets []bucket, source string) bool {
	for _, b := range buckets {
		if b.source == source {
			return true
		}
	}
	return false
}

// foldInto 去掉 from 桶，把它的配额并入 into 桶；返回新切片，不改动入参
func foldInto(buckets []bucket, from, into string) []bucket {
	var ratios []float64
	for _, b := range buckets {
		if b.source == from {
			ratios = append(append(ratios, b.ratio), b.merged...)
		}
	}
	out := make([]bucket, 0, len(buckets))
	for _, b := range buckets {
		switch b.source {
		case from:
			continue
		case into:
			b.merged = append(append([]float64(nil), b.merged...), ratios...)
		}
		out = append(out, b)
	}
	return out
}

// share 配额 floor(n*ratio)，加极小量避免 0.3*10 之类的浮点误差
func share(n int, ratio float64) int {
	return int(math.Floor(float64(n)*ratio + 1e-9))
}

// candidate 合并前的候选项
type candidate struct {
	postID    string
	authorID  string
	createdAt *time.Time
	score     *float64
	reason    string
	post      *content.Post
}

func (s *feedService) blend(ctx context.Context, feedType model.FeedType, userID string, limit, offset int, buckets []bucket) (*FeedPage, error) {
	ctx, span := s.startSpan(ctx, feedType, userID, limit, offset)
	defer span.End()
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.FeedAssemblyDuration, string(feedType))
	metrics.FeedRequestsTotal.WithLabelValues(string(feedType)).Inc()

	hidden, err := s.relations.HiddenAuthorIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	// 冷启动（没有兴趣记录）时推荐配额并入热榜桶，两者共用同一个游标
	var interests []*model.UserInterest
	var interestErr error
	if hasSource(buckets, SourceSuggested) {
		interests, interestErr = s.interests.GetUserInterests(ctx, userID, 0)
		if interestErr == nil && len(interests) == 0 && hasSource(buckets, SourceTrending) {
			buckets = foldInto(buckets, SourceSuggested, SourceTrending)
		}
	}

	type plan struct{ n, off int }
	plans := make([]plan, len(buckets))
	for i, b := range buckets {
		plans[i] = plan{n: share(limit, b.ratio), off: share(offset, b.ratio)}
		for _, m := range b.merged {
			plans[i].n += share(limit, m)
			plans[i].off += share(offset, m)
		}
	}

	results := make([][]candidate, len(buckets))
	failed := make([]error, len(buckets))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range buckets {
		i, b := i, b
		n, off := plans[i].n, plans[i].off
		if n <= 0 {
			continue
		}
		if b.source == SourceSuggested && interestErr != nil {
			failed[i] = interestErr
			continue
		}
		g.Go(func() error {
			var err error
			switch b.source {
			case SourceFollowing:
				results[i], err = s.followingCandidates(gctx, userID, hidden, n, off)
			case SourceSuggested:
				results[i], err = s.suggestionCandidates(gctx, userID, interests, hidden, n, off)
			case SourceTrending:
				results[i], err = s.trendingCandidates(gctx, n, off)
			}
			// 软依赖失败以空结果替代，不让整个请求失败
			failed[i] = err
			return nil
		})
	}
	_ = g.Wait()

	out := &FeedPage{FeedType: feedType, Limit: limit, Offset: offset}
	for i, err := range failed {
		if err == nil {
			continue
		}
		results[i] = nil
		out.Degraded = append(out.Degraded, buckets[i].source)
		metrics.DegradedSourcesTotal.WithLabelValues(buckets[i].source).Inc()
		logger.Warn("feed source degraded",
			zap.String("feed", string(feedType)), zap.String("source", buckets[i].source),
			zap.String("user", userID), zap.Error(err))
	}

	merged := mergeCandidates(results...)
	merged, degraded := s.hydrate(ctx, merged)
	if degraded {
		out.Degraded = append(out.Degraded, SourceContent)
	}
	merged = filterHidden(merged, hidden)
	sortByRelevance(merged)
	out.Items = toItems(merged)
	span.SetAttributes(attribute.Int("feed.items", len(out.Items)), attribute.StringSlice("feed.degraded", out.Degraded))
	return out, nil
}

func (s *feedService) followingCandidates(ctx context.Context, userID string, hidden []string, limit, offset int) ([]candidate, error) {
	entries, err := s.feeds.ListLive(ctx, repository.FeedQuery{
		UserID:         userID,
		FeedType:       model.FeedFollowing,
		ExcludeAuthors: hidden,
		Now:            s.now(),
		Offset:         offset,
		Limit:          limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]candidate, 0, len(entries))
	for _, e := range entries {
		created := e.PostCreatedAt
		reason := model.ReasonFollowing
		if len(e.Reasons) > 0 {
			reason = e.Reasons[0]
		}
		out = append(out, candidate{
			postID:    e.PostID,
			authorID:  e.AuthorID,
			createdAt: &created,
			score:     e.RelevanceScore,
			reason:    reason,
		})
	}
	return out, nil
}

func (s *feedService) trendingCandidates(ctx context.Context, limit, offset int) ([]candidate, error) {
	items, err := s.trending.Candidates(ctx, model.WindowDaily, offset, limit)
	if err != nil {
		return nil, err
	}
	out := make([]candidate, 0, len(items))
	for _, it := range items {
		score := it.Score
		out = append(out, candidate{postID: it.ContentID, score: &score, reason: model.ReasonTrending})
	}
	return out, nil
}

// mergeCandidates 按来源顺序合并，同一内容以先出现者为准
func mergeCandidates(lists ...[]candidate) []candidate {
	seen := make(map[string]struct{})
	var out []candidate
	for _, l := range lists {
		for _, c := range l {
			if _, dup := seen[c.postID]; dup {
				continue
			}
			seen[c.postID] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// hydrate 一次批量拉取内容详情。拉取失败时丢弃作者未知的候选（无法做隐藏过滤），
// 其余原样返回；degraded 表示内容服务不可用。
func (s *feedService) hydrate(ctx context.Context, cands []candidate) ([]candidate, bool) {
	if len(cands) == 0 {
		return cands, false
	}
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.postID
	}
	posts, err := s.source.GetPosts(ctx, ids)
	if err != nil {
		metrics.DegradedSourcesTotal.WithLabelValues(SourceContent).Inc()
		logger.Warn("hydrate feed items failed", zap.Int("items", len(ids)), zap.Error(err))
		out := cands[:0]
		for _, c := range cands {
			if c.authorID != "" {
				out = append(out, c)
			}
		}
		return out, true
	}

	byID := make(map[string]*content.Post, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
	}
	out := cands[:0]
	for _, c := range cands {
		if p, ok := byID[c.postID]; ok {
			c.post = p
			if c.authorID == "" {
				c.authorID = p.UserID
			}
			if c.createdAt == nil && !p.PublishedAt.IsZero() {
				at := p.PublishedAt
				c.createdAt = &at
			}
		}
		if c.authorID == "" {
			continue
		}
		out = append(out, c)
	}
	return out, false
}

func filterHidden(cands []candidate, hidden []string) []candidate {
	if len(hidden) == 0 {
		return cands
	}
	set := make(map[string]struct{}, len(hidden))
	for _, id := range hidden {
		set[id] = struct{}{}
	}
	out := cands[:0]
	for _, c := range cands {
		if _, ok := set[c.authorID]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

// sortByRelevance 按相关度降序，缺失按 0 计；同分保持合并顺序
func sortByRelevance(cands []candidate) {
	val := func(c candidate) float64 {
		if c.score == nil {
			return 0
		}
		return *c.score
	}
	sort.SliceStable(cands, func(i, j int) bool { return val(cands[i]) > val(cands[j]) })
}

func toItems(cands []candidate) []FeedItem {
	items := make([]FeedItem, len(cands))
	for i, c := range cands {
		items[i] = FeedItem{
			PostID:         c.postID,
			AuthorID:       c.authorID,
			PostCreatedAt:  c.createdAt,
			Reasons:        []string{c.reason},
			RelevanceScore: c.score,
			Post:           c.post,
		}
	}
	return items
}

func (s *feedService) startSpan(ctx context.Context, feedType model.FeedType, userID string, limit, offset int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "feed."+string(feedType),
		trace.WithAttributes(
			attribute.String("feed.user_id", userID),
			attribute.Int("feed.limit", limit),
			attribute.Int("feed.offset", offset),
		))
}
