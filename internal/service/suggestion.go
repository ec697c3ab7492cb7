package service

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/d60-Lab/feed-engine/internal/content"
	"github.com/d60-Lab/feed-engine/internal/model"
)

// 兴趣匹配加成
const (
	categoryMatchWeight = 50
	hashtagMatchWeight  = 30
	sellerMatchWeight   = 40
)

// SuggestionScore 推荐分：互动对数项 + 新鲜度（上限 100）+ 命中兴趣加成
func SuggestionScore(p *content.Post, interests []*model.UserInterest, now time.Time) float64 {
	score := math.Log10(float64(p.LikeCount)+1)*10 +
		math.Log10(float64(p.CommentCount)+1)*15 +
		math.Log10(float64(p.SaveCount)+1)*20

	ageHours := now.Sub(p.PublishedAt).Hours()
	score += math.Max(0, 100-ageHours)

	tags := make(map[string]struct{}, len(p.Hashtags))
	for _, t := range p.Hashtags {
		tags[t] = struct{}{}
	}
	sellers := make(map[string]struct{})
	for _, id := range p.Sellers() {
		sellers[id] = struct{}{}
	}
	for _, in := range interests {
		switch in.InterestType {
		case model.InterestCategory:
			if p.CategoryID != "" && p.CategoryID == in.InterestValue {
				score += in.Score * categoryMatchWeight
			}
		case model.InterestHashtag:
			if _, ok := tags[in.InterestValue]; ok {
				score += in.Score * hashtagMatchWeight
			}
		case model.InterestSeller:
			if _, ok := sellers[in.InterestValue]; ok {
				score += in.Score * sellerMatchWeight
			}
		}
	}
	return score
}

// suggestionCandidates 按兴趣检索内容并打分。没有兴趣时返回空，
// 冷启动由 blend 把推荐配额并入热榜桶
func (s *feedService) suggestionCandidates(ctx context.Context, userID string, interests []*model.UserInterest, hidden []string, limit, offset int) ([]candidate, error) {
	if len(interests) == 0 {
		return nil, nil
	}

	q := content.SearchQuery{
		ExcludeAuthorIDs: append([]string{userID}, hidden...),
		Limit:            offset + limit,
	}
	for _, in := range interests {
		switch in.InterestType {
		case model.InterestCategory:
			q.Categories = append(q.Categories, in.InterestValue)
		case model.InterestHashtag:
			q.Hashtags = append(q.Hashtags, in.InterestValue)
		case model.InterestSeller:
			q.SellerIDs = append(q.SellerIDs, in.InterestValue)
		}
	}
	posts, err := s.source.SearchPosts(ctx, q)
	if err != nil {
		return nil, upstream("search posts", err)
	}

	now := s.now()
	type scored struct {
		post  *content.Post
		score float64
	}
	list := make([]scored, 0, len(posts))
	for _, p := range posts {
		if p.UserID == userID {
			continue
		}
		list = append(list, scored{post: p, score: SuggestionScore(p, interests, now)})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].score > list[j].score })

	if offset >= len(list) {
		return nil, nil
	}
	list = list[offset:]
	if len(list) > limit {
		list = list[:limit]
	}
	out := make([]candidate, len(list))
	for i, sc := range list {
		score := sc.score
		at := sc.post.PublishedAt
		out[i] = candidate{
			postID:    sc.post.ID,
			authorID:  sc.post.UserID,
			createdAt: &at,
			score:     &score,
			reason:    model.ReasonSuggested,
			post:      sc.post,
		}
	}
	return out, nil
}
