// Package content is the engine's view of the external content service: the post
// fields the engine reads, engagement aggregates for trending, and hashtag counts.
package content

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable wraps every transport-level or 5xx failure of the content service.
	ErrUnavailable = errors.New("content service unavailable")
	// ErrPostNotFound is returned by GetPost when the post does not exist.
	ErrPostNotFound = errors.New("post not found")
)

// ProductTag links a post to a seller's product.
type ProductTag struct {
	SellerID string `json:"sellerId"`
}

// Post carries only the fields the engine interprets.
type Post struct {
	ID           string       `json:"id"`
	UserID       string       `json:"userId"`
	CategoryID   string       `json:"categoryId,omitempty"`
	SellerID     string       `json:"sellerId,omitempty"`
	Hashtags     []string     `json:"hashtags,omitempty"`
	ProductTags  []ProductTag `json:"productTags,omitempty"`
	LikeCount    int64        `json:"likeCount"`
	CommentCount int64        `json:"commentCount"`
	SaveCount    int64        `json:"saveCount"`
	ShareCount   int64        `json:"shareCount"`
	ViewCount    int64        `json:"viewCount"`
	PublishedAt  time.Time    `json:"publishedAt"`
}

// Sellers returns the distinct sellers referenced by the post, the post's own
// seller first and then product tags in order.
func (p *Post) Sellers() []string {
	seen := make(map[string]struct{}, len(p.ProductTags)+1)
	out := make([]string, 0, len(p.ProductTags)+1)
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	add(p.SellerID)
	for _, t := range p.ProductTags {
		add(t.SellerID)
	}
	return out
}

// EngagementRecord is the aggregate of one content item's engagement inside a window.
type EngagementRecord struct {
	ContentType string    `json:"contentType"`
	ContentID   string    `json:"contentId"`
	Views       int64     `json:"views"`
	Likes       int64     `json:"likes"`
	Comments    int64     `json:"comments"`
	Shares      int64     `json:"shares"`
	Saves       int64     `json:"saves"`
	PublishedAt time.Time `json:"publishedAt"`
}

// HashtagStat holds total and recent post counts for a hashtag.
type HashtagStat struct {
	Tag             string `json:"tag"`
	PostCount       int64  `json:"postCount"`
	RecentPostCount int64  `json:"recentPostCount"`
}

// SearchQuery selects posts matching any of the listed categories, hashtags or sellers.
type SearchQuery struct {
	Categories       []string `json:"categories,omitempty"`
	Hashtags         []string `json:"hashtags,omitempty"`
	SellerIDs        []string `json:"sellerIds,omitempty"`
	ExcludeAuthorIDs []string `json:"excludeAuthorIds,omitempty"`
	Limit            int      `json:"limit"`
}

// Source is the content collaborator consumed by the engine.
type Source interface {
	GetPost(ctx context.Context, id string) (*Post, error)
	// GetPosts tolerates partial results: unknown ids are simply absent.
	GetPosts(ctx context.Context, ids []string) ([]*Post, error)
	SearchPosts(ctx context.Context, q SearchQuery) ([]*Post, error)
	GetEngagementStats(ctx context.Context, start, end time.Time) ([]EngagementRecord, error)
	GetHashtagStats(ctx context.Context) ([]HashtagStat, error)
}
