package content

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostSellers(t *testing.T) {
	p := &Post{SellerID: "s1", ProductTags: []ProductTag{{SellerID: "s2"}, {SellerID: "s1"}, {SellerID: ""}}}
	assert.Equal(t, []string{"s1", "s2"}, p.Sellers())
}

func TestMemorySourceSearch(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemorySource()
	m.Put(
		&Post{ID: "p1", UserID: "a", CategoryID: "shoes", PublishedAt: now.Add(-2 * time.Hour)},
		&Post{ID: "p2", UserID: "b", Hashtags: []string{"summer"}, PublishedAt: now.Add(-time.Hour)},
		&Post{ID: "p3", UserID: "me", CategoryID: "shoes", PublishedAt: now},
		&Post{ID: "p4", UserID: "c", ProductTags: []ProductTag{{SellerID: "s9"}}, PublishedAt: now.Add(-3 * time.Hour)},
		&Post{ID: "p5", UserID: "d", CategoryID: "bags", PublishedAt: now},
	)

	got, err := m.SearchPosts(ctx, SearchQuery{
		Categories:       []string{"shoes"},
		Hashtags:         []string{"summer"},
		SellerIDs:        []string{"s9"},
		ExcludeAuthorIDs: []string{"me"},
		Limit:            10,
	})
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, p := range got {
		ids[i] = p.ID
	}
	assert.Equal(t, []string{"p2", "p1", "p4"}, ids)

	got, err = m.SearchPosts(ctx, SearchQuery{Categories: []string{"shoes"}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p3", got[0].ID)
}

func TestMemorySourcePartialBatchAndOutage(t *testing.T) {
	ctx := context.Background()
	m := NewMemorySource()
	m.Put(&Post{ID: "p1"}, &Post{ID: "p2"})

	posts, err := m.GetPosts(ctx, []string{"p1", "missing", "p2"})
	require.NoError(t, err)
	assert.Len(t, posts, 2)

	_, err = m.GetPost(ctx, "missing")
	assert.ErrorIs(t, err, ErrPostNotFound)

	m.SetError(ErrUnavailable)
	_, err = m.GetPosts(ctx, []string{"p1"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/internal/posts/p1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Post{ID: "p1", UserID: "u1", Hashtags: []string{"go"}})
	})
	mux.HandleFunc("/internal/posts/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/internal/posts/batch", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs []string `json:"ids"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		posts := make([]Post, 0, len(req.IDs))
		for _, id := range req.IDs {
			posts = append(posts, Post{ID: id})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"posts": posts})
	})
	mux.HandleFunc("/internal/hashtags/stats", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/internal/engagement", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("start"))
		_ = json.NewEncoder(w).Encode(map[string]any{"records": []EngagementRecord{{ContentType: "post", ContentID: "p1", Likes: 3}}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", time.Second)
	ctx := context.Background()

	p, err := c.GetPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)

	_, err = c.GetPost(ctx, "missing")
	assert.ErrorIs(t, err, ErrPostNotFound)

	posts, err := c.GetPosts(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, posts, 2)

	recs, err := c.GetEngagementStats(ctx, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(3), recs[0].Likes)

	_, err = c.GetHashtagStats(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestBreakerSourceOpensAfterFailures(t *testing.T) {
	ctx := context.Background()
	m := NewMemorySource()
	m.Put(&Post{ID: "p1"})
	b := NewBreakerSource(m, BreakerSettings{Name: "test-breaker", MaxRequests: 1, Timeout: time.Minute, MinRequests: 3, FailRatio: 0.5})

	// not-found does not count as a failure
	for i := 0; i < 5; i++ {
		_, err := b.GetPost(ctx, "missing")
		assert.ErrorIs(t, err, ErrPostNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())

	m.SetError(errors.New("boom"))
	for i := 0; i < 10; i++ {
		_, _ = b.GetPosts(ctx, []string{"p1"})
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	m.SetError(nil)
	_, err := b.GetPosts(ctx, []string{"p1"})
	assert.ErrorIs(t, err, ErrUnavailable)
}
