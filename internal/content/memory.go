package content

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MemorySource is an in-process Source used for local runs and tests. SetError
// makes every call fail, simulating an outage of the content service.
type MemorySource struct {
	mu         sync.RWMutex
	posts      map[string]*Post
	engagement []EngagementRecord
	hashtags   []HashtagStat
	err        error

	batchCalls  atomic.Int64
	searchCalls atomic.Int64
}

func NewMemorySource() *MemorySource {
	return &MemorySource{posts: make(map[string]*Post)}
}

// Put adds or replaces posts.
func (m *MemorySource) Put(posts ...*Post) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range posts {
		cp := *p
		m.posts[p.ID] = &cp
	}
}

// Delete removes a post.
func (m *MemorySource) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.posts, id)
}

func (m *MemorySource) SetEngagement(records []EngagementRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engagement = append([]EngagementRecord(nil), records...)
}

func (m *MemorySource) SetHashtags(stats []HashtagStat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashtags = append([]HashtagStat(nil), stats...)
}

// SetError makes all subsequent calls return err (nil restores service).
func (m *MemorySource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// BatchCalls reports how many GetPosts calls were served.
func (m *MemorySource) BatchCalls() int64 { return m.batchCalls.Load() }

// SearchCalls reports how many SearchPosts calls were served.
func (m *MemorySource) SearchCalls() int64 { return m.searchCalls.Load() }

func (m *MemorySource) GetPost(_ context.Context, id string) (*Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.posts[id]
	if !ok {
		return nil, ErrPostNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemorySource) GetPosts(_ context.Context, ids []string) ([]*Post, error) {
	m.batchCalls.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]*Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.posts[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemorySource) SearchPosts(_ context.Context, q SearchQuery) ([]*Post, error) {
	m.searchCalls.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	categories := toSet(q.Categories)
	hashtags := toSet(q.Hashtags)
	sellers := toSet(q.SellerIDs)
	excluded := toSet(q.ExcludeAuthorIDs)

	var out []*Post
	for _, p := range m.posts {
		if _, skip := excluded[p.UserID]; skip {
			continue
		}
		if matches(p, categories, hashtags, sellers) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemorySource) GetEngagementStats(_ context.Context, _, end time.Time) ([]EngagementRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]EngagementRecord, 0, len(m.engagement))
	for _, r := range m.engagement {
		if r.PublishedAt.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *MemorySource) GetHashtagStats(_ context.Context) ([]HashtagStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]HashtagStat(nil), m.hashtags...), nil
}

func matches(p *Post, categories, hashtags, sellers map[string]struct{}) bool {
	if _, ok := categories[p.CategoryID]; ok && p.CategoryID != "" {
		return true
	}
	for _, h := range p.Hashtags {
		if _, ok := hashtags[h]; ok {
			return true
		}
	}
	for _, s := range p.Sellers() {
		if _, ok := sellers[s]; ok {
			return true
		}
	}
	return false
}

func toSet(xs []string) map[string]struct{} {
	s := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		s[x] = struct{}{}
	}
	return s
}
