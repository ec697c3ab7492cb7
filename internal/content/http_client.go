package content

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// HTTPClient talks to the content service's internal API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds a client rooted at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type postsEnvelope struct {
	Posts []*Post `json:"posts"`
}

func (c *HTTPClient) GetPost(ctx context.Context, id string) (*Post, error) {
	var p Post
	err := c.do(ctx, http.MethodGet, "/internal/posts/"+url.PathEscape(id), nil, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) GetPosts(ctx context.Context, ids []string) ([]*Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var env postsEnvelope
	if err := c.do(ctx, http.MethodPost, "/internal/posts/batch", map[string]any{"ids": ids}, &env); err != nil {
		return nil, err
	}
	return env.Posts, nil
}

func (c *HTTPClient) SearchPosts(ctx context.Context, q SearchQuery) ([]*Post, error) {
	var env postsEnvelope
	if err := c.do(ctx, http.MethodPost, "/internal/posts/search", q, &env); err != nil {
		return nil, err
	}
	return env.Posts, nil
}

func (c *HTTPClient) GetEngagementStats(ctx context.Context, start, end time.Time) ([]EngagementRecord, error) {
	q := url.Values{}
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	var env struct {
		Records []EngagementRecord `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, "/internal/engagement?"+q.Encode(), nil, &env); err != nil {
		return nil, err
	}
	return env.Records, nil
}

func (c *HTTPClient) GetHashtagStats(ctx context.Context) ([]HashtagStat, error) {
	var env struct {
		Hashtags []HashtagStat `json:"hashtags"`
	}
	if err := c.do(ctx, http.MethodGet, "/internal/hashtags/stats", nil, &env); err != nil {
		return nil, err
	}
	return env.Hashtags, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound && method == http.MethodGet && strings.HasPrefix(path, "/internal/posts/"):
		return ErrPostNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s: status %d", ErrUnavailable, method, path, resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("content service %s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUnavailable, path, err)
	}
	return nil
}
