package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/d60-Lab/feed-engine/pkg/logger"
	"github.com/d60-Lab/feed-engine/pkg/metrics"
)

// BreakerSettings configures the circuit breaker guarding the content service.
type BreakerSettings struct {
	Name        string
	MaxRequests uint32        // requests allowed while half-open
	Interval    time.Duration // closed-state count reset period
	Timeout     time.Duration // open -> half-open delay
	MinRequests uint32        // requests needed before the failure ratio is considered
	FailRatio   float64
}

// BreakerSource wraps a Source so that a failing content service is cut off
// quickly instead of stalling every feed request.
type BreakerSource struct {
	next Source
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// NewBreakerSource wraps next with a circuit breaker.
func NewBreakerSource(next Source, st BreakerSettings) *BreakerSource {
	if st.Name == "" {
		st.Name = "content-service"
	}
	if st.MinRequests == 0 {
		st.MinRequests = 10
	}
	if st.FailRatio <= 0 {
		st.FailRatio = 0.6
	}
	metrics.CircuitBreakerState.WithLabelValues(st.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        st.Name,
		MaxRequests: st.MaxRequests,
		Interval:    st.Interval,
		Timeout:     st.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < st.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= st.FailRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
		// A missing post is a valid answer, not a sign of an unhealthy upstream.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrPostNotFound)
		},
	})
	return &BreakerSource{next: next, cb: cb, name: st.Name}
}

// State reports the breaker state.
func (b *BreakerSource) State() gobreaker.State { return b.cb.State() }

func (b *BreakerSource) GetPost(ctx context.Context, id string) (*Post, error) {
	v, err := b.execute("get_post", func() (any, error) { return b.next.GetPost(ctx, id) })
	if err != nil {
		return nil, err
	}
	return v.(*Post), nil
}

func (b *BreakerSource) GetPosts(ctx context.Context, ids []string) ([]*Post, error) {
	v, err := b.execute("get_posts", func() (any, error) { return b.next.GetPosts(ctx, ids) })
	if err != nil {
		return nil, err
	}
	return v.([]*Post), nil
}

func (b *BreakerSource) SearchPosts(ctx context.Context, q SearchQuery) ([]*Post, error) {
	v, err := b.execute("search_posts", func() (any, error) { return b.next.SearchPosts(ctx, q) })
	if err != nil {
		return nil, err
	}
	return v.([]*Post), nil
}

func (b *BreakerSource) GetEngagementStats(ctx context.Context, start, end time.Time) ([]EngagementRecord, error) {
	v, err := b.execute("engagement_stats", func() (any, error) { return b.next.GetEngagementStats(ctx, start, end) })
	if err != nil {
		return nil, err
	}
	return v.([]EngagementRecord), nil
}

func (b *BreakerSource) GetHashtagStats(ctx context.Context) ([]HashtagStat, error) {
	v, err := b.execute("hashtag_stats", func() (any, error) { return b.next.GetHashtagStats(ctx) })
	if err != nil {
		return nil, err
	}
	return v.([]HashtagStat), nil
}

func (b *BreakerSource) execute(op string, fn func() (any, error)) (any, error) {
	v, err := b.cb.Execute(fn)
	if err == nil {
		return v, nil
	}
	if errors.Is(err, ErrPostNotFound) {
		return nil, err
	}
	metrics.UpstreamFailuresTotal.WithLabelValues(op).Inc()
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	return nil, err
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
