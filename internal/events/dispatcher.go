package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/feed-engine/pkg/logger"
	"github.com/d60-Lab/feed-engine/pkg/metrics"
)

// FeedWriter 事件最终落地的扇出写入方
type FeedWriter interface {
	FanOutToFollowers(ctx context.Context, authorID, postID string, postCreatedAt time.Time) (int, error)
	RemoveFromAllFeeds(ctx context.Context, postID string) (int64, error)
}

// Dispatcher 把内容事件分发给 FeedWriter；Dispatch 同步执行，
// Enqueue 投递到本地异步队列由 Start 启动的 worker 处理。
type Dispatcher struct {
	writer  FeedWriter
	timeout time.Duration
	ch      chan PostEvent
}

func NewDispatcher(writer FeedWriter, queueSize int, timeout time.Duration) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 10000
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{writer: writer, timeout: timeout, ch: make(chan PostEvent, queueSize)}
}

// Dispatch 处理单个事件
func (d *Dispatcher) Dispatch(ctx context.Context, ev PostEvent) error {
	var err error
	switch e := ev.(type) {
	case PostCreatedEvent:
		var n int
		n, err = d.writer.FanOutToFollowers(ctx, e.UserID, e.PostID, e.PublishedAt)
		if err == nil {
			logger.Debug("post fanned out", zap.String("post", e.PostID), zap.Int("followers", n))
		}
	case PostDeletedEvent:
		_, err = d.writer.RemoveFromAllFeeds(ctx, e.PostID)
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.EventsConsumedTotal.WithLabelValues(string(ev.Type()), result).Inc()
	return err
}

// Enqueue 非阻塞投递；队列满时丢弃并返回 false
func (d *Dispatcher) Enqueue(ev PostEvent) bool {
	select {
	case d.ch <- ev:
		return true
	default:
		logger.Warn("dispatch queue full, drop event", zap.String("type", string(ev.Type())))
		metrics.EventsConsumedTotal.WithLabelValues(string(ev.Type()), "dropped").Inc()
		return false
	}
}

// Start 启动 workers 个消费协程；返回的停止函数等待队列排空、在途事件处理完毕或 ctx 到期
func (d *Dispatcher) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 4
	}
	stopCh := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case ev := <-d.ch:
					d.handle(ev)
				case <-stopCh:
					return
				}
			}
		}()
	}
	return func(ctx context.Context) error {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for len(d.ch) > 0 {
			select {
			case <-ctx.Done():
				close(stopCh)
				return ctx.Err()
			case <-ticker.C:
			}
		}
		close(stopCh)
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// QueueLen 当前队列长度（采样值）
func (d *Dispatcher) QueueLen() int { return len(d.ch) }

func (d *Dispatcher) handle(ev PostEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.Dispatch(ctx, ev); err != nil {
		logger.Error("dispatch event failed", zap.String("type", string(ev.Type())), zap.Error(err))
	}
}
