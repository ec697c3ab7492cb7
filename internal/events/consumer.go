package events

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/d60-Lab/feed-engine/pkg/logger"
	"github.com/d60-Lab/feed-engine/pkg/metrics"
	"github.com/d60-Lab/feed-engine/pkg/monitor"
)

// MessageReader kafka.Reader 的最小子集
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig 消费者参数
type ConsumerConfig struct {
	Brokers    []string
	Topic      string
	GroupID    string
	MaxRetries int
	RetryWait  time.Duration
}

// Consumer 从 kafka 读取内容事件，分发成功（或重试耗尽）后提交 offset，
// 保证至少一次投递；下游扇出本身是幂等的。
// 每次 Serve 都新建 reader，被 supervisor 重启后不会复用已关闭的连接。
type Consumer struct {
	newReader  func() MessageReader
	dispatcher *Dispatcher
	maxRetries int
	retryWait  time.Duration
}

func NewConsumer(cfg ConsumerConfig, dispatcher *Dispatcher) *Consumer {
	newReader := func() MessageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		})
	}
	return NewConsumerWithReader(newReader, dispatcher, cfg.MaxRetries, cfg.RetryWait)
}

// NewConsumerWithReader newReader 在每次 Serve 开始时调用
func NewConsumerWithReader(newReader func() MessageReader, dispatcher *Dispatcher, maxRetries int, retryWait time.Duration) *Consumer {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryWait <= 0 {
		retryWait = 500 * time.Millisecond
	}
	return &Consumer{newReader: newReader, dispatcher: dispatcher, maxRetries: maxRetries, retryWait: retryWait}
}

// Serve 实现 suture.Service；返回前关闭本次的 reader
func (c *Consumer) Serve(ctx context.Context) error {
	reader := c.newReader()
	defer reader.Close()
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		c.handle(ctx, msg)
		if err := reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("commit offset failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func (c *Consumer) String() string { return "post-event-consumer" }

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	ev, err := DecodePost(msg.Value)
	if err != nil {
		// 无法解析的消息直接跳过，避免阻塞分区
		logger.Warn("skip malformed event", zap.Int64("offset", msg.Offset), zap.Error(err))
		metrics.EventsConsumedTotal.WithLabelValues("unknown", "malformed").Inc()
		return
	}

	for attempt := 1; ; attempt++ {
		err = c.dispatcher.Dispatch(ctx, ev)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		if attempt >= c.maxRetries {
			logger.Error("dispatch event abandoned",
				zap.String("type", string(ev.Type())),
				zap.Int64("offset", msg.Offset),
				zap.Int("attempts", attempt),
				zap.Error(err))
			monitor.Capture(err, map[string]string{"component": "consumer", "event": string(ev.Type())})
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.retryWait * time.Duration(attempt)):
		}
	}
}
