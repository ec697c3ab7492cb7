// Package events defines the messages the engine consumes (post lifecycle) and
// produces (relation changes), their wire encoding, and the delivery plumbing:
// a dispatcher worker pool, a kafka consumer and a kafka producer sink.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// EventType 事件类型
type EventType string

const (
	PostCreated EventType = "post.created"
	PostDeleted EventType = "post.deleted"

	UserFollowed   EventType = "user.followed"
	UserUnfollowed EventType = "user.unfollowed"
	UserBlocked    EventType = "user.blocked"
	UserUnblocked  EventType = "user.unblocked"
	UserMuted      EventType = "user.muted"
	UserUnmuted    EventType = "user.unmuted"
)

// ErrUnknownEvent 无法识别的事件类型
var ErrUnknownEvent = errors.New("unknown event type")

// PostEvent 内容生命周期事件，只有 PostCreatedEvent 与 PostDeletedEvent 两种实现
type PostEvent interface {
	Type() EventType
	postEvent()
}

// PostCreatedEvent 触发扇出
type PostCreatedEvent struct {
	PostID      string    `json:"postId"`
	UserID      string    `json:"userId"`
	PublishedAt time.Time `json:"publishedAt"`
}

func (PostCreatedEvent) Type() EventType { return PostCreated }
func (PostCreatedEvent) postEvent()      {}

// PostDeletedEvent 触发时间线清理
type PostDeletedEvent struct {
	PostID string `json:"postId"`
}

func (PostDeletedEvent) Type() EventType { return PostDeleted }
func (PostDeletedEvent) postEvent()      {}

type envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodePost 编码为 {"type": ..., "data": {...}}
func EncodePost(ev PostEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: ev.Type(), Data: data})
}

// DecodePost 解码并校验必填字段
func DecodePost(b []byte) (PostEvent, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Type {
	case PostCreated:
		var ev PostCreatedEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if ev.PostID == "" || ev.UserID == "" {
			return nil, fmt.Errorf("decode %s: missing postId or userId", env.Type)
		}
		if ev.PublishedAt.IsZero() {
			ev.PublishedAt = time.Now().UTC()
		}
		return ev, nil
	case PostDeleted:
		var ev PostDeletedEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if ev.PostID == "" {
			return nil, fmt.Errorf("decode %s: missing postId", env.Type)
		}
		return ev, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
}

// RelationEvent 关系变化通知，提交成功后发出
type RelationEvent struct {
	Type       EventType `json:"type"`
	ActorID    string    `json:"actorId"`
	TargetID   string    `json:"targetId"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Sink 关系事件出口
type Sink interface {
	Publish(ctx context.Context, ev RelationEvent) error
}

// NopSink 丢弃所有事件
type NopSink struct{}

func (NopSink) Publish(context.Context, RelationEvent) error { return nil }
