package events

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu       sync.Mutex
	fanouts  []string
	removed  []string
	failures int
}

func (f *fakeWriter) FanOutToFollowers(_ context.Context, authorID, postID string, _ time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return 0, errors.New("db down")
	}
	f.fanouts = append(f.fanouts, authorID+"/"+postID)
	return 1, nil
}

func (f *fakeWriter) RemoveFromAllFeeds(_ context.Context, postID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, postID)
	return 1, nil
}

func (f *fakeWriter) snapshot() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fanouts...), append([]string(nil), f.removed...)
}

func TestDecodePost(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	raw, err := EncodePost(PostCreatedEvent{PostID: "p1", UserID: "u1", PublishedAt: at})
	require.NoError(t, err)

	ev, err := DecodePost(raw)
	require.NoError(t, err)
	created, ok := ev.(PostCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, "p1", created.PostID)
	assert.True(t, created.PublishedAt.Equal(at))

	ev, err = DecodePost([]byte(`{"type":"post.deleted","data":{"postId":"p2"}}`))
	require.NoError(t, err)
	assert.Equal(t, PostDeleted, ev.Type())

	_, err = DecodePost([]byte(`{"type":"post.liked","data":{}}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = DecodePost([]byte(`{"type":"post.created","data":{"postId":"p1"}}`))
	assert.Error(t, err)

	_, err = DecodePost([]byte(`not json`))
	assert.Error(t, err)
}

func TestDispatcherDispatch(t *testing.T) {
	w := &fakeWriter{}
	d := NewDispatcher(w, 10, time.Second)
	ctx := context.Background()

	require.NoError(t, d.Dispatch(ctx, PostCreatedEvent{PostID: "p1", UserID: "c"}))
	require.NoError(t, d.Dispatch(ctx, PostDeletedEvent{PostID: "p1"}))

	fanouts, removed := w.snapshot()
	assert.Equal(t, []string{"c/p1"}, fanouts)
	assert.Equal(t, []string{"p1"}, removed)
}

func TestDispatcherQueue(t *testing.T) {
	w := &fakeWriter{}
	d := NewDispatcher(w, 2, time.Second)

	assert.True(t, d.Enqueue(PostDeletedEvent{PostID: "a"}))
	assert.True(t, d.Enqueue(PostDeletedEvent{PostID: "b"}))
	assert.False(t, d.Enqueue(PostDeletedEvent{PostID: "c"}), "queue is full before workers start")

	stop := d.Start(2)
	require.Eventually(t, func() bool {
		_, removed := w.snapshot()
		return len(removed) == 2
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, stop(ctx))
	assert.Zero(t, d.QueueLen())
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
	fetchErr  error
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return kafka.Message{}, io.EOF
	}
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	err := r.fetchErr
	r.mu.Unlock()
	if err != nil {
		return kafka.Message{}, err
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumerCommitsAfterDispatch(t *testing.T) {
	created, err := EncodePost(PostCreatedEvent{PostID: "p1", UserID: "c", PublishedAt: time.Now().UTC()})
	require.NoError(t, err)
	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: created},
		{Offset: 2, Value: []byte("garbage")},
		{Offset: 3, Value: []byte(`{"type":"post.deleted","data":{"postId":"p1"}}`)},
	}}
	// 第一次扇出失败，重试后成功
	w := &fakeWriter{failures: 1}
	c := NewConsumerWithReader(func() MessageReader { return reader }, NewDispatcher(w, 1, time.Second), 3, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	fanouts, removed := w.snapshot()
	assert.Equal(t, []string{"c/p1"}, fanouts)
	assert.Equal(t, []string{"p1"}, removed)
	assert.Equal(t, []int64{1, 2, 3}, reader.commits())
	assert.True(t, reader.closed)
	assert.Equal(t, "post-event-consumer", c.String())
}

func TestConsumerServeAfterRestart(t *testing.T) {
	created, err := EncodePost(PostCreatedEvent{PostID: "p2", UserID: "c", PublishedAt: time.Now().UTC()})
	require.NoError(t, err)

	var readers []*fakeReader
	newReader := func() MessageReader {
		var r *fakeReader
		if len(readers) == 0 {
			// 第一个 reader 读取失败，Serve 返回错误等待 supervisor 重启
			r = &fakeReader{fetchErr: errors.New("broker gone")}
		} else {
			r = &fakeReader{msgs: []kafka.Message{{Offset: 7, Value: created}}}
		}
		readers = append(readers, r)
		return r
	}
	w := &fakeWriter{}
	c := NewConsumerWithReader(newReader, NewDispatcher(w, 1, time.Second), 1, time.Millisecond)

	err = c.Serve(context.Background())
	require.EqualError(t, err, "broker gone")
	require.Len(t, readers, 1)
	assert.True(t, readers[0].closed)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx) }()

	require.Eventually(t, func() bool {
		fanouts, _ := w.snapshot()
		return len(fanouts) == 1
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	require.Len(t, readers, 2)
	assert.Equal(t, []int64{7}, readers[1].commits())
	assert.True(t, readers[1].closed)
}

type captureWriter struct {
	msgs []kafka.Message
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error { return nil }

func TestKafkaSinkPublish(t *testing.T) {
	w := &captureWriter{}
	sink := NewKafkaSinkWithWriter(w)
	ev := RelationEvent{Type: UserFollowed, ActorID: "a", TargetID: "b", OccurredAt: time.Now().UTC()}
	require.NoError(t, sink.Publish(context.Background(), ev))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("a"), w.msgs[0].Key)
	var got RelationEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, UserFollowed, got.Type)
	assert.Equal(t, "b", got.TargetID)
	require.NoError(t, sink.Close())
}
