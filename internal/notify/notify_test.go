package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/richardliu001/transfer-ledger/internal/model"
	"github.com/richardliu001/transfer-ledger/internal/repo"
	"github.com/richardliu001/transfer-ledger/internal/repotest"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var publishedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sampleEvent() model.TransferCompleted {
	return model.TransferCompleted{
		FromAccount: "ACC-A",
		ToAccount:   "ACC-B",
		Amount:      decimal.RequireFromString("12.5000"),
	}
}

type capture struct {
	mu     sync.Mutex
	events []model.TransferCompleted
	fail   int
}

func (c *capture) Publish(_ context.Context, evt model.TransferCompleted) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail > 0 {
		c.fail--
		return errors.New("sink unavailable")
	}
	c.events = append(c.events, evt)
	return nil
}

func (c *capture) Events() []model.TransferCompleted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.TransferCompleted(nil), c.events...)
}

func TestAsyncNotifier_RetriesUntilDelivered(t *testing.T) {
	pub := &capture{fail: 2}
	n := NewAsyncNotifier(pub, zap.NewNop().Sugar(), AsyncOptions{
		Sink:            "test",
		Workers:         2,
		Buffer:          4,
		MaxRetries:      5,
		InitialInterval: time.Millisecond,
	})
	n.now = func() time.Time { return publishedAt }

	n.Notify(context.Background(), sampleEvent())
	n.Close()

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "ACC-A", events[0].FromAccount)
	assert.True(t, events[0].PublishedAt.Equal(publishedAt))
}

func TestAsyncNotifier_GivesUpAfterMaxRetries(t *testing.T) {
	pub := &capture{fail: 10}
	n := NewAsyncNotifier(pub, zap.NewNop().Sugar(), AsyncOptions{MaxRetries: 1, InitialInterval: time.Millisecond})

	n.Notify(context.Background(), sampleEvent())
	n.Close()

	assert.Empty(t, pub.Events())
}

func TestAsyncNotifier_DropsAfterClose(t *testing.T) {
	pub := &capture{}
	n := NewAsyncNotifier(pub, zap.NewNop().Sugar(), AsyncOptions{})
	n.Close()
	n.Close()

	n.Notify(context.Background(), sampleEvent())
	assert.Empty(t, pub.Events())
}

// gatedPublisher blocks every Publish until release is closed.
type gatedPublisher struct {
	capture
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedPublisher() *gatedPublisher {
	return &gatedPublisher{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedPublisher) Publish(ctx context.Context, evt model.TransferCompleted) error {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return g.capture.Publish(ctx, evt)
}

func TestAsyncNotifier_EnqueueOutlivesCallerContext(t *testing.T) {
	pub := newGatedPublisher()
	n := NewAsyncNotifier(pub, zap.NewNop().Sugar(), AsyncOptions{Workers: 1, Buffer: 1, EnqueueTimeout: 5 * time.Second})

	n.Notify(context.Background(), sampleEvent())
	<-pub.started
	n.Notify(context.Background(), sampleEvent())

	// the queue is full and the client already disconnected
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		n.Notify(ctx, sampleEvent())
	}()
	close(pub.release)
	<-done
	n.Close()

	assert.Len(t, pub.Events(), 3)
}

func TestAsyncNotifier_DropsWhenQueueStaysFull(t *testing.T) {
	pub := newGatedPublisher()
	n := NewAsyncNotifier(pub, zap.NewNop().Sugar(), AsyncOptions{Workers: 1, Buffer: 1, EnqueueTimeout: 10 * time.Millisecond})

	n.Notify(context.Background(), sampleEvent())
	<-pub.started
	n.Notify(context.Background(), sampleEvent())
	n.Notify(context.Background(), sampleEvent())

	close(pub.release)
	n.Close()
	assert.Len(t, pub.Events(), 2)
}

func TestOutboxNotifierAndRelay(t *testing.T) {
	db := repotest.NewDB(t)
	store := repo.NewRepository(db, zap.NewNop().Sugar())
	ctx := context.Background()

	n := NewOutboxNotifier(store, zap.NewNop().Sugar())
	n.Notify(ctx, sampleEvent())
	n.Notify(ctx, sampleEvent())
	assert.EqualValues(t, 2, repotest.Count(t, db, &model.OutboxEvent{}))

	pub := &capture{fail: 1}
	relay := NewRelay(store, pub, "test", 10, zap.NewNop().Sugar())
	relay.now = func() time.Time { return publishedAt }

	sent, err := relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent, "the failed publish stays in the outbox")

	sent, err = relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	sent, err = relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	events := pub.Events()
	require.Len(t, events, 2)
	for _, evt := range events {
		assert.Equal(t, "ACC-B", evt.ToAccount)
		assert.True(t, evt.Amount.Equal(decimal.RequireFromString("12.5")))
		assert.True(t, evt.PublishedAt.Equal(publishedAt))
	}
}

func TestRelay_SkipsMalformedRows(t *testing.T) {
	db := repotest.NewDB(t)
	store := repo.NewRepository(db, zap.NewNop().Sugar())
	ctx := context.Background()
	require.NoError(t, store.CreateOutboxEvent(ctx, db, &model.OutboxEvent{
		Aggregate: "Account", AggregateKey: "ACC-A", EventType: model.EventTransferCompleted, Payload: "{not json",
	}))

	pub := &capture{}
	sent, err := NewRelay(store, pub, "test", 0, zap.NewNop().Sugar()).RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	pending, err := store.PollOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	evt := sampleEvent()
	evt.PublishedAt = publishedAt

	require.NoError(t, NewKafkaPublisher(w).Publish(context.Background(), evt))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, []byte("ACC-A"), msg.Key)
	assert.True(t, msg.Time.Equal(publishedAt))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "ACC-A", body["from_account"])
	assert.Equal(t, "ACC-B", body["to_account"])
	assert.Equal(t, "12.5", body["amount"])
	assert.Contains(t, body, "published_at")
	assert.NotContains(t, body, "currency")

	w.err = errors.New("broker down")
	assert.Error(t, NewKafkaPublisher(w).Publish(context.Background(), evt))
}

func TestRedisStreamPublisher(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	evt := sampleEvent()
	evt.PublishedAt = publishedAt
	payload, err := encode(evt)
	require.NoError(t, err)

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "ledger:transfers",
		MaxLen: 1000,
		Approx: true,
		Values: []interface{}{"payload", string(payload)},
	}).SetVal("1-0")

	require.NoError(t, NewRedisStreamPublisher(rdb, "ledger:transfers", 1000).Publish(context.Background(), evt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStreamPublisher_Error(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	evt := sampleEvent()
	payload, err := encode(evt)
	require.NoError(t, err)

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "s",
		Values: []interface{}{"payload", string(payload)},
	}).SetErr(errors.New("READONLY"))

	assert.Error(t, NewRedisStreamPublisher(rdb, "s", 0).Publish(context.Background(), evt))
	assert.NoError(t, mock.ExpectationsWereMet())
}
