package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen []map[string]interface{}
	fail bool
}

func (h *recordingHandler) Handle(_ context.Context, msg redis.XMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, msg.Values)
	if h.fail {
		return errors.New("handler failed")
	}
	return nil
}

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestProduceAndConsume(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	handler := &recordingHandler{}
	consumer := NewConsumer(client, "tasks", "workers", "w1", time.Second, zerolog.Nop(), handler)
	consumer.block = 10 * time.Millisecond
	require.NoError(t, consumer.EnsureGroup(ctx))
	require.NoError(t, consumer.EnsureGroup(ctx), "second create must tolerate BUSYGROUP")

	producer := NewProducer(client, "tasks")
	id, err := producer.Enqueue(ctx, Task{Type: TaskDiagnosis, DiagnosisID: "d1", Fields: map[string]string{"crop": "Rice"}})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	acked, err := consumer.ReadOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, acked)

	require.Len(t, handler.seen, 1)
	assert.Equal(t, TaskDiagnosis, handler.seen[0]["type"])
	assert.Equal(t, "d1", handler.seen[0]["diagnosisId"])
	assert.Equal(t, "Rice", handler.seen[0]["crop"])

	pending, err := client.XPending(ctx, "tasks", "workers").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestFailedMessagesStayPending(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	handler := &recordingHandler{fail: true}
	consumer := NewConsumer(client, "tasks", "workers", "w1", time.Second, zerolog.Nop(), handler)
	consumer.block = 10 * time.Millisecond
	require.NoError(t, consumer.EnsureGroup(ctx))

	_, err := NewProducer(client, "tasks").Enqueue(ctx, Task{Type: TaskCleanup})
	require.NoError(t, err)

	acked, err := consumer.ReadOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, acked)

	pending, err := client.XPending(ctx, "tasks", "workers").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending.Count)
}

func TestNilProducerDropsTasks(t *testing.T) {
	var p *Producer
	id, err := p.Enqueue(context.Background(), Task{Type: TaskCleanup})
	require.NoError(t, err)
	assert.Empty(t, id)
}
