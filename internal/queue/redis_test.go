package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisQueue_EnqueueDequeue(t *testing.T) {
	client := newTestRedis(t)
	q, err := NewRedisQueue(client, DefaultConfig("usage"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, map[string]string{"request_id": "r1"}))

	items, err := q.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(items[0].(json.RawMessage), &decoded))
	assert.Equal(t, "r1", decoded["request_id"])
}

func TestRedisQueue_BatchPreservesOrder(t *testing.T) {
	client := newTestRedis(t)
	q, err := NewRedisQueue(client, DefaultConfig("usage"))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(ctx, i))
	}

	items, err := q.Dequeue(ctx, 5)
	require.NoError(t, err)
	require.Len(t, items, 5)

	for i, raw := range items {
		var v int
		require.NoError(t, json.Unmarshal(raw.(json.RawMessage), &v))
		assert.Equal(t, i, v)
	}
}

func TestRedisQueue_DequeueWithTimeoutEmpty(t *testing.T) {
	client := newTestRedis(t)
	q, err := NewRedisQueue(client, DefaultConfig("usage"))
	require.NoError(t, err)

	items, err := q.DequeueWithTimeout(context.Background(), 10, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRedisQueue_Length(t *testing.T) {
	client := newTestRedis(t)
	q, err := NewRedisQueue(client, DefaultConfig("usage"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "a"))
	require.NoError(t, q.Enqueue(ctx, "b"))

	n, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRedisQueue_RequiresName(t *testing.T) {
	client := newTestRedis(t)

	_, err := NewRedisQueue(client, &Config{})
	assert.Error(t, err)

	_, err = NewRedisQueue(nil, DefaultConfig("usage"))
	assert.Error(t, err)
}

func TestRedisDeadLetterQueue(t *testing.T) {
	client := newTestRedis(t)
	dlq, err := NewRedisDeadLetterQueue(client, DefaultConfig("usage"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, dlq.Add(ctx, map[string]string{"request_id": "r9"}, errors.New("insert failed")))

	items, err := dlq.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "insert failed", items[0].Error)

	require.NoError(t, dlq.Remove(ctx, items[0].ID))

	items, err = dlq.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}
