package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue on a Redis list. The client is injected so
// every queue in the process shares one connection pool.
type RedisQueue struct {
	client *redis.Client
	qKey   string
}

// NewRedisQueue creates a Redis-backed queue under "queue:<name>".
func NewRedisQueue(client *redis.Client, config *Config) (*RedisQueue, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config == nil || config.QueueName == "" {
		return nil, fmt.Errorf("queue name is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisQueue{
		client: client,
		qKey:   "queue:" + config.QueueName,
	}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, item interface{}) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}
	if err := q.client.RPush(ctx, q.qKey, data).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", q.qKey, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, maxItems int) ([]interface{}, error) {
	result, err := q.client.BLPop(ctx, 0, q.qKey).Result()
	if err != nil {
		return nil, fmt.Errorf("blpop %s: %w", q.qKey, err)
	}

	// result[0] is the key, result[1] the payload.
	items := []interface{}{json.RawMessage(result[1])}
	return q.drainInto(ctx, items, maxItems), nil
}

func (q *RedisQueue) DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]interface{}, error) {
	result, err := q.client.BLPop(ctx, timeout, q.qKey).Result()
	if err == redis.Nil {
		return []interface{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blpop %s: %w", q.qKey, err)
	}

	items := []interface{}{json.RawMessage(result[1])}
	return q.drainInto(ctx, items, maxItems), nil
}

// drainInto grabs whatever else is already queued, up to maxItems.
// Errors mid-drain return the partial batch; the worker will come back.
func (q *RedisQueue) drainInto(ctx context.Context, items []interface{}, maxItems int) []interface{} {
	for len(items) < maxItems {
		result, err := q.client.LPop(ctx, q.qKey).Result()
		if err != nil {
			return items
		}
		items = append(items, json.RawMessage(result))
	}
	return items
}

func (q *RedisQueue) Length(ctx context.Context) (int, error) {
	length, err := q.client.LLen(ctx, q.qKey).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", q.qKey, err)
	}
	return int(length), nil
}

// Close is a no-op; the injected client is owned by the caller.
func (q *RedisQueue) Close() error {
	return nil
}

// RedisDeadLetterQueue implements DeadLetterQueue on a Redis hash keyed
// by item id.
type RedisDeadLetterQueue struct {
	client *redis.Client
	dlKey  string
}

func NewRedisDeadLetterQueue(client *redis.Client, config *Config) (*RedisDeadLetterQueue, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config == nil || config.QueueName == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	return &RedisDeadLetterQueue{
		client: client,
		dlKey:  "dlq:" + config.QueueName,
	}, nil
}

func (q *RedisDeadLetterQueue) Add(ctx context.Context, item interface{}, cause error) error {
	dlItem := DeadLetterItem{
		ID:        uuid.NewString(),
		Item:      item,
		Error:     cause.Error(),
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(dlItem)
	if err != nil {
		return fmt.Errorf("marshal dead letter item: %w", err)
	}
	if err := q.client.HSet(ctx, q.dlKey, dlItem.ID, data).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", q.dlKey, err)
	}
	return nil
}

func (q *RedisDeadLetterQueue) List(ctx context.Context, maxItems int) ([]DeadLetterItem, error) {
	results, err := q.client.HGetAll(ctx, q.dlKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", q.dlKey, err)
	}

	items := make([]DeadLetterItem, 0, len(results))
	for _, data := range results {
		var dlItem DeadLetterItem
		if err := json.Unmarshal([]byte(data), &dlItem); err != nil {
			continue
		}
		items = append(items, dlItem)
		if maxItems > 0 && len(items) >= maxItems {
			break
		}
	}
	return items, nil
}

func (q *RedisDeadLetterQueue) Remove(ctx context.Context, id string) error {
	if err := q.client.HDel(ctx, q.dlKey, id).Err(); err != nil {
		return fmt.Errorf("hdel %s: %w", q.dlKey, err)
	}
	return nil
}

func (q *RedisDeadLetterQueue) Close() error {
	return nil
}
