// Package queue carries conversion trigger messages between the API server
// and the worker fleet. Delivery is at-least-once by design: a duplicate
// trigger is harmless because every job transition is conditional.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty indicates no message was available within the poll timeout.
var ErrEmpty = errors.New("queue empty")

// Message asks a worker to run the conversion for one job.
type Message struct {
	JobID       string `json:"job_id"`
	InputKey    string `json:"input_key"`
	ContentType string `json:"content_type"`
}

// RedisConfig holds trigger queue connection settings.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	Key         string
	PollTimeout time.Duration
}

// RedisQueue implements the trigger queue over a Redis list.
type RedisQueue struct {
	client      *redis.Client
	key         string
	pollTimeout time.Duration
}

// NewRedisQueue connects to Redis and verifies the connection.
func NewRedisQueue(ctx context.Context, cfg RedisConfig) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	key := cfg.Key
	if key == "" {
		key = "convertd:jobs"
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}

	return &RedisQueue{client: client, key: key, pollTimeout: pollTimeout}, nil
}

// Enqueue pushes a trigger message.
func (q *RedisQueue) Enqueue(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// Dequeue blocks for up to the poll timeout and returns the next message.
// Returns ErrEmpty when the timeout elapses with nothing queued.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Message, error) {
	res, err := q.client.BRPop(ctx, q.pollTimeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	if len(res) < 2 {
		return nil, ErrEmpty
	}

	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &msg, nil
}

// Close releases the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
