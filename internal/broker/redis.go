package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	queueKey = "discovery:queue"

	// markerTTL bounds how long a dispatched-but-never-acked task stays
	// revocable; it comfortably exceeds any pipeline run.
	markerTTL = 24 * time.Hour

	// popTimeout is how long a single blocking pop waits before the loop
	// rechecks ctx.
	popTimeout = 5 * time.Second
)

func dispatchKey(jobID uuid.UUID) string {
	return fmt.Sprintf("discovery:dispatched:%s", jobID)
}

func revokeKey(jobID uuid.UUID) string {
	return fmt.Sprintf("discovery:revoked:%s", jobID)
}

// RedisBroker implements Broker on a Redis list plus per-job marker keys.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker creates a RedisBroker from a Redis URL.
func NewRedisBroker(redisURL string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisBroker{client: redis.NewClient(opts)}, nil
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

// Publish pushes the task onto the queue and records a dispatch marker so a
// later Revoke can tell whether the task is still outstanding.
func (b *RedisBroker) Publish(ctx context.Context, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, dispatchKey(task.JobID), "1", markerTTL)
	pipe.LPush(ctx, queueKey, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}

// Next blocks until a task is available or ctx is done.
func (b *RedisBroker) Next(ctx context.Context) (*Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := b.client.BRPop(ctx, popTimeout, queueKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("pop task: %w", err)
		}

		// BRPop returns [key, value].
		var task Task
		if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
			return nil, fmt.Errorf("unmarshal task: %w", err)
		}
		return &task, nil
	}
}

// Revoke flags the job's task for cooperative cancellation. It returns true
// only when a dispatch marker still exists, i.e. the task was published and
// no worker has acked it yet.
func (b *RedisBroker) Revoke(ctx context.Context, jobID uuid.UUID) (bool, error) {
	n, err := b.client.Exists(ctx, dispatchKey(jobID)).Result()
	if err != nil {
		return false, fmt.Errorf("check dispatch marker: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if err := b.client.Set(ctx, revokeKey(jobID), "1", markerTTL).Err(); err != nil {
		return false, fmt.Errorf("set revoke flag: %w", err)
	}
	return true, nil
}

// Revoked reports whether the job's task has been flagged for revocation.
func (b *RedisBroker) Revoked(ctx context.Context, jobID uuid.UUID) (bool, error) {
	n, err := b.client.Exists(ctx, revokeKey(jobID)).Result()
	if err != nil {
		return false, fmt.Errorf("check revoke flag: %w", err)
	}
	return n > 0, nil
}

// Ack clears the job's marker keys once a worker has finished with the task,
// making any later Revoke report that nothing was revocable.
func (b *RedisBroker) Ack(ctx context.Context, jobID uuid.UUID) error {
	if err := b.client.Del(ctx, dispatchKey(jobID), revokeKey(jobID)).Err(); err != nil {
		return fmt.Errorf("ack task: %w", err)
	}
	return nil
}
