package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/enhancely/api/internal/model"
)

const maxTxRetries = 5

// RedisLedger keeps each job as a JSON document under job:{id}.
type RedisLedger struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisLedger creates a Redis backed ledger. A zero ttl keeps records forever.
func NewRedisLedger(redisClient *redis.Client, ttl time.Duration) *RedisLedger {
	return &RedisLedger{
		redis: redisClient,
		ttl:   ttl,
	}
}

func jobKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

// Create stores a new job with SET NX so an existing id is never overwritten.
func (l *RedisLedger) Create(ctx context.Context, job *model.Job) error {
	if err := validateNew(job); err != nil {
		return err
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	ok, err := l.redis.SetNX(ctx, jobKey(job.ID), data, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	if !ok {
		return ErrExists
	}
	return nil
}

// Get loads a job record.
func (l *RedisLedger) Get(ctx context.Context, jobID string) (*model.Job, error) {
	return getJob(ctx, l.redis, jobID)
}

// Transition applies t inside a WATCH/MULTI block, retrying when another
// writer touched the key between read and write.
func (l *RedisLedger) Transition(ctx context.Context, jobID string, t Transition) (*model.Job, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	key := jobKey(jobID)
	var updated *model.Job

	txf := func(tx *redis.Tx) error {
		job, err := getJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if err := t.Apply(job); err != nil {
			return err
		}
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, data, redis.SetArgs{KeepTTL: true})
			return nil
		})
		if err != nil {
			return err
		}
		updated = job
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := l.redis.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("failed to update job %s: too much contention", jobID)
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getJob(ctx context.Context, c getter, jobID string) (*model.Job, error) {
	data, err := c.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}
