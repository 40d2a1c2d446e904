package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// AsynqQueue enqueues notifications as asynq tasks. asynq has no per-producer
// ordering key, so the group key names the asynq queue; the dedup token
// becomes the task id, which asynq refuses to enqueue twice.
type AsynqQueue struct {
	client    *asynq.Client
	maxRetry  int
	retention time.Duration
}

func NewAsynqQueue(client *asynq.Client) *AsynqQueue {
	return &AsynqQueue{
		client:    client,
		maxRetry:  3,
		retention: 24 * time.Hour,
	}
}

// NewTask builds the asynq task for a notification body.
func NewTask(body []byte) *asynq.Task {
	return asynq.NewTask(TaskTypeEnhance, body)
}

// Publish enqueues one task.
func (q *AsynqQueue) Publish(ctx context.Context, body []byte, groupKey, dedupToken string) error {
	_, err := q.client.EnqueueContext(ctx, NewTask(body),
		asynq.Queue(groupKey),
		asynq.TaskID(dedupToken),
		asynq.MaxRetry(q.maxRetry),
		asynq.Retention(q.retention),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}
