// Package queue carries job-start notifications from the API to workers.
// Every backend offers at-least-once delivery; publishers pass a grouping key
// and a per-call deduplication token which backends map onto their own
// ordering and dedup features.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/enhancely/api/internal/model"
)

// TaskTypeEnhance is the asynq task type and AMQP message type for notifications
const TaskTypeEnhance = "enhancement:process"

// Handler processes one delivered message body. Returning an error leaves the
// message for redelivery.
type Handler func(ctx context.Context, body []byte) error

// Consumer delivers messages to a handler until ctx is done.
type Consumer interface {
	Run(ctx context.Context, handler Handler) error
}

// EncodeMessage serialises a notification in the queue wire format.
func EncodeMessage(msg model.EnhancementMessage) ([]byte, error) {
	if msg.JobID == "" || msg.SourceLocator == "" {
		return nil, fmt.Errorf("message requires enhancementId and imageUrl")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}

// DecodeMessage parses a notification body.
func DecodeMessage(body []byte) (model.EnhancementMessage, error) {
	var msg model.EnhancementMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	if msg.JobID == "" {
		return msg, fmt.Errorf("message has no enhancementId")
	}
	return msg, nil
}
