package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
)

// SQSAPI is the subset of the SQS client used here
type SQSAPI interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue publishes to an SQS FIFO queue. The group key becomes the
// MessageGroupId and the dedup token the MessageDeduplicationId.
type SQSQueue struct {
	client   SQSAPI
	queueURL string
	log      zerolog.Logger
}

// NewSQSQueue uses queueURL directly, or resolves it from queueName the way
// the original service looked the queue up by name.
func NewSQSQueue(ctx context.Context, client SQSAPI, queueName, queueURL string, log zerolog.Logger) (*SQSQueue, error) {
	if queueURL == "" {
		out, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(queueName)})
		if err != nil {
			return nil, fmt.Errorf("failed to resolve queue %q: %w", queueName, err)
		}
		queueURL = aws.ToString(out.QueueUrl)
	}
	log.Info().Str("queue_url", queueURL).Msg("using SQS queue")

	return &SQSQueue{
		client:   client,
		queueURL: queueURL,
		log:      log,
	}, nil
}

// Publish sends one message.
func (q *SQSQueue) Publish(ctx context.Context, body []byte, groupKey, dedupToken string) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               aws.String(q.queueURL),
		MessageBody:            aws.String(string(body)),
		MessageGroupId:         aws.String(groupKey),
		MessageDeduplicationId: aws.String(dedupToken),
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Run long-polls the queue. A message is deleted only after handler succeeds;
// otherwise it becomes visible again after the queue's visibility timeout.
func (q *SQSQueue) Run(ctx context.Context, handler Handler) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			q.log.Error().Err(err).Msg("sqs receive failed")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		for _, msg := range out.Messages {
			if err := handler(ctx, []byte(aws.ToString(msg.Body))); err != nil {
				q.log.Warn().Err(err).Str("message_id", aws.ToString(msg.MessageId)).Msg("message left for redelivery")
				continue
			}
			_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(q.queueURL),
				ReceiptHandle: msg.ReceiptHandle,
			})
			if err != nil {
				q.log.Error().Err(err).Str("message_id", aws.ToString(msg.MessageId)).Msg("sqs delete failed")
			}
		}
	}
}
