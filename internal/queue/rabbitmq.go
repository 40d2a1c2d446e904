package queue

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// RabbitQueue publishes to a durable topic exchange. The group key travels as
// a header and the dedup token as the AMQP message id.
type RabbitQueue struct {
	mu         sync.Mutex
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

func NewRabbitQueue(conn *amqp.Connection, exchange, routingKey string) (*RabbitQueue, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true, // durable
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}

	return &RabbitQueue{
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
	}, nil
}

// Publish sends one persistent message. amqp channels are not safe for
// concurrent publishers, hence the mutex.
func (q *RabbitQueue) Publish(ctx context.Context, body []byte, groupKey, dedupToken string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	err := q.channel.PublishWithContext(ctx,
		q.exchange,
		q.routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    dedupToken,
			Type:         TaskTypeEnhance,
			Headers:      amqp.Table{"x-group-key": groupKey},
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Close closes the publishing channel.
func (q *RabbitQueue) Close() error {
	return q.channel.Close()
}

// RabbitConsumer reads notifications from a queue bound to the exchange.
type RabbitConsumer struct {
	channel     *amqp.Channel
	queue       string
	prefetchCnt int
	log         zerolog.Logger
}

func NewRabbitConsumer(conn *amqp.Connection, exchange, routingKey, queue string, prefetch int, log zerolog.Logger) (*RabbitConsumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if prefetch <= 0 {
		prefetch = 1
	}

	consumer := &RabbitConsumer{
		channel:     ch,
		queue:       queue,
		prefetchCnt: prefetch,
		log:         log,
	}

	_, err = ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}

	if err := ch.QueueBind(
		queue,
		routingKey,
		exchange,
		false,
		nil,
	); err != nil {
		return nil, err
	}

	if err := ch.Qos(consumer.prefetchCnt, 0, false); err != nil {
		return nil, err
	}

	return consumer, nil
}

// Run acks a delivery after handler succeeds and requeues it otherwise.
// Deliveries run concurrently up to the prefetch count.
func (c *RabbitConsumer) Run(ctx context.Context, handler Handler) error {
	msgs, err := c.channel.Consume(
		c.queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("rabbitmq consumer shutting down")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				c.log.Warn().Msg("rabbitmq channel closed")
				return nil
			}

			wg.Add(1)
			go func(msg amqp.Delivery) {
				defer wg.Done()
				if err := handler(ctx, msg.Body); err != nil {
					c.log.Warn().Err(err).Str("message_id", msg.MessageId).Msg("delivery requeued")
					_ = msg.Nack(false, true)
					return
				}
				_ = msg.Ack(false)
			}(msg)
		}
	}
}
