package queue

import (
	"context"
	"sync"
	"time"
)

const redeliveryDelay = 100 * time.Millisecond

// Message is a published notification as recorded by the in-memory queue.
type Message struct {
	Body       []byte
	GroupKey   string
	DedupToken string
}

// Memory is an in-process queue for local development and tests. Like a FIFO
// queue it drops a publish whose dedup token was already seen.
type Memory struct {
	mu        sync.Mutex
	published []Message
	seen      map[string]bool
	ch        chan Message
}

func NewMemory(buffer int) *Memory {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Memory{
		seen: make(map[string]bool),
		ch:   make(chan Message, buffer),
	}
}

// Publish records the message and hands it to consumers. It blocks while the
// buffer is full until ctx expires.
func (q *Memory) Publish(ctx context.Context, body []byte, groupKey, dedupToken string) error {
	q.mu.Lock()
	if dedupToken != "" && q.seen[dedupToken] {
		q.mu.Unlock()
		return nil
	}
	q.seen[dedupToken] = true
	q.mu.Unlock()

	msg := Message{
		Body:       append([]byte(nil), body...),
		GroupKey:   groupKey,
		DedupToken: dedupToken,
	}

	select {
	case q.ch <- msg:
	case <-ctx.Done():
		q.mu.Lock()
		delete(q.seen, dedupToken)
		q.mu.Unlock()
		return ctx.Err()
	}

	q.mu.Lock()
	q.published = append(q.published, msg)
	q.mu.Unlock()
	return nil
}

// Published returns every message accepted so far.
func (q *Memory) Published() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Message, len(q.published))
	copy(out, q.published)
	return out
}

// Run delivers messages to handler one at a time. Failed messages are put
// back on the queue after redeliveryDelay.
func (q *Memory) Run(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-q.ch:
			if err := handler(ctx, msg.Body); err != nil && ctx.Err() == nil {
				time.AfterFunc(redeliveryDelay, func() {
					select {
					case q.ch <- msg:
					default:
					}
				})
			}
		}
	}
}
