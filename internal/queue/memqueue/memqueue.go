// Package memqueue is an in-memory queue.Queue with the same redelivery
// semantics as the Postgres-backed queue: visibility timeout, receive count
// and dead-letter redrive. It backs tests and single-process local runs.
package memqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"thirdcoast.systems/reelfeed/internal/queue"
)

type message struct {
	id             uuid.UUID
	body           []byte
	receiveCount   int
	invisibleUntil time.Time
}

type Queue struct {
	mu          sync.Mutex
	messages    []*message
	deadLetters []*message

	visibility  time.Duration
	maxReceives int
	wake        chan struct{}
	now         func() time.Time
}

type Config struct {
	Visibility  time.Duration // default 60s
	MaxReceives int           // default 3
}

func New(cfg Config) *Queue {
	if cfg.Visibility <= 0 {
		cfg.Visibility = 60 * time.Second
	}
	if cfg.MaxReceives <= 0 {
		cfg.MaxReceives = 3
	}
	return &Queue{
		visibility:  cfg.Visibility,
		maxReceives: cfg.MaxReceives,
		wake:        make(chan struct{}, 1),
		now:         time.Now,
	}
}

// SetNow overrides the clock so tests can expire visibility deterministically.
func (q *Queue) SetNow(fn func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = fn
}

func (q *Queue) Send(ctx context.Context, body []byte) error {
	q.mu.Lock()
	q.messages = append(q.messages, &message{
		id:   uuid.New(),
		body: append([]byte(nil), body...),
	})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

func (q *Queue) Receive(ctx context.Context, max int) ([]queue.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var out []queue.Message
	kept := q.messages[:0]
	for _, m := range q.messages {
		if len(out) >= max || now.Before(m.invisibleUntil) {
			kept = append(kept, m)
			continue
		}
		if m.receiveCount >= q.maxReceives {
			// Retry budget exhausted: redrive instead of redelivering.
			q.deadLetters = append(q.deadLetters, m)
			continue
		}
		m.receiveCount++
		m.invisibleUntil = now.Add(q.visibility)
		out = append(out, queue.Message{
			ID:           m.id,
			Body:         append([]byte(nil), m.body...),
			ReceiveCount: m.receiveCount,
		})
		kept = append(kept, m)
	}
	q.messages = kept
	return out, nil
}

func (q *Queue) Delete(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.messages {
		if m.id == id {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

func (q *Queue) ReceiveDeadLetters(ctx context.Context, max int) ([]queue.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []queue.Message
	for _, m := range q.deadLetters {
		if len(out) >= max {
			break
		}
		out = append(out, queue.Message{
			ID:           m.id,
			Body:         append([]byte(nil), m.body...),
			ReceiveCount: m.receiveCount,
		})
	}
	return out, nil
}

func (q *Queue) DeleteDeadLetter(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.deadLetters {
		if m.id == id {
			q.deadLetters = append(q.deadLetters[:i], q.deadLetters[i+1:]...)
			return nil
		}
	}
	return nil
}

// Depth reports queued (non-dead-letter) messages; used by tests.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}
