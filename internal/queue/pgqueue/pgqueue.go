// Package pgqueue implements queue.Queue on Postgres. Claims use
// FOR UPDATE SKIP LOCKED so horizontally-scaled consumers never contend on
// the same message, visibility is an invisible_until column, and messages
// past the max-receive ceiling move to a dead-letter table on receive.
package pgqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"thirdcoast.systems/reelfeed/internal/queue"
)

const notifyChannel = "reelfeed_jobs"

type Queue struct {
	pool        *pgxpool.Pool
	dsn         string
	visibility  time.Duration
	maxReceives int
	wake        chan struct{}
}

type Config struct {
	Visibility  time.Duration // default 60s
	MaxReceives int           // default 3
}

// New returns a queue over pool. dsn is used for the dedicated LISTEN
// connection; pass the same DSN the pool was opened with.
func New(pool *pgxpool.Pool, dsn string, cfg Config) *Queue {
	if cfg.Visibility <= 0 {
		cfg.Visibility = 60 * time.Second
	}
	if cfg.MaxReceives <= 0 {
		cfg.MaxReceives = 3
	}
	return &Queue{
		pool:        pool,
		dsn:         dsn,
		visibility:  cfg.Visibility,
		maxReceives: cfg.MaxReceives,
		wake:        make(chan struct{}, 1),
	}
}

func (q *Queue) Send(ctx context.Context, body []byte) error {
	_, err := q.pool.Exec(ctx,
		`INSERT INTO queue_messages (id, body) VALUES ($1, $2)`,
		pgUUID(uuid.New()), body,
	)
	if err != nil {
		return fmt.Errorf("enqueue message: %w", err)
	}
	// NOTIFY reaches consumers in other processes; the local channel skips
	// the round trip for consumers sharing this one.
	_, _ = q.pool.Exec(ctx, `SELECT pg_notify($1, '')`, notifyChannel)
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

func (q *Queue) Receive(ctx context.Context, max int) ([]queue.Message, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin receive: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, body, receive_count
		FROM queue_messages
		WHERE invisible_until <= now()
		ORDER BY enqueued_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, max)
	if err != nil {
		return nil, fmt.Errorf("claim messages: %w", err)
	}

	type claimed struct {
		id           pgtype.UUID
		body         []byte
		receiveCount int
	}
	var all []claimed
	for rows.Next() {
		var c claimed
		if err := rows.Scan(&c.id, &c.body, &c.receiveCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan message: %w", err)
		}
		all = append(all, c)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	var out []queue.Message
	for _, c := range all {
		if c.receiveCount >= q.maxReceives {
			// Retry budget exhausted: redrive to the dead-letter table.
			if _, err := tx.Exec(ctx, `
				WITH moved AS (
					DELETE FROM queue_messages WHERE id = $1 RETURNING id, body, receive_count, enqueued_at
				)
				INSERT INTO queue_dead_letters (id, body, receive_count, enqueued_at)
				SELECT id, body, receive_count, enqueued_at FROM moved`, c.id); err != nil {
				return nil, fmt.Errorf("dead-letter message: %w", err)
			}
			slog.Warn("message moved to dead-letter queue", "message_id", uuidString(c.id), "receive_count", c.receiveCount)
			continue
		}
		if _, err := tx.Exec(ctx, `
			UPDATE queue_messages
			SET receive_count = receive_count + 1,
			    invisible_until = now() + make_interval(secs => $2)
			WHERE id = $1`, c.id, q.visibility.Seconds()); err != nil {
			return nil, fmt.Errorf("mark message invisible: %w", err)
		}
		out = append(out, queue.Message{
			ID:           uuid.UUID(c.id.Bytes),
			Body:         c.body,
			ReceiveCount: c.receiveCount + 1,
		})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit receive: %w", err)
	}
	return out, nil
}

func (q *Queue) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := q.pool.Exec(ctx, `DELETE FROM queue_messages WHERE id = $1`, pgUUID(id))
	if err != nil {
		return fmt.Errorf("ack message: %w", err)
	}
	return nil
}

func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

func (q *Queue) ReceiveDeadLetters(ctx context.Context, max int) ([]queue.Message, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT id, body, receive_count
		FROM queue_dead_letters
		ORDER BY enqueued_at
		LIMIT $1`, max)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []queue.Message
	for rows.Next() {
		var id pgtype.UUID
		var body []byte
		var rc int
		if err := rows.Scan(&id, &body, &rc); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		out = append(out, queue.Message{ID: uuid.UUID(id.Bytes), Body: body, ReceiveCount: rc})
	}
	return out, rows.Err()
}

func (q *Queue) DeleteDeadLetter(ctx context.Context, id uuid.UUID) error {
	_, err := q.pool.Exec(ctx, `DELETE FROM queue_dead_letters WHERE id = $1`, pgUUID(id))
	if err != nil {
		return fmt.Errorf("delete dead letter: %w", err)
	}
	return nil
}

// Listen holds a dedicated connection on the notify channel and forwards
// notifications to Wake. Runs until ctx is cancelled, reconnecting on error.
func (q *Queue) Listen(ctx context.Context) {
	for ctx.Err() == nil {
		if err := q.listenOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Error("queue listener disconnected, retrying", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}
}

func (q *Queue) listenOnce(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, q.dsn)
	if err != nil {
		return fmt.Errorf("listen connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, `LISTEN `+notifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	for {
		if _, err := conn.WaitForNotification(ctx); err != nil {
			return err
		}
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func uuidString(id pgtype.UUID) string {
	return uuid.UUID(id.Bytes).String()
}
