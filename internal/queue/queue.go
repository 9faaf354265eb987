// Package queue defines the at-least-once job queue the ingest handler feeds
// and the transcode orchestrator consumes. Implementations provide visibility
// timeouts, receive counting and dead-letter redrive; consumers stay correct
// under redelivery by being idempotent, not by trusting the queue.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"thirdcoast.systems/reelfeed/internal/video"
)

// Message is one delivery of a queued payload. ReceiveCount counts deliveries
// including this one; the orchestrator derives its attempt ceiling from it
// rather than storing a counter client-side.
type Message struct {
	ID           uuid.UUID
	Body         []byte
	ReceiveCount int
}

type Queue interface {
	Send(ctx context.Context, body []byte) error

	// Receive returns up to max messages, making each invisible to other
	// consumers for the implementation's visibility timeout. A message that
	// is not deleted before the timeout expires is redelivered with an
	// incremented receive count; past the max-receive ceiling it moves to
	// the dead-letter store instead.
	Receive(ctx context.Context, max int) ([]Message, error)

	// Delete acknowledges a message. Deleting an already-redelivered message
	// is a no-op.
	Delete(ctx context.Context, id uuid.UUID) error

	// Wake signals that a send may have made work available, so consumers
	// can poll immediately instead of waiting out their idle tick.
	Wake() <-chan struct{}

	// ReceiveDeadLetters returns messages that exhausted their retry budget.
	ReceiveDeadLetters(ctx context.Context, max int) ([]Message, error)
	DeleteDeadLetter(ctx context.Context, id uuid.UUID) error
}

// TranscodeRequest is the job payload produced by ingest (and by the
// completion handler on retry) and consumed by the orchestrator.
type TranscodeRequest struct {
	VideoID    uuid.UUID             `json:"video_id"`
	SourceKey  string                `json:"s3_key"`
	Renditions []video.RenditionSpec `json:"requested_renditions,omitempty"`
	EnqueuedAt time.Time             `json:"enqueued_at"`
}

func (r TranscodeRequest) Encode() ([]byte, error) {
	return json.Marshal(r)
}

func DecodeTranscodeRequest(body []byte) (TranscodeRequest, error) {
	var r TranscodeRequest
	if err := json.Unmarshal(body, &r); err != nil {
		return r, fmt.Errorf("decode transcode request: %w", err)
	}
	if r.VideoID == uuid.Nil {
		return r, fmt.Errorf("transcode request missing video_id")
	}
	return r, nil
}
