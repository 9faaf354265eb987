package video

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("video not found")

// Store is the persistence surface the pipeline mutates videos through.
// Every write is either idempotent or a compare-and-set keyed on the current
// status (and, for completion, the recorded external job ref), so handlers
// stay correct under at-least-once delivery without any global lock.
type Store interface {
	// InsertIfAbsent creates the video if no record exists for its ID.
	// Returns false when a record was already present.
	InsertIfAbsent(ctx context.Context, v Video) (bool, error)

	Get(ctx context.Context, id uuid.UUID) (*Video, error)
	GetByJobRef(ctx context.Context, jobRef string) (*Video, error)

	// TransitionStatus moves the video from any of the expected statuses to
	// the target status. Returns false when the current status matched none
	// of them (a lost race or duplicate, not an error).
	TransitionStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) (bool, error)

	// RecordSubmission sets status to transcoding, stores the engine job ref
	// and the submitted rendition ladder, and increments the attempt counter.
	// CAS on status queued.
	RecordSubmission(ctx context.Context, id uuid.UUID, jobRef string, ladder []RenditionSpec) (bool, error)

	// FinishReady atomically writes the produced renditions and flips the
	// video to ready, guarded by the recorded job ref so a late completion
	// for a retired job is discarded. Returns false on a ref mismatch.
	FinishReady(ctx context.Context, p FinishReadyParams) (bool, error)

	// FinishFailed marks the video permanently failed with a reason.
	FinishFailed(ctx context.Context, id uuid.UUID, reason string) error

	// ListReadyPage returns ready videos created strictly before the cursor
	// position, newest first, using (created_at, id) as the keyset.
	ListReadyPage(ctx context.Context, before time.Time, beforeID uuid.UUID, limit int) ([]Video, error)

	// ListStuckTranscoding returns videos that have been in transcoding since
	// before the given instant; input to the timeout sweep.
	ListStuckTranscoding(ctx context.Context, since time.Time) ([]Video, error)
}

type FinishReadyParams struct {
	ID              uuid.UUID
	JobRef          string
	Renditions      []Rendition
	DurationSeconds float64
	ThumbnailKey    string
}
