package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"thirdcoast.systems/reelfeed/internal/video"
)

// Videos adapts the query layer to video.Store. FinishReady is the one
// operation that needs a transaction (status flip + rendition writes must be
// atomic); everything else delegates to a single statement.
type Videos struct {
	dbc *DatabaseConnection
}

var _ video.Store = (*Videos)(nil)

func NewVideos(dbc *DatabaseConnection) *Videos {
	return &Videos{dbc: dbc}
}

func (s *Videos) InsertIfAbsent(ctx context.Context, v video.Video) (bool, error) {
	return s.dbc.Queries(ctx).InsertVideoIfAbsent(ctx, v)
}

func (s *Videos) Get(ctx context.Context, id uuid.UUID) (*video.Video, error) {
	return s.dbc.Queries(ctx).GetVideo(ctx, id)
}

func (s *Videos) GetByJobRef(ctx context.Context, jobRef string) (*video.Video, error) {
	return s.dbc.Queries(ctx).GetVideoByJobRef(ctx, jobRef)
}

func (s *Videos) TransitionStatus(ctx context.Context, id uuid.UUID, from []video.Status, to video.Status) (bool, error) {
	return s.dbc.Queries(ctx).TransitionVideoStatus(ctx, TransitionVideoStatusParams{
		ID:   id,
		From: from,
		To:   to,
	})
}

func (s *Videos) RecordSubmission(ctx context.Context, id uuid.UUID, jobRef string, ladder []video.RenditionSpec) (bool, error) {
	return s.dbc.Queries(ctx).RecordVideoSubmission(ctx, RecordVideoSubmissionParams{
		ID:     id,
		JobRef: jobRef,
		Ladder: ladder,
	})
}

func (s *Videos) FinishReady(ctx context.Context, p video.FinishReadyParams) (bool, error) {
	q, tx, err := s.dbc.NewWithTX(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	ok, err := q.markVideoReady(ctx, p)
	if err != nil {
		return false, err
	}
	if !ok {
		// Job ref mismatch or the video already left transcoding; a late
		// completion for a retired job lands here and is discarded.
		return false, nil
	}

	if err := q.deleteVideoRenditions(ctx, p.ID); err != nil {
		return false, fmt.Errorf("clear renditions: %w", err)
	}
	for i, r := range p.Renditions {
		if err := q.insertVideoRendition(ctx, p.ID, i, r); err != nil {
			return false, fmt.Errorf("write rendition %s: %w", r.Tier, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit ready flip: %w", err)
	}
	return true, nil
}

func (s *Videos) FinishFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return s.dbc.Queries(ctx).FinishVideoFailed(ctx, id, reason)
}

func (s *Videos) ListReadyPage(ctx context.Context, before time.Time, beforeID uuid.UUID, limit int) ([]video.Video, error) {
	return s.dbc.Queries(ctx).ListReadyVideosPage(ctx, ListReadyVideosPageParams{
		Before:   before,
		BeforeID: beforeID,
		Limit:    limit,
	})
}

func (s *Videos) ListStuckTranscoding(ctx context.Context, since time.Time) ([]video.Video, error) {
	return s.dbc.Queries(ctx).ListStuckTranscoding(ctx, since)
}
