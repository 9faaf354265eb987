package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"thirdcoast.systems/reelfeed/internal/video"
)

const selectVideoColumns = `
	id, status, source_key, external_job_ref, requested_renditions, attempts,
	duration_seconds, thumbnail_key, failure_reason, created_at, updated_at`

func scanVideo(row pgx.Row) (*video.Video, error) {
	var v video.Video
	var id pgtype.UUID
	var requested []byte
	var createdAt, updatedAt pgtype.Timestamptz
	err := row.Scan(
		&id, &v.Status, &v.SourceKey, &v.ExternalJobRef, &requested, &v.Attempts,
		&v.DurationSeconds, &v.ThumbnailKey, &v.FailureReason, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, video.ErrNotFound
		}
		return nil, fmt.Errorf("scan video: %w", err)
	}
	v.ID = uuid.UUID(id.Bytes)
	if len(requested) > 0 {
		if err := json.Unmarshal(requested, &v.Requested); err != nil {
			return nil, fmt.Errorf("decode requested renditions: %w", err)
		}
	}
	v.CreatedAt = createdAt.Time
	v.UpdatedAt = updatedAt.Time
	return &v, nil
}

// InsertVideoIfAbsent creates the video record unless one already exists.
// Returns false for the duplicate case so callers can treat redelivered
// storage events as a no-op.
func (q *Queries) InsertVideoIfAbsent(ctx context.Context, v video.Video) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		INSERT INTO videos (id, status, source_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`,
		pgUUID(v.ID), string(v.Status), v.SourceKey,
	)
	if err != nil {
		return false, fmt.Errorf("insert video: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (q *Queries) GetVideo(ctx context.Context, id uuid.UUID) (*video.Video, error) {
	v, err := scanVideo(q.db.QueryRow(ctx,
		`SELECT `+selectVideoColumns+` FROM videos WHERE id = $1`, pgUUID(id)))
	if err != nil {
		return nil, err
	}
	v.Renditions, err = q.listVideoRenditions(ctx, id)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (q *Queries) GetVideoByJobRef(ctx context.Context, jobRef string) (*video.Video, error) {
	v, err := scanVideo(q.db.QueryRow(ctx,
		`SELECT `+selectVideoColumns+` FROM videos WHERE external_job_ref = $1`, jobRef))
	if err != nil {
		return nil, err
	}
	v.Renditions, err = q.listVideoRenditions(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	return v, nil
}

type TransitionVideoStatusParams struct {
	ID   uuid.UUID
	From []video.Status
	To   video.Status
}

// TransitionVideoStatus is the single compare-and-set every status change
// goes through. Returns false when the current status matched none of the
// expected ones.
func (q *Queries) TransitionVideoStatus(ctx context.Context, p TransitionVideoStatusParams) (bool, error) {
	from := make([]string, len(p.From))
	for i, s := range p.From {
		from[i] = string(s)
	}
	tag, err := q.db.Exec(ctx, `
		UPDATE videos
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3)`,
		pgUUID(p.ID), string(p.To), from,
	)
	if err != nil {
		return false, fmt.Errorf("transition video status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

type RecordVideoSubmissionParams struct {
	ID     uuid.UUID
	JobRef string
	Ladder []video.RenditionSpec
}

// RecordVideoSubmission flips a queued video to transcoding, stores the
// engine job ref and the submitted ladder, and bumps the attempt counter,
// all in one CAS.
func (q *Queries) RecordVideoSubmission(ctx context.Context, p RecordVideoSubmissionParams) (bool, error) {
	ladder, err := json.Marshal(p.Ladder)
	if err != nil {
		return false, fmt.Errorf("encode requested renditions: %w", err)
	}
	tag, err := q.db.Exec(ctx, `
		UPDATE videos
		SET status = $2, external_job_ref = $3, requested_renditions = $4,
		    attempts = attempts + 1, updated_at = now()
		WHERE id = $1 AND status = $5`,
		pgUUID(p.ID), string(video.StatusTranscoding), p.JobRef, ladder, string(video.StatusQueued),
	)
	if err != nil {
		return false, fmt.Errorf("record submission: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FinishVideoFailed marks a video permanently failed. Ready videos are left
// alone; a straggling failure signal for a finished video is stale.
func (q *Queries) FinishVideoFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE videos
		SET status = $2, failure_reason = $3, updated_at = now()
		WHERE id = $1 AND status <> $4`,
		pgUUID(id), string(video.StatusFailed), reason, string(video.StatusReady),
	)
	if err != nil {
		return fmt.Errorf("mark video failed: %w", err)
	}
	return nil
}

type ListReadyVideosPageParams struct {
	Before   time.Time
	BeforeID uuid.UUID
	Limit    int
}

// ListReadyVideosPage returns the page of ready videos strictly after the
// cursor in (created_at DESC, id DESC) order. A zero Before means the first
// page.
func (q *Queries) ListReadyVideosPage(ctx context.Context, p ListReadyVideosPageParams) ([]video.Video, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+selectVideoColumns+`
		FROM videos
		WHERE status = $1
		  AND ($2::timestamptz IS NULL OR (created_at, id) < ($2, $3))
		ORDER BY created_at DESC, id DESC
		LIMIT $4`,
		string(video.StatusReady), pgTime(p.Before), pgUUID(p.BeforeID), p.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list ready videos: %w", err)
	}
	defer rows.Close()

	var out []video.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	for i := range out {
		out[i].Renditions, err = q.listVideoRenditions(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ListStuckTranscoding returns videos stuck in transcoding since before the
// given instant; input to the completion timeout sweep.
func (q *Queries) ListStuckTranscoding(ctx context.Context, since time.Time) ([]video.Video, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+selectVideoColumns+`
		FROM videos
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at`,
		string(video.StatusTranscoding), pgTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("list stuck videos: %w", err)
	}
	defer rows.Close()

	var out []video.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (q *Queries) listVideoRenditions(ctx context.Context, id uuid.UUID) ([]video.Rendition, error) {
	rows, err := q.db.Query(ctx, `
		SELECT tier, width, height, bitrate_kbps, manifest_key
		FROM video_renditions
		WHERE video_id = $1
		ORDER BY position`, pgUUID(id))
	if err != nil {
		return nil, fmt.Errorf("list renditions: %w", err)
	}
	defer rows.Close()

	var out []video.Rendition
	for rows.Next() {
		var r video.Rendition
		if err := rows.Scan(&r.Tier, &r.Width, &r.Height, &r.BitrateKbps, &r.ManifestKey); err != nil {
			return nil, fmt.Errorf("scan rendition: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// markVideoReady and the rendition writes below run inside FinishReady's
// transaction; see Videos.FinishReady.
func (q *Queries) markVideoReady(ctx context.Context, p video.FinishReadyParams) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE videos
		SET status = $2, duration_seconds = $3, thumbnail_key = $4, updated_at = now()
		WHERE id = $1 AND status = $5 AND external_job_ref = $6`,
		pgUUID(p.ID), string(video.StatusReady), p.DurationSeconds, p.ThumbnailKey,
		string(video.StatusTranscoding), p.JobRef,
	)
	if err != nil {
		return false, fmt.Errorf("mark video ready: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (q *Queries) deleteVideoRenditions(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM video_renditions WHERE video_id = $1`, pgUUID(id))
	return err
}

func (q *Queries) insertVideoRendition(ctx context.Context, id uuid.UUID, position int, r video.Rendition) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO video_renditions (video_id, tier, width, height, bitrate_kbps, manifest_key, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		pgUUID(id), string(r.Tier), r.Width, r.Height, r.BitrateKbps, r.ManifestKey, position,
	)
	return err
}
