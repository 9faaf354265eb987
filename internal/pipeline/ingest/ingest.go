// Package ingest turns storage "object created" events into queued transcode
// work. Events arrive at least once; the handler is idempotent end to end:
// the video ID is derived deterministically from the object key, the insert
// is an upsert, and the enqueue is guarded by the uploaded→queued CAS.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"thirdcoast.systems/reelfeed/internal/pipeline/faults"
	"thirdcoast.systems/reelfeed/internal/queue"
	"thirdcoast.systems/reelfeed/internal/video"
	"thirdcoast.systems/reelfeed/internal/videokey"
)

const EventObjectCreated = "ObjectCreated"

// StorageEvent is the notification emitted by object storage for new uploads.
type StorageEvent struct {
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	EventType string `json:"event_type"`
}

type Handler struct {
	store video.Store
	q     queue.Queue
	keys  *videokey.Scheme
}

func NewHandler(store video.Store, q queue.Queue, keys *videokey.Scheme) *Handler {
	return &Handler{store: store, q: q, keys: keys}
}

// HandleEvent validates the event, upserts the video record and enqueues
// exactly one transcode request per logical upload.
func (h *Handler) HandleEvent(ctx context.Context, ev StorageEvent) error {
	if ev.EventType != EventObjectCreated {
		return faults.Validationf("unexpected event type %q", ev.EventType)
	}
	if ev.Bucket != h.keys.Bucket {
		return faults.Validationf("event for unexpected bucket %q", ev.Bucket)
	}
	if err := h.keys.ValidateUploadKey(ev.Key); err != nil {
		return faults.New(faults.KindValidation, err)
	}

	id := h.keys.VideoUUID(ev.Key)

	created, err := h.store.InsertIfAbsent(ctx, video.Video{
		ID:        id,
		Status:    video.StatusUploaded,
		SourceKey: ev.Key,
	})
	if err != nil {
		return err
	}
	if !created {
		// The record exists. Only re-enqueue when a previous handler crashed
		// between insert and enqueue, i.e. the video is still uploaded.
		current, err := h.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != video.StatusUploaded {
			slog.Debug("duplicate storage event ignored", "video_id", id, "status", current.Status)
			return nil
		}
	}

	req := queue.TranscodeRequest{
		VideoID:    id,
		SourceKey:  ev.Key,
		EnqueuedAt: time.Now().UTC(),
	}
	body, err := req.Encode()
	if err != nil {
		return err
	}
	if err := h.q.Send(ctx, body); err != nil {
		return err
	}

	// Losing this CAS means a concurrent handler already advanced the video;
	// its enqueue won and the orchestrator's duplicate guard absorbs ours.
	if _, err := h.store.TransitionStatus(ctx, id, []video.Status{video.StatusUploaded}, video.StatusQueued); err != nil {
		return err
	}

	slog.Info("upload ingested", "video_id", id, "key", ev.Key)
	return nil
}
