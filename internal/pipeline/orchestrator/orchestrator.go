// Package orchestrator consumes transcode requests from the job queue,
// submits them to the external engine and tracks submission state on the
// video record. The queue delivers at least once, so processing is guarded
// by the video's status CAS rather than any lock: a redelivered message for
// an already-submitted video is acknowledged and dropped.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"thirdcoast.systems/reelfeed/internal/objectstore"
	"thirdcoast.systems/reelfeed/internal/pipeline/faults"
	"thirdcoast.systems/reelfeed/internal/queue"
	"thirdcoast.systems/reelfeed/internal/transcoder"
	"thirdcoast.systems/reelfeed/internal/video"
	"thirdcoast.systems/reelfeed/internal/videokey"
)

type Orchestrator struct {
	store   video.Store
	q       queue.Queue
	engine  transcoder.Engine
	objects objectstore.Store
	keys    *videokey.Scheme
}

func New(store video.Store, q queue.Queue, engine transcoder.Engine, objects objectstore.Store, keys *videokey.Scheme) *Orchestrator {
	return &Orchestrator{store: store, q: q, engine: engine, objects: objects, keys: keys}
}

// Run consumes the queue until ctx is cancelled. Messages the queue has
// redelivered past its ceiling never arrive here; they surface through
// DrainDeadLetters instead.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		msgs, err := o.q.Receive(ctx, 1)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("queue receive failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(2 * time.Second):
			}
			continue
		}

		for _, msg := range msgs {
			if err := o.Process(ctx, msg); err != nil {
				kind := faults.KindOf(err)
				if !faults.Classified(err) {
					slog.Error("unclassified orchestrator error, treating as transient", "message_id", msg.ID, "error", err)
				} else {
					slog.Warn("transcode submission not completed", "message_id", msg.ID, "kind", kind.String(), "receive_count", msg.ReceiveCount, "error", err)
				}
				// Retryable errors are NOT acked: the visibility timeout
				// expires and the queue redelivers. Requeueing by hand here
				// would race the redelivery and double-submit.
				if !kind.Retryable() {
					_ = o.q.Delete(ctx, msg.ID)
				}
			}
		}

		if len(msgs) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-o.q.Wake():
		case <-time.After(5 * time.Second):
		}
	}
}

// Process handles one delivery. The message is acknowledged only after the
// engine accepted the submission.
func (o *Orchestrator) Process(ctx context.Context, msg queue.Message) error {
	req, err := queue.DecodeTranscodeRequest(msg.Body)
	if err != nil {
		return faults.New(faults.KindValidation, err)
	}

	v, err := o.store.Get(ctx, req.VideoID)
	if err != nil {
		if errors.Is(err, video.ErrNotFound) {
			return faults.Validationf("transcode request for unknown video %s", req.VideoID)
		}
		return err
	}

	// Duplicate guard, keyed on the video's own status: anything past queued
	// means a previous delivery already submitted (or finished) this video.
	if v.Status != video.StatusQueued && v.Status != video.StatusUploaded {
		slog.Debug("duplicate transcode request ignored", "video_id", v.ID, "status", v.Status)
		return o.q.Delete(ctx, msg.ID)
	}
	if v.Status == video.StatusUploaded {
		// Ingest crashed between enqueue and CAS; repair and continue.
		if _, err := o.store.TransitionStatus(ctx, v.ID, []video.Status{video.StatusUploaded}, video.StatusQueued); err != nil {
			return err
		}
	}

	ladder := req.Renditions
	if len(ladder) == 0 {
		ladder = DefaultLadder()
	}

	jobRef, err := o.engine.Submit(ctx, transcoder.SubmitRequest{
		SourceURI:    o.objects.SourceURI(req.SourceKey),
		OutputPrefix: o.keys.VideoOutputPrefix(v.ID),
		Renditions:   ladder,
		Thumbnail: transcoder.ThumbnailSpec{
			Key:       o.keys.ThumbnailKey(v.ID),
			AtSeconds: 1,
		},
	})
	if err != nil {
		// Leave the message in flight; redelivery is the retry path.
		return err
	}

	recorded, err := o.store.RecordSubmission(ctx, v.ID, jobRef, ladder)
	if err != nil {
		return err
	}
	if !recorded {
		// Lost the CAS to a concurrent consumer. Our engine job is now an
		// orphan; its completion will be discarded on the job-ref mismatch.
		slog.Warn("submission lost status race, orphaning job", "video_id", v.ID, "job_ref", jobRef)
	} else {
		slog.Info("transcode submitted", "video_id", v.ID, "job_ref", jobRef, "tiers", len(ladder), "receive_count", msg.ReceiveCount)
	}

	return o.q.Delete(ctx, msg.ID)
}

// DrainDeadLetters marks videos whose requests exhausted the queue's retry
// budget as permanently failed.
func (o *Orchestrator) DrainDeadLetters(ctx context.Context) error {
	msgs, err := o.q.ReceiveDeadLetters(ctx, 20)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		req, err := queue.DecodeTranscodeRequest(msg.Body)
		if err != nil {
			slog.Error("undecodable dead letter dropped", "message_id", msg.ID, "error", err)
			_ = o.q.DeleteDeadLetter(ctx, msg.ID)
			continue
		}
		if err := o.store.FinishFailed(ctx, req.VideoID, "transcode retries exhausted"); err != nil && !errors.Is(err, video.ErrNotFound) {
			return err
		}
		slog.Warn("video failed after exhausting retries", "video_id", req.VideoID, "receive_count", msg.ReceiveCount)
		if err := o.q.DeleteDeadLetter(ctx, msg.ID); err != nil {
			return err
		}
	}
	return nil
}

// RunDeadLetterDrain periodically drains the dead-letter queue.
func (o *Orchestrator) RunDeadLetterDrain(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := o.DrainDeadLetters(ctx); err != nil {
				slog.Error("dead letter drain failed", "error", err)
			}
		}
	}
}
