// Package completion reconciles transcoding-engine terminal signals against
// the expected outputs and settles the video's final state. The engine's
// optimistic "complete" is never trusted: every rendition manifest and the
// thumbnail must exist in object storage before the video flips to ready.
//
// A signal may arrive via push (webhook) or the poll loop; both funnel into
// Handler.Handle, which is idempotent: a signal whose job ref no longer
// matches the video's recorded one is discarded.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"thirdcoast.systems/reelfeed/internal/objectstore"
	"thirdcoast.systems/reelfeed/internal/pipeline/faults"
	"thirdcoast.systems/reelfeed/internal/pipeline/orchestrator"
	"thirdcoast.systems/reelfeed/internal/queue"
	"thirdcoast.systems/reelfeed/internal/transcoder"
	"thirdcoast.systems/reelfeed/internal/video"
	"thirdcoast.systems/reelfeed/internal/videokey"
)

// Notifier is the external event sink (analytics, alerting, feed cache
// invalidation) the pipeline reports terminal outcomes to.
type Notifier interface {
	VideoReady(ctx context.Context, id uuid.UUID)
	VideoFailed(ctx context.Context, id uuid.UUID, reason string)
}

// NopNotifier discards events.
type NopNotifier struct{}

func (NopNotifier) VideoReady(ctx context.Context, id uuid.UUID)                  {}
func (NopNotifier) VideoFailed(ctx context.Context, id uuid.UUID, reason string) {}

// LogNotifier reports outcomes to the process log; the default sink when no
// external collaborator is wired.
type LogNotifier struct{}

func (LogNotifier) VideoReady(ctx context.Context, id uuid.UUID) {
	slog.Info("video ready", "video_id", id)
}

func (LogNotifier) VideoFailed(ctx context.Context, id uuid.UUID, reason string) {
	slog.Warn("video failed", "video_id", id, "reason", reason)
}

type Handler struct {
	store       video.Store
	q           queue.Queue
	objects     objectstore.Store
	keys        *videokey.Scheme
	notifier    Notifier
	maxAttempts int
}

func NewHandler(store video.Store, q queue.Queue, objects objectstore.Store, keys *videokey.Scheme, notifier Notifier, maxAttempts int) *Handler {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Handler{store: store, q: q, objects: objects, keys: keys, notifier: notifier, maxAttempts: maxAttempts}
}

// Handle settles one terminal signal.
func (h *Handler) Handle(ctx context.Context, sig transcoder.CompletionSignal) error {
	if sig.JobRef == "" {
		return faults.Validationf("completion signal without job ref")
	}

	v, err := h.store.GetByJobRef(ctx, sig.JobRef)
	if err != nil {
		if errors.Is(err, video.ErrNotFound) {
			// The job was retired (retried or swept) before this signal
			// arrived; nothing references it anymore.
			slog.Debug("completion for unknown job ref discarded", "job_ref", sig.JobRef)
			return nil
		}
		return err
	}
	if v.Status != video.StatusTranscoding {
		slog.Debug("completion for settled video discarded", "video_id", v.ID, "status", v.Status, "job_ref", sig.JobRef)
		return nil
	}

	switch sig.Status {
	case transcoder.StatusComplete:
		return h.handleComplete(ctx, v, sig)
	case transcoder.StatusError:
		reason := sig.ErrorMessage
		if reason == "" {
			reason = "transcoding engine reported an error"
		}
		return h.handleError(ctx, v, reason)
	default:
		return faults.Validationf("unexpected completion status %q", sig.Status)
	}
}

func (h *Handler) handleComplete(ctx context.Context, v *video.Video, sig transcoder.CompletionSignal) error {
	renditions, err := h.verifyOutputs(ctx, v, sig)
	if err != nil {
		if faults.KindOf(err) == faults.KindTerminal {
			// Engine claimed success but the outputs are not all there.
			slog.Error("completion verification failed", "video_id", v.ID, "job_ref", sig.JobRef, "error", err)
			return h.handleError(ctx, v, err.Error())
		}
		return err
	}

	flipped, err := h.store.FinishReady(ctx, video.FinishReadyParams{
		ID:              v.ID,
		JobRef:          sig.JobRef,
		Renditions:      renditions,
		DurationSeconds: sig.DurationSeconds,
		ThumbnailKey:    h.keys.ThumbnailKey(v.ID),
	})
	if err != nil {
		return err
	}
	if !flipped {
		slog.Debug("ready flip lost to a newer job", "video_id", v.ID, "job_ref", sig.JobRef)
		return nil
	}

	slog.Info("video transcoded", "video_id", v.ID, "renditions", len(renditions), "duration_s", sig.DurationSeconds)
	h.notifier.VideoReady(ctx, v.ID)
	return nil
}

// verifyOutputs checks that every requested rendition's manifest and the
// thumbnail exist. Missing objects are terminal; storage errors are transient.
func (h *Handler) verifyOutputs(ctx context.Context, v *video.Video, sig transcoder.CompletionSignal) ([]video.Rendition, error) {
	byTier := make(map[video.Tier]transcoder.Output, len(sig.Outputs))
	for _, out := range sig.Outputs {
		byTier[out.Tier] = out
	}

	// Verification runs against the ladder recorded at submission; rows
	// written before a ladder was recorded fall back to the default.
	expected := v.Requested
	if len(expected) == 0 {
		expected = orchestrator.DefaultLadder()
	}

	var renditions []video.Rendition
	for _, spec := range expected {
		out, ok := byTier[spec.Tier]
		if !ok {
			return nil, faults.Terminalf("engine reported no output for tier %s", spec.Tier)
		}
		manifestKey := out.ManifestKey
		if manifestKey == "" {
			manifestKey = h.keys.RenditionManifestKey(v.ID, string(spec.Tier))
		}
		if _, exists, err := h.objects.Head(ctx, manifestKey); err != nil {
			return nil, faults.Transientf("verify %s: %v", manifestKey, err)
		} else if !exists {
			return nil, faults.Terminalf("rendition manifest missing at %s", manifestKey)
		}
		renditions = append(renditions, video.Rendition{RenditionSpec: spec, ManifestKey: manifestKey})
	}

	thumbKey := h.keys.ThumbnailKey(v.ID)
	if _, exists, err := h.objects.Head(ctx, thumbKey); err != nil {
		return nil, faults.Transientf("verify %s: %v", thumbKey, err)
	} else if !exists {
		return nil, faults.Terminalf("thumbnail missing at %s", thumbKey)
	}
	return renditions, nil
}

// handleError either re-enqueues a fresh transcode request (returning control
// to the orchestrator with the attempt count visible on the video) or, with
// the budget exhausted, settles the video as failed.
func (h *Handler) handleError(ctx context.Context, v *video.Video, reason string) error {
	if v.Attempts < h.maxAttempts {
		req := queue.TranscodeRequest{
			VideoID:    v.ID,
			SourceKey:  v.SourceKey,
			Renditions: v.Requested,
			EnqueuedAt: time.Now().UTC(),
		}
		body, err := req.Encode()
		if err != nil {
			return err
		}
		// CAS back to queued before sending so a duplicate error signal
		// cannot double-enqueue.
		moved, err := h.store.TransitionStatus(ctx, v.ID, []video.Status{video.StatusTranscoding}, video.StatusQueued)
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}
		if err := h.q.Send(ctx, body); err != nil {
			return fmt.Errorf("re-enqueue after engine error: %w", err)
		}
		slog.Warn("transcode failed, retrying", "video_id", v.ID, "attempt", v.Attempts, "max_attempts", h.maxAttempts, "reason", reason)
		return nil
	}

	if err := h.store.FinishFailed(ctx, v.ID, reason); err != nil {
		return err
	}
	h.notifier.VideoFailed(ctx, v.ID, reason)
	return nil
}
