package completion

import (
	"context"
	"log/slog"
	"time"

	"thirdcoast.systems/reelfeed/internal/transcoder"
)

// Sweep fails over videos that have sat in transcoding longer than maxAge
// without a completion signal. They take the same path as an engine error,
// so the retry budget and dead-letter accounting stay uniform.
func (h *Handler) Sweep(ctx context.Context, maxAge time.Duration) error {
	stuck, err := h.store.ListStuckTranscoding(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return err
	}
	for i := range stuck {
		v := &stuck[i]
		slog.Warn("transcode exceeded processing deadline", "video_id", v.ID, "job_ref", v.ExternalJobRef, "age", time.Since(v.UpdatedAt))
		if err := h.handleError(ctx, v, "transcode timed out"); err != nil {
			return err
		}
	}
	return nil
}

// RunSweep runs Sweep on an interval until ctx is cancelled.
func (h *Handler) RunSweep(ctx context.Context, interval, maxAge time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := h.Sweep(ctx, maxAge); err != nil {
				slog.Error("timeout sweep failed", "error", err)
			}
		}
	}
}

// Poller drives Engine.Poll for in-flight jobs, turning pull-style engines
// into the same completion signals a push subscription would deliver.
type Poller struct {
	handler  *Handler
	engine   transcoder.Engine
	interval time.Duration
}

func NewPoller(handler *Handler, engine transcoder.Engine, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Poller{handler: handler, engine: engine, interval: interval}
}

func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.pollOnce(ctx); err != nil {
				slog.Error("completion poll failed", "error", err)
			}
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) error {
	// Every transcoding video has updated_at in the past, so "stuck since
	// now" enumerates the in-flight set.
	inflight, err := p.handler.store.ListStuckTranscoding(ctx, time.Now())
	if err != nil {
		return err
	}
	for i := range inflight {
		v := &inflight[i]
		if v.ExternalJobRef == "" {
			continue
		}
		sig, err := p.engine.Poll(ctx, v.ExternalJobRef)
		if err != nil {
			slog.Warn("job poll failed", "video_id", v.ID, "job_ref", v.ExternalJobRef, "error", err)
			continue
		}
		if sig == nil {
			continue
		}
		if err := p.handler.Handle(ctx, *sig); err != nil {
			slog.Error("completion handling failed", "video_id", v.ID, "job_ref", v.ExternalJobRef, "error", err)
		}
	}
	return nil
}
