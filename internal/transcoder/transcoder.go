// Package transcoder defines the contract with the external transcoding
// engine. The engine is a black box: the pipeline submits a job and later
// receives a completion signal, either pushed to it or pulled via Poll.
package transcoder

import (
	"context"

	"thirdcoast.systems/reelfeed/internal/video"
)

type SignalStatus string

const (
	StatusComplete SignalStatus = "COMPLETE"
	StatusError    SignalStatus = "ERROR"
)

// SubmitRequest describes one transcode job covering the full rendition
// ladder plus a poster frame.
type SubmitRequest struct {
	SourceURI    string                `json:"source_uri"`
	OutputPrefix string                `json:"output_prefix"`
	Renditions   []video.RenditionSpec `json:"renditions"`
	Thumbnail    ThumbnailSpec         `json:"thumbnail_spec"`
}

type ThumbnailSpec struct {
	Key       string  `json:"key"`
	AtSeconds float64 `json:"at_seconds"`
}

// Output is one produced rendition as reported by the engine. The completion
// handler verifies every output actually exists before trusting it.
type Output struct {
	Tier        video.Tier `json:"tier"`
	ManifestKey string     `json:"manifest_key"`
}

type CompletionSignal struct {
	JobRef          string       `json:"external_job_ref"`
	Status          SignalStatus `json:"status"`
	Outputs         []Output     `json:"outputs,omitempty"`
	DurationSeconds float64      `json:"duration_seconds,omitempty"`
	ErrorMessage    string       `json:"error_message,omitempty"`
}

type Engine interface {
	// Submit starts a job and returns the engine's job reference.
	Submit(ctx context.Context, req SubmitRequest) (string, error)

	// Poll reports the terminal state of a job, or (nil, nil) while it is
	// still running.
	Poll(ctx context.Context, jobRef string) (*CompletionSignal, error)
}
