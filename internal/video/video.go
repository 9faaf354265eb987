// Package video holds the core pipeline model: the Video record, its status
// machine, and the store interface the pipeline handlers mutate it through.
package video

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusUploaded    Status = "uploaded"
	StatusQueued      Status = "queued"
	StatusTranscoding Status = "transcoding"
	StatusReady       Status = "ready"
	StatusFailed      Status = "failed"
)

type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// RenditionSpec describes one requested output of the transcode ladder.
type RenditionSpec struct {
	Tier        Tier `json:"tier"`
	Width       int  `json:"width"`
	Height      int  `json:"height"`
	BitrateKbps int  `json:"bitrate"`
}

// Rendition is a produced output, populated only once a video is Ready.
type Rendition struct {
	RenditionSpec
	ManifestKey string `json:"manifest_key"`
}

type Video struct {
	ID              uuid.UUID
	Status          Status
	SourceKey       string
	ExternalJobRef  string
	Attempts        int
	DurationSeconds float64
	ThumbnailKey    string
	FailureReason   string
	// Requested is the ladder submitted to the engine for the current job.
	// Completion verifies against it, and retries resubmit the same ladder.
	Requested  []RenditionSpec
	Renditions []Rendition
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CanTransition reports whether moving a video from one status to another is
// legal. Transitions are monotonic except for the bounded retry loop
// (transcoding back to queued on a transient engine failure).
func CanTransition(from, to Status) bool {
	switch from {
	case StatusUploaded:
		return to == StatusQueued || to == StatusFailed
	case StatusQueued:
		return to == StatusTranscoding || to == StatusFailed
	case StatusTranscoding:
		return to == StatusQueued || to == StatusReady || to == StatusFailed
	default:
		// ready and failed are terminal
		return false
	}
}

// Terminal reports whether a status admits no further transitions.
func Terminal(s Status) bool {
	return s == StatusReady || s == StatusFailed
}
