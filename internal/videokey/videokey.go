// Package videokey derives deterministic video identifiers and object-store
// key layouts from raw upload keys.
//
// The video ID is a UUIDv5 over a bucket-scoped namespace, so redelivered
// storage events for the same object always resolve to the same video and the
// idempotent upsert in the ingest handler collapses them.
package videokey

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Accepted container extensions for raw uploads. Anything else is rejected
// before it reaches the queue.
var uploadExtensions = map[string]struct{}{
	".mp4":  {},
	".mov":  {},
	".m4v":  {},
	".webm": {},
}

// Scheme captures the bucket layout the pipeline operates over.
type Scheme struct {
	Bucket       string
	UploadPrefix string // e.g. "uploads/"
	OutputPrefix string // e.g. "renditions/"
	namespace    uuid.UUID
}

func NewScheme(bucket, uploadPrefix, outputPrefix string) *Scheme {
	return &Scheme{
		Bucket:       bucket,
		UploadPrefix: uploadPrefix,
		OutputPrefix: outputPrefix,
		namespace:    NamespaceUUIDForBucket(bucket),
	}
}

// NamespaceUUIDForBucket returns a deterministic UUIDv5 namespace for a bucket.
// Example: uuid.NewSHA1(uuid.NameSpaceURL, []byte("s3://reelfeed-media")).
func NamespaceUUIDForBucket(bucket string) uuid.UUID {
	b := strings.TrimSpace(strings.ToLower(bucket))
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("s3://"+b))
}

// VideoUUID returns the deterministic video ID for an upload key.
func (s *Scheme) VideoUUID(key string) uuid.UUID {
	return uuid.NewSHA1(s.namespace, []byte(key))
}

// ValidateUploadKey checks that key names a raw upload this pipeline should
// ingest. It returns a descriptive error otherwise; callers classify it as a
// terminal validation failure.
func (s *Scheme) ValidateUploadKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty object key")
	}
	if !strings.HasPrefix(key, s.UploadPrefix) {
		return fmt.Errorf("key %q outside upload prefix %q", key, s.UploadPrefix)
	}
	rest := strings.TrimPrefix(key, s.UploadPrefix)
	if rest == "" || strings.HasSuffix(key, "/") {
		return fmt.Errorf("key %q names no object", key)
	}
	ext := strings.ToLower(path.Ext(rest))
	if _, ok := uploadExtensions[ext]; !ok {
		return fmt.Errorf("unsupported upload extension %q", ext)
	}
	return nil
}

// VideoOutputPrefix is the destination all renditions for a video land under.
func (s *Scheme) VideoOutputPrefix(id uuid.UUID) string {
	return s.OutputPrefix + id.String() + "/"
}

// RenditionManifestKey is the per-tier playlist location.
func (s *Scheme) RenditionManifestKey(id uuid.UUID, tier string) string {
	return s.VideoOutputPrefix(id) + tier + "/index.m3u8"
}

// MasterManifestKey is the top-level manifest clients start playback from.
func (s *Scheme) MasterManifestKey(id uuid.UUID) string {
	return s.VideoOutputPrefix(id) + "master.m3u8"
}

// ThumbnailKey is the poster frame location for a video.
func (s *Scheme) ThumbnailKey(id uuid.UUID) string {
	return s.VideoOutputPrefix(id) + "thumbnail.jpg"
}
