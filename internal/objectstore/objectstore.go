// Package objectstore abstracts the object storage and CDN the pipeline
// consumes. Storage itself is an external collaborator; the pipeline only
// checks object existence and builds delivery URLs.
package objectstore

import (
	"context"
	"strings"
	"sync"
)

type ObjectInfo struct {
	Key  string
	Size int64
}

type Store interface {
	// Head reports whether key exists and its metadata.
	Head(ctx context.Context, key string) (ObjectInfo, bool, error)

	// URL returns the delivery URL for key.
	URL(key string) string

	// SourceURI returns the engine-facing URI for a raw upload key.
	SourceURI(key string) string
}

// Memory is an in-process Store for tests and local runs.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]int64
	bucket  string
	cdnBase string
}

func NewMemory(bucket, cdnBase string) *Memory {
	return &Memory{
		objects: make(map[string]int64),
		bucket:  bucket,
		cdnBase: strings.TrimRight(cdnBase, "/"),
	}
}

// Put records an object. Tests use it to stand in for engine output uploads.
func (m *Memory) Put(key string, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = size
}

func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
}

func (m *Memory) Head(ctx context.Context, key string) (ObjectInfo, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	size, ok := m.objects[key]
	if !ok {
		return ObjectInfo{}, false, nil
	}
	return ObjectInfo{Key: key, Size: size}, true, nil
}

func (m *Memory) URL(key string) string {
	return m.cdnBase + "/" + key
}

func (m *Memory) SourceURI(key string) string {
	return "s3://" + m.bucket + "/" + key
}
