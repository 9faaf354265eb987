// Package memstore is an in-memory video.Store used by tests and local runs.
// It mirrors the CAS semantics of the Postgres store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"thirdcoast.systems/reelfeed/internal/video"
)

type Store struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*video.Video
	nowFn  func() time.Time
	serial int64
}

func New() *Store {
	return &Store{
		byID:  make(map[uuid.UUID]*video.Video),
		nowFn: time.Now,
	}
}

// SetNow overrides the clock, for tests that need distinct creation times.
func (s *Store) SetNow(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

func (s *Store) InsertIfAbsent(ctx context.Context, v video.Video) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[v.ID]; ok {
		return false, nil
	}
	now := s.nowFn()
	// Monotonic tiebreak so two inserts in the same nanosecond still order.
	s.serial++
	v.CreatedAt = now.Add(time.Duration(s.serial))
	v.UpdatedAt = v.CreatedAt
	cp := v
	s.byID[v.ID] = &cp
	return true, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*video.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byID[id]
	if !ok {
		return nil, video.ErrNotFound
	}
	cp := *v
	cp.Requested = append([]video.RenditionSpec(nil), v.Requested...)
	cp.Renditions = append([]video.Rendition(nil), v.Renditions...)
	return &cp, nil
}

func (s *Store) GetByJobRef(ctx context.Context, jobRef string) (*video.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.byID {
		if v.ExternalJobRef == jobRef {
			cp := *v
			cp.Requested = append([]video.RenditionSpec(nil), v.Requested...)
			cp.Renditions = append([]video.Rendition(nil), v.Renditions...)
			return &cp, nil
		}
	}
	return nil, video.ErrNotFound
}

func (s *Store) TransitionStatus(ctx context.Context, id uuid.UUID, from []video.Status, to video.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byID[id]
	if !ok {
		return false, video.ErrNotFound
	}
	for _, f := range from {
		if v.Status == f {
			v.Status = to
			v.UpdatedAt = s.nowFn()
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) RecordSubmission(ctx context.Context, id uuid.UUID, jobRef string, ladder []video.RenditionSpec) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byID[id]
	if !ok {
		return false, video.ErrNotFound
	}
	if v.Status != video.StatusQueued {
		return false, nil
	}
	v.Status = video.StatusTranscoding
	v.ExternalJobRef = jobRef
	v.Requested = append([]video.RenditionSpec(nil), ladder...)
	v.Attempts++
	v.UpdatedAt = s.nowFn()
	return true, nil
}

func (s *Store) FinishReady(ctx context.Context, p video.FinishReadyParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byID[p.ID]
	if !ok {
		return false, video.ErrNotFound
	}
	if v.Status != video.StatusTranscoding || v.ExternalJobRef != p.JobRef {
		return false, nil
	}
	v.Status = video.StatusReady
	v.Renditions = append([]video.Rendition(nil), p.Renditions...)
	v.DurationSeconds = p.DurationSeconds
	v.ThumbnailKey = p.ThumbnailKey
	v.UpdatedAt = s.nowFn()
	return true, nil
}

func (s *Store) FinishFailed(ctx context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byID[id]
	if !ok {
		return video.ErrNotFound
	}
	if v.Status == video.StatusReady {
		// Never demote a ready video; a straggling failure signal is stale.
		return nil
	}
	v.Status = video.StatusFailed
	v.FailureReason = reason
	v.UpdatedAt = s.nowFn()
	return nil
}

func (s *Store) ListReadyPage(ctx context.Context, before time.Time, beforeID uuid.UUID, limit int) ([]video.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ready := make([]video.Video, 0)
	for _, v := range s.byID {
		if v.Status != video.StatusReady {
			continue
		}
		cp := *v
		cp.Renditions = append([]video.Rendition(nil), v.Renditions...)
		ready = append(ready, cp)
	}
	sort.Slice(ready, func(i, j int) bool {
		if !ready[i].CreatedAt.Equal(ready[j].CreatedAt) {
			return ready[i].CreatedAt.After(ready[j].CreatedAt)
		}
		return ready[i].ID.String() > ready[j].ID.String()
	})
	out := make([]video.Video, 0, limit)
	for _, v := range ready {
		if !before.IsZero() {
			if v.CreatedAt.After(before) {
				continue
			}
			if v.CreatedAt.Equal(before) && v.ID.String() >= beforeID.String() {
				continue
			}
		}
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ListStuckTranscoding(ctx context.Context, since time.Time) ([]video.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []video.Video
	for _, v := range s.byID {
		if v.Status == video.StatusTranscoding && v.UpdatedAt.Before(since) {
			out = append(out, *v)
		}
	}
	return out, nil
}
