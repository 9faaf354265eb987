// Package feed serves cursor-paginated pages of ready videos with preload
// priority hints for the client's prefetch engine. Only ready videos are
// visible; everything still moving through the pipeline is simply absent.
package feed

import (
	"context"

	"thirdcoast.systems/reelfeed/internal/objectstore"
	"thirdcoast.systems/reelfeed/internal/pipeline/faults"
	"thirdcoast.systems/reelfeed/internal/video"
	"thirdcoast.systems/reelfeed/internal/videokey"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// priorityForPosition implements the preload hint ramp: the first three
// items are high, the next two medium, the rest low.
func priorityForPosition(pos int) Priority {
	switch {
	case pos < 3:
		return PriorityHigh
	case pos < 5:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

type RenditionRef struct {
	Tier        video.Tier `json:"tier"`
	BitrateKbps int        `json:"bitrate"`
	URL         string     `json:"url"`
}

type Item struct {
	ID              string         `json:"id"`
	ManifestURL     string         `json:"manifest_url"`
	ThumbnailURL    string         `json:"thumbnail_url"`
	DurationSeconds float64        `json:"duration"`
	PreloadPriority Priority       `json:"preload_priority"`
	Renditions      []RenditionRef `json:"renditions"`
}

type Page struct {
	Items     []Item `json:"items"`
	CursorOut string `json:"cursor_out"`
	HasMore   bool   `json:"has_more"`
}

const (
	MinLimit = 1
	MaxLimit = 50
)

type Service struct {
	store   video.Store
	objects objectstore.Store
	keys    *videokey.Scheme
}

func NewService(store video.Store, objects objectstore.Store, keys *videokey.Scheme) *Service {
	return &Service{store: store, objects: objects, keys: keys}
}

// GetPage returns up to limit ready videos after the cursor position.
// An exhausted feed is an empty page, not an error.
func (s *Service) GetPage(ctx context.Context, cursorIn string, limit int) (*Page, error) {
	if limit < MinLimit || limit > MaxLimit {
		return nil, faults.Validationf("limit must be between %d and %d", MinLimit, MaxLimit)
	}
	cur, err := decodeCursor(cursorIn)
	if err != nil {
		return nil, err
	}

	// Fetch one extra row to learn whether another page exists.
	videos, err := s.store.ListReadyPage(ctx, cur.CreatedAt, cur.ID, limit+1)
	if err != nil {
		return nil, err
	}

	page := &Page{HasMore: len(videos) > limit}
	if page.HasMore {
		videos = videos[:limit]
	}

	for i, v := range videos {
		item := Item{
			ID:              v.ID.String(),
			ManifestURL:     s.objects.URL(s.keys.MasterManifestKey(v.ID)),
			ThumbnailURL:    s.objects.URL(v.ThumbnailKey),
			DurationSeconds: v.DurationSeconds,
			PreloadPriority: priorityForPosition(i),
		}
		for _, r := range v.Renditions {
			item.Renditions = append(item.Renditions, RenditionRef{
				Tier:        r.Tier,
				BitrateKbps: r.BitrateKbps,
				URL:         s.objects.URL(r.ManifestKey),
			})
		}
		page.Items = append(page.Items, item)
	}

	if n := len(videos); n > 0 {
		page.CursorOut = encodeCursor(cursor{
			CreatedAt: videos[n-1].CreatedAt,
			ID:        videos[n-1].ID,
		})
	}
	return page, nil
}
