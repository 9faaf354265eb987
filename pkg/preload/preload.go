// Package preload maintains a bounded, priority-weighted cache of upcoming
// feed items on the client. Fetches run on a small fixed worker pool so
// prefetching never starves the currently-playing item's bandwidth, and the
// total cached footprint never exceeds the configured ceiling.
package preload

import "context"

// State is the lifecycle of one cache entry.
type State int

const (
	StatePending State = iota
	StateFetching
	StateCached
	StateFailed
	StateEvicted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFetching:
		return "fetching"
	case StateCached:
		return "cached"
	case StateFailed:
		return "failed"
	case StateEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// Priority is the server's prefetch hint for a feed item. Higher values are
// fetched more eagerly and evicted later.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// ParsePriority maps the feed API's preload_priority hint. Unknown values
// degrade to low rather than failing.
func ParsePriority(s string) Priority {
	switch s {
	case "high":
		return PriorityHigh
	case "medium":
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Rendition is one downloadable quality tier of a feed item.
type Rendition struct {
	Tier        string
	BitrateKbps int
	URL         string
}

// Item is one feed entry as the manager sees it: identity, feed position and
// the rendition ladder to choose from.
type Item struct {
	VideoID    string
	Position   int
	Priority   Priority
	Renditions []Rendition
}

// Fetcher downloads one rendition body. Implementations deliver the body in
// chunks through sink and must check ctx between chunks; that check is the
// cooperative cancellation point, so a cancelled fetch never leaves a
// partially-written entry visible as cached.
type Fetcher interface {
	Fetch(ctx context.Context, url string, sink func(chunk []byte) error) error
}
