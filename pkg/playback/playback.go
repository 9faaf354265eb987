// Package playback drives per-item play state as the viewer moves through
// the feed. Each feed position owns a small state machine
// (Idle → Loading → Ready → Playing ⇄ Paused → Disposed) and at most one
// position is playing at any moment.
package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"thirdcoast.systems/reelfeed/pkg/preload"
)

var (
	// ErrNotReady is returned when an operation needs a prepared item.
	ErrNotReady = errors.New("item not prepared")

	// ErrDisposed is returned for any operation on a disposed item.
	ErrDisposed = errors.New("item disposed")
)

// State is the lifecycle of one feed position's player.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StatePlaying
	StatePaused
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Player is the underlying media surface for one feed item.
type Player interface {
	Load(url string) error
	Play() error
	Pause() error
	SeekTo(offset time.Duration) error
	Release()
}

// Cache reports what the preload manager has fully downloaded.
type Cache interface {
	CachedTier(videoID string) (string, bool)
}

// Source is the playable description of one feed item.
type Source struct {
	VideoID    string
	Renditions []preload.Rendition
}

type item struct {
	state  State
	player Player
	src    Source
	tier   string
	direct bool
}

// Controller owns play/pause decisions for every visible feed position. All
// transitions happen under one mutex; callers never race each other.
type Controller struct {
	mu        sync.Mutex
	cache     Cache
	newPlayer func() Player
	items     map[int]*item
	playing   int
}

func NewController(cache Cache, newPlayer func() Player) *Controller {
	return &Controller{
		cache:     cache,
		newPlayer: newPlayer,
		items:     make(map[int]*item),
		playing:   -1,
	}
}

// Prepare loads the media for pos. When the cache manager has the item, the
// cached tier is used; otherwise the lowest-bitrate rendition is streamed
// directly rather than making the viewer wait for the prefetch.
func (c *Controller) Prepare(pos int, src Source) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[pos]
	if ok {
		if it.state == StateDisposed {
			return ErrDisposed
		}
		if it.state != StateIdle {
			return nil
		}
	} else {
		it = &item{state: StateIdle}
		c.items[pos] = it
	}
	it.src = src
	it.state = StateLoading

	url, tier, direct, err := resolveSource(c.cache, src)
	if err != nil {
		it.state = StateIdle
		return err
	}
	player := c.newPlayer()
	if err := player.Load(url); err != nil {
		player.Release()
		it.state = StateIdle
		return fmt.Errorf("load %s: %w", src.VideoID, err)
	}
	if direct {
		slog.Debug("cache miss, direct streaming", "video_id", src.VideoID, "tier", tier)
	}
	it.player, it.tier, it.direct = player, tier, direct
	it.state = StateReady
	return nil
}

func resolveSource(cache Cache, src Source) (url, tier string, direct bool, err error) {
	if len(src.Renditions) == 0 {
		return "", "", false, fmt.Errorf("no renditions for %s", src.VideoID)
	}
	if t, ok := cache.CachedTier(src.VideoID); ok {
		for _, r := range src.Renditions {
			if r.Tier == t {
				return r.URL, t, false, nil
			}
		}
	}
	low := src.Renditions[0]
	for _, r := range src.Renditions[1:] {
		if r.BitrateKbps < low.BitrateKbps {
			low = r
		}
	}
	return low.URL, low.Tier, true, nil
}

// Focus makes pos the playing item. Whichever item previously held focus is
// paused first, keeping the single-playing invariant.
func (c *Controller) Focus(pos int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[pos]
	if !ok {
		return ErrNotReady
	}
	switch it.state {
	case StatePlaying:
		return nil
	case StateReady, StatePaused:
	case StateDisposed:
		return ErrDisposed
	default:
		return ErrNotReady
	}

	if c.playing >= 0 && c.playing != pos {
		if prev := c.items[c.playing]; prev != nil && prev.state == StatePlaying {
			if err := prev.player.Pause(); err != nil {
				slog.Warn("pause on focus change failed", "position", c.playing, "error", err)
			}
			prev.state = StatePaused
		}
		c.playing = -1
	}

	if err := it.player.Play(); err != nil {
		return err
	}
	it.state = StatePlaying
	c.playing = pos
	return nil
}

// Pause pauses pos if it is playing.
func (c *Controller) Pause(pos int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[pos]
	if !ok {
		return ErrNotReady
	}
	switch it.state {
	case StateDisposed:
		return ErrDisposed
	case StatePlaying:
	default:
		return nil
	}
	if err := it.player.Pause(); err != nil {
		return err
	}
	it.state = StatePaused
	if c.playing == pos {
		c.playing = -1
	}
	return nil
}

// Seek moves the playhead of a prepared item.
func (c *Controller) Seek(pos int, offset time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[pos]
	if !ok {
		return ErrNotReady
	}
	switch it.state {
	case StateReady, StatePlaying, StatePaused:
		return it.player.SeekTo(offset)
	case StateDisposed:
		return ErrDisposed
	default:
		return ErrNotReady
	}
}

// Dispose releases the player for pos. Disposed is terminal.
func (c *Controller) Dispose(pos int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[pos]
	if !ok || it.state == StateDisposed {
		return
	}
	if it.player != nil {
		it.player.Release()
		it.player = nil
	}
	it.state = StateDisposed
	if c.playing == pos {
		c.playing = -1
	}
}

// StateAt reports the state at pos; unknown positions are Idle.
func (c *Controller) StateAt(pos int) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if it, ok := c.items[pos]; ok {
		return it.state
	}
	return StateIdle
}

// Playing reports the currently playing position, if any.
func (c *Controller) Playing() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing, c.playing >= 0
}

// DirectStream reports whether pos fell back to direct streaming on a cache
// miss.
func (c *Controller) DirectStream(pos int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[pos]
	return ok && it.direct
}
