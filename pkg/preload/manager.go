package preload

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

type Config struct {
	MaxBytes    int64           // cache footprint ceiling, default 256 MiB
	Workers     int             // concurrent prefetches, default 3
	EvictBehind int             // items behind the viewer before eviction, default 3
	Margin      float64         // bandwidth headroom factor for tier selection, default 0.8
	Bandwidth   BandwidthSource // default NewEWMA(0.3)
}

type entry struct {
	videoID    string
	position   int
	priority   Priority
	renditions []Rendition // ascending bitrate
	state      State
	tier       string
	bytes      int64
	lastAccess time.Time
	upgrading  bool
	cancel     context.CancelFunc
}

// Manager owns every cache entry. All entry state is mutated under one mutex,
// so there is never a concurrent writer to the same entry; the worker pool
// only moves bytes.
type Manager struct {
	cfg     Config
	fetcher Fetcher
	bw      BandwidthSource

	mu         sync.Mutex
	entries    map[string]*entry
	queue      []string
	totalBytes int64
	pos        int

	ctx    context.Context
	stop   context.CancelFunc
	wakeCh chan struct{}
	wg     sync.WaitGroup
}

func NewManager(fetcher Fetcher, cfg Config) *Manager {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 256 << 20
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.EvictBehind <= 0 {
		cfg.EvictBehind = 3
	}
	if cfg.Margin <= 0 || cfg.Margin > 1 {
		cfg.Margin = 0.8
	}
	if cfg.Bandwidth == nil {
		cfg.Bandwidth = NewEWMA(0.3)
	}

	ctx, stop := context.WithCancel(context.Background())
	m := &Manager{
		cfg:     cfg,
		fetcher: fetcher,
		bw:      cfg.Bandwidth,
		entries: make(map[string]*entry),
		ctx:     ctx,
		stop:    stop,
		wakeCh:  make(chan struct{}, cfg.Workers),
	}
	for i := 0; i < cfg.Workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m
}

// Close cancels in-flight fetches and waits for the worker pool to drain.
func (m *Manager) Close() {
	m.stop()
	m.wg.Wait()
}

// OnPage registers a feed page. Items not already pending, in flight or
// cached get a fresh entry and a scheduled fetch; evicted or failed entries
// are rescheduled from scratch.
func (m *Manager) OnPage(items []Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		if e, ok := m.entries[it.VideoID]; ok {
			switch e.state {
			case StatePending, StateFetching, StateCached:
				continue
			}
		}
		renditions := append([]Rendition(nil), it.Renditions...)
		sort.Slice(renditions, func(i, j int) bool {
			return renditions[i].BitrateKbps < renditions[j].BitrateKbps
		})
		m.entries[it.VideoID] = &entry{
			videoID:    it.VideoID,
			position:   it.Position,
			priority:   it.Priority,
			renditions: renditions,
			state:      StatePending,
			lastAccess: time.Now(),
		}
		m.enqueueLocked(it.VideoID)
	}
}

// OnScroll records the viewer's position. Entries the viewer has scrolled
// more than EvictBehind items past are evicted; an in-flight fetch for such
// an entry is cancelled cooperatively and ends Evicted, not Failed.
func (m *Manager) OnScroll(pos int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos = pos
	for _, e := range m.entries {
		if pos-e.position <= m.cfg.EvictBehind {
			continue
		}
		switch e.state {
		case StatePending, StateFetching, StateCached:
			m.evictLocked(e)
		}
	}
	m.reclaimLocked()
}

// CachedTier reports the fully-downloaded tier for videoID, touching the
// entry's access clock.
func (m *Manager) CachedTier(videoID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[videoID]
	if !ok || e.state != StateCached {
		return "", false
	}
	e.lastAccess = time.Now()
	return e.tier, true
}

// StateOf reports the entry state for videoID.
func (m *Manager) StateOf(videoID string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[videoID]
	if !ok {
		return StatePending, false
	}
	return e.state, true
}

// FootprintBytes is the total size of cached bodies.
func (m *Manager) FootprintBytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalBytes
}

// RefreshQuality schedules a background upgrade fetch when the current
// bandwidth estimate fits a higher tier than the one cached. The cached body
// stays readable until the better one has fully downloaded; there is no
// partial-file upgrade.
func (m *Manager) RefreshQuality(videoID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[videoID]
	if !ok || e.state != StateCached || e.upgrading {
		return false
	}
	if _, ok := m.pickRenditionLocked(e, true); !ok {
		return false
	}
	e.upgrading = true
	m.enqueueLocked(videoID)
	return true
}

func (m *Manager) enqueueLocked(videoID string) {
	m.queue = append(m.queue, videoID)
	select {
	case m.wakeCh <- struct{}{}:
	default:
	}
}

func (m *Manager) next() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return "", false
	}
	id := m.queue[0]
	m.queue = m.queue[1:]
	return id, true
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		id, ok := m.next()
		if !ok {
			select {
			case <-m.ctx.Done():
				return
			case <-m.wakeCh:
				continue
			}
		}
		m.fetch(id)
	}
}

func (m *Manager) fetch(id string) {
	m.mu.Lock()
	e := m.entries[id]
	if e == nil {
		m.mu.Unlock()
		return
	}
	upgrade := e.state == StateCached && e.upgrading
	if e.state != StatePending && !upgrade {
		m.mu.Unlock()
		return
	}
	if m.pos-e.position > m.cfg.EvictBehind {
		if upgrade {
			e.upgrading = false
		} else {
			e.state = StateEvicted
		}
		m.mu.Unlock()
		return
	}
	rend, ok := m.pickRenditionLocked(e, upgrade)
	if !ok {
		if upgrade {
			e.upgrading = false
		} else {
			e.state = StateFailed
		}
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(m.ctx)
	e.cancel = cancel
	if !upgrade {
		e.state = StateFetching
		e.tier = rend.Tier
	}
	m.mu.Unlock()

	var got int64
	start := time.Now()
	err := m.fetcher.Fetch(ctx, rend.URL, func(chunk []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		got += int64(len(chunk))
		return nil
	})
	elapsed := time.Since(start)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	e.cancel = nil

	if upgrade {
		e.upgrading = false
		if err != nil || e.state != StateCached {
			return
		}
		m.bw.Observe(got, elapsed)
		m.totalBytes += got - e.bytes
		e.bytes = got
		e.tier = rend.Tier
		e.lastAccess = time.Now()
		m.reclaimLocked()
		return
	}

	if e.state != StateFetching {
		// Evicted by a scroll mid-download; the partial body is discarded.
		return
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			e.state = StateEvicted
			return
		}
		slog.Warn("prefetch failed", "video_id", e.videoID, "tier", e.tier, "error", err)
		e.state = StateFailed
		return
	}

	m.bw.Observe(got, elapsed)
	e.state = StateCached
	e.bytes = got
	e.lastAccess = time.Now()
	m.totalBytes += got
	slog.Debug("prefetch complete", "video_id", e.videoID, "tier", e.tier, "size", humanize.IBytes(uint64(got)))
	m.reclaimLocked()
}

// pickRenditionLocked chooses the highest tier whose bitrate fits the
// bandwidth estimate after margin. With no estimate yet it plays safe and
// takes the lowest tier. For an upgrade the pick must strictly beat the tier
// already cached.
func (m *Manager) pickRenditionLocked(e *entry, upgrade bool) (Rendition, bool) {
	if len(e.renditions) == 0 {
		return Rendition{}, false
	}
	budget := m.bw.EstimateKbps() * m.cfg.Margin
	pick := e.renditions[0]
	for _, r := range e.renditions[1:] {
		if budget > 0 && float64(r.BitrateKbps) <= budget {
			pick = r
		}
	}
	if upgrade {
		var current int
		for _, r := range e.renditions {
			if r.Tier == e.tier {
				current = r.BitrateKbps
			}
		}
		if pick.BitrateKbps <= current {
			return Rendition{}, false
		}
	}
	return pick, true
}

// reclaimLocked evicts cached entries until the footprint fits the ceiling.
// Lowest priority goes first, least-recently-accessed first within a
// priority; high-priority entries for the next two items are never touched.
func (m *Manager) reclaimLocked() {
	for m.totalBytes > m.cfg.MaxBytes {
		var victim *entry
		for _, e := range m.entries {
			if e.state != StateCached || m.protectedLocked(e) {
				continue
			}
			if victim == nil ||
				e.priority < victim.priority ||
				(e.priority == victim.priority && e.lastAccess.Before(victim.lastAccess)) {
				victim = e
			}
		}
		if victim == nil {
			return
		}
		m.evictLocked(victim)
	}
}

func (m *Manager) protectedLocked(e *entry) bool {
	if e.priority != PriorityHigh {
		return false
	}
	if e.state != StateFetching && e.state != StateCached {
		return false
	}
	return e.position >= m.pos && e.position <= m.pos+2
}

func (m *Manager) evictLocked(e *entry) {
	if e.state == StateCached {
		m.totalBytes -= e.bytes
		slog.Debug("cache entry evicted",
			"video_id", e.videoID,
			"tier", e.tier,
			"size", humanize.IBytes(uint64(e.bytes)),
			"footprint", humanize.IBytes(uint64(m.totalBytes)))
		e.bytes = 0
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.state = StateEvicted
}
