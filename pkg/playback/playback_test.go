package playback

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"thirdcoast.systems/reelfeed/pkg/preload"
)

type fakePlayer struct {
	loaded   string
	plays    int
	pauses   int
	seeks    []time.Duration
	released bool
	failLoad error
	failPlay error
}

func (p *fakePlayer) Load(url string) error {
	if p.failLoad != nil {
		return p.failLoad
	}
	p.loaded = url
	return nil
}

func (p *fakePlayer) Play() error {
	if p.failPlay != nil {
		return p.failPlay
	}
	p.plays++
	return nil
}

func (p *fakePlayer) Pause() error {
	p.pauses++
	return nil
}

func (p *fakePlayer) SeekTo(offset time.Duration) error {
	p.seeks = append(p.seeks, offset)
	return nil
}

func (p *fakePlayer) Release() { p.released = true }

type fakeCache map[string]string

func (c fakeCache) CachedTier(videoID string) (string, bool) {
	t, ok := c[videoID]
	return t, ok
}

func source(id string) Source {
	return Source{
		VideoID: id,
		Renditions: []preload.Rendition{
			{Tier: "medium", BitrateKbps: 1600, URL: id + "/medium"},
			{Tier: "low", BitrateKbps: 800, URL: id + "/low"},
			{Tier: "high", BitrateKbps: 3200, URL: id + "/high"},
		},
	}
}

func TestPrepare_UsesCachedTier(t *testing.T) {
	var player *fakePlayer
	c := NewController(fakeCache{"vid-a": "high"}, func() Player {
		player = &fakePlayer{}
		return player
	})

	require.NoError(t, c.Prepare(0, source("vid-a")))
	require.Equal(t, StateReady, c.StateAt(0))
	require.Equal(t, "vid-a/high", player.loaded)
	require.False(t, c.DirectStream(0))
}

func TestPrepare_CacheMissStreamsLowestTier(t *testing.T) {
	var player *fakePlayer
	c := NewController(fakeCache{}, func() Player {
		player = &fakePlayer{}
		return player
	})

	require.NoError(t, c.Prepare(0, source("vid-a")))
	require.Equal(t, StateReady, c.StateAt(0))
	require.Equal(t, "vid-a/low", player.loaded)
	require.True(t, c.DirectStream(0))
}

func TestPrepare_LoadFailureReturnsToIdle(t *testing.T) {
	boom := errors.New("codec error")
	c := NewController(fakeCache{}, func() Player {
		return &fakePlayer{failLoad: boom}
	})

	err := c.Prepare(0, source("vid-a"))
	require.ErrorIs(t, err, boom)
	require.Equal(t, StateIdle, c.StateAt(0))
}

func TestPrepare_NoRenditions(t *testing.T) {
	c := NewController(fakeCache{}, func() Player { return &fakePlayer{} })
	require.Error(t, c.Prepare(0, Source{VideoID: "vid-a"}))
	require.Equal(t, StateIdle, c.StateAt(0))
}

func TestFocus_SinglePlayingInvariant(t *testing.T) {
	c := NewController(fakeCache{}, func() Player { return &fakePlayer{} })

	require.NoError(t, c.Prepare(0, source("vid-a")))
	require.NoError(t, c.Prepare(1, source("vid-b")))

	require.NoError(t, c.Focus(0))
	require.Equal(t, StatePlaying, c.StateAt(0))

	require.NoError(t, c.Focus(1))
	require.Equal(t, StatePaused, c.StateAt(0))
	require.Equal(t, StatePlaying, c.StateAt(1))

	pos, ok := c.Playing()
	require.True(t, ok)
	require.Equal(t, 1, pos)
}

func TestFocus_ResumesPausedItem(t *testing.T) {
	c := NewController(fakeCache{}, func() Player { return &fakePlayer{} })

	require.NoError(t, c.Prepare(0, source("vid-a")))
	require.NoError(t, c.Prepare(1, source("vid-b")))
	require.NoError(t, c.Focus(0))
	require.NoError(t, c.Focus(1))

	// Scrolling back resumes the paused item and pauses the current one.
	require.NoError(t, c.Focus(0))
	require.Equal(t, StatePlaying, c.StateAt(0))
	require.Equal(t, StatePaused, c.StateAt(1))
}

func TestFocus_UnpreparedPosition(t *testing.T) {
	c := NewController(fakeCache{}, func() Player { return &fakePlayer{} })
	require.ErrorIs(t, c.Focus(3), ErrNotReady)
}

func TestPauseAndSeek(t *testing.T) {
	var player *fakePlayer
	c := NewController(fakeCache{}, func() Player {
		player = &fakePlayer{}
		return player
	})

	require.NoError(t, c.Prepare(0, source("vid-a")))
	require.NoError(t, c.Focus(0))
	require.NoError(t, c.Seek(0, 7*time.Second))
	require.NoError(t, c.Pause(0))
	require.Equal(t, StatePaused, c.StateAt(0))
	require.Equal(t, []time.Duration{7 * time.Second}, player.seeks)

	_, ok := c.Playing()
	require.False(t, ok)

	// Pausing an already-paused item is a no-op.
	require.NoError(t, c.Pause(0))
	require.Equal(t, 1, player.pauses)
}

func TestDispose_IsTerminalAndReleases(t *testing.T) {
	var player *fakePlayer
	c := NewController(fakeCache{}, func() Player {
		player = &fakePlayer{}
		return player
	})

	require.NoError(t, c.Prepare(0, source("vid-a")))
	require.NoError(t, c.Focus(0))
	c.Dispose(0)

	require.True(t, player.released)
	require.Equal(t, StateDisposed, c.StateAt(0))
	_, ok := c.Playing()
	require.False(t, ok)

	require.ErrorIs(t, c.Focus(0), ErrDisposed)
	require.ErrorIs(t, c.Prepare(0, source("vid-a")), ErrDisposed)
	require.ErrorIs(t, c.Seek(0, time.Second), ErrDisposed)
	c.Dispose(0) // idempotent
}
