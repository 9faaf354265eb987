package feed

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"thirdcoast.systems/reelfeed/internal/objectstore"
	"thirdcoast.systems/reelfeed/internal/pipeline/faults"
	"thirdcoast.systems/reelfeed/internal/video"
	"thirdcoast.systems/reelfeed/internal/video/memstore"
	"thirdcoast.systems/reelfeed/internal/videokey"
)

func newService(t *testing.T) (*Service, *memstore.Store, *videokey.Scheme) {
	t.Helper()
	store := memstore.New()
	objects := objectstore.NewMemory("reelfeed-media", "https://cdn.example.com")
	keys := videokey.NewScheme("reelfeed-media", "uploads/", "renditions/")
	return NewService(store, objects, keys), store, keys
}

func seedVideo(t *testing.T, store *memstore.Store, keys *videokey.Scheme, n int, status video.Status) video.Video {
	t.Helper()
	ctx := context.Background()
	key := fmt.Sprintf("uploads/clip-%03d.mp4", n)
	id := keys.VideoUUID(key)
	_, err := store.InsertIfAbsent(ctx, video.Video{ID: id, Status: video.StatusUploaded, SourceKey: key})
	require.NoError(t, err)

	if status == video.StatusReady {
		_, err = store.TransitionStatus(ctx, id, []video.Status{video.StatusUploaded}, video.StatusQueued)
		require.NoError(t, err)
		_, err = store.RecordSubmission(ctx, id, fmt.Sprintf("job-%d", n), nil)
		require.NoError(t, err)
		ok, err := store.FinishReady(ctx, video.FinishReadyParams{
			ID:     id,
			JobRef: fmt.Sprintf("job-%d", n),
			Renditions: []video.Rendition{
				{RenditionSpec: video.RenditionSpec{Tier: video.TierLow, Width: 640, Height: 360, BitrateKbps: 800}, ManifestKey: keys.RenditionManifestKey(id, "low")},
				{RenditionSpec: video.RenditionSpec{Tier: video.TierHigh, Width: 1280, Height: 720, BitrateKbps: 3200}, ManifestKey: keys.RenditionManifestKey(id, "high")},
			},
			DurationSeconds: 10,
			ThumbnailKey:    keys.ThumbnailKey(id),
		})
		require.NoError(t, err)
		require.True(t, ok)
	} else if status != video.StatusUploaded {
		_, err = store.TransitionStatus(ctx, id, []video.Status{video.StatusUploaded}, status)
		require.NoError(t, err)
	}

	v, err := store.Get(ctx, id)
	require.NoError(t, err)
	return *v
}

func TestGetPage_OnlyReadyVideos(t *testing.T) {
	ctx := context.Background()
	svc, store, keys := newService(t)

	seedVideo(t, store, keys, 1, video.StatusReady)
	seedVideo(t, store, keys, 2, video.StatusQueued)
	seedVideo(t, store, keys, 3, video.StatusFailed)
	seedVideo(t, store, keys, 4, video.StatusReady)

	page, err := svc.GetPage(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.False(t, page.HasMore)
	for _, item := range page.Items {
		require.NotEmpty(t, item.ManifestURL)
		require.Len(t, item.Renditions, 2)
	}
}

func TestGetPage_PriorityRamp(t *testing.T) {
	ctx := context.Background()
	svc, store, keys := newService(t)
	for i := 0; i < 8; i++ {
		seedVideo(t, store, keys, i, video.StatusReady)
	}

	page, err := svc.GetPage(ctx, "", 8)
	require.NoError(t, err)
	require.Len(t, page.Items, 8)

	want := []Priority{
		PriorityHigh, PriorityHigh, PriorityHigh,
		PriorityMedium, PriorityMedium,
		PriorityLow, PriorityLow, PriorityLow,
	}
	for i, item := range page.Items {
		require.Equal(t, want[i], item.PreloadPriority, "position %d", i)
	}
}

func TestGetPage_PaginationNeverRepeats(t *testing.T) {
	ctx := context.Background()
	svc, store, keys := newService(t)
	for i := 0; i < 10; i++ {
		seedVideo(t, store, keys, i, video.StatusReady)
	}

	seen := map[string]bool{}
	cursor := ""
	pages := 0
	for {
		page, err := svc.GetPage(ctx, cursor, 3)
		require.NoError(t, err)
		for _, item := range page.Items {
			require.False(t, seen[item.ID], "item %s repeated", item.ID)
			seen[item.ID] = true
		}
		pages++
		if !page.HasMore {
			break
		}
		cursor = page.CursorOut
	}
	require.Len(t, seen, 10)
	require.Equal(t, 4, pages)
}

func TestGetPage_NewestFirst(t *testing.T) {
	ctx := context.Background()
	svc, store, keys := newService(t)
	first := seedVideo(t, store, keys, 1, video.StatusReady)
	second := seedVideo(t, store, keys, 2, video.StatusReady)

	page, err := svc.GetPage(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, second.ID.String(), page.Items[0].ID)
	require.Equal(t, first.ID.String(), page.Items[1].ID)
}

func TestGetPage_InvalidInput(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	_, err := svc.GetPage(ctx, "not!!base64", 10)
	require.Error(t, err)
	require.Equal(t, faults.KindValidation, faults.KindOf(err))

	_, err = svc.GetPage(ctx, "", 0)
	require.Error(t, err)
	require.Equal(t, faults.KindValidation, faults.KindOf(err))

	_, err = svc.GetPage(ctx, "", 51)
	require.Error(t, err)
	require.Equal(t, faults.KindValidation, faults.KindOf(err))
}

func TestGetPage_EmptyFeedIsEmptyPage(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	page, err := svc.GetPage(ctx, "", 10)
	require.NoError(t, err)
	require.Empty(t, page.Items)
	require.False(t, page.HasMore)
	require.Empty(t, page.CursorOut)
}

// Feed purity: whatever sequence of status transitions videos go through,
// a page never exposes a non-ready video.
func TestGetPage_PurityUnderRandomTransitions(t *testing.T) {
	ctx := context.Background()
	svc, store, keys := newService(t)
	rng := rand.New(rand.NewSource(42))

	statuses := []video.Status{
		video.StatusUploaded, video.StatusQueued, video.StatusTranscoding,
		video.StatusReady, video.StatusFailed,
	}
	ready := map[string]bool{}
	for i := 0; i < 40; i++ {
		st := statuses[rng.Intn(len(statuses))]
		v := seedVideo(t, store, keys, i, st)
		if st == video.StatusReady {
			ready[v.ID.String()] = true
		}
	}

	cursor := ""
	for {
		page, err := svc.GetPage(ctx, cursor, 7)
		require.NoError(t, err)
		for _, item := range page.Items {
			require.True(t, ready[item.ID], "non-ready video %s leaked into feed", item.ID)
		}
		if !page.HasMore {
			break
		}
		cursor = page.CursorOut
	}
}

func TestCursorRoundTrip(t *testing.T) {
	c := cursor{CreatedAt: time.Now().UTC().Truncate(time.Microsecond), ID: videokey.NewScheme("b", "u/", "r/").VideoUUID("u/x.mp4")}
	out, err := decodeCursor(encodeCursor(c))
	require.NoError(t, err)
	require.True(t, c.CreatedAt.Equal(out.CreatedAt))
	require.Equal(t, c.ID, out.ID)
}
