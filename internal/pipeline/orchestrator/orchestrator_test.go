package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"thirdcoast.systems/reelfeed/internal/objectstore"
	"thirdcoast.systems/reelfeed/internal/pipeline/faults"
	"thirdcoast.systems/reelfeed/internal/queue"
	"thirdcoast.systems/reelfeed/internal/queue/memqueue"
	"thirdcoast.systems/reelfeed/internal/transcoder/faketranscoder"
	"thirdcoast.systems/reelfeed/internal/video"
	"thirdcoast.systems/reelfeed/internal/video/memstore"
	"thirdcoast.systems/reelfeed/internal/videokey"
)

type fixture struct {
	o       *Orchestrator
	store   *memstore.Store
	q       *memqueue.Queue
	engine  *faketranscoder.Engine
	objects *objectstore.Memory
	keys    *videokey.Scheme
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	q := memqueue.New(memqueue.Config{Visibility: time.Minute, MaxReceives: 3})
	engine := faketranscoder.New()
	objects := objectstore.NewMemory("reelfeed-media", "https://cdn.example.com")
	keys := videokey.NewScheme("reelfeed-media", "uploads/", "renditions/")
	return &fixture{
		o:       New(store, q, engine, objects, keys),
		store:   store,
		q:       q,
		engine:  engine,
		objects: objects,
		keys:    keys,
	}
}

func (f *fixture) enqueueVideo(t *testing.T, key string) queue.Message {
	t.Helper()
	ctx := context.Background()
	id := f.keys.VideoUUID(key)
	_, err := f.store.InsertIfAbsent(ctx, video.Video{ID: id, Status: video.StatusQueued, SourceKey: key})
	require.NoError(t, err)

	body, err := queue.TranscodeRequest{VideoID: id, SourceKey: key, EnqueuedAt: time.Now()}.Encode()
	require.NoError(t, err)
	require.NoError(t, f.q.Send(ctx, body))

	msgs, err := f.q.Receive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	return msgs[0]
}

func TestProcess_SubmitsAndRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	msg := f.enqueueVideo(t, "uploads/clip.mp4")

	require.NoError(t, f.o.Process(ctx, msg))

	subs := f.engine.Submissions()
	require.Len(t, subs, 1)
	require.Equal(t, "s3://reelfeed-media/uploads/clip.mp4", subs[0].SourceURI)
	require.Len(t, subs[0].Renditions, 3)
	require.Equal(t, video.TierLow, subs[0].Renditions[0].Tier)

	v, err := f.store.Get(ctx, f.keys.VideoUUID("uploads/clip.mp4"))
	require.NoError(t, err)
	require.Equal(t, video.StatusTranscoding, v.Status)
	require.NotEmpty(t, v.ExternalJobRef)
	require.Equal(t, 1, v.Attempts)

	// Acked: nothing left to receive.
	require.Equal(t, 0, f.q.Depth())
}

func TestProcess_DuplicateDeliveryDoesNotResubmit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	msg := f.enqueueVideo(t, "uploads/clip.mp4")
	require.NoError(t, f.o.Process(ctx, msg))

	// Second delivery of the same payload for an already-transcoding video.
	body, err := queue.TranscodeRequest{
		VideoID:   f.keys.VideoUUID("uploads/clip.mp4"),
		SourceKey: "uploads/clip.mp4",
	}.Encode()
	require.NoError(t, err)
	require.NoError(t, f.q.Send(ctx, body))
	msgs, err := f.q.Receive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, f.o.Process(ctx, msgs[0]))
	require.Len(t, f.engine.Submissions(), 1)
}

func TestProcess_SubmissionFailureLeavesMessageInFlight(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	msg := f.enqueueVideo(t, "uploads/clip.mp4")

	f.engine.FailSubmissionsWith(faults.Transientf("engine unreachable"))

	err := f.o.Process(ctx, msg)
	require.Error(t, err)
	require.Equal(t, faults.KindTransient, faults.KindOf(err))

	// Not acked: the message survives for redelivery.
	require.Equal(t, 1, f.q.Depth())

	v, err := f.store.Get(ctx, f.keys.VideoUUID("uploads/clip.mp4"))
	require.NoError(t, err)
	require.Equal(t, video.StatusQueued, v.Status)
	require.Equal(t, 0, v.Attempts)
}

func TestProcess_UnknownVideoIsValidationError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	body, err := queue.TranscodeRequest{
		VideoID:   f.keys.VideoUUID("uploads/ghost.mp4"),
		SourceKey: "uploads/ghost.mp4",
	}.Encode()
	require.NoError(t, err)
	require.NoError(t, f.q.Send(ctx, body))
	msgs, err := f.q.Receive(ctx, 1)
	require.NoError(t, err)

	err = f.o.Process(ctx, msgs[0])
	require.Error(t, err)
	require.Equal(t, faults.KindValidation, faults.KindOf(err))
}

func TestDrainDeadLetters_MarksVideoFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	now := time.Now()
	f.q.SetNow(func() time.Time { return now })

	id := f.keys.VideoUUID("uploads/poison.mp4")
	_, err := f.store.InsertIfAbsent(ctx, video.Video{ID: id, Status: video.StatusQueued, SourceKey: "uploads/poison.mp4"})
	require.NoError(t, err)

	body, err := queue.TranscodeRequest{VideoID: id, SourceKey: "uploads/poison.mp4"}.Encode()
	require.NoError(t, err)
	require.NoError(t, f.q.Send(ctx, body))

	// Burn through the receive budget without acking.
	for i := 0; i < 3; i++ {
		msgs, err := f.q.Receive(ctx, 1)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		now = now.Add(2 * time.Minute)
	}
	msgs, err := f.q.Receive(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, msgs)

	require.NoError(t, f.o.DrainDeadLetters(ctx))

	v, err := f.store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, video.StatusFailed, v.Status)
	require.Equal(t, "transcode retries exhausted", v.FailureReason)

	dead, err := f.q.ReceiveDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, dead)
}

func TestDefaultLadder_Ordered(t *testing.T) {
	ladder := DefaultLadder()
	require.Len(t, ladder, 3)
	for i := 1; i < len(ladder); i++ {
		require.Greater(t, ladder[i].BitrateKbps, ladder[i-1].BitrateKbps)
	}
}
