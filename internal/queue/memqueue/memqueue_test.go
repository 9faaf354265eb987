package memqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReceiveAndDelete(t *testing.T) {
	ctx := context.Background()
	q := New(Config{Visibility: time.Minute, MaxReceives: 3})

	require.NoError(t, q.Send(ctx, []byte("a")))
	require.NoError(t, q.Send(ctx, []byte("b")))

	msgs, err := q.Receive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, 1, msgs[0].ReceiveCount)

	// Both messages are now invisible.
	again, err := q.Receive(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, again)

	require.NoError(t, q.Delete(ctx, msgs[0].ID))
	require.NoError(t, q.Delete(ctx, msgs[1].ID))
	require.Equal(t, 0, q.Depth())
}

func TestRedeliveryIncrementsReceiveCount(t *testing.T) {
	ctx := context.Background()
	q := New(Config{Visibility: time.Minute, MaxReceives: 3})

	now := time.Now()
	q.SetNow(func() time.Time { return now })

	require.NoError(t, q.Send(ctx, []byte("job")))

	msgs, err := q.Receive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, 1, msgs[0].ReceiveCount)

	// Visibility expires without an ack.
	now = now.Add(2 * time.Minute)
	msgs, err = q.Receive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, 2, msgs[0].ReceiveCount)
}

func TestDeadLetterAfterMaxReceives(t *testing.T) {
	ctx := context.Background()
	q := New(Config{Visibility: time.Minute, MaxReceives: 2})

	now := time.Now()
	q.SetNow(func() time.Time { return now })

	require.NoError(t, q.Send(ctx, []byte("poison")))

	for i := 1; i <= 2; i++ {
		msgs, err := q.Receive(ctx, 1)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		require.Equal(t, i, msgs[0].ReceiveCount)
		now = now.Add(2 * time.Minute)
	}

	// Third receive routes the message to the dead-letter store.
	msgs, err := q.Receive(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, msgs)

	dead, err := q.ReceiveDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	require.Equal(t, []byte("poison"), dead[0].Body)

	require.NoError(t, q.DeleteDeadLetter(ctx, dead[0].ID))
	dead, err = q.ReceiveDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, dead)
}

func TestWakeSignalOnSend(t *testing.T) {
	ctx := context.Background()
	q := New(Config{})

	require.NoError(t, q.Send(ctx, []byte("x")))

	select {
	case <-q.Wake():
	case <-time.After(time.Second):
		t.Fatal("expected wake signal after send")
	}
}
