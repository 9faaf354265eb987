package video

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	allowed := map[Status][]Status{
		StatusUploaded:    {StatusQueued, StatusFailed},
		StatusQueued:      {StatusTranscoding, StatusFailed},
		StatusTranscoding: {StatusQueued, StatusReady, StatusFailed},
		StatusReady:       {},
		StatusFailed:      {},
	}

	all := []Status{StatusUploaded, StatusQueued, StatusTranscoding, StatusReady, StatusFailed}
	for from, tos := range allowed {
		ok := map[Status]bool{}
		for _, to := range tos {
			ok[to] = true
		}
		for _, to := range all {
			require.Equal(t, ok[to], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminal(t *testing.T) {
	require.True(t, Terminal(StatusReady))
	require.True(t, Terminal(StatusFailed))
	for _, s := range []Status{StatusUploaded, StatusQueued, StatusTranscoding} {
		require.False(t, Terminal(s), s)
	}
}
