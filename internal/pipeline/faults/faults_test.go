package faults

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf_Classified(t *testing.T) {
	require.Equal(t, KindValidation, KindOf(Validationf("bad key %q", "x")))
	require.Equal(t, KindDuplicate, KindOf(Duplicatef("already queued")))
	require.Equal(t, KindCapacity, KindOf(Capacityf("throttled")))
	require.Equal(t, KindTerminal, KindOf(Terminalf("retries exhausted")))
	require.Equal(t, KindTransient, KindOf(Transientf("timeout")))
}

func TestKindOf_UnclassifiedDefaultsToTransient(t *testing.T) {
	err := errors.New("something unexpected")
	require.Equal(t, KindTransient, KindOf(err))
	require.False(t, Classified(err))
}

func TestKindOf_Wrapped(t *testing.T) {
	inner := Terminalf("verification failed")
	wrapped := fmt.Errorf("completion: %w", inner)
	require.Equal(t, KindTerminal, KindOf(wrapped))
	require.True(t, Classified(wrapped))
}

func TestRetryable(t *testing.T) {
	require.True(t, KindTransient.Retryable())
	require.True(t, KindCapacity.Retryable())
	require.False(t, KindValidation.Retryable())
	require.False(t, KindDuplicate.Retryable())
	require.False(t, KindTerminal.Retryable())
}

func TestNew_NilPassthrough(t *testing.T) {
	require.NoError(t, New(KindTerminal, nil))
}
