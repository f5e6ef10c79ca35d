package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestSessionSerialisesAcquireRelease(t *testing.T) {
	s := NewSession(rate.Inf, 1)

	release1, err := s.Acquire(context.Background())
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		release2, err := s.Acquire(context.Background())
		require.NoError(t, err)
		close(acquired)
		release2()
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire returned before first was released")
	case <-time.After(20 * time.Millisecond):
	}

	release1()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire never returned after release")
	}
}

func TestSessionAcquireRespectsContextCancellation(t *testing.T) {
	s := NewSession(1, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Acquire(ctx)
	require.Error(t, err)
}
