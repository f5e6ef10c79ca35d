package orchestrator

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Session serialises access to a single process-wide decoder. spec.md §5
// models the decoder as a single shared resource guarded by one coarse
// initialisation mutex; Session is that mutex plus a token-bucket limiter
// so a burst of concurrent callers is paced rather than simply queued
// indefinitely.
type Session struct {
	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewSession builds a Session whose limiter allows r turns per second with
// the given burst. A zero-valued rate.Inf limiter (pass rate.Inf, 0)
// disables pacing and leaves only the mutex gate.
func NewSession(r rate.Limit, burst int) *Session {
	return &Session{limiter: rate.NewLimiter(r, burst)}
}

// Acquire blocks until both the limiter admits a turn and the decoder
// mutex is free, then returns a release function the caller must invoke
// exactly once, on every exit path, to hand the decoder back.
func (s *Session) Acquire(ctx context.Context) (release func(), err error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return s.mu.Unlock, nil
}
