package scheduler

import (
	"context"
	"sync"
)

// singleFlight ensures at most one in-flight check pass per target. Two
// overlapping passes would interleave reads and writes of the target's
// cached state and could double-fire threshold events.
type singleFlight struct {
	mu   sync.Mutex
	keys map[string]chan struct{}
}

func newSingleFlight() *singleFlight {
	return &singleFlight{keys: make(map[string]chan struct{})}
}

func (s *singleFlight) TryAcquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.keys[key]; busy {
		return false
	}
	s.keys[key] = make(chan struct{})
	return true
}

// Acquire blocks until the key is free, for callers that need the pass to
// run rather than be skipped.
func (s *singleFlight) Acquire(ctx context.Context, key string) error {
	for {
		s.mu.Lock()
		ch, busy := s.keys[key]
		if !busy {
			s.keys[key] = make(chan struct{})
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func (s *singleFlight) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.keys[key]; ok {
		close(ch)
		delete(s.keys, key)
	}
}
