package ratelimit

import (
	"context"
	"sync"
	"time"

	"payflow/pkg/logger"

	"go.uber.org/zap"
)

// actorWindow is one actor's recorded request times plus the span they
// were recorded under, so a purge sweep can expire it without the actor
// ever coming back.
type actorWindow struct {
	stamps []time.Time
	span   time.Duration
}

// MemoryStore keeps window state in a process-local map. Limits are
// per-instance; use RedisStore when running more than one replica.
type MemoryStore struct {
	mu         sync.Mutex
	windows    map[string]*actorWindow
	purgeAbove int
}

func NewMemoryStore(purgeAbove int) *MemoryStore {
	if purgeAbove <= 0 {
		purgeAbove = 1000
	}
	return &MemoryStore{
		windows:    make(map[string]*actorWindow),
		purgeAbove: purgeAbove,
	}
}

func (s *MemoryStore) Take(_ context.Context, key string, window time.Duration, limit int, now time.Time) (bool, int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.trim(key, window, now)
	count := len(w.stamps)

	if count >= limit {
		return false, count, w.stamps[0], nil
	}

	w.stamps = append(w.stamps, now)
	s.purgeIdle(now)
	return true, count, time.Time{}, nil
}

func (s *MemoryStore) Peek(_ context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.trim(key, window, now)
	if len(w.stamps) == 0 {
		return 0, time.Time{}, nil
	}
	return len(w.stamps), w.stamps[0], nil
}

// Reset clears the window for one key.
func (s *MemoryStore) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
}

// trim drops timestamps older than now-window and remembers the span for
// later purge sweeps. Caller holds the lock.
func (s *MemoryStore) trim(key string, window time.Duration, now time.Time) *actorWindow {
	w, ok := s.windows[key]
	if !ok {
		w = &actorWindow{span: window}
		s.windows[key] = w
	}
	w.span = window
	w.stamps = expire(w.stamps, now.Add(-window))
	return w
}

func expire(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		stamps = stamps[i:]
	}
	return stamps
}

// purgeIdle expires every tracked window against its own span once the
// tracked-key count crosses the threshold, and drops the empty ones.
// Bounds memory for actors that never come back. Caller holds the lock.
func (s *MemoryStore) purgeIdle(now time.Time) {
	if len(s.windows) <= s.purgeAbove {
		return
	}
	purged := 0
	for k, w := range s.windows {
		w.stamps = expire(w.stamps, now.Add(-w.span))
		if len(w.stamps) == 0 {
			delete(s.windows, k)
			purged++
		}
	}
	if purged > 0 {
		logger.Debug("purged idle rate limit windows",
			zap.Int("purged", purged), zap.Int("remaining", len(s.windows)))
	}
}
