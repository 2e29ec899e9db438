package history

import (
	"context"
	"sync"
	"time"

	"github.com/e-m-dev/remedy/internal/confidence"
)

// MemoryStore is the fallback outcome store used when Redis is not
// configured. History is lost on restart.
type MemoryStore struct {
	mu            sync.Mutex
	successes     map[string]int       // keyed by pattern id
	failures      map[string]int       // keyed by pattern id
	recentFailure map[string]time.Time // keyed by pattern:host
	failureWindow time.Duration

	now func() time.Time
}

// NewMemoryStore creates an in-memory outcome store.
func NewMemoryStore(failureWindow time.Duration) *MemoryStore {
	if failureWindow <= 0 {
		failureWindow = DefaultRecentFailureWindow
	}
	return &MemoryStore{
		successes:     make(map[string]int),
		failures:      make(map[string]int),
		recentFailure: make(map[string]time.Time),
		failureWindow: failureWindow,
		now:           time.Now,
	}
}

func (s *MemoryStore) RecordOutcome(ctx context.Context, patternID, host string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := patternID + ":" + host
	if success {
		s.successes[patternID]++
		delete(s.recentFailure, key)
	} else {
		s.failures[patternID]++
		s.recentFailure[key] = s.now()
	}
	return nil
}

func (s *MemoryStore) Stats(ctx context.Context, patternID, host string) (confidence.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := confidence.Stats{
		Successes: s.successes[patternID],
		Failures:  s.failures[patternID],
	}

	if failedAt, ok := s.recentFailure[patternID+":"+host]; ok {
		if s.now().Sub(failedAt) < s.failureWindow {
			stats.RecentFailure = true
		} else {
			delete(s.recentFailure, patternID+":"+host)
		}
	}

	return stats, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
