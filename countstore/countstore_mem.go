package countstore

import (
	"context"
	"sync"
	"time"
)

// MemCountStore keeps counters in process memory. Good for tests and
// single-node deployments; counters reset on restart.
type MemCountStore struct {
	mu             sync.Mutex
	counts         map[string]int64
	distinctCounts map[string]map[string]bool
}

func NewMemCountStore() *MemCountStore {
	return &MemCountStore{
		counts:         make(map[string]int64),
		distinctCounts: make(map[string]map[string]bool),
	}
}

func (s *MemCountStore) GetCount(ctx context.Context, name, val, period string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[periodBucket(name, val, period, now)], nil
}

func (s *MemCountStore) Increment(ctx context.Context, name, val string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		s.counts[periodBucket(name, val, p, now)]++
	}
	return nil
}

func (s *MemCountStore) GetCountDistinct(ctx context.Context, name, val, period string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.distinctCounts[periodBucket(name, val, period, now)])), nil
}

func (s *MemCountStore) IncrementDistinct(ctx context.Context, name, bucket, val string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		k := periodBucket(name, bucket, p, now)
		m, ok := s.distinctCounts[k]
		if !ok {
			m = make(map[string]bool)
			s.distinctCounts[k] = m
		}
		m[val] = true
	}
	return nil
}
