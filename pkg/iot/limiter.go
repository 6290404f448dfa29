package iot

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type deviceLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterStore manages per-device rate limiters: device_id -> rate limiter.
// A nil store allows everything.
type RateLimiterStore struct {
	limiters     map[string]*deviceLimiter
	mu           sync.Mutex
	defaultRate  rate.Limit
	defaultBurst int
	now          func() time.Time
}

func NewRateLimiterStore(defaultRate rate.Limit, defaultBurst int) *RateLimiterStore {
	return &RateLimiterStore{
		limiters:     make(map[string]*deviceLimiter),
		defaultRate:  defaultRate,
		defaultBurst: defaultBurst,
		now:          time.Now,
	}
}

func (s *RateLimiterStore) GetLimiter(deviceID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.limiters[deviceID]
	if !exists {
		entry = &deviceLimiter{limiter: rate.NewLimiter(s.defaultRate, s.defaultBurst)}
		s.limiters[deviceID] = entry
	}
	entry.lastSeen = s.now()
	return entry.limiter
}

func (s *RateLimiterStore) SetLimiter(deviceID string, deviceRate rate.Limit, deviceBurst int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limiters[deviceID] = &deviceLimiter{
		limiter:  rate.NewLimiter(deviceRate, deviceBurst),
		lastSeen: s.now(),
	}
}

func (s *RateLimiterStore) Allow(deviceID string) bool {
	if s == nil {
		return true
	}
	return s.GetLimiter(deviceID).Allow()
}

// Prune forgets limiters of devices not seen for longer than idle, including custom ones set with
// SetLimiter. It returns how many were removed.
func (s *RateLimiterStore) Prune(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-idle)
	removed := 0
	for deviceID, entry := range s.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(s.limiters, deviceID)
			removed++
		}
	}
	return removed
}

func (s *RateLimiterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}
