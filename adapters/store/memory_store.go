package store

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger is an in-memory implementation of the ChallengeLedger interface
type MemoryLedger struct {
	consumed map[string]time.Time
	mu       sync.Mutex
	now      func() time.Time
}

// NewMemoryLedger creates a new in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		consumed: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Consume marks a challenge as used
func (s *MemoryLedger) Consume(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)

	if expiry, exists := s.consumed[id]; exists && now.Before(expiry) {
		return false, nil
	}
	s.consumed[id] = now.Add(ttl)

	return true, nil
}

// sweep drops entries whose retention has passed
func (s *MemoryLedger) sweep(now time.Time) {
	for id, expiry := range s.consumed {
		if !now.Before(expiry) {
			delete(s.consumed, id)
		}
	}
}
