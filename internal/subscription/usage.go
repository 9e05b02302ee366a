package subscription

import (
	"context"
	"sync"
)

// InMemoryUsage tracks current-period counters per account in process.
// NOTE: swap for the durable store in deployments that outlive restarts.
type InMemoryUsage struct {
	mu     sync.RWMutex
	counts map[string]Usage
}

// NewInMemoryUsage creates an empty usage store.
func NewInMemoryUsage() *InMemoryUsage {
	return &InMemoryUsage{counts: make(map[string]Usage)}
}

var _ UsageReader = (*InMemoryUsage)(nil)

// Usage returns the account's current-period counters; zero values for
// accounts never seen.
func (s *InMemoryUsage) Usage(ctx context.Context, accountID string) (Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[accountID], nil
}

// IncrementContracts records one more contract created this period.
func (s *InMemoryUsage) IncrementContracts(ctx context.Context, accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.counts[accountID]
	u.ContractsCreated++
	s.counts[accountID] = u
}

// ResetPeriod clears all counters. Called by the billing collaborator at
// period boundaries.
func (s *InMemoryUsage) ResetPeriod(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[string]Usage)
}
