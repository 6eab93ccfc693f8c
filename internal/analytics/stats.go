package analytics

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// PolicyStats counts lease outcomes for one policy.
type PolicyStats struct {
	Policy   string `json:"policy"`
	Total    int64  `json:"total"`
	Accepted int64  `json:"accepted"`
	Rejected int64  `json:"rejected"`
}

// Stats aggregates lease events in memory. It implements both Store and StatsReader.
type Stats struct {
	mu       sync.Mutex
	policies map[string]*PolicyStats
}

// NewStats creates an empty aggregate.
func NewStats() *Stats {
	return &Stats{policies: make(map[string]*PolicyStats)}
}

func (s *Stats) SaveLease(_ context.Context, event *LeaseEvent) error {
	s.Observe(*event)

	return nil
}

// Observe adds one event to the aggregate.
func (s *Stats) Observe(event LeaseEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps, ok := s.policies[event.Policy]
	if !ok {
		ps = &PolicyStats{Policy: event.Policy}
		s.policies[event.Policy] = ps
	}

	ps.Total++

	if event.Permitted {
		ps.Accepted++
	} else {
		ps.Rejected++
	}
}

// Snapshot returns a copy of the counters ordered by policy name.
func (s *Stats) Snapshot(_ context.Context) ([]PolicyStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PolicyStats, 0, len(s.policies))
	for _, ps := range s.policies {
		out = append(out, *ps)
	}

	slices.SortFunc(out, func(a, b PolicyStats) int {
		return strings.Compare(a.Policy, b.Policy)
	})

	return out, nil
}
