package event

import (
	"context"
	"sync"
	"time"

	"cotbi.org/internal/ids"
	"cotbi.org/internal/obs"
)

// InMemory implements Store with in-process concurrency safety. The Postgres
// store in internal/store/pg provides the durable equivalent behind the same
// interface.
type InMemory struct {
	mu    sync.RWMutex
	byAgg map[string][]Event
}

// NewInMemory creates an empty event log.
func NewInMemory() *InMemory {
	return &InMemory{byAgg: make(map[string][]Event)}
}

var _ Store = (*InMemory)(nil)

func (s *InMemory) Append(ctx context.Context, evt Event, expected uint64) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.byAgg[evt.AggregateID]
	if uint64(len(history)) != expected {
		return Event{}, ErrSequenceConflict
	}

	evt.ID = ids.New()
	evt.Seq = expected + 1
	evt.OccurredAt = time.Now().UTC()
	s.byAgg[evt.AggregateID] = append(history, evt)
	obs.CountEvent(string(evt.Kind))
	return evt, nil
}

func (s *InMemory) History(ctx context.Context, aggregateID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.byAgg[aggregateID]
	out := make([]Event, len(history))
	copy(out, history)
	return out, nil
}
