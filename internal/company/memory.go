package company

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InMemory implements Store with in-process concurrency safety. The Postgres
// store in internal/store/pg provides the durable equivalent.
type InMemory struct {
	mu        sync.RWMutex
	companies map[string]Company
}

// NewInMemory creates an empty projection.
func NewInMemory() *InMemory {
	return &InMemory{companies: make(map[string]Company)}
}

var _ Store = (*InMemory)(nil)

func (s *InMemory) Get(ctx context.Context, id string) (Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[id]
	if !ok {
		return Company{}, ErrNotFound
	}
	return c, nil
}

func (s *InMemory) GetByURL(ctx context.Context, url string) (Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.companies {
		if c.URL == url && !c.Deleted() {
			return c, nil
		}
	}
	return Company{}, ErrNotFound
}

func (s *InMemory) List(ctx context.Context, includeDeleted bool) ([]Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Company
	for _, c := range s.companies {
		if !includeDeleted && c.Deleted() {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) ChildrenOf(ctx context.Context, id string) ([]Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Company
	for _, c := range s.companies {
		if c.ParentID == id && !c.Deleted() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Save upserts a row. URL uniqueness among non-deleted companies is enforced
// here, matching the partial unique index of the Postgres store.
func (s *InMemory) Save(ctx context.Context, c Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.URL != "" && !c.Deleted() {
		for _, other := range s.companies {
			if other.ID != c.ID && other.URL == c.URL && !other.Deleted() {
				return fmt.Errorf("%w: %q", ErrDuplicateURL, c.URL)
			}
		}
	}
	s.companies[c.ID] = c
	return nil
}
