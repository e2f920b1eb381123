package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrInvalidInput  = errors.New("auth: invalid input")
	ErrNotAuthorized = errors.New("auth: not authorized")

	// ErrProjectionDesync flags a grant row that could not be written after
	// its event was durably appended; Repair replays the aggregate.
	ErrProjectionDesync = errors.New("auth: grant projection out of sync with event log")
)

// Grant is one (user, company, role) permission row. Multiple rows may exist
// for a user across ancestor companies; the engine considers all of them.
type Grant struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CompanyID string    `json:"company_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	Seq       uint64    `json:"-"`
}

// GrantStore is the permission-table projection. Rows change only through
// the grant pipeline in Service, never directly.
type GrantStore interface {
	Get(ctx context.Context, id string) (Grant, error)
	// GrantsFor returns the user's grants restricted to the candidate
	// company set.
	GrantsFor(ctx context.Context, userID string, companyIDs []string) ([]Grant, error)
	ListByUser(ctx context.Context, userID string) ([]Grant, error)
	ListByCompany(ctx context.Context, companyID string) ([]Grant, error)
	Save(ctx context.Context, g Grant) error
	Delete(ctx context.Context, id string) error
}

// InMemoryGrants implements GrantStore with in-process concurrency safety.
type InMemoryGrants struct {
	mu     sync.RWMutex
	grants map[string]Grant
}

// NewInMemoryGrants creates an empty permission table.
func NewInMemoryGrants() *InMemoryGrants {
	return &InMemoryGrants{grants: make(map[string]Grant)}
}

var _ GrantStore = (*InMemoryGrants)(nil)

func (s *InMemoryGrants) Get(ctx context.Context, id string) (Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[id]
	if !ok {
		return Grant{}, ErrNotFound
	}
	return g, nil
}

func (s *InMemoryGrants) GrantsFor(ctx context.Context, userID string, companyIDs []string) ([]Grant, error) {
	candidates := make(map[string]struct{}, len(companyIDs))
	for _, id := range companyIDs {
		candidates[id] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Grant
	for _, g := range s.grants {
		if g.UserID != userID {
			continue
		}
		if _, ok := candidates[g.CompanyID]; !ok {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *InMemoryGrants) ListByUser(ctx context.Context, userID string) ([]Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Grant
	for _, g := range s.grants {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *InMemoryGrants) ListByCompany(ctx context.Context, companyID string) ([]Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Grant
	for _, g := range s.grants {
		if g.CompanyID == companyID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *InMemoryGrants) Save(ctx context.Context, g Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[g.ID] = g
	return nil
}

func (s *InMemoryGrants) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[id]; !ok {
		return ErrNotFound
	}
	delete(s.grants, id)
	return nil
}
