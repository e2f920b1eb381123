// Package user holds the user aggregate and its event-sourced mutation
// pipeline. Users are global, not scoped to a single company.
package user

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// User is the materialized current state of one user aggregate. Root marks
// the global superuser; it is never represented as a permission row.
type User struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Lastname       string    `json:"lastname"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	EmailConfirmed bool      `json:"email_confirmed"`
	Root           bool      `json:"root,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Seq            uint64    `json:"-"`
}

var (
	ErrNotFound       = errors.New("user: not found")
	ErrDuplicateEmail = errors.New("user: email already registered")
	ErrValidation     = errors.New("user: invalid input")

	// ErrUnknownEvent flags an event kind the user projection does not
	// recognize; a schema mismatch that must not be masked.
	ErrUnknownEvent = errors.New("user: unrecognized event kind")

	// ErrProjectionDesync flags a row that could not be written after its
	// events were durably appended; Repair replays the aggregate.
	ErrProjectionDesync = errors.New("user: projection out of sync with event log")
)

// Store is the user projection.
type Store interface {
	Get(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	// ListRoot returns all users carrying the Root flag.
	ListRoot(ctx context.Context) ([]User, error)
	Save(ctx context.Context, u User) error
}

// InMemory implements Store with in-process concurrency safety.
type InMemory struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewInMemory creates an empty projection.
func NewInMemory() *InMemory {
	return &InMemory{users: make(map[string]User)}
}

var _ Store = (*InMemory)(nil)

func (s *InMemory) Get(ctx context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *InMemory) GetByEmail(ctx context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (s *InMemory) ListRoot(ctx context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []User
	for _, u := range s.users {
		if u.Root {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) Save(ctx context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}
