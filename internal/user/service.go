package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cotbi.org/internal/auth"
	"cotbi.org/internal/event"
	"cotbi.org/internal/ids"
)

// Service is the mutation pipeline for the user aggregate.
type Service struct {
	users  Store
	events event.Store
}

// NewService wires the pipeline.
func NewService(users Store, events event.Store) (*Service, error) {
	if users == nil || events == nil {
		return nil, fmt.Errorf("%w: user store and event store are required", ErrValidation)
	}
	return &Service{users: users, events: events}, nil
}

// CreateRequest is the register-user command.
type CreateRequest struct {
	Name     string `json:"name"`
	Lastname string `json:"lastname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateRequest carries only the fields to change.
type UpdateRequest struct {
	Name     *string `json:"name"`
	Lastname *string `json:"lastname"`
}

// Create registers a new user. Two events are recorded, mirroring the
// aggregate's history shape: user.created followed by user.password_changed
// carrying the initial hash.
func (s *Service) Create(ctx context.Context, req CreateRequest) (User, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return User{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	lastname := strings.TrimSpace(req.Lastname)
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrValidation)
	}
	password := strings.TrimSpace(req.Password)
	if password == "" {
		return User{}, fmt.Errorf("%w: password is required", ErrValidation)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return User{}, ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return User{}, err
	}

	id := ids.New()
	created, err := s.events.Append(ctx, event.Event{
		AggregateID: id,
		ActorID:     id,
		Kind:        event.KindUserCreated,
		Payload:     CreatedPayload{Name: name, Lastname: lastname, Email: email},
	}, 0)
	if err != nil {
		return User{}, err
	}
	u, err := Apply(nil, created)
	if err != nil {
		return User{}, err
	}

	pwEvt, err := s.events.Append(ctx, event.Event{
		AggregateID: id,
		ActorID:     id,
		Kind:        event.KindPasswordChanged,
		Payload:     PasswordChangedPayload{PasswordHash: hash},
	}, created.Seq)
	if err != nil {
		return User{}, err
	}
	u, err = Apply(&u, pwEvt)
	if err != nil {
		return User{}, err
	}

	if err := s.users.Save(ctx, u); err != nil {
		return User{}, fmt.Errorf("%w: events for %s appended but not projected: %v", ErrProjectionDesync, id, err)
	}
	return u, nil
}

// BootstrapRoot ensures a Root user exists for the given credentials.
// Called at startup from environment config; without it a fresh deployment
// has no identity able to perform Root-only operations. Idempotent: an
// existing user with the email is promoted, an existing Root user is left
// untouched.
func (s *Service) BootstrapRoot(ctx context.Context, name, email, password string) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	existing, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Root {
			return existing, nil
		}
		existing.Root = true
		if err := s.users.Save(ctx, existing); err != nil {
			return User{}, err
		}
		return existing, nil
	case !errors.Is(err, ErrNotFound):
		return User{}, err
	}

	u, err := s.Create(ctx, CreateRequest{Name: name, Email: email, Password: password})
	if err != nil {
		return User{}, err
	}
	// Root is operator-assigned, never event-sourced.
	u.Root = true
	if err := s.users.Save(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Update changes a user's name fields. Only the user themselves or Root may
// do this.
func (s *Service) Update(ctx context.Context, actor auth.Identity, id string, req UpdateRequest) (User, error) {
	cur, err := s.mustOwn(ctx, actor, id)
	if err != nil {
		return User{}, err
	}

	payload := UpdatedPayload{}
	changed := false
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return User{}, fmt.Errorf("%w: name must not be empty", ErrValidation)
		}
		payload.Name = &name
		changed = true
	}
	if req.Lastname != nil {
		lastname := strings.TrimSpace(*req.Lastname)
		payload.Lastname = &lastname
		changed = true
	}
	if !changed {
		return cur, nil
	}

	appended, err := s.events.Append(ctx, event.Event{
		AggregateID: cur.ID,
		ActorID:     actor.UserID,
		Kind:        event.KindUserUpdated,
		Payload:     payload,
	}, cur.Seq)
	if err != nil {
		return User{}, err
	}
	return s.project(ctx, &cur, appended)
}

// ChangePassword records a user.password_changed event with a fresh hash.
// Only the user themselves or Root may do this.
func (s *Service) ChangePassword(ctx context.Context, actor auth.Identity, id, password string) error {
	cur, err := s.mustOwn(ctx, actor, id)
	if err != nil {
		return err
	}
	password = strings.TrimSpace(password)
	if password == "" {
		return fmt.Errorf("%w: password is required", ErrValidation)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	appended, err := s.events.Append(ctx, event.Event{
		AggregateID: cur.ID,
		ActorID:     actor.UserID,
		Kind:        event.KindPasswordChanged,
		Payload:     PasswordChangedPayload{PasswordHash: hash},
	}, cur.Seq)
	if err != nil {
		return err
	}
	_, err = s.project(ctx, &cur, appended)
	return err
}

// Repair replays the aggregate's history and rewrites the projection row.
// Used when a row write failed after a successful append. Root and
// EmailConfirmed are operator-assigned, not event-sourced, so the current
// row's flags carry over.
func (s *Service) Repair(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	history, err := s.events.History(ctx, id)
	if err != nil {
		return User{}, err
	}
	u, err := Replay(history)
	if err != nil {
		return User{}, err
	}
	if cur, err := s.users.Get(ctx, id); err == nil {
		u.Root = cur.Root
		u.EmailConfirmed = cur.EmailConfirmed
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}
	if err := s.users.Save(ctx, u); err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrProjectionDesync, err)
	}
	return u, nil
}

// project applies a committed event and writes the projection row. A failed
// write after a successful append is surfaced as ErrProjectionDesync so the
// operator can replay the aggregate; it is never swallowed.
func (s *Service) project(ctx context.Context, prev *User, evt event.Event) (User, error) {
	next, err := Apply(prev, evt)
	if err != nil {
		return User{}, err
	}
	if err := s.users.Save(ctx, next); err != nil {
		return User{}, fmt.Errorf("%w: event %s appended but not projected: %v", ErrProjectionDesync, evt.ID, err)
	}
	return next, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	return s.users.Get(ctx, id)
}

// Authenticate verifies email+password and resolves the caller identity.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	if err := auth.VerifyPassword(u.PasswordHash, password); err != nil {
		return User{}, auth.ErrNotAuthorized
	}
	return u, nil
}

func (s *Service) mustOwn(ctx context.Context, actor auth.Identity, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if !actor.Root && actor.UserID != id {
		return User{}, auth.ErrNotAuthorized
	}
	return s.users.Get(ctx, id)
}
