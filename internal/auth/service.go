package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cotbi.org/internal/event"
	"cotbi.org/internal/ids"
)

// GrantedPayload is the immutable snapshot of a permission.granted event.
type GrantedPayload struct {
	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id"`
	Role      string `json:"role"`
}

// RevokedPayload is the (empty) snapshot of a permission.revoked event.
type RevokedPayload struct{}

// Service is the mutation pipeline for permission grants. Every change is
// recorded as an event before the grant projection is touched; each grant is
// its own aggregate in the event log.
type Service struct {
	grants GrantStore
	events event.Store
	engine *Engine
}

// NewService constructs the grant pipeline.
func NewService(grants GrantStore, events event.Store, engine *Engine) (*Service, error) {
	if grants == nil || events == nil || engine == nil {
		return nil, fmt.Errorf("%w: grant store, event store and engine are required", ErrInvalidInput)
	}
	return &Service{grants: grants, events: events, engine: engine}, nil
}

// Engine exposes the decision engine for callers that gate reads directly.
func (s *Service) Engine() *Engine { return s.engine }

// Grant gives userID the role on companyID. The actor needs Super on the
// company or any of its ancestors; Root always passes.
func (s *Service) Grant(ctx context.Context, actor Identity, userID, companyID string, role Role) (Grant, error) {
	userID = strings.TrimSpace(userID)
	companyID = strings.TrimSpace(companyID)
	if userID == "" || companyID == "" {
		return Grant{}, fmt.Errorf("%w: user_id and company_id are required", ErrInvalidInput)
	}
	if !role.Valid() {
		return Grant{}, fmt.Errorf("%w: role is required", ErrInvalidInput)
	}

	ok, err := s.engine.Authorize(ctx, actor, companyID, Options{
		AllowRoot:            true,
		MinRole:              RoleSuper,
		InheritFromAncestors: true,
	})
	if err != nil {
		return Grant{}, err
	}
	if !ok {
		return Grant{}, ErrNotAuthorized
	}

	evt := event.Event{
		AggregateID: ids.New(),
		ActorID:     actor.UserID,
		Kind:        event.KindPermissionGranted,
		Payload:     GrantedPayload{UserID: userID, CompanyID: companyID, Role: role.String()},
	}
	appended, err := s.events.Append(ctx, evt, 0)
	if err != nil {
		return Grant{}, err
	}

	g, err := applyGrantEvent(nil, appended)
	if err != nil {
		return Grant{}, err
	}
	if err := s.grants.Save(ctx, g); err != nil {
		return Grant{}, fmt.Errorf("%w: event %s appended but not projected: %v", ErrProjectionDesync, appended.ID, err)
	}
	return g, nil
}

// Revoke removes a grant. Same gate as Grant, evaluated against the grant's
// company.
func (s *Service) Revoke(ctx context.Context, actor Identity, grantID string) error {
	grantID = strings.TrimSpace(grantID)
	if grantID == "" {
		return fmt.Errorf("%w: grant_id is required", ErrInvalidInput)
	}
	g, err := s.grants.Get(ctx, grantID)
	if err != nil {
		return err
	}

	ok, err := s.engine.Authorize(ctx, actor, g.CompanyID, Options{
		AllowRoot:            true,
		MinRole:              RoleSuper,
		InheritFromAncestors: true,
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}

	evt := event.Event{
		AggregateID: g.ID,
		ActorID:     actor.UserID,
		Kind:        event.KindPermissionRevoked,
		Payload:     RevokedPayload{},
	}
	if _, err := s.events.Append(ctx, evt, g.Seq); err != nil {
		return err
	}
	// A missing row means the projection already reflects the revocation.
	if err := s.grants.Delete(ctx, g.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: revocation of %s appended but not projected: %v", ErrProjectionDesync, g.ID, err)
	}
	return nil
}

// Repair replays a grant aggregate and rewrites, or removes, its projection
// row. Used when a row write failed after a successful append. The second
// return value reports whether the grant is still active.
func (s *Service) Repair(ctx context.Context, grantID string) (Grant, bool, error) {
	grantID = strings.TrimSpace(grantID)
	if grantID == "" {
		return Grant{}, false, fmt.Errorf("%w: grant_id is required", ErrInvalidInput)
	}
	history, err := s.events.History(ctx, grantID)
	if err != nil {
		return Grant{}, false, err
	}
	if len(history) == 0 {
		return Grant{}, false, ErrNotFound
	}
	g, err := applyGrantEvent(nil, history[0])
	if err != nil {
		return Grant{}, false, err
	}
	for _, evt := range history[1:] {
		if g, err = applyGrantEvent(&g, evt); err != nil {
			return Grant{}, false, err
		}
	}
	if history[len(history)-1].Kind == event.KindPermissionRevoked {
		if err := s.grants.Delete(ctx, grantID); err != nil && !errors.Is(err, ErrNotFound) {
			return Grant{}, false, fmt.Errorf("%w: %v", ErrProjectionDesync, err)
		}
		return g, false, nil
	}
	if err := s.grants.Save(ctx, g); err != nil {
		return Grant{}, false, fmt.Errorf("%w: %v", ErrProjectionDesync, err)
	}
	return g, true, nil
}

// applyGrantEvent projects one event onto a grant. It is total over the
// permission event kinds; anything else is a schema mismatch and fails hard.
func applyGrantEvent(prev *Grant, evt event.Event) (Grant, error) {
	if prev != nil && evt.Seq <= prev.Seq {
		// Redelivered event: already applied.
		return *prev, nil
	}
	switch evt.Kind {
	case event.KindPermissionGranted:
		if prev != nil {
			return Grant{}, fmt.Errorf("%w: grant %s already exists", ErrInvalidInput, evt.AggregateID)
		}
		var p GrantedPayload
		if err := event.DecodePayload(evt, &p); err != nil {
			return Grant{}, err
		}
		role, err := ParseRole(p.Role)
		if err != nil {
			return Grant{}, err
		}
		return Grant{
			ID:        evt.AggregateID,
			UserID:    p.UserID,
			CompanyID: p.CompanyID,
			Role:      role,
			CreatedAt: evt.OccurredAt,
			Seq:       evt.Seq,
		}, nil
	case event.KindPermissionRevoked:
		if prev == nil {
			return Grant{}, fmt.Errorf("%w: revoke without grant %s", ErrInvalidInput, evt.AggregateID)
		}
		next := *prev
		next.Seq = evt.Seq
		return next, nil
	default:
		return Grant{}, fmt.Errorf("unrecognized event kind %q for grant %s", evt.Kind, evt.AggregateID)
	}
}
