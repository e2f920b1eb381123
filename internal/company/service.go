package company

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"cotbi.org/internal/auth"
	"cotbi.org/internal/event"
	"cotbi.org/internal/ids"
)

// Notifier is informed after a company event has been committed. Failures
// there are the notifier's problem; they never roll back the event.
type Notifier interface {
	CompanyCreated(ctx context.Context, c Company, actorID string)
}

// Authorizer gates company-scoped operations.
type Authorizer interface {
	Authorize(ctx context.Context, ident auth.Identity, companyID string, opts auth.Options) (bool, error)
}

// Service is the mutation pipeline for the company aggregate: validate the
// command, authorize it, turn it into an event, append, project, notify.
type Service struct {
	companies Store
	events    event.Store
	authz     Authorizer
	hierarchy *Hierarchy
	grants    auth.GrantStore
	notifier  Notifier
}

// NewService wires the pipeline. notifier may be nil.
func NewService(companies Store, events event.Store, authz Authorizer, hierarchy *Hierarchy, grants auth.GrantStore, notifier Notifier) (*Service, error) {
	if companies == nil || events == nil || authz == nil || hierarchy == nil || grants == nil {
		return nil, fmt.Errorf("%w: company store, event store, authorizer, hierarchy and grants are required", ErrValidation)
	}
	return &Service{
		companies: companies,
		events:    events,
		authz:     authz,
		hierarchy: hierarchy,
		grants:    grants,
		notifier:  notifier,
	}, nil
}

// Hierarchy exposes the index for read-side callers.
func (s *Service) Hierarchy() *Hierarchy { return s.hierarchy }

// CreateRequest is the create-company command.
type CreateRequest struct {
	Name     string `json:"name"`
	Activity string `json:"activity"`
	URL      string `json:"url"`
	ParentID string `json:"parent_id"`
}

// UpdateRequest carries only the fields to change.
type UpdateRequest struct {
	Name     *string `json:"name"`
	Activity *string `json:"activity"`
	URL      *string `json:"url"`
}

// Create registers a new company. Root only. The url slug must not be in use
// by another non-deleted company.
func (s *Service) Create(ctx context.Context, actor auth.Identity, req CreateRequest) (Company, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Company{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	url := normalizeURL(req.URL)
	parentID := strings.TrimSpace(req.ParentID)

	ok, err := s.authz.Authorize(ctx, actor, "", auth.Options{AllowRoot: true})
	if err != nil {
		return Company{}, err
	}
	if !ok {
		return Company{}, auth.ErrNotAuthorized
	}

	if parentID != "" {
		if _, err := s.companies.Get(ctx, parentID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return Company{}, fmt.Errorf("%w: parent company %s does not exist", ErrValidation, parentID)
			}
			return Company{}, err
		}
	}
	if url != "" {
		if err := s.checkURLFree(ctx, url, ""); err != nil {
			return Company{}, err
		}
	}

	evt := event.Event{
		AggregateID: ids.New(),
		ActorID:     actor.UserID,
		Kind:        event.KindCompanyCreated,
		Payload: CreatedPayload{
			Name:     name,
			Activity: strings.TrimSpace(req.Activity),
			URL:      url,
			ParentID: parentID,
		},
	}
	appended, err := s.events.Append(ctx, evt, 0)
	if err != nil {
		return Company{}, err
	}

	c, err := s.project(ctx, nil, appended)
	if err != nil {
		return Company{}, err
	}
	if s.notifier != nil {
		s.notifier.CompanyCreated(ctx, c, actor.UserID)
	}
	return c, nil
}

// Update changes company fields. Requires the Super role held on the company
// itself (absolute, non-inherited); Root always passes. A url change
// colliding with a different non-deleted company is rejected; renaming a
// company to its own current url is a no-op.
func (s *Service) Update(ctx context.Context, actor auth.Identity, id string, req UpdateRequest) (Company, error) {
	cur, err := s.getActive(ctx, id)
	if err != nil {
		return Company{}, err
	}

	ok, err := s.authz.Authorize(ctx, actor, id, auth.Options{
		AllowRoot:       true,
		MinRole:         auth.RoleSuper,
		RequireAbsolute: true,
	})
	if err != nil {
		return Company{}, err
	}
	if !ok {
		return Company{}, auth.ErrNotAuthorized
	}

	payload := UpdatedPayload{}
	changed := false
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return Company{}, fmt.Errorf("%w: name must not be empty", ErrValidation)
		}
		payload.Name = &name
		changed = true
	}
	if req.Activity != nil {
		activity := strings.TrimSpace(*req.Activity)
		payload.Activity = &activity
		changed = true
	}
	if req.URL != nil {
		url := normalizeURL(*req.URL)
		if url != cur.URL {
			if url != "" {
				if err := s.checkURLFree(ctx, url, cur.ID); err != nil {
					return Company{}, err
				}
			}
			payload.URL = &url
			changed = true
		}
	}
	if !changed {
		return cur, nil
	}

	evt := event.Event{
		AggregateID: cur.ID,
		ActorID:     actor.UserID,
		Kind:        event.KindCompanyUpdated,
		Payload:     payload,
	}
	appended, err := s.events.Append(ctx, evt, cur.Seq)
	if err != nil {
		return Company{}, err
	}
	return s.project(ctx, &cur, appended)
}

// Delete soft-deletes a company. Root only. The row stays in place so
// historical events and permission references remain valid.
func (s *Service) Delete(ctx context.Context, actor auth.Identity, id string) (Company, error) {
	cur, err := s.getActive(ctx, id)
	if err != nil {
		return Company{}, err
	}

	ok, err := s.authz.Authorize(ctx, actor, id, auth.Options{AllowRoot: true})
	if err != nil {
		return Company{}, err
	}
	if !ok {
		return Company{}, auth.ErrNotAuthorized
	}

	evt := event.Event{
		AggregateID: cur.ID,
		ActorID:     actor.UserID,
		Kind:        event.KindCompanyDeleted,
		Payload:     DeletedPayload{DeletedAt: time.Now().UTC()},
	}
	appended, err := s.events.Append(ctx, evt, cur.Seq)
	if err != nil {
		return Company{}, err
	}
	return s.project(ctx, &cur, appended)
}

// Get returns a company by id; soft-deleted companies read as not found.
func (s *Service) Get(ctx context.Context, id string) (Company, error) {
	return s.getActive(ctx, id)
}

// GetByURL resolves a company by url slug for the requesting user. Any role
// on the company or an ancestor suffices; Root always passes.
func (s *Service) GetByURL(ctx context.Context, actor auth.Identity, url string) (Company, error) {
	c, err := s.companies.GetByURL(ctx, normalizeURL(url))
	if err != nil {
		return Company{}, err
	}
	ok, err := s.authz.Authorize(ctx, actor, c.ID, auth.Options{
		AllowRoot:            true,
		MinRole:              auth.RoleMember,
		InheritFromAncestors: true,
	})
	if err != nil {
		return Company{}, err
	}
	if !ok {
		return Company{}, auth.ErrNotAuthorized
	}
	return c, nil
}

// Children returns direct children of a company.
func (s *Service) Children(ctx context.Context, id string) ([]Company, error) {
	if _, err := s.getActive(ctx, id); err != nil {
		return nil, err
	}
	return s.hierarchy.ChildrenOf(ctx, id)
}

// CompaniesOf returns the non-deleted companies the user holds any grant on.
func (s *Service) CompaniesOf(ctx context.Context, userID string) ([]Company, error) {
	grants, err := s.grants.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(grants))
	var out []Company
	for _, g := range grants {
		if _, ok := seen[g.CompanyID]; ok {
			continue
		}
		seen[g.CompanyID] = struct{}{}
		c, err := s.companies.Get(ctx, g.CompanyID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if c.Deleted() {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// List returns all companies. Root only.
func (s *Service) List(ctx context.Context, actor auth.Identity, includeDeleted bool) ([]Company, error) {
	ok, err := s.authz.Authorize(ctx, actor, "", auth.Options{AllowRoot: true})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, auth.ErrNotAuthorized
	}
	return s.companies.List(ctx, includeDeleted)
}

// Repair replays the aggregate's full history and rewrites the projection
// row. Used when a projection write failed after a successful append.
func (s *Service) Repair(ctx context.Context, id string) (Company, error) {
	history, err := s.events.History(ctx, id)
	if err != nil {
		return Company{}, err
	}
	c, err := Replay(history)
	if err != nil {
		return Company{}, err
	}
	if err := s.companies.Save(ctx, c); err != nil {
		return Company{}, fmt.Errorf("%w: %v", ErrProjectionDesync, err)
	}
	return c, nil
}

// project applies a committed event and writes the projection row. A unique
// URL violation at this point means a concurrent writer won the slug between
// the pre-append check and the write; that stays ErrDuplicateURL so the
// caller sees a conflict, not an integrity fault. Any other failed write
// after a successful append is surfaced as ErrProjectionDesync so the
// operator can replay the aggregate; it is never swallowed.
func (s *Service) project(ctx context.Context, prev *Company, evt event.Event) (Company, error) {
	next, err := Apply(prev, evt)
	if err != nil {
		return Company{}, err
	}
	if err := s.companies.Save(ctx, next); err != nil {
		if errors.Is(err, ErrDuplicateURL) {
			return Company{}, err
		}
		return Company{}, fmt.Errorf("%w: event %s appended but not projected: %v", ErrProjectionDesync, evt.ID, err)
	}
	return next, nil
}

func (s *Service) getActive(ctx context.Context, id string) (Company, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Company{}, fmt.Errorf("%w: company id is required", ErrValidation)
	}
	c, err := s.companies.Get(ctx, id)
	if err != nil {
		return Company{}, err
	}
	if c.Deleted() {
		return Company{}, ErrNotFound
	}
	return c, nil
}

// checkURLFree rejects a url owned by a different, non-deleted company.
// selfID is empty on create.
func (s *Service) checkURLFree(ctx context.Context, url, selfID string) error {
	existing, err := s.companies.GetByURL(ctx, url)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if existing.ID != selfID {
		return fmt.Errorf("%w: %q", ErrDuplicateURL, url)
	}
	return nil
}

func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return slug.Make(raw)
}
