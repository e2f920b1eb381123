// Package company holds the company aggregate: its hierarchy index, its
// event-sourced mutation pipeline and its current-state projection.
package company

import (
	"context"
	"errors"
	"time"
)

// Company is the materialized current state of one company aggregate.
// ParentID links companies into a forest; an empty ParentID marks a root
// company. Seq is the sequence of the last applied event.
type Company struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Activity  string     `json:"activity,omitempty"`
	URL       string     `json:"url,omitempty"`
	ParentID  string     `json:"parent_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	Seq       uint64     `json:"-"`
}

// Deleted reports whether the company is soft-deleted.
func (c Company) Deleted() bool { return c.DeletedAt != nil }

var (
	ErrNotFound     = errors.New("company: not found")
	ErrDuplicateURL = errors.New("company: url already in use")
	ErrValidation   = errors.New("company: invalid input")

	// ErrCycleDetected means the parent chain revisited a company. The forest
	// invariant should make this impossible; it is a fatal integrity fault.
	ErrCycleDetected = errors.New("company: hierarchy cycle detected")

	// ErrUnknownEvent means the projection met an event kind it does not
	// recognize for this aggregate: a schema/version mismatch, never masked.
	ErrUnknownEvent = errors.New("company: unrecognized event kind")

	// ErrProjectionDesync means an event was durably appended but the
	// projection write failed. The event log is authoritative; the projection
	// is repairable by replay.
	ErrProjectionDesync = errors.New("company: projection out of sync with event log")
)

// Store is the company projection. Rows change only through the mutation
// pipeline in Service, never directly.
type Store interface {
	// Get returns the company regardless of soft-delete state.
	Get(ctx context.Context, id string) (Company, error)
	// GetByURL resolves a url slug among non-deleted companies only.
	GetByURL(ctx context.Context, url string) (Company, error)
	// List returns companies ordered by id, filtering soft-deleted rows
	// unless includeDeleted is set.
	List(ctx context.Context, includeDeleted bool) ([]Company, error)
	// ChildrenOf returns the direct, non-deleted children of a company.
	ChildrenOf(ctx context.Context, id string) ([]Company, error)
	Save(ctx context.Context, c Company) error
}
