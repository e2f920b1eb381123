// Package event holds the append-only log that every state change in the
// system flows through. Aggregates (companies, users, permission grants) are
// never mutated in place; they are projected from the events recorded here.
package event

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Kind discriminates the closed set of event types. Projections match over
// this set exhaustively and reject anything they do not recognize.
type Kind string

const (
	KindCompanyCreated Kind = "company.created"
	KindCompanyUpdated Kind = "company.updated"
	KindCompanyDeleted Kind = "company.deleted"

	KindUserCreated     Kind = "user.created"
	KindUserUpdated     Kind = "user.updated"
	KindPasswordChanged Kind = "user.password_changed"

	KindPermissionGranted Kind = "permission.granted"
	KindPermissionRevoked Kind = "permission.revoked"
)

// Event is one immutable entry in an aggregate's history. Seq starts at 1
// and increases by exactly one per append; the append order for an aggregate
// is its authoritative history order.
type Event struct {
	ID          string    `json:"id"`
	AggregateID string    `json:"aggregate_id"`
	ActorID     string    `json:"actor_id"`
	Seq         uint64    `json:"seq"`
	Kind        Kind      `json:"kind"`
	Payload     any       `json:"payload"`
	OccurredAt  time.Time `json:"occurred_at"`
}

var (
	// ErrStoreUnavailable signals a durability failure. The caller must retry
	// the whole operation, not resume mid-pipeline.
	ErrStoreUnavailable = errors.New("event: store unavailable")

	// ErrSequenceConflict means another writer appended to the aggregate
	// between the caller's read and its append.
	ErrSequenceConflict = errors.New("event: sequence conflict")
)

// Store is an append-only, per-aggregate-ordered event log. There is no
// update or delete operation.
type Store interface {
	// Append persists evt with sequence expected+1. expected is the last
	// sequence the caller observed for the aggregate (0 for a new one);
	// a concurrent append surfaces as ErrSequenceConflict. The event is
	// either fully persisted or not persisted at all.
	Append(ctx context.Context, evt Event, expected uint64) (Event, error)

	// History returns the aggregate's events in append order.
	History(ctx context.Context, aggregateID string) ([]Event, error)
}

// DecodePayload decodes the event payload into dst. It accepts both typed
// in-memory payloads and raw JSON read back from a durable store.
func DecodePayload(e Event, dst any) error {
	switch p := e.Payload.(type) {
	case json.RawMessage:
		return json.Unmarshal(p, dst)
	case []byte:
		return json.Unmarshal(p, dst)
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dst)
	}
}
