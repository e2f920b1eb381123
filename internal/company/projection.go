package company

import (
	"fmt"

	"cotbi.org/internal/event"
)

// Apply projects one event onto the prior state (nil for creation events) and
// returns the next state. It is a pure function, total over the company event
// kinds, and idempotent under redelivery: an event at or below the current
// sequence leaves the state unchanged.
func Apply(prev *Company, evt event.Event) (Company, error) {
	if prev != nil && evt.Seq <= prev.Seq {
		return *prev, nil
	}

	switch evt.Kind {
	case event.KindCompanyCreated:
		if prev != nil {
			return Company{}, fmt.Errorf("%w: company %s already exists", ErrProjectionDesync, evt.AggregateID)
		}
		var p CreatedPayload
		if err := event.DecodePayload(evt, &p); err != nil {
			return Company{}, err
		}
		return Company{
			ID:        evt.AggregateID,
			Name:      p.Name,
			Activity:  p.Activity,
			URL:       p.URL,
			ParentID:  p.ParentID,
			CreatedAt: evt.OccurredAt,
			Seq:       evt.Seq,
		}, nil

	case event.KindCompanyUpdated:
		if prev == nil {
			return Company{}, fmt.Errorf("%w: update before create for %s", ErrProjectionDesync, evt.AggregateID)
		}
		var p UpdatedPayload
		if err := event.DecodePayload(evt, &p); err != nil {
			return Company{}, err
		}
		next := *prev
		if p.Name != nil {
			next.Name = *p.Name
		}
		if p.Activity != nil {
			next.Activity = *p.Activity
		}
		if p.URL != nil {
			next.URL = *p.URL
		}
		next.Seq = evt.Seq
		return next, nil

	case event.KindCompanyDeleted:
		if prev == nil {
			return Company{}, fmt.Errorf("%w: delete before create for %s", ErrProjectionDesync, evt.AggregateID)
		}
		var p DeletedPayload
		if err := event.DecodePayload(evt, &p); err != nil {
			return Company{}, err
		}
		next := *prev
		deletedAt := p.DeletedAt
		if deletedAt.IsZero() {
			deletedAt = evt.OccurredAt
		}
		next.DeletedAt = &deletedAt
		next.Seq = evt.Seq
		return next, nil

	default:
		return Company{}, fmt.Errorf("%w: %q for %s", ErrUnknownEvent, evt.Kind, evt.AggregateID)
	}
}

// Replay folds a full history from empty initial state into the current
// projected state.
func Replay(history []event.Event) (Company, error) {
	if len(history) == 0 {
		return Company{}, ErrNotFound
	}
	state, err := Apply(nil, history[0])
	if err != nil {
		return Company{}, err
	}
	for _, evt := range history[1:] {
		state, err = Apply(&state, evt)
		if err != nil {
			return Company{}, err
		}
	}
	return state, nil
}
