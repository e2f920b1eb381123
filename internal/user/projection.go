package user

import (
	"fmt"

	"cotbi.org/internal/event"
)

// CreatedPayload is the immutable snapshot of a user.created event.
type CreatedPayload struct {
	Name     string `json:"name"`
	Lastname string `json:"lastname"`
	Email    string `json:"email"`
}

// UpdatedPayload carries only the fields the command actually changed.
type UpdatedPayload struct {
	Name     *string `json:"name,omitempty"`
	Lastname *string `json:"lastname,omitempty"`
}

// PasswordChangedPayload carries the already-hashed replacement password.
type PasswordChangedPayload struct {
	PasswordHash string `json:"password_hash"`
}

// Apply projects one event onto the prior state. Pure, total over the user
// event kinds, idempotent under redelivery.
func Apply(prev *User, evt event.Event) (User, error) {
	if prev != nil && evt.Seq <= prev.Seq {
		return *prev, nil
	}

	switch evt.Kind {
	case event.KindUserCreated:
		if prev != nil {
			return User{}, fmt.Errorf("%w: user %s already exists", ErrValidation, evt.AggregateID)
		}
		var p CreatedPayload
		if err := event.DecodePayload(evt, &p); err != nil {
			return User{}, err
		}
		return User{
			ID:        evt.AggregateID,
			Name:      p.Name,
			Lastname:  p.Lastname,
			Email:     p.Email,
			CreatedAt: evt.OccurredAt,
			Seq:       evt.Seq,
		}, nil

	case event.KindUserUpdated:
		if prev == nil {
			return User{}, fmt.Errorf("%w: update before create for %s", ErrValidation, evt.AggregateID)
		}
		var p UpdatedPayload
		if err := event.DecodePayload(evt, &p); err != nil {
			return User{}, err
		}
		next := *prev
		if p.Name != nil {
			next.Name = *p.Name
		}
		if p.Lastname != nil {
			next.Lastname = *p.Lastname
		}
		next.Seq = evt.Seq
		return next, nil

	case event.KindPasswordChanged:
		if prev == nil {
			return User{}, fmt.Errorf("%w: password change before create for %s", ErrValidation, evt.AggregateID)
		}
		var p PasswordChangedPayload
		if err := event.DecodePayload(evt, &p); err != nil {
			return User{}, err
		}
		next := *prev
		next.PasswordHash = p.PasswordHash
		next.Seq = evt.Seq
		return next, nil

	default:
		return User{}, fmt.Errorf("%w: %q for %s", ErrUnknownEvent, evt.Kind, evt.AggregateID)
	}
}

// Replay folds a full history from empty initial state.
func Replay(history []event.Event) (User, error) {
	if len(history) == 0 {
		return User{}, ErrNotFound
	}
	state, err := Apply(nil, history[0])
	if err != nil {
		return User{}, err
	}
	for _, evt := range history[1:] {
		state, err = Apply(&state, evt)
		if err != nil {
			return User{}, err
		}
	}
	return state, nil
}
