package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cotbi.org/internal/event"
	"cotbi.org/internal/ids"
	"cotbi.org/internal/obs"
)

// EventLog is the durable append-only event store.
type EventLog struct {
	db *sql.DB
}

var _ event.Store = (*EventLog)(nil)

// Append inserts the event at sequence expected+1. The unique index on
// (aggregate_id, seq) turns a lost race into ErrSequenceConflict, which
// linearizes appends per aggregate without any advisory locking.
func (l *EventLog) Append(ctx context.Context, evt event.Event, expected uint64) (event.Event, error) {
	if l.db == nil {
		return event.Event{}, event.ErrStoreUnavailable
	}
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return event.Event{}, fmt.Errorf("marshal payload: %w", err)
	}

	evt.ID = ids.New()
	evt.Seq = expected + 1

	var occurredAt time.Time
	row := l.db.QueryRowContext(ctx, `
		insert into events (id, aggregate_id, actor_id, seq, kind, payload, occurred_at)
		values ($1, $2, $3, $4, $5, $6, now())
		returning occurred_at
	`, evt.ID, evt.AggregateID, evt.ActorID, evt.Seq, string(evt.Kind), payload)
	if err := row.Scan(&occurredAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return event.Event{}, event.ErrSequenceConflict
		}
		return event.Event{}, fmt.Errorf("%w: %v", event.ErrStoreUnavailable, err)
	}
	evt.OccurredAt = occurredAt.UTC()
	evt.Payload = json.RawMessage(payload)
	obs.CountEvent(string(evt.Kind))
	return evt, nil
}

// History returns the aggregate's events in append order. Payloads come back
// as raw JSON; event.DecodePayload handles both representations.
func (l *EventLog) History(ctx context.Context, aggregateID string) ([]event.Event, error) {
	if l.db == nil {
		return nil, event.ErrStoreUnavailable
	}
	rows, err := l.db.QueryContext(ctx, `
		select id, aggregate_id, actor_id, seq, kind, payload, occurred_at
		from events
		where aggregate_id = $1
		order by seq
	`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", event.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var history []event.Event
	for rows.Next() {
		var (
			evt     event.Event
			kind    string
			payload []byte
		)
		if err := rows.Scan(&evt.ID, &evt.AggregateID, &evt.ActorID, &evt.Seq, &kind, &payload, &evt.OccurredAt); err != nil {
			return nil, err
		}
		evt.Kind = event.Kind(kind)
		evt.Payload = json.RawMessage(payload)
		history = append(history, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}
