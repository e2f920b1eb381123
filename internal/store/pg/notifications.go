package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"cotbi.org/internal/notify"
)

// NotificationStore is the durable notification record table.
type NotificationStore struct {
	db *sql.DB
}

var _ notify.Store = (*NotificationStore)(nil)

func (s *NotificationStore) Create(ctx context.Context, n notify.Notification) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	body, err := json.Marshal(n.Body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	receivers, err := json.Marshal(n.Receivers)
	if err != nil {
		return fmt.Errorf("marshal receivers: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into notifications (id, sender_id, type, body, receivers, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, n.ID, n.SenderID, n.Type, body, receivers, n.CreatedAt)
	return err
}

func (s *NotificationStore) ListForUser(ctx context.Context, userID string) ([]notify.Notification, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, sender_id, type, body, receivers, created_at
		from notifications
		where receivers @> jsonb_build_array($1::text)
		order by created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notify.Notification
	for rows.Next() {
		var (
			n         notify.Notification
			body      []byte
			receivers []byte
		)
		if err := rows.Scan(&n.ID, &n.SenderID, &n.Type, &body, &receivers, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Body = json.RawMessage(body)
		if err := json.Unmarshal(receivers, &n.Receivers); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
