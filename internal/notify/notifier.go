// Package notify delivers notifications derived from committed events.
// Delivery runs out-of-band: a failure here never rolls back the event that
// triggered it.
package notify

import (
	"context"
	"sync"
	"time"

	"cotbi.org/internal/company"
	"cotbi.org/internal/ids"
	"cotbi.org/internal/obs"
	"cotbi.org/internal/user"
)

// Notification is a derived record, not authoritative state.
type Notification struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	Type      string    `json:"type"`
	Body      any       `json:"body"`
	Receivers []string  `json:"receivers"`
	CreatedAt time.Time `json:"created_at"`
}

// CompanyCreatedBody is the payload of a CompanyCreated notification.
type CompanyCreatedBody struct {
	CompanyID string `json:"company_id"`
}

// Store persists notification records.
type Store interface {
	Create(ctx context.Context, n Notification) error
	ListForUser(ctx context.Context, userID string) ([]Notification, error)
}

// RootUserSource lists the global superusers who receive system-wide
// notifications.
type RootUserSource interface {
	ListRoot(ctx context.Context) ([]user.User, error)
}

// Notifier fans committed-event notifications out to persistent storage and
// to in-process subscribers.
type Notifier struct {
	store Store
	users RootUserSource

	mu   sync.RWMutex
	subs map[int]chan Notification
	next int
}

// New constructs a notifier.
func New(store Store, users RootUserSource) *Notifier {
	return &Notifier{
		store: store,
		users: users,
		subs:  make(map[int]chan Notification),
	}
}

var _ company.Notifier = (*Notifier)(nil)

// CompanyCreated informs every Root user except the creator that a company
// was registered. Errors are logged, never returned: the event is already
// committed.
func (n *Notifier) CompanyCreated(ctx context.Context, c company.Company, actorID string) {
	roots, err := n.users.ListRoot(ctx)
	if err != nil {
		obs.LogError("notify: list root users failed", map[string]any{"company_id": c.ID, "err": err.Error()})
		return
	}
	var receivers []string
	for _, u := range roots {
		if u.ID == actorID {
			continue
		}
		receivers = append(receivers, u.ID)
	}
	if len(receivers) == 0 {
		return
	}

	notification := Notification{
		ID:        ids.New(),
		SenderID:  actorID,
		Type:      "CompanyCreated",
		Body:      CompanyCreatedBody{CompanyID: c.ID},
		Receivers: receivers,
		CreatedAt: time.Now().UTC(),
	}
	if err := n.store.Create(ctx, notification); err != nil {
		obs.LogError("notify: persist notification failed", map[string]any{"company_id": c.ID, "err": err.Error()})
		return
	}
	n.publish(notification)
}

// Subscribe registers an in-process listener. The returned cancel func must
// be called to release the channel.
func (n *Notifier) Subscribe() (<-chan Notification, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	ch := make(chan Notification, 16)
	n.subs[id] = ch
	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (n *Notifier) publish(notification Notification) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.subs {
		select {
		case ch <- notification:
		default:
			// Slow subscriber: drop rather than block the pipeline.
		}
	}
}

// InMemory implements Store.
type InMemory struct {
	mu            sync.RWMutex
	notifications []Notification
}

// NewInMemory creates an empty notification store.
func NewInMemory() *InMemory {
	return &InMemory{}
}

var _ Store = (*InMemory)(nil)

func (s *InMemory) Create(ctx context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *InMemory) ListForUser(ctx context.Context, userID string) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Notification
	for _, n := range s.notifications {
		for _, r := range n.Receivers {
			if r == userID {
				out = append(out, n)
				break
			}
		}
	}
	return out, nil
}
