package notify

import (
	"context"
	"testing"
	"time"

	"cotbi.org/internal/company"
	"cotbi.org/internal/user"
)

func seedRoots(t *testing.T, ids ...string) *user.InMemory {
	t.Helper()
	users := user.NewInMemory()
	for _, id := range ids {
		if err := users.Save(context.Background(), user.User{
			ID: id, Name: id, Email: id + "@example.com", Root: true,
		}); err != nil {
			t.Fatalf("save user: %v", err)
		}
	}
	return users
}

func TestCompanyCreatedNotifiesRootsExceptActor(t *testing.T) {
	users := seedRoots(t, "root-a", "root-b")
	store := NewInMemory()
	n := New(store, users)

	n.CompanyCreated(context.Background(), company.Company{ID: "c1"}, "root-a")

	other, err := store.ListForUser(context.Background(), "root-b")
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(other) != 1 {
		t.Fatalf("expected 1 notification for root-b, got %d", len(other))
	}
	if other[0].Type != "CompanyCreated" || other[0].SenderID != "root-a" {
		t.Fatalf("unexpected notification: %+v", other[0])
	}

	self, err := store.ListForUser(context.Background(), "root-a")
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(self) != 0 {
		t.Fatalf("creator should not be notified, got %d", len(self))
	}
}

func TestCompanyCreatedNoReceiversNoRecord(t *testing.T) {
	users := seedRoots(t, "root-a")
	store := NewInMemory()
	n := New(store, users)

	// The only root is the actor.
	n.CompanyCreated(context.Background(), company.Company{ID: "c1"}, "root-a")

	if len(store.notifications) != 0 {
		t.Fatalf("expected no records, got %d", len(store.notifications))
	}
}

func TestSubscribeReceivesPublishedNotification(t *testing.T) {
	users := seedRoots(t, "root-a")
	store := NewInMemory()
	n := New(store, users)

	ch, cancel := n.Subscribe()
	defer cancel()

	n.CompanyCreated(context.Background(), company.Company{ID: "c1"}, "someone-else")

	select {
	case got := <-ch:
		body, ok := got.Body.(CompanyCreatedBody)
		if !ok || body.CompanyID != "c1" {
			t.Fatalf("unexpected notification: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the notification")
	}
}

func TestCancelClosesSubscription(t *testing.T) {
	n := New(NewInMemory(), seedRoots(t))

	ch, cancel := n.Subscribe()
	cancel()
	if _, open := <-ch; open {
		t.Fatal("expected channel to be closed after cancel")
	}
	// Second cancel is a no-op.
	cancel()
}
