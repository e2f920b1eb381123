package pg

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"cotbi.org/internal/notify"
)

func TestNotificationCreateMarshalsJSON(t *testing.T) {
	store, mock := newMock(t)

	created := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("insert into notifications").
		WithArgs("n1", "u-sender", "CompanyCreated",
			[]byte(`{"company_id":"c1"}`), []byte(`["u1","u2"]`), created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Notifications().Create(context.Background(), notify.Notification{
		ID:        "n1",
		SenderID:  "u-sender",
		Type:      "CompanyCreated",
		Body:      notify.CompanyCreatedBody{CompanyID: "c1"},
		Receivers: []string{"u1", "u2"},
		CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNotificationListForUserFiltersByReceiver(t *testing.T) {
	store, mock := newMock(t)

	rows := sqlmock.NewRows([]string{"id", "sender_id", "type", "body", "receivers", "created_at"}).
		AddRow("n1", "u-sender", "CompanyCreated",
			[]byte(`{"company_id":"c1"}`), []byte(`["u1","u2"]`), time.Now())
	mock.ExpectQuery("from notifications").WithArgs("u2").WillReturnRows(rows)

	out, err := store.Notifications().ListForUser(context.Background(), "u2")
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(out))
	}
	var body notify.CompanyCreatedBody
	if err := json.Unmarshal(out[0].Body.(json.RawMessage), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.CompanyID != "c1" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if len(out[0].Receivers) != 2 || out[0].Receivers[1] != "u2" {
		t.Fatalf("unexpected receivers: %v", out[0].Receivers)
	}
}
