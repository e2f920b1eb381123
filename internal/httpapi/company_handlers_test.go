package httpapi

import (
	"context"
	"net/http"
	"testing"

	"cotbi.org/internal/auth"
	"cotbi.org/internal/company"
	"cotbi.org/internal/notify"
)

func registerAndLogin(t *testing.T, ta *testAPI, email string) (userID, token string) {
	t.Helper()
	rr := ta.do(t, http.MethodPost, "/v1/users", "", map[string]string{
		"name": "Test", "lastname": "User", "email": email, "password": "s3cret",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, rr, &created)

	rr = ta.do(t, http.MethodPost, "/v1/auth/token", "", map[string]string{
		"email": email, "password": "s3cret",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("token: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var tok struct {
		Token string `json:"token"`
	}
	decodeBody(t, rr, &tok)
	return created.ID, tok.Token
}

func TestTokenRejectsBadCredentials(t *testing.T) {
	ta := newTestAPI(t)
	registerAndLogin(t, ta, "ada@example.com")

	rr := ta.do(t, http.MethodPost, "/v1/auth/token", "", map[string]string{
		"email": "ada@example.com", "password": "wrong",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	rr = ta.do(t, http.MethodPost, "/v1/auth/token", "", map[string]string{
		"email": "ghost@example.com", "password": "s3cret",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown email, got %d", rr.Code)
	}
}

func TestCompanyLifecycleOverHTTP(t *testing.T) {
	ta := newTestAPI(t)
	root := ta.rootToken(t)
	memberID, memberToken := registerAndLogin(t, ta, "member@example.com")

	// Only Root creates companies.
	rr := ta.do(t, http.MethodPost, "/v1/companies", memberToken, company.CreateRequest{Name: "CoTech"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-root create, got %d", rr.Code)
	}

	rr = ta.do(t, http.MethodPost, "/v1/companies", root, company.CreateRequest{Name: "CoTech", URL: "CoTech"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created company.Company
	decodeBody(t, rr, &created)
	if created.URL != "cotech" {
		t.Fatalf("expected slug, got %q", created.URL)
	}
	if rr.Header().Get("Location") == "" {
		t.Fatal("expected Location header")
	}

	// Duplicate slug is a conflict.
	rr = ta.do(t, http.MethodPost, "/v1/companies", root, company.CreateRequest{Name: "Other", URL: "cotech"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}

	// Member has no grant yet.
	rr = ta.do(t, http.MethodGet, "/v1/companies/"+created.ID, memberToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 before grant, got %d", rr.Code)
	}

	rr = ta.do(t, http.MethodPost, "/v1/companies/"+created.ID+"/permissions", root, grantRequest{
		UserID: memberID, Role: "member",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("grant: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var g auth.Grant
	decodeBody(t, rr, &g)

	rr = ta.do(t, http.MethodGet, "/v1/companies/"+created.ID, memberToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 after grant, got %d", rr.Code)
	}

	rr = ta.do(t, http.MethodGet, "/v1/companies/by-url/cotech", memberToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("by-url: expected 200, got %d", rr.Code)
	}

	rr = ta.do(t, http.MethodGet, "/v1/companies/mine", memberToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("mine: expected 200, got %d", rr.Code)
	}
	var mine []company.Company
	decodeBody(t, rr, &mine)
	if len(mine) != 1 || mine[0].ID != created.ID {
		t.Fatalf("unexpected mine list: %+v", mine)
	}

	// Member cannot update; that takes absolute Super.
	rr = ta.do(t, http.MethodPut, "/v1/companies/"+created.ID, memberToken, map[string]string{"name": "Hijack"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for member update, got %d", rr.Code)
	}

	rr = ta.do(t, http.MethodPut, "/v1/companies/"+created.ID, root, map[string]string{"name": "CoTech Bi"})
	if rr.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	// Revoke and the member loses access.
	rr = ta.do(t, http.MethodDelete, "/v1/permissions/"+g.ID, root, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("revoke: expected 204, got %d", rr.Code)
	}
	rr = ta.do(t, http.MethodGet, "/v1/companies/"+created.ID, memberToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 after revoke, got %d", rr.Code)
	}

	// Soft delete, then reads are gone.
	rr = ta.do(t, http.MethodDelete, "/v1/companies/"+created.ID, root, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rr.Code)
	}
	rr = ta.do(t, http.MethodGet, "/v1/companies/"+created.ID, root, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rr.Code)
	}
}

func TestChildrenRequireAbsoluteSuper(t *testing.T) {
	ta := newTestAPI(t)
	root := ta.rootToken(t)
	memberID, memberToken := registerAndLogin(t, ta, "super@example.com")

	rr := ta.do(t, http.MethodPost, "/v1/companies", root, company.CreateRequest{Name: "Parent"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create parent: %d", rr.Code)
	}
	var parent company.Company
	decodeBody(t, rr, &parent)

	rr = ta.do(t, http.MethodPost, "/v1/companies", root, company.CreateRequest{Name: "Child", ParentID: parent.ID})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create child: %d", rr.Code)
	}

	rr = ta.do(t, http.MethodGet, "/v1/companies/"+parent.ID+"/children", memberToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without super, got %d", rr.Code)
	}

	rr = ta.do(t, http.MethodPost, "/v1/companies/"+parent.ID+"/permissions", root, grantRequest{
		UserID: memberID, Role: "super",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("grant super: %d", rr.Code)
	}

	rr = ta.do(t, http.MethodGet, "/v1/companies/"+parent.ID+"/children", memberToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with super, got %d", rr.Code)
	}
	var children []company.Company
	decodeBody(t, rr, &children)
	if len(children) != 1 || children[0].Name != "Child" {
		t.Fatalf("unexpected children: %+v", children)
	}
}

func TestUserEndpoints(t *testing.T) {
	ta := newTestAPI(t)
	userID, token := registerAndLogin(t, ta, "me@example.com")

	rr := ta.do(t, http.MethodGet, "/v1/users/me", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", rr.Code)
	}
	var me struct {
		ID           string `json:"id"`
		PasswordHash string `json:"password_hash"`
	}
	decodeBody(t, rr, &me)
	if me.ID != userID {
		t.Fatalf("unexpected id: %q", me.ID)
	}
	if me.PasswordHash != "" {
		t.Fatal("password hash must not be serialized")
	}

	// Another registered user may not rename us.
	_, otherToken := registerAndLogin(t, ta, "other@example.com")
	rr = ta.do(t, http.MethodPut, "/v1/users/"+userID, otherToken, map[string]string{"name": "Hijack"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}

	rr = ta.do(t, http.MethodPut, "/v1/users/"+userID, token, map[string]string{"name": "Renamed"})
	if rr.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = ta.do(t, http.MethodPut, "/v1/users/"+userID+"/password", token, map[string]string{"password": "n3w-pass"})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("password: expected 204, got %d: %s", rr.Code, rr.Body.String())
	}

	// Old password is dead, new one works.
	rr = ta.do(t, http.MethodPost, "/v1/auth/token", "", map[string]string{"email": "me@example.com", "password": "s3cret"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with old password, got %d", rr.Code)
	}
	rr = ta.do(t, http.MethodPost, "/v1/auth/token", "", map[string]string{"email": "me@example.com", "password": "n3w-pass"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with new password, got %d", rr.Code)
	}
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	ta := newTestAPI(t)
	registerAndLogin(t, ta, "dup@example.com")

	rr := ta.do(t, http.MethodPost, "/v1/users", "", map[string]string{
		"name": "Again", "email": "dup@example.com", "password": "x",
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestNotificationsDeliveredToRootUsers(t *testing.T) {
	ta := newTestAPI(t)
	root := ta.rootToken(t)

	// Promote a registered user to Root so company.created reaches them.
	receiverID, receiverToken := registerAndLogin(t, ta, "watcher@example.com")
	u, err := ta.userStore.Get(context.Background(), receiverID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	u.Root = true
	if err := ta.userStore.Save(context.Background(), u); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rr := ta.do(t, http.MethodGet, "/v1/notifications", receiverToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var before []notify.Notification
	decodeBody(t, rr, &before)
	if len(before) != 0 {
		t.Fatalf("expected empty list, got %+v", before)
	}

	rr = ta.do(t, http.MethodPost, "/v1/companies", root, company.CreateRequest{Name: "Watched"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", rr.Code)
	}
	var created company.Company
	decodeBody(t, rr, &created)

	rr = ta.do(t, http.MethodGet, "/v1/notifications", receiverToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var after []notify.Notification
	decodeBody(t, rr, &after)
	if len(after) != 1 || after[0].Type != "CompanyCreated" {
		t.Fatalf("unexpected notifications: %+v", after)
	}
}

func TestUserRecordReadableOnlyBySelfOrRoot(t *testing.T) {
	ta := newTestAPI(t)
	adaID, adaToken := registerAndLogin(t, ta, "ada@example.com")
	_, bobToken := registerAndLogin(t, ta, "bob@example.com")

	rr := ta.do(t, http.MethodGet, "/v1/users/"+adaID, bobToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another user's record, got %d", rr.Code)
	}

	rr = ta.do(t, http.MethodGet, "/v1/users/"+adaID, adaToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for own record, got %d", rr.Code)
	}

	rr = ta.do(t, http.MethodGet, "/v1/users/"+adaID, ta.rootToken(t), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for root, got %d", rr.Code)
	}
}

func TestRepairEndpointsRequireRoot(t *testing.T) {
	ta := newTestAPI(t)
	root := ta.rootToken(t)
	adaID, adaToken := registerAndLogin(t, ta, "ada@example.com")

	rr := ta.do(t, http.MethodPost, "/v1/users/"+adaID+"/repair", adaToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-root user repair, got %d", rr.Code)
	}
	rr = ta.do(t, http.MethodPost, "/v1/users/"+adaID+"/repair", root, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for root user repair, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = ta.do(t, http.MethodPost, "/v1/companies", root, map[string]string{"name": "CoTech"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create company: expected 201, got %d", rr.Code)
	}
	var c struct {
		ID string `json:"id"`
	}
	decodeBody(t, rr, &c)

	rr = ta.do(t, http.MethodPost, "/v1/companies/"+c.ID+"/permissions", root, map[string]string{
		"user_id": adaID, "role": "admin",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("grant: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var g struct {
		ID string `json:"id"`
	}
	decodeBody(t, rr, &g)

	rr = ta.do(t, http.MethodPost, "/v1/permissions/"+g.ID+"/repair", adaToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-root grant repair, got %d", rr.Code)
	}
	rr = ta.do(t, http.MethodPost, "/v1/permissions/"+g.ID+"/repair", root, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for root grant repair, got %d: %s", rr.Code, rr.Body.String())
	}
}
