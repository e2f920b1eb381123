package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cotbi.org/internal/auth"
	"cotbi.org/internal/company"
	"cotbi.org/internal/event"
	"cotbi.org/internal/notify"
	"cotbi.org/internal/user"
)

type testAPI struct {
	api       *API
	handler   http.Handler
	users     *user.Service
	userStore *user.InMemory
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	t.Setenv("COTBI_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	companies := company.NewInMemory()
	users := user.NewInMemory()
	grants := auth.NewInMemoryGrants()
	events := event.NewInMemory()

	hierarchy := company.NewHierarchy(companies)
	engine := auth.NewEngine(grants, hierarchy)

	permSvc, err := auth.NewService(grants, events, engine)
	if err != nil {
		t.Fatalf("permission service: %v", err)
	}
	userSvc, err := user.NewService(users, events)
	if err != nil {
		t.Fatalf("user service: %v", err)
	}
	notices := notify.NewInMemory()
	notifier := notify.New(notices, users)
	companySvc, err := company.NewService(companies, events, engine, hierarchy, grants, notifier)
	if err != nil {
		t.Fatalf("company service: %v", err)
	}

	api := New(ReadyProbe{}, "test", Deps{
		Companies: companySvc,
		Users:     userSvc,
		Perms:     permSvc,
		Notices:   notices,
	})
	return &testAPI{api: api, handler: api.Handler(), users: userSvc, userStore: users}
}

func (ta *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)
	return rr
}

func (ta *testAPI) rootToken(t *testing.T) string {
	t.Helper()
	token, err := auth.GenerateToken(auth.Identity{UserID: "root-op", Root: true}, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return token
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	ta := newTestAPI(t)

	rr := ta.do(t, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]any
	decodeBody(t, rr, &body)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestReadyWithoutDB(t *testing.T) {
	ta := newTestAPI(t)

	rr := ta.do(t, http.MethodGet, "/readyz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestUnknownPathIs404(t *testing.T) {
	ta := newTestAPI(t)

	rr := ta.do(t, http.MethodGet, "/nope", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	ta := newTestAPI(t)

	rr := ta.do(t, http.MethodGet, "/healthz", "", nil)
	if rr.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected generated request id header")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "fixed-id")
	rec := httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "fixed-id" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
}

func TestProtectedPathWithoutToken(t *testing.T) {
	ta := newTestAPI(t)

	rr := ta.do(t, http.MethodGet, "/v1/companies", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestProtectedPathWithGarbageToken(t *testing.T) {
	ta := newTestAPI(t)

	rr := ta.do(t, http.MethodGet, "/v1/companies", "not.a.token", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestTokenEndpointRejectsWrongMethod(t *testing.T) {
	ta := newTestAPI(t)

	rr := ta.do(t, http.MethodGet, "/v1/auth/token", "", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	if rr.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("expected Allow header, got %q", rr.Header().Get("Allow"))
	}
}
