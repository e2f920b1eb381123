package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"cotbi.org/internal/audit"
	"cotbi.org/internal/notify"
	"cotbi.org/internal/user"
)

type changePasswordRequest struct {
	Password string `json:"password"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if a.users == nil {
		writeError(w, r, http.StatusServiceUnavailable, "user service unavailable")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req user.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.users.Create(r.Context(), req)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.create", map[string]any{
		"user_id": u.ID,
		"email":   u.Email,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", u.ID))
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	if a.users == nil {
		writeError(w, r, http.StatusServiceUnavailable, "user service unavailable")
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]
	if id == "me" {
		id = identity(r).UserID
		if id == "" {
			writeError(w, r, http.StatusForbidden, "forbidden")
			return
		}
	}

	switch {
	case len(parts) == 1:
		a.handleUser(w, r, id)
	case len(parts) == 2 && parts[1] == "password":
		a.changePassword(w, r, id)
	case len(parts) == 2 && parts[1] == "repair":
		a.repairUser(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUser(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		// A user record carries the email; only the user themselves or
		// Root may read it.
		ident := identity(r)
		if !ident.Root && ident.UserID != id {
			writeError(w, r, http.StatusForbidden, "forbidden")
			return
		}
		u, err := a.users.Get(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	case http.MethodPut:
		var req user.UpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		u, err := a.users.Update(r.Context(), identity(r), id, req)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.update", map[string]any{"user_id": u.ID})
		writeJSON(w, http.StatusOK, u)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.users.ChangePassword(r.Context(), identity(r), id, req.Password); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.password_change", map[string]any{"user_id": id})
	w.WriteHeader(http.StatusNoContent)
}

// repairUser replays the aggregate and rewrites its projection row.
// Operator tooling, so the gate is Root.
func (a *API) repairUser(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !identity(r).Root {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	u, err := a.users.Repair(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.repair", map[string]any{"user_id": u.ID})
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if a.notices == nil {
		writeError(w, r, http.StatusServiceUnavailable, "notification store unavailable")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ident := identity(r)
	if ident.UserID == "" {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	list, err := a.notices.ListForUser(r.Context(), ident.UserID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if list == nil {
		list = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}
