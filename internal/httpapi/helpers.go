package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"cotbi.org/internal/auth"
	"cotbi.org/internal/company"
	"cotbi.org/internal/event"
	"cotbi.org/internal/obs"
	"cotbi.org/internal/user"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError maps service sentinels onto HTTP codes. Integrity faults
// never leak their detail to the client; they go to the error log instead.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, company.ErrValidation), errors.Is(err, user.ErrValidation), errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotAuthorized):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, company.ErrNotFound), errors.Is(err, user.ErrNotFound), errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, company.ErrDuplicateURL), errors.Is(err, user.ErrDuplicateEmail):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, event.ErrSequenceConflict):
		writeError(w, r, http.StatusConflict, "concurrent modification, retry")
	case errors.Is(err, event.ErrStoreUnavailable):
		obs.LogError("event store unavailable", map[string]any{"err": err.Error()})
		writeError(w, r, http.StatusServiceUnavailable, "service unavailable")
	case errors.Is(err, company.ErrProjectionDesync), errors.Is(err, user.ErrProjectionDesync),
		errors.Is(err, auth.ErrProjectionDesync), errors.Is(err, company.ErrCycleDetected):
		obs.LogError("integrity fault", map[string]any{"err": err.Error(), "path": r.URL.Path})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	default:
		obs.LogError("unhandled service error", map[string]any{"err": err.Error(), "path": r.URL.Path})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
