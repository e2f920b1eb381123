package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"cotbi.org/internal/audit"
	"cotbi.org/internal/auth"
	"cotbi.org/internal/company"
)

type grantRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (a *API) handleCompanies(w http.ResponseWriter, r *http.Request) {
	if a.companies == nil {
		writeError(w, r, http.StatusServiceUnavailable, "company service unavailable")
		return
	}
	switch r.Method {
	case http.MethodPost:
		a.createCompany(w, r)
	case http.MethodGet:
		a.listCompanies(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createCompany(w http.ResponseWriter, r *http.Request) {
	var req company.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := a.companies.Create(r.Context(), identity(r), req)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "company.create", map[string]any{
		"company_id": c.ID,
		"name":       c.Name,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/companies/%s", c.ID))
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) listCompanies(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	list, err := a.companies.List(r.Context(), identity(r), includeDeleted)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if list == nil {
		list = []company.Company{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleCompanyScoped(w http.ResponseWriter, r *http.Request) {
	if a.companies == nil {
		writeError(w, r, http.StatusServiceUnavailable, "company service unavailable")
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/companies/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")

	switch {
	case parts[0] == "mine" && len(parts) == 1:
		a.myCompanies(w, r)
	case parts[0] == "by-url" && len(parts) == 2:
		a.companyByURL(w, r, parts[1])
	case len(parts) == 1:
		a.handleCompany(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "children":
		a.companyChildren(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "permissions":
		a.companyPermissions(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "repair":
		a.repairCompany(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleCompany(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		ok, err := a.perms.Engine().Authorize(r.Context(), identity(r), id, auth.Options{
			AllowRoot:            true,
			MinRole:              auth.RoleMember,
			InheritFromAncestors: true,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		if !ok {
			writeError(w, r, http.StatusForbidden, "forbidden")
			return
		}
		c, err := a.companies.Get(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	case http.MethodPut:
		var req company.UpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		c, err := a.companies.Update(r.Context(), identity(r), id, req)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "company.update", map[string]any{"company_id": c.ID})
		writeJSON(w, http.StatusOK, c)
	case http.MethodDelete:
		c, err := a.companies.Delete(r.Context(), identity(r), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "company.delete", map[string]any{"company_id": c.ID})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) companyChildren(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ok, err := a.perms.Engine().Authorize(r.Context(), identity(r), id, auth.Options{
		AllowRoot:       true,
		MinRole:         auth.RoleSuper,
		RequireAbsolute: true,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	children, err := a.companies.Children(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if children == nil {
		children = []company.Company{}
	}
	writeJSON(w, http.StatusOK, children)
}

func (a *API) companyByURL(w http.ResponseWriter, r *http.Request, url string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	c, err := a.companies.GetByURL(r.Context(), identity(r), url)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) myCompanies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ident := identity(r)
	if ident.UserID == "" {
		writeJSON(w, http.StatusOK, []company.Company{})
		return
	}
	list, err := a.companies.CompaniesOf(r.Context(), ident.UserID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if list == nil {
		list = []company.Company{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) companyPermissions(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req grantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	g, err := a.perms.Grant(r.Context(), identity(r), req.UserID, id, role)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "permission.grant", map[string]any{
		"grant_id":   g.ID,
		"user_id":    g.UserID,
		"company_id": g.CompanyID,
		"role":       g.Role.String(),
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/permissions/%s", g.ID))
	writeJSON(w, http.StatusCreated, g)
}

// repairCompany replays the aggregate and rewrites its projection row.
// Operator tooling, so the gate is Root.
func (a *API) repairCompany(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !identity(r).Root {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	c, err := a.companies.Repair(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "company.repair", map[string]any{"company_id": c.ID})
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handlePermissionResource(w http.ResponseWriter, r *http.Request) {
	if a.perms == nil {
		writeError(w, r, http.StatusServiceUnavailable, "permission service unavailable")
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/permissions/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		a.revokePermission(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "repair":
		a.repairGrant(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) revokePermission(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if err := a.perms.Revoke(r.Context(), identity(r), id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "permission.revoke", map[string]any{"grant_id": id})
	w.WriteHeader(http.StatusNoContent)
}

// repairGrant replays the grant aggregate and rewrites, or removes, its
// projection row. Operator tooling, so the gate is Root.
func (a *API) repairGrant(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !identity(r).Root {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	g, active, err := a.perms.Repair(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "permission.repair", map[string]any{"grant_id": id, "active": active})
	if !active {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, g)
}
