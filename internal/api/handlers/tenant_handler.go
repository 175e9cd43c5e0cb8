package handlers

import (
	"net/http"

	"openfeedback/internal/api/middleware"
	"openfeedback/internal/pkg/errors"
)

type TenantHandler struct{}

func NewTenantHandler() *TenantHandler {
	return &TenantHandler{}
}

// Get returns the team resolved for the request host.
func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Team not found", nil)
		return
	}

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"team":      tc.Team,
		"subdomain": tc.Slug,
	})
}
