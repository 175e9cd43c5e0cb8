package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	apiContext "openfeedback/internal/api/context"
	"openfeedback/internal/engine/tenant"
	"openfeedback/internal/pkg/errors"
	"openfeedback/internal/platform/models"
)

type TenantContext struct {
	TeamID string
	Slug   string
	Team   *models.Team
}

type TenantResolver interface {
	ResolveTeamFromHeaders(ctx context.Context, h http.Header) (tenant.Resolution, error)
}

type TenantMiddleware struct {
	resolver TenantResolver
}

func NewTenantMiddleware(resolver TenantResolver) *TenantMiddleware {
	return &TenantMiddleware{resolver: resolver}
}

// Handle resolves the team owning the request host. Requests that do not map
// to a team get a 404.
func (m *TenantMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := m.resolver.ResolveTeamFromHeaders(r.Context(), tenant.RequestHeaders(r))
		if err != nil {
			log.Error().Err(err).Str("subdomain", res.Subdomain).Msg("tenant resolution failed")
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to resolve team", nil)
			return
		}
		if res.Team == nil {
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Team not found", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Tenant, &TenantContext{
			TeamID: res.Team.ID,
			Slug:   res.Team.Slug,
			Team:   res.Team,
		})

		next(w, r.WithContext(ctx))
	}
}

func TenantFromContext(ctx context.Context) (*TenantContext, bool) {
	tc, ok := ctx.Value(apiContext.Tenant).(*TenantContext)
	return tc, ok && tc != nil
}
