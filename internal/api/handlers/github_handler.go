package handlers

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	apiContext "openfeedback/internal/api/context"
	"openfeedback/internal/engine/github"
	"openfeedback/internal/pkg/errors"
	"openfeedback/internal/platform/auth"
	"openfeedback/internal/platform/models"
)

type InstallationService interface {
	InstallURL(teamID, returnTo string) (string, error)
	HandleCallback(ctx context.Context, installationID int64, state string) (github.CallbackResult, error)
	UnlinkInstallation(ctx context.Context, installationID int64, teamID string) (bool, error)
	ListInstallations(ctx context.Context, teamID string) ([]*models.GitHubInstallation, error)
}

type GitHubHandler struct {
	svc InstallationService
}

func NewGitHubHandler(svc InstallationService) *GitHubHandler {
	return &GitHubHandler{svc: svc}
}

func (h *GitHubHandler) InstallURL(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

	url, err := h.svc.InstallURL(claims.TeamID, r.URL.Query().Get("return_to"))
	if err != nil {
		if stderrors.Is(err, github.ErrInvalidReturnTo) {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid return_to", nil)
			return
		}
		log.Error().Err(err).Str("team_id", claims.TeamID).Msg("failed to build install url")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to build install URL", nil)
		return
	}

	errors.WriteJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Callback is where GitHub redirects after the app is installed. Failures
// share one response so callers cannot learn who owns an installation.
func (h *GitHubHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	installationID, err := strconv.ParseInt(q.Get("installation_id"), 10, 64)
	if err != nil || installationID <= 0 {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid installation_id", nil)
		return
	}

	ctx := github.WithActor(r.Context(), actorFromRequest(r, ""))
	res, err := h.svc.HandleCallback(ctx, installationID, q.Get("state"))
	if err != nil || !res.Success {
		log.Warn().Err(err).Int64("installation_id", installationID).Msg("installation callback failed")
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Failed to link installation", nil)
		return
	}

	http.Redirect(w, r, res.ReturnTo, http.StatusFound)
}

func (h *GitHubHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)

	installationID, err := strconv.ParseInt(params.ByName("installation_id"), 10, 64)
	if err != nil || installationID <= 0 {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid installation_id", nil)
		return
	}

	ctx := github.WithActor(r.Context(), actorFromRequest(r, claims.UserID))
	ok, err := h.svc.UnlinkInstallation(ctx, installationID, claims.TeamID)
	if err != nil {
		log.Error().Err(err).Int64("installation_id", installationID).Str("team_id", claims.TeamID).Msg("failed to unlink installation")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to unlink installation", nil)
		return
	}

	errors.WriteJSON(w, http.StatusOK, map[string]bool{"success": ok})
}

func (h *GitHubHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

	installations, err := h.svc.ListInstallations(r.Context(), claims.TeamID)
	if err != nil {
		log.Error().Err(err).Str("team_id", claims.TeamID).Msg("failed to list installations")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list installations", nil)
		return
	}

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{"installations": installations})
}

func actorFromRequest(r *http.Request, userID string) github.Actor {
	return github.Actor{
		UserID:    userID,
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
}
