package handlers

import (
	"context"
	stderrors "errors"
	"net/http"

	gh "github.com/google/go-github/v58/github"
	"github.com/rs/zerolog/log"

	"openfeedback/internal/engine/github"
	"openfeedback/internal/pkg/errors"
)

// GitHub caps webhook deliveries at 25 MB.
const maxWebhookPayload = 25 << 20

type WebhookService interface {
	HandleWebhookEvent(ctx context.Context, event *gh.InstallationEvent) error
}

type GitHubWebhookHandler struct {
	svc    WebhookService
	secret []byte
}

func NewGitHubWebhookHandler(svc WebhookService, secret string) *GitHubWebhookHandler {
	return &GitHubWebhookHandler{svc: svc, secret: []byte(secret)}
}

func (h *GitHubWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	// go-github skips signature checks for an empty secret.
	if len(h.secret) == 0 {
		errors.WriteError(w, http.StatusServiceUnavailable, errors.ErrCodeInternal, "Webhooks are not configured", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookPayload)
	payload, err := gh.ValidatePayload(r, h.secret)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			log.Warn().Int64("limit", tooLarge.Limit).Str("delivery", gh.DeliveryID(r)).Msg("github webhook payload too large")
			errors.WriteError(w, http.StatusRequestEntityTooLarge, errors.ErrCodeInvalidInput, "Payload too large", nil)
			return
		}
		log.Warn().Err(err).Str("delivery", gh.DeliveryID(r)).Msg("rejected github webhook")
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid signature", nil)
		return
	}

	eventType := gh.WebHookType(r)
	if eventType != "installation" {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	event, err := gh.ParseWebHook(eventType, payload)
	if err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid payload", nil)
		return
	}

	if err := h.svc.HandleWebhookEvent(r.Context(), event.(*gh.InstallationEvent)); err != nil {
		if stderrors.Is(err, github.ErrInvalidInstallation) {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid installation", nil)
			return
		}
		log.Error().Err(err).Str("delivery", gh.DeliveryID(r)).Msg("failed to handle github webhook")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to handle webhook", nil)
		return
	}

	errors.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
