package github

import (
	"context"
	"errors"
	"fmt"

	gh "github.com/google/go-github/v58/github"

	"openfeedback/internal/platform/audit"
	"openfeedback/internal/platform/models"
	"openfeedback/internal/platform/repositories"
)

// HandleWebhookEvent keeps installation records in step with GitHub. Only
// the created and deleted actions change anything.
func (s *Service) HandleWebhookEvent(ctx context.Context, event *gh.InstallationEvent) error {
	installationID := event.GetInstallation().GetID()
	if installationID <= 0 {
		return ErrInvalidInstallation
	}

	log := s.log.With().Str("action", event.GetAction()).Int64("installation_id", installationID).Logger()

	switch event.GetAction() {
	case "created":
		account := event.GetInstallation().GetAccount()
		inst := &models.GitHubInstallation{
			InstallationID: installationID,
			AccountLogin:   account.GetLogin(),
			AccountType:    account.GetType(),
		}
		if err := s.store.Upsert(ctx, inst); err != nil {
			return fmt.Errorf("failed to save installation: %w", err)
		}
		log.Info().Str("account", inst.AccountLogin).Msg("installation created")
		s.record(ctx, "", audit.ActionInstallationCreated, installationID, map[string]interface{}{
			"account_login": inst.AccountLogin,
		})

	case "deleted":
		var teamID string
		existing, err := s.store.GetByInstallationID(ctx, installationID)
		if err != nil {
			return err
		}
		if inst, ok := existing.Get(); ok && inst.TeamID != nil {
			teamID = *inst.TeamID
		}
		if err := s.store.Delete(ctx, installationID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				log.Debug().Msg("installation already removed")
				return nil
			}
			return fmt.Errorf("failed to delete installation: %w", err)
		}
		log.Info().Str("team_id", teamID).Msg("installation deleted")
		s.record(ctx, teamID, audit.ActionInstallationDeleted, installationID, nil)

	default:
		log.Debug().Msg("ignoring installation event")
	}

	return nil
}
