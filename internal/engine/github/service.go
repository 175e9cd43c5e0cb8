// Package github links GitHub App installations to teams.
//
// An installation moves through NOT_LINKED, LINK_PENDING (an install URL with
// a signed state was issued) and LINKED. It is bound to at most one team.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/mo"

	"openfeedback/internal/engine/installstate"
	"openfeedback/internal/pkg/logger"
	"openfeedback/internal/platform/audit"
	"openfeedback/internal/platform/models"
)

var (
	ErrInvalidReturnTo      = errors.New("return url must stay on the frontend origin")
	ErrInvalidInstallation  = errors.New("invalid installation id")
	ErrAppNameNotConfigured = errors.New("github app name is not configured")
)

// InstallationStore persists installations. LinkTeam must only succeed when
// the row is unlinked or already bound to teamID.
type InstallationStore interface {
	GetByInstallationID(ctx context.Context, installationID int64) (mo.Option[*models.GitHubInstallation], error)
	Upsert(ctx context.Context, inst *models.GitHubInstallation) error
	LinkTeam(ctx context.Context, installationID int64, teamID string) (bool, error)
	UnlinkTeam(ctx context.Context, installationID int64, teamID string) (bool, error)
	// Delete returns repositories.ErrNotFound when the installation is unknown.
	Delete(ctx context.Context, installationID int64) error
	ListByTeam(ctx context.Context, teamID string) ([]*models.GitHubInstallation, error)
}

type Auditor interface {
	Log(entry models.AuditLog)
}

// CallbackResult is the outcome of an installation callback. TeamID is set
// when the state named a team.
type CallbackResult struct {
	Success  bool
	ReturnTo string
	TeamID   *string
}

type Service struct {
	store    InstallationStore
	signer   *installstate.Signer
	accounts AccountFetcher
	auditor  Auditor
	appName  string
	frontend *url.URL
	log      zerolog.Logger
}

// NewService wires the linking flow. accounts and auditor may be nil.
func NewService(store InstallationStore, signer *installstate.Signer, accounts AccountFetcher, auditor Auditor, appName, frontendURL string) (*Service, error) {
	frontend, err := url.Parse(frontendURL)
	if err != nil || frontend.Scheme == "" || frontend.Host == "" {
		return nil, fmt.Errorf("invalid frontend url %q", frontendURL)
	}

	return &Service{
		store:    store,
		signer:   signer,
		accounts: accounts,
		auditor:  auditor,
		appName:  appName,
		frontend: frontend,
		log:      logger.Component("github"),
	}, nil
}

// InstallURL returns the GitHub App installation URL carrying a signed state
// for teamID. An empty teamID installs without linking.
func (s *Service) InstallURL(teamID, returnTo string) (string, error) {
	if s.appName == "" {
		return "", ErrAppNameNotConfigured
	}

	target, err := s.resolveReturnTo(returnTo)
	if err != nil {
		return "", err
	}

	var team *string
	if teamID != "" {
		team = &teamID
	}

	state, err := s.signer.Sign(s.signer.NewPayload(team, target))
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("https://github.com/apps/%s/installations/new?state=%s",
		url.PathEscape(s.appName), url.QueryEscape(state)), nil
}

func (s *Service) resolveReturnTo(returnTo string) (string, error) {
	if returnTo == "" {
		return s.frontend.String(), nil
	}

	u, err := url.Parse(returnTo)
	if err != nil {
		return "", ErrInvalidReturnTo
	}
	if u.Scheme == "" && u.Host == "" {
		if !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(returnTo, "//") {
			return "", ErrInvalidReturnTo
		}
		return s.frontend.ResolveReference(u).String(), nil
	}
	if !strings.EqualFold(u.Scheme, s.frontend.Scheme) || !strings.EqualFold(u.Host, s.frontend.Host) {
		return "", ErrInvalidReturnTo
	}
	return u.String(), nil
}

// HandleCallback completes an installation redirect. An invalid or stale
// state fails with installstate.ErrInvalidState before anything is written.
func (s *Service) HandleCallback(ctx context.Context, installationID int64, state string) (CallbackResult, error) {
	payload, err := s.signer.Verify(state)
	if err != nil {
		s.log.Warn().Err(err).Int64("installation_id", installationID).Msg("rejected installation callback state")
		return CallbackResult{}, err
	}
	if installationID <= 0 {
		return CallbackResult{}, ErrInvalidInstallation
	}

	inst := &models.GitHubInstallation{InstallationID: installationID}
	if s.accounts != nil {
		account, err := s.accounts.InstallationAccount(ctx, installationID)
		if err != nil {
			s.log.Warn().Err(err).Int64("installation_id", installationID).Msg("failed to fetch installation account")
		} else {
			inst.AccountLogin = account.Login
			inst.AccountType = account.Type
		}
	}

	if err := s.store.Upsert(ctx, inst); err != nil {
		return CallbackResult{}, fmt.Errorf("failed to save installation: %w", err)
	}

	result := CallbackResult{Success: true, ReturnTo: payload.ReturnTo, TeamID: payload.TeamID}
	if payload.TeamID == nil {
		return result, nil
	}

	linked, err := s.LinkInstallation(ctx, installationID, *payload.TeamID)
	if err != nil {
		return CallbackResult{}, err
	}
	result.Success = linked
	return result, nil
}

// LinkInstallation binds the installation to teamID. It returns false when
// the installation is unknown or belongs to another team, and true when it is
// (now or already) linked to teamID.
func (s *Service) LinkInstallation(ctx context.Context, installationID int64, teamID string) (bool, error) {
	existing, err := s.store.GetByInstallationID(ctx, installationID)
	if err != nil {
		return false, err
	}
	inst, ok := existing.Get()
	if !ok {
		return false, nil
	}
	if inst.LinkedTo(teamID) {
		return true, nil
	}
	if inst.Linked() {
		s.log.Warn().Int64("installation_id", installationID).Str("team_id", teamID).Msg("installation already linked to another team")
		return false, nil
	}

	linked, err := s.store.LinkTeam(ctx, installationID, teamID)
	if err != nil {
		return false, err
	}
	if !linked {
		// another team won the race
		return false, nil
	}

	s.log.Info().Int64("installation_id", installationID).Str("team_id", teamID).Msg("installation linked")
	s.record(ctx, teamID, audit.ActionInstallationLinked, installationID, map[string]interface{}{
		"account_login": inst.AccountLogin,
	})
	return true, nil
}

// UnlinkInstallation releases the installation from teamID. Unlinking an
// unlinked installation succeeds; a team cannot unlink another team's.
func (s *Service) UnlinkInstallation(ctx context.Context, installationID int64, teamID string) (bool, error) {
	existing, err := s.store.GetByInstallationID(ctx, installationID)
	if err != nil {
		return false, err
	}
	inst, ok := existing.Get()
	if !ok {
		return false, nil
	}
	if !inst.Linked() {
		return true, nil
	}
	if !inst.LinkedTo(teamID) {
		return false, nil
	}

	unlinked, err := s.store.UnlinkTeam(ctx, installationID, teamID)
	if err != nil {
		return false, err
	}
	if unlinked {
		s.log.Info().Int64("installation_id", installationID).Str("team_id", teamID).Msg("installation unlinked")
		s.record(ctx, teamID, audit.ActionInstallationUnlinked, installationID, nil)
		return true, nil
	}

	// Changed underneath us; report the current state.
	current, err := s.store.GetByInstallationID(ctx, installationID)
	if err != nil {
		return false, err
	}
	inst, ok = current.Get()
	return ok && !inst.Linked(), nil
}

func (s *Service) ListInstallations(ctx context.Context, teamID string) ([]*models.GitHubInstallation, error) {
	return s.store.ListByTeam(ctx, teamID)
}

func (s *Service) record(ctx context.Context, teamID, action string, installationID int64, metadata map[string]interface{}) {
	if s.auditor == nil {
		return
	}
	actor := ActorFromContext(ctx)
	s.auditor.Log(models.AuditLog{
		TeamID:       teamID,
		UserID:       actor.UserID,
		Action:       action,
		ResourceType: audit.ResourceInstallation,
		ResourceID:   strconv.FormatInt(installationID, 10),
		Metadata:     metadata,
		IPAddress:    actor.IPAddress,
		UserAgent:    actor.UserAgent,
	})
}
