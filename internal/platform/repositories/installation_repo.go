package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"openfeedback/internal/platform/models"
)

const installationColumns = `id, installation_id, account_login, account_type, team_id, created_at, updated_at`

type InstallationRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewInstallationRepository(db *sql.DB) *InstallationRepository {
	return &InstallationRepository{db: db, now: time.Now}
}

func (r *InstallationRepository) GetByInstallationID(ctx context.Context, installationID int64) (mo.Option[*models.GitHubInstallation], error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+installationColumns+`
		FROM github_installations WHERE installation_id = $1
	`, installationID)

	inst, err := scanInstallation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mo.None[*models.GitHubInstallation](), nil
		}
		return mo.None[*models.GitHubInstallation](), fmt.Errorf("failed to get github installation: %w", err)
	}
	return mo.Some(inst), nil
}

// Upsert records the installation and refreshes its account details. The
// team binding of an existing row is left untouched.
func (r *InstallationRepository) Upsert(ctx context.Context, inst *models.GitHubInstallation) error {
	now := r.now().UTC()
	if inst.ID == "" {
		inst.ID = "ghi_" + uuid.NewString()
	}
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	inst.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO github_installations (id, installation_id, account_login, account_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (installation_id) DO UPDATE SET
			account_login = CASE WHEN excluded.account_login = '' THEN github_installations.account_login ELSE excluded.account_login END,
			account_type = CASE WHEN excluded.account_type = '' THEN github_installations.account_type ELSE excluded.account_type END,
			updated_at = excluded.updated_at
	`, inst.ID, inst.InstallationID, inst.AccountLogin, inst.AccountType, inst.CreatedAt, inst.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert github installation: %w", mapError(err))
	}
	return nil
}

// LinkTeam binds the installation to teamID unless it is bound to another
// team. It reports whether the installation ends up bound to teamID.
func (r *InstallationRepository) LinkTeam(ctx context.Context, installationID int64, teamID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE github_installations SET team_id = $1, updated_at = $2
		WHERE installation_id = $3 AND (team_id IS NULL OR team_id = $4)
	`, teamID, r.now().UTC(), installationID, teamID)
	if err != nil {
		return false, fmt.Errorf("failed to link github installation: %w", err)
	}
	return affected(res)
}

// UnlinkTeam clears the binding if the installation is bound to teamID.
func (r *InstallationRepository) UnlinkTeam(ctx context.Context, installationID int64, teamID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE github_installations SET team_id = NULL, updated_at = $1
		WHERE installation_id = $2 AND team_id = $3
	`, r.now().UTC(), installationID, teamID)
	if err != nil {
		return false, fmt.Errorf("failed to unlink github installation: %w", err)
	}
	return affected(res)
}

// Delete removes the installation. It returns ErrNotFound when no row matched.
func (r *InstallationRepository) Delete(ctx context.Context, installationID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM github_installations WHERE installation_id = $1`, installationID)
	if err != nil {
		return fmt.Errorf("failed to delete github installation: %w", err)
	}
	deleted, err := affected(res)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

func (r *InstallationRepository) ListByTeam(ctx context.Context, teamID string) ([]*models.GitHubInstallation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+installationColumns+`
		FROM github_installations WHERE team_id = $1
		ORDER BY created_at DESC
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list github installations: %w", err)
	}
	defer rows.Close()

	installations := []*models.GitHubInstallation{}
	for rows.Next() {
		inst, err := scanInstallation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan github installation: %w", err)
		}
		installations = append(installations, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating github installations: %w", err)
	}
	return installations, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstallation(s scanner) (*models.GitHubInstallation, error) {
	var inst models.GitHubInstallation
	var teamID sql.NullString

	err := s.Scan(&inst.ID, &inst.InstallationID, &inst.AccountLogin, &inst.AccountType, &teamID, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if teamID.Valid {
		inst.TeamID = &teamID.String
	}
	return &inst, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}
