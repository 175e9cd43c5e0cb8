package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"openfeedback/internal/platform/models"
)

const teamColumns = `id, name, slug, logo, public_key, organization_id, created_at, updated_at`

type TeamRepository struct {
	db *sql.DB
}

func NewTeamRepository(db *sql.DB) *TeamRepository {
	return &TeamRepository{db: db}
}

func (r *TeamRepository) Create(ctx context.Context, team *models.Team) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO teams (`+teamColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, team.ID, team.Name, team.Slug, team.Logo, team.PublicKey, team.OrganizationID, team.CreatedAt, team.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create team: %w", mapError(err))
	}
	return nil
}

// GetBySlug returns the team whose slug matches exactly, or nil when none does.
func (r *TeamRepository) GetBySlug(ctx context.Context, slug string) (*models.Team, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+teamColumns+`
		FROM teams WHERE slug = $1 LIMIT 1
	`, slug)

	team, err := scanTeam(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get team by slug: %w", err)
	}
	return team, nil
}

func scanTeam(row *sql.Row) (*models.Team, error) {
	var t models.Team
	var logo, publicKey sql.NullString

	err := row.Scan(&t.ID, &t.Name, &t.Slug, &logo, &publicKey, &t.OrganizationID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if logo.Valid {
		t.Logo = &logo.String
	}
	if publicKey.Valid {
		t.PublicKey = &publicKey.String
	}
	return &t, nil
}
