package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var teamRowColumns = []string{"id", "name", "slug", "logo", "public_key", "organization_id", "created_at", "updated_at"}

func TestTeamRepository_GetBySlug(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewTeamRepository(db)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("Found", func(t *testing.T) {
		rows := sqlmock.NewRows(teamRowColumns).
			AddRow("t1", "Acme Inc", "acme", "https://cdn/acme.png", nil, "org_1", created, created)
		mock.ExpectQuery(`SELECT (.+) FROM teams WHERE slug = \$1 LIMIT 1`).
			WithArgs("acme").
			WillReturnRows(rows)

		team, err := repo.GetBySlug(context.Background(), "acme")
		if err != nil {
			t.Fatalf("GetBySlug() error = %v", err)
		}
		if team == nil || team.ID != "t1" || team.Name != "Acme Inc" {
			t.Fatalf("unexpected team %+v", team)
		}
		if team.Logo == nil || *team.Logo != "https://cdn/acme.png" {
			t.Errorf("Expected logo to be set, got %v", team.Logo)
		}
		if team.PublicKey != nil {
			t.Errorf("Expected nil public key, got %v", *team.PublicKey)
		}
		if !team.CreatedAt.Equal(created) {
			t.Errorf("Expected created_at %v, got %v", created, team.CreatedAt)
		}
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM teams WHERE slug = \$1 LIMIT 1`).
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		team, err := repo.GetBySlug(context.Background(), "ghost")
		if err != nil {
			t.Fatalf("GetBySlug() error = %v", err)
		}
		if team != nil {
			t.Errorf("Expected nil team, got %+v", team)
		}
	})

	t.Run("Database Error", func(t *testing.T) {
		boom := errors.New("connection reset")
		mock.ExpectQuery(`SELECT (.+) FROM teams WHERE slug = \$1 LIMIT 1`).
			WithArgs("acme").
			WillReturnError(boom)

		_, err := repo.GetBySlug(context.Background(), "acme")
		if !errors.Is(err, boom) {
			t.Errorf("Expected wrapped database error, got %v", err)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}
