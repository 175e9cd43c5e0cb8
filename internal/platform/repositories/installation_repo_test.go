package repositories

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"openfeedback/internal/platform/database"
	"openfeedback/internal/platform/models"
	"openfeedback/migrations"
)

func TestInstallationRepository_GetByInstallationID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewInstallationRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "installation_id", "account_login", "account_type", "team_id", "created_at", "updated_at"}).
		AddRow("ghi_1", int64(42), "acme-gh", "Organization", "t1", now, now)
	mock.ExpectQuery(`SELECT (.+) FROM github_installations WHERE installation_id = \$1`).
		WithArgs(int64(42)).
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT (.+) FROM github_installations WHERE installation_id = \$1`).
		WithArgs(int64(7)).
		WillReturnError(sql.ErrNoRows)

	got, err := repo.GetByInstallationID(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetByInstallationID() error = %v", err)
	}
	inst, ok := got.Get()
	if !ok {
		t.Fatal("Expected installation to be present")
	}
	if !inst.LinkedTo("t1") || inst.AccountLogin != "acme-gh" {
		t.Errorf("unexpected installation %+v", inst)
	}

	missing, err := repo.GetByInstallationID(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetByInstallationID() error = %v", err)
	}
	if missing.IsPresent() {
		t.Error("Expected no installation")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestInstallationRepository_LinkTeamIsConditional(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewInstallationRepository(db)

	mock.ExpectExec(`UPDATE github_installations SET team_id = \$1, updated_at = \$2 WHERE installation_id = \$3 AND \(team_id IS NULL OR team_id = \$4\)`).
		WithArgs("t2", sqlmock.AnyArg(), int64(42), "t2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	linked, err := repo.LinkTeam(context.Background(), 42, "t2")
	if err != nil {
		t.Fatalf("LinkTeam() error = %v", err)
	}
	if linked {
		t.Error("Expected link to be refused when no row matches")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

// openMigratedSQLite applies the embedded migrations to a fresh sqlite file.
func openMigratedSQLite(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "repo.db")+"?_foreign_keys=on")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := database.Migrate(context.Background(), db, migrations.FS); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestInstallationRepository_SQLiteLifecycle(t *testing.T) {
	db := openMigratedSQLite(t)
	ctx := context.Background()

	teams := NewTeamRepository(db)
	now := time.Now().UTC()
	for _, id := range []string{"team_a", "team_b"} {
		err := teams.Create(ctx, &models.Team{ID: id, Name: id, Slug: id, OrganizationID: "org_1", CreatedAt: now, UpdatedAt: now})
		if err != nil {
			t.Fatalf("Create team %s: %v", id, err)
		}
	}

	repo := NewInstallationRepository(db)
	if err := repo.Upsert(ctx, &models.GitHubInstallation{InstallationID: 42, AccountLogin: "acme-gh", AccountType: "Organization"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	steps := []struct {
		name   string
		op     func() (bool, error)
		want   bool
		teamID string
	}{
		{"link unlinked", func() (bool, error) { return repo.LinkTeam(ctx, 42, "team_a") }, true, "team_a"},
		{"relink same team", func() (bool, error) { return repo.LinkTeam(ctx, 42, "team_a") }, true, "team_a"},
		{"link other team", func() (bool, error) { return repo.LinkTeam(ctx, 42, "team_b") }, false, "team_a"},
		{"unlink by other team", func() (bool, error) { return repo.UnlinkTeam(ctx, 42, "team_b") }, false, "team_a"},
		{"unlink by owner", func() (bool, error) { return repo.UnlinkTeam(ctx, 42, "team_a") }, true, ""},
		{"link after unlink", func() (bool, error) { return repo.LinkTeam(ctx, 42, "team_b") }, true, "team_b"},
	}

	for _, step := range steps {
		got, err := step.op()
		if err != nil {
			t.Fatalf("%s: error = %v", step.name, err)
		}
		if got != step.want {
			t.Errorf("%s: got %v, want %v", step.name, got, step.want)
		}

		opt, err := repo.GetByInstallationID(ctx, 42)
		if err != nil {
			t.Fatalf("%s: GetByInstallationID() error = %v", step.name, err)
		}
		inst := opt.MustGet()
		switch {
		case step.teamID == "" && inst.Linked():
			t.Errorf("%s: expected unlinked, got %s", step.name, *inst.TeamID)
		case step.teamID != "" && !inst.LinkedTo(step.teamID):
			t.Errorf("%s: expected linked to %s, got %v", step.name, step.teamID, inst.TeamID)
		}
	}

	// A second upsert without account details keeps the stored ones and the binding.
	if err := repo.Upsert(ctx, &models.GitHubInstallation{InstallationID: 42}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	inst := mustInstallation(t, repo, 42)
	if inst.AccountLogin != "acme-gh" || !inst.LinkedTo("team_b") {
		t.Errorf("Upsert clobbered installation: %+v", inst)
	}

	list, err := repo.ListByTeam(ctx, "team_b")
	if err != nil {
		t.Fatalf("ListByTeam() error = %v", err)
	}
	if len(list) != 1 || list[0].InstallationID != 42 {
		t.Errorf("ListByTeam() = %+v", list)
	}

	if err := repo.Delete(ctx, 42); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	opt, err := repo.GetByInstallationID(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	if opt.IsPresent() {
		t.Error("Expected installation to be deleted")
	}

	if err := repo.Delete(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting a missing installation, got %v", err)
	}
}

func TestTeamRepository_DuplicateSlugIsConflict(t *testing.T) {
	db := openMigratedSQLite(t)
	ctx := context.Background()
	teams := NewTeamRepository(db)
	now := time.Now().UTC()

	if err := teams.Create(ctx, &models.Team{ID: "t1", Name: "Acme", Slug: "acme", OrganizationID: "o", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatal(err)
	}
	err := teams.Create(ctx, &models.Team{ID: "t2", Name: "Acme 2", Slug: "acme", OrganizationID: "o", CreatedAt: now, UpdatedAt: now})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict, got %v", err)
	}

	team, err := teams.GetBySlug(ctx, "acme")
	if err != nil || team == nil || team.ID != "t1" {
		t.Errorf("GetBySlug() = %+v, %v", team, err)
	}
	// Slug matching is exact.
	if team, _ := teams.GetBySlug(ctx, "ACME"); team != nil {
		t.Errorf("Expected case-sensitive miss, got %+v", team)
	}
}

func mustInstallation(t *testing.T, repo *InstallationRepository, id int64) *models.GitHubInstallation {
	t.Helper()
	opt, err := repo.GetByInstallationID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	inst, ok := opt.Get()
	if !ok {
		t.Fatalf("installation %d not found", id)
	}
	return inst
}
