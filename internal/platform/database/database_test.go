package database

import (
	"context"
	"path/filepath"
	"testing"

	"openfeedback/internal/platform/config"
	"openfeedback/migrations"
)

func TestDriver(t *testing.T) {
	tests := map[string]string{
		"postgres://user@localhost/openfeedback":   "pgx",
		"postgresql://user@localhost/openfeedback": "pgx",
		"file:./data/openfeedback.db":              "sqlite3",
		":memory:":                                 "sqlite3",
	}
	for url, want := range tests {
		if got := Driver(url); got != want {
			t.Errorf("Driver(%q) = %q, want %q", url, got, want)
		}
	}
}

func TestOpen_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(context.Background(), config.DatabaseConfig{URL: "file:" + path, MaxConnections: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if _, err := db.Exec("CREATE TABLE t (id TEXT)"); err != nil {
		t.Errorf("Exec() error = %v", err)
	}
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, config.DatabaseConfig{URL: "file:" + filepath.Join(t.TempDir(), "m.db"), MaxConnections: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	applied, err := Migrate(ctx, db, migrations.FS)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if len(applied) != 3 || applied[0] != "001_teams" {
		t.Errorf("Expected 3 migrations starting with 001_teams, got %v", applied)
	}

	again, err := Migrate(ctx, db, migrations.FS)
	if err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if len(again) != 0 {
		t.Errorf("Expected no migrations on second run, got %v", again)
	}

	for _, table := range []string{"teams", "github_installations", "audit_logs"} {
		if _, err := db.Exec("SELECT COUNT(*) FROM " + table); err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("CREATE TABLE a (id TEXT);\n\nCREATE INDEX i ON a (id);\n")
	if len(got) != 2 || got[1] != "CREATE INDEX i ON a (id)" {
		t.Errorf("splitStatements() = %q", got)
	}
}
