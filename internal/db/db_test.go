package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"hibococina/internal/config"
	"hibococina/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestInitializeRequiresURL(t *testing.T) {
	t.Parallel()

	db, err := Initialize(config.DatabaseConfig{URL: ""})
	if err == nil {
		t.Fatal("expected error when database URL is empty")
	}
	if db != nil {
		t.Fatal("expected returned db handle to be nil on error")
	}
}

func TestIsPostgresURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want bool
	}{
		{"postgres://user@localhost/hibo", true},
		{"PostgreSQL://user@localhost/hibo", true},
		{"hibo.db", false},
		{"file:hibo?mode=memory&cache=shared", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.url, func(t *testing.T) {
			t.Parallel()
			if got := isPostgresURL(tt.url); got != tt.want {
				t.Fatalf("isPostgresURL(%q) = %t, want %t", tt.url, got, tt.want)
			}
		})
	}
}

func TestSQLiteDSNAddsBusyTimeout(t *testing.T) {
	t.Parallel()

	if got := sqliteDSN("hibo.db"); got != "hibo.db?_busy_timeout=5000" {
		t.Fatalf("sqliteDSN(hibo.db) = %q", got)
	}
	if got := sqliteDSN("file::memory:?cache=shared"); got != "file::memory:?cache=shared" {
		t.Fatalf("expected DSN with params to be untouched, got %q", got)
	}
}

func TestAutoMigrateRejectsNilDatabase(t *testing.T) {
	t.Parallel()

	if err := AutoMigrate(nil); err == nil {
		t.Fatal("expected error when database handle is nil")
	}
}

func TestPrepareWithSQLite(t *testing.T) {
	t.Parallel()

	sqliteDB, err := gorm.Open(sqlite.Open("file:dbprepare?mode=memory&cache=shared"), GormConfig(logger.Silent))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}

	if err := Prepare(context.Background(), sqliteDB, ""); err != nil {
		t.Fatalf("prepare sqlite database: %v", err)
	}
	// A second pass must be harmless.
	if err := Prepare(context.Background(), sqliteDB, ""); err != nil {
		t.Fatalf("second prepare: %v", err)
	}

	var count int64
	if err := sqliteDB.Model(&models.AllergenDefinition{}).Count(&count).Error; err != nil {
		t.Fatalf("count allergen definitions: %v", err)
	}
	if count != 14 {
		t.Fatalf("expected 14 official allergens, got %d", count)
	}
}

func TestConfigurePropagatesInitializationError(t *testing.T) {
	t.Parallel()

	if _, err := Configure(config.DatabaseConfig{}); err == nil {
		t.Fatal("expected configuration error when initialize fails")
	}
}

func TestMustConfigurePanicsOnError(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic when configuration fails")
		}
	}()

	MustConfigure(config.DatabaseConfig{})
}

func TestMigrateReportsExtraDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "0100_notas.sql"), []byte("CREATE TABLE notas_cocina (id INTEGER PRIMARY KEY);"), 0o600); err != nil {
		t.Fatalf("write migration: %v", err)
	}

	sqliteDB, err := gorm.Open(sqlite.Open("file:dbmigrate?mode=memory&cache=shared"), GormConfig(logger.Silent))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}

	report, err := Migrate(context.Background(), sqliteDB, dir)
	if err != nil {
		t.Fatalf("Migrate error = %v", err)
	}
	if len(report.Failed()) != 0 {
		t.Fatalf("unexpected failed files %+v", report.Failed())
	}
	last := report.Files[len(report.Files)-1]
	if last.Name != filepath.Join(dir, "0100_notas.sql") || last.Applied != 1 {
		t.Fatalf("expected extra file to be reported with its path, got %+v", last)
	}
}
