package migrate

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"testing/fstest"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDatabase(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func tableExists(t *testing.T, db *gorm.DB, name string) bool {
	t.Helper()
	var count int64
	if err := db.Raw("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&count).Error; err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return count == 1
}

func TestRunToleratesDuplicateColumnAndContinues(t *testing.T) {
	db := openTestDatabase(t, "migrate_duplicate")

	fsys := fstest.MapFS{
		"001_ingredientes.sql": {Data: []byte("CREATE TABLE ingredientes (id INTEGER PRIMARY KEY, nombre TEXT);")},
		"002_coste.sql": {Data: []byte(`
			ALTER TABLE ingredientes ADD COLUMN nombre TEXT;
			ALTER TABLE ingredientes ADD COLUMN coste_kilo REAL;
		`)},
		"003_roto.sql":   {Data: []byte("CREATE TABL platos (id INTEGER);\nCREATE TABLE nunca (id INTEGER);")},
		"004_platos.sql": {Data: []byte("CREATE TABLE platos (id INTEGER PRIMARY KEY);")},
	}

	report := New(db, fsys).Run(context.Background())

	if len(report.Files) != 4 {
		t.Fatalf("expected 4 file results, got %d", len(report.Files))
	}

	dup := report.Files[1]
	if dup.Err != nil {
		t.Fatalf("expected duplicate column to be tolerated, got %v", dup.Err)
	}
	if len(dup.Warnings) != 1 || dup.Applied != 1 {
		t.Fatalf("expected one warning and one applied statement, got %+v", dup)
	}

	failed := report.Failed()
	if len(failed) != 1 || failed[0].Name != "003_roto.sql" {
		t.Fatalf("expected only 003_roto.sql to fail, got %+v", failed)
	}
	if tableExists(t, db, "nunca") {
		t.Fatal("statements after a failure in the same file must not run")
	}
	if !tableExists(t, db, "platos") {
		t.Fatal("expected later migration files to be applied after a failure")
	}
	if report.Warnings() != 1 {
		t.Fatalf("expected 1 warning in total, got %d", report.Warnings())
	}

	var columns []struct{ Name string }
	if err := db.Raw("SELECT name FROM pragma_table_info('ingredientes')").Scan(&columns).Error; err != nil {
		t.Fatalf("read table info: %v", err)
	}
	found := false
	for _, column := range columns {
		if column.Name == "coste_kilo" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected coste_kilo column to be added after the tolerated statement")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	db := openTestDatabase(t, "migrate_idempotent")
	fsys := fstest.MapFS{
		"001.sql": {Data: []byte("CREATE TABLE inventario (id INTEGER PRIMARY KEY);")},
	}

	first := New(db, fsys).Run(context.Background())
	if len(first.Failed()) != 0 || first.Warnings() != 0 {
		t.Fatalf("unexpected first run report: %+v", first)
	}

	second := New(db, fsys).Run(context.Background())
	if len(second.Failed()) != 0 {
		t.Fatalf("second run must not fail, got %+v", second.Failed())
	}
	if second.Warnings() != 1 {
		t.Fatalf("expected existing table to be reported as a warning, got %d", second.Warnings())
	}
}

func TestRunWithoutDatabase(t *testing.T) {
	t.Parallel()

	report := New(nil, fstest.MapFS{"001.sql": {Data: []byte("SELECT 1;")}}).Run(context.Background())
	if len(report.Failed()) != 1 {
		t.Fatalf("expected failure without database, got %+v", report)
	}
}

func TestIsAlreadyApplied(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("duplicate column name: nombre"), true},
		{errors.New(`ERROR: column "peso_raciones" of relation "platos" already exists (SQLSTATE 42701)`), true},
		{errors.New("table platos already exists"), true},
		{errors.New(`near "TABL": syntax error`), false},
	}

	for _, tt := range tests {
		if got := IsAlreadyApplied(tt.err); got != tt.want {
			t.Fatalf("IsAlreadyApplied(%v) = %t, want %t", tt.err, got, tt.want)
		}
	}
}

func TestSplitStatements(t *testing.T) {
	t.Parallel()

	script := `
-- cabecera; con punto y coma
CREATE TABLE a (nombre TEXT DEFAULT 'x;y');
INSERT INTO a (nombre) VALUES ('it''s');  -- trailing comment
;
UPDATE a SET nombre = "b;c"
`
	got := SplitStatements(script)
	want := []string{
		"CREATE TABLE a (nombre TEXT DEFAULT 'x;y')",
		"INSERT INTO a (nombre) VALUES ('it''s')",
		`UPDATE a SET nombre = "b;c"`,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitStatements() = %#v, want %#v", got, want)
	}
}

func TestEmbeddedMigrationsAreListed(t *testing.T) {
	t.Parallel()

	fsys := Embedded()
	for _, name := range []string{"0001_indices.sql", "0002_platos_peso_raciones.sql", "0003_inventario_sin_ingrediente.sql"} {
		if _, err := fsys.Open(name); err != nil {
			t.Fatalf("expected embedded migration %s: %v", name, err)
		}
	}
}

func TestExportSchema(t *testing.T) {
	db := openTestDatabase(t, "migrate_export")
	if err := db.Exec("CREATE TABLE platos (id INTEGER PRIMARY KEY, nombre TEXT)").Error; err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := db.Exec("CREATE INDEX idx_platos_nombre ON platos (nombre)").Error; err != nil {
		t.Fatalf("create index: %v", err)
	}

	var buf bytes.Buffer
	if err := ExportSchema(context.Background(), db, &buf); err != nil {
		t.Fatalf("ExportSchema error = %v", err)
	}

	out := buf.String()
	tableAt := strings.Index(out, "CREATE TABLE platos")
	indexAt := strings.Index(out, "CREATE INDEX idx_platos_nombre")
	if tableAt < 0 || indexAt < 0 {
		t.Fatalf("expected table and index in export, got %q", out)
	}
	if tableAt > indexAt {
		t.Fatal("expected tables to be exported before indexes")
	}
}
