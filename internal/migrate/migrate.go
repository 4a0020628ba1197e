// Package migrate applies ordered SQL files to the database. Statements that
// fail because they were already applied are reported as warnings; any other
// failure stops the current file and the runner moves on to the next one.
package migrate

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strings"

	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Embedded returns the migration files shipped with the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// FileResult describes what happened to one migration file.
type FileResult struct {
	Name     string
	Applied  int
	Warnings []string
	Err      error
}

// Report is the outcome of a full run.
type Report struct {
	Files []FileResult
}

// Failed returns the files that stopped on a non-idempotent error.
func (r Report) Failed() []FileResult {
	var failed []FileResult
	for _, file := range r.Files {
		if file.Err != nil {
			failed = append(failed, file)
		}
	}
	return failed
}

// Warnings returns the total number of tolerated statements.
func (r Report) Warnings() int {
	total := 0
	for _, file := range r.Files {
		total += len(file.Warnings)
	}
	return total
}

// Runner applies every *.sql file of a filesystem in lexical order.
type Runner struct {
	db   *gorm.DB
	fsys fs.FS
}

// New builds a Runner for the given database and migration source.
func New(db *gorm.DB, fsys fs.FS) *Runner {
	return &Runner{db: db, fsys: fsys}
}

// Run applies all files. It never stops early: a failed file is recorded and
// the next file is attempted.
func (r *Runner) Run(ctx context.Context) Report {
	var report Report

	names, err := fs.Glob(r.fsys, "*.sql")
	if err != nil {
		report.Files = append(report.Files, FileResult{Name: "*.sql", Err: fmt.Errorf("list migrations: %w", err)})
		return report
	}
	sort.Strings(names)

	for _, name := range names {
		report.Files = append(report.Files, r.applyFile(ctx, name))
	}
	return report
}

func (r *Runner) applyFile(ctx context.Context, name string) FileResult {
	result := FileResult{Name: name}

	if r.db == nil {
		result.Err = errors.New("database handle is nil")
		return result
	}

	content, err := fs.ReadFile(r.fsys, name)
	if err != nil {
		result.Err = fmt.Errorf("read %s: %w", name, err)
		return result
	}

	sqlDB, err := r.db.DB()
	if err != nil {
		result.Err = fmt.Errorf("get sql db: %w", err)
		return result
	}

	for idx, stmt := range SplitStatements(string(content)) {
		if _, err := sqlDB.ExecContext(ctx, stmt); err != nil {
			if IsAlreadyApplied(err) {
				result.Warnings = append(result.Warnings, fmt.Sprintf("statement %d: %v", idx+1, err))
				continue
			}
			result.Err = fmt.Errorf("statement %d: %w", idx+1, err)
			return result
		}
		result.Applied++
	}
	return result
}

// IsAlreadyApplied reports whether err means the statement's effect is already
// present in the schema.
func IsAlreadyApplied(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate column")
}

// SplitStatements breaks a SQL script into statements on semicolons outside of
// quotes and comments. Comment-only fragments are dropped.
func SplitStatements(script string) []string {
	var (
		statements []string
		current    strings.Builder
		inSingle   bool
		inDouble   bool
		hasCode    bool
	)

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" && hasCode {
			statements = append(statements, stmt)
		}
		current.Reset()
		hasCode = false
	}

	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]

		if !inSingle && !inDouble && ch == '-' && i+1 < len(runes) && runes[i+1] == '-' {
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			current.WriteRune('\n')
			continue
		}

		switch {
		case ch == '\'' && !inDouble:
			inSingle = !inSingle
		case ch == '"' && !inSingle:
			inDouble = !inDouble
		case ch == ';' && !inSingle && !inDouble:
			flush()
			continue
		}

		if !isSpace(ch) {
			hasCode = true
		}
		current.WriteRune(ch)
	}
	flush()

	return statements
}

func isSpace(ch rune) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

// ExportSchema writes the CREATE statements of a sqlite database, tables
// first, so the output can seed a fresh test database.
func ExportSchema(ctx context.Context, db *gorm.DB, w io.Writer) error {
	if db == nil {
		return errors.New("database handle is nil")
	}
	if name := db.Dialector.Name(); name != "sqlite" {
		return fmt.Errorf("schema export is only supported for sqlite, got %s", name)
	}

	var rows []struct {
		Type string
		Name string
		SQL  string `gorm:"column:sql"`
	}
	err := db.WithContext(ctx).Raw(`
		SELECT type, name, sql FROM sqlite_master
		WHERE sql IS NOT NULL AND name NOT LIKE 'sqlite_%'
		ORDER BY CASE type WHEN 'table' THEN 0 WHEN 'index' THEN 1 ELSE 2 END, name
	`).Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("read sqlite_master: %w", err)
	}

	if _, err := io.WriteString(w, "-- HIBO COCINA schema export\n\n"); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(w, "%s;\n\n", strings.TrimSpace(row.SQL)); err != nil {
			return err
		}
	}
	return nil
}
