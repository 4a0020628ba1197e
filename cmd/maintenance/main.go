package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"gorm.io/gorm"

	"hibococina/internal/allergens"
	"hibococina/internal/config"
	"hibococina/internal/costing"
	"hibococina/internal/db"
	"hibococina/internal/handlers"
	"hibococina/internal/inventory"
	"hibococina/internal/migrate"
)

const usage = `usage: maintenance <command> [flags]

commands:
  migrate         apply the schema and the SQL migration files
  recalculate     recompute cost and allergens of every dish
  integrity       list broken recipe lines and orphan inventory
  purge-orphans   delete inventory entries whose ingredient is gone
  export-schema   write the sqlite schema (-o file, default stdout)
  create-user     add a back-office user (-email, -name, -password)
`

var errUsage = errors.New("invalid usage")

var loadDatabaseConfig = func() (config.DatabaseConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.DatabaseConfig{}, fmt.Errorf("load config: %w", err)
	}
	return cfg.Database, nil
}

// openDatabase connects to the configured database and brings it to the
// current schema.
var openDatabase = func(ctx context.Context) (*gorm.DB, error) {
	cfg, err := loadDatabaseConfig()
	if err != nil {
		return nil, err
	}
	return db.Configure(cfg)
}

// connectDatabase opens the database without touching its schema.
var connectDatabase = db.Initialize

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	command, rest := args[0], args[1:]
	var err error
	switch command {
	case "migrate":
		err = migrateCommand(ctx, stdout)
	case "recalculate":
		err = withDatabase(ctx, func(database *gorm.DB) error {
			count, err := costing.NewCalculator(database).RecalculateAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "recalculated %d dishes\n", count)
			return nil
		})
	case "integrity":
		err = withDatabase(ctx, func(database *gorm.DB) error {
			return integrityCommand(ctx, database, stdout)
		})
	case "purge-orphans":
		err = withDatabase(ctx, func(database *gorm.DB) error {
			removed, err := inventory.PurgeOrphans(ctx, database)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "removed %d orphan inventory entries\n", removed)
			return nil
		})
	case "export-schema":
		err = exportSchemaCommand(ctx, rest, stdout, stderr)
	case "create-user":
		err = createUserCommand(ctx, rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return 2
	}

	if err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintf(stderr, "%s failed: %v\n", command, err)
		return 1
	}
	return 0
}

func withDatabase(ctx context.Context, fn func(*gorm.DB) error) error {
	database, err := openDatabase(ctx)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.Close()
		}
	}()
	return fn(database)
}

func migrateCommand(ctx context.Context, stdout io.Writer) error {
	cfg, err := loadDatabaseConfig()
	if err != nil {
		return err
	}
	database, err := connectDatabase(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	report, err := db.Migrate(ctx, database, cfg.MigrationsDir)
	if err != nil {
		return err
	}
	for _, file := range report.Files {
		status := "ok"
		if file.Err != nil {
			status = "FAILED: " + file.Err.Error()
		}
		fmt.Fprintf(stdout, "%-40s applied=%d warnings=%d %s\n", file.Name, file.Applied, len(file.Warnings), status)
	}
	if err := allergens.Seed(ctx, database); err != nil {
		return fmt.Errorf("seed allergens: %w", err)
	}
	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d migration files failed", len(failed))
	}
	return nil
}

func integrityCommand(ctx context.Context, database *gorm.DB, stdout io.Writer) error {
	issues, err := costing.NewCalculator(database).Integrity(ctx)
	if err != nil {
		return err
	}
	orphans, err := inventory.Orphans(ctx, database)
	if err != nil {
		return err
	}

	for _, issue := range issues {
		fmt.Fprintf(stdout, "recipe line %d of dish %d: %s %s\n", issue.LineID, issue.DishID, issue.Kind, issue.Detail)
	}
	for _, entry := range orphans {
		ref := "none"
		if entry.IngredientID != nil {
			ref = fmt.Sprint(*entry.IngredientID)
		}
		fmt.Fprintf(stdout, "inventory entry %d: missing ingredient %s\n", entry.ID, ref)
	}
	fmt.Fprintf(stdout, "%d recipe issues, %d orphan inventory entries\n", len(issues), len(orphans))
	return nil
}

func exportSchemaCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("export-schema", flag.ContinueOnError)
	fs.SetOutput(stderr)
	output := fs.String("o", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withDatabase(ctx, func(database *gorm.DB) error {
		if strings.TrimSpace(*output) == "" {
			return migrate.ExportSchema(ctx, database, stdout)
		}
		file, err := os.Create(*output)
		if err != nil {
			return err
		}
		if err := migrate.ExportSchema(ctx, database, file); err != nil {
			file.Close()
			return err
		}
		if err := file.Close(); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "schema written to %s\n", *output)
		return nil
	})
}

func createUserCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(stderr)
	email := fs.String("email", "", "login email")
	name := fs.String("name", "", "display name")
	password := fs.String("password", "", "initial password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*email) == "" || *password == "" {
		fmt.Fprintln(stderr, "create-user requires -email and -password")
		return errUsage
	}

	return withDatabase(ctx, func(database *gorm.DB) error {
		user, err := handlers.CreateUser(database.WithContext(ctx), *email, *name, *password)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "created user %d (%s)\n", user.ID, user.Email)
		return nil
	})
}
