package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hibococina/internal/allergens"
	"hibococina/internal/config"
	applog "hibococina/internal/log"
	"hibococina/internal/migrate"
	"hibococina/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var DB *gorm.DB

// Models lists every persisted model, in creation order.
func Models() []any {
	return []any{
		&models.AllergenDefinition{},
		&models.CustomAllergen{},
		&models.Ingredient{},
		&models.Dish{},
		&models.RecipeLine{},
		&models.InventoryEntry{},
		&models.Order{},
		&models.OrderLine{},
		&models.SanitationRecord{},
		&models.ProductionBatch{},
		&models.User{},
	}
}

// GormConfig returns the gorm settings shared by the real and mock databases.
func GormConfig(level logger.LogLevel) *gorm.Config {
	return &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(level),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: false,
		},
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
	}
}

func isPostgresURL(url string) bool {
	lower := strings.ToLower(strings.TrimSpace(url))
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}

func dialectorFor(url string) gorm.Dialector {
	if isPostgresURL(url) {
		return postgres.Open(url)
	}
	return sqlite.Open(sqliteDSN(url))
}

func sqliteDSN(url string) string {
	if strings.Contains(url, "?") || strings.Contains(url, ":memory:") {
		return url
	}
	return url + "?_busy_timeout=5000"
}

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("database URL must not be empty")
	}

	db, err := gorm.Open(dialectorFor(cfg.URL), GormConfig(logger.Warn))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}

	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database handle is nil")
	}

	return db.AutoMigrate(Models()...)
}

// Migrate runs gorm automigration followed by the embedded SQL migrations and,
// when migrationsDir is set, the files in that directory. Files from the
// directory are reported under their path. A failed file does not stop the
// run; callers inspect the returned report.
func Migrate(ctx context.Context, db *gorm.DB, migrationsDir string) (migrate.Report, error) {
	if err := AutoMigrate(db); err != nil {
		return migrate.Report{}, fmt.Errorf("auto migrate: %w", err)
	}

	report := migrate.New(db, migrate.Embedded()).Run(ctx)

	if dir := strings.TrimSpace(migrationsDir); dir != "" {
		extra := migrate.New(db, os.DirFS(dir)).Run(ctx)
		for _, file := range extra.Files {
			file.Name = filepath.Join(dir, file.Name)
			report.Files = append(report.Files, file)
		}
	}
	return report, nil
}

// Prepare brings a freshly opened database to the current schema: gorm
// automigration, the SQL migration files, and the official allergen catalogue.
// Migration files that fail are logged and do not stop startup.
func Prepare(ctx context.Context, db *gorm.DB, migrationsDir string) error {
	report, err := Migrate(ctx, db, migrationsDir)
	if err != nil {
		return err
	}
	logReport(ctx, report)

	if err := allergens.Seed(ctx, db); err != nil {
		return fmt.Errorf("seed allergens: %w", err)
	}
	return nil
}

func logReport(ctx context.Context, report migrate.Report) {
	for _, file := range report.Files {
		for _, warning := range file.Warnings {
			applog.Warn(ctx, "migration statement already applied", "file", file.Name, "warning", warning)
		}
		if file.Err != nil {
			applog.Error(ctx, "migration file failed", "file", file.Name, "error", file.Err)
			continue
		}
		applog.Debug(ctx, "migration file applied", "file", file.Name, "statements", file.Applied)
	}
}

func Configure(cfg config.DatabaseConfig) (*gorm.DB, error) {
	database, err := Initialize(cfg)
	if err != nil {
		return nil, err
	}

	if err := Prepare(context.Background(), database, cfg.MigrationsDir); err != nil {
		return nil, err
	}

	DB = database

	return database, nil
}

func MustConfigure(cfg config.DatabaseConfig) *gorm.DB {
	database, err := Configure(cfg)
	if err != nil {
		panic(err)
	}

	return database
}

func Get() *gorm.DB {
	return DB
}
