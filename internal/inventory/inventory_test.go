package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"hibococina/models"
)

func newTestDatabase(t *testing.T, name string) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	if err := db.AutoMigrate(&models.CustomAllergen{}, &models.Ingredient{}, &models.InventoryEntry{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func ptr[T any](v T) *T { return &v }

type fixture struct {
	tomato models.Ingredient
	eggs   models.Ingredient
}

func seed(t *testing.T, db *gorm.DB) fixture {
	t.Helper()

	f := fixture{
		tomato: models.Ingredient{Code: "TOM", Name: "Tomate", CostPerKilo: ptr(2.0), Unit: "kg"},
		eggs:   models.Ingredient{Code: "HUE", Name: "Huevo", CostPerKilo: ptr(4.0), NetWeight: ptr(0.06), Unit: "ud"},
	}
	for _, ing := range []*models.Ingredient{&f.tomato, &f.eggs} {
		if err := db.Create(ing).Error; err != nil {
			t.Fatalf("create ingredient: %v", err)
		}
	}

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	entries := []models.InventoryEntry{
		{IngredientID: ptr(f.tomato.ID), Quantity: 5, Unit: "kg", Lot: "T-1", RegisteredAt: base, ExpiresAt: ptr(base.AddDate(0, 0, 5))},
		{IngredientID: ptr(f.tomato.ID), Quantity: 500, Unit: "g", Lot: "T-2", RegisteredAt: base.Add(time.Hour), ExpiresAt: ptr(base.AddDate(0, 0, 2))},
		{IngredientID: ptr(f.eggs.ID), Quantity: 30, Unit: "ud", Lot: "H-1", RegisteredAt: base.Add(2 * time.Hour)},
		{IngredientID: nil, Quantity: 1, Unit: "kg", Lot: "X-1", RegisteredAt: base},
		{IngredientID: ptr(uint(999)), Quantity: 2, Unit: "kg", Lot: "X-2", RegisteredAt: base},
	}
	if err := db.Omit("Ingredient").Create(&entries).Error; err != nil {
		t.Fatalf("create entries: %v", err)
	}
	return f
}

func TestClassifySeparatesOrphans(t *testing.T) {
	db := newTestDatabase(t, "inventory_classify")
	seed(t, db)

	classes, err := Classify(context.Background(), db)
	if err != nil {
		t.Fatalf("Classify error = %v", err)
	}
	if len(classes.Valid) != 3 {
		t.Fatalf("expected 3 valid entries, got %d", len(classes.Valid))
	}
	if len(classes.Orphans) != 2 {
		t.Fatalf("expected 2 orphans, got %d", len(classes.Orphans))
	}
	if classes.Valid[0].Lot != "H-1" {
		t.Fatalf("expected newest entry first, got %s", classes.Valid[0].Lot)
	}
	for _, entry := range classes.Valid {
		if entry.Ingredient == nil {
			t.Fatalf("expected ingredient to be preloaded for entry %d", entry.ID)
		}
	}
}

func TestValidFilters(t *testing.T) {
	db := newTestDatabase(t, "inventory_filters")
	f := seed(t, db)
	ctx := context.Background()

	byIngredient, err := Valid(ctx, db, Filter{IngredientID: f.tomato.ID})
	if err != nil || len(byIngredient) != 2 {
		t.Fatalf("expected 2 tomato entries, got %d (%v)", len(byIngredient), err)
	}

	byName, err := Valid(ctx, db, Filter{Query: "HUEV"})
	if err != nil || len(byName) != 1 {
		t.Fatalf("expected 1 entry matching name, got %d (%v)", len(byName), err)
	}

	cutoff := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	expiring, err := Valid(ctx, db, Filter{ExpiringBefore: &cutoff})
	if err != nil || len(expiring) != 1 || expiring[0].Lot != "T-2" {
		t.Fatalf("expected only T-2 to expire before cutoff, got %+v (%v)", expiring, err)
	}
}

func TestPurgeOrphans(t *testing.T) {
	db := newTestDatabase(t, "inventory_purge")
	seed(t, db)
	ctx := context.Background()

	removed, err := PurgeOrphans(ctx, db)
	if err != nil {
		t.Fatalf("PurgeOrphans error = %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 orphans removed, got %d", removed)
	}

	orphans, err := Orphans(ctx, db)
	if err != nil || len(orphans) != 0 {
		t.Fatalf("expected no orphans left, got %d (%v)", len(orphans), err)
	}

	var count int64
	db.Model(&models.InventoryEntry{}).Count(&count)
	if count != 3 {
		t.Fatalf("expected valid entries to survive, got %d", count)
	}
}

func TestSummaryValuesValidStock(t *testing.T) {
	db := newTestDatabase(t, "inventory_summary")
	seed(t, db)

	stock, err := Summary(context.Background(), db)
	if err != nil {
		t.Fatalf("Summary error = %v", err)
	}
	if stock.Orphans != 2 {
		t.Fatalf("expected 2 orphans counted, got %d", stock.Orphans)
	}
	if len(stock.Lines) != 2 {
		t.Fatalf("expected 2 stock lines, got %d", len(stock.Lines))
	}

	eggs, tomato := stock.Lines[0], stock.Lines[1]
	if eggs.Name != "Huevo" || tomato.Name != "Tomate" {
		t.Fatalf("expected lines sorted by name, got %s, %s", eggs.Name, tomato.Name)
	}
	if !tomato.Kilograms.Equal(decimal.NewFromFloat(5.5)) || !tomato.Value.Equal(decimal.NewFromInt(11)) {
		t.Fatalf("unexpected tomato stock %s kg / %s", tomato.Kilograms, tomato.Value)
	}
	if !eggs.Kilograms.Equal(decimal.NewFromFloat(1.8)) {
		t.Fatalf("expected 30 eggs to weigh 1.8 kg, got %s", eggs.Kilograms)
	}
	if tomato.NextExpiry == nil || tomato.NextExpiry.Day() != 3 {
		t.Fatalf("expected earliest expiry on the 3rd, got %v", tomato.NextExpiry)
	}
	if !stock.Total.Equal(decimal.NewFromFloat(18.2)) {
		t.Fatalf("expected total value 18.2, got %s", stock.Total)
	}
}

func TestRegister(t *testing.T) {
	db := newTestDatabase(t, "inventory_register")
	f := seed(t, db)
	ctx := context.Background()

	entry := models.InventoryEntry{IngredientID: ptr(f.eggs.ID), Quantity: 12, Lot: " H-2 "}
	if err := Register(ctx, db, &entry); err != nil {
		t.Fatalf("Register error = %v", err)
	}
	if entry.ID == 0 || entry.Unit != "ud" || entry.Lot != "H-2" || entry.RegisteredAt.IsZero() {
		t.Fatalf("expected defaults to be applied, got %+v", entry)
	}

	tests := []struct {
		name  string
		entry models.InventoryEntry
		want  error
	}{
		{"missing ingredient", models.InventoryEntry{Quantity: 1}, ErrUnknownIngredient},
		{"unknown ingredient", models.InventoryEntry{IngredientID: ptr(uint(404)), Quantity: 1}, ErrUnknownIngredient},
		{"negative quantity", models.InventoryEntry{IngredientID: ptr(f.tomato.ID), Quantity: -1}, ErrInvalidEntry},
		{"unknown unit", models.InventoryEntry{IngredientID: ptr(f.tomato.ID), Quantity: 1, Unit: "caja"}, ErrInvalidEntry},
	}
	for _, tt := range tests {
		entry := tt.entry
		if err := Register(ctx, db, &entry); !errors.Is(err, tt.want) {
			t.Fatalf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
}
