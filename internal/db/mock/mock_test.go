package mock

import (
	"context"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"hibococina/internal/inventory"
	"hibococina/models"
)

func TestNewSeedsExpectedRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := New(ctx)
	if err != nil {
		t.Fatalf("mock database initialization failed: %v", err)
	}

	var dishes []models.Dish
	if err := db.WithContext(ctx).Order("codigo").Find(&dishes).Error; err != nil {
		t.Fatalf("query dishes: %v", err)
	}
	if len(dishes) != 5 {
		t.Fatalf("expected 5 seeded dishes, got %d", len(dishes))
	}
	for _, dish := range dishes {
		if dish.CostsComputedAt == nil || dish.RecipeCost <= 0 {
			t.Fatalf("expected %s to be costed, got %+v", dish.Name, dish)
		}
	}

	var patatas models.Dish
	if err := db.WithContext(ctx).First(&patatas, "codigo = ?", "PLT-001").Error; err != nil {
		t.Fatalf("query dish: %v", err)
	}
	if !patatas.Allergens.Huevos {
		t.Fatal("expected egg allergen to propagate from the alioli sub-dish")
	}

	var guindilla models.Ingredient
	if err := db.WithContext(ctx).First(&guindilla, "codigo = ?", "ING-008").Error; err != nil {
		t.Fatalf("query ingredient: %v", err)
	}
	if guindilla.CostPerKilo == nil || *guindilla.CostPerKilo != 22 {
		t.Fatalf("expected guindilla at 22 per kilo, got %v", guindilla.CostPerKilo)
	}

	classification, err := inventory.Classify(ctx, db)
	if err != nil {
		t.Fatalf("classify inventory: %v", err)
	}
	if len(classification.Orphans) != 1 || len(classification.Valid) != 4 {
		t.Fatalf("expected 4 valid entries and 1 orphan, got %d/%d", len(classification.Valid), len(classification.Orphans))
	}

	var user models.User
	if err := db.WithContext(ctx).First(&user, "email = ?", AdminEmail).Error; err != nil {
		t.Fatalf("query user: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(AdminPassword)); err != nil {
		t.Fatalf("unexpected password hash: %v", err)
	}
}

func TestNewReturnsIndependentDatabases(t *testing.T) {
	t.Parallel()

	first, err := New(context.Background())
	if err != nil {
		t.Fatalf("first mock database: %v", err)
	}
	second, err := New(context.Background())
	if err != nil {
		t.Fatalf("second mock database: %v", err)
	}

	if err := first.Exec("DELETE FROM escandallos").Error; err != nil {
		t.Fatalf("clear recipe lines: %v", err)
	}
	var count int64
	if err := second.Model(&models.RecipeLine{}).Count(&count).Error; err != nil {
		t.Fatalf("count recipe lines: %v", err)
	}
	if count == 0 {
		t.Fatal("expected the second database to keep its recipe lines")
	}
}
