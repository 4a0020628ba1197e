package allergens

import (
	"context"
	"errors"
	"reflect"
	"testing"

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
	if err := db.AutoMigrate(&models.AllergenDefinition{}, &models.CustomAllergen{}, &models.Ingredient{}, &models.Dish{}, &models.RecipeLine{}); err != nil {
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

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Sésamo":           "sesamo",
		"  PIÑÓN tostado ": "pinon tostado",
		"Atún":             "atun",
		"":                 "",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetectMatchesWholeWordsAndPhrases(t *testing.T) {
	t.Parallel()

	custom := []models.CustomAllergen{{ID: 7, Name: "Cerdo", Keywords: keywords("cerdo", "panceta")}}
	proposals := Detect("Salsa de Mostaza con panceta y huevos", Official, custom)

	var codes []string
	var customIDs []uint
	for _, p := range proposals {
		if p.Code != "" {
			codes = append(codes, p.Code)
		} else {
			customIDs = append(customIDs, p.CustomID)
		}
	}

	if !reflect.DeepEqual(codes, []string{models.AllergenEggs, models.AllergenMustard}) {
		t.Fatalf("unexpected official proposals %v", codes)
	}
	if !reflect.DeepEqual(customIDs, []uint{7}) {
		t.Fatalf("unexpected custom proposals %v", customIDs)
	}

	// "panceta" must not match "pan" from the gluten keywords.
	for _, p := range proposals {
		if p.Code == models.AllergenGluten {
			t.Fatalf("gluten must not be proposed from a partial word, got %+v", p)
		}
	}

	if got := Detect("frutos secos variados", Official, nil); len(got) != 1 || got[0].Code != models.AllergenTreeNuts {
		t.Fatalf("expected multi-word keyword to match, got %+v", got)
	}
	if got := Detect("   ", Official, nil); got != nil {
		t.Fatalf("expected no proposals for blank text, got %+v", got)
	}
}

func TestSuggestSkipsExistingFlags(t *testing.T) {
	t.Parallel()

	ingredient := models.Ingredient{
		Name:            "Harina de trigo con sésamo",
		CustomAllergens: []models.CustomAllergen{{ID: 3}},
	}
	ingredient.Allergens.Set(models.AllergenGluten, true)
	custom := []models.CustomAllergen{{ID: 3, Name: "Trazas", Keywords: keywords("trigo")}}

	got := Suggest(ingredient, Official, custom)
	if len(got) != 1 || got[0].Code != models.AllergenSesame {
		t.Fatalf("expected only sesame to be suggested, got %+v", got)
	}
	if ingredient.Allergens.Has(models.AllergenSesame) {
		t.Fatal("Suggest must not modify the ingredient")
	}
}

func TestSeedKeepsEditedKeywords(t *testing.T) {
	db := newTestDatabase(t, "allergens_seed")
	ctx := context.Background()

	if err := Seed(ctx, db); err != nil {
		t.Fatalf("Seed error = %v", err)
	}
	if err := db.Model(&models.AllergenDefinition{}).Where("codigo = ?", models.AllergenCelery).
		Update("palabras_clave", keywords("apio", "apionabo")).Error; err != nil {
		t.Fatalf("update keywords: %v", err)
	}
	if err := Seed(ctx, db); err != nil {
		t.Fatalf("second Seed error = %v", err)
	}

	defs, err := Definitions(ctx, db)
	if err != nil {
		t.Fatalf("Definitions error = %v", err)
	}
	if len(defs) != 14 {
		t.Fatalf("expected 14 definitions, got %d", len(defs))
	}
	if defs[0].Code != models.AllergenGluten || defs[13].Code != models.AllergenMolluscs {
		t.Fatalf("expected catalogue order, got %s..%s", defs[0].Code, defs[13].Code)
	}
	for _, def := range defs {
		if def.Code == models.AllergenCelery && len(def.Keywords) != 2 {
			t.Fatalf("expected edited keywords to survive, got %v", def.Keywords)
		}
	}
}

func TestSeedRequiresDatabase(t *testing.T) {
	t.Parallel()

	if err := Seed(context.Background(), nil); err == nil {
		t.Fatal("expected error without database")
	}
}

func TestResolveIsTransitive(t *testing.T) {
	db := newTestDatabase(t, "allergens_resolve")
	ctx := context.Background()

	mustard := models.CustomAllergen{Name: "Picante"}
	if err := db.Create(&mustard).Error; err != nil {
		t.Fatalf("create custom allergen: %v", err)
	}

	flour := models.Ingredient{Code: "HAR", Name: "Harina"}
	flour.Allergens.Set(models.AllergenGluten, true)
	milk := models.Ingredient{Code: "LEC", Name: "Leche", CustomAllergens: []models.CustomAllergen{mustard}}
	milk.Allergens.Set(models.AllergenDairy, true)
	for _, ing := range []*models.Ingredient{&flour, &milk} {
		if err := db.Create(ing).Error; err != nil {
			t.Fatalf("create ingredient: %v", err)
		}
	}

	bechamel := models.Dish{Code: "BEC", Name: "Bechamel", PortionsWeight: 1}
	croquetas := models.Dish{Code: "CRO", Name: "Croquetas", PortionsWeight: 1}
	for _, dish := range []*models.Dish{&bechamel, &croquetas} {
		if err := db.Create(dish).Error; err != nil {
			t.Fatalf("create dish: %v", err)
		}
	}

	lines := []models.RecipeLine{
		{DishID: bechamel.ID, Quantity: 1, Unit: "kg", IngredientID: ptr(flour.ID)},
		{DishID: bechamel.ID, Quantity: 1, Unit: "l", IngredientID: ptr(milk.ID)},
		{DishID: croquetas.ID, Quantity: 1, Unit: "kg", SubDishID: ptr(bechamel.ID)},
		// dangling reference is skipped
		{DishID: croquetas.ID, Quantity: 1, Unit: "kg", IngredientID: ptr(uint(999))},
		// cycle back to the root terminates
		{DishID: bechamel.ID, Quantity: 1, Unit: "kg", SubDishID: ptr(croquetas.ID)},
	}
	if err := db.Create(&lines).Error; err != nil {
		t.Fatalf("create lines: %v", err)
	}

	res, err := Resolve(ctx, db, croquetas.ID)
	if err != nil {
		t.Fatalf("Resolve error = %v", err)
	}
	if !reflect.DeepEqual(res.Official(), []string{models.AllergenGluten, models.AllergenDairy}) {
		t.Fatalf("unexpected official allergens %v", res.Official())
	}
	if len(res.Custom) != 1 || res.Custom[0].ID != mustard.ID {
		t.Fatalf("expected custom allergen from nested ingredient, got %+v", res.Custom)
	}
	if !reflect.DeepEqual(res.Sources[models.AllergenGluten], []string{"Bechamel"}) {
		t.Fatalf("expected gluten to be sourced from the sub-dish, got %v", res.Sources)
	}
}

func TestResolveUnknownDish(t *testing.T) {
	db := newTestDatabase(t, "allergens_missing")

	_, err := Resolve(context.Background(), db, 42)
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
}

func TestApplyReplacesDishFlags(t *testing.T) {
	t.Parallel()

	var dish models.Dish
	dish.Allergens.Sulfitos = true

	var res Resolution
	res.Flags.Gluten = true
	res.Flags.Huevos = true

	cols := Apply(&dish, res)
	if !reflect.DeepEqual(dish.Allergens.Codes(), []string{models.AllergenGluten, models.AllergenEggs}) {
		t.Fatalf("unexpected dish flags %v", dish.Allergens.Codes())
	}
	if cols["alergeno_gluten"] != true || cols["alergeno_huevos"] != true || cols["alergeno_sulfitos"] != false {
		t.Fatalf("unexpected columns %v", cols)
	}
	if len(cols) != 14 {
		t.Fatalf("expected a column per official allergen, got %d", len(cols))
	}
}
