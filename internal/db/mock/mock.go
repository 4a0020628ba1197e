package mock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"hibococina/internal/costing"
	dbpkg "hibococina/internal/db"
	applog "hibococina/internal/log"
	"hibococina/models"
)

const (
	AdminEmail    = "admin@hibo.local"
	AdminPassword = "cocina"
)

// New returns an in-memory sqlite database seeded with a small working kitchen.
// Every call gets its own database.
func New(ctx context.Context) (*gorm.DB, error) {
	applog.Debug(ctx, "initialising mock database")

	dsn := fmt.Sprintf("file:hibo-mock-%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), dbpkg.GormConfig(logger.Silent))
	if err != nil {
		return nil, err
	}

	if err := dbpkg.Prepare(ctx, db, ""); err != nil {
		return nil, err
	}

	if err := seed(ctx, db); err != nil {
		return nil, err
	}

	count, err := costing.NewCalculator(db).RecalculateAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("recalculate mock dishes: %w", err)
	}

	applog.Debug(ctx, "mock database ready", "dishes", count)
	return db, nil
}

func ptr[T any](v T) *T { return &v }

func seed(ctx context.Context, db *gorm.DB) error {
	applog.Debug(ctx, "seeding mock database")
	tx := db.WithContext(ctx)

	password, err := bcrypt.GenerateFromPassword([]byte(AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := tx.Create(&models.User{Name: "Administración", Email: AdminEmail, PasswordHash: string(password)}).Error; err != nil {
		return err
	}

	picante := models.CustomAllergen{Name: "Picante", Description: "Guindilla y pimentón picante", Keywords: []string{"guindilla", "cayena", "picante"}}
	if err := tx.Create(&picante).Error; err != nil {
		return err
	}

	harina := models.Ingredient{Code: "ING-001", Name: "Harina de trigo", CostPerKilo: ptr(0.9), Unit: "kg", Family: "secos", Supplier: "Harinera Alavesa"}
	harina.Allergens.Gluten = true
	huevo := models.Ingredient{Code: "ING-002", Name: "Huevo campero", CostPerKilo: ptr(3.8), NetWeight: ptr(0.06), Unit: "ud", Family: "huevos", Supplier: "Granja Gorbea"}
	huevo.Allergens.Huevos = true
	aceite := models.Ingredient{Code: "ING-003", Name: "Aceite de oliva virgen extra", CostPerKilo: ptr(7.5), Unit: "l", Family: "aceites", Supplier: "Almazara Sur"}
	ajo := models.Ingredient{Code: "ING-004", Name: "Ajo", CostPerKilo: ptr(4.2), Unit: "kg", Family: "verduras", Supplier: "Frutas Zadorra"}
	patata := models.Ingredient{Code: "ING-005", Name: "Patata agria", CostPerKilo: ptr(0.85), Unit: "kg", Family: "verduras", Supplier: "Frutas Zadorra"}
	bacalao := models.Ingredient{Code: "ING-006", Name: "Bacalao desalado", CostPerKilo: ptr(16.5), Unit: "kg", Family: "pescados", Supplier: "Pescados Bermeo"}
	bacalao.Allergens.Pescado = true
	leche := models.Ingredient{Code: "ING-007", Name: "Leche entera", CostPerKilo: ptr(0.95), Unit: "l", Family: "lacteos", Supplier: "Lácteos Norte"}
	leche.Allergens.Lacteos = true
	guindilla := models.Ingredient{Code: "ING-008", Name: "Guindilla de Ibarra", CostPerKilo: ptr(22.0), Unit: "kg", Family: "verduras", Supplier: "Frutas Zadorra"}
	guindilla.CustomAllergens = []models.CustomAllergen{picante}

	ingredients := []*models.Ingredient{&harina, &huevo, &aceite, &ajo, &patata, &bacalao, &leche, &guindilla}
	for _, ingredient := range ingredients {
		if err := tx.Create(ingredient).Error; err != nil {
			return err
		}
	}

	alioli := models.Dish{Code: "ELB-001", Name: "Alioli", Category: "elaboraciones", PortionsWeight: 0.6}
	bechamel := models.Dish{Code: "ELB-002", Name: "Bechamel", Category: "elaboraciones", PortionsWeight: 1.1}
	patatas := models.Dish{Code: "PLT-001", Name: "Patatas alioli", Category: "entrantes", SalePrice: ptr(6.5), PortionsWeight: 1.2}
	croquetas := models.Dish{Code: "PLT-002", Name: "Croquetas de bacalao", Category: "entrantes", SalePrice: ptr(9.0), PortionsWeight: 1.0}
	bacalaoPilpil := models.Dish{Code: "PLT-003", Name: "Bacalao al pil pil con alioli", Category: "principales", SalePrice: ptr(19.5), PortionsWeight: 0.8}

	dishes := []*models.Dish{&alioli, &bechamel, &patatas, &croquetas, &bacalaoPilpil}
	for _, dish := range dishes {
		if err := tx.Omit("CustomAllergens", "RecipeLines").Create(dish).Error; err != nil {
			return err
		}
	}

	lines := []models.RecipeLine{
		{DishID: alioli.ID, IngredientID: &aceite.ID, Quantity: 500, Unit: "ml", Position: 1},
		{DishID: alioli.ID, IngredientID: &huevo.ID, Quantity: 2, Unit: "ud", Position: 2},
		{DishID: alioli.ID, IngredientID: &ajo.ID, Quantity: 40, Unit: "g", Position: 3},
		{DishID: bechamel.ID, IngredientID: &leche.ID, Quantity: 1, Unit: "l", Position: 1},
		{DishID: bechamel.ID, IngredientID: &harina.ID, Quantity: 90, Unit: "g", Position: 2},
		{DishID: patatas.ID, IngredientID: &patata.ID, Quantity: 1, Unit: "kg", Position: 1},
		{DishID: patatas.ID, SubDishID: &alioli.ID, Quantity: 200, Unit: "g", Position: 2},
		{DishID: croquetas.ID, SubDishID: &bechamel.ID, Quantity: 700, Unit: "g", Position: 1},
		{DishID: croquetas.ID, IngredientID: &bacalao.ID, Quantity: 250, Unit: "g", Position: 2},
		{DishID: croquetas.ID, IngredientID: &huevo.ID, Quantity: 2, Unit: "uds", Position: 3},
		{DishID: bacalaoPilpil.ID, IngredientID: &bacalao.ID, Quantity: 600, Unit: "g", Position: 1},
		{DishID: bacalaoPilpil.ID, IngredientID: &aceite.ID, Quantity: 2, Unit: "dl", Position: 2},
		{DishID: bacalaoPilpil.ID, IngredientID: &guindilla.ID, Quantity: 10, Unit: "g", Position: 3},
		{DishID: bacalaoPilpil.ID, SubDishID: &alioli.ID, Quantity: 100, Unit: "g", Position: 4},
	}
	if err := tx.Omit("Ingredient", "SubDish").Create(&lines).Error; err != nil {
		return err
	}

	now := time.Now().UTC()
	expiry := now.AddDate(0, 0, 5)
	stock := []models.InventoryEntry{
		{IngredientID: &patata.ID, Quantity: 25, Unit: "kg", Lot: "PAT-2410", RegisteredAt: now.AddDate(0, 0, -2), ExpiresAt: ptr(now.AddDate(0, 0, 20))},
		{IngredientID: &huevo.ID, Quantity: 180, Unit: "ud", Lot: "HUE-2410", RegisteredAt: now.AddDate(0, 0, -1), ExpiresAt: &expiry},
		{IngredientID: &bacalao.ID, Quantity: 4500, Unit: "g", Lot: "BAC-2410", RegisteredAt: now, ExpiresAt: ptr(now.AddDate(0, 0, 3))},
		{IngredientID: &aceite.ID, Quantity: 10, Unit: "l", Lot: "ACE-2409", RegisteredAt: now.AddDate(0, 0, -10)},
		// Left behind by an ingredient deleted before references were checked.
		{IngredientID: ptr(uint(9999)), Quantity: 2, Unit: "kg", Lot: "OLD-0001", RegisteredAt: now.AddDate(0, -2, 0)},
	}
	if err := tx.Omit("Ingredient").Create(&stock).Error; err != nil {
		return err
	}

	order := models.Order{
		Reference: "PED-MOCK-001",
		Supplier:  "Lácteos Norte",
		Status:    models.OrderSent,
		OrderedAt: now.AddDate(0, 0, -1),
		Lines: []models.OrderLine{
			{IngredientID: leche.ID, Quantity: 24, Unit: "l", UnitPrice: 0.95},
		},
	}
	if err := tx.Create(&order).Error; err != nil {
		return err
	}

	records := []models.SanitationRecord{
		{RecordedAt: now.Add(-3 * time.Hour), Kind: models.SanitationTemperature, Zone: "Cámara de refrigeración", Value: ptr(3.5), Responsible: "Ane", Compliant: true},
		{RecordedAt: now.Add(-2 * time.Hour), Kind: models.SanitationCleaning, Zone: "Obrador", Description: "Limpieza de fin de servicio", Responsible: "Iker", Compliant: true},
	}
	if err := tx.Create(&records).Error; err != nil {
		return err
	}

	batch := models.ProductionBatch{DishID: bechamel.ID, Quantity: 3, Lot: "LOT-MOCK0001", ProducedAt: now.Add(-time.Hour), ExpiresAt: &expiry, Responsible: "Ane"}
	if err := tx.Omit("Dish").Create(&batch).Error; err != nil {
		return err
	}

	return nil
}
