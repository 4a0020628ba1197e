package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"hibococina/internal/allergens"
	"hibococina/internal/costing"
	applog "hibococina/internal/log"
	"hibococina/models"
)

type dishResponse struct {
	ID              uint                `json:"id"`
	Code            string              `json:"codigo"`
	Name            string              `json:"nombre"`
	Category        string              `json:"categoria"`
	SalePrice       *float64            `json:"pvp"`
	RecipeCost      float64             `json:"coste_escandallo"`
	PortionCost     float64             `json:"coste_racion"`
	PortionsWeight  float64             `json:"peso_raciones"`
	CostPerKilo     float64             `json:"coste_kilo"`
	FoodCost        *float64            `json:"food_cost"`
	CostsComputedAt *time.Time          `json:"costes_calculados_en"`
	Allergens       []string            `json:"alergenos"`
	CustomAllergens []customAllergenRef `json:"alergenos_personalizados"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

type dishRequest struct {
	Code              string   `json:"codigo"`
	Name              string   `json:"nombre"`
	Category          string   `json:"categoria"`
	SalePrice         *float64 `json:"pvp"`
	PortionsWeight    float64  `json:"peso_raciones"`
	CustomAllergenIDs []uint   `json:"alergenos_personalizados"`
}

func (p dishRequest) validate() error {
	if strings.TrimSpace(p.Code) == "" {
		return errors.New("codigo is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("nombre is required")
	}
	if p.SalePrice != nil && *p.SalePrice < 0 {
		return errors.New("pvp must not be negative")
	}
	if p.PortionsWeight < 0 {
		return errors.New("peso_raciones must not be negative")
	}
	return nil
}

func (p dishRequest) apply(dish *models.Dish) {
	dish.Code = strings.TrimSpace(p.Code)
	dish.Name = strings.TrimSpace(p.Name)
	dish.Category = strings.TrimSpace(p.Category)
	dish.SalePrice = p.SalePrice
	dish.PortionsWeight = p.PortionsWeight
}

// foodCostPercent is the portion cost as a share of the sale price.
func foodCostPercent(dish models.Dish) *float64 {
	if dish.SalePrice == nil || *dish.SalePrice <= 0 {
		return nil
	}
	pct := dish.PortionCost / *dish.SalePrice * 100
	return &pct
}

func projectDish(dish models.Dish) dishResponse {
	return dishResponse{
		ID:              dish.ID,
		Code:            dish.Code,
		Name:            dish.Name,
		Category:        dish.Category,
		SalePrice:       dish.SalePrice,
		RecipeCost:      dish.RecipeCost,
		PortionCost:     dish.PortionCost,
		PortionsWeight:  dish.PortionsWeight,
		CostPerKilo:     dish.CostPerKilo(),
		FoodCost:        foodCostPercent(dish),
		CostsComputedAt: dish.CostsComputedAt,
		Allergens:       dish.Allergens.Codes(),
		CustomAllergens: projectCustomRefs(dish.CustomAllergens),
		CreatedAt:       dish.CreatedAt,
		UpdatedAt:       dish.UpdatedAt,
	}
}

func loadDish(ctx context.Context, db *gorm.DB, id uint) (models.Dish, error) {
	var dish models.Dish
	err := db.WithContext(ctx).Preload("CustomAllergens").First(&dish, id).Error
	return dish, err
}

// ListDishes returns dishes filtered by q and categoria.
func ListDishes(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	query := database.WithContext(ctx).Preload("CustomAllergens").Order("nombre asc")

	params := r.URL.Query()
	if q := strings.TrimSpace(params.Get("q")); q != "" {
		query = query.Where("LOWER(nombre) LIKE ? OR LOWER(codigo) LIKE ?", likePattern(q), likePattern(q))
	}
	if category := strings.TrimSpace(params.Get("categoria")); category != "" {
		query = query.Where("categoria = ?", category)
	}

	var results []models.Dish
	if err := query.Find(&results).Error; err != nil {
		applog.Error(ctx, "failed to list dishes", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load dishes")
		return
	}

	responses := make([]dishResponse, 0, len(results))
	for _, dish := range results {
		responses = append(responses, projectDish(dish))
	}
	writeJSON(w, http.StatusOK, responses)
}

// CreateDish stores a new dish with an empty recipe.
func CreateDish(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()

	var payload dishRequest
	if err := decodeJSON(r, &payload); err != nil {
		applog.Debug(ctx, "invalid dish payload", "error", err)
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := payload.validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if taken, err := countWhere(ctx, &models.Dish{}, "codigo = ?", strings.TrimSpace(payload.Code)); err != nil {
		applog.Error(ctx, "failed to check dish code", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to create dish")
		return
	} else if taken > 0 {
		writeJSONError(w, http.StatusConflict, "codigo already exists")
		return
	}

	var dish models.Dish
	payload.apply(&dish)

	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tags, err := loadCustomAllergens(ctx, tx, payload.CustomAllergenIDs)
		if err != nil {
			return err
		}
		if err := tx.Omit("CustomAllergens", "RecipeLines").Create(&dish).Error; err != nil {
			return err
		}
		if err := replaceCustomAllergens(tx, &dish, tags); err != nil {
			return err
		}
		_, err = costing.Refresh(ctx, tx, dish.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, errUnknownCustomAllergen) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		applog.Error(ctx, "failed to create dish", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to create dish")
		return
	}

	created, err := loadDish(ctx, database, dish.ID)
	if err != nil {
		writeLoadError(w, r, err, "dish", dish.ID)
		return
	}
	applog.Info(ctx, "dish created", "id", created.ID, "code", created.Code)
	writeJSON(w, http.StatusCreated, projectDish(created))
}

// ShowDish returns one dish with its cached cost and allergen snapshot.
func ShowDish(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	dish, err := loadDish(r.Context(), database, id)
	if err != nil {
		writeLoadError(w, r, err, "dish", id)
		return
	}
	writeJSON(w, http.StatusOK, projectDish(dish))
}

// UpdateDish replaces a dish's fields and recalculates it together with every
// dish that contains it.
func UpdateDish(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	dish, err := loadDish(ctx, database, id)
	if err != nil {
		writeLoadError(w, r, err, "dish", id)
		return
	}

	var payload dishRequest
	if err := decodeJSON(r, &payload); err != nil {
		applog.Debug(ctx, "invalid dish update payload", "error", err)
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := payload.validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if taken, err := countWhere(ctx, &models.Dish{}, "codigo = ? AND id <> ?", strings.TrimSpace(payload.Code), id); err != nil {
		applog.Error(ctx, "failed to check dish code", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to update dish")
		return
	} else if taken > 0 {
		writeJSONError(w, http.StatusConflict, "codigo already exists")
		return
	}

	updates := map[string]any{
		"codigo":        strings.TrimSpace(payload.Code),
		"nombre":        strings.TrimSpace(payload.Name),
		"categoria":     strings.TrimSpace(payload.Category),
		"pvp":           payload.SalePrice,
		"peso_raciones": payload.PortionsWeight,
	}

	err = database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tags, err := loadCustomAllergens(ctx, tx, payload.CustomAllergenIDs)
		if err != nil {
			return err
		}
		if err := tx.Model(&dish).Omit("CustomAllergens", "RecipeLines").Updates(updates).Error; err != nil {
			return err
		}
		if err := replaceCustomAllergens(tx, &dish, tags); err != nil {
			return err
		}
		_, err = costing.Refresh(ctx, tx, dish.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, errUnknownCustomAllergen) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		applog.Error(ctx, "failed to update dish", "error", err, "id", id)
		writeJSONError(w, http.StatusInternalServerError, "unable to update dish")
		return
	}

	updated, err := loadDish(ctx, database, id)
	if err != nil {
		writeLoadError(w, r, err, "dish", id)
		return
	}
	writeJSON(w, http.StatusOK, projectDish(updated))
}

// DeleteDish removes a dish and its recipe lines. Dishes used as a sub-dish
// or by a production batch cannot be deleted.
func DeleteDish(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	dish, err := loadDish(ctx, database, id)
	if err != nil {
		writeLoadError(w, r, err, "dish", id)
		return
	}

	if count, err := countWhere(ctx, &models.RecipeLine{}, "subplato_id = ?", id); err != nil {
		applog.Error(ctx, "failed to check dish references", "error", err, "id", id)
		writeJSONError(w, http.StatusInternalServerError, "unable to delete dish")
		return
	} else if count > 0 {
		writeJSONError(w, http.StatusConflict, fmt.Sprintf("dish is used as a sub-dish by %d recipe lines", count))
		return
	}
	if count, err := countWhere(ctx, &models.ProductionBatch{}, "plato_id = ?", id); err != nil {
		applog.Error(ctx, "failed to check dish production", "error", err, "id", id)
		writeJSONError(w, http.StatusInternalServerError, "unable to delete dish")
		return
	} else if count > 0 {
		writeJSONError(w, http.StatusConflict, fmt.Sprintf("dish has %d production batches", count))
		return
	}

	err = database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("plato_id = ?", id).Delete(&models.RecipeLine{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&dish).Association("CustomAllergens").Clear(); err != nil {
			return err
		}
		return tx.Delete(&dish).Error
	})
	if err != nil {
		applog.Error(ctx, "failed to delete dish", "error", err, "id", id)
		writeJSONError(w, http.StatusInternalServerError, "unable to delete dish")
		return
	}

	applog.Info(ctx, "dish deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

type recipeLineResponse struct {
	ID           uint              `json:"id"`
	Position     int               `json:"orden"`
	Kind         models.TargetKind `json:"tipo"`
	IngredientID *uint             `json:"ingrediente_id"`
	SubDishID    *uint             `json:"subplato_id"`
	Name         string            `json:"nombre"`
	Quantity     float64           `json:"cantidad"`
	Unit         string            `json:"unidad"`
}

type recipeLineRequest struct {
	IngredientID *uint   `json:"ingrediente_id"`
	SubDishID    *uint   `json:"subplato_id"`
	Quantity     float64 `json:"cantidad"`
	Unit         string  `json:"unidad"`
}

type recipeRequest struct {
	Lines []recipeLineRequest `json:"lineas"`
}

// ShowRecipe returns the recipe lines of a dish in order.
func ShowRecipe(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if _, err := loadDish(ctx, database, id); err != nil {
		writeLoadError(w, r, err, "dish", id)
		return
	}

	var lines []models.RecipeLine
	err := database.WithContext(ctx).
		Preload("Ingredient").
		Preload("SubDish").
		Where("plato_id = ?", id).
		Order("orden asc, id asc").
		Find(&lines).Error
	if err != nil {
		applog.Error(ctx, "failed to load recipe", "error", err, "id", id)
		writeJSONError(w, http.StatusInternalServerError, "unable to load recipe")
		return
	}

	responses := make([]recipeLineResponse, 0, len(lines))
	for _, line := range lines {
		kind, _ := line.Target()
		resp := recipeLineResponse{
			ID:           line.ID,
			Position:     line.Position,
			Kind:         kind,
			IngredientID: line.IngredientID,
			SubDishID:    line.SubDishID,
			Quantity:     line.Quantity,
			Unit:         line.Unit,
		}
		switch {
		case line.Ingredient != nil:
			resp.Name = line.Ingredient.Name
		case line.SubDish != nil:
			resp.Name = line.SubDish.Name
		}
		responses = append(responses, resp)
	}
	writeJSON(w, http.StatusOK, responses)
}

// ReplaceRecipe swaps the recipe lines of a dish and returns the new costs.
func ReplaceRecipe(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var payload recipeRequest
	if err := decodeJSON(r, &payload); err != nil {
		applog.Debug(ctx, "invalid recipe payload", "error", err)
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	lines := make([]models.RecipeLine, 0, len(payload.Lines))
	for _, line := range payload.Lines {
		lines = append(lines, models.RecipeLine{
			IngredientID: line.IngredientID,
			SubDishID:    line.SubDishID,
			Quantity:     line.Quantity,
			Unit:         line.Unit,
		})
	}

	breakdown, err := calculator.ReplaceRecipe(ctx, id, lines)
	if err != nil {
		writeCostingError(w, r, err, id)
		return
	}
	applog.Info(ctx, "recipe replaced", "dish_id", id, "lines", len(lines), "total", breakdown.Total.String())
	writeJSON(w, http.StatusOK, projectBreakdown(breakdown))
}

// DishCost returns a freshly computed breakdown without storing it.
func DishCost(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	breakdown, err := calculator.Compute(r.Context(), id)
	if err != nil {
		writeCostingError(w, r, err, id)
		return
	}
	writeJSON(w, http.StatusOK, projectBreakdown(breakdown))
}

// RecalculateDish recomputes and stores a dish's costs and allergens and
// propagates the change to the dishes that contain it.
func RecalculateDish(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	breakdown, err := calculator.Recalculate(r.Context(), id)
	if err != nil {
		writeCostingError(w, r, err, id)
		return
	}
	writeJSON(w, http.StatusOK, projectBreakdown(breakdown))
}

type dishAllergensResponse struct {
	DishID   uint                  `json:"plato_id"`
	Official []string              `json:"oficiales"`
	Custom   []allergens.CustomTag `json:"personalizados"`
	Sources  map[string][]string   `json:"origen"`
	Stored   []string              `json:"almacenados"`
	Stale    bool                  `json:"desactualizado"`
}

// DishAllergens resolves the allergens of a dish through its whole recipe
// and reports whether the stored snapshot is out of date.
func DishAllergens(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	dish, err := loadDish(ctx, database, id)
	if err != nil {
		writeLoadError(w, r, err, "dish", id)
		return
	}

	res, err := allergens.Resolve(ctx, database, id)
	if err != nil {
		writeLoadError(w, r, err, "dish", id)
		return
	}

	writeJSON(w, http.StatusOK, dishAllergensResponse{
		DishID:   id,
		Official: res.Official(),
		Custom:   res.Custom,
		Sources:  res.Sources,
		Stored:   dish.Allergens.Codes(),
		Stale:    res.Flags != dish.Allergens,
	})
}

func writeCostingError(w http.ResponseWriter, r *http.Request, err error, id uint) {
	switch {
	case errors.Is(err, costing.ErrInvalidLine), errors.Is(err, costing.ErrCycle):
		applog.Debug(r.Context(), "recipe rejected", "dish_id", id, "error", err)
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		writeLoadError(w, r, err, "dish", id)
	}
}

type lineCostResponse struct {
	LineID      uint              `json:"escandallo_id"`
	Kind        models.TargetKind `json:"tipo"`
	TargetID    uint              `json:"referencia_id"`
	Name        string            `json:"nombre"`
	Quantity    float64           `json:"cantidad"`
	Unit        string            `json:"unidad"`
	Kilograms   float64           `json:"kilos"`
	CostPerKilo float64           `json:"coste_kilo"`
	Cost        float64           `json:"coste"`
	Warning     string            `json:"aviso,omitempty"`
}

type breakdownResponse struct {
	DishID         uint               `json:"plato_id"`
	DishName       string             `json:"nombre"`
	Lines          []lineCostResponse `json:"lineas"`
	Total          float64            `json:"coste_escandallo"`
	PortionsWeight float64            `json:"peso_raciones"`
	CostPerPortion float64            `json:"coste_racion"`
	Warnings       []string           `json:"avisos"`
}

func projectBreakdown(b costing.Breakdown) breakdownResponse {
	resp := breakdownResponse{
		DishID:         b.DishID,
		DishName:       b.DishName,
		Lines:          make([]lineCostResponse, 0, len(b.Lines)),
		Total:          b.Total.Round(4).InexactFloat64(),
		PortionsWeight: b.PortionsWeight.InexactFloat64(),
		CostPerPortion: b.CostPerPortion.Round(4).InexactFloat64(),
		Warnings:       b.Warnings,
	}
	if resp.Warnings == nil {
		resp.Warnings = []string{}
	}
	for _, line := range b.Lines {
		resp.Lines = append(resp.Lines, lineCostResponse{
			LineID:      line.LineID,
			Kind:        line.Kind,
			TargetID:    line.TargetID,
			Name:        line.Name,
			Quantity:    line.Quantity.InexactFloat64(),
			Unit:        line.Unit,
			Kilograms:   line.Kilograms.Round(6).InexactFloat64(),
			CostPerKilo: line.CostPerKilo.Round(4).InexactFloat64(),
			Cost:        line.Cost.Round(4).InexactFloat64(),
			Warning:     line.Warning,
		})
	}
	return resp
}
