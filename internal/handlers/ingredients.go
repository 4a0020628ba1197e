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

type ingredientResponse struct {
	ID                 uint                `json:"id"`
	Code               string              `json:"codigo"`
	Name               string              `json:"nombre"`
	CostPerKilo        *float64            `json:"coste_kilo"`
	NetWeight          *float64            `json:"peso_neto"`
	Unit               string              `json:"unidad"`
	Family             string              `json:"familia"`
	Supplier           string              `json:"proveedor"`
	Allergens          []string            `json:"alergenos"`
	CustomAllergens    []customAllergenRef `json:"alergenos_personalizados"`
	RecalculatedDishes []uint              `json:"platos_recalculados,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

type ingredientRequest struct {
	Code              string   `json:"codigo"`
	Name              string   `json:"nombre"`
	CostPerKilo       *float64 `json:"coste_kilo"`
	NetWeight         *float64 `json:"peso_neto"`
	Unit              string   `json:"unidad"`
	Family            string   `json:"familia"`
	Supplier          string   `json:"proveedor"`
	Allergens         []string `json:"alergenos"`
	CustomAllergenIDs []uint   `json:"alergenos_personalizados"`
}

func (p ingredientRequest) validate() (models.AllergenFlags, error) {
	if strings.TrimSpace(p.Code) == "" {
		return models.AllergenFlags{}, errors.New("codigo is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return models.AllergenFlags{}, errors.New("nombre is required")
	}
	if p.CostPerKilo != nil && *p.CostPerKilo < 0 {
		return models.AllergenFlags{}, errors.New("coste_kilo must not be negative")
	}
	if p.NetWeight != nil && *p.NetWeight < 0 {
		return models.AllergenFlags{}, errors.New("peso_neto must not be negative")
	}
	if unit := strings.TrimSpace(p.Unit); unit != "" && costing.ClassifyUnit(unit) == costing.UnitUnknown {
		return models.AllergenFlags{}, fmt.Errorf("unknown unit %q", unit)
	}
	return parseAllergenCodes(p.Allergens)
}

func (p ingredientRequest) apply(ingredient *models.Ingredient, flags models.AllergenFlags) {
	ingredient.Code = strings.TrimSpace(p.Code)
	ingredient.Name = strings.TrimSpace(p.Name)
	ingredient.CostPerKilo = p.CostPerKilo
	ingredient.NetWeight = p.NetWeight
	ingredient.Unit = costing.NormalizeUnit(p.Unit)
	ingredient.Family = strings.TrimSpace(p.Family)
	ingredient.Supplier = strings.TrimSpace(p.Supplier)
	ingredient.Allergens = flags
}

func projectIngredient(ingredient models.Ingredient) ingredientResponse {
	return ingredientResponse{
		ID:              ingredient.ID,
		Code:            ingredient.Code,
		Name:            ingredient.Name,
		CostPerKilo:     ingredient.CostPerKilo,
		NetWeight:       ingredient.NetWeight,
		Unit:            ingredient.Unit,
		Family:          ingredient.Family,
		Supplier:        ingredient.Supplier,
		Allergens:       ingredient.Allergens.Codes(),
		CustomAllergens: projectCustomRefs(ingredient.CustomAllergens),
		CreatedAt:       ingredient.CreatedAt,
		UpdatedAt:       ingredient.UpdatedAt,
	}
}

// ListIngredients returns ingredients filtered by q, familia and proveedor.
func ListIngredients(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	query := database.WithContext(ctx).Preload("CustomAllergens").Order("nombre asc")

	params := r.URL.Query()
	if q := strings.TrimSpace(params.Get("q")); q != "" {
		query = query.Where("LOWER(nombre) LIKE ? OR LOWER(codigo) LIKE ?", likePattern(q), likePattern(q))
	}
	if family := strings.TrimSpace(params.Get("familia")); family != "" {
		query = query.Where("familia = ?", family)
	}
	if supplier := strings.TrimSpace(params.Get("proveedor")); supplier != "" {
		query = query.Where("proveedor = ?", supplier)
	}

	var results []models.Ingredient
	if err := query.Find(&results).Error; err != nil {
		applog.Error(ctx, "failed to list ingredients", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load ingredients")
		return
	}

	responses := make([]ingredientResponse, 0, len(results))
	for _, ingredient := range results {
		responses = append(responses, projectIngredient(ingredient))
	}
	writeJSON(w, http.StatusOK, responses)
}

// CreateIngredient stores a new ingredient.
func CreateIngredient(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()

	var payload ingredientRequest
	if err := decodeJSON(r, &payload); err != nil {
		applog.Debug(ctx, "invalid ingredient payload", "error", err)
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	flags, err := payload.validate()
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if taken, err := countWhere(ctx, &models.Ingredient{}, "codigo = ?", strings.TrimSpace(payload.Code)); err != nil {
		applog.Error(ctx, "failed to check ingredient code", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to create ingredient")
		return
	} else if taken > 0 {
		writeJSONError(w, http.StatusConflict, "codigo already exists")
		return
	}

	var ingredient models.Ingredient
	payload.apply(&ingredient, flags)

	err = database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tags, err := loadCustomAllergens(ctx, tx, payload.CustomAllergenIDs)
		if err != nil {
			return err
		}
		if err := tx.Omit("CustomAllergens").Create(&ingredient).Error; err != nil {
			return err
		}
		return replaceCustomAllergens(tx, &ingredient, tags)
	})
	if err != nil {
		if errors.Is(err, errUnknownCustomAllergen) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		applog.Error(ctx, "failed to create ingredient", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to create ingredient")
		return
	}

	applog.Info(ctx, "ingredient created", "id", ingredient.ID, "code", ingredient.Code)
	writeJSON(w, http.StatusCreated, projectIngredient(ingredient))
}

func loadIngredient(ctx context.Context, id uint) (models.Ingredient, error) {
	var ingredient models.Ingredient
	err := database.WithContext(ctx).Preload("CustomAllergens").First(&ingredient, id).Error
	return ingredient, err
}

// ShowIngredient returns one ingredient.
func ShowIngredient(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	ingredient, err := loadIngredient(r.Context(), id)
	if err != nil {
		writeLoadError(w, r, err, "ingredient", id)
		return
	}
	writeJSON(w, http.StatusOK, projectIngredient(ingredient))
}

// UpdateIngredient replaces an ingredient's fields and recalculates every
// dish that uses it in the same transaction.
func UpdateIngredient(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	ingredient, err := loadIngredient(ctx, id)
	if err != nil {
		writeLoadError(w, r, err, "ingredient", id)
		return
	}

	var payload ingredientRequest
	if err := decodeJSON(r, &payload); err != nil {
		applog.Debug(ctx, "invalid ingredient update payload", "error", err)
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	flags, err := payload.validate()
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if taken, err := countWhere(ctx, &models.Ingredient{}, "codigo = ? AND id <> ?", strings.TrimSpace(payload.Code), id); err != nil {
		applog.Error(ctx, "failed to check ingredient code", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to update ingredient")
		return
	} else if taken > 0 {
		writeJSONError(w, http.StatusConflict, "codigo already exists")
		return
	}

	payload.apply(&ingredient, flags)

	var refreshed map[uint]costing.Breakdown
	err = database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tags, err := loadCustomAllergens(ctx, tx, payload.CustomAllergenIDs)
		if err != nil {
			return err
		}
		if err := tx.Omit("CustomAllergens").Save(&ingredient).Error; err != nil {
			return err
		}
		if err := replaceCustomAllergens(tx, &ingredient, tags); err != nil {
			return err
		}
		refreshed, err = costing.RefreshIngredient(ctx, tx, ingredient.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, errUnknownCustomAllergen) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		applog.Error(ctx, "failed to update ingredient", "error", err, "id", id)
		writeJSONError(w, http.StatusInternalServerError, "unable to update ingredient")
		return
	}

	resp := projectIngredient(ingredient)
	for dishID := range refreshed {
		resp.RecalculatedDishes = append(resp.RecalculatedDishes, dishID)
	}
	sortIDs(resp.RecalculatedDishes)
	applog.Info(ctx, "ingredient updated", "id", id, "dishes_recalculated", len(refreshed))
	writeJSON(w, http.StatusOK, resp)
}

// DeleteIngredient removes an ingredient that nothing references.
func DeleteIngredient(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	ingredient, err := loadIngredient(ctx, id)
	if err != nil {
		writeLoadError(w, r, err, "ingredient", id)
		return
	}

	references := []struct {
		model any
		label string
	}{
		{&models.RecipeLine{}, "recipe lines"},
		{&models.OrderLine{}, "order lines"},
		{&models.InventoryEntry{}, "inventory entries"},
	}
	for _, ref := range references {
		count, err := countWhere(ctx, ref.model, "ingrediente_id = ?", id)
		if err != nil {
			applog.Error(ctx, "failed to check ingredient references", "error", err, "id", id)
			writeJSONError(w, http.StatusInternalServerError, "unable to delete ingredient")
			return
		}
		if count > 0 {
			writeJSONError(w, http.StatusConflict, fmt.Sprintf("ingredient is used by %d %s", count, ref.label))
			return
		}
	}

	err = database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&ingredient).Association("CustomAllergens").Clear(); err != nil {
			return err
		}
		return tx.Delete(&ingredient).Error
	})
	if err != nil {
		applog.Error(ctx, "failed to delete ingredient", "error", err, "id", id)
		writeJSONError(w, http.StatusInternalServerError, "unable to delete ingredient")
		return
	}

	applog.Info(ctx, "ingredient deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// IngredientAllergenSuggestions proposes allergens from the ingredient's name
// that it does not carry yet. Nothing is written.
func IngredientAllergenSuggestions(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	ingredient, err := loadIngredient(ctx, id)
	if err != nil {
		writeLoadError(w, r, err, "ingredient", id)
		return
	}

	defs, custom, err := allergenCatalogues(ctx)
	if err != nil {
		applog.Error(ctx, "failed to load allergen catalogue", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load allergens")
		return
	}

	proposals := allergens.Suggest(ingredient, defs, custom)
	if proposals == nil {
		proposals = []allergens.Proposal{}
	}
	writeJSON(w, http.StatusOK, proposals)
}
