package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"hibococina/internal/allergens"
	applog "hibococina/internal/log"
	"hibococina/models"
)

var errUnknownCustomAllergen = errors.New("unknown custom allergen")

type customAllergenRef struct {
	ID   uint   `json:"id"`
	Name string `json:"nombre"`
}

type customAllergenResponse struct {
	ID          uint      `json:"id"`
	Name        string    `json:"nombre"`
	Description string    `json:"descripcion"`
	Keywords    []string  `json:"palabras_clave"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type customAllergenRequest struct {
	Name        string   `json:"nombre"`
	Description string   `json:"descripcion"`
	Keywords    []string `json:"palabras_clave"`
}

type keywordsRequest struct {
	Keywords []string `json:"palabras_clave"`
}

func projectCustomRefs(tags []models.CustomAllergen) []customAllergenRef {
	refs := make([]customAllergenRef, 0, len(tags))
	for _, tag := range tags {
		refs = append(refs, customAllergenRef{ID: tag.ID, Name: tag.Name})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs
}

func projectCustomAllergen(tag models.CustomAllergen) customAllergenResponse {
	keywords := []string(tag.Keywords)
	if keywords == nil {
		keywords = []string{}
	}
	return customAllergenResponse{
		ID:          tag.ID,
		Name:        tag.Name,
		Description: tag.Description,
		Keywords:    keywords,
		CreatedAt:   tag.CreatedAt,
		UpdatedAt:   tag.UpdatedAt,
	}
}

func parseAllergenCodes(codes []string) (models.AllergenFlags, error) {
	flags, unknown := models.AllergenFlagsFromCodes(codes)
	if len(unknown) > 0 {
		return models.AllergenFlags{}, fmt.Errorf("unknown allergen codes: %s", strings.Join(unknown, ", "))
	}
	return flags, nil
}

func cleanKeywords(words []string) datatypes.JSONSlice[string] {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, word := range words {
		trimmed := strings.ToLower(strings.TrimSpace(word))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return datatypes.JSONSlice[string](out)
}

func loadCustomAllergens(ctx context.Context, tx *gorm.DB, ids []uint) ([]models.CustomAllergen, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	unique := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}

	var tags []models.CustomAllergen
	if err := tx.WithContext(ctx).Where("id IN ?", ids).Find(&tags).Error; err != nil {
		return nil, err
	}
	if len(tags) != len(unique) {
		return nil, fmt.Errorf("%w in alergenos_personalizados", errUnknownCustomAllergen)
	}
	return tags, nil
}

func replaceCustomAllergens(tx *gorm.DB, owner any, tags []models.CustomAllergen) error {
	assoc := tx.Model(owner).Association("CustomAllergens")
	if len(tags) == 0 {
		return assoc.Clear()
	}
	return assoc.Replace(tags)
}

func allergenCatalogues(ctx context.Context) ([]models.AllergenDefinition, []models.CustomAllergen, error) {
	defs, err := allergens.Definitions(ctx, database)
	if err != nil {
		return nil, nil, err
	}
	var custom []models.CustomAllergen
	if err := database.WithContext(ctx).Order("nombre asc").Find(&custom).Error; err != nil {
		return nil, nil, err
	}
	return defs, custom, nil
}

func sortIDs(ids []uint) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// ListAllergens returns the official catalogue with its keywords.
func ListAllergens(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	defs, err := allergens.Definitions(r.Context(), database)
	if err != nil {
		applog.Error(r.Context(), "failed to list allergens", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load allergens")
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

// UpdateAllergenKeywords replaces the keyword list of an official allergen.
func UpdateAllergenKeywords(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	code := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "codigo")))
	if !models.IsOfficialAllergen(code) {
		writeJSONError(w, http.StatusNotFound, "allergen not found")
		return
	}

	var payload keywordsRequest
	if err := decodeJSON(r, &payload); err != nil {
		applog.Debug(ctx, "invalid allergen keywords payload", "error", err)
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	var def models.AllergenDefinition
	if err := database.WithContext(ctx).First(&def, "codigo = ?", code).Error; err != nil {
		writeLoadError(w, r, err, "allergen", 0)
		return
	}
	def.Keywords = cleanKeywords(payload.Keywords)
	if err := database.WithContext(ctx).Model(&def).Update("palabras_clave", def.Keywords).Error; err != nil {
		applog.Error(ctx, "failed to update allergen keywords", "error", err, "code", code)
		writeJSONError(w, http.StatusInternalServerError, "unable to update allergen")
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// DetectAllergens proposes allergens for free text given in ?texto=.
func DetectAllergens(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	text := strings.TrimSpace(r.URL.Query().Get("texto"))
	if text == "" {
		writeJSONError(w, http.StatusBadRequest, "texto is required")
		return
	}

	defs, custom, err := allergenCatalogues(ctx)
	if err != nil {
		applog.Error(ctx, "failed to load allergen catalogue", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load allergens")
		return
	}

	proposals := allergens.Detect(text, defs, custom)
	if proposals == nil {
		proposals = []allergens.Proposal{}
	}
	writeJSON(w, http.StatusOK, proposals)
}

// ListCustomAllergens returns every custom allergen.
func ListCustomAllergens(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	var tags []models.CustomAllergen
	if err := database.WithContext(r.Context()).Order("nombre asc").Find(&tags).Error; err != nil {
		applog.Error(r.Context(), "failed to list custom allergens", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load custom allergens")
		return
	}
	responses := make([]customAllergenResponse, 0, len(tags))
	for _, tag := range tags {
		responses = append(responses, projectCustomAllergen(tag))
	}
	writeJSON(w, http.StatusOK, responses)
}

// CreateCustomAllergen stores a new custom allergen tag.
func CreateCustomAllergen(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()

	var payload customAllergenRequest
	if err := decodeJSON(r, &payload); err != nil {
		applog.Debug(ctx, "invalid custom allergen payload", "error", err)
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		writeJSONError(w, http.StatusBadRequest, "nombre is required")
		return
	}
	if taken, err := countWhere(ctx, &models.CustomAllergen{}, "LOWER(nombre) = ?", strings.ToLower(name)); err != nil {
		applog.Error(ctx, "failed to check custom allergen name", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to create custom allergen")
		return
	} else if taken > 0 {
		writeJSONError(w, http.StatusConflict, "nombre already exists")
		return
	}

	tag := models.CustomAllergen{
		Name:        name,
		Description: strings.TrimSpace(payload.Description),
		Keywords:    cleanKeywords(payload.Keywords),
	}
	if err := database.WithContext(ctx).Create(&tag).Error; err != nil {
		applog.Error(ctx, "failed to create custom allergen", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to create custom allergen")
		return
	}
	writeJSON(w, http.StatusCreated, projectCustomAllergen(tag))
}

// ShowCustomAllergen returns one custom allergen.
func ShowCustomAllergen(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var tag models.CustomAllergen
	if err := database.WithContext(r.Context()).First(&tag, id).Error; err != nil {
		writeLoadError(w, r, err, "custom allergen", id)
		return
	}
	writeJSON(w, http.StatusOK, projectCustomAllergen(tag))
}

// UpdateCustomAllergen replaces a custom allergen's fields.
func UpdateCustomAllergen(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var tag models.CustomAllergen
	if err := database.WithContext(ctx).First(&tag, id).Error; err != nil {
		writeLoadError(w, r, err, "custom allergen", id)
		return
	}

	var payload customAllergenRequest
	if err := decodeJSON(r, &payload); err != nil {
		applog.Debug(ctx, "invalid custom allergen payload", "error", err)
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		writeJSONError(w, http.StatusBadRequest, "nombre is required")
		return
	}
	if taken, err := countWhere(ctx, &models.CustomAllergen{}, "LOWER(nombre) = ? AND id <> ?", strings.ToLower(name), id); err != nil {
		applog.Error(ctx, "failed to check custom allergen name", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to update custom allergen")
		return
	} else if taken > 0 {
		writeJSONError(w, http.StatusConflict, "nombre already exists")
		return
	}

	tag.Name = name
	tag.Description = strings.TrimSpace(payload.Description)
	tag.Keywords = cleanKeywords(payload.Keywords)
	if err := database.WithContext(ctx).Save(&tag).Error; err != nil {
		applog.Error(ctx, "failed to update custom allergen", "error", err, "id", id)
		writeJSONError(w, http.StatusInternalServerError, "unable to update custom allergen")
		return
	}
	writeJSON(w, http.StatusOK, projectCustomAllergen(tag))
}

// DeleteCustomAllergen removes a custom allergen and unlinks it from every
// ingredient and dish.
func DeleteCustomAllergen(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var tag models.CustomAllergen
	if err := database.WithContext(ctx).First(&tag, id).Error; err != nil {
		writeLoadError(w, r, err, "custom allergen", id)
		return
	}

	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"ingrediente_alergenos_personalizados", "plato_alergenos_personalizados"} {
			if err := tx.Exec("DELETE FROM "+table+" WHERE custom_allergen_id = ?", id).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&tag).Error
	})
	if err != nil {
		applog.Error(ctx, "failed to delete custom allergen", "error", err, "id", id)
		writeJSONError(w, http.StatusInternalServerError, "unable to delete custom allergen")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
