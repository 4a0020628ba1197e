package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"hibococina/internal/inventory"
	applog "hibococina/internal/log"
	"hibococina/models"
)

type inventoryRequest struct {
	IngredientID *uint      `json:"ingrediente_id"`
	Quantity     float64    `json:"cantidad"`
	Unit         string     `json:"unidad"`
	Lot          string     `json:"lote"`
	RegisteredAt *time.Time `json:"fecha_registro"`
	ExpiresAt    *time.Time `json:"fecha_caducidad"`
	Notes        string     `json:"notas"`
}

func (p inventoryRequest) apply(entry *models.InventoryEntry) {
	entry.IngredientID = p.IngredientID
	entry.Ingredient = nil
	entry.Quantity = p.Quantity
	entry.Unit = p.Unit
	entry.Lot = p.Lot
	entry.ExpiresAt = p.ExpiresAt
	entry.Notes = strings.TrimSpace(p.Notes)
	if p.RegisteredAt != nil {
		entry.RegisteredAt = p.RegisteredAt.UTC()
	}
}

type stockLineResponse struct {
	IngredientID uint       `json:"ingrediente_id"`
	Code         string     `json:"codigo"`
	Name         string     `json:"nombre"`
	Entries      int        `json:"entradas"`
	Kilograms    float64    `json:"kilos"`
	CostPerKilo  float64    `json:"coste_kilo"`
	Value        float64    `json:"valor"`
	NextExpiry   *time.Time `json:"proxima_caducidad"`
}

type stockResponse struct {
	Lines    []stockLineResponse `json:"lineas"`
	Total    float64             `json:"valor_total"`
	Orphans  int                 `json:"huerfanos"`
	Warnings []string            `json:"avisos"`
}

func writeInventoryError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, inventory.ErrUnknownIngredient) || errors.Is(err, inventory.ErrInvalidEntry) {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	applog.Error(r.Context(), "failed to store inventory entry", "error", err)
	writeJSONError(w, http.StatusInternalServerError, "unable to store inventory entry")
}

// ListInventory returns valid stock only. Orphans are served separately.
func ListInventory(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()

	ingredientID, err := parseUintQuery(r, "ingrediente_id")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	expiring, err := parseDateQuery(r, "caduca_antes", true)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := inventory.Valid(ctx, database, inventory.Filter{
		IngredientID:   ingredientID,
		Query:          r.URL.Query().Get("q"),
		ExpiringBefore: expiring,
	})
	if err != nil {
		applog.Error(ctx, "failed to list inventory", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load inventory")
		return
	}
	if entries == nil {
		entries = []models.InventoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// CreateInventoryEntry registers stock for an existing ingredient.
func CreateInventoryEntry(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()

	var payload inventoryRequest
	if err := decodeJSON(r, &payload); err != nil {
		applog.Debug(ctx, "invalid inventory payload", "error", err)
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	var entry models.InventoryEntry
	payload.apply(&entry)
	if err := inventory.Register(ctx, database, &entry); err != nil {
		writeInventoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// ShowInventoryEntry returns one entry, orphaned or not.
func ShowInventoryEntry(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var entry models.InventoryEntry
	if err := database.WithContext(r.Context()).Preload("Ingredient").First(&entry, id).Error; err != nil {
		writeLoadError(w, r, err, "inventory entry", id)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// UpdateInventoryEntry replaces an entry. The new ingredient must exist.
func UpdateInventoryEntry(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var entry models.InventoryEntry
	if err := database.WithContext(ctx).First(&entry, id).Error; err != nil {
		writeLoadError(w, r, err, "inventory entry", id)
		return
	}

	var payload inventoryRequest
	if err := decodeJSON(r, &payload); err != nil {
		applog.Debug(ctx, "invalid inventory payload", "error", err)
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	payload.apply(&entry)
	if err := inventory.Validate(ctx, database, &entry); err != nil {
		writeInventoryError(w, r, err)
		return
	}
	if err := database.WithContext(ctx).Omit("Ingredient").Save(&entry).Error; err != nil {
		writeInventoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// DeleteInventoryEntry removes one entry.
func DeleteInventoryEntry(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	result := database.WithContext(ctx).Delete(&models.InventoryEntry{}, id)
	if result.Error != nil {
		applog.Error(ctx, "failed to delete inventory entry", "error", result.Error, "id", id)
		writeJSONError(w, http.StatusInternalServerError, "unable to delete inventory entry")
		return
	}
	if result.RowsAffected == 0 {
		writeLoadError(w, r, gorm.ErrRecordNotFound, "inventory entry", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// InventorySummary values the valid stock per ingredient.
func InventorySummary(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	stock, err := inventory.Summary(ctx, database)
	if err != nil {
		applog.Error(ctx, "failed to summarize inventory", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to summarize inventory")
		return
	}

	resp := stockResponse{
		Lines:    make([]stockLineResponse, 0, len(stock.Lines)),
		Total:    stock.Total.Round(2).InexactFloat64(),
		Orphans:  stock.Orphans,
		Warnings: stock.Warnings,
	}
	if resp.Warnings == nil {
		resp.Warnings = []string{}
	}
	for _, line := range stock.Lines {
		resp.Lines = append(resp.Lines, stockLineResponse{
			IngredientID: line.IngredientID,
			Code:         line.Code,
			Name:         line.Name,
			Entries:      line.Entries,
			Kilograms:    line.Kilograms.Round(3).InexactFloat64(),
			CostPerKilo:  line.CostPerKilo.InexactFloat64(),
			Value:        line.Value.Round(2).InexactFloat64(),
			NextExpiry:   line.NextExpiry,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListInventoryOrphans returns entries whose ingredient is missing.
func ListInventoryOrphans(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	orphans, err := inventory.Orphans(r.Context(), database)
	if err != nil {
		applog.Error(r.Context(), "failed to list inventory orphans", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load inventory orphans")
		return
	}
	if orphans == nil {
		orphans = []models.InventoryEntry{}
	}
	writeJSON(w, http.StatusOK, orphans)
}

// PurgeInventoryOrphans deletes every orphaned entry.
func PurgeInventoryOrphans(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	removed, err := inventory.PurgeOrphans(ctx, database)
	if err != nil {
		applog.Error(ctx, "failed to purge inventory orphans", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to purge inventory orphans")
		return
	}
	applog.Info(ctx, "inventory orphans purged", "removed", removed)
	writeJSON(w, http.StatusOK, map[string]int64{"eliminados": removed})
}
