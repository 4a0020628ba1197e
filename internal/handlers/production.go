package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	applog "hibococina/internal/log"
	"hibococina/models"
)

type productionRequest struct {
	DishID      uint       `json:"plato_id"`
	Quantity    float64    `json:"cantidad"`
	Lot         string     `json:"lote"`
	ProducedAt  *time.Time `json:"fecha"`
	ExpiresAt   *time.Time `json:"fecha_caducidad"`
	Responsible string     `json:"responsable"`
	Notes       string     `json:"notas"`
}

func (p productionRequest) validate() error {
	if p.DishID == 0 {
		return errors.New("plato_id is required")
	}
	if p.Quantity <= 0 {
		return errors.New("cantidad must be positive")
	}
	if p.ExpiresAt != nil && p.ProducedAt != nil && p.ExpiresAt.Before(*p.ProducedAt) {
		return errors.New("fecha_caducidad must not be before fecha")
	}
	return nil
}

func (p productionRequest) apply(batch *models.ProductionBatch) {
	batch.DishID = p.DishID
	batch.Quantity = p.Quantity
	batch.ExpiresAt = p.ExpiresAt
	batch.Responsible = strings.TrimSpace(p.Responsible)
	batch.Notes = strings.TrimSpace(p.Notes)
	if lot := strings.TrimSpace(p.Lot); lot != "" {
		batch.Lot = lot
	}
	if batch.Lot == "" {
		batch.Lot = newLot()
	}
	if p.ProducedAt != nil {
		batch.ProducedAt = p.ProducedAt.UTC()
	} else if batch.ProducedAt.IsZero() {
		batch.ProducedAt = time.Now().UTC()
	}
}

func newLot() string {
	return "LOT-" + strings.ToUpper(uuid.NewString()[:8])
}

// productionCost multiplies the produced kilograms by the cost snapshot.
func productionCost(quantity, costPerKilo float64) float64 {
	return decimal.NewFromFloat(quantity).Mul(decimal.NewFromFloat(costPerKilo)).Round(4).InexactFloat64()
}

func loadBatch(ctx context.Context, db *gorm.DB, id uint) (models.ProductionBatch, error) {
	var batch models.ProductionBatch
	err := db.WithContext(ctx).Preload("Dish").First(&batch, id).Error
	return batch, err
}

func lotTaken(ctx context.Context, lot string, exceptID uint) (bool, error) {
	count, err := countWhere(ctx, &models.ProductionBatch{}, "lote = ? AND id <> ?", lot, exceptID)
	return count > 0, err
}

// ListProduction returns production batches, newest first, filtered by
// plato_id and a desde/hasta date range.
func ListProduction(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	query := database.WithContext(ctx).Preload("Dish").Order("fecha desc, id desc")

	dishID, err := parseUintQuery(r, "plato_id")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if dishID > 0 {
		query = query.Where("plato_id = ?", dishID)
	}
	from, err := parseDateQuery(r, "desde", false)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseDateQuery(r, "hasta", true)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if from != nil {
		query = query.Where("fecha >= ?", *from)
	}
	if to != nil {
		query = query.Where("fecha <= ?", *to)
	}

	var batches []models.ProductionBatch
	if err := query.Find(&batches).Error; err != nil {
		applog.Error(ctx, "failed to list production", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load production")
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

// CreateProduction records a batch and snapshots the dish's current cost per
// kilogram.
func CreateProduction(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()

	var payload productionRequest
	if err := decodeJSON(r, &payload); err != nil {
		applog.Debug(ctx, "invalid production payload", "error", err)
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := payload.validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var dish models.Dish
	if err := database.WithContext(ctx).First(&dish, payload.DishID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown dish %d", payload.DishID))
			return
		}
		writeLoadError(w, r, err, "dish", payload.DishID)
		return
	}

	var batch models.ProductionBatch
	payload.apply(&batch)
	if taken, err := lotTaken(ctx, batch.Lot, 0); err != nil {
		applog.Error(ctx, "failed to check production lot", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to create production")
		return
	} else if taken {
		writeJSONError(w, http.StatusConflict, "lote already exists")
		return
	}

	batch.CostPerKilo = dish.CostPerKilo()
	batch.TotalCost = productionCost(batch.Quantity, batch.CostPerKilo)
	if batch.CostPerKilo == 0 {
		applog.Warn(ctx, "production recorded without dish cost", "dish", dish.ID, "lot", batch.Lot)
	}

	if err := database.WithContext(ctx).Omit("Dish").Create(&batch).Error; err != nil {
		applog.Error(ctx, "failed to create production", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to create production")
		return
	}
	batch.Dish = &dish
	applog.Info(ctx, "production recorded", "id", batch.ID, "lot", batch.Lot, "dish", dish.ID)
	writeJSON(w, http.StatusCreated, batch)
}

// ShowProduction returns one batch.
func ShowProduction(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	batch, err := loadBatch(r.Context(), database, id)
	if err != nil {
		writeLoadError(w, r, err, "production", id)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// UpdateProduction edits a batch. The cost snapshot is kept and only the total
// follows the new quantity; a batch moved to another dish takes that dish's
// current cost.
func UpdateProduction(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	batch, err := loadBatch(ctx, database, id)
	if err != nil {
		writeLoadError(w, r, err, "production", id)
		return
	}

	var payload productionRequest
	if err := decodeJSON(r, &payload); err != nil {
		applog.Debug(ctx, "invalid production payload", "error", err)
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := payload.validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if payload.DishID != batch.DishID {
		var dish models.Dish
		if err := database.WithContext(ctx).First(&dish, payload.DishID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown dish %d", payload.DishID))
				return
			}
			writeLoadError(w, r, err, "dish", payload.DishID)
			return
		}
		batch.CostPerKilo = dish.CostPerKilo()
		batch.Dish = &dish
	}

	payload.apply(&batch)
	if taken, err := lotTaken(ctx, batch.Lot, batch.ID); err != nil {
		applog.Error(ctx, "failed to check production lot", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to update production")
		return
	} else if taken {
		writeJSONError(w, http.StatusConflict, "lote already exists")
		return
	}
	batch.TotalCost = productionCost(batch.Quantity, batch.CostPerKilo)

	if err := database.WithContext(ctx).Omit("Dish").Save(&batch).Error; err != nil {
		applog.Error(ctx, "failed to update production", "error", err, "id", id)
		writeJSONError(w, http.StatusInternalServerError, "unable to update production")
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// DeleteProduction removes a batch.
func DeleteProduction(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	result := database.WithContext(ctx).Delete(&models.ProductionBatch{}, id)
	if result.Error != nil {
		applog.Error(ctx, "failed to delete production", "error", result.Error, "id", id)
		writeJSONError(w, http.StatusInternalServerError, "unable to delete production")
		return
	}
	if result.RowsAffected == 0 {
		writeJSONError(w, http.StatusNotFound, "production not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
