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

	"hibococina/internal/costing"
	applog "hibococina/internal/log"
	"hibococina/models"
)

var errOrderClosed = errors.New("order is already received or cancelled")

type orderLineRequest struct {
	IngredientID uint    `json:"ingrediente_id"`
	Quantity     float64 `json:"cantidad"`
	Unit         string  `json:"unidad"`
	UnitPrice    float64 `json:"precio_unitario"`
}

type orderRequest struct {
	Reference  string             `json:"referencia"`
	Supplier   string             `json:"proveedor"`
	Status     string             `json:"estado"`
	OrderedAt  *time.Time         `json:"fecha_pedido"`
	DeliveryAt *time.Time         `json:"fecha_entrega"`
	Notes      string             `json:"notas"`
	Lines      []orderLineRequest `json:"lineas"`
}

type orderResponse struct {
	models.Order
	Total float64 `json:"total"`
}

type receiveResponse struct {
	Order   orderResponse           `json:"pedido"`
	Entries []models.InventoryEntry `json:"entradas_inventario"`
}

func (p orderRequest) validate(ctx context.Context) error {
	if strings.TrimSpace(p.Supplier) == "" {
		return errors.New("proveedor is required")
	}
	status := strings.TrimSpace(p.Status)
	if status != "" && !models.ValidOrderStatus(status) {
		return fmt.Errorf("unknown estado %q", status)
	}
	if status == models.OrderReceived {
		return errors.New("use the recibir action to receive an order")
	}
	if len(p.Lines) == 0 {
		return errors.New("lineas must not be empty")
	}
	for i, line := range p.Lines {
		if line.Quantity <= 0 {
			return fmt.Errorf("line %d: cantidad must be positive", i+1)
		}
		if line.UnitPrice < 0 {
			return fmt.Errorf("line %d: precio_unitario must not be negative", i+1)
		}
		if costing.ClassifyUnit(line.Unit) == costing.UnitUnknown {
			return fmt.Errorf("line %d: unknown unit %q", i+1, line.Unit)
		}
		count, err := countWhere(ctx, &models.Ingredient{}, "id = ?", line.IngredientID)
		if err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("line %d: unknown ingredient %d", i+1, line.IngredientID)
		}
	}
	return nil
}

func (p orderRequest) lines() []models.OrderLine {
	out := make([]models.OrderLine, 0, len(p.Lines))
	for _, line := range p.Lines {
		out = append(out, models.OrderLine{
			IngredientID: line.IngredientID,
			Quantity:     line.Quantity,
			Unit:         costing.NormalizeUnit(line.Unit),
			UnitPrice:    line.UnitPrice,
		})
	}
	return out
}

func orderTotal(order models.Order) decimal.Decimal {
	total := decimal.Zero
	for _, line := range order.Lines {
		total = total.Add(decimal.NewFromFloat(line.Quantity).Mul(decimal.NewFromFloat(line.UnitPrice)))
	}
	return total
}

func projectOrder(order models.Order) orderResponse {
	if order.Lines == nil {
		order.Lines = []models.OrderLine{}
	}
	return orderResponse{Order: order, Total: orderTotal(order).Round(2).InexactFloat64()}
}

func loadOrder(ctx context.Context, db *gorm.DB, id uint) (models.Order, error) {
	var order models.Order
	err := db.WithContext(ctx).Preload("Lines.Ingredient").First(&order, id).Error
	return order, err
}

// ListOrders returns orders, newest first, filtered by estado and proveedor.
func ListOrders(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	query := database.WithContext(ctx).Preload("Lines").Order("fecha_pedido desc, id desc")

	params := r.URL.Query()
	if status := strings.TrimSpace(params.Get("estado")); status != "" {
		if !models.ValidOrderStatus(status) {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown estado %q", status))
			return
		}
		query = query.Where("estado = ?", status)
	}
	if supplier := strings.TrimSpace(params.Get("proveedor")); supplier != "" {
		query = query.Where("proveedor = ?", supplier)
	}

	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		applog.Error(ctx, "failed to list orders", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load orders")
		return
	}
	responses := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		responses = append(responses, projectOrder(order))
	}
	writeJSON(w, http.StatusOK, responses)
}

// CreateOrder stores a purchase order with its lines.
func CreateOrder(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()

	var payload orderRequest
	if err := decodeJSON(r, &payload); err != nil {
		applog.Debug(ctx, "invalid order payload", "error", err)
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := payload.validate(ctx); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	order := models.Order{
		Reference:  strings.TrimSpace(payload.Reference),
		Supplier:   strings.TrimSpace(payload.Supplier),
		Status:     strings.TrimSpace(payload.Status),
		DeliveryAt: payload.DeliveryAt,
		Notes:      strings.TrimSpace(payload.Notes),
		Lines:      payload.lines(),
	}
	if order.Reference == "" {
		order.Reference = "PED-" + strings.ToUpper(uuid.NewString()[:8])
	}
	if order.Status == "" {
		order.Status = models.OrderPending
	}
	order.OrderedAt = time.Now().UTC()
	if payload.OrderedAt != nil {
		order.OrderedAt = payload.OrderedAt.UTC()
	}

	if taken, err := countWhere(ctx, &models.Order{}, "referencia = ?", order.Reference); err != nil {
		applog.Error(ctx, "failed to check order reference", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to create order")
		return
	} else if taken > 0 {
		writeJSONError(w, http.StatusConflict, "referencia already exists")
		return
	}

	if err := database.WithContext(ctx).Create(&order).Error; err != nil {
		applog.Error(ctx, "failed to create order", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to create order")
		return
	}

	created, err := loadOrder(ctx, database, order.ID)
	if err != nil {
		writeLoadError(w, r, err, "order", order.ID)
		return
	}
	applog.Info(ctx, "order created", "id", created.ID, "reference", created.Reference)
	writeJSON(w, http.StatusCreated, projectOrder(created))
}

// ShowOrder returns one order with its lines.
func ShowOrder(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	order, err := loadOrder(r.Context(), database, id)
	if err != nil {
		writeLoadError(w, r, err, "order", id)
		return
	}
	writeJSON(w, http.StatusOK, projectOrder(order))
}

// UpdateOrder replaces an open order and its lines.
func UpdateOrder(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	order, err := loadOrder(ctx, database, id)
	if err != nil {
		writeLoadError(w, r, err, "order", id)
		return
	}
	if order.Status == models.OrderReceived {
		writeJSONError(w, http.StatusConflict, "received orders cannot be modified")
		return
	}

	var payload orderRequest
	if err := decodeJSON(r, &payload); err != nil {
		applog.Debug(ctx, "invalid order payload", "error", err)
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := payload.validate(ctx); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	updates := map[string]any{
		"proveedor":     strings.TrimSpace(payload.Supplier),
		"fecha_entrega": payload.DeliveryAt,
		"notas":         strings.TrimSpace(payload.Notes),
	}
	if status := strings.TrimSpace(payload.Status); status != "" {
		updates["estado"] = status
	}
	if payload.OrderedAt != nil {
		updates["fecha_pedido"] = payload.OrderedAt.UTC()
	}

	err = database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&order).Omit("Lines").Updates(updates).Error; err != nil {
			return err
		}
		if err := tx.Where("pedido_id = ?", id).Delete(&models.OrderLine{}).Error; err != nil {
			return err
		}
		lines := payload.lines()
		for i := range lines {
			lines[i].OrderID = id
		}
		return tx.Omit("Ingredient").Create(&lines).Error
	})
	if err != nil {
		applog.Error(ctx, "failed to update order", "error", err, "id", id)
		writeJSONError(w, http.StatusInternalServerError, "unable to update order")
		return
	}

	updated, err := loadOrder(ctx, database, id)
	if err != nil {
		writeLoadError(w, r, err, "order", id)
		return
	}
	writeJSON(w, http.StatusOK, projectOrder(updated))
}

// DeleteOrder removes an order that has not been received.
func DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	order, err := loadOrder(ctx, database, id)
	if err != nil {
		writeLoadError(w, r, err, "order", id)
		return
	}
	if order.Status == models.OrderReceived {
		writeJSONError(w, http.StatusConflict, "received orders are referenced by inventory and cannot be deleted")
		return
	}

	err = database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("pedido_id = ?", id).Delete(&models.OrderLine{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Order{}, id).Error
	})
	if err != nil {
		applog.Error(ctx, "failed to delete order", "error", err, "id", id)
		writeJSONError(w, http.StatusInternalServerError, "unable to delete order")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReceiveOrder marks an order as received and books one inventory entry per
// line, all in one transaction.
func ReceiveOrder(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var (
		order   models.Order
		entries []models.InventoryEntry
	)
	err := database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = loadOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if order.Status == models.OrderReceived || order.Status == models.OrderCancelled {
			return errOrderClosed
		}

		now := time.Now().UTC()
		entries = make([]models.InventoryEntry, 0, len(order.Lines))
		for _, line := range order.Lines {
			ingredientID := line.IngredientID
			lineID := line.ID
			entries = append(entries, models.InventoryEntry{
				IngredientID: &ingredientID,
				Quantity:     line.Quantity,
				Unit:         line.Unit,
				Lot:          order.Reference,
				RegisteredAt: now,
				Notes:        fmt.Sprintf("pedido %s (%s)", order.Reference, order.Supplier),
				OrderLineID:  &lineID,
			})
		}
		if len(entries) > 0 {
			if err := tx.Omit("Ingredient").Create(&entries).Error; err != nil {
				return err
			}
		}

		order.Status = models.OrderReceived
		order.ReceivedAt = &now
		return tx.Model(&order).Omit("Lines").Updates(map[string]any{
			"estado":          models.OrderReceived,
			"fecha_recepcion": now,
		}).Error
	})
	if err != nil {
		if errors.Is(err, errOrderClosed) {
			writeJSONError(w, http.StatusConflict, err.Error())
			return
		}
		writeLoadError(w, r, err, "order", id)
		return
	}

	applog.Info(ctx, "order received", "id", id, "entries", len(entries))
	writeJSON(w, http.StatusOK, receiveResponse{Order: projectOrder(order), Entries: entries})
}
