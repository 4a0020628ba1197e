package handlers

import (
	"net/http"

	"hibococina/internal/costing"
	"hibococina/internal/inventory"
	applog "hibococina/internal/log"
)

type integrityResponse struct {
	OK              bool            `json:"ok"`
	Recipe          []costing.Issue `json:"escandallos"`
	OrphanInventory int             `json:"inventario_huerfano"`
}

// IntegrityReport lists broken recipe lines and orphan inventory entries
// without changing anything.
func IntegrityReport(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()

	issues, err := calculator.Integrity(ctx)
	if err != nil {
		applog.Error(ctx, "failed to check recipe integrity", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to check integrity")
		return
	}
	orphans, err := inventory.Orphans(ctx, database)
	if err != nil {
		applog.Error(ctx, "failed to list orphan inventory", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to check integrity")
		return
	}
	if issues == nil {
		issues = []costing.Issue{}
	}

	writeJSON(w, http.StatusOK, integrityResponse{
		OK:              len(issues) == 0 && len(orphans) == 0,
		Recipe:          issues,
		OrphanInventory: len(orphans),
	})
}

// RecalculateAllDishes refreshes the cost and allergens of every dish.
func RecalculateAllDishes(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()

	count, err := calculator.RecalculateAll(ctx)
	if err != nil {
		applog.Error(ctx, "failed to recalculate dishes", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to recalculate dishes")
		return
	}
	applog.Info(ctx, "all dishes recalculated", "count", count)
	writeJSON(w, http.StatusOK, map[string]int{"platos_recalculados": count})
}
