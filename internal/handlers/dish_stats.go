package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"

	applog "hibococina/internal/log"
	"hibococina/models"
)

type dishStatistics struct {
	Total           int            `json:"total_platos"`
	WithRecipe      int            `json:"con_escandallo"`
	WithoutRecipe   int            `json:"sin_escandallo"`
	NeverCalculated int            `json:"sin_calcular"`
	AveragePortion  float64        `json:"coste_racion_medio"`
	MinPortion      float64        `json:"coste_racion_minimo"`
	MaxPortion      float64        `json:"coste_racion_maximo"`
	AverageFoodCost *float64       `json:"food_cost_medio"`
	ByCategory      map[string]int `json:"por_categoria"`
}

// summarizeDishes computes the dashboard figures. Portion cost figures only
// consider dishes that have a recipe; food cost only those with a sale price.
func summarizeDishes(dishes []models.Dish, withRecipe map[uint]bool) dishStatistics {
	stats := dishStatistics{
		Total:      len(dishes),
		ByCategory: make(map[string]int),
	}

	portionSum := decimal.Zero
	foodCostSum := decimal.Zero
	foodCostCount := 0
	var minPortion, maxPortion decimal.Decimal

	for _, dish := range dishes {
		category := dish.Category
		if category == "" {
			category = "sin categoria"
		}
		stats.ByCategory[category]++

		if dish.CostsComputedAt == nil {
			stats.NeverCalculated++
		}
		if !withRecipe[dish.ID] {
			stats.WithoutRecipe++
			continue
		}

		portion := decimal.NewFromFloat(dish.PortionCost)
		if stats.WithRecipe == 0 || portion.LessThan(minPortion) {
			minPortion = portion
		}
		if stats.WithRecipe == 0 || portion.GreaterThan(maxPortion) {
			maxPortion = portion
		}
		stats.WithRecipe++
		portionSum = portionSum.Add(portion)

		if pct := foodCostPercent(dish); pct != nil {
			foodCostSum = foodCostSum.Add(decimal.NewFromFloat(*pct))
			foodCostCount++
		}
	}

	if stats.WithRecipe > 0 {
		stats.AveragePortion = portionSum.Div(decimal.NewFromInt(int64(stats.WithRecipe))).Round(4).InexactFloat64()
		stats.MinPortion = minPortion.Round(4).InexactFloat64()
		stats.MaxPortion = maxPortion.Round(4).InexactFloat64()
	}
	if foodCostCount > 0 {
		avg := foodCostSum.Div(decimal.NewFromInt(int64(foodCostCount))).Round(2).InexactFloat64()
		stats.AverageFoodCost = &avg
	}
	return stats
}

// DishStatistics returns aggregate figures over every dish.
func DishStatistics(w http.ResponseWriter, r *http.Request) {
	if !requireDatabase(w, r) {
		return
	}
	ctx := r.Context()

	var dishes []models.Dish
	if err := database.WithContext(ctx).Find(&dishes).Error; err != nil {
		applog.Error(ctx, "failed to load dishes for statistics", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load statistics")
		return
	}

	var ids []uint
	if err := database.WithContext(ctx).Model(&models.RecipeLine{}).Distinct("plato_id").Pluck("plato_id", &ids).Error; err != nil {
		applog.Error(ctx, "failed to load recipe owners for statistics", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to load statistics")
		return
	}
	withRecipe := make(map[uint]bool, len(ids))
	for _, id := range ids {
		withRecipe[id] = true
	}

	writeJSON(w, http.StatusOK, summarizeDishes(dishes, withRecipe))
}
