// Package costing computes dish costs from their recipe lines and keeps the
// cached cost and allergen snapshot of every dish current.
package costing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	applog "hibococina/internal/log"
	"hibococina/models"
)

var (
	// ErrCycle is returned when a recipe would make a dish contain itself.
	ErrCycle = errors.New("recipe cycle")
	// ErrInvalidLine is returned for recipe lines that cannot be stored.
	ErrInvalidLine = errors.New("invalid recipe line")
)

// LineCost is the contribution of one recipe line.
type LineCost struct {
	LineID      uint
	Kind        models.TargetKind
	TargetID    uint
	Name        string
	Quantity    decimal.Decimal
	Unit        string
	Kilograms   decimal.Decimal
	CostPerKilo decimal.Decimal
	Cost        decimal.Decimal
	Warning     string
}

// Breakdown is the computed cost of a dish.
type Breakdown struct {
	DishID         uint
	DishName       string
	Lines          []LineCost
	Total          decimal.Decimal
	PortionsWeight decimal.Decimal
	CostPerPortion decimal.Decimal
	Warnings       []string
}

// Calculator computes and persists dish costs.
type Calculator struct {
	db *gorm.DB
}

// NewCalculator returns a Calculator backed by db.
func NewCalculator(db *gorm.DB) *Calculator {
	return &Calculator{db: db}
}

// Compute returns the cost breakdown of a dish without writing anything.
func (c *Calculator) Compute(ctx context.Context, dishID uint) (Breakdown, error) {
	if c == nil || c.db == nil {
		return Breakdown{}, gorm.ErrInvalidDB
	}
	return compute(ctx, c.db, dishID)
}

func compute(ctx context.Context, tx *gorm.DB, dishID uint) (Breakdown, error) {
	var dish models.Dish
	if err := tx.WithContext(ctx).First(&dish, dishID).Error; err != nil {
		return Breakdown{}, fmt.Errorf("load dish %d: %w", dishID, err)
	}

	var lines []models.RecipeLine
	err := tx.WithContext(ctx).
		Preload("Ingredient").
		Preload("SubDish").
		Where("plato_id = ?", dishID).
		Order("orden asc, id asc").
		Find(&lines).Error
	if err != nil {
		return Breakdown{}, fmt.Errorf("load recipe of dish %d: %w", dishID, err)
	}

	b := Breakdown{
		DishID:         dish.ID,
		DishName:       dish.Name,
		Lines:          make([]LineCost, 0, len(lines)),
		Total:          decimal.Zero,
		PortionsWeight: decimal.NewFromFloat(dish.PortionsWeight),
	}
	for _, line := range lines {
		lc := costLine(dish.ID, line)
		if lc.Warning != "" {
			b.Warnings = append(b.Warnings, fmt.Sprintf("line %d: %s", line.ID, lc.Warning))
			applog.Warn(ctx, "recipe line priced at zero", "dish_id", dish.ID, "line_id", line.ID, "reason", lc.Warning)
		}
		b.Total = b.Total.Add(lc.Cost)
		b.Lines = append(b.Lines, lc)
	}
	b.CostPerPortion = DishCostPerKilo(b.Total, b.PortionsWeight)
	return b, nil
}

func (lc *LineCost) addWarning(msg string) {
	if lc.Warning == "" {
		lc.Warning = msg
		return
	}
	lc.Warning += "; " + msg
}

func costLine(dishID uint, line models.RecipeLine) LineCost {
	kind, targetID := line.Target()
	lc := LineCost{
		LineID:      line.ID,
		Kind:        kind,
		TargetID:    targetID,
		Quantity:    decimal.NewFromFloat(line.Quantity),
		Unit:        line.Unit,
		Kilograms:   decimal.Zero,
		CostPerKilo: decimal.Zero,
		Cost:        decimal.Zero,
	}

	var unitWeight *float64
	switch kind {
	case models.TargetIngredient:
		if line.Ingredient == nil {
			lc.Warning = fmt.Sprintf("ingredient %d does not exist", targetID)
			return lc
		}
		lc.Name = line.Ingredient.Name
		unitWeight = line.Ingredient.NetWeight
		if line.Ingredient.CostPerKilo == nil {
			lc.Warning = "ingredient has no cost per kilo"
		} else {
			lc.CostPerKilo = decimal.NewFromFloat(*line.Ingredient.CostPerKilo)
		}
	case models.TargetDish:
		if line.SubDish == nil {
			lc.Warning = fmt.Sprintf("sub-dish %d does not exist", targetID)
			return lc
		}
		lc.Name = line.SubDish.Name
		if line.SubDish.ID == dishID {
			lc.Warning = "dish references itself"
			return lc
		}
		weight := line.SubDish.PortionsWeight
		unitWeight = &weight
		if weight <= 0 {
			lc.Warning = "sub-dish has no portions weight"
		}
		lc.CostPerKilo = DishCostPerKilo(decimal.NewFromFloat(line.SubDish.RecipeCost), decimal.NewFromFloat(weight))
	case models.TargetAmbiguous:
		lc.Warning = "line references both an ingredient and a sub-dish"
		return lc
	default:
		lc.Warning = "line has no target"
		return lc
	}

	kg, ok := ToKilograms(lc.Quantity, line.Unit, unitWeight)
	if !ok {
		lc.addWarning(fmt.Sprintf("unknown unit %q", line.Unit))
		return lc
	}
	if ClassifyUnit(line.Unit) == UnitCount && unitWeight == nil {
		lc.addWarning("unit count without net weight")
	}
	lc.Kilograms = kg
	lc.Cost = kg.Mul(lc.CostPerKilo)
	return lc
}
