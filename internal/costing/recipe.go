package costing

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"hibococina/models"
)

// ReplaceRecipe swaps a dish's recipe lines for lines and recalculates the
// dish and its dependents in the same transaction. Lines must reference an
// existing ingredient or sub-dish, use a known unit, and must not introduce a
// cycle.
func (c *Calculator) ReplaceRecipe(ctx context.Context, dishID uint, lines []models.RecipeLine) (Breakdown, error) {
	var out Breakdown
	err := c.transaction(ctx, func(tx *gorm.DB) error {
		var dish models.Dish
		if err := tx.WithContext(ctx).First(&dish, dishID).Error; err != nil {
			return fmt.Errorf("load dish %d: %w", dishID, err)
		}

		subDishes, err := validateLines(ctx, tx, lines)
		if err != nil {
			return err
		}
		if err := DetectCycle(ctx, tx, dishID, subDishes); err != nil {
			return err
		}

		if err := tx.WithContext(ctx).Where("plato_id = ?", dishID).Delete(&models.RecipeLine{}).Error; err != nil {
			return fmt.Errorf("delete recipe of dish %d: %w", dishID, err)
		}

		if len(lines) > 0 {
			rows := make([]models.RecipeLine, len(lines))
			for i, line := range lines {
				rows[i] = models.RecipeLine{
					DishID:       dishID,
					Quantity:     line.Quantity,
					Unit:         NormalizeUnit(line.Unit),
					Position:     i + 1,
					IngredientID: line.IngredientID,
					SubDishID:    line.SubDishID,
				}
			}
			if err := tx.WithContext(ctx).Omit("Ingredient", "SubDish").Create(&rows).Error; err != nil {
				return fmt.Errorf("store recipe of dish %d: %w", dishID, err)
			}
		}

		results, err := Refresh(ctx, tx, dishID)
		if err != nil {
			return err
		}
		out = results[dishID]
		return nil
	})
	return out, err
}

func validateLines(ctx context.Context, tx *gorm.DB, lines []models.RecipeLine) ([]uint, error) {
	var subDishes []uint
	for i, line := range lines {
		n := i + 1
		if line.Quantity < 0 {
			return nil, fmt.Errorf("%w: line %d has a negative quantity", ErrInvalidLine, n)
		}
		if ClassifyUnit(line.Unit) == UnitUnknown {
			return nil, fmt.Errorf("%w: line %d has unknown unit %q", ErrInvalidLine, n, line.Unit)
		}

		kind, id := line.Target()
		var count int64
		switch kind {
		case models.TargetIngredient:
			if err := tx.WithContext(ctx).Model(&models.Ingredient{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return nil, err
			}
			if count == 0 {
				return nil, fmt.Errorf("%w: line %d references unknown ingredient %d", ErrInvalidLine, n, id)
			}
		case models.TargetDish:
			if err := tx.WithContext(ctx).Model(&models.Dish{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return nil, err
			}
			if count == 0 {
				return nil, fmt.Errorf("%w: line %d references unknown sub-dish %d", ErrInvalidLine, n, id)
			}
			subDishes = append(subDishes, id)
		case models.TargetAmbiguous:
			return nil, fmt.Errorf("%w: line %d references both an ingredient and a sub-dish", ErrInvalidLine, n)
		default:
			return nil, fmt.Errorf("%w: line %d references neither an ingredient nor a sub-dish", ErrInvalidLine, n)
		}
	}
	return subDishes, nil
}
