package costing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"hibococina/internal/allergens"
	applog "hibococina/internal/log"
	"hibococina/models"
)

// Recalculate recomputes a dish and everything that contains it, in one
// transaction, and returns the dish's fresh breakdown.
func (c *Calculator) Recalculate(ctx context.Context, dishID uint) (Breakdown, error) {
	var out Breakdown
	err := c.transaction(ctx, func(tx *gorm.DB) error {
		results, err := Refresh(ctx, tx, dishID)
		if err != nil {
			return err
		}
		out = results[dishID]
		return nil
	})
	return out, err
}

// RecalculateForIngredient recomputes every dish using the ingredient,
// directly or through a sub-dish. It returns the ids of the refreshed dishes.
func (c *Calculator) RecalculateForIngredient(ctx context.Context, ingredientID uint) ([]uint, error) {
	var refreshed []uint
	err := c.transaction(ctx, func(tx *gorm.DB) error {
		results, err := RefreshIngredient(ctx, tx, ingredientID)
		if err != nil {
			return err
		}
		refreshed = sortedKeys(results)
		return nil
	})
	return refreshed, err
}

// RefreshIngredient is RecalculateForIngredient inside an existing transaction.
func RefreshIngredient(ctx context.Context, tx *gorm.DB, ingredientID uint) (map[uint]Breakdown, error) {
	var direct []uint
	err := tx.WithContext(ctx).Model(&models.RecipeLine{}).
		Where("ingrediente_id = ?", ingredientID).
		Distinct("plato_id").
		Pluck("plato_id", &direct).Error
	if err != nil {
		return nil, fmt.Errorf("find dishes using ingredient %d: %w", ingredientID, err)
	}
	return Refresh(ctx, tx, direct...)
}

// RecalculateAll recomputes every dish, leaves first.
func (c *Calculator) RecalculateAll(ctx context.Context) (int, error) {
	count := 0
	err := c.transaction(ctx, func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.WithContext(ctx).Model(&models.Dish{}).Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("list dishes: %w", err)
		}
		results, err := Refresh(ctx, tx, ids...)
		if err != nil {
			return err
		}
		count = len(results)
		return nil
	})
	return count, err
}

func (c *Calculator) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if c == nil || c.db == nil {
		return gorm.ErrInvalidDB
	}
	return c.db.WithContext(ctx).Transaction(fn)
}

// Refresh recomputes the given dishes and all their dependents inside tx,
// persisting each snapshot. Dishes are refreshed after their sub-dishes so
// every dish reads current sub-dish costs.
func Refresh(ctx context.Context, tx *gorm.DB, roots ...uint) (map[uint]Breakdown, error) {
	results := make(map[uint]Breakdown)
	if len(roots) == 0 {
		return results, nil
	}

	set, err := closure(ctx, tx, roots)
	if err != nil {
		return nil, err
	}
	order, err := dependencyOrder(ctx, tx, set)
	if err != nil {
		return nil, err
	}

	isRoot := make(map[uint]bool, len(roots))
	for _, id := range roots {
		isRoot[id] = true
	}

	for _, id := range order {
		b, err := refreshOne(ctx, tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) && !isRoot[id] {
				applog.Warn(ctx, "dependent dish disappeared during recalculation", "dish_id", id)
				continue
			}
			return nil, err
		}
		results[id] = b
	}
	return results, nil
}

func refreshOne(ctx context.Context, tx *gorm.DB, dishID uint) (Breakdown, error) {
	b, err := compute(ctx, tx, dishID)
	if err != nil {
		return Breakdown{}, err
	}
	res, err := allergens.Resolve(ctx, tx, dishID)
	if err != nil {
		return Breakdown{}, err
	}

	dish := models.Dish{ID: dishID}
	updates := allergens.Apply(&dish, res)
	updates["coste_escandallo"] = b.Total.Round(6).InexactFloat64()
	updates["coste_racion"] = b.CostPerPortion.Round(6).InexactFloat64()
	updates["costes_calculados_en"] = time.Now().UTC()

	if err := tx.WithContext(ctx).Model(&dish).Updates(updates).Error; err != nil {
		return Breakdown{}, fmt.Errorf("store costs of dish %d: %w", dishID, err)
	}
	return b, nil
}

// closure returns roots plus every dish that contains one of them, at any depth.
func closure(ctx context.Context, tx *gorm.DB, roots []uint) ([]uint, error) {
	visited := make(map[uint]bool, len(roots))
	var frontier []uint
	for _, id := range roots {
		if !visited[id] {
			visited[id] = true
			frontier = append(frontier, id)
		}
	}

	for len(frontier) > 0 {
		var parents []uint
		err := tx.WithContext(ctx).Model(&models.RecipeLine{}).
			Where("subplato_id IN ?", frontier).
			Distinct("plato_id").
			Pluck("plato_id", &parents).Error
		if err != nil {
			return nil, fmt.Errorf("find dependent dishes: %w", err)
		}

		next := make([]uint, 0, len(parents))
		for _, id := range parents {
			if !visited[id] {
				visited[id] = true
				next = append(next, id)
			}
		}
		frontier = next
	}
	return sortedKeys(visited), nil
}

type dependency struct {
	DishID    uint `gorm:"column:plato_id"`
	SubDishID uint `gorm:"column:subplato_id"`
}

// dependencyOrder sorts set so each dish comes after the sub-dishes it uses.
// Dishes caught in a cycle are appended last in id order.
func dependencyOrder(ctx context.Context, tx *gorm.DB, set []uint) ([]uint, error) {
	var edges []dependency
	err := tx.WithContext(ctx).Model(&models.RecipeLine{}).
		Select("plato_id, subplato_id").
		Where("subplato_id IS NOT NULL AND plato_id IN ?", set).
		Scan(&edges).Error
	if err != nil {
		return nil, fmt.Errorf("load sub-dish references: %w", err)
	}

	inSet := make(map[uint]bool, len(set))
	for _, id := range set {
		inSet[id] = true
	}

	pending := make(map[uint]map[uint]bool, len(set))
	users := make(map[uint][]uint)
	for _, e := range edges {
		if !inSet[e.SubDishID] || e.SubDishID == e.DishID {
			continue
		}
		if pending[e.DishID] == nil {
			pending[e.DishID] = make(map[uint]bool)
		}
		if !pending[e.DishID][e.SubDishID] {
			pending[e.DishID][e.SubDishID] = true
			users[e.SubDishID] = append(users[e.SubDishID], e.DishID)
		}
	}

	order := make([]uint, 0, len(set))
	done := make(map[uint]bool, len(set))
	var queue []uint
	for _, id := range set {
		if len(pending[id]) == 0 {
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		done[id] = true
		for _, user := range users[id] {
			delete(pending[user], id)
			if len(pending[user]) == 0 && !done[user] {
				queue = append(queue, user)
			}
		}
	}

	if len(order) < len(set) {
		var cyclic []uint
		for _, id := range set {
			if !done[id] {
				cyclic = append(cyclic, id)
			}
		}
		applog.Warn(ctx, "recipe cycle found during recalculation", "dish_ids", cyclic)
		order = append(order, cyclic...)
	}
	return order, nil
}

// DetectCycle returns ErrCycle when giving dishID the sub-dishes subDishIDs
// would make it contain itself.
func DetectCycle(ctx context.Context, tx *gorm.DB, dishID uint, subDishIDs []uint) error {
	visited := make(map[uint]bool, len(subDishIDs))
	var frontier []uint
	for _, id := range subDishIDs {
		if id == dishID {
			return fmt.Errorf("%w: dish %d cannot contain itself", ErrCycle, dishID)
		}
		if !visited[id] {
			visited[id] = true
			frontier = append(frontier, id)
		}
	}

	for len(frontier) > 0 {
		var children []uint
		err := tx.WithContext(ctx).Model(&models.RecipeLine{}).
			Where("subplato_id IS NOT NULL AND plato_id IN ?", frontier).
			Distinct("subplato_id").
			Pluck("subplato_id", &children).Error
		if err != nil {
			return fmt.Errorf("walk sub-dishes: %w", err)
		}

		next := make([]uint, 0, len(children))
		for _, id := range children {
			if id == dishID {
				return fmt.Errorf("%w: dish %d is already contained in one of its sub-dishes", ErrCycle, dishID)
			}
			if !visited[id] {
				visited[id] = true
				next = append(next, id)
			}
		}
		frontier = next
	}
	return nil
}

func sortedKeys[V any](m map[uint]V) []uint {
	keys := make([]uint, 0, len(m))
	for id := range m {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
