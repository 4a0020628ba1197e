package allergens

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"hibococina/models"
)

// CustomTag is a custom allergen reached by a dish.
type CustomTag struct {
	ID   uint   `json:"id"`
	Name string `json:"nombre"`
}

// Resolution is the full allergen set of a dish: the union of every
// ingredient and sub-dish it contains, plus custom tags attached to the dish.
type Resolution struct {
	Flags   models.AllergenFlags `json:"-"`
	Custom  []CustomTag          `json:"personalizados"`
	Sources map[string][]string  `json:"origen"`
}

// Official returns the flagged official codes in label order.
func (r Resolution) Official() []string {
	return r.Flags.Codes()
}

type accumulator struct {
	flags   models.AllergenFlags
	custom  map[uint]string
	sources map[string]map[string]struct{}
	visited map[uint]bool
}

func (a *accumulator) addFlags(flags models.AllergenFlags, source string) {
	a.flags = a.flags.Union(flags)
	for _, code := range flags.Codes() {
		if a.sources[code] == nil {
			a.sources[code] = make(map[string]struct{})
		}
		a.sources[code][source] = struct{}{}
	}
}

func (a *accumulator) addCustom(tags []models.CustomAllergen) {
	for _, tag := range tags {
		a.custom[tag.ID] = tag.Name
	}
}

// Resolve walks the dish's recipe, descending into sub-dishes, and returns
// the union of their allergens. Each dish is visited once, so shared and
// cyclic references terminate. Lines whose target no longer exists are skipped.
func Resolve(ctx context.Context, db *gorm.DB, dishID uint) (Resolution, error) {
	acc := &accumulator{
		custom:  make(map[uint]string),
		sources: make(map[string]map[string]struct{}),
		visited: make(map[uint]bool),
	}

	var root models.Dish
	if err := db.WithContext(ctx).Preload("CustomAllergens").First(&root, dishID).Error; err != nil {
		return Resolution{}, fmt.Errorf("load dish %d: %w", dishID, err)
	}
	acc.addCustom(root.CustomAllergens)

	if err := walk(ctx, db, root.ID, acc); err != nil {
		return Resolution{}, err
	}
	return acc.result(), nil
}

func walk(ctx context.Context, db *gorm.DB, dishID uint, acc *accumulator) error {
	if acc.visited[dishID] {
		return nil
	}
	acc.visited[dishID] = true

	var lines []models.RecipeLine
	err := db.WithContext(ctx).
		Preload("Ingredient.CustomAllergens").
		Preload("SubDish.CustomAllergens").
		Where("plato_id = ?", dishID).
		Order("orden asc, id asc").
		Find(&lines).Error
	if err != nil {
		return fmt.Errorf("load recipe of dish %d: %w", dishID, err)
	}

	for _, line := range lines {
		switch kind, _ := line.Target(); kind {
		case models.TargetIngredient:
			if line.Ingredient == nil {
				continue
			}
			acc.addFlags(line.Ingredient.Allergens, line.Ingredient.Name)
			acc.addCustom(line.Ingredient.CustomAllergens)
		case models.TargetDish:
			if line.SubDish == nil || acc.visited[line.SubDish.ID] {
				continue
			}
			acc.addCustom(line.SubDish.CustomAllergens)
			sub := &accumulator{
				custom:  acc.custom,
				sources: make(map[string]map[string]struct{}),
				visited: acc.visited,
			}
			if err := walk(ctx, db, line.SubDish.ID, sub); err != nil {
				return err
			}
			acc.addFlags(sub.flags, line.SubDish.Name)
		}
	}
	return nil
}

func (a *accumulator) result() Resolution {
	res := Resolution{
		Flags:   a.flags,
		Custom:  make([]CustomTag, 0, len(a.custom)),
		Sources: make(map[string][]string, len(a.sources)),
	}
	for id, name := range a.custom {
		res.Custom = append(res.Custom, CustomTag{ID: id, Name: name})
	}
	sort.Slice(res.Custom, func(i, j int) bool {
		return res.Custom[i].Name < res.Custom[j].Name
	})
	for code, names := range a.sources {
		list := make([]string, 0, len(names))
		for name := range names {
			list = append(list, name)
		}
		sort.Strings(list)
		res.Sources[code] = list
	}
	return res
}

// Apply stores the resolved official flags on the dish and returns the column
// values that persist them.
func Apply(dish *models.Dish, res Resolution) map[string]any {
	dish.Allergens = res.Flags
	return dish.Allergens.Columns()
}
