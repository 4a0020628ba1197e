package costing

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"hibococina/models"
)

// Issue kinds reported by Integrity.
const (
	IssueMissingDish       = "plato_inexistente"
	IssueMissingIngredient = "ingrediente_inexistente"
	IssueMissingSubDish    = "subplato_inexistente"
	IssueAmbiguousTarget   = "referencia_ambigua"
	IssueNoTarget          = "sin_referencia"
	IssueUnknownUnit       = "unidad_desconocida"
)

// Issue is a recipe line that cannot be priced correctly.
type Issue struct {
	Kind     string `json:"tipo"`
	LineID   uint   `json:"escandallo_id"`
	DishID   uint   `json:"plato_id"`
	TargetID uint   `json:"referencia_id,omitempty"`
	Detail   string `json:"detalle"`
}

// Integrity lists recipe lines with dangling or malformed references.
func (c *Calculator) Integrity(ctx context.Context) ([]Issue, error) {
	if c == nil || c.db == nil {
		return nil, fmt.Errorf("database handle is nil")
	}
	db := c.db.WithContext(ctx)

	var lines []models.RecipeLine
	if err := db.Order("plato_id asc, orden asc, id asc").Find(&lines).Error; err != nil {
		return nil, fmt.Errorf("load recipe lines: %w", err)
	}

	dishes, err := idSet(db.Model(&models.Dish{}))
	if err != nil {
		return nil, fmt.Errorf("load dish ids: %w", err)
	}
	ingredients, err := idSet(db.Model(&models.Ingredient{}))
	if err != nil {
		return nil, fmt.Errorf("load ingredient ids: %w", err)
	}

	issues := make([]Issue, 0)
	for _, line := range lines {
		issue := Issue{LineID: line.ID, DishID: line.DishID}
		if !dishes[line.DishID] {
			issue.Kind = IssueMissingDish
			issue.Detail = fmt.Sprintf("line belongs to dish %d which does not exist", line.DishID)
			issues = append(issues, issue)
			continue
		}

		kind, id := line.Target()
		issue.TargetID = id
		switch {
		case kind == models.TargetAmbiguous:
			issue.Kind = IssueAmbiguousTarget
			issue.Detail = "line references both an ingredient and a sub-dish"
		case kind == models.TargetNone:
			issue.Kind = IssueNoTarget
			issue.Detail = "line references neither an ingredient nor a sub-dish"
		case kind == models.TargetIngredient && !ingredients[id]:
			issue.Kind = IssueMissingIngredient
			issue.Detail = fmt.Sprintf("ingredient %d does not exist", id)
		case kind == models.TargetDish && !dishes[id]:
			issue.Kind = IssueMissingSubDish
			issue.Detail = fmt.Sprintf("sub-dish %d does not exist", id)
		case ClassifyUnit(line.Unit) == UnitUnknown:
			issue.Kind = IssueUnknownUnit
			issue.Detail = fmt.Sprintf("unknown unit %q", line.Unit)
		default:
			continue
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

func idSet(query *gorm.DB) (map[uint]bool, error) {
	var ids []uint
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	set := make(map[uint]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}
