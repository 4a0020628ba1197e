package models

import "time"

// TargetKind discriminates what a recipe line points at.
type TargetKind string

const (
	TargetNone       TargetKind = ""
	TargetIngredient TargetKind = "ingrediente"
	TargetDish       TargetKind = "plato"
	TargetAmbiguous  TargetKind = "ambiguo"
)

// RecipeLine is one row of a dish's escandallo.
type RecipeLine struct {
	ID       uint    `gorm:"primaryKey" json:"id"`
	DishID   uint    `gorm:"column:plato_id;not null;index" json:"plato_id"`
	Quantity float64 `gorm:"column:cantidad;not null" json:"cantidad"`
	Unit     string  `gorm:"column:unidad;not null;size:8" json:"unidad"`
	Position int     `gorm:"column:orden;not null;default:0" json:"orden"`

	// Exactly one of these is set.
	IngredientID *uint `gorm:"column:ingrediente_id;index" json:"ingrediente_id,omitempty"`
	SubDishID    *uint `gorm:"column:subplato_id;index" json:"subplato_id,omitempty"`

	Ingredient *Ingredient `gorm:"foreignKey:IngredientID" json:"ingrediente,omitempty"`
	SubDish    *Dish       `gorm:"foreignKey:SubDishID" json:"subplato,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (RecipeLine) TableName() string { return "escandallos" }

// Target reports which variant the line references and its id.
func (l RecipeLine) Target() (TargetKind, uint) {
	hasIngredient := l.IngredientID != nil && *l.IngredientID != 0
	hasDish := l.SubDishID != nil && *l.SubDishID != 0
	switch {
	case hasIngredient && hasDish:
		return TargetAmbiguous, 0
	case hasIngredient:
		return TargetIngredient, *l.IngredientID
	case hasDish:
		return TargetDish, *l.SubDishID
	}
	return TargetNone, 0
}
