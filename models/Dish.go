package models

import "time"

// Dish is a menu item. Its cost and allergen fields are derived from its
// recipe lines and are only written by the recalculation path.
type Dish struct {
	ID              uint             `gorm:"primaryKey" json:"id"`
	Code            string           `gorm:"column:codigo;uniqueIndex;not null" json:"codigo"`
	Name            string           `gorm:"column:nombre;not null;index" json:"nombre"`
	Category        string           `gorm:"column:categoria;index" json:"categoria"`
	SalePrice       *float64         `gorm:"column:pvp" json:"pvp"`
	RecipeCost      float64          `gorm:"column:coste_escandallo;not null;default:0" json:"coste_escandallo"`
	PortionCost     float64          `gorm:"column:coste_racion;not null;default:0" json:"coste_racion"`
	PortionsWeight  float64          `gorm:"column:peso_raciones;not null;default:0" json:"peso_raciones"`
	CostsComputedAt *time.Time       `gorm:"column:costes_calculados_en" json:"costes_calculados_en"`
	Allergens       AllergenFlags    `gorm:"embedded;embeddedPrefix:alergeno_" json:"alergenos"`
	CustomAllergens []CustomAllergen `gorm:"many2many:plato_alergenos_personalizados;" json:"alergenos_personalizados"`
	RecipeLines     []RecipeLine     `gorm:"foreignKey:DishID" json:"escandallo,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func (Dish) TableName() string { return "platos" }

// CostPerKilo is the dish's cost when used as a component of another dish.
func (d Dish) CostPerKilo() float64 {
	if d.PortionsWeight <= 0 {
		return 0
	}
	return d.RecipeCost / d.PortionsWeight
}
