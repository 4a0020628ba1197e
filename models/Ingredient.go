package models

import "time"

// Ingredient is a raw purchasable item used in recipes.
type Ingredient struct {
	ID              uint             `gorm:"primaryKey" json:"id"`
	Code            string           `gorm:"column:codigo;uniqueIndex;not null" json:"codigo"`
	Name            string           `gorm:"column:nombre;not null;index" json:"nombre"`
	CostPerKilo     *float64         `gorm:"column:coste_kilo" json:"coste_kilo"`
	NetWeight       *float64         `gorm:"column:peso_neto" json:"peso_neto"` // kg per package, for unit-count lines
	Unit            string           `gorm:"column:unidad;size:8" json:"unidad"`
	Family          string           `gorm:"column:familia;index" json:"familia"`
	Supplier        string           `gorm:"column:proveedor;index" json:"proveedor"`
	Allergens       AllergenFlags    `gorm:"embedded;embeddedPrefix:alergeno_" json:"alergenos"`
	CustomAllergens []CustomAllergen `gorm:"many2many:ingrediente_alergenos_personalizados;" json:"alergenos_personalizados"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func (Ingredient) TableName() string { return "ingredientes" }
