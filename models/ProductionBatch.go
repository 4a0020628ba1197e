package models

import "time"

// ProductionBatch records a quantity of a dish prepared in the kitchen,
// together with a cost snapshot taken at production time.
type ProductionBatch struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	DishID      uint       `gorm:"column:plato_id;not null;index" json:"plato_id"`
	Dish        *Dish      `gorm:"foreignKey:DishID" json:"plato,omitempty"`
	Quantity    float64    `gorm:"column:cantidad;not null" json:"cantidad"`
	Lot         string     `gorm:"column:lote;uniqueIndex;not null" json:"lote"`
	ProducedAt  time.Time  `gorm:"column:fecha;not null;index" json:"fecha"`
	ExpiresAt   *time.Time `gorm:"column:fecha_caducidad" json:"fecha_caducidad"`
	CostPerKilo float64    `gorm:"column:coste_kilo;not null;default:0" json:"coste_kilo"`
	TotalCost   float64    `gorm:"column:coste_total;not null;default:0" json:"coste_total"`
	Responsible string     `gorm:"column:responsable" json:"responsable"`
	Notes       string     `gorm:"column:notas;type:text" json:"notas"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (ProductionBatch) TableName() string { return "producciones" }
