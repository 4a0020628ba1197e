package models

import "time"

// InventoryEntry records a quantity of an ingredient in stock.
type InventoryEntry struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	IngredientID *uint       `gorm:"column:ingrediente_id;index" json:"ingrediente_id"`
	Ingredient   *Ingredient `gorm:"foreignKey:IngredientID" json:"ingrediente,omitempty"`
	Quantity     float64     `gorm:"column:cantidad;not null" json:"cantidad"`
	Unit         string      `gorm:"column:unidad;size:8" json:"unidad"`
	Lot          string      `gorm:"column:lote" json:"lote"`
	RegisteredAt time.Time   `gorm:"column:fecha_registro;not null;index" json:"fecha_registro"`
	ExpiresAt    *time.Time  `gorm:"column:fecha_caducidad" json:"fecha_caducidad"`
	Notes        string      `gorm:"column:notas;type:text" json:"notas"`
	OrderLineID  *uint       `gorm:"column:pedido_linea_id;index" json:"pedido_linea_id,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func (InventoryEntry) TableName() string { return "inventario" }
