package models

import "time"

const (
	OrderPending   = "pendiente"
	OrderSent      = "enviado"
	OrderReceived  = "recibido"
	OrderCancelled = "cancelado"
)

// ValidOrderStatus reports whether status is one of the known order states.
func ValidOrderStatus(status string) bool {
	switch status {
	case OrderPending, OrderSent, OrderReceived, OrderCancelled:
		return true
	}
	return false
}

// Order is a purchase order sent to a supplier.
type Order struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	Reference  string      `gorm:"column:referencia;uniqueIndex;not null" json:"referencia"`
	Supplier   string      `gorm:"column:proveedor;not null;index" json:"proveedor"`
	Status     string      `gorm:"column:estado;not null;default:pendiente;index" json:"estado"`
	OrderedAt  time.Time   `gorm:"column:fecha_pedido;not null" json:"fecha_pedido"`
	DeliveryAt *time.Time  `gorm:"column:fecha_entrega" json:"fecha_entrega"`
	ReceivedAt *time.Time  `gorm:"column:fecha_recepcion" json:"fecha_recepcion"`
	Notes      string      `gorm:"column:notas;type:text" json:"notas"`
	Lines      []OrderLine `gorm:"foreignKey:OrderID" json:"lineas"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

func (Order) TableName() string { return "pedidos" }

// OrderLine is one ingredient requested in an order.
type OrderLine struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	OrderID      uint        `gorm:"column:pedido_id;not null;index" json:"pedido_id"`
	IngredientID uint        `gorm:"column:ingrediente_id;not null;index" json:"ingrediente_id"`
	Ingredient   *Ingredient `gorm:"foreignKey:IngredientID" json:"ingrediente,omitempty"`
	Quantity     float64     `gorm:"column:cantidad;not null" json:"cantidad"`
	Unit         string      `gorm:"column:unidad;not null;size:8" json:"unidad"`
	UnitPrice    float64     `gorm:"column:precio_unitario;not null;default:0" json:"precio_unitario"`
}

func (OrderLine) TableName() string { return "pedido_lineas" }
