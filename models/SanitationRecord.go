package models

import "time"

const (
	SanitationTemperature = "temperatura"
	SanitationCleaning    = "limpieza"
	SanitationPests       = "plagas"
	SanitationReception   = "recepcion"
	SanitationOther       = "otro"
)

// SanitationKinds lists the accepted sanitation record types.
func SanitationKinds() []string {
	return []string{SanitationTemperature, SanitationCleaning, SanitationPests, SanitationReception, SanitationOther}
}

// SanitationRecord is an entry in the kitchen's health and hygiene log.
type SanitationRecord struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	RecordedAt       time.Time `gorm:"column:fecha;not null;index" json:"fecha"`
	Kind             string    `gorm:"column:tipo;not null;index" json:"tipo"`
	Zone             string    `gorm:"column:zona" json:"zona"`
	Description      string    `gorm:"column:descripcion;type:text" json:"descripcion"`
	Value            *float64  `gorm:"column:valor" json:"valor"`
	Responsible      string    `gorm:"column:responsable" json:"responsable"`
	Compliant        bool      `gorm:"column:conforme;not null" json:"conforme"`
	CorrectiveAction string    `gorm:"column:accion_correctiva;type:text" json:"accion_correctiva"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (SanitationRecord) TableName() string { return "registros_sanidad" }
