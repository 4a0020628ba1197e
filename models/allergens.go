package models

import (
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Official EU allergen codes, in the order they are listed on labels.
const (
	AllergenGluten       = "gluten"
	AllergenCrustaceans  = "crustaceos"
	AllergenEggs         = "huevos"
	AllergenFish         = "pescado"
	AllergenPeanuts      = "cacahuetes"
	AllergenSoy          = "soja"
	AllergenDairy        = "lacteos"
	AllergenTreeNuts     = "frutos_cascara"
	AllergenCelery       = "apio"
	AllergenMustard      = "mostaza"
	AllergenSesame       = "sesamo"
	AllergenSulphites    = "sulfitos"
	AllergenLupin        = "altramuces"
	AllergenMolluscs     = "moluscos"
	officialAllergenSize = 14
)

var officialAllergenCodes = [officialAllergenSize]string{
	AllergenGluten,
	AllergenCrustaceans,
	AllergenEggs,
	AllergenFish,
	AllergenPeanuts,
	AllergenSoy,
	AllergenDairy,
	AllergenTreeNuts,
	AllergenCelery,
	AllergenMustard,
	AllergenSesame,
	AllergenSulphites,
	AllergenLupin,
	AllergenMolluscs,
}

// OfficialAllergenCodes returns the fixed catalogue of official allergen codes.
func OfficialAllergenCodes() []string {
	out := make([]string, len(officialAllergenCodes))
	copy(out, officialAllergenCodes[:])
	return out
}

// IsOfficialAllergen reports whether code names one of the 14 official allergens.
func IsOfficialAllergen(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, candidate := range officialAllergenCodes {
		if candidate == code {
			return true
		}
	}
	return false
}

// AllergenFlags is embedded in ingredients and dishes as one boolean column per
// official allergen.
type AllergenFlags struct {
	Gluten        bool `gorm:"column:gluten;not null;default:false" json:"gluten"`
	Crustaceos    bool `gorm:"column:crustaceos;not null;default:false" json:"crustaceos"`
	Huevos        bool `gorm:"column:huevos;not null;default:false" json:"huevos"`
	Pescado       bool `gorm:"column:pescado;not null;default:false" json:"pescado"`
	Cacahuetes    bool `gorm:"column:cacahuetes;not null;default:false" json:"cacahuetes"`
	Soja          bool `gorm:"column:soja;not null;default:false" json:"soja"`
	Lacteos       bool `gorm:"column:lacteos;not null;default:false" json:"lacteos"`
	FrutosCascara bool `gorm:"column:frutos_cascara;not null;default:false" json:"frutos_cascara"`
	Apio          bool `gorm:"column:apio;not null;default:false" json:"apio"`
	Mostaza       bool `gorm:"column:mostaza;not null;default:false" json:"mostaza"`
	Sesamo        bool `gorm:"column:sesamo;not null;default:false" json:"sesamo"`
	Sulfitos      bool `gorm:"column:sulfitos;not null;default:false" json:"sulfitos"`
	Altramuces    bool `gorm:"column:altramuces;not null;default:false" json:"altramuces"`
	Moluscos      bool `gorm:"column:moluscos;not null;default:false" json:"moluscos"`
}

func (f *AllergenFlags) field(code string) *bool {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case AllergenGluten:
		return &f.Gluten
	case AllergenCrustaceans:
		return &f.Crustaceos
	case AllergenEggs:
		return &f.Huevos
	case AllergenFish:
		return &f.Pescado
	case AllergenPeanuts:
		return &f.Cacahuetes
	case AllergenSoy:
		return &f.Soja
	case AllergenDairy:
		return &f.Lacteos
	case AllergenTreeNuts:
		return &f.FrutosCascara
	case AllergenCelery:
		return &f.Apio
	case AllergenMustard:
		return &f.Mostaza
	case AllergenSesame:
		return &f.Sesamo
	case AllergenSulphites:
		return &f.Sulfitos
	case AllergenLupin:
		return &f.Altramuces
	case AllergenMolluscs:
		return &f.Moluscos
	}
	return nil
}

// Has reports whether the allergen with the given code is flagged.
func (f AllergenFlags) Has(code string) bool {
	if p := f.field(code); p != nil {
		return *p
	}
	return false
}

// Set flags or clears an allergen. Unknown codes are ignored and reported as false.
func (f *AllergenFlags) Set(code string, value bool) bool {
	p := f.field(code)
	if p == nil {
		return false
	}
	*p = value
	return true
}

// Codes returns the flagged codes in catalogue order.
func (f AllergenFlags) Codes() []string {
	codes := make([]string, 0, officialAllergenSize)
	for _, code := range officialAllergenCodes {
		if f.Has(code) {
			codes = append(codes, code)
		}
	}
	return codes
}

// Union returns the flags set in either f or other.
func (f AllergenFlags) Union(other AllergenFlags) AllergenFlags {
	out := f
	for _, code := range other.Codes() {
		out.Set(code, true)
	}
	return out
}

// Columns maps each column name to its value, for use with gorm Updates.
func (f AllergenFlags) Columns() map[string]any {
	cols := make(map[string]any, officialAllergenSize)
	for _, code := range officialAllergenCodes {
		cols["alergeno_"+code] = f.Has(code)
	}
	return cols
}

// AllergenFlagsFromCodes builds flags from a list of codes. Unknown codes are
// returned separately so callers can reject them.
func AllergenFlagsFromCodes(codes []string) (AllergenFlags, []string) {
	var flags AllergenFlags
	var unknown []string
	for _, code := range codes {
		trimmed := strings.TrimSpace(code)
		if trimmed == "" {
			continue
		}
		if !flags.Set(trimmed, true) {
			unknown = append(unknown, trimmed)
		}
	}
	sort.Strings(unknown)
	return flags, unknown
}

// AllergenDefinition is one entry of the official allergen catalogue.
type AllergenDefinition struct {
	Code     string                      `gorm:"column:codigo;primaryKey;size:32" json:"codigo"`
	Name     string                      `gorm:"column:nombre;not null" json:"nombre"`
	Keywords datatypes.JSONSlice[string] `gorm:"column:palabras_clave" json:"palabras_clave"`
}

func (AllergenDefinition) TableName() string { return "alergenos_oficiales" }

// CustomAllergen is a user-defined allergen tag linked to ingredients and dishes.
type CustomAllergen struct {
	ID          uint                        `gorm:"primaryKey" json:"id"`
	Name        string                      `gorm:"column:nombre;uniqueIndex;not null" json:"nombre"`
	Description string                      `gorm:"column:descripcion;type:text" json:"descripcion"`
	Keywords    datatypes.JSONSlice[string] `gorm:"column:palabras_clave" json:"palabras_clave"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

func (CustomAllergen) TableName() string { return "alergenos_personalizados" }
