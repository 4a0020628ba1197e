package costing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// UnitKind classifies a recipe unit.
type UnitKind int

const (
	UnitUnknown UnitKind = iota
	UnitMass
	UnitCount
)

var (
	thousandth = decimal.New(1, -3)
	hundredth  = decimal.New(1, -2)
	tenth      = decimal.New(1, -1)
)

// mass and volume units are treated alike: one litre weighs one kilogram.
var massFactors = map[string]decimal.Decimal{
	"kg":     decimal.NewFromInt(1),
	"kgs":    decimal.NewFromInt(1),
	"kilo":   decimal.NewFromInt(1),
	"kilos":  decimal.NewFromInt(1),
	"l":      decimal.NewFromInt(1),
	"lt":     decimal.NewFromInt(1),
	"litro":  decimal.NewFromInt(1),
	"litros": decimal.NewFromInt(1),
	"g":      thousandth,
	"gr":     thousandth,
	"grs":    thousandth,
	"gramos": thousandth,
	"ml":     thousandth,
	"cl":     hundredth,
	"dl":     tenth,
}

var countUnits = map[string]struct{}{
	"ud":       {},
	"uds":      {},
	"un":       {},
	"u":        {},
	"unidad":   {},
	"unidades": {},
}

// NormalizeUnit trims and lowercases a unit, dropping a trailing dot ("ud.").
func NormalizeUnit(unit string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(unit)), ".")
}

// ClassifyUnit reports the unit's kind.
func ClassifyUnit(unit string) UnitKind {
	unit = NormalizeUnit(unit)
	if _, ok := massFactors[unit]; ok {
		return UnitMass
	}
	if _, ok := countUnits[unit]; ok {
		return UnitCount
	}
	return UnitUnknown
}

// ToKilograms converts a recipe quantity to kilograms. Count units multiply by
// unitWeight, the weight in kilograms of one unit; a nil weight yields 0.
// ok is false only for an unknown unit, which also yields 0.
func ToKilograms(quantity decimal.Decimal, unit string, unitWeight *float64) (decimal.Decimal, bool) {
	unit = NormalizeUnit(unit)
	if factor, ok := massFactors[unit]; ok {
		return quantity.Mul(factor), true
	}
	if _, ok := countUnits[unit]; ok {
		if unitWeight == nil {
			return decimal.Zero, true
		}
		return quantity.Mul(decimal.NewFromFloat(*unitWeight)), true
	}
	return decimal.Zero, false
}

// DishCostPerKilo is the cost of one kilogram of a dish used as a component.
func DishCostPerKilo(recipeCost, portionsWeight decimal.Decimal) decimal.Decimal {
	if !portionsWeight.IsPositive() {
		return decimal.Zero
	}
	return recipeCost.Div(portionsWeight)
}
