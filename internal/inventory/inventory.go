// Package inventory separates valid stock from orphaned entries and values
// the stock on hand.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"hibococina/internal/costing"
	"hibococina/models"
)

var (
	// ErrUnknownIngredient is returned when an entry does not reference an existing ingredient.
	ErrUnknownIngredient = errors.New("unknown ingredient")
	// ErrInvalidEntry is returned for entries with unusable quantities or units.
	ErrInvalidEntry = errors.New("invalid inventory entry")
)

// Filter narrows the valid stock listing.
type Filter struct {
	IngredientID   uint
	Query          string
	ExpiringBefore *time.Time
}

// Classification splits the inventory table.
type Classification struct {
	Valid   []models.InventoryEntry
	Orphans []models.InventoryEntry
}

const orphanCondition = "inventario.ingrediente_id IS NULL OR ingredientes.id IS NULL"

// Valid returns entries that reference an existing ingredient, newest first.
func Valid(ctx context.Context, db *gorm.DB, filter Filter) ([]models.InventoryEntry, error) {
	query := db.WithContext(ctx).
		Model(&models.InventoryEntry{}).
		Select("inventario.*").
		Joins("JOIN ingredientes ON ingredientes.id = inventario.ingrediente_id").
		Preload("Ingredient")

	if filter.IngredientID != 0 {
		query = query.Where("inventario.ingrediente_id = ?", filter.IngredientID)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(ingredientes.nombre) LIKE ? OR LOWER(inventario.lote) LIKE ?", like, like)
	}
	if filter.ExpiringBefore != nil {
		query = query.Where("inventario.fecha_caducidad IS NOT NULL AND inventario.fecha_caducidad <= ?", *filter.ExpiringBefore)
	}

	var entries []models.InventoryEntry
	if err := query.Order("inventario.fecha_registro desc, inventario.id desc").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	return entries, nil
}

// Orphans returns entries whose ingredient is missing or was deleted.
func Orphans(ctx context.Context, db *gorm.DB) ([]models.InventoryEntry, error) {
	var entries []models.InventoryEntry
	err := db.WithContext(ctx).
		Model(&models.InventoryEntry{}).
		Select("inventario.*").
		Joins("LEFT JOIN ingredientes ON ingredientes.id = inventario.ingrediente_id").
		Where(orphanCondition).
		Order("inventario.id asc").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list orphaned inventory: %w", err)
	}
	return entries, nil
}

// Classify returns valid and orphaned entries.
func Classify(ctx context.Context, db *gorm.DB) (Classification, error) {
	valid, err := Valid(ctx, db, Filter{})
	if err != nil {
		return Classification{}, err
	}
	orphans, err := Orphans(ctx, db)
	if err != nil {
		return Classification{}, err
	}
	return Classification{Valid: valid, Orphans: orphans}, nil
}

// PurgeOrphans deletes every orphaned entry and returns how many were removed.
func PurgeOrphans(ctx context.Context, db *gorm.DB) (int64, error) {
	existing := db.Model(&models.Ingredient{}).Select("id")
	result := db.WithContext(ctx).
		Where("ingrediente_id IS NULL OR ingrediente_id NOT IN (?)", existing).
		Delete(&models.InventoryEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("purge orphaned inventory: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Validate normalizes entry and checks it references an existing ingredient.
func Validate(ctx context.Context, db *gorm.DB, entry *models.InventoryEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry is nil", ErrInvalidEntry)
	}
	if entry.IngredientID == nil || *entry.IngredientID == 0 {
		return fmt.Errorf("%w: ingrediente_id is required", ErrUnknownIngredient)
	}

	var ingredient models.Ingredient
	if err := db.WithContext(ctx).First(&ingredient, *entry.IngredientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %d", ErrUnknownIngredient, *entry.IngredientID)
		}
		return fmt.Errorf("load ingredient %d: %w", *entry.IngredientID, err)
	}

	if entry.Quantity < 0 {
		return fmt.Errorf("%w: cantidad must not be negative", ErrInvalidEntry)
	}

	entry.Unit = costing.NormalizeUnit(entry.Unit)
	if entry.Unit == "" {
		entry.Unit = costing.NormalizeUnit(ingredient.Unit)
	}
	if entry.Unit == "" {
		entry.Unit = "kg"
	}
	if costing.ClassifyUnit(entry.Unit) == costing.UnitUnknown {
		return fmt.Errorf("%w: unknown unit %q", ErrInvalidEntry, entry.Unit)
	}

	entry.Lot = strings.TrimSpace(entry.Lot)
	if entry.RegisteredAt.IsZero() {
		entry.RegisteredAt = time.Now().UTC()
	}
	return nil
}

// Register validates and stores a new entry.
func Register(ctx context.Context, db *gorm.DB, entry *models.InventoryEntry) error {
	if err := Validate(ctx, db, entry); err != nil {
		return err
	}
	if err := db.WithContext(ctx).Omit("Ingredient").Create(entry).Error; err != nil {
		return fmt.Errorf("store inventory entry: %w", err)
	}
	return nil
}

// StockLine is the valid stock of one ingredient.
type StockLine struct {
	IngredientID uint
	Code         string
	Name         string
	Entries      int
	Kilograms    decimal.Decimal
	CostPerKilo  decimal.Decimal
	Value        decimal.Decimal
	NextExpiry   *time.Time
}

// Stock is the valued summary of the inventory.
type Stock struct {
	Lines    []StockLine
	Total    decimal.Decimal
	Orphans  int
	Warnings []string
}

// Summary aggregates valid stock per ingredient in kilograms and values it at
// the ingredient's cost per kilo. Orphans are counted but never valued.
func Summary(ctx context.Context, db *gorm.DB) (Stock, error) {
	classes, err := Classify(ctx, db)
	if err != nil {
		return Stock{}, err
	}

	byIngredient := make(map[uint]*StockLine)
	stock := Stock{Total: decimal.Zero, Orphans: len(classes.Orphans)}

	for _, entry := range classes.Valid {
		ing := entry.Ingredient
		if ing == nil {
			continue
		}
		line, ok := byIngredient[ing.ID]
		if !ok {
			line = &StockLine{
				IngredientID: ing.ID,
				Code:         ing.Code,
				Name:         ing.Name,
				Kilograms:    decimal.Zero,
				CostPerKilo:  decimal.Zero,
				Value:        decimal.Zero,
			}
			if ing.CostPerKilo != nil {
				line.CostPerKilo = decimal.NewFromFloat(*ing.CostPerKilo)
			}
			byIngredient[ing.ID] = line
		}
		line.Entries++
		if entry.ExpiresAt != nil && (line.NextExpiry == nil || entry.ExpiresAt.Before(*line.NextExpiry)) {
			expiry := *entry.ExpiresAt
			line.NextExpiry = &expiry
		}

		kg, ok := costing.ToKilograms(decimal.NewFromFloat(entry.Quantity), entry.Unit, ing.NetWeight)
		if !ok {
			stock.Warnings = append(stock.Warnings, fmt.Sprintf("entry %d: unknown unit %q", entry.ID, entry.Unit))
			continue
		}
		line.Kilograms = line.Kilograms.Add(kg)
	}

	for _, line := range byIngredient {
		line.Value = line.Kilograms.Mul(line.CostPerKilo)
		stock.Total = stock.Total.Add(line.Value)
		stock.Lines = append(stock.Lines, *line)
	}
	sort.Slice(stock.Lines, func(i, j int) bool {
		return stock.Lines[i].Name < stock.Lines[j].Name
	})
	return stock, nil
}
