package allergens

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hibococina/models"
)

// Official is the fixed catalogue of the 14 EU allergens with the default
// keywords used to propose flags for new ingredients.
var Official = []models.AllergenDefinition{
	{Code: models.AllergenGluten, Name: "Gluten", Keywords: keywords("trigo", "harina", "pan", "cebada", "centeno", "avena", "espelta", "kamut", "semola", "cuscus", "pasta", "rebozado", "pan rallado", "cerveza")},
	{Code: models.AllergenCrustaceans, Name: "Crustáceos", Keywords: keywords("gamba", "langostino", "cigala", "cangrejo", "bogavante", "langosta", "carabinero", "centollo", "necora", "quisquilla")},
	{Code: models.AllergenEggs, Name: "Huevos", Keywords: keywords("huevo", "yema", "clara", "mayonesa", "alioli", "merengue", "ovoproducto")},
	{Code: models.AllergenFish, Name: "Pescado", Keywords: keywords("pescado", "merluza", "bacalao", "atun", "salmon", "anchoa", "boqueron", "sardina", "rape", "lubina", "dorada", "bonito", "caldo de pescado")},
	{Code: models.AllergenPeanuts, Name: "Cacahuetes", Keywords: keywords("cacahuete", "mani")},
	{Code: models.AllergenSoy, Name: "Soja", Keywords: keywords("soja", "tofu", "edamame", "miso", "tamari", "lecitina de soja")},
	{Code: models.AllergenDairy, Name: "Lácteos", Keywords: keywords("leche", "nata", "queso", "mantequilla", "yogur", "lactosa", "requeson", "mascarpone", "mozzarella", "parmesano", "crema")},
	{Code: models.AllergenTreeNuts, Name: "Frutos de cáscara", Keywords: keywords("almendra", "avellana", "nuez", "nueces", "anacardo", "pistacho", "pecana", "macadamia", "pinon", "frutos secos")},
	{Code: models.AllergenCelery, Name: "Apio", Keywords: keywords("apio")},
	{Code: models.AllergenMustard, Name: "Mostaza", Keywords: keywords("mostaza")},
	{Code: models.AllergenSesame, Name: "Sésamo", Keywords: keywords("sesamo", "tahini", "ajonjoli")},
	{Code: models.AllergenSulphites, Name: "Sulfitos", Keywords: keywords("vino", "vinagre", "sulfito", "metabisulfito", "vermut", "jerez")},
	{Code: models.AllergenLupin, Name: "Altramuces", Keywords: keywords("altramuz", "altramuces", "lupino")},
	{Code: models.AllergenMolluscs, Name: "Moluscos", Keywords: keywords("mejillon", "almeja", "calamar", "sepia", "pulpo", "berberecho", "ostra", "vieira", "chipiron", "navaja")},
}

func keywords(words ...string) datatypes.JSONSlice[string] {
	return datatypes.JSONSlice[string](words)
}

// Seed inserts the official catalogue. Rows that already exist are left
// untouched so keyword lists edited by the kitchen survive restarts.
func Seed(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return gorm.ErrInvalidDB
	}
	for _, def := range Official {
		row := def
		if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("seed allergen %s: %w", def.Code, err)
		}
	}
	return nil
}

// Definitions loads the official catalogue in label order.
func Definitions(ctx context.Context, db *gorm.DB) ([]models.AllergenDefinition, error) {
	var defs []models.AllergenDefinition
	if err := db.WithContext(ctx).Find(&defs).Error; err != nil {
		return nil, err
	}

	rank := make(map[string]int, len(Official))
	for i, code := range models.OfficialAllergenCodes() {
		rank[code] = i
	}
	sort.SliceStable(defs, func(i, j int) bool {
		return rank[defs[i].Code] < rank[defs[j].Code]
	})
	return defs, nil
}
