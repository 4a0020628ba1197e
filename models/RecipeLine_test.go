package models

import "testing"

func uintPtr(v uint) *uint { return &v }

func TestRecipeLineTarget(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		line     RecipeLine
		wantKind TargetKind
		wantID   uint
	}{
		{"ingredient", RecipeLine{IngredientID: uintPtr(3)}, TargetIngredient, 3},
		{"sub dish", RecipeLine{SubDishID: uintPtr(9)}, TargetDish, 9},
		{"both", RecipeLine{IngredientID: uintPtr(3), SubDishID: uintPtr(9)}, TargetAmbiguous, 0},
		{"neither", RecipeLine{}, TargetNone, 0},
		{"zero ids", RecipeLine{IngredientID: uintPtr(0), SubDishID: uintPtr(0)}, TargetNone, 0},
	}

	for _, tt := range cases {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			kind, id := tt.line.Target()
			if kind != tt.wantKind || id != tt.wantID {
				t.Fatalf("Target() = (%q, %d), want (%q, %d)", kind, id, tt.wantKind, tt.wantID)
			}
		})
	}
}

func TestDishCostPerKilo(t *testing.T) {
	t.Parallel()

	if got := (Dish{RecipeCost: 10, PortionsWeight: 2}).CostPerKilo(); got != 5 {
		t.Fatalf("CostPerKilo() = %v, want 5", got)
	}
	if got := (Dish{RecipeCost: 10}).CostPerKilo(); got != 0 {
		t.Fatalf("CostPerKilo() with zero weight = %v, want 0", got)
	}
}
