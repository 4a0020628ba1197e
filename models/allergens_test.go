package models

import (
	"reflect"
	"testing"
)

func TestAllergenFlagsSetAndCodes(t *testing.T) {
	t.Parallel()

	var flags AllergenFlags
	if !flags.Set("Gluten", true) {
		t.Fatal("expected gluten to be a known code")
	}
	if !flags.Set(AllergenSesame, true) {
		t.Fatal("expected sesamo to be a known code")
	}
	if flags.Set("chocolate", true) {
		t.Fatal("expected unknown code to be rejected")
	}

	want := []string{AllergenGluten, AllergenSesame}
	if got := flags.Codes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Codes() = %v, want %v", got, want)
	}
	if !flags.Has(AllergenGluten) || flags.Has(AllergenDairy) {
		t.Fatalf("unexpected Has results for %+v", flags)
	}
}

func TestAllergenFlagsUnion(t *testing.T) {
	t.Parallel()

	a, _ := AllergenFlagsFromCodes([]string{AllergenEggs, AllergenDairy})
	b, _ := AllergenFlagsFromCodes([]string{AllergenDairy, AllergenFish})

	got := a.Union(b).Codes()
	want := []string{AllergenEggs, AllergenFish, AllergenDairy}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Union codes = %v, want %v", got, want)
	}
}

func TestAllergenFlagsFromCodesReportsUnknown(t *testing.T) {
	t.Parallel()

	flags, unknown := AllergenFlagsFromCodes([]string{"apio", " ", "trufa", "ajo"})
	if !flags.Apio {
		t.Fatal("expected apio to be flagged")
	}
	if want := []string{"ajo", "trufa"}; !reflect.DeepEqual(unknown, want) {
		t.Fatalf("unknown = %v, want %v", unknown, want)
	}
}

func TestAllergenFlagsColumns(t *testing.T) {
	t.Parallel()

	flags := AllergenFlags{Moluscos: true}
	cols := flags.Columns()
	if len(cols) != 14 {
		t.Fatalf("expected 14 columns, got %d", len(cols))
	}
	if cols["alergeno_moluscos"] != true || cols["alergeno_gluten"] != false {
		t.Fatalf("unexpected column values: %v", cols)
	}
}

func TestOfficialAllergenCodes(t *testing.T) {
	t.Parallel()

	codes := OfficialAllergenCodes()
	if len(codes) != 14 {
		t.Fatalf("expected 14 official allergens, got %d", len(codes))
	}
	codes[0] = "mutated"
	if OfficialAllergenCodes()[0] != AllergenGluten {
		t.Fatal("expected catalogue to be returned as a copy")
	}
	if !IsOfficialAllergen(" LACTEOS ") {
		t.Fatal("expected case-insensitive lookup")
	}
}
