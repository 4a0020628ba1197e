package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"hibococina/models"
)

func TestDecodeJSONIgnoresServerFields(t *testing.T) {
	t.Parallel()

	body := json.RawMessage(`{
		"id": 3,
		"referencia": "PED-1",
		"proveedor": "Frutas Zadorra",
		"estado": "pendiente",
		"total": 12.4,
		"created_at": "2026-01-02T10:00:00Z",
		"lineas": [
			{"id": 9, "pedido_id": 3, "ingrediente_id": 2, "ingrediente": {"id": 2, "nombre": "Ajo"}, "cantidad": 2, "unidad": "kg", "precio_unitario": 4.2}
		]
	}`)

	var payload orderRequest
	if err := decodeJSON(newJSONRequest(t, http.MethodPut, "/api/pedidos/3", body, nil), &payload); err != nil {
		t.Fatalf("decodeJSON error = %v", err)
	}
	if payload.Supplier != "Frutas Zadorra" || len(payload.Lines) != 1 || payload.Lines[0].IngredientID != 2 || payload.Lines[0].UnitPrice != 4.2 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"typo", `{"proveedr": "Frutas Zadorra"}`},
		{"nested typo", `{"proveedor": "X", "lineas": [{"ingrediente_id": 1, "cantida": 2}]}`},
		{"trailing data", `{"proveedor": "X"} {"proveedor": "Y"}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var payload orderRequest
			req := newJSONRequest(t, http.MethodPost, "/api/pedidos", json.RawMessage(tt.body), nil)
			if err := decodeJSON(req, &payload); err == nil {
				t.Fatalf("expected %s to be rejected", tt.body)
			}
		})
	}
}

func TestDecodeJSONKeepsAcceptedServerNames(t *testing.T) {
	t.Parallel()

	body := json.RawMessage(`{"id": 4, "codigo": "AJO", "nombre": "Ajo", "coste_kilo": 3.5, "alergenos": ["sulfitos"]}`)

	var payload ingredientRequest
	if err := decodeJSON(newJSONRequest(t, http.MethodPut, "/api/ingredientes/4", body, nil), &payload); err != nil {
		t.Fatalf("decodeJSON error = %v", err)
	}
	if payload.CostPerKilo == nil || *payload.CostPerKilo != 3.5 {
		t.Fatalf("expected coste_kilo to be read, got %v", payload.CostPerKilo)
	}
	if len(payload.Allergens) != 1 || payload.Allergens[0] != models.AllergenSulphites {
		t.Fatalf("expected alergenos to be read, got %v", payload.Allergens)
	}
}

func TestUpdateDishAcceptsFetchedObject(t *testing.T) {
	db, cleanup := withTestDatabase(t)
	t.Cleanup(cleanup)

	dish := models.Dish{Code: "TOR", Name: "Tortilla", PortionsWeight: 1}
	mustCreate(t, db, &dish)

	rr := serve(t, ShowDish, http.MethodGet, "/api/platos/x", nil, idParams(dish.ID))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var fetched map[string]any
	decodeBody(t, rr, &fetched)
	fetched["nombre"] = "Tortilla de patata"

	rr = serve(t, UpdateDish, http.MethodPut, "/api/platos/x", fetched, idParams(dish.ID))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	var updated dishResponse
	decodeBody(t, rr, &updated)
	if updated.Name != "Tortilla de patata" {
		t.Fatalf("expected renamed dish, got %q", updated.Name)
	}
}
