package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func requestHealth(t *testing.T) healthResponse {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	Health(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected Content-Type application/json, got %q", ct)
	}

	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("expected status ok, got %q", resp.Status)
	}
	if resp.Time.IsZero() {
		t.Fatal("expected response time to be populated")
	}
	return resp
}

func TestHealthWithoutDatabase(t *testing.T) {
	original := database
	database = nil
	t.Cleanup(func() { database = original })

	if resp := requestHealth(t); resp.Database != "unconfigured" {
		t.Fatalf("expected database unconfigured, got %q", resp.Database)
	}
}

func TestHealthWithDatabase(t *testing.T) {
	_, cleanup := withTestDatabase(t)
	t.Cleanup(cleanup)

	if resp := requestHealth(t); resp.Database != "ok" {
		t.Fatalf("expected database ok, got %q", resp.Database)
	}
}

func TestHealthWithClosedDatabase(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:handlers_health_closed?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		t.Fatalf("close sql db: %v", err)
	}

	original := database
	database = db
	t.Cleanup(func() { database = original })

	if resp := requestHealth(t); resp.Database != "unreachable" {
		t.Fatalf("expected database unreachable, got %q", resp.Database)
	}
}
