package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewRouterRegistersHealthRoutes(t *testing.T) {
	router := newRouter(routerOptions{})

	for _, path := range []string{"/healthz", "/api/health"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected %s to return 200, got %d", path, rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("expected application/json content type, got %q", ct)
		}
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router := newRouter(routerOptions{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/recetas", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown route, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPatch, "/api/platos/1", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for an unsupported method, got %d", rr.Code)
	}
}

func TestRouterAnswersCORSPreflight(t *testing.T) {
	router := newRouter(routerOptions{allowedOrigins: []string{"http://localhost:5173"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/platos", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("expected allowed origin header, got %q", got)
	}
}
