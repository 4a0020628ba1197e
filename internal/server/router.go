package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"hibococina/internal/handlers"
	applog "hibococina/internal/log"
)

type routerOptions struct {
	requireAuth    bool
	allowedOrigins []string
}

func newRouter(opts routerOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := opts.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: opts.requireAuth,
		MaxAge:           300,
	}))

	applog.Debug(context.Background(), "registering http routes", "authRequired", opts.requireAuth)

	r.Get("/healthz", handlers.Health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.Health)
		r.Post("/auth/login", handlers.Login)

		r.Group(func(r chi.Router) {
			if opts.requireAuth {
				r.Use(handlers.RequireAuthentication)
			}
			registerAPI(r)
		})
	})

	return r
}

func registerAPI(r chi.Router) {
	r.Post("/auth/logout", handlers.Logout)
	r.Get("/auth/me", handlers.Me)

	r.Route("/ingredientes", func(r chi.Router) {
		r.Get("/", handlers.ListIngredients)
		r.Post("/", handlers.CreateIngredient)
		r.Get("/{id}", handlers.ShowIngredient)
		r.Put("/{id}", handlers.UpdateIngredient)
		r.Delete("/{id}", handlers.DeleteIngredient)
		r.Get("/{id}/alergenos/sugerencias", handlers.IngredientAllergenSuggestions)
	})

	r.Route("/platos", func(r chi.Router) {
		r.Get("/", handlers.ListDishes)
		r.Post("/", handlers.CreateDish)
		r.Get("/estadisticas", handlers.DishStatistics)
		r.Get("/{id}", handlers.ShowDish)
		r.Put("/{id}", handlers.UpdateDish)
		r.Delete("/{id}", handlers.DeleteDish)
		r.Get("/{id}/escandallo", handlers.ShowRecipe)
		r.Put("/{id}/escandallo", handlers.ReplaceRecipe)
		r.Get("/{id}/coste", handlers.DishCost)
		r.Post("/{id}/recalcular", handlers.RecalculateDish)
		r.Get("/{id}/alergenos", handlers.DishAllergens)
	})

	r.Route("/inventario", func(r chi.Router) {
		r.Get("/", handlers.ListInventory)
		r.Post("/", handlers.CreateInventoryEntry)
		r.Get("/resumen", handlers.InventorySummary)
		r.Get("/huerfanos", handlers.ListInventoryOrphans)
		r.Delete("/huerfanos", handlers.PurgeInventoryOrphans)
		r.Get("/{id}", handlers.ShowInventoryEntry)
		r.Put("/{id}", handlers.UpdateInventoryEntry)
		r.Delete("/{id}", handlers.DeleteInventoryEntry)
	})

	r.Route("/pedidos", func(r chi.Router) {
		r.Get("/", handlers.ListOrders)
		r.Post("/", handlers.CreateOrder)
		r.Get("/{id}", handlers.ShowOrder)
		r.Put("/{id}", handlers.UpdateOrder)
		r.Delete("/{id}", handlers.DeleteOrder)
		r.Post("/{id}/recibir", handlers.ReceiveOrder)
	})

	sanitation := func(r chi.Router) {
		r.Get("/", handlers.ListSanitationRecords)
		r.Post("/", handlers.CreateSanitationRecord)
		r.Get("/{id}", handlers.ShowSanitationRecord)
		r.Put("/{id}", handlers.UpdateSanitationRecord)
		r.Delete("/{id}", handlers.DeleteSanitationRecord)
	}
	r.Route("/sanidad", sanitation)
	r.Route("/control-sanidad", sanitation)

	production := func(r chi.Router) {
		r.Get("/", handlers.ListProduction)
		r.Post("/", handlers.CreateProduction)
		r.Get("/{id}", handlers.ShowProduction)
		r.Put("/{id}", handlers.UpdateProduction)
		r.Delete("/{id}", handlers.DeleteProduction)
	}
	r.Route("/produccion", production)
	r.Route("/producciones", production)

	r.Route("/alergenos", func(r chi.Router) {
		r.Get("/", handlers.ListAllergens)
		r.Get("/detectar", handlers.DetectAllergens)
		r.Put("/{codigo}", handlers.UpdateAllergenKeywords)
	})
	r.Route("/alergenos-personalizados", func(r chi.Router) {
		r.Get("/", handlers.ListCustomAllergens)
		r.Post("/", handlers.CreateCustomAllergen)
		r.Get("/{id}", handlers.ShowCustomAllergen)
		r.Put("/{id}", handlers.UpdateCustomAllergen)
		r.Delete("/{id}", handlers.DeleteCustomAllergen)
	})

	r.Get("/mantenimiento/integridad", handlers.IntegrityReport)
	r.Post("/mantenimiento/recalcular", handlers.RecalculateAllDishes)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		applog.Info(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"requestID", middleware.GetReqID(r.Context()),
		)
	})
}
