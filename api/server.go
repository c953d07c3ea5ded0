/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client IP behind proxies
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for desktop/web clients

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/items", func(r chi.Router) {
			r.Get("/", h.ListItems)
			r.Post("/", h.CreateItem)
			r.Get("/{id}", h.GetItem)
			r.Put("/{id}/name", h.RenameItem)
			r.Get("/{id}/stock", h.GetItemStock)
			r.Get("/{id}/average-cost", h.GetAverageCost)
			r.Get("/{id}/average-price", h.GetAveragePrice)
			r.Get("/{id}/profit-loss", h.GetItemProfitLoss)
			r.Get("/{id}/projection", h.GetProjection)
		})

		r.Route("/purchases", func(r chi.Router) {
			r.Get("/", h.ListPurchases)
			r.Post("/", h.RecordPurchase)
			r.Put("/{id}", h.EditPurchase)
		})

		r.Route("/sales", func(r chi.Router) {
			r.Get("/", h.ListSales)
			r.Post("/", h.RecordSale)
			r.Put("/{id}", h.EditSale)
		})

		r.Get("/stock/total", h.GetTotalStock)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/profit-loss", h.GetTotalProfitLoss)
			r.Get("/sales-summary", h.GetSalesSummary)
			r.Get("/purchase-summary", h.GetPurchaseSummary)
			r.Get("/{name}/download", h.DownloadReport)
		})

		r.Route("/reconciliation", func(r chi.Router) {
			r.Get("/audit", h.AuditStock)
			r.Post("/repair", h.RepairStock)
		})
	})

	return r
}
