/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing (also tagged on slog lines)
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Prometheus request counters
  5. CORS:       Cross-origin requests for the storefront

ROUTE GROUPS:
  /api/furniture/*       Catalog and stock receipts
  /api/customers/*       Customers and their order history
  /api/transactions/*    Orders (create, status, corrections, delete)
  /api/stats             Aggregates
  /api/devices/{d}/cart  Cart Aggregator
  /api/reconciliation/*  Cached order migration
  /metrics               Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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

// DefaultCORSOrigins are allowed when no origins are configured.
var DefaultCORSOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, origins []string) *chi.Mux {
	if len(origins) == 0 {
		origins = DefaultCORSOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", MetricsHandler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Furniture routes
		r.Route("/furniture", func(r chi.Router) {
			r.Get("/", h.ListFurniture)
			r.Post("/", h.CreateFurniture)
			r.Get("/{id}", h.GetFurniture)
			r.Delete("/{id}", h.RemoveFurniture)
			r.Post("/{id}/receive", h.ReceiveStock)
		})

		// Customer routes
		r.Route("/customers", func(r chi.Router) {
			r.Get("/", h.ListCustomers)
			r.Post("/", h.CreateCustomer)
			r.Get("/{id}", h.GetCustomer)
			r.Get("/{id}/transactions", h.GetCustomerTransactions)
		})

		// Transaction routes
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/", h.CreateTransaction)
			r.Get("/{id}", h.GetTransaction)
			r.Put("/{id}", h.UpdateTransaction)
			r.Delete("/{id}", h.DeleteTransaction)
		})
		r.Get("/stats", h.GetStats)

		// Cart routes
		r.Route("/devices/{device}/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Post("/items", h.AddCartItem)
			r.Put("/items/{itemID}", h.UpdateCartItem)
			r.Delete("/items/{itemID}", h.RemoveCartItem)
			r.Post("/login", h.LoginCart)
			r.Post("/logout", h.LogoutCart)
			r.Post("/checkout", h.Checkout)
		})

		// Reconciliation routes
		r.Route("/reconciliation", func(r chi.Router) {
			r.Get("/runs", h.ListReconciliationRuns)
			r.Post("/process", h.ProcessReconciliation)
		})
	})

	return r
}
