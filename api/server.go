/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/policies/*   Policy lifecycle (purchase, quote, claim)
  /api/escrow/*     Escrow admin and fee schedule
  /api/records/*    Settlement record listings
  /api/admin/*      Admin operations (expiry sweep)
  /api/token/*      Dev token facilities (faucet, approve, balance)

SECURITY NOTE:
  Owner gating uses the caller address in the request body. There is no
  authentication middleware; signatures or sessions would be required
  before exposing this beyond a demo.

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

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Policy routes
		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.ListPolicies)
			r.Post("/", h.PurchasePolicy)
			r.Get("/{id}", h.GetPolicy)
			r.Get("/{id}/quote", h.QuoteClaim)
			r.Post("/{id}/claim", h.SettleClaim)
			r.Get("/{id}/records", h.GetPolicyRecords)
		})

		// Escrow routes
		r.Route("/escrow", func(r chi.Router) {
			r.Get("/", h.GetEscrow)
			r.Get("/fees", h.GetFeeConfig)
			r.Post("/withdraw", h.Withdraw)
			r.Post("/company-wallet", h.SetCompanyWallet)
			r.Post("/ownership", h.TransferOwnership)
		})

		// Record routes
		r.Route("/records", func(r chi.Router) {
			r.Get("/purchases", h.ListPurchaseRecords)
			r.Get("/claims", h.ListClaimRecords)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/expire", h.ExpirePolicies)
		})

		// Token routes (dev facilities)
		r.Route("/token", func(r chi.Router) {
			r.Post("/faucet", h.Faucet)
			r.Post("/approve", h.Approve)
			r.Get("/balance/{address}", h.TokenBalance)
		})
	})

	return r
}
