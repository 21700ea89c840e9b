package router

import (
	"net/http"

	"resellhub/internal/handler"
	"resellhub/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler           *handler.Handler
	AgentHandler      *handler.AgentHandler
	InventoryHandler  *handler.InventoryHandler
	LedgerHandler     *handler.LedgerHandler
	WithdrawalHandler *handler.WithdrawalHandler
	PortalHandler     *handler.PortalHandler
	SupervisorHandler *handler.SupervisorHandler
	AdminHandler      *handler.AdminHandler
	AuthHandler       *handler.AuthHandler

	AdminAuth func(http.Handler) http.Handler
	AgentAuth func(http.Handler) http.Handler
	RateLimit func(http.Handler) http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key", "X-Token", "X-Admin-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if cfg.RateLimit != nil {
		r.Use(cfg.RateLimit)
	}

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}

		// Storefront-facing inventory calls are made by trusted backends
		// with an admin key.
		r.Group(func(r chi.Router) {
			use(r, cfg.AdminAuth)

			if cfg.InventoryHandler != nil {
				r.Post("/inventory/release", cfg.InventoryHandler.Release)
				r.Post("/inventory/{product_id}/reserve", cfg.InventoryHandler.Reserve)
				r.Get("/inventory/{product_id}/available", cfg.InventoryHandler.Available)
			}

			r.Route("/admin", func(r chi.Router) {
				if cfg.AdminHandler != nil {
					r.Get("/stats", cfg.AdminHandler.GetStats)
				}

				if cfg.AgentHandler != nil {
					r.Route("/agents", func(r chi.Router) {
						r.Post("/", cfg.AgentHandler.Create)
						r.Get("/", cfg.AgentHandler.List)
						r.Route("/{agent_id}", func(r chi.Router) {
							r.Get("/", cfg.AgentHandler.Get)
							r.Put("/status", cfg.AgentHandler.SetStatus)
							r.Put("/pricing", cfg.AgentHandler.SetPricing)
							r.Put("/payout", cfg.AgentHandler.SetPayout)
							r.Get("/balance", cfg.AgentHandler.Balance)
							if cfg.LedgerHandler != nil {
								r.Get("/ledger", cfg.LedgerHandler.Entries)
							}
							if cfg.AuthHandler != nil {
								r.Post("/token", cfg.AuthHandler.IssueAgentToken)
							}
						})
					})
				}

				if cfg.InventoryHandler != nil {
					r.Post("/inventory/{product_id}/stock", cfg.InventoryHandler.Stock)
				}

				if cfg.LedgerHandler != nil {
					r.Route("/ledger", func(r chi.Router) {
						r.Post("/sales", cfg.LedgerHandler.PostSale)
						r.Post("/refunds", cfg.LedgerHandler.PostRefund)
						r.Post("/mature", cfg.LedgerHandler.Mature)
					})
				}

				if cfg.WithdrawalHandler != nil {
					r.Route("/withdrawals", func(r chi.Router) {
						r.Get("/", cfg.WithdrawalHandler.List)
						r.Post("/{id}/approve", cfg.WithdrawalHandler.Approve)
						r.Post("/{id}/reject", cfg.WithdrawalHandler.Reject)
						r.Post("/{id}/pay", cfg.WithdrawalHandler.Pay)
					})
				}

				if cfg.SupervisorHandler != nil {
					r.Route("/supervisor", func(r chi.Router) {
						r.Get("/workers", cfg.SupervisorHandler.Workers)
						r.Post("/reconcile", cfg.SupervisorHandler.Reconcile)
					})
				}
			})
		})

		// Agent portal
		r.Route("/agent", func(r chi.Router) {
			use(r, cfg.AgentAuth)

			if cfg.PortalHandler != nil {
				r.Get("/balance", cfg.PortalHandler.Balance)
				r.Get("/withdrawals", cfg.PortalHandler.Withdrawals)
				r.Post("/withdrawals", cfg.PortalHandler.RequestWithdrawal)
			}
			if cfg.AuthHandler != nil {
				r.Post("/token/revoke", cfg.AuthHandler.RevokeToken)
			}
		})
	})

	return r
}

func use(r chi.Router, mw func(http.Handler) http.Handler) {
	if mw != nil {
		r.Use(mw)
	}
}
