package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/creditmarket/ledger-backend/internal/api/handlers"
	"github.com/creditmarket/ledger-backend/internal/config"
	"github.com/creditmarket/ledger-backend/internal/ledger"
	"github.com/creditmarket/ledger-backend/internal/middleware"
	repo "github.com/creditmarket/ledger-backend/internal/repository"
	"github.com/creditmarket/ledger-backend/internal/services"
)

type RouterDeps struct {
	Cfg        config.Config
	AccountSvc *services.AccountService
	LedgerSvc  *ledger.Service
	Settings   repo.Settings
	Auth       *middleware.AuthMiddleware
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.RateLimit(d.Cfg.RateRPS), middleware.HTTPMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	ah := handlers.NewAccountHandler(d.AccountSvc)
	lh := handlers.NewLedgerHandler(d.LedgerSvc)
	adm := handlers.NewAdminHandler(d.LedgerSvc, d.Settings)

	// health & metrics
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", promhttp.Handler())

	// payment provider callback, authenticated by the provider's txn id
	// idempotency rather than a user token
	r.Post("/webhooks/purchase", lh.PurchaseWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", ah.Register)
		r.Post("/auth/login", ah.Login)
		r.Post("/auth/refresh", ah.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(d.Auth.Auth)

			r.Get("/accounts/me", ah.Me)
			r.Delete("/accounts/me", ah.Deactivate)

			r.Get("/ledger/balance", lh.Balance)
			r.Get("/ledger/expiring", lh.ExpiringSoon)
			r.Get("/ledger/history", lh.History)
			r.Post("/ledger/credit", lh.Credit)
			r.Post("/ledger/debit", lh.Debit)
			r.Post("/ledger/transfer", lh.Transfer)
			r.Post("/ledger/entries/{id}/extend", lh.Extend)
			r.Post("/ledger/bonus/claim", lh.ClaimBonus)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole("admin"))
				r.Get("/admin/settings", adm.ListSettings)
				r.Put("/admin/settings/{key}", adm.SetSetting)
				r.Get("/admin/accounts/{id}/reconcile", adm.Reconcile)
				r.Post("/admin/accounts/{id}/unfreeze", adm.Unfreeze)
			})
		})
	})

	return r
}
