package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rentora/payments/internal/authorization"
	"github.com/rentora/payments/internal/commission"
	"github.com/rentora/payments/internal/repository"
	"github.com/rentora/payments/internal/settlement"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	authSvc *authorization.Service,
	settleSvc *settlement.Service,
	commEngine *commission.Engine,
	payments *repository.PaymentRepo,
	logger *slog.Logger,
) http.Handler {
	h := &Handlers{
		authSvc:    authSvc,
		settleSvc:  settleSvc,
		commEngine: commEngine,
		payments:   payments,
		logger:     logger,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Route("/api/v1", func(r chi.Router) {
		// Payments.
		r.Post("/payments/authorize", h.Authorize)
		r.Get("/payments", h.ListPayments)
		r.Get("/payments/{jobType}/{jobID}", h.GetStatus)
		r.Post("/payments/{jobType}/{jobID}/charge", h.Charge)
		r.Post("/payments/{jobType}/{jobID}/refund", h.Refund)

		// Commissions.
		r.Post("/commissions/contract-quote", h.ContractQuote)
	})

	return r
}
