package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/coin-ledger/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware журнала монет.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.Metrics)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/ping", h.Ping)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Route("/withdrawals", func(r chi.Router) {
			r.Post("/", h.RequestWithdrawal)
			r.Get("/", h.ListWithdrawals)
			r.Get("/{id}", h.GetWithdrawal)
			r.With(custommiddleware.RequireOperator).Put("/{id}/process", h.ProcessWithdrawal)
		})

		r.Get("/transactions", h.ListTransactions)
		r.Get("/balance", h.GetBalance)

		r.Route("/accounts/{account}", func(r chi.Router) {
			r.Use(custommiddleware.RequireOperator)

			r.Post("/credits", h.Credit)
			r.Post("/debits", h.Debit)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
