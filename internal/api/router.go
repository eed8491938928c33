/**
 * @description
 * This file sets up the HTTP router for the raffle service. It defines the API
 * endpoints, associates them with their handlers and applies the authentication
 * middleware.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: router and standard middleware.
 * - github.com/go-chi/cors: CORS headers for browser clients.
 * - github.com/prometheus/client_golang: /metrics exposition.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RaffleRoutes creates and returns a new router for the raffle service. A nil
// gatherer leaves /metrics unmounted.
func RaffleRoutes(h *RaffleHandlers, auth AuthConfig, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(JWTAuthMiddleware(auth))

		r.Get("/raffles", h.ListRafflesHandler)
		r.Post("/raffles", h.CreateRaffleHandler)
		r.Get("/raffles/{raffleID}", h.GetRaffleHandler)
		r.Patch("/raffles/{raffleID}", h.UpdateRaffleHandler)
		r.Get("/raffles/{raffleID}/numbers", h.ListAvailableNumbersHandler)
		r.Get("/raffles/{raffleID}/tickets", h.ListTicketsHandler)
		r.Post("/raffles/{raffleID}/tickets", h.PurchaseTicketHandler)
		r.Post("/raffles/{raffleID}/cancel", h.CancelRaffleHandler)
		r.Post("/raffles/{raffleID}/draw", h.DrawHandler)

		r.Delete("/tickets/{ticketID}", h.RefundTicketHandler)

		r.Get("/me/tickets", h.MyTicketsHandler)
		r.Get("/me/ticket-stats", h.MyTicketStatsHandler)
		r.Get("/users/{userID}/raffles", h.ListUserRafflesHandler)
		r.Get("/users/{userID}/tickets", h.UserTicketsHandler)
		r.Get("/users/{userID}/ticket-stats", h.UserTicketStatsHandler)

		r.Get("/accounts/{accountID}", h.GetAccountHandler)
		r.Get("/accounts/{accountID}/ledger", h.ListLedgerHandler)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Post("/raffles/{raffleID}/cancel", h.AdminCancelRaffleHandler)
			r.Post("/sweep", h.SweepHandler)
		})
	})

	return r
}
