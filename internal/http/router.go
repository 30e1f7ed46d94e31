package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/auctionfold/fund-reservations/internal/idempotency"
	"github.com/auctionfold/fund-reservations/internal/observability"
	"github.com/auctionfold/fund-reservations/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware)
		r.Use(RateLimitMiddleware(rl))
		r.Use(IdempotencyMiddleware(idemp))

		r.Post("/v1/reservations", h.CreateReservation)
		r.Post("/v1/bids", h.SubmitBid)
		r.Post("/v1/reservations/{id}/release", h.ReleaseReservation)
		r.Get("/v1/reservations", h.ListReservations)
		r.Get("/v1/wallets/{id}/balance", h.GetWalletBalance)

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(roleAuctionManager))
			r.Post("/v1/auctions/{id}/settle", h.SettleAuction)
			r.Delete("/v1/reservations/expired", h.CleanupExpired)
		})
	})

	return r
}
