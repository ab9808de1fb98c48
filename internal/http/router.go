package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/tour-bookings/internal/observability"
	"github.com/robertarktes/tour-bookings/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(rl, h.cfg.RateLimitPerMinute))

		r.Route("/v1/tours", func(r chi.Router) {
			r.Get("/", h.ListTours)
			r.Get("/actual", h.ActualTours)
			r.Post("/search", h.SearchTours)
			r.Get("/by-country/{country}", h.ToursByCountry)
			r.Get("/by-price", h.ToursByPrice)
			r.Get("/by-rating", h.ToursByRating)
		})

		r.Get("/v1/hotels", h.ListHotels)
		r.Get("/v1/hotels/{id}", h.GetHotel)

		r.With(IdempotencyMiddleware).Post("/v1/bookings", h.CreateBooking)
		r.Get("/v1/bookings/{id}", h.GetBooking)
		r.Get("/v1/users/{userID}/bookings", h.UserBookings)
	})

	return r
}
