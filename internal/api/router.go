package api

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"carrental/internal/config"
	"carrental/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Services bundles the domain services exposed over HTTP.
type Services struct {
	Cars      domain.CarService
	Bookings  domain.BookingService
	Payments  domain.PaymentService
	Dashboard domain.DashboardService
	Rates     domain.RatesService
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	svc      Services
	authCfg  config.AuthConfig
	ready    Pinger
	validate *validator.Validate
	limiter  *rateLimiter
	logger   *zerolog.Logger
}

func NewHandler(svc Services, authCfg config.AuthConfig, limits config.APIRateLimitConfig, ready Pinger, logger *zerolog.Logger) *Handler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		svc:      svc,
		authCfg:  authCfg,
		ready:    ready,
		validate: v,
		limiter:  newRateLimiter(limits),
		logger:   logger,
	}
}

// Routes serves every endpoint both at the root and under /api/v1.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.requestID, h.accessLog, middleware.Recoverer, h.throttle)

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)

	h.mount(r)
	r.Route("/api/v1", h.mount)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})
	return r
}

func (h *Handler) mount(r chi.Router) {
	r.Get("/cars", h.listCars)
	r.Get("/cars/{id}", h.getCar)
	r.Post("/bookings/check-availability", h.checkAvailability)
	r.Get("/integrations/convert", h.convert)

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)

		r.Post("/bookings", h.createBooking)
		r.Get("/bookings", h.listBookings)
		r.Get("/bookings/{id}", h.getBooking)
		r.Post("/bookings/{id}/status", h.changeStatus)

		r.Post("/payments", h.createPayment)
		r.Get("/payments/{id}", h.getPayment)

		r.Route("/owner", func(r chi.Router) {
			r.Get("/cars", h.ownerCars)
			r.Post("/cars", h.createCar)
			r.Post("/cars/{id}/toggle", h.toggleCar)
			r.Delete("/cars/{id}", h.deleteCar)
			r.Get("/dashboard", h.ownerDashboard)
			r.Get("/bookings/export", h.exportBookings)
		})
	})
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "ok"})
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready.PingContext(ctx); err != nil {
			h.logger.Warn().Err(err).Msg("readiness check failed")
			writeFailure(w, http.StatusServiceUnavailable, "NOT_READY", "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "ready"})
}
