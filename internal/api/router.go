package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-booking/internal/availability"
	"github.com/hackgods/doctor-booking/internal/booking"
	"github.com/hackgods/doctor-booking/internal/directory"
)

type RouterConfig struct {
	Doctors  *directory.Service
	Bookings *booking.Service
	Resolver *availability.Resolver
	Blocks   *availability.Manager

	HorizonDays    int
	MaxHorizonDays int

	Postgres Pinger
	Redis    Pinger
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger

	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger.Named("http")))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/doctors", listDoctorsHandler(cfg.Doctors, logger))
	r.Post("/doctors", createDoctorHandler(cfg.Doctors, logger))

	r.Route("/doctors/{doctorID}", func(r chi.Router) {
		r.Get("/", getDoctorHandler(cfg.Doctors, logger))

		r.Get("/slots", daySlotsHandler(cfg.Resolver, logger))
		r.Get("/slots/horizon", horizonSlotsHandler(cfg.Resolver, cfg.HorizonDays, cfg.MaxHorizonDays, logger))

		r.Get("/blocks", listBlocksHandler(cfg.Blocks, logger))
		r.Post("/blocks", createBlockHandler(cfg.Blocks, logger))
		r.Put("/blocks/{blockID}", updateBlockHandler(cfg.Blocks, logger))
		r.Delete("/blocks/{blockID}", deleteBlockHandler(cfg.Blocks, logger))
	})

	r.Post("/appointments", createAppointmentHandler(cfg.Bookings, logger))
	r.Get("/appointments", listAppointmentsHandler(cfg.Bookings, logger))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Bookings, logger))
	r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Bookings, logger))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Bookings, logger))
	r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Bookings, logger))

	return r
}
