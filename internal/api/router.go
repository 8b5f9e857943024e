package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/metrics"
)

type RouterConfig struct {
	Service *appointment.Service
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	Checks  []DependencyCheck
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	svc := cfg.Service

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(MetricsMiddleware(cfg.Metrics))
	r.Use(ActorMiddleware)

	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/doctors", func(r chi.Router) {
		r.Get("/", listDoctorsHandler(svc, logger))
		r.Post("/", createDoctorHandler(svc, logger))
		r.Get("/{slug}", getDoctorHandler(svc, logger))
		r.Post("/{slug}/schedule", addScheduleEntryHandler(svc, logger))
		r.Get("/{slug}/availability", getAvailabilityHandler(svc, logger))
		r.Post("/{slug}/appointments", createAppointmentHandler(svc, logger))
	})

	r.Route("/patients", func(r chi.Router) {
		r.Post("/", registerPatientHandler(svc, logger))
		r.Get("/{id}", getPatientHandler(svc, logger))
		r.Patch("/{id}", updatePatientHandler(svc, logger))
		r.Get("/{id}/appointments", listPatientAppointmentsHandler(svc, logger))
	})

	r.Get("/appointments/{id}", getAppointmentHandler(svc, logger))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(svc, logger))

	return r
}
