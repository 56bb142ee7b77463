package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/medtest-appointment-scheduling/internal/appointment"
	"github.com/hackgods/medtest-appointment-scheduling/internal/catalog"
	"github.com/hackgods/medtest-appointment-scheduling/internal/notify"
	"github.com/hackgods/medtest-appointment-scheduling/internal/results"
	"github.com/hackgods/medtest-appointment-scheduling/internal/scheduling"
)

// AppointmentService is the subset of *appointment.Service the handlers call.
type AppointmentService interface {
	BookAppointment(ctx context.Context, req appointment.BookingRequest) (*appointment.AppointmentDetail, error)
	Availability(ctx context.Context, q appointment.AvailabilityQuery) (*appointment.Availability, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status appointment.Status) (*appointment.AppointmentDetail, error)
	GetForPatient(ctx context.Context, id, patientID uuid.UUID) (*appointment.AppointmentDetail, error)
	GetByReference(ctx context.Context, ref string, patientID uuid.UUID) (*appointment.AppointmentDetail, error)
	ListForPatient(ctx context.Context, patientID uuid.UUID) ([]appointment.AppointmentDetail, error)
	List(ctx context.Context, filter appointment.ListFilter) ([]appointment.AppointmentDetail, int, error)
	Policy() scheduling.Policy
}

// ResultService is the subset of *results.Service the handlers call.
type ResultService interface {
	Record(ctx context.Context, req results.RecordRequest) (*results.Detail, error)
	ListForPatient(ctx context.Context, patientID uuid.UUID) ([]results.Detail, error)
	GetForPatient(ctx context.Context, id, patientID uuid.UUID) (*results.Detail, error)
}

// Realtime serves websocket subscriptions. *notify.Hub implements it.
type Realtime interface {
	ServeWS(w http.ResponseWriter, r *http.Request, sub notify.Subscriber)
}

type RouterConfig struct {
	Appointments  AppointmentService
	Catalog       catalog.Store
	Results       ResultService
	Notifications notify.Store
	Realtime      Realtime
	Auth          *Authenticator
	Health        *HealthHandler
	Gatherer      prometheus.Gatherer
	Logger        zerolog.Logger
	// PhoneRegion is used to normalize hospital phone numbers. Defaults to RW.
	PhoneRegion string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.PhoneRegion == "" {
		cfg.PhoneRegion = "RW"
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Public
	r.Get("/config/availability", bookingConfigHandler(cfg.Appointments))
	if cfg.Catalog != nil {
		r.Get("/hospitals", listHospitalsHandler(cfg.Catalog))
		r.Get("/hospitals/{id}", getHospitalHandler(cfg.Catalog))
		r.Get("/tests", listTestsHandler(cfg.Catalog))
		r.Get("/tests/{id}", getTestHandler(cfg.Catalog))
	}

	// Patient
	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)

		r.Post("/appointments", createAppointmentHandler(cfg.Appointments))
		r.Get("/appointments/availability", availabilityHandler(cfg.Appointments))
		r.Get("/appointments/my", myAppointmentsHandler(cfg.Appointments))
		r.Get("/appointments/reference/{reference}", getByReferenceHandler(cfg.Appointments))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))

		if cfg.Notifications != nil {
			r.Get("/notifications/my", myNotificationsHandler(cfg.Notifications))
			r.Post("/notifications/{id}/read", markNotificationReadHandler(cfg.Notifications))
		}
		if cfg.Results != nil {
			r.Get("/results/my", myResultsHandler(cfg.Results))
			r.Get("/results/{id}", getResultHandler(cfg.Results))
		}
	})

	// Admin
	r.Route("/admin", func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)
		r.Use(RequireAdmin)

		r.Get("/appointments", adminListAppointmentsHandler(cfg.Appointments))
		r.Put("/appointments/{id}/status", adminUpdateStatusHandler(cfg.Appointments))

		if cfg.Results != nil {
			r.Post("/results", recordResultHandler(cfg.Results))
		}
		if cfg.Catalog != nil {
			r.Post("/hospitals", createHospitalHandler(cfg.Catalog, cfg.PhoneRegion))
			r.Put("/hospitals/{id}", updateHospitalHandler(cfg.Catalog, cfg.PhoneRegion))
			r.Delete("/hospitals/{id}", deactivateHospitalHandler(cfg.Catalog))
			r.Post("/medical-tests", createTestHandler(cfg.Catalog))
			r.Put("/medical-tests/{id}", updateTestHandler(cfg.Catalog))
			r.Delete("/medical-tests/{id}", retireTestHandler(cfg.Catalog))
		}
	})

	if cfg.Realtime != nil {
		r.With(cfg.Auth.WebsocketMiddleware).Get("/ws", websocketHandler(cfg.Realtime))
	}

	return r
}
