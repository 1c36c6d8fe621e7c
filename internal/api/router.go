package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/nutrisensia/scheduling-service/internal/booking"
)

type RouterConfig struct {
	Service *booking.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Appointment response workflow
	r.Post("/appointments/{id}/respond", respondAppointmentHandler(cfg.Service))

	// Patient-facing slot search
	r.Get("/providers/{id}/availability", providerAvailabilityHandler(cfg.Service))

	// Availability template management
	r.Post("/availability", createTemplateHandler(cfg.Service))
	r.Get("/availability", listTemplatesHandler(cfg.Service))
	r.Get("/availability/{id}", getTemplateHandler(cfg.Service))
	r.Patch("/availability/{id}", updateTemplateHandler(cfg.Service))
	r.Delete("/availability/{id}", deleteTemplateHandler(cfg.Service))

	// Consultation type management
	r.Post("/consultation-types", createConsultationTypeHandler(cfg.Service))
	r.Get("/consultation-types", listConsultationTypesHandler(cfg.Service))
	r.Get("/consultation-types/{id}", getConsultationTypeHandler(cfg.Service))
	r.Patch("/consultation-types/{id}", updateConsultationTypeHandler(cfg.Service))
	r.Delete("/consultation-types/{id}", deleteConsultationTypeHandler(cfg.Service))

	return r
}
