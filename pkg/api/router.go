package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/orsa-go/orsa/config"
	_ "github.com/orsa-go/orsa/docs/swagger"
	"github.com/orsa-go/orsa/pkg/api/handlers"
	"github.com/orsa-go/orsa/pkg/api/middleware"
	"github.com/orsa-go/orsa/pkg/api/response"
	"github.com/orsa-go/orsa/pkg/logger"
)

// Handlers groups the endpoint handlers mounted by NewRouter. Events, Metrics
// and MetricsHandler are optional.
type Handlers struct {
	Saga           *handlers.SagaHandler
	Health         *handlers.HealthHandler
	Events         http.Handler
	Metrics        middleware.MetricsRecorder
	MetricsHandler http.Handler
}

// NewRouter builds the admin API router.
//
//	GET  /health, /ready, /status
//	GET  /api/v1/declarations
//	GET  /api/v1/sagas              POST /api/v1/sagas
//	GET  /api/v1/sagas/{uid}
//	GET  /api/v1/snapshots          POST /api/v1/snapshots/{uid}/restore
//	GET  /api/v1/events             websocket lifecycle stream
//	GET  /swagger/*
func NewRouter(cfg *config.Config, log logger.Logger, h *Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	r.Use(middleware.Logger(log))
	if h.Metrics != nil {
		r.Use(middleware.Metrics(h.Metrics))
	}
	r.Use(middleware.CORS(cfg.Server.CORS))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "route not found",
			middleware.GetRequestID(req.Context()))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, response.ErrCodeMethodNotAllowed, "method not allowed",
			middleware.GetRequestID(req.Context()))
	})

	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)
	r.Get("/status", h.Health.Status)
	if h.MetricsHandler != nil && cfg.Metrics.Path != "" {
		r.Handle(cfg.Metrics.Path, h.MetricsHandler)
	}

	r.Get("/swagger/*", httpSwagger.WrapHandler)

	r.Route("/api/v1", func(r chi.Router) {
		// The stream outlives any request timeout.
		if h.Events != nil {
			r.Get("/events", h.Events.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.Server.HTTP.RequestTimeout))

			r.Get("/declarations", h.Saga.ListDeclarations)
			r.Route("/sagas", func(r chi.Router) {
				r.Get("/", h.Saga.ListSagas)
				r.Post("/", h.Saga.SubmitSaga)
				r.Get("/{uid}", h.Saga.GetSaga)
			})
			r.Route("/snapshots", func(r chi.Router) {
				r.Get("/", h.Saga.ListSnapshots)
				r.Post("/{uid}/restore", h.Saga.RestoreSnapshot)
			})
		})
	})

	return r
}
