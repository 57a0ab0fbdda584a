// Package api exposes the recommendation service over HTTP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Veraticus/nourish/internal/inference"
	"github.com/Veraticus/nourish/internal/service"
)

// maxBodyBytes caps a prediction request body.
const maxBodyBytes = 1 << 20

// Handler serves recommendation and history requests.
type Handler struct {
	service *inference.Service
	store   service.PredictionStore
	logger  *slog.Logger
	origins []string
}

// Option configures a Handler.
type Option func(*Handler)

// WithStore enables the prediction history endpoint and readiness checks
// against the store.
func WithStore(store service.PredictionStore) Option {
	return func(h *Handler) { h.store = store }
}

// WithCORSOrigins sets the origins allowed to call the API from a browser.
// "*" allows any origin.
func WithCORSOrigins(origins ...string) Option {
	return func(h *Handler) { h.origins = origins }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// NewHandler creates a Handler around a prediction service.
func NewHandler(svc *inference.Service, opts ...Option) *Handler {
	h := &Handler{
		service: svc,
		logger:  slog.Default(),
		origins: []string{"*"},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewRouter wires the routes and middleware chain.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)
	r.Use(corsMiddleware(h.origins))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusOK, "Diet recommendation service is running")
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeMessage(w, http.StatusOK, "ok") })
	r.Get("/readyz", h.ready)
	r.Get("/diagnostics", h.diagnostics)

	r.Post("/predict/recommendation", h.recommend)

	if h.store != nil {
		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/predictions", h.listPredictions)
			r.Get("/predictions/{id}", h.getPrediction)
		})
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})
	return r
}
