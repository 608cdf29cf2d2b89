package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aldikf/airfare-price-service/internal/observability"
	"github.com/aldikf/airfare-price-service/internal/traffic"
)

// RouterOptions wires middleware around the handler. Zero values disable the
// corresponding middleware.
type RouterOptions struct {
	Logger         *zap.Logger
	Limiter        *rate.Limiter
	Tracker        *traffic.Tracker
	InFlight       *InFlightTracker
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// NewRouter builds the service routes. /health and /metrics sit outside the
// rate limiter so probes keep answering under load.
func NewRouter(h *Handler, opts RouterOptions) *mux.Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	if opts.InFlight != nil {
		router.Use(opts.InFlight.Middleware)
	}
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.Use(RateLimitMiddleware(opts.Limiter, opts.Tracker))
	if opts.RequestTimeout > 0 {
		v1.Use(TimeoutMiddleware(opts.RequestTimeout))
	}
	if opts.MaxBodyBytes > 0 {
		v1.Use(BodyLimitMiddleware(opts.MaxBodyBytes))
	}
	v1.HandleFunc("/predictions", h.PostPrediction).Methods(http.MethodPost)
	v1.HandleFunc("/predictions/schedule", h.PostSchedulePrediction).Methods(http.MethodPost)
	v1.HandleFunc("/airports", h.ListAirports).Methods(http.MethodGet)
	v1.HandleFunc("/airports/{code}", h.GetAirport).Methods(http.MethodGet)
	v1.HandleFunc("/options", h.GetOptions).Methods(http.MethodGet)

	return router
}

// WithCORS wraps h so browser clients on origins can call the API. No origins
// returns h unchanged.
func WithCORS(h http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		return h
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", CorrelationIDHeader},
		ExposedHeaders: []string{CorrelationIDHeader, "Retry-After"},
		MaxAge:         600,
	}).Handler(h)
}
