package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aldikf/airfare-price-service/internal/traffic"
)

// Prediction outcome labels.
const (
	OutcomeSuccess        = "success"
	OutcomeValidation     = "validation"
	OutcomeUnknownAirport = "unknown_airport"
	OutcomeError          = "error"
	OutcomeTimeout        = "timeout"
)

// otherRoute labels predictions on routes outside the allow-list.
const otherRoute = "other"

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency. Watch for: p95/p99 increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Predictions by outcome. Watch for: validation spikes (client bug) or errors (model/schema).
	PredictionsTotal *prometheus.CounterVec

	// Estimated fares. Watch for: distribution shift after a model rollout.
	PredictionEstimate prometheus.Histogram

	// Great-circle distance of predicted routes.
	PredictionDistanceKm prometheus.Histogram

	// Feature columns that were null and left to imputation. Watch for: client sending unparseable dates/times.
	NullFeaturesTotal *prometheus.CounterVec

	// Model inference latency.
	InferenceDuration prometheus.Histogram

	// Per-route prediction count (allow-list; others go to "other").
	PredictionsByRouteTotal *prometheus.CounterVec

	// Cache lookups by result (hit, miss, error).
	CacheRequestsTotal *prometheus.CounterVec

	// Rate limit denials.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state per component (0=closed, 1=open, 2=half_open).
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions. Watch for: flapping between open and half_open.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	trackedRoutesMu sync.RWMutex
	trackedRoutes   map[string]struct{}

	rateLimitGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictionsTotal",
			Help: "Total number of fare predictions by outcome",
		},
		[]string{"outcome"},
	)
	PredictionEstimate = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "predictionEstimate",
			Help:    "Estimated fare in the configured currency",
			Buckets: prometheus.ExponentialBuckets(250000, 1.6, 10),
		},
	)
	PredictionDistanceKm = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "predictionDistanceKm",
			Help:    "Great-circle distance of predicted routes in kilometres",
			Buckets: []float64{100, 250, 500, 1000, 1500, 2000, 3000, 4000},
		},
	)
	NullFeaturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nullFeaturesTotal",
			Help: "Feature columns that were null at inference time",
		},
		[]string{"column"},
	)
	InferenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inferenceDurationSeconds",
			Help:    "Pipeline latency from resolution to estimate, in seconds",
			Buckets: []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01},
		},
	)
	PredictionsByRouteTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictionsByRouteTotal",
			Help: "Predictions by origin-destination pair (allow-list; others use route=other)",
		},
		[]string{"route"},
	)
	CacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheRequestsTotal",
			Help: "Prediction cache lookups by backend and result",
		},
		[]string{"cacheType", "result"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		PredictionsTotal, PredictionEstimate, PredictionDistanceKm,
		NullFeaturesTotal, InferenceDuration, PredictionsByRouteTotal,
		CacheRequestsTotal,
		RateLimitDeniedTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
	)
}

// RegisterRateLimitGauges registers load and reject gauges read from tracker.
// Call from main after config load with cfg.OverloadWindow.
func RegisterRateLimitGauges(tracker *traffic.Tracker, window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Prediction requests in the overload window; load/capacity planning",
				},
				func() float64 { return float64(tracker.Total(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in the overload window",
				},
				func() float64 { return float64(tracker.Count(traffic.Denied, window)) },
			),
		)
	})
}

// SetTrackedRoutes sets the allow-list for per-route metrics. Entries are
// "ORIGIN-DESTINATION" airport codes; others increment "other".
func SetTrackedRoutes(routes []string) {
	trackedRoutesMu.Lock()
	defer trackedRoutesMu.Unlock()
	trackedRoutes = make(map[string]struct{}, len(routes))
	for _, r := range routes {
		trackedRoutes[RouteLabel(r, "")] = struct{}{}
	}
}

// RouteLabel joins two airport codes into the metric label form. A single
// argument already in "AAA-BBB" form is normalized as is.
func RouteLabel(origin, destination string) string {
	origin = strings.ToUpper(strings.TrimSpace(origin))
	if destination == "" {
		return origin
	}
	return origin + "-" + strings.ToUpper(strings.TrimSpace(destination))
}

// RecordPrediction records a successful prediction.
func RecordPrediction(origin, destination string, estimate, distanceKm float64, nullColumns []string, inference time.Duration) {
	PredictionsTotal.WithLabelValues(OutcomeSuccess).Inc()
	PredictionEstimate.Observe(estimate)
	PredictionDistanceKm.Observe(distanceKm)
	InferenceDuration.Observe(inference.Seconds())
	for _, c := range nullColumns {
		NullFeaturesTotal.WithLabelValues(c).Inc()
	}

	route := RouteLabel(origin, destination)
	trackedRoutesMu.RLock()
	_, ok := trackedRoutes[route]
	trackedRoutesMu.RUnlock()
	if !ok {
		route = otherRoute
	}
	PredictionsByRouteTotal.WithLabelValues(route).Inc()
}

// RecordPredictionOutcome counts a prediction that ended with outcome without
// observing estimate histograms. Used for failures and cache hits.
func RecordPredictionOutcome(outcome string) {
	PredictionsTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheResult records one cache lookup.
func RecordCacheResult(cacheType, result string) {
	CacheRequestsTotal.WithLabelValues(cacheType, result).Inc()
}

// RecordCircuitBreakerTransition counts a transition and sets the state gauge.
func RecordCircuitBreakerTransition(component, from, to string, state int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(state))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
