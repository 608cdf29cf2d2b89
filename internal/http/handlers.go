package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/aldikf/airfare-price-service/internal/airports"
	"github.com/aldikf/airfare-price-service/internal/features"
	"github.com/aldikf/airfare-price-service/internal/lifecycle"
	"github.com/aldikf/airfare-price-service/internal/model"
	"github.com/aldikf/airfare-price-service/internal/models"
	"github.com/aldikf/airfare-price-service/internal/observability"
	"github.com/aldikf/airfare-price-service/internal/pipeline"
	"github.com/aldikf/airfare-price-service/internal/traffic"
	"github.com/aldikf/airfare-price-service/internal/validation"
)

// Error codes returned in {"error":{"code": ...}}.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeRequestTooLarge  = "REQUEST_TOO_LARGE"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeUnknownAirport   = "UNKNOWN_AIRPORT"
	CodeRateLimited      = "RATE_LIMITED"
	CodeTimeout          = "TIMEOUT"
	CodeInternal         = "INTERNAL"
)

const (
	searchQueryMaxLen  = 64
	defaultSearchLimit = 20
	maxSearchLimit     = 200
)

// PredictionService answers fare predictions. *service.PredictionService satisfies it.
type PredictionService interface {
	Predict(ctx context.Context, d models.FlightDescriptor) (models.PricePrediction, error)
	ModelInfo() model.Info
}

// AirportDirectory serves the airport endpoints. *airports.Directory satisfies it.
type AirportDirectory interface {
	Resolve(labelOrCode string) (airports.Record, error)
	Search(query string, limit int) []airports.Record
	Len() int
}

// Options configures a Handler.
type Options struct {
	// Currency labels estimates in responses, e.g. "Rp".
	Currency string
	// CachePing, when set, reports prediction cache reachability in /health.
	CachePing func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	predictions PredictionService
	airports    AirportDirectory
	monitor     *lifecycle.Monitor
	logger      *zap.Logger
	opts        Options

	healthStatusMu   sync.Mutex
	healthStatusPrev lifecycle.Status
}

// NewHandler returns a new Handler. monitor may be nil, in which case health
// is always reported healthy.
func NewHandler(predictions PredictionService, dir AirportDirectory, monitor *lifecycle.Monitor, logger *zap.Logger, opts Options) *Handler {
	if monitor == nil {
		monitor = lifecycle.NewMonitor(nil, nil, lifecycle.Thresholds{})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Currency == "" {
		opts.Currency = "IDR"
	}
	return &Handler{
		predictions: predictions,
		airports:    dir,
		monitor:     monitor,
		logger:      logger,
		opts:        opts,
	}
}

type airportResponse struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Label     string  `json:"label"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func newAirportResponse(r airports.Record) airportResponse {
	return airportResponse{Code: r.Code, Name: r.Name, Label: r.Label(), Latitude: r.Latitude, Longitude: r.Longitude}
}

type predictionResponse struct {
	Estimate        float64              `json:"estimate"`
	LowerBound      float64              `json:"lowerBound"`
	UpperBound      float64              `json:"upperBound"`
	Currency        string               `json:"currency"`
	EstimateDisplay string               `json:"estimateDisplay"`
	DistanceKm      float64              `json:"distanceKm"`
	DistanceDisplay string               `json:"distanceDisplay"`
	Origin          airportResponse      `json:"origin"`
	Destination     airportResponse      `json:"destination"`
	Model           string               `json:"model"`
	Cached          bool                 `json:"cached"`
	Features        *features.FeatureRow `json:"features,omitempty"`
}

// PostPrediction handles POST /v1/predictions with free-text flight fields.
func (h *Handler) PostPrediction(w http.ResponseWriter, r *http.Request) {
	var req validation.PredictionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	h.predict(w, r, models.FlightDescriptor{
		Airline:       req.Airline,
		TravelDate:    req.TravelDate,
		DepartureTime: req.DepartureTime,
		ArrivalTime:   req.ArrivalTime,
		Duration:      req.Duration,
		Transit:       req.Transit,
		InfoNote:      req.InfoNote,
		Origin:        req.Origin,
		Destination:   req.Destination,
	})
}

// PostSchedulePrediction handles POST /v1/predictions/schedule with a
// structured date and HH:MM times; duration is derived.
func (h *Handler) PostSchedulePrediction(w http.ResponseWriter, r *http.Request) {
	var req validation.ScheduleRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	d, err := pipeline.FromSchedule(pipeline.ScheduleInput{
		Airline:       req.Airline,
		Date:          req.Date,
		DepartureTime: req.DepartureTime,
		ArrivalTime:   req.ArrivalTime,
		Transit:       req.Transit,
		InfoNote:      req.InfoNote,
		Origin:        req.Origin,
		Destination:   req.Destination,
	})
	if err != nil {
		h.monitor.Tracker().Record(traffic.Rejected)
		writeError(w, r, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}
	h.predict(w, r, d)
}

// decodeAndValidate reads a JSON body into req and checks it. On failure it
// writes the error response, records the rejection and returns false.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(req)
	if err == nil && dec.More() {
		err = errors.New("unexpected data after JSON body")
	}
	if err != nil {
		h.monitor.Tracker().Record(traffic.Rejected)
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, r, http.StatusRequestEntityTooLarge, CodeRequestTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, "request body is required")
		default:
			writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, "malformed JSON: "+err.Error())
		}
		return false
	}
	if err := validation.Struct(req); err != nil {
		h.monitor.Tracker().Record(traffic.Rejected)
		writeError(w, r, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return false
	}
	return true
}

func (h *Handler) predict(w http.ResponseWriter, r *http.Request, d models.FlightDescriptor) {
	p, err := h.predictions.Predict(r.Context(), d)
	if err != nil {
		h.writePredictionError(w, r, err)
		return
	}
	h.monitor.Tracker().Record(traffic.Success)

	resp := predictionResponse{
		Estimate:        p.Estimate,
		LowerBound:      p.LowerBound,
		UpperBound:      p.UpperBound,
		Currency:        h.opts.Currency,
		EstimateDisplay: formatPrice(h.opts.Currency, p.Estimate),
		DistanceKm:      p.DistanceKm,
		DistanceDisplay: formatDistance(p.DistanceKm),
		Origin:          newAirportResponse(p.Origin),
		Destination:     newAirportResponse(p.Destination),
		Model:           p.Model,
		Cached:          p.Cached,
	}
	if r.URL.Query().Get("debug") == "features" {
		row := p.Features
		resp.Features = &row
	}
	writeJSON(w, http.StatusOK, resp)
}

// writePredictionError maps service errors to responses and records the
// outcome for health evaluation.
func (h *Handler) writePredictionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, pipeline.ErrValidation):
		h.monitor.Tracker().Record(traffic.Rejected)
		writeError(w, r, http.StatusBadRequest, CodeValidationFailed, err.Error())
	case errors.Is(err, airports.ErrUnknownAirport):
		h.monitor.Tracker().Record(traffic.Rejected)
		writeError(w, r, http.StatusNotFound, CodeUnknownAirport, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		h.monitor.Tracker().Record(traffic.Failed)
		writeError(w, r, http.StatusGatewayTimeout, CodeTimeout, "prediction timed out")
	default:
		h.monitor.Tracker().Record(traffic.Failed)
		if errors.Is(err, features.ErrSchemaMismatch) {
			observability.LoggerFrom(r.Context(), h.logger).Error("model schema mismatch", zap.Error(err))
		}
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "Unable to estimate fare")
	}
}

type airportListResponse struct {
	Airports []airportResponse `json:"airports"`
	Count    int               `json:"count"`
	Total    int               `json:"total"`
}

// ListAirports handles GET /v1/airports?q=&limit=. Without q it lists
// airports in table order.
func (h *Handler) ListAirports(w http.ResponseWriter, r *http.Request) {
	q, err := validation.ValidateSearchQuery(r.URL.Query().Get("q"), searchQueryMaxLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	limit, err := validation.ParseLimit(r.URL.Query().Get("limit"), 0, maxSearchLimit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	if q != "" && limit == 0 {
		limit = defaultSearchLimit
	}

	records := h.airports.Search(q, limit)
	out := airportListResponse{Airports: make([]airportResponse, len(records)), Count: len(records), Total: h.airports.Len()}
	for i, rec := range records {
		out.Airports[i] = newAirportResponse(rec)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetAirport handles GET /v1/airports/{code}.
func (h *Handler) GetAirport(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(mux.Vars(r)["code"])
	rec, err := h.airports.Resolve(code)
	if err != nil {
		writeError(w, r, http.StatusNotFound, CodeUnknownAirport, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newAirportResponse(rec))
}

// GetOptions handles GET /v1/options: the airline, transit and fare note menus.
func (h *Handler) GetOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.DefaultFormOptions())
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	report := h.monitor.Evaluate()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != report.Status {
		h.logger.Info("health status transition",
			zap.String("previous_status", string(prev)),
			zap.String("current_status", string(report.Status)),
			zap.String("reason", report.Reason))
	}
	h.healthStatusPrev = report.Status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"referenceData": "healthy"}
	if report.Status == lifecycle.StatusNotReady {
		checks["referenceData"] = "unhealthy"
	}
	if h.opts.CachePing != nil {
		if h.opts.CachePing(r.Context()) == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}

	resp := map[string]interface{}{
		"status":    report.Status,
		"service":   observability.ServiceName,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if report.Reason != "" {
		resp["reason"] = report.Reason
	}
	if report.Status != lifecycle.StatusNotReady {
		info := h.predictions.ModelInfo()
		resp["model"] = map[string]string{"name": info.Name, "version": info.Version}
		resp["airports"] = h.airports.Len()
	}
	writeJSON(w, report.HTTPStatus(), resp)
}

// writeJSON writes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error":{"code","message","requestId"}}.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}
