// Package client is a Go client for the fare estimation API with retry and
// backoff on rate limiting, upstream failures and timeouts.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aldikf/airfare-price-service/internal/observability"
)

// FareClient is the API surface used by callers; tests substitute their own.
type FareClient interface {
	Predict(ctx context.Context, req PredictionRequest) (Prediction, error)
	PredictSchedule(ctx context.Context, req ScheduleRequest) (Prediction, error)
	SearchAirports(ctx context.Context, query string, limit int) ([]Airport, error)
	Health(ctx context.Context) (Health, error)
}

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrUnknownAirport  = errors.New("unknown airport")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
)

// APIError is a non-2xx response decoded from {"error":{...}}. It unwraps to
// one of the sentinel errors above.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("HTTP %d", e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.RequestID != "" {
		msg += " (request " + e.RequestID + ")"
	}
	return msg
}

func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode == http.StatusNotFound && e.Code == "UNKNOWN_AIRPORT":
		return ErrUnknownAirport
	case e.StatusCode >= 500:
		return ErrUpstreamFailure
	default:
		return ErrInvalidRequest
	}
}

// PredictionRequest is the free-text prediction body.
type PredictionRequest struct {
	Airline       string `json:"airline,omitempty"`
	TravelDate    string `json:"travelDate,omitempty"`
	DepartureTime string `json:"departureTime,omitempty"`
	ArrivalTime   string `json:"arrivalTime,omitempty"`
	Duration      string `json:"duration,omitempty"`
	Transit       string `json:"transit,omitempty"`
	InfoNote      string `json:"infoNote,omitempty"`
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
}

// ScheduleRequest is the structured prediction body; Date is yyyy-mm-dd and
// times are HH:MM.
type ScheduleRequest struct {
	Airline       string `json:"airline,omitempty"`
	Date          string `json:"date"`
	DepartureTime string `json:"departureTime"`
	ArrivalTime   string `json:"arrivalTime"`
	Transit       string `json:"transit,omitempty"`
	InfoNote      string `json:"infoNote,omitempty"`
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
}

// Airport is one airport record as served by the API.
type Airport struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Label     string  `json:"label"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Prediction is a fare estimate.
type Prediction struct {
	Estimate        float64 `json:"estimate"`
	LowerBound      float64 `json:"lowerBound"`
	UpperBound      float64 `json:"upperBound"`
	Currency        string  `json:"currency"`
	EstimateDisplay string  `json:"estimateDisplay"`
	DistanceKm      float64 `json:"distanceKm"`
	DistanceDisplay string  `json:"distanceDisplay"`
	Origin          Airport `json:"origin"`
	Destination     Airport `json:"destination"`
	Model           string  `json:"model"`
	Cached          bool    `json:"cached"`
}

// Health is the /health body.
type Health struct {
	Status   string            `json:"status"`
	Reason   string            `json:"reason,omitempty"`
	Checks   map[string]string `json:"checks"`
	Airports int               `json:"airports"`
}

// Config configures an HTTPClient. Zero values fall back to defaults.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// HTTPClient talks to the API over HTTP.
type HTTPClient struct {
	baseURL        *url.URL
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
}

// New returns an HTTPClient for cfg.BaseURL.
func New(cfg Config) (*HTTPClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrInvalidRequest)
	}
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid base URL %q", ErrInvalidRequest, cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 100 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 2 * time.Second
	}
	return &HTTPClient{
		baseURL:        u,
		timeout:        cfg.Timeout,
		client:         &http.Client{Timeout: cfg.Timeout},
		retryAttempts:  cfg.RetryAttempts,
		retryBaseDelay: cfg.RetryBaseDelay,
		retryMaxDelay:  cfg.RetryMaxDelay,
	}, nil
}

// Predict posts a free-text prediction request.
func (c *HTTPClient) Predict(ctx context.Context, req PredictionRequest) (Prediction, error) {
	var p Prediction
	err := c.do(ctx, http.MethodPost, "/v1/predictions", nil, req, &p)
	return p, err
}

// PredictSchedule posts a structured prediction request.
func (c *HTTPClient) PredictSchedule(ctx context.Context, req ScheduleRequest) (Prediction, error) {
	var p Prediction
	err := c.do(ctx, http.MethodPost, "/v1/predictions/schedule", nil, req, &p)
	return p, err
}

// SearchAirports lists airports whose label contains query. An empty query
// lists all; limit <= 0 uses the server default.
func (c *HTTPClient) SearchAirports(ctx context.Context, query string, limit int) ([]Airport, error) {
	params := url.Values{}
	if query != "" {
		params.Set("q", query)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Airports []Airport `json:"airports"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/airports", params, nil, &out); err != nil {
		return nil, err
	}
	return out.Airports, nil
}

// Health returns the service health in a single attempt. A 503 is not an
// error: the body still describes the state.
func (c *HTTPClient) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.call(ctx, http.MethodGet, "/health", nil, nil, &h)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable && h.Status != "" {
		return h, nil
	}
	return h, err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, params url.Values, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.calculateBackoff(attempt)):
			}
		}

		err := c.call(ctx, method, path, params, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *HTTPClient) call(ctx context.Context, method, path string, params url.Values, payload []byte, out interface{}) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	u.RawQuery = params.Encode()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, u.String(), bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Health answers 503 with its normal body.
		if out != nil {
			_ = json.Unmarshal(data, out)
		}
		return decodeAPIError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, data []byte) *APIError {
	var env struct {
		Error struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			RequestID string `json:"requestId"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: status}
	if json.Unmarshal(data, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.RequestID = env.Error.RequestID
	}
	return apiErr
}

func isRetryable(err error) bool {
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "timeout")
}

func (c *HTTPClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}
