// Package service wraps the prediction pipeline for request handling: a
// read-through prediction cache, coalescing of identical concurrent
// requests, metrics and request-scoped logging.
package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/aldikf/airfare-price-service/internal/airports"
	"github.com/aldikf/airfare-price-service/internal/cache"
	"github.com/aldikf/airfare-price-service/internal/model"
	"github.com/aldikf/airfare-price-service/internal/models"
	"github.com/aldikf/airfare-price-service/internal/observability"
	"github.com/aldikf/airfare-price-service/internal/pipeline"
)

// Predictor runs one descriptor through feature derivation and inference.
// *pipeline.Pipeline satisfies it.
type Predictor interface {
	Predict(d models.FlightDescriptor) (models.PricePrediction, error)
	ModelInfo() model.Info
}

// PredictionService answers fare predictions. The cache is optional.
type PredictionService struct {
	predictor Predictor
	cache     cache.Cache
	ttl       time.Duration
	logger    *zap.Logger
	group     singleflight.Group
}

// NewPredictionService returns a service over predictor. c may be nil to
// disable caching. logger is used when the request context carries none.
func NewPredictionService(predictor Predictor, c cache.Cache, ttl time.Duration, logger *zap.Logger) *PredictionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PredictionService{predictor: predictor, cache: c, ttl: ttl, logger: logger}
}

// ModelInfo identifies the loaded model.
func (s *PredictionService) ModelInfo() model.Info {
	return s.predictor.ModelInfo()
}

// Predict returns the fare estimate for d. Cache failures are logged and
// never fail the request. When ctx ends before inference finishes, Predict
// returns ctx.Err() and the shared inference still completes and is cached.
func (s *PredictionService) Predict(ctx context.Context, d models.FlightDescriptor) (models.PricePrediction, error) {
	d = pipeline.FromText(d)
	logger := observability.LoggerFrom(ctx, s.logger)
	key := CacheKey(s.predictor.ModelInfo(), d)

	if p, ok := s.lookup(ctx, logger, key); ok {
		observability.RecordPredictionOutcome(observability.OutcomeSuccess)
		logger.Debug("prediction served",
			zap.String("origin", p.Origin.Code),
			zap.String("destination", p.Destination.Code),
			zap.Bool("cached", true))
		return p, nil
	}

	if err := ctx.Err(); err != nil {
		return models.PricePrediction{}, s.fail(logger, err)
	}

	// The flight outlives a caller whose deadline expires first, so it
	// stores under a context that is never cancelled.
	storeCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		start := time.Now()
		p, err := s.predictor.Predict(d)
		if err != nil {
			return nil, err
		}
		r := computed{prediction: p, elapsed: time.Since(start)}
		s.store(storeCtx, logger, key, p)
		return r, nil
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return models.PricePrediction{}, s.fail(logger, ctx.Err())
	}
	if res.Err != nil {
		return models.PricePrediction{}, s.fail(logger, res.Err)
	}
	r := res.Val.(computed)
	p := r.prediction
	observability.RecordPrediction(p.Origin.Code, p.Destination.Code, p.Estimate, p.DistanceKm, p.Features.NullColumns(), r.elapsed)
	if nulls := p.Features.NullColumns(); len(nulls) > 0 {
		logger.Debug("features imputed", zap.Strings("columns", nulls))
	}
	logger.Info("prediction served",
		zap.String("origin", p.Origin.Code),
		zap.String("destination", p.Destination.Code),
		zap.Float64("estimate", p.Estimate),
		zap.Float64("distanceKm", p.DistanceKm),
		zap.Bool("cached", false),
		zap.Bool("coalesced", res.Shared))
	return p, nil
}

// fail records and logs a prediction error and returns it unchanged.
func (s *PredictionService) fail(logger *zap.Logger, err error) error {
	outcome := Outcome(err)
	observability.RecordPredictionOutcome(outcome)
	switch outcome {
	case observability.OutcomeError:
		logger.Error("prediction failed", zap.Error(err))
	case observability.OutcomeTimeout:
		logger.Warn("prediction timed out", zap.Error(err))
	default:
		logger.Info("prediction rejected", zap.String("outcome", outcome), zap.Error(err))
	}
	return err
}

// computed is a pipeline result shared by coalesced callers.
type computed struct {
	prediction models.PricePrediction
	elapsed    time.Duration
}

func (s *PredictionService) lookup(ctx context.Context, logger *zap.Logger, key string) (models.PricePrediction, bool) {
	if s.cache == nil {
		return models.PricePrediction{}, false
	}
	p, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		observability.RecordCacheResult(s.cache.Name(), "error")
		logger.Warn("cache get failed", zap.String("cacheType", s.cache.Name()), zap.Error(err))
		return models.PricePrediction{}, false
	case !ok:
		observability.RecordCacheResult(s.cache.Name(), "miss")
		return models.PricePrediction{}, false
	}
	observability.RecordCacheResult(s.cache.Name(), "hit")
	p.Cached = true
	return p, true
}

func (s *PredictionService) store(ctx context.Context, logger *zap.Logger, key string, p models.PricePrediction) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, p, s.ttl); err != nil {
		logger.Warn("cache set failed", zap.String("cacheType", s.cache.Name()), zap.Error(err))
	}
}

// Outcome classifies a prediction error for metrics and traffic windows.
func Outcome(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeSuccess
	case errors.Is(err, pipeline.ErrValidation):
		return observability.OutcomeValidation
	case errors.Is(err, airports.ErrUnknownAirport):
		return observability.OutcomeUnknownAirport
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return observability.OutcomeTimeout
	default:
		return observability.OutcomeError
	}
}

// CacheKey identifies a prediction by model version and trimmed descriptor.
// A new model version never reads entries written by an older one.
func CacheKey(info model.Info, d models.FlightDescriptor) string {
	fields := []string{
		d.Airline, d.TravelDate, d.DepartureTime, d.ArrivalTime, d.Duration,
		d.Transit, d.InfoNote, d.Origin, d.Destination,
	}
	sum := xxhash.Sum64String(strings.Join(fields, "\x1f"))
	return info.Name + "@" + info.Version + ":" + strconv.FormatUint(sum, 16)
}
