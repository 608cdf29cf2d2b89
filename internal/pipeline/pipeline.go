// Package pipeline turns a flight descriptor into a price estimate:
// airport lookup, great-circle distance, feature derivation and model inference.
//
// A Pipeline holds only immutable, shared dependencies and performs no I/O,
// so one instance may serve any number of concurrent callers.
package pipeline

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/aldikf/airfare-price-service/internal/airports"
	"github.com/aldikf/airfare-price-service/internal/features"
	"github.com/aldikf/airfare-price-service/internal/geo"
	"github.com/aldikf/airfare-price-service/internal/model"
	"github.com/aldikf/airfare-price-service/internal/models"
)

// ErrValidation marks a request the caller must correct (same airports, malformed schedule).
var ErrValidation = errors.New("invalid flight request")

// BandFraction is the half-width of the uncertainty band around the estimate.
const BandFraction = 0.10

// Resolver looks up airports by label or code.
type Resolver interface {
	Resolve(labelOrCode string) (airports.Record, error)
}

// Pipeline computes price predictions.
type Pipeline struct {
	airports Resolver
	model    model.Predictor
}

// New returns a Pipeline over the given directory and model.
func New(dir Resolver, predictor model.Predictor) *Pipeline {
	return &Pipeline{airports: dir, model: predictor}
}

// Predict validates d, resolves both airports, derives the feature row and runs the model once.
// The model is not called when validation or airport lookup fails.
func (p *Pipeline) Predict(d models.FlightDescriptor) (models.PricePrediction, error) {
	origin := strings.TrimSpace(d.Origin)
	destination := strings.TrimSpace(d.Destination)
	if origin == "" || destination == "" {
		return models.PricePrediction{}, fmt.Errorf("%w: origin and destination are required", ErrValidation)
	}
	if strings.EqualFold(origin, destination) {
		return models.PricePrediction{}, fmt.Errorf("%w: origin and destination must differ", ErrValidation)
	}

	from, err := p.airports.Resolve(origin)
	if err != nil {
		return models.PricePrediction{}, fmt.Errorf("origin: %w", err)
	}
	to, err := p.airports.Resolve(destination)
	if err != nil {
		return models.PricePrediction{}, fmt.Errorf("destination: %w", err)
	}
	// Same airport referenced once by label and once by code.
	if from.Code == to.Code {
		return models.PricePrediction{}, fmt.Errorf("%w: origin and destination must differ", ErrValidation)
	}

	distance := geo.Between(from.Point(), to.Point())
	row := features.Transform(features.Input{
		Airline:       d.Airline,
		InfoNote:      d.InfoNote,
		TravelDate:    d.TravelDate,
		DepartureTime: d.DepartureTime,
		ArrivalTime:   d.ArrivalTime,
		Duration:      d.Duration,
		Transit:       d.Transit,
		DistanceKm:    distance,
	})

	estimate, err := p.model.Predict(row)
	if err != nil {
		return models.PricePrediction{}, fmt.Errorf("model predict: %w", err)
	}
	if math.IsNaN(estimate) || math.IsInf(estimate, 0) {
		return models.PricePrediction{}, fmt.Errorf("model predict: non-finite estimate %v", estimate)
	}
	if estimate < 0 {
		estimate = 0
	}

	return models.PricePrediction{
		Estimate:    estimate,
		LowerBound:  estimate * (1 - BandFraction),
		UpperBound:  estimate * (1 + BandFraction),
		DistanceKm:  distance,
		Origin:      from,
		Destination: to,
		Features:    row,
		Model:       p.model.Info().Name + "@" + p.model.Info().Version,
	}, nil
}

// ModelInfo returns the identity of the model in use.
func (p *Pipeline) ModelInfo() model.Info {
	return p.model.Info()
}
