package models

import (
	"github.com/aldikf/airfare-price-service/internal/airports"
	"github.com/aldikf/airfare-price-service/internal/features"
)

// FlightDescriptor is one prediction request as entered by the user.
// Time and duration fields are free text; see the features package for how they are read.
type FlightDescriptor struct {
	Airline       string `json:"airline"`
	TravelDate    string `json:"travelDate"`
	DepartureTime string `json:"departureTime"`
	ArrivalTime   string `json:"arrivalTime"`
	Duration      string `json:"duration"`
	Transit       string `json:"transit"`
	InfoNote      string `json:"infoNote"`
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
}

// PricePrediction is the pipeline result for one descriptor.
type PricePrediction struct {
	Estimate    float64             `json:"estimate"`
	LowerBound  float64             `json:"lowerBound"`
	UpperBound  float64             `json:"upperBound"`
	DistanceKm  float64             `json:"distanceKm"`
	Origin      airports.Record     `json:"origin"`
	Destination airports.Record     `json:"destination"`
	Features    features.FeatureRow `json:"features"`
	Model       string              `json:"model"`
	Cached      bool                `json:"cached,omitempty"` // served from the prediction cache
}
