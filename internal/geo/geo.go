// Package geo computes great-circle distances between airports.
package geo

import "github.com/umahmood/haversine"

// EarthRadiusKm is the mean Earth radius haversine.Distance uses for its
// kilometre result.
const EarthRadiusKm = 6371.0

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// DistanceKm returns the great-circle distance in kilometres between two points
// given in decimal degrees. Inputs are not range-checked; NaN inputs yield NaN.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	_, km := haversine.Distance(
		haversine.Coord{Lat: lat1, Lon: lon1},
		haversine.Coord{Lat: lat2, Lon: lon2},
	)
	return km
}

// Between returns DistanceKm for two points.
func Between(a, b Point) float64 {
	return DistanceKm(a.Lat, a.Lon, b.Lat, b.Lon)
}
