package geospatial

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

var ErrInvalidCoordinates = errors.New("invalid coordinates")

// NewPoint builds an orb point from latitude/longitude. orb stores [lon, lat].
func NewPoint(latitude, longitude float64) (orb.Point, error) {
	if !ValidCoordinates(latitude, longitude) {
		return orb.Point{}, fmt.Errorf("%w: lat %v, lon %v", ErrInvalidCoordinates, latitude, longitude)
	}
	return orb.Point{longitude, latitude}, nil
}

// ValidCoordinates reports whether lat/lon are finite and in range.
func ValidCoordinates(latitude, longitude float64) bool {
	if math.IsNaN(latitude) || math.IsNaN(longitude) {
		return false
	}
	return latitude >= -90 && latitude <= 90 && longitude >= -180 && longitude <= 180
}

// DistanceKm returns the great-circle distance between two points.
func DistanceKm(a, b orb.Point) float64 {
	return geo.DistanceHaversine(a, b) / 1000
}

// ParseGeometry validates a GeoJSON Feature or bare geometry.
func ParseGeometry(data []byte) (orb.Geometry, error) {
	if feature, err := geojson.UnmarshalFeature(data); err == nil && feature.Geometry != nil {
		return feature.Geometry, nil
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("invalid GeoJSON: %w", err)
	}
	if g.Geometry() == nil {
		return nil, errors.New("invalid GeoJSON: no geometry")
	}
	return g.Geometry(), nil
}

// AreaHectares returns the geodesic area of a polygonal geometry.
func AreaHectares(geometry orb.Geometry) float64 {
	return ConvertToHectares(math.Abs(geo.Area(geometry)))
}

// ConvertToHectares converts square meters to hectares
func ConvertToHectares(sqMeters float64) float64 {
	return sqMeters / 10000
}
