package geo

import "time"

// Point represents a geographic coordinate
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Polyline represents an encoded polyline with optional decoded points
type Polyline struct {
	EncodedPolyline string  `json:"encoded_polyline,omitempty"`
	Points          []Point `json:"points"`
}

// Position is a single location fix from a device sensor or the simulator.
// Heading is nil when the source does not report one.
type Position struct {
	Point
	Heading   *float64  `json:"heading,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// NewPosition builds a Position without heading, stamped with ts
func NewPosition(latitude, longitude float64, ts time.Time) Position {
	return Position{Point: Point{Latitude: latitude, Longitude: longitude}, Timestamp: ts}
}

// WithHeading returns a copy of p carrying the given heading in degrees
func (p Position) WithHeading(deg float64) Position {
	h := normalizeDegrees(deg)
	p.Heading = &h
	return p
}

// GeoUtils interface defines geographic calculation utilities with input validation
type GeoUtils interface {
	// Calculate great-circle distance between two points in meters
	PointToPoint(p1, p2 Point) (float64, error)

	// Calculate minimum distance from point to polyline in meters
	PointToPolyline(point Point, polyline Polyline) (float64, error)

	// Decode OSRM polyline6 string to point sequence
	DecodePolyline6(encoded string) ([]Point, error)

	// Decode Google polyline string to point sequence
	DecodePolyline(encoded string) ([]Point, error)

	// Find closest point on polyline to given point
	ClosestPointOnPolyline(point Point, polyline Polyline) (Point, error)

	// Filter points to those within specified distance of center point
	FilterPointsByDistance(points []Point, center Point, maxDistanceMeters float64) ([]Point, error)

	// Calculate distance between coordinate pairs (convenience method)
	DistanceFromCoords(lat1, lon1, lat2, lon2 float64) (float64, error)
}

// NewGeoUtils is implemented in geo.go
