package routing

import (
	"errors"
	"math"

	"github.com/Schepie/CityExplorer-sub000/internal/lib/geo"
)

// errDegeneratePath is returned when a path cannot form a single segment
var errDegeneratePath = errors.New("path must have at least 2 points")

// pathMatcher implements the PathMatcher interface
type pathMatcher struct {
	geoUtils geo.GeoUtils
}

// NewPathMatcher creates a new PathMatcher implementation
func NewPathMatcher() PathMatcher {
	return &pathMatcher{
		geoUtils: geo.NewGeoUtils(),
	}
}

// IsOnPath reports whether point is within toleranceMeters of path.
// Degenerate paths fail closed so callers fall back to a stricter check.
func (m *pathMatcher) IsOnPath(point geo.Point, path []geo.Point, toleranceMeters float64) bool {
	distance, err := m.DistanceToPath(point, path)
	if err != nil {
		return false
	}
	return distance <= toleranceMeters
}

// DistanceToPath returns the minimum distance from point to any segment of path
func (m *pathMatcher) DistanceToPath(point geo.Point, path []geo.Point) (float64, error) {
	if len(path) < 2 {
		return 0, errDegeneratePath
	}

	distance, err := m.geoUtils.PointToPolyline(point, geo.Polyline{Points: path})
	if err != nil {
		return 0, err
	}
	if math.IsNaN(distance) {
		return 0, errors.New("distance to path is undefined")
	}
	return distance, nil
}

// Classify determines whether point is on, near, or off path
func (m *pathMatcher) Classify(point geo.Point, path []geo.Point, onPathMeters, nearMeters float64) Classification {
	distance, err := m.DistanceToPath(point, path)
	if err != nil {
		return OffPath
	}

	switch {
	case distance <= onPathMeters:
		return OnPath
	case distance <= nearMeters:
		return NearPath
	default:
		return OffPath
	}
}
