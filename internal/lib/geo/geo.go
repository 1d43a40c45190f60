package geo

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-polyline"
)

// EarthRadiusMeters is the mean Earth radius used by all distance helpers
const EarthRadiusMeters = 6371000.0

// polyline6 decodes OSRM's 1e6-precision encoding
var polyline6 = polyline.Codec{Dim: 2, Scale: 1e6}

// Distance calculates great-circle distance in meters using the Haversine formula
func Distance(p1, p2 Point) float64 {
	if p1.Latitude == p2.Latitude && p1.Longitude == p2.Longitude {
		return 0
	}

	lat1 := toRadians(p1.Latitude)
	lat2 := toRadians(p2.Latitude)
	dlat := lat2 - lat1
	dlon := toRadians(p2.Longitude) - toRadians(p1.Longitude)

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// Bearing returns the initial great-circle bearing from p1 to p2 in degrees [0, 360)
func Bearing(p1, p2 Point) float64 {
	lat1 := toRadians(p1.Latitude)
	lat2 := toRadians(p2.Latitude)
	dlon := toRadians(p2.Longitude - p1.Longitude)

	y := math.Sin(dlon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dlon)

	return normalizeDegrees(toDegrees(math.Atan2(y, x)))
}

// DestinationPoint projects origin along bearingDeg for distanceMeters on the sphere
func DestinationPoint(origin Point, bearingDeg, distanceMeters float64) Point {
	delta := distanceMeters / EarthRadiusMeters
	theta := toRadians(bearingDeg)
	lat1 := toRadians(origin.Latitude)
	lon1 := toRadians(origin.Longitude)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(theta))
	lon2 := lon1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
	)

	// Normalise longitude to [-180, 180)
	lon := math.Mod(toDegrees(lon2)+540, 360) - 180
	return Point{Latitude: toDegrees(lat2), Longitude: lon}
}

// DistanceToSegment returns the distance in meters from point to the closest
// point on segment [start, end]
func DistanceToSegment(point, start, end Point) float64 {
	closest, _ := closestPointOnSegment(point, start, end)
	return Distance(point, closest)
}

// closestPointOnSegment projects point onto [start, end] in a local
// equirectangular frame and returns the clamped projection and its fraction t.
func closestPointOnSegment(point, start, end Point) (Point, float64) {
	if start == end {
		return start, 0
	}

	k := math.Cos(toRadians((start.Latitude + end.Latitude) / 2))
	ax := (point.Longitude - start.Longitude) * k
	ay := point.Latitude - start.Latitude
	bx := (end.Longitude - start.Longitude) * k
	by := end.Latitude - start.Latitude

	lenSq := bx*bx + by*by
	if lenSq == 0 {
		return start, 0
	}

	t := (ax*bx + ay*by) / lenSq
	switch {
	case t <= 0:
		return start, 0
	case t >= 1:
		return end, 1
	}
	return Interpolate(start, end, t), t
}

// PointAhead snaps from onto the nearest segment of path and walks forward
// distanceMeters along the path. If the path is shorter, the last point is
// returned. Paths with fewer than two points yield false.
func PointAhead(path []Point, from Point, distanceMeters float64) (Point, bool) {
	if len(path) < 2 {
		return Point{}, false
	}

	segIdx := 0
	snapped := path[0]
	best := math.Inf(1)
	for i := 0; i < len(path)-1; i++ {
		closest, _ := closestPointOnSegment(from, path[i], path[i+1])
		if d := Distance(from, closest); d < best {
			best = d
			segIdx = i
			snapped = closest
		}
	}

	if distanceMeters <= 0 {
		return snapped, true
	}

	remaining := distanceMeters
	cursor := snapped
	for i := segIdx; i < len(path)-1; i++ {
		next := path[i+1]
		segLen := Distance(cursor, next)
		if segLen >= remaining && segLen > 0 {
			return Interpolate(cursor, next, remaining/segLen), true
		}
		remaining -= segLen
		cursor = next
	}

	return path[len(path)-1], true
}

// PathLength sums the segment lengths of path in meters
func PathLength(path []Point) float64 {
	total := 0.0
	for i := 0; i < len(path)-1; i++ {
		total += Distance(path[i], path[i+1])
	}
	return total
}

// DecodePolyline6 decodes an OSRM polyline6 string to a point sequence
func DecodePolyline6(encoded string) ([]Point, error) {
	return decodeWith(polyline6, encoded)
}

func decodeWith(codec polyline.Codec, encoded string) ([]Point, error) {
	if encoded == "" {
		return nil, errors.New("encoded polyline string is empty")
	}

	coords, _, err := codec.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, errors.New("failed to decode polyline: " + err.Error())
	}

	points := make([]Point, len(coords))
	for i, coord := range coords {
		points[i] = Point{Latitude: coord[0], Longitude: coord[1]}
		if !isValidCoordinate(points[i]) {
			return nil, errors.New("decoded polyline contains invalid coordinates")
		}
	}
	return points, nil
}

// Orb converts p to an orb.Point (longitude first)
func (p Point) Orb() orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

// LineString converts a point sequence to an orb.LineString
func LineString(points []Point) orb.LineString {
	ls := make(orb.LineString, 0, len(points))
	for _, p := range points {
		ls = append(ls, p.Orb())
	}
	return ls
}

// Bounds returns the bounding box of points; false when points is empty
func Bounds(points []Point) (orb.Bound, bool) {
	if len(points) == 0 {
		return orb.Bound{}, false
	}
	mp := make(orb.MultiPoint, 0, len(points))
	for _, p := range points {
		mp = append(mp, p.Orb())
	}
	return mp.Bound(), true
}

// geoUtils implements the GeoUtils interface
type geoUtils struct{}

// NewGeoUtils creates a new GeoUtils implementation
func NewGeoUtils() GeoUtils {
	return &geoUtils{}
}

// PointToPoint calculates great-circle distance between two validated points
func (g *geoUtils) PointToPoint(p1, p2 Point) (float64, error) {
	if !isValidCoordinate(p1) || !isValidCoordinate(p2) {
		return 0, errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")
	}
	return Distance(p1, p2), nil
}

// PointToPolyline calculates minimum distance from point to polyline
func (g *geoUtils) PointToPolyline(point Point, polyline Polyline) (float64, error) {
	if !isValidCoordinate(point) {
		return 0, errors.New("invalid point coordinates")
	}

	if len(polyline.Points) == 0 {
		return 0, errors.New("polyline has no points")
	}

	if len(polyline.Points) == 1 {
		return Distance(point, polyline.Points[0]), nil
	}

	minDistance := math.Inf(1)
	for i := 0; i < len(polyline.Points)-1; i++ {
		if d := DistanceToSegment(point, polyline.Points[i], polyline.Points[i+1]); d < minDistance {
			minDistance = d
		}
	}

	return minDistance, nil
}

// DecodePolyline6 decodes OSRM polyline6 strings
func (g *geoUtils) DecodePolyline6(encoded string) ([]Point, error) {
	return DecodePolyline6(encoded)
}

// DecodePolyline decodes Google polyline string to point sequence
func (g *geoUtils) DecodePolyline(encoded string) ([]Point, error) {
	return decodeWith(polyline.Codec{Dim: 2, Scale: 1e5}, encoded)
}

// ClosestPointOnPolyline finds closest point on polyline to given point
func (g *geoUtils) ClosestPointOnPolyline(point Point, polyline Polyline) (Point, error) {
	if !isValidCoordinate(point) {
		return Point{}, errors.New("invalid point coordinates")
	}

	if len(polyline.Points) == 0 {
		return Point{}, errors.New("polyline has no points")
	}

	if len(polyline.Points) == 1 {
		return polyline.Points[0], nil
	}

	var closestPoint Point
	minDistance := math.Inf(1)

	for i := 0; i < len(polyline.Points)-1; i++ {
		closestOnSegment, _ := closestPointOnSegment(point, polyline.Points[i], polyline.Points[i+1])
		if d := Distance(point, closestOnSegment); d < minDistance {
			minDistance = d
			closestPoint = closestOnSegment
		}
	}

	return closestPoint, nil
}

// FilterPointsByDistance filters points to those within specified distance of center point
func (g *geoUtils) FilterPointsByDistance(points []Point, center Point, maxDistanceMeters float64) ([]Point, error) {
	if !isValidCoordinate(center) {
		return nil, errors.New("invalid center point coordinates")
	}

	var filteredPoints []Point
	for _, point := range points {
		if !isValidCoordinate(point) {
			continue // Skip invalid points
		}
		if Distance(center, point) <= maxDistanceMeters {
			filteredPoints = append(filteredPoints, point)
		}
	}

	return filteredPoints, nil
}

// DistanceFromCoords calculates distance between two coordinate pairs
func (g *geoUtils) DistanceFromCoords(lat1, lon1, lat2, lon2 float64) (float64, error) {
	return g.PointToPoint(Point{Latitude: lat1, Longitude: lon1}, Point{Latitude: lat2, Longitude: lon2})
}

// NewPoint creates a Point from latitude and longitude values with validation
func NewPoint(latitude, longitude float64) (Point, error) {
	point := Point{Latitude: latitude, Longitude: longitude}
	if !isValidCoordinate(point) {
		return Point{}, errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")
	}
	return point, nil
}

// IsValid reports whether p is a finite coordinate within WGS84 ranges
func (p Point) IsValid() bool {
	return isValidCoordinate(p)
}

// isValidCoordinate validates latitude and longitude values
func isValidCoordinate(point Point) bool {
	if math.IsNaN(point.Latitude) || math.IsNaN(point.Longitude) {
		return false
	}
	return point.Latitude >= -90 && point.Latitude <= 90 &&
		point.Longitude >= -180 && point.Longitude <= 180
}

// Interpolate blends linearly between start and end; adequate for leg-scale distances
func Interpolate(start, end Point, t float64) Point {
	return Point{
		Latitude:  start.Latitude + t*(end.Latitude-start.Latitude),
		Longitude: start.Longitude + t*(end.Longitude-start.Longitude),
	}
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }
func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

func normalizeDegrees(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}
