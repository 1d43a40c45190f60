package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-polyline"
)

// Leuven test coordinates: Parking Oost and two nearby stops
var (
	parkingOost = Point{Latitude: 50.8799045, Longitude: 4.6764655}
	stopOne     = Point{Latitude: 50.8795, Longitude: 4.6780}
	stopTwo     = Point{Latitude: 50.8810, Longitude: 4.6850}
)

func TestDistance_SymmetricAndZero(t *testing.T) {
	points := []Point{parkingOost, stopOne, stopTwo, {Latitude: 52.0, Longitude: 4.0}, {Latitude: -33.86, Longitude: 151.21}}

	for _, a := range points {
		assert.Equal(t, 0.0, Distance(a, a), "distance to self must be 0")
		for _, b := range points {
			assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9, "distance must be symmetric")
		}
	}
}

func TestDistance_KnownValues(t *testing.T) {
	// Angels Camp to Murphys, ~11.0 km
	angelsCamp := Point{Latitude: 38.0675, Longitude: -120.5436}
	murphys := Point{Latitude: 38.1391, Longitude: -120.4561}
	assert.InDelta(t, 11046, Distance(angelsCamp, murphys), 100)

	// One millidegree of latitude is ~111 m
	assert.InDelta(t, 111.2, Distance(Point{Latitude: 52.000, Longitude: 4.0}, Point{Latitude: 52.001, Longitude: 4.0}), 0.5)
}

func TestBearing_Range(t *testing.T) {
	origin := Point{Latitude: 52.0, Longitude: 4.0}

	cases := []struct {
		name     string
		to       Point
		expected float64
	}{
		{"north", Point{Latitude: 52.01, Longitude: 4.0}, 0},
		{"east", Point{Latitude: 52.0, Longitude: 4.01}, 90},
		{"south", Point{Latitude: 51.99, Longitude: 4.0}, 180},
		{"west", Point{Latitude: 52.0, Longitude: 3.99}, 270},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := Bearing(origin, tc.to)
			assert.GreaterOrEqual(t, b, 0.0)
			assert.Less(t, b, 360.0)
			assert.InDelta(t, tc.expected, b, 0.1)
		})
	}

	// Slightly west of north must wrap to just below 360, never negative
	b := Bearing(origin, Point{Latitude: 52.01, Longitude: 3.99999})
	assert.Greater(t, b, 359.0)
	assert.Less(t, b, 360.0)

	// Identical points still produce an in-range value
	b = Bearing(origin, origin)
	assert.GreaterOrEqual(t, b, 0.0)
	assert.Less(t, b, 360.0)
}

func TestDestinationPoint_RoundTrip(t *testing.T) {
	dest := DestinationPoint(parkingOost, 45, 500)

	assert.InDelta(t, 500, Distance(parkingOost, dest), 0.5)
	assert.InDelta(t, 45, Bearing(parkingOost, dest), 0.1)

	// Zero distance returns the origin
	same := DestinationPoint(parkingOost, 123, 0)
	assert.InDelta(t, parkingOost.Latitude, same.Latitude, 1e-9)
	assert.InDelta(t, parkingOost.Longitude, same.Longitude, 1e-9)
}

func TestDistanceToSegment(t *testing.T) {
	start := Point{Latitude: 52.0, Longitude: 4.0}
	end := Point{Latitude: 52.0, Longitude: 4.01}

	// Vertices are exactly on the segment
	assert.Equal(t, 0.0, DistanceToSegment(start, start, end))
	assert.Equal(t, 0.0, DistanceToSegment(end, start, end))

	// Midpoint on the segment
	mid := Point{Latitude: 52.0, Longitude: 4.005}
	assert.Less(t, DistanceToSegment(mid, start, end), 0.01)

	// 100 m north of the midpoint
	north := DestinationPoint(mid, 0, 100)
	assert.InDelta(t, 100, DistanceToSegment(north, start, end), 0.5)

	// Beyond the end the distance is to the end vertex
	beyond := Point{Latitude: 52.0, Longitude: 4.02}
	assert.InDelta(t, Distance(beyond, end), DistanceToSegment(beyond, start, end), 1e-6)

	// Degenerate segment falls back to point distance
	assert.InDelta(t, Distance(north, start), DistanceToSegment(north, start, start), 1e-9)
}

func TestPointAhead(t *testing.T) {
	path := []Point{
		{Latitude: 52.000, Longitude: 4.000},
		{Latitude: 52.001, Longitude: 4.000},
		{Latitude: 52.002, Longitude: 4.000},
	}

	t.Run("interpolates within the path", func(t *testing.T) {
		p, ok := PointAhead(path, path[0], 150)
		require.True(t, ok)
		assert.InDelta(t, 150, Distance(path[0], p), 1)
		assert.InDelta(t, 4.0, p.Longitude, 1e-9)
	})

	t.Run("snaps an off-path position before walking", func(t *testing.T) {
		from := DestinationPoint(Point{Latitude: 52.0005, Longitude: 4.0}, 90, 20)
		p, ok := PointAhead(path, from, 50)
		require.True(t, ok)
		assert.InDelta(t, 4.0, p.Longitude, 1e-6)
		assert.InDelta(t, 55.6+50, Distance(path[0], p), 1.5)
	})

	t.Run("returns last point when the path is shorter", func(t *testing.T) {
		p, ok := PointAhead(path, path[0], 10000)
		require.True(t, ok)
		assert.Equal(t, path[2], p)
	})

	t.Run("degenerate paths", func(t *testing.T) {
		_, ok := PointAhead(nil, path[0], 10)
		assert.False(t, ok)
		_, ok = PointAhead(path[:1], path[0], 10)
		assert.False(t, ok)
	})
}

func TestDecodePolyline6(t *testing.T) {
	coords := [][]float64{
		{parkingOost.Latitude, parkingOost.Longitude},
		{stopOne.Latitude, stopOne.Longitude},
		{stopTwo.Latitude, stopTwo.Longitude},
	}
	encoded := string(polyline.Codec{Dim: 2, Scale: 1e6}.EncodeCoords(nil, coords))

	points, err := DecodePolyline6(encoded)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.InDelta(t, parkingOost.Latitude, points[0].Latitude, 1e-6)
	assert.InDelta(t, parkingOost.Longitude, points[0].Longitude, 1e-6)
	assert.InDelta(t, stopTwo.Longitude, points[2].Longitude, 1e-6)

	_, err = DecodePolyline6("")
	assert.Error(t, err)
}

func TestGeoUtils_DecodePolyline(t *testing.T) {
	geoUtils := NewGeoUtils()

	points, err := geoUtils.DecodePolyline("_p~iF~ps|U_ulLnnqC_mqNvxq`@")
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.InDelta(t, 38.5, points[0].Latitude, 1e-5)
	assert.InDelta(t, -120.2, points[0].Longitude, 1e-5)

	_, err = geoUtils.DecodePolyline("!!!")
	assert.Error(t, err, "Should return error for invalid polyline")
}

func TestGeoUtils_PointToPolyline(t *testing.T) {
	geoUtils := NewGeoUtils()

	route := Polyline{Points: []Point{parkingOost, stopOne, stopTwo}}

	distance, err := geoUtils.PointToPolyline(stopOne, route)
	require.NoError(t, err)
	assert.Equal(t, 0.0, distance)

	distance, err = geoUtils.PointToPolyline(DestinationPoint(stopOne, 180, 40), route)
	require.NoError(t, err)
	assert.Greater(t, distance, 10.0)
	assert.Less(t, distance, 41.0)

	_, err = geoUtils.PointToPolyline(stopOne, Polyline{})
	assert.Error(t, err, "Should return error for empty polyline")

	_, err = geoUtils.PointToPoint(stopOne, Point{Latitude: 200, Longitude: -300})
	assert.Error(t, err, "Should return error for invalid coordinates")
}

func TestGeoUtils_ClosestPointOnPolyline(t *testing.T) {
	geoUtils := NewGeoUtils()

	route := Polyline{Points: []Point{
		{Latitude: 52.0, Longitude: 4.0},
		{Latitude: 52.0, Longitude: 4.01},
	}}

	closest, err := geoUtils.ClosestPointOnPolyline(Point{Latitude: 52.001, Longitude: 4.005}, route)
	require.NoError(t, err)
	assert.InDelta(t, 52.0, closest.Latitude, 1e-9)
	assert.InDelta(t, 4.005, closest.Longitude, 1e-6)
}

func TestGeoUtils_FilterPointsByDistance(t *testing.T) {
	geoUtils := NewGeoUtils()

	filtered, err := geoUtils.FilterPointsByDistance([]Point{stopOne, stopTwo, {Latitude: 95, Longitude: 0}}, parkingOost, 200)
	require.NoError(t, err)
	assert.Equal(t, []Point{stopOne}, filtered)
}

func TestBounds(t *testing.T) {
	_, ok := Bounds(nil)
	assert.False(t, ok)

	b, ok := Bounds([]Point{parkingOost, stopOne, stopTwo})
	require.True(t, ok)
	assert.Equal(t, parkingOost.Longitude, b.Left())
	assert.Equal(t, stopTwo.Longitude, b.Right())
	assert.Equal(t, stopOne.Latitude, b.Bottom())
	assert.Equal(t, stopTwo.Latitude, b.Top())
}

func TestPosition_WithHeading(t *testing.T) {
	p := Position{Point: parkingOost}
	assert.Nil(t, p.Heading)

	h := p.WithHeading(-90)
	require.NotNil(t, h.Heading)
	assert.Equal(t, 270.0, *h.Heading)
	assert.Nil(t, p.Heading, "original position must not be mutated")
}

func TestGeoUtils_DistanceFromCoords(t *testing.T) {
	geoUtils := NewGeoUtils()

	distance, err := geoUtils.DistanceFromCoords(stopOne.Latitude, stopOne.Longitude, stopTwo.Latitude, stopTwo.Longitude)
	require.NoError(t, err)
	assert.InDelta(t, Distance(stopOne, stopTwo), distance, 1e-9)

	_, err = geoUtils.DistanceFromCoords(91, 0, 0, 0)
	assert.Error(t, err)
}
