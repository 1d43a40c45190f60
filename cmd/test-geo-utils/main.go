package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/Schepie/CityExplorer-sub000/internal/lib/geo"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	geoUtils := geo.NewGeoUtils()

	switch command {
	case "point-distance":
		handlePointDistance(geoUtils)
	case "polyline-distance":
		handlePolylineDistance(geoUtils)
	case "decode-polyline":
		handleDecodePolyline(geoUtils)
	case "point-ahead":
		handlePointAhead()
	case "nearby":
		handleNearby(geoUtils)
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handlePointDistance(geoUtils geo.GeoUtils) {
	fs := flag.NewFlagSet("point-distance", flag.ExitOnError)
	lat1 := fs.Float64("lat1", 0, "Latitude of first point")
	lng1 := fs.Float64("lng1", 0, "Longitude of first point")
	lat2 := fs.Float64("lat2", 0, "Latitude of second point")
	lng2 := fs.Float64("lng2", 0, "Longitude of second point")

	fs.Parse(os.Args[2:])

	if *lat1 == 0 && *lng1 == 0 && *lat2 == 0 && *lng2 == 0 {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils point-distance --lat1 50.8798 --lng1 4.7005 --lat2 50.8771 --lng2 4.6977")
		fmt.Println("  (Grote Markt to the Groot Begijnhof in Leuven)")
		os.Exit(1)
	}

	p1 := geo.Point{Latitude: *lat1, Longitude: *lng1}
	p2 := geo.Point{Latitude: *lat2, Longitude: *lng2}

	distance, err := geoUtils.DistanceFromCoords(*lat1, *lng1, *lat2, *lng2)
	if err != nil {
		log.Fatalf("Error calculating distance: %v", err)
	}

	fmt.Printf("Distance between points:\n")
	fmt.Printf("  Point 1: (%.6f, %.6f)\n", p1.Latitude, p1.Longitude)
	fmt.Printf("  Point 2: (%.6f, %.6f)\n", p2.Latitude, p2.Longitude)
	fmt.Printf("  Distance: %.2f meters (%.2f km)\n", distance, distance/1000)
	fmt.Printf("  Bearing: %.1f degrees\n", geo.Bearing(p1, p2))
}

func handlePolylineDistance(geoUtils geo.GeoUtils) {
	fs := flag.NewFlagSet("polyline-distance", flag.ExitOnError)
	lat := fs.Float64("lat", 0, "Latitude of point")
	lng := fs.Float64("lng", 0, "Longitude of point")
	polylineStr := fs.String("polyline", "", "Encoded polyline6 string")
	coords := fs.String("coords", "", "Path as lat,lng;lat,lng;... instead of an encoded polyline")

	fs.Parse(os.Args[2:])

	if *polylineStr == "" && *coords == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils polyline-distance --lat 50.8790 --lng 4.7010 --coords \"50.8798,4.7005;50.8782,4.7051\"")
		fmt.Println("  (Distance from a position to a walking leg)")
		os.Exit(1)
	}

	point := geo.Point{Latitude: *lat, Longitude: *lng}

	var (
		points []geo.Point
		err    error
	)
	if *polylineStr != "" {
		points, err = geoUtils.DecodePolyline6(*polylineStr)
	} else {
		points, err = parseCoordinatePairs(*coords)
	}
	if err != nil {
		log.Fatalf("Error reading path: %v", err)
	}
	polyline := geo.Polyline{EncodedPolyline: *polylineStr, Points: points}

	distance, err := geoUtils.PointToPolyline(point, polyline)
	if err != nil {
		log.Fatalf("Error calculating distance to polyline: %v", err)
	}
	closest, err := geoUtils.ClosestPointOnPolyline(point, polyline)
	if err != nil {
		log.Fatalf("Error finding closest point: %v", err)
	}

	fmt.Printf("Distance from point to polyline:\n")
	fmt.Printf("  Point: (%.6f, %.6f)\n", point.Latitude, point.Longitude)
	fmt.Printf("  Polyline: %d points, %.0f meters long\n", len(points), geo.PathLength(points))
	fmt.Printf("  Distance: %.2f meters\n", distance)
	fmt.Printf("  Closest point: (%.6f, %.6f)\n", closest.Latitude, closest.Longitude)
}

func handleDecodePolyline(geoUtils geo.GeoUtils) {
	fs := flag.NewFlagSet("decode-polyline", flag.ExitOnError)
	polylineStr := fs.String("polyline", "", "Encoded polyline string to decode")
	precision := fs.Int("precision", 6, "Polyline precision: 6 for OSRM, 5 for Google")
	verbose := fs.Bool("verbose", false, "Show all decoded points")

	fs.Parse(os.Args[2:])

	if *polylineStr == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils decode-polyline --polyline \"encoded_string\"")
		fmt.Println("  test-geo-utils decode-polyline --polyline \"_p~iF~ps|U_ulLnnqC_mqNvxq`@\" --precision 5 --verbose")
		os.Exit(1)
	}

	var (
		points []geo.Point
		err    error
	)
	switch *precision {
	case 6:
		points, err = geoUtils.DecodePolyline6(*polylineStr)
	case 5:
		points, err = geoUtils.DecodePolyline(*polylineStr)
	default:
		log.Fatalf("Unsupported precision: %d", *precision)
	}
	if err != nil {
		log.Fatalf("Error decoding polyline: %v", err)
	}

	fmt.Printf("Polyline decoded successfully:\n")
	fmt.Printf("  Input: %s\n", *polylineStr)
	fmt.Printf("  Points: %d\n", len(points))
	fmt.Printf("  Length: %.0f meters\n", geo.PathLength(points))

	if len(points) > 0 {
		fmt.Printf("  Start: (%.6f, %.6f)\n", points[0].Latitude, points[0].Longitude)
		if len(points) > 1 {
			fmt.Printf("  End: (%.6f, %.6f)\n", points[len(points)-1].Latitude, points[len(points)-1].Longitude)
		}
	}

	if *verbose && len(points) > 0 {
		fmt.Printf("  All points:\n")
		for i, point := range points {
			fmt.Printf("    %d: (%.6f, %.6f)\n", i+1, point.Latitude, point.Longitude)
		}
	}
}

func handlePointAhead() {
	fs := flag.NewFlagSet("point-ahead", flag.ExitOnError)
	lat := fs.Float64("lat", 0, "Latitude of current position")
	lng := fs.Float64("lng", 0, "Longitude of current position")
	coords := fs.String("coords", "", "Path as lat,lng;lat,lng;...")
	distance := fs.Float64("distance", 30, "Look-ahead distance in meters")

	fs.Parse(os.Args[2:])

	if *coords == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils point-ahead --lat 50.8798 --lng 4.7005 --coords \"50.8798,4.7005;50.8782,4.7051\" --distance 30")
		fmt.Println("  (Where guidance looks when computing the next heading)")
		os.Exit(1)
	}

	path, err := parseCoordinatePairs(*coords)
	if err != nil {
		log.Fatalf("Error parsing path: %v", err)
	}
	from := geo.Point{Latitude: *lat, Longitude: *lng}

	ahead, ok := geo.PointAhead(path, from, *distance)
	if !ok {
		log.Fatal("Path needs at least two points")
	}

	fmt.Printf("Point %.0f meters ahead along the path:\n", *distance)
	fmt.Printf("  From: (%.6f, %.6f)\n", from.Latitude, from.Longitude)
	fmt.Printf("  Ahead: (%.6f, %.6f)\n", ahead.Latitude, ahead.Longitude)
	fmt.Printf("  Heading: %.1f degrees\n", geo.Bearing(from, ahead))
}

func handleNearby(geoUtils geo.GeoUtils) {
	fs := flag.NewFlagSet("nearby", flag.ExitOnError)
	lat := fs.Float64("lat", 0, "Latitude of current position")
	lng := fs.Float64("lng", 0, "Longitude of current position")
	coords := fs.String("coords", "", "Candidate waypoints as lat,lng;lat,lng;...")
	radius := fs.Float64("radius", 80, "Radius in meters")

	fs.Parse(os.Args[2:])

	if *coords == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils nearby --lat 50.8798 --lng 4.7005 --coords \"50.8792,4.7010;50.8771,4.6977\" --radius 80")
		fmt.Println("  (Which waypoints would light the nearby indicator)")
		os.Exit(1)
	}

	points, err := parseCoordinatePairs(*coords)
	if err != nil {
		log.Fatalf("Error parsing waypoints: %v", err)
	}
	center := geo.Point{Latitude: *lat, Longitude: *lng}

	within, err := geoUtils.FilterPointsByDistance(points, center, *radius)
	if err != nil {
		log.Fatalf("Error filtering waypoints: %v", err)
	}

	fmt.Printf("Waypoints within %.0f meters of (%.6f, %.6f): %d of %d\n", *radius, center.Latitude, center.Longitude, len(within), len(points))
	for _, p := range within {
		fmt.Printf("  (%.6f, %.6f) at %.1f meters\n", p.Latitude, p.Longitude, geo.Distance(center, p))
	}
}

func printUsage() {
	fmt.Printf(`test-geo-utils - Geographic utility testing tool

USAGE:
    test-geo-utils <command> [options]

COMMANDS:
    point-distance      Calculate great-circle distance and bearing between two points
    polyline-distance   Calculate minimum distance from point to polyline
    decode-polyline     Decode an OSRM (precision 6) or Google (precision 5) polyline
    point-ahead         Find the point a fixed distance ahead along a path
    nearby              List waypoints within a radius of a position
    help                Show this help message

EXAMPLES:
    # Grote Markt to the Groot Begijnhof
    test-geo-utils point-distance --lat1 50.8798 --lng1 4.7005 --lat2 50.8771 --lng2 4.6977

    # Distance from a position to a leg
    test-geo-utils polyline-distance --lat 50.8790 --lng 4.7010 --coords "50.8798,4.7005;50.8782,4.7051"

    # Waypoints inside the nearby radius
    test-geo-utils nearby --lat 50.8798 --lng 4.7005 --coords "50.8792,4.7010;50.8771,4.6977"

    # Decode polyline to see coordinates
    test-geo-utils decode-polyline --polyline "encoded_string" --verbose
`)
}

// Helper function to parse coordinate pairs from string
func parseCoordinatePairs(coordStr string) ([]geo.Point, error) {
	if coordStr == "" {
		return nil, fmt.Errorf("empty coordinate string")
	}

	pairs := strings.Split(coordStr, ";")
	points := make([]geo.Point, 0, len(pairs))

	for _, pair := range pairs {
		coords := strings.Split(strings.TrimSpace(pair), ",")
		if len(coords) != 2 {
			return nil, fmt.Errorf("invalid coordinate pair: %s", pair)
		}

		lat, err := strconv.ParseFloat(strings.TrimSpace(coords[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude: %s", coords[0])
		}

		lng, err := strconv.ParseFloat(strings.TrimSpace(coords[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude: %s", coords[1])
		}

		points = append(points, geo.Point{Latitude: lat, Longitude: lng})
	}

	return points, nil
}
