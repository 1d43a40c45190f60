package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Schepie/CityExplorer-sub000/internal/clients/osrm"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/geo"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/navigation"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/routing"
)

func main() {
	var (
		baseURL    = flag.String("base-url", "", "OSRM base URL (or set OSRM_BASE_URL env var)")
		originStr  = flag.String("origin", "50.879800,4.700500", "Origin coordinates (lat,lon)")
		destStr    = flag.String("dest", "50.882050,4.704012", "Destination coordinates (lat,lon)")
		profileStr = flag.String("profile", "walking", "Travel profile (walking or cycling)")
		atStr      = flag.String("at", "", "Classify this position (lat,lon) against the fetched leg")
		geometries = flag.String("geometries", "polyline6", "Geometry encoding (polyline6 or geojson)")
		verbose    = flag.Bool("verbose", false, "Print every path point")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		fmt.Printf("OSRM Routing Test Tool\n\n")
		fmt.Printf("Fetches a single leg from an OSRM server and prints its geometry and turns.\n\n")
		fmt.Printf("Usage: %s [options]\n\n", os.Args[0])
		fmt.Printf("Options:\n")
		flag.PrintDefaults()
		fmt.Printf("\nExamples:\n")
		fmt.Printf("  %s\n", os.Args[0])
		fmt.Printf("  %s -origin=\"50.8798,4.7005\" -dest=\"50.8771,4.6977\" -profile=cycling\n", os.Args[0])
		fmt.Printf("  %s -at=\"50.8805,4.7020\"\n", os.Args[0])
		fmt.Printf("  OSRM_BASE_URL=http://localhost:5000 %s\n", os.Args[0])
		return
	}

	url := *baseURL
	if url == "" {
		url = os.Getenv("OSRM_BASE_URL")
	}

	origin, err := parsePoint(*originStr)
	if err != nil {
		log.Fatalf("Invalid origin coordinates: %v", err)
	}
	dest, err := parsePoint(*destStr)
	if err != nil {
		log.Fatalf("Invalid destination coordinates: %v", err)
	}
	profile, err := routing.ParseProfile(*profileStr)
	if err != nil {
		log.Fatalf("Invalid profile: %v", err)
	}

	client := osrm.NewClient(url)
	client.SetGeometries(osrm.Geometries(*geometries))

	fmt.Printf("OSRM Routing Test\n")
	fmt.Printf("=================\n")
	fmt.Printf("Origin: %.6f, %.6f\n", origin.Latitude, origin.Longitude)
	fmt.Printf("Destination: %.6f, %.6f\n", dest.Latitude, dest.Longitude)
	fmt.Printf("Request: %s\n\n", client.RouteURL(origin, dest, profile))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	leg, err := client.Route(ctx, origin, dest, profile)
	if err != nil {
		log.Fatalf("Route failed: %v", err)
	}

	fmt.Printf("Route successful\n")
	fmt.Printf("Distance: %.0f m (%.2f km)\n", leg.DistanceMeters, leg.DistanceMeters/1000)
	fmt.Printf("Duration: %.1f minutes\n", leg.DurationSeconds/60)
	fmt.Printf("Path: %d points, %.0f m measured\n", len(leg.Path), geo.PathLength(leg.Path))
	if n := len(leg.Path); n > 0 {
		gap := geo.Distance(leg.Path[n-1], dest)
		fmt.Printf("Terminal gap to destination: %.1f m\n", gap)
	}

	if len(leg.Turns) > 0 {
		fmt.Printf("Turns:\n")
		for i, turn := range leg.Turns {
			fmt.Printf("  %d: %s %s onto %q (%.0f m)\n", i+1, turn.Type, turn.Modifier, turn.StreetName, turn.DistanceMeters)
		}
	}

	if *verbose {
		fmt.Printf("Points:\n")
		for i, p := range leg.Path {
			fmt.Printf("  %d: (%.6f, %.6f)\n", i+1, p.Latitude, p.Longitude)
		}
	}

	guide := navigation.Guide(origin, leg, dest)
	fmt.Printf("\nGuidance at origin: %s\n", guide.Text())

	if *atStr != "" {
		at, err := parsePoint(*atStr)
		if err != nil {
			log.Fatalf("Invalid position: %v", err)
		}
		thresholds := navigation.DefaultThresholds()
		matcher := routing.NewPathMatcher()
		distance, err := matcher.DistanceToPath(at, leg.Path)
		if err != nil {
			log.Fatalf("Distance to path failed: %v", err)
		}
		class := matcher.Classify(at, leg.Path, thresholds.OnPathTolerance, thresholds.OffRoute)

		fmt.Printf("\nPosition: %.6f, %.6f\n", at.Latitude, at.Longitude)
		fmt.Printf("  Distance to path: %.1f m\n", distance)
		fmt.Printf("  Classification: %s\n", class)
		fmt.Printf("  Guidance: %s\n", navigation.Guide(at, leg, dest).Text())
	}
}

func parsePoint(s string) (geo.Point, error) {
	var lat, lng float64
	if _, err := fmt.Sscanf(s, "%f,%f", &lat, &lng); err != nil {
		return geo.Point{}, err
	}
	return geo.NewPoint(lat, lng)
}
