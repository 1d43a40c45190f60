package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/Schepie/CityExplorer-sub000/internal/clients/osrm"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/geo"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/itinerary"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/navigation"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/routing"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/simulation"
	"github.com/Schepie/CityExplorer-sub000/internal/services"
)

// trackStep is the spacing of positions generated from a recorded track
const trackStep = 5.0

func main() {
	var (
		itineraryPath = flag.String("itinerary", "", "Itinerary file (.yaml, .gpx or .kml)")
		profileStr    = flag.String("profile", "walking", "Travel profile when the itinerary names none (walking or cycling)")
		baseURL       = flag.String("base-url", osrm.DefaultBaseURL, "OSRM base URL")
		offline       = flag.Bool("offline", false, "Use straight-line legs instead of the routing service")
		speed         = flag.Int("speed", 5, "Replay speed multiplier (1, 2 or 5)")
		useTrack      = flag.Bool("track", false, "Feed the itinerary's recorded GPX track as live positions")
		kmlPath       = flag.String("kml", "", "Write the walked trace to this KML file")
		timeout       = flag.Duration("timeout", 30*time.Minute, "Give up after this long")
		help          = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help || *itineraryPath == "" {
		fmt.Printf("Walking Navigation Simulator\n\n")
		fmt.Printf("Walks an itinerary through the navigation pipeline and reports arrivals.\n\n")
		fmt.Printf("Usage: %s -itinerary FILE [options]\n\n", os.Args[0])
		fmt.Printf("Options:\n")
		flag.PrintDefaults()
		fmt.Printf("\nExamples:\n")
		fmt.Printf("  %s -itinerary internal/lib/itinerary/testdata/leuven.yaml -offline\n", os.Args[0])
		fmt.Printf("  %s -itinerary walk.gpx -track -kml walked.kml\n", os.Args[0])
		if *itineraryPath == "" && !*help {
			os.Exit(1)
		}
		return
	}

	it, err := itinerary.Load(*itineraryPath)
	if err != nil {
		log.Fatalf("Failed to load itinerary: %v", err)
	}
	waypoints, err := it.Build()
	if err != nil {
		log.Fatalf("Invalid itinerary: %v", err)
	}
	fallback, err := routing.ParseProfile(*profileStr)
	if err != nil {
		log.Fatalf("Invalid profile: %v", err)
	}
	profile := it.ProfileOr(fallback)
	if *useTrack && len(it.Track) < 2 {
		log.Fatal("The itinerary has no recorded track to replay")
	}

	var router routing.Router = osrm.NewClient(*baseURL)
	if *offline {
		router = straightRouter{}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	bus := services.NewEventBus(256, nil)
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	fetcher := services.NewLegFetcher(router, nil, nil)
	navigator := services.NewNavigator(waypoints, fetcher, bus, services.NavigatorConfig{Profile: profile}, nil)
	if err := navigator.Start(ctx); err != nil {
		log.Fatalf("Failed to start navigator: %v", err)
	}
	defer navigator.Stop()

	fmt.Printf("Itinerary: %s (%d waypoints, profile %s)\n", it.Name, len(waypoints), profile)

	if *useTrack {
		go feedTrack(ctx, navigator, it.Track)
	} else if err := navigator.SetSimulation(ctx, true, *speed); err != nil {
		log.Fatalf("Failed to start simulation: %v", err)
	}

	bar := progressbar.NewOptions(len(waypoints)-1,
		progressbar.OptionSetDescription("walking"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stderr),
	)

	started := time.Now()
	completed := false
	for !completed {
		select {
		case <-ctx.Done():
			fmt.Println()
			log.Printf("Stopped before completion: %v", ctx.Err())
			completed = true
		case ev := <-events:
			switch ev.Kind {
			case navigation.EventArrived:
				_ = bar.Add(1)
				if ev.Waypoint != nil {
					bar.Describe(fmt.Sprintf("arrived at %s", label(*ev.Waypoint)))
				}
			case navigation.EventLegPathUpdated:
				if ev.Waypoint != nil {
					bar.Describe(fmt.Sprintf("walking to %s (%.0f m)", label(*ev.Waypoint), geo.PathLength(ev.Path)))
				}
			case navigation.EventOffRoute:
				bar.Describe("off route, rerouting")
			case navigation.EventLegExhausted:
				log.Printf("Replay ran out before arrival at target %d", ev.TargetIndex)
			case navigation.EventPhaseChanged:
				if ev.Phase == navigation.Completed {
					_ = bar.Finish()
					completed = true
				}
			}
		}
	}

	snap := navigator.Snapshot()
	fmt.Printf("\nPhase: %s, reached %d of %d targets in %s\n",
		snap.Session.Phase, snap.Session.LastReachedIndex+1, len(waypoints)-1, time.Since(started).Round(time.Second))

	if *kmlPath != "" {
		if err := writeKML(*kmlPath, navigator, it.Name, waypoints); err != nil {
			log.Fatalf("Failed to write KML: %v", err)
		}
		fmt.Printf("Trace written to %s (%d positions)\n", *kmlPath, navigator.Recorder().Len())
	}
}

// feedTrack submits the recorded track as live positions, resampled every trackStep meters
func feedTrack(ctx context.Context, n *services.Navigator, track []geo.Point) {
	ts := time.Now()
	for i := 1; i < len(track); i++ {
		from, to := track[i-1], track[i]
		steps := int(geo.Distance(from, to)/trackStep) + 1
		for s := 0; s < steps; s++ {
			p := geo.Interpolate(from, to, float64(s)/float64(steps))
			pos := geo.NewPosition(p.Latitude, p.Longitude, ts).WithHeading(geo.Bearing(from, to))
			ts = ts.Add(time.Second)
			for {
				err := n.SubmitPosition(pos)
				if !errors.Is(err, services.ErrQueueFull) {
					break
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
				}
			}
		}
	}
	last := track[len(track)-1]
	_ = n.SubmitPosition(geo.NewPosition(last.Latitude, last.Longitude, ts))
}

func writeKML(path string, n *services.Navigator, name string, waypoints []navigation.Waypoint) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := n.Recorder().WriteKML(f, name, waypoints); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func label(w navigation.WaypointSpec) string {
	if w.Name != "" {
		return w.Name
	}
	return w.ID
}

// straightRouter joins origin and destination with a single segment
type straightRouter struct{}

func (r straightRouter) Route(ctx context.Context, origin, dest geo.Point, profile routing.Profile) (*routing.Leg, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	distance := geo.Distance(origin, dest)
	return &routing.Leg{
		Path:            []geo.Point{origin, dest},
		DistanceMeters:  distance,
		DurationSeconds: distance / simulation.BaseSpeed(profile),
		FetchedAt:       time.Now(),
	}, nil
}
