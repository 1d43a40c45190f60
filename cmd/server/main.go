package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	api "github.com/Schepie/CityExplorer-sub000/api/v1"
	"github.com/Schepie/CityExplorer-sub000/internal/cache"
	"github.com/Schepie/CityExplorer-sub000/internal/clients/osrm"
	"github.com/Schepie/CityExplorer-sub000/internal/config"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/camera"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/itinerary"
	"github.com/Schepie/CityExplorer-sub000/internal/services"
)

func main() {
	var (
		configPath    = flag.String("config", os.Getenv("WALKNAV_CONFIG"), "Path to YAML config file")
		itineraryPath = flag.String("itinerary", "", "Itinerary file (.yaml or .gpx), overrides server.itinerary")
		debug         = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}

	appConfig, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *itineraryPath != "" {
		appConfig.Server.Itinerary = *itineraryPath
	}
	if appConfig.Server.Itinerary == "" {
		log.Fatal("An itinerary is required. Use -itinerary or set server.itinerary")
	}

	logger := newLogger(*debug)
	defer logger.Sync() //nolint:errcheck

	it, err := itinerary.Load(appConfig.Server.Itinerary)
	if err != nil {
		log.Fatalf("Failed to load itinerary: %v", err)
	}
	waypoints, err := it.Build()
	if err != nil {
		log.Fatalf("Invalid itinerary: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Routing client with a shared leg cache
	router := osrm.NewClientWithHTTPDoer(appConfig.Routing.BaseURL, &http.Client{Timeout: appConfig.Routing.Timeout})
	cacheInstance := cache.NewCache()
	cacheInstance.StartPeriodicCleanup(ctx, time.Minute)
	legStore := cache.NewLegStore(cacheInstance, appConfig.Routing.CacheTTL)

	fetcher := services.NewLegFetcher(router, legStore, logger)
	fetcher.SetTimeout(appConfig.Routing.Timeout)
	bus := services.NewEventBus(services.DefaultSubscriberBuffer, logger)
	defer bus.Close()

	profile := it.ProfileOr(appConfig.Routing.TravelProfile())
	cam := appConfig.Camera
	navigator := services.NewNavigator(waypoints, fetcher, bus, services.NavigatorConfig{
		Profile:         profile,
		Thresholds:      appConfig.Navigation,
		RerouteInterval: appConfig.Routing.RerouteInterval,
		Camera:          cam.Options(),
		Viewport:        camera.NewMercatorViewport(float64(cam.Width), float64(cam.Height), waypoints[0].Point(), cam.Zoom),
	}, logger)

	if err := navigator.Start(ctx); err != nil {
		log.Fatalf("Failed to start navigator: %v", err)
	}
	defer navigator.Stop()

	if appConfig.Simulation.Enabled {
		if err := navigator.SetSimulation(ctx, true, appConfig.Simulation.SpeedMultiplier); err != nil {
			log.Printf("Failed to enable simulation: %v", err)
		}
	}

	log.Printf("Walking navigation server starting")
	log.Printf("Itinerary: %s (%d waypoints, profile %s)", it.Name, len(waypoints), profile)
	log.Printf("Routing service: %s", appConfig.Routing.BaseURL)

	handler := api.NewHandler(navigator, bus, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", appConfig.Server.Port),
		Handler:           api.NewRouter(handler, appConfig.Server.CorsOrigins, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Event streams only end once their subscriptions close
		bus.Close()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown failed: %v", err)
		}
	}()

	log.Printf("Listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
}

func newLogger(debug bool) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	return logger.Sugar()
}
