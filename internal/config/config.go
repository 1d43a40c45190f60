package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/Schepie/CityExplorer-sub000/internal/lib/camera"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/navigation"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/routing"
)

// EnvPrefix is stripped from environment variables; "__" separates levels,
// e.g. WALKNAV__ROUTING__PROFILE=cycling
const EnvPrefix = "WALKNAV__"

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig          `koanf:"server"`
	Routing    RoutingConfig         `koanf:"routing"`
	Navigation navigation.Thresholds `koanf:"navigation"`
	Simulation SimulationConfig      `koanf:"simulation"`
	Camera     CameraConfig          `koanf:"camera"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port        int      `koanf:"port" validate:"min=1,max=65535"`
	CorsOrigins []string `koanf:"cors_origins"`
	Itinerary   string   `koanf:"itinerary"` // YAML or GPX file loaded at startup
}

// RoutingConfig holds routing service settings
type RoutingConfig struct {
	BaseURL         string        `koanf:"base_url" validate:"required,url"`
	Profile         string        `koanf:"profile" validate:"oneof=walking cycling"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	CacheTTL        time.Duration `koanf:"cache_ttl" validate:"gt=0"`
	RerouteInterval time.Duration `koanf:"reroute_interval" validate:"gt=0"`
}

// SimulationConfig holds replay settings
type SimulationConfig struct {
	Enabled         bool `koanf:"enabled"`
	SpeedMultiplier int  `koanf:"speed_multiplier" validate:"oneof=1 2 5"`
}

// CameraConfig holds follow-camera settings
type CameraConfig struct {
	Width      int           `koanf:"width" validate:"gt=0"`
	Height     int           `koanf:"height" validate:"gt=0"`
	AnchorX    float64       `koanf:"anchor_x" validate:"gte=0,lte=1"`
	AnchorY    float64       `koanf:"anchor_y" validate:"gte=0,lte=1"`
	Throttle   time.Duration `koanf:"throttle" validate:"gte=0"`
	Zoom       float64       `koanf:"zoom" validate:"gte=0,lte=22"`
	AutoZoom   bool          `koanf:"auto_zoom"`
	FitPadding float64       `koanf:"fit_padding" validate:"gte=0"`
	FitMaxZoom float64       `koanf:"fit_max_zoom" validate:"gte=0,lte=22"`
}

// TravelProfile returns the parsed routing profile
func (r RoutingConfig) TravelProfile() routing.Profile {
	p, err := routing.ParseProfile(r.Profile)
	if err != nil {
		return routing.Walking
	}
	return p
}

// Options converts the camera section into controller options
func (c CameraConfig) Options() camera.Options {
	opts := camera.DefaultOptions()
	opts.Anchor = [2]float64{c.AnchorX, c.AnchorY}
	opts.Throttle = c.Throttle
	opts.AutoZoom = c.AutoZoom
	opts.FitPadding = c.FitPadding
	opts.FitMaxZoom = c.FitMaxZoom
	return opts
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CorsOrigins: []string{"*"},
		},
		Routing: RoutingConfig{
			BaseURL:         "https://routing.openstreetmap.de",
			Profile:         string(routing.Walking),
			Timeout:         15 * time.Second,
			CacheTTL:        10 * time.Minute,
			RerouteInterval: 10 * time.Second,
		},
		Navigation: navigation.DefaultThresholds(),
		Simulation: SimulationConfig{
			SpeedMultiplier: 1,
		},
		Camera: CameraConfig{
			Width:      390,
			Height:     844,
			AnchorX:    camera.DefaultAnchor[0],
			AnchorY:    camera.DefaultAnchor[1],
			Throttle:   200 * time.Millisecond,
			Zoom:       16,
			FitPadding: 20,
			FitMaxZoom: 18,
		},
	}
}

// Load layers defaults, the optional YAML file at path, and WALKNAV__
// environment variables, then validates the result
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := k.Load(confmap.Provider(defaultsMap(defaults), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field rules
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Navigation.Validate(); err != nil {
		return fmt.Errorf("invalid navigation thresholds: %w", err)
	}
	return nil
}

func defaultsMap(c *Config) map[string]interface{} {
	t := c.Navigation
	return map[string]interface{}{
		"server.port":                  c.Server.Port,
		"server.cors_origins":          c.Server.CorsOrigins,
		"server.itinerary":             c.Server.Itinerary,
		"routing.base_url":             c.Routing.BaseURL,
		"routing.profile":              c.Routing.Profile,
		"routing.timeout":              c.Routing.Timeout.String(),
		"routing.cache_ttl":            c.Routing.CacheTTL.String(),
		"routing.reroute_interval":     c.Routing.RerouteInterval.String(),
		"navigation.arrival_start":     t.ArrivalStart,
		"navigation.arrival":           t.Arrival,
		"navigation.on_path_tolerance": t.OnPathTolerance,
		"navigation.strict_arrival":    t.StrictArrival,
		"navigation.nearby_enter":      t.NearbyEnter,
		"navigation.nearby_exit":       t.NearbyExit,
		"navigation.off_route":         t.OffRoute,
		"simulation.enabled":           c.Simulation.Enabled,
		"simulation.speed_multiplier":  c.Simulation.SpeedMultiplier,
		"camera.width":                 c.Camera.Width,
		"camera.height":                c.Camera.Height,
		"camera.anchor_x":              c.Camera.AnchorX,
		"camera.anchor_y":              c.Camera.AnchorY,
		"camera.throttle":              c.Camera.Throttle.String(),
		"camera.zoom":                  c.Camera.Zoom,
		"camera.auto_zoom":             c.Camera.AutoZoom,
		"camera.fit_padding":           c.Camera.FitPadding,
		"camera.fit_max_zoom":          c.Camera.FitMaxZoom,
	}
}

