package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/Schepie/CityExplorer-sub000/internal/lib/geo"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/routing"
)

var _ routing.Router = (*Client)(nil)

// DefaultBaseURL hosts separate pedestrian and bicycle OSRM instances
const DefaultBaseURL = "https://routing.openstreetmap.de"

// Geometries selects the geometry encoding requested from the service
type Geometries string

const (
	GeoJSON   Geometries = "geojson"
	Polyline6 Geometries = "polyline6"
)

// HTTPDoer is the subset of *http.Client used by Client
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches walking and cycling legs from an OSRM routing service
type Client struct {
	baseURL    string
	httpClient HTTPDoer
	geometries Geometries
	now        func() time.Time
}

// NewClient creates a new OSRM client
func NewClient(baseURL string) *Client {
	return NewClientWithHTTPDoer(baseURL, &http.Client{
		Timeout: 15 * time.Second,
	})
}

// NewClientWithHTTPDoer creates a client using the provided HTTP doer
func NewClientWithHTTPDoer(baseURL string, doer HTTPDoer) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: doer,
		geometries: GeoJSON,
		now:        time.Now,
	}
}

// SetGeometries switches the requested geometry encoding
func (c *Client) SetGeometries(g Geometries) {
	c.geometries = g
}

// ServiceProfile maps a travel profile to the OSRM profile name
func ServiceProfile(profile routing.Profile) string {
	if profile == routing.Cycling {
		return "bike"
	}
	return "foot"
}

// RouteURL builds the request URL. Coordinates go on the wire as lng,lat.
func (c *Client) RouteURL(origin, dest geo.Point, profile routing.Profile) string {
	p := ServiceProfile(profile)
	return fmt.Sprintf("%s/routed-%s/route/v1/%s/%s;%s?overview=full&geometries=%s&steps=true",
		c.baseURL, p, p, wireCoord(origin), wireCoord(dest), c.geometries)
}

// Route fetches the leg from origin to dest. Geometry and maneuver
// locations are converted to (lat, lng) here.
func (c *Client) Route(ctx context.Context, origin, dest geo.Point, profile routing.Profile) (*routing.Leg, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.RouteURL(origin, dest, profile), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limit exceeded")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var response RouteResponse
	if err := json.Unmarshal(body, &response); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	switch response.Code {
	case "Ok":
	case "NoRoute", "NoSegment":
		return nil, fmt.Errorf("%w: %s", routing.ErrNoRoute, response.Message)
	default:
		return nil, fmt.Errorf("API error %d (%s): %s", resp.StatusCode, response.Code, response.Message)
	}

	if len(response.Routes) == 0 {
		return nil, routing.ErrNoRoute
	}

	return c.processRoute(response.Routes[0])
}

func (c *Client) processRoute(route Route) (*routing.Leg, error) {
	path, err := decodeGeometry(route.Geometry)
	if err != nil {
		return nil, fmt.Errorf("failed to decode geometry: %w", err)
	}
	if len(path) < 2 {
		return nil, fmt.Errorf("route geometry has %d points", len(path))
	}

	var turns []routing.Turn
	for _, leg := range route.Legs {
		for _, step := range leg.Steps {
			turns = append(turns, routing.Turn{
				Type:           step.Maneuver.Type,
				Modifier:       step.Maneuver.Modifier,
				StreetName:     step.Name,
				Location:       geo.Point{Latitude: step.Maneuver.Location[1], Longitude: step.Maneuver.Location[0]},
				Exit:           step.Maneuver.Exit,
				DistanceMeters: step.Distance,
			})
		}
	}

	return &routing.Leg{
		Path:            path,
		DistanceMeters:  route.Distance,
		DurationSeconds: route.Duration,
		Turns:           turns,
		FetchedAt:       c.now(),
	}, nil
}

// decodeGeometry accepts either a GeoJSON LineString or a polyline6 string
func decodeGeometry(raw json.RawMessage) ([]geo.Point, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, fmt.Errorf("missing geometry")
	}

	if strings.HasPrefix(trimmed, `"`) {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, err
		}
		return geo.DecodePolyline6(encoded)
	}

	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, err
	}
	line, ok := g.Geometry().(orb.LineString)
	if !ok {
		return nil, fmt.Errorf("unexpected geometry type %s", g.Type)
	}

	path := make([]geo.Point, len(line))
	for i, pt := range line {
		path[i] = geo.Point{Latitude: pt.Lat(), Longitude: pt.Lon()}
	}
	return path, nil
}

func wireCoord(p geo.Point) string {
	return strconv.FormatFloat(p.Longitude, 'f', 6, 64) + "," + strconv.FormatFloat(p.Latitude, 'f', 6, 64)
}

// RouteResponse is the OSRM route service response
type RouteResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message,omitempty"`
	Routes  []Route `json:"routes"`
}

// Route is a single route alternative
type Route struct {
	Distance float64         `json:"distance"`
	Duration float64         `json:"duration"`
	Geometry json.RawMessage `json:"geometry"`
	Legs     []RouteLeg      `json:"legs"`
}

// RouteLeg is the part of a route between two request coordinates
type RouteLeg struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Steps    []Step  `json:"steps"`
}

// Step is one maneuver with the way travelled after it
type Step struct {
	Distance float64  `json:"distance"`
	Duration float64  `json:"duration"`
	Name     string   `json:"name"`
	Maneuver Maneuver `json:"maneuver"`
}

// Maneuver describes the turn at the start of a step. Location is [lng, lat].
type Maneuver struct {
	Type     string     `json:"type"`
	Modifier string     `json:"modifier,omitempty"`
	Location [2]float64 `json:"location"`
	Exit     int        `json:"exit,omitempty"`
}
