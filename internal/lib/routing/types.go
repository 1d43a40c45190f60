package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Schepie/CityExplorer-sub000/internal/lib/geo"
)

// Profile selects the routing service variant
type Profile string

const (
	Walking Profile = "walking"
	Cycling Profile = "cycling"
)

// ParseProfile maps user input to a Profile; empty input yields Walking
func ParseProfile(s string) (Profile, error) {
	switch Profile(s) {
	case "", Walking:
		return Walking, nil
	case Cycling:
		return Cycling, nil
	}
	return "", fmt.Errorf("unknown travel profile %q", s)
}

// Classification represents how a position relates to a reference path
type Classification string

const (
	OnPath   Classification = "on_path"   // <= on-path tolerance
	NearPath Classification = "near_path" // <= near threshold
	OffPath  Classification = "off_path"  // beyond near threshold, or degenerate path
)

// ErrNoRoute is returned by a Router when the service cannot connect the two points
var ErrNoRoute = errors.New("no route between points")

// Turn is a single maneuver on a leg
type Turn struct {
	Type           string    `json:"type"`
	Modifier       string    `json:"modifier,omitempty"`
	StreetName     string    `json:"street_name,omitempty"`
	Location       geo.Point `json:"location"`
	Exit           int       `json:"exit,omitempty"` // roundabout exit number
	DistanceMeters float64   `json:"distance_meters"`
}

// Leg is the travelable geometry leading to one target waypoint.
// A Leg is replaced wholesale when refetched and never mutated after delivery.
type Leg struct {
	TargetID        string      `json:"target_id"`
	Path            []geo.Point `json:"path"`
	DistanceMeters  float64     `json:"distance_meters"`
	DurationSeconds float64     `json:"duration_seconds"`
	Turns           []Turn      `json:"turns"`
	FetchedAt       time.Time   `json:"fetched_at"`
}

// Clone returns a deep copy of the leg so callers can adjust geometry
// without touching a shared instance
func (l *Leg) Clone() *Leg {
	if l == nil {
		return nil
	}
	c := *l
	c.Path = append([]geo.Point(nil), l.Path...)
	c.Turns = append([]Turn(nil), l.Turns...)
	return &c
}

// Router obtains travelable leg geometry between two coordinates
type Router interface {
	Route(ctx context.Context, origin, dest geo.Point, profile Profile) (*Leg, error)
}

// PathMatcher interface defines path adherence checks against leg geometry
type PathMatcher interface {
	// True if point lies within toleranceMeters of any segment of path.
	// Paths with fewer than 2 points never match.
	IsOnPath(point geo.Point, path []geo.Point, toleranceMeters float64) bool

	// Minimum distance from point to path in meters
	DistanceToPath(point geo.Point, path []geo.Point) (float64, error)

	// Classify point against path using on-path and near thresholds
	Classify(point geo.Point, path []geo.Point, onPathMeters, nearMeters float64) Classification
}

// NewPathMatcher is implemented in matcher.go
