package navigation

import (
	"errors"
	"fmt"

	"github.com/Schepie/CityExplorer-sub000/internal/lib/geo"
)

// ErrInvalidWaypoint is returned when a waypoint cannot be built from its description
var ErrInvalidWaypoint = errors.New("invalid waypoint")

// Kind discriminates waypoint variants
type Kind string

const (
	KindStart  Kind = "start"
	KindPoi    Kind = "poi"
	KindManual Kind = "manual"
)

// Waypoint is an ordered stop on a route
type Waypoint interface {
	ID() string
	Name() string
	Point() geo.Point
	Kind() Kind
}

type waypointBase struct {
	id    string
	name  string
	point geo.Point
}

func (w waypointBase) ID() string       { return w.id }
func (w waypointBase) Name() string     { return w.name }
func (w waypointBase) Point() geo.Point { return w.point }

// StartPoint is the reference point nearest the start of the route
type StartPoint struct{ waypointBase }

func (StartPoint) Kind() Kind { return KindStart }

// RoutePoi is a point of interest on the route
type RoutePoi struct {
	waypointBase
	Category string
}

func (RoutePoi) Kind() Kind { return KindPoi }

// ManualMarker is a stop the traveller placed by hand
type ManualMarker struct{ waypointBase }

func (ManualMarker) Kind() Kind { return KindManual }

// NewStartPoint creates a start waypoint
func NewStartPoint(id, name string, p geo.Point) StartPoint {
	return StartPoint{waypointBase{id: id, name: name, point: p}}
}

// NewRoutePoi creates a point-of-interest waypoint
func NewRoutePoi(id, name, category string, p geo.Point) RoutePoi {
	return RoutePoi{waypointBase: waypointBase{id: id, name: name, point: p}, Category: category}
}

// NewManualMarker creates a hand-placed waypoint
func NewManualMarker(id, name string, p geo.Point) ManualMarker {
	return ManualMarker{waypointBase{id: id, name: name, point: p}}
}

// WaypointSpec is the serialisable description of a waypoint used by
// itinerary files and the HTTP API
type WaypointSpec struct {
	ID        string  `json:"id" yaml:"id" validate:"required"`
	Name      string  `json:"name" yaml:"name"`
	Kind      Kind    `json:"kind,omitempty" yaml:"kind,omitempty" validate:"omitempty,oneof=start poi manual"`
	Category  string  `json:"category,omitempty" yaml:"category,omitempty"`
	Latitude  float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"lng" yaml:"lng" validate:"gte=-180,lte=180"`
}

// Build resolves the spec into its concrete variant. An empty kind
// defaults to a POI.
func (s WaypointSpec) Build() (Waypoint, error) {
	if s.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidWaypoint)
	}
	p := geo.Point{Latitude: s.Latitude, Longitude: s.Longitude}
	if !p.IsValid() {
		return nil, fmt.Errorf("%w: %s has coordinates out of range", ErrInvalidWaypoint, s.ID)
	}

	switch s.Kind {
	case KindStart:
		return NewStartPoint(s.ID, s.Name, p), nil
	case KindPoi, "":
		return NewRoutePoi(s.ID, s.Name, s.Category, p), nil
	case KindManual:
		return NewManualMarker(s.ID, s.Name, p), nil
	}
	return nil, fmt.Errorf("%w: %s has unknown kind %q", ErrInvalidWaypoint, s.ID, s.Kind)
}

// BuildWaypoints resolves a list of specs, rejecting duplicate IDs
func BuildWaypoints(specs []WaypointSpec) ([]Waypoint, error) {
	seen := make(map[string]bool, len(specs))
	waypoints := make([]Waypoint, 0, len(specs))
	for _, s := range specs {
		if seen[s.ID] {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidWaypoint, s.ID)
		}
		seen[s.ID] = true

		w, err := s.Build()
		if err != nil {
			return nil, err
		}
		waypoints = append(waypoints, w)
	}
	return waypoints, nil
}

// Describe converts a waypoint back to its serialisable form
func Describe(w Waypoint) WaypointSpec {
	spec := WaypointSpec{
		ID:        w.ID(),
		Name:      w.Name(),
		Kind:      w.Kind(),
		Latitude:  w.Point().Latitude,
		Longitude: w.Point().Longitude,
	}
	if poi, ok := w.(RoutePoi); ok {
		spec.Category = poi.Category
	}
	return spec
}
