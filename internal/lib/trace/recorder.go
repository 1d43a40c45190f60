package trace

import (
	"fmt"
	"io"
	"sync"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-kml/v2"

	"github.com/Schepie/CityExplorer-sub000/internal/lib/geo"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/navigation"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/routing"
)

// DefaultMaxPositions bounds the in-memory trace; the oldest positions are dropped first
const DefaultMaxPositions = 20000

// Recorder keeps the positions an agent has walked and the legs it was
// guided along, for export after a session
type Recorder struct {
	mu           sync.Mutex
	positions    []geo.Position
	legs         map[string]*routing.Leg
	legOrder     []string
	maxPositions int
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{
		legs:         make(map[string]*routing.Leg),
		maxPositions: DefaultMaxPositions,
	}
}

// Record appends a position
func (r *Recorder) Record(pos geo.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.positions = append(r.positions, pos)
	if over := len(r.positions) - r.maxPositions; over > 0 {
		r.positions = append([]geo.Position(nil), r.positions[over:]...)
	}
}

// RecordLeg stores the latest leg for its target, replacing any earlier one
func (r *Recorder) RecordLeg(leg *routing.Leg) {
	if leg == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.legs[leg.TargetID]; !ok {
		r.legOrder = append(r.legOrder, leg.TargetID)
	}
	r.legs[leg.TargetID] = leg.Clone()
}

// Positions returns a copy of the recorded positions
func (r *Recorder) Positions() []geo.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]geo.Position(nil), r.positions...)
}

// Len returns the number of recorded positions
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.positions)
}

// Reset clears the trace and legs
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = nil
	r.legs = make(map[string]*routing.Leg)
	r.legOrder = nil
}

// LineString returns the walked trace as an orb geometry
func (r *Recorder) LineString() orb.LineString {
	r.mu.Lock()
	defer r.mu.Unlock()

	ls := make(orb.LineString, len(r.positions))
	for i, p := range r.positions {
		ls[i] = p.Orb()
	}
	return ls
}

// WriteKML exports waypoints, legs, and the walked trace as a KML document
func (r *Recorder) WriteKML(w io.Writer, name string, waypoints []navigation.Waypoint) error {
	r.mu.Lock()
	positions := append([]geo.Position(nil), r.positions...)
	legs := make([]*routing.Leg, 0, len(r.legOrder))
	for _, id := range r.legOrder {
		legs = append(legs, r.legs[id])
	}
	r.mu.Unlock()

	waypointFolder := []kml.Element{kml.Name("Waypoints")}
	for i, wp := range waypoints {
		waypointFolder = append(waypointFolder, kml.Placemark(
			kml.Name(wp.Name()),
			kml.Description(fmt.Sprintf("#%d %s (%s)", i, wp.ID(), wp.Kind())),
			kml.Point(kml.Coordinates(coordinate(wp.Point()))),
		))
	}

	legFolder := []kml.Element{kml.Name("Legs")}
	for _, leg := range legs {
		legFolder = append(legFolder, kml.Placemark(
			kml.Name("Leg to "+leg.TargetID),
			kml.Description(fmt.Sprintf("%.0f m, %d maneuvers", leg.DistanceMeters, len(leg.Turns))),
			kml.LineString(kml.Coordinates(coordinates(leg.Path)...)),
		))
	}

	doc := []kml.Element{
		kml.Name(name),
		kml.Folder(waypointFolder...),
		kml.Folder(legFolder...),
	}

	if len(positions) >= 2 {
		walked := make([]geo.Point, len(positions))
		for i, p := range positions {
			walked[i] = p.Point
		}
		doc = append(doc, kml.Placemark(
			kml.Name("Walked trace"),
			kml.Description(fmt.Sprintf("%d positions from %s to %s", len(positions),
				positions[0].Timestamp.Format("15:04:05"), positions[len(positions)-1].Timestamp.Format("15:04:05"))),
			kml.LineString(kml.Coordinates(coordinates(walked)...)),
		))
	}

	if err := kml.KML(kml.Document(doc...)).WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("failed to write KML: %w", err)
	}
	return nil
}

func coordinate(p geo.Point) kml.Coordinate {
	return kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
}

func coordinates(path []geo.Point) []kml.Coordinate {
	out := make([]kml.Coordinate, len(path))
	for i, p := range path {
		out[i] = coordinate(p)
	}
	return out
}
