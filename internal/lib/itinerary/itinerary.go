package itinerary

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tkrajina/gpxgo/gpx"
	"gopkg.in/yaml.v3"

	"github.com/Schepie/CityExplorer-sub000/internal/lib/geo"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/navigation"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/routing"
)

// Itinerary is an ordered waypoint list, optionally with a recorded track
// that can be replayed instead of fetched legs
type Itinerary struct {
	Name      string                    `yaml:"name" json:"name"`
	Profile   routing.Profile           `yaml:"profile,omitempty" json:"profile,omitempty" validate:"omitempty,oneof=walking cycling"`
	Waypoints []navigation.WaypointSpec `yaml:"waypoints" json:"waypoints" validate:"required,min=1,dive"`
	Track     []geo.Point               `yaml:"-" json:"track,omitempty"`
}

var validate = validator.New()

// Load reads an itinerary from a .yaml/.yml, .gpx or .kml file
func Load(path string) (*Itinerary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read itinerary: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gpx":
		return ParseGPX(data)
	case ".kml":
		return ParseKML(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	}
	return nil, fmt.Errorf("unsupported itinerary format %q", filepath.Ext(path))
}

// ParseYAML decodes a YAML itinerary
func ParseYAML(data []byte) (*Itinerary, error) {
	var it Itinerary
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&it); err != nil {
		return nil, fmt.Errorf("failed to parse itinerary YAML: %w", err)
	}
	if err := it.normalize(); err != nil {
		return nil, err
	}
	return &it, nil
}

// ParseGPX reads <wpt> elements as waypoints, in document order, and the
// first track's points as a replay track
func ParseGPX(data []byte) (*Itinerary, error) {
	g, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GPX: %w", err)
	}

	it := Itinerary{Name: g.Name}
	for i, w := range g.Waypoints {
		id := w.Name
		if id == "" {
			id = fmt.Sprintf("wpt-%d", i)
		}
		it.Waypoints = append(it.Waypoints, navigation.WaypointSpec{
			ID:        slug(id),
			Name:      w.Name,
			Category:  w.Type,
			Latitude:  w.Latitude,
			Longitude: w.Longitude,
		})
	}

	for _, track := range g.Tracks {
		for _, segment := range track.Segments {
			for _, p := range segment.Points {
				it.Track = append(it.Track, geo.Point{Latitude: p.Latitude, Longitude: p.Longitude})
			}
		}
		if it.Name == "" {
			it.Name = track.Name
		}
		break
	}

	if err := it.normalize(); err != nil {
		return nil, err
	}
	return &it, nil
}

// Build resolves the waypoint specs
func (it *Itinerary) Build() ([]navigation.Waypoint, error) {
	return navigation.BuildWaypoints(it.Waypoints)
}

// ProfileOr returns the itinerary's own profile, or fallback when it names none
func (it *Itinerary) ProfileOr(fallback routing.Profile) routing.Profile {
	if it.Profile != "" {
		return it.Profile
	}
	return fallback
}

// normalize validates the itinerary and marks the first waypoint as the start
func (it *Itinerary) normalize() error {
	if len(it.Waypoints) > 0 && it.Waypoints[0].Kind == "" {
		it.Waypoints[0].Kind = navigation.KindStart
	}
	if err := validate.Struct(it); err != nil {
		return fmt.Errorf("%w: %v", navigation.ErrInvalidWaypoint, err)
	}
	return nil
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}), "-")
}
